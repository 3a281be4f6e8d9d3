package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/sells-group/emla-tracker/internal/schema"
	"github.com/sells-group/emla-tracker/internal/tabular"
	"github.com/sells-group/emla-tracker/internal/uploadsession"
)

// ErrorEnvelope is the body of every non-2xx JSON response.
type ErrorEnvelope struct {
	Error     ErrorBody `json:"error"`
	RequestID string    `json:"requestId"`
}

// ErrorBody describes one failure.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Debug("api: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, ErrorEnvelope{
		Error:     ErrorBody{Code: code, Message: message},
		RequestID: middleware.GetReqID(r.Context()),
	})
}

// writeFailure maps a handler error to a status and code. Unknown errors are
// logged and answered with 500.
func writeFailure(w http.ResponseWriter, r *http.Request, op string, err error) {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		writeError(w, r, http.StatusRequestEntityTooLarge, "body_too_large", "request body too large")
	case errors.Is(err, tabular.ErrEmptyInput):
		writeError(w, r, http.StatusBadRequest, "empty_input", "CSV data has no rows")
	case errors.Is(err, schema.ErrUnknownHint):
		writeError(w, r, http.StatusBadRequest, "unknown_csv_type", "csvType names no known upload type")
	case errors.Is(err, uploadsession.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "not_found", "upload session not found")
	default:
		zap.L().Error("api: request failed",
			zap.String("op", op),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err),
		)
		writeError(w, r, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

// decodeBody decodes a JSON request body. An empty body leaves v untouched
// when allowEmpty is set.
func decodeBody(r *http.Request, v any, allowEmpty bool) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) && allowEmpty {
		return nil
	}
	return err
}

func (s *Server) badBody(w http.ResponseWriter, r *http.Request, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeFailure(w, r, "decode", err)
		return
	}
	writeError(w, r, http.StatusBadRequest, "invalid_body", "invalid request body")
}
