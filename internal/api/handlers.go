package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/sells-group/emla-tracker/internal/export"
	"github.com/sells-group/emla-tracker/internal/ingest"
	"github.com/sells-group/emla-tracker/internal/model"
	"github.com/sells-group/emla-tracker/internal/result"
	"github.com/sells-group/emla-tracker/internal/store"
	"github.com/sells-group/emla-tracker/internal/uploadsession"
)

type uploadRequest struct {
	CSVData string `json:"csvData"`
	CSVType string `json:"csvType,omitempty"`
	// RowOffset shifts reported row numbers for a batch cut from a larger file.
	RowOffset int `json:"rowOffset,omitempty"`
}

func (s *Server) process(w http.ResponseWriter, r *http.Request) (*result.UploadResult, bool) {
	var req uploadRequest
	if err := decodeBody(r, &req, false); err != nil {
		s.badBody(w, r, err)
		return nil, false
	}
	if strings.TrimSpace(req.CSVData) == "" {
		writeError(w, r, http.StatusBadRequest, "empty_input", "csvData is required")
		return nil, false
	}
	if req.RowOffset < 0 {
		writeError(w, r, http.StatusBadRequest, "invalid_body", "rowOffset must be >= 0")
		return nil, false
	}

	res, err := s.deps.Pipeline.Process(r.Context(), ingest.Input{
		CSVText:     req.CSVData,
		DialectHint: req.CSVType,
		RowOffset:   req.RowOffset,
	})
	if err != nil {
		writeFailure(w, r, "upload", err)
		return nil, false
	}
	return res, true
}

func (s *Server) upload(w http.ResponseWriter, r *http.Request) {
	res, ok := s.process(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) sessionsAvailable(w http.ResponseWriter, r *http.Request) bool {
	if s.deps.Sessions == nil {
		writeError(w, r, http.StatusServiceUnavailable, "sessions_disabled", "upload sessions are not configured")
		return false
	}
	return true
}

func (s *Server) startSession(w http.ResponseWriter, r *http.Request) {
	if !s.sessionsAvailable(w, r) {
		return
	}
	var req struct {
		Batches int `json:"batches"`
	}
	if err := decodeBody(r, &req, true); err != nil {
		s.badBody(w, r, err)
		return
	}
	if req.Batches < 0 {
		writeError(w, r, http.StatusBadRequest, "invalid_body", "batches must be >= 0")
		return
	}

	id, err := s.deps.Sessions.Start(r.Context(), req.Batches)
	if err != nil {
		writeFailure(w, r, "start session", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (s *Server) appendBatch(w http.ResponseWriter, r *http.Request) {
	if !s.sessionsAvailable(w, r) {
		return
	}
	id := chi.URLParam(r, "id")
	// Reject unknown sessions before doing the work.
	ok, err := s.deps.Sessions.Exists(r.Context(), id)
	if err != nil {
		writeFailure(w, r, "append batch", err)
		return
	}
	if !ok {
		writeFailure(w, r, "append batch", uploadsession.ErrNotFound)
		return
	}

	res, ok := s.process(w, r)
	if !ok {
		return
	}
	n, err := s.deps.Sessions.Append(r.Context(), id, res)
	if err != nil {
		writeFailure(w, r, "append batch", err)
		return
	}
	zap.L().Debug("api: batch appended", zap.String("session", id), zap.Int("received", n))
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	if !s.sessionsAvailable(w, r) {
		return
	}
	sum, err := s.deps.Sessions.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeFailure(w, r, "get session", err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (s *Server) sessionFailedRows(w http.ResponseWriter, r *http.Request) {
	if !s.sessionsAvailable(w, r) {
		return
	}
	sum, err := s.deps.Sessions.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeFailure(w, r, "failed rows", err)
		return
	}
	if sum.Result == nil || sum.Result.FailedRowsCSV == "" {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+export.FailedRowsName(s.now())+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(sum.Result.FailedRowsCSV))
}

func (s *Server) listCustomers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.CustomerFilter{
		Status:   q.Get("status"),
		EMLAType: q.Get("emlaType"),
	}
	for name, dst := range map[string]*int{"limit": &filter.Limit, "offset": &filter.Offset} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, r, http.StatusBadRequest, "invalid_query", name+" must be a non-negative integer")
			return
		}
		*dst = n
	}

	customers, err := s.deps.Customers.ListCustomers(r.Context(), filter)
	if err != nil {
		writeFailure(w, r, "list customers", err)
		return
	}
	if customers == nil {
		customers = []model.Customer{}
	}
	writeJSON(w, http.StatusOK, customers)
}

func (s *Server) getCustomer(w http.ResponseWriter, r *http.Request) {
	c, err := s.deps.Customers.GetCustomer(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeFailure(w, r, "get customer", err)
		return
	}
	if c == nil {
		writeError(w, r, http.StatusNotFound, "not_found", "customer not found")
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) completeCustomers(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IDs []string `json:"ids"`
	}
	if err := decodeBody(r, &req, false); err != nil {
		s.badBody(w, r, err)
		return
	}
	var ids []string
	for _, id := range req.IDs {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		writeError(w, r, http.StatusBadRequest, "invalid_body", "ids is required")
		return
	}

	n, err := s.deps.Customers.SetCompleted(r.Context(), ids, s.now().UTC())
	if err != nil {
		writeFailure(w, r, "complete customers", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"updated": n})
}

func (s *Server) runSync(w http.ResponseWriter, r *http.Request) {
	if s.deps.Sync == nil {
		writeError(w, r, http.StatusServiceUnavailable, "sync_disabled", "master-data sync is not configured")
		return
	}
	res, err := s.deps.Sync.Run(r.Context())
	if err != nil {
		zap.L().Error("api: sync failed", zap.Error(err))
		writeError(w, r, http.StatusBadGateway, "sync_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}
