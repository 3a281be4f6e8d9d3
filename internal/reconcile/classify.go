package reconcile

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// Postgres SQLSTATE codes with a friendlier explanation.
const (
	codeStringTooLong   = "22001"
	codeCharNotInRepert = "22021"
	codeUniqueViolation = "23505"
)

// ClassifyError turns a failed insert into a row reason an operator can act on.
func ClassifyError(err error) string {
	if err == nil {
		return ""
	}
	msg := errorText(err)
	low := strings.ToLower(msg)

	var code string
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		code = pgErr.Code
	}

	switch {
	case code == codeStringTooLong ||
		strings.Contains(low, "value too long") ||
		strings.Contains(low, "string exceeds maximum length"):
		return "Field value too long. Consider shortening text content. Original error: " + msg
	case code == codeCharNotInRepert ||
		strings.Contains(low, "invalid character") ||
		strings.Contains(low, "encoding"):
		return "Invalid characters detected in text field. Original error: " + msg
	case code == codeUniqueViolation ||
		(strings.Contains(low, "constraint") && strings.Contains(low, "unique")):
		return "Duplicate record detected (same customer already exists). Original error: " + msg
	}
	return msg
}

func errorText(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Message
	}
	return err.Error()
}
