package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
)

// ErrorCode represents machine-readable error codes
type ErrorCode string

const (
	ErrCodeInvalidJSON     ErrorCode = "INVALID_JSON"
	ErrCodeMissingField    ErrorCode = "MISSING_FIELD"
	ErrCodeInvalidLanguage ErrorCode = "INVALID_LANGUAGE"
	ErrCodeNotCandidate    ErrorCode = "NOT_A_HEADER_CANDIDATE"
	ErrCodeRequestTooLarge ErrorCode = "REQUEST_TOO_LARGE"
)

// ErrorResponse represents a structured error response
type ErrorResponse struct {
	Error     string    `json:"error"`   // HTTP status text
	Message   string    `json:"message"` // Human-readable description
	Code      ErrorCode `json:"code"`
	RequestID string    `json:"request_id,omitempty"`
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a structured error response, tagged with the chi request ID when present.
func writeError(w http.ResponseWriter, r *http.Request, status int, code ErrorCode, msg string) {
	writeJSON(w, status, ErrorResponse{
		Error:     http.StatusText(status),
		Message:   msg,
		Code:      code,
		RequestID: middleware.GetReqID(r.Context()),
	})
}
