package web

// errors.go provides unified error response handling for the web layer.
// Technical details are logged server-side with the request id; clients
// receive a stable JSON shape with a machine-readable code.

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/clasak/compassiq/internal/logging"
)

// ErrorResponse is the JSON structure for API error responses.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// Error codes returned by this service.
const (
	codeBadRequest     = "BAD_REQUEST"
	codeUnauthorized   = "UNAUTHORIZED"
	codeNotFound       = "NOT_FOUND"
	codeWrongType      = "CONNECTION_TYPE_MISMATCH"
	codeInvalidMapping = "INVALID_MAPPING"
	codeInternal       = "INTERNAL"
)

// respondError logs the technical error and writes the JSON error response.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, status int, code, msg string, err error) {
	logger := logging.FromContext(r.Context())
	args := []any{
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"code", code,
		"request_id", middleware.GetReqID(r.Context()),
	}
	if err != nil {
		args = append(args, "error", err.Error())
	}
	logger.Error("request error", args...)

	respondJSON(w, status, ErrorResponse{Error: msg, Code: code})
}

// respondJSON writes v as a JSON response with the given status.
func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
