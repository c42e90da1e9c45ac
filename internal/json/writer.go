// Package json writes the JSON bodies of the front end's machine-facing
// endpoints: page state, health, and errors from handlers and middleware.
package json

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/dgellow/stylefront/internal/log"
)

// ErrorCode is the stable, machine-readable part of an error body.
type ErrorCode string

const (
	CodeBadRequest       ErrorCode = "bad_request"
	CodeForbidden        ErrorCode = "forbidden"
	CodeNotFound         ErrorCode = "not_found"
	CodeMethodNotAllowed ErrorCode = "method_not_allowed"
	CodeInternal         ErrorCode = "internal_server_error"
	CodeUnavailable      ErrorCode = "unavailable"
)

// ErrorResponse is the body of every JSON error.
type ErrorResponse struct {
	Error   ErrorCode `json:"error"`
	Message string    `json:"message,omitempty"`
}

// WriteResponse writes data with statusCode. Responses carry auth state, so
// they are never cached.
func WriteResponse(w http.ResponseWriter, statusCode int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.LogErrorWithFields("json", "Failed to encode response", map[string]any{
			"status": statusCode,
			"error":  err.Error(),
		})
		return err
	}
	return nil
}

// Write writes data with 200 OK.
func Write(w http.ResponseWriter, data any) error {
	return WriteResponse(w, http.StatusOK, data)
}

// WriteError writes an ErrorResponse.
func WriteError(w http.ResponseWriter, statusCode int, code ErrorCode, message string) {
	if err := WriteResponse(w, statusCode, ErrorResponse{Error: code, Message: message}); err != nil {
		// Headers are already out, fall back to a plain body
		http.Error(w, string(code)+": "+message, statusCode)
	}
}

func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, CodeBadRequest, message)
}

// WriteForbidden is used for failed CSRF checks.
func WriteForbidden(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusForbidden, CodeForbidden, message)
}

// WriteNotFound is also the answer for pages owned by another browser, so
// their existence does not leak.
func WriteNotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, CodeNotFound, message)
}

func WriteMethodNotAllowed(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusMethodNotAllowed, CodeMethodNotAllowed, message)
}

func WriteInternalServerError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, CodeInternal, message)
}

// WriteUnavailable answers while the server shuts down. retryAfter is
// advertised to clients when positive.
func WriteUnavailable(w http.ResponseWriter, message string, retryAfter time.Duration) {
	if retryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Seconds())))
	}
	WriteError(w, http.StatusServiceUnavailable, CodeUnavailable, message)
}
