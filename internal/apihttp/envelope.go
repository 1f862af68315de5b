// Package apihttp implements the public JSON API: response envelopes,
// request validation middleware, the error normalizer, and the route
// handlers themselves.
package apihttp

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/pospon/api/internal/schema"
)

// SuccessBody is the envelope for successful responses.
type SuccessBody struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Data      any    `json:"data,omitempty"`
	Timestamp string `json:"timestamp"`
}

// ErrorBody is the envelope for failed requests.
type ErrorBody struct {
	Success    bool   `json:"success"`
	Message    string `json:"message"`
	Error      string `json:"error"`
	StatusCode int    `json:"statusCode"`
}

// ValidationBody is the envelope for schema validation failures. Details
// are per-field and safe to show to end users.
type ValidationBody struct {
	Success   bool                `json:"success"`
	Error     string              `json:"error"`
	Details   []schema.FieldError `json:"details"`
	Timestamp string              `json:"timestamp"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// WriteSuccess writes the standard success envelope.
func WriteSuccess(w http.ResponseWriter, status int, message string, data any) {
	writeJSON(w, status, SuccessBody{
		Success:   true,
		Message:   message,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// WriteValidationError writes the 400 validation envelope.
func WriteValidationError(w http.ResponseWriter, details []schema.FieldError) {
	writeJSON(w, http.StatusBadRequest, ValidationBody{
		Success:   false,
		Error:     "Validation failed",
		Details:   details,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}
