package json

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/dgellow/appbridge/internal/log"
)

// ErrorResponse is the body of every non-2xx status server response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// WriteResponse encodes data with the given status. Responses describe one
// user's session, so intermediaries must not store them.
func WriteResponse(w http.ResponseWriter, statusCode int, data any) error {
	h := w.Header()
	h.Set("Content-Type", "application/json")
	h.Set("Cache-Control", "no-store")
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

// WriteError writes an ErrorResponse whose Error field is derived from the
// status text, e.g. "not_found".
func WriteError(w http.ResponseWriter, statusCode int, message string) {
	_ = WriteResponse(w, statusCode, ErrorResponse{
		Error:   errorCode(statusCode),
		Message: message,
	})
}

func WriteNotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, message)
}

func WriteMethodNotAllowed(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusMethodNotAllowed, message)
}

func WriteInternalServerError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, message)
}

func errorCode(statusCode int) string {
	text := http.StatusText(statusCode)
	if text == "" {
		return "error"
	}
	return strings.ReplaceAll(strings.ToLower(text), " ", "_")
}
