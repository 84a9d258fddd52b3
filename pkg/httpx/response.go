package httpx

import (
	"encoding/json"
	"net/http"
)

// ErrorBody is the shape of every error response the API writes.
type ErrorBody struct {
	Error string `json:"error"`
}

// JSON writes v as JSON with the given status code and the nosniff header.
// Encoding errors are dropped; the status line is already on the wire.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// JSONError writes {"error": message} with the given status.
func JSONError(w http.ResponseWriter, status int, message string) {
	JSON(w, status, ErrorBody{Error: message})
}

// SafeError is the client-facing message for err. With hideInternal set, a
// 5xx message is reduced to the status text so supplier endpoints, SQL and
// Redis errors stay in the logs. 4xx messages always pass through.
func SafeError(err error, status int, hideInternal bool) string {
	if hideInternal && status >= http.StatusInternalServerError {
		return http.StatusText(status)
	}
	return err.Error()
}
