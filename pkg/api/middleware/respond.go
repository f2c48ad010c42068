package middleware

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"
)

// envelope mirrors the handlers package response shape. Middleware writes
// only failure envelopes, so the success fields are omitted here.
type envelope struct {
	OK    bool       `json:"ok"`
	Error *errorBody `json:"error"`
}

type errorBody struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeErrorDetails(w, status, code, message, nil)
}

func writeErrorDetails(w http.ResponseWriter, status int, code, message string, details map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{
		OK:    false,
		Error: &errorBody{Code: code, Message: message, Details: details},
	})
}

// writeRateLimited renders the 429 contract: Retry-After header plus
// retryAfterSeconds in the error details.
func writeRateLimited(w http.ResponseWriter, retryAfter time.Duration) {
	seconds := int(retryAfter.Seconds())
	if seconds < 1 {
		seconds = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(seconds))
	writeErrorDetails(w, http.StatusTooManyRequests, "RATE_LIMITED",
		"Too many requests", map[string]any{"retryAfterSeconds": seconds})
}
