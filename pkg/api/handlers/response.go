package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"
)

// successEnvelope is the wire shape of every successful response:
// {ok:true, data, pagination?}.
type successEnvelope struct {
	OK         bool `json:"ok"`
	Data       any  `json:"data"`
	Pagination any  `json:"pagination,omitempty"`
}

// errorEnvelope is the wire shape of every failure response:
// {ok:false, error:{code, message, details?}}.
type errorEnvelope struct {
	OK    bool      `json:"ok"`
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// WriteOK writes a 200 success envelope.
func WriteOK(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, successEnvelope{OK: true, Data: data})
}

// WriteCreated writes a 201 success envelope.
func WriteCreated(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusCreated, successEnvelope{OK: true, Data: data})
}

// WritePage writes a 200 success envelope with pagination metadata.
func WritePage(w http.ResponseWriter, data, pagination any) {
	writeJSON(w, http.StatusOK, successEnvelope{OK: true, Data: data, Pagination: pagination})
}

// WriteError writes a failure envelope with the given status and code.
func WriteError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorEnvelope{Error: errorBody{Code: code, Message: message}})
}

// WriteErrorDetails writes a failure envelope carrying a details map.
func WriteErrorDetails(w http.ResponseWriter, status int, code, message string, details map[string]any) {
	writeJSON(w, status, errorEnvelope{Error: errorBody{Code: code, Message: message, Details: details}})
}

// WriteRateLimited writes the 429 envelope with Retry-After and the
// retryAfterSeconds detail.
func WriteRateLimited(w http.ResponseWriter, retryAfter time.Duration) {
	seconds := int(retryAfter.Round(time.Second).Seconds())
	if seconds < 1 {
		seconds = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(seconds))
	WriteErrorDetails(w, http.StatusTooManyRequests, CodeRateLimited, "Too many requests",
		map[string]any{"retryAfterSeconds": seconds})
}
