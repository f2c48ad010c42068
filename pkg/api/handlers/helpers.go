package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/marklog/marklog/pkg/capability"
)

// decodeJSONBody decodes a JSON request body into the provided pointer.
// Returns true if successful, false if decoding fails (error response is
// written automatically). A body over the server-wide byte cap renders
// 413 rather than 400.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			WriteError(w, http.StatusRequestEntityTooLarge, CodePayloadTooLarge, "Request body too large")
			return false
		}
		BadRequest(w, "Invalid request body")
		return false
	}
	return true
}

// resourcePath extracts and decodes the resource portion of a capability
// URL: everything after /{mount}/{key}. Decoding happens exactly once,
// against the escaped path, so double-encoded traversal never
// materializes. trimSuffix names an action segment ("/append",
// "/heartbeat") to strip before decoding.
func resourcePath(r *http.Request, trimSuffix string) (string, error) {
	raw := r.URL.EscapedPath()
	parts := strings.SplitN(strings.TrimPrefix(raw, "/"), "/", 3)
	if len(parts) < 3 || parts[2] == "" {
		return "/", nil
	}
	rest := parts[2]
	if trimSuffix != "" {
		rest = strings.TrimSuffix(rest, trimSuffix)
	}
	return capability.DecodeResourcePath(rest)
}

// parseIfMatch canonicalizes an If-Match header value: surrounding
// quotes stripped, lowercased. Returns nil when the header is absent.
func parseIfMatch(r *http.Request) *string {
	raw := strings.TrimSpace(r.Header.Get("If-Match"))
	if raw == "" {
		return nil
	}
	raw = strings.Trim(raw, `"`)
	etag := strings.ToLower(raw)
	return &etag
}

// queryInt parses an integer query parameter, falling back to def when
// absent. A non-numeric value reports ok=false.
func queryInt(r *http.Request, name string, def int) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return n, true
}
