package handlers

import (
	"net/http"
	"time"

	"github.com/marklog/marklog/pkg/store"
)

// HealthHandler serves the liveness endpoint.
type HealthHandler struct {
	store     store.Store
	startTime time.Time
}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler(st store.Store) *HealthHandler {
	return &HealthHandler{store: st, startTime: time.Now()}
}

// Health handles GET /health: process liveness plus a store ping.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Healthcheck(r.Context()); err != nil {
		WriteError(w, http.StatusServiceUnavailable, CodeServerError, "Store unavailable")
		return
	}
	uptime := time.Since(h.startTime)
	WriteOK(w, map[string]any{
		"status":    "ok",
		"service":   "marklog",
		"startedAt": h.startTime.UTC().Format(time.RFC3339),
		"uptime":    uptime.Round(time.Second).String(),
		"uptimeSec": int64(uptime.Seconds()),
	})
}
