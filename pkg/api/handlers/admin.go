package handlers

import (
	"net/http"

	"github.com/marklog/marklog/pkg/metrics"
)

// AdminHandler serves operator endpoints behind the admin secret.
type AdminHandler struct{}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler() *AdminHandler {
	return &AdminHandler{}
}

// Metrics handles GET /api/v1/admin/metrics: the flattened metric
// snapshot for callers without a Prometheus scraper.
func (h *AdminHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	snapshot, err := metrics.Snapshot()
	if err != nil {
		InternalServerError(w)
		return
	}
	WriteOK(w, snapshot)
}
