package handlers

import (
	"net/http"

	"github.com/marklog/marklog/pkg/ratelimit"
)

// TestEnvHandler hosts fixtures that only exist outside production. The
// router never mounts it when the environment is production.
type TestEnvHandler struct {
	limits *ratelimit.Set
}

// NewTestEnvHandler creates a new TestEnvHandler.
func NewTestEnvHandler(limits *ratelimit.Set) *TestEnvHandler {
	return &TestEnvHandler{limits: limits}
}

// Reset handles POST /__test/reset: clears every rate-limit bucket so
// test runs start from a clean slate.
func (h *TestEnvHandler) Reset(w http.ResponseWriter, r *http.Request) {
	if h.limits != nil {
		h.limits.ResetAll()
	}
	WriteOK(w, map[string]any{"reset": true})
}
