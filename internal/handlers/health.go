package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/winkmatch/backend/internal/logging"
)

const readinessTimeout = 2 * time.Second

// HealthHandler responds with service health information.
type HealthHandler struct {
	// Ready, when set, reports whether the backing store is reachable.
	Ready func(ctx context.Context) error
}

// Handle implements GET /healthz.
func (h HealthHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	if h.Ready != nil {
		readyCtx, cancel := context.WithTimeout(ctx, readinessTimeout)
		err := h.Ready(readyCtx)
		cancel()
		if err != nil {
			logging.FromContext(ctx).Warn("store not ready", "error", err)
			respondJSON(ctx, w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}

	respondJSON(ctx, w, http.StatusOK, map[string]string{"status": "ok"})
}
