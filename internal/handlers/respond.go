package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/winkmatch/backend/internal/logging"
	"github.com/winkmatch/backend/internal/matching"
)

func respondJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.FromContext(ctx).Error("encode response body", "status", status, "error", err)
		return
	}

	logger := logging.FromContext(ctx)
	switch {
	case status >= http.StatusInternalServerError:
		logger.Error("request failed", "status", status, "response", payload)
	case status >= http.StatusBadRequest:
		logger.Warn("request returned client error", "status", status, "response", payload)
	}
}

func respondError(ctx context.Context, w http.ResponseWriter, status int, message string) {
	respondJSON(ctx, w, status, map[string]string{"error": message})
}

// respondEngineError maps matching errors onto HTTP statuses.
func respondEngineError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, matching.ErrSignalNotFound):
		respondError(ctx, w, http.StatusNotFound, "signal not found")
	case errors.Is(err, matching.ErrInvalidInput):
		respondError(ctx, w, http.StatusBadRequest, err.Error())
	case matching.IsRetryable(err):
		logging.FromContext(ctx).Error("matching store unavailable", "error", err)
		respondError(ctx, w, http.StatusServiceUnavailable, "matching temporarily unavailable")
	default:
		logging.FromContext(ctx).Error("matching failed", "error", err)
		respondError(ctx, w, http.StatusInternalServerError, "matching failed")
	}
}

const maxBodyBytes = 1 << 20

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst)
}
