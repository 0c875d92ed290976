package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/winkmatch/backend/internal/logging"
	"github.com/winkmatch/backend/internal/models"
	"github.com/winkmatch/backend/internal/repositories"
)

// SignalHandler lets users drop, list and withdraw signals.
type SignalHandler struct {
	Signals SignalStore
	Engine  MatchEngine
	Limiter RateLimiter
	Limits  SignalLimits
	NowFunc func() time.Time
	IDFunc  func() string
}

type createSignalRequest struct {
	UserID     string   `json:"userId"`
	Lat        *float64 `json:"lat"`
	Lng        *float64 `json:"lng"`
	Radius     float64  `json:"radius"`
	TimeOffset int      `json:"timeOffset"`
}

type signalOwnerRequest struct {
	SignalID string `json:"signalId"`
	UserID   string `json:"userId"`
}

type signalResponse struct {
	ID         string    `json:"id"`
	UserID     string    `json:"userId"`
	Lat        float64   `json:"lat"`
	Lng        float64   `json:"lng"`
	Radius     float64   `json:"radius"`
	TimeOffset int       `json:"timeOffset"`
	CreatedAt  time.Time `json:"createdAt"`
	ExpiresAt  time.Time `json:"expiresAt"`
	Active     bool      `json:"active"`
}

type createSignalResponse struct {
	Signal     signalResponse `json:"signal"`
	Check      *checkResponse `json:"check"`
	CheckError string         `json:"checkError,omitempty"`
}

// Create handles POST /api/v1/signals. The stored signal is checked against
// the active pool straight away.
func (h SignalHandler) Create(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if h.Signals == nil || h.Engine == nil {
		logger.Error("signal dependencies unavailable", "hasSignals", h.Signals != nil, "hasEngine", h.Engine != nil)
		respondError(ctx, w, http.StatusInternalServerError, "signal services unavailable")
		return
	}

	if !allowRequest(h.Limiter, r, "signals") {
		respondError(ctx, w, http.StatusTooManyRequests, "too many requests")
		return
	}

	var req createSignalRequest
	if err := decodeJSON(w, r, &req); err != nil {
		logger.Warn("invalid signal payload", "error", err)
		respondError(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}

	limits := h.limits()
	if err := req.validate(limits); err != nil {
		logger.Warn("signal rejected", "userId", req.UserID, "error", err)
		respondError(ctx, w, http.StatusBadRequest, err.Error())
		return
	}

	now := h.now()
	signal, err := h.Signals.Insert(ctx, models.Signal{
		ID:                h.newID(),
		OwnerUserID:       strings.TrimSpace(req.UserID),
		Latitude:          *req.Lat,
		Longitude:         *req.Lng,
		RadiusMeters:      req.Radius,
		CreatedAt:         now,
		TimeOffsetMinutes: req.TimeOffset,
		ExpiresAt:         now.Add(limits.TTL),
	})
	if err != nil {
		logger.Error("failed to store signal", "userId", req.UserID, "error", err)
		respondError(ctx, w, http.StatusInternalServerError, "failed to store signal")
		return
	}

	resp := createSignalResponse{Signal: newSignalResponse(signal, now)}

	// The signal is stored regardless; a failed check is left to the next sweep.
	result, err := h.Engine.CheckOne(ctx, signal.ID, signal.OwnerUserID)
	if err != nil {
		logger.Warn("incremental check after signal drop failed", "signalId", signal.ID, "error", err)
		resp.CheckError = "match check deferred"
	} else {
		check := newCheckResponse(result)
		resp.Check = &check
		if len(result.Matches) > 0 {
			resp.Signal.Active = false
		}
	}

	respondJSON(ctx, w, http.StatusCreated, resp)
}

// List handles GET /api/v1/signals/list?userId=.
func (h SignalHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	if h.Signals == nil {
		respondError(ctx, w, http.StatusInternalServerError, "signal services unavailable")
		return
	}

	userID := strings.TrimSpace(r.URL.Query().Get("userId"))
	if userID == "" {
		respondError(ctx, w, http.StatusBadRequest, "userId is required")
		return
	}

	signals, err := h.Signals.ListForUser(ctx, userID)
	if err != nil {
		logging.FromContext(ctx).Error("failed to list signals", "userId", userID, "error", err)
		respondError(ctx, w, http.StatusInternalServerError, "failed to list signals")
		return
	}

	now := h.now()
	out := make([]signalResponse, 0, len(signals))
	for _, s := range signals {
		out = append(out, newSignalResponse(s, now))
	}
	respondJSON(ctx, w, http.StatusOK, map[string]any{"signals": out})
}

// Delete handles POST /api/v1/signals/delete.
func (h SignalHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	logger := logging.FromContext(ctx)
	if h.Signals == nil {
		respondError(ctx, w, http.StatusInternalServerError, "signal services unavailable")
		return
	}

	var req signalOwnerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		logger.Warn("invalid delete payload", "error", err)
		respondError(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.SignalID) == "" || strings.TrimSpace(req.UserID) == "" {
		respondError(ctx, w, http.StatusBadRequest, "signalId and userId are required")
		return
	}

	err := h.Signals.Delete(ctx, req.SignalID, req.UserID)
	switch {
	case err == nil:
		logger.Info("signal deleted", "signalId", req.SignalID, "userId", req.UserID)
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, repositories.ErrNotFound):
		respondError(ctx, w, http.StatusNotFound, "signal not found")
	case errors.Is(err, repositories.ErrConflict):
		respondError(ctx, w, http.StatusConflict, "signal is part of a match")
	default:
		logger.Error("failed to delete signal", "signalId", req.SignalID, "error", err)
		respondError(ctx, w, http.StatusInternalServerError, "failed to delete signal")
	}
}

func (req createSignalRequest) validate(limits SignalLimits) error {
	if strings.TrimSpace(req.UserID) == "" {
		return errors.New("userId is required")
	}
	if req.Lat == nil || req.Lng == nil {
		return errors.New("lat and lng are required")
	}
	if *req.Lat < -90 || *req.Lat > 90 {
		return fmt.Errorf("lat %v out of range", *req.Lat)
	}
	if *req.Lng < -180 || *req.Lng > 180 {
		return fmt.Errorf("lng %v out of range", *req.Lng)
	}
	if req.Radius <= 0 || req.Radius > limits.MaxRadiusMeters {
		return fmt.Errorf("radius must be within (0, %v] meters", limits.MaxRadiusMeters)
	}
	if req.TimeOffset > 0 || req.TimeOffset < -limits.MaxBackdateMinutes {
		return fmt.Errorf("timeOffset must be within [-%d, 0] minutes", limits.MaxBackdateMinutes)
	}
	return nil
}

func newSignalResponse(s models.Signal, now time.Time) signalResponse {
	return signalResponse{
		ID:         s.ID,
		UserID:     s.OwnerUserID,
		Lat:        s.Latitude,
		Lng:        s.Longitude,
		Radius:     s.RadiusMeters,
		TimeOffset: s.TimeOffsetMinutes,
		CreatedAt:  s.CreatedAt,
		ExpiresAt:  s.ExpiresAt,
		Active:     s.IsActive(now),
	}
}

func (h SignalHandler) limits() SignalLimits {
	limits := h.Limits
	defaults := DefaultSignalLimits()
	if limits.TTL <= 0 {
		limits.TTL = defaults.TTL
	}
	if limits.MaxRadiusMeters <= 0 {
		limits.MaxRadiusMeters = defaults.MaxRadiusMeters
	}
	if limits.MaxBackdateMinutes <= 0 {
		limits.MaxBackdateMinutes = defaults.MaxBackdateMinutes
	}
	return limits
}

func (h SignalHandler) now() time.Time {
	if h.NowFunc != nil {
		return h.NowFunc().UTC()
	}
	return time.Now().UTC()
}

func (h SignalHandler) newID() string {
	if h.IDFunc != nil {
		return h.IDFunc()
	}
	return uuid.NewString()
}
