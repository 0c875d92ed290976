package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/winkmatch/backend/internal/logging"
	"github.com/winkmatch/backend/internal/matching"
	"github.com/winkmatch/backend/internal/models"
)

// MatchHandler exposes match listing and the two matching entry points.
type MatchHandler struct {
	Matches MatchLister
	Engine  MatchEngine
	Limiter RateLimiter
}

type matchResponse struct {
	ID          string    `json:"id"`
	UserA       string    `json:"userA"`
	UserB       string    `json:"userB"`
	OtherUserID string    `json:"otherUserId"`
	SignalID    string    `json:"signalId,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

type confirmedMatchResponse struct {
	MatchID         string  `json:"matchId"`
	OtherUserID     string  `json:"otherUserId"`
	Distance        float64 `json:"distance"`
	TimeDiffMinutes float64 `json:"timeDiffMinutes"`
	Created         bool    `json:"created"`
	PartialExpiry   bool    `json:"partialExpiry,omitempty"`
}

type diagnosticResponse struct {
	SignalID        string  `json:"signalId"`
	UserID          string  `json:"userId"`
	Distance        float64 `json:"distance"`
	MaxRadius       float64 `json:"maxRadius"`
	TimeDiffMinutes float64 `json:"timeDiffMinutes"`
	IsWithinRadius  bool    `json:"isWithinRadius"`
	IsWithinTime    bool    `json:"isWithinTime"`
	IsMatch         bool    `json:"isMatch"`
}

type checkResponse struct {
	Matches            []confirmedMatchResponse `json:"matches"`
	Diagnostics        []diagnosticResponse     `json:"diagnostics"`
	TotalActiveSignals int                      `json:"totalActiveSignals"`
}

type sweepResponse struct {
	SignalsChecked  int `json:"signalsChecked"`
	MatchesCreated  int `json:"matchesCreated"`
	PartialExpiries int `json:"partialExpiries"`
}

// List handles GET /api/v1/matches?userId=.
func (h MatchHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	if h.Matches == nil {
		respondError(ctx, w, http.StatusInternalServerError, "match services unavailable")
		return
	}

	userID := strings.TrimSpace(r.URL.Query().Get("userId"))
	if userID == "" {
		respondError(ctx, w, http.StatusBadRequest, "userId is required")
		return
	}

	matches, err := h.Matches.ListForUser(ctx, userID)
	if err != nil {
		logging.FromContext(ctx).Error("failed to list matches", "userId", userID, "error", err)
		respondError(ctx, w, http.StatusInternalServerError, "failed to list matches")
		return
	}

	out := make([]matchResponse, 0, len(matches))
	for _, m := range matches {
		out = append(out, newMatchResponse(m, userID))
	}
	respondJSON(ctx, w, http.StatusOK, map[string]any{"matches": out})
}

// Check handles POST /api/v1/matches/check.
func (h MatchHandler) Check(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	if h.Engine == nil {
		respondError(ctx, w, http.StatusInternalServerError, "matching unavailable")
		return
	}
	if !allowRequest(h.Limiter, r, "check") {
		respondError(ctx, w, http.StatusTooManyRequests, "too many requests")
		return
	}

	var req signalOwnerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		logging.FromContext(ctx).Warn("invalid check payload", "error", err)
		respondError(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.Engine.CheckOne(ctx, req.SignalID, req.UserID)
	if err != nil {
		respondEngineError(ctx, w, err)
		return
	}

	respondJSON(ctx, w, http.StatusOK, newCheckResponse(result))
}

// Sweep handles POST /api/v1/matches/sweep, the scheduler-facing trigger.
func (h MatchHandler) Sweep(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	if h.Engine == nil {
		respondError(ctx, w, http.StatusInternalServerError, "matching unavailable")
		return
	}
	if !allowRequest(h.Limiter, r, "sweep") {
		respondError(ctx, w, http.StatusTooManyRequests, "too many requests")
		return
	}

	result, err := h.Engine.Sweep(ctx)
	if err != nil {
		respondEngineError(ctx, w, err)
		return
	}

	respondJSON(ctx, w, http.StatusOK, sweepResponse{
		SignalsChecked:  result.SignalsChecked,
		MatchesCreated:  result.MatchesCreated,
		PartialExpiries: result.PartialExpiries,
	})
}

func newMatchResponse(m models.Match, userID string) matchResponse {
	other, _ := m.OtherUser(userID)
	return matchResponse{
		ID:          m.ID,
		UserA:       m.UserA,
		UserB:       m.UserB,
		OtherUserID: other,
		SignalID:    m.SourceSignalID,
		CreatedAt:   m.CreatedAt,
	}
}

func newCheckResponse(result matching.CheckResult) checkResponse {
	resp := checkResponse{
		Matches:            make([]confirmedMatchResponse, 0, len(result.Matches)),
		Diagnostics:        make([]diagnosticResponse, 0, len(result.Diagnostics)),
		TotalActiveSignals: result.ActiveCandidates,
	}
	for _, m := range result.Matches {
		resp.Matches = append(resp.Matches, confirmedMatchResponse{
			MatchID:         m.MatchID,
			OtherUserID:     m.OtherUserID,
			Distance:        m.DistanceMeters,
			TimeDiffMinutes: m.TimeDeltaMinutes,
			Created:         m.Created,
			PartialExpiry:   m.PartialExpiry,
		})
	}
	for _, d := range result.Diagnostics {
		resp.Diagnostics = append(resp.Diagnostics, diagnosticResponse{
			SignalID:        d.CandidateSignalID,
			UserID:          d.CandidateUserID,
			Distance:        d.DistanceMeters,
			MaxRadius:       d.MaxRadiusMeters,
			TimeDiffMinutes: d.TimeDeltaMinutes,
			IsWithinRadius:  d.SpatialPass,
			IsWithinTime:    d.TemporalPass,
			IsMatch:         d.IsMatch,
		})
	}
	return resp
}
