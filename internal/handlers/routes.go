package handlers

import (
	"context"
	"net/http"
	"time"
)

// RegisterRoutes wires HTTP handlers into the provided ServeMux.
func RegisterRoutes(mux *http.ServeMux, deps Dependencies) {
	health := HealthHandler{Ready: deps.Ready}
	signals := SignalHandler{Signals: deps.Signals, Engine: deps.Engine, Limiter: deps.Limiter, Limits: deps.Limits}
	matches := MatchHandler{Matches: deps.Matches, Engine: deps.Engine, Limiter: deps.Limiter}

	mux.HandleFunc("/healthz", health.Handle)
	if deps.Metrics != nil {
		mux.Handle("/metrics", deps.Metrics)
	}
	mux.HandleFunc("/api/v1/signals", signals.Create)
	mux.HandleFunc("/api/v1/signals/list", signals.List)
	mux.HandleFunc("/api/v1/signals/delete", signals.Delete)
	mux.HandleFunc("/api/v1/matches", matches.List)
	mux.HandleFunc("/api/v1/matches/check", matches.Check)
	mux.HandleFunc("/api/v1/matches/sweep", matches.Sweep)
}

// Dependencies aggregates collaborators required by HTTP handlers.
type Dependencies struct {
	Signals SignalStore
	Matches MatchLister
	Engine  MatchEngine
	Limiter RateLimiter
	Limits  SignalLimits
	Metrics http.Handler
	Ready   func(ctx context.Context) error
}

// SignalLimits bounds what a client may submit when dropping a signal.
type SignalLimits struct {
	TTL                time.Duration
	MaxRadiusMeters    float64
	MaxBackdateMinutes int
}

// DefaultSignalLimits returns the limits used when none are configured.
func DefaultSignalLimits() SignalLimits {
	return SignalLimits{TTL: 24 * time.Hour, MaxRadiusMeters: 5000, MaxBackdateMinutes: 60}
}
