package handlers

import (
	"context"

	"github.com/winkmatch/backend/internal/matching"
	"github.com/winkmatch/backend/internal/models"
)

// SignalStore captures the persistence operations required by the signal handlers.
type SignalStore interface {
	Insert(ctx context.Context, signal models.Signal) (models.Signal, error)
	ListForUser(ctx context.Context, userID string) ([]models.Signal, error)
	Delete(ctx context.Context, id, ownerID string) error
}

// MatchLister lists the matches a user takes part in.
type MatchLister interface {
	ListForUser(ctx context.Context, userID string) ([]models.Match, error)
}

// MatchEngine runs the incremental check and the batch sweep.
type MatchEngine interface {
	CheckOne(ctx context.Context, signalID, ownerID string) (matching.CheckResult, error)
	Sweep(ctx context.Context) (matching.SweepResult, error)
}
