package matching

import (
	"context"
	"time"

	"github.com/winkmatch/backend/internal/models"
)

// SignalStore is the subset of signal persistence the engine reads and expires.
type SignalStore interface {
	ListActive(ctx context.Context, now time.Time) ([]models.Signal, error)
	Get(ctx context.Context, id string) (models.Signal, error)
	Expire(ctx context.Context, ids []string, now time.Time) error
}

// MatchStore persists matches. Insert must be create-if-absent and report an
// existing pair as repositories.ErrConflict.
type MatchStore interface {
	ListPairs(ctx context.Context) ([]models.UserPair, error)
	FindByPair(ctx context.Context, userA, userB string) (models.Match, error)
	Insert(ctx context.Context, match models.Match) (models.Match, error)
}

// Recorder receives engine outcomes for metrics.
type Recorder interface {
	MatchCreated(source string)
	PartialExpiry(source string)
	SweepFinished(matchesCreated int, duration time.Duration, err error)
	CheckFinished(matches int, duration time.Duration, err error)
}

type nopRecorder struct{}

func (nopRecorder) MatchCreated(string)                     {}
func (nopRecorder) PartialExpiry(string)                    {}
func (nopRecorder) SweepFinished(int, time.Duration, error) {}
func (nopRecorder) CheckFinished(int, time.Duration, error) {}
