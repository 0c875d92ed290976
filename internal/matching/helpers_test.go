package matching

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/winkmatch/backend/internal/models"
	"github.com/winkmatch/backend/internal/repositories"
)

var testNow = time.Date(2024, time.June, 1, 20, 0, 0, 0, time.UTC)

const (
	londonLat = 51.5074
	londonLng = -0.1278
)

func newSignal(id, owner string, lat, lng, radius float64, offset int, createdAt time.Time) models.Signal {
	return models.Signal{
		ID:                id,
		OwnerUserID:       owner,
		Latitude:          lat,
		Longitude:         lng,
		RadiusMeters:      radius,
		CreatedAt:         createdAt,
		TimeOffsetMinutes: offset,
		ExpiresAt:         createdAt.Add(24 * time.Hour),
	}
}

type fixture struct {
	store    *repositories.MemoryStore
	recorder *countingRecorder
	engine   *Engine
}

func newFixture(t *testing.T, signals ...models.Signal) fixture {
	t.Helper()
	store := repositories.NewMemoryStore()
	for _, s := range signals {
		if _, err := store.Signals().Insert(context.Background(), s); err != nil {
			t.Fatalf("seed signal %s: %v", s.ID, err)
		}
	}
	recorder := &countingRecorder{}
	engine := NewEngine(store.Signals(), store.Matches(),
		WithClock(func() time.Time { return testNow }),
		WithRecorder(recorder),
	)
	return fixture{store: store, recorder: recorder, engine: engine}
}

func (f fixture) seedMatch(t *testing.T, id, u1, u2 string) models.Match {
	t.Helper()
	pair := models.CanonicalPair(u1, u2)
	match, err := f.store.Matches().Insert(context.Background(), models.Match{ID: id, UserA: pair.UserA, UserB: pair.UserB, CreatedAt: testNow.Add(-time.Hour)})
	if err != nil {
		t.Fatalf("seed match: %v", err)
	}
	return match
}

func (f fixture) signal(t *testing.T, id string) models.Signal {
	t.Helper()
	s, err := f.store.Signals().Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get signal %s: %v", id, err)
	}
	return s
}

type countingRecorder struct {
	mu            sync.Mutex
	created       map[string]int
	partialExpiry int
	sweeps        int
	sweepErrors   int
	checks        int
	checkErrors   int
}

func (r *countingRecorder) MatchCreated(source string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.created == nil {
		r.created = make(map[string]int)
	}
	r.created[source]++
}

func (r *countingRecorder) PartialExpiry(string) {
	r.mu.Lock()
	r.partialExpiry++
	r.mu.Unlock()
}

func (r *countingRecorder) SweepFinished(_ int, _ time.Duration, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sweeps++
	if err != nil {
		r.sweepErrors++
	}
}

func (r *countingRecorder) CheckFinished(_ int, _ time.Duration, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checks++
	if err != nil {
		r.checkErrors++
	}
}

func (r *countingRecorder) createdBy(source string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.created[source]
}

// failingExpireSignals fails every Expire call.
type failingExpireSignals struct {
	*repositories.MemorySignalRepository
	err error
}

func (s failingExpireSignals) Expire(context.Context, []string, time.Time) error {
	return s.err
}

// blockingSignals never answers ListActive before the context ends.
type blockingSignals struct {
	*repositories.MemorySignalRepository
}

func (blockingSignals) ListActive(ctx context.Context, _ time.Time) ([]models.Signal, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

type brokenMatches struct {
	*repositories.MemoryMatchRepository
	err error
}

func (m brokenMatches) ListPairs(context.Context) ([]models.UserPair, error) {
	return nil, m.err
}
