package matching

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/winkmatch/backend/internal/models"
)

func TestSweepMatchesEachCompatiblePairOnce(t *testing.T) {
	// s1 sits six minutes from both s2 and s3, which are twelve minutes apart.
	f := newFixture(t,
		newSignal("s1", "u1", londonLat, londonLng, 100, -6, testNow),
		newSignal("s2", "u2", londonLat, londonLng, 100, -12, testNow),
		newSignal("s3", "u3", londonLat, londonLng, 100, 0, testNow),
	)

	result, err := f.engine.Sweep(context.Background())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if result.SignalsChecked != 3 || result.MatchesCreated != 2 {
		t.Fatalf("expected 3 checked and 2 created, got %+v", result)
	}

	pairs, err := f.store.Matches().ListPairs(context.Background())
	if err != nil {
		t.Fatalf("list pairs: %v", err)
	}
	seen := make(map[models.UserPair]bool)
	for _, p := range pairs {
		if seen[p] {
			t.Fatalf("pair %+v stored twice", p)
		}
		seen[p] = true
	}
	for _, want := range []models.UserPair{{UserA: "u1", UserB: "u2"}, {UserA: "u1", UserB: "u3"}} {
		if !seen[want] {
			t.Fatalf("expected pair %+v among %+v", want, pairs)
		}
	}
	if seen[models.UserPair{UserA: "u2", UserB: "u3"}] {
		t.Fatal("u2 and u3 are twelve minutes apart and must not match")
	}
	if f.recorder.createdBy(SourceSweep) != 2 || f.recorder.sweeps != 1 {
		t.Fatalf("unexpected recorder state: %+v", f.recorder)
	}
}

func TestSweepIsIdempotent(t *testing.T) {
	f := newFixture(t,
		newSignal("s1", "u1", londonLat, londonLng, 100, 0, testNow),
		newSignal("s2", "u2", londonLat, londonLng, 100, 0, testNow),
		newSignal("s4", "u2", londonLat, londonLng, 100, -1, testNow),
	)
	ctx := context.Background()

	first, err := f.engine.Sweep(ctx)
	if err != nil {
		t.Fatalf("first sweep: %v", err)
	}
	if first.MatchesCreated != 1 {
		t.Fatalf("expected one match, got %+v", first)
	}

	// s4 is blocked by the u1/u2 pair and stays active.
	if !f.signal(t, "s4").IsActive(testNow) {
		t.Fatal("expected deduplicated signal to stay active")
	}

	second, err := f.engine.Sweep(ctx)
	if err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if second.MatchesCreated != 0 {
		t.Fatalf("expected no new matches on re-run, got %+v", second)
	}
	if f.store.Matches().Len() != 1 {
		t.Fatalf("expected one stored match, got %d", f.store.Matches().Len())
	}
}

func TestSweepNeverMatchesAUserWithThemselves(t *testing.T) {
	f := newFixture(t,
		newSignal("s1", "u1", londonLat, londonLng, 100, 0, testNow),
		newSignal("s2", "u1", londonLat, londonLng, 100, 0, testNow),
		newSignal("s3", "u1", londonLat, londonLng, 100, -2, testNow),
	)

	result, err := f.engine.Sweep(context.Background())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if result.MatchesCreated != 0 || f.store.Matches().Len() != 0 {
		t.Fatalf("expected no self matches, got %+v", result)
	}
}

func TestSweepWithFewerThanTwoSignals(t *testing.T) {
	f := newFixture(t, newSignal("s1", "u1", londonLat, londonLng, 100, 0, testNow))

	result, err := f.engine.Sweep(context.Background())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if result.SignalsChecked != 1 || result.MatchesCreated != 0 {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestSweepIgnoresExpiredSignals(t *testing.T) {
	stale := newSignal("s1", "u1", londonLat, londonLng, 100, 0, testNow.Add(-25*time.Hour))
	f := newFixture(t, stale, newSignal("s2", "u2", londonLat, londonLng, 100, 0, testNow))

	result, err := f.engine.Sweep(context.Background())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if result.SignalsChecked != 1 || result.MatchesCreated != 0 {
		t.Fatalf("expected the expired signal to be skipped, got %+v", result)
	}
}

func TestSweepAbortsOnStoreFailure(t *testing.T) {
	f := newFixture(t,
		newSignal("s1", "u1", londonLat, londonLng, 100, 0, testNow),
		newSignal("s2", "u2", londonLat, londonLng, 100, 0, testNow),
	)

	t.Run("timeout", func(t *testing.T) {
		engine := NewEngine(blockingSignals{f.store.Signals()}, f.store.Matches(),
			WithStoreTimeout(10*time.Millisecond),
			WithRecorder(f.recorder),
		)
		_, err := engine.Sweep(context.Background())
		if !errors.Is(err, ErrStoreTimeout) || !IsRetryable(err) {
			t.Fatalf("expected retryable timeout, got %v", err)
		}
	})

	t.Run("unavailable", func(t *testing.T) {
		matches := brokenMatches{MemoryMatchRepository: f.store.Matches(), err: errors.New("connection refused")}
		engine := NewEngine(f.store.Signals(), matches, WithClock(func() time.Time { return testNow }))
		_, err := engine.Sweep(context.Background())
		if !errors.Is(err, ErrStoreUnavailable) || !IsRetryable(err) {
			t.Fatalf("expected retryable unavailable error, got %v", err)
		}
	})

	if f.store.Matches().Len() != 0 {
		t.Fatal("expected no match after aborted sweeps")
	}
	if f.recorder.sweepErrors != 1 {
		t.Fatalf("expected one failed sweep recorded, got %d", f.recorder.sweepErrors)
	}
}

func TestConcurrentSweepsAndChecksCreateOneMatchPerPair(t *testing.T) {
	const users = 12
	var signals []models.Signal
	for i := 0; i < users; i++ {
		signals = append(signals, newSignal(fmt.Sprintf("s%02d", i), fmt.Sprintf("u%02d", i), londonLat, londonLng, 100, 0, testNow))
	}
	f := newFixture(t, signals...)
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
	)
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			result, err := f.engine.Sweep(ctx)
			if err != nil {
				t.Errorf("sweep: %v", err)
				return
			}
			mu.Lock()
			created += result.MatchesCreated
			mu.Unlock()
		}()
		go func(s models.Signal) {
			defer wg.Done()
			result, err := f.engine.CheckOne(ctx, s.ID, s.OwnerUserID)
			if err != nil {
				t.Errorf("check %s: %v", s.ID, err)
				return
			}
			mu.Lock()
			for _, m := range result.Matches {
				if m.Created {
					created++
				}
			}
			mu.Unlock()
		}(signals[i])
	}
	wg.Wait()

	if got := f.store.Matches().Len(); got != created {
		t.Fatalf("expected stored matches (%d) to equal reported creations (%d)", got, created)
	}
	if created == 0 {
		t.Fatal("expected at least one match")
	}
	pairs, err := f.store.Matches().ListPairs(ctx)
	if err != nil {
		t.Fatalf("list pairs: %v", err)
	}
	seen := make(map[string]bool)
	for _, p := range pairs {
		key := PairKey(p.UserA, p.UserB)
		if seen[key] {
			t.Fatalf("duplicate pair %s", key)
		}
		seen[key] = true
	}
}
