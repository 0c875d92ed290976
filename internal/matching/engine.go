// Package matching decides whether two signals describe the same encounter and
// turns compatible pairs into deduplicated matches.
//
// The engine is stateless between invocations: every Sweep and CheckOne reads a
// fresh snapshot of active signals and matched pairs from the stores, and the
// match store's uniqueness constraint arbitrates between concurrent writers.
package matching

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/winkmatch/backend/internal/logging"
	"github.com/winkmatch/backend/internal/models"
	"github.com/winkmatch/backend/internal/repositories"
)

// Entry point names used in logs and metrics.
const (
	SourceSweep = "sweep"
	SourceCheck = "check"
)

const defaultStoreTimeout = 5 * time.Second

// Engine runs the batch sweep and the incremental check over shared stores.
type Engine struct {
	signals      SignalStore
	matches      MatchStore
	policy       Policy
	storeTimeout time.Duration
	recorder     Recorder
	now          func() time.Time
	newID        func() string
}

// Option configures an Engine.
type Option func(*Engine)

// WithPolicy overrides the compatibility thresholds.
func WithPolicy(policy Policy) Option {
	return func(e *Engine) {
		e.policy = policy
	}
}

// WithStoreTimeout bounds every individual store call.
func WithStoreTimeout(timeout time.Duration) Option {
	return func(e *Engine) {
		if timeout > 0 {
			e.storeTimeout = timeout
		}
	}
}

// WithRecorder attaches a metrics recorder.
func WithRecorder(recorder Recorder) Option {
	return func(e *Engine) {
		if recorder != nil {
			e.recorder = recorder
		}
	}
}

// WithClock overrides the time source. Tests use it to pin "now".
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEngine constructs an Engine over the provided stores.
func NewEngine(signals SignalStore, matches MatchStore, opts ...Option) *Engine {
	if signals == nil || matches == nil {
		panic("matching: signal and match stores must not be nil")
	}

	e := &Engine{
		signals:      signals,
		matches:      matches,
		policy:       DefaultPolicy(),
		storeTimeout: defaultStoreTimeout,
		recorder:     nopRecorder{},
		now:          func() time.Time { return time.Now().UTC() },
		newID:        uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Policy returns the thresholds the engine evaluates with.
func (e *Engine) Policy() Policy {
	return e.policy
}

func (e *Engine) listActive(ctx context.Context, now time.Time) ([]models.Signal, error) {
	ctx, cancel := context.WithTimeout(ctx, e.storeTimeout)
	defer cancel()

	signals, err := e.signals.ListActive(ctx, now)
	if err != nil {
		return nil, storeError("list active signals", err)
	}
	return signals, nil
}

func (e *Engine) getSignal(ctx context.Context, id string) (models.Signal, error) {
	ctx, cancel := context.WithTimeout(ctx, e.storeTimeout)
	defer cancel()

	signal, err := e.signals.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return models.Signal{}, ErrSignalNotFound
		}
		return models.Signal{}, storeError("get signal", err)
	}
	return signal, nil
}

func (e *Engine) expire(ctx context.Context, now time.Time, ids ...string) error {
	ctx, cancel := context.WithTimeout(ctx, e.storeTimeout)
	defer cancel()

	if err := e.signals.Expire(ctx, ids, now); err != nil {
		return storeError("expire signals", err)
	}
	return nil
}

func (e *Engine) listPairs(ctx context.Context) ([]models.UserPair, error) {
	ctx, cancel := context.WithTimeout(ctx, e.storeTimeout)
	defer cancel()

	pairs, err := e.matches.ListPairs(ctx)
	if err != nil {
		return nil, storeError("list matched pairs", err)
	}
	return pairs, nil
}

// findByPair returns repositories.ErrNotFound unwrapped when no match exists.
func (e *Engine) findByPair(ctx context.Context, pair models.UserPair) (models.Match, error) {
	ctx, cancel := context.WithTimeout(ctx, e.storeTimeout)
	defer cancel()

	match, err := e.matches.FindByPair(ctx, pair.UserA, pair.UserB)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return models.Match{}, repositories.ErrNotFound
		}
		return models.Match{}, storeError("find match by pair", err)
	}
	return match, nil
}

// createIfAbsent inserts a match for the owners of a and b. It reports
// created=false without error when the store already holds the pair.
func (e *Engine) createIfAbsent(ctx context.Context, a, b models.Signal, now time.Time) (models.Match, bool, error) {
	pair := models.CanonicalPair(a.OwnerUserID, b.OwnerUserID)
	match := models.Match{
		ID:             e.newID(),
		UserA:          pair.UserA,
		UserB:          pair.UserB,
		SourceSignalID: a.ID,
		CreatedAt:      now,
	}

	ctx, cancel := context.WithTimeout(ctx, e.storeTimeout)
	defer cancel()

	stored, err := e.matches.Insert(ctx, match)
	if err != nil {
		if errors.Is(err, repositories.ErrConflict) {
			return models.Match{}, false, nil
		}
		return models.Match{}, false, storeError("insert match", err)
	}

	logging.FromContext(ctx).Info("match created",
		"matchId", stored.ID,
		"userA", stored.UserA,
		"userB", stored.UserB,
		"sourceSignalId", stored.SourceSignalID,
	)
	return stored, true, nil
}

// consume expires both signals after a match. Failure is logged and counted but
// never undoes the match.
func (e *Engine) consume(ctx context.Context, source, matchID string, now time.Time, a, b models.Signal) bool {
	if err := e.expire(ctx, now, a.ID, b.ID); err != nil {
		logging.FromContext(ctx).Warn("match stands but signal expiry failed",
			"source", source,
			"matchId", matchID,
			"signalIds", []string{a.ID, b.ID},
			"error", err,
		)
		e.recorder.PartialExpiry(source)
		return false
	}
	return true
}
