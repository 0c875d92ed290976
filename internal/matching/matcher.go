package matching

import (
	"context"

	"github.com/winkmatch/backend/internal/models"
)

// Reason explains the outcome of an AttemptMatch call.
type Reason string

const (
	ReasonCreated        Reason = "created"
	ReasonSameOwner      Reason = "same_owner"
	ReasonAlreadyMatched Reason = "already_matched"
	ReasonIncompatible   Reason = "incompatible"
)

// Attempt is the result of AttemptMatch.
type Attempt struct {
	Created bool
	MatchID string
	Reason  Reason
	// PartialExpiry is set when the match was stored but its signals could not
	// be expired.
	PartialExpiry bool
}

// Matcher evaluates and persists pairs against one snapshot of matched pairs.
// A Matcher belongs to a single invocation.
type Matcher struct {
	engine *Engine
	pairs  *PairSet
	source string
}

// NewMatcher loads the currently matched pairs and returns a Matcher for one
// invocation of the given source.
func (e *Engine) NewMatcher(ctx context.Context, source string) (*Matcher, error) {
	pairs, err := e.listPairs(ctx)
	if err != nil {
		return nil, err
	}
	return &Matcher{engine: e, pairs: NewPairSet(pairs), source: source}, nil
}

// Pairs exposes the dedup set backing the matcher.
func (m *Matcher) Pairs() *PairSet {
	return m.pairs
}

// AttemptMatch persists a match for a and b when their owners differ, are not
// matched yet and the signals are compatible. Both signals are expired after a
// successful insert. Callers only pass currently active signals.
func (m *Matcher) AttemptMatch(ctx context.Context, a, b models.Signal) (Attempt, error) {
	if a.OwnerUserID == b.OwnerUserID {
		return Attempt{Reason: ReasonSameOwner}, nil
	}
	if m.pairs.Has(a.OwnerUserID, b.OwnerUserID) {
		return Attempt{Reason: ReasonAlreadyMatched}, nil
	}
	if !IsCompatible(a, b, m.engine.policy) {
		return Attempt{Reason: ReasonIncompatible}, nil
	}
	if !m.pairs.Reserve(a.OwnerUserID, b.OwnerUserID) {
		return Attempt{Reason: ReasonAlreadyMatched}, nil
	}

	now := m.engine.now()
	match, created, err := m.engine.createIfAbsent(ctx, a, b, now)
	if err != nil {
		m.pairs.Release(a.OwnerUserID, b.OwnerUserID)
		return Attempt{}, err
	}
	if !created {
		return Attempt{Reason: ReasonAlreadyMatched}, nil
	}
	m.engine.recorder.MatchCreated(m.source)

	attempt := Attempt{Created: true, MatchID: match.ID, Reason: ReasonCreated}
	if !m.engine.consume(ctx, m.source, match.ID, now, a, b) {
		attempt.PartialExpiry = true
	}
	return attempt, nil
}
