package matching

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/winkmatch/backend/internal/logging"
	"github.com/winkmatch/backend/internal/models"
	"github.com/winkmatch/backend/internal/repositories"
)

// Diagnostic describes how a nearby candidate compared against the checked
// signal, whether or not it matched.
type Diagnostic struct {
	CandidateSignalID string
	CandidateUserID   string
	DistanceMeters    float64
	MaxRadiusMeters   float64
	TimeDeltaMinutes  float64
	SpatialPass       bool
	TemporalPass      bool
	IsMatch           bool
}

// ConfirmedMatch is a match found or created by CheckOne.
type ConfirmedMatch struct {
	MatchID          string
	OtherUserID      string
	DistanceMeters   float64
	TimeDeltaMinutes float64
	// Created is false when the match already existed, for instance because a
	// database trigger or a concurrent sweep inserted it first.
	Created bool
	// PartialExpiry is set when the match stands but the signals could not be
	// expired.
	PartialExpiry bool
}

// CheckResult is the outcome of an incremental check.
type CheckResult struct {
	Signal           models.Signal
	Matches          []ConfirmedMatch
	Diagnostics      []Diagnostic
	ActiveCandidates int
}

// CheckOne evaluates a freshly stored signal against every active signal owned
// by other users. Compatible candidates are confirmed against the match store,
// creating the match if nobody else has, and both signals are expired. A signal
// that is no longer active is reported on but never matched.
func (e *Engine) CheckOne(ctx context.Context, signalID, ownerID string) (CheckResult, error) {
	ctx, span := logging.StartSpan(ctx, "match_check")
	defer span.End()

	start := time.Now()
	result, err := e.checkOne(ctx, signalID, ownerID)
	e.recorder.CheckFinished(len(result.Matches), time.Since(start), err)
	span.Fail(err)
	return result, err
}

func (e *Engine) checkOne(ctx context.Context, signalID, ownerID string) (CheckResult, error) {
	signalID = strings.TrimSpace(signalID)
	ownerID = strings.TrimSpace(ownerID)
	if signalID == "" || ownerID == "" {
		return CheckResult{}, fmt.Errorf("%w: signal id and user id are required", ErrInvalidInput)
	}

	ctx = logging.WithAttrs(ctx, "signalId", signalID, "userId", ownerID)
	logger := logging.FromContext(ctx)

	signal, err := e.getSignal(ctx, signalID)
	if err != nil {
		return CheckResult{}, err
	}
	if signal.OwnerUserID != ownerID {
		return CheckResult{}, fmt.Errorf("%w: signal %s does not belong to user %s", ErrInvalidInput, signalID, ownerID)
	}

	now := e.now()
	active, err := e.listActive(ctx, now)
	if err != nil {
		return CheckResult{}, err
	}

	// A consumed or lapsed signal still gets diagnostics but never matches.
	live := signal.IsActive(now)
	if !live {
		logger.Info("checked signal is no longer active", "expiresAt", signal.ExpiresAt)
	}

	result := CheckResult{Signal: signal}
	type nearby struct {
		distance   float64
		diagnostic Diagnostic
	}
	var near []nearby

	for _, candidate := range active {
		if candidate.OwnerUserID == ownerID || candidate.ID == signal.ID {
			continue
		}
		result.ActiveCandidates++

		eval := Evaluate(signal, candidate, e.policy)
		deltaMinutes := roundTenth(eval.TimeDelta.Minutes())

		if eval.DistanceMeters <= e.policy.DebugRadiusMeters {
			near = append(near, nearby{
				distance: eval.DistanceMeters,
				diagnostic: Diagnostic{
					CandidateSignalID: candidate.ID,
					CandidateUserID:   candidate.OwnerUserID,
					DistanceMeters:    math.Round(eval.DistanceMeters),
					MaxRadiusMeters:   eval.MaxRadiusMeters,
					TimeDeltaMinutes:  deltaMinutes,
					SpatialPass:       eval.SpatialPass,
					TemporalPass:      eval.TemporalPass,
					IsMatch:           live && eval.Compatible(),
				},
			})
		}

		if !live || !eval.Compatible() {
			continue
		}

		confirmed, err := e.confirm(ctx, signal, candidate, now)
		if err != nil {
			return result, err
		}
		confirmed.DistanceMeters = math.Round(eval.DistanceMeters)
		confirmed.TimeDeltaMinutes = deltaMinutes
		result.Matches = append(result.Matches, confirmed)
	}

	sort.SliceStable(near, func(i, j int) bool { return near[i].distance < near[j].distance })
	result.Diagnostics = make([]Diagnostic, 0, len(near))
	for _, n := range near {
		result.Diagnostics = append(result.Diagnostics, n.diagnostic)
	}

	logger.Info("incremental check complete",
		"activeCandidates", result.ActiveCandidates,
		"matches", len(result.Matches),
		"nearby", len(result.Diagnostics),
	)
	return result, nil
}

// confirm returns the match for the pair owning signal and candidate, creating
// it when absent, then expires both signals.
func (e *Engine) confirm(ctx context.Context, signal, candidate models.Signal, now time.Time) (ConfirmedMatch, error) {
	pair := models.CanonicalPair(signal.OwnerUserID, candidate.OwnerUserID)

	match, err := e.findByPair(ctx, pair)
	created := false
	switch {
	case err == nil:
	case errors.Is(err, repositories.ErrNotFound):
		match, created, err = e.createIfAbsent(ctx, signal, candidate, now)
		if err != nil {
			return ConfirmedMatch{}, err
		}
		if !created {
			// Lost the race to another creator; report the winner's row.
			match, err = e.findByPair(ctx, pair)
			if err != nil {
				return ConfirmedMatch{}, err
			}
		}
	default:
		return ConfirmedMatch{}, err
	}

	if created {
		e.recorder.MatchCreated(SourceCheck)
	}
	expired := e.consume(ctx, SourceCheck, match.ID, now, signal, candidate)

	return ConfirmedMatch{
		MatchID:       match.ID,
		OtherUserID:   candidate.OwnerUserID,
		Created:       created,
		PartialExpiry: !expired,
	}, nil
}

func roundTenth(v float64) float64 {
	return math.Round(v*10) / 10
}
