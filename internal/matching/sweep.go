package matching

import (
	"context"
	"time"

	"github.com/winkmatch/backend/internal/logging"
)

// SweepResult summarizes one batch sweep.
type SweepResult struct {
	SignalsChecked  int
	MatchesCreated  int
	PartialExpiries int
}

// Sweep evaluates every unordered pair of currently active signals once and
// returns how many matches it created. A store failure aborts the run; the
// sweep is safe to re-run because effects are idempotent per pair.
func (e *Engine) Sweep(ctx context.Context) (SweepResult, error) {
	ctx, span := logging.StartSpan(ctx, "match_sweep")
	defer span.End()

	start := time.Now()
	result, err := e.sweep(ctx)
	e.recorder.SweepFinished(result.MatchesCreated, time.Since(start), err)
	span.Fail(err)
	return result, err
}

func (e *Engine) sweep(ctx context.Context) (SweepResult, error) {
	logger := logging.FromContext(ctx)

	signals, err := e.listActive(ctx, e.now())
	if err != nil {
		return SweepResult{}, err
	}

	result := SweepResult{SignalsChecked: len(signals)}
	if len(signals) < 2 {
		logger.Info("not enough active signals to sweep", "active", len(signals))
		return result, nil
	}

	matcher, err := e.NewMatcher(ctx, SourceSweep)
	if err != nil {
		return result, err
	}

	// One pass over the snapshot; signals consumed mid-sweep stay in it.
	for i := 0; i < len(signals); i++ {
		for j := i + 1; j < len(signals); j++ {
			if signals[i].OwnerUserID == signals[j].OwnerUserID {
				continue
			}

			attempt, err := matcher.AttemptMatch(ctx, signals[i], signals[j])
			if err != nil {
				logger.Error("sweep aborted", "matchesCreated", result.MatchesCreated, "error", err)
				return result, err
			}
			if attempt.Created {
				result.MatchesCreated++
				if attempt.PartialExpiry {
					result.PartialExpiries++
				}
			}
		}
	}

	logger.Info("sweep complete",
		"signalsChecked", result.SignalsChecked,
		"matchesCreated", result.MatchesCreated,
		"partialExpiries", result.PartialExpiries,
	)
	return result, nil
}
