// Package scheduler runs the batch sweep on a fixed interval.
package scheduler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/winkmatch/backend/internal/logging"
	"github.com/winkmatch/backend/internal/matching"
	"github.com/winkmatch/backend/internal/storage"
)

// Sweeper runs one batch sweep.
type Sweeper interface {
	Sweep(ctx context.Context) (matching.SweepResult, error)
}

// ReportArchive persists sweep reports.
type ReportArchive interface {
	Save(ctx context.Context, key string, r io.Reader) (string, error)
}

// ArchiveObserver is notified of every report upload attempt.
type ArchiveObserver interface {
	ReportArchived(err error)
}

// SweepRunnerConfig controls how often sweeps run and how long each may take.
type SweepRunnerConfig struct {
	// Interval of zero disables the periodic loop; RunOnce still works.
	Interval time.Duration
	Timeout  time.Duration
}

// Report describes one sweep run.
type Report struct {
	RunID           string    `json:"runId"`
	StartedAt       time.Time `json:"startedAt"`
	FinishedAt      time.Time `json:"finishedAt"`
	DurationMillis  int64     `json:"durationMs"`
	SignalsChecked  int       `json:"signalsChecked"`
	MatchesCreated  int       `json:"matchesCreated"`
	PartialExpiries int       `json:"partialExpiries"`
	Error           string    `json:"error,omitempty"`
	Retryable       bool      `json:"retryable,omitempty"`
	Location        string    `json:"-"`
}

// Option configures a SweepRunner.
type Option func(*SweepRunner)

// WithArchive uploads a JSON report after every run.
func WithArchive(archive ReportArchive) Option {
	return func(r *SweepRunner) {
		r.archive = archive
	}
}

// WithArchiveObserver records report upload outcomes.
func WithArchiveObserver(observer ArchiveObserver) Option {
	return func(r *SweepRunner) {
		r.observer = observer
	}
}

// SweepRunner periodically invokes a Sweeper. A failed run is logged and left
// to the next tick.
type SweepRunner struct {
	sweeper  Sweeper
	archive  ReportArchive
	observer ArchiveObserver
	logger   *slog.Logger
	interval time.Duration
	timeout  time.Duration
	now      func() time.Time

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once
}

// NewSweepRunner constructs a runner. Call Start to begin the periodic loop.
func NewSweepRunner(sweeper Sweeper, cfg SweepRunnerConfig, logger *slog.Logger, opts ...Option) *SweepRunner {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(logging.WithLogger(context.Background(), logger))

	r := &SweepRunner{
		sweeper:  sweeper,
		logger:   logger,
		interval: cfg.Interval,
		timeout:  cfg.Timeout,
		now:      func() time.Time { return time.Now().UTC() },
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start launches the periodic loop. It is a no-op when the interval is zero
// or the runner was already started.
func (r *SweepRunner) Start() {
	if r.interval <= 0 {
		r.logger.Info("scheduled sweep disabled")
		return
	}
	r.startOnce.Do(func() {
		r.wg.Add(1)
		go r.loop()
		r.logger.Info("scheduled sweep started", "interval", r.interval.String())
	})
}

// Shutdown stops the loop and waits for an in-flight run to finish.
func (r *SweepRunner) Shutdown(ctx context.Context) error {
	r.stopOnce.Do(r.cancel)

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

func (r *SweepRunner) loop() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			_, _ = r.RunOnce(r.ctx)
		}
	}
}

// RunOnce runs a single sweep bounded by the configured timeout and archives
// its report when an archive is configured. Archive failures are logged and do
// not fail the run.
func (r *SweepRunner) RunOnce(ctx context.Context) (Report, error) {
	report := Report{RunID: uuid.NewString(), StartedAt: r.now()}

	ctx, span := logging.StartSpan(logging.WithAttrs(ctx, "runId", report.RunID), "scheduled_sweep")
	defer span.End()
	logger := logging.FromContext(ctx)

	runCtx, cancel := context.WithTimeout(ctx, r.timeout)
	result, err := r.sweeper.Sweep(runCtx)
	cancel()

	report.FinishedAt = r.now()
	report.DurationMillis = report.FinishedAt.Sub(report.StartedAt).Milliseconds()
	report.SignalsChecked = result.SignalsChecked
	report.MatchesCreated = result.MatchesCreated
	report.PartialExpiries = result.PartialExpiries
	if err != nil {
		report.Error = err.Error()
		report.Retryable = matching.IsRetryable(err)
		span.Fail(err)
		logger.Error("scheduled sweep failed", "retryable", report.Retryable, "error", err)
	} else {
		logger.Info("scheduled sweep finished", "matchesCreated", report.MatchesCreated)
	}

	if r.archive != nil {
		location, archiveErr := r.save(ctx, report)
		if r.observer != nil {
			r.observer.ReportArchived(archiveErr)
		}
		if archiveErr != nil {
			logger.Warn("archive sweep report", "error", archiveErr)
		} else {
			report.Location = location
		}
	}

	return report, err
}

func (r *SweepRunner) save(ctx context.Context, report Report) (string, error) {
	payload, err := json.Marshal(report)
	if err != nil {
		return "", fmt.Errorf("encode sweep report: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	return r.archive.Save(ctx, storage.SweepReportKey(report.RunID, report.StartedAt), bytes.NewReader(payload))
}
