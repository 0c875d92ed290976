package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/winkmatch/backend/internal/matching"
)

type sweeperStub struct {
	mu     sync.Mutex
	calls  int
	result matching.SweepResult
	err    error
}

func (s *sweeperStub) Sweep(context.Context) (matching.SweepResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.result, s.err
}

func (s *sweeperStub) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type archiveStub struct {
	mu    sync.Mutex
	saved map[string][]byte
	err   error
}

func (a *archiveStub) Save(_ context.Context, key string, r io.Reader) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return "", a.err
	}
	if a.saved == nil {
		a.saved = make(map[string][]byte)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	a.saved[key] = data
	return fmt.Sprintf("s3://bucket/%s", key), nil
}

type observerStub struct {
	mu   sync.Mutex
	errs []error
}

func (o *observerStub) ReportArchived(err error) {
	o.mu.Lock()
	o.errs = append(o.errs, err)
	o.mu.Unlock()
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSweepRunnerRunOnceArchivesReport(t *testing.T) {
	sweeper := &sweeperStub{result: matching.SweepResult{SignalsChecked: 5, MatchesCreated: 2}}
	archive := &archiveStub{}
	observer := &observerStub{}
	runner := NewSweepRunner(sweeper, SweepRunnerConfig{Timeout: time.Second}, discardLogger(),
		WithArchive(archive), WithArchiveObserver(observer))

	report, err := runner.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if report.MatchesCreated != 2 || report.SignalsChecked != 5 || report.RunID == "" {
		t.Fatalf("unexpected report: %+v", report)
	}
	if !strings.HasPrefix(report.Location, "s3://bucket/sweeps/") || !strings.HasSuffix(report.Location, report.RunID+".json") {
		t.Fatalf("unexpected report location %q", report.Location)
	}

	if len(archive.saved) != 1 {
		t.Fatalf("expected one archived report, got %d", len(archive.saved))
	}
	for _, data := range archive.saved {
		var decoded map[string]any
		if err := json.Unmarshal(data, &decoded); err != nil {
			t.Fatalf("decode archived report: %v", err)
		}
		if decoded["matchesCreated"] != float64(2) || decoded["runId"] != report.RunID {
			t.Fatalf("unexpected archived report: %v", decoded)
		}
	}
	if len(observer.errs) != 1 || observer.errs[0] != nil {
		t.Fatalf("expected one successful archive observation, got %v", observer.errs)
	}
}

func TestSweepRunnerRunOnceReportsFailures(t *testing.T) {
	sweepErr := fmt.Errorf("list active signals: %w", matching.ErrStoreTimeout)
	sweeper := &sweeperStub{err: sweepErr}
	archive := &archiveStub{err: errors.New("bucket missing")}
	observer := &observerStub{}
	runner := NewSweepRunner(sweeper, SweepRunnerConfig{Timeout: time.Second}, discardLogger(),
		WithArchive(archive), WithArchiveObserver(observer))

	report, err := runner.RunOnce(context.Background())
	if !errors.Is(err, matching.ErrStoreTimeout) {
		t.Fatalf("expected sweep error to surface, got %v", err)
	}
	if !report.Retryable || report.Error == "" {
		t.Fatalf("expected retryable failure in report, got %+v", report)
	}
	if report.Location != "" {
		t.Fatalf("expected no location after failed upload, got %q", report.Location)
	}
	if len(observer.errs) != 1 || observer.errs[0] == nil {
		t.Fatalf("expected failed archive observation, got %v", observer.errs)
	}
}

func TestSweepRunnerStartAndShutdown(t *testing.T) {
	sweeper := &sweeperStub{}
	runner := NewSweepRunner(sweeper, SweepRunnerConfig{Interval: 5 * time.Millisecond, Timeout: time.Second}, discardLogger())
	runner.Start()
	runner.Start()

	waitForCondition(t, func() bool { return sweeper.callCount() >= 2 }, time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := runner.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if err := runner.Shutdown(ctx); err != nil {
		t.Fatalf("second shutdown: %v", err)
	}

	calls := sweeper.callCount()
	time.Sleep(20 * time.Millisecond)
	if sweeper.callCount() != calls {
		t.Fatal("expected no sweeps after shutdown")
	}
}

func TestSweepRunnerDisabled(t *testing.T) {
	sweeper := &sweeperStub{}
	runner := NewSweepRunner(sweeper, SweepRunnerConfig{}, discardLogger())
	runner.Start()

	time.Sleep(10 * time.Millisecond)
	if sweeper.callCount() != 0 {
		t.Fatal("expected no sweeps with a zero interval")
	}
	if err := runner.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func waitForCondition(t *testing.T, cond func() bool, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}
