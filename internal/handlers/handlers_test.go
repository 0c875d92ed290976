package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/winkmatch/backend/internal/matching"
	"github.com/winkmatch/backend/internal/repositories"
)

var handlerNow = time.Date(2024, time.January, 1, 12, 0, 0, 0, time.UTC)

type testEnv struct {
	store   *repositories.MemoryStore
	engine  *matching.Engine
	signals SignalHandler
	matches MatchHandler
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	store := repositories.NewMemoryStore()
	engine := matching.NewEngine(store.Signals(), store.Matches(),
		matching.WithClock(func() time.Time { return handlerNow }),
	)
	return testEnv{
		store:  store,
		engine: engine,
		signals: SignalHandler{
			Signals: store.Signals(),
			Engine:  engine,
			Limits:  DefaultSignalLimits(),
			NowFunc: func() time.Time { return handlerNow },
		},
		matches: MatchHandler{Matches: store.Matches(), Engine: engine},
	}
}

type denyLimiter struct{ keys []string }

func (d *denyLimiter) Allow(key string) bool {
	d.keys = append(d.keys, key)
	return false
}

type engineStub struct {
	checkErr error
	sweepErr error
}

func (e engineStub) CheckOne(context.Context, string, string) (matching.CheckResult, error) {
	return matching.CheckResult{}, e.checkErr
}

func (e engineStub) Sweep(context.Context) (matching.SweepResult, error) {
	return matching.SweepResult{}, e.sweepErr
}

func jsonRequest(t *testing.T, method, target string, body any) *http.Request {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	return httptest.NewRequest(method, target, bytes.NewReader(payload))
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(dst); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, rec.Body.String())
	}
}

// dropSignal posts a signal and returns the decoded response.
func dropSignal(t *testing.T, h SignalHandler, body map[string]any) createSignalResponse {
	t.Helper()
	rec := httptest.NewRecorder()
	h.Create(rec, jsonRequest(t, http.MethodPost, "/api/v1/signals", body))
	if rec.Code != http.StatusCreated {
		t.Fatalf("drop signal: unexpected status %d body %s", rec.Code, rec.Body.String())
	}
	var resp createSignalResponse
	decodeBody(t, rec, &resp)
	return resp
}
