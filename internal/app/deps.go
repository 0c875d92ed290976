package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/winkmatch/backend/internal/config"
	"github.com/winkmatch/backend/internal/db"
	"github.com/winkmatch/backend/internal/handlers"
	"github.com/winkmatch/backend/internal/matching"
	"github.com/winkmatch/backend/internal/metrics"
	"github.com/winkmatch/backend/internal/middleware"
	"github.com/winkmatch/backend/internal/repositories"
	"github.com/winkmatch/backend/internal/scheduler"
	"github.com/winkmatch/backend/internal/storage"
)

// runtime holds the stores and engine shared by every command.
type runtime struct {
	signals repositories.SignalRepository
	matches repositories.MatchRepository
	engine  *matching.Engine
	metrics *metrics.Collector
	ready   func(ctx context.Context) error
}

// buildRuntime opens the configured store and constructs the engine over it.
// The returned cleanup releases the store and must always be called.
func buildRuntime(ctx context.Context, cfg config.Config) (*runtime, func(), error) {
	collector := metrics.New(nil)
	rt := &runtime{metrics: collector}
	cleanup := func() {}

	switch cfg.Store {
	case config.StoreMemory:
		store := repositories.NewMemoryStore()
		rt.signals = store.Signals()
		rt.matches = store.Matches()
		rt.ready = func(context.Context) error { return nil }
	case config.StorePostgres:
		pool, err := db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, cleanup, err
		}
		rt.signals = repositories.NewPostgresSignalRepository(pool)
		rt.matches = repositories.NewPostgresMatchRepository(pool)
		rt.ready = pool.Ping
		cleanup = pool.Close
	default:
		return nil, cleanup, fmt.Errorf("%w: unknown store %q", config.ErrInvalidConfig, cfg.Store)
	}

	rt.engine = matching.NewEngine(rt.signals, rt.matches,
		matching.WithPolicy(matching.Policy{
			MaxTimeDelta:      cfg.MaxTimeDelta,
			DebugRadiusMeters: cfg.DebugRadiusMeters,
		}),
		matching.WithStoreTimeout(cfg.StoreTimeout),
		matching.WithRecorder(collector),
	)

	return rt, cleanup, nil
}

// buildDependencies wires together concrete implementations used by the HTTP handlers.
func buildDependencies(rt *runtime, cfg config.Config) handlers.Dependencies {
	return handlers.Dependencies{
		Signals: rt.signals,
		Matches: rt.matches,
		Engine:  rt.engine,
		Limiter: middleware.NewKeyedRateLimiter(middleware.RateLimitConfig{
			Requests: cfg.RateLimitRequests,
			Window:   cfg.RateLimitWindow,
			Burst:    cfg.RateLimitBurst,
		}),
		Limits: handlers.SignalLimits{
			TTL:                cfg.SignalTTL,
			MaxRadiusMeters:    cfg.MaxRadiusMeters,
			MaxBackdateMinutes: cfg.MaxBackdateMinutes,
		},
		Metrics: rt.metrics.Handler(),
		Ready:   rt.ready,
	}
}

// buildHandler registers the routes and wraps them with access logging.
func buildHandler(rt *runtime, cfg config.Config, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()
	handlers.RegisterRoutes(mux, buildDependencies(rt, cfg))
	return middleware.RequestLogger(logger, rt.metrics)(mux)
}

// buildSweepRunner configures the periodic sweep, archiving reports when a
// bucket is configured.
func buildSweepRunner(ctx context.Context, rt *runtime, cfg config.Config, logger *slog.Logger) (*scheduler.SweepRunner, error) {
	opts := []scheduler.Option{scheduler.WithArchiveObserver(rt.metrics)}
	if cfg.ArchiveEnabled() {
		archive, err := storage.NewS3Archive(ctx, cfg.ObjectStore())
		if err != nil {
			return nil, err
		}
		opts = append(opts, scheduler.WithArchive(archive))
	}

	return scheduler.NewSweepRunner(rt.engine, scheduler.SweepRunnerConfig{
		Interval: cfg.SweepInterval,
		Timeout:  cfg.SweepTimeout,
	}, logger, opts...), nil
}

// connectPostgres is used by the maintenance commands, which only make sense
// against a SQL store.
func connectPostgres(ctx context.Context, cfg config.Config) (*pgxpool.Pool, error) {
	if cfg.Store != config.StorePostgres {
		return nil, fmt.Errorf("%w: store %q has no schema to manage", config.ErrInvalidConfig, cfg.Store)
	}
	return db.Connect(ctx, cfg.DatabaseURL)
}
