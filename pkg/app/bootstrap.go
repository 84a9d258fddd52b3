package app

import (
	"context"
	"fmt"

	"github.com/ghuser/procureflow/pkg/cache"
	"github.com/ghuser/procureflow/pkg/config"
	"github.com/ghuser/procureflow/pkg/database"
	"github.com/ghuser/procureflow/pkg/events"
	"github.com/ghuser/procureflow/pkg/httpx"
	"github.com/ghuser/procureflow/pkg/logger"
	"github.com/ghuser/procureflow/pkg/telemetry"
	"github.com/ghuser/procureflow/pkg/workflows"
)

// Options select per-process infrastructure.
type Options struct {
	// Forwarder publishes events through the durable watermill forwarder
	// queue. Only the process that starts the forwarder should set it.
	Forwarder bool
}

// Connect opens the infrastructure selected by cfg. The returned close func
// releases it in reverse order and is safe to call once. telemetry.Setup must
// run first so task metrics bind to the configured meter provider.
func Connect(ctx context.Context, cfg *config.Config, log logger.Logger, opts Options) (*Application, func(), error) {
	a := &Application{Config: cfg, Logger: log}
	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*Application, func(), error) {
		closeAll()
		return nil, func() {}, err
	}

	metrics, err := telemetry.NewTaskMetrics()
	if err != nil {
		return fail(fmt.Errorf("task metrics: %w", err))
	}
	a.Metrics = metrics

	if cfg.StoreBackend != config.StoreMemory {
		db, err := database.NewPool(ctx, cfg.DatabaseURL, log)
		if err != nil {
			return fail(fmt.Errorf("connect to database: %w", err))
		}
		closers = append(closers, func() { _ = db.Close() })
		a.Db = db
		log.Info("database pool connected")

		var bus *events.EventBus
		if opts.Forwarder {
			bus, err = events.NewEventBusWithForwarder(cfg, log)
		} else {
			bus, err = events.NewEventBus(cfg, log)
		}
		if err != nil {
			return fail(fmt.Errorf("setup event bus: %w", err))
		}
		// EventBus.Close() waits up to 30s for in-flight handlers.
		closers = append(closers, func() { _ = bus.Close() })
		if opts.Forwarder {
			if err := bus.StartForwarder(ctx); err != nil {
				return fail(fmt.Errorf("start event forwarder: %w", err))
			}
		}
		a.EventBus = bus

		redisClient, err := cache.NewRedisClient(cfg)
		if err != nil {
			return fail(fmt.Errorf("connect to redis: %w", err))
		}
		closers = append(closers, func() { _ = redisClient.Close() })
		a.Redis = redisClient
		log.Info("redis connected")
	} else {
		log.Warn("running with the in-memory store and queue; state is lost on exit")
	}

	if cfg.TemporalEnabled {
		tc, err := workflows.NewTemporalClient(ctx, cfg.TemporalHostPort, cfg.TemporalNamespace, cfg.TemporalTaskQueue, log)
		if err != nil {
			return fail(fmt.Errorf("initialize temporal client: %w", err))
		}
		closers = append(closers, tc.Close)
		a.TemporalClient = tc
	}

	return a, closeAll, nil
}

// HealthChecks lists the connected dependencies plus the task queue. Absent
// dependencies stay nil so the health endpoint reports them as disabled.
func (a *Application) HealthChecks(queue httpx.HealthChecker) httpx.HealthChecks {
	checks := httpx.HealthChecks{Queue: queue}
	if a.Db != nil {
		checks.Database = a.Db
	}
	if a.Redis != nil {
		checks.Redis = a.Redis
	}
	if a.EventBus != nil {
		checks.EventBus = a.EventBus
	}
	if a.TemporalClient != nil {
		checks.Temporal = a.TemporalClient
	}
	return checks
}
