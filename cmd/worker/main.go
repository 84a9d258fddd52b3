package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"go.temporal.io/sdk/worker"
	"golang.org/x/sync/errgroup"

	"github.com/ghuser/procureflow/pkg/app"
	"github.com/ghuser/procureflow/pkg/config"
	"github.com/ghuser/procureflow/pkg/logger"
	"github.com/ghuser/procureflow/pkg/telemetry"
	"github.com/ghuser/procureflow/services/procurement/application/schedules"
	appsvcs "github.com/ghuser/procureflow/services/procurement/application/services"
	"github.com/ghuser/procureflow/services/procurement/application/subscribers"
	"github.com/ghuser/procureflow/services/procurement/application/workflows"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	if err := config.ValidateForProduction(cfg); err != nil {
		slog.Error("production config validation failed", "error", err)
		os.Exit(1)
	}

	log := logger.New(cfg)

	ctx := context.Background()

	otelShutdown, _, err := telemetry.Setup(ctx, cfg)
	if err != nil {
		log.Error("failed to setup otel", "error", err)
		os.Exit(1)
	}
	defer otelShutdown(ctx) //nolint:errcheck

	if err := telemetry.SetupSentry(cfg); err != nil {
		log.Warn("failed to setup sentry, continuing without crash reporting", "error", err)
	}
	defer telemetry.SentryFlush()

	appConfig, closeInfra, err := app.Connect(ctx, cfg, log, app.Options{})
	if err != nil {
		log.Error("failed to connect infrastructure", "error", err)
		os.Exit(1) //nolint:gocritic
	}
	defer closeInfra()
	if appConfig.InMemory() {
		log.Warn("memory store backend: this worker only sees tasks submitted in its own process")
	}

	svcs, err := appsvcs.New(appConfig)
	if err != nil {
		log.Error("failed to build procurement services", "error", err)
		os.Exit(1) //nolint:gocritic
	}
	if err := svcs.Orchestrator.Initialize(ctx); err != nil {
		log.Error("failed to initialize agents", "error", err)
		os.Exit(1) //nolint:gocritic
	}

	if appConfig.EventBus != nil {
		if err := registerSubscribers(ctx, appConfig, svcs); err != nil {
			log.Error("failed to register subscribers", "error", err)
			os.Exit(1) //nolint:gocritic
		}
	}

	scheduler := schedules.New(svcs.Orchestrator, svcs.Organizations, log)
	if err := scheduler.Register(cfg.ProcurementCycleSchedule, cfg.ExpirySweepSchedule); err != nil {
		log.Error("failed to register schedules", "error", err)
		os.Exit(1) //nolint:gocritic
	}
	scheduler.Start()
	log.Info("schedules started", "entries", scheduler.Entries())

	var temporalWorker worker.Worker
	if appConfig.TemporalClient != nil {
		temporalWorker = appConfig.TemporalClient.NewWorker(func(r worker.Registry) {
			workflows.Register(r, &workflows.Activities{Executor: svcs.Orchestrator})
		})
		if err := temporalWorker.Start(); err != nil {
			log.Error("failed to start temporal worker", "error", err)
			os.Exit(1) //nolint:gocritic
		}
		log.Info("temporal worker started", "task_queue", cfg.TemporalTaskQueue)
	}

	runCtx, stopRun := context.WithCancel(ctx)
	g, runCtx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		return svcs.Orchestrator.Run(runCtx)
	})

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down worker...")
	<-scheduler.Stop().Done()
	if temporalWorker != nil {
		temporalWorker.Stop()
	}

	// In-flight tasks finish before Run returns.
	stopRun()
	if err := g.Wait(); err != nil {
		log.Error("dispatcher error", "error", err)
	}
	if err := svcs.Orchestrator.Shutdown(context.Background()); err != nil {
		log.Error("agent shutdown failed", "error", err)
	}

	// EventBus.Close() (via closeInfra) waits up to 30s for in-flight handlers.
	log.Info("worker stopped")
}

// registerSubscribers wires all domain event handlers.
// Add new topics here as more services publish events.
func registerSubscribers(ctx context.Context, a *app.Application, svcs *appsvcs.Services) error {
	var offers subscribers.OfferInvalidator
	if svcs.Offers != nil {
		offers = svcs.Offers
	}

	subs := subscribers.All(offers, a.Logger)
	topics := make([]string, 0, len(subs))
	for _, sub := range subs {
		errCh, err := a.EventBus.Subscribe(ctx, sub.Topic, sub.Handler)
		if err != nil {
			return err
		}

		// Drain subscriber errors in background so the channel never blocks.
		go func(topic string) {
			for err := range errCh {
				a.Logger.ErrorContext(ctx, "subscriber error",
					"topic", topic,
					"error", err,
				)
			}
		}(sub.Topic)
		topics = append(topics, sub.Topic)
	}

	a.Logger.Info("event subscribers registered", "topics", topics)
	return nil
}
