package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	httpSwagger "github.com/swaggo/http-swagger/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	_ "github.com/ghuser/procureflow/docs/swagger"
	"github.com/ghuser/procureflow/pkg/app"
	"github.com/ghuser/procureflow/pkg/config"
	"github.com/ghuser/procureflow/pkg/errhttp"
	"github.com/ghuser/procureflow/pkg/httpx"
	"github.com/ghuser/procureflow/pkg/logger"
	"github.com/ghuser/procureflow/pkg/telemetry"
	procurementApi "github.com/ghuser/procureflow/services/procurement/application/api"
	appsvcs "github.com/ghuser/procureflow/services/procurement/application/services"
)

// @title					Procureflow API
// @version				1.0
// @description			Procurement automation: supplier price scans, stock-out forecasts and discount negotiations.
// @contact.name			API Support
// @contact.email			support@procureflow.example
// @license.name			MIT
// @license.url			https://opensource.org/licenses/MIT
// @host					localhost:8080
// @BasePath				/api
// @schemes				http https
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

	// Telemetry: OTel tracing + metrics
	ctx := context.Background()
	otelShutdown, metricsHandler, err := telemetry.Setup(ctx, cfg)
	if err != nil {
		log.Error("failed to setup otel", "error", err)
		os.Exit(1)
	}
	defer otelShutdown(ctx) //nolint:errcheck

	// Crash reporting: Sentry (optional, log and continue on failure)
	if err := telemetry.SetupSentry(cfg); err != nil {
		log.Warn("failed to setup sentry, continuing without crash reporting", "error", err)
	}
	defer telemetry.SentryFlush()

	appConfig, closeInfra, err := app.Connect(ctx, cfg, log, app.Options{Forwarder: true})
	if err != nil {
		log.Error("failed to connect infrastructure", "error", err)
		os.Exit(1) //nolint:gocritic // intentional: startup failure, deferred flushes are best-effort
	}
	defer closeInfra()

	svcs, err := appsvcs.New(appConfig)
	if err != nil {
		log.Error("failed to build procurement services", "error", err)
		os.Exit(1) //nolint:gocritic
	}
	if err := svcs.Orchestrator.Initialize(ctx); err != nil {
		log.Error("failed to initialize agents", "error", err)
		os.Exit(1) //nolint:gocritic
	}
	defer svcs.Orchestrator.Shutdown(context.Background()) //nolint:errcheck

	// Without Redis the queue lives in this process, so this process must
	// also drain it.
	runCtx, stopRun := context.WithCancel(ctx)
	defer stopRun()
	if appConfig.InMemory() {
		go func() {
			if err := svcs.Orchestrator.Run(runCtx); err != nil && runCtx.Err() == nil {
				log.Error("in-process dispatcher stopped", "error", err)
			}
		}()
	}

	errhttp.HideInternalErrors(cfg.Environment == config.EnvProduction)

	r := httpx.NewRouter(
		httpx.ServerConfig{
			ServiceName:        cfg.ServiceName,
			IsDevelopment:      cfg.Environment == config.EnvDevelopment,
			CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		},
		logger.Middleware(log),
		logger.Recovery(log),
		telemetry.SentryMiddleware(),
		otelhttp.NewMiddleware(cfg.ServiceName),
	)

	r.Get("/health", httpx.HealthHandler(appConfig.HealthChecks(svcs.Queue)))
	r.Get("/metrics", metricsHandler.ServeHTTP)
	r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))
	r.Route("/api", func(r chi.Router) {
		registerRoutes(r, svcs)
	})

	srv := httpx.NewServer(cfg.HTTPAddr, r)

	go func() {
		log.Info("server listening", "addr", srv.Addr, "env", cfg.Environment, "store", cfg.StoreBackend)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down...")
	stopRun()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("forced shutdown", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}

// registerRoutes mounts all service routes under /api.
// Add each new service's route function here.
func registerRoutes(r chi.Router, svcs *appsvcs.Services) {
	procurementApi.ProcurementRoutes(r, svcs)
}
