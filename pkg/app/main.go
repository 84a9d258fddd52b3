package app

import (
	"github.com/ghuser/procureflow/pkg/cache"
	"github.com/ghuser/procureflow/pkg/config"
	"github.com/ghuser/procureflow/pkg/database"
	"github.com/ghuser/procureflow/pkg/events"
	"github.com/ghuser/procureflow/pkg/logger"
	"github.com/ghuser/procureflow/pkg/telemetry"
	"github.com/ghuser/procureflow/pkg/workflows"
)

// Application holds shared infrastructure dependencies for all services.
// Pass it to each service's Routes call and services.New during initialization.
//
// Logging: app.Logger is backed by a trace-aware handler. Use slog's context methods
// and trace_id, span_id, and request_id are injected automatically:
//
//	app.Logger.InfoContext(ctx, "task queued", "task_id", id)
//	app.Logger.ErrorContext(ctx, "failed to save", "error", err)
//
// Use app.Logger.Info/Error (no context) only for startup and shutdown messages.
//
// With STORE_BACKEND=memory, Db, EventBus and Redis are nil and services fall
// back to the in-process store and queue.
type Application struct {
	Config         *config.Config
	Db             *database.Database
	Logger         logger.Logger
	EventBus       *events.EventBus
	Redis          *cache.RedisClient
	TemporalClient *workflows.TemporalClient // nil unless TEMPORAL_ENABLED
	Metrics        *telemetry.TaskMetrics
}

// InMemory reports whether the process runs without Postgres and Redis.
func (a *Application) InMemory() bool {
	return a.Db == nil
}
