package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ghuser/procureflow/pkg/database"
	"github.com/ghuser/procureflow/pkg/events"
	domainevents "github.com/ghuser/procureflow/services/procurement/domain/events"
	"github.com/ghuser/procureflow/services/procurement/domain/models"
)

// ScrapingJobRepository implements repositories.ScrapingJobRepository against PostgreSQL.
type ScrapingJobRepository struct {
	db *database.Database
}

// NewScrapingJobRepository returns a ScrapingJobRepository backed by the given pool.
func NewScrapingJobRepository(db *database.Database) *ScrapingJobRepository {
	return &ScrapingJobRepository{db: db}
}

// Start inserts a running job.
func (r *ScrapingJobRepository) Start(ctx context.Context, job *models.ScrapingJob) error {
	if _, err := r.db.DB().ExecContext(ctx, `
		INSERT INTO scraping_jobs (id, supplier_id, method, status, started_at) VALUES ($1, $2, $3, $4, $5)`,
		job.ID, job.SupplierID, string(job.Method), string(job.Status), job.StartedAt); err != nil {
		return fmt.Errorf("insert scraping job: %w", err)
	}
	return nil
}

// Finish records the outcome of a job.
func (r *ScrapingJobRepository) Finish(ctx context.Context, job *models.ScrapingJob) error {
	var raw []byte
	if len(job.RawResults) > 0 {
		raw = []byte(job.RawResults)
	}
	if _, err := r.db.DB().ExecContext(ctx, `
		UPDATE scraping_jobs SET status = $2, items_found = $3, items_changed = $4, error = $5, raw_results = $6, finished_at = $7
		WHERE id = $1`,
		job.ID, string(job.Status), job.ItemsFound, job.ItemsChanged, job.Error, raw, job.FinishedAt); err != nil {
		return fmt.Errorf("finish scraping job: %w", err)
	}
	return nil
}

// ActivityLogRepository implements repositories.ActivityLogRepository against PostgreSQL.
type ActivityLogRepository struct {
	db  *database.Database
	bus *events.EventBus
}

// NewActivityLogRepository returns an ActivityLogRepository. Entries for a task
// publish a TaskFinishedEvent through bus; nil disables publishing.
func NewActivityLogRepository(db *database.Database, bus *events.EventBus) *ActivityLogRepository {
	return &ActivityLogRepository{db: db, bus: bus}
}

// Record inserts entry and, for task entries, publishes task_finished in the same transaction.
func (r *ActivityLogRepository) Record(ctx context.Context, entry *models.ActivityLog) error {
	meta, err := json.Marshal(entry.Metadata)
	if err != nil {
		return fmt.Errorf("marshal activity metadata: %w", err)
	}
	if entry.Metadata == nil {
		meta = []byte("{}")
	}
	var taskID *uuid.UUID
	if entry.TaskID != uuid.Nil {
		taskID = &entry.TaskID
	}

	return r.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.NamedExecContext(ctx, `
			INSERT INTO activity_logs (id, organization_id, agent_type, action, task_id, attempt, success, error,
				metadata, duration_ms, created_at)
			VALUES (:id, :organization_id, :agent_type, :action, :task_id, :attempt, :success, :error,
				:metadata, :duration_ms, :created_at)`,
			activityRow{
				ID:             entry.ID,
				OrganizationID: entry.OrganizationID,
				AgentType:      entry.AgentType,
				Action:         entry.Action,
				TaskID:         taskID,
				Attempt:        entry.Attempt,
				Success:        entry.Success,
				Error:          entry.Error,
				Metadata:       meta,
				DurationMs:     entry.DurationMs,
				CreatedAt:      entry.CreatedAt,
			}); err != nil {
			return fmt.Errorf("insert activity log: %w", err)
		}

		if r.bus == nil || taskID == nil {
			return nil
		}
		event := domainevents.TaskFinishedEvent{
			EventID:    uuid.New(),
			Version:    1,
			TaskID:     entry.TaskID,
			Agent:      entry.AgentType,
			Type:       entry.Action,
			Attempt:    entry.Attempt,
			Success:    entry.Success,
			Error:      entry.Error,
			DurationMs: entry.DurationMs,
			OccurredAt: entry.CreatedAt,
		}
		msg, err := events.NewJSONMessage(event.EventID.String(), event.Version, event)
		if err != nil {
			return err
		}
		return r.bus.PublishTx(ctx, tx.Tx, domainevents.TopicTaskFinished, msg)
	})
}

// List returns the newest entries first.
func (r *ActivityLogRepository) List(ctx context.Context, limit int) ([]*models.ActivityLog, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []activityRow
	err := r.db.DB().SelectContext(ctx, &rows, `
		SELECT id, organization_id, agent_type, action, task_id, attempt, success, error, metadata, duration_ms, created_at
		FROM activity_logs ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query activity logs: %w", err)
	}
	out := make([]*models.ActivityLog, 0, len(rows))
	for _, row := range rows {
		a, err := rowToActivity(row)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}
