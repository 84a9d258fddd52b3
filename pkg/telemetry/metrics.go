package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// TaskMetrics records agent task executions. It reads the global meter
// provider, so call it after Setup.
type TaskMetrics struct {
	executed metric.Int64Counter
	duration metric.Float64Histogram
	retried  metric.Int64Counter
}

// NewTaskMetrics registers the task instruments.
func NewTaskMetrics() (*TaskMetrics, error) {
	meter := otel.Meter("procureflow/orchestrator")

	executed, err := meter.Int64Counter("procureflow_tasks_executed_total",
		metric.WithDescription("Agent tasks executed, by agent, type and outcome"))
	if err != nil {
		return nil, err
	}
	duration, err := meter.Float64Histogram("procureflow_task_duration_seconds",
		metric.WithDescription("Agent task execution time"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	retried, err := meter.Int64Counter("procureflow_tasks_retried_total",
		metric.WithDescription("Failed tasks put back on the queue for another attempt"))
	if err != nil {
		return nil, err
	}
	return &TaskMetrics{executed: executed, duration: duration, retried: retried}, nil
}

// Observe records one finished task.
func (m *TaskMetrics) Observe(ctx context.Context, agent, taskType string, success bool, elapsed time.Duration) {
	if m == nil {
		return
	}
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	attrs := metric.WithAttributes(
		attribute.String("agent", agent),
		attribute.String("type", taskType),
		attribute.String("outcome", outcome),
	)
	m.executed.Add(ctx, 1, attrs)
	m.duration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(
		attribute.String("agent", agent),
		attribute.String("type", taskType),
	))
}

// Retried records a task scheduled for another attempt.
func (m *TaskMetrics) Retried(ctx context.Context, agent, taskType string) {
	if m == nil {
		return
	}
	m.retried.Add(ctx, 1, metric.WithAttributes(
		attribute.String("agent", agent),
		attribute.String("type", taskType),
	))
}
