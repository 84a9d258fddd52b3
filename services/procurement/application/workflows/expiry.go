// Package workflows hosts the Temporal workflows of the procurement service.
// Temporal is optional: without it the cron expiry sweep in cmd/worker closes
// stale negotiations on its own, only later.
package workflows

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"

	pkgworkflows "github.com/ghuser/procureflow/pkg/workflows"
	"github.com/ghuser/procureflow/services/procurement/domain/task"
)

// ExpiryMargin is added to expiresAt before the workflow wakes, so the
// negotiation is past due by the time the expire task runs.
const ExpiryMargin = time.Minute

// ExpiryInput is the argument of NegotiationExpiryWorkflow.
type ExpiryInput struct {
	NegotiationID uuid.UUID `json:"negotiation_id"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// NegotiationExpiryWorkflow sleeps until the negotiation's expiry and then
// expires it unless it closed in the meantime.
func NegotiationExpiryWorkflow(ctx workflow.Context, in ExpiryInput) error {
	if wait := in.ExpiresAt.Add(ExpiryMargin).Sub(workflow.Now(ctx)); wait > 0 {
		if err := workflow.Sleep(ctx, wait); err != nil {
			return err
		}
	}

	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2,
			MaximumAttempts:    5,
		},
	})
	var a *Activities
	return workflow.ExecuteActivity(ctx, a.ExpireNegotiation, in.NegotiationID).Get(ctx, nil)
}

// Executor runs a task in-process. The orchestrator satisfies it.
type Executor interface {
	Execute(ctx context.Context, t task.Task) task.Result
}

// Activities are the activity implementations registered on the worker.
type Activities struct {
	Executor Executor
}

// ExpireNegotiation runs expire_negotiations scoped to one negotiation.
// Failures the task marks as permanent are not retried by Temporal.
func (a *Activities) ExpireNegotiation(ctx context.Context, id uuid.UUID) error {
	res := a.Executor.Execute(ctx, task.New(task.ExpireNegotiationsPayload{NegotiationID: &id}, 3))
	if res.Success {
		return nil
	}
	if res.Retryable {
		return errors.New(res.Error)
	}
	return temporal.NewNonRetryableApplicationError(res.Error, "ExpireNegotiationFailed", nil)
}

// Register adds the expiry workflow and its activities to a worker.
func Register(r worker.Registry, acts *Activities) {
	r.RegisterWorkflow(NegotiationExpiryWorkflow)
	r.RegisterActivity(acts)
}

// Starter starts workflow executions. client.Client satisfies it.
type Starter interface {
	ExecuteWorkflow(ctx context.Context, options client.StartWorkflowOptions, workflow interface{}, args ...interface{}) (client.WorkflowRun, error)
}

// ExpiryScheduler starts one NegotiationExpiryWorkflow per negotiation.
type ExpiryScheduler struct {
	starter   Starter
	taskQueue string
}

// NewExpiryScheduler schedules expiry timers on the client's task queue.
func NewExpiryScheduler(tc *pkgworkflows.TemporalClient) *ExpiryScheduler {
	return &ExpiryScheduler{starter: tc.Client, taskQueue: tc.TaskQueue}
}

// ScheduleExpiry starts the timer workflow for negotiation id. The workflow ID
// is derived from the negotiation, so a second call for the same negotiation
// is rejected by Temporal instead of starting a duplicate timer.
func (s *ExpiryScheduler) ScheduleExpiry(ctx context.Context, id uuid.UUID, at time.Time) error {
	opts := client.StartWorkflowOptions{
		ID:        WorkflowID(id),
		TaskQueue: s.taskQueue,
	}
	if _, err := s.starter.ExecuteWorkflow(ctx, opts, NegotiationExpiryWorkflow, ExpiryInput{NegotiationID: id, ExpiresAt: at}); err != nil {
		return fmt.Errorf("start expiry workflow: %w", err)
	}
	return nil
}

// WorkflowID is the expiry workflow ID of a negotiation.
func WorkflowID(id uuid.UUID) string {
	return "negotiation-expiry-" + id.String()
}
