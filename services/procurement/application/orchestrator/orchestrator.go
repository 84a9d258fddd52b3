// Package orchestrator routes tasks to the agents. Tasks are either executed
// in-process or submitted to the priority queue and consumed by Run; both
// paths write one activity log entry per execution.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ghuser/procureflow/pkg/logger"
	"github.com/ghuser/procureflow/pkg/taskqueue"
	"github.com/ghuser/procureflow/pkg/telemetry"
	pkgvalidator "github.com/ghuser/procureflow/pkg/validator"
	"github.com/ghuser/procureflow/services/procurement/domain"
	"github.com/ghuser/procureflow/services/procurement/domain/models"
	"github.com/ghuser/procureflow/services/procurement/domain/repositories"
	"github.com/ghuser/procureflow/services/procurement/domain/task"
)

// Queue is the durable priority queue. Both taskqueue implementations satisfy it.
type Queue interface {
	Enqueue(ctx context.Context, name string, payload []byte, opts taskqueue.EnqueueOptions) (string, error)
	Dequeue(ctx context.Context) (*taskqueue.Job, error)
	Complete(ctx context.Context, job *taskqueue.Job) error
	Fail(ctx context.Context, job *taskqueue.Job, cause error, retryable bool) (taskqueue.State, error)
	Counts(ctx context.Context) (taskqueue.Status, error)
	Ping(ctx context.Context) error
}

// Metrics records task executions. *telemetry.TaskMetrics implements it.
type Metrics interface {
	Observe(ctx context.Context, agent, taskType string, success bool, elapsed time.Duration)
	Retried(ctx context.Context, agent, taskType string)
}

// Deps are the collaborators of the orchestrator. Metrics is optional.
type Deps struct {
	Agents        []task.Agent
	Queue         Queue
	Activity      repositories.ActivityLogRepository
	Organizations repositories.OrganizationRepository
	Inventory     repositories.InventoryRepository
	Catalog       repositories.CatalogRepository
	Metrics       Metrics
}

type Config struct {
	Concurrency   int
	PollInterval  time.Duration
	StatusTimeout time.Duration
	ThresholdDays int // urgency threshold used when grouping auto-reorders
}

// Orchestrator owns the agents and the queue. Construct one per process.
type Orchestrator struct {
	agents   map[task.AgentType]task.Agent
	queue    Queue
	activity repositories.ActivityLogRepository
	orgs     repositories.OrganizationRepository
	inv      repositories.InventoryRepository
	catalog  repositories.CatalogRepository
	metrics  Metrics
	cfg      Config
	log      logger.Logger
	now      func() time.Time
}

// New registers deps.Agents by type. A later agent of the same type replaces
// an earlier one.
func New(deps Deps, cfg Config, log logger.Logger) *Orchestrator {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}
	if cfg.StatusTimeout <= 0 {
		cfg.StatusTimeout = 2 * time.Second
	}
	if cfg.ThresholdDays <= 0 {
		cfg.ThresholdDays = 14
	}
	o := &Orchestrator{
		agents:   make(map[task.AgentType]task.Agent, len(deps.Agents)),
		queue:    deps.Queue,
		activity: deps.Activity,
		orgs:     deps.Organizations,
		inv:      deps.Inventory,
		catalog:  deps.Catalog,
		metrics:  deps.Metrics,
		cfg:      cfg,
		log:      log.With("component", "orchestrator"),
		now:      func() time.Time { return time.Now().UTC() },
	}
	if o.metrics == nil {
		o.metrics = nopMetrics{}
	}
	for _, a := range deps.Agents {
		o.agents[a.Type()] = a
	}
	return o
}

type nopMetrics struct{}

func (nopMetrics) Observe(context.Context, string, string, bool, time.Duration) {}

func (nopMetrics) Retried(context.Context, string, string) {}

// Initialize initializes every agent. The first failure aborts startup.
func (o *Orchestrator) Initialize(ctx context.Context) error {
	for typ, a := range o.agents {
		if err := a.Initialize(ctx); err != nil {
			return fmt.Errorf("initialize %s: %w", typ, err)
		}
	}
	return nil
}

// Shutdown shuts every agent down and joins their errors.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	var errs []error
	for typ, a := range o.agents {
		if err := a.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown %s: %w", typ, err))
		}
	}
	return errors.Join(errs...)
}

// HealthCheck returns the health of every agent, nil meaning healthy.
func (o *Orchestrator) HealthCheck(ctx context.Context) map[task.AgentType]error {
	out := make(map[task.AgentType]error, len(o.agents))
	for typ, a := range o.agents {
		out[typ] = a.HealthCheck(ctx)
	}
	return out
}

// Submitted identifies an enqueued task.
type Submitted struct {
	TaskID   uuid.UUID      `json:"task_id"`
	JobID    string         `json:"job_id"`
	Agent    task.AgentType `json:"agent"`
	Type     task.Type      `json:"type"`
	Priority int            `json:"priority"`
}

// Validate checks the payload of t against its validation tags.
func Validate(t task.Task) error {
	if t.Payload == nil {
		return fmt.Errorf("%w: task has no payload", domain.ErrInvalidPayload)
	}
	if err := pkgvalidator.Validate(t.Payload); err != nil {
		return fmt.Errorf("%w: %s: %s", domain.ErrInvalidPayload, t.Type(), pkgvalidator.Describe(err))
	}
	return nil
}

// Submit validates t and puts it on the queue.
func (o *Orchestrator) Submit(ctx context.Context, t task.Task) (Submitted, error) {
	if err := Validate(t); err != nil {
		return Submitted{}, err
	}
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	data, err := json.Marshal(t)
	if err != nil {
		return Submitted{}, err
	}
	jobID, err := o.queue.Enqueue(ctx, string(t.Type()), data, taskqueue.EnqueueOptions{Priority: t.Priority})
	if err != nil {
		return Submitted{}, fmt.Errorf("enqueue %s: %w", t.Type(), err)
	}
	o.log.InfoContext(ctx, "task submitted", "task_id", t.ID, "task_type", t.Type(), "priority", t.Priority, "job_id", jobID)
	return Submitted{TaskID: t.ID, JobID: jobID, Agent: t.Agent(), Type: t.Type(), Priority: t.Priority}, nil
}

// Execute runs t on its agent in the calling goroutine and returns the
// Result. It never panics and always writes an activity log entry.
func (o *Orchestrator) Execute(ctx context.Context, t task.Task) task.Result {
	start := o.now()
	agentType := t.Agent()

	var res task.Result
	if a, ok := o.agents[agentType]; ok {
		res = o.safeExecute(ctx, a, t)
	} else if agentType == "" {
		res = task.Fail(domain.ErrUnknownTaskType).With("task_type", string(t.Type()))
	} else {
		res = task.Fail(fmt.Errorf("no %s agent registered", agentType))
	}
	elapsed := o.now().Sub(start)

	o.record(ctx, t, res, elapsed)
	o.metrics.Observe(ctx, string(agentType), string(t.Type()), res.Success, elapsed)
	if res.Success {
		o.log.InfoContext(ctx, "task executed",
			"task_id", t.ID, "task_type", t.Type(), "attempt", t.Attempt, "duration_ms", elapsed.Milliseconds())
	} else {
		o.log.WarnContext(ctx, "task failed",
			"task_id", t.ID, "task_type", t.Type(), "attempt", t.Attempt, "duration_ms", elapsed.Milliseconds(),
			"error", res.Error, "retryable", res.Retryable)
	}
	return res
}

// safeExecute turns an agent panic into a failed, non-retryable result.
func (o *Orchestrator) safeExecute(ctx context.Context, a task.Agent, t task.Task) (res task.Result) {
	defer func() {
		if r := recover(); r != nil {
			telemetry.CapturePanic(r, map[string]string{"agent": string(a.Type()), "task_type": string(t.Type())})
			o.log.ErrorContext(ctx, "agent panicked", "task_id", t.ID, "task_type", t.Type(), "panic", r, "stack", string(debug.Stack()))
			res = task.Fail(fmt.Errorf("%s agent crashed while running %s", a.Type(), t.Type()))
		}
	}()
	return a.ExecuteTask(ctx, t)
}

func (o *Orchestrator) record(ctx context.Context, t task.Task, res task.Result, elapsed time.Duration) {
	if o.activity == nil {
		return
	}
	entry := &models.ActivityLog{
		ID:             uuid.New(),
		OrganizationID: organizationOf(t.Payload),
		AgentType:      string(t.Agent()),
		Action:         string(t.Type()),
		TaskID:         t.ID,
		Attempt:        t.Attempt,
		Success:        res.Success,
		Error:          res.Error,
		Metadata:       res.Metadata,
		DurationMs:     elapsed.Milliseconds(),
		CreatedAt:      o.now(),
	}
	if entry.AgentType == "" {
		entry.AgentType = "orchestrator"
	}
	if err := o.activity.Record(ctx, entry); err != nil {
		o.log.ErrorContext(ctx, "failed to record activity", "task_id", t.ID, "error", err)
	}
}

// Run consumes the queue with cfg.Concurrency workers until ctx is
// cancelled. A task already started runs to completion.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.log.Info("dispatcher started", "concurrency", o.cfg.Concurrency)
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < o.cfg.Concurrency; i++ {
		g.Go(func() error {
			for {
				worked, err := o.ProcessNext(ctx)
				if err != nil {
					o.log.ErrorContext(ctx, "dispatch failed", "error", err)
				}
				if worked && err == nil {
					continue
				}
				select {
				case <-ctx.Done():
					return nil
				case <-time.After(o.cfg.PollInterval):
				}
			}
		})
	}
	err := g.Wait()
	o.log.Info("dispatcher stopped")
	return err
}

// ProcessNext claims one ready job and executes it. It reports whether a job
// was claimed.
func (o *Orchestrator) ProcessNext(ctx context.Context) (bool, error) {
	if ctx.Err() != nil {
		return false, nil
	}
	job, err := o.queue.Dequeue(ctx)
	if err != nil || job == nil {
		return false, err
	}
	runCtx := context.WithoutCancel(ctx)

	var t task.Task
	if err := json.Unmarshal(job.Payload, &t); err != nil {
		o.log.ErrorContext(runCtx, "undecodable job moved to failed", "job_id", job.ID, "name", job.Name, "error", err)
		telemetry.CaptureError(err, map[string]string{"job": job.Name})
		if _, fErr := o.queue.Fail(runCtx, job, err, false); fErr != nil {
			return true, fErr
		}
		return true, nil
	}
	t.Attempt = job.Attempt

	res := o.Execute(runCtx, t)
	if res.Success {
		return true, o.queue.Complete(runCtx, job)
	}
	state, err := o.queue.Fail(runCtx, job, errors.New(res.Error), res.Retryable)
	if err != nil {
		return true, err
	}
	if state == taskqueue.StateDelayed {
		o.metrics.Retried(runCtx, string(t.Agent()), string(t.Type()))
	}
	return true, nil
}

// QueueStatus is the queue summary. Degraded is set when the backend did not
// answer in time and the counts are zero.
type QueueStatus struct {
	Waiting   int64  `json:"waiting"`
	Delayed   int64  `json:"delayed"`
	Active    int64  `json:"active"`
	Completed int64  `json:"completed"`
	Failed    int64  `json:"failed"`
	Degraded  bool   `json:"degraded,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Status returns the queue counts, falling back to a degraded zero status
// after cfg.StatusTimeout.
func (o *Orchestrator) Status(ctx context.Context) QueueStatus {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.StatusTimeout)
	defer cancel()

	type answer struct {
		s   taskqueue.Status
		err error
	}
	ch := make(chan answer, 1)
	go func() {
		s, err := o.queue.Counts(ctx)
		ch <- answer{s, err}
	}()

	select {
	case a := <-ch:
		if a.err != nil {
			return QueueStatus{Degraded: true, Error: a.err.Error()}
		}
		return QueueStatus{
			Waiting:   a.s.Waiting,
			Delayed:   a.s.Delayed,
			Active:    a.s.Active,
			Completed: a.s.Completed,
			Failed:    a.s.Failed,
		}
	case <-ctx.Done():
		o.log.WarnContext(ctx, "queue status timed out", "timeout", o.cfg.StatusTimeout)
		return QueueStatus{Degraded: true, Error: "queue status timed out"}
	}
}

// Ping checks the queue backend.
func (o *Orchestrator) Ping(ctx context.Context) error {
	return o.queue.Ping(ctx)
}

func organizationOf(p task.Payload) *uuid.UUID {
	var id uuid.UUID
	switch p := p.(type) {
	case task.ScanAllPayload:
		return p.OrganizationID
	case task.ComparePricesPayload:
		id = p.OrganizationID
	case task.AnalyzeInventoryPayload:
		id = p.OrganizationID
	case task.PredictStockoutsPayload:
		id = p.OrganizationID
	case task.AnalyzeDemandPayload:
		id = p.OrganizationID
	case task.OptimizeReorderPointsPayload:
		id = p.OrganizationID
	case task.GenerateSuggestionsPayload:
		id = p.OrganizationID
	case task.InitiateNegotiationPayload:
		id = p.OrganizationID
	case task.BulkNegotiationPayload:
		id = p.OrganizationID
	}
	if id == uuid.Nil {
		return nil
	}
	return &id
}
