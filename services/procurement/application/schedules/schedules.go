// Package schedules drives the periodic procurement work from cron: a daily
// cycle per organization and the negotiation expiry sweep.
package schedules

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/ghuser/procureflow/pkg/logger"
	"github.com/ghuser/procureflow/services/procurement/application/orchestrator"
	"github.com/ghuser/procureflow/services/procurement/domain/repositories"
	"github.com/ghuser/procureflow/services/procurement/domain/task"
)

// SweepPriority runs the expiry sweep after replies and scans.
const SweepPriority = 3

// Runner is the part of the orchestrator the schedules drive.
type Runner interface {
	ProcurementCycle(ctx context.Context, orgID uuid.UUID) ([]orchestrator.Submitted, error)
	Submit(ctx context.Context, t task.Task) (orchestrator.Submitted, error)
}

// Scheduler owns the cron instance.
type Scheduler struct {
	cron   *cron.Cron
	runner Runner
	orgs   repositories.OrganizationRepository
	log    logger.Logger
}

// New returns a scheduler with no entries. Cron specs use the standard five
// fields plus descriptors such as @hourly.
func New(runner Runner, orgs repositories.OrganizationRepository, log logger.Logger) *Scheduler {
	return &Scheduler{
		cron:   cron.New(cron.WithChain(cron.Recover(cronLogger{log}))),
		runner: runner,
		orgs:   orgs,
		log:    log.With("component", "schedules"),
	}
}

// Register adds the cycle and sweep entries. An empty spec disables the entry.
func (s *Scheduler) Register(cycleSpec, sweepSpec string) error {
	if cycleSpec != "" {
		if _, err := s.cron.AddFunc(cycleSpec, func() { _ = s.RunCycles(context.Background()) }); err != nil {
			return fmt.Errorf("schedules: procurement cycle %q: %w", cycleSpec, err)
		}
	}
	if sweepSpec != "" {
		if _, err := s.cron.AddFunc(sweepSpec, func() { _ = s.SweepExpired(context.Background()) }); err != nil {
			return fmt.Errorf("schedules: expiry sweep %q: %w", sweepSpec, err)
		}
	}
	s.log.Info("schedules registered", "procurement_cycle", cycleSpec, "expiry_sweep", sweepSpec)
	return nil
}

// Entries reports how many cron entries are registered.
func (s *Scheduler) Entries() int {
	return len(s.cron.Entries())
}

// Start runs the cron loop in its own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop stops scheduling and returns a context done once running jobs finish.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

// RunCycles queues a procurement cycle for every organization. One failing
// organization does not stop the others; the last error is returned.
func (s *Scheduler) RunCycles(ctx context.Context) error {
	orgs, err := s.orgs.List(ctx)
	if err != nil {
		s.log.ErrorContext(ctx, "list organizations for cycle", "error", err)
		return err
	}
	var lastErr error
	for _, o := range orgs {
		submitted, err := s.runner.ProcurementCycle(ctx, o.ID)
		if err != nil {
			s.log.ErrorContext(ctx, "procurement cycle not queued", "organization_id", o.ID, "error", err)
			lastErr = err
			continue
		}
		s.log.InfoContext(ctx, "procurement cycle queued", "organization_id", o.ID, "tasks", len(submitted))
	}
	return lastErr
}

// SweepExpired queues one expire_negotiations task over all negotiations.
func (s *Scheduler) SweepExpired(ctx context.Context) error {
	if _, err := s.runner.Submit(ctx, task.New(task.ExpireNegotiationsPayload{}, SweepPriority)); err != nil {
		s.log.ErrorContext(ctx, "expiry sweep not queued", "error", err)
		return err
	}
	return nil
}

// cronLogger adapts logger.Logger to cron.Logger.
type cronLogger struct {
	log logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
