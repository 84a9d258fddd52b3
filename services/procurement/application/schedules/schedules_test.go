package schedules

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/ghuser/procureflow/pkg/logger"
	"github.com/ghuser/procureflow/services/procurement/application/orchestrator"
	"github.com/ghuser/procureflow/services/procurement/domain"
	"github.com/ghuser/procureflow/services/procurement/domain/models"
	"github.com/ghuser/procureflow/services/procurement/domain/task"
	"github.com/ghuser/procureflow/services/procurement/infrastructure/persistence/memory"
)

type stubRunner struct {
	cycles    []uuid.UUID
	submitted []task.Task
	failOrg   uuid.UUID
}

func (r *stubRunner) ProcurementCycle(_ context.Context, orgID uuid.UUID) ([]orchestrator.Submitted, error) {
	if orgID == r.failOrg {
		return nil, domain.ErrOrganizationNotFound
	}
	r.cycles = append(r.cycles, orgID)
	return []orchestrator.Submitted{{}}, nil
}

func (r *stubRunner) Submit(_ context.Context, t task.Task) (orchestrator.Submitted, error) {
	r.submitted = append(r.submitted, t)
	return orchestrator.Submitted{TaskID: t.ID}, nil
}

func TestRegister(t *testing.T) {
	tests := []struct {
		name      string
		cycle     string
		sweep     string
		wantCount int
		wantErr   bool
	}{
		{"defaults", "0 6 * * *", "@hourly", 2, false},
		{"sweep disabled", "0 6 * * *", "", 1, false},
		{"invalid spec", "every morning", "@hourly", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(&stubRunner{}, memory.New().Organizations(), logger.Nop())
			err := s.Register(tt.cycle, tt.sweep)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && s.Entries() != tt.wantCount {
				t.Fatalf("entries = %d, want %d", s.Entries(), tt.wantCount)
			}
		})
	}
}

func TestRunCycles_EveryOrganization(t *testing.T) {
	store := memory.New()
	a, b := uuid.New(), uuid.New()
	store.AddOrganization(models.Organization{ID: a, Name: "A"})
	store.AddOrganization(models.Organization{ID: b, Name: "B"})

	runner := &stubRunner{failOrg: a}
	s := New(runner, store.Organizations(), logger.Nop())

	err := s.RunCycles(context.Background())
	if !errors.Is(err, domain.ErrOrganizationNotFound) {
		t.Fatalf("expected the failing organization's error, got %v", err)
	}
	if len(runner.cycles) != 1 || runner.cycles[0] != b {
		t.Fatalf("cycles = %v, want only %s", runner.cycles, b)
	}
}

func TestSweepExpired(t *testing.T) {
	runner := &stubRunner{}
	s := New(runner, memory.New().Organizations(), logger.Nop())
	if err := s.SweepExpired(context.Background()); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(runner.submitted) != 1 {
		t.Fatalf("submitted = %d, want 1", len(runner.submitted))
	}
	p, ok := runner.submitted[0].Payload.(task.ExpireNegotiationsPayload)
	if !ok || p.NegotiationID != nil || runner.submitted[0].Priority != SweepPriority {
		t.Fatalf("task = %+v", runner.submitted[0])
	}
}
