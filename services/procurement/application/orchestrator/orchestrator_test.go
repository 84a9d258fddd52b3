package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ghuser/procureflow/pkg/logger"
	"github.com/ghuser/procureflow/pkg/taskqueue"
	"github.com/ghuser/procureflow/services/procurement/application/agents/forecaster"
	"github.com/ghuser/procureflow/services/procurement/domain"
	"github.com/ghuser/procureflow/services/procurement/domain/models"
	"github.com/ghuser/procureflow/services/procurement/domain/task"
	"github.com/ghuser/procureflow/services/procurement/infrastructure/persistence/memory"
)

type stubAgent struct {
	typ task.AgentType
	fn  func(task.Task) task.Result

	mu   sync.Mutex
	seen []task.Task
}

func (a *stubAgent) Type() task.AgentType { return a.typ }

func (a *stubAgent) Initialize(context.Context) error { return nil }

func (a *stubAgent) Shutdown(context.Context) error { return nil }

func (a *stubAgent) HealthCheck(context.Context) error { return nil }

func (a *stubAgent) ExecuteTask(_ context.Context, t task.Task) task.Result {
	a.mu.Lock()
	a.seen = append(a.seen, t)
	a.mu.Unlock()
	if a.fn != nil {
		return a.fn(t)
	}
	return task.OK(nil)
}

type countingMetrics struct {
	observed int
	retried  int
}

func (m *countingMetrics) Observe(context.Context, string, string, bool, time.Duration) { m.observed++ }

func (m *countingMetrics) Retried(context.Context, string, string) { m.retried++ }

type fixture struct {
	store   *memory.Store
	queue   *taskqueue.MemoryQueue
	clock   time.Time
	metrics *countingMetrics
	orch    *Orchestrator
	org     uuid.UUID
}

func newFixture(t *testing.T, agents ...task.Agent) *fixture {
	t.Helper()
	f := &fixture{
		store:   memory.New(),
		clock:   time.Date(2026, 5, 4, 6, 0, 0, 0, time.UTC),
		metrics: &countingMetrics{},
		org:     uuid.New(),
	}
	f.queue = taskqueue.NewMemoryQueue(taskqueue.Options{Name: "test", MaxAttempts: 3, BackoffBase: time.Second})
	f.queue.SetClock(func() time.Time { return f.clock })
	f.store.AddOrganization(models.Organization{ID: f.org, Name: "Acme"})
	f.orch = New(Deps{
		Agents:        agents,
		Queue:         f.queue,
		Activity:      f.store.Activity(),
		Organizations: f.store.Organizations(),
		Inventory:     f.store.Inventory(),
		Catalog:       f.store.Catalog(),
		Metrics:       f.metrics,
	}, Config{Concurrency: 2, PollInterval: 10 * time.Millisecond, StatusTimeout: 50 * time.Millisecond}, logger.Nop())
	f.orch.now = func() time.Time { return f.clock }
	return f
}

func (f *fixture) drain(t *testing.T) int {
	t.Helper()
	n := 0
	for {
		worked, err := f.orch.ProcessNext(context.Background())
		if err != nil {
			t.Fatalf("process: %v", err)
		}
		if !worked {
			return n
		}
		n++
	}
}

func TestExecute_RecordsActivity(t *testing.T) {
	forecasts := &stubAgent{typ: task.AgentForecaster, fn: func(task.Task) task.Result {
		return task.OK("done").With("items", 3)
	}}
	f := newFixture(t, forecasts)

	tk := task.New(task.AnalyzeInventoryPayload{OrganizationID: f.org}, 2)
	res := f.orch.Execute(context.Background(), tk)
	if !res.Success {
		t.Fatalf("execute failed: %s", res.Error)
	}

	entries, _ := f.store.Activity().List(context.Background(), 10)
	if len(entries) != 1 {
		t.Fatalf("activity entries = %d, want 1", len(entries))
	}
	e := entries[0]
	if e.TaskID != tk.ID || e.AgentType != string(task.AgentForecaster) || e.Action != string(task.TypeAnalyzeInventory) {
		t.Errorf("entry = %+v", e)
	}
	if e.OrganizationID == nil || *e.OrganizationID != f.org || e.Metadata["items"] != 3 {
		t.Errorf("entry scope/metadata = %+v", e)
	}
	if f.metrics.observed != 1 {
		t.Errorf("observed = %d, want 1", f.metrics.observed)
	}
}

func TestExecute_PanicBecomesFailure(t *testing.T) {
	crashing := &stubAgent{typ: task.AgentScanner, fn: func(task.Task) task.Result {
		panic("nil map write")
	}}
	f := newFixture(t, crashing)

	res := f.orch.Execute(context.Background(), task.New(task.ScanAllPayload{}, 1))
	if res.Success || res.Retryable {
		t.Fatalf("a panic is a non-retryable failure, got %+v", res)
	}
	entries, _ := f.store.Activity().List(context.Background(), 10)
	if len(entries) != 1 || entries[0].Success {
		t.Fatalf("the crash must still be logged: %+v", entries)
	}
}

func TestExecute_MissingAgent(t *testing.T) {
	f := newFixture(t)
	res := f.orch.Execute(context.Background(), task.New(task.ExpireNegotiationsPayload{}, 3))
	if res.Success {
		t.Fatal("expected failure without a negotiator")
	}

	res = f.orch.Execute(context.Background(), task.Task{ID: uuid.New()})
	if res.Success || res.Error != domain.ErrUnknownTaskType.Error() {
		t.Fatalf("empty task: %+v", res)
	}
}

func TestSubmit_RejectsInvalidPayload(t *testing.T) {
	f := newFixture(t)
	_, err := f.orch.Submit(context.Background(), task.New(task.CheckStockPayload{SupplierID: uuid.New()}, 1))
	if !errors.Is(err, domain.ErrInvalidPayload) {
		t.Fatalf("expected ErrInvalidPayload, got %v", err)
	}
	if status := f.orch.Status(context.Background()); status.Waiting != 0 {
		t.Fatalf("invalid tasks must not be queued: %+v", status)
	}
}

func TestProcurementCycle_RunsInPriorityOrder(t *testing.T) {
	scanner := &stubAgent{typ: task.AgentScanner}
	forecasts := &stubAgent{typ: task.AgentForecaster}
	f := newFixture(t, scanner, forecasts)

	// Work queued earlier with a worse priority must not run first.
	if _, err := f.orch.Submit(context.Background(), task.New(task.GenerateSuggestionsPayload{OrganizationID: f.org}, 5)); err != nil {
		t.Fatalf("submit: %v", err)
	}
	submitted, err := f.orch.ProcurementCycle(context.Background(), f.org)
	if err != nil {
		t.Fatalf("cycle: %v", err)
	}
	gotPriorities := []int{}
	for _, s := range submitted {
		gotPriorities = append(gotPriorities, s.Priority)
	}
	if len(gotPriorities) != 4 || gotPriorities[0] != 1 || gotPriorities[1] != 2 || gotPriorities[2] != 2 || gotPriorities[3] != 3 {
		t.Fatalf("priorities = %v, want [1 2 2 3]", gotPriorities)
	}

	if n := f.drain(t); n != 5 {
		t.Fatalf("processed %d jobs, want 5", n)
	}
	if len(scanner.seen) != 1 || scanner.seen[0].Type() != task.TypeScanAll {
		t.Fatalf("scanner saw %+v", scanner.seen)
	}
	order := []task.Type{}
	for _, tk := range forecasts.seen {
		order = append(order, tk.Type())
	}
	want := []task.Type{task.TypeAnalyzeInventory, task.TypePredictStockouts, task.TypeGenerateSuggestions, task.TypeGenerateSuggestions}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("forecaster order = %v, want %v", order, want)
		}
	}

	status := f.orch.Status(context.Background())
	if status.Completed != 5 || status.Waiting != 0 || status.Degraded {
		t.Errorf("status = %+v", status)
	}
}

func TestProcurementCycle_UnknownOrganization(t *testing.T) {
	f := newFixture(t)
	if _, err := f.orch.ProcurementCycle(context.Background(), uuid.New()); !errors.Is(err, domain.ErrOrganizationNotFound) {
		t.Fatalf("expected ErrOrganizationNotFound, got %v", err)
	}
}

func TestProcessNext_RetriesTransientFailures(t *testing.T) {
	attempts := 0
	negotiator := &stubAgent{typ: task.AgentNegotiator, fn: func(tk task.Task) task.Result {
		attempts++
		if tk.Attempt < 3 {
			return task.Fail(task.Transient(errors.New("smtp timeout")))
		}
		return task.OK(nil)
	}}
	f := newFixture(t, negotiator)
	if _, err := f.orch.Submit(context.Background(), task.New(task.ExpireNegotiationsPayload{}, 3)); err != nil {
		t.Fatalf("submit: %v", err)
	}

	for i := 0; i < 3; i++ {
		if n := f.drain(t); n != 1 {
			t.Fatalf("round %d processed %d jobs", i+1, n)
		}
		f.clock = f.clock.Add(time.Minute)
	}
	if attempts != 3 || f.metrics.retried != 2 {
		t.Fatalf("attempts = %d, retried = %d", attempts, f.metrics.retried)
	}

	entries, _ := f.store.Activity().List(context.Background(), 10)
	if len(entries) != 3 || entries[0].Attempt != 3 || !entries[0].Success {
		t.Fatalf("activity = %+v", entries)
	}
	if status := f.orch.Status(context.Background()); status.Completed != 1 || status.Failed != 0 {
		t.Errorf("status = %+v", status)
	}
}

func TestProcessNext_PermanentFailureIsNotRetried(t *testing.T) {
	scanner := &stubAgent{typ: task.AgentScanner, fn: func(task.Task) task.Result {
		return task.Fail(domain.ErrSupplierNotFound)
	}}
	f := newFixture(t, scanner)
	_, _ = f.orch.Submit(context.Background(), task.New(task.ScanSupplierPayload{SupplierID: uuid.New()}, 1))

	f.drain(t)
	f.clock = f.clock.Add(time.Hour)
	f.drain(t)

	if len(scanner.seen) != 1 {
		t.Fatalf("executions = %d, want 1", len(scanner.seen))
	}
	if status := f.orch.Status(context.Background()); status.Failed != 1 {
		t.Errorf("status = %+v", status)
	}
}

func TestProcessNext_UndecodableJobFails(t *testing.T) {
	f := newFixture(t)
	_, _ = f.queue.Enqueue(context.Background(), "mystery", []byte(`{"type":"launch_rockets","payload":{}}`), taskqueue.EnqueueOptions{})

	if n := f.drain(t); n != 1 {
		t.Fatalf("processed %d, want 1", n)
	}
	if status := f.orch.Status(context.Background()); status.Failed != 1 {
		t.Errorf("status = %+v", status)
	}
}

type blockingQueue struct{ *taskqueue.MemoryQueue }

func (blockingQueue) Counts(ctx context.Context) (taskqueue.Status, error) {
	<-ctx.Done()
	return taskqueue.Status{}, ctx.Err()
}

func TestStatus_FallsBackOnTimeout(t *testing.T) {
	f := newFixture(t)
	f.orch.queue = blockingQueue{f.queue}

	start := time.Now()
	status := f.orch.Status(context.Background())
	if !status.Degraded {
		t.Fatalf("status = %+v, want degraded", status)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("status blocked for %s", elapsed)
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	scanner := &stubAgent{typ: task.AgentScanner}
	f := newFixture(t, scanner)
	_, _ = f.orch.Submit(context.Background(), task.New(task.ScanAllPayload{}, 1))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.orch.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for {
		if s := f.orch.Status(context.Background()); s.Completed == 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("job was not processed")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

// An item at its reorder point is classified warning by the forecaster, and
// auto-reorder queues exactly one negotiation for its reorder quantity with
// the cheapest in-stock supplier.
func TestAutoReorder_EndToEnd(t *testing.T) {
	f := newFixture(t)
	fc := forecaster.New(forecaster.Deps{
		Organizations: f.store.Organizations(),
		Inventory:     f.store.Inventory(),
		Catalog:       f.store.Catalog(),
		Forecasts:     f.store.Forecasts(),
	}, forecaster.Config{ThresholdDays: 14, OrderingCost: 50, HoldingCostRate: 0.25, DefaultLeadTimeDays: 7}, logger.Nop())
	f.orch.agents[task.AgentForecaster] = fc

	product := uuid.New()
	cheap, cheaperButOut, dear := uuid.New(), uuid.New(), uuid.New()
	f.store.AddProduct(models.Product{ID: product, OrganizationID: f.org, SKU: "GEAR-12", Name: "Gear"})
	f.store.AddInventoryItem(models.InventoryItem{
		ID: uuid.New(), OrganizationID: f.org, ProductID: product, SKU: "GEAR-12", Name: "Gear",
		CurrentStock: 8, ReorderPoint: 8, ReorderQuantity: 15,
	})
	for _, s := range []struct {
		id      uuid.UUID
		price   int64
		inStock bool
	}{{cheap, 4, true}, {cheaperButOut, 3, false}, {dear, 6, true}} {
		f.store.AddSupplier(models.Supplier{ID: s.id, OrganizationID: f.org, Name: s.id.String(), Email: "x@example.com", Active: true})
		f.store.AddSupplierProduct(models.SupplierProduct{ID: uuid.New(), SupplierID: s.id, ProductID: product, SKU: "G", UnitPrice: decimal.NewFromInt(s.price), InStock: s.inStock})
	}

	res := f.orch.Execute(context.Background(), task.New(task.PredictStockoutsPayload{OrganizationID: f.org}, 2))
	if !res.Success {
		t.Fatalf("predict: %s", res.Error)
	}
	preds, _ := f.store.Forecasts().ListPredictions(context.Background(), f.org)
	if len(preds) != 1 || preds[0].Urgency != models.UrgencyWarning {
		t.Fatalf("predictions = %+v, want one warning", preds)
	}

	report, err := f.orch.AutoReorder(context.Background(), f.org)
	if err != nil {
		t.Fatalf("auto-reorder: %v", err)
	}
	if len(report.Tasks) != 1 || report.Tasks[0].Type != task.TypeInitiateNegotiation {
		t.Fatalf("tasks = %+v", report.Tasks)
	}

	negotiator := &stubAgent{typ: task.AgentNegotiator}
	f.orch.agents[task.AgentNegotiator] = negotiator
	f.drain(t)
	if len(negotiator.seen) != 1 {
		t.Fatalf("negotiator ran %d tasks", len(negotiator.seen))
	}
	p := negotiator.seen[0].Payload.(task.InitiateNegotiationPayload)
	if p.SupplierID != cheap || len(p.Products) != 1 || p.Products[0].Quantity != 15 {
		t.Fatalf("payload = %+v, want cheap in-stock supplier with quantity 15", p)
	}
}

func TestAutoReorder_NothingToOrder(t *testing.T) {
	f := newFixture(t)
	report, err := f.orch.AutoReorder(context.Background(), f.org)
	if err != nil || len(report.Tasks) != 0 {
		t.Fatalf("report = %+v, err = %v", report, err)
	}
}
