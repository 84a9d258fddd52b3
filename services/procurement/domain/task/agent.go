package task

import (
	"context"
	"fmt"

	pkgvalidator "github.com/ghuser/procureflow/pkg/validator"
	"github.com/ghuser/procureflow/services/procurement/domain"
)

// Agent is the uniform contract the orchestrator drives. ExecuteTask never
// panics on purpose and never returns an error: every outcome is a Result.
type Agent interface {
	Type() AgentType
	Initialize(ctx context.Context) error
	Shutdown(ctx context.Context) error
	HealthCheck(ctx context.Context) error
	ExecuteTask(ctx context.Context, t Task) Result
}

// ScannerHandler has one method per price-scanner task type.
type ScannerHandler interface {
	ScanSupplier(ctx context.Context, p ScanSupplierPayload) Result
	ScanAll(ctx context.Context, p ScanAllPayload) Result
	CheckStock(ctx context.Context, p CheckStockPayload) Result
	ComparePrices(ctx context.Context, p ComparePricesPayload) Result
}

// ForecasterHandler has one method per demand-forecaster task type.
type ForecasterHandler interface {
	AnalyzeInventory(ctx context.Context, p AnalyzeInventoryPayload) Result
	PredictStockouts(ctx context.Context, p PredictStockoutsPayload) Result
	AnalyzeDemand(ctx context.Context, p AnalyzeDemandPayload) Result
	OptimizeReorderPoints(ctx context.Context, p OptimizeReorderPointsPayload) Result
	GenerateSuggestions(ctx context.Context, p GenerateSuggestionsPayload) Result
}

// NegotiatorHandler has one method per negotiator task type.
type NegotiatorHandler interface {
	InitiateNegotiation(ctx context.Context, p InitiateNegotiationPayload) Result
	ProcessResponse(ctx context.Context, p ProcessResponsePayload) Result
	BulkNegotiation(ctx context.Context, p BulkNegotiationPayload) Result
	ExpireNegotiations(ctx context.Context, p ExpireNegotiationsPayload) Result
}

type scannerPayload interface {
	Payload
	runScanner(context.Context, ScannerHandler) Result
}

type forecasterPayload interface {
	Payload
	runForecaster(context.Context, ForecasterHandler) Result
}

type negotiatorPayload interface {
	Payload
	runNegotiator(context.Context, NegotiatorHandler) Result
}

// DispatchScanner validates t's payload and routes it to h.
func DispatchScanner(ctx context.Context, t Task, h ScannerHandler) Result {
	p, ok := t.Payload.(scannerPayload)
	if !ok {
		return unknown(t)
	}
	if err := validate(p); err != nil {
		return Fail(err)
	}
	return p.runScanner(ctx, h)
}

// DispatchForecaster validates t's payload and routes it to h.
func DispatchForecaster(ctx context.Context, t Task, h ForecasterHandler) Result {
	p, ok := t.Payload.(forecasterPayload)
	if !ok {
		return unknown(t)
	}
	if err := validate(p); err != nil {
		return Fail(err)
	}
	return p.runForecaster(ctx, h)
}

// DispatchNegotiator validates t's payload and routes it to h.
func DispatchNegotiator(ctx context.Context, t Task, h NegotiatorHandler) Result {
	p, ok := t.Payload.(negotiatorPayload)
	if !ok {
		return unknown(t)
	}
	if err := validate(p); err != nil {
		return Fail(err)
	}
	if pr, ok := p.(ProcessResponsePayload); ok && pr.DeliveryID == "" {
		pr.DeliveryID = t.ID.String()
		p = pr
	}
	return p.runNegotiator(ctx, h)
}

func unknown(t Task) Result {
	return Fail(domain.ErrUnknownTaskType).With("task_type", string(t.Type()))
}

func validate(p Payload) error {
	if err := pkgvalidator.Validate(p); err != nil {
		return fmt.Errorf("%w: %s: %s", domain.ErrInvalidPayload, p.TaskType(), pkgvalidator.Describe(err))
	}
	return nil
}
