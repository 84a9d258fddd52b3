package task

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Payload is the typed body of a task. Only the structs in this file
// implement it.
type Payload interface {
	TaskType() Type
	payload()
}

// Price-scanner payloads.

type ScanSupplierPayload struct {
	SupplierID uuid.UUID `json:"supplier_id" validate:"required"`
}

// ScanAllPayload scans every active supplier; OrganizationID narrows it to one tenant.
type ScanAllPayload struct {
	OrganizationID *uuid.UUID `json:"organization_id,omitempty"`
}

type CheckStockPayload struct {
	SupplierID uuid.UUID `json:"supplier_id" validate:"required"`
	SKU        string    `json:"sku" validate:"required"`
}

type ComparePricesPayload struct {
	OrganizationID uuid.UUID `json:"organization_id" validate:"required"`
	ProductID      uuid.UUID `json:"product_id" validate:"required"`
}

// Demand-forecaster payloads.

type AnalyzeInventoryPayload struct {
	OrganizationID uuid.UUID `json:"organization_id" validate:"required"`
}

// PredictStockoutsPayload uses the configured threshold when ThresholdDays is 0.
type PredictStockoutsPayload struct {
	OrganizationID uuid.UUID `json:"organization_id" validate:"required"`
	ThresholdDays  int       `json:"threshold_days,omitempty" validate:"gte=0,lte=365"`
}

type AnalyzeDemandPayload struct {
	OrganizationID  uuid.UUID `json:"organization_id" validate:"required"`
	InventoryItemID uuid.UUID `json:"inventory_item_id" validate:"required"`
	WeeksAhead      int       `json:"weeks_ahead,omitempty" validate:"gte=0,lte=52"`
}

// OptimizeReorderPointsPayload overrides the configured cost model for
// non-zero fields.
type OptimizeReorderPointsPayload struct {
	OrganizationID  uuid.UUID `json:"organization_id" validate:"required"`
	LeadTimeDays    int       `json:"lead_time_days,omitempty" validate:"gte=0"`
	OrderingCost    float64   `json:"ordering_cost,omitempty" validate:"gte=0"`
	HoldingCostRate float64   `json:"holding_cost_rate,omitempty" validate:"gte=0,lte=1"`
}

type GenerateSuggestionsPayload struct {
	OrganizationID uuid.UUID `json:"organization_id" validate:"required"`
}

// Negotiator payloads.

// NegotiationProduct is one product a negotiation covers. Missing prices are
// filled from the supplier's current offer.
type NegotiationProduct struct {
	ProductID       uuid.UUID        `json:"product_id" validate:"required"`
	Quantity        int              `json:"quantity" validate:"gt=0"`
	TargetPrice     *decimal.Decimal `json:"target_price,omitempty"`
	CompetitorPrice *decimal.Decimal `json:"competitor_price,omitempty"`
}

type InitiateNegotiationPayload struct {
	OrganizationID    uuid.UUID            `json:"organization_id" validate:"required"`
	SupplierID        uuid.UUID            `json:"supplier_id" validate:"required"`
	Products          []NegotiationProduct `json:"products" validate:"required,min=1,dive"`
	HistoricalVolume  decimal.Decimal      `json:"historical_volume"`
	TargetImprovement float64              `json:"target_improvement,omitempty" validate:"gte=0,lt=1"`
	MaxRounds         int                  `json:"max_rounds,omitempty" validate:"gte=0,lte=10"`
}

type ProcessResponsePayload struct {
	NegotiationID uuid.UUID `json:"negotiation_id" validate:"required"`
	ReplyText     string    `json:"reply_text" validate:"required"`
	// DeliveryID identifies one inbound delivery, typically the mail
	// provider's message id. When empty the task id is used, which is stable
	// across queue retries.
	DeliveryID string `json:"delivery_id,omitempty" validate:"max=256"`
}

// BulkItem is one product to source in a bulk negotiation.
type BulkItem struct {
	ProductID uuid.UUID `json:"product_id" validate:"required"`
	Quantity  int       `json:"quantity" validate:"gt=0"`
}

type BulkNegotiationPayload struct {
	OrganizationID    uuid.UUID  `json:"organization_id" validate:"required"`
	Items             []BulkItem `json:"items" validate:"required,min=1,dive"`
	TargetImprovement float64    `json:"target_improvement,omitempty" validate:"gte=0,lt=1"`
	MaxRounds         int        `json:"max_rounds,omitempty" validate:"gte=0,lte=10"`
}

// ExpireNegotiationsPayload sweeps every overdue negotiation, or only
// NegotiationID when it is set.
type ExpireNegotiationsPayload struct {
	NegotiationID *uuid.UUID `json:"negotiation_id,omitempty"`
}

func (ScanSupplierPayload) TaskType() Type { return TypeScanSupplier }

func (ScanAllPayload) TaskType() Type { return TypeScanAll }

func (CheckStockPayload) TaskType() Type { return TypeCheckStock }

func (ComparePricesPayload) TaskType() Type { return TypeComparePrices }

func (AnalyzeInventoryPayload) TaskType() Type { return TypeAnalyzeInventory }

func (PredictStockoutsPayload) TaskType() Type { return TypePredictStockouts }

func (AnalyzeDemandPayload) TaskType() Type { return TypeAnalyzeDemand }

func (OptimizeReorderPointsPayload) TaskType() Type { return TypeOptimizeReorderPoints }

func (GenerateSuggestionsPayload) TaskType() Type { return TypeGenerateSuggestions }

func (InitiateNegotiationPayload) TaskType() Type { return TypeInitiateNegotiation }

func (ProcessResponsePayload) TaskType() Type { return TypeProcessResponse }

func (BulkNegotiationPayload) TaskType() Type { return TypeBulkNegotiation }

func (ExpireNegotiationsPayload) TaskType() Type { return TypeExpireNegotiations }

func (ScanSupplierPayload) payload() {}

func (ScanAllPayload) payload() {}

func (CheckStockPayload) payload() {}

func (ComparePricesPayload) payload() {}

func (AnalyzeInventoryPayload) payload() {}

func (PredictStockoutsPayload) payload() {}

func (AnalyzeDemandPayload) payload() {}

func (OptimizeReorderPointsPayload) payload() {}

func (GenerateSuggestionsPayload) payload() {}

func (InitiateNegotiationPayload) payload() {}

func (ProcessResponsePayload) payload() {}

func (BulkNegotiationPayload) payload() {}

func (ExpireNegotiationsPayload) payload() {}

// Each payload routes itself to the matching handler method, so adding a
// payload without a handler method does not compile.

func (p ScanSupplierPayload) runScanner(ctx context.Context, h ScannerHandler) Result {
	return h.ScanSupplier(ctx, p)
}
func (p ScanAllPayload) runScanner(ctx context.Context, h ScannerHandler) Result {
	return h.ScanAll(ctx, p)
}
func (p CheckStockPayload) runScanner(ctx context.Context, h ScannerHandler) Result {
	return h.CheckStock(ctx, p)
}
func (p ComparePricesPayload) runScanner(ctx context.Context, h ScannerHandler) Result {
	return h.ComparePrices(ctx, p)
}

func (p AnalyzeInventoryPayload) runForecaster(ctx context.Context, h ForecasterHandler) Result {
	return h.AnalyzeInventory(ctx, p)
}
func (p PredictStockoutsPayload) runForecaster(ctx context.Context, h ForecasterHandler) Result {
	return h.PredictStockouts(ctx, p)
}
func (p AnalyzeDemandPayload) runForecaster(ctx context.Context, h ForecasterHandler) Result {
	return h.AnalyzeDemand(ctx, p)
}
func (p OptimizeReorderPointsPayload) runForecaster(ctx context.Context, h ForecasterHandler) Result {
	return h.OptimizeReorderPoints(ctx, p)
}
func (p GenerateSuggestionsPayload) runForecaster(ctx context.Context, h ForecasterHandler) Result {
	return h.GenerateSuggestions(ctx, p)
}

func (p InitiateNegotiationPayload) runNegotiator(ctx context.Context, h NegotiatorHandler) Result {
	return h.InitiateNegotiation(ctx, p)
}
func (p ProcessResponsePayload) runNegotiator(ctx context.Context, h NegotiatorHandler) Result {
	return h.ProcessResponse(ctx, p)
}
func (p BulkNegotiationPayload) runNegotiator(ctx context.Context, h NegotiatorHandler) Result {
	return h.BulkNegotiation(ctx, p)
}
func (p ExpireNegotiationsPayload) runNegotiator(ctx context.Context, h NegotiatorHandler) Result {
	return h.ExpireNegotiations(ctx, p)
}
