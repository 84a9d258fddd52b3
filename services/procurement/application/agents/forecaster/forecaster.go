// Package forecaster is the demand-forecast agent. It reads stock movements,
// classifies urgency and proposes reorder policies and purchase suggestions.
package forecaster

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ghuser/procureflow/pkg/logger"
	"github.com/ghuser/procureflow/services/procurement/domain"
	"github.com/ghuser/procureflow/services/procurement/domain/forecast"
	"github.com/ghuser/procureflow/services/procurement/domain/models"
	"github.com/ghuser/procureflow/services/procurement/domain/repositories"
	"github.com/ghuser/procureflow/services/procurement/domain/task"
)

// HistoryWindow bounds how far back movements are read.
const HistoryWindow = 90 * 24 * time.Hour

// Config holds the forecasting defaults. Task payloads override them.
type Config struct {
	ThresholdDays       int
	OrderingCost        float64
	HoldingCostRate     float64
	DefaultLeadTimeDays int
}

// Deps are the repositories the agent reads and writes.
type Deps struct {
	Organizations repositories.OrganizationRepository
	Inventory     repositories.InventoryRepository
	Catalog       repositories.CatalogRepository
	Forecasts     repositories.ForecastRepository
}

// Agent implements task.Agent for the demand-forecaster tasks.
type Agent struct {
	Deps
	cfg Config
	log logger.Logger
	now func() time.Time
}

var (
	_ task.Agent             = (*Agent)(nil)
	_ task.ForecasterHandler = (*Agent)(nil)
)

func New(deps Deps, cfg Config, log logger.Logger) *Agent {
	if cfg.ThresholdDays <= 0 {
		cfg.ThresholdDays = forecast.DefaultThresholdDays
	}
	return &Agent{
		Deps: deps,
		cfg:  cfg,
		log:  logger.ForAgent(log, string(task.AgentForecaster)),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (a *Agent) Type() task.AgentType { return task.AgentForecaster }

// Initialize is a no-op: the forecaster holds no external resources.
func (a *Agent) Initialize(context.Context) error { return nil }

func (a *Agent) Shutdown(context.Context) error { return nil }

func (a *Agent) HealthCheck(context.Context) error { return nil }

func (a *Agent) ExecuteTask(ctx context.Context, t task.Task) task.Result {
	return task.DispatchForecaster(ctx, t, a)
}

// InventoryReport is the urgency view of an organization's stock.
type InventoryReport struct {
	Items    []forecast.ItemStatus `json:"items"`
	Critical int                   `json:"critical"`
	Warning  int                   `json:"warning"`
	OK       int                   `json:"ok"`
}

// ItemPrediction is the stockout outlook of one at-risk item.
type ItemPrediction struct {
	InventoryItemID   uuid.UUID           `json:"inventory_item_id"`
	SKU               string              `json:"sku"`
	Name              string              `json:"name"`
	Urgency           models.Urgency      `json:"urgency"`
	Prediction        forecast.Prediction `json:"prediction"`
	SuggestedAction   string              `json:"suggested_action"`
	SuggestedQuantity int                 `json:"suggested_quantity"`
}

// SuggestionReport groups urgent items under their cheapest supplier.
type SuggestionReport struct {
	Suppliers  []forecast.SupplierSuggestion `json:"suppliers"`
	Unsourced  []uuid.UUID                   `json:"unsourced,omitempty"`
	TotalValue decimal.Decimal               `json:"total_value"`
}

func (a *Agent) AnalyzeInventory(ctx context.Context, p task.AnalyzeInventoryPayload) task.Result {
	statuses, err := a.assess(ctx, p.OrganizationID, a.cfg.ThresholdDays)
	if err != nil {
		return task.Fail(err)
	}

	report := InventoryReport{Items: make([]forecast.ItemStatus, 0, len(statuses))}
	for _, st := range statuses {
		if err := a.Inventory.UpdateAverageDailyUsage(ctx, st.status.InventoryItemID, st.status.DailyUsage); err != nil {
			return task.Fail(err)
		}
		switch st.status.Urgency {
		case models.UrgencyCritical:
			report.Critical++
		case models.UrgencyWarning:
			report.Warning++
		default:
			report.OK++
		}
		report.Items = append(report.Items, st.status)
	}
	forecast.SortByUrgency(report.Items)
	a.log.InfoContext(ctx, "inventory analyzed", "org_id", p.OrganizationID,
		"items", len(report.Items), "critical", report.Critical, "warning", report.Warning)
	return task.OK(report)
}

// PredictStockouts replaces the organization's open predictions with one per
// at-risk item.
func (a *Agent) PredictStockouts(ctx context.Context, p task.PredictStockoutsPayload) task.Result {
	threshold := p.ThresholdDays
	if threshold <= 0 {
		threshold = a.cfg.ThresholdDays
	}
	statuses, err := a.assess(ctx, p.OrganizationID, threshold)
	if err != nil {
		return task.Fail(err)
	}

	now := a.now()
	var out []ItemPrediction
	var rows []models.StockoutPrediction
	for _, st := range statuses {
		item := st.item
		pred := forecast.Predict(item.Available(), st.status.DailyUsage, st.status.Trend, now)
		urgency := forecast.Classify(pred.DaysUntilStockout, item.CurrentStock, item.ReorderPoint, threshold)
		if urgency == models.UrgencyOK {
			continue
		}
		ip := ItemPrediction{
			InventoryItemID:   item.ID,
			SKU:               item.SKU,
			Name:              item.Name,
			Urgency:           urgency,
			Prediction:        pred,
			SuggestedAction:   forecast.SuggestedAction(urgency),
			SuggestedQuantity: forecast.OrderQuantity(item),
		}
		out = append(out, ip)
		rows = append(rows, models.StockoutPrediction{
			ID:                uuid.New(),
			OrganizationID:    p.OrganizationID,
			InventoryItemID:   item.ID,
			DaysUntilStockout: pred.DaysUntilStockout,
			PredictedDate:     pred.StockoutDate,
			ReorderBy:         pred.ReorderBy,
			Confidence:        pred.Confidence,
			Urgency:           urgency,
			SuggestedAction:   ip.SuggestedAction,
			SuggestedQuantity: ip.SuggestedQuantity,
			CreatedAt:         now,
		})
	}
	if err := a.Forecasts.ReplacePredictions(ctx, p.OrganizationID, rows); err != nil {
		return task.Fail(err)
	}
	return task.OK(out).With("at_risk", len(out))
}

func (a *Agent) AnalyzeDemand(ctx context.Context, p task.AnalyzeDemandPayload) task.Result {
	item, err := a.Inventory.GetItem(ctx, p.InventoryItemID)
	if err != nil {
		return task.Fail(err)
	}
	if item.OrganizationID != p.OrganizationID {
		return task.Fail(domain.ErrInventoryItemNotFound)
	}
	now := a.now()
	movements, err := a.Inventory.ListMovements(ctx, item.ID, now.Add(-HistoryWindow))
	if err != nil {
		return task.Fail(err)
	}
	return task.OK(forecast.AnalyzeDemand(movements, now, p.WeeksAhead)).With("sku", item.SKU)
}

// OptimizeReorderPoints stores a suggestion for every item whose computed
// policy moves more than 10% away from the current one. Items themselves are
// left unchanged.
func (a *Agent) OptimizeReorderPoints(ctx context.Context, p task.OptimizeReorderPointsPayload) task.Result {
	if _, err := a.Organizations.GetByID(ctx, p.OrganizationID); err != nil {
		return task.Fail(err)
	}
	items, err := a.Inventory.ListItems(ctx, p.OrganizationID)
	if err != nil {
		return task.Fail(err)
	}
	orderingCost := pick(p.OrderingCost, a.cfg.OrderingCost)
	holdingRate := pick(p.HoldingCostRate, a.cfg.HoldingCostRate)

	now := a.now()
	var suggestions []models.ReorderPolicySuggestion
	for _, item := range items {
		movements, err := a.Inventory.ListMovements(ctx, item.ID, now.Add(-HistoryWindow))
		if err != nil {
			return task.Fail(err)
		}
		mean, stddev := forecast.DailyDemandStats(movements, now)
		if mean == 0 {
			continue
		}
		product, err := a.Catalog.GetProduct(ctx, item.ProductID)
		if err != nil {
			return task.Fail(err)
		}
		unitCost, _ := product.UnitCost.Float64()

		lead := p.LeadTimeDays
		if lead <= 0 {
			lead = item.LeadTimeDays
		}
		if lead <= 0 {
			lead = a.cfg.DefaultLeadTimeDays
		}
		policy := forecast.OptimizePolicy(forecast.PolicyInput{
			DailyDemand:     mean,
			DemandStdDev:    stddev,
			LeadTimeDays:    lead,
			UnitCost:        unitCost,
			OrderingCost:    orderingCost,
			HoldingCostRate: holdingRate,
		})
		quantity := policy.OrderQuantity
		if quantity == 0 {
			quantity = item.ReorderQuantity
		}
		if !forecast.DiffersSignificantly(item.ReorderPoint, policy.ReorderPoint) &&
			!forecast.DiffersSignificantly(item.ReorderQuantity, quantity) {
			continue
		}
		suggestions = append(suggestions, models.ReorderPolicySuggestion{
			ID:                       uuid.New(),
			OrganizationID:           p.OrganizationID,
			InventoryItemID:          item.ID,
			CurrentReorderPoint:      item.ReorderPoint,
			SuggestedReorderPoint:    policy.ReorderPoint,
			CurrentReorderQuantity:   item.ReorderQuantity,
			SuggestedReorderQuantity: quantity,
			SafetyStock:              int(policy.SafetyStock + 0.5),
			Reason: fmt.Sprintf("daily demand %.2f (sd %.2f) over %d day lead time",
				policy.DailyDemand, policy.DemandStdDev, lead),
			CreatedAt: now,
		})
	}
	if len(suggestions) > 0 {
		if err := a.Forecasts.SaveReorderSuggestions(ctx, suggestions); err != nil {
			return task.Fail(err)
		}
	}
	return task.OK(suggestions).With("items", len(items))
}

// GenerateSuggestions sources every critical or warning item from its
// cheapest in-stock offer.
func (a *Agent) GenerateSuggestions(ctx context.Context, p task.GenerateSuggestionsPayload) task.Result {
	statuses, err := a.assess(ctx, p.OrganizationID, a.cfg.ThresholdDays)
	if err != nil {
		return task.Fail(err)
	}
	var urgent []forecast.UrgentItem
	productIDs := make([]uuid.UUID, 0, len(statuses))
	for _, st := range statuses {
		if st.status.Urgency == models.UrgencyOK {
			continue
		}
		urgent = append(urgent, forecast.UrgentItem{Item: st.item, Urgency: st.status.Urgency})
		productIDs = append(productIDs, st.item.ProductID)
	}

	report := SuggestionReport{Suppliers: []forecast.SupplierSuggestion{}, TotalValue: decimal.Zero}
	if len(urgent) == 0 {
		return task.OK(report)
	}
	offers, err := a.Catalog.ListOffersForProducts(ctx, p.OrganizationID, productIDs)
	if err != nil {
		return task.Fail(err)
	}
	report.Suppliers, report.Unsourced = forecast.GroupBySupplier(urgent, offers)
	for _, s := range report.Suppliers {
		report.TotalValue = report.TotalValue.Add(s.TotalValue)
	}
	return task.OK(report)
}

type assessed struct {
	item   *models.InventoryItem
	status forecast.ItemStatus
}

func (a *Agent) assess(ctx context.Context, orgID uuid.UUID, threshold int) ([]assessed, error) {
	if _, err := a.Organizations.GetByID(ctx, orgID); err != nil {
		return nil, err
	}
	items, err := a.Inventory.ListItems(ctx, orgID)
	if err != nil {
		return nil, err
	}
	now := a.now()
	out := make([]assessed, 0, len(items))
	for _, item := range items {
		movements, err := a.Inventory.ListMovements(ctx, item.ID, now.Add(-HistoryWindow))
		if err != nil {
			return nil, err
		}
		out = append(out, assessed{item: item, status: forecast.Assess(item, movements, threshold, now)})
	}
	return out, nil
}

func pick(override, fallback float64) float64 {
	if override > 0 {
		return override
	}
	return fallback
}
