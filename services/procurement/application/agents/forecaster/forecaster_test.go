package forecaster

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ghuser/procureflow/pkg/logger"
	"github.com/ghuser/procureflow/services/procurement/domain"
	"github.com/ghuser/procureflow/services/procurement/domain/forecast"
	"github.com/ghuser/procureflow/services/procurement/domain/models"
	"github.com/ghuser/procureflow/services/procurement/domain/task"
	"github.com/ghuser/procureflow/services/procurement/infrastructure/persistence/memory"
)

var now = time.Date(2026, 3, 16, 12, 0, 0, 0, time.UTC)

type fixture struct {
	store *memory.Store
	agent *Agent
	org   uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{store: memory.New(), org: uuid.New()}
	f.store.AddOrganization(models.Organization{ID: f.org, Name: "Acme"})
	f.agent = New(Deps{
		Organizations: f.store.Organizations(),
		Inventory:     f.store.Inventory(),
		Catalog:       f.store.Catalog(),
		Forecasts:     f.store.Forecasts(),
	}, Config{ThresholdDays: 14, OrderingCost: 50, HoldingCostRate: 0.25, DefaultLeadTimeDays: 7}, logger.Nop())
	f.agent.now = func() time.Time { return now }
	return f
}

func (f *fixture) item(sku string, stock, reorderPoint, reorderQty int) *models.InventoryItem {
	product := uuid.New()
	f.store.AddProduct(models.Product{ID: product, OrganizationID: f.org, SKU: sku, Name: sku, UnitCost: decimal.NewFromInt(2)})
	it := models.InventoryItem{
		ID: uuid.New(), OrganizationID: f.org, ProductID: product, SKU: sku, Name: sku,
		CurrentStock: stock, ReorderPoint: reorderPoint, ReorderQuantity: reorderQty,
	}
	f.store.AddInventoryItem(it)
	return &it
}

func (f *fixture) consume(item *models.InventoryItem, qty int, ago time.Duration) {
	f.store.AddMovement(models.StockMovement{ID: uuid.New(), InventoryItemID: item.ID, Type: models.MovementOut, Quantity: -qty, CreatedAt: now.Add(-ago)})
}

const day = 24 * time.Hour

func TestAnalyzeInventory_ClassifiesAndSorts(t *testing.T) {
	f := newFixture(t)
	f.item("A-OK", 1000, 10, 50)
	f.item("B-AT-RP", 8, 8, 15)
	crit := f.item("C-CRIT", 6, 0, 20)
	f.consume(crit, 30, 10*day)

	res := f.agent.ExecuteTask(context.Background(), task.New(task.AnalyzeInventoryPayload{OrganizationID: f.org}, 2))
	if !res.Success {
		t.Fatalf("analyze failed: %s", res.Error)
	}
	report := res.Data.(InventoryReport)
	if report.Critical != 1 || report.Warning != 1 || report.OK != 1 {
		t.Fatalf("report counts = %+v", report)
	}
	if report.Items[0].SKU != "C-CRIT" || report.Items[1].SKU != "B-AT-RP" {
		t.Fatalf("order = %s, %s", report.Items[0].SKU, report.Items[1].SKU)
	}
	stored, _ := f.store.Inventory().GetItem(context.Background(), crit.ID)
	if stored.AverageDailyUsage != 3 {
		t.Errorf("average daily usage = %v, want 3", stored.AverageDailyUsage)
	}
	if _, err := json.Marshal(res); err != nil {
		t.Fatalf("result with idle items must encode: %v", err)
	}
}

func TestPredictStockouts_PersistsAtRiskOnly(t *testing.T) {
	f := newFixture(t)
	f.item("A-OK", 1000, 10, 50)
	atRP := f.item("B-AT-RP", 8, 8, 15)

	res := f.agent.PredictStockouts(context.Background(), task.PredictStockoutsPayload{OrganizationID: f.org})
	if !res.Success {
		t.Fatalf("predict failed: %s", res.Error)
	}
	preds := res.Data.([]ItemPrediction)
	if len(preds) != 1 || preds[0].InventoryItemID != atRP.ID {
		t.Fatalf("predictions = %+v", preds)
	}
	if preds[0].Urgency != models.UrgencyWarning || preds[0].SuggestedQuantity != 15 {
		t.Fatalf("prediction = %+v", preds[0])
	}
	if _, err := json.Marshal(res); err != nil {
		t.Fatalf("infinite stockout estimate must encode: %v", err)
	}

	stored, _ := f.store.Forecasts().ListPredictions(context.Background(), f.org)
	if len(stored) != 1 || stored[0].SuggestedAction != "schedule_reorder" {
		t.Fatalf("stored = %+v", stored)
	}
}

func TestAnalyzeDemand_ScopedToOrganization(t *testing.T) {
	f := newFixture(t)
	it := f.item("A", 100, 10, 20)
	for w := 0; w < 4; w++ {
		f.consume(it, 10, time.Duration(w)*7*day+time.Hour)
	}

	res := f.agent.AnalyzeDemand(context.Background(), task.AnalyzeDemandPayload{OrganizationID: f.org, InventoryItemID: it.ID, WeeksAhead: 2})
	if !res.Success {
		t.Fatalf("demand failed: %s", res.Error)
	}
	pattern := res.Data.(forecast.DemandPattern)
	if len(pattern.Forecast) != 2 || pattern.Trend != forecast.TrendStable {
		t.Fatalf("pattern = %+v", pattern)
	}

	other := f.agent.AnalyzeDemand(context.Background(), task.AnalyzeDemandPayload{OrganizationID: uuid.New(), InventoryItemID: it.ID})
	if other.Success || other.Error != domain.ErrInventoryItemNotFound.Error() {
		t.Fatalf("foreign org result = %+v", other)
	}
}

func TestOptimizeReorderPoints_SuggestsOnlySignificantChanges(t *testing.T) {
	f := newFixture(t)
	busy := f.item("BUSY", 100, 0, 0)
	for d := 0; d < 10; d++ {
		f.consume(busy, 10, time.Duration(d)*day+time.Hour)
	}
	f.item("IDLE", 100, 5, 10)

	res := f.agent.OptimizeReorderPoints(context.Background(), task.OptimizeReorderPointsPayload{OrganizationID: f.org})
	if !res.Success {
		t.Fatalf("optimize failed: %s", res.Error)
	}
	got := res.Data.([]models.ReorderPolicySuggestion)
	if len(got) != 1 || got[0].InventoryItemID != busy.ID || got[0].SuggestedReorderPoint <= 0 || got[0].SuggestedReorderQuantity <= 0 {
		t.Fatalf("suggestions = %+v", got)
	}
	if len(f.store.Forecasts().ReorderSuggestions()) != 1 {
		t.Fatal("suggestions must be stored")
	}
	stored, _ := f.store.Inventory().GetItem(context.Background(), busy.ID)
	if stored.ReorderPoint != 0 {
		t.Fatal("the item's own policy must not be rewritten")
	}
}

func TestGenerateSuggestions_GroupsByCheapestSupplier(t *testing.T) {
	f := newFixture(t)
	atRP := f.item("B-AT-RP", 8, 8, 15)
	f.item("A-OK", 1000, 10, 50)

	cheap, dear := uuid.New(), uuid.New()
	f.store.AddSupplier(models.Supplier{ID: cheap, OrganizationID: f.org, Name: "Cheap", Active: true})
	f.store.AddSupplier(models.Supplier{ID: dear, OrganizationID: f.org, Name: "Dear", Active: true})
	f.store.AddSupplierProduct(models.SupplierProduct{ID: uuid.New(), SupplierID: cheap, ProductID: atRP.ProductID, UnitPrice: decimal.NewFromInt(4), InStock: true})
	f.store.AddSupplierProduct(models.SupplierProduct{ID: uuid.New(), SupplierID: dear, ProductID: atRP.ProductID, UnitPrice: decimal.NewFromInt(5), InStock: true})

	res := f.agent.GenerateSuggestions(context.Background(), task.GenerateSuggestionsPayload{OrganizationID: f.org})
	if !res.Success {
		t.Fatalf("suggestions failed: %s", res.Error)
	}
	report := res.Data.(SuggestionReport)
	if len(report.Suppliers) != 1 || report.Suppliers[0].SupplierID != cheap {
		t.Fatalf("report = %+v", report)
	}
	if line := report.Suppliers[0].Lines[0]; line.Quantity != 15 || !report.TotalValue.Equal(decimal.NewFromInt(60)) {
		t.Fatalf("line = %+v, total = %s", line, report.TotalValue)
	}
}

func TestUnknownOrganization(t *testing.T) {
	f := newFixture(t)
	res := f.agent.AnalyzeInventory(context.Background(), task.AnalyzeInventoryPayload{OrganizationID: uuid.New()})
	if res.Success || res.Retryable || res.Error != domain.ErrOrganizationNotFound.Error() {
		t.Fatalf("result = %+v", res)
	}
}
