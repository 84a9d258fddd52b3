package forecast

import (
	"encoding/json"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ghuser/procureflow/services/procurement/domain/models"
)

var now = time.Date(2026, 3, 16, 12, 0, 0, 0, time.UTC)

func out(qty int, ago time.Duration) models.StockMovement {
	return models.StockMovement{ID: uuid.New(), Type: models.MovementOut, Quantity: -qty, CreatedAt: now.Add(-ago)}
}

func in(qty int, ago time.Duration) models.StockMovement {
	return models.StockMovement{ID: uuid.New(), Type: models.MovementIn, Quantity: qty, CreatedAt: now.Add(-ago)}
}

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-6 }

func TestPredictDaysUntilStockout(t *testing.T) {
	if got := PredictDaysUntilStockout(100, 10); got != 10 {
		t.Fatalf("PredictDaysUntilStockout(100, 10) = %v, want 10", got)
	}
	if got := PredictDaysUntilStockout(100, 0); !math.IsInf(got, 1) {
		t.Fatalf("PredictDaysUntilStockout(100, 0) = %v, want +Inf", got)
	}
	if got := PredictDaysUntilStockout(0, 5); got != 0 {
		t.Fatalf("empty stock = %v, want 0", got)
	}
}

func TestDailyUsageRate(t *testing.T) {
	tests := []struct {
		name string
		movs []models.StockMovement
		want float64
	}{
		{"no movements", nil, 0},
		{"inbound ignored", []models.StockMovement{in(50, 8*day)}, 0},
		{"span from oldest outbound", []models.StockMovement{out(10, 10*day), out(20, 5*day), in(50, 8*day)}, 3},
		{"minimum one day", []models.StockMovement{out(6, time.Hour)}, 6},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DailyUsageRate(tt.movs, now); !approx(got, tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTrend(t *testing.T) {
	if got := Trend([]models.StockMovement{out(10, 10*day), out(20, 2*day)}, now); !approx(got, 1) {
		t.Fatalf("trend = %v, want 1", got)
	}
	if got := Trend(nil, now); got != 0 {
		t.Fatalf("empty first half must give 0, got %v", got)
	}
}

func TestPredict(t *testing.T) {
	p := Predict(100, 10, 0, now)
	if !approx(p.DaysUntilStockout, 10) || !approx(p.Confidence, 0.75) {
		t.Fatalf("got %+v", p)
	}
	if !p.StockoutDate.Equal(now.Add(10*day)) || !p.ReorderBy.Equal(now.Add(3*day)) {
		t.Fatalf("dates = %v / %v", p.StockoutDate, p.ReorderBy)
	}

	soon := Predict(20, 10, 0, now)
	if !soon.ReorderBy.Equal(now) {
		t.Fatalf("reorder date must be floored at now, got %v", soon.ReorderBy)
	}

	trending := Predict(100, 10, 1, now)
	if !approx(trending.DaysUntilStockout, (10+100.0/15)/2) {
		t.Fatalf("trend-adjusted days = %v", trending.DaysUntilStockout)
	}

	idle := Predict(100, 0, 0, now)
	if !math.IsInf(idle.DaysUntilStockout, 1) || idle.StockoutDate != nil || idle.ReorderBy != nil {
		t.Fatalf("idle item must have no dates: %+v", idle)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		days      float64
		stock, rp int
		want      models.Urgency
	}{
		{"critical", 2, 50, 10, models.UrgencyCritical},
		{"critical boundary", 3, 50, 10, models.UrgencyCritical},
		{"within threshold", 10, 50, 10, models.UrgencyWarning},
		{"at reorder point", 20, 8, 8, models.UrgencyWarning},
		{"healthy", 20, 9, 8, models.UrgencyOK},
		{"no consumption", math.Inf(1), 100, 10, models.UrgencyOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.days, tt.stock, tt.rp, 14); got != tt.want {
				t.Fatalf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestClassify_Monotonic(t *testing.T) {
	prev := -1
	for days := 40.0; days >= 0; days -= 0.25 {
		sev := Classify(days, 50, 10, 14).Severity()
		if sev < prev {
			t.Fatalf("severity decreased at %.2f days: %d -> %d", days, prev, sev)
		}
		prev = sev
	}
}

func TestSortByUrgency(t *testing.T) {
	items := []ItemStatus{
		{SKU: "ok", Urgency: models.UrgencyOK, DaysOfStock: 50},
		{SKU: "warn-late", Urgency: models.UrgencyWarning, DaysOfStock: 12},
		{SKU: "crit", Urgency: models.UrgencyCritical, DaysOfStock: 2},
		{SKU: "warn-early", Urgency: models.UrgencyWarning, DaysOfStock: 5},
	}
	SortByUrgency(items)
	want := []string{"crit", "warn-early", "warn-late", "ok"}
	for i, sku := range want {
		if items[i].SKU != sku {
			t.Fatalf("position %d = %s, want %s", i, items[i].SKU, sku)
		}
	}
}

func TestAssess_AtReorderPointIsWarning(t *testing.T) {
	item := &models.InventoryItem{ID: uuid.New(), CurrentStock: 8, ReorderPoint: 8, ReorderQuantity: 15}
	// 0.25 units/day over 20 days, 32 days of stock left.
	status := Assess(item, []models.StockMovement{out(5, 20*day)}, 14, now)
	if status.Urgency != models.UrgencyWarning {
		t.Fatalf("urgency = %s (days %.1f), want warning", status.Urgency, status.DaysOfStock)
	}
}

func TestOptimizePolicy_Deterministic(t *testing.T) {
	in := PolicyInput{DailyDemand: 10, DemandStdDev: 2, LeadTimeDays: 4, UnitCost: 20, OrderingCost: 50, HoldingCostRate: 0.25}
	first := OptimizePolicy(in)
	second := OptimizePolicy(in)
	if first != second {
		t.Fatalf("policy differs between runs: %+v vs %+v", first, second)
	}
	if !approx(first.SafetyStock, 6.6) || first.ReorderPoint != 47 || first.OrderQuantity != 271 {
		t.Fatalf("got %+v", first)
	}
}

func TestEOQ_NonPositiveInputs(t *testing.T) {
	cases := [][4]float64{{0, 50, 0.25, 10}, {100, 0, 0.25, 10}, {100, 50, 0, 10}, {100, 50, 0.25, 0}}
	for _, c := range cases {
		if got := EOQ(c[0], c[1], c[2], c[3]); got != 0 {
			t.Errorf("EOQ(%v) = %d, want 0", c, got)
		}
	}
}

func TestDiffersSignificantly(t *testing.T) {
	tests := []struct {
		cur, sug int
		want     bool
	}{
		{100, 111, true},
		{100, 110, false},
		{100, 89, true},
		{0, 5, true},
		{0, 0, false},
	}
	for _, tt := range tests {
		if got := DiffersSignificantly(tt.cur, tt.sug); got != tt.want {
			t.Errorf("DiffersSignificantly(%d, %d) = %v, want %v", tt.cur, tt.sug, got, tt.want)
		}
	}
}

func TestAnalyzeDemand(t *testing.T) {
	half := 12 * time.Hour
	rising := []models.StockMovement{
		out(10, 3*week+half), out(10, 2*week+half), out(20, week+half), out(20, half),
	}
	p := AnalyzeDemand(rising, now, 0)
	if len(p.WeeklyDemand) != 4 || p.WeeklyDemand[0] != 10 || p.WeeklyDemand[3] != 20 {
		t.Fatalf("weekly = %v", p.WeeklyDemand)
	}
	if p.Trend != TrendIncreasing || !approx(p.TrendRate, 1) {
		t.Fatalf("trend = %s (%v)", p.Trend, p.TrendRate)
	}
	if !approx(p.Volatility, 5) || !approx(p.Seasonality, 1.0/3) {
		t.Fatalf("volatility = %v seasonality = %v", p.Volatility, p.Seasonality)
	}
	if len(p.Forecast) != DefaultWeeksAhead || p.Forecast[1] <= p.Forecast[0] {
		t.Fatalf("forecast = %v", p.Forecast)
	}

	flat := AnalyzeDemand([]models.StockMovement{
		out(10, 3*week+half), out(10, 2*week+half), out(10, week+half), out(10, half),
	}, now, 2)
	if flat.Trend != TrendStable || flat.Seasonality != 0 {
		t.Fatalf("flat = %+v", flat)
	}
	for _, f := range flat.Forecast {
		if f != 10 {
			t.Fatalf("flat forecast = %v", flat.Forecast)
		}
	}

	falling := AnalyzeDemand([]models.StockMovement{out(20, 2*week+half), out(20, week+half), out(5, half)}, now, 1)
	if falling.Trend != TrendDecreasing {
		t.Fatalf("falling trend = %s", falling.Trend)
	}
}

func TestGroupBySupplier(t *testing.T) {
	s1, s2, s3 := uuid.New(), uuid.New(), uuid.New()
	p1, p2, p3 := uuid.New(), uuid.New(), uuid.New()
	mk := func(supplier uuid.UUID, name, price string, inStock bool) models.Offer {
		return models.Offer{
			SupplierProduct: models.SupplierProduct{SupplierID: supplier, UnitPrice: decimal.RequireFromString(price), InStock: inStock},
			SupplierName:    name,
		}
	}
	offers := map[uuid.UUID][]models.Offer{
		p1: {mk(s1, "Acme", "10", true), mk(s2, "Bolt", "9", false), mk(s3, "Cog", "11", true)},
		p2: {mk(s1, "Acme", "5", true)},
	}
	items := []UrgentItem{
		{Item: &models.InventoryItem{ID: uuid.New(), ProductID: p1, CurrentStock: 8, ReorderPoint: 8, ReorderQuantity: 15}, Urgency: models.UrgencyWarning},
		{Item: &models.InventoryItem{ID: uuid.New(), ProductID: p2, CurrentStock: 1, ReorderPoint: 5, ReorderQuantity: 4}, Urgency: models.UrgencyCritical},
		{Item: &models.InventoryItem{ID: uuid.New(), ProductID: p3, CurrentStock: 0, ReorderPoint: 5}, Urgency: models.UrgencyCritical},
	}

	groups, unsourced := GroupBySupplier(items, offers)
	if len(groups) != 1 || groups[0].SupplierID != s1 || len(groups[0].Lines) != 2 {
		t.Fatalf("groups = %+v", groups)
	}
	if groups[0].Lines[0].Quantity != 15 {
		t.Fatalf("quantity = %d, want reorder quantity 15", groups[0].Lines[0].Quantity)
	}
	if !groups[0].TotalValue.Equal(decimal.NewFromInt(170)) {
		t.Fatalf("total = %s, want 170", groups[0].TotalValue)
	}
	if len(unsourced) != 1 || unsourced[0] != items[2].Item.ID {
		t.Fatalf("unsourced = %v", unsourced)
	}
}

func TestOrderQuantity_Fallback(t *testing.T) {
	item := &models.InventoryItem{CurrentStock: 2, ReorderPoint: 10, SafetyStock: 3}
	if got := OrderQuantity(item); got != 11 {
		t.Fatalf("got %d, want 11", got)
	}
}

func TestItemStatus_InfiniteDaysEncodeAsNull(t *testing.T) {
	b, err := json.Marshal(ItemStatus{SKU: "IDLE", DaysOfStock: math.Inf(1), Urgency: models.UrgencyOK})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(b), `"days_of_stock":null`) || !strings.Contains(string(b), `"sku":"IDLE"`) {
		t.Fatalf("encoded = %s", b)
	}

	b, err = json.Marshal(Prediction{DaysUntilStockout: 10, Confidence: 0.75})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(b), `"days_until_stockout":10`) {
		t.Fatalf("encoded = %s", b)
	}
}
