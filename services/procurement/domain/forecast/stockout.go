package forecast

import (
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/ghuser/procureflow/services/procurement/domain/models"
)

const (
	simpleConfidence     = 0.7
	trendConfidence      = 0.8
	trendWeight          = 0.5
	reorderLeadBuffer    = 7 * day
	criticalDays         = 3
	DefaultThresholdDays = 14
)

// PredictDaysUntilStockout projects how long stock lasts at dailyRate.
// A non-positive rate never runs out and yields +Inf.
func PredictDaysUntilStockout(stock, dailyRate float64) float64 {
	if dailyRate <= 0 {
		return math.Inf(1)
	}
	if stock <= 0 {
		return 0
	}
	return stock / dailyRate
}

// Prediction is the combined stockout estimate for one item.
type Prediction struct {
	DaysUntilStockout float64    `json:"days_until_stockout"`
	Confidence        float64    `json:"confidence"`
	StockoutDate      *time.Time `json:"stockout_date,omitempty"`
	ReorderBy         *time.Time `json:"reorder_by,omitempty"`
}

// Predict averages the simple projection with a trend-adjusted one. The
// reorder date is the stockout date minus a seven day buffer, never earlier
// than now.
func Predict(available int, dailyRate, trend float64, now time.Time) Prediction {
	stock := math.Max(float64(available), 0)
	simple := PredictDaysUntilStockout(stock, dailyRate)

	adjustedRate := math.Max(dailyRate*(1+trend*trendWeight), 0)
	adjusted := PredictDaysUntilStockout(stock, adjustedRate)

	p := Prediction{
		DaysUntilStockout: (simple + adjusted) / 2,
		Confidence:        (simpleConfidence + trendConfidence) / 2,
	}
	if math.IsInf(p.DaysUntilStockout, 1) {
		return p
	}
	date := now.Add(time.Duration(p.DaysUntilStockout * float64(day)))
	reorder := date.Add(-reorderLeadBuffer)
	if reorder.Before(now) {
		reorder = now
	}
	p.StockoutDate = &date
	p.ReorderBy = &reorder
	return p
}

// Classify assigns an urgency tier. The first matching rule wins.
func Classify(daysOfStock float64, currentStock, reorderPoint, thresholdDays int) models.Urgency {
	if thresholdDays <= 0 {
		thresholdDays = DefaultThresholdDays
	}
	switch {
	case daysOfStock <= criticalDays:
		return models.UrgencyCritical
	case daysOfStock <= float64(thresholdDays) || currentStock <= reorderPoint:
		return models.UrgencyWarning
	default:
		return models.UrgencyOK
	}
}

// ItemStatus is the forecast view of one inventory item.
type ItemStatus struct {
	InventoryItemID uuid.UUID      `json:"inventory_item_id"`
	SKU             string         `json:"sku"`
	Name            string         `json:"name"`
	CurrentStock    int            `json:"current_stock"`
	Available       int            `json:"available"`
	ReorderPoint    int            `json:"reorder_point"`
	DailyUsage      float64        `json:"daily_usage"`
	Trend           float64        `json:"trend"`
	DaysOfStock     float64        `json:"days_of_stock"`
	Urgency         models.Urgency `json:"urgency"`
}

// Assess computes the status of item from its movements.
func Assess(item *models.InventoryItem, movements []models.StockMovement, thresholdDays int, now time.Time) ItemStatus {
	rate := DailyUsageRate(movements, now)
	days := PredictDaysUntilStockout(math.Max(float64(item.Available()), 0), rate)
	return ItemStatus{
		InventoryItemID: item.ID,
		SKU:             item.SKU,
		Name:            item.Name,
		CurrentStock:    item.CurrentStock,
		Available:       item.Available(),
		ReorderPoint:    item.ReorderPoint,
		DailyUsage:      rate,
		Trend:           Trend(movements, now),
		DaysOfStock:     days,
		Urgency:         Classify(days, item.CurrentStock, item.ReorderPoint, thresholdDays),
	}
}

// SortByUrgency orders critical first, then warning, then ok; within a tier
// fewer days of stock come first.
func SortByUrgency(items []ItemStatus) {
	sort.SliceStable(items, func(i, j int) bool {
		si, sj := items[i].Urgency.Severity(), items[j].Urgency.Severity()
		if si != sj {
			return si > sj
		}
		return items[i].DaysOfStock < items[j].DaysOfStock
	})
}

// SuggestedAction names what a buyer should do for an urgency tier.
func SuggestedAction(u models.Urgency) string {
	switch u {
	case models.UrgencyCritical:
		return "order_immediately"
	case models.UrgencyWarning:
		return "schedule_reorder"
	default:
		return "monitor"
	}
}
