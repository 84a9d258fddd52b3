package forecast

import (
	"math"
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ghuser/procureflow/services/procurement/domain/models"
	domainsvcs "github.com/ghuser/procureflow/services/procurement/domain/services"
)

const (
	serviceLevelZ   = 1.65 // ~95% service level
	changeTolerance = 0.10
	daysPerYear     = 365
)

// PolicyInput is everything the reorder-point model needs.
type PolicyInput struct {
	DailyDemand     float64
	DemandStdDev    float64
	LeadTimeDays    int
	UnitCost        float64
	OrderingCost    float64
	HoldingCostRate float64
}

// Policy is a computed reorder policy.
type Policy struct {
	SafetyStock   float64 `json:"safety_stock"`
	ReorderPoint  int     `json:"reorder_point"`
	OrderQuantity int     `json:"order_quantity"` // EOQ
	AnnualDemand  float64 `json:"annual_demand"`
	LeadTimeDays  int     `json:"lead_time_days"`
	DailyDemand   float64 `json:"daily_demand"`
	DemandStdDev  float64 `json:"demand_std_dev"`
}

// OptimizePolicy computes safety stock, reorder point and EOQ. The result is
// a pure function of in.
func OptimizePolicy(in PolicyInput) Policy {
	lead := float64(in.LeadTimeDays)
	safety := serviceLevelZ * in.DemandStdDev * math.Sqrt(lead)
	annual := in.DailyDemand * daysPerYear
	return Policy{
		SafetyStock:   safety,
		ReorderPoint:  int(math.Ceil(in.DailyDemand*lead + safety)),
		OrderQuantity: EOQ(annual, in.OrderingCost, in.HoldingCostRate, in.UnitCost),
		AnnualDemand:  annual,
		LeadTimeDays:  in.LeadTimeDays,
		DailyDemand:   in.DailyDemand,
		DemandStdDev:  in.DemandStdDev,
	}
}

// EOQ is the simplified economic order quantity. Any non-positive input
// yields 0.
func EOQ(annualDemand, orderingCost, holdingCostRate, unitCost float64) int {
	holding := holdingCostRate * unitCost
	if annualDemand <= 0 || orderingCost <= 0 || holding <= 0 {
		return 0
	}
	return int(math.Ceil(math.Sqrt(2 * annualDemand * orderingCost / holding)))
}

// DiffersSignificantly reports whether suggested moves more than 10% away
// from current. Any positive suggestion differs from a zero policy.
func DiffersSignificantly(current, suggested int) bool {
	if current == 0 {
		return suggested > 0
	}
	return math.Abs(float64(suggested-current))/float64(current) > changeTolerance
}

// UrgentItem is an item that needs replenishing.
type UrgentItem struct {
	Item    *models.InventoryItem
	Urgency models.Urgency
}

// OrderQuantity is the configured reorder quantity, or enough to get back
// above the reorder point plus safety stock when none is configured.
func OrderQuantity(item *models.InventoryItem) int {
	if item.ReorderQuantity > 0 {
		return item.ReorderQuantity
	}
	q := item.ReorderPoint + item.SafetyStock - item.Available()
	if q < 1 {
		q = 1
	}
	return q
}

// SuggestionLine is one product on a consolidated purchase suggestion.
type SuggestionLine struct {
	InventoryItemID uuid.UUID       `json:"inventory_item_id"`
	ProductID       uuid.UUID       `json:"product_id"`
	SKU             string          `json:"sku"`
	Name            string          `json:"name"`
	Quantity        int             `json:"quantity"`
	UnitPrice       decimal.Decimal `json:"unit_price"`
	LineTotal       decimal.Decimal `json:"line_total"`
	Urgency         models.Urgency  `json:"urgency"`
}

// SupplierSuggestion groups every line sourced from one supplier.
type SupplierSuggestion struct {
	SupplierID   uuid.UUID        `json:"supplier_id"`
	SupplierName string           `json:"supplier_name"`
	Lines        []SuggestionLine `json:"lines"`
	TotalValue   decimal.Decimal  `json:"total_value"`
}

// GroupBySupplier sources each urgent item from its cheapest in-stock offer
// and consolidates lines per supplier, largest order first. Items without any
// in-stock offer are returned as unsourced.
func GroupBySupplier(items []UrgentItem, offers map[uuid.UUID][]models.Offer) ([]SupplierSuggestion, []uuid.UUID) {
	bySupplier := map[uuid.UUID]*SupplierSuggestion{}
	var order []uuid.UUID
	var unsourced []uuid.UUID

	for _, u := range items {
		best := domainsvcs.CheapestInStock(offers[u.Item.ProductID])
		if best == nil {
			unsourced = append(unsourced, u.Item.ID)
			continue
		}
		s, ok := bySupplier[best.SupplierID]
		if !ok {
			s = &SupplierSuggestion{SupplierID: best.SupplierID, SupplierName: best.SupplierName, TotalValue: decimal.Zero}
			bySupplier[best.SupplierID] = s
			order = append(order, best.SupplierID)
		}
		qty := OrderQuantity(u.Item)
		if best.MinOrderQty > qty {
			qty = best.MinOrderQty
		}
		line := SuggestionLine{
			InventoryItemID: u.Item.ID,
			ProductID:       u.Item.ProductID,
			SKU:             u.Item.SKU,
			Name:            u.Item.Name,
			Quantity:        qty,
			UnitPrice:       best.UnitPrice,
			LineTotal:       best.UnitPrice.Mul(decimal.NewFromInt(int64(qty))),
			Urgency:         u.Urgency,
		}
		s.Lines = append(s.Lines, line)
		s.TotalValue = s.TotalValue.Add(line.LineTotal)
	}

	out := make([]SupplierSuggestion, 0, len(order))
	for _, id := range order {
		out = append(out, *bySupplier[id])
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].TotalValue.GreaterThan(out[j].TotalValue)
	})
	return out, unsourced
}
