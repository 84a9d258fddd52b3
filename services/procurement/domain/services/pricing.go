// Package services holds pure domain rules shared by the agents.
package services

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/ghuser/procureflow/services/procurement/domain/models"
)

// CalculatePriceChange returns the relative change from oldPrice to newPrice,
// 0.2 meaning +20%. A zero old price has no baseline and yields 0.
func CalculatePriceChange(oldPrice, newPrice decimal.Decimal) float64 {
	if oldPrice.IsZero() {
		return 0
	}
	f, _ := newPrice.Sub(oldPrice).Div(oldPrice).Float64()
	return f
}

// PriceChanged reports whether a scanned price differs from the stored one.
// Decimal comparison ignores trailing zeros, so 1.50 equals 1.5.
func PriceChanged(stored, scanned decimal.Decimal) bool {
	return !stored.Equal(scanned)
}

// PriceComparison ranks every known offer for one product.
type PriceComparison struct {
	Offers           []models.Offer  `json:"offers"`
	Cheapest         *models.Offer   `json:"cheapest,omitempty"`
	Average          decimal.Decimal `json:"average"`
	PotentialSavings decimal.Decimal `json:"potential_savings"` // average minus cheapest, per unit
}

// ComparePrices sorts offers ascending by unit price. Ties go to the more
// reliable supplier.
func ComparePrices(offers []models.Offer) PriceComparison {
	ranked := make([]models.Offer, len(offers))
	copy(ranked, offers)
	sort.SliceStable(ranked, func(i, j int) bool {
		if c := ranked[i].UnitPrice.Cmp(ranked[j].UnitPrice); c != 0 {
			return c < 0
		}
		return ranked[i].ReliabilityScore > ranked[j].ReliabilityScore
	})

	out := PriceComparison{Offers: ranked, Average: decimal.Zero, PotentialSavings: decimal.Zero}
	if len(ranked) == 0 {
		return out
	}
	sum := decimal.Zero
	for _, o := range ranked {
		sum = sum.Add(o.UnitPrice)
	}
	out.Average = sum.Div(decimal.NewFromInt(int64(len(ranked)))).Round(4)
	out.Cheapest = &ranked[0]
	out.PotentialSavings = out.Average.Sub(ranked[0].UnitPrice)
	return out
}

// CheapestInStock returns the lowest-priced offer that is in stock, or nil.
func CheapestInStock(offers []models.Offer) *models.Offer {
	var best *models.Offer
	for i := range offers {
		o := &offers[i]
		if !o.InStock {
			continue
		}
		if best == nil || o.UnitPrice.LessThan(best.UnitPrice) ||
			(o.UnitPrice.Equal(best.UnitPrice) && o.ReliabilityScore > best.ReliabilityScore) {
			best = o
		}
	}
	return best
}
