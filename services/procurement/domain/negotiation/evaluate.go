package negotiation

import (
	"github.com/shopspring/decimal"

	"github.com/ghuser/procureflow/services/procurement/domain/models"
)

// AcceptanceFactor scales the target improvement into the acceptance bar.
const AcceptanceFactor = 0.5

// Evaluation is the value of a counter-offer against current prices.
type Evaluation struct {
	Prices        map[string]decimal.Decimal `json:"prices"`
	OriginalTotal decimal.Decimal            `json:"original_total"`
	OfferedTotal  decimal.Decimal            `json:"offered_total"`
	Savings       decimal.Decimal            `json:"savings"`
	Ratio         float64                    `json:"ratio"`
	Acceptable    bool                       `json:"acceptable"`
}

// Quote is a supplier proposal: per-SKU prices, a blanket discount, or both.
// Per-SKU prices win.
type Quote struct {
	Prices      map[string]decimal.Decimal `json:"prices,omitempty"`
	DiscountPct *float64                   `json:"discount_percent,omitempty"` // 4 means 4%
}

// Empty reports whether the quote carries no price information.
func (q *Quote) Empty() bool {
	return q == nil || (len(q.Prices) == 0 && q.DiscountPct == nil)
}

// PricesFor resolves q into a unit price per SKU of lines. SKUs the quote
// does not mention keep their current price.
func (q *Quote) PricesFor(lines []models.OfferLine) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(lines))
	for _, l := range lines {
		price := l.CurrentPrice
		if q != nil {
			if p, ok := q.Prices[l.SKU]; ok {
				price = p
			} else if q.DiscountPct != nil {
				price = l.CurrentPrice.Mul(decimal.NewFromFloat(1 - *q.DiscountPct/100)).Round(2)
			}
		}
		out[l.SKU] = price
	}
	return out
}

// Evaluate values prices against the offer's current prices:
// savings = sum((current - offered) * qty), acceptable when
// savings / originalTotal >= target * AcceptanceFactor.
func Evaluate(offer models.InitialOffer, prices map[string]decimal.Decimal) Evaluation {
	ev := Evaluation{
		Prices:        prices,
		OriginalTotal: offer.OriginalTotal(),
		OfferedTotal:  decimal.Zero,
		Savings:       decimal.Zero,
	}
	for _, l := range offer.Lines {
		qty := decimal.NewFromInt(int64(l.Quantity))
		offered, ok := prices[l.SKU]
		if !ok {
			offered = l.CurrentPrice
		}
		ev.OfferedTotal = ev.OfferedTotal.Add(offered.Mul(qty))
		ev.Savings = ev.Savings.Add(l.CurrentPrice.Sub(offered).Mul(qty))
	}
	if ev.OriginalTotal.IsPositive() {
		ev.Ratio, _ = ev.Savings.Div(ev.OriginalTotal).Float64()
	}
	ev.Acceptable = ev.Ratio >= offer.TargetImprovement*AcceptanceFactor
	return ev
}

// NextAsk meets the supplier halfway between our last ask and their counter.
// We never ask above their counter.
func NextAsk(ours, theirs map[string]decimal.Decimal) map[string]decimal.Decimal {
	two := decimal.NewFromInt(2)
	next := make(map[string]decimal.Decimal, len(theirs))
	for sku, counter := range theirs {
		ask, ok := ours[sku]
		if !ok || ask.GreaterThanOrEqual(counter) {
			next[sku] = counter
			continue
		}
		next[sku] = ask.Add(counter).Div(two).Round(2)
	}
	return next
}
