package negotiation

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/ghuser/procureflow/services/procurement/domain/models"
)

// ClassificationPrompt asks the model to read reply against our offer.
func ClassificationPrompt(reply string, lines []models.OfferLine, ask map[string]decimal.Decimal) string {
	var b strings.Builder
	b.WriteString("You classify supplier replies in a price negotiation.\n")
	b.WriteString("Our current request:\n")
	writeLines(&b, lines, ask, nil)
	b.WriteString("Supplier reply:\n\"\"\"\n")
	b.WriteString(reply)
	b.WriteString("\n\"\"\"\n")
	b.WriteString(`Answer with JSON only: {"accepted": bool, "rejected": bool, "counterOffer": null | {"prices": {"<sku>": number}, "discount_percent": number}, "reason": string}`)
	b.WriteString("\naccepted means they agree to our requested prices. rejected means they refuse any reduction. Otherwise describe their counter-offer.\n")
	return b.String()
}

type rawClassification struct {
	Accepted     bool            `json:"accepted"`
	Rejected     bool            `json:"rejected"`
	CounterOffer json.RawMessage `json:"counterOffer"`
	Reason       string          `json:"reason"`
}

type rawQuote struct {
	Prices          map[string]json.Number `json:"prices"`
	DiscountPercent *json.Number           `json:"discount_percent"`
	DiscountCamel   *json.Number           `json:"discountPercent"`
}

// ParseClassification reads the model's JSON answer. The object is taken
// from the first '{' to the last '}' so surrounding prose is tolerated. Any
// failure yields an ambiguous classification and ok=false.
func ParseClassification(raw string) (Classification, bool) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return Classification{}, false
	}

	var rc rawClassification
	if err := json.Unmarshal([]byte(raw[start:end+1]), &rc); err != nil {
		return Classification{}, false
	}
	c := Classification{Accepted: rc.Accepted, Rejected: rc.Rejected, Reason: rc.Reason}

	if len(rc.CounterOffer) > 0 && string(rc.CounterOffer) != "null" {
		q, err := parseQuote(rc.CounterOffer)
		if err != nil {
			return Classification{}, false
		}
		c.CounterOffer = q
	}
	return c, true
}

func parseQuote(data json.RawMessage) (*Quote, error) {
	var rq rawQuote
	if err := json.Unmarshal(data, &rq); err != nil {
		return nil, fmt.Errorf("counter offer: %w", err)
	}
	q := &Quote{}
	for sku, n := range rq.Prices {
		p, err := decimal.NewFromString(n.String())
		if err != nil {
			return nil, fmt.Errorf("price for %s: %w", sku, err)
		}
		if q.Prices == nil {
			q.Prices = map[string]decimal.Decimal{}
		}
		q.Prices[sku] = p
	}
	disc := rq.DiscountPercent
	if disc == nil {
		disc = rq.DiscountCamel
	}
	if disc != nil {
		f, err := disc.Float64()
		if err != nil {
			return nil, fmt.Errorf("discount: %w", err)
		}
		q.DiscountPct = &f
	}
	if q.Empty() {
		return nil, nil
	}
	return q, nil
}
