// Package negotiation is the pure core of the supplier negotiation state
// machine: strategy selection, round derivation, counter-offer evaluation,
// transition decisions and the parsers for language-model output.
package negotiation

import (
	"github.com/shopspring/decimal"

	"github.com/ghuser/procureflow/services/procurement/domain/models"
)

// VolumeLeverageThreshold is the historical spend above which we negotiate on volume.
var VolumeLeverageThreshold = decimal.NewFromInt(50000)

// Profile is a named bundle of initial ask, talking points and fallback.
type Profile struct {
	Strategy        models.Strategy
	Fallback        models.FallbackAction
	InitialDiscount float64 // fraction off the current price asked in round 1
	TargetBonus     float64 // added to the configured target improvement
	TalkingPoints   []string
}

var profiles = map[models.Strategy]Profile{
	models.StrategyVolumeLeverage: {
		Strategy:        models.StrategyVolumeLeverage,
		Fallback:        models.FallbackEscalate,
		InitialDiscount: 0.10,
		TargetBonus:     0.02,
		TalkingPoints: []string{
			"Our purchase volume with you over the past year",
			"Plans to consolidate more of our orders with a single supplier",
			"Willingness to commit to forecasted volumes",
		},
	},
	models.StrategyCompetitive: {
		Strategy:        models.StrategyCompetitive,
		Fallback:        models.FallbackWalkAway,
		InitialDiscount: 0.08,
		TalkingPoints: []string{
			"Lower quotes we have received for the same products",
			"We value your reliability and would prefer to stay with you",
			"A price match would secure our continued business",
		},
	},
	models.StrategyCollaborative: {
		Strategy:        models.StrategyCollaborative,
		Fallback:        models.FallbackAccept,
		InitialDiscount: 0.05,
		TalkingPoints: []string{
			"Our long-standing partnership",
			"Interest in terms that work for both sides",
			"Flexibility on delivery schedule or payment terms",
		},
	},
}

// ProfileFor returns the profile of a stored strategy, defaulting to collaborative.
func ProfileFor(s models.Strategy) Profile {
	if p, ok := profiles[s]; ok {
		return p
	}
	return profiles[models.StrategyCollaborative]
}

// SelectStrategy picks the strategy once, at initiation. Volume is checked
// before competitor pricing.
func SelectStrategy(historicalVolume decimal.Decimal, lines []models.OfferLine) Profile {
	if historicalVolume.GreaterThan(VolumeLeverageThreshold) {
		return profiles[models.StrategyVolumeLeverage]
	}
	for _, l := range lines {
		if l.CompetitorPrice != nil {
			return profiles[models.StrategyCompetitive]
		}
	}
	return profiles[models.StrategyCollaborative]
}

// InitialAsk is the round-one target price per SKU. An explicit target price
// wins; otherwise the strategy discount is applied to the current price. A
// competitor price lower than the discounted price becomes the ask.
func InitialAsk(p Profile, lines []models.OfferLine) map[string]decimal.Decimal {
	factor := decimal.NewFromFloat(1 - p.InitialDiscount)
	ask := make(map[string]decimal.Decimal, len(lines))
	for _, l := range lines {
		price := l.CurrentPrice.Mul(factor).Round(2)
		if l.CompetitorPrice != nil && l.CompetitorPrice.LessThan(price) {
			price = *l.CompetitorPrice
		}
		if !l.TargetPrice.IsZero() {
			price = l.TargetPrice
		}
		ask[l.SKU] = price
	}
	return ask
}

// Round is the current round number: the count of outbound messages. It is
// never stored, so replaying a task after a crash sees the same round.
func Round(messages []models.NegotiationMessage) int {
	n := 0
	for _, m := range messages {
		if m.Direction == models.DirectionOutbound {
			n++
		}
	}
	return n
}
