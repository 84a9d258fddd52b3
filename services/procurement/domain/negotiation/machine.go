package negotiation

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/ghuser/procureflow/services/procurement/domain/models"
)

// DefaultMaxRounds bounds the number of outbound emails.
const DefaultMaxRounds = 3

// Classification is the structured reading of a supplier reply.
type Classification struct {
	Accepted     bool   `json:"accepted"`
	Rejected     bool   `json:"rejected"`
	CounterOffer *Quote `json:"counterOffer,omitempty"`
	Reason       string `json:"reason,omitempty"`
}

// Ambiguous reports whether the reply could not be read as accept, reject or
// counter. Contradictory flags count as ambiguous.
func (c Classification) Ambiguous() bool {
	if c.Accepted && c.Rejected {
		return true
	}
	return !c.Accepted && !c.Rejected && c.CounterOffer.Empty()
}

// Action is the outcome chosen for a reply.
type Action string

const (
	// ActionAccept closes the negotiation as accepted.
	ActionAccept Action = "accept"
	// ActionReject closes it as rejected; the caller may try another supplier.
	ActionReject Action = "reject"
	// ActionCounter sends our next ask and keeps it in progress.
	ActionCounter Action = "counter"
	// ActionExpire closes it as expired once rounds run out.
	ActionExpire Action = "expire"
	// ActionStall keeps it in progress without replying; expiry eventually closes it.
	ActionStall Action = "stall"
)

// Outbound is the email a decision requires, if any.
type Outbound string

const (
	OutboundNone       Outbound = ""
	OutboundCounter    Outbound = "counter"
	OutboundAcceptance Outbound = "acceptance"
)

// Decision is the transition for one processed reply.
type Decision struct {
	Action     Action                     `json:"action"`
	Status     models.NegotiationStatus   `json:"status"`
	Round      int                        `json:"round"`
	Evaluation *Evaluation                `json:"evaluation,omitempty"`
	NextAsk    map[string]decimal.Decimal `json:"next_ask,omitempty"`
	Send       Outbound                   `json:"send,omitempty"`
	Reason     string                     `json:"reason,omitempty"`
	Counter    *Quote                     `json:"counter,omitempty"` // set when the reply was a counter-offer
}

// Decide applies the transition rules to a classified reply. round is the
// current round from Round(messages).
func Decide(n *models.Negotiation, round int, c Classification) Decision {
	maxRounds := n.InitialOffer.MaxRounds
	if maxRounds <= 0 {
		maxRounds = DefaultMaxRounds
	}
	d := Decision{Round: round, Reason: c.Reason, Status: models.NegotiationInProgress}

	switch {
	case c.Ambiguous():
		d.Action = ActionStall

	case c.Accepted:
		prices := n.Metadata.CurrentAsk
		if !c.CounterOffer.Empty() {
			prices = c.CounterOffer.PricesFor(n.InitialOffer.Lines)
		}
		ev := Evaluate(n.InitialOffer, completePrices(n.InitialOffer.Lines, prices))
		d.Evaluation = &ev
		d.Action, d.Status = ActionAccept, models.NegotiationAccepted

	case c.Rejected:
		d.Action, d.Status = ActionReject, models.NegotiationRejected

	default:
		ev := Evaluate(n.InitialOffer, c.CounterOffer.PricesFor(n.InitialOffer.Lines))
		d.Evaluation = &ev
		d.Counter = c.CounterOffer
		switch {
		case ev.Acceptable:
			d.Action, d.Status, d.Send = ActionAccept, models.NegotiationAccepted, OutboundAcceptance
		case round < maxRounds:
			d.Action, d.Send = ActionCounter, OutboundCounter
			d.NextAsk = NextAsk(n.Metadata.CurrentAsk, ev.Prices)
		default:
			d.Action, d.Status = ActionExpire, models.NegotiationExpired
		}
	}
	return d
}

// Apply records d on n. Counter-offers are appended, never rewritten.
func Apply(n *models.Negotiation, d Decision, now time.Time) {
	n.UpdatedAt = now
	if d.Reason != "" {
		n.Metadata.Reason = d.Reason
	}
	n.Metadata.ReviewNeeded = d.Action == ActionStall

	if d.Counter != nil && d.Evaluation != nil {
		n.CounterOffers = append(n.CounterOffers, models.CounterOffer{
			Round:        d.Round,
			Prices:       d.Evaluation.Prices,
			DiscountPct:  d.Counter.DiscountPct,
			Savings:      d.Evaluation.Savings,
			SavingsRatio: d.Evaluation.Ratio,
			Acceptable:   d.Evaluation.Acceptable,
			ReceivedAt:   now,
		})
	}
	if d.NextAsk != nil {
		n.Metadata.CurrentAsk = d.NextAsk
	}

	n.Status = d.Status
	if d.Status == models.NegotiationAccepted && d.Evaluation != nil {
		n.Savings = d.Evaluation.Savings
		n.FinalTerms = &models.FinalTerms{
			Prices:   d.Evaluation.Prices,
			Total:    d.Evaluation.OfferedTotal,
			Round:    d.Round,
			AgreedAt: now,
		}
	}
	if d.Status.Terminal() {
		completed := now
		n.CompletedAt = &completed
	}
}

// Expire closes an open negotiation as expired.
func Expire(n *models.Negotiation, now time.Time, reason string) {
	if n.Status.Terminal() {
		return
	}
	n.Status = models.NegotiationExpired
	n.Metadata.Reason = reason
	n.UpdatedAt = now
	completed := now
	n.CompletedAt = &completed
}

func completePrices(lines []models.OfferLine, prices map[string]decimal.Decimal) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(lines))
	for _, l := range lines {
		if p, ok := prices[l.SKU]; ok {
			out[l.SKU] = p
		} else {
			out[l.SKU] = l.CurrentPrice
		}
	}
	return out
}
