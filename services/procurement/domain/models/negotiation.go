package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// NegotiationStatus is the state of a negotiation. A negotiation is created
// in_progress and ends in exactly one of accepted, rejected or expired.
type NegotiationStatus string

const (
	NegotiationInitiated  NegotiationStatus = "initiated"
	NegotiationInProgress NegotiationStatus = "in_progress"
	NegotiationAccepted   NegotiationStatus = "accepted"
	NegotiationRejected   NegotiationStatus = "rejected"
	NegotiationExpired    NegotiationStatus = "expired"
)

// Terminal reports whether no further transition is possible.
func (s NegotiationStatus) Terminal() bool {
	return s == NegotiationAccepted || s == NegotiationRejected || s == NegotiationExpired
}

// Strategy names a negotiation approach.
type Strategy string

const (
	StrategyVolumeLeverage Strategy = "volume_leverage"
	StrategyCompetitive    Strategy = "competitive"
	StrategyCollaborative  Strategy = "collaborative"
)

// FallbackAction is what a strategy does once talks fail.
type FallbackAction string

const (
	FallbackEscalate FallbackAction = "escalate"
	FallbackWalkAway FallbackAction = "walk_away"
	FallbackAccept   FallbackAction = "accept"
)

// OfferLine is one product under negotiation.
type OfferLine struct {
	ProductID       uuid.UUID        `json:"product_id"`
	SKU             string           `json:"sku"`
	Name            string           `json:"name"`
	Quantity        int              `json:"quantity"`
	CurrentPrice    decimal.Decimal  `json:"current_price"`
	TargetPrice     decimal.Decimal  `json:"target_price"`
	CompetitorPrice *decimal.Decimal `json:"competitor_price,omitempty"`
}

// InitialOffer is the snapshot taken when the negotiation starts.
type InitialOffer struct {
	Lines             []OfferLine     `json:"lines"`
	HistoricalVolume  decimal.Decimal `json:"historical_volume"`
	DiscountAsk       float64         `json:"discount_ask"`
	TargetImprovement float64         `json:"target_improvement"`
	MaxRounds         int             `json:"max_rounds"`
}

// OriginalTotal is the value of the offer at current prices.
func (o InitialOffer) OriginalTotal() decimal.Decimal {
	total := decimal.Zero
	for _, l := range o.Lines {
		total = total.Add(l.CurrentPrice.Mul(decimal.NewFromInt(int64(l.Quantity))))
	}
	return total
}

// CounterOffer is one supplier proposal. Either Prices (by SKU) or
// DiscountPct is set.
type CounterOffer struct {
	Round        int                        `json:"round"`
	Prices       map[string]decimal.Decimal `json:"prices,omitempty"`
	DiscountPct  *float64                   `json:"discount_pct,omitempty"`
	Savings      decimal.Decimal            `json:"savings"`
	SavingsRatio float64                    `json:"savings_ratio"`
	Acceptable   bool                       `json:"acceptable"`
	ReceivedAt   time.Time                  `json:"received_at"`
}

// FinalTerms are the agreed prices of an accepted negotiation.
type FinalTerms struct {
	Prices   map[string]decimal.Decimal `json:"prices"`
	Total    decimal.Decimal            `json:"total"`
	Round    int                        `json:"round"`
	AgreedAt time.Time                  `json:"agreed_at"`
}

// NegotiationMetadata holds the strategy chosen at initiation and our latest
// ask, so later rounds reuse them.
type NegotiationMetadata struct {
	Strategy      Strategy                   `json:"strategy"`
	Fallback      FallbackAction             `json:"fallback"`
	TalkingPoints []string                   `json:"talking_points,omitempty"`
	CurrentAsk    map[string]decimal.Decimal `json:"current_ask,omitempty"`
	Reason        string                     `json:"reason,omitempty"`
	ReviewNeeded  bool                       `json:"review_needed,omitempty"`
}

// Negotiation is one discount negotiation with one supplier.
type Negotiation struct {
	ID             uuid.UUID
	OrganizationID uuid.UUID
	SupplierID     uuid.UUID
	Status         NegotiationStatus
	InitialOffer   InitialOffer
	CounterOffers  []CounterOffer
	FinalTerms     *FinalTerms
	Savings        decimal.Decimal
	Metadata       NegotiationMetadata
	ExpiresAt      time.Time
	CompletedAt    *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
	// Version counts saves. An update is applied only against the version it
	// was read at.
	Version int64
}

// Expired reports whether now is past the expiry timestamp.
func (n *Negotiation) Expired(now time.Time) bool {
	return !n.ExpiresAt.IsZero() && now.After(n.ExpiresAt)
}

// LastCounter returns the most recent counter-offer, or nil.
func (n *Negotiation) LastCounter() *CounterOffer {
	if len(n.CounterOffers) == 0 {
		return nil
	}
	return &n.CounterOffers[len(n.CounterOffers)-1]
}

// MessageDirection tags a negotiation message.
type MessageDirection string

const (
	DirectionOutbound MessageDirection = "outbound"
	DirectionInbound  MessageDirection = "inbound"
)

// NegotiationMessage is one email in a negotiation. Messages are insert-only.
type NegotiationMessage struct {
	ID            uuid.UUID
	NegotiationID uuid.UUID
	Direction     MessageDirection
	Subject       string
	Body          string
	ExternalID    string // mail provider message id, outbound only
	DeliveryID    string // inbound only: identity of one delivery, stable across retries
	CreatedAt     time.Time
}
