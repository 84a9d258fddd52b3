package events

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Watermill topics published by the procurement context.
const (
	TopicPriceChanged      = "procurement.price_changed"
	TopicNegotiationClosed = "procurement.negotiation_closed"
	TopicTaskFinished      = "procurement.task_finished"
)

// Topics lists every topic the procurement context publishes to.
func Topics() []string {
	return []string{TopicPriceChanged, TopicNegotiationClosed, TopicTaskFinished}
}

// PriceChangedEvent is published in the same transaction that records a
// PriceHistory row. Consumers invalidate cached offer rankings.
type PriceChangedEvent struct {
	EventID        uuid.UUID       `json:"event_id"`
	Version        int             `json:"version"`
	OrganizationID uuid.UUID       `json:"org_id"`
	SupplierID     uuid.UUID       `json:"supplier_id"`
	ProductID      uuid.UUID       `json:"product_id"`
	SKU            string          `json:"sku"`
	OldPrice       decimal.Decimal `json:"old_price"`
	NewPrice       decimal.Decimal `json:"new_price"`
	OccurredAt     time.Time       `json:"occurred_at"`
}

// NegotiationClosedEvent is published when a negotiation reaches a terminal state.
type NegotiationClosedEvent struct {
	EventID        uuid.UUID       `json:"event_id"`
	Version        int             `json:"version"`
	NegotiationID  uuid.UUID       `json:"negotiation_id"`
	OrganizationID uuid.UUID       `json:"org_id"`
	SupplierID     uuid.UUID       `json:"supplier_id"`
	Status         string          `json:"status"`
	Savings        decimal.Decimal `json:"savings"`
	OccurredAt     time.Time       `json:"occurred_at"`
}

// TaskFinishedEvent is published by the dispatcher after every task attempt.
type TaskFinishedEvent struct {
	EventID    uuid.UUID `json:"event_id"`
	Version    int       `json:"version"`
	TaskID     uuid.UUID `json:"task_id"`
	Agent      string    `json:"agent"`
	Type       string    `json:"type"`
	Attempt    int       `json:"attempt"`
	Success    bool      `json:"success"`
	Error      string    `json:"error,omitempty"`
	DurationMs int64     `json:"duration_ms"`
	OccurredAt time.Time `json:"occurred_at"`
}
