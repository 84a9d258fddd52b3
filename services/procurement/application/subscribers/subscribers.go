// Package subscribers holds the watermill handlers for procurement events.
// Handlers must be idempotent: the EventBus retries up to 3 times on failure.
package subscribers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"

	"github.com/ghuser/procureflow/pkg/logger"
	procevents "github.com/ghuser/procureflow/services/procurement/domain/events"
)

// Handler is the signature EventBus.Subscribe expects.
type Handler = func(context.Context, *message.Message) error

// OfferInvalidator drops cached offer rankings. *cache.OfferCache implements it.
type OfferInvalidator interface {
	Delete(ctx context.Context, orgID, productID uuid.UUID) error
}

// Subscription pairs a topic with its handler.
type Subscription struct {
	Topic   string
	Handler Handler
}

// All returns the procurement subscriptions. offers may be nil, in which case
// price changes are only logged.
func All(offers OfferInvalidator, log logger.Logger) []Subscription {
	return []Subscription{
		{Topic: procevents.TopicPriceChanged, Handler: PriceChanged(offers, log)},
		{Topic: procevents.TopicNegotiationClosed, Handler: NegotiationClosed(log)},
	}
}

// PriceChanged invalidates the offer ranking of the product whose price moved,
// so the next compare_prices reads fresh prices.
func PriceChanged(offers OfferInvalidator, log logger.Logger) Handler {
	return func(ctx context.Context, msg *message.Message) error {
		var evt procevents.PriceChangedEvent
		if err := json.Unmarshal(msg.Payload, &evt); err != nil {
			return fmt.Errorf("decode %s: %w", procevents.TopicPriceChanged, err)
		}

		if offers != nil {
			if err := offers.Delete(ctx, evt.OrganizationID, evt.ProductID); err != nil {
				return err
			}
		}
		log.InfoContext(ctx, "price changed",
			"org_id", evt.OrganizationID, "supplier_id", evt.SupplierID, "sku", evt.SKU,
			"old_price", evt.OldPrice.String(), "new_price", evt.NewPrice.String())
		return nil
	}
}

// NegotiationClosed records the outcome of a finished negotiation.
func NegotiationClosed(log logger.Logger) Handler {
	return func(ctx context.Context, msg *message.Message) error {
		var evt procevents.NegotiationClosedEvent
		if err := json.Unmarshal(msg.Payload, &evt); err != nil {
			return fmt.Errorf("decode %s: %w", procevents.TopicNegotiationClosed, err)
		}
		log.InfoContext(ctx, "negotiation closed",
			"negotiation_id", evt.NegotiationID, "org_id", evt.OrganizationID,
			"status", evt.Status, "savings", evt.Savings.String())
		return nil
	}
}
