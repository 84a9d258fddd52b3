package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

const (
	// OfferCacheTTL bounds staleness when a price_changed event is missed.
	OfferCacheTTL = 6 * time.Hour

	offerCacheKeyPrefix = "offers"
)

// CachedOffer is one supplier's price for a product, as served by price
// comparison. Slices of offers are stored ascending by UnitPrice.
type CachedOffer struct {
	SupplierID   uuid.UUID       `json:"supplier_id"`
	SupplierName string          `json:"supplier_name"`
	SKU          string          `json:"sku"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	Currency     string          `json:"currency"`
	InStock      bool            `json:"in_stock"`
	LeadTimeDays int             `json:"lead_time_days"`
}

// OfferCache stores ranked supplier offers per product.
// Keys are scoped by orgID to prevent cross-tenant data leakage.
// Key format: "offers:{orgID}:{productID}"
type OfferCache struct {
	client *RedisClient
}

// NewOfferCache creates a new OfferCache backed by the given RedisClient.
func NewOfferCache(r *RedisClient) *OfferCache {
	return &OfferCache{client: r}
}

// Get returns the cached offers for a product.
// Returns redis.Nil error when the key does not exist or has expired.
func (c *OfferCache) Get(ctx context.Context, orgID, productID uuid.UUID) ([]CachedOffer, error) {
	raw, err := c.client.Client().Get(ctx, c.key(orgID, productID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, redis.Nil
		}
		return nil, fmt.Errorf("cache get offers: %w", err)
	}
	var offers []CachedOffer
	if err := json.Unmarshal(raw, &offers); err != nil {
		return nil, fmt.Errorf("cache decode offers: %w", err)
	}
	return offers, nil
}

// Set replaces the cached offers for a product.
func (c *OfferCache) Set(ctx context.Context, orgID, productID uuid.UUID, offers []CachedOffer) error {
	raw, err := json.Marshal(offers)
	if err != nil {
		return fmt.Errorf("cache encode offers: %w", err)
	}
	if err := c.client.Client().Set(ctx, c.key(orgID, productID), raw, OfferCacheTTL).Err(); err != nil {
		return fmt.Errorf("cache set offers: %w", err)
	}
	return nil
}

// Delete invalidates the cached offers for a product.
func (c *OfferCache) Delete(ctx context.Context, orgID, productID uuid.UUID) error {
	if err := c.client.Client().Del(ctx, c.key(orgID, productID)).Err(); err != nil {
		return fmt.Errorf("cache delete offers: %w", err)
	}
	return nil
}

// key builds the Redis key: "offers:{orgID}:{productID}"
func (c *OfferCache) key(orgID, productID uuid.UUID) string {
	return fmt.Sprintf("%s:%s:%s", offerCacheKeyPrefix, orgID, productID)
}
