package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Product is an organization-scoped item the organization buys.
type Product struct {
	ID             uuid.UUID
	OrganizationID uuid.UUID
	SKU            string
	Name           string
	Category       string
	Unit           string
	UnitCost       decimal.Decimal // internal standard cost, used for EOQ holding cost
	CreatedAt      time.Time
}

// SupplierProduct binds a product to one supplier's offer. Unique per
// (supplier, product). Price is only changed by a scan.
type SupplierProduct struct {
	ID            uuid.UUID
	SupplierID    uuid.UUID
	ProductID     uuid.UUID
	SKU           string // supplier's SKU as it appears in their catalog
	UnitPrice     decimal.Decimal
	Currency      string
	MinOrderQty   int
	InStock       bool
	StockLevel    *int
	LeadTimeDays  int
	LastCheckedAt *time.Time
	UpdatedAt     time.Time
}

// Offer is a supplier product joined with the fields needed to rank it.
type Offer struct {
	SupplierProduct
	SupplierName     string
	OrganizationID   uuid.UUID
	ReliabilityScore float64
}

// PriceHistory is one detected price transition. Rows are insert-only.
type PriceHistory struct {
	ID         uuid.UUID
	SupplierID uuid.UUID
	ProductID  uuid.UUID
	SKU        string
	OldPrice   decimal.Decimal
	NewPrice   decimal.Decimal
	Currency   string
	ChangePct  float64 // relative change, 0.2 == +20%
	RecordedAt time.Time
}

// ScannedProduct is one normalized listing returned by a catalog adapter.
type ScannedProduct struct {
	SKU        string          `json:"sku"`
	Name       string          `json:"name"`
	Price      decimal.Decimal `json:"price"`
	Currency   string          `json:"currency"`
	InStock    bool            `json:"in_stock"`
	StockLevel *int            `json:"stock_level,omitempty"`
}
