package models

import (
	"time"

	"github.com/google/uuid"
)

// InventoryItem is an organization's stock record for one product.
type InventoryItem struct {
	ID                uuid.UUID
	OrganizationID    uuid.UUID
	ProductID         uuid.UUID
	SKU               string
	Name              string
	CurrentStock      int
	ReservedStock     int
	ReorderPoint      int
	ReorderQuantity   int
	SafetyStock       int
	AverageDailyUsage float64
	LeadTimeDays      int
	UpdatedAt         time.Time
}

// Available is current minus reserved stock. A negative value means the
// record is inconsistent; callers clamp it rather than fail.
func (i *InventoryItem) Available() int {
	return i.CurrentStock - i.ReservedStock
}

// AtOrBelowReorderPoint reports whether the item needs replenishing.
func (i *InventoryItem) AtOrBelowReorderPoint() bool {
	return i.CurrentStock <= i.ReorderPoint
}

// MovementType classifies a stock movement.
type MovementType string

const (
	MovementIn         MovementType = "in"
	MovementOut        MovementType = "out"
	MovementAdjustment MovementType = "adjustment"
)

// StockMovement is one change to an item's stock. Outbound quantities may be
// stored negative; consumers use the absolute value.
type StockMovement struct {
	ID              uuid.UUID
	InventoryItemID uuid.UUID
	Type            MovementType
	Quantity        int
	CreatedAt       time.Time
}
