package models

import (
	"time"

	"github.com/google/uuid"
)

// Urgency is the stock-level severity of an inventory item.
type Urgency string

const (
	UrgencyOK       Urgency = "ok"
	UrgencyWarning  Urgency = "warning"
	UrgencyCritical Urgency = "critical"
)

// Severity orders urgencies: ok < warning < critical.
func (u Urgency) Severity() int {
	switch u {
	case UrgencyCritical:
		return 2
	case UrgencyWarning:
		return 1
	default:
		return 0
	}
}

// StockoutPrediction is recomputed on each forecast run and replaces the
// previous unresolved predictions for its organization.
type StockoutPrediction struct {
	ID                uuid.UUID
	OrganizationID    uuid.UUID
	InventoryItemID   uuid.UUID
	DaysUntilStockout float64 // +Inf when there is no consumption
	PredictedDate     *time.Time
	ReorderBy         *time.Time
	Confidence        float64
	Urgency           Urgency
	SuggestedAction   string
	SuggestedQuantity int
	Resolved          bool
	CreatedAt         time.Time
}

// ReorderPolicySuggestion proposes new reorder settings for an item. The item
// itself is never rewritten by the forecaster.
type ReorderPolicySuggestion struct {
	ID                       uuid.UUID
	OrganizationID           uuid.UUID
	InventoryItemID          uuid.UUID
	CurrentReorderPoint      int
	SuggestedReorderPoint    int
	CurrentReorderQuantity   int
	SuggestedReorderQuantity int
	SafetyStock              int
	Reason                   string
	CreatedAt                time.Time
}
