package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ghuser/procureflow/services/procurement/domain/models"
)

// OrganizationRepository reads tenants.
type OrganizationRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Organization, error)
	List(ctx context.Context) ([]*models.Organization, error)
}

// SupplierRepository is the persistence interface for suppliers.
// The domain layer owns this interface; infrastructure implements it.
type SupplierRepository interface {
	// GetByID returns ErrSupplierNotFound for unknown or deactivated suppliers.
	GetByID(ctx context.Context, id uuid.UUID) (*models.Supplier, error)

	// ListActive returns active suppliers ordered by name. A nil orgID lists
	// every organization's suppliers.
	ListActive(ctx context.Context, orgID *uuid.UUID) ([]*models.Supplier, error)

	MarkScanned(ctx context.Context, id uuid.UUID, at time.Time) error
}

// CatalogRepository covers products and the supplier offers bound to them.
type CatalogRepository interface {
	GetProduct(ctx context.Context, id uuid.UUID) (*models.Product, error)

	ListSupplierProducts(ctx context.Context, supplierID uuid.UUID) ([]*models.SupplierProduct, error)

	// GetSupplierProductBySKU returns ErrProductNotFound when the supplier does
	// not list sku.
	GetSupplierProductBySKU(ctx context.Context, supplierID uuid.UUID, sku string) (*models.SupplierProduct, error)

	// ListOffersForProducts returns, per product, the offers of active suppliers
	// of orgID.
	ListOffersForProducts(ctx context.Context, orgID uuid.UUID, productIDs []uuid.UUID) (map[uuid.UUID][]models.Offer, error)

	// ApplyPriceChange inserts h, then moves sp to h.NewPrice and publishes a
	// price_changed event, all in one transaction.
	ApplyPriceChange(ctx context.Context, orgID uuid.UUID, sp *models.SupplierProduct, h *models.PriceHistory) error

	// UpdateStock records the stock flags of sp and its LastCheckedAt.
	UpdateStock(ctx context.Context, sp *models.SupplierProduct) error

	ListPriceHistory(ctx context.Context, supplierID, productID uuid.UUID) ([]*models.PriceHistory, error)
}

// InventoryRepository reads stock records and their movements.
type InventoryRepository interface {
	ListItems(ctx context.Context, orgID uuid.UUID) ([]*models.InventoryItem, error)
	GetItem(ctx context.Context, id uuid.UUID) (*models.InventoryItem, error)

	// ListAtOrBelowReorderPoint returns items whose current stock is at or
	// below their reorder point.
	ListAtOrBelowReorderPoint(ctx context.Context, orgID uuid.UUID) ([]*models.InventoryItem, error)

	// ListMovements returns the item's movements since the given time, oldest first.
	ListMovements(ctx context.Context, itemID uuid.UUID, since time.Time) ([]models.StockMovement, error)

	UpdateAverageDailyUsage(ctx context.Context, id uuid.UUID, rate float64) error
}

// ForecastRepository stores forecaster output.
type ForecastRepository interface {
	// ReplacePredictions drops the organization's unresolved predictions and
	// inserts preds in their place.
	ReplacePredictions(ctx context.Context, orgID uuid.UUID, preds []models.StockoutPrediction) error
	ListPredictions(ctx context.Context, orgID uuid.UUID) ([]models.StockoutPrediction, error)
	SaveReorderSuggestions(ctx context.Context, suggestions []models.ReorderPolicySuggestion) error
}

// NegotiationRepository persists negotiations and their message log.
type NegotiationRepository interface {
	// Create inserts n together with its first outbound message.
	Create(ctx context.Context, n *models.Negotiation, first *models.NegotiationMessage) error

	// GetByID returns ErrNegotiationNotFound when id is unknown.
	GetByID(ctx context.Context, id uuid.UUID) (*models.Negotiation, error)

	// ListMessages returns the message log, oldest first.
	ListMessages(ctx context.Context, negotiationID uuid.UUID) ([]models.NegotiationMessage, error)

	// AppendMessage inserts m and reports whether it was new. An inbound
	// message whose DeliveryID is already logged is not inserted again.
	AppendMessage(ctx context.Context, m *models.NegotiationMessage) (bool, error)

	// Update saves n and appends msgs in one transaction. Reaching a terminal
	// status publishes a negotiation_closed event in the same transaction.
	// It returns ErrNegotiationConflict when the negotiation was saved since n
	// was read, and advances n.Version otherwise.
	Update(ctx context.Context, n *models.Negotiation, msgs ...*models.NegotiationMessage) error

	// ListExpired returns in_progress negotiations whose expiry is before now.
	ListExpired(ctx context.Context, now time.Time) ([]*models.Negotiation, error)
}

// ScrapingJobRepository audits scans.
type ScrapingJobRepository interface {
	Start(ctx context.Context, job *models.ScrapingJob) error
	Finish(ctx context.Context, job *models.ScrapingJob) error
}

// ActivityLogRepository is the append-only audit trail of worker actions.
type ActivityLogRepository interface {
	// Record inserts entry. Entries tied to a task also publish a
	// task_finished event.
	Record(ctx context.Context, entry *models.ActivityLog) error
	List(ctx context.Context, limit int) ([]*models.ActivityLog, error)
}
