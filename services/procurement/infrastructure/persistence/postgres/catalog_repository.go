package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ghuser/procureflow/pkg/database"
	"github.com/ghuser/procureflow/pkg/events"
	"github.com/ghuser/procureflow/services/procurement/domain"
	domainevents "github.com/ghuser/procureflow/services/procurement/domain/events"
	"github.com/ghuser/procureflow/services/procurement/domain/models"
)

const supplierProductColumns = `sp.id, sp.supplier_id, sp.product_id, sp.sku, sp.unit_price, sp.currency, sp.min_order_qty,
	sp.in_stock, sp.stock_level, sp.lead_time_days, sp.last_checked_at, sp.updated_at`

// CatalogRepository implements repositories.CatalogRepository against PostgreSQL.
type CatalogRepository struct {
	db  *database.Database
	bus *events.EventBus
}

// NewCatalogRepository returns a CatalogRepository. The bus is used to publish
// PriceChangedEvents in the price update transaction; nil disables publishing.
func NewCatalogRepository(db *database.Database, bus *events.EventBus) *CatalogRepository {
	return &CatalogRepository{db: db, bus: bus}
}

// GetProduct returns ErrProductNotFound if id is unknown.
func (r *CatalogRepository) GetProduct(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var row productRow
	err := r.db.DB().GetContext(ctx, &row,
		`SELECT id, organization_id, sku, name, category, unit, unit_cost, created_at FROM products WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrProductNotFound
		}
		return nil, fmt.Errorf("query product: %w", err)
	}
	return rowToProduct(row), nil
}

// ListSupplierProducts returns every product a supplier lists, ordered by SKU.
func (r *CatalogRepository) ListSupplierProducts(ctx context.Context, supplierID uuid.UUID) ([]*models.SupplierProduct, error) {
	var rows []supplierProductRow
	err := r.db.DB().SelectContext(ctx, &rows,
		`SELECT `+supplierProductColumns+` FROM supplier_products sp WHERE sp.supplier_id = $1 ORDER BY sp.sku`, supplierID)
	if err != nil {
		return nil, fmt.Errorf("query supplier products: %w", err)
	}
	out := make([]*models.SupplierProduct, len(rows))
	for i, row := range rows {
		sp := rowToSupplierProduct(row)
		out[i] = &sp
	}
	return out, nil
}

// GetSupplierProductBySKU returns ErrProductNotFound when the supplier does not list sku.
func (r *CatalogRepository) GetSupplierProductBySKU(ctx context.Context, supplierID uuid.UUID, sku string) (*models.SupplierProduct, error) {
	var row supplierProductRow
	err := r.db.DB().GetContext(ctx, &row,
		`SELECT `+supplierProductColumns+` FROM supplier_products sp WHERE sp.supplier_id = $1 AND sp.sku = $2`, supplierID, sku)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrProductNotFound
		}
		return nil, fmt.Errorf("query supplier product: %w", err)
	}
	sp := rowToSupplierProduct(row)
	return &sp, nil
}

// ListOffersForProducts returns offers from the organization's active
// suppliers, cheapest first within each product.
func (r *CatalogRepository) ListOffersForProducts(ctx context.Context, orgID uuid.UUID, productIDs []uuid.UUID) (map[uuid.UUID][]models.Offer, error) {
	out := map[uuid.UUID][]models.Offer{}
	if len(productIDs) == 0 {
		return out, nil
	}

	query, args, err := sqlx.In(`
		SELECT `+supplierProductColumns+`, s.name AS supplier_name, s.organization_id, s.reliability_score
		FROM supplier_products sp
		JOIN suppliers s ON s.id = sp.supplier_id
		WHERE s.organization_id = ? AND s.active AND sp.product_id IN (?)
		ORDER BY sp.product_id, sp.unit_price, s.reliability_score DESC`, orgID, productIDs)
	if err != nil {
		return nil, fmt.Errorf("build offers query: %w", err)
	}
	query = r.db.DB().Rebind(query)

	var rows []offerRow
	if err := r.db.DB().SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("query offers: %w", err)
	}
	for _, row := range rows {
		o := rowToOffer(row)
		out[o.ProductID] = append(out[o.ProductID], o)
	}
	return out, nil
}

// ApplyPriceChange inserts the history row first, then moves the supplier
// product to the new price and publishes a PriceChangedEvent, all in one
// transaction.
func (r *CatalogRepository) ApplyPriceChange(ctx context.Context, orgID uuid.UUID, sp *models.SupplierProduct, h *models.PriceHistory) error {
	return r.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.NamedExecContext(ctx, `
			INSERT INTO price_history (id, supplier_id, product_id, sku, old_price, new_price, currency, change_pct, recorded_at)
			VALUES (:id, :supplier_id, :product_id, :sku, :old_price, :new_price, :currency, :change_pct, :recorded_at)`,
			priceHistoryRow{
				ID:         h.ID,
				SupplierID: h.SupplierID,
				ProductID:  h.ProductID,
				SKU:        h.SKU,
				OldPrice:   h.OldPrice,
				NewPrice:   h.NewPrice,
				Currency:   h.Currency,
				ChangePct:  h.ChangePct,
				RecordedAt: h.RecordedAt,
			}); err != nil {
			return fmt.Errorf("insert price history: %w", err)
		}

		res, err := tx.ExecContext(ctx, `
			UPDATE supplier_products
			SET unit_price = $2, in_stock = $3, stock_level = $4, last_checked_at = $5, updated_at = $6
			WHERE id = $1`,
			sp.ID, h.NewPrice, sp.InStock, sp.StockLevel, sp.LastCheckedAt, h.RecordedAt)
		if err != nil {
			return fmt.Errorf("update supplier product price: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return domain.ErrProductNotFound
		}

		if r.bus == nil {
			return nil
		}
		event := domainevents.PriceChangedEvent{
			EventID:        uuid.New(),
			Version:        1,
			OrganizationID: orgID,
			SupplierID:     sp.SupplierID,
			ProductID:      sp.ProductID,
			SKU:            sp.SKU,
			OldPrice:       h.OldPrice,
			NewPrice:       h.NewPrice,
			OccurredAt:     h.RecordedAt,
		}
		msg, err := events.NewJSONMessage(event.EventID.String(), event.Version, event)
		if err != nil {
			return err
		}
		if err := r.bus.PublishTx(ctx, tx.Tx, domainevents.TopicPriceChanged, msg); err != nil {
			return fmt.Errorf("publish price changed: %w", err)
		}
		return nil
	})
}

// UpdateStock records stock flags and the check timestamp without touching the price.
func (r *CatalogRepository) UpdateStock(ctx context.Context, sp *models.SupplierProduct) error {
	res, err := r.db.DB().ExecContext(ctx,
		`UPDATE supplier_products SET in_stock = $2, stock_level = $3, last_checked_at = $4 WHERE id = $1`,
		sp.ID, sp.InStock, sp.StockLevel, sp.LastCheckedAt)
	if err != nil {
		return fmt.Errorf("update supplier product stock: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrProductNotFound
	}
	return nil
}

// ListPriceHistory returns the transitions of one supplier product, oldest first.
func (r *CatalogRepository) ListPriceHistory(ctx context.Context, supplierID, productID uuid.UUID) ([]*models.PriceHistory, error) {
	var rows []priceHistoryRow
	err := r.db.DB().SelectContext(ctx, &rows, `
		SELECT id, supplier_id, product_id, sku, old_price, new_price, currency, change_pct, recorded_at
		FROM price_history WHERE supplier_id = $1 AND product_id = $2 ORDER BY recorded_at`, supplierID, productID)
	if err != nil {
		return nil, fmt.Errorf("query price history: %w", err)
	}
	out := make([]*models.PriceHistory, len(rows))
	for i, row := range rows {
		out[i] = rowToPriceHistory(row)
	}
	return out, nil
}
