package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ghuser/procureflow/pkg/database"
	"github.com/ghuser/procureflow/services/procurement/domain"
	"github.com/ghuser/procureflow/services/procurement/domain/models"
)

const inventoryItemSelect = `
	SELECT i.id, i.organization_id, i.product_id, p.sku, p.name, i.current_stock, i.reserved_stock,
		i.reorder_point, i.reorder_quantity, i.safety_stock, i.average_daily_usage, i.lead_time_days, i.updated_at
	FROM inventory_items i
	JOIN products p ON p.id = i.product_id`

// InventoryRepository implements repositories.InventoryRepository against PostgreSQL.
type InventoryRepository struct {
	db *database.Database
}

// NewInventoryRepository returns an InventoryRepository backed by the given pool.
func NewInventoryRepository(db *database.Database) *InventoryRepository {
	return &InventoryRepository{db: db}
}

// ListItems returns every item of the organization ordered by SKU.
func (r *InventoryRepository) ListItems(ctx context.Context, orgID uuid.UUID) ([]*models.InventoryItem, error) {
	return r.selectItems(ctx, inventoryItemSelect+` WHERE i.organization_id = $1 ORDER BY p.sku`, orgID)
}

// ListAtOrBelowReorderPoint returns items whose current stock has reached the reorder point.
func (r *InventoryRepository) ListAtOrBelowReorderPoint(ctx context.Context, orgID uuid.UUID) ([]*models.InventoryItem, error) {
	return r.selectItems(ctx,
		inventoryItemSelect+` WHERE i.organization_id = $1 AND i.current_stock <= i.reorder_point ORDER BY p.sku`, orgID)
}

func (r *InventoryRepository) selectItems(ctx context.Context, query string, args ...any) ([]*models.InventoryItem, error) {
	var rows []inventoryItemRow
	if err := r.db.DB().SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("query inventory items: %w", err)
	}
	out := make([]*models.InventoryItem, len(rows))
	for i, row := range rows {
		out[i] = rowToInventoryItem(row)
	}
	return out, nil
}

// GetItem returns ErrInventoryItemNotFound if id is unknown.
func (r *InventoryRepository) GetItem(ctx context.Context, id uuid.UUID) (*models.InventoryItem, error) {
	var row inventoryItemRow
	if err := r.db.DB().GetContext(ctx, &row, inventoryItemSelect+` WHERE i.id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrInventoryItemNotFound
		}
		return nil, fmt.Errorf("query inventory item: %w", err)
	}
	return rowToInventoryItem(row), nil
}

// ListMovements returns the item's movements since the given time, oldest first.
func (r *InventoryRepository) ListMovements(ctx context.Context, itemID uuid.UUID, since time.Time) ([]models.StockMovement, error) {
	var rows []stockMovementRow
	err := r.db.DB().SelectContext(ctx, &rows, `
		SELECT id, inventory_item_id, type, quantity, created_at
		FROM stock_movements WHERE inventory_item_id = $1 AND created_at >= $2 ORDER BY created_at`, itemID, since)
	if err != nil {
		return nil, fmt.Errorf("query stock movements: %w", err)
	}
	out := make([]models.StockMovement, len(rows))
	for i, row := range rows {
		out[i] = models.StockMovement{
			ID:              row.ID,
			InventoryItemID: row.InventoryItemID,
			Type:            models.MovementType(row.Type),
			Quantity:        row.Quantity,
			CreatedAt:       row.CreatedAt,
		}
	}
	return out, nil
}

// UpdateAverageDailyUsage stores the latest computed consumption rate.
func (r *InventoryRepository) UpdateAverageDailyUsage(ctx context.Context, id uuid.UUID, rate float64) error {
	res, err := r.db.DB().ExecContext(ctx,
		`UPDATE inventory_items SET average_daily_usage = $2, updated_at = now() WHERE id = $1`, id, rate)
	if err != nil {
		return fmt.Errorf("update average daily usage: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrInventoryItemNotFound
	}
	return nil
}

// ForecastRepository implements repositories.ForecastRepository against PostgreSQL.
type ForecastRepository struct {
	db *database.Database
}

// NewForecastRepository returns a ForecastRepository backed by the given pool.
func NewForecastRepository(db *database.Database) *ForecastRepository {
	return &ForecastRepository{db: db}
}

// ReplacePredictions swaps the organization's unresolved predictions for preds.
func (r *ForecastRepository) ReplacePredictions(ctx context.Context, orgID uuid.UUID, preds []models.StockoutPrediction) error {
	return r.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM stockout_predictions WHERE organization_id = $1 AND NOT resolved`, orgID); err != nil {
			return fmt.Errorf("delete predictions: %w", err)
		}
		for _, p := range preds {
			if _, err := tx.NamedExecContext(ctx, `
				INSERT INTO stockout_predictions (id, organization_id, inventory_item_id, days_until_stockout,
					predicted_date, reorder_by, confidence, urgency, suggested_action, suggested_quantity, resolved, created_at)
				VALUES (:id, :organization_id, :inventory_item_id, :days_until_stockout, :predicted_date, :reorder_by,
					:confidence, :urgency, :suggested_action, :suggested_quantity, :resolved, :created_at)`,
				predictionToRow(p)); err != nil {
				return fmt.Errorf("insert prediction: %w", err)
			}
		}
		return nil
	})
}

// ListPredictions returns the organization's predictions, soonest stockout first.
func (r *ForecastRepository) ListPredictions(ctx context.Context, orgID uuid.UUID) ([]models.StockoutPrediction, error) {
	var rows []predictionRow
	err := r.db.DB().SelectContext(ctx, &rows, `
		SELECT id, organization_id, inventory_item_id, days_until_stockout, predicted_date, reorder_by, confidence,
			urgency, suggested_action, suggested_quantity, resolved, created_at
		FROM stockout_predictions WHERE organization_id = $1 ORDER BY days_until_stockout`, orgID)
	if err != nil {
		return nil, fmt.Errorf("query predictions: %w", err)
	}
	out := make([]models.StockoutPrediction, len(rows))
	for i, row := range rows {
		out[i] = rowToPrediction(row)
	}
	return out, nil
}

// SaveReorderSuggestions appends policy suggestions.
func (r *ForecastRepository) SaveReorderSuggestions(ctx context.Context, suggestions []models.ReorderPolicySuggestion) error {
	if len(suggestions) == 0 {
		return nil
	}
	return r.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		for _, s := range suggestions {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO reorder_policy_suggestions (id, organization_id, inventory_item_id, current_reorder_point,
					suggested_reorder_point, current_reorder_quantity, suggested_reorder_quantity, safety_stock, reason, created_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
				s.ID, s.OrganizationID, s.InventoryItemID, s.CurrentReorderPoint, s.SuggestedReorderPoint,
				s.CurrentReorderQuantity, s.SuggestedReorderQuantity, s.SafetyStock, s.Reason, s.CreatedAt); err != nil {
				return fmt.Errorf("insert reorder suggestion: %w", err)
			}
		}
		return nil
	})
}
