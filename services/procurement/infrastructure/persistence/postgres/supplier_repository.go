package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ghuser/procureflow/pkg/database"
	"github.com/ghuser/procureflow/services/procurement/domain"
	"github.com/ghuser/procureflow/services/procurement/domain/models"
)

const supplierColumns = `id, organization_id, name, email, api_endpoint, api_key, portal_url, portal_username,
	portal_password, website_url, reliability_score, lead_time_days, tier, active, last_scanned_at, created_at, updated_at`

// isUniqueViolation reports whether err is a Postgres unique_violation.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// OrganizationRepository implements repositories.OrganizationRepository against PostgreSQL.
type OrganizationRepository struct {
	db *database.Database
}

// NewOrganizationRepository returns an OrganizationRepository backed by the given pool.
func NewOrganizationRepository(db *database.Database) *OrganizationRepository {
	return &OrganizationRepository{db: db}
}

// GetByID returns ErrOrganizationNotFound if id is unknown.
func (r *OrganizationRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Organization, error) {
	var row organizationRow
	err := r.db.DB().GetContext(ctx, &row, `SELECT id, name, created_at FROM organizations WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrOrganizationNotFound
		}
		return nil, fmt.Errorf("query organization: %w", err)
	}
	return rowToOrganization(row), nil
}

// List returns every organization ordered by name.
func (r *OrganizationRepository) List(ctx context.Context) ([]*models.Organization, error) {
	var rows []organizationRow
	if err := r.db.DB().SelectContext(ctx, &rows, `SELECT id, name, created_at FROM organizations ORDER BY name`); err != nil {
		return nil, fmt.Errorf("query organizations: %w", err)
	}
	out := make([]*models.Organization, len(rows))
	for i, row := range rows {
		out[i] = rowToOrganization(row)
	}
	return out, nil
}

// SupplierRepository implements repositories.SupplierRepository against PostgreSQL.
type SupplierRepository struct {
	db *database.Database
}

// NewSupplierRepository returns a SupplierRepository backed by the given pool.
func NewSupplierRepository(db *database.Database) *SupplierRepository {
	return &SupplierRepository{db: db}
}

// GetByID returns ErrSupplierNotFound for unknown or deactivated suppliers.
func (r *SupplierRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Supplier, error) {
	var row supplierRow
	err := r.db.DB().GetContext(ctx, &row, `SELECT `+supplierColumns+` FROM suppliers WHERE id = $1 AND active`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrSupplierNotFound
		}
		return nil, fmt.Errorf("query supplier: %w", err)
	}
	return rowToSupplier(row), nil
}

// ListActive returns active suppliers, optionally scoped to one organization.
func (r *SupplierRepository) ListActive(ctx context.Context, orgID *uuid.UUID) ([]*models.Supplier, error) {
	query := `SELECT ` + supplierColumns + ` FROM suppliers WHERE active`
	var args []any
	if orgID != nil {
		query += ` AND organization_id = $1`
		args = append(args, *orgID)
	}
	query += ` ORDER BY name`

	var rows []supplierRow
	if err := r.db.DB().SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("query suppliers: %w", err)
	}
	out := make([]*models.Supplier, len(rows))
	for i, row := range rows {
		out[i] = rowToSupplier(row)
	}
	return out, nil
}

// MarkScanned stamps the supplier's last successful scan.
func (r *SupplierRepository) MarkScanned(ctx context.Context, id uuid.UUID, at time.Time) error {
	res, err := r.db.DB().ExecContext(ctx,
		`UPDATE suppliers SET last_scanned_at = $2, updated_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("mark supplier scanned: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrSupplierNotFound
	}
	return nil
}
