// Package postgres implements the procurement repositories on PostgreSQL
// through sqlx. Writes that emit domain events publish them through the
// watermill outbox inside the same transaction.
package postgres

import "github.com/ghuser/procureflow/services/procurement/domain/repositories"

var (
	_ repositories.OrganizationRepository = (*OrganizationRepository)(nil)
	_ repositories.SupplierRepository     = (*SupplierRepository)(nil)
	_ repositories.CatalogRepository      = (*CatalogRepository)(nil)
	_ repositories.InventoryRepository    = (*InventoryRepository)(nil)
	_ repositories.ForecastRepository     = (*ForecastRepository)(nil)
	_ repositories.NegotiationRepository  = (*NegotiationRepository)(nil)
	_ repositories.ScrapingJobRepository  = (*ScrapingJobRepository)(nil)
	_ repositories.ActivityLogRepository  = (*ActivityLogRepository)(nil)
)
