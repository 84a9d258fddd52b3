// Package adapters reads supplier catalogs. Each supplier is served by the
// first adapter its record supports: a JSON API, an authenticated portal
// driven through a headless browser, or the public website.
package adapters

import (
	"context"
	"fmt"

	"github.com/ghuser/procureflow/services/procurement/domain"
	"github.com/ghuser/procureflow/services/procurement/domain/models"
)

// Catalog returns a supplier's current listings.
type Catalog interface {
	Fetch(ctx context.Context, s *models.Supplier) ([]models.ScannedProduct, error)
}

// StockChecker looks up one SKU without a full scan.
type StockChecker interface {
	CheckStock(ctx context.Context, s *models.Supplier, sku string) (*models.ScannedProduct, error)
}

// Set holds one adapter per access method. Nil members are treated as
// unavailable.
type Set struct {
	API     *APIAdapter
	Portal  *PortalAdapter
	Website *WebsiteAdapter
}

// For picks the adapter for s.
func (a Set) For(s *models.Supplier) (Catalog, models.CatalogAccess, error) {
	method := s.AccessMethod()
	var c Catalog
	switch method {
	case models.AccessAPI:
		if a.API != nil {
			c = a.API
		}
	case models.AccessPortal:
		if a.Portal != nil {
			c = a.Portal
		}
	case models.AccessWebsite:
		if a.Website != nil {
			c = a.Website
		}
	}
	if c == nil {
		return nil, method, fmt.Errorf("%w: supplier %s (%s)", domain.ErrNoCatalogAccess, s.ID, method)
	}
	return c, method, nil
}

// Stock returns the fast stock checker for s, or nil when the supplier has no API.
func (a Set) Stock(s *models.Supplier) StockChecker {
	if s.AccessMethod() == models.AccessAPI && a.API != nil {
		return a.API
	}
	return nil
}

func failed(s *models.Supplier, format string, args ...any) error {
	return fmt.Errorf("%w: supplier %s: %s", domain.ErrAdapterFailed, s.ID, fmt.Sprintf(format, args...))
}
