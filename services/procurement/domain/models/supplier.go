package models

import (
	"time"

	"github.com/google/uuid"
)

// CatalogAccess is how a supplier's catalog is read.
type CatalogAccess string

const (
	AccessAPI     CatalogAccess = "api"
	AccessPortal  CatalogAccess = "portal"
	AccessWebsite CatalogAccess = "website"
	AccessNone    CatalogAccess = "none"
)

// Organization is the tenant that owns inventory and suppliers.
type Organization struct {
	ID        uuid.UUID
	Name      string
	CreatedAt time.Time
}

// Supplier is a vendor an organization buys from. Suppliers are soft
// deactivated, never deleted.
type Supplier struct {
	ID             uuid.UUID
	OrganizationID uuid.UUID // tenant scope
	Name           string
	Email          string

	APIEndpoint    string
	APIKey         string
	PortalURL      string
	PortalUsername string
	PortalPassword string
	WebsiteURL     string

	ReliabilityScore float64 // 0..1
	LeadTimeDays     int
	Tier             string
	Active           bool
	LastScannedAt    *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// AccessMethod picks the catalog adapter: API first, then an authenticated
// portal, then the public website.
func (s *Supplier) AccessMethod() CatalogAccess {
	switch {
	case s.APIEndpoint != "":
		return AccessAPI
	case s.PortalURL != "" && s.PortalUsername != "" && s.PortalPassword != "":
		return AccessPortal
	case s.WebsiteURL != "":
		return AccessWebsite
	default:
		return AccessNone
	}
}
