package postgres

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ghuser/procureflow/services/procurement/domain/models"
)

// Row structs mirror the tables column for column; rowTo* functions map them
// onto domain models.

type organizationRow struct {
	ID        uuid.UUID `db:"id"`
	Name      string    `db:"name"`
	CreatedAt time.Time `db:"created_at"`
}

func rowToOrganization(r organizationRow) *models.Organization {
	return &models.Organization{ID: r.ID, Name: r.Name, CreatedAt: r.CreatedAt}
}

type supplierRow struct {
	ID               uuid.UUID  `db:"id"`
	OrganizationID   uuid.UUID  `db:"organization_id"`
	Name             string     `db:"name"`
	Email            string     `db:"email"`
	APIEndpoint      string     `db:"api_endpoint"`
	APIKey           string     `db:"api_key"`
	PortalURL        string     `db:"portal_url"`
	PortalUsername   string     `db:"portal_username"`
	PortalPassword   string     `db:"portal_password"`
	WebsiteURL       string     `db:"website_url"`
	ReliabilityScore float64    `db:"reliability_score"`
	LeadTimeDays     int        `db:"lead_time_days"`
	Tier             string     `db:"tier"`
	Active           bool       `db:"active"`
	LastScannedAt    *time.Time `db:"last_scanned_at"`
	CreatedAt        time.Time  `db:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at"`
}

func rowToSupplier(r supplierRow) *models.Supplier {
	return &models.Supplier{
		ID:               r.ID,
		OrganizationID:   r.OrganizationID,
		Name:             r.Name,
		Email:            r.Email,
		APIEndpoint:      r.APIEndpoint,
		APIKey:           r.APIKey,
		PortalURL:        r.PortalURL,
		PortalUsername:   r.PortalUsername,
		PortalPassword:   r.PortalPassword,
		WebsiteURL:       r.WebsiteURL,
		ReliabilityScore: r.ReliabilityScore,
		LeadTimeDays:     r.LeadTimeDays,
		Tier:             r.Tier,
		Active:           r.Active,
		LastScannedAt:    r.LastScannedAt,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
}

type productRow struct {
	ID             uuid.UUID       `db:"id"`
	OrganizationID uuid.UUID       `db:"organization_id"`
	SKU            string          `db:"sku"`
	Name           string          `db:"name"`
	Category       string          `db:"category"`
	Unit           string          `db:"unit"`
	UnitCost       decimal.Decimal `db:"unit_cost"`
	CreatedAt      time.Time       `db:"created_at"`
}

func rowToProduct(r productRow) *models.Product {
	return &models.Product{
		ID:             r.ID,
		OrganizationID: r.OrganizationID,
		SKU:            r.SKU,
		Name:           r.Name,
		Category:       r.Category,
		Unit:           r.Unit,
		UnitCost:       r.UnitCost,
		CreatedAt:      r.CreatedAt,
	}
}

type supplierProductRow struct {
	ID            uuid.UUID       `db:"id"`
	SupplierID    uuid.UUID       `db:"supplier_id"`
	ProductID     uuid.UUID       `db:"product_id"`
	SKU           string          `db:"sku"`
	UnitPrice     decimal.Decimal `db:"unit_price"`
	Currency      string          `db:"currency"`
	MinOrderQty   int             `db:"min_order_qty"`
	InStock       bool            `db:"in_stock"`
	StockLevel    *int            `db:"stock_level"`
	LeadTimeDays  int             `db:"lead_time_days"`
	LastCheckedAt *time.Time      `db:"last_checked_at"`
	UpdatedAt     time.Time       `db:"updated_at"`
}

func rowToSupplierProduct(r supplierProductRow) models.SupplierProduct {
	return models.SupplierProduct{
		ID:            r.ID,
		SupplierID:    r.SupplierID,
		ProductID:     r.ProductID,
		SKU:           r.SKU,
		UnitPrice:     r.UnitPrice,
		Currency:      r.Currency,
		MinOrderQty:   r.MinOrderQty,
		InStock:       r.InStock,
		StockLevel:    r.StockLevel,
		LeadTimeDays:  r.LeadTimeDays,
		LastCheckedAt: r.LastCheckedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}

// offerRow is a supplier product joined with its supplier.
type offerRow struct {
	supplierProductRow
	SupplierName     string    `db:"supplier_name"`
	OrganizationID   uuid.UUID `db:"organization_id"`
	ReliabilityScore float64   `db:"reliability_score"`
}

func rowToOffer(r offerRow) models.Offer {
	return models.Offer{
		SupplierProduct:  rowToSupplierProduct(r.supplierProductRow),
		SupplierName:     r.SupplierName,
		OrganizationID:   r.OrganizationID,
		ReliabilityScore: r.ReliabilityScore,
	}
}

type priceHistoryRow struct {
	ID         uuid.UUID       `db:"id"`
	SupplierID uuid.UUID       `db:"supplier_id"`
	ProductID  uuid.UUID       `db:"product_id"`
	SKU        string          `db:"sku"`
	OldPrice   decimal.Decimal `db:"old_price"`
	NewPrice   decimal.Decimal `db:"new_price"`
	Currency   string          `db:"currency"`
	ChangePct  float64         `db:"change_pct"`
	RecordedAt time.Time       `db:"recorded_at"`
}

func rowToPriceHistory(r priceHistoryRow) *models.PriceHistory {
	return &models.PriceHistory{
		ID:         r.ID,
		SupplierID: r.SupplierID,
		ProductID:  r.ProductID,
		SKU:        r.SKU,
		OldPrice:   r.OldPrice,
		NewPrice:   r.NewPrice,
		Currency:   r.Currency,
		ChangePct:  r.ChangePct,
		RecordedAt: r.RecordedAt,
	}
}

// inventoryItemRow carries sku and name joined from products.
type inventoryItemRow struct {
	ID                uuid.UUID `db:"id"`
	OrganizationID    uuid.UUID `db:"organization_id"`
	ProductID         uuid.UUID `db:"product_id"`
	SKU               string    `db:"sku"`
	Name              string    `db:"name"`
	CurrentStock      int       `db:"current_stock"`
	ReservedStock     int       `db:"reserved_stock"`
	ReorderPoint      int       `db:"reorder_point"`
	ReorderQuantity   int       `db:"reorder_quantity"`
	SafetyStock       int       `db:"safety_stock"`
	AverageDailyUsage float64   `db:"average_daily_usage"`
	LeadTimeDays      int       `db:"lead_time_days"`
	UpdatedAt         time.Time `db:"updated_at"`
}

func rowToInventoryItem(r inventoryItemRow) *models.InventoryItem {
	return &models.InventoryItem{
		ID:                r.ID,
		OrganizationID:    r.OrganizationID,
		ProductID:         r.ProductID,
		SKU:               r.SKU,
		Name:              r.Name,
		CurrentStock:      r.CurrentStock,
		ReservedStock:     r.ReservedStock,
		ReorderPoint:      r.ReorderPoint,
		ReorderQuantity:   r.ReorderQuantity,
		SafetyStock:       r.SafetyStock,
		AverageDailyUsage: r.AverageDailyUsage,
		LeadTimeDays:      r.LeadTimeDays,
		UpdatedAt:         r.UpdatedAt,
	}
}

type stockMovementRow struct {
	ID              uuid.UUID `db:"id"`
	InventoryItemID uuid.UUID `db:"inventory_item_id"`
	Type            string    `db:"type"`
	Quantity        int       `db:"quantity"`
	CreatedAt       time.Time `db:"created_at"`
}

type predictionRow struct {
	ID                uuid.UUID  `db:"id"`
	OrganizationID    uuid.UUID  `db:"organization_id"`
	InventoryItemID   uuid.UUID  `db:"inventory_item_id"`
	DaysUntilStockout float64    `db:"days_until_stockout"`
	PredictedDate     *time.Time `db:"predicted_date"`
	ReorderBy         *time.Time `db:"reorder_by"`
	Confidence        float64    `db:"confidence"`
	Urgency           string     `db:"urgency"`
	SuggestedAction   string     `db:"suggested_action"`
	SuggestedQuantity int        `db:"suggested_quantity"`
	Resolved          bool       `db:"resolved"`
	CreatedAt         time.Time  `db:"created_at"`
}

func predictionToRow(p models.StockoutPrediction) predictionRow {
	return predictionRow{
		ID:                p.ID,
		OrganizationID:    p.OrganizationID,
		InventoryItemID:   p.InventoryItemID,
		DaysUntilStockout: p.DaysUntilStockout,
		PredictedDate:     p.PredictedDate,
		ReorderBy:         p.ReorderBy,
		Confidence:        p.Confidence,
		Urgency:           string(p.Urgency),
		SuggestedAction:   p.SuggestedAction,
		SuggestedQuantity: p.SuggestedQuantity,
		Resolved:          p.Resolved,
		CreatedAt:         p.CreatedAt,
	}
}

func rowToPrediction(r predictionRow) models.StockoutPrediction {
	return models.StockoutPrediction{
		ID:                r.ID,
		OrganizationID:    r.OrganizationID,
		InventoryItemID:   r.InventoryItemID,
		DaysUntilStockout: r.DaysUntilStockout,
		PredictedDate:     r.PredictedDate,
		ReorderBy:         r.ReorderBy,
		Confidence:        r.Confidence,
		Urgency:           models.Urgency(r.Urgency),
		SuggestedAction:   r.SuggestedAction,
		SuggestedQuantity: r.SuggestedQuantity,
		Resolved:          r.Resolved,
		CreatedAt:         r.CreatedAt,
	}
}

// negotiationRow stores the offer, counter history, terms and metadata as JSONB.
type negotiationRow struct {
	ID             uuid.UUID       `db:"id"`
	OrganizationID uuid.UUID       `db:"organization_id"`
	SupplierID     uuid.UUID       `db:"supplier_id"`
	Status         string          `db:"status"`
	InitialOffer   []byte          `db:"initial_offer"`
	CounterOffers  []byte          `db:"counter_offers"`
	FinalTerms     []byte          `db:"final_terms"`
	Savings        decimal.Decimal `db:"savings"`
	Metadata       []byte          `db:"metadata"`
	ExpiresAt      time.Time       `db:"expires_at"`
	CompletedAt    *time.Time      `db:"completed_at"`
	CreatedAt      time.Time       `db:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at"`
	Version        int64           `db:"version"`
}

func negotiationToRow(n *models.Negotiation) (negotiationRow, error) {
	row := negotiationRow{
		ID:             n.ID,
		OrganizationID: n.OrganizationID,
		SupplierID:     n.SupplierID,
		Status:         string(n.Status),
		Savings:        n.Savings,
		ExpiresAt:      n.ExpiresAt,
		CompletedAt:    n.CompletedAt,
		CreatedAt:      n.CreatedAt,
		UpdatedAt:      n.UpdatedAt,
		Version:        n.Version,
	}
	var err error
	if row.InitialOffer, err = json.Marshal(n.InitialOffer); err != nil {
		return row, fmt.Errorf("marshal initial offer: %w", err)
	}
	counters := n.CounterOffers
	if counters == nil {
		counters = []models.CounterOffer{}
	}
	if row.CounterOffers, err = json.Marshal(counters); err != nil {
		return row, fmt.Errorf("marshal counter offers: %w", err)
	}
	if n.FinalTerms != nil {
		if row.FinalTerms, err = json.Marshal(n.FinalTerms); err != nil {
			return row, fmt.Errorf("marshal final terms: %w", err)
		}
	}
	if row.Metadata, err = json.Marshal(n.Metadata); err != nil {
		return row, fmt.Errorf("marshal metadata: %w", err)
	}
	return row, nil
}

func rowToNegotiation(r negotiationRow) (*models.Negotiation, error) {
	n := &models.Negotiation{
		ID:             r.ID,
		OrganizationID: r.OrganizationID,
		SupplierID:     r.SupplierID,
		Status:         models.NegotiationStatus(r.Status),
		Savings:        r.Savings,
		ExpiresAt:      r.ExpiresAt,
		CompletedAt:    r.CompletedAt,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
		Version:        r.Version,
	}
	if err := json.Unmarshal(r.InitialOffer, &n.InitialOffer); err != nil {
		return nil, fmt.Errorf("unmarshal initial offer: %w", err)
	}
	if len(r.CounterOffers) > 0 {
		if err := json.Unmarshal(r.CounterOffers, &n.CounterOffers); err != nil {
			return nil, fmt.Errorf("unmarshal counter offers: %w", err)
		}
	}
	if len(r.FinalTerms) > 0 {
		n.FinalTerms = &models.FinalTerms{}
		if err := json.Unmarshal(r.FinalTerms, n.FinalTerms); err != nil {
			return nil, fmt.Errorf("unmarshal final terms: %w", err)
		}
	}
	if len(r.Metadata) > 0 {
		if err := json.Unmarshal(r.Metadata, &n.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	return n, nil
}

type messageRow struct {
	ID            uuid.UUID `db:"id"`
	NegotiationID uuid.UUID `db:"negotiation_id"`
	Direction     string    `db:"direction"`
	Subject       string    `db:"subject"`
	Body          string    `db:"body"`
	ExternalID    string    `db:"external_id"`
	DeliveryID    string    `db:"delivery_id"`
	CreatedAt     time.Time `db:"created_at"`
}

func messageToRow(m *models.NegotiationMessage) messageRow {
	return messageRow{
		ID:            m.ID,
		NegotiationID: m.NegotiationID,
		Direction:     string(m.Direction),
		Subject:       m.Subject,
		Body:          m.Body,
		ExternalID:    m.ExternalID,
		DeliveryID:    m.DeliveryID,
		CreatedAt:     m.CreatedAt,
	}
}

func rowToMessage(r messageRow) models.NegotiationMessage {
	return models.NegotiationMessage{
		ID:            r.ID,
		NegotiationID: r.NegotiationID,
		Direction:     models.MessageDirection(r.Direction),
		Subject:       r.Subject,
		Body:          r.Body,
		ExternalID:    r.ExternalID,
		DeliveryID:    r.DeliveryID,
		CreatedAt:     r.CreatedAt,
	}
}

type activityRow struct {
	ID             uuid.UUID  `db:"id"`
	OrganizationID *uuid.UUID `db:"organization_id"`
	AgentType      string     `db:"agent_type"`
	Action         string     `db:"action"`
	TaskID         *uuid.UUID `db:"task_id"`
	Attempt        int        `db:"attempt"`
	Success        bool       `db:"success"`
	Error          string     `db:"error"`
	Metadata       []byte     `db:"metadata"`
	DurationMs     int64      `db:"duration_ms"`
	CreatedAt      time.Time  `db:"created_at"`
}

func rowToActivity(r activityRow) (*models.ActivityLog, error) {
	a := &models.ActivityLog{
		ID:             r.ID,
		OrganizationID: r.OrganizationID,
		AgentType:      r.AgentType,
		Action:         r.Action,
		Attempt:        r.Attempt,
		Success:        r.Success,
		Error:          r.Error,
		DurationMs:     r.DurationMs,
		CreatedAt:      r.CreatedAt,
	}
	if r.TaskID != nil {
		a.TaskID = *r.TaskID
	}
	if len(r.Metadata) > 0 {
		if err := json.Unmarshal(r.Metadata, &a.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal activity metadata: %w", err)
		}
	}
	return a, nil
}
