// Package memory is an in-process implementation of every procurement
// repository. It backs STORE_BACKEND=memory and the application tests.
// Events are kept in an in-memory list instead of the outbox.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ghuser/procureflow/services/procurement/domain"
	domainevents "github.com/ghuser/procureflow/services/procurement/domain/events"
	"github.com/ghuser/procureflow/services/procurement/domain/models"
	"github.com/ghuser/procureflow/services/procurement/domain/repositories"
)

var (
	_ repositories.OrganizationRepository = (*Organizations)(nil)
	_ repositories.SupplierRepository     = (*Suppliers)(nil)
	_ repositories.CatalogRepository      = (*Catalog)(nil)
	_ repositories.InventoryRepository    = (*Inventory)(nil)
	_ repositories.ForecastRepository     = (*Forecasts)(nil)
	_ repositories.NegotiationRepository  = (*Negotiations)(nil)
	_ repositories.ScrapingJobRepository  = (*ScrapingJobs)(nil)
	_ repositories.ActivityLogRepository  = (*Activity)(nil)
)

// Published is an event recorded by the store.
type Published struct {
	Topic   string
	Payload any
}

// Store holds all procurement state behind one lock.
type Store struct {
	mu sync.RWMutex

	orgs         map[uuid.UUID]*models.Organization
	suppliers    map[uuid.UUID]*models.Supplier
	products     map[uuid.UUID]*models.Product
	supplierProd map[uuid.UUID]*models.SupplierProduct
	items        map[uuid.UUID]*models.InventoryItem
	movements    map[uuid.UUID][]models.StockMovement
	history      []*models.PriceHistory
	predictions  map[uuid.UUID][]models.StockoutPrediction
	suggestions  []models.ReorderPolicySuggestion
	negotiations map[uuid.UUID]*models.Negotiation
	messages     map[uuid.UUID][]models.NegotiationMessage
	jobs         map[uuid.UUID]*models.ScrapingJob
	activity     []*models.ActivityLog
	events       []Published
}

// New returns an empty store.
func New() *Store {
	return &Store{
		orgs:         map[uuid.UUID]*models.Organization{},
		suppliers:    map[uuid.UUID]*models.Supplier{},
		products:     map[uuid.UUID]*models.Product{},
		supplierProd: map[uuid.UUID]*models.SupplierProduct{},
		items:        map[uuid.UUID]*models.InventoryItem{},
		movements:    map[uuid.UUID][]models.StockMovement{},
		predictions:  map[uuid.UUID][]models.StockoutPrediction{},
		negotiations: map[uuid.UUID]*models.Negotiation{},
		messages:     map[uuid.UUID][]models.NegotiationMessage{},
		jobs:         map[uuid.UUID]*models.ScrapingJob{},
	}
}

// Seeding. These stand in for the onboarding and CRUD surfaces.

func (s *Store) AddOrganization(o models.Organization) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orgs[o.ID] = &o
}

func (s *Store) AddSupplier(sup models.Supplier) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.suppliers[sup.ID] = &sup
}

func (s *Store) AddProduct(p models.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[p.ID] = &p
}

func (s *Store) AddSupplierProduct(sp models.SupplierProduct) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.supplierProd[sp.ID] = &sp
}

func (s *Store) AddInventoryItem(i models.InventoryItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[i.ID] = &i
}

func (s *Store) AddMovement(m models.StockMovement) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.movements[m.InventoryItemID] = append(s.movements[m.InventoryItemID], m)
}

// Events returns a copy of every event published so far.
func (s *Store) Events() []Published {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Published(nil), s.events...)
}

// Organizations

func (s *Store) Organizations() *Organizations { return &Organizations{s} }

type Organizations struct{ s *Store }

func (r *Organizations) GetByID(_ context.Context, id uuid.UUID) (*models.Organization, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	o, ok := r.s.orgs[id]
	if !ok {
		return nil, domain.ErrOrganizationNotFound
	}
	cp := *o
	return &cp, nil
}

func (r *Organizations) List(_ context.Context) ([]*models.Organization, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]*models.Organization, 0, len(r.s.orgs))
	for _, o := range r.s.orgs {
		cp := *o
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Suppliers

func (s *Store) Suppliers() *Suppliers { return &Suppliers{s} }

type Suppliers struct{ s *Store }

func (r *Suppliers) GetByID(_ context.Context, id uuid.UUID) (*models.Supplier, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	sup, ok := r.s.suppliers[id]
	if !ok || !sup.Active {
		return nil, domain.ErrSupplierNotFound
	}
	cp := *sup
	return &cp, nil
}

func (r *Suppliers) ListActive(_ context.Context, orgID *uuid.UUID) ([]*models.Supplier, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*models.Supplier
	for _, sup := range r.s.suppliers {
		if !sup.Active || (orgID != nil && sup.OrganizationID != *orgID) {
			continue
		}
		cp := *sup
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *Suppliers) MarkScanned(_ context.Context, id uuid.UUID, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sup, ok := r.s.suppliers[id]
	if !ok {
		return domain.ErrSupplierNotFound
	}
	sup.LastScannedAt = &at
	sup.UpdatedAt = at
	return nil
}

// Catalog

func (s *Store) Catalog() *Catalog { return &Catalog{s} }

type Catalog struct{ s *Store }

func (r *Catalog) GetProduct(_ context.Context, id uuid.UUID) (*models.Product, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	p, ok := r.s.products[id]
	if !ok {
		return nil, domain.ErrProductNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *Catalog) ListSupplierProducts(_ context.Context, supplierID uuid.UUID) ([]*models.SupplierProduct, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*models.SupplierProduct
	for _, sp := range r.s.supplierProd {
		if sp.SupplierID == supplierID {
			cp := *sp
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SKU < out[j].SKU })
	return out, nil
}

func (r *Catalog) GetSupplierProductBySKU(_ context.Context, supplierID uuid.UUID, sku string) (*models.SupplierProduct, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, sp := range r.s.supplierProd {
		if sp.SupplierID == supplierID && sp.SKU == sku {
			cp := *sp
			return &cp, nil
		}
	}
	return nil, domain.ErrProductNotFound
}

func (r *Catalog) ListOffersForProducts(_ context.Context, orgID uuid.UUID, productIDs []uuid.UUID) (map[uuid.UUID][]models.Offer, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	wanted := make(map[uuid.UUID]bool, len(productIDs))
	for _, id := range productIDs {
		wanted[id] = true
	}
	out := map[uuid.UUID][]models.Offer{}
	for _, sp := range r.s.supplierProd {
		if !wanted[sp.ProductID] {
			continue
		}
		sup, ok := r.s.suppliers[sp.SupplierID]
		if !ok || !sup.Active || sup.OrganizationID != orgID {
			continue
		}
		out[sp.ProductID] = append(out[sp.ProductID], models.Offer{
			SupplierProduct:  *sp,
			SupplierName:     sup.Name,
			OrganizationID:   sup.OrganizationID,
			ReliabilityScore: sup.ReliabilityScore,
		})
	}
	for id := range out {
		offers := out[id]
		sort.SliceStable(offers, func(i, j int) bool { return offers[i].UnitPrice.LessThan(offers[j].UnitPrice) })
	}
	return out, nil
}

func (r *Catalog) ApplyPriceChange(_ context.Context, orgID uuid.UUID, sp *models.SupplierProduct, h *models.PriceHistory) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.supplierProd[sp.ID]
	if !ok {
		return domain.ErrProductNotFound
	}
	hist := *h
	r.s.history = append(r.s.history, &hist)

	stored.UnitPrice = h.NewPrice
	stored.InStock = sp.InStock
	stored.StockLevel = sp.StockLevel
	stored.LastCheckedAt = sp.LastCheckedAt
	stored.UpdatedAt = h.RecordedAt

	r.s.events = append(r.s.events, Published{Topic: domainevents.TopicPriceChanged, Payload: domainevents.PriceChangedEvent{
		EventID:        uuid.New(),
		Version:        1,
		OrganizationID: orgID,
		SupplierID:     sp.SupplierID,
		ProductID:      sp.ProductID,
		SKU:            sp.SKU,
		OldPrice:       h.OldPrice,
		NewPrice:       h.NewPrice,
		OccurredAt:     h.RecordedAt,
	}})
	return nil
}

func (r *Catalog) UpdateStock(_ context.Context, sp *models.SupplierProduct) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.supplierProd[sp.ID]
	if !ok {
		return domain.ErrProductNotFound
	}
	stored.InStock = sp.InStock
	stored.StockLevel = sp.StockLevel
	stored.LastCheckedAt = sp.LastCheckedAt
	return nil
}

func (r *Catalog) ListPriceHistory(_ context.Context, supplierID, productID uuid.UUID) ([]*models.PriceHistory, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*models.PriceHistory
	for _, h := range r.s.history {
		if h.SupplierID == supplierID && h.ProductID == productID {
			cp := *h
			out = append(out, &cp)
		}
	}
	return out, nil
}

// Inventory

func (s *Store) Inventory() *Inventory { return &Inventory{s} }

type Inventory struct{ s *Store }

func (r *Inventory) ListItems(_ context.Context, orgID uuid.UUID) ([]*models.InventoryItem, error) {
	return r.list(orgID, func(*models.InventoryItem) bool { return true }), nil
}

func (r *Inventory) ListAtOrBelowReorderPoint(_ context.Context, orgID uuid.UUID) ([]*models.InventoryItem, error) {
	return r.list(orgID, (*models.InventoryItem).AtOrBelowReorderPoint), nil
}

func (r *Inventory) list(orgID uuid.UUID, keep func(*models.InventoryItem) bool) []*models.InventoryItem {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*models.InventoryItem
	for _, it := range r.s.items {
		if it.OrganizationID == orgID && keep(it) {
			cp := *it
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SKU < out[j].SKU })
	return out
}

func (r *Inventory) GetItem(_ context.Context, id uuid.UUID) (*models.InventoryItem, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	it, ok := r.s.items[id]
	if !ok {
		return nil, domain.ErrInventoryItemNotFound
	}
	cp := *it
	return &cp, nil
}

func (r *Inventory) ListMovements(_ context.Context, itemID uuid.UUID, since time.Time) ([]models.StockMovement, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []models.StockMovement
	for _, m := range r.s.movements[itemID] {
		if !m.CreatedAt.Before(since) {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *Inventory) UpdateAverageDailyUsage(_ context.Context, id uuid.UUID, rate float64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	it, ok := r.s.items[id]
	if !ok {
		return domain.ErrInventoryItemNotFound
	}
	it.AverageDailyUsage = rate
	return nil
}

// Forecasts

func (s *Store) Forecasts() *Forecasts { return &Forecasts{s} }

type Forecasts struct{ s *Store }

func (r *Forecasts) ReplacePredictions(_ context.Context, orgID uuid.UUID, preds []models.StockoutPrediction) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var kept []models.StockoutPrediction
	for _, p := range r.s.predictions[orgID] {
		if p.Resolved {
			kept = append(kept, p)
		}
	}
	r.s.predictions[orgID] = append(kept, preds...)
	return nil
}

func (r *Forecasts) ListPredictions(_ context.Context, orgID uuid.UUID) ([]models.StockoutPrediction, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return append([]models.StockoutPrediction(nil), r.s.predictions[orgID]...), nil
}

func (r *Forecasts) SaveReorderSuggestions(_ context.Context, suggestions []models.ReorderPolicySuggestion) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.suggestions = append(r.s.suggestions, suggestions...)
	return nil
}

// ReorderSuggestions returns every saved suggestion.
func (r *Forecasts) ReorderSuggestions() []models.ReorderPolicySuggestion {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return append([]models.ReorderPolicySuggestion(nil), r.s.suggestions...)
}

// Negotiations

func (s *Store) Negotiations() *Negotiations { return &Negotiations{s} }

type Negotiations struct{ s *Store }

func (r *Negotiations) Create(_ context.Context, n *models.Negotiation, first *models.NegotiationMessage) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.negotiations[n.ID] = cloneNegotiation(n)
	if first != nil {
		r.s.messages[n.ID] = append(r.s.messages[n.ID], *first)
	}
	return nil
}

func (r *Negotiations) GetByID(_ context.Context, id uuid.UUID) (*models.Negotiation, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	n, ok := r.s.negotiations[id]
	if !ok {
		return nil, domain.ErrNegotiationNotFound
	}
	return cloneNegotiation(n), nil
}

func (r *Negotiations) ListMessages(_ context.Context, negotiationID uuid.UUID) ([]models.NegotiationMessage, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return append([]models.NegotiationMessage(nil), r.s.messages[negotiationID]...), nil
}

func (r *Negotiations) AppendMessage(_ context.Context, m *models.NegotiationMessage) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.negotiations[m.NegotiationID]; !ok {
		return false, domain.ErrNegotiationNotFound
	}
	if m.Direction == models.DirectionInbound && m.DeliveryID != "" {
		for _, existing := range r.s.messages[m.NegotiationID] {
			if existing.Direction == models.DirectionInbound && existing.DeliveryID == m.DeliveryID {
				return false, nil
			}
		}
	}
	r.s.messages[m.NegotiationID] = append(r.s.messages[m.NegotiationID], *m)
	return true, nil
}

func (r *Negotiations) Update(_ context.Context, n *models.Negotiation, msgs ...*models.NegotiationMessage) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	prev, ok := r.s.negotiations[n.ID]
	if !ok {
		return domain.ErrNegotiationNotFound
	}
	if prev.Version != n.Version {
		return fmt.Errorf("%w: read at version %d, stored %d", domain.ErrNegotiationConflict, n.Version, prev.Version)
	}
	wasTerminal := prev.Status.Terminal()
	n.Version++
	r.s.negotiations[n.ID] = cloneNegotiation(n)
	for _, m := range msgs {
		r.s.messages[n.ID] = append(r.s.messages[n.ID], *m)
	}
	if n.Status.Terminal() && !wasTerminal {
		r.s.events = append(r.s.events, Published{Topic: domainevents.TopicNegotiationClosed, Payload: domainevents.NegotiationClosedEvent{
			EventID:        uuid.New(),
			Version:        1,
			NegotiationID:  n.ID,
			OrganizationID: n.OrganizationID,
			SupplierID:     n.SupplierID,
			Status:         string(n.Status),
			Savings:        n.Savings,
			OccurredAt:     n.UpdatedAt,
		}})
	}
	return nil
}

func (r *Negotiations) ListExpired(_ context.Context, now time.Time) ([]*models.Negotiation, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*models.Negotiation
	for _, n := range r.s.negotiations {
		if n.Status == models.NegotiationInProgress && n.Expired(now) {
			out = append(out, cloneNegotiation(n))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	return out, nil
}

func cloneNegotiation(n *models.Negotiation) *models.Negotiation {
	cp := *n
	cp.CounterOffers = append([]models.CounterOffer(nil), n.CounterOffers...)
	cp.InitialOffer.Lines = append([]models.OfferLine(nil), n.InitialOffer.Lines...)
	return &cp
}

// Scraping jobs

func (s *Store) ScrapingJobs() *ScrapingJobs { return &ScrapingJobs{s} }

type ScrapingJobs struct{ s *Store }

func (r *ScrapingJobs) Start(_ context.Context, job *models.ScrapingJob) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cp := *job
	r.s.jobs[job.ID] = &cp
	return nil
}

func (r *ScrapingJobs) Finish(_ context.Context, job *models.ScrapingJob) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cp := *job
	r.s.jobs[job.ID] = &cp
	return nil
}

// All returns every scraping job ordered by start time.
func (r *ScrapingJobs) All() []*models.ScrapingJob {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]*models.ScrapingJob, 0, len(r.s.jobs))
	for _, j := range r.s.jobs {
		cp := *j
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}

// Activity log

func (s *Store) Activity() *Activity { return &Activity{s} }

type Activity struct{ s *Store }

func (r *Activity) Record(_ context.Context, entry *models.ActivityLog) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cp := *entry
	r.s.activity = append(r.s.activity, &cp)
	if entry.TaskID != uuid.Nil {
		r.s.events = append(r.s.events, Published{Topic: domainevents.TopicTaskFinished, Payload: domainevents.TaskFinishedEvent{
			EventID:    uuid.New(),
			Version:    1,
			TaskID:     entry.TaskID,
			Agent:      entry.AgentType,
			Type:       entry.Action,
			Attempt:    entry.Attempt,
			Success:    entry.Success,
			Error:      entry.Error,
			DurationMs: entry.DurationMs,
			OccurredAt: entry.CreatedAt,
		}})
	}
	return nil
}

// List returns the newest entries first.
func (r *Activity) List(_ context.Context, limit int) ([]*models.ActivityLog, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]*models.ActivityLog, 0, len(r.s.activity))
	for i := len(r.s.activity) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		cp := *r.s.activity[i]
		out = append(out, &cp)
	}
	return out, nil
}
