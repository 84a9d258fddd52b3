// Package scanner is the price-scan agent. It reads supplier catalogs through
// the adapters, records price transitions and answers stock and price
// comparison queries.
package scanner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ghuser/procureflow/pkg/cache"
	"github.com/ghuser/procureflow/pkg/logger"
	"github.com/ghuser/procureflow/services/procurement/domain"
	"github.com/ghuser/procureflow/services/procurement/domain/models"
	"github.com/ghuser/procureflow/services/procurement/domain/repositories"
	domainsvcs "github.com/ghuser/procureflow/services/procurement/domain/services"
	"github.com/ghuser/procureflow/services/procurement/domain/task"
	"github.com/ghuser/procureflow/services/procurement/infrastructure/adapters"
)

// Adapters resolves the catalog adapter of a supplier. adapters.Set implements it.
type Adapters interface {
	For(s *models.Supplier) (adapters.Catalog, models.CatalogAccess, error)
	Stock(s *models.Supplier) adapters.StockChecker
}

// OfferCache caches ranked offers per product. *cache.OfferCache implements it.
type OfferCache interface {
	Get(ctx context.Context, orgID, productID uuid.UUID) ([]cache.CachedOffer, error)
	Set(ctx context.Context, orgID, productID uuid.UUID, offers []cache.CachedOffer) error
}

// Browser is the lifecycle of the headless browser used by portal scans.
type Browser interface {
	Start(ctx context.Context) error
	Ping(ctx context.Context) error
	Close()
}

// Deps are the collaborators of the agent. Offers and Browser are optional.
type Deps struct {
	Suppliers repositories.SupplierRepository
	Catalog   repositories.CatalogRepository
	Jobs      repositories.ScrapingJobRepository
	Adapters  Adapters
	Offers    OfferCache
	Browser   Browser
}

// Agent implements task.Agent for the price-scanner tasks.
type Agent struct {
	Deps
	delay time.Duration
	log   logger.Logger
	now   func() time.Time
	sleep func(context.Context, time.Duration) error
}

var (
	_ task.Agent          = (*Agent)(nil)
	_ task.ScannerHandler = (*Agent)(nil)
)

// New returns a scanner that waits delay between suppliers during a full scan.
func New(deps Deps, delay time.Duration, log logger.Logger) *Agent {
	return &Agent{
		Deps:  deps,
		delay: delay,
		log:   logger.ForAgent(log, string(task.AgentScanner)),
		now:   func() time.Time { return time.Now().UTC() },
		sleep: sleepCtx,
	}
}

func (a *Agent) Type() task.AgentType { return task.AgentScanner }

// Initialize prepares the browser allocator when portal scanning is enabled.
func (a *Agent) Initialize(ctx context.Context) error {
	if a.Browser == nil {
		return nil
	}
	return a.Browser.Start(ctx)
}

func (a *Agent) Shutdown(_ context.Context) error {
	if a.Browser != nil {
		a.Browser.Close()
	}
	return nil
}

func (a *Agent) HealthCheck(ctx context.Context) error {
	if a.Browser == nil {
		return nil
	}
	return a.Browser.Ping(ctx)
}

func (a *Agent) ExecuteTask(ctx context.Context, t task.Task) task.Result {
	return task.DispatchScanner(ctx, t, a)
}

// PriceChange is one detected price transition.
type PriceChange struct {
	ProductID uuid.UUID       `json:"product_id"`
	SKU       string          `json:"sku"`
	OldPrice  decimal.Decimal `json:"old_price"`
	NewPrice  decimal.Decimal `json:"new_price"`
	ChangePct float64         `json:"change_pct"`
}

// ScanReport summarises the scan of one supplier.
type ScanReport struct {
	SupplierID   uuid.UUID            `json:"supplier_id"`
	SupplierName string               `json:"supplier_name"`
	Method       models.CatalogAccess `json:"method"`
	JobID        uuid.UUID            `json:"job_id"`
	ItemsFound   int                  `json:"items_found"`
	ItemsChanged int                  `json:"items_changed"`
	Unmatched    int                  `json:"unmatched"`
	Changes      []PriceChange        `json:"changes,omitempty"`
	Error        string               `json:"error,omitempty"`
}

// BatchReport summarises a full scan.
type BatchReport struct {
	Scanned      int          `json:"scanned"`
	Failed       int          `json:"failed"`
	ItemsChanged int          `json:"items_changed"`
	Suppliers    []ScanReport `json:"suppliers"`
}

func (a *Agent) ScanSupplier(ctx context.Context, p task.ScanSupplierPayload) task.Result {
	sup, err := a.Suppliers.GetByID(ctx, p.SupplierID)
	if err != nil {
		return task.Fail(err)
	}
	report, err := a.scan(ctx, sup)
	if err != nil {
		return failScan(err).With("job_id", report.JobID.String())
	}
	return task.OK(report)
}

// ScanAll scans suppliers one after another. A failing supplier is recorded
// and the batch moves on.
func (a *Agent) ScanAll(ctx context.Context, p task.ScanAllPayload) task.Result {
	suppliers, err := a.Suppliers.ListActive(ctx, p.OrganizationID)
	if err != nil {
		return task.Fail(err)
	}

	batch := BatchReport{Suppliers: make([]ScanReport, 0, len(suppliers))}
	for i, sup := range suppliers {
		if i > 0 {
			if err := a.sleep(ctx, a.delay); err != nil {
				return task.Fail(task.Transient(err)).With("scanned", batch.Scanned)
			}
		}
		report, err := a.scan(ctx, sup)
		if err != nil {
			a.log.WarnContext(ctx, "supplier scan failed", "supplier_id", sup.ID, "error", err)
			report.Error = err.Error()
			batch.Failed++
		} else {
			batch.Scanned++
			batch.ItemsChanged += report.ItemsChanged
		}
		batch.Suppliers = append(batch.Suppliers, report)
	}
	return task.OK(batch)
}

func (a *Agent) scan(ctx context.Context, sup *models.Supplier) (ScanReport, error) {
	report := ScanReport{SupplierID: sup.ID, SupplierName: sup.Name, JobID: uuid.New()}
	adapter, method, adapterErr := a.Adapters.For(sup)
	report.Method = method

	job := &models.ScrapingJob{
		ID:         report.JobID,
		SupplierID: sup.ID,
		Method:     method,
		Status:     models.ScrapingRunning,
		StartedAt:  a.now(),
	}
	if err := a.Jobs.Start(ctx, job); err != nil {
		return report, err
	}

	var products []models.ScannedProduct
	err := adapterErr
	if err == nil {
		products, err = adapter.Fetch(ctx, sup)
	}
	if err == nil {
		err = a.apply(ctx, sup, products, &report)
	}

	finished := a.now()
	job.FinishedAt = &finished
	job.ItemsFound, job.ItemsChanged = report.ItemsFound, report.ItemsChanged
	if err != nil {
		job.Status, job.Error = models.ScrapingFailed, err.Error()
	} else {
		job.Status = models.ScrapingCompleted
		if raw, mErr := json.Marshal(products); mErr == nil {
			job.RawResults = raw
		}
	}
	if fErr := a.Jobs.Finish(ctx, job); fErr != nil {
		a.log.ErrorContext(ctx, "failed to finish scraping job", "job_id", job.ID, "error", fErr)
	}
	if err != nil {
		return report, err
	}

	if err := a.Suppliers.MarkScanned(ctx, sup.ID, finished); err != nil {
		a.log.WarnContext(ctx, "failed to mark supplier scanned", "supplier_id", sup.ID, "error", err)
	}
	a.log.InfoContext(ctx, "supplier scanned",
		"supplier_id", sup.ID, "method", method, "items_found", report.ItemsFound,
		"items_changed", report.ItemsChanged, "unmatched", report.Unmatched)
	return report, nil
}

// apply matches scanned listings to the supplier's products. A changed price
// writes a PriceHistory row before the product moves; an unchanged price only
// refreshes the stock fields.
func (a *Agent) apply(ctx context.Context, sup *models.Supplier, products []models.ScannedProduct, report *ScanReport) error {
	report.ItemsFound = len(products)
	now := a.now()
	for _, p := range products {
		sp, err := a.Catalog.GetSupplierProductBySKU(ctx, sup.ID, p.SKU)
		if errors.Is(err, domain.ErrProductNotFound) {
			report.Unmatched++
			continue
		}
		if err != nil {
			return err
		}

		sp.InStock, sp.StockLevel, sp.LastCheckedAt = p.InStock, p.StockLevel, &now
		if !domainsvcs.PriceChanged(sp.UnitPrice, p.Price) {
			if err := a.Catalog.UpdateStock(ctx, sp); err != nil {
				return err
			}
			continue
		}

		currency := p.Currency
		if currency == "" {
			currency = sp.Currency
		}
		h := &models.PriceHistory{
			ID:         uuid.New(),
			SupplierID: sup.ID,
			ProductID:  sp.ProductID,
			SKU:        sp.SKU,
			OldPrice:   sp.UnitPrice,
			NewPrice:   p.Price,
			Currency:   currency,
			ChangePct:  domainsvcs.CalculatePriceChange(sp.UnitPrice, p.Price),
			RecordedAt: now,
		}
		if err := a.Catalog.ApplyPriceChange(ctx, sup.OrganizationID, sp, h); err != nil {
			return err
		}
		a.log.InfoContext(ctx, "price changed",
			"supplier_id", sup.ID, "sku", sp.SKU, "old_price", h.OldPrice, "new_price", h.NewPrice, "change_pct", h.ChangePct)
		report.ItemsChanged++
		report.Changes = append(report.Changes, PriceChange{
			ProductID: sp.ProductID, SKU: sp.SKU, OldPrice: h.OldPrice, NewPrice: h.NewPrice, ChangePct: h.ChangePct,
		})
	}
	return nil
}

// StockStatus answers a single-SKU stock lookup. Source is "live" when the
// supplier API answered, "last_known" otherwise.
type StockStatus struct {
	SupplierID uuid.UUID  `json:"supplier_id"`
	SKU        string     `json:"sku"`
	InStock    bool       `json:"in_stock"`
	StockLevel *int       `json:"stock_level,omitempty"`
	CheckedAt  *time.Time `json:"checked_at,omitempty"`
	Source     string     `json:"source"`
}

// CheckStock asks the supplier API when there is one and otherwise reports
// the state recorded by the last scan. It never runs a scan.
func (a *Agent) CheckStock(ctx context.Context, p task.CheckStockPayload) task.Result {
	sup, err := a.Suppliers.GetByID(ctx, p.SupplierID)
	if err != nil {
		return task.Fail(err)
	}
	sp, err := a.Catalog.GetSupplierProductBySKU(ctx, sup.ID, p.SKU)
	if err != nil {
		return task.Fail(err)
	}

	if checker := a.Adapters.Stock(sup); checker != nil {
		live, err := checker.CheckStock(ctx, sup, p.SKU)
		if err == nil {
			now := a.now()
			sp.InStock, sp.StockLevel, sp.LastCheckedAt = live.InStock, live.StockLevel, &now
			if err := a.Catalog.UpdateStock(ctx, sp); err != nil {
				a.log.WarnContext(ctx, "failed to record live stock", "supplier_id", sup.ID, "sku", p.SKU, "error", err)
			}
			return task.OK(StockStatus{SupplierID: sup.ID, SKU: p.SKU, InStock: live.InStock, StockLevel: live.StockLevel, CheckedAt: &now, Source: "live"})
		}
		a.log.WarnContext(ctx, "live stock check failed, using last known state", "supplier_id", sup.ID, "sku", p.SKU, "error", err)
	}
	return task.OK(StockStatus{
		SupplierID: sup.ID,
		SKU:        p.SKU,
		InStock:    sp.InStock,
		StockLevel: sp.StockLevel,
		CheckedAt:  sp.LastCheckedAt,
		Source:     "last_known",
	})
}

// ComparePrices ranks every known offer for a product. Ranked offers are
// served from the cache when present.
func (a *Agent) ComparePrices(ctx context.Context, p task.ComparePricesPayload) task.Result {
	if a.Offers != nil {
		if cached, err := a.Offers.Get(ctx, p.OrganizationID, p.ProductID); err == nil {
			return task.OK(domainsvcs.ComparePrices(fromCached(p.ProductID, cached))).With("cache", "hit")
		}
	}

	byProduct, err := a.Catalog.ListOffersForProducts(ctx, p.OrganizationID, []uuid.UUID{p.ProductID})
	if err != nil {
		return task.Fail(err)
	}
	offers := byProduct[p.ProductID]
	if len(offers) == 0 {
		if _, err := a.Catalog.GetProduct(ctx, p.ProductID); err != nil {
			return task.Fail(err)
		}
	}
	cmp := domainsvcs.ComparePrices(offers)
	if a.Offers != nil && len(offers) > 0 {
		if err := a.Offers.Set(ctx, p.OrganizationID, p.ProductID, toCached(cmp.Offers)); err != nil {
			a.log.WarnContext(ctx, "failed to cache offers", "product_id", p.ProductID, "error", err)
		}
	}
	return task.OK(cmp).With("cache", "miss")
}

func toCached(offers []models.Offer) []cache.CachedOffer {
	out := make([]cache.CachedOffer, len(offers))
	for i, o := range offers {
		out[i] = cache.CachedOffer{
			SupplierID:   o.SupplierID,
			SupplierName: o.SupplierName,
			SKU:          o.SKU,
			UnitPrice:    o.UnitPrice,
			Currency:     o.Currency,
			InStock:      o.InStock,
			LeadTimeDays: o.LeadTimeDays,
		}
	}
	return out
}

func fromCached(productID uuid.UUID, cached []cache.CachedOffer) []models.Offer {
	out := make([]models.Offer, len(cached))
	for i, c := range cached {
		out[i] = models.Offer{
			SupplierProduct: models.SupplierProduct{
				SupplierID:   c.SupplierID,
				ProductID:    productID,
				SKU:          c.SKU,
				UnitPrice:    c.UnitPrice,
				Currency:     c.Currency,
				InStock:      c.InStock,
				LeadTimeDays: c.LeadTimeDays,
			},
			SupplierName: c.SupplierName,
		}
	}
	return out
}

// failScan maps a scan error to a result. Adapter failures are worth another
// attempt; a supplier without any catalog access is not.
func failScan(err error) task.Result {
	if errors.Is(err, domain.ErrAdapterFailed) {
		return task.Fail(task.Transient(err))
	}
	return task.Fail(fmt.Errorf("scan: %w", err))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
