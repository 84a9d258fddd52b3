package scanner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/ghuser/procureflow/pkg/cache"
	"github.com/ghuser/procureflow/pkg/logger"
	"github.com/ghuser/procureflow/services/procurement/domain"
	"github.com/ghuser/procureflow/services/procurement/domain/models"
	domainsvcs "github.com/ghuser/procureflow/services/procurement/domain/services"
	"github.com/ghuser/procureflow/services/procurement/domain/task"
	"github.com/ghuser/procureflow/services/procurement/infrastructure/adapters"
	"github.com/ghuser/procureflow/services/procurement/infrastructure/persistence/memory"
)

type stubCatalog struct {
	products []models.ScannedProduct
	err      error
	calls    int
}

func (s *stubCatalog) Fetch(context.Context, *models.Supplier) ([]models.ScannedProduct, error) {
	s.calls++
	return s.products, s.err
}

type stubStock struct {
	product *models.ScannedProduct
	err     error
}

func (s *stubStock) CheckStock(context.Context, *models.Supplier, string) (*models.ScannedProduct, error) {
	return s.product, s.err
}

type stubAdapters struct {
	bySupplier map[uuid.UUID]*stubCatalog
	stock      adapters.StockChecker
}

func (s *stubAdapters) For(sup *models.Supplier) (adapters.Catalog, models.CatalogAccess, error) {
	c, ok := s.bySupplier[sup.ID]
	if !ok {
		return nil, models.AccessNone, domain.ErrNoCatalogAccess
	}
	return c, models.AccessWebsite, nil
}

func (s *stubAdapters) Stock(*models.Supplier) adapters.StockChecker { return s.stock }

type mapCache struct {
	entries map[uuid.UUID][]cache.CachedOffer
}

func (m *mapCache) Get(_ context.Context, _, productID uuid.UUID) ([]cache.CachedOffer, error) {
	o, ok := m.entries[productID]
	if !ok {
		return nil, redis.Nil
	}
	return o, nil
}

func (m *mapCache) Set(_ context.Context, _, productID uuid.UUID, offers []cache.CachedOffer) error {
	m.entries[productID] = offers
	return nil
}

type fixture struct {
	store    *memory.Store
	agent    *Agent
	adapters *stubAdapters
	org      uuid.UUID
	supplier uuid.UUID
	product  uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{store: memory.New(), org: uuid.New(), supplier: uuid.New(), product: uuid.New()}
	f.store.AddOrganization(models.Organization{ID: f.org, Name: "Acme"})
	f.store.AddSupplier(models.Supplier{ID: f.supplier, OrganizationID: f.org, Name: "Bolt Co", WebsiteURL: "http://bolt", Active: true})
	f.store.AddProduct(models.Product{ID: f.product, OrganizationID: f.org, SKU: "HB", Name: "Hex bolt"})
	f.store.AddSupplierProduct(models.SupplierProduct{ID: uuid.New(), SupplierID: f.supplier, ProductID: f.product, SKU: "B-1", UnitPrice: decimal.NewFromInt(100), Currency: "USD", InStock: true})

	f.adapters = &stubAdapters{bySupplier: map[uuid.UUID]*stubCatalog{}}
	f.agent = New(Deps{
		Suppliers: f.store.Suppliers(),
		Catalog:   f.store.Catalog(),
		Jobs:      f.store.ScrapingJobs(),
		Adapters:  f.adapters,
	}, 0, logger.Nop())
	return f
}

func scanned(sku string, price int64) models.ScannedProduct {
	return models.ScannedProduct{SKU: sku, Price: decimal.NewFromInt(price), Currency: "USD", InStock: true}
}

func TestScanSupplier_RecordsChangeBeforeMovingPrice(t *testing.T) {
	f := newFixture(t)
	f.adapters.bySupplier[f.supplier] = &stubCatalog{products: []models.ScannedProduct{scanned("B-1", 120), scanned("UNKNOWN", 5)}}

	res := f.agent.ExecuteTask(context.Background(), task.New(task.ScanSupplierPayload{SupplierID: f.supplier}, 1))
	if !res.Success {
		t.Fatalf("scan failed: %s", res.Error)
	}
	report := res.Data.(ScanReport)
	if report.ItemsFound != 2 || report.ItemsChanged != 1 || report.Unmatched != 1 {
		t.Fatalf("report = %+v", report)
	}
	if report.Changes[0].ChangePct != 0.2 {
		t.Errorf("change pct = %v, want 0.2", report.Changes[0].ChangePct)
	}

	sp, _ := f.store.Catalog().GetSupplierProductBySKU(context.Background(), f.supplier, "B-1")
	if !sp.UnitPrice.Equal(decimal.NewFromInt(120)) {
		t.Errorf("price = %s, want 120", sp.UnitPrice)
	}
	hist, _ := f.store.Catalog().ListPriceHistory(context.Background(), f.supplier, f.product)
	if len(hist) != 1 || !hist[0].OldPrice.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("history = %+v", hist)
	}

	jobs := f.store.ScrapingJobs().All()
	if len(jobs) != 1 || jobs[0].Status != models.ScrapingCompleted || jobs[0].ItemsChanged != 1 {
		t.Fatalf("jobs = %+v", jobs)
	}
}

func TestScanSupplier_UnchangedPriceWritesNoHistory(t *testing.T) {
	f := newFixture(t)
	f.adapters.bySupplier[f.supplier] = &stubCatalog{products: []models.ScannedProduct{scanned("B-1", 100)}}

	for i := 0; i < 2; i++ {
		if res := f.agent.ScanSupplier(context.Background(), task.ScanSupplierPayload{SupplierID: f.supplier}); !res.Success {
			t.Fatalf("scan failed: %s", res.Error)
		}
	}
	hist, _ := f.store.Catalog().ListPriceHistory(context.Background(), f.supplier, f.product)
	if len(hist) != 0 {
		t.Fatalf("history = %d rows, want none", len(hist))
	}
	sp, _ := f.store.Catalog().GetSupplierProductBySKU(context.Background(), f.supplier, "B-1")
	if sp.LastCheckedAt == nil {
		t.Fatal("stock refresh must stamp LastCheckedAt")
	}
}

func TestScanSupplier_AdapterFailureIsRetryable(t *testing.T) {
	f := newFixture(t)
	f.adapters.bySupplier[f.supplier] = &stubCatalog{err: domain.ErrAdapterFailed}

	res := f.agent.ScanSupplier(context.Background(), task.ScanSupplierPayload{SupplierID: f.supplier})
	if res.Success || !res.Retryable {
		t.Fatalf("result = %+v, want retryable failure", res)
	}
	jobs := f.store.ScrapingJobs().All()
	if len(jobs) != 1 || jobs[0].Status != models.ScrapingFailed || jobs[0].Error == "" {
		t.Fatalf("jobs = %+v", jobs)
	}
}

func TestScanSupplier_MissingSupplierIsNotRetried(t *testing.T) {
	f := newFixture(t)
	res := f.agent.ScanSupplier(context.Background(), task.ScanSupplierPayload{SupplierID: uuid.New()})
	if res.Success || res.Retryable || res.Error != domain.ErrSupplierNotFound.Error() {
		t.Fatalf("result = %+v", res)
	}
}

func TestScanAll_ContinuesPastFailuresSequentially(t *testing.T) {
	f := newFixture(t)
	broken, noAccess := uuid.New(), uuid.New()
	f.store.AddSupplier(models.Supplier{ID: broken, OrganizationID: f.org, Name: "Acme Broken", Active: true})
	f.store.AddSupplier(models.Supplier{ID: noAccess, OrganizationID: f.org, Name: "Zed", Active: true})
	f.adapters.bySupplier[broken] = &stubCatalog{err: domain.ErrAdapterFailed}
	f.adapters.bySupplier[f.supplier] = &stubCatalog{products: []models.ScannedProduct{scanned("B-1", 90)}}

	var slept []time.Duration
	f.agent.delay = 2 * time.Second
	f.agent.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}

	res := f.agent.ScanAll(context.Background(), task.ScanAllPayload{OrganizationID: &f.org})
	if !res.Success {
		t.Fatalf("scan all failed: %s", res.Error)
	}
	batch := res.Data.(BatchReport)
	if batch.Scanned != 1 || batch.Failed != 2 || batch.ItemsChanged != 1 || len(batch.Suppliers) != 3 {
		t.Fatalf("batch = %+v", batch)
	}
	if len(slept) != 2 {
		t.Fatalf("delays = %v, want one between each pair of suppliers", slept)
	}
}

func TestScanAll_CancelledDuringDelay(t *testing.T) {
	f := newFixture(t)
	other := uuid.New()
	f.store.AddSupplier(models.Supplier{ID: other, OrganizationID: f.org, Name: "Zed", Active: true})
	f.adapters.bySupplier[f.supplier] = &stubCatalog{}
	f.adapters.bySupplier[other] = &stubCatalog{}
	f.agent.delay = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := f.agent.ScanAll(ctx, task.ScanAllPayload{})
	if res.Success || !res.Retryable {
		t.Fatalf("result = %+v, want retryable failure", res)
	}
	if f.adapters.bySupplier[other].calls != 0 {
		t.Fatal("second supplier must not be scanned after cancellation")
	}
}

func TestCheckStock(t *testing.T) {
	level := 7
	tests := []struct {
		name       string
		stock      adapters.StockChecker
		wantSource string
		wantLevel  *int
	}{
		{"no api uses last known", nil, "last_known", nil},
		{"api answers", &stubStock{product: &models.ScannedProduct{SKU: "B-1", InStock: true, StockLevel: &level}}, "live", &level},
		{"api fails falls back", &stubStock{err: errors.New("timeout")}, "last_known", nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			f.adapters.stock = tc.stock

			res := f.agent.CheckStock(context.Background(), task.CheckStockPayload{SupplierID: f.supplier, SKU: "B-1"})
			if !res.Success {
				t.Fatalf("check failed: %s", res.Error)
			}
			st := res.Data.(StockStatus)
			if st.Source != tc.wantSource || !st.InStock {
				t.Fatalf("status = %+v", st)
			}
			if (tc.wantLevel == nil) != (st.StockLevel == nil) {
				t.Fatalf("stock level = %v, want %v", st.StockLevel, tc.wantLevel)
			}
		})
	}
}

func TestCheckStock_UnknownSKU(t *testing.T) {
	f := newFixture(t)
	res := f.agent.CheckStock(context.Background(), task.CheckStockPayload{SupplierID: f.supplier, SKU: "nope"})
	if res.Success || res.Error != domain.ErrProductNotFound.Error() {
		t.Fatalf("result = %+v", res)
	}
}

func TestComparePrices_CachesRankedOffers(t *testing.T) {
	f := newFixture(t)
	cheap := uuid.New()
	f.store.AddSupplier(models.Supplier{ID: cheap, OrganizationID: f.org, Name: "Cheap", Active: true})
	f.store.AddSupplierProduct(models.SupplierProduct{ID: uuid.New(), SupplierID: cheap, ProductID: f.product, SKU: "C-1", UnitPrice: decimal.NewFromInt(80), InStock: true})
	offers := &mapCache{entries: map[uuid.UUID][]cache.CachedOffer{}}
	f.agent.Offers = offers

	p := task.ComparePricesPayload{OrganizationID: f.org, ProductID: f.product}
	first := f.agent.ComparePrices(context.Background(), p)
	if !first.Success || first.Metadata["cache"] != "miss" {
		t.Fatalf("first = %+v", first)
	}
	cmp := first.Data.(domainsvcs.PriceComparison)
	if cmp.Cheapest.SupplierName != "Cheap" || !cmp.PotentialSavings.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("comparison = %+v", cmp)
	}

	second := f.agent.ComparePrices(context.Background(), p)
	if second.Metadata["cache"] != "hit" {
		t.Fatalf("second call must be served from cache, got %+v", second.Metadata)
	}
	if got := second.Data.(domainsvcs.PriceComparison); got.Cheapest.SupplierName != "Cheap" {
		t.Fatalf("cached comparison = %+v", got)
	}
}

func TestComparePrices_UnknownProduct(t *testing.T) {
	f := newFixture(t)
	res := f.agent.ComparePrices(context.Background(), task.ComparePricesPayload{OrganizationID: f.org, ProductID: uuid.New()})
	if res.Success || res.Error != domain.ErrProductNotFound.Error() {
		t.Fatalf("result = %+v", res)
	}
}
