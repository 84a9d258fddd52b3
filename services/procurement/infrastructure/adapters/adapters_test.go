package adapters

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ghuser/procureflow/pkg/browser"
	"github.com/ghuser/procureflow/pkg/logger"
	"github.com/ghuser/procureflow/services/procurement/domain"
	"github.com/ghuser/procureflow/services/procurement/domain/models"
)

func TestSet_For(t *testing.T) {
	set := Set{API: NewAPIAdapter(time.Second), Website: NewWebsiteAdapter(time.Second, "")}

	tests := []struct {
		name     string
		supplier models.Supplier
		want     models.CatalogAccess
		wantErr  error
	}{
		{"api wins", models.Supplier{APIEndpoint: "http://api", WebsiteURL: "http://web"}, models.AccessAPI, nil},
		{"website", models.Supplier{WebsiteURL: "http://web"}, models.AccessWebsite, nil},
		{"portal without adapter", models.Supplier{PortalURL: "http://p", PortalUsername: "u", PortalPassword: "p"}, models.AccessPortal, domain.ErrNoCatalogAccess},
		{"nothing", models.Supplier{}, models.AccessNone, domain.ErrNoCatalogAccess},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, method, err := set.For(&tc.supplier)
			if method != tc.want {
				t.Errorf("method = %s, want %s", method, tc.want)
			}
			if !errors.Is(err, tc.wantErr) {
				t.Errorf("err = %v, want %v", err, tc.wantErr)
			}
		})
	}
}

func TestAPIAdapter_FetchPages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer k3y" {
			t.Errorf("Authorization = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Query().Get("page") {
		case "1":
			fmt.Fprint(w, `{"products":[{"sku":"B-1","name":"Bolt","price":"9.50","in_stock":true,"stock_level":40}],"next_page":2}`)
		default:
			fmt.Fprint(w, `{"products":[{"sku":"N-1","name":"Nut","price":0.25,"currency":"eur","stock_level":0},{"name":"no sku"}]}`)
		}
	}))
	defer srv.Close()

	sup := &models.Supplier{ID: uuid.New(), APIEndpoint: srv.URL, APIKey: "k3y"}
	got, err := NewAPIAdapter(time.Second).Fetch(context.Background(), sup)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("products = %+v", got)
	}
	if !got[0].Price.Equal(decimal.RequireFromString("9.5")) || got[0].Currency != "USD" || !got[0].InStock {
		t.Errorf("first = %+v", got[0])
	}
	if got[1].Currency != "EUR" || got[1].InStock {
		t.Errorf("second = %+v, want EUR and out of stock", got[1])
	}
}

func TestAPIAdapter_BareArrayAndErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/products":
			fmt.Fprint(w, `[{"sku":"A","price":1}]`)
		case "/products/A":
			fmt.Fprint(w, `{"sku":"A","price":1,"stock_level":3}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	a := NewAPIAdapter(time.Second)
	sup := &models.Supplier{ID: uuid.New(), APIEndpoint: srv.URL + "/"}

	list, err := a.Fetch(context.Background(), sup)
	if err != nil || len(list) != 1 {
		t.Fatalf("fetch = %+v, err = %v", list, err)
	}
	p, err := a.CheckStock(context.Background(), sup, "A")
	if err != nil || p.StockLevel == nil || *p.StockLevel != 3 || !p.InStock {
		t.Fatalf("check stock = %+v, err = %v", p, err)
	}
	if _, err := a.CheckStock(context.Background(), sup, "missing"); !errors.Is(err, domain.ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound, got %v", err)
	}

	down := &models.Supplier{ID: uuid.New(), APIEndpoint: srv.URL + "/nowhere"}
	if _, err := a.Fetch(context.Background(), down); !errors.Is(err, domain.ErrAdapterFailed) {
		t.Fatalf("expected ErrAdapterFailed, got %v", err)
	}
}

const catalogPage = `<html><body>
<div class="products">
  <div class="product-card" data-sku="B-1">
    <h3 class="product-title">Hex bolt</h3>
    <span class="price">$1,209.50</span>
    <span class="stock-status">In stock (12)</span>
  </div>
  <div class="product-card">
    <span class="product-name">Washer</span>
    <span class="item-sku">SKU: W-9</span>
    <span class="product-price">€0.40</span>
    <span class="stock">Sold out</span>
  </div>
  <div class="product-card"><span class="product-name">No price</span><span class="sku">X</span></div>
  <div class="product-card"><span class="price">$3</span></div>
</div>
</body></html>`

func TestExtractListings(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(catalogPage))
	if err != nil {
		t.Fatal(err)
	}
	got := ExtractListings(doc)
	if len(got) != 2 {
		t.Fatalf("listings = %+v", got)
	}

	bolt := got[0]
	if bolt.SKU != "B-1" || bolt.Name != "Hex bolt" || !bolt.Price.Equal(decimal.RequireFromString("1209.5")) {
		t.Errorf("bolt = %+v", bolt)
	}
	if !bolt.InStock || bolt.StockLevel == nil || *bolt.StockLevel != 12 {
		t.Errorf("bolt stock = %v %v", bolt.InStock, bolt.StockLevel)
	}
	washer := got[1]
	if washer.SKU != "W-9" || washer.Currency != "EUR" || washer.InStock {
		t.Errorf("washer = %+v", washer)
	}
}

func TestParsePrice(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"$9.99", "9.99", true},
		{"USD 1,000", "1000", true},
		{"Price: 12", "12", true},
		{"call us", "0", false},
	}
	for _, tc := range tests {
		got, ok := ParsePrice(tc.in)
		if ok != tc.ok || !got.Equal(decimal.RequireFromString(tc.want)) {
			t.Errorf("ParsePrice(%q) = %s, %v", tc.in, got, ok)
		}
	}
}

func TestWebsiteAdapter_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/catalog" {
			http.Error(w, "gone", http.StatusGone)
			return
		}
		fmt.Fprint(w, catalogPage)
	}))
	defer srv.Close()

	a := NewWebsiteAdapter(time.Second, "procureflow-test")
	got, err := a.Fetch(context.Background(), &models.Supplier{ID: uuid.New(), WebsiteURL: srv.URL + "/catalog"})
	if err != nil || len(got) != 2 {
		t.Fatalf("fetch = %+v, err = %v", got, err)
	}
	if _, err := a.Fetch(context.Background(), &models.Supplier{ID: uuid.New(), WebsiteURL: srv.URL + "/old"}); !errors.Is(err, domain.ErrAdapterFailed) {
		t.Fatalf("expected ErrAdapterFailed, got %v", err)
	}
}

func TestProfiles_For(t *testing.T) {
	id := uuid.New().String()
	profiles, err := ParseProfiles([]byte(`
default:
  catalog_path: /shop
  max_pages: 5
` + id + `:
  login_path: /signin
  next_selector: "li.next > a"
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	p := profiles.For(id)
	if p.LoginPath != "/signin" || p.CatalogPath != "/shop" || p.MaxPages != 5 || p.NextSelector != "li.next > a" {
		t.Fatalf("profile = %+v", p)
	}
	if d := profiles.For("other"); d.LoginPath != "/login" || d.CatalogPath != "/shop" {
		t.Fatalf("default profile = %+v", d)
	}
	if _, err := ParseProfiles([]byte("default: [oops")); err == nil {
		t.Fatal("expected decode error")
	}
}

type fakeRunner struct {
	sessions map[string]*browser.Session
	resets   int
}

func (f *fakeRunner) With(ctx context.Context, key string, fn func(context.Context, *browser.Session) error) error {
	s, ok := f.sessions[key]
	if !ok {
		s = &browser.Session{Key: key}
		f.sessions[key] = s
	}
	return fn(ctx, s)
}

func (f *fakeRunner) Reset(key string) {
	delete(f.sessions, key)
	f.resets++
}

type fakeDriver struct {
	pages   []string
	current int
	logins  int
	opened  string
	failOn  string
}

func (d *fakeDriver) Login(_ context.Context, base string, p PortalProfile, u, pw string) error {
	if d.failOn == "login" {
		return errors.New("bad credentials")
	}
	d.logins++
	return nil
}

func (d *fakeDriver) Open(_ context.Context, u string) error {
	d.opened, d.current = u, 0
	return nil
}

func (d *fakeDriver) HTML(context.Context) (string, error) { return d.pages[d.current], nil }

func (d *fakeDriver) Next(context.Context, string) (bool, error) {
	if d.current+1 >= len(d.pages) {
		return false, nil
	}
	d.current++
	return true, nil
}

func card(sku, price string) string {
	return `<div class="product"><span class="sku">` + sku + `</span><span class="price">` + price + `</span></div>`
}

func TestPortalAdapter_PaginatesAndReusesLogin(t *testing.T) {
	runner := &fakeRunner{sessions: map[string]*browser.Session{}}
	driver := &fakeDriver{pages: []string{card("A", "1") + card("B", "2"), card("B", "2") + card("C", "3")}}
	a := &PortalAdapter{sessions: runner, driver: driver, profiles: Profiles{}, log: logger.Nop()}
	sup := &models.Supplier{ID: uuid.New(), PortalURL: "https://portal.test/", PortalUsername: "u", PortalPassword: "p"}

	for i := 0; i < 2; i++ {
		got, err := a.Fetch(context.Background(), sup)
		if err != nil {
			t.Fatalf("fetch: %v", err)
		}
		if len(got) != 3 {
			t.Fatalf("listings = %+v, want A, B, C once each", got)
		}
	}
	if driver.logins != 1 {
		t.Errorf("logins = %d, want the session reused", driver.logins)
	}
	if driver.opened != "https://portal.test/catalog" {
		t.Errorf("opened = %s", driver.opened)
	}
}

func TestPortalAdapter_FailureResetsSession(t *testing.T) {
	runner := &fakeRunner{sessions: map[string]*browser.Session{}}
	a := &PortalAdapter{sessions: runner, driver: &fakeDriver{failOn: "login"}, profiles: Profiles{}, log: logger.Nop()}
	sup := &models.Supplier{ID: uuid.New(), PortalURL: "https://portal.test", PortalUsername: "u", PortalPassword: "p"}

	if _, err := a.Fetch(context.Background(), sup); !errors.Is(err, domain.ErrAdapterFailed) {
		t.Fatalf("expected ErrAdapterFailed, got %v", err)
	}
	if runner.resets != 1 || len(runner.sessions) != 0 {
		t.Fatalf("session must be dropped after a failed scan")
	}
}
