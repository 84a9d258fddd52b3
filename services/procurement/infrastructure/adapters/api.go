package adapters

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"github.com/ghuser/procureflow/services/procurement/domain"
	"github.com/ghuser/procureflow/services/procurement/domain/models"
)

const maxAPIPages = 50

type apiProduct struct {
	SKU        string          `json:"sku"`
	Name       string          `json:"name"`
	Price      decimal.Decimal `json:"price"`
	Currency   string          `json:"currency"`
	InStock    *bool           `json:"in_stock"`
	StockLevel *int            `json:"stock_level"`
}

func (p apiProduct) normalize() models.ScannedProduct {
	out := models.ScannedProduct{
		SKU:        strings.TrimSpace(p.SKU),
		Name:       strings.TrimSpace(p.Name),
		Price:      p.Price,
		Currency:   strings.ToUpper(p.Currency),
		StockLevel: p.StockLevel,
	}
	if out.Currency == "" {
		out.Currency = defaultCurrency
	}
	switch {
	case p.InStock != nil:
		out.InStock = *p.InStock
	case p.StockLevel != nil:
		out.InStock = *p.StockLevel > 0
	default:
		out.InStock = true
	}
	return out
}

type apiPage struct {
	Products []apiProduct `json:"products"`
	NextPage int          `json:"next_page"`
}

// APIAdapter reads a supplier's JSON catalog. The endpoint serves
// GET /products (either a bare array or {"products": [...], "next_page": n})
// and GET /products/{sku}.
type APIAdapter struct {
	http *resty.Client
}

// NewAPIAdapter returns an adapter whose calls are bounded by timeout.
func NewAPIAdapter(timeout time.Duration) *APIAdapter {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &APIAdapter{http: resty.New().SetTimeout(timeout).SetHeader("Accept", "application/json")}
}

func (a *APIAdapter) request(ctx context.Context, s *models.Supplier) *resty.Request {
	r := a.http.R().SetContext(ctx)
	if s.APIKey != "" {
		r.SetAuthToken(s.APIKey).SetHeader("X-API-Key", s.APIKey)
	}
	return r
}

// Fetch pages through the catalog until the endpoint stops returning a next page.
func (a *APIAdapter) Fetch(ctx context.Context, s *models.Supplier) ([]models.ScannedProduct, error) {
	base := strings.TrimRight(s.APIEndpoint, "/") + "/products"
	var out []models.ScannedProduct

	for page := 1; page <= maxAPIPages; {
		resp, err := a.request(ctx, s).SetQueryParam("page", strconv.Itoa(page)).Get(base)
		if err != nil {
			return nil, failed(s, "GET %s: %v", base, err)
		}
		if resp.IsError() {
			return nil, failed(s, "GET %s: status %d", base, resp.StatusCode())
		}

		products, next, err := decodeCatalog(resp.Body())
		if err != nil {
			return nil, failed(s, "decode catalog: %v", err)
		}
		for _, p := range products {
			if p.SKU == "" {
				continue
			}
			out = append(out, p.normalize())
		}
		if next <= page {
			break
		}
		page = next
	}
	return out, nil
}

// CheckStock reads one SKU. An unknown SKU yields domain.ErrProductNotFound.
func (a *APIAdapter) CheckStock(ctx context.Context, s *models.Supplier, sku string) (*models.ScannedProduct, error) {
	u := strings.TrimRight(s.APIEndpoint, "/") + "/products/" + url.PathEscape(sku)
	resp, err := a.request(ctx, s).Get(u)
	if err != nil {
		return nil, failed(s, "GET %s: %v", u, err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return nil, domain.ErrProductNotFound
	}
	if resp.IsError() {
		return nil, failed(s, "GET %s: status %d", u, resp.StatusCode())
	}
	var p apiProduct
	if err := json.Unmarshal(resp.Body(), &p); err != nil {
		return nil, failed(s, "decode product: %v", err)
	}
	if p.SKU == "" {
		p.SKU = sku
	}
	out := p.normalize()
	return &out, nil
}

func decodeCatalog(body []byte) ([]apiProduct, int, error) {
	trimmed := strings.TrimSpace(string(body))
	if strings.HasPrefix(trimmed, "[") {
		var products []apiProduct
		if err := json.Unmarshal(body, &products); err != nil {
			return nil, 0, err
		}
		return products, 0, nil
	}
	var page apiPage
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, 0, err
	}
	return page.Products, page.NextPage, nil
}
