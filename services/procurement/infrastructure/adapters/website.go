package adapters

import (
	"bytes"
	"context"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"

	"github.com/ghuser/procureflow/services/procurement/domain/models"
)

// WebsiteAdapter scrapes a supplier's public catalog page.
type WebsiteAdapter struct {
	http *resty.Client
}

// NewWebsiteAdapter returns an adapter whose requests are bounded by timeout.
func NewWebsiteAdapter(timeout time.Duration, userAgent string) *WebsiteAdapter {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	h := resty.New().SetTimeout(timeout).SetHeader("Accept", "text/html")
	if userAgent != "" {
		h.SetHeader("User-Agent", userAgent)
	}
	return &WebsiteAdapter{http: h}
}

// Fetch downloads WebsiteURL and extracts its listings.
func (a *WebsiteAdapter) Fetch(ctx context.Context, s *models.Supplier) ([]models.ScannedProduct, error) {
	resp, err := a.http.R().SetContext(ctx).Get(s.WebsiteURL)
	if err != nil {
		return nil, failed(s, "GET %s: %v", s.WebsiteURL, err)
	}
	if resp.IsError() {
		return nil, failed(s, "GET %s: status %d", s.WebsiteURL, resp.StatusCode())
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body()))
	if err != nil {
		return nil, failed(s, "parse html: %v", err)
	}
	return ExtractListings(doc), nil
}
