package adapters

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/shopspring/decimal"

	"github.com/ghuser/procureflow/services/procurement/domain/models"
)

const defaultCurrency = "USD"

const (
	productSelector = `[class*="product"]`
	priceSelector   = `[class*="price"]`
	skuSelector     = `[class*="sku"]`
	stockSelector   = `[class*="stock"]`
	nameSelector    = `[class*="name"], [class*="title"], h1, h2, h3, h4`
)

var (
	numberRe   = regexp.MustCompile(`\d[\d,]*(?:\.\d+)?`)
	integerRe  = regexp.MustCompile(`\d+`)
	skuLabelRe = regexp.MustCompile(`(?i)^\s*(sku|item|part)\s*(#|no\.?|number)?\s*[:#]?\s*`)
	outOfStock = []string{"out of stock", "sold out", "unavailable", "backorder"}
	currencies = map[string]string{"$": "USD", "€": "EUR", "£": "GBP", "¥": "JPY"}
)

// ExtractListings applies the class-name heuristics to a catalog page. A card
// is the innermost element whose class mentions "product" and that contains a
// price; cards without a SKU or a readable price are skipped.
func ExtractListings(doc *goquery.Document) []models.ScannedProduct {
	var out []models.ScannedProduct
	doc.Find(productSelector).Each(func(_ int, card *goquery.Selection) {
		if card.Find(priceSelector).Length() == 0 {
			return
		}
		if card.Find(productSelector).FilterFunction(func(_ int, inner *goquery.Selection) bool {
			return inner.Find(priceSelector).Length() > 0
		}).Length() > 0 {
			return
		}

		sku := cardSKU(card)
		priceText := strings.TrimSpace(card.Find(priceSelector).First().Text())
		price, ok := ParsePrice(priceText)
		if sku == "" || !ok {
			return
		}
		p := models.ScannedProduct{
			SKU:      sku,
			Name:     strings.TrimSpace(card.Find(nameSelector).First().Text()),
			Price:    price,
			Currency: ParseCurrency(priceText),
			InStock:  true,
		}
		if stock := card.Find(stockSelector).First(); stock.Length() > 0 {
			p.InStock, p.StockLevel = ParseStock(stock.Text())
		}
		out = append(out, p)
	})
	return out
}

func cardSKU(card *goquery.Selection) string {
	if v, ok := card.Attr("data-sku"); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	el := card.Find(skuSelector).First()
	if v, ok := el.Attr("data-sku"); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return strings.TrimSpace(skuLabelRe.ReplaceAllString(el.Text(), ""))
}

// ParsePrice reads the first number in text, ignoring currency symbols and
// thousands separators.
func ParsePrice(text string) (decimal.Decimal, bool) {
	m := numberRe.FindString(text)
	if m == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(strings.ReplaceAll(m, ",", ""))
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// ParseCurrency maps a currency symbol or ISO code in text to its code.
func ParseCurrency(text string) string {
	for sym, code := range currencies {
		if strings.Contains(text, sym) {
			return code
		}
	}
	upper := strings.ToUpper(text)
	for _, code := range []string{"USD", "EUR", "GBP", "JPY", "CAD", "AUD"} {
		if strings.Contains(upper, code) {
			return code
		}
	}
	return defaultCurrency
}

// ParseStock reads availability text such as "In stock (12)" or "Sold out".
func ParseStock(text string) (bool, *int) {
	lower := strings.ToLower(text)
	for _, phrase := range outOfStock {
		if strings.Contains(lower, phrase) {
			zero := 0
			return false, &zero
		}
	}
	if m := integerRe.FindString(lower); m != "" {
		if n, err := strconv.Atoi(m); err == nil {
			return n > 0, &n
		}
	}
	return true, nil
}
