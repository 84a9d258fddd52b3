package adapters

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/chromedp"

	"github.com/ghuser/procureflow/pkg/browser"
	"github.com/ghuser/procureflow/pkg/logger"
	"github.com/ghuser/procureflow/services/procurement/domain/models"
)

// sessionRunner is the part of browser.Pool the portal adapter needs.
type sessionRunner interface {
	With(ctx context.Context, key string, fn func(ctx context.Context, s *browser.Session) error) error
	Reset(key string)
}

// pageDriver performs the browser actions of one portal scan.
type pageDriver interface {
	Login(ctx context.Context, base string, p PortalProfile, username, password string) error
	Open(ctx context.Context, url string) error
	HTML(ctx context.Context) (string, error)
	// Next follows the pagination link and reports whether there was one.
	Next(ctx context.Context, selector string) (bool, error)
}

// PortalAdapter logs into a supplier portal, opens the catalog and pages
// through it. Sessions are cached per supplier by the browser pool, so a
// login survives between scans.
type PortalAdapter struct {
	sessions sessionRunner
	driver   pageDriver
	profiles Profiles
	log      logger.Logger
}

// NewPortalAdapter drives portals through pool with chromedp.
func NewPortalAdapter(pool *browser.Pool, profiles Profiles, log logger.Logger) *PortalAdapter {
	return &PortalAdapter{sessions: pool, driver: chromedpDriver{}, profiles: profiles, log: log}
}

// Fetch scans every catalog page. A failed scan drops the cached session so
// the next attempt logs in again.
func (a *PortalAdapter) Fetch(ctx context.Context, s *models.Supplier) ([]models.ScannedProduct, error) {
	key := s.ID.String()
	profile := a.profiles.For(key)
	base := strings.TrimRight(s.PortalURL, "/")

	var out []models.ScannedProduct
	err := a.sessions.With(ctx, key, func(ctx context.Context, sess *browser.Session) error {
		if !sess.LoggedIn {
			if err := a.driver.Login(ctx, base, profile, s.PortalUsername, s.PortalPassword); err != nil {
				return err
			}
			sess.LoggedIn = true
			a.log.Info("portal: logged in", "supplier_id", key)
		}
		if err := a.driver.Open(ctx, resolve(base, profile.CatalogPath)); err != nil {
			return err
		}

		seen := map[string]bool{}
		for page := 1; ; page++ {
			html, err := a.driver.HTML(ctx)
			if err != nil {
				return err
			}
			doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
			if err != nil {
				return err
			}
			for _, p := range ExtractListings(doc) {
				if !seen[p.SKU] {
					seen[p.SKU] = true
					out = append(out, p)
				}
			}
			if page >= profile.MaxPages {
				return nil
			}
			more, err := a.driver.Next(ctx, profile.NextSelector)
			if err != nil || !more {
				return err
			}
		}
	})
	if err != nil {
		a.sessions.Reset(key)
		return nil, failed(s, "portal scan: %v", err)
	}
	return out, nil
}

func resolve(base, path string) string {
	if path == "" {
		return base
	}
	if u, err := url.Parse(path); err == nil && u.IsAbs() {
		return path
	}
	return base + "/" + strings.TrimLeft(path, "/")
}

// chromedpDriver runs actions on the tab bound to ctx.
type chromedpDriver struct{}

func (chromedpDriver) Login(ctx context.Context, base string, p PortalProfile, username, password string) error {
	if username == "" || password == "" {
		return errors.New("portal credentials are missing")
	}
	return chromedp.Run(ctx,
		chromedp.Navigate(resolve(base, p.LoginPath)),
		chromedp.WaitVisible(p.UsernameSelector, chromedp.ByQuery),
		chromedp.SendKeys(p.UsernameSelector, username, chromedp.ByQuery),
		chromedp.SendKeys(p.PasswordSelector, password, chromedp.ByQuery),
		chromedp.Click(p.SubmitSelector, chromedp.ByQuery),
		chromedp.WaitVisible(p.LoggedInSelector, chromedp.ByQuery),
	)
}

func (chromedpDriver) Open(ctx context.Context, u string) error {
	return chromedp.Run(ctx, chromedp.Navigate(u), chromedp.WaitReady("body", chromedp.ByQuery))
}

func (chromedpDriver) HTML(ctx context.Context) (string, error) {
	var html string
	err := chromedp.Run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery))
	return html, err
}

func (chromedpDriver) Next(ctx context.Context, selector string) (bool, error) {
	var present bool
	probe := `document.querySelector(` + jsString(selector) + `) !== null`
	if err := chromedp.Run(ctx, chromedp.Evaluate(probe, &present)); err != nil || !present {
		return false, err
	}
	err := chromedp.Run(ctx,
		chromedp.Click(selector, chromedp.ByQuery),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	return err == nil, err
}

func jsString(s string) string {
	r := strings.NewReplacer(`\`, `\\`, "`", "\\`", `$`, `\$`)
	return "`" + r.Replace(s) + "`"
}
