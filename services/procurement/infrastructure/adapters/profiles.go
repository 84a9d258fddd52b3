package adapters

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultProfileKey selects the profile used by suppliers without their own entry.
const DefaultProfileKey = "default"

// PortalProfile holds the selectors that drive one supplier portal.
type PortalProfile struct {
	LoginPath        string `yaml:"login_path"`
	UsernameSelector string `yaml:"username_selector"`
	PasswordSelector string `yaml:"password_selector"`
	SubmitSelector   string `yaml:"submit_selector"`
	LoggedInSelector string `yaml:"logged_in_selector"`
	CatalogPath      string `yaml:"catalog_path"`
	NextSelector     string `yaml:"next_selector"`
	MaxPages         int    `yaml:"max_pages"`
}

// Profiles maps a supplier id, or DefaultProfileKey, to its portal profile.
type Profiles map[string]PortalProfile

func builtinProfile() PortalProfile {
	return PortalProfile{
		LoginPath:        "/login",
		UsernameSelector: `input[name="username"], input[type="email"]`,
		PasswordSelector: `input[type="password"]`,
		SubmitSelector:   `button[type="submit"], input[type="submit"]`,
		LoggedInSelector: "body",
		CatalogPath:      "/catalog",
		NextSelector:     `a[rel="next"], .pagination .next a, a.next`,
		MaxPages:         20,
	}
}

// ParseProfiles decodes a YAML profile document.
func ParseProfiles(data []byte) (Profiles, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Profiles{}, nil
	}
	var p Profiles
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("adapters: decode portal profiles: %w", err)
	}
	return p, nil
}

// LoadProfiles reads profiles from path. An empty path yields no profiles, so
// every supplier uses the built-in selectors.
func LoadProfiles(path string) (Profiles, error) {
	if path == "" {
		return Profiles{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("adapters: read %s: %w", path, err)
	}
	return ParseProfiles(data)
}

// For resolves the profile for supplierID. Fields missing from the supplier's
// entry fall back to the default entry, then to the built-in selectors.
func (p Profiles) For(supplierID string) PortalProfile {
	out := builtinProfile()
	if d, ok := p[DefaultProfileKey]; ok {
		out = merge(out, d)
	}
	if s, ok := p[supplierID]; ok {
		out = merge(out, s)
	}
	return out
}

func merge(base, over PortalProfile) PortalProfile {
	pick := func(b, o string) string {
		if o != "" {
			return o
		}
		return b
	}
	base.LoginPath = pick(base.LoginPath, over.LoginPath)
	base.UsernameSelector = pick(base.UsernameSelector, over.UsernameSelector)
	base.PasswordSelector = pick(base.PasswordSelector, over.PasswordSelector)
	base.SubmitSelector = pick(base.SubmitSelector, over.SubmitSelector)
	base.LoggedInSelector = pick(base.LoggedInSelector, over.LoggedInSelector)
	base.CatalogPath = pick(base.CatalogPath, over.CatalogPath)
	base.NextSelector = pick(base.NextSelector, over.NextSelector)
	if over.MaxPages > 0 {
		base.MaxPages = over.MaxPages
	}
	return base
}
