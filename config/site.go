package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// SiteProfile carries the markup-dependent knobs of the target site so a
// markup change is a YAML edit rather than a code change.
type SiteProfile struct {
	ID               string   `yaml:"id"`
	Name             string   `yaml:"name"`
	BaseURL          string   `yaml:"base_url"`
	MarketplacePath  string   `yaml:"marketplace_path"`
	LoginURL         string   `yaml:"login_url"`
	Locale           string   `yaml:"locale"`
	ItemPathMarker   string   `yaml:"item_path_marker"`
	FeedItemSelector string   `yaml:"feed_item_selector"`
	DetailMarker     string   `yaml:"detail_marker"`
	ConsentSelectors []string `yaml:"consent_selectors"`
	KnownLocations   []string `yaml:"known_locations"`

	locationRe *regexp.Regexp
}

// DefaultSiteProfile returns the built-in profile for the marketplace with its
// location pattern compiled.
func DefaultSiteProfile() *SiteProfile {
	site := &SiteProfile{
		ID:               "marketplace",
		Name:             "Facebook Marketplace",
		BaseURL:          "https://www.facebook.com",
		MarketplacePath:  "/marketplace",
		LoginURL:         "https://www.facebook.com/login",
		Locale:           "en_US",
		ItemPathMarker:   "/marketplace/item/",
		FeedItemSelector: "[data-testid='marketplace_feed_item']",
		DetailMarker:     "[data-pagelet='MarketplacePDP']",
		ConsentSelectors: []string{
			"button:has-text('Allow all cookies')",
			"button:has-text('Accept all')",
			"button:has-text('Разрешить все')",
			"button:has-text('Принять все')",
			"div[role='dialog'] button:has-text('OK')",
		},
		KnownLocations: []string{
			"Bangkok", "Hua Hin", "Pattaya", "Phuket", "Thailand",
			"Бангкок", "Хуахин", "Паттайя", "Пхукет",
		},
	}
	if err := site.compile(); err != nil {
		panic(err)
	}
	return site
}

// LoadSiteProfile overlays the YAML file at path onto the defaults. A
// missing file yields the defaults.
func LoadSiteProfile(path string) (*SiteProfile, error) {
	site := DefaultSiteProfile()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, site); err != nil {
				return nil, fmt.Errorf("parse site profile %s: %w", path, err)
			}
		case !os.IsNotExist(err):
			return nil, err
		}
	}

	if err := site.compile(); err != nil {
		return nil, err
	}
	return site, nil
}

func (s *SiteProfile) compile() error {
	if len(s.KnownLocations) == 0 {
		s.locationRe = nil
		return nil
	}
	parts := make([]string, len(s.KnownLocations))
	for i, loc := range s.KnownLocations {
		parts[i] = regexp.QuoteMeta(loc)
	}
	re, err := regexp.Compile(`(?i)(?:` + strings.Join(parts, "|") + `)`)
	if err != nil {
		return fmt.Errorf("known_locations: %w", err)
	}
	s.locationRe = re
	return nil
}

// IsKnownLocation reports whether line mentions one of the known locations.
// It only reads the profile, so a loaded profile can be shared freely.
func (s *SiteProfile) IsKnownLocation(line string) bool {
	if s.locationRe == nil {
		return false
	}
	return s.locationRe.MatchString(line)
}

// MarketplaceURL is the root every search URL hangs off.
func (s *SiteProfile) MarketplaceURL() string {
	return strings.TrimRight(s.BaseURL, "/") + s.MarketplacePath
}
