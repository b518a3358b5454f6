package scraper

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"mkt_tracker/config"
	"mkt_tracker/models"
)

// SearchTarget is one results URL and the category hint its listings get.
type SearchTarget struct {
	URL      string
	Category string
}

// BuildURLs plans the ordered, de-duplicated search URLs for a run: one per
// applicable category plus one for the free-text query.
func BuildURLs(site *config.SiteProfile, p config.RunParams) ([]SearchTarget, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	base := site.MarketplaceURL()
	geo := fmt.Sprintf("exact=false&latitude=%s&longitude=%s&radius_km=%s&locale=%s",
		formatFloat(p.Latitude), formatFloat(p.Longitude), formatFloat(p.RadiusKm), site.Locale)

	category := strings.ToLower(p.Category)
	var targets []SearchTarget
	if category == models.CategoryVehicles || category == models.CategoryAll {
		targets = append(targets, SearchTarget{URL: base + "/category/vehicles?" + geo, Category: models.CategoryVehicles})
	}
	if category == models.CategoryMotorcycles || category == models.CategoryAll {
		targets = append(targets, SearchTarget{URL: base + "/category/motorcycles?" + geo, Category: models.CategoryMotorcycles})
	}
	if q := strings.TrimSpace(p.Query); q != "" {
		targets = append(targets, SearchTarget{URL: base + "/search/?query=" + escapeQuery(q) + "&" + geo, Category: category})
	}

	seen := make(map[string]bool, len(targets))
	out := targets[:0]
	for _, t := range targets {
		if seen[t.URL] {
			continue
		}
		seen[t.URL] = true
		out = append(out, t)
	}
	return out, nil
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func escapeQuery(q string) string {
	return strings.ReplaceAll(url.QueryEscape(q), "+", "%20")
}

// MobileURL rewrites the host of raw to the site's mobile variant.
func MobileURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	switch {
	case strings.HasPrefix(u.Host, "m."):
		return raw
	case strings.HasPrefix(u.Host, "www."):
		u.Host = "m." + strings.TrimPrefix(u.Host, "www.")
	default:
		u.Host = "m." + u.Host
	}
	return u.String()
}
