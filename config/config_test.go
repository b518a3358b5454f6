package config

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRunParamsValidate(t *testing.T) {
	valid := RunParams{Latitude: 13.75, Longitude: 100.5, RadiusKm: 50, Category: "all"}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name  string
		mod   func(p *RunParams)
		field string
	}{
		{"latitude too high", func(p *RunParams) { p.Latitude = 91 }, "latitude"},
		{"latitude NaN", func(p *RunParams) { p.Latitude = math.NaN() }, "latitude"},
		{"longitude too low", func(p *RunParams) { p.Longitude = -181 }, "longitude"},
		{"zero radius", func(p *RunParams) { p.RadiusKm = 0 }, "radius_km"},
		{"unknown category", func(p *RunParams) { p.Category = "boats" }, "category"},
		{"negative max items", func(p *RunParams) { p.MaxItems = -1 }, "max_items"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := valid
			tt.mod(&p)
			err := p.Validate()
			var vErr *ValidationError
			require.True(t, errors.As(err, &vErr), "expected ValidationError, got %v", err)
			require.Equal(t, tt.field, vErr.Field)
		})
	}
}

func TestLoadSiteProfileDefaultsWhenMissing(t *testing.T) {
	site, err := LoadSiteProfile(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	require.Equal(t, "https://www.facebook.com/marketplace", site.MarketplaceURL())
	require.True(t, site.IsKnownLocation("Hua Hin, Prachuap Khiri Khan"))
	require.False(t, site.IsKnownLocation("Lyon, France"))
}

func TestLoadSiteProfileOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "site.yaml")
	yml := "feed_item_selector: \"div.card\"\nknown_locations:\n  - Lyon\n"
	require.NoError(t, os.WriteFile(path, []byte(yml), 0644))

	site, err := LoadSiteProfile(path)
	require.NoError(t, err)
	require.Equal(t, "div.card", site.FeedItemSelector)
	require.Equal(t, "[data-pagelet='MarketplacePDP']", site.DetailMarker)
	require.True(t, site.IsKnownLocation("lyon"))
	require.False(t, site.IsKnownLocation("Bangkok"))
}

func TestDefaultSiteProfileSharedAcrossGoroutines(t *testing.T) {
	site := DefaultSiteProfile()
	require.NotNil(t, site.locationRe)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if !site.IsKnownLocation("Pattaya, Chon Buri") || site.IsKnownLocation("Lyon") {
					t.Error("unexpected location match result")
					return
				}
			}
		}()
	}
	wg.Wait()
}

func TestIsKnownLocationWithoutLocations(t *testing.T) {
	site := &SiteProfile{}
	require.NoError(t, site.compile())
	require.False(t, site.IsKnownLocation("Bangkok"))
}

func TestLoadSiteProfileBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "site.yaml")
	require.NoError(t, os.WriteFile(path, []byte("known_locations: [unclosed"), 0644))

	_, err := LoadSiteProfile(path)
	require.Error(t, err)
}
