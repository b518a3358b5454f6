package scraper

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mkt_tracker/config"
	"mkt_tracker/models"
)

type fakeDetailPage struct {
	html    string
	ready   bool
	openErr error
	opened  []string
}

func (p *fakeDetailPage) OpenDetail(_ context.Context, url string, _ time.Duration) (bool, error) {
	p.opened = append(p.opened, url)
	return p.ready, p.openErr
}

func (p *fakeDetailPage) Content() (string, error) { return p.html, nil }

func newTestEnricher() *DetailEnricher {
	e := NewDetailEnricher(config.DefaultSiteProfile(), zap.NewNop())
	e.sleep = noSleep
	return e
}

func summaryListing() *models.Listing {
	price := 450000.0
	return &models.Listing{
		ItemID:        "1234567890",
		ItemURL:       "https://www.facebook.com/marketplace/item/1234567890/",
		Title:         "Toyota Hilux Revo 2.4 Prerunner",
		PriceText:     "฿450,000",
		PriceValue:    &price,
		PriceCurrency: "THB",
	}
}

func TestEnrichFullDetailPage(t *testing.T) {
	page := &fakeDetailPage{html: loadFixture(t, "detail.html"), ready: true}
	l := summaryListing()

	report, err := newTestEnricher().Enrich(context.Background(), page, l)
	require.NoError(t, err)
	assert.True(t, report.Enriched)
	assert.Empty(t, report.Misses)
	assert.Equal(t, []string{l.ItemURL}, page.opened)

	assert.Equal(t, "Single owner, full service history. Year 2019, pickup with canopy. No accidents, Bangkok plates.", l.Description)

	v, ok := l.Attributes.Get("transmission")
	require.True(t, ok)
	assert.Equal(t, "Automatic", v)
	v, ok = l.Attributes.Get("Fuel type")
	require.True(t, ok)
	assert.Equal(t, "Diesel", v)
	v, ok = l.Attributes.Get("Driven")
	require.True(t, ok)
	assert.Equal(t, "87,000 km", v)
	_, ok = l.Attributes.Get("Seller's description")
	assert.False(t, ok)

	assert.Equal(t, []string{
		"https://scontent.example.net/hilux_1.jpg",
		"https://scontent.example.net/hilux_2.jpg",
	}, l.ImageURLs)

	require.NotNil(t, l.Latitude)
	require.NotNil(t, l.Longitude)
	assert.InDelta(t, 13.7563309, *l.Latitude, 1e-9)
	assert.InDelta(t, 100.5017651, *l.Longitude, 1e-9)

	require.NotNil(t, l.PriceValue)
	assert.Equal(t, 435000.0, *l.PriceValue)
	assert.Equal(t, "THB", l.PriceCurrency)
	assert.Equal(t, "฿450,000", l.PriceText)

	assert.Equal(t, "Automatic", l.Transmission)
	assert.Equal(t, "Diesel", l.Fuel)
	assert.Equal(t, "Toyota", l.Brand)
	assert.Equal(t, "Hilux", l.Model)
	require.NotNil(t, l.Year)
	assert.Equal(t, 2019, *l.Year)
	require.NotNil(t, l.MileageKm)
	assert.Equal(t, 87000, *l.MileageKm)
}

func TestEnrichMarkerNeverAppears(t *testing.T) {
	page := &fakeDetailPage{html: loadFixture(t, "detail.html"), ready: false}
	l := summaryListing()
	before := *l

	report, err := newTestEnricher().Enrich(context.Background(), page, l)
	require.NoError(t, err)
	assert.False(t, report.Enriched)
	assert.Equal(t, []string{"page"}, report.MissFields())
	assert.Equal(t, before, *l)
}

func TestEnrichNavigationError(t *testing.T) {
	page := &fakeDetailPage{openErr: errors.New("net::ERR_CONNECTION_RESET")}
	l := summaryListing()

	report, err := newTestEnricher().Enrich(context.Background(), page, l)
	require.Error(t, err)
	assert.False(t, report.Enriched)
	assert.Empty(t, l.Description)
}

func TestEnrichPartialPageIsolatesMisses(t *testing.T) {
	page := &fakeDetailPage{html: loadFixture(t, "detail_bare.html"), ready: true}
	l := summaryListing()

	report, err := newTestEnricher().Enrich(context.Background(), page, l)
	require.NoError(t, err)
	assert.True(t, report.Enriched)
	assert.ElementsMatch(t, []string{"description", "images", "price"}, report.MissFields())

	require.NotNil(t, l.Latitude)
	assert.InDelta(t, 12.5683, *l.Latitude, 1e-9)
	assert.InDelta(t, 99.9576, *l.Longitude, 1e-9)
	assert.Equal(t, 450000.0, *l.PriceValue)
}

func TestExtractAttributesSkipsGenericLabels(t *testing.T) {
	html := `<ul>
<li>More: see all photos</li>
<li>Info: contact seller</li>
<li>About: this vehicle</li>
<li>See details: tap here</li>
<li>Details: open</li>
<li>Year: 2019</li>
</ul>`
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)

	r := extractAttributes(doc.Selection)
	require.True(t, r.Ok())
	assert.Equal(t, models.Attributes{{Label: "Year", Value: "2019"}}, r.Value)
}

func TestExtractCoordinatesRejectsOutOfRange(t *testing.T) {
	r := extractCoordinates(`{"latitude": 123.5, "longitude": 100.1}`)
	assert.False(t, r.Ok())
	assert.Equal(t, "coordinates", r.Miss.Field)
}

func TestGuardRecoversPanic(t *testing.T) {
	r := guard("images", func() Result[[]string] { panic("boom") })
	require.False(t, r.Ok())
	assert.Equal(t, "images", r.Miss.Field)
	assert.Contains(t, r.Miss.Error(), "boom")
}
