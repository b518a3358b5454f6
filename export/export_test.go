package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mkt_tracker/models"
)

type mockSource struct {
	mock.Mock
}

func (m *mockSource) ListingsSeenSince(ctx context.Context, since time.Time) ([]*models.Listing, error) {
	args := m.Called(ctx, since)
	listings, _ := args.Get(0).([]*models.Listing)
	return listings, args.Error(1)
}

func (m *mockSource) PriceHistory(ctx context.Context, itemID string) ([]models.PriceHistoryEvent, error) {
	args := m.Called(ctx, itemID)
	events, _ := args.Get(0).([]models.PriceHistoryEvent)
	return events, args.Error(1)
}

type mockUploader struct {
	mock.Mock
}

func (m *mockUploader) UploadFile(ctx context.Context, localPath, contentType string) (string, error) {
	args := m.Called(ctx, localPath, contentType)
	return args.String(0), args.Error(1)
}

func sampleListing() *models.Listing {
	price, year, km := 450000.0, 2019, 87000
	var attrs models.Attributes
	attrs.Set("Transmission", "Automatic")
	attrs.Set("Fuel type", "Diesel")
	return &models.Listing{
		ItemID:        "1234567890",
		ItemURL:       "https://www.facebook.com/marketplace/item/1234567890/",
		Title:         "Toyota Hilux, Revo",
		Brand:         "Toyota",
		Year:          &year,
		MileageKm:     &km,
		PriceText:     "฿450,000",
		PriceValue:    &price,
		PriceCurrency: "THB",
		ImageURLs:     []string{"https://a/1.jpg", "https://a/2.jpg"},
		Attributes:    attrs,
		FirstSeen:     time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		LastSeen:      time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC),
	}
}

func TestWriteListings(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteListings(&buf, []*models.Listing{sampleListing()}))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, ListingHeader, records[0])

	row := map[string]string{}
	for i, col := range records[0] {
		row[col] = records[1][i]
	}
	assert.Equal(t, "Toyota Hilux, Revo", row["title"])
	assert.Equal(t, "2019", row["year"])
	assert.Equal(t, "87000", row["mileage_km"])
	assert.Equal(t, "450000", row["price_value"])
	assert.Equal(t, "", row["latitude"])
	assert.Equal(t, "https://a/1.jpg|https://a/2.jpg", row["img_urls"])
	assert.Equal(t, `{"Transmission":"Automatic","Fuel type":"Diesel"}`, row["attributes_json"])
	assert.Equal(t, "2026-03-01T10:00:00Z", row["first_seen"])
}

func TestWritePriceHistory(t *testing.T) {
	var buf bytes.Buffer
	events := []models.PriceHistoryEvent{
		{ItemID: "1", ObservedAt: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), PriceValue: 1000, PriceCurrency: "THB"},
		{ItemID: "1", ObservedAt: time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC), PriceValue: 950.5, PriceCurrency: "THB"},
	}
	require.NoError(t, WritePriceHistory(&buf, events))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, []string{"1", "2026-03-05T00:00:00Z", "950.5", "THB"}, records[2])
}

func TestExporterNewSinceUploads(t *testing.T) {
	dir := t.TempDir()
	since := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	source := &mockSource{}
	source.On("ListingsSeenSince", mock.Anything, since).Return([]*models.Listing{sampleListing()}, nil)
	uploader := &mockUploader{}
	uploader.On("UploadFile", mock.Anything, filepath.Join(dir, "new.csv"), "text/csv").Return("exports/new.csv", nil)

	e := NewExporter(source, uploader, dir, zap.NewNop())
	path, err := e.NewSince(context.Background(), since, "new.csv")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "new.csv"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "1234567890")

	source.AssertExpectations(t)
	uploader.AssertExpectations(t)
}

func TestExporterPricesWithoutUploader(t *testing.T) {
	dir := t.TempDir()
	source := &mockSource{}
	source.On("PriceHistory", mock.Anything, "").Return([]models.PriceHistoryEvent{}, nil)

	e := NewExporter(source, nil, dir, zap.NewNop())
	path, err := e.Prices(context.Background(), "", filepath.Join("nested", "prices.csv"))
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "item_id,observed_at,price_value,price_currency\n", string(data))
}

func TestExporterSourceError(t *testing.T) {
	source := &mockSource{}
	source.On("PriceHistory", mock.Anything, "42").Return(nil, errors.New("db closed"))

	_, err := NewExporter(source, nil, t.TempDir(), zap.NewNop()).Prices(context.Background(), "42", "p.csv")
	assert.ErrorContains(t, err, "db closed")
}

func TestExporterUploadFailureKeepsFile(t *testing.T) {
	dir := t.TempDir()
	source := &mockSource{}
	source.On("PriceHistory", mock.Anything, "").Return([]models.PriceHistoryEvent{}, nil)
	uploader := &mockUploader{}
	uploader.On("UploadFile", mock.Anything, mock.Anything, "text/csv").Return("", errors.New("access denied"))

	path, err := NewExporter(source, uploader, dir, zap.NewNop()).Prices(context.Background(), "", "p.csv")
	require.Error(t, err)
	assert.FileExists(t, path)
}

func TestFileName(t *testing.T) {
	at := time.Date(2026, 3, 1, 10, 4, 5, 0, time.FixedZone("ICT", 7*3600))
	assert.Equal(t, "new_20260301T030405Z.csv", FileName("new", at))
}
