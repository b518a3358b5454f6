package storage

import (
	"context"
	"fmt"
	"time"

	"mkt_tracker/config"
	"mkt_tracker/models"
)

// UpsertResult reports what an upsert did to the stored listing.
type UpsertResult struct {
	IsNew        bool
	PriceChanged bool
}

// ListingStore is the write path the crawl depends on.
type ListingStore interface {
	UpsertListing(ctx context.Context, l *models.Listing, now time.Time) (UpsertResult, error)
}

// RunStore records crawl runs.
type RunStore interface {
	CreateRun(ctx context.Context, run *models.ScrapeRun) error
	UpdateRun(ctx context.Context, run *models.ScrapeRun) error
}

// Store is the full persistence surface shared by the SQLite and Postgres
// backends.
type Store interface {
	ListingStore
	RunStore
	GetListing(ctx context.Context, itemID string) (*models.Listing, error)
	PriceHistory(ctx context.Context, itemID string) ([]models.PriceHistoryEvent, error)
	ListingsSeenSince(ctx context.Context, since time.Time) ([]*models.Listing, error)
	RecentRuns(ctx context.Context, limit int) ([]models.ScrapeRun, error)
	Close() error
}

// Open picks the backend named by cfg.Driver.
func Open(ctx context.Context, cfg config.StorageConfig) (Store, error) {
	switch cfg.Driver {
	case "", "sqlite", "sqlite3":
		return NewSQLiteStore(cfg.DBPath)
	case "postgres", "postgresql":
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("postgres driver requires DATABASE_URL")
		}
		return NewPostgresStore(ctx, cfg.DatabaseURL)
	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", cfg.Driver)
	}
}

// priceChanged applies the change rule: an incoming price counts as a change
// when nothing was stored before or the value or currency differs.
func priceChanged(existing, incoming *models.Listing) bool {
	if incoming.PriceValue == nil {
		return false
	}
	if existing.PriceValue == nil {
		return true
	}
	return *existing.PriceValue != *incoming.PriceValue || existing.PriceCurrency != incoming.PriceCurrency
}

// mergeForUpdate overlays the incoming observation on the stored record.
// Non-empty incoming values win; empty ones keep what is stored, so a
// summary-only pass never wipes enrichment data and a missing price never
// diverges from the price history. FirstSeen always comes from the store.
func mergeForUpdate(existing, incoming *models.Listing, now time.Time) *models.Listing {
	m := *existing

	str := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	str(&m.ItemURL, incoming.ItemURL)
	str(&m.Title, incoming.Title)
	str(&m.PriceText, incoming.PriceText)
	str(&m.LocationText, incoming.LocationText)
	str(&m.PostedText, incoming.PostedText)
	str(&m.SellerText, incoming.SellerText)
	str(&m.ThumbnailURL, incoming.ThumbnailURL)
	str(&m.CategoryHint, incoming.CategoryHint)
	str(&m.SourceURL, incoming.SourceURL)
	str(&m.Description, incoming.Description)
	str(&m.Fuel, incoming.Fuel)
	str(&m.Transmission, incoming.Transmission)
	str(&m.BodyType, incoming.BodyType)
	str(&m.Brand, incoming.Brand)
	str(&m.Model, incoming.Model)

	if incoming.PriceValue != nil {
		m.PriceValue = incoming.PriceValue
		m.PriceCurrency = incoming.PriceCurrency
	}
	if incoming.Year != nil {
		m.Year = incoming.Year
	}
	if incoming.MileageKm != nil {
		m.MileageKm = incoming.MileageKm
	}
	if incoming.Latitude != nil && incoming.Longitude != nil {
		m.Latitude = incoming.Latitude
		m.Longitude = incoming.Longitude
	}
	if len(incoming.Attributes) > 0 {
		m.Attributes = incoming.Attributes
	}
	if len(incoming.ImageURLs) > 0 {
		m.ImageURLs = incoming.ImageURLs
	}

	m.LastSeen = now
	return &m
}
