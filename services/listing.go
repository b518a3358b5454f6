package services

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"mkt_tracker/models"
	"mkt_tracker/storage"
)

// ListingService persists collected listings one at a time and keeps run
// statistics.
type ListingService struct {
	store  storage.ListingStore
	logger *zap.Logger
	now    func() time.Time
}

func NewListingService(store storage.ListingStore, logger *zap.Logger) *ListingService {
	return &ListingService{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// ProcessResult contains the outcome of persisting one listing.
type ProcessResult struct {
	ItemID       string
	IsNewListing bool
	PriceChanged bool
}

// ProcessListing upserts the listing. It is idempotent: re-observing an
// unchanged listing only bumps last_seen.
func (s *ListingService) ProcessListing(ctx context.Context, l *models.Listing) (*ProcessResult, error) {
	if l.ItemID == "" {
		return nil, fmt.Errorf("listing without item id: %q", l.ItemURL)
	}

	res, err := s.store.UpsertListing(ctx, l, s.now())
	if err != nil {
		return nil, fmt.Errorf("upsert %s: %w", l.ItemID, err)
	}

	result := &ProcessResult{
		ItemID:       l.ItemID,
		IsNewListing: res.IsNew,
		PriceChanged: res.PriceChanged,
	}

	switch {
	case res.IsNew:
		s.logger.Debug("new listing",
			zap.String("item_id", l.ItemID),
			zap.String("title", l.Title),
			zap.String("price", l.PriceText))
	case res.PriceChanged:
		s.logger.Info("price changed",
			zap.String("item_id", l.ItemID),
			zap.Float64p("price_value", l.PriceValue),
			zap.String("currency", l.PriceCurrency))
	}
	return result, nil
}

// ProcessStats tracks aggregate statistics for a scrape run
type ProcessStats struct {
	ListingsProcessed int
	ListingsNew       int
	PriceChanges      int
	Errors            int
}

// Aggregate adds a ProcessResult to the stats
func (s *ProcessStats) Aggregate(r *ProcessResult) {
	s.ListingsProcessed++
	if r.IsNewListing {
		s.ListingsNew++
	}
	if r.PriceChanged {
		s.PriceChanges++
	}
}

// Fields renders the stats for structured logging.
func (s *ProcessStats) Fields() []zap.Field {
	return []zap.Field{
		zap.Int("listings_processed", s.ListingsProcessed),
		zap.Int("listings_new", s.ListingsNew),
		zap.Int("price_changes", s.PriceChanges),
		zap.Int("errors", s.Errors),
	}
}
