package export

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"mkt_tracker/models"
)

// Source is the read side of the store that exports draw from.
type Source interface {
	ListingsSeenSince(ctx context.Context, since time.Time) ([]*models.Listing, error)
	PriceHistory(ctx context.Context, itemID string) ([]models.PriceHistoryEvent, error)
}

// Uploader copies a written export to remote storage and returns its key.
type Uploader interface {
	UploadFile(ctx context.Context, localPath, contentType string) (string, error)
}

// Exporter writes CSV files under dir and, when an uploader is set, mirrors
// them remotely.
type Exporter struct {
	source   Source
	uploader Uploader
	dir      string
	logger   *zap.Logger
}

func NewExporter(source Source, uploader Uploader, dir string, logger *zap.Logger) *Exporter {
	return &Exporter{source: source, uploader: uploader, dir: dir, logger: logger}
}

// FileName builds a timestamped export file name.
func FileName(kind string, at time.Time) string {
	return fmt.Sprintf("%s_%s.csv", kind, at.UTC().Format("20060102T150405Z"))
}

// NewSince exports listings first seen at or after since.
func (e *Exporter) NewSince(ctx context.Context, since time.Time, name string) (string, error) {
	listings, err := e.source.ListingsSeenSince(ctx, since)
	if err != nil {
		return "", fmt.Errorf("load new listings: %w", err)
	}
	return e.Listings(ctx, listings, name)
}

// Prices exports the price history of one item, or of every item when itemID
// is empty.
func (e *Exporter) Prices(ctx context.Context, itemID, name string) (string, error) {
	events, err := e.source.PriceHistory(ctx, itemID)
	if err != nil {
		return "", fmt.Errorf("load price history: %w", err)
	}
	return e.write(ctx, name, len(events), func(w io.Writer) error {
		return WritePriceHistory(w, events)
	})
}

// Listings exports the given listings as they are.
func (e *Exporter) Listings(ctx context.Context, listings []*models.Listing, name string) (string, error) {
	return e.write(ctx, name, len(listings), func(w io.Writer) error {
		return WriteListings(w, listings)
	})
}

func (e *Exporter) write(ctx context.Context, name string, rows int, fn func(io.Writer) error) (string, error) {
	path := name
	if !filepath.IsAbs(path) {
		path = filepath.Join(e.dir, name)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}

	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if err := fn(f); err != nil {
		f.Close()
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	e.logger.Info("Saved export", zap.String("path", path), zap.Int("rows", rows))

	if e.uploader != nil {
		key, err := e.uploader.UploadFile(ctx, path, "text/csv")
		if err != nil {
			return path, fmt.Errorf("upload %s: %w", path, err)
		}
		e.logger.Info("Uploaded export", zap.String("key", key))
	}
	return path, nil
}
