package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"mkt_tracker/models"
)

type SQLiteStore struct {
	db *sql.DB
}

func sqlitePlaceholder(int) string { return "?" }

var (
	sqliteInsertListing = fmt.Sprintf(`INSERT INTO listings (%s) VALUES (%s)`,
		listingColumnList, placeholders(len(listingCols), sqlitePlaceholder))
	sqliteUpdateSet, sqliteUpdateIdx = updateAssignments(sqlitePlaceholder)
	sqliteUpdateListing              = `UPDATE listings SET ` + sqliteUpdateSet + ` WHERE item_id = ?`
)

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_txlock=immediate")
	if err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS listings (
		item_id TEXT PRIMARY KEY,
		item_url TEXT,
		title TEXT,
		brand TEXT,
		model TEXT,
		year INTEGER,
		mileage_km INTEGER,
		fuel TEXT,
		transmission TEXT,
		body_type TEXT,
		price_text TEXT,
		price_value REAL,
		price_currency TEXT,
		location_text TEXT,
		posted_text TEXT,
		seller_text TEXT,
		thumbnail_url TEXT,
		img_urls TEXT,
		latitude REAL,
		longitude REAL,
		description TEXT,
		attributes_json TEXT,
		category_hint TEXT,
		source_url TEXT,
		first_seen DATETIME NOT NULL,
		last_seen DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS price_history (
		item_id TEXT NOT NULL,
		observed_at DATETIME NOT NULL,
		price_value REAL,
		price_currency TEXT,
		PRIMARY KEY (item_id, observed_at)
	);

	CREATE TABLE IF NOT EXISTS scrape_runs (
		id TEXT PRIMARY KEY,
		started_at DATETIME,
		finished_at DATETIME,
		status TEXT,
		urls_planned INTEGER DEFAULT 0,
		urls_skipped INTEGER DEFAULT 0,
		listings_found INTEGER DEFAULT 0,
		listings_new INTEGER DEFAULT 0,
		price_changes INTEGER DEFAULT 0,
		details_enriched INTEGER DEFAULT 0,
		errors_count INTEGER DEFAULT 0,
		params TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_listings_last_seen ON listings(last_seen);
	CREATE INDEX IF NOT EXISTS idx_listings_first_seen ON listings(first_seen);
	CREATE INDEX IF NOT EXISTS idx_price_history_item ON price_history(item_id);
	CREATE INDEX IF NOT EXISTS idx_runs_started ON scrape_runs(started_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// UpsertListing inserts or updates l and appends a price history event when
// the price changed, all in one transaction. l is updated in place with the
// stored first_seen/last_seen.
func (s *SQLiteStore) UpsertListing(ctx context.Context, l *models.Listing, now time.Time) (UpsertResult, error) {
	now = now.UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return UpsertResult{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	existing, err := scanListing(tx.QueryRowContext(ctx,
		`SELECT `+listingColumnList+` FROM listings WHERE item_id = ?`, l.ItemID))
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return UpsertResult{}, fmt.Errorf("get listing %s: %w", l.ItemID, err)
	}

	var result UpsertResult
	var stored *models.Listing

	if existing == nil {
		stored = l
		stored.FirstSeen = now
		stored.LastSeen = now
		args, err := listingArgs(stored)
		if err != nil {
			return UpsertResult{}, err
		}
		if _, err := tx.ExecContext(ctx, sqliteInsertListing, args...); err != nil {
			return UpsertResult{}, fmt.Errorf("insert listing %s: %w", l.ItemID, err)
		}
		result = UpsertResult{IsNew: true, PriceChanged: l.PriceValue != nil}
	} else {
		result.PriceChanged = priceChanged(existing, l)
		stored = mergeForUpdate(existing, l, now)
		args, err := listingArgs(stored)
		if err != nil {
			return UpsertResult{}, err
		}
		updateArgs := make([]any, 0, len(sqliteUpdateIdx)+1)
		for _, i := range sqliteUpdateIdx {
			updateArgs = append(updateArgs, args[i])
		}
		updateArgs = append(updateArgs, l.ItemID)
		if _, err := tx.ExecContext(ctx, sqliteUpdateListing, updateArgs...); err != nil {
			return UpsertResult{}, fmt.Errorf("update listing %s: %w", l.ItemID, err)
		}
	}

	if result.PriceChanged {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO price_history (item_id, observed_at, price_value, price_currency)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(item_id, observed_at) DO UPDATE SET
				price_value = excluded.price_value,
				price_currency = excluded.price_currency
		`, l.ItemID, now, *stored.PriceValue, stored.PriceCurrency)
		if err != nil {
			return UpsertResult{}, fmt.Errorf("append price history %s: %w", l.ItemID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return UpsertResult{}, fmt.Errorf("commit: %w", err)
	}

	l.FirstSeen = stored.FirstSeen
	l.LastSeen = stored.LastSeen
	return result, nil
}

func (s *SQLiteStore) GetListing(ctx context.Context, itemID string) (*models.Listing, error) {
	l, err := scanListing(s.db.QueryRowContext(ctx,
		`SELECT `+listingColumnList+` FROM listings WHERE item_id = ?`, itemID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return l, nil
}

// PriceHistory returns events oldest first, for one item or, with an empty
// itemID, for every item.
func (s *SQLiteStore) PriceHistory(ctx context.Context, itemID string) ([]models.PriceHistoryEvent, error) {
	query := `SELECT item_id, observed_at, price_value, price_currency FROM price_history`
	var args []any
	if itemID != "" {
		query += ` WHERE item_id = ?`
		args = append(args, itemID)
	}
	query += ` ORDER BY item_id, observed_at`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []models.PriceHistoryEvent
	for rows.Next() {
		var e models.PriceHistoryEvent
		var currency sql.NullString
		if err := rows.Scan(&e.ItemID, &e.ObservedAt, &e.PriceValue, &currency); err != nil {
			return nil, err
		}
		e.ObservedAt = e.ObservedAt.UTC()
		e.PriceCurrency = currency.String
		events = append(events, e)
	}
	return events, rows.Err()
}

func (s *SQLiteStore) ListingsSeenSince(ctx context.Context, since time.Time) ([]*models.Listing, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+listingColumnList+` FROM listings WHERE first_seen >= ? ORDER BY first_seen, item_id`,
		since.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var listings []*models.Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, err
		}
		listings = append(listings, l)
	}
	return listings, rows.Err()
}

func (s *SQLiteStore) CreateRun(ctx context.Context, run *models.ScrapeRun) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO scrape_runs (`+runColumnList+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.StartedAt.UTC(), nullTime(run.FinishedAt), string(run.Status), run.URLsPlanned, run.URLsSkipped,
		run.ListingsFound, run.ListingsNew, run.PriceChanges, run.DetailsEnriched, run.ErrorsCount, run.Params)
	return err
}

func (s *SQLiteStore) UpdateRun(ctx context.Context, run *models.ScrapeRun) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE scrape_runs SET
			finished_at = ?, status = ?, urls_planned = ?, urls_skipped = ?, listings_found = ?,
			listings_new = ?, price_changes = ?, details_enriched = ?, errors_count = ?
		WHERE id = ?
	`, nullTime(run.FinishedAt), string(run.Status), run.URLsPlanned, run.URLsSkipped, run.ListingsFound,
		run.ListingsNew, run.PriceChanges, run.DetailsEnriched, run.ErrorsCount, run.ID)
	return err
}

func (s *SQLiteStore) RecentRuns(ctx context.Context, limit int) ([]models.ScrapeRun, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumnList+` FROM scrape_runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []models.ScrapeRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}
