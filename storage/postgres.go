package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"mkt_tracker/models"
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

func pgPlaceholder(i int) string { return "$" + strconv.Itoa(i) }

var (
	pgInsertListing = fmt.Sprintf(`INSERT INTO listings (%s) VALUES (%s)`,
		listingColumnList, placeholders(len(listingCols), pgPlaceholder))
	pgUpdateSet, pgUpdateIdx = updateAssignments(pgPlaceholder)
	pgUpdateListing          = `UPDATE listings SET ` + pgUpdateSet + ` WHERE item_id = $` + strconv.Itoa(len(pgUpdateIdx)+1)
)

func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 2
	config.MaxConnLifetime = 30 * time.Minute
	config.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	store := &PostgresStore{pool: pool}
	if err := store.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return store, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
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
		price_value DOUBLE PRECISION,
		price_currency TEXT,
		location_text TEXT,
		posted_text TEXT,
		seller_text TEXT,
		thumbnail_url TEXT,
		img_urls TEXT,
		latitude DOUBLE PRECISION,
		longitude DOUBLE PRECISION,
		description TEXT,
		attributes_json TEXT,
		category_hint TEXT,
		source_url TEXT,
		first_seen TIMESTAMPTZ NOT NULL,
		last_seen TIMESTAMPTZ NOT NULL
	);

	CREATE TABLE IF NOT EXISTS price_history (
		item_id TEXT NOT NULL,
		observed_at TIMESTAMPTZ NOT NULL,
		price_value DOUBLE PRECISION,
		price_currency TEXT,
		PRIMARY KEY (item_id, observed_at)
	);

	CREATE TABLE IF NOT EXISTS scrape_runs (
		id TEXT PRIMARY KEY,
		started_at TIMESTAMPTZ,
		finished_at TIMESTAMPTZ,
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
	`)
	return err
}

func (s *PostgresStore) UpsertListing(ctx context.Context, l *models.Listing, now time.Time) (UpsertResult, error) {
	now = now.UTC()

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return UpsertResult{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	existing, err := scanListing(tx.QueryRow(ctx,
		`SELECT `+listingColumnList+` FROM listings WHERE item_id = $1 FOR UPDATE`, l.ItemID))
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
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
		if _, err := tx.Exec(ctx, pgInsertListing, args...); err != nil {
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
		updateArgs := make([]any, 0, len(pgUpdateIdx)+1)
		for _, i := range pgUpdateIdx {
			updateArgs = append(updateArgs, args[i])
		}
		updateArgs = append(updateArgs, l.ItemID)
		if _, err := tx.Exec(ctx, pgUpdateListing, updateArgs...); err != nil {
			return UpsertResult{}, fmt.Errorf("update listing %s: %w", l.ItemID, err)
		}
	}

	if result.PriceChanged {
		_, err := tx.Exec(ctx, `
			INSERT INTO price_history (item_id, observed_at, price_value, price_currency)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (item_id, observed_at) DO UPDATE SET
				price_value = EXCLUDED.price_value,
				price_currency = EXCLUDED.price_currency
		`, l.ItemID, now, *stored.PriceValue, stored.PriceCurrency)
		if err != nil {
			return UpsertResult{}, fmt.Errorf("append price history %s: %w", l.ItemID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return UpsertResult{}, fmt.Errorf("commit: %w", err)
	}

	l.FirstSeen = stored.FirstSeen
	l.LastSeen = stored.LastSeen
	return result, nil
}

func (s *PostgresStore) GetListing(ctx context.Context, itemID string) (*models.Listing, error) {
	l, err := scanListing(s.pool.QueryRow(ctx,
		`SELECT `+listingColumnList+` FROM listings WHERE item_id = $1`, itemID))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return l, nil
}

func (s *PostgresStore) PriceHistory(ctx context.Context, itemID string) ([]models.PriceHistoryEvent, error) {
	query := `SELECT item_id, observed_at, price_value, COALESCE(price_currency, '') FROM price_history`
	var args []any
	if itemID != "" {
		query += ` WHERE item_id = $1`
		args = append(args, itemID)
	}
	query += ` ORDER BY item_id, observed_at`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []models.PriceHistoryEvent
	for rows.Next() {
		var e models.PriceHistoryEvent
		if err := rows.Scan(&e.ItemID, &e.ObservedAt, &e.PriceValue, &e.PriceCurrency); err != nil {
			return nil, err
		}
		e.ObservedAt = e.ObservedAt.UTC()
		events = append(events, e)
	}
	return events, rows.Err()
}

func (s *PostgresStore) ListingsSeenSince(ctx context.Context, since time.Time) ([]*models.Listing, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+listingColumnList+` FROM listings WHERE first_seen >= $1 ORDER BY first_seen, item_id`,
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

func (s *PostgresStore) CreateRun(ctx context.Context, run *models.ScrapeRun) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO scrape_runs (`+runColumnList+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, run.ID, run.StartedAt.UTC(), nullTime(run.FinishedAt), string(run.Status), run.URLsPlanned, run.URLsSkipped,
		run.ListingsFound, run.ListingsNew, run.PriceChanges, run.DetailsEnriched, run.ErrorsCount, run.Params)
	return err
}

func (s *PostgresStore) UpdateRun(ctx context.Context, run *models.ScrapeRun) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE scrape_runs SET
			finished_at = $1, status = $2, urls_planned = $3, urls_skipped = $4, listings_found = $5,
			listings_new = $6, price_changes = $7, details_enriched = $8, errors_count = $9
		WHERE id = $10
	`, nullTime(run.FinishedAt), string(run.Status), run.URLsPlanned, run.URLsSkipped, run.ListingsFound,
		run.ListingsNew, run.PriceChanges, run.DetailsEnriched, run.ErrorsCount, run.ID)
	return err
}

func (s *PostgresStore) RecentRuns(ctx context.Context, limit int) ([]models.ScrapeRun, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+runColumnList+` FROM scrape_runs ORDER BY started_at DESC LIMIT $1`, limit)
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
