package scraper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"mkt_tracker/config"
	"mkt_tracker/models"
	"mkt_tracker/services"
	"mkt_tracker/storage"
)

const maxCollectAttempts = 2

// Browser is the page surface one run drives.
type Browser interface {
	ResultsPage
	DetailPage
	OpenResults(ctx context.Context, url string) (bool, error)
	Recreate(ctx context.Context) error
	Close() error
}

// Launcher starts a browser session for a run.
type Launcher func(ctx context.Context, params config.RunParams) (Browser, error)

// PlaywrightLauncher starts a fresh PageController for every run.
func PlaywrightLauncher(site *config.SiteProfile, cfg config.BrowserConfig, logger *zap.Logger, confirm Confirmer) Launcher {
	return func(ctx context.Context, params config.RunParams) (Browser, error) {
		opts := StartOptions{
			Headless:         params.Headless,
			StorageStatePath: params.StorageStatePath,
			Confirm:          confirm,
		}
		// nobody can log in to a window that is not shown
		if params.Headless {
			opts.Confirm = nil
		}

		pc := NewPageController(site, cfg, logger)
		err := pc.Start(ctx, opts)
		if err != nil {
			return nil, err
		}
		return pc, nil
	}
}

// RunObserver is told about every finished run.
type RunObserver interface {
	ObserveRun(run *models.ScrapeRun)
}

// RunResult is what a finished run hands back to the caller.
type RunResult struct {
	Run      *models.ScrapeRun
	Listings []*models.Listing
}

type Orchestrator struct {
	site      *config.SiteProfile
	launch    Launcher
	collector *Collector
	enricher  *DetailEnricher
	listings  *services.ListingService
	runs      storage.RunStore
	observer  RunObserver
	logger    *zap.Logger
	sleep     Sleeper
	now       func() time.Time
}

func NewOrchestrator(site *config.SiteProfile, launch Launcher, listings *services.ListingService, runs storage.RunStore, logger *zap.Logger) *Orchestrator {
	extractor := NewCardExtractor(site, logger)
	return &Orchestrator{
		site:      site,
		launch:    launch,
		collector: NewCollector(site, extractor.Extract, logger),
		enricher:  NewDetailEnricher(site, logger),
		listings:  listings,
		runs:      runs,
		logger:    logger,
		sleep:     sleepCtx,
		now:       time.Now,
	}
}

// SetObserver registers obs to receive finished runs.
func (o *Orchestrator) SetObserver(obs RunObserver) {
	o.observer = obs
}

// Run crawls every planned URL, optionally enriches the collected listings
// and persists them in collection order. Listings collected before a crawl
// failure are still persisted; the failure is returned afterwards.
func (o *Orchestrator) Run(ctx context.Context, params config.RunParams) (*RunResult, error) {
	targets, err := BuildURLs(o.site, params)
	if err != nil {
		return nil, err
	}

	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("encode run params: %w", err)
	}

	run := &models.ScrapeRun{
		ID:          uuid.NewString(),
		StartedAt:   o.now().UTC(),
		Status:      models.RunStatusRunning,
		URLsPlanned: len(targets),
		Params:      string(paramsJSON),
	}
	if err := o.runs.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}

	logger := o.logger.With(zap.String("run_id", run.ID))
	logger.Info("Starting scrape",
		zap.Int("urls", len(targets)),
		zap.String("category", params.Category),
		zap.String("query", params.Query),
		zap.Int("max_items", params.MaxItems),
		zap.Bool("details", params.Details),
	)

	result := &RunResult{Run: run}
	runErr := o.execute(ctx, logger, params, targets, result)

	finished := o.now().UTC()
	run.FinishedAt = &finished
	run.Status = models.RunStatusCompleted
	if runErr != nil {
		run.Status = models.RunStatusFailed
	}
	if err := o.runs.UpdateRun(context.WithoutCancel(ctx), run); err != nil {
		logger.Warn("Failed to update run record", zap.Error(err))
	}
	if o.observer != nil {
		o.observer.ObserveRun(run)
	}

	logger.Info("Scrape finished",
		zap.String("status", string(run.Status)),
		zap.Int("listings_found", run.ListingsFound),
		zap.Int("listings_new", run.ListingsNew),
		zap.Int("price_changes", run.PriceChanges),
		zap.Int("details_enriched", run.DetailsEnriched),
		zap.Int("urls_skipped", run.URLsSkipped),
		zap.Int("errors", run.ErrorsCount),
		zap.Duration("elapsed", finished.Sub(run.StartedAt)),
	)
	return result, runErr
}

func (o *Orchestrator) execute(ctx context.Context, logger *zap.Logger, params config.RunParams, targets []SearchTarget, result *RunResult) error {
	run := result.Run

	browser, err := o.launch(ctx, params)
	if err != nil {
		run.ErrorsCount++
		return fmt.Errorf("start browser: %w", err)
	}
	defer func() {
		if err := browser.Close(); err != nil {
			logger.Debug("Browser close", zap.Error(err))
		}
	}()

	listings, crawlErr := o.crawl(ctx, logger, browser, targets, params.MaxItems, run)
	result.Listings = listings
	run.ListingsFound = len(listings)

	if params.Details && len(listings) > 0 && ctx.Err() == nil {
		o.enrichAll(ctx, logger, browser, listings, params, run)
	}

	// collected listings are kept even when the run was interrupted
	persistCtx := context.WithoutCancel(ctx)
	stats := &services.ProcessStats{}
	defer func() {
		run.ListingsNew = stats.ListingsNew
		run.PriceChanges = stats.PriceChanges
	}()

	for _, l := range listings {
		res, err := o.listings.ProcessListing(persistCtx, l)
		if err != nil {
			stats.Errors++
			run.ErrorsCount++
			return fmt.Errorf("persist listings: %w", err)
		}
		stats.Aggregate(res)
	}
	logger.Info("Persisted listings", stats.Fields()...)

	return crawlErr
}

// crawl visits the targets in order and merges their listings by item id,
// keeping first-seen order, up to maxItems (0 means no cap).
func (o *Orchestrator) crawl(ctx context.Context, logger *zap.Logger, browser Browser, targets []SearchTarget, maxItems int, run *models.ScrapeRun) ([]*models.Listing, error) {
	var merged []*models.Listing
	seen := make(map[string]bool)

	merge := func(batch []*models.Listing) {
		for _, l := range batch {
			if maxItems > 0 && len(merged) >= maxItems {
				return
			}
			if seen[l.ItemID] {
				continue
			}
			seen[l.ItemID] = true
			merged = append(merged, l)
		}
	}

	for _, target := range targets {
		if maxItems > 0 && len(merged) >= maxItems {
			break
		}
		if err := ctx.Err(); err != nil {
			return merged, err
		}

		ready, err := browser.OpenResults(ctx, target.URL)
		if err != nil {
			run.ErrorsCount++
			return merged, fmt.Errorf("open %s: %w", target.URL, err)
		}
		if !ready {
			logger.Warn("No listings visible, skipping URL", zap.String("url", target.URL))
			run.URLsSkipped++
			continue
		}
		if err := o.sleep(ctx, jitter(time.Second, 2*time.Second)); err != nil {
			return merged, err
		}

		batch, err := o.collect(ctx, logger, browser, target, maxItems)
		merge(batch)
		if err != nil {
			run.ErrorsCount++
			return merged, fmt.Errorf("collect %s: %w", target.URL, err)
		}
		logger.Info("URL done",
			zap.String("url", target.URL),
			zap.Int("collected", len(batch)),
			zap.Int("total", len(merged)),
		)
	}
	return merged, nil
}

// collect runs the collector, recreating the page and trying again once when
// the page crashes. Listings from every attempt are returned.
func (o *Orchestrator) collect(ctx context.Context, logger *zap.Logger, browser Browser, target SearchTarget, want int) ([]*models.Listing, error) {
	var all []*models.Listing
	for attempt := 1; ; attempt++ {
		batch, err := o.collector.Collect(ctx, browser, target, want)
		all = append(all, batch...)
		if err == nil {
			return all, nil
		}
		if !errors.Is(err, ErrPageCrashed) || attempt >= maxCollectAttempts {
			return all, err
		}

		logger.Warn("Collection interrupted, retrying",
			zap.String("url", target.URL),
			zap.Int("attempt", attempt),
			zap.Int("partial", len(batch)),
			zap.Error(err),
		)
		if err := browser.Recreate(ctx); err != nil {
			return all, err
		}
		ready, err := browser.OpenResults(ctx, target.URL)
		if err != nil {
			return all, err
		}
		if !ready {
			logger.Warn("No listings visible after page recreate", zap.String("url", target.URL))
			return all, nil
		}
	}
}

func (o *Orchestrator) enrichAll(ctx context.Context, logger *zap.Logger, browser Browser, listings []*models.Listing, params config.RunParams, run *models.ScrapeRun) {
	if params.DetailsConcurrency > 1 {
		logger.Info("Detail pages are fetched one at a time", zap.Int("details_concurrency", params.DetailsConcurrency))
	}

	for i, l := range listings {
		if ctx.Err() != nil {
			logger.Warn("Detail pass interrupted", zap.Int("done", i), zap.Int("total", len(listings)))
			return
		}

		report, err := o.enricher.Enrich(ctx, browser, l)
		switch {
		case err != nil:
			run.ErrorsCount++
			logger.Warn("Detail enrichment failed", zap.String("item_id", l.ItemID), zap.Error(err))
			if errors.Is(err, ErrPageCrashed) {
				if err := browser.Recreate(ctx); err != nil {
					logger.Warn("Failed to recreate page", zap.Error(err))
				}
			}
		case report.Enriched:
			run.DetailsEnriched++
		}

		if (i+1)%25 == 0 {
			logger.Info("Detail progress", zap.Int("done", i+1), zap.Int("total", len(listings)))
		}
		if err := o.sleep(ctx, jitter(800*time.Millisecond, 1200*time.Millisecond)); err != nil {
			return
		}
	}
}
