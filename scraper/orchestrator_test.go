package scraper

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mkt_tracker/config"
	"mkt_tracker/models"
	"mkt_tracker/services"
	"mkt_tracker/storage"
)

// fakeBrowser serves fixture pages by URL.
type fakeBrowser struct {
	pages     map[string]string
	notReady  map[string]bool
	detail    string
	current   string
	crashes   int
	recreated int
	opened    []string
	closed    bool
}

func (b *fakeBrowser) OpenResults(_ context.Context, url string) (bool, error) {
	b.opened = append(b.opened, url)
	b.current = b.pages[url]
	return !b.notReady[url], nil
}

func (b *fakeBrowser) OpenDetail(context.Context, string, time.Duration) (bool, error) {
	b.current = b.detail
	return b.detail != "", nil
}

func (b *fakeBrowser) WaitSettled(context.Context, time.Duration) error { return nil }
func (b *fakeBrowser) Content() (string, error)                        { return b.current, nil }
func (b *fakeBrowser) ScrollBy(context.Context, int) error              { return nil }

func (b *fakeBrowser) ScrollToEnd(context.Context) error {
	if b.crashes > 0 {
		b.crashes--
		return errors.New("Target page, context or browser has been closed")
	}
	return nil
}

func (b *fakeBrowser) Recreate(context.Context) error {
	b.recreated++
	return nil
}

func (b *fakeBrowser) Close() error {
	b.closed = true
	return nil
}

type failingListingStore struct{}

func (failingListingStore) UpsertListing(context.Context, *models.Listing, time.Time) (storage.UpsertResult, error) {
	return storage.UpsertResult{}, errors.New("disk I/O error")
}

const (
	vehiclesURL    = "https://www.facebook.com/marketplace/category/vehicles?exact=false&latitude=13.7563&longitude=100.5018&radius_km=50&locale=en_US"
	motorcyclesURL = "https://www.facebook.com/marketplace/category/motorcycles?exact=false&latitude=13.7563&longitude=100.5018&radius_km=50&locale=en_US"
)

func testParams() config.RunParams {
	return config.RunParams{
		Latitude:  13.7563,
		Longitude: 100.5018,
		RadiusKm:  50,
		Category:  "all",
		MaxItems:  300,
	}
}

func newTestStore(t *testing.T) *storage.SQLiteStore {
	t.Helper()
	store, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func newFixtureBrowser(t *testing.T) *fakeBrowser {
	return &fakeBrowser{
		pages: map[string]string{
			vehiclesURL:    loadFixture(t, "results_structured.html"),
			motorcyclesURL: loadFixture(t, "results_fallback.html"),
		},
		notReady: map[string]bool{},
	}
}

func newTestOrchestrator(browser Browser, listings storage.ListingStore, runs storage.RunStore) *Orchestrator {
	logger := zap.NewNop()
	launch := func(context.Context, config.RunParams) (Browser, error) { return browser, nil }
	o := NewOrchestrator(config.DefaultSiteProfile(), launch, services.NewListingService(listings, logger), runs, logger)
	o.sleep = noSleep
	o.collector.sleep = noSleep
	o.enricher.sleep = noSleep
	return o
}

func TestRunCollectsAndPersists(t *testing.T) {
	store := newTestStore(t)
	browser := newFixtureBrowser(t)
	o := newTestOrchestrator(browser, store, store)

	res, err := o.Run(context.Background(), testParams())
	require.NoError(t, err)
	assert.True(t, browser.closed)
	assert.Equal(t, []string{vehiclesURL, motorcyclesURL}, browser.opened)

	assert.Equal(t, []string{"1234567890", "2222222222", "3333333333", "5550001", "5550002"}, ids(res.Listings))
	assert.Equal(t, "vehicles", res.Listings[0].CategoryHint)
	assert.Equal(t, "motorcycles", res.Listings[3].CategoryHint)

	run := res.Run
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, models.RunStatusCompleted, run.Status)
	assert.Equal(t, 2, run.URLsPlanned)
	assert.Equal(t, 0, run.URLsSkipped)
	assert.Equal(t, 5, run.ListingsFound)
	assert.Equal(t, 5, run.ListingsNew)
	assert.Equal(t, 2, run.PriceChanges)
	require.NotNil(t, run.FinishedAt)

	stored, err := store.GetListing(context.Background(), "2222222222")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "Honda Wave 125i", stored.Title)
	assert.Equal(t, 38500.0, *stored.PriceValue)

	runs, err := store.RecentRuns(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, models.RunStatusCompleted, runs[0].Status)
	assert.Equal(t, 5, runs[0].ListingsNew)

	// a second identical run only refreshes last_seen
	res, err = o.Run(context.Background(), testParams())
	require.NoError(t, err)
	assert.Equal(t, 0, res.Run.ListingsNew)
	assert.Equal(t, 0, res.Run.PriceChanges)
}

func TestRunSkipsURLWithoutListings(t *testing.T) {
	store := newTestStore(t)
	browser := newFixtureBrowser(t)
	browser.notReady[motorcyclesURL] = true
	o := newTestOrchestrator(browser, store, store)

	res, err := o.Run(context.Background(), testParams())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Run.URLsSkipped)
	assert.Len(t, res.Listings, 3)
}

func TestRunCapsAtMaxItems(t *testing.T) {
	store := newTestStore(t)
	browser := newFixtureBrowser(t)
	o := newTestOrchestrator(browser, store, store)

	params := testParams()
	params.MaxItems = 2
	res, err := o.Run(context.Background(), params)
	require.NoError(t, err)
	assert.Equal(t, []string{"1234567890", "2222222222"}, ids(res.Listings))
	assert.Equal(t, []string{vehiclesURL}, browser.opened)
}

func TestRunRetriesCrashedCollection(t *testing.T) {
	store := newTestStore(t)
	browser := newFixtureBrowser(t)
	browser.crashes = 1
	o := newTestOrchestrator(browser, store, store)

	params := testParams()
	params.Category = "vehicles"
	res, err := o.Run(context.Background(), params)
	require.NoError(t, err)
	assert.Equal(t, 1, browser.recreated)
	assert.Equal(t, []string{vehiclesURL, vehiclesURL}, browser.opened)
	assert.Len(t, res.Listings, 3)
}

func TestRunKeepsPartialResultsAfterSecondCrash(t *testing.T) {
	store := newTestStore(t)
	browser := newFixtureBrowser(t)
	browser.crashes = 2
	o := newTestOrchestrator(browser, store, store)

	params := testParams()
	params.Category = "vehicles"
	res, err := o.Run(context.Background(), params)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPageCrashed)
	assert.Equal(t, models.RunStatusFailed, res.Run.Status)
	assert.Len(t, res.Listings, 3)
	assert.Equal(t, 3, res.Run.ListingsNew)

	stored, err := store.GetListing(context.Background(), "1234567890")
	require.NoError(t, err)
	assert.NotNil(t, stored)
}

func TestRunEnrichesDetails(t *testing.T) {
	store := newTestStore(t)
	browser := newFixtureBrowser(t)
	browser.detail = loadFixture(t, "detail.html")
	o := newTestOrchestrator(browser, store, store)

	params := testParams()
	params.Category = "vehicles"
	params.Details = true
	params.DetailsConcurrency = 4
	res, err := o.Run(context.Background(), params)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Run.DetailsEnriched)

	stored, err := store.GetListing(context.Background(), "1234567890")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "Toyota", stored.Brand)
	assert.Equal(t, "Automatic", stored.Transmission)
	assert.Len(t, stored.ImageURLs, 2)
	assert.Equal(t, 435000.0, *stored.PriceValue)

	history, err := store.PriceHistory(context.Background(), "1234567890")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, 435000.0, history[0].PriceValue)
}

func TestRunPersistenceFailureFailsRun(t *testing.T) {
	store := newTestStore(t)
	browser := newFixtureBrowser(t)
	o := newTestOrchestrator(browser, failingListingStore{}, store)

	res, err := o.Run(context.Background(), testParams())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk I/O error")
	assert.Equal(t, models.RunStatusFailed, res.Run.Status)
	assert.Equal(t, 1, res.Run.ErrorsCount)

	runs, err := store.RecentRuns(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusFailed, runs[0].Status)
}

func TestRunRejectsInvalidParams(t *testing.T) {
	store := newTestStore(t)
	o := newTestOrchestrator(newFixtureBrowser(t), store, store)

	params := testParams()
	params.Category = "boats"
	_, err := o.Run(context.Background(), params)
	var vErr *config.ValidationError
	assert.ErrorAs(t, err, &vErr)
}

type recordingObserver struct {
	runs []models.ScrapeRun
}

func (r *recordingObserver) ObserveRun(run *models.ScrapeRun) {
	r.runs = append(r.runs, *run)
}

func TestRunNotifiesObserver(t *testing.T) {
	store := newTestStore(t)
	o := newTestOrchestrator(newFixtureBrowser(t), store, store)
	obs := &recordingObserver{}
	o.SetObserver(obs)

	res, err := o.Run(context.Background(), testParams())
	require.NoError(t, err)
	require.Len(t, obs.runs, 1)
	assert.Equal(t, res.Run.ID, obs.runs[0].ID)
	assert.Equal(t, models.RunStatusCompleted, obs.runs[0].Status)
	assert.Equal(t, 5, obs.runs[0].ListingsFound)
}
