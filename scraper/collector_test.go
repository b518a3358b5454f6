package scraper

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mkt_tracker/config"
	"mkt_tracker/models"
)

// fakeResultsPage serves snapshots in order, repeating the last one.
type fakeResultsPage struct {
	snapshots []string
	served    int
	scrolls   int
	nudges    int
	settleErr error
	scrollErr error
	failAfter int
}

func (p *fakeResultsPage) WaitSettled(context.Context, time.Duration) error { return p.settleErr }

func (p *fakeResultsPage) Content() (string, error) {
	i := p.served
	if i >= len(p.snapshots) {
		i = len(p.snapshots) - 1
	}
	p.served++
	return p.snapshots[i], nil
}

func (p *fakeResultsPage) ScrollBy(context.Context, int) error {
	p.nudges++
	return nil
}

func (p *fakeResultsPage) ScrollToEnd(context.Context) error {
	p.scrolls++
	if p.scrollErr != nil && p.scrolls > p.failAfter {
		return p.scrollErr
	}
	return nil
}

func noSleep(context.Context, time.Duration) error { return nil }

func itemCards(ids ...int) []models.RawCard {
	cards := make([]models.RawCard, len(ids))
	for i, id := range ids {
		cards[i] = models.RawCard{
			Href:       fmt.Sprintf("/marketplace/item/%d/", id),
			TitleGuess: fmt.Sprintf("Listing %d", id),
			PriceText:  "฿1,000",
		}
	}
	return cards
}

func newTestCollector(extract CardSource) *Collector {
	c := NewCollector(config.DefaultSiteProfile(), extract, zap.NewNop())
	c.sleep = noSleep
	return c
}

var testTarget = SearchTarget{URL: "https://www.facebook.com/marketplace/category/vehicles", Category: "vehicles"}

const itemSnapshot = `<a href="/marketplace/item/1/">x</a>`

func TestCollectorStopsAfterStallLimit(t *testing.T) {
	extractions := 0
	c := newTestCollector(func(string) []models.RawCard {
		extractions++
		return itemCards(1)
	})
	page := &fakeResultsPage{snapshots: []string{itemSnapshot}}

	listings, err := c.Collect(context.Background(), page, testTarget, 300)
	require.NoError(t, err)
	require.Len(t, listings, 1)
	assert.Equal(t, 5, extractions)
	assert.Equal(t, 4, page.scrolls)
	assert.Equal(t, "1", listings[0].ItemID)
	assert.Equal(t, testTarget.URL, listings[0].SourceURL)
}

func TestCollectorStopsAtTarget(t *testing.T) {
	batches := [][]models.RawCard{itemCards(1, 2), itemCards(2, 3, 4), itemCards(5, 6)}
	call := 0
	c := newTestCollector(func(string) []models.RawCard {
		b := batches[call]
		call++
		return b
	})
	page := &fakeResultsPage{snapshots: []string{itemSnapshot}}

	listings, err := c.Collect(context.Background(), page, testTarget, 3)
	require.NoError(t, err)
	require.Len(t, listings, 3)
	assert.Equal(t, []string{"1", "2", "3"}, ids(listings))
	assert.Equal(t, 1, page.scrolls)
}

func TestCollectorGrowthResetsStalls(t *testing.T) {
	// growth on the 4th iteration resets the counter, so 4 more stalls follow
	batches := [][]models.RawCard{itemCards(1), itemCards(1), itemCards(1), itemCards(1, 2)}
	call := 0
	c := newTestCollector(func(string) []models.RawCard {
		if call < len(batches) {
			call++
			return batches[call-1]
		}
		call++
		return itemCards(2)
	})
	page := &fakeResultsPage{snapshots: []string{itemSnapshot}}

	listings, err := c.Collect(context.Background(), page, testTarget, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, ids(listings))
	assert.Equal(t, 8, call)
}

func TestCollectorDropsNonItemCards(t *testing.T) {
	c := newTestCollector(func(string) []models.RawCard {
		return []models.RawCard{{Href: "/groups/1/"}, {Href: ""}, itemCards(7)[0]}
	})
	page := &fakeResultsPage{snapshots: []string{itemSnapshot}}

	listings, err := c.Collect(context.Background(), page, testTarget, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"7"}, ids(listings))
}

func TestCollectorScrollFailureKeepsPartialResults(t *testing.T) {
	call := 0
	c := newTestCollector(func(string) []models.RawCard {
		call++
		return itemCards(call)
	})
	page := &fakeResultsPage{
		snapshots: []string{itemSnapshot},
		scrollErr: errors.New("Target page, context or browser has been closed"),
		failAfter: 1,
	}

	listings, err := c.Collect(context.Background(), page, testTarget, 50)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPageCrashed)
	assert.Equal(t, []string{"1", "2"}, ids(listings))
}

func TestCollectorNudgesEmptyFirstSnapshot(t *testing.T) {
	c := newTestCollector(func(html string) []models.RawCard {
		if html == itemSnapshot {
			return itemCards(1)
		}
		return nil
	})
	page := &fakeResultsPage{snapshots: []string{"<div>loading</div>", "<div>loading</div>", itemSnapshot}}

	listings, err := c.Collect(context.Background(), page, testTarget, 1)
	require.NoError(t, err)
	assert.Len(t, listings, 1)
	assert.Equal(t, 2, page.nudges)
}

func TestCollectorSettleTimeoutDegrades(t *testing.T) {
	c := newTestCollector(func(string) []models.RawCard { return itemCards(1) })
	page := &fakeResultsPage{snapshots: []string{itemSnapshot}, settleErr: errors.New("timeout")}

	listings, err := c.Collect(context.Background(), page, testTarget, 1)
	require.NoError(t, err)
	assert.Len(t, listings, 1)
}

func TestCollectorHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := newTestCollector(func(string) []models.RawCard { return itemCards(1) })
	_, err := c.Collect(ctx, &fakeResultsPage{snapshots: []string{itemSnapshot}}, testTarget, 1)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCollectStateString(t *testing.T) {
	assert.Equal(t, "scrolling", StateScrolling.String())
	assert.Equal(t, "stalled", StateStalled.String())
	assert.Equal(t, "done", StateDone.String())
}

func ids(listings []*models.Listing) []string {
	out := make([]string, len(listings))
	for i, l := range listings {
		out[i] = l.ItemID
	}
	return out
}
