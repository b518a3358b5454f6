package scraper

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"mkt_tracker/config"
	"mkt_tracker/models"
)

// StallLimit is the number of consecutive iterations without new items after
// which collection stops.
const StallLimit = 4

const (
	maxNudges     = 3
	nudgePixels   = 1200
	settleTimeout = 8 * time.Second
)

type CollectState int

const (
	StateScrolling CollectState = iota
	StateStalled
	StateDone
)

func (s CollectState) String() string {
	switch s {
	case StateScrolling:
		return "scrolling"
	case StateStalled:
		return "stalled"
	case StateDone:
		return "done"
	}
	return fmt.Sprintf("CollectState(%d)", int(s))
}

// ResultsPage is the part of the page controller the collector drives.
type ResultsPage interface {
	WaitSettled(ctx context.Context, timeout time.Duration) error
	Content() (string, error)
	ScrollBy(ctx context.Context, pixels int) error
	ScrollToEnd(ctx context.Context) error
}

// CardSource extracts raw cards from a page snapshot.
type CardSource func(html string) []models.RawCard

// Collector scrolls an infinite results feed and accumulates unique listings.
type Collector struct {
	site    *config.SiteProfile
	extract CardSource
	logger  *zap.Logger
	sleep   Sleeper
}

func NewCollector(site *config.SiteProfile, extract CardSource, logger *zap.Logger) *Collector {
	return &Collector{
		site:    site,
		extract: extract,
		logger:  logger,
		sleep:   sleepCtx,
	}
}

// Collect gathers listings for target until want are found (want <= 0 means
// no cap) or the feed stops growing. On a page failure it returns what was
// collected so far together with an error wrapping ErrPageCrashed.
func (c *Collector) Collect(ctx context.Context, page ResultsPage, target SearchTarget, want int) ([]*models.Listing, error) {
	seen := make(map[string]bool)
	var results []*models.Listing

	state := StateScrolling
	stalls := 0
	iteration := 0

	for state != StateDone {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		iteration++

		if err := page.WaitSettled(ctx, settleTimeout); err != nil {
			c.logger.Debug("Page did not settle, using fixed delay", zap.Error(err))
			if err := c.sleep(ctx, jitter(1200*time.Millisecond, 2500*time.Millisecond)); err != nil {
				return results, err
			}
		}

		html, err := page.Content()
		if err != nil {
			return results, fmt.Errorf("%w: snapshot: %w", ErrPageCrashed, err)
		}

		if iteration == 1 && !strings.Contains(html, c.site.ItemPathMarker) {
			html, err = c.nudge(ctx, page, html)
			if err != nil {
				return results, err
			}
		}

		added := 0
		for _, card := range c.extract(html) {
			l, ok := NormalizeCard(card, c.site, target.URL, target.Category)
			if !ok || seen[l.ItemID] {
				continue
			}
			seen[l.ItemID] = true
			results = append(results, l)
			added++
			if want > 0 && len(results) >= want {
				break
			}
		}

		if added > 0 {
			stalls = 0
			state = StateScrolling
		} else {
			stalls++
			state = StateStalled
		}

		c.logger.Debug("Collect iteration",
			zap.Int("iteration", iteration),
			zap.Stringer("state", state),
			zap.Int("added", added),
			zap.Int("total", len(results)),
			zap.Int("stalls", stalls),
		)

		if (want > 0 && len(results) >= want) || stalls >= StallLimit {
			state = StateDone
			break
		}

		if err := page.ScrollToEnd(ctx); err != nil {
			return results, fmt.Errorf("%w: scroll: %w", ErrPageCrashed, err)
		}
		if err := c.sleep(ctx, jitter(1*time.Second, 2500*time.Millisecond)); err != nil {
			return results, err
		}
	}

	c.logger.Info("Collected listings",
		zap.String("url", target.URL),
		zap.Int("count", len(results)),
		zap.Int("iterations", iteration),
	)
	return results, nil
}

// nudge scrolls a little to trigger lazy rendering when the first snapshot
// has no item anchors, returning the latest snapshot.
func (c *Collector) nudge(ctx context.Context, page ResultsPage, html string) (string, error) {
	for i := 0; i < maxNudges && !strings.Contains(html, c.site.ItemPathMarker); i++ {
		if err := page.ScrollBy(ctx, nudgePixels); err != nil {
			return html, fmt.Errorf("%w: nudge: %w", ErrPageCrashed, err)
		}
		if err := c.sleep(ctx, jitter(500*time.Millisecond, 1*time.Second)); err != nil {
			return html, err
		}
		next, err := page.Content()
		if err != nil {
			return html, fmt.Errorf("%w: snapshot: %w", ErrPageCrashed, err)
		}
		html = next
	}
	return html, nil
}
