package scraper

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"mkt_tracker/config"
	"mkt_tracker/heuristics"
	"mkt_tracker/models"
	"mkt_tracker/parse"
)

const (
	detailReadyTimeout  = 15 * time.Second
	maxAttributeNodes   = 600
	maxAttributeText    = 200
	maxPriceCandidates  = 300
	maxPriceCandidateLn = 40
	maxDetailImages     = 40
)

var (
	attributeLineRe = regexp.MustCompile(`^([A-Za-zА-Яа-яЁё/\-\s]+):?\s+(.+)$`)
	pagePriceRe     = regexp.MustCompile(`[฿$€£]\s?\d`)

	coordJSONRe  = regexp.MustCompile(`"latitude"\s*:\s*(-?\d{1,3}\.\d+).{0,80}?"longitude"\s*:\s*(-?\d{1,3}\.\d+)`)
	coordShortRe = regexp.MustCompile(`["']lat["']\s*[:=]\s*(-?\d{1,3}\.\d+).{0,80}?["'](?:lon|lng|long)["']\s*[:=]\s*(-?\d{1,3}\.\d+)`)

	descriptionSelectors = "div[role='article'], div[data-ad-preview='message']"
)

// labelDenylist holds generic labels and section headings that look like
// label/value rows.
var labelDenylist = map[string]bool{
	"details":              true,
	"more":                 true,
	"info":                 true,
	"about":                true,
	"see details":          true,
	"about this vehicle":   true,
	"seller's description": true,
	"seller information":   true,
	"description":          true,
	"location":             true,
	"описание":             true,
	"подробности":          true,
	"о продавце":           true,
}

// DetailPage is the part of the page controller the enricher drives.
type DetailPage interface {
	OpenDetail(ctx context.Context, url string, timeout time.Duration) (bool, error)
	Content() (string, error)
}

// Report summarizes one enrichment attempt.
type Report struct {
	ItemID   string
	Enriched bool
	Misses   []*ExtractionMiss
}

func (r *Report) miss(m *ExtractionMiss) {
	r.Misses = append(r.Misses, m)
}

// MissFields lists the fields that could not be extracted.
func (r Report) MissFields() []string {
	fields := make([]string, len(r.Misses))
	for i, m := range r.Misses {
		fields[i] = m.Field
	}
	return fields
}

type coordinates struct {
	lat, lon float64
}

// DetailEnricher opens a listing's detail page and fills its enrichment
// fields.
type DetailEnricher struct {
	site   *config.SiteProfile
	logger *zap.Logger
	sleep  Sleeper
}

func NewDetailEnricher(site *config.SiteProfile, logger *zap.Logger) *DetailEnricher {
	return &DetailEnricher{site: site, logger: logger, sleep: sleepCtx}
}

// Enrich fills l in place. A detail page that never shows its marker leaves l
// untouched and is reported as a miss; only navigation failures are returned
// as errors.
func (e *DetailEnricher) Enrich(ctx context.Context, page DetailPage, l *models.Listing) (Report, error) {
	report := Report{ItemID: l.ItemID}

	ready, err := page.OpenDetail(ctx, l.ItemURL, detailReadyTimeout)
	if err != nil {
		return report, err
	}
	if !ready {
		report.miss(&ExtractionMiss{Field: "page", Reason: "detail marker not visible"})
		e.logMisses(report)
		return report, nil
	}

	if err := e.sleep(ctx, jitter(1500*time.Millisecond, 3*time.Second)); err != nil {
		return report, err
	}

	html, err := page.Content()
	if err != nil {
		return report, err
	}
	e.Apply(html, l, &report)
	e.logMisses(report)
	return report, nil
}

// Apply runs every field extraction over a detail page snapshot.
func (e *DetailEnricher) Apply(html string, l *models.Listing, report *Report) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		report.miss(&ExtractionMiss{Field: "page", Reason: err.Error()})
		return
	}
	root := doc.Find(e.site.DetailMarker).First()
	if root.Length() == 0 {
		root = doc.Selection
	}

	if r := guard("description", func() Result[string] { return extractDescription(root) }); r.Ok() {
		l.Description = r.Value
	} else {
		report.miss(r.Miss)
	}

	if r := guard("attributes", func() Result[models.Attributes] { return extractAttributes(root) }); r.Ok() {
		l.Attributes = r.Value
	} else {
		report.miss(r.Miss)
	}

	if r := guard("images", func() Result[[]string] { return extractImages(root) }); r.Ok() {
		l.ImageURLs = r.Value
	} else {
		report.miss(r.Miss)
	}

	if r := guard("coordinates", func() Result[coordinates] { return extractCoordinates(html) }); r.Ok() {
		lat, lon := r.Value.lat, r.Value.lon
		l.Latitude, l.Longitude = &lat, &lon
	} else {
		report.miss(r.Miss)
	}

	if r := guard("price", func() Result[string] { return extractPagePrice(root) }); r.Ok() {
		if v, cur := parse.ParsePrice(r.Value); v != nil {
			l.PriceValue = v
			if cur != "" {
				l.PriceCurrency = cur
			}
			if l.PriceText == "" {
				l.PriceText = r.Value
			}
		}
	} else {
		report.miss(r.Miss)
	}

	heuristics.Apply(l)
	report.Enriched = true
}

func (e *DetailEnricher) logMisses(report Report) {
	if len(report.Misses) == 0 {
		return
	}
	e.logger.Debug("Detail fields missing",
		zap.String("item_id", report.ItemID),
		zap.Strings("fields", report.MissFields()),
	)
}

func extractDescription(root *goquery.Selection) Result[string] {
	var best string
	root.Find(descriptionSelectors).Each(func(_ int, s *goquery.Selection) {
		if text := innerText(s); len([]rune(text)) > len([]rune(best)) {
			best = text
		}
	})
	if best == "" {
		return missing[string]("description", "no description block")
	}
	return found(best)
}

func extractAttributes(root *goquery.Selection) Result[models.Attributes] {
	var attrs models.Attributes
	root.Find("li, div").EachWithBreak(func(i int, s *goquery.Selection) bool {
		if i >= maxAttributeNodes {
			return false
		}
		text := innerText(s)
		if text == "" || len([]rune(text)) > maxAttributeText {
			return true
		}
		m := attributeLineRe.FindStringSubmatch(text)
		if m == nil {
			return true
		}
		label, value := parse.Clean(m[1]), parse.Clean(m[2])
		if n := len([]rune(label)); n < 2 || n > 30 {
			return true
		}
		if n := len([]rune(value)); n < 1 || n > 120 {
			return true
		}
		if labelDenylist[strings.ToLower(label)] {
			return true
		}
		attrs.Set(label, value)
		return true
	})
	if len(attrs) == 0 {
		return missing[models.Attributes]("attributes", "no label/value rows")
	}
	return found(attrs)
}

func extractImages(root *goquery.Selection) Result[[]string] {
	seen := make(map[string]bool)
	var urls []string
	root.Find("img").EachWithBreak(func(_ int, img *goquery.Selection) bool {
		src, ok := img.Attr("src")
		if !ok || !strings.HasPrefix(src, "http") || strings.Contains(src, "safe_image.php") || seen[src] {
			return true
		}
		seen[src] = true
		urls = append(urls, src)
		return len(urls) < maxDetailImages
	})
	if len(urls) == 0 {
		return missing[[]string]("images", "no absolute image sources")
	}
	return found(urls)
}

func extractCoordinates(html string) Result[coordinates] {
	for _, re := range []*regexp.Regexp{coordJSONRe, coordShortRe} {
		m := re.FindStringSubmatch(html)
		if m == nil {
			continue
		}
		lat, errLat := strconv.ParseFloat(m[1], 64)
		lon, errLon := strconv.ParseFloat(m[2], 64)
		if errLat != nil || errLon != nil || lat < -90 || lat > 90 || lon < -180 || lon > 180 {
			continue
		}
		return found(coordinates{lat: lat, lon: lon})
	}
	return missing[coordinates]("coordinates", "no coordinates in markup")
}

func extractPagePrice(root *goquery.Selection) Result[string] {
	var price string
	root.Find("span, div").EachWithBreak(func(i int, s *goquery.Selection) bool {
		if i >= maxPriceCandidates {
			return false
		}
		text := innerText(s)
		if len([]rune(text)) <= maxPriceCandidateLn && pagePriceRe.MatchString(text) {
			price = text
			return false
		}
		return true
	})
	if price == "" {
		return missing[string]("price", "no price on page")
	}
	return found(price)
}
