package scraper

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"mkt_tracker/config"
	"mkt_tracker/identity"
	"mkt_tracker/models"
	"mkt_tracker/parse"
)

const (
	maxTitleRunes   = 220
	maxFallbackRows = 200
	maxCardImages   = 5
)

var (
	cardPriceRe = regexp.MustCompile(`[฿$€£]\s?\d[\d,.]*`)
	postedRe    = regexp.MustCompile(`(?i)(?:\d+\s*)?(?:minutes?|hours?|days?|weeks?|months?)\s+ago|just listed|только что|(?:минут[уы]?|час(?:а|ов)?|дн(?:я|ей)|день|недел[июь]) назад`)
	sellerRe    = regexp.MustCompile(`(?i)(?:^|\s)(?:seller|продавец|by)(?:\s|:)`)
)

// CardExtractor reads listing previews off a rendered results page.
type CardExtractor struct {
	site   *config.SiteProfile
	logger *zap.Logger
}

func NewCardExtractor(site *config.SiteProfile, logger *zap.Logger) *CardExtractor {
	return &CardExtractor{site: site, logger: logger}
}

func (e *CardExtractor) itemAnchorSelector() string {
	return fmt.Sprintf("a[href*='%s']", e.site.ItemPathMarker)
}

// Extract returns the cards on the page. The structured strategy runs over
// feed-item markers; when it yields nothing the item anchors are read
// directly.
func (e *CardExtractor) Extract(html string) []models.RawCard {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		e.logger.Debug("Parse results snapshot failed", zap.Error(err))
		return nil
	}

	if cards := e.structured(doc); len(cards) > 0 {
		return cards
	}

	cards := e.fallback(doc)
	if len(cards) > 0 {
		e.logger.Debug("Feed markers missing, used anchor fallback", zap.Int("cards", len(cards)))
	}
	return cards
}

func (e *CardExtractor) structured(doc *goquery.Document) []models.RawCard {
	var cards []models.RawCard
	anchorSel := e.itemAnchorSelector()

	doc.Find(e.site.FeedItemSelector).Each(func(_ int, item *goquery.Selection) {
		a := item.Find(anchorSel).First()
		href, ok := a.Attr("href")
		if !ok || !identity.IsItemPath(href, e.site.ItemPathMarker) {
			return
		}

		// price can sit outside the anchor
		card := models.RawCard{Href: href}
		card.PriceText = cardPriceRe.FindString(innerText(item))
		lines := innerLines(a)

		var rest []string
		for _, line := range lines {
			switch {
			case card.PriceText != "" && isPriceLine(line):
			case card.PostedText == "" && postedRe.MatchString(line):
				card.PostedText = line
			case card.LocationText == "" && e.site.IsKnownLocation(line):
				card.LocationText = line
			case card.SellerText == "" && sellerRe.MatchString(" "+line+" "):
				card.SellerText = line
			default:
				rest = append(rest, line)
			}
		}

		card.TitleGuess = parse.Truncate(longest(rest), maxTitleRunes)
		card.Thumbnail = absoluteImage(item, maxCardImages)
		cards = append(cards, card)
	})

	return cards
}

func (e *CardExtractor) fallback(doc *goquery.Document) []models.RawCard {
	var cards []models.RawCard

	doc.Find(e.itemAnchorSelector()).EachWithBreak(func(i int, a *goquery.Selection) bool {
		if i >= maxFallbackRows {
			return false
		}
		href, ok := a.Attr("href")
		if !ok || href == "" {
			return true
		}

		title := parse.Clean(a.AttrOr("aria-label", ""))
		if title == "" {
			title = innerText(a)
		}
		cards = append(cards, models.RawCard{
			Href:       href,
			TitleGuess: parse.Truncate(title, maxTitleRunes),
			Thumbnail:  absoluteImage(a, 1),
		})
		return true
	})

	return cards
}

// isPriceLine reports whether line is a price with at most a short suffix
// such as a struck-through previous price.
func isPriceLine(line string) bool {
	loc := cardPriceRe.FindStringIndex(line)
	if loc == nil {
		return false
	}
	return loc[0] == 0 && len(line)-loc[1] <= 16
}

func longest(lines []string) string {
	var best string
	for _, l := range lines {
		if len([]rune(l)) > len([]rune(best)) {
			best = l
		}
	}
	return best
}

// NormalizeCard turns a raw card into a Listing. Cards whose href does not
// point at an item page are rejected.
func NormalizeCard(card models.RawCard, site *config.SiteProfile, sourceURL, category string) (*models.Listing, bool) {
	if !identity.IsItemPath(card.Href, site.ItemPathMarker) {
		return nil, false
	}

	itemURL := identity.CanonicalURL(card.Href, site.BaseURL)
	if itemURL == "" {
		return nil, false
	}

	l := &models.Listing{
		ItemID:       identity.ItemID(itemURL),
		ItemURL:      itemURL,
		Title:        parse.Truncate(parse.Clean(card.TitleGuess), maxTitleRunes),
		PriceText:    parse.Clean(card.PriceText),
		LocationText: parse.Clean(card.LocationText),
		PostedText:   parse.Clean(card.PostedText),
		SellerText:   parse.Clean(card.SellerText),
		ThumbnailURL: card.Thumbnail,
		CategoryHint: category,
		SourceURL:    sourceURL,
	}
	l.PriceValue, l.PriceCurrency = parse.ParsePrice(l.PriceText)
	return l, true
}
