package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"mkt_tracker/models"
)

// imageSeparator joins image URLs in the img_urls column.
const imageSeparator = "|"

// listingCols is the column contract of the listings table. first_seen and
// last_seen must stay last; update statements rely on it.
var listingCols = []string{
	"item_id", "item_url", "title", "brand", "model", "year", "mileage_km",
	"fuel", "transmission", "body_type", "price_text", "price_value",
	"price_currency", "location_text", "posted_text", "seller_text",
	"thumbnail_url", "img_urls", "latitude", "longitude", "description",
	"attributes_json", "category_hint", "source_url", "first_seen", "last_seen",
}

var listingColumnList = strings.Join(listingCols, ", ")

type rowScanner interface {
	Scan(dest ...any) error
}

// EncodeAttributes serializes attributes as a compact JSON object.
func EncodeAttributes(a models.Attributes) (string, error) {
	if len(a) == 0 {
		return "{}", nil
	}
	data, err := json.Marshal(a)
	if err != nil {
		return "", fmt.Errorf("encode attributes: %w", err)
	}
	return string(data), nil
}

// DecodeAttributes is the inverse of EncodeAttributes.
func DecodeAttributes(s string) (models.Attributes, error) {
	if s == "" {
		return nil, nil
	}
	var a models.Attributes
	if err := json.Unmarshal([]byte(s), &a); err != nil {
		return nil, fmt.Errorf("decode attributes: %w", err)
	}
	if len(a) == 0 {
		return nil, nil
	}
	return a, nil
}

func JoinImageURLs(urls []string) string {
	return strings.Join(urls, imageSeparator)
}

func SplitImageURLs(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, imageSeparator)
}

// listingArgs returns the values of l in listingCols order.
func listingArgs(l *models.Listing) ([]any, error) {
	attrs, err := EncodeAttributes(l.Attributes)
	if err != nil {
		return nil, err
	}
	return []any{
		l.ItemID, l.ItemURL, l.Title, l.Brand, l.Model, nullInt(l.Year), nullInt(l.MileageKm),
		l.Fuel, l.Transmission, l.BodyType, l.PriceText, nullFloat(l.PriceValue),
		l.PriceCurrency, l.LocationText, l.PostedText, l.SellerText,
		l.ThumbnailURL, JoinImageURLs(l.ImageURLs), nullFloat(l.Latitude), nullFloat(l.Longitude), l.Description,
		attrs, l.CategoryHint, l.SourceURL, l.FirstSeen.UTC(), l.LastSeen.UTC(),
	}, nil
}

// scanListing reads one row selected with listingColumnList.
func scanListing(row rowScanner) (*models.Listing, error) {
	var l models.Listing
	var itemURL, title, brand, model, fuel, transmission sql.NullString
	var bodyType, priceText, priceCurrency, locationText sql.NullString
	var postedText, sellerText, thumbnail, imgURLs sql.NullString
	var description, attrs, categoryHint, sourceURL sql.NullString
	var year, mileage sql.NullInt64
	var priceValue, latitude, longitude sql.NullFloat64

	err := row.Scan(
		&l.ItemID, &itemURL, &title, &brand, &model, &year, &mileage,
		&fuel, &transmission, &bodyType, &priceText, &priceValue,
		&priceCurrency, &locationText, &postedText, &sellerText,
		&thumbnail, &imgURLs, &latitude, &longitude, &description,
		&attrs, &categoryHint, &sourceURL, &l.FirstSeen, &l.LastSeen,
	)
	if err != nil {
		return nil, err
	}

	l.ItemURL = itemURL.String
	l.Title = title.String
	l.Brand = brand.String
	l.Model = model.String
	l.Fuel = fuel.String
	l.Transmission = transmission.String
	l.BodyType = bodyType.String
	l.PriceText = priceText.String
	l.PriceCurrency = priceCurrency.String
	l.LocationText = locationText.String
	l.PostedText = postedText.String
	l.SellerText = sellerText.String
	l.ThumbnailURL = thumbnail.String
	l.ImageURLs = SplitImageURLs(imgURLs.String)
	l.Description = description.String
	l.CategoryHint = categoryHint.String
	l.SourceURL = sourceURL.String
	l.Year = intFromNull(year)
	l.MileageKm = intFromNull(mileage)
	l.PriceValue = floatFromNull(priceValue)
	l.Latitude = floatFromNull(latitude)
	l.Longitude = floatFromNull(longitude)
	l.FirstSeen = l.FirstSeen.UTC()
	l.LastSeen = l.LastSeen.UTC()

	l.Attributes, err = DecodeAttributes(attrs.String)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func scanRun(row rowScanner) (*models.ScrapeRun, error) {
	var (
		run        models.ScrapeRun
		finishedAt sql.NullTime
		status     string
		params     sql.NullString
	)
	err := row.Scan(
		&run.ID, &run.StartedAt, &finishedAt, &status, &run.URLsPlanned, &run.URLsSkipped,
		&run.ListingsFound, &run.ListingsNew, &run.PriceChanges, &run.DetailsEnriched,
		&run.ErrorsCount, &params,
	)
	if err != nil {
		return nil, err
	}
	run.Status = models.RunStatus(status)
	run.Params = params.String
	if finishedAt.Valid {
		t := finishedAt.Time.UTC()
		run.FinishedAt = &t
	}
	return &run, nil
}

const runColumnList = `id, started_at, finished_at, status, urls_planned, urls_skipped,
	listings_found, listings_new, price_changes, details_enriched, errors_count, params`

func nullInt(p *int) any {
	if p == nil {
		return nil
	}
	return int64(*p)
}

func nullFloat(p *float64) any {
	if p == nil {
		return nil
	}
	return *p
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func intFromNull(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}

func floatFromNull(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Float64
	return &v
}

// updateAssignments renders "col = $n" pairs for every column but item_id
// and first_seen, and the argument positions they consume, so both backends
// can share the column contract.
func updateAssignments(placeholder func(i int) string) (string, []int) {
	var sets []string
	var idx []int
	n := 1
	for i, col := range listingCols {
		if col == "item_id" || col == "first_seen" {
			continue
		}
		sets = append(sets, col+" = "+placeholder(n))
		idx = append(idx, i)
		n++
	}
	return strings.Join(sets, ", "), idx
}

func placeholders(n int, placeholder func(i int) string) string {
	ps := make([]string, n)
	for i := range ps {
		ps[i] = placeholder(i + 1)
	}
	return strings.Join(ps, ", ")
}
