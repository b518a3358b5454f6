package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"mkt_tracker/models"
	"mkt_tracker/storage"
)

// ListingHeader is the column order of listing exports.
var ListingHeader = []string{
	"item_id", "title", "brand", "model", "year", "mileage_km", "fuel", "transmission", "body_type",
	"price_text", "price_value", "price_currency", "location_text", "posted_text", "seller_text",
	"thumbnail_url", "img_urls", "latitude", "longitude", "description", "attributes_json",
	"item_url", "category_hint", "source_url", "first_seen", "last_seen",
}

var priceHeader = []string{"item_id", "observed_at", "price_value", "price_currency"}

// WriteListings writes listings as CSV with a header row.
func WriteListings(w io.Writer, listings []*models.Listing) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(ListingHeader); err != nil {
		return err
	}

	for _, l := range listings {
		attrs, err := storage.EncodeAttributes(l.Attributes)
		if err != nil {
			return fmt.Errorf("encode attributes %s: %w", l.ItemID, err)
		}
		record := []string{
			l.ItemID, l.Title, l.Brand, l.Model, intString(l.Year), intString(l.MileageKm),
			l.Fuel, l.Transmission, l.BodyType,
			l.PriceText, floatString(l.PriceValue), l.PriceCurrency,
			l.LocationText, l.PostedText, l.SellerText,
			l.ThumbnailURL, storage.JoinImageURLs(l.ImageURLs),
			floatString(l.Latitude), floatString(l.Longitude),
			l.Description, attrs,
			l.ItemURL, l.CategoryHint, l.SourceURL,
			timeString(l.FirstSeen), timeString(l.LastSeen),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// WritePriceHistory writes price events as CSV with a header row.
func WritePriceHistory(w io.Writer, events []models.PriceHistoryEvent) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(priceHeader); err != nil {
		return err
	}
	for _, e := range events {
		record := []string{
			e.ItemID,
			timeString(e.ObservedAt),
			strconv.FormatFloat(e.PriceValue, 'f', -1, 64),
			e.PriceCurrency,
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func intString(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

func floatString(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func timeString(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
