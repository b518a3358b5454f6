package models

import (
	"time"
)

// Category hints attached to listings collected from a category feed.
const (
	CategoryVehicles    = "vehicles"
	CategoryMotorcycles = "motorcycles"
	CategoryAll         = "all"
)

// Listing is one external ad. ItemID is the natural key.
type Listing struct {
	ItemID  string `json:"item_id" db:"item_id"`
	ItemURL string `json:"item_url" db:"item_url"`

	// Summary fields from the results page
	Title        string `json:"title" db:"title"`
	PriceText    string `json:"price_text" db:"price_text"`
	LocationText string `json:"location_text" db:"location_text"`
	PostedText   string `json:"posted_text" db:"posted_text"`
	SellerText   string `json:"seller_text" db:"seller_text"`
	ThumbnailURL string `json:"thumbnail_url" db:"thumbnail_url"`
	CategoryHint string `json:"category_hint" db:"category_hint"`
	SourceURL    string `json:"source_url" db:"source_url"`

	PriceValue    *float64 `json:"price_value" db:"price_value"`
	PriceCurrency string   `json:"price_currency" db:"price_currency"`

	// Enrichment fields from the detail page
	Description  string     `json:"description" db:"description"`
	Attributes   Attributes `json:"attributes" db:"attributes_json"`
	Year         *int       `json:"year" db:"year"`
	MileageKm    *int       `json:"mileage_km" db:"mileage_km"`
	Fuel         string     `json:"fuel" db:"fuel"`
	Transmission string     `json:"transmission" db:"transmission"`
	BodyType     string     `json:"body_type" db:"body_type"`
	Brand        string     `json:"brand" db:"brand"`
	Model        string     `json:"model" db:"model"`
	ImageURLs    []string   `json:"image_urls" db:"img_urls"`
	Latitude     *float64   `json:"latitude" db:"latitude"`
	Longitude    *float64   `json:"longitude" db:"longitude"`

	// Owned by the store
	FirstSeen time.Time `json:"first_seen" db:"first_seen"`
	LastSeen  time.Time `json:"last_seen" db:"last_seen"`
}

// PriceHistoryEvent is an append-only price observation keyed by
// (ItemID, ObservedAt).
type PriceHistoryEvent struct {
	ItemID        string    `json:"item_id" db:"item_id"`
	ObservedAt    time.Time `json:"observed_at" db:"observed_at"`
	PriceValue    float64   `json:"price_value" db:"price_value"`
	PriceCurrency string    `json:"price_currency" db:"price_currency"`
}

// RawCard is what the card extractor reads off one results-page preview,
// before normalization.
type RawCard struct {
	Href         string
	TitleGuess   string
	PriceText    string
	LocationText string
	PostedText   string
	SellerText   string
	Thumbnail    string
}
