package models

import "time"

type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// ScrapeRun records one crawl over the planned search URLs.
type ScrapeRun struct {
	ID              string     `json:"id" db:"id"`
	StartedAt       time.Time  `json:"started_at" db:"started_at"`
	FinishedAt      *time.Time `json:"finished_at" db:"finished_at"`
	Status          RunStatus  `json:"status" db:"status"`
	URLsPlanned     int        `json:"urls_planned" db:"urls_planned"`
	URLsSkipped     int        `json:"urls_skipped" db:"urls_skipped"`
	ListingsFound   int        `json:"listings_found" db:"listings_found"`
	ListingsNew     int        `json:"listings_new" db:"listings_new"`
	PriceChanges    int        `json:"price_changes" db:"price_changes"`
	DetailsEnriched int        `json:"details_enriched" db:"details_enriched"`
	ErrorsCount     int        `json:"errors_count" db:"errors_count"`
	Params          string     `json:"params" db:"params"`
}
