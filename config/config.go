package config

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Run         RunParams
	Browser     BrowserConfig
	Storage     StorageConfig
	Log         LogConfig
	Scheduler   SchedulerConfig
	S3          S3Config
	ExportDir   string
	SiteProfile string
	Site        *SiteProfile
}

// RunParams are the inputs of one crawl.
type RunParams struct {
	Latitude           float64 `json:"lat"`
	Longitude          float64 `json:"lon"`
	RadiusKm           float64 `json:"radius_km"`
	Query              string  `json:"query,omitempty"`
	Category           string  `json:"category"`
	MaxItems           int     `json:"max_items"`
	Headless           bool    `json:"headless"`
	Details            bool    `json:"details"`
	DetailsConcurrency int     `json:"details_concurrency"`
	StorageStatePath   string  `json:"-"`
}

type BrowserConfig struct {
	ProxyURL             string
	SlowMoMS             int
	NavigationsPerMinute int
	UserAgent            string
	Viewport             [2]int
}

type StorageConfig struct {
	Driver      string // sqlite | postgres
	DBPath      string
	DatabaseURL string
}

type LogConfig struct {
	ConsoleLevel string
	FileLevel    string
	FilePath     string
	MaxFileMB    int
}

type SchedulerConfig struct {
	Interval time.Duration
	Cron     string

	// MetricsAddr serves Prometheus metrics while watching. Empty disables it.
	MetricsAddr string
}

// S3Config holds settings for S3-compatible export uploads. Empty Bucket
// disables uploading.
type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	Prefix          string
	AccessKeyID     string
	SecretAccessKey string
}

const defaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Run: RunParams{
			Latitude:           getEnvFloat("SCRAPE_LAT", 13.7563),
			Longitude:          getEnvFloat("SCRAPE_LON", 100.5018),
			RadiusKm:           getEnvFloat("SCRAPE_RADIUS_KM", 50),
			Query:              os.Getenv("SCRAPE_QUERY"),
			Category:           getEnv("SCRAPE_CATEGORY", "all"),
			MaxItems:           getEnvInt("SCRAPE_MAX_ITEMS", 300),
			Headless:           getEnvBool("HEADLESS", false),
			Details:            getEnvBool("SCRAPE_DETAILS", false),
			DetailsConcurrency: getEnvInt("DETAILS_CONCURRENCY", 1),
			StorageStatePath:   getEnv("STORAGE_STATE", "storage_state.json"),
		},
		Browser: BrowserConfig{
			ProxyURL:             os.Getenv("PROXY_URL"),
			SlowMoMS:             getEnvInt("BROWSER_SLOWMO_MS", 150),
			NavigationsPerMinute: getEnvInt("NAVIGATIONS_PER_MINUTE", 20),
			UserAgent:            getEnv("BROWSER_USER_AGENT", defaultUserAgent),
			Viewport:             [2]int{1280, 900},
		},
		Storage: StorageConfig{
			Driver:      getEnv("DB_DRIVER", "sqlite"),
			DBPath:      getEnv("DB_PATH", "marketplace.db"),
			DatabaseURL: os.Getenv("DATABASE_URL"),
		},
		Log: LogConfig{
			ConsoleLevel: getEnv("LOG_LEVEL", "info"),
			FileLevel:    getEnv("LOG_FILE_LEVEL", "debug"),
			FilePath:     getEnv("LOG_FILE", "scraper.log"),
			MaxFileMB:    getEnvInt("LOG_FILE_MAX_MB", 2),
		},
		Scheduler: SchedulerConfig{
			Cron:        os.Getenv("SCRAPE_CRON"),
			MetricsAddr: os.Getenv("METRICS_ADDR"),
		},
		S3: S3Config{
			Bucket:          os.Getenv("EXPORT_S3_BUCKET"),
			Region:          getEnv("EXPORT_S3_REGION", "us-east-1"),
			Endpoint:        os.Getenv("EXPORT_S3_ENDPOINT"),
			Prefix:          getEnv("EXPORT_S3_PREFIX", "exports/"),
			AccessKeyID:     os.Getenv("EXPORT_S3_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("EXPORT_S3_SECRET_ACCESS_KEY"),
		},
		ExportDir:   getEnv("EXPORT_DIR", "."),
		SiteProfile: getEnv("SITE_PROFILE", "config/sites/marketplace.yaml"),
	}

	if interval := os.Getenv("SCRAPE_INTERVAL"); interval != "" {
		d, err := time.ParseDuration(interval)
		if err != nil {
			return nil, fmt.Errorf("SCRAPE_INTERVAL: %w", err)
		}
		cfg.Scheduler.Interval = d
	}

	site, err := LoadSiteProfile(cfg.SiteProfile)
	if err != nil {
		return nil, err
	}
	cfg.Site = site

	return cfg, nil
}

// ValidationError reports a malformed run parameter.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

var validCategories = map[string]bool{"vehicles": true, "motorcycles": true, "all": true}

// Validate checks the geographic and category inputs.
func (p RunParams) Validate() error {
	if math.IsNaN(p.Latitude) || p.Latitude < -90 || p.Latitude > 90 {
		return &ValidationError{Field: "latitude", Reason: fmt.Sprintf("%v not in [-90, 90]", p.Latitude)}
	}
	if math.IsNaN(p.Longitude) || p.Longitude < -180 || p.Longitude > 180 {
		return &ValidationError{Field: "longitude", Reason: fmt.Sprintf("%v not in [-180, 180]", p.Longitude)}
	}
	if math.IsNaN(p.RadiusKm) || math.IsInf(p.RadiusKm, 0) || p.RadiusKm <= 0 {
		return &ValidationError{Field: "radius_km", Reason: "must be positive"}
	}
	if !validCategories[strings.ToLower(p.Category)] {
		return &ValidationError{Field: "category", Reason: fmt.Sprintf("%q is not one of vehicles, motorcycles, all", p.Category)}
	}
	if p.MaxItems < 0 {
		return &ValidationError{Field: "max_items", Reason: "must not be negative"}
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}
