// Package metrics exposes scrape run counters to Prometheus.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"mkt_tracker/models"
)

const (
	Namespace = "mkt_tracker"
	Subsystem = "scrape"

	shutdownTimeout = 5 * time.Second
)

// Metrics holds the run-level counters.
type Metrics struct {
	RunsTotal       *prometheus.CounterVec
	RunDuration     prometheus.Histogram
	ListingsFound   prometheus.Counter
	ListingsNew     prometheus.Counter
	PriceChanges    prometheus.Counter
	DetailsEnriched prometheus.Counter
	URLsSkipped     prometheus.Counter
	Errors          prometheus.Counter
	LastRunFinished prometheus.Gauge
}

// NewMetrics creates and registers the metrics on reg, or on the default
// registerer when reg is nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	counter := func(name, help string) prometheus.Counter {
		return factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Subsystem,
			Name:      name,
			Help:      help,
		})
	}

	return &Metrics{
		RunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Subsystem,
			Name:      "runs_total",
			Help:      "Finished scrape runs by status",
		}, []string{"status"}),
		RunDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: Subsystem,
			Name:      "run_duration_seconds",
			Help:      "Wall time of a scrape run",
			Buckets:   []float64{30, 60, 120, 300, 600, 1200, 1800, 3600},
		}),
		ListingsFound:   counter("listings_found_total", "Listings collected from result pages"),
		ListingsNew:     counter("listings_new_total", "Listings stored for the first time"),
		PriceChanges:    counter("price_changes_total", "Price history events appended"),
		DetailsEnriched: counter("details_enriched_total", "Listings enriched from their detail page"),
		URLsSkipped:     counter("urls_skipped_total", "Search URLs skipped because no listings became visible"),
		Errors:          counter("errors_total", "Errors counted during runs"),
		LastRunFinished: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: Subsystem,
			Name:      "last_run_finished_timestamp_seconds",
			Help:      "Unix time the last run finished",
		}),
	}
}

// ObserveRun records a finished run.
func (m *Metrics) ObserveRun(run *models.ScrapeRun) {
	if run == nil {
		return
	}
	m.RunsTotal.WithLabelValues(string(run.Status)).Inc()
	m.ListingsFound.Add(float64(run.ListingsFound))
	m.ListingsNew.Add(float64(run.ListingsNew))
	m.PriceChanges.Add(float64(run.PriceChanges))
	m.DetailsEnriched.Add(float64(run.DetailsEnriched))
	m.URLsSkipped.Add(float64(run.URLsSkipped))
	m.Errors.Add(float64(run.ErrorsCount))

	if run.FinishedAt != nil {
		m.RunDuration.Observe(run.FinishedAt.Sub(run.StartedAt).Seconds())
		m.LastRunFinished.Set(float64(run.FinishedAt.Unix()))
	}
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, g prometheus.Gatherer, logger *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(g))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Serving metrics", zap.String("address", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("metrics server shutdown: %w", err)
	}
	return nil
}
