// Package metrics exposes Prometheus collectors for the companion service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	scrapeCyclesTotal          *prometheus.CounterVec
	scrapeCycleDurationSeconds prometheus.Histogram
	meterReadingM3             prometheus.Gauge
	meterReadAtTimestamp       prometheus.Gauge
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		scrapeCyclesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "companion_scrape_cycles_total",
				Help: "Total number of scrape cycles, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		scrapeCycleDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "companion_scrape_cycle_duration_seconds",
				Help:    "Histogram of full scrape cycle durations.",
				Buckets: []float64{1, 2, 5, 10, 20, 30, 60, 120},
			},
		)

		meterReadingM3 = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "companion_meter_reading_m3",
				Help: "Last successfully scraped meter reading in cubic meters.",
			},
		)

		meterReadAtTimestamp = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "companion_meter_read_at_timestamp_seconds",
				Help: "Unix timestamp of the last upstream meter poll.",
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveCycle records one completed scrape cycle.
func ObserveCycle(outcome string, duration time.Duration) {
	if scrapeCyclesTotal == nil {
		return
	}
	scrapeCyclesTotal.WithLabelValues(outcome).Inc()
	scrapeCycleDurationSeconds.Observe(duration.Seconds())
}

// SetReading updates the last-known-reading gauges.
func SetReading(volumeM3 float64, readAt time.Time) {
	if meterReadingM3 == nil {
		return
	}
	meterReadingM3.Set(volumeM3)
	meterReadAtTimestamp.Set(float64(readAt.Unix()))
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	if httpRequestsTotal == nil {
		return
	}
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
