// Package metrics exposes Prometheus collectors for contact extraction.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	extractionsTotal           *prometheus.CounterVec
	strategyRunsTotal          *prometheus.CounterVec
	strategyDurationSeconds    *prometheus.HistogramVec
	emailsFoundTotal           *prometheus.CounterVec
	aiRequestsTotal            *prometheus.CounterVec
	aiRetriesTotal             *prometheus.CounterVec
	pacingDelaySeconds         prometheus.Histogram
	rateLimitDelaysSeconds     *prometheus.HistogramVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init registers the collectors. It is safe to call multiple times and the
// Observe helpers call it themselves.
func Init() {
	once.Do(func() {
		extractionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "contactfinder_extractions_total",
				Help: "Total number of extraction requests, labeled by mode and status.",
			},
			[]string{"mode", "status"},
		)

		strategyRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "contactfinder_strategy_runs_total",
				Help: "Total number of strategy executions, labeled by strategy and status.",
			},
			[]string{"strategy", "status"},
		)

		strategyDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "contactfinder_strategy_duration_seconds",
				Help:    "Histogram of strategy execution time.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"strategy"},
		)

		emailsFoundTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "contactfinder_emails_found_total",
				Help: "Total number of accepted addresses, labeled by category.",
			},
			[]string{"category"},
		)

		aiRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "contactfinder_ai_requests_total",
				Help: "Total number of AI service calls, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		aiRetriesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "contactfinder_ai_retries_total",
				Help: "Total number of AI service retries, labeled by reason.",
			},
			[]string{"reason"},
		)

		pacingDelaySeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "contactfinder_ai_pacing_delay_seconds",
				Help:    "Histogram of time spent waiting for the AI call pacer.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
			},
		)

		rateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "contactfinder_rate_limit_delays_seconds",
				Help:    "Histogram of per-host fetch rate limit waits.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
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
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 15, 60},
			},
			[]string{"method", "route"},
		)
	})
}

// SanitizeSite extracts a lowercase hostname for use as a label.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	Init()
	return promhttp.Handler()
}

// ObserveExtraction counts a finished extraction.
func ObserveExtraction(mode, status string) {
	Init()
	extractionsTotal.WithLabelValues(mode, status).Inc()
}

// ObserveStrategy records one strategy execution.
func ObserveStrategy(strategy, status string, duration time.Duration) {
	Init()
	strategyRunsTotal.WithLabelValues(strategy, status).Inc()
	strategyDurationSeconds.WithLabelValues(strategy).Observe(duration.Seconds())
}

// ObserveEmail counts an accepted address by category.
func ObserveEmail(category string) {
	Init()
	emailsFoundTotal.WithLabelValues(category).Inc()
}

// ObserveAIRequest counts an AI service call by outcome.
func ObserveAIRequest(outcome string) {
	Init()
	aiRequestsTotal.WithLabelValues(outcome).Inc()
}

// ObserveAIRetry counts a scheduled retry.
func ObserveAIRetry(reason string) {
	Init()
	aiRetriesTotal.WithLabelValues(reason).Inc()
}

// ObservePacingDelay records time spent in the AI call pacer.
func ObservePacingDelay(duration time.Duration) {
	Init()
	pacingDelaySeconds.Observe(duration.Seconds())
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	Init()
	rateLimitDelaysSeconds.WithLabelValues(domain).Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
