// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracker_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status_code"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tracker_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"method", "route"},
	)

	RateLimitRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracker_rate_limit_rejections_total",
			Help: "Total number of requests rejected by the rate limiter",
		},
		[]string{"scope"}, // "default", "auth"
	)

	// Stats cache
	StatsCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracker_stats_cache_lookups_total",
			Help: "Global stats lookups by the tier that answered them",
		},
		[]string{"source"}, // "memory", "database", "miss"
	)

	StatsCacheErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tracker_stats_cache_errors_total",
			Help: "Failures reading or writing the persisted stats row",
		},
	)

	// Ingest
	IngestRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracker_ingest_requests_total",
			Help: "Signed ingest requests by endpoint and outcome",
		},
		[]string{"endpoint", "outcome"},
	)

	IngestRows = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracker_ingest_rows_total",
			Help: "Rows written by ingest endpoints",
		},
		[]string{"endpoint"},
	)

	// Email
	EmailsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracker_emails_total",
			Help: "Outbound email attempts by template and result",
		},
		[]string{"template", "result"},
	)
)

// RecordHTTPRequest records one served request. route is the matched route
// pattern, not the raw path.
func RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	HTTPRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordCacheLookup counts a stats lookup answered by source.
func RecordCacheLookup(source string) {
	StatsCacheLookups.WithLabelValues(source).Inc()
}

// RecordIngest counts an ingest request and the rows it wrote.
func RecordIngest(endpoint string, rows int, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	IngestRequests.WithLabelValues(endpoint, outcome).Inc()
	if rows > 0 {
		IngestRows.WithLabelValues(endpoint).Add(float64(rows))
	}
}

// RecordEmail counts one delivery attempt.
func RecordEmail(template string, err error) {
	result := "sent"
	if err != nil {
		result = "failed"
	}
	EmailsSent.WithLabelValues(template, result).Inc()
}
