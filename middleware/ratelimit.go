// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package middleware

import (
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/go-chi/httprate"

	"github.com/beaconhill/compliance-tracker/cliparse"
	"github.com/beaconhill/compliance-tracker/metrics"
)

// Rate limit scopes, used as the metrics label.
const (
	ScopeDefault = "default"
	ScopeAuth    = "auth"
)

// RateLimitExempt lists paths the default limiter never counts.
var RateLimitExempt = []string{"/health", "/debug/db-info"}

type rateLimitBody struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	RetryAfter *int   `json:"retry_after"`
}

// RateLimit limits requests to rate per client and path. Clients are keyed
// by the connection's remote address; forwarding headers are ignored.
// Exempt paths pass through uncounted.
func RateLimit(rate cliparse.Rate, scope string, exempt ...string) func(http.Handler) http.Handler {
	limit := httprate.Limit(
		rate.Limit,
		rate.Window,
		httprate.WithKeyFuncs(httprate.KeyByIP, httprate.KeyByEndpoint),
		httprate.WithLimitHandler(limitExceeded(rate, scope)),
	)
	return func(next http.Handler) http.Handler {
		limited := limit(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if slices.Contains(exempt, r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}
			limited.ServeHTTP(w, r)
		})
	}
}

func limitExceeded(rate cliparse.Rate, scope string) http.HandlerFunc {
	msg := fmt.Sprintf("%d per %s", rate.Limit, windowName(rate.Window))
	return func(w http.ResponseWriter, r *http.Request) {
		metrics.RateLimitRejections.WithLabelValues(scope).Inc()
		body := rateLimitBody{Error: "Rate limit exceeded", Message: msg}
		if s, err := strconv.Atoi(w.Header().Get("Retry-After")); err == nil {
			body.RetryAfter = &s
		}
		JSONResponse(w, http.StatusTooManyRequests, body)
	}
}

func windowName(d time.Duration) string {
	switch d {
	case time.Second:
		return "1 second"
	case time.Minute:
		return "1 minute"
	case time.Hour:
		return "1 hour"
	case 24 * time.Hour:
		return "1 day"
	}
	return d.String()
}
