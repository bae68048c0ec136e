// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package middleware

import (
	"crypto/tls"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beaconhill/compliance-tracker/cliparse"
	"github.com/beaconhill/compliance-tracker/metrics"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("handled"))
})

func TestSecurityHeaders(t *testing.T) {
	t.Run("api path", func(t *testing.T) {
		w := httptest.NewRecorder()
		SecurityHeaders(false)(okHandler).ServeHTTP(w, httptest.NewRequest("GET", "/api/stats", nil))

		h := w.Header()
		assert.Contains(t, h.Get("Content-Security-Policy"), "frame-ancestors 'none'")
		assert.Contains(t, h.Get("Content-Security-Policy"), "https://cdn.plot.ly")
		assert.Equal(t, "DENY", h.Get("X-Frame-Options"))
		assert.Equal(t, "nosniff", h.Get("X-Content-Type-Options"))
		assert.Equal(t, "1; mode=block", h.Get("X-XSS-Protection"))
		assert.Equal(t, "strict-origin-when-cross-origin", h.Get("Referrer-Policy"))
		assert.Contains(t, h.Get("Permissions-Policy"), "camera=()")
		assert.Equal(t, "no-cache, no-store, must-revalidate", h.Get("Cache-Control"))
		assert.Equal(t, "no-cache", h.Get("Pragma"))
		assert.Equal(t, "0", h.Get("Expires"))
		assert.Empty(t, h.Get("Strict-Transport-Security"), "plain HTTP without force_https")
	})

	t.Run("non api path is cacheable", func(t *testing.T) {
		w := httptest.NewRecorder()
		SecurityHeaders(false)(okHandler).ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))
		assert.Empty(t, w.Header().Get("Cache-Control"))
		assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	})

	t.Run("hsts over tls", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/auth/login", nil)
		req.TLS = &tls.ConnectionState{}
		w := httptest.NewRecorder()
		SecurityHeaders(false)(okHandler).ServeHTTP(w, req)
		assert.Equal(t, "max-age=31536000; includeSubDomains; preload", w.Header().Get("Strict-Transport-Security"))
		assert.NotEmpty(t, w.Header().Get("Cache-Control"))
	})

	t.Run("hsts forced", func(t *testing.T) {
		w := httptest.NewRecorder()
		SecurityHeaders(true)(okHandler).ServeHTTP(w, httptest.NewRequest("GET", "/", nil))
		assert.NotEmpty(t, w.Header().Get("Strict-Transport-Security"))
	})
}

func TestValidateRequest(t *testing.T) {
	handler := ValidateRequest(64)(okHandler)

	tests := []struct {
		name        string
		method      string
		path        string
		body        string
		contentType string
		userAgent   string
		wantStatus  int
		wantError   string
	}{
		{"plain get", "GET", "/api/stats", "", "", "Mozilla/5.0 (X11)", http.StatusOK, ""},
		{"json post", "POST", "/api/views", `{"name":"x"}`, "application/json", "Mozilla/5.0 (X11)", http.StatusOK, ""},
		{"json with charset", "POST", "/api/views", `{}`, "application/json; charset=utf-8", "Mozilla/5.0 (X11)", http.StatusOK, ""},
		{"form post to api", "POST", "/api/views", "a=b", "application/x-www-form-urlencoded", "Mozilla/5.0 (X11)", http.StatusBadRequest, "Content-Type must be application/json"},
		{"form post outside api", "POST", "/ingest/basic", "a=b", "text/plain", "Mozilla/5.0 (X11)", http.StatusOK, ""},
		{"too large", "POST", "/api/views", `{"name":"` + strings.Repeat("x", 80) + `"}`, "application/json", "Mozilla/5.0 (X11)", http.StatusRequestEntityTooLarge, "Request entity too large"},
		{"scanner", "GET", "/api/stats", "", "", "sqlmap/1.7.2#stable", http.StatusForbidden, "Forbidden"},
		{"scanner mixed case", "GET", "/", "", "", "Mozilla/5.0 Nikto/2.5", http.StatusForbidden, "Forbidden"},
		{"short agent", "GET", "/api/stats", "", "", "curl", http.StatusBadRequest, "Invalid user agent"},
		{"missing agent", "GET", "/api/stats", "", "", "", http.StatusBadRequest, "Invalid user agent"},
		{"short agent preflight", "OPTIONS", "/api/stats", "", "", "x", http.StatusOK, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}
			req.Header.Set("User-Agent", tt.userAgent)
			w := httptest.NewRecorder()

			handler.ServeHTTP(w, req)

			require.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			if tt.wantError != "" {
				var body map[string]string
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
				assert.Equal(t, tt.wantError, body["error"])
			}
		})
	}
}

func TestAllowedOrigins(t *testing.T) {
	cfg := cliparse.Defaults()
	cfg.Server.FrontendURL = "http://localhost:5173"
	cfg.Security.CORSOrigins = []string{" https://staging.example.org ", "", "http://localhost:3000"}

	got := AllowedOrigins(cfg)
	assert.Equal(t, []string{
		"http://localhost:5173",
		"http://localhost:3000",
		"http://127.0.0.1:5173",
		"https://beaconhilltracker.org",
		"https://www.beaconhilltracker.org",
		"https://staging.example.org",
	}, got)
}

func TestCORS(t *testing.T) {
	cfg := cliparse.Defaults()
	handler := CORS(cfg)(okHandler)

	t.Run("preflight", func(t *testing.T) {
		req := httptest.NewRequest("OPTIONS", "/ingest/basic", nil)
		req.Header.Set("Origin", "https://beaconhilltracker.org")
		req.Header.Set("Access-Control-Request-Method", "POST")
		req.Header.Set("Access-Control-Request-Headers", "X-Ingest-Signature, Content-Type")
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, w.Body.String(), "preflight must not reach the handler")
		assert.Equal(t, "https://beaconhilltracker.org", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
		assert.Equal(t, "86400", w.Header().Get("Access-Control-Max-Age"))
		assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "X-Ingest-Signature")
	})

	t.Run("allowed origin", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/stats", nil)
		req.Header.Set("Origin", "http://localhost:5173")
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, req)

		assert.Equal(t, "handled", w.Body.String())
		assert.Equal(t, "http://localhost:5173", w.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("unknown origin", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/stats", nil)
		req.Header.Set("Origin", "https://evil.example.com")
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, req)

		assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
	})
}

func TestRateLimit(t *testing.T) {
	limit := RateLimit(cliparse.Rate{Limit: 2, Window: time.Minute}, ScopeAuth, RateLimitExempt...)
	handler := limit(okHandler)
	before := promtest.ToFloat64(metrics.RateLimitRejections.WithLabelValues(ScopeAuth))

	do := func(path, ip string) *httptest.ResponseRecorder {
		req := httptest.NewRequest("POST", path, nil)
		req.RemoteAddr = ip + ":4000"
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusOK, do("/api/auth/login", "198.51.100.7").Code)
	assert.Equal(t, http.StatusOK, do("/api/auth/login", "198.51.100.7").Code)

	w := do("/api/auth/login", "198.51.100.7")
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	var body rateLimitBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "Rate limit exceeded", body.Error)
	assert.Equal(t, "2 per 1 minute", body.Message)
	assert.Equal(t, before+1, promtest.ToFloat64(metrics.RateLimitRejections.WithLabelValues(ScopeAuth)))

	// other clients have their own budget
	assert.Equal(t, http.StatusOK, do("/api/auth/login", "198.51.100.8").Code)

	for range 5 {
		assert.Equal(t, http.StatusOK, do("/health", "198.51.100.7").Code)
	}
}

func TestRateLimit_IgnoresForwardedHeaders(t *testing.T) {
	handler := RateLimit(cliparse.Rate{Limit: 5, Window: time.Minute}, ScopeAuth)(okHandler)

	var rejected int
	for i := range 20 {
		req := httptest.NewRequest("POST", "/api/auth/login", nil)
		req.RemoteAddr = "203.0.113.7:4000"
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("10.0.0.%d", i))
		req.Header.Set("X-Real-IP", fmt.Sprintf("10.0.1.%d", i))
		req.Header.Set("True-Client-IP", fmt.Sprintf("10.0.2.%d", i))
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		if w.Code == http.StatusTooManyRequests {
			rejected++
		}
	}

	assert.Equal(t, 15, rejected)
}

func TestRateLimit_PerPath(t *testing.T) {
	handler := RateLimit(cliparse.Rate{Limit: 3, Window: time.Minute}, ScopeDefault)(okHandler)

	do := func(path string) int {
		req := httptest.NewRequest("GET", path, nil)
		req.RemoteAddr = "198.51.100.20:4000"
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w.Code
	}

	paths := []string{"/api/stats", "/api/committees", "/api/changelog", "/api/auth/me"}
	for _, p := range paths {
		assert.Equal(t, http.StatusOK, do(p), p)
	}

	for range 2 {
		assert.Equal(t, http.StatusOK, do("/api/stats"))
	}
	assert.Equal(t, http.StatusTooManyRequests, do("/api/stats"))
	assert.Equal(t, http.StatusOK, do("/api/committees"))
}

func TestMetrics(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Metrics)
	r.Get("/api/committees/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	counter := metrics.HTTPRequestsTotal.WithLabelValues("GET", "/api/committees/{id}", "404")
	before := promtest.ToFloat64(counter)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/api/committees/J33", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, before+1, promtest.ToFloat64(counter))
}
