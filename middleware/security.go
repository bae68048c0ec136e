// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package middleware

import (
	"mime"
	"net/http"
	"strings"
)

const contentSecurityPolicy = "default-src 'self'; " +
	"script-src 'self' 'unsafe-inline' 'unsafe-eval' https://cdn.plot.ly; " +
	"style-src 'self' 'unsafe-inline' https://fonts.googleapis.com; " +
	"font-src 'self' https://fonts.gstatic.com; " +
	"img-src 'self' data: https:; " +
	"connect-src 'self' https://api.github.com; " +
	"frame-ancestors 'none'; " +
	"base-uri 'self'; " +
	"form-action 'self'"

const permissionsPolicy = "geolocation=(), microphone=(), camera=(), payment=(), " +
	"usb=(), magnetometer=(), gyroscope=(), speaker=()"

// SecurityHeaders sets the browser hardening headers on every response.
// HSTS is sent for TLS requests, or always when forceHTTPS is set.
func SecurityHeaders(forceHTTPS bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("Content-Security-Policy", contentSecurityPolicy)
			h.Set("X-Frame-Options", "DENY")
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-XSS-Protection", "1; mode=block")
			h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
			h.Set("Permissions-Policy", permissionsPolicy)
			if r.TLS != nil || forceHTTPS {
				h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains; preload")
			}
			if strings.HasPrefix(r.URL.Path, "/api/") || strings.HasPrefix(r.URL.Path, "/auth/") {
				h.Set("Cache-Control", "no-cache, no-store, must-revalidate")
				h.Set("Pragma", "no-cache")
				h.Set("Expires", "0")
			}
			next.ServeHTTP(w, r)
		})
	}
}

var suspiciousAgents = []string{"sqlmap", "nmap", "nikto", "masscan", "zap"}

// ValidateRequest rejects oversized bodies, non-JSON writes to /api/ and
// obvious scanners. Bodies are capped at maxBody bytes even when the
// client sends no Content-Length.
func ValidateRequest(maxBody int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if maxBody > 0 {
				if r.ContentLength > maxBody {
					ErrorMessage(w, http.StatusRequestEntityTooLarge, "Request entity too large")
					return
				}
				r.Body = http.MaxBytesReader(w, r.Body, maxBody)
			}

			switch r.Method {
			case http.MethodPost, http.MethodPut, http.MethodPatch:
				if strings.HasPrefix(r.URL.Path, "/api/") && !isJSON(r.Header.Get("Content-Type")) {
					ErrorMessage(w, http.StatusBadRequest, "Content-Type must be application/json")
					return
				}
			}

			ua := strings.ToLower(r.UserAgent())
			for _, agent := range suspiciousAgents {
				if strings.Contains(ua, agent) {
					ErrorMessage(w, http.StatusForbidden, "Forbidden")
					return
				}
			}
			if len(ua) < 10 && r.Method != http.MethodOptions {
				ErrorMessage(w, http.StatusBadRequest, "Invalid user agent")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func isJSON(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mt == "application/json" || strings.HasSuffix(mt, "+json")
}
