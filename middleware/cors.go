// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package middleware

import (
	"net/http"
	"slices"
	"strings"

	"github.com/go-chi/cors"

	"github.com/beaconhill/compliance-tracker/auth"
	"github.com/beaconhill/compliance-tracker/cliparse"
)

// AllowedOrigins lists the frontend URL, the local dev servers, the
// production site and any extra configured origins, without duplicates.
func AllowedOrigins(cfg cliparse.Config) []string {
	origins := []string{
		cfg.Server.FrontendURL,
		"http://localhost:3000",
		"http://localhost:5173",
		"http://127.0.0.1:5173",
		"https://beaconhilltracker.org",
		"https://www.beaconhilltracker.org",
	}
	for _, o := range cfg.Security.CORSOrigins {
		o = strings.TrimSpace(o)
		if o != "" {
			origins = append(origins, o)
		}
	}
	out := origins[:0]
	for _, o := range origins {
		if o != "" && !slices.Contains(out, o) {
			out = append(out, o)
		}
	}
	return out
}

// CORS allows the dashboard origins to call the API with credentials.
func CORS(cfg cliparse.Config) func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins: AllowedOrigins(cfg),
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{
			"Content-Type",
			"Authorization",
			"Accept",
			"Origin",
			"X-Requested-With",
			"X-CSRF-Token",
			auth.HeaderKeyID,
			auth.HeaderTimestamp,
			auth.HeaderSignature,
		},
		ExposedHeaders:   []string{RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           86400,
	})
}
