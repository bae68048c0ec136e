// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package middleware provides the HTTP middleware chain and JSON helpers.

Every middleware has the chi signature func(http.Handler) http.Handler:

	r.Use(middleware.RequestID)
	r.Use(middleware.Recover)
	r.Use(middleware.WithLogging)
	r.Use(middleware.Metrics)
	r.Use(middleware.SecurityHeaders(cfg.Security.ForceHTTPS))
	r.Use(middleware.CORS(cfg))
	r.Use(middleware.ValidateRequest(cfg.Security.MaxBodyBytes))
	r.Use(middleware.RateLimit(rate, middleware.ScopeDefault, middleware.RateLimitExempt...))

# Authentication

Authenticator carries the database, the JWT manager and the casbin
enforcer:

	a := middleware.NewAuthenticator(d, jwt, enforcer, cfg.Auth.IngestWindow)
	r.With(a.Authenticate).Get("/api/auth/me", h.Me)
	r.With(a.Authenticate, a.RequirePermission(authz.ResourceKeys, authz.ActionWrite)).Post("/api/keys", h.Create)
	r.With(a.RequireIngestSignature).Post("/ingest/basic", h.Basic)

Authenticate reloads the user on every request, so deactivation and role
changes take effect before the token expires.

# Error Shapes

Three bodies are in use:

	ErrorResponse   {"error": "Unauthorized", "message": "Authentication required"}
	ErrorMessage    {"error": "Committee not found"}
	StatusError     {"status": "error", "message": "Authentication failed: Invalid signature"}

The first is for framework-level failures (404, 405, 500, missing token),
the second for handler errors and the third for ingest endpoints.
*/
package middleware
