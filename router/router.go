// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package router

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/beaconhill/compliance-tracker/auth"
	"github.com/beaconhill/compliance-tracker/authz"
	"github.com/beaconhill/compliance-tracker/cache"
	"github.com/beaconhill/compliance-tracker/cliparse"
	"github.com/beaconhill/compliance-tracker/db"
	"github.com/beaconhill/compliance-tracker/email"
	"github.com/beaconhill/compliance-tracker/handlers"
	"github.com/beaconhill/compliance-tracker/middleware"
)

func NewRouter(d *db.DB, cfg cliparse.Config, mailer email.Mailer) (http.Handler, error) {
	defaultRate, err := cliparse.ParseRate(cfg.Security.RateLimitDefault)
	if err != nil {
		return nil, fmt.Errorf("default rate limit: %w", err)
	}
	authRate, err := cliparse.ParseRate(cfg.Security.RateLimitAuth)
	if err != nil {
		return nil, fmt.Errorf("auth rate limit: %w", err)
	}

	jwt, err := auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	if err != nil {
		return nil, err
	}
	enforcer, err := authz.NewEnforcer()
	if err != nil {
		return nil, err
	}
	notifier, err := email.NewNotifier(mailer, email.NotifierConfig{
		ContactEmail:    cfg.Server.ContactEmail,
		VerificationTTL: cfg.Auth.VerificationTTL,
		ResetTTL:        cfg.Auth.ResetTTL,
	})
	if err != nil {
		return nil, err
	}
	stats := cache.New(d, cfg.Cache.StatsTTL)
	guard := middleware.NewAuthenticator(d, jwt, enforcer, cfg.Auth.IngestWindow)

	// Initialize handlers
	systemHandler := handlers.NewSystemHandler(d, cfg)
	dashboardHandler := handlers.NewDashboardHandler(d, stats)
	ingestHandler := handlers.NewIngestHandler(d, stats)
	authHandler := handlers.NewAuthHandler(d, cfg, jwt, notifier)
	viewHandler := handlers.NewViewHandler(d)
	keyHandler := handlers.NewKeyHandler(d, notifier)
	contactHandler := handlers.NewContactHandler(notifier)

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recover)
	r.Use(middleware.WithLogging)
	r.Use(middleware.Metrics)
	r.Use(middleware.SecurityHeaders(cfg.Security.ForceHTTPS))
	r.Use(middleware.CORS(cfg))
	r.Use(middleware.ValidateRequest(cfg.Security.MaxBodyBytes))
	r.Use(middleware.RateLimit(defaultRate, middleware.ScopeDefault, middleware.RateLimitExempt...))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		middleware.ErrorResponse(w, http.StatusNotFound, "The requested resource was not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		middleware.ErrorResponse(w, http.StatusMethodNotAllowed, "The method is not allowed for the requested URL")
	})

	authLimit := middleware.RateLimit(authRate, middleware.ScopeAuth)
	can := guard.RequirePermission

	// Operational
	r.Get("/health", systemHandler.Health)
	r.Get("/debug/db-info", systemHandler.DBInfo)
	r.Handle("/metrics", promhttp.Handler())

	// Dashboard (public)
	r.Get("/api/stats", dashboardHandler.GetStats)
	r.Get("/api/committees", dashboardHandler.ListCommittees)
	r.Get("/api/committees/stats", dashboardHandler.CommitteeStats)
	r.Get("/api/committees/{id}", dashboardHandler.GetCommittee)
	r.Get("/api/bills", dashboardHandler.ListBills)
	r.Get("/api/compliance/metadata", dashboardHandler.GlobalMetadata)
	r.Get("/api/compliance/{id}/metadata", dashboardHandler.CommitteeMetadata)
	r.Get("/api/changelog", dashboardHandler.Changelog)

	// Scanner ingest (HMAC signed)
	r.Route("/ingest", func(r chi.Router) {
		r.Use(guard.RequireIngestSignature)
		r.Post("/cache", ingestHandler.Cache)
		r.Post("/basic", ingestHandler.Basic)
		r.Post("/changelog", ingestHandler.Changelog)
	})

	r.Route("/api/auth", func(r chi.Router) {
		r.With(authLimit).Post("/register", authHandler.Register)
		r.With(authLimit).Post("/login", authHandler.Login)
		r.With(authLimit).Post("/forgot-password", authHandler.ForgotPassword)
		r.With(authLimit).Post("/reset-password", authHandler.ResetPassword)
		r.Get("/verify/{token}", authHandler.Verify)
		r.Post("/verify/{token}", authHandler.Verify)

		r.Group(func(r chi.Router) {
			r.Use(guard.Authenticate)
			r.With(can(authz.ResourceProfile, authz.ActionRead)).Get("/me", authHandler.Me)
			r.With(can(authz.ResourceUsers, authz.ActionWrite)).Patch("/role", authHandler.UpdateRole)
			r.With(can(authz.ResourceUsers, authz.ActionRead)).Get("/users", authHandler.ListUsers)
		})
	})

	r.Route("/api/views", func(r chi.Router) {
		r.Use(guard.Authenticate)

		r.Group(func(r chi.Router) {
			r.Use(can(authz.ResourceViews, authz.ActionRead))
			r.Get("/", viewHandler.List)
			r.Get("/search", viewHandler.Search)
			r.Get("/{id}", viewHandler.Get)
		})
		r.Group(func(r chi.Router) {
			r.Use(can(authz.ResourceViews, authz.ActionWrite))
			r.Post("/", viewHandler.Create)
			r.Put("/{id}", viewHandler.Update)
			r.Delete("/{id}", viewHandler.Delete)
			r.Post("/duplicate/{id}", viewHandler.Duplicate)
		})
	})

	r.Route("/api/keys", func(r chi.Router) {
		// checks a key pair without a session
		r.Post("/verify", keyHandler.Verify)

		r.Group(func(r chi.Router) {
			r.Use(guard.Authenticate)

			r.With(can(authz.ResourceKeys, authz.ActionWrite)).Post("/", keyHandler.Create)
			r.With(can(authz.ResourceKeys, authz.ActionRead)).Get("/", keyHandler.List)
			r.With(can(authz.ResourceKeys, authz.ActionRead)).Get("/{id}", keyHandler.Get)
			r.With(can(authz.ResourceKeys, authz.ActionWrite)).Patch("/revoke/{id}", keyHandler.Revoke)
			r.With(can(authz.ResourceKeys, authz.ActionWrite)).Patch("/{id}/revoke", keyHandler.Revoke)

			r.With(can(authz.ResourceKeysAdmin, authz.ActionRead)).Get("/admin/all", keyHandler.AdminList)
			r.With(can(authz.ResourceKeysAdmin, authz.ActionWrite)).Patch("/admin/revoke/{id}", keyHandler.AdminRevoke)
		})
	})

	r.Post("/api/contact/send", contactHandler.Send)

	return r, nil
}
