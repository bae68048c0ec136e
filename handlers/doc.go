// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package handlers contains HTTP request handlers for the Beacon Hill
Compliance Tracker API.

# Handler Types

Each handler is a struct holding its dependencies:

  - DashboardHandler: public statistics, committees, bills, scan metadata, changelog
  - IngestHandler: signed scanner submissions (cache, basic reports, changelog)
  - AuthHandler: registration, email verification, login, roles, password reset
  - ViewHandler: per-user saved dashboard views
  - KeyHandler: ingest signing keys, including the admin listing
  - ContactHandler: the public contact form
  - SystemHandler: health and database diagnostics

Handlers are created via constructor functions:

	dashboard := handlers.NewDashboardHandler(db, statsCache)
	accounts := handlers.NewAuthHandler(db, cfg, jwtManager, notifier)

# Authentication

Handlers never parse credentials themselves. Routes that need a user are
wrapped in middleware.Authenticator.Authenticate (and RequirePermission
where a role is needed), and the handler reads the user back with
middleware.UserFromContext. Ingest routes are wrapped in
RequireIngestSignature, which leaves the signing key in the context.

# Response Shapes

Account, view and key endpoints answer errors as {"error": "..."}. Ingest
endpoints use the scanner envelope:

	{"status": "success", "message": "...", "imported_count": 12}
	{"status": "error", "message": "committee_id is required"}

# Email Tokens

Registration and password reset mail a single-use token. Verification
links point at {frontend}/verify-email?token=..., reset links at
{frontend}/reset-password?token=.... An expired token is deleted when it is
presented.
*/
package handlers
