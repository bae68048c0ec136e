// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package main provides the entry point for the Beacon Hill Compliance Tracker.

The tracker stores what a scanner reports about Massachusetts legislative
committees and their bills (hearing notice, reported-out, summaries and
votes) and serves dashboard statistics, saved views and account
management over a JSON API.

# Starting the Server

	DATABASE_URL=sqlite:///compliance_tracker.db JWT_SECRET_KEY=... go run .

Or with flags:

	go run . -d postgres://tracker@localhost/tracker serve

# Configuration

Settings come from built-in defaults, an optional tracker.yaml, .env, the
environment and flags, in increasing precedence. Common variables:

  - DATABASE_URL (-d): sqlite:///path or postgres:// URL
  - JWT_SECRET_KEY: Access token signing secret (required outside development)
  - FRONTEND_URL: Base URL for verification and reset links
  - ADMIN_EMAIL, ADMIN_PASSWORD: Admin account seeded at startup
  - MAIL_SERVER, MAIL_USERNAME, MAIL_PASSWORD: SMTP delivery

# Architecture

  - cmd: Cobra commands (serve and maintenance tools)
  - router: chi route table and middleware chain
  - handlers: HTTP request handlers (dashboard, ingest, auth, views, keys, contact)
  - middleware: Logging, security headers, CORS, rate limits, authentication
  - compliance: Ingest, statistics, diff reports, cleanup and comparison
  - auth, authz: Passwords, tokens, signing keys and role permissions
  - cache, email, metrics, logging, validation: Supporting services
  - db: Connection, dialect helpers, schema and PostgreSQL optimizations
  - cliparse: Configuration loading

See package documentation for each component.
*/
package main
