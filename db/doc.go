// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package db opens the tracker database and creates its schema.

# Dialects

Open picks the driver from the URL:

	postgres://... or postgresql://...  → lib/pq
	sqlite:///relative.db               → modernc.org/sqlite (pure Go)
	sqlite:////absolute/path.db

Queries are written once with ? placeholders. DB and Tx rebind them to
$1, $2, ... when talking to Postgres.

# Schema Creation

CreateSchema initializes all required tables:

	if err := db.CreateSchema(ctx, conn); err != nil {
		log.Fatal(err)
	}

Safe to call multiple times - uses IF NOT EXISTS for all tables and indexes.

# Tables

  - committees: Committee metadata and contact details
  - bills: Bill titles and URLs
  - bill_compliance: One row per bill per committee per scan
  - compliance_scan_metadata: Diff reports and analysis per scan
  - changelog_versions, changelog_entries: Release notes pushed by the scanner
  - users, email_tokens: Accounts and verification/reset tokens
  - saved_views: Per-user dashboard filter presets
  - signing_keys: HMAC keys for the ingest endpoints
  - stats_cache: Persisted dashboard statistics

# Relationships

	committees 1──* bill_compliance *──1 bills
	committees 1──* compliance_scan_metadata
	changelog_versions 1──* changelog_entries
	users 1──* email_tokens
	users 1──* saved_views
	users 1──* signing_keys

All foreign keys use ON DELETE CASCADE.

# Timestamps

Every timestamp is TEXT in TimeFormat (microsecond UTC ISO-8601 with a Z
suffix), so ORDER BY and MAX() behave identically in both dialects.
*/
package db
