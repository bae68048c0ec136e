// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package db

import (
	"context"
	"fmt"
	"strings"
)

// CreateSchema creates all tables needed for the application.
// Safe to call multiple times - uses IF NOT EXISTS.
func CreateSchema(ctx context.Context, d *DB) error {
	for _, stmt := range SchemaStatements(d.Dialect()) {
		if _, err := d.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

// SchemaStatements returns the DDL for dialect, one statement per entry.
func SchemaStatements(dialect Dialect) []string {
	r := strings.NewReplacer(
		"{{SERIAL}}", serialType(dialect),
		"{{JSON}}", jsonType(dialect),
	)
	var out []string
	for _, stmt := range strings.Split(schema, ";") {
		if stmt = strings.TrimSpace(stmt); stmt != "" {
			out = append(out, r.Replace(stmt))
		}
	}
	return out
}

func serialType(dialect Dialect) string {
	if dialect == Postgres {
		return "SERIAL PRIMARY KEY"
	}
	return "INTEGER PRIMARY KEY AUTOINCREMENT"
}

func jsonType(dialect Dialect) string {
	if dialect == Postgres {
		return "JSONB"
	}
	return "TEXT"
}

// Tables lists every table in dependency order, children last.
var Tables = []string{
	"committees",
	"bills",
	"bill_compliance",
	"compliance_scan_metadata",
	"changelog_versions",
	"changelog_entries",
	"users",
	"email_tokens",
	"saved_views",
	"signing_keys",
	"stats_cache",
}

const schema = `
-- Committees
CREATE TABLE IF NOT EXISTS committees (
    committee_id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    chamber TEXT NOT NULL CHECK (chamber IN ('Joint', 'House', 'Senate')),
    url TEXT NOT NULL,
    house_room TEXT,
    house_address TEXT,
    house_phone TEXT,
    senate_room TEXT,
    senate_address TEXT,
    senate_phone TEXT,
    house_chair_name TEXT,
    house_chair_email TEXT,
    house_vice_chair_name TEXT,
    house_vice_chair_email TEXT,
    senate_chair_name TEXT,
    senate_chair_email TEXT,
    senate_vice_chair_name TEXT,
    senate_vice_chair_email TEXT,
    updated_at TEXT NOT NULL
);

-- Bills
CREATE TABLE IF NOT EXISTS bills (
    bill_id TEXT PRIMARY KEY,
    bill_title TEXT,
    bill_url TEXT,
    updated_at TEXT NOT NULL
);

-- Compliance observations (one row per bill per committee per scan)
CREATE TABLE IF NOT EXISTS bill_compliance (
    id {{SERIAL}},
    committee_id TEXT NOT NULL REFERENCES committees(committee_id) ON DELETE CASCADE,
    bill_id TEXT NOT NULL REFERENCES bills(bill_id) ON DELETE CASCADE,
    hearing_date TEXT,
    deadline_60 TEXT,
    effective_deadline TEXT,
    extension_order_url TEXT,
    extension_date TEXT,
    reported_out INTEGER NOT NULL DEFAULT 0,
    summary_present INTEGER NOT NULL DEFAULT 0,
    summary_url TEXT,
    votes_present INTEGER NOT NULL DEFAULT 0,
    votes_url TEXT,
    state TEXT NOT NULL,
    reason TEXT NOT NULL DEFAULT '',
    notice_status TEXT,
    notice_gap_days INTEGER,
    announcement_date TEXT,
    scheduled_hearing_date TEXT,
    generated_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_bill_compliance_committee ON bill_compliance(committee_id);
CREATE INDEX IF NOT EXISTS idx_bill_compliance_bill ON bill_compliance(bill_id);
CREATE INDEX IF NOT EXISTS idx_bill_compliance_generated ON bill_compliance(generated_at DESC);
CREATE INDEX IF NOT EXISTS idx_bill_compliance_latest ON bill_compliance(bill_id, committee_id, generated_at);

-- Scan metadata (diff reports and analysis text)
CREATE TABLE IF NOT EXISTS compliance_scan_metadata (
    id {{SERIAL}},
    committee_id TEXT NOT NULL REFERENCES committees(committee_id) ON DELETE CASCADE,
    scan_date TEXT NOT NULL,
    diff_report {{JSON}},
    analysis TEXT
);

CREATE INDEX IF NOT EXISTS idx_scan_metadata_committee ON compliance_scan_metadata(committee_id, scan_date);

-- Changelog
CREATE TABLE IF NOT EXISTS changelog_versions (
    id {{SERIAL}},
    version TEXT NOT NULL UNIQUE,
    date TEXT NOT NULL,
    user_agent TEXT,
    received_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_changelog_versions_received ON changelog_versions(received_at DESC);

CREATE TABLE IF NOT EXISTS changelog_entries (
    id {{SERIAL}},
    version_id INTEGER NOT NULL REFERENCES changelog_versions(id) ON DELETE CASCADE,
    category TEXT NOT NULL CHECK (category IN ('added', 'changed', 'fixed', 'removed', 'deprecated', 'security')),
    description TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_changelog_entries_version ON changelog_entries(version_id);

-- Users
CREATE TABLE IF NOT EXISTS users (
    id {{SERIAL}},
    email TEXT NOT NULL UNIQUE,
    pw_hash TEXT NOT NULL,
    role TEXT NOT NULL DEFAULT 'user' CHECK (role IN ('user', 'privileged', 'admin')),
    is_active INTEGER NOT NULL DEFAULT 0,
    created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS email_tokens (
    id {{SERIAL}},
    user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    token TEXT NOT NULL UNIQUE,
    purpose TEXT NOT NULL CHECK (purpose IN ('verification', 'password_reset')),
    expires_at TEXT NOT NULL,
    created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_email_tokens_user ON email_tokens(user_id, purpose);

-- Saved dashboard views
CREATE TABLE IF NOT EXISTS saved_views (
    id {{SERIAL}},
    user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    name TEXT NOT NULL,
    payload_json TEXT NOT NULL,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_saved_views_user_name ON saved_views(user_id, name);

-- Ingest signing keys
CREATE TABLE IF NOT EXISTS signing_keys (
    id {{SERIAL}},
    user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    key_id TEXT NOT NULL UNIQUE,
    secret TEXT NOT NULL,
    description TEXT,
    created_at TEXT NOT NULL,
    revoked_at TEXT
);

CREATE INDEX IF NOT EXISTS idx_signing_keys_user ON signing_keys(user_id);

-- Persisted stats (second cache tier)
CREATE TABLE IF NOT EXISTS stats_cache (
    cache_key TEXT PRIMARY KEY,
    payload TEXT NOT NULL,
    source_marker TEXT NOT NULL,
    computed_at TEXT NOT NULL
)
`
