// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
)

// Postgres-only objects that speed up the newest-row-per-bill queries.
const (
	LatestIndex = "bc_latest_idx"
	LatestView  = "latest_bills_mv"
)

// ErrNotPostgres is returned by the optimizations on any other dialect.
var ErrNotPostgres = errors.New("optimization requires PostgreSQL")

// OptimizeStatus reports which optimizations are in place.
type OptimizeStatus struct {
	HasIndex    bool
	HasView     bool
	ViewRows    int64
	TableRows   int64
	LiveTuples  int64
	DeadTuples  int64
	LastVacuum  *string
	LastAnalyze *string
}

func requirePostgres(d *DB) error {
	if d.Dialect() != Postgres {
		return fmt.Errorf("%w (current: %s)", ErrNotPostgres, d.Dialect())
	}
	return nil
}

func exists(ctx context.Context, d *DB, query string, args ...any) (bool, error) {
	var ok bool
	err := d.QueryRowContext(ctx, query, args...).Scan(&ok)
	return ok, err
}

func indexExists(ctx context.Context, d *DB) (bool, error) {
	return exists(ctx, d, `
		SELECT EXISTS (
			SELECT 1 FROM pg_indexes WHERE tablename = 'bill_compliance' AND indexname = ?
		)
	`, LatestIndex)
}

func viewExists(ctx context.Context, d *DB) (bool, error) {
	return exists(ctx, d, `SELECT EXISTS (SELECT 1 FROM pg_matviews WHERE matviewname = ?)`, LatestView)
}

func countRows(ctx context.Context, d *DB, table string) (int64, error) {
	var n int64
	err := d.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+table).Scan(&n)
	return n, err
}

// CreateLatestIndex builds the partition index without locking the table.
// It reports false when the index already existed.
func CreateLatestIndex(ctx context.Context, d *DB) (bool, error) {
	if err := requirePostgres(d); err != nil {
		return false, err
	}
	ok, err := indexExists(ctx, d)
	if err != nil {
		return false, fmt.Errorf("failed to check index: %w", err)
	}
	if ok {
		return false, nil
	}

	// CONCURRENTLY rules out IF NOT EXISTS and transactions
	if _, err := d.ExecContext(ctx, `
		CREATE INDEX CONCURRENTLY `+LatestIndex+`
		ON bill_compliance (bill_id, committee_id, generated_at DESC NULLS LAST)
	`); err != nil {
		return false, fmt.Errorf("failed to create %s: %w", LatestIndex, err)
	}
	return true, nil
}

// CreateLatestView (re)creates the materialized view holding the newest
// row of every (bill, committee) and returns its row count.
func CreateLatestView(ctx context.Context, d *DB) (int64, error) {
	if err := requirePostgres(d); err != nil {
		return 0, err
	}

	err := d.WithTx(ctx, func(tx *Tx) error {
		stmts := []string{
			`DROP MATERIALIZED VIEW IF EXISTS ` + LatestView + ` CASCADE`,
			`CREATE MATERIALIZED VIEW ` + LatestView + ` AS
			SELECT DISTINCT ON (bill_id, committee_id)
				bc.id, bc.committee_id, bc.bill_id, bc.hearing_date, bc.deadline_60,
				bc.effective_deadline, bc.extension_order_url, bc.extension_date,
				bc.reported_out, bc.summary_present, bc.summary_url, bc.votes_present,
				bc.votes_url, bc.state, bc.reason, bc.notice_status, bc.notice_gap_days,
				bc.announcement_date, bc.scheduled_hearing_date, bc.generated_at
			FROM bill_compliance bc
			ORDER BY bill_id, committee_id, generated_at DESC NULLS LAST`,
			// unique index is required by REFRESH ... CONCURRENTLY
			`CREATE UNIQUE INDEX latest_bills_mv_uq ON ` + LatestView + ` (bill_id, committee_id)`,
			`CREATE INDEX latest_bills_mv_committee_idx ON ` + LatestView + ` (committee_id)`,
		}
		for _, stmt := range stmts {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to create %s: %w", LatestView, err)
	}
	return countRows(ctx, d, LatestView)
}

// RefreshLatestView refreshes the view concurrently, falling back to a
// locking refresh if that fails.
func RefreshLatestView(ctx context.Context, d *DB) (int64, error) {
	if err := requirePostgres(d); err != nil {
		return 0, err
	}
	ok, err := viewExists(ctx, d)
	if err != nil {
		return 0, fmt.Errorf("failed to check view: %w", err)
	}
	if !ok {
		return 0, fmt.Errorf("%s does not exist, create it first: %w", LatestView, ErrNotFound)
	}

	if _, err := d.ExecContext(ctx, `REFRESH MATERIALIZED VIEW CONCURRENTLY `+LatestView); err != nil {
		slog.WarnContext(ctx, "concurrent refresh failed, retrying with lock", "error", err)
		if _, err := d.ExecContext(ctx, `REFRESH MATERIALIZED VIEW `+LatestView); err != nil {
			return 0, fmt.Errorf("failed to refresh %s: %w", LatestView, err)
		}
	}
	return countRows(ctx, d, LatestView)
}

// VacuumAnalyze vacuums bill_compliance and analyzes the view if present.
func VacuumAnalyze(ctx context.Context, d *DB) error {
	if err := requirePostgres(d); err != nil {
		return err
	}
	if _, err := d.ExecContext(ctx, `VACUUM ANALYZE bill_compliance`); err != nil {
		return fmt.Errorf("failed to vacuum bill_compliance: %w", err)
	}
	ok, err := viewExists(ctx, d)
	if err != nil {
		return fmt.Errorf("failed to check view: %w", err)
	}
	if ok {
		if _, err := d.ExecContext(ctx, `ANALYZE `+LatestView); err != nil {
			return fmt.Errorf("failed to analyze %s: %w", LatestView, err)
		}
	}
	return nil
}

// Optimization reads the current optimization state.
func Optimization(ctx context.Context, d *DB) (OptimizeStatus, error) {
	var s OptimizeStatus
	if err := requirePostgres(d); err != nil {
		return s, err
	}

	var err error
	if s.HasIndex, err = indexExists(ctx, d); err != nil {
		return s, fmt.Errorf("failed to check index: %w", err)
	}
	if s.HasView, err = viewExists(ctx, d); err != nil {
		return s, fmt.Errorf("failed to check view: %w", err)
	}
	if s.TableRows, err = countRows(ctx, d, "bill_compliance"); err != nil {
		return s, fmt.Errorf("failed to count bill_compliance: %w", err)
	}
	if s.HasView {
		if s.ViewRows, err = countRows(ctx, d, LatestView); err != nil {
			return s, fmt.Errorf("failed to count %s: %w", LatestView, err)
		}
	}

	var vacuum, analyze sql.NullString
	err = d.QueryRowContext(ctx, `
		SELECT n_live_tup, n_dead_tup,
			COALESCE(last_vacuum, last_autovacuum)::text,
			COALESCE(last_analyze, last_autoanalyze)::text
		FROM pg_stat_user_tables
		WHERE relname = 'bill_compliance'
	`).Scan(&s.LiveTuples, &s.DeadTuples, &vacuum, &analyze)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return s, fmt.Errorf("failed to read table statistics: %w", err)
	}
	if vacuum.Valid {
		s.LastVacuum = &vacuum.String
	}
	if analyze.Valid {
		s.LastAnalyze = &analyze.String
	}
	return s, nil
}
