// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package compliance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/beaconhill/compliance-tracker/db"
)

// MaxCleanupRows aborts a cleanup that would delete more rows than this.
const MaxCleanupRows = 1_000_000

// ErrCleanupThreshold is returned when a cleanup exceeds MaxCleanupRows.
var ErrCleanupThreshold = errors.New("cleanup exceeds safety threshold")

// TableStats describes duplication in one table.
type TableStats struct {
	Total  int
	Unique int
}

func (s TableStats) Duplicates() int { return s.Total - s.Unique }

// DatabaseStats is what `tracker cleanup --stats-only` prints.
type DatabaseStats struct {
	BillCompliance TableStats // unique per (committee, bill, day)
	ScanMetadata   TableStats // unique per (committee, day)
	Oldest         *string
	Newest         *string
}

// Stats reports row totals and duplicate counts for the two tables that
// cleanup prunes.
func Stats(ctx context.Context, q db.Querier) (DatabaseStats, error) {
	var s DatabaseStats
	err := q.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COUNT(DISTINCT committee_id || '|' || bill_id || '|' || SUBSTR(generated_at, 1, 10)),
		       MIN(generated_at),
		       MAX(generated_at)
		FROM bill_compliance
	`).Scan(&s.BillCompliance.Total, &s.BillCompliance.Unique, &s.Oldest, &s.Newest)
	if err != nil {
		return DatabaseStats{}, fmt.Errorf("failed to read bill_compliance stats: %w", err)
	}
	err = q.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COUNT(DISTINCT committee_id || '|' || SUBSTR(scan_date, 1, 10))
		FROM compliance_scan_metadata
	`).Scan(&s.ScanMetadata.Total, &s.ScanMetadata.Unique)
	if err != nil {
		return DatabaseStats{}, fmt.Errorf("failed to read scan metadata stats: %w", err)
	}
	return s, nil
}

// CleanupOptions controls a cleanup run.
// KeepDays > 0 limits the cleanup to rows older than that many days.
type CleanupOptions struct {
	DryRun   bool
	KeepDays int
	Now      time.Time
}

// CleanupResult counts rows per table. With DryRun the counts are what
// would have been deleted.
type CleanupResult struct {
	BillCompliance int64
	ScanMetadata   int64
}

func (r CleanupResult) Total() int64 { return r.BillCompliance + r.ScanMetadata }

// cleanupTarget is one table and the ranking that decides which row
// survives in each group.
type cleanupTarget struct {
	table     string
	column    string
	partition string
	order     string
}

var (
	// newest observation per (committee, bill)
	billComplianceTarget = cleanupTarget{
		table:     "bill_compliance",
		column:    "generated_at",
		partition: "committee_id, bill_id",
		order:     "generated_at DESC, id DESC",
	}
	// newest scan per committee per day
	scanMetadataTarget = cleanupTarget{
		table:     "compliance_scan_metadata",
		column:    "scan_date",
		partition: "committee_id, SUBSTR(scan_date, 1, 10)",
		order:     "scan_date DESC, id DESC",
	}
)

func (t cleanupTarget) ranked(filter string) string {
	return `SELECT id, ROW_NUMBER() OVER (PARTITION BY ` + t.partition + ` ORDER BY ` + t.order + `) AS rn
		FROM ` + t.table + ` WHERE 1=1` + filter
}

// Cleanup removes duplicate rows from bill_compliance and
// compliance_scan_metadata, each in its own transaction. A table that
// would lose more than MaxCleanupRows is left alone and the run stops.
func Cleanup(ctx context.Context, d *db.DB, opts CleanupOptions) (CleanupResult, error) {
	var res CleanupResult
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}

	var cutoff string
	if opts.KeepDays > 0 {
		cutoff = db.FormatTime(now.AddDate(0, 0, -opts.KeepDays))
	}

	var err error
	if res.BillCompliance, err = cleanTable(ctx, d, billComplianceTarget, cutoff, opts.DryRun); err != nil {
		return res, err
	}
	if res.ScanMetadata, err = cleanTable(ctx, d, scanMetadataTarget, cutoff, opts.DryRun); err != nil {
		return res, err
	}
	return res, nil
}

func cleanTable(ctx context.Context, d *db.DB, t cleanupTarget, cutoff string, dryRun bool) (int64, error) {
	var (
		filter string
		args   []any
	)
	if cutoff != "" {
		filter = " AND " + t.column + " < ?"
		args = append(args, cutoff)
	}

	var n int64
	err := d.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM (`+t.ranked(filter)+`) ranked WHERE rn > 1`, args...).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count %s duplicates: %w", t.table, err)
	}
	if n == 0 || dryRun {
		return n, nil
	}
	if n > MaxCleanupRows {
		return 0, fmt.Errorf("%w: %s would lose %d rows (limit %d)", ErrCleanupThreshold, t.table, n, MaxCleanupRows)
	}

	var deleted int64
	err = d.WithTx(ctx, func(tx *db.Tx) error {
		result, err := tx.ExecContext(ctx,
			`DELETE FROM `+t.table+` WHERE id IN (SELECT id FROM (`+t.ranked(filter)+`) ranked WHERE rn > 1)`, args...)
		if err != nil {
			return err
		}
		deleted, err = result.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to delete %s duplicates: %w", t.table, err)
	}
	if deleted != n {
		slog.Warn("cleanup deleted a different number of rows than counted",
			"table", t.table, "counted", n, "deleted", deleted)
	}
	return deleted, nil
}
