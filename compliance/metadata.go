// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package compliance

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/goccy/go-json"

	"github.com/beaconhill/compliance-tracker/db"
	"github.com/beaconhill/compliance-tracker/models"
)

// CommitteeMetadata returns the most recent scan metadata for a committee.
// All fields are nil when the committee has none. A diff_report that does
// not decode is reported as nil rather than an error.
func CommitteeMetadata(ctx context.Context, q db.Querier, committeeID string) (models.ScanMetadata, error) {
	var (
		raw []byte
		md  models.ScanMetadata
	)
	err := q.QueryRowContext(ctx, `
		SELECT diff_report, analysis, scan_date
		FROM compliance_scan_metadata
		WHERE committee_id = ?
		ORDER BY scan_date DESC
		LIMIT 1
	`, committeeID).Scan(&raw, &md.Analysis, &md.ScanDate)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ScanMetadata{}, nil
	}
	if err != nil {
		return models.ScanMetadata{}, fmt.Errorf("failed to query scan metadata: %w", err)
	}

	if len(raw) > 0 {
		var doc any
		if err := json.Unmarshal(raw, &doc); err != nil {
			slog.Warn("unparsable diff_report", "committee_id", committeeID, "error", err)
		} else {
			md.DiffReport = doc
		}
	}
	return md, nil
}

// GlobalMetadata aggregates the newest usable diff report of every
// committee. For enveloped reports interval picks daily, weekly or monthly.
// When no committee has ever stored a report, every field is nil.
func GlobalMetadata(ctx context.Context, q db.Querier, interval string) (models.ScanMetadata, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT committee_id, diff_report, scan_date
		FROM compliance_scan_metadata
		WHERE diff_report IS NOT NULL
		ORDER BY committee_id, scan_date DESC
	`)
	if err != nil {
		return models.ScanMetadata{}, fmt.Errorf("failed to query scan metadata: %w", err)
	}
	defer rows.Close()

	var (
		found   bool
		reports []*DiffReport
		latest  string
		done    = make(map[string]bool)
	)
	for rows.Next() {
		var (
			committeeID, scanDate string
			raw                   []byte
		)
		if err := rows.Scan(&committeeID, &raw, &scanDate); err != nil {
			return models.ScanMetadata{}, fmt.Errorf("failed to scan metadata row: %w", err)
		}
		found = true
		if done[committeeID] {
			continue
		}
		// older rows of the same committee get a chance when the newest
		// one is empty or corrupt
		r, err := SelectReport(raw, interval)
		if err != nil || r == nil {
			continue
		}
		done[committeeID] = true
		reports = append(reports, r)
		if scanDate > latest {
			latest = scanDate
		}
	}
	if err := rows.Err(); err != nil {
		return models.ScanMetadata{}, fmt.Errorf("failed to read scan metadata: %w", err)
	}

	if !found {
		return models.ScanMetadata{}, nil
	}
	md := models.ScanMetadata{DiffReport: Aggregate(reports)}
	if latest != "" {
		md.ScanDate = &latest
	}
	return md, nil
}

// InsertMetadata stores one scan's diff report and analysis. A nil report
// is stored as NULL.
func InsertMetadata(ctx context.Context, q db.Querier, committeeID, scanDate string, diffReport any, analysis *string) error {
	var report any
	if diffReport != nil {
		b, err := json.Marshal(diffReport)
		if err != nil {
			return fmt.Errorf("failed to encode diff report: %w", err)
		}
		report = string(b)
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO compliance_scan_metadata (committee_id, scan_date, diff_report, analysis)
		VALUES (?, ?, ?, ?)
	`, committeeID, scanDate, report, analysis)
	if err != nil {
		return fmt.Errorf("failed to insert scan metadata: %w", err)
	}
	return nil
}
