// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package compliance

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/beaconhill/compliance-tracker/db"
	"github.com/beaconhill/compliance-tracker/models"
)

// LatestBillsCTE ranks every compliance row within its (bill, committee)
// pair, newest first. Rows with rn = 1 are the current state.
const LatestBillsCTE = `
	WITH latest_bills AS (
		SELECT bc.*,
		       ROW_NUMBER() OVER (PARTITION BY bc.bill_id, bc.committee_id ORDER BY bc.generated_at DESC) AS rn
		FROM bill_compliance bc
	)`

// stateCounts is the SELECT list shared by the global and per-committee
// queries. incomplete is counted separately and merged in Go.
const stateCounts = `
		COUNT(CASE WHEN lb.rn = 1 THEN 1 END),
		COALESCE(SUM(CASE WHEN lb.rn = 1 AND LOWER(lb.state) = 'compliant' THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN lb.rn = 1 AND LOWER(lb.state) = 'incomplete' THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN lb.rn = 1 AND LOWER(lb.state) = 'non-compliant' THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN lb.rn = 1 AND LOWER(lb.state) = 'unknown' THEN 1 ELSE 0 END), 0),
		MAX(lb.generated_at)`

// NormalizeState lowercases s and folds incomplete into non-compliant,
// which is how the dashboard presents it.
func NormalizeState(s string) string {
	s = strings.ToLower(s)
	if s == models.StateIncomplete {
		return models.StateNonCompliant
	}
	return s
}

// Round rounds x to the given number of decimal places.
func Round(x float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(x*p) / p
}

type counts struct {
	total, compliant, incomplete, nonCompliant, unknown int
}

// rate is compliant over bills whose state is known, as a percentage.
func (c counts) rate() float64 {
	known := c.total - c.unknown
	if known <= 0 {
		return 0
	}
	return Round(100*float64(c.compliant)/float64(known), 2)
}

// GlobalStats summarises the latest state of every (bill, committee) pair.
func GlobalStats(ctx context.Context, q db.Querier) (models.GlobalStats, error) {
	var (
		c          counts
		committees int
		latest     *string
	)
	err := q.QueryRowContext(ctx, LatestBillsCTE+`
	SELECT COUNT(DISTINCT lb.committee_id),`+stateCounts+`
	FROM latest_bills lb
	`).Scan(&committees, &c.total, &c.compliant, &c.incomplete, &c.nonCompliant, &c.unknown, &latest)
	if err != nil {
		return models.GlobalStats{}, fmt.Errorf("failed to query global stats: %w", err)
	}

	return models.GlobalStats{
		TotalCommittees:       committees,
		TotalBills:            c.total,
		CompliantBills:        c.compliant,
		IncompleteBills:       0,
		NonCompliantBills:     c.nonCompliant + c.incomplete,
		UnknownBills:          c.unknown,
		OverallComplianceRate: c.rate(),
		LatestReportDate:      latest,
	}, nil
}

// CommitteeStats returns per-committee counts for every committee, including
// committees with no compliance rows. Highest rate first, then by name.
func CommitteeStats(ctx context.Context, q db.Querier) ([]models.CommitteeStats, error) {
	rows, err := q.QueryContext(ctx, LatestBillsCTE+`
	SELECT c.committee_id, c.name, c.chamber,`+stateCounts+`
	FROM committees c
	LEFT JOIN latest_bills lb ON c.committee_id = lb.committee_id
	GROUP BY c.committee_id, c.name, c.chamber
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query committee stats: %w", err)
	}
	defer rows.Close()

	stats := []models.CommitteeStats{}
	for rows.Next() {
		var (
			s models.CommitteeStats
			c counts
		)
		if err := rows.Scan(&s.CommitteeID, &s.CommitteeName, &s.Chamber,
			&c.total, &c.compliant, &c.incomplete, &c.nonCompliant, &c.unknown,
			&s.LastReportGenerated); err != nil {
			return nil, fmt.Errorf("failed to scan committee stats: %w", err)
		}
		s.TotalBills = c.total
		s.CompliantCount = c.compliant
		s.NonCompliantCount = c.nonCompliant + c.incomplete
		s.UnknownCount = c.unknown
		s.ComplianceRate = c.rate()
		stats = append(stats, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read committee stats: %w", err)
	}

	slices.SortStableFunc(stats, func(a, b models.CommitteeStats) int {
		if a.ComplianceRate != b.ComplianceRate {
			return cmp.Compare(b.ComplianceRate, a.ComplianceRate)
		}
		return cmp.Compare(a.CommitteeName, b.CommitteeName)
	})
	return stats, nil
}

// SourceMarker fingerprints bill_compliance so a persisted stats row can be
// checked for staleness without recomputing it.
func SourceMarker(ctx context.Context, q db.Querier) (string, error) {
	var (
		n      int64
		latest *string
	)
	err := q.QueryRowContext(ctx, `
		SELECT COUNT(*), MAX(generated_at) FROM bill_compliance
	`).Scan(&n, &latest)
	if err != nil {
		return "", fmt.Errorf("failed to compute source marker: %w", err)
	}
	if latest == nil {
		return fmt.Sprintf("%d|", n), nil
	}
	return fmt.Sprintf("%d|%s", n, *latest), nil
}
