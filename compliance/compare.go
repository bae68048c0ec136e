// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package compliance

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/beaconhill/compliance-tracker/db"
	"github.com/beaconhill/compliance-tracker/models"
)

// DateLayout is the YYYY-MM-DD form the compare tool accepts.
const DateLayout = "2006-01-02"

// BillSnapshot is a bill's latest state within one committee as of a cutoff.
type BillSnapshot struct {
	BillID         string
	HearingDate    *string
	ReportedOut    bool
	SummaryPresent bool
	VotesPresent   bool
	State          string
	GeneratedAt    string
}

// BillsAt returns the latest row per bill for committeeID among rows
// generated at or before cutoff, ordered by bill_id.
func BillsAt(ctx context.Context, q db.Querier, committeeID, cutoff string) ([]BillSnapshot, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT bill_id, hearing_date, reported_out, summary_present, votes_present, state, generated_at
		FROM (
			SELECT bc.*,
			       ROW_NUMBER() OVER (PARTITION BY bc.bill_id ORDER BY bc.generated_at DESC) AS rn
			FROM bill_compliance bc
			WHERE bc.committee_id = ?
			  AND bc.generated_at <= ?
		) ranked
		WHERE rn = 1
		ORDER BY bill_id
	`, committeeID, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to query bills at %s: %w", cutoff, err)
	}
	defer rows.Close()

	var bills []BillSnapshot
	for rows.Next() {
		var (
			b                        BillSnapshot
			reported, summary, votes sql.NullInt64
			state                    sql.NullString
		)
		if err := rows.Scan(&b.BillID, &b.HearingDate, &reported, &summary, &votes, &state, &b.GeneratedAt); err != nil {
			return nil, fmt.Errorf("failed to scan bill snapshot: %w", err)
		}
		b.ReportedOut = reported.Int64 != 0
		b.SummaryPresent = summary.Int64 != 0
		b.VotesPresent = votes.Int64 != 0
		b.State = state.String
		if b.State == "" {
			b.State = models.StateUnknown
		}
		bills = append(bills, b)
	}
	return bills, rows.Err()
}

// ClosestScan returns the newest generated_at for committeeID on or before
// the given day (the whole day is included), or db.ErrNotFound.
func ClosestScan(ctx context.Context, q db.Querier, committeeID string, day time.Time) (string, error) {
	next := day.AddDate(0, 0, 1).Format(DateLayout)
	var latest sql.NullString
	err := q.QueryRowContext(ctx, `
		SELECT MAX(generated_at)
		FROM bill_compliance
		WHERE committee_id = ?
		  AND generated_at < ?
	`, committeeID, next).Scan(&latest)
	if err != nil {
		return "", fmt.Errorf("failed to find closest scan: %w", err)
	}
	if !latest.Valid || latest.String == "" {
		return "", db.ErrNotFound
	}
	return latest.String, nil
}

// StoredReport is the diff report a scanner uploaded, as the dashboard
// shows it.
type StoredReport struct {
	ScanDate string      `json:"scan_date"`
	Report   *DiffReport `json:"diff_report"`
	Analysis *string     `json:"analysis"`
}

// StoredDiffReport returns the newest scan metadata at or before cutoff,
// reduced to its daily report. It returns nil when there is none.
func StoredDiffReport(ctx context.Context, q db.Querier, committeeID, cutoff string) (*StoredReport, error) {
	var (
		s   StoredReport
		raw []byte
	)
	err := q.QueryRowContext(ctx, `
		SELECT scan_date, diff_report, analysis
		FROM compliance_scan_metadata
		WHERE committee_id = ?
		  AND scan_date <= ?
		ORDER BY scan_date DESC
		LIMIT 1
	`, committeeID, cutoff).Scan(&s.ScanDate, &raw, &s.Analysis)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query stored diff report: %w", err)
	}
	// a corrupt document still leaves the scan date and analysis usable
	s.Report, _ = SelectReport(raw, IntervalDaily)
	return &s, nil
}

// RateSummary counts states in one snapshot. Rate treats unknown bills as
// compliant: (compliant + unknown) / total.
type RateSummary struct {
	Total          int     `json:"total"`
	Compliant      int     `json:"compliant"`
	Unknown        int     `json:"unknown"`
	NonCompliant   int     `json:"non_compliant"`
	Incomplete     int     `json:"incomplete"`
	CompliantCount int     `json:"compliant_count"`
	Rate           float64 `json:"rate"`
}

// Summarize computes the rate summary of a snapshot.
func Summarize(bills []BillSnapshot) RateSummary {
	var s RateSummary
	s.Total = len(bills)
	for _, b := range bills {
		switch strings.ToLower(b.State) {
		case models.StateCompliant:
			s.Compliant++
		case models.StateUnknown:
			s.Unknown++
		case models.StateNonCompliant:
			s.NonCompliant++
		case models.StateIncomplete:
			s.Incomplete++
		}
	}
	s.CompliantCount = s.Compliant + s.Unknown
	if s.Total > 0 {
		s.Rate = Round(float64(s.CompliantCount)/float64(s.Total)*100, 2)
	}
	return s
}

// StateChange is a bill whose state differs between two snapshots.
type StateChange struct {
	BillID string `json:"bill_id"`
	From   string `json:"from"`
	To     string `json:"to"`
}

// Diff is the bill-level difference between two snapshots.
type Diff struct {
	Before       RateSummary   `json:"before"`
	After        RateSummary   `json:"after"`
	Delta        float64       `json:"delta"`
	AltDelta     *float64      `json:"alt_delta"`
	NewBills     []string      `json:"new_bills"`
	RemovedBills []string      `json:"removed_bills"`
	StateChanges []StateChange `json:"state_changes"`
	Dropped      []StateChange `json:"dropped"`
	Improved     []StateChange `json:"improved"`
}

func passing(state string) bool {
	s := strings.ToLower(state)
	return s == models.StateCompliant || s == models.StateUnknown
}

func failing(state string) bool {
	s := strings.ToLower(state)
	return s == models.StateNonCompliant || s == models.StateIncomplete
}

// Compare diffs two snapshots of the same committee.
func Compare(before, after []BillSnapshot) Diff {
	d := Diff{
		Before: Summarize(before),
		After:  Summarize(after),
	}
	d.Delta = Round(d.After.Rate-d.Before.Rate, 1)

	// with equal totals, "not failing" over total is a second view of the
	// same movement
	if d.Before.Total == d.After.Total && d.Before.Total > 0 {
		t := float64(d.Before.Total)
		prev := float64(d.Before.Total-d.Before.NonCompliant-d.Before.Incomplete) / t
		curr := float64(d.After.Total-d.After.NonCompliant-d.After.Incomplete) / t
		alt := Round((prev-curr)*100, 1)
		d.AltDelta = &alt
	}

	old := make(map[string]BillSnapshot, len(before))
	for _, b := range before {
		old[b.BillID] = b
	}
	current := make(map[string]struct{}, len(after))
	for _, b := range after {
		current[b.BillID] = struct{}{}
		prev, ok := old[b.BillID]
		if !ok {
			d.NewBills = append(d.NewBills, b.BillID)
			continue
		}
		if strings.EqualFold(prev.State, b.State) {
			continue
		}
		c := StateChange{BillID: b.BillID, From: prev.State, To: b.State}
		d.StateChanges = append(d.StateChanges, c)
		switch {
		case passing(c.From) && failing(c.To):
			d.Dropped = append(d.Dropped, c)
		case failing(c.From) && passing(c.To):
			d.Improved = append(d.Improved, c)
		}
	}
	for _, b := range before {
		if _, ok := current[b.BillID]; !ok {
			d.RemovedBills = append(d.RemovedBills, b.BillID)
		}
	}
	return d
}

// Comparison is the full report for one committee between two dates.
type Comparison struct {
	Diff
	CommitteeID   string        `json:"committee_id"`
	CommitteeName string        `json:"committee_name"`
	Date1         string        `json:"date1"`
	Date2         string        `json:"date2"`
	Scan1         string        `json:"scan1"`
	Scan2         string        `json:"scan2"`
	Stored        *StoredReport `json:"stored,omitempty"`
	Variance      *float64      `json:"variance,omitempty"` // stored minus calculated delta, nil when equal
	DatesMatch    bool          `json:"dates_match"`
}

// ErrNoScan is returned when a committee has no data on or before a date.
var ErrNoScan = errors.New("no scan data found")

// CompareDates compares committeeID between two YYYY-MM-DD dates. The dates
// are swapped when given in reverse order.
func CompareDates(ctx context.Context, q db.Querier, committeeID, date1, date2 string) (*Comparison, error) {
	d1, err := time.Parse(DateLayout, date1)
	if err != nil {
		return nil, fmt.Errorf("dates must be in YYYY-MM-DD format: %w", err)
	}
	d2, err := time.Parse(DateLayout, date2)
	if err != nil {
		return nil, fmt.Errorf("dates must be in YYYY-MM-DD format: %w", err)
	}
	if d2.Before(d1) {
		d1, d2 = d2, d1
		date1, date2 = date2, date1
	}

	name, err := CommitteeName(ctx, q, committeeID)
	if err != nil {
		return nil, err
	}

	c := &Comparison{CommitteeID: committeeID, CommitteeName: name, Date1: date1, Date2: date2}
	if c.Scan1, err = ClosestScan(ctx, q, committeeID, d1); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, fmt.Errorf("%w for %s", ErrNoScan, date1)
		}
		return nil, err
	}
	if c.Scan2, err = ClosestScan(ctx, q, committeeID, d2); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, fmt.Errorf("%w for %s", ErrNoScan, date2)
		}
		return nil, err
	}

	before, err := BillsAt(ctx, q, committeeID, c.Scan1)
	if err != nil {
		return nil, err
	}
	after, err := BillsAt(ctx, q, committeeID, c.Scan2)
	if err != nil {
		return nil, err
	}
	c.Diff = Compare(before, after)

	if c.Stored, err = StoredDiffReport(ctx, q, committeeID, c.Scan2); err != nil {
		return nil, err
	}
	if c.Stored != nil && c.Stored.Report != nil && c.Stored.Report.ComplianceDelta != nil {
		stored := *c.Stored.Report.ComplianceDelta
		if stored != c.Delta {
			v := Round(stored-c.Delta, 1)
			c.Variance = &v
		}
		r := c.Stored.Report
		c.DatesMatch = r.PreviousDate != nil && r.CurrentDate != nil &&
			dayOf(c.Scan1) == *r.PreviousDate && dayOf(c.Scan2) == *r.CurrentDate
	}
	return c, nil
}

func dayOf(ts string) string {
	if len(ts) > 10 {
		return ts[:10]
	}
	return ts
}

// ScanDate is one day with data and the number of distinct bills known
// as of the end of that day.
type ScanDate struct {
	Date      string `json:"date"`
	BillCount int    `json:"bill_count"`
}

// ScanDates lists the 20 most recent days on which committeeID was
// scanned, newest first.
func ScanDates(ctx context.Context, q db.Querier, committeeID string) ([]ScanDate, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT DISTINCT SUBSTR(generated_at, 1, 10) AS scan_day
		FROM bill_compliance
		WHERE committee_id = ?
		ORDER BY scan_day DESC
		LIMIT 20
	`, committeeID)
	if err != nil {
		return nil, fmt.Errorf("failed to query scan dates: %w", err)
	}
	var days []string
	for rows.Next() {
		var day string
		if err := rows.Scan(&day); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan scan date: %w", err)
		}
		days = append(days, day)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read scan dates: %w", err)
	}

	out := make([]ScanDate, 0, len(days))
	for _, day := range days {
		t, err := time.Parse(DateLayout, day)
		if err != nil {
			return nil, fmt.Errorf("unexpected scan date %q: %w", day, err)
		}
		var n int
		err = q.QueryRowContext(ctx, `
			SELECT COUNT(DISTINCT bill_id)
			FROM bill_compliance
			WHERE committee_id = ?
			  AND generated_at < ?
		`, committeeID, t.AddDate(0, 0, 1).Format(DateLayout)).Scan(&n)
		if err != nil {
			return nil, fmt.Errorf("failed to count bills for %s: %w", day, err)
		}
		out = append(out, ScanDate{Date: day, BillCount: n})
	}
	return out, nil
}
