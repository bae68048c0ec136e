// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package compliance

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/beaconhill/compliance-tracker/db"
	"github.com/beaconhill/compliance-tracker/models"
)

// DefaultBillURL is used when a bill row carries no URL of its own.
func DefaultBillURL(billID string) string {
	return "https://malegislature.gov/Bills/194/" + billID
}

// DefaultCommitteeURL is the public page of a committee.
func DefaultCommitteeURL(committeeID string) string {
	return "https://malegislature.gov/Committees/" + committeeID
}

// BillFilter narrows ListBills. Empty slices mean no filter. States match
// case-insensitively; Search is a substring of bill_id or bill_title.
type BillFilter struct {
	CommitteeIDs []string
	Chambers     []string
	States       []string
	Search       string
}

// ListBills returns the latest compliance row per (bill, committee), newest
// first.
func ListBills(ctx context.Context, q db.Querier, f BillFilter) ([]models.Bill, error) {
	var (
		b     strings.Builder
		conds []string
		args  []any
	)
	b.WriteString(`
	WITH latest_bills AS (
		SELECT bc.committee_id, bc.bill_id, bc.hearing_date, bc.deadline_60, bc.effective_deadline,
		       bc.extension_order_url, bc.extension_date, bc.reported_out, bc.summary_present,
		       bc.summary_url, bc.votes_present, bc.votes_url, bc.state, bc.reason,
		       bc.notice_status, bc.notice_gap_days, bc.announcement_date, bc.scheduled_hearing_date,
		       bc.generated_at, b.bill_title, b.bill_url, c.name AS committee_name, c.chamber,
		       ROW_NUMBER() OVER (PARTITION BY bc.bill_id, bc.committee_id ORDER BY bc.generated_at DESC) AS rn
		FROM bill_compliance bc
		LEFT JOIN bills b ON bc.bill_id = b.bill_id
		LEFT JOIN committees c ON bc.committee_id = c.committee_id
	)
	SELECT committee_id, bill_id, hearing_date, deadline_60, effective_deadline,
	       extension_order_url, extension_date, reported_out, summary_present,
	       summary_url, votes_present, votes_url, state, reason,
	       notice_status, notice_gap_days, announcement_date, scheduled_hearing_date,
	       generated_at, bill_title, bill_url, committee_name, chamber
	FROM latest_bills
	WHERE rn = 1`)

	if len(f.CommitteeIDs) > 0 {
		conds = append(conds, "committee_id IN ("+db.Placeholders(len(f.CommitteeIDs))+")")
		for _, id := range f.CommitteeIDs {
			args = append(args, id)
		}
	}
	if len(f.Chambers) > 0 {
		conds = append(conds, "chamber IN ("+db.Placeholders(len(f.Chambers))+")")
		for _, c := range f.Chambers {
			args = append(args, c)
		}
	}
	if len(f.States) > 0 {
		ors := make([]string, len(f.States))
		for i, s := range f.States {
			ors[i] = "LOWER(state) = LOWER(?)"
			args = append(args, s)
		}
		conds = append(conds, "("+strings.Join(ors, " OR ")+")")
	}
	if f.Search != "" {
		conds = append(conds, "(bill_id LIKE ? OR bill_title LIKE ?)")
		like := "%" + f.Search + "%"
		args = append(args, like, like)
	}

	for _, c := range conds {
		b.WriteString(" AND ")
		b.WriteString(c)
	}
	b.WriteString(" ORDER BY generated_at DESC")

	rows, err := q.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query bills: %w", err)
	}
	defer rows.Close()

	bills := []models.Bill{}
	for rows.Next() {
		var (
			bill                     models.Bill
			reported, summary, votes int64
			billURL                  sql.NullString
		)
		if err := rows.Scan(
			&bill.CommitteeID, &bill.BillID, &bill.HearingDate, &bill.Deadline60, &bill.EffectiveDeadline,
			&bill.ExtensionOrderURL, &bill.ExtensionDate, &reported, &summary,
			&bill.SummaryURL, &votes, &bill.VotesURL, &bill.State, &bill.Reason,
			&bill.NoticeStatus, &bill.NoticeGapDays, &bill.AnnouncementDate, &bill.ScheduledHearingDate,
			&bill.GeneratedAt, &bill.BillTitle, &billURL, &bill.CommitteeName, &bill.Chamber,
		); err != nil {
			return nil, fmt.Errorf("failed to scan bill: %w", err)
		}
		bill.ReportedOut = reported != 0
		bill.SummaryPresent = summary != 0
		bill.VotesPresent = votes != 0
		bill.State = NormalizeState(bill.State)
		bill.BillURL = billURL.String
		if bill.BillURL == "" {
			bill.BillURL = DefaultBillURL(bill.BillID)
		}
		bills = append(bills, bill)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read bills: %w", err)
	}
	return bills, nil
}

// ListCommittees returns every committee ordered by name.
func ListCommittees(ctx context.Context, q db.Querier) ([]models.Committee, error) {
	return queryCommittees(ctx, q, "name")
}

// ListCommitteesByID is the same list ordered by committee_id, as the CLI
// prints it.
func ListCommitteesByID(ctx context.Context, q db.Querier) ([]models.Committee, error) {
	return queryCommittees(ctx, q, "committee_id")
}

func queryCommittees(ctx context.Context, q db.Querier, orderBy string) ([]models.Committee, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT committee_id, name, chamber, url, updated_at
		FROM committees
		ORDER BY `+orderBy)
	if err != nil {
		return nil, fmt.Errorf("failed to query committees: %w", err)
	}
	defer rows.Close()

	committees := []models.Committee{}
	for rows.Next() {
		var c models.Committee
		if err := rows.Scan(&c.CommitteeID, &c.Name, &c.Chamber, &c.URL, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan committee: %w", err)
		}
		committees = append(committees, c)
	}
	return committees, rows.Err()
}

// GetCommittee returns the committee with its contact details, or
// db.ErrNotFound.
func GetCommittee(ctx context.Context, q db.Querier, committeeID string) (models.CommitteeDetails, error) {
	var c models.CommitteeDetails
	err := q.QueryRowContext(ctx, `
		SELECT committee_id, name, chamber, url,
		       house_room, house_address, house_phone,
		       senate_room, senate_address, senate_phone,
		       house_chair_name, house_chair_email,
		       house_vice_chair_name, house_vice_chair_email,
		       senate_chair_name, senate_chair_email,
		       senate_vice_chair_name, senate_vice_chair_email,
		       updated_at
		FROM committees
		WHERE committee_id = ?
	`, committeeID).Scan(
		&c.CommitteeID, &c.Name, &c.Chamber, &c.URL,
		&c.HouseRoom, &c.HouseAddress, &c.HousePhone,
		&c.SenateRoom, &c.SenateAddress, &c.SenatePhone,
		&c.HouseChairName, &c.HouseChairEmail,
		&c.HouseViceChairName, &c.HouseViceChairEmail,
		&c.SenateChairName, &c.SenateChairEmail,
		&c.SenateViceChairName, &c.SenateViceChairEmail,
		&c.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return models.CommitteeDetails{}, db.ErrNotFound
	}
	if err != nil {
		return models.CommitteeDetails{}, fmt.Errorf("failed to query committee: %w", err)
	}
	return c, nil
}

// CommitteeName returns the committee's name, or the id itself when the
// committee is unknown.
func CommitteeName(ctx context.Context, q db.Querier, committeeID string) (string, error) {
	var name string
	err := q.QueryRowContext(ctx, `SELECT name FROM committees WHERE committee_id = ?`, committeeID).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return committeeID, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to query committee name: %w", err)
	}
	return name, nil
}
