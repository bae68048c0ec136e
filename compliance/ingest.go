// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package compliance

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/goccy/go-json"

	"github.com/beaconhill/compliance-tracker/db"
	"github.com/beaconhill/compliance-tracker/models"
)

// ErrInvalidInput marks ingest payloads that are well-formed JSON but
// cannot be stored.
var ErrInvalidInput = errors.New("invalid input")

// Flag decodes the loose booleans scanners send: true/false, 0/1, "yes",
// "" and null all work. Anything non-empty and non-zero is true.
type Flag bool

func (f *Flag) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case len(b) == 0, bytes.Equal(b, []byte("null")), bytes.Equal(b, []byte("false")):
		*f = false
	case bytes.Equal(b, []byte("true")):
		*f = true
	case b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = s != ""
	case b[0] == '[' || b[0] == '{':
		*f = len(b) > 2
	default:
		n, err := strconv.ParseFloat(string(b), 64)
		if err != nil {
			return fmt.Errorf("invalid flag %s", b)
		}
		*f = n != 0
	}
	return nil
}

// CommitteeContact is one entry of the cache payload's committee_contacts.
type CommitteeContact struct {
	CommitteeID          string  `json:"committee_id"`
	Name                 string  `json:"name"`
	Chamber              string  `json:"chamber"`
	URL                  string  `json:"url"`
	HouseRoom            *string `json:"house_room"`
	HouseAddress         *string `json:"house_address"`
	HousePhone           *string `json:"house_phone"`
	SenateRoom           *string `json:"senate_room"`
	SenateAddress        *string `json:"senate_address"`
	SenatePhone          *string `json:"senate_phone"`
	HouseChairName       string  `json:"house_chair_name"`
	HouseChairEmail      string  `json:"house_chair_email"`
	HouseViceChairName   string  `json:"house_vice_chair_name"`
	HouseViceChairEmail  string  `json:"house_vice_chair_email"`
	SenateChairName      string  `json:"senate_chair_name"`
	SenateChairEmail     string  `json:"senate_chair_email"`
	SenateViceChairName  string  `json:"senate_vice_chair_name"`
	SenateViceChairEmail string  `json:"senate_vice_chair_email"`
	UpdatedAt            string  `json:"updated_at"`
}

// BillTitle accepts either a bare string or {"value": ..., "updated_at": ...}.
type BillTitle struct {
	Value     *string
	UpdatedAt string
}

func (t *BillTitle) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*t = BillTitle{}
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*t = BillTitle{Value: &s}
		return nil
	}
	var obj struct {
		Value     *string `json:"value"`
		UpdatedAt string  `json:"updated_at"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	*t = BillTitle{Value: obj.Value, UpdatedAt: obj.UpdatedAt}
	return nil
}

// BillParser is one entry of the cache payload's bill_parsers.
type BillParser struct {
	Title   BillTitle `json:"title"`
	BillURL *string   `json:"bill_url"`
}

// CacheData is the body of POST /ingest/cache.
type CacheData struct {
	CommitteeContacts map[string]CommitteeContact `json:"committee_contacts"`
	BillParsers       map[string]BillParser       `json:"bill_parsers"`
}

// ImportCache upserts committees and bills from a scanner cache in one
// transaction.
func ImportCache(ctx context.Context, d *db.DB, data CacheData, now time.Time) error {
	ts := db.FormatTime(now)
	return d.WithTx(ctx, func(tx *db.Tx) error {
		for key, c := range data.CommitteeContacts {
			if c.CommitteeID == "" {
				c.CommitteeID = key
			}
			if c.Chamber == "" {
				c.Chamber = models.ChamberJoint
			}
			if c.UpdatedAt == "" {
				c.UpdatedAt = ts
			}
			if err := upsertCommittee(ctx, tx, c); err != nil {
				return fmt.Errorf("committee %s: %w", c.CommitteeID, err)
			}
		}

		for billID, b := range data.BillParsers {
			updated := b.Title.UpdatedAt
			if updated == "" {
				updated = ts
			}
			if err := upsertBill(ctx, tx, billID, b.Title.Value, b.BillURL, updated); err != nil {
				return fmt.Errorf("bill %s: %w", billID, err)
			}
		}
		return nil
	})
}

func upsertCommittee(ctx context.Context, q db.Querier, c CommitteeContact) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO committees
		(committee_id, name, chamber, url, house_room, house_address, house_phone,
		 senate_room, senate_address, senate_phone, house_chair_name, house_chair_email,
		 house_vice_chair_name, house_vice_chair_email, senate_chair_name, senate_chair_email,
		 senate_vice_chair_name, senate_vice_chair_email, updated_at)
		VALUES (`+db.Placeholders(19)+`)
		ON CONFLICT (committee_id) DO UPDATE SET
			name = excluded.name,
			chamber = excluded.chamber,
			url = excluded.url,
			house_room = excluded.house_room,
			house_address = excluded.house_address,
			house_phone = excluded.house_phone,
			senate_room = excluded.senate_room,
			senate_address = excluded.senate_address,
			senate_phone = excluded.senate_phone,
			house_chair_name = excluded.house_chair_name,
			house_chair_email = excluded.house_chair_email,
			house_vice_chair_name = excluded.house_vice_chair_name,
			house_vice_chair_email = excluded.house_vice_chair_email,
			senate_chair_name = excluded.senate_chair_name,
			senate_chair_email = excluded.senate_chair_email,
			senate_vice_chair_name = excluded.senate_vice_chair_name,
			senate_vice_chair_email = excluded.senate_vice_chair_email,
			updated_at = excluded.updated_at
	`,
		c.CommitteeID, c.Name, c.Chamber, c.URL,
		c.HouseRoom, c.HouseAddress, c.HousePhone,
		c.SenateRoom, c.SenateAddress, c.SenatePhone,
		c.HouseChairName, c.HouseChairEmail,
		c.HouseViceChairName, c.HouseViceChairEmail,
		c.SenateChairName, c.SenateChairEmail,
		c.SenateViceChairName, c.SenateViceChairEmail,
		c.UpdatedAt,
	)
	return err
}

func upsertBill(ctx context.Context, q db.Querier, billID string, title, url *string, updatedAt string) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO bills (bill_id, bill_title, bill_url, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (bill_id) DO UPDATE SET
			bill_title = excluded.bill_title,
			bill_url = excluded.bill_url,
			updated_at = excluded.updated_at
	`, billID, title, url, updatedAt)
	return err
}

// ReportItem is one bill in a compliance report.
type ReportItem struct {
	BillID               string  `json:"bill_id"`
	BillTitle            *string `json:"bill_title"`
	BillURL              *string `json:"bill_url"`
	HearingDate          *string `json:"hearing_date"`
	Deadline60           *string `json:"deadline_60"`
	EffectiveDeadline    *string `json:"effective_deadline"`
	ExtensionOrderURL    *string `json:"extension_order_url"`
	ExtensionDate        *string `json:"extension_date"`
	ReportedOut          Flag    `json:"reported_out"`
	SummaryPresent       Flag    `json:"summary_present"`
	SummaryURL           *string `json:"summary_url"`
	VotesPresent         Flag    `json:"votes_present"`
	VotesURL             *string `json:"votes_url"`
	State                string  `json:"state"`
	Reason               string  `json:"reason"`
	NoticeStatus         *string `json:"notice_status"`
	NoticeGapDays        *int64  `json:"notice_gap_days"`
	AnnouncementDate     *string `json:"announcement_date"`
	ScheduledHearingDate *string `json:"scheduled_hearing_date"`
}

// Report is one committee scan as pushed to POST /ingest/basic.
type Report struct {
	CommitteeID string
	Items       []ReportItem
	DiffReport  any
	Analysis    *string
}

// ImportReport stores a committee scan. The committee is created when
// unknown, bills are upserted and one compliance row is appended per item,
// all in one transaction. Scan metadata is written afterwards; failing to
// store it is logged and does not fail the import. Every row written shares
// the timestamp now.
func ImportReport(ctx context.Context, d *db.DB, r Report, now time.Time) (int, error) {
	if r.CommitteeID == "" {
		return 0, fmt.Errorf("%w: committee_id is required", ErrInvalidInput)
	}
	for i, item := range r.Items {
		if item.BillID == "" {
			return 0, fmt.Errorf("%w: item %d has no bill_id", ErrInvalidInput, i)
		}
	}

	ts := db.FormatTime(now)
	err := d.WithTx(ctx, func(tx *db.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO committees (committee_id, name, chamber, url, updated_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (committee_id) DO NOTHING
		`, r.CommitteeID, "Committee "+r.CommitteeID, models.ChamberJoint, DefaultCommitteeURL(r.CommitteeID), ts)
		if err != nil {
			return fmt.Errorf("failed to ensure committee: %w", err)
		}

		for _, item := range r.Items {
			if err := upsertBill(ctx, tx, item.BillID, item.BillTitle, item.BillURL, ts); err != nil {
				return fmt.Errorf("bill %s: %w", item.BillID, err)
			}
			if err := insertCompliance(ctx, tx, r.CommitteeID, item, ts); err != nil {
				return fmt.Errorf("bill %s: %w", item.BillID, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	if r.DiffReport != nil || r.Analysis != nil {
		if err := InsertMetadata(ctx, d, r.CommitteeID, ts, r.DiffReport, r.Analysis); err != nil {
			slog.ErrorContext(ctx, "failed to store scan metadata", "committee_id", r.CommitteeID, "error", err)
		}
	}
	return len(r.Items), nil
}

func insertCompliance(ctx context.Context, q db.Querier, committeeID string, item ReportItem, generatedAt string) error {
	state := item.State
	if state == "" {
		state = models.StateUnknown
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO bill_compliance (
			committee_id, bill_id, hearing_date, deadline_60,
			effective_deadline, extension_order_url, extension_date,
			reported_out, summary_present, summary_url,
			votes_present, votes_url, state, reason,
			notice_status, notice_gap_days, announcement_date,
			scheduled_hearing_date, generated_at
		) VALUES (`+db.Placeholders(19)+`)
	`,
		committeeID, item.BillID, item.HearingDate, item.Deadline60,
		item.EffectiveDeadline, item.ExtensionOrderURL, item.ExtensionDate,
		db.BoolInt(bool(item.ReportedOut)), db.BoolInt(bool(item.SummaryPresent)), item.SummaryURL,
		db.BoolInt(bool(item.VotesPresent)), item.VotesURL, state, item.Reason,
		item.NoticeStatus, item.NoticeGapDays, item.AnnouncementDate,
		item.ScheduledHearingDate, generatedAt,
	)
	return err
}
