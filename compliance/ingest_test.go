// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package compliance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beaconhill/compliance-tracker/db"
	"github.com/beaconhill/compliance-tracker/testutil"
)

func TestFlagUnmarshal(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{`true`, true},
		{`false`, false},
		{`null`, false},
		{`1`, true},
		{`0`, false},
		{`0.0`, false},
		{`"yes"`, true},
		{`""`, false},
		{`[]`, false},
		{`["x"]`, true},
	}
	for _, tt := range tests {
		var f Flag
		require.NoError(t, json.Unmarshal([]byte(tt.in), &f), tt.in)
		assert.Equal(t, tt.want, bool(f), tt.in)
	}

	var f Flag
	assert.Error(t, json.Unmarshal([]byte(`nope`), &f))
}

func TestImportReport(t *testing.T) {
	d := testutil.SetupTestDB(t)
	ctx := context.Background()

	var items []ReportItem
	require.NoError(t, json.Unmarshal([]byte(`[
		{"bill_id": "H100", "bill_title": "An Act about ferries", "state": "Compliant", "reported_out": 1, "summary_present": "yes"},
		{"bill_id": "H101", "notice_gap_days": 3}
	]`), &items))

	analysis := "first scan"
	n, err := ImportReport(ctx, d, Report{
		CommitteeID: "J33",
		Items:       items,
		DiffReport:  map[string]any{"compliance_delta": 0.0},
		Analysis:    &analysis,
	}, base)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	c, err := GetCommittee(ctx, d, "J33")
	require.NoError(t, err)
	assert.Equal(t, "Committee J33", c.Name)
	assert.Equal(t, "Joint", c.Chamber)
	assert.Equal(t, "https://malegislature.gov/Committees/J33", c.URL)

	bills, err := ListBills(ctx, d, BillFilter{CommitteeIDs: []string{"J33"}})
	require.NoError(t, err)
	require.Len(t, bills, 2)
	byID := map[string]int{}
	for i, b := range bills {
		byID[b.BillID] = i
		assert.Equal(t, db.FormatTime(base), b.GeneratedAt)
	}
	h100 := bills[byID["H100"]]
	assert.Equal(t, "compliant", h100.State)
	assert.True(t, h100.ReportedOut)
	assert.True(t, h100.SummaryPresent)
	assert.False(t, h100.VotesPresent)
	require.NotNil(t, h100.BillTitle)
	assert.Equal(t, "An Act about ferries", *h100.BillTitle)

	h101 := bills[byID["H101"]]
	assert.Equal(t, "unknown", h101.State)
	require.NotNil(t, h101.NoticeGapDays)
	assert.Equal(t, int64(3), *h101.NoticeGapDays)

	md, err := CommitteeMetadata(ctx, d, "J33")
	require.NoError(t, err)
	require.NotNil(t, md.ScanDate)
	assert.Equal(t, db.FormatTime(base), *md.ScanDate, "metadata shares the ingest timestamp")
	assert.Equal(t, analysis, *md.Analysis)
}

func TestImportReportKeepsCommittee(t *testing.T) {
	d := testutil.SetupTestDB(t)
	ctx := context.Background()
	testutil.CreateTestCommittee(t, d, "J1", "Joint Committee on Housing", "Joint")

	_, err := ImportReport(ctx, d, Report{CommitteeID: "J1", Items: []ReportItem{{BillID: "H1", State: "unknown"}}}, base)
	require.NoError(t, err)
	_, err = ImportReport(ctx, d, Report{CommitteeID: "J1", Items: []ReportItem{{BillID: "H1", State: "compliant"}}}, base.Add(time.Hour))
	require.NoError(t, err)

	c, err := GetCommittee(ctx, d, "J1")
	require.NoError(t, err)
	assert.Equal(t, "Joint Committee on Housing", c.Name)
	assert.Equal(t, 2, countRows(t, d, "bill_compliance"))

	// no diff_report and no analysis, no metadata row
	assert.Zero(t, countRows(t, d, "compliance_scan_metadata"))
}

func TestImportReportInvalid(t *testing.T) {
	d := testutil.SetupTestDB(t)
	ctx := context.Background()

	_, err := ImportReport(ctx, d, Report{Items: []ReportItem{{BillID: "H1"}}}, base)
	assert.True(t, errors.Is(err, ErrInvalidInput))

	_, err = ImportReport(ctx, d, Report{CommitteeID: "J1", Items: []ReportItem{{BillID: "H1"}, {State: "compliant"}}}, base)
	assert.True(t, errors.Is(err, ErrInvalidInput))
	assert.Zero(t, countRows(t, d, "bill_compliance"), "nothing is written for a rejected report")
	assert.Zero(t, countRows(t, d, "committees"))
}

func TestImportCache(t *testing.T) {
	d := testutil.SetupTestDB(t)
	ctx := context.Background()

	var data CacheData
	require.NoError(t, json.Unmarshal([]byte(`{
		"committee_contacts": {
			"J10": {"name": "Joint Committee on Transportation", "url": "https://example.test/J10",
			        "house_chair_name": "Rep. A", "house_room": "Room 134"},
			"H33": {"committee_id": "H33", "name": "House Committee on Steering", "chamber": "House",
			        "url": "https://example.test/H33", "updated_at": "2024-11-01T00:00:00Z"}
		},
		"bill_parsers": {
			"H100": {"title": "An Act about ferries", "bill_url": "https://example.test/H100"},
			"H101": {"title": {"value": "An Act about trains", "updated_at": "2024-10-01T00:00:00Z"}},
			"H102": {"title": null}
		}
	}`), &data))

	require.NoError(t, ImportCache(ctx, d, data, base))

	j10, err := GetCommittee(ctx, d, "J10")
	require.NoError(t, err)
	assert.Equal(t, "Joint", j10.Chamber)
	assert.Equal(t, db.FormatTime(base), j10.UpdatedAt)
	require.NotNil(t, j10.HouseRoom)
	assert.Equal(t, "Room 134", *j10.HouseRoom)
	require.NotNil(t, j10.HouseChairName)
	assert.Equal(t, "Rep. A", *j10.HouseChairName)

	h33, err := GetCommittee(ctx, d, "H33")
	require.NoError(t, err)
	assert.Equal(t, "House", h33.Chamber)
	assert.Equal(t, "2024-11-01T00:00:00Z", h33.UpdatedAt)

	var title, updated string
	require.NoError(t, d.QueryRowContext(ctx, `SELECT bill_title, updated_at FROM bills WHERE bill_id = ?`, "H101").Scan(&title, &updated))
	assert.Equal(t, "An Act about trains", title)
	assert.Equal(t, "2024-10-01T00:00:00Z", updated)
	assert.Equal(t, 3, countRows(t, d, "bills"))

	// a second push updates in place
	data.CommitteeContacts["J10"] = CommitteeContact{Name: "Transportation", URL: "https://example.test/J10"}
	require.NoError(t, ImportCache(ctx, d, data, base.Add(time.Hour)))
	j10, err = GetCommittee(ctx, d, "J10")
	require.NoError(t, err)
	assert.Equal(t, "Transportation", j10.Name)
	assert.Nil(t, j10.HouseRoom)
	assert.Equal(t, 2, countRows(t, d, "committees"))
}
