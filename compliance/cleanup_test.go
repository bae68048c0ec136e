// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package compliance

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beaconhill/compliance-tracker/db"
	"github.com/beaconhill/compliance-tracker/testutil"
)

func countRows(t *testing.T, d *db.DB, table string) int {
	t.Helper()
	var n int
	require.NoError(t, d.QueryRowContext(context.Background(), `SELECT COUNT(*) FROM `+table).Scan(&n))
	return n
}

func seedCleanup(t *testing.T, d *db.DB) {
	t.Helper()
	seedStats(t, d)
	testutil.AddTestMetadata(t, d, "J1", base, `{"compliance_delta": 1}`)
	testutil.AddTestMetadata(t, d, "J1", base.Add(time.Hour), `{"compliance_delta": 2}`)
	testutil.AddTestMetadata(t, d, "J1", base.Add(48*time.Hour), `{"compliance_delta": 3}`)
}

func TestCleanupDryRun(t *testing.T) {
	d := testutil.SetupTestDB(t)
	seedCleanup(t, d)

	res, err := Cleanup(context.Background(), d, CleanupOptions{DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.BillCompliance)
	assert.Equal(t, int64(1), res.ScanMetadata)
	assert.Equal(t, int64(2), res.Total())

	assert.Equal(t, 6, countRows(t, d, "bill_compliance"), "dry run must not delete")
	assert.Equal(t, 3, countRows(t, d, "compliance_scan_metadata"))
}

func TestCleanup(t *testing.T) {
	d := testutil.SetupTestDB(t)
	seedCleanup(t, d)
	ctx := context.Background()

	before, err := GlobalStats(ctx, d)
	require.NoError(t, err)

	res, err := Cleanup(ctx, d, CleanupOptions{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Total())
	assert.Equal(t, 5, countRows(t, d, "bill_compliance"))
	assert.Equal(t, 2, countRows(t, d, "compliance_scan_metadata"))

	// the newest row survives, so the dashboard is unchanged
	after, err := GlobalStats(ctx, d)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	md, err := CommitteeMetadata(ctx, d, "J1")
	require.NoError(t, err)
	assert.Equal(t, db.FormatTime(base.Add(48*time.Hour)), *md.ScanDate)

	again, err := Cleanup(ctx, d, CleanupOptions{})
	require.NoError(t, err)
	assert.Zero(t, again.Total())
}

func TestCleanupKeepDays(t *testing.T) {
	d := testutil.SetupTestDB(t)
	testutil.CreateTestCommittee(t, d, "J1", "Housing", "Joint")
	testutil.AddTestCompliance(t, d, "J1", "B1", "unknown", base)
	testutil.AddTestCompliance(t, d, "J1", "B1", "compliant", base.Add(24*time.Hour))
	testutil.AddTestCompliance(t, d, "J1", "B1", "compliant", base.Add(5*24*time.Hour))

	res, err := Cleanup(context.Background(), d, CleanupOptions{
		KeepDays: 2,
		Now:      base.Add(5*24*time.Hour + time.Hour),
	})
	require.NoError(t, err)
	// only the two rows older than the cutoff compete
	assert.Equal(t, int64(1), res.BillCompliance)
	assert.Equal(t, 2, countRows(t, d, "bill_compliance"))
}

func TestStats(t *testing.T) {
	d := testutil.SetupTestDB(t)

	empty, err := Stats(context.Background(), d)
	require.NoError(t, err)
	assert.Zero(t, empty.BillCompliance.Total)
	assert.Nil(t, empty.Oldest)

	seedCleanup(t, d)
	s, err := Stats(context.Background(), d)
	require.NoError(t, err)
	assert.Equal(t, TableStats{Total: 6, Unique: 5}, s.BillCompliance)
	assert.Equal(t, 1, s.BillCompliance.Duplicates())
	assert.Equal(t, TableStats{Total: 3, Unique: 2}, s.ScanMetadata)
	require.NotNil(t, s.Oldest)
	assert.Equal(t, db.FormatTime(base), *s.Oldest)
	assert.Equal(t, db.FormatTime(base.Add(2*time.Hour)), *s.Newest)
}
