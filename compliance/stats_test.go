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

var base = time.Date(2024, 11, 9, 12, 0, 0, 0, time.UTC)

func TestNormalizeState(t *testing.T) {
	tests := map[string]string{
		"Compliant":     "compliant",
		"INCOMPLETE":    "non-compliant",
		"non-compliant": "non-compliant",
		"Unknown":       "unknown",
		"":              "",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizeState(in), "NormalizeState(%q)", in)
	}
}

func TestRound(t *testing.T) {
	assert.Equal(t, 66.67, Round(200.0/3, 2))
	assert.Equal(t, -1.5, Round(-1.46, 1))
	assert.Equal(t, 5.0, Round(4.96, 1))
}

func seedStats(t *testing.T, d *db.DB) {
	testutil.CreateTestCommittee(t, d, "J1", "Joint Committee on Housing", "Joint")
	testutil.CreateTestCommittee(t, d, "J2", "Joint Committee on Education", "Joint")
	testutil.CreateTestCommittee(t, d, "H1", "House Committee on Ways and Means", "House")

	// J1/B1 was non-compliant, the newest row says compliant
	testutil.AddTestCompliance(t, d, "J1", "B1", "Non-Compliant", base)
	testutil.AddTestCompliance(t, d, "J1", "B1", "Compliant", base.Add(time.Hour))
	testutil.AddTestCompliance(t, d, "J1", "B2", "Incomplete", base)
	testutil.AddTestCompliance(t, d, "J1", "B3", "Unknown", base)
	testutil.AddTestCompliance(t, d, "J1", "B4", "compliant", base)
	// same bill, different committee, counted separately
	testutil.AddTestCompliance(t, d, "J2", "B1", "non-compliant", base.Add(2*time.Hour))
}

func TestGlobalStats(t *testing.T) {
	d := testutil.SetupTestDB(t)
	seedStats(t, d)

	s, err := GlobalStats(context.Background(), d)
	require.NoError(t, err)

	assert.Equal(t, 2, s.TotalCommittees)
	assert.Equal(t, 5, s.TotalBills)
	assert.Equal(t, 2, s.CompliantBills)
	assert.Equal(t, 0, s.IncompleteBills)
	assert.Equal(t, 2, s.NonCompliantBills)
	assert.Equal(t, 1, s.UnknownBills)
	assert.Equal(t, 50.0, s.OverallComplianceRate)
	require.NotNil(t, s.LatestReportDate)
	assert.Equal(t, db.FormatTime(base.Add(2*time.Hour)), *s.LatestReportDate)
}

func TestGlobalStatsEmpty(t *testing.T) {
	d := testutil.SetupTestDB(t)

	s, err := GlobalStats(context.Background(), d)
	require.NoError(t, err)
	assert.Zero(t, s.TotalBills)
	assert.Zero(t, s.OverallComplianceRate)
	assert.Nil(t, s.LatestReportDate)
}

func TestGlobalStatsOnlyUnknown(t *testing.T) {
	d := testutil.SetupTestDB(t)
	testutil.CreateTestCommittee(t, d, "J1", "Housing", "Joint")
	testutil.AddTestCompliance(t, d, "J1", "B1", "unknown", base)

	s, err := GlobalStats(context.Background(), d)
	require.NoError(t, err)
	assert.Equal(t, 1, s.UnknownBills)
	assert.Zero(t, s.OverallComplianceRate)
}

func TestCommitteeStats(t *testing.T) {
	d := testutil.SetupTestDB(t)
	seedStats(t, d)
	testutil.CreateTestCommittee(t, d, "S1", "Senate Committee on Ethics", "Senate")
	testutil.AddTestCompliance(t, d, "S1", "B9", "compliant", base)

	stats, err := CommitteeStats(context.Background(), d)
	require.NoError(t, err)
	require.Len(t, stats, 4)

	ids := make([]string, len(stats))
	for i, s := range stats {
		ids[i] = s.CommitteeID
	}
	// 100, 66.67, then the two zero-rate committees by name
	assert.Equal(t, []string{"S1", "J1", "H1", "J2"}, ids)

	j1 := stats[1]
	assert.Equal(t, 4, j1.TotalBills)
	assert.Equal(t, 2, j1.CompliantCount)
	assert.Equal(t, 1, j1.NonCompliantCount)
	assert.Equal(t, 0, j1.IncompleteCount)
	assert.Equal(t, 1, j1.UnknownCount)
	assert.Equal(t, 66.67, j1.ComplianceRate)

	h1 := stats[2]
	assert.Zero(t, h1.TotalBills)
	assert.Nil(t, h1.LastReportGenerated)
}

func TestSourceMarker(t *testing.T) {
	d := testutil.SetupTestDB(t)
	ctx := context.Background()

	empty, err := SourceMarker(ctx, d)
	require.NoError(t, err)
	assert.Equal(t, "0|", empty)

	seedStats(t, d)
	m1, err := SourceMarker(ctx, d)
	require.NoError(t, err)

	testutil.AddTestCompliance(t, d, "J1", "B5", "compliant", base.Add(3*time.Hour))
	m2, err := SourceMarker(ctx, d)
	require.NoError(t, err)
	assert.NotEqual(t, m1, m2)
}
