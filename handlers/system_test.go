// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beaconhill/compliance-tracker/models"
	"github.com/beaconhill/compliance-tracker/testutil"
)

func TestHealth(t *testing.T) {
	h := NewSystemHandler(testutil.SetupTestDB(t), testutil.GetTestConfig())
	h.now = func() time.Time { return time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC) }

	w := serve(h.Health, testutil.MakeRequest("GET", "/health", nil, nil))
	testutil.AssertStatus(t, w, http.StatusOK)

	var resp models.HealthResponse
	testutil.AssertJSON(t, w, &resp)
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, "Beacon Hill Compliance Tracker API is running", resp.Message)
	assert.Contains(t, resp.Timestamp, "2025-03-01")
}

func TestDBInfo(t *testing.T) {
	d := testutil.SetupTestDB(t)
	cfg := testutil.GetTestConfig()
	cfg.Database.URL = "sqlite:///tmp/secret-path.db"
	testutil.CreateTestCommittee(t, d, "J1", "Housing", "Joint")
	testutil.AddTestCompliance(t, d, "J1", "B1", "compliant", time.Now())
	testutil.AddTestCompliance(t, d, "J1", "B1", "compliant", time.Now())

	w := serve(NewSystemHandler(d, cfg).DBInfo, testutil.MakeRequest("GET", "/debug/db-info", nil, nil))
	testutil.AssertStatus(t, w, http.StatusOK)

	resp := decodeMap(t, w)
	assert.Equal(t, "success", resp["status"])
	assert.Equal(t, "sqlite", resp["database_type"])
	assert.Equal(t, "sqlite", resp["database_url_prefix"])
	assert.NotContains(t, w.Body.String(), "secret-path")

	counts, ok := resp["counts"].(map[string]any)
	require.True(t, ok)
	assert.EqualValues(t, 1, counts["committees"])
	assert.EqualValues(t, 1, counts["bills"])
	assert.EqualValues(t, 2, counts["bill_compliance"])
}

func TestDBInfoClosedDatabase(t *testing.T) {
	d := testutil.SetupTestDB(t)
	require.NoError(t, d.Close())

	w := serve(NewSystemHandler(d, testutil.GetTestConfig()).DBInfo, testutil.MakeRequest("GET", "/debug/db-info", nil, nil))
	testutil.AssertStatus(t, w, http.StatusInternalServerError)
	assert.Equal(t, "error", decodeMap(t, w)["status"])
}
