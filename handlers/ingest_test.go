// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beaconhill/compliance-tracker/cache"
	"github.com/beaconhill/compliance-tracker/compliance"
	"github.com/beaconhill/compliance-tracker/db"
	"github.com/beaconhill/compliance-tracker/testutil"
)

func newTestIngest(t *testing.T) (*IngestHandler, *db.DB, *cache.StatsCache) {
	t.Helper()
	d := testutil.SetupTestDB(t)
	stats := cache.New(d, time.Hour)
	h := NewIngestHandler(d, stats)
	h.now = func() time.Time { return scanTime }
	return h, d, stats
}

func rawRequest(path, body string) *http.Request {
	req := httptest.NewRequest("POST", path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func assertStatusError(t *testing.T, w *httptest.ResponseRecorder, status int, msg string) {
	t.Helper()
	testutil.AssertStatus(t, w, status)
	resp := decodeMap(t, w)
	assert.Equal(t, "error", resp["status"])
	assert.Equal(t, msg, resp["message"])
}

func TestIngestBasicRejects(t *testing.T) {
	h, _, _ := newTestIngest(t)

	tests := []struct {
		name string
		path string
		body string
		msg  string
	}{
		{"empty", "/ingest/basic", "", "No JSON data provided"},
		{"null", "/ingest/basic", "null", "No JSON data provided"},
		{"empty object", "/ingest/basic", "{}", "No JSON data provided"},
		{"array", "/ingest/basic", "[1]", "Expected JSON object with committee_id and items"},
		{"garbage", "/ingest/basic", "{nope", "Invalid JSON"},
		{"no committee", "/ingest/basic", `{"items": []}`, "committee_id is required"},
		{"no items", "/ingest/basic", `{"committee_id": "J1", "items": {}}`, "Expected 'items' or 'bills' to be an array"},
		{"item without id", "/ingest/basic", `{"committee_id": "J1", "items": [{"state": "compliant"}]}`, "invalid input: item 0 has no bill_id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assertStatusError(t, serve(h.Basic, rawRequest(tt.path, tt.body)), http.StatusBadRequest, tt.msg)
		})
	}
}

func TestIngestBasic(t *testing.T) {
	h, d, stats := newTestIngest(t)
	ctx := context.Background()

	_, src, err := stats.Get(ctx)
	require.NoError(t, err)
	require.Equal(t, cache.SourceComputed, src)

	body := `{
		"committee_id": "J50",
		"bills": [
			{"bill_id": "H10", "state": "compliant", "reported_out": true},
			{"bill_id": "H11", "state": "non-compliant"}
		],
		"diff_report": {"compliance_delta": 5.0},
		"analysis": {"summary": "better"}
	}`
	w := serve(h.Basic, rawRequest("/ingest/basic", body))
	testutil.AssertStatus(t, w, http.StatusOK)

	var resp ingestResponse
	testutil.AssertJSON(t, w, &resp)
	assert.Equal(t, "success", resp.Status)
	assert.Equal(t, "Successfully imported 2 bills for committee J50", resp.Message)
	require.NotNil(t, resp.ImportedCount)
	assert.Equal(t, 2, *resp.ImportedCount)

	// memory tier dropped; the stored row no longer matches the data
	s, src, err := stats.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, cache.SourceComputed, src)
	assert.Equal(t, 2, s.TotalBills)

	md, err := compliance.CommitteeMetadata(ctx, d, "J50")
	require.NoError(t, err)
	require.NotNil(t, md.Analysis)
	assert.JSONEq(t, `{"summary": "better"}`, *md.Analysis)
	assert.NotNil(t, md.DiffReport)
}

func TestIngestBasicQueryCommittee(t *testing.T) {
	h, d, _ := newTestIngest(t)

	w := serve(h.Basic, rawRequest("/ingest/basic?committee_id=J60", `{"items": [{"bill_id": "S1"}]}`))
	testutil.AssertStatus(t, w, http.StatusOK)

	bills, err := compliance.ListBills(context.Background(), d, compliance.BillFilter{CommitteeIDs: []string{"J60"}})
	require.NoError(t, err)
	require.Len(t, bills, 1)
	assert.Equal(t, "unknown", bills[0].State)
}

func TestIngestCache(t *testing.T) {
	h, d, stats := newTestIngest(t)
	ctx := context.Background()
	_, _, err := stats.Get(ctx)
	require.NoError(t, err)

	assertStatusError(t, serve(h.Cache, rawRequest("/ingest/cache", `"text"`)), http.StatusBadRequest, "Expected JSON object with cache data")

	body := `{
		"committee_contacts": {
			"J70": {"committee_id": "J70", "name": "Joint Committee on Ethics", "chamber": "Joint", "url": "https://example.org/J70"}
		}
	}`
	w := serve(h.Cache, rawRequest("/ingest/cache", body))
	testutil.AssertStatus(t, w, http.StatusOK)
	assert.Equal(t, "Successfully imported cache data", decodeMap(t, w)["message"])

	c, err := compliance.GetCommittee(ctx, d, "J70")
	require.NoError(t, err)
	assert.Equal(t, "Joint Committee on Ethics", c.Name)

	_, src, err := stats.Get(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, cache.SourceMemory, src, "cache ingest drops the memory entry")
}

func TestIngestChangelog(t *testing.T) {
	h, d, _ := newTestIngest(t)

	assertStatusError(t, serve(h.Changelog, rawRequest("/ingest/changelog", `{"changelog": []}`)), http.StatusBadRequest, "current_version is required")
	assertStatusError(t, serve(h.Changelog, rawRequest("/ingest/changelog", `{"current_version": "1.0", "changelog": "x"}`)), http.StatusBadRequest, "Expected 'changelog' to be an array")

	body := `{
		"current_version": "2.0.0",
		"user_agent": "scanner/2.0",
		"changelog": [
			{"version": "2.0.0", "date": "2025-02-01", "changes": {"added": ["votes"], "fixed": "typo"}},
			{"version": "", "date": "2025-01-01", "changes": {"added": ["skipped"]}}
		]
	}`
	w := serve(h.Changelog, rawRequest("/ingest/changelog", body))
	testutil.AssertStatus(t, w, http.StatusOK)

	var resp changelogResponse
	testutil.AssertJSON(t, w, &resp)
	assert.Equal(t, "Changelog received successfully", resp.Message)
	assert.Equal(t, "2.0.0", resp.Version)
	assert.Equal(t, 1, resp.VersionsImported)
	assert.Equal(t, 2, resp.EntriesImported)

	versions, err := compliance.ListChangelog(context.Background(), d, 10, "2.0.0")
	require.NoError(t, err)
	assert.Equal(t, []string{"typo"}, versions[0].Changes["fixed"])

	w = serve(h.Changelog, rawRequest("/ingest/changelog", `{"current_version": "3", "changelog": [{"version": "3", "date": "d", "changes": {"misc": ["x"]}}]}`))
	testutil.AssertStatus(t, w, http.StatusBadRequest)
}
