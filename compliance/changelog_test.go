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

func decodeChangelog(t *testing.T, s string) ChangelogPayload {
	t.Helper()
	var p ChangelogPayload
	require.NoError(t, json.Unmarshal([]byte(s), &p))
	return p
}

func TestImportChangelog(t *testing.T) {
	d := testutil.SetupTestDB(t)
	ctx := context.Background()

	p := decodeChangelog(t, `{
		"current_version": "1.2.0",
		"user_agent": "scanner/1.2.0",
		"changelog": [
			{"version": "1.2.0", "date": "2024-11-10", "changes": {"fixed": ["crash on empty page"], "added": ["weekly reports", "monthly reports"]}},
			{"version": "1.1.0", "date": "2024-10-01", "changes": {"changed": "single entry"}},
			{"version": "", "date": "2024-09-01", "changes": {"added": ["ignored"]}}
		]
	}`)

	res, err := ImportChangelog(ctx, d, p, base)
	require.NoError(t, err)
	assert.Equal(t, ChangelogResult{Versions: 2, Entries: 4}, res)

	v, err := ListChangelog(ctx, d, 10, "1.2.0")
	require.NoError(t, err)
	require.Len(t, v, 1)
	assert.Equal(t, "2024-11-10", v[0].Date)
	require.NotNil(t, v[0].UserAgent)
	assert.Equal(t, "scanner/1.2.0", *v[0].UserAgent)
	assert.Equal(t, []string{"weekly reports", "monthly reports"}, v[0].Changes["added"])
	assert.Equal(t, []string{"crash on empty page"}, v[0].Changes["fixed"])

	v, err = ListChangelog(ctx, d, 10, "1.1.0")
	require.NoError(t, err)
	assert.Equal(t, map[string][]string{"changed": {"single entry"}}, v[0].Changes)

	// pushing 1.2.0 again replaces its entries
	again := decodeChangelog(t, `{"changelog": [{"version": "1.2.0", "date": "2024-11-11", "changes": {"security": ["patched"]}}]}`)
	res, err = ImportChangelog(ctx, d, again, base.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, ChangelogResult{Versions: 0, Entries: 1}, res)

	all, err := ListChangelog(ctx, d, 10, "")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "1.2.0", all[0].Version, "most recently received first")
	assert.Equal(t, "2024-11-11", all[0].Date)
	assert.Equal(t, map[string][]string{"security": {"patched"}}, all[0].Changes)
	assert.Nil(t, all[0].UserAgent)
	assert.Equal(t, db.FormatTime(base.Add(time.Hour)), all[0].ReceivedAt)

	limited, err := ListChangelog(ctx, d, 1, "")
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestImportChangelogUnknownCategory(t *testing.T) {
	d := testutil.SetupTestDB(t)
	ctx := context.Background()

	p := decodeChangelog(t, `{"changelog": [
		{"version": "1.0.0", "date": "2024-01-01", "changes": {"added": ["a"]}},
		{"version": "1.0.1", "date": "2024-01-02", "changes": {"improved": ["b"]}}
	]}`)
	_, err := ImportChangelog(ctx, d, p, base)
	assert.True(t, errors.Is(err, ErrInvalidInput))

	all, err := ListChangelog(ctx, d, 10, "")
	require.NoError(t, err)
	assert.Empty(t, all, "nothing is stored when any release is rejected")
	assert.NotNil(t, all)
}

func TestImportChangelogSkippedReleaseNotValidated(t *testing.T) {
	d := testutil.SetupTestDB(t)
	ctx := context.Background()

	p := decodeChangelog(t, `{"changelog": [
		{"version": "1.0.0", "date": "2024-01-01", "changes": {"added": ["a"]}},
		{"version": "1.0.1", "changes": {"improved": ["b"]}},
		{"date": "2024-01-03", "changes": {"renamed": ["c"]}}
	]}`)
	res, err := ImportChangelog(ctx, d, p, base)
	require.NoError(t, err)
	assert.Equal(t, ChangelogResult{Versions: 1, Entries: 1}, res)

	all, err := ListChangelog(ctx, d, 10, "")
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "1.0.0", all[0].Version)
}

func TestListChangelogMissing(t *testing.T) {
	d := testutil.SetupTestDB(t)
	_, err := ListChangelog(context.Background(), d, 10, "9.9.9")
	assert.True(t, errors.Is(err, db.ErrNotFound))
}

func TestOrderedCategories(t *testing.T) {
	got := orderedCategories(map[string]StringList{
		"security": nil, "zzz": nil, "added": nil, "aaa": nil, "fixed": nil,
	})
	assert.Equal(t, []string{"added", "fixed", "security", "aaa", "zzz"}, got)
}
