// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/beaconhill/compliance-tracker/db"
	"github.com/beaconhill/compliance-tracker/testutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var t0 = time.Date(2024, 11, 9, 12, 0, 0, 0, time.UTC)

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

func newTestCache(t *testing.T) (*StatsCache, *db.DB, *clock) {
	t.Helper()
	d := testutil.SetupTestDB(t)
	testutil.CreateTestCommittee(t, d, "J1", "Housing", "Joint")
	testutil.AddTestCompliance(t, d, "J1", "B1", "compliant", t0)

	clk := &clock{now: t0}
	c := New(d, time.Minute)
	c.now = clk.Now
	return c, d, clk
}

func TestGetTiers(t *testing.T) {
	c, d, clk := newTestCache(t)
	ctx := context.Background()

	stats, src, err := c.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, SourceComputed, src)
	assert.Equal(t, 1, stats.CompliantBills)

	_, src, err = c.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, SourceMemory, src)

	// nothing changed underneath, the persisted row is still valid
	c.Invalidate()
	stats, src, err = c.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, SourceDatabase, src)
	assert.Equal(t, 1, stats.CompliantBills)

	clk.now = clk.now.Add(2 * time.Minute)
	_, src, err = c.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, SourceDatabase, src, "expired memory falls through to the row")

	testutil.AddTestCompliance(t, d, "J1", "B2", "non-compliant", t0.Add(time.Hour))
	_, src, err = c.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, SourceMemory, src, "memory is trusted until invalidated or expired")

	c.Invalidate()
	stats, src, err = c.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, SourceComputed, src, "marker changed")
	assert.Equal(t, 2, stats.TotalBills)
	assert.Equal(t, 1, stats.NonCompliantBills)
}

func TestGetSharedAcrossInstances(t *testing.T) {
	c, d, _ := newTestCache(t)
	ctx := context.Background()

	_, _, err := c.Get(ctx)
	require.NoError(t, err)

	other := New(d, time.Minute)
	stats, src, err := other.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, SourceDatabase, src)
	assert.Equal(t, 1, stats.TotalBills)
}

func TestCorruptRowIsRecomputed(t *testing.T) {
	c, d, _ := newTestCache(t)
	ctx := context.Background()

	_, _, err := c.Get(ctx)
	require.NoError(t, err)
	_, err = d.ExecContext(ctx, `UPDATE stats_cache SET payload = '{oops' WHERE cache_key = ?`, globalStatsKey)
	require.NoError(t, err)

	c.Invalidate()
	stats, src, err := c.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, SourceComputed, src)
	assert.Equal(t, 1, stats.TotalBills)

	var payload string
	require.NoError(t, d.QueryRowContext(ctx, `SELECT payload FROM stats_cache WHERE cache_key = ?`, globalStatsKey).Scan(&payload))
	assert.NotEqual(t, "{oops", payload, "row is rewritten")
}

func TestInvalidateDuringLoad(t *testing.T) {
	c, d, _ := newTestCache(t)
	ctx := context.Background()

	// the first clock read happens after the stats were computed
	var once sync.Once
	c.now = func() time.Time {
		once.Do(func() {
			testutil.AddTestCompliance(t, d, "J1", "B2", "compliant", t0.Add(time.Hour))
			c.Invalidate()
		})
		return t0
	}

	stats, src, err := c.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, SourceComputed, src)
	assert.Equal(t, 1, stats.TotalBills)

	stats, src, err = c.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, SourceComputed, src, "result computed before the invalidation is not kept")
	assert.Equal(t, 2, stats.TotalBills)

	_, src, err = c.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, SourceMemory, src)
}

func TestGetCanceledCaller(t *testing.T) {
	c, _, _ := newTestCache(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	stats, src, err := c.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, SourceComputed, src)
	assert.Equal(t, 1, stats.TotalBills)
}

func TestGetConcurrent(t *testing.T) {
	c, _, _ := newTestCache(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			stats, _, err := c.Get(ctx)
			if err == nil && stats.TotalBills != 1 {
				t.Errorf("Expected 1 bill, got %d", stats.TotalBills)
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}
}

func TestNewDefaultTTL(t *testing.T) {
	c := New(nil, 0)
	assert.Equal(t, DefaultTTL, c.ttl)
}
