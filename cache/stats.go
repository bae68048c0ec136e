// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/sync/singleflight"

	"github.com/beaconhill/compliance-tracker/compliance"
	"github.com/beaconhill/compliance-tracker/db"
	"github.com/beaconhill/compliance-tracker/metrics"
	"github.com/beaconhill/compliance-tracker/models"
)

// Source names the tier that answered a Get.
type Source string

const (
	SourceMemory   Source = "memory"
	SourceDatabase Source = "database"
	SourceComputed Source = "miss"
)

// DefaultTTL is how long the memory tier trusts its entry.
const DefaultTTL = 5 * time.Minute

const globalStatsKey = "global_stats"

type entry struct {
	stats   models.GlobalStats
	marker  string
	expires time.Time
}

// StatsCache caches compliance.GlobalStats in process memory and in the
// stats_cache table. The table row is only trusted while its source marker
// matches the current state of bill_compliance.
type StatsCache struct {
	db  *db.DB
	ttl time.Duration
	now func() time.Time

	mu    sync.Mutex
	entry *entry
	// gen counts invalidations. A load only stores its result when no
	// invalidation happened while it ran.
	gen uint64

	group singleflight.Group
}

// New returns a cache over d. A non-positive ttl means DefaultTTL.
func New(d *db.DB, ttl time.Duration) *StatsCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &StatsCache{db: d, ttl: ttl, now: time.Now}
}

// Get returns the global stats and the tier that produced them. Concurrent
// misses share one computation.
func (c *StatsCache) Get(ctx context.Context) (models.GlobalStats, Source, error) {
	if stats, ok := c.fromMemory(); ok {
		metrics.RecordCacheLookup(string(SourceMemory))
		return stats, SourceMemory, nil
	}

	type result struct {
		stats  models.GlobalStats
		source Source
	}
	v, err, _ := c.group.Do(globalStatsKey, func() (any, error) {
		stats, source, err := c.load(context.WithoutCancel(ctx))
		return result{stats, source}, err
	})
	if err != nil {
		return models.GlobalStats{}, "", err
	}
	res := v.(result)
	metrics.RecordCacheLookup(string(res.source))
	return res.stats, res.source, nil
}

// Invalidate drops the memory entry. The database row stays and is
// revalidated against the source marker on the next Get.
func (c *StatsCache) Invalidate() {
	c.mu.Lock()
	c.entry = nil
	c.gen++
	c.mu.Unlock()
}

func (c *StatsCache) fromMemory() (models.GlobalStats, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.entry == nil || !c.now().Before(c.entry.expires) {
		return models.GlobalStats{}, false
	}
	return c.entry.stats, true
}

func (c *StatsCache) generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

// store keeps stats in memory unless the cache was invalidated after gen
// was read.
func (c *StatsCache) store(stats models.GlobalStats, marker string, gen uint64) {
	expires := c.now().Add(c.ttl)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		return
	}
	c.entry = &entry{stats: stats, marker: marker, expires: expires}
}

func (c *StatsCache) load(ctx context.Context) (models.GlobalStats, Source, error) {
	gen := c.generation()
	marker, err := compliance.SourceMarker(ctx, c.db)
	if err != nil {
		return models.GlobalStats{}, "", err
	}

	if stats, ok := c.readRow(ctx, marker); ok {
		c.store(stats, marker, gen)
		return stats, SourceDatabase, nil
	}

	stats, err := compliance.GlobalStats(ctx, c.db)
	if err != nil {
		return models.GlobalStats{}, "", err
	}
	if err := c.writeRow(ctx, stats, marker); err != nil {
		metrics.StatsCacheErrors.Inc()
		slog.WarnContext(ctx, "failed to persist stats cache", "error", err)
	}
	c.store(stats, marker, gen)
	return stats, SourceComputed, nil
}

// readRow returns the persisted stats when the row exists, decodes and was
// computed from the same data as marker describes.
func (c *StatsCache) readRow(ctx context.Context, marker string) (models.GlobalStats, bool) {
	var payload, stored string
	err := c.db.QueryRowContext(ctx, `
		SELECT payload, source_marker FROM stats_cache WHERE cache_key = ?
	`, globalStatsKey).Scan(&payload, &stored)
	if errors.Is(err, sql.ErrNoRows) {
		return models.GlobalStats{}, false
	}
	if err != nil {
		metrics.StatsCacheErrors.Inc()
		slog.WarnContext(ctx, "failed to read stats cache", "error", err)
		return models.GlobalStats{}, false
	}
	if stored != marker {
		return models.GlobalStats{}, false
	}

	var stats models.GlobalStats
	if err := json.Unmarshal([]byte(payload), &stats); err != nil {
		metrics.StatsCacheErrors.Inc()
		slog.WarnContext(ctx, "discarding corrupt stats cache row", "error", err)
		return models.GlobalStats{}, false
	}
	return stats, true
}

func (c *StatsCache) writeRow(ctx context.Context, stats models.GlobalStats, marker string) error {
	payload, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("failed to encode stats: %w", err)
	}
	_, err = c.db.ExecContext(ctx, `
		INSERT INTO stats_cache (cache_key, payload, source_marker, computed_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (cache_key) DO UPDATE SET
			payload = excluded.payload,
			source_marker = excluded.source_marker,
			computed_at = excluded.computed_at
	`, globalStatsKey, string(payload), marker, db.FormatTime(c.now()))
	return err
}
