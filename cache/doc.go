// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package cache keeps GET /api/stats cheap.

The global statistics query ranks every bill_compliance row, so its result is
kept in two places:

  - process memory, trusted for a TTL (cache.stats_ttl);
  - the stats_cache table, trusted while its source_marker equals the row
    count and newest generated_at of bill_compliance.

The database tier survives restarts and lets several processes share one
computation. Ingest handlers call Invalidate after each write so the next
Get rechecks the marker instead of serving the memory entry.
*/
package cache
