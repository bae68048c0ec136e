// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package compliance holds the queries and calculations behind the dashboard.

# Deduplication

Scanners append a bill_compliance row for every bill on every scan. The
current state of a bill in a committee is its newest row:

	ROW_NUMBER() OVER (PARTITION BY bill_id, committee_id ORDER BY generated_at DESC) = 1

GlobalStats, CommitteeStats and ListBills all read through that ranking.
The dashboard shows incomplete bills as non-compliant, so counts merge the
two and NormalizeState rewrites the state.

# Diff Reports

Each scan may carry a diff_report describing what changed since the
previous scan. Newer scanners send one report per interval:

	{"daily": {...}, "weekly": {...}, "monthly": {...}}

SelectReport picks one interval (or passes a flat report through) and
Aggregate folds the newest report of every committee into one.

# Comparing Dates

CompareDates recomputes a committee's compliance rate at two dates from the
raw rows and diffs the two snapshots bill by bill. It also loads the diff
report the scanner stored, so a mismatch between the stored and the
recomputed delta shows up as Variance.

# Maintenance

Cleanup prunes duplicates (newest row per committee and bill; newest scan
metadata per committee and day) and refuses to delete more than
MaxCleanupRows rows from a table in one run.
*/
package compliance
