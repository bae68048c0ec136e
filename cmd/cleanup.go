// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/beaconhill/compliance-tracker/compliance"
)

func (a *app) cleanupCmd() *cobra.Command {
	var opts compliance.CleanupOptions
	var statsOnly bool

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Remove duplicate compliance rows",
		Long: `Remove duplicate compliance rows.

Keeps the newest bill_compliance row per (committee, bill) and the newest
scan metadata per committee per day. A table that would lose more than
1,000,000 rows is left untouched.

Examples:
  # Show duplication without deleting
  tracker cleanup --stats-only

  # Preview a cleanup of rows older than 30 days
  tracker cleanup --dry-run --keep-days 30`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			d, err := a.openDB(ctx)
			if err != nil {
				return err
			}
			defer d.Close()

			before, err := compliance.Stats(ctx, d)
			if err != nil {
				return err
			}
			printStats(out, before)
			if statsOnly {
				return nil
			}

			res, err := compliance.Cleanup(ctx, d, opts)
			if err != nil {
				return err
			}

			if opts.DryRun {
				fmt.Fprintf(out, "\nDry run: would delete %d bill_compliance and %d compliance_scan_metadata rows\n",
					res.BillCompliance, res.ScanMetadata)
				return nil
			}
			if res.Total() == 0 {
				fmt.Fprintln(out, "\nNo cleanup needed")
				return nil
			}

			after, err := compliance.Stats(ctx, d)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "\nDeleted %d bill_compliance rows (%d remain)\n", res.BillCompliance, after.BillCompliance.Total)
			fmt.Fprintf(out, "Deleted %d compliance_scan_metadata rows (%d remain)\n", res.ScanMetadata, after.ScanMetadata.Total)
			return nil
		},
	}

	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "Count duplicates without deleting")
	cmd.Flags().IntVar(&opts.KeepDays, "keep-days", 0, "Only clean rows older than this many days")
	cmd.Flags().BoolVar(&statsOnly, "stats-only", false, "Print statistics and exit")
	return cmd
}

func printStats(out io.Writer, s compliance.DatabaseStats) {
	fmt.Fprintln(out, "bill_compliance:")
	fmt.Fprintf(out, "  Total entries:               %d\n", s.BillCompliance.Total)
	fmt.Fprintf(out, "  Unique (committee/bill/day): %d\n", s.BillCompliance.Unique)
	fmt.Fprintf(out, "  Duplicates:                  %d\n", s.BillCompliance.Duplicates())
	fmt.Fprintln(out, "compliance_scan_metadata:")
	fmt.Fprintf(out, "  Total entries:               %d\n", s.ScanMetadata.Total)
	fmt.Fprintf(out, "  Unique (committee/day):      %d\n", s.ScanMetadata.Unique)
	fmt.Fprintf(out, "  Duplicates:                  %d\n", s.ScanMetadata.Duplicates())
	if s.Oldest != nil && s.Newest != nil {
		fmt.Fprintf(out, "  Date range:                  %s to %s\n", *s.Oldest, *s.Newest)
	}
}
