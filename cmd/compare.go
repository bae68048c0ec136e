// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package cmd

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/beaconhill/compliance-tracker/compliance"
)

func (a *app) compareCmd() *cobra.Command {
	var (
		listCommittees bool
		listDates      string
		jsonOutput     bool
	)

	cmd := &cobra.Command{
		Use:   "compare <committee_id> <date1> <date2>",
		Short: "Compare a committee's compliance between two dates",
		Long: `Compare a committee's compliance between two dates.

Each date resolves to the newest scan on or before the end of that day.
The stored diff report of the later scan is checked against the
recomputed rate change.

Examples:
  tracker compare --list-committees
  tracker compare --list-dates J33
  tracker compare J33 2025-01-06 2025-01-13
  tracker compare J33 2025-01-06 2025-01-13 --json`,
		Args: func(cmd *cobra.Command, args []string) error {
			if listCommittees || listDates != "" {
				return cobra.NoArgs(cmd, args)
			}
			return cobra.ExactArgs(3)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			d, err := a.openDB(ctx)
			if err != nil {
				return err
			}
			defer d.Close()

			switch {
			case listCommittees:
				committees, err := compliance.ListCommitteesByID(ctx, d)
				if err != nil {
					return err
				}
				for _, c := range committees {
					fmt.Fprintf(out, "%-8s %-8s %s\n", c.CommitteeID, c.Chamber, c.Name)
				}
				return nil

			case listDates != "":
				dates, err := compliance.ScanDates(ctx, d, listDates)
				if err != nil {
					return err
				}
				if len(dates) == 0 {
					fmt.Fprintf(out, "No scans found for %s\n", listDates)
					return nil
				}
				for _, sd := range dates {
					fmt.Fprintf(out, "%s  %d bills\n", sd.Date, sd.BillCount)
				}
				return nil
			}

			c, err := compliance.CompareDates(ctx, d, args[0], args[1], args[2])
			if errors.Is(err, compliance.ErrNoScan) {
				return fmt.Errorf("%w; run with --list-dates %s", err, args[0])
			}
			if err != nil {
				return err
			}

			if jsonOutput {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(c)
			}
			printComparison(out, c)
			return nil
		},
	}

	cmd.Flags().BoolVar(&listCommittees, "list-committees", false, "List committees and exit")
	cmd.Flags().StringVar(&listDates, "list-dates", "", "List recent scan dates for a committee and exit")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	return cmd
}

func printComparison(out io.Writer, c *compliance.Comparison) {
	fmt.Fprintf(out, "%s (%s)\n", c.CommitteeName, c.CommitteeID)
	fmt.Fprintf(out, "%s -> %s (scans %s, %s)\n\n", c.Date1, c.Date2, c.Scan1, c.Scan2)

	for _, row := range []struct {
		label string
		s     compliance.RateSummary
	}{{c.Date1, c.Before}, {c.Date2, c.After}} {
		fmt.Fprintf(out, "%s: %.2f%% (%d of %d; %d compliant, %d unknown, %d non-compliant, %d incomplete)\n",
			row.label, row.s.Rate, row.s.CompliantCount, row.s.Total,
			row.s.Compliant, row.s.Unknown, row.s.NonCompliant, row.s.Incomplete)
	}
	fmt.Fprintf(out, "Delta: %+.1f points\n", c.Delta)
	if c.AltDelta != nil {
		fmt.Fprintf(out, "Alternative delta (failing share): %+.1f points\n", *c.AltDelta)
	}

	printBills(out, "New bills", c.NewBills)
	printBills(out, "Removed bills", c.RemovedBills)
	printChanges(out, "Dropped to non-compliant", c.Dropped)
	printChanges(out, "Improved", c.Improved)
	printChanges(out, "All state changes", c.StateChanges)

	fmt.Fprintln(out)
	switch {
	case c.Stored == nil:
		fmt.Fprintln(out, "No stored diff report for the later scan")
	case c.Stored.Report == nil || c.Stored.Report.ComplianceDelta == nil:
		fmt.Fprintf(out, "Stored diff report (%s) has no compliance delta\n", c.Stored.ScanDate)
	default:
		fmt.Fprintf(out, "Stored diff report (%s): %+.1f points\n", c.Stored.ScanDate, *c.Stored.Report.ComplianceDelta)
		if c.Variance != nil {
			fmt.Fprintf(out, "Variance from recomputed delta: %+.1f points\n", *c.Variance)
		} else {
			fmt.Fprintln(out, "Matches the recomputed delta")
		}
		if !c.DatesMatch {
			fmt.Fprintln(out, "Stored report compares different scan dates")
		}
	}
}

func printBills(out io.Writer, title string, bills []string) {
	if len(bills) == 0 {
		return
	}
	fmt.Fprintf(out, "\n%s (%d): %s\n", title, len(bills), strings.Join(bills, ", "))
}

func printChanges(out io.Writer, title string, changes []compliance.StateChange) {
	if len(changes) == 0 {
		return
	}
	fmt.Fprintf(out, "\n%s (%d):\n", title, len(changes))
	for _, c := range changes {
		fmt.Fprintf(out, "  %s: %s -> %s\n", c.BillID, c.From, c.To)
	}
}
