// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/beaconhill/compliance-tracker/db"
)

func (a *app) optimizeCmd() *cobra.Command {
	var createIndex, createView, refreshView, vacuum, status, all bool

	cmd := &cobra.Command{
		Use:   "optimize",
		Short: "Add PostgreSQL indexes and views for the dashboard queries",
		Long: `Add PostgreSQL indexes and views for the dashboard queries.

The index speeds up "newest row per bill" lookups on bill_compliance. The
materialized view precomputes them and must be refreshed after scans.
SQLite databases are not supported.

Examples:
  tracker optimize --status
  tracker optimize --all
  tracker optimize --refresh-view`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if all {
				status, createIndex, createView, vacuum = true, true, true, true
			}
			if !createIndex && !createView && !refreshView && !vacuum && !status {
				return cmd.Help()
			}
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			d, err := a.openDB(ctx)
			if err != nil {
				return err
			}
			defer d.Close()

			if status {
				s, err := db.Optimization(ctx, d)
				if err != nil {
					return err
				}
				printOptimization(out, s)
			}
			if createIndex {
				created, err := db.CreateLatestIndex(ctx, d)
				if err != nil {
					return err
				}
				if created {
					fmt.Fprintf(out, "Created index %s\n", db.LatestIndex)
				} else {
					fmt.Fprintf(out, "Index %s already exists\n", db.LatestIndex)
				}
			}
			if createView {
				n, err := db.CreateLatestView(ctx, d)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Created view %s with %d rows\n", db.LatestView, n)
			}
			if refreshView {
				n, err := db.RefreshLatestView(ctx, d)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Refreshed view %s (%d rows)\n", db.LatestView, n)
			}
			if vacuum {
				if err := db.VacuumAnalyze(ctx, d); err != nil {
					return err
				}
				fmt.Fprintln(out, "Vacuumed and analyzed bill_compliance")
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.BoolVar(&createIndex, "create-index", false, "Create the newest-row index")
	f.BoolVar(&createView, "create-view", false, "Create or rebuild the materialized view")
	f.BoolVar(&refreshView, "refresh-view", false, "Refresh the materialized view")
	f.BoolVar(&vacuum, "vacuum", false, "Run VACUUM ANALYZE")
	f.BoolVar(&status, "status", false, "Show optimization status")
	f.BoolVar(&all, "all", false, "Status, index, view and vacuum")
	return cmd
}

func printOptimization(out io.Writer, s db.OptimizeStatus) {
	yesNo := func(b bool) string {
		if b {
			return "present"
		}
		return "missing"
	}
	fmt.Fprintf(out, "Index %s: %s\n", db.LatestIndex, yesNo(s.HasIndex))
	fmt.Fprintf(out, "View %s: %s", db.LatestView, yesNo(s.HasView))
	if s.HasView {
		fmt.Fprintf(out, " (%d rows)", s.ViewRows)
	}
	fmt.Fprintln(out)
	fmt.Fprintf(out, "bill_compliance: %d rows, %d live tuples, %d dead tuples\n", s.TableRows, s.LiveTuples, s.DeadTuples)
	if s.LastVacuum != nil {
		fmt.Fprintf(out, "Last vacuum: %s\n", *s.LastVacuum)
	}
	if s.LastAnalyze != nil {
		fmt.Fprintf(out, "Last analyze: %s\n", *s.LastAnalyze)
	}
}
