// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"github.com/beaconhill/compliance-tracker/compliance"
	"github.com/beaconhill/compliance-tracker/models"
)

func (a *app) changelogCmd() *cobra.Command {
	var (
		limit   int
		version string
		plain   bool
	)

	cmd := &cobra.Command{
		Use:   "changelog",
		Short: "Show the scanner changelog received through ingest",
		Long: `Show the scanner changelog received through ingest.

Examples:
  tracker changelog
  tracker changelog --limit 3
  tracker changelog --version 2.1.0 --plain`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if limit < 1 {
				return fmt.Errorf("--limit must be positive, got %d", limit)
			}
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			d, err := a.openDB(ctx)
			if err != nil {
				return err
			}
			defer d.Close()

			versions, err := compliance.ListChangelog(ctx, d, limit, version)
			if err != nil {
				return err
			}
			md := changelogMarkdown(versions)
			if plain {
				_, err := io.WriteString(out, md)
				return err
			}

			r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(80))
			if err != nil {
				return fmt.Errorf("failed to create renderer: %w", err)
			}
			rendered, err := r.Render(md)
			if err != nil {
				return fmt.Errorf("failed to render changelog: %w", err)
			}
			_, err = io.WriteString(out, rendered)
			return err
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 10, "Number of versions to show")
	cmd.Flags().StringVar(&version, "version", "", "Show a single version")
	cmd.Flags().BoolVar(&plain, "plain", false, "Print Markdown without terminal styling")
	return cmd
}

// changelogMarkdown renders versions newest first with change categories
// in display order.
func changelogMarkdown(versions []models.ChangelogVersion) string {
	var b strings.Builder
	b.WriteString("# Changelog\n\n")
	if len(versions) == 0 {
		b.WriteString("No changelog entries.\n")
		return b.String()
	}
	for _, v := range versions {
		fmt.Fprintf(&b, "## %s (%s)\n\n", v.Version, v.Date)
		if v.UserAgent != nil {
			fmt.Fprintf(&b, "_Received %s from %s_\n\n", v.ReceivedAt, *v.UserAgent)
		}
		for _, category := range models.ChangelogCategories {
			if len(v.Changes[category]) == 0 {
				continue
			}
			fmt.Fprintf(&b, "### %s\n\n", strings.ToUpper(category[:1])+category[1:])
			for _, change := range v.Changes[category] {
				fmt.Fprintf(&b, "- %s\n", change)
			}
			b.WriteString("\n")
		}
	}
	return b.String()
}
