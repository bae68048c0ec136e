// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/beaconhill/compliance-tracker/auth"
	"github.com/beaconhill/compliance-tracker/cliparse"
	"github.com/beaconhill/compliance-tracker/db"
	"github.com/beaconhill/compliance-tracker/middleware"
	"github.com/beaconhill/compliance-tracker/models"
)

// errUnhealthy is returned by doctor when any check fails.
var errUnhealthy = errors.New("some checks failed")

// checkResult is the outcome of one doctor check. Lines prefixed with "!"
// are warnings.
type checkResult struct {
	name  string
	ok    bool
	lines []string
}

func (r *checkResult) add(format string, args ...any) {
	r.lines = append(r.lines, fmt.Sprintf(format, args...))
}

func (r *checkResult) warn(format string, args ...any) {
	r.lines = append(r.lines, "! "+fmt.Sprintf(format, args...))
}

func (a *app) doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration, database and CORS",
		Long: `Check configuration, database and CORS.

Exits non-zero if a check fails. Warnings do not fail the run.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			checks := []func(context.Context) checkResult{
				func(context.Context) checkResult { return checkConfig(a.cfg) },
				a.checkDatabase,
				func(context.Context) checkResult { return checkCORS(a.cfg) },
			}

			results := make([]checkResult, len(checks))
			g, gctx := errgroup.WithContext(ctx)
			for i, check := range checks {
				g.Go(func() error {
					results[i] = check(gctx)
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			healthy := printResults(out, results)
			if !healthy {
				return errUnhealthy
			}
			fmt.Fprintln(out, "\nAll checks passed")
			return nil
		},
	}
}

func checkConfig(cfg cliparse.Config) checkResult {
	r := checkResult{name: "Configuration", ok: true}
	if err := cfg.Validate(); err != nil {
		r.ok = false
		r.add("invalid: %v", err)
	}

	r.add("environment: %s", cfg.Env)
	r.add("database: %s (%s)", cliparse.RedactURL(cfg.Database.URL), cfg.Database.Type)
	optional := []struct {
		name string
		set  bool
	}{
		{"ADMIN_EMAIL", cfg.Admin.Email != ""},
		{"ADMIN_PASSWORD", cfg.Admin.Password != ""},
		{"MAIL_SERVER", cfg.Mail.Server != ""},
		{"MAIL_USERNAME", cfg.Mail.Username != ""},
		{"CORS_ORIGINS", len(cfg.Security.CORSOrigins) > 0},
	}
	for _, o := range optional {
		if !o.set {
			r.warn("%s not set (optional)", o.name)
		}
	}
	if cfg.Mail.Server == "" {
		r.warn("emails are logged instead of sent")
	}
	return r
}

func (a *app) checkDatabase(ctx context.Context) checkResult {
	r := checkResult{name: "Database", ok: true}
	fail := func(err error) checkResult {
		r.ok = false
		r.add("error: %v", err)
		return r
	}

	d, err := a.openDB(ctx)
	if err != nil {
		return fail(err)
	}
	defer d.Close()
	r.add("connected (%s)", d.Dialect())

	counts, err := db.TableCounts(ctx, d)
	if err != nil {
		return fail(err)
	}
	r.add("committees: %d, bills: %d, compliance records: %d",
		counts.Committees, counts.Bills, counts.BillCompliance)

	users, err := auth.ListUsers(ctx, d)
	if err != nil {
		return fail(err)
	}
	var active int
	for _, u := range users {
		if u.IsActive {
			active++
		}
	}
	r.add("users: %d (%d active, %d inactive)", len(users), active, len(users)-active)
	if active == 0 {
		r.warn("no active users; run: tracker users activate --all")
	}

	if a.cfg.Admin.Email == "" {
		return r
	}
	i := slices.IndexFunc(users, func(u models.User) bool {
		return u.Email == auth.NormalizeEmail(a.cfg.Admin.Email)
	})
	switch {
	case i < 0:
		r.warn("admin user not found: %s", a.cfg.Admin.Email)
	case users[i].Role != models.RoleAdmin:
		r.warn("%s has role %s, not admin", users[i].Email, users[i].Role)
	default:
		r.add("admin %s: %s", users[i].Email, activeLabel(users[i].IsActive))
	}
	return r
}

func checkCORS(cfg cliparse.Config) checkResult {
	r := checkResult{name: "CORS", ok: true}
	if cfg.Server.FrontendURL == "" {
		r.warn("FRONTEND_URL not set")
	} else {
		r.add("frontend URL: %s", cfg.Server.FrontendURL)
	}
	if len(cfg.Security.CORSOrigins) == 0 {
		r.warn("CORS_ORIGINS not set; only the built-in origins are allowed")
	} else if cfg.Server.FrontendURL != "" && !slices.Contains(cfg.Security.CORSOrigins, cfg.Server.FrontendURL) {
		r.warn("FRONTEND_URL (%s) not in CORS_ORIGINS", cfg.Server.FrontendURL)
	}

	origins := middleware.AllowedOrigins(cfg)
	r.add("allowed origins (%d):", len(origins))
	for _, o := range origins {
		r.add("  %s", o)
	}
	return r
}

func printResults(out io.Writer, results []checkResult) bool {
	healthy := true
	for _, r := range results {
		fmt.Fprintf(out, "\n%s\n", r.name)
		for _, l := range r.lines {
			fmt.Fprintf(out, "  %s\n", l)
		}
	}

	fmt.Fprintln(out, "\nSummary")
	for _, r := range results {
		status := "PASS"
		if !r.ok {
			status = "FAIL"
			healthy = false
		}
		fmt.Fprintf(out, "  %s  %s\n", status, r.name)
	}
	return healthy
}
