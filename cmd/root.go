// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/beaconhill/compliance-tracker/cliparse"
	"github.com/beaconhill/compliance-tracker/db"
	"github.com/beaconhill/compliance-tracker/logging"
)

// app carries the flags shared by every command and the configuration
// loaded from them.
type app struct {
	overrides cliparse.Overrides
	cfg       cliparse.Config
}

// NewRootCommand builds the tracker command tree. Running it without a
// subcommand starts the server.
func NewRootCommand() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "tracker",
		Short: "Beacon Hill Compliance Tracker",
		Long: `Beacon Hill Compliance Tracker serves the compliance dashboard API and
provides maintenance commands for its database.

Configuration comes from defaults, an optional tracker.yaml, .env, the
environment and finally these flags.`,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
		RunE:              a.runServe,
	}

	f := root.PersistentFlags()
	f.StringVar(&a.overrides.ConfigPath, "config", "", "Path to YAML config file")
	f.StringVarP(&a.overrides.DatabaseURL, "database-url", "d", "", "Database URL (sqlite:///path or postgres://...)")
	f.StringVar(&a.overrides.DatabaseType, "database-type", "", "Database type (sqlite or postgres)")
	f.StringVar(&a.overrides.LogLevel, "log-level", "", "Log level (trace, debug, info, warn, error)")
	f.IntVarP(&a.overrides.Port, "port", "p", 0, "Server port")
	f.StringVar(&a.overrides.JWTSecret, "jwt-secret", "", "JWT signing secret (prefer env)")

	root.AddCommand(
		a.serveCmd(),
		a.cleanupCmd(),
		a.compareCmd(),
		a.usersCmd(),
		a.adminCmd(),
		a.optimizeCmd(),
		a.doctorCmd(),
		a.changelogCmd(),
		a.configCmd(),
	)
	return root
}

// Execute runs the command tree; SIGINT and SIGTERM cancel its context.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return NewRootCommand().ExecuteContext(ctx)
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := cliparse.Load(a.overrides)
	if err != nil {
		return err
	}
	a.cfg = cfg

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
		Output: cmd.ErrOrStderr(),
	})
	return nil
}

// openDB connects, checks the connection and makes sure the schema exists.
func (a *app) openDB(ctx context.Context) (*db.DB, error) {
	d, err := db.Open(a.cfg.Database.URL)
	if err != nil {
		return nil, err
	}
	if err := d.PingContext(ctx); err != nil {
		d.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}
	if err := db.CreateSchema(ctx, d); err != nil {
		d.Close()
		return nil, fmt.Errorf("schema creation failed: %w", err)
	}
	return d, nil
}
