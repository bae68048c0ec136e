// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/beaconhill/compliance-tracker/email"
	"github.com/beaconhill/compliance-tracker/router"
)

func (a *app) serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the API server (default)",
		Long: `Run the API server.

The schema is created if missing and the admin account named by
ADMIN_EMAIL is seeded when ADMIN_PASSWORD is set.

Examples:
  tracker serve
  tracker -d postgres://tracker@localhost/tracker serve`,
		Args: cobra.NoArgs,
		RunE: a.runServe,
	}
}

func (a *app) runServe(cmd *cobra.Command, _ []string) error {
	if err := a.cfg.Validate(); err != nil {
		return err
	}
	ctx := cmd.Context()

	d, err := a.openDB(ctx)
	if err != nil {
		return err
	}
	defer d.Close()
	slog.Info("Database schema ready", "database", d.Dialect())

	if err := seedAdmin(ctx, d, a.cfg.Admin, a.cfg.Auth.BcryptCost); err != nil {
		return err
	}

	handler, err := router.NewRouter(d, a.cfg, email.New(a.cfg.Mail))
	if err != nil {
		return err
	}

	server := &http.Server{
		Handler:           handler,
		Addr:              ":" + strconv.Itoa(a.cfg.Server.Port),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("Listening", "port", a.cfg.Server.Port, "env", a.cfg.Env)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		// Wait for a signal or a failed listener
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		slog.Error("Server closed", "error", err)
		return err
	}
	slog.Info("Server closed")
	return nil
}
