// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/beaconhill/compliance-tracker/auth"
	"github.com/beaconhill/compliance-tracker/cliparse"
	"github.com/beaconhill/compliance-tracker/db"
	"github.com/beaconhill/compliance-tracker/models"
)

// defaultAdminEmail is the placeholder account older deployments created
// with a well-known password.
const defaultAdminEmail = "admin@example.com"

// seedAdmin creates the configured admin account if it does not exist.
// Without a password nothing is created.
func seedAdmin(ctx context.Context, d *db.DB, admin cliparse.AdminConfig, cost int) error {
	if admin.Email == "" || admin.Password == "" {
		slog.Warn("ADMIN_PASSWORD not set, admin account not seeded", "email", admin.Email)
		return nil
	}

	_, err := auth.GetUserByEmail(ctx, d, admin.Email)
	if err == nil {
		return nil
	}
	if !errors.Is(err, db.ErrNotFound) {
		return err
	}

	hash, err := auth.HashPassword(admin.Password, cost)
	if err != nil {
		return err
	}
	_, err = auth.CreateUser(ctx, d, admin.Email, hash, models.RoleAdmin, true, time.Now())
	if db.IsUniqueViolation(err) {
		return nil
	}
	if err != nil {
		return err
	}
	slog.Info("Created admin user", "email", auth.NormalizeEmail(admin.Email))
	return nil
}

func (a *app) adminCmd() *cobra.Command {
	admin := &cobra.Command{
		Use:   "admin",
		Short: "Manage administrator accounts",
	}

	var list, deleteDefault, createSecure bool
	reset := &cobra.Command{
		Use:   "reset",
		Short: "Replace the insecure default admin account",
		Long: `Replace the insecure default admin account.

--create-secure creates or updates the admin named by ADMIN_EMAIL with
ADMIN_PASSWORD, activates it and gives it the admin role.

Examples:
  # List admin accounts
  tracker admin reset --list

  # Remove admin@example.com and install the configured admin
  tracker admin reset --delete-default --create-secure`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !list && !deleteDefault && !createSecure {
				return cmd.Help()
			}
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			d, err := a.openDB(ctx)
			if err != nil {
				return err
			}
			defer d.Close()

			if deleteDefault {
				if err := deleteDefaultAdmin(ctx, d, out); err != nil {
					return err
				}
			}
			if createSecure {
				if err := createSecureAdmin(ctx, d, a.cfg, out); err != nil {
					return err
				}
			}
			if list {
				return listAdmins(ctx, d, out)
			}
			return nil
		},
	}
	reset.Flags().BoolVar(&list, "list", false, "List admin accounts")
	reset.Flags().BoolVar(&deleteDefault, "delete-default", false, "Delete "+defaultAdminEmail)
	reset.Flags().BoolVar(&createSecure, "create-secure", false, "Create or update the admin from ADMIN_EMAIL and ADMIN_PASSWORD")

	admin.AddCommand(reset)
	return admin
}

func deleteDefaultAdmin(ctx context.Context, d *db.DB, out io.Writer) error {
	u, err := auth.GetUserByEmail(ctx, d, defaultAdminEmail)
	if errors.Is(err, db.ErrNotFound) {
		fmt.Fprintf(out, "No default admin user found (%s)\n", defaultAdminEmail)
		return nil
	}
	if err != nil {
		return err
	}
	if err := auth.DeleteUser(ctx, d, u.ID); err != nil {
		return err
	}
	fmt.Fprintf(out, "Deleted default admin %s (id %d, created %s)\n", u.Email, u.ID, u.CreatedAt)
	return nil
}

func createSecureAdmin(ctx context.Context, d *db.DB, cfg cliparse.Config, out io.Writer) error {
	email, password := cfg.Admin.Email, cfg.Admin.Password
	if email == "" || password == "" {
		return errors.New("ADMIN_EMAIL and ADMIN_PASSWORD must be set")
	}
	if auth.NormalizeEmail(email) == defaultAdminEmail {
		return fmt.Errorf("ADMIN_EMAIL must not be %s", defaultAdminEmail)
	}
	if len(password) < auth.MinPasswordLength {
		return fmt.Errorf("ADMIN_PASSWORD must be at least %d characters", auth.MinPasswordLength)
	}

	hash, err := auth.HashPassword(password, cfg.Auth.BcryptCost)
	if err != nil {
		return err
	}

	u, err := auth.GetUserByEmail(ctx, d, email)
	switch {
	case errors.Is(err, db.ErrNotFound):
		u, err = auth.CreateUser(ctx, d, email, hash, models.RoleAdmin, true, time.Now())
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Created admin user %s\n", u.Email)
		return nil
	case err != nil:
		return err
	}

	err = d.WithTx(ctx, func(tx *db.Tx) error {
		if err := auth.SetPasswordHash(ctx, tx, u.ID, hash); err != nil {
			return err
		}
		if err := auth.SetActive(ctx, tx, u.ID, true); err != nil {
			return err
		}
		return auth.SetRole(ctx, tx, u.ID, models.RoleAdmin)
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Updated admin user %s\n", u.Email)
	return nil
}

func listAdmins(ctx context.Context, d *db.DB, out io.Writer) error {
	users, err := auth.ListUsers(ctx, d)
	if err != nil {
		return err
	}
	var n int
	for _, u := range users {
		if u.Role != models.RoleAdmin {
			continue
		}
		n++
		warning := ""
		if u.Email == defaultAdminEmail {
			warning = "  INSECURE DEFAULT"
		}
		fmt.Fprintf(out, "%-8s %s%s\n", activeLabel(u.IsActive), u.Email, warning)
		fmt.Fprintf(out, "         id %d, created %s\n", u.ID, u.CreatedAt)
	}
	if n == 0 {
		fmt.Fprintln(out, "No admin users found")
	}
	return nil
}

func activeLabel(active bool) string {
	if active {
		return "active"
	}
	return "inactive"
}
