// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/beaconhill/compliance-tracker/auth"
	"github.com/beaconhill/compliance-tracker/db"
)

func (a *app) usersCmd() *cobra.Command {
	users := &cobra.Command{
		Use:   "users",
		Short: "Inspect and activate user accounts",
		Long: `Inspect and activate user accounts.

Useful when verification email cannot be delivered.`,
	}

	var all bool
	activate := &cobra.Command{
		Use:   "activate [email]",
		Short: "Activate an account without email verification",
		Long: `Activate an account without email verification.

Examples:
  tracker users activate someone@example.org
  tracker users activate --all`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if all == (len(args) == 1) {
				return errors.New("give either an email address or --all")
			}
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			d, err := a.openDB(ctx)
			if err != nil {
				return err
			}
			defer d.Close()

			if all {
				n, err := auth.ActivateAll(ctx, d)
				if err != nil {
					return err
				}
				if n == 0 {
					fmt.Fprintln(out, "No inactive users found")
					return nil
				}
				fmt.Fprintf(out, "Activated %d user(s)\n", n)
				return nil
			}

			u, err := auth.GetUserByEmail(ctx, d, args[0])
			if errors.Is(err, db.ErrNotFound) {
				return fmt.Errorf("user not found: %s", auth.NormalizeEmail(args[0]))
			}
			if err != nil {
				return err
			}
			if u.IsActive {
				fmt.Fprintf(out, "User %s is already active\n", u.Email)
				return nil
			}
			if err := auth.SetActive(ctx, d, u.ID, true); err != nil {
				return err
			}
			fmt.Fprintf(out, "Activated %s (id %d, role %s)\n", u.Email, u.ID, u.Role)
			return nil
		},
	}
	activate.Flags().BoolVar(&all, "all", false, "Activate every inactive account")

	list := &cobra.Command{
		Use:   "list",
		Short: "List accounts, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			d, err := a.openDB(ctx)
			if err != nil {
				return err
			}
			defer d.Close()

			users, err := auth.ListUsers(ctx, d)
			if err != nil {
				return err
			}
			if len(users) == 0 {
				fmt.Fprintln(out, "No users found")
				return nil
			}
			for _, u := range users {
				fmt.Fprintf(out, "%-8s %-10s %s (id %d, created %s)\n",
					activeLabel(u.IsActive), u.Role, u.Email, u.ID, u.CreatedAt)
			}
			return nil
		},
	}

	users.AddCommand(activate, list)
	return users
}
