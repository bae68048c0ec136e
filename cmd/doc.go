// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package cmd implements the tracker command line.

The root command loads configuration once (defaults, tracker.yaml, .env,
the environment, then flags) and starts the server when no subcommand is
given. Maintenance commands open the database directly:

	tracker serve                       - Run the API server
	tracker cleanup [--dry-run]         - Remove duplicate compliance rows
	tracker compare J33 DATE1 DATE2     - Compare a committee between two dates
	tracker users activate EMAIL|--all  - Activate accounts without email
	tracker admin reset --create-secure - Replace the default admin
	tracker optimize --all              - PostgreSQL index and view
	tracker doctor                      - Configuration and database checks
	tracker changelog                   - Scanner changelog in the terminal
	tracker config show                 - Effective configuration

Output goes to the command's output stream so tests can capture it;
logs go to its error stream.
*/
package cmd
