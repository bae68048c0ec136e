// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package logging configures structured logging for the tracker.

zerolog is the backend. Init installs an slog.Handler adapter as the
slog default, so packages log through the standard log/slog API:

	logging.Init(logging.Config{Level: "info", Format: "json"})
	slog.Info("Listening", "port", 5000)
	slog.Error("failed to query committees", "error", err)

# Request IDs

Middleware stores a per-request ID with WithRequestID. Records logged with
slog.InfoContext and friends carry it as the request_id field.

# Formats

  - json: one JSON object per line (default, for production)
  - console: human-readable, coloured output for development
*/
package logging
