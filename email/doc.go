// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

// Package email sends the tracker's notification mail.
//
// Mailer is the transport. SMTPMailer talks to the configured server with
// STARTTLS or implicit TLS behind a rate limiter and a circuit breaker;
// LogMailer stands in when no server is configured. Notifier renders the
// embedded templates (HTML and plain text) and decides which failures matter:
// verification, reset and contact mail return errors, while role and key
// notifications are only logged.
package email
