// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/beaconhill/compliance-tracker/db"
)

// EmailToken is a single-use token mailed for verification or password
// reset.
type EmailToken struct {
	ID        int64
	UserID    int64
	Token     string
	Purpose   string
	ExpiresAt string
	CreatedAt string
}

// Expired reports whether the token is past its expiry at now. Tokens with
// an unreadable expiry count as expired.
func (t EmailToken) Expired(now time.Time) bool {
	exp, err := db.ParseTime(t.ExpiresAt)
	if err != nil {
		return true
	}
	return !now.Before(exp)
}

// IssueEmailToken stores a fresh token for userID valid for ttl and
// returns it.
func IssueEmailToken(ctx context.Context, q db.Querier, userID int64, purpose string, ttl time.Duration, now time.Time) (string, error) {
	token, err := GenerateToken()
	if err != nil {
		return "", err
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO email_tokens (user_id, token, purpose, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, userID, token, purpose, db.FormatTime(now.Add(ttl)), db.FormatTime(now))
	if err != nil {
		return "", fmt.Errorf("failed to store %s token: %w", purpose, err)
	}
	return token, nil
}

// FindEmailToken looks a token up by value and purpose. A token issued for
// another purpose is db.ErrNotFound.
func FindEmailToken(ctx context.Context, q db.Querier, token, purpose string) (EmailToken, error) {
	var t EmailToken
	err := q.QueryRowContext(ctx, `
		SELECT id, user_id, token, purpose, expires_at, created_at
		FROM email_tokens
		WHERE token = ? AND purpose = ?
	`, token, purpose).Scan(&t.ID, &t.UserID, &t.Token, &t.Purpose, &t.ExpiresAt, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return EmailToken{}, db.ErrNotFound
	}
	if err != nil {
		return EmailToken{}, fmt.Errorf("failed to load email token: %w", err)
	}
	return t, nil
}

// DeleteEmailToken removes one token.
func DeleteEmailToken(ctx context.Context, q db.Querier, id int64) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM email_tokens WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete email token: %w", err)
	}
	return nil
}

// DeleteEmailTokens removes every token of purpose belonging to userID.
func DeleteEmailTokens(ctx context.Context, q db.Querier, userID int64, purpose string) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM email_tokens WHERE user_id = ? AND purpose = ?`, userID, purpose); err != nil {
		return fmt.Errorf("failed to delete email tokens: %w", err)
	}
	return nil
}
