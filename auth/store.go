// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/beaconhill/compliance-tracker/db"
	"github.com/beaconhill/compliance-tracker/models"
)

const userColumns = `id, email, pw_hash, role, is_active, created_at`

func scanUser(row *sql.Row) (models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.Email, &u.PwHash, &u.Role, &u.IsActive, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, db.ErrNotFound
	}
	if err != nil {
		return models.User{}, fmt.Errorf("failed to load user: %w", err)
	}
	return u, nil
}

// GetUser loads a user by id.
func GetUser(ctx context.Context, q db.Querier, id int64) (models.User, error) {
	return scanUser(q.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
}

// GetUserByEmail loads a user by email, compared case-insensitively.
func GetUserByEmail(ctx context.Context, q db.Querier, email string) (models.User, error) {
	return scanUser(q.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ?`, NormalizeEmail(email)))
}

// NormalizeEmail trims and lowercases an address before storage or lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// CreateUser inserts an account. The email is normalized first;
// duplicates fail with a unique violation (see db.IsUniqueViolation).
func CreateUser(ctx context.Context, q db.Querier, email, pwHash, role string, active bool, now time.Time) (models.User, error) {
	u := models.User{
		Email:     NormalizeEmail(email),
		PwHash:    pwHash,
		Role:      role,
		IsActive:  active,
		CreatedAt: db.FormatTime(now),
	}
	id, err := db.InsertID(ctx, q, `
		INSERT INTO users (email, pw_hash, role, is_active, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, u.Email, u.PwHash, u.Role, db.BoolInt(u.IsActive), u.CreatedAt)
	if err != nil {
		return models.User{}, fmt.Errorf("failed to create user: %w", err)
	}
	u.ID = id
	return u, nil
}

// ListUsers returns every account, newest first.
func ListUsers(ctx context.Context, q db.Querier) ([]models.User, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	users := []models.User{}
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.Email, &u.PwHash, &u.Role, &u.IsActive, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func updateUser(ctx context.Context, q db.Querier, query string, args ...any) error {
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return db.ErrNotFound
	}
	return nil
}

// SetRole changes a user's role.
func SetRole(ctx context.Context, q db.Querier, userID int64, role string) error {
	return updateUser(ctx, q, `UPDATE users SET role = ? WHERE id = ?`, role, userID)
}

// SetActive activates or deactivates a user.
func SetActive(ctx context.Context, q db.Querier, userID int64, active bool) error {
	return updateUser(ctx, q, `UPDATE users SET is_active = ? WHERE id = ?`, db.BoolInt(active), userID)
}

// SetPasswordHash replaces a user's password hash.
func SetPasswordHash(ctx context.Context, q db.Querier, userID int64, pwHash string) error {
	return updateUser(ctx, q, `UPDATE users SET pw_hash = ? WHERE id = ?`, pwHash, userID)
}

// ActivateAll activates every inactive user and returns how many changed.
func ActivateAll(ctx context.Context, q db.Querier) (int64, error) {
	res, err := q.ExecContext(ctx, `UPDATE users SET is_active = 1 WHERE is_active = 0`)
	if err != nil {
		return 0, fmt.Errorf("failed to activate users: %w", err)
	}
	return res.RowsAffected()
}

// DeleteUser removes an account; its tokens, keys and views go with it.
func DeleteUser(ctx context.Context, q db.Querier, userID int64) error {
	res, err := q.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, userID)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return db.ErrNotFound
	}
	return nil
}

// GetSigningKey loads a signing key, including its secret, by key id.
func GetSigningKey(ctx context.Context, q db.Querier, keyID string) (models.SigningKey, error) {
	var k models.SigningKey
	err := q.QueryRowContext(ctx, `
		SELECT id, user_id, key_id, secret, description, created_at, revoked_at
		FROM signing_keys
		WHERE key_id = ?
	`, keyID).Scan(&k.ID, &k.UserID, &k.KeyID, &k.Secret, &k.Description, &k.CreatedAt, &k.RevokedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.SigningKey{}, db.ErrNotFound
	}
	if err != nil {
		return models.SigningKey{}, fmt.Errorf("failed to load signing key: %w", err)
	}
	k.IsRevoked = k.RevokedAt != nil
	return k, nil
}

// IngestRequest is what a signed ingest request carries.
type IngestRequest struct {
	KeyID     string
	Timestamp string
	Signature string
	Method    string
	Path      string
	Body      []byte
}

// VerifyIngest authenticates a signed ingest request: it checks the
// timestamp window, looks the key up and verifies the HMAC over
// "{timestamp}.{METHOD}.{path}.{sha256(body)}". The returned error is one
// of the Err* sentinels unless the lookup itself failed.
func VerifyIngest(ctx context.Context, q db.Querier, req IngestRequest, now time.Time, skew time.Duration) (models.SigningKey, error) {
	if req.KeyID == "" || req.Timestamp == "" || req.Signature == "" {
		return models.SigningKey{}, ErrMissingHeaders
	}
	if err := CheckTimestamp(req.Timestamp, now, skew); err != nil {
		return models.SigningKey{}, err
	}

	key, err := GetSigningKey(ctx, q, req.KeyID)
	if errors.Is(err, db.ErrNotFound) {
		return models.SigningKey{}, ErrUnknownKey
	}
	if err != nil {
		return models.SigningKey{}, err
	}
	if key.IsRevoked {
		return models.SigningKey{}, ErrRevokedKey
	}

	msg := SigningMessage(req.Timestamp, req.Method, req.Path, BodyHash(req.Body))
	if err := VerifySignature(key.Secret, msg, req.Signature); err != nil {
		return models.SigningKey{}, err
	}
	return key, nil
}
