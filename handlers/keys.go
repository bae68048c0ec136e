// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/beaconhill/compliance-tracker/auth"
	"github.com/beaconhill/compliance-tracker/db"
	"github.com/beaconhill/compliance-tracker/email"
	"github.com/beaconhill/compliance-tracker/middleware"
	"github.com/beaconhill/compliance-tracker/models"
)

const secretWarning = "This is the only time the secret will be displayed. Store it securely."

type KeyHandler struct {
	db       *db.DB
	notifier *email.Notifier
	now      func() time.Time
}

func NewKeyHandler(d *db.DB, notifier *email.Notifier) *KeyHandler {
	return &KeyHandler{db: d, notifier: notifier, now: time.Now}
}

type keyResponse struct {
	Message   string            `json:"message,omitempty"`
	Key       models.SigningKey `json:"key"`
	Warning   string            `json:"warning,omitempty"`
	UserEmail string            `json:"user_email,omitempty"`
}

type keyListResponse struct {
	Keys           []models.SigningKey `json:"keys"`
	Count          int                 `json:"count"`
	IncludeRevoked bool                `json:"include_revoked"`
	FilteredByUser *bool               `json:"filtered_by_user,omitempty"`
}

type verifyKeyResponse struct {
	Valid     bool    `json:"valid"`
	Reason    string  `json:"reason,omitempty"`
	RevokedAt *string `json:"revoked_at,omitempty"`
	KeyID     string  `json:"key_id,omitempty"`
	UserEmail string  `json:"user_email,omitempty"`
	UserRole  string  `json:"user_role,omitempty"`
	CreatedAt string  `json:"created_at,omitempty"`
}

// keyFilter narrows listKeys. UserID 0 means every user.
type keyFilter struct {
	UserID         int64
	IncludeRevoked bool
	WithOwner      bool
}

func listKeys(ctx context.Context, q db.Querier, f keyFilter) ([]models.SigningKey, error) {
	query := `
		SELECT k.id, k.user_id, k.key_id, k.description, k.created_at, k.revoked_at, u.email, u.role
		FROM signing_keys k
		JOIN users u ON u.id = k.user_id
		WHERE 1 = 1`
	var args []any
	if f.UserID != 0 {
		query += ` AND k.user_id = ?`
		args = append(args, f.UserID)
	}
	if !f.IncludeRevoked {
		query += ` AND k.revoked_at IS NULL`
	}
	query += ` ORDER BY k.created_at DESC, k.id DESC`

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query signing keys: %w", err)
	}
	defer rows.Close()

	keys := []models.SigningKey{}
	for rows.Next() {
		var k models.SigningKey
		var ownerEmail, ownerRole string
		if err := rows.Scan(&k.ID, &k.UserID, &k.KeyID, &k.Description, &k.CreatedAt, &k.RevokedAt, &ownerEmail, &ownerRole); err != nil {
			return nil, fmt.Errorf("failed to scan signing key: %w", err)
		}
		k.IsRevoked = k.RevokedAt != nil
		if f.WithOwner {
			k.UserEmail, k.UserRole = ownerEmail, ownerRole
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read signing keys: %w", err)
	}
	return keys, nil
}

// loadKey fetches a key by row id with its owner's email. A non-zero
// userID restricts the lookup to that owner.
func loadKey(ctx context.Context, q db.Querier, id, userID int64) (models.SigningKey, error) {
	var k models.SigningKey
	err := q.QueryRowContext(ctx, `
		SELECT k.id, k.user_id, k.key_id, k.description, k.created_at, k.revoked_at, u.email
		FROM signing_keys k
		JOIN users u ON u.id = k.user_id
		WHERE k.id = ? AND (? = 0 OR k.user_id = ?)
	`, id, userID, userID).Scan(&k.ID, &k.UserID, &k.KeyID, &k.Description, &k.CreatedAt, &k.RevokedAt, &k.UserEmail)
	if errors.Is(err, sql.ErrNoRows) {
		return models.SigningKey{}, db.ErrNotFound
	}
	if err != nil {
		return models.SigningKey{}, fmt.Errorf("failed to load signing key: %w", err)
	}
	k.IsRevoked = k.RevokedAt != nil
	return k, nil
}

func includeRevoked(r *http.Request) bool {
	return strings.EqualFold(r.URL.Query().Get("include_revoked"), "true")
}

// Create handles POST /api/keys. The secret is only ever returned here.
func (h *KeyHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user, _ := middleware.UserFromContext(ctx)

	var req models.CreateKeyRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil && !errors.Is(err, middleware.ErrEmptyBody) {
		middleware.ErrorMessage(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	desc := strings.TrimSpace(req.Description)

	keyID, secret, err := auth.GenerateKeyPair()
	if err != nil {
		slog.ErrorContext(ctx, "failed to generate key pair", "error", err)
		middleware.ErrorMessage(w, http.StatusInternalServerError, "Failed to generate signing key")
		return
	}

	k := models.SigningKey{
		UserID:    user.ID,
		KeyID:     keyID,
		Secret:    secret,
		CreatedAt: db.FormatTime(h.now()),
	}
	if desc != "" {
		k.Description = &desc
	}
	k.ID, err = db.InsertID(ctx, h.db, `
		INSERT INTO signing_keys (user_id, key_id, secret, description, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, k.UserID, k.KeyID, k.Secret, k.Description, k.CreatedAt)
	if err != nil {
		slog.ErrorContext(ctx, "failed to store signing key", "error", err, "user_id", user.ID)
		middleware.ErrorMessage(w, http.StatusInternalServerError, "Failed to generate signing key")
		return
	}

	slog.InfoContext(ctx, "signing key generated", "key_id", keyID, "user_id", user.ID)
	h.notifier.SendKeyGenerated(ctx, user.Email, keyID)

	middleware.JSONResponse(w, http.StatusCreated, keyResponse{
		Message: "Signing key generated successfully",
		Key:     k,
		Warning: secretWarning,
	})
}

// List handles GET /api/keys
func (h *KeyHandler) List(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.UserFromContext(r.Context())
	inc := includeRevoked(r)

	keys, err := listKeys(r.Context(), h.db, keyFilter{UserID: user.ID, IncludeRevoked: inc})
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to list signing keys", "error", err)
		middleware.ErrorMessage(w, http.StatusInternalServerError, "Failed to retrieve signing keys")
		return
	}
	middleware.JSONResponse(w, http.StatusOK, keyListResponse{Keys: keys, Count: len(keys), IncludeRevoked: inc})
}

// pathKey resolves {id} to a key, writing the 404 itself.
func (h *KeyHandler) pathKey(w http.ResponseWriter, r *http.Request, ownerID int64, failMsg string) (models.SigningKey, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		middleware.ErrorMessage(w, http.StatusNotFound, "Signing key not found")
		return models.SigningKey{}, false
	}
	k, err := loadKey(r.Context(), h.db, id, ownerID)
	if errors.Is(err, db.ErrNotFound) {
		middleware.ErrorMessage(w, http.StatusNotFound, "Signing key not found")
		return models.SigningKey{}, false
	}
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to load signing key", "error", err, "id", id)
		middleware.ErrorMessage(w, http.StatusInternalServerError, failMsg)
		return models.SigningKey{}, false
	}
	return k, true
}

// Get handles GET /api/keys/{id}
func (h *KeyHandler) Get(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.UserFromContext(r.Context())
	k, ok := h.pathKey(w, r, user.ID, "Failed to retrieve signing key")
	if !ok {
		return
	}
	k.UserEmail = ""
	middleware.JSONResponse(w, http.StatusOK, keyResponse{Key: k})
}

func (h *KeyHandler) revoke(ctx context.Context, k *models.SigningKey) error {
	ts := db.FormatTime(h.now())
	if _, err := h.db.ExecContext(ctx, `
		UPDATE signing_keys SET revoked_at = ? WHERE id = ? AND revoked_at IS NULL
	`, ts, k.ID); err != nil {
		return fmt.Errorf("failed to revoke signing key: %w", err)
	}
	k.RevokedAt = &ts
	k.IsRevoked = true
	return nil
}

// Revoke handles PATCH /api/keys/revoke/{id} and /api/keys/{id}/revoke
func (h *KeyHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user, _ := middleware.UserFromContext(ctx)
	k, ok := h.pathKey(w, r, user.ID, "Failed to revoke signing key")
	if !ok {
		return
	}
	if k.IsRevoked {
		middleware.ErrorMessage(w, http.StatusBadRequest, "Signing key is already revoked")
		return
	}
	if err := h.revoke(ctx, &k); err != nil {
		slog.ErrorContext(ctx, "failed to revoke signing key", "error", err, "key_id", k.KeyID)
		middleware.ErrorMessage(w, http.StatusInternalServerError, "Failed to revoke signing key")
		return
	}

	slog.InfoContext(ctx, "signing key revoked", "key_id", k.KeyID, "user_id", user.ID)
	k.UserEmail = ""
	middleware.JSONResponse(w, http.StatusOK, keyResponse{
		Message: fmt.Sprintf("Signing key %s revoked successfully", k.KeyID),
		Key:     k,
	})
}

// Verify handles POST /api/keys/verify. It needs no login; an unknown,
// revoked or mismatched key is still a 200 with valid=false.
func (h *KeyHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req models.VerifyKeyRequest
	if !decodeBody(w, r, &req) {
		return
	}
	keyID := strings.TrimSpace(req.KeyID)
	secret := strings.TrimSpace(req.Secret)
	if keyID == "" || secret == "" {
		middleware.ErrorMessage(w, http.StatusBadRequest, "key_id and secret are required")
		return
	}

	ctx := r.Context()
	k, err := auth.GetSigningKey(ctx, h.db, keyID)
	if errors.Is(err, db.ErrNotFound) {
		middleware.JSONResponse(w, http.StatusOK, verifyKeyResponse{Reason: "Key not found"})
		return
	}
	if err != nil {
		slog.ErrorContext(ctx, "failed to load signing key", "error", err)
		middleware.ErrorMessage(w, http.StatusInternalServerError, "Failed to verify signing key")
		return
	}
	if k.IsRevoked {
		middleware.JSONResponse(w, http.StatusOK, verifyKeyResponse{Reason: "Key has been revoked", RevokedAt: k.RevokedAt})
		return
	}
	if subtle.ConstantTimeCompare([]byte(k.Secret), []byte(secret)) != 1 {
		middleware.JSONResponse(w, http.StatusOK, verifyKeyResponse{Reason: "Invalid secret"})
		return
	}

	owner, err := auth.GetUser(ctx, h.db, k.UserID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load key owner", "error", err, "key_id", k.KeyID)
		middleware.ErrorMessage(w, http.StatusInternalServerError, "Failed to verify signing key")
		return
	}
	middleware.JSONResponse(w, http.StatusOK, verifyKeyResponse{
		Valid:     true,
		KeyID:     k.KeyID,
		UserEmail: owner.Email,
		UserRole:  owner.Role,
		CreatedAt: k.CreatedAt,
	})
}

// AdminList handles GET /api/keys/admin/all
func (h *KeyHandler) AdminList(w http.ResponseWriter, r *http.Request) {
	f := keyFilter{IncludeRevoked: includeRevoked(r), WithOwner: true}
	filtered := false
	if raw := r.URL.Query().Get("user_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			middleware.ErrorMessage(w, http.StatusBadRequest, "Invalid user_id parameter")
			return
		}
		f.UserID = id
		filtered = true
	}

	keys, err := listKeys(r.Context(), h.db, f)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to list signing keys", "error", err)
		middleware.ErrorMessage(w, http.StatusInternalServerError, "Failed to retrieve signing keys")
		return
	}
	middleware.JSONResponse(w, http.StatusOK, keyListResponse{
		Keys:           keys,
		Count:          len(keys),
		IncludeRevoked: f.IncludeRevoked,
		FilteredByUser: &filtered,
	})
}

// AdminRevoke handles PATCH /api/keys/admin/revoke/{id}
func (h *KeyHandler) AdminRevoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	k, ok := h.pathKey(w, r, 0, "Failed to revoke signing key")
	if !ok {
		return
	}
	if k.IsRevoked {
		middleware.ErrorMessage(w, http.StatusBadRequest, "Signing key is already revoked")
		return
	}
	if err := h.revoke(ctx, &k); err != nil {
		slog.ErrorContext(ctx, "failed to revoke signing key", "error", err, "key_id", k.KeyID)
		middleware.ErrorMessage(w, http.StatusInternalServerError, "Failed to revoke signing key")
		return
	}

	admin, _ := middleware.UserFromContext(ctx)
	slog.InfoContext(ctx, "signing key revoked by admin", "key_id", k.KeyID, "admin_id", admin.ID)

	owner := k.UserEmail
	k.UserEmail = ""
	middleware.JSONResponse(w, http.StatusOK, keyResponse{
		Message:   fmt.Sprintf("Signing key %s revoked by admin", k.KeyID),
		Key:       k,
		UserEmail: owner,
	})
}
