// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/beaconhill/compliance-tracker/auth"
	"github.com/beaconhill/compliance-tracker/cliparse"
	"github.com/beaconhill/compliance-tracker/db"
	"github.com/beaconhill/compliance-tracker/email"
	"github.com/beaconhill/compliance-tracker/middleware"
	"github.com/beaconhill/compliance-tracker/models"
	"github.com/beaconhill/compliance-tracker/validation"
)

const forgotPasswordMessage = "If an account exists with this email, you will receive password reset instructions."

type AuthHandler struct {
	db       *db.DB
	cfg      cliparse.Config
	jwt      *auth.JWTManager
	notifier *email.Notifier
	now      func() time.Time
}

func NewAuthHandler(d *db.DB, cfg cliparse.Config, jwt *auth.JWTManager, notifier *email.Notifier) *AuthHandler {
	return &AuthHandler{db: d, cfg: cfg, jwt: jwt, notifier: notifier, now: time.Now}
}

type accountResponse struct {
	Message string `json:"message"`
	UserID  int64  `json:"user_id"`
	Email   string `json:"email"`
}

type userResponse struct {
	Message string      `json:"message,omitempty"`
	User    models.User `json:"user"`
}

type verifyResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message"`
	UserID  int64  `json:"user_id,omitempty"`
	Email   string `json:"email,omitempty"`
}

func (h *AuthHandler) frontendLink(path, token string) string {
	return strings.TrimRight(h.cfg.Server.FrontendURL, "/") + path + "?token=" + url.QueryEscape(token)
}

// decodeBody parses a JSON body and writes the 400 for a missing or
// malformed one.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := middleware.ParseJSONBody(r, v); err != nil {
		if errors.Is(err, middleware.ErrEmptyBody) {
			middleware.ErrorMessage(w, http.StatusBadRequest, "No JSON data provided")
		} else {
			middleware.ErrorMessage(w, http.StatusBadRequest, "Invalid JSON")
		}
		return false
	}
	return true
}

// Register handles POST /api/auth/register. New accounts start inactive
// until the emailed verification link is followed.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterRequest
	if !decodeBody(w, r, &req) {
		return
	}

	addr := auth.NormalizeEmail(req.Email)
	if addr == "" || req.Password == "" {
		middleware.ErrorMessage(w, http.StatusBadRequest, "Email and password are required")
		return
	}
	if err := validation.Email(addr); err != nil {
		middleware.ErrorMessage(w, http.StatusBadRequest, "Invalid email: "+err.Error())
		return
	}
	if len(req.Password) < auth.MinPasswordLength {
		middleware.ErrorMessage(w, http.StatusBadRequest, fmt.Sprintf("Password must be at least %d characters long", auth.MinPasswordLength))
		return
	}

	hash, err := auth.HashPassword(req.Password, h.cfg.Auth.BcryptCost)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to hash password", "error", err)
		middleware.ErrorMessage(w, http.StatusInternalServerError, "Registration failed")
		return
	}

	now := h.now()
	var (
		user  models.User
		token string
	)
	err = h.db.WithTx(r.Context(), func(tx *db.Tx) error {
		var err error
		user, err = auth.CreateUser(r.Context(), tx, addr, hash, models.RoleUser, false, now)
		if err != nil {
			return err
		}
		token, err = auth.IssueEmailToken(r.Context(), tx, user.ID, models.PurposeVerification, h.cfg.Auth.VerificationTTL, now)
		return err
	})
	if db.IsUniqueViolation(err) {
		middleware.ErrorMessage(w, http.StatusConflict, "Email already registered")
		return
	}
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to register user", "error", err)
		middleware.ErrorMessage(w, http.StatusInternalServerError, "Registration failed")
		return
	}

	// the account exists either way; a mail failure only delays verification
	if err := h.notifier.SendVerification(r.Context(), user.Email, h.frontendLink("/verify-email", token)); err != nil {
		slog.ErrorContext(r.Context(), "failed to send verification email", "error", err, "user_id", user.ID)
	}

	slog.InfoContext(r.Context(), "user registered", "user_id", user.ID)
	middleware.JSONResponse(w, http.StatusCreated, accountResponse{
		Message: "Registration successful. Please check your email to verify your account.",
		UserID:  user.ID,
		Email:   user.Email,
	})
}

// Verify handles GET|POST /api/auth/verify/{token}. API clients asking for
// JSON get a JSON answer; browsers are redirected to the login page.
func (h *AuthHandler) Verify(w http.ResponseWriter, r *http.Request) {
	wantsJSON := strings.Contains(r.Header.Get("Accept"), "application/json")
	fail := func(status int, code, msg string) {
		if wantsJSON {
			middleware.JSONResponse(w, status, verifyResponse{Error: code, Message: msg})
			return
		}
		http.Redirect(w, r, h.loginURL("false", code), http.StatusFound)
	}

	ctx := r.Context()
	tok, err := auth.FindEmailToken(ctx, h.db, r.PathValue("token"), models.PurposeVerification)
	if errors.Is(err, db.ErrNotFound) {
		fail(http.StatusBadRequest, "invalid_token", "Invalid or already used verification token")
		return
	}
	if err != nil {
		slog.ErrorContext(ctx, "failed to look up verification token", "error", err)
		fail(http.StatusInternalServerError, "server_error", "Verification failed")
		return
	}

	if tok.Expired(h.now()) {
		if err := auth.DeleteEmailToken(ctx, h.db, tok.ID); err != nil {
			slog.ErrorContext(ctx, "failed to delete expired token", "error", err)
		}
		fail(http.StatusBadRequest, "expired", "Verification token has expired")
		return
	}

	var user models.User
	err = h.db.WithTx(ctx, func(tx *db.Tx) error {
		if err := auth.SetActive(ctx, tx, tok.UserID, true); err != nil {
			return err
		}
		if err := auth.DeleteEmailToken(ctx, tx, tok.ID); err != nil {
			return err
		}
		var err error
		user, err = auth.GetUser(ctx, tx, tok.UserID)
		return err
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to verify user", "error", err, "user_id", tok.UserID)
		fail(http.StatusInternalServerError, "server_error", "Verification failed")
		return
	}

	slog.InfoContext(ctx, "email verified", "user_id", user.ID)
	if !wantsJSON {
		http.Redirect(w, r, h.loginURL("true", ""), http.StatusFound)
		return
	}
	middleware.JSONResponse(w, http.StatusOK, verifyResponse{
		Success: true,
		Message: "Email verified successfully",
		UserID:  user.ID,
		Email:   user.Email,
	})
}

func (h *AuthHandler) loginURL(verified, code string) string {
	q := url.Values{"verified": {verified}}
	if code != "" {
		q.Set("error", code)
	}
	return strings.TrimRight(h.cfg.Server.FrontendURL, "/") + "/login?" + q.Encode()
}

// Login handles POST /api/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if !decodeBody(w, r, &req) {
		return
	}
	addr := auth.NormalizeEmail(req.Email)
	if addr == "" || req.Password == "" {
		middleware.ErrorMessage(w, http.StatusBadRequest, "Email and password are required")
		return
	}

	user, err := auth.GetUserByEmail(r.Context(), h.db, addr)
	if err != nil && !errors.Is(err, db.ErrNotFound) {
		slog.ErrorContext(r.Context(), "failed to load user", "error", err)
		middleware.ErrorMessage(w, http.StatusInternalServerError, "Login failed")
		return
	}
	if err != nil || !auth.CheckPassword(user.PwHash, req.Password) {
		slog.WarnContext(r.Context(), "login failed", "email", addr)
		middleware.ErrorMessage(w, http.StatusUnauthorized, "Invalid email or password")
		return
	}
	if !user.IsActive {
		middleware.ErrorMessage(w, http.StatusUnauthorized, "Account not verified. Please check your email or contact support.")
		return
	}

	token, err := h.jwt.GenerateToken(user.ID, user.Role)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to issue token", "error", err)
		middleware.ErrorMessage(w, http.StatusInternalServerError, "Login failed")
		return
	}

	slog.InfoContext(r.Context(), "user logged in", "user_id", user.ID)
	middleware.JSONResponse(w, http.StatusOK, models.LoginResponse{AccessToken: token, User: user})
}

// Me handles GET /api/auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.UserFromContext(r.Context())
	middleware.JSONResponse(w, http.StatusOK, userResponse{User: user})
}

// UpdateRole handles PATCH /api/auth/role (admin only)
func (h *AuthHandler) UpdateRole(w http.ResponseWriter, r *http.Request) {
	var req models.UpdateRoleRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.UserID == 0 || req.Role == "" {
		middleware.ErrorMessage(w, http.StatusBadRequest, "user_id and role are required")
		return
	}
	if !auth.ValidRole(req.Role) {
		middleware.ErrorMessage(w, http.StatusBadRequest, "Invalid role. Must be one of: user, privileged, admin")
		return
	}

	ctx := r.Context()
	target, err := auth.GetUser(ctx, h.db, req.UserID)
	if errors.Is(err, db.ErrNotFound) {
		middleware.ErrorMessage(w, http.StatusNotFound, "User not found")
		return
	}
	if err != nil {
		slog.ErrorContext(ctx, "failed to load user", "error", err)
		middleware.ErrorMessage(w, http.StatusInternalServerError, "Failed to update role")
		return
	}

	admin, _ := middleware.UserFromContext(ctx)
	if target.ID == admin.ID {
		middleware.ErrorMessage(w, http.StatusBadRequest, "Cannot change your own role")
		return
	}

	oldRole := target.Role
	if err := auth.SetRole(ctx, h.db, target.ID, req.Role); err != nil {
		slog.ErrorContext(ctx, "failed to update role", "error", err, "user_id", target.ID)
		middleware.ErrorMessage(w, http.StatusInternalServerError, "Failed to update role")
		return
	}
	target.Role = req.Role

	slog.InfoContext(ctx, "user role updated",
		"user_id", target.ID,
		"old_role", oldRole,
		"new_role", req.Role,
		"admin_id", admin.ID,
	)
	h.notifier.SendRoleUpdate(ctx, target.Email, req.Role, oldRole)

	middleware.JSONResponse(w, http.StatusOK, userResponse{
		Message: fmt.Sprintf("User role updated from %s to %s", oldRole, req.Role),
		User:    target,
	})
}

// ListUsers handles GET /api/auth/users (admin only)
func (h *AuthHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := auth.ListUsers(r.Context(), h.db)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to list users", "error", err)
		middleware.ErrorMessage(w, http.StatusInternalServerError, "Failed to list users")
		return
	}
	middleware.JSONResponse(w, http.StatusOK, map[string][]models.User{"users": users})
}

// ForgotPassword handles POST /api/auth/forgot-password. The answer is the
// same whether or not the account exists.
func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req models.ForgotPasswordRequest
	if !decodeBody(w, r, &req) {
		return
	}
	addr := auth.NormalizeEmail(req.Email)
	if addr == "" {
		middleware.ErrorMessage(w, http.StatusBadRequest, "Email is required")
		return
	}

	ctx := r.Context()
	user, err := auth.GetUserByEmail(ctx, h.db, addr)
	if errors.Is(err, db.ErrNotFound) {
		slog.WarnContext(ctx, "password reset requested for unknown email", "email", addr)
		middleware.JSONResponse(w, http.StatusOK, map[string]string{"message": forgotPasswordMessage})
		return
	}
	if err != nil {
		slog.ErrorContext(ctx, "failed to load user", "error", err)
		middleware.ErrorMessage(w, http.StatusInternalServerError, "Failed to process request")
		return
	}

	var token string
	err = h.db.WithTx(ctx, func(tx *db.Tx) error {
		if err := auth.DeleteEmailTokens(ctx, tx, user.ID, models.PurposePasswordReset); err != nil {
			return err
		}
		var err error
		token, err = auth.IssueEmailToken(ctx, tx, user.ID, models.PurposePasswordReset, h.cfg.Auth.ResetTTL, h.now())
		return err
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to issue reset token", "error", err, "user_id", user.ID)
		middleware.ErrorMessage(w, http.StatusInternalServerError, "Failed to process request")
		return
	}

	if err := h.notifier.SendPasswordReset(ctx, user.Email, h.frontendLink("/reset-password", token)); err != nil {
		slog.ErrorContext(ctx, "failed to send password reset email", "error", err, "user_id", user.ID)
	}
	middleware.JSONResponse(w, http.StatusOK, map[string]string{"message": forgotPasswordMessage})
}

// ResetPassword handles POST /api/auth/reset-password
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req models.ResetPasswordRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Token == "" || req.Password == "" {
		middleware.ErrorMessage(w, http.StatusBadRequest, "Token and new password are required")
		return
	}
	if len(req.Password) < auth.MinPasswordLength {
		middleware.ErrorMessage(w, http.StatusBadRequest, fmt.Sprintf("Password must be at least %d characters long", auth.MinPasswordLength))
		return
	}

	ctx := r.Context()
	tok, err := auth.FindEmailToken(ctx, h.db, req.Token, models.PurposePasswordReset)
	if errors.Is(err, db.ErrNotFound) {
		middleware.ErrorMessage(w, http.StatusBadRequest, "Invalid or expired reset token")
		return
	}
	if err != nil {
		slog.ErrorContext(ctx, "failed to look up reset token", "error", err)
		middleware.ErrorMessage(w, http.StatusInternalServerError, "Failed to reset password")
		return
	}
	if tok.Expired(h.now()) {
		if err := auth.DeleteEmailToken(ctx, h.db, tok.ID); err != nil {
			slog.ErrorContext(ctx, "failed to delete expired token", "error", err)
		}
		middleware.ErrorMessage(w, http.StatusBadRequest, "Reset token has expired. Please request a new one.")
		return
	}

	hash, err := auth.HashPassword(req.Password, h.cfg.Auth.BcryptCost)
	if err != nil {
		slog.ErrorContext(ctx, "failed to hash password", "error", err)
		middleware.ErrorMessage(w, http.StatusInternalServerError, "Failed to reset password")
		return
	}

	var user models.User
	err = h.db.WithTx(ctx, func(tx *db.Tx) error {
		if err := auth.SetPasswordHash(ctx, tx, tok.UserID, hash); err != nil {
			return err
		}
		if err := auth.DeleteEmailToken(ctx, tx, tok.ID); err != nil {
			return err
		}
		var err error
		user, err = auth.GetUser(ctx, tx, tok.UserID)
		return err
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to reset password", "error", err, "user_id", tok.UserID)
		middleware.ErrorMessage(w, http.StatusInternalServerError, "Failed to reset password")
		return
	}

	slog.InfoContext(ctx, "password reset", "user_id", user.ID)
	middleware.JSONResponse(w, http.StatusOK, accountResponse{
		Message: "Password reset successfully. You can now log in.",
		UserID:  user.ID,
		Email:   user.Email,
	})
}
