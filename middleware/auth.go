// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package middleware

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/beaconhill/compliance-tracker/auth"
	"github.com/beaconhill/compliance-tracker/authz"
	"github.com/beaconhill/compliance-tracker/db"
	"github.com/beaconhill/compliance-tracker/models"
)

type contextKey int

const (
	userKey contextKey = iota
	signingKeyKey
)

// UserFromContext returns the account Authenticate loaded.
func UserFromContext(ctx context.Context) (models.User, bool) {
	u, ok := ctx.Value(userKey).(models.User)
	return u, ok
}

// WithUser stores u in ctx.
func WithUser(ctx context.Context, u models.User) context.Context {
	return context.WithValue(ctx, userKey, u)
}

// SigningKeyFromContext returns the key that signed an ingest request.
func SigningKeyFromContext(ctx context.Context) (models.SigningKey, bool) {
	k, ok := ctx.Value(signingKeyKey).(models.SigningKey)
	return k, ok
}

// Authenticator guards routes with bearer tokens, role permissions and
// ingest signatures.
type Authenticator struct {
	db       *db.DB
	jwt      *auth.JWTManager
	enforcer *authz.Enforcer
	skew     time.Duration
	now      func() time.Time
}

// NewAuthenticator builds an Authenticator. skew bounds the clock
// difference accepted on signed ingest requests.
func NewAuthenticator(d *db.DB, jwt *auth.JWTManager, enforcer *authz.Enforcer, skew time.Duration) *Authenticator {
	if skew <= 0 {
		skew = auth.DefaultSkew
	}
	return &Authenticator{db: d, jwt: jwt, enforcer: enforcer, skew: skew, now: time.Now}
}

// Authenticate requires a valid bearer token whose user still exists and
// is active. The current database row, not the token, supplies the role.
func (a *Authenticator) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			ErrorResponse(w, http.StatusUnauthorized, "Authentication required")
			return
		}
		claims, err := a.jwt.ValidateToken(token)
		if err != nil {
			ErrorResponse(w, http.StatusUnauthorized, "Invalid or expired token")
			return
		}
		id, err := claims.UserID()
		if err != nil {
			ErrorResponse(w, http.StatusUnauthorized, "Invalid or expired token")
			return
		}

		user, err := auth.GetUser(r.Context(), a.db, id)
		if err != nil && !errors.Is(err, db.ErrNotFound) {
			slog.ErrorContext(r.Context(), "failed to load user", "error", err, "user_id", id)
			ErrorMessage(w, http.StatusInternalServerError, "Internal server error")
			return
		}
		if err != nil || !user.IsActive {
			ErrorMessage(w, http.StatusUnauthorized, "User not found or inactive")
			return
		}

		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
	})
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

var forbiddenMessages = map[string]string{
	authz.ResourceKeys:      "Insufficient permissions. Privileged role required.",
	authz.ResourceKeysAdmin: "Admin permissions required",
}

// RequirePermission lets the request through only when the authenticated
// user's role may perform action on resource. It must run after
// Authenticate.
func (a *Authenticator) RequirePermission(resource, action string) func(http.Handler) http.Handler {
	msg, ok := forbiddenMessages[resource]
	if !ok {
		msg = "Insufficient permissions"
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := UserFromContext(r.Context())
			if !ok {
				ErrorResponse(w, http.StatusUnauthorized, "Authentication required")
				return
			}
			if !a.enforcer.Allowed(user.Role, resource, action) {
				slog.WarnContext(r.Context(), "permission denied",
					"user_id", user.ID,
					"role", user.Role,
					"resource", resource,
					"action", action,
				)
				ErrorMessage(w, http.StatusForbidden, msg)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireIngestSignature verifies the X-Ingest-* headers against the body
// and stores the signing key in the context. The body is restored for the
// handler.
func (a *Authenticator) RequireIngestSignature(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		r.Body.Close()
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				ErrorMessage(w, http.StatusRequestEntityTooLarge, "Request entity too large")
				return
			}
			StatusError(w, http.StatusBadRequest, "Failed to read request body")
			return
		}

		key, err := auth.VerifyIngest(r.Context(), a.db, auth.IngestRequest{
			KeyID:     r.Header.Get(auth.HeaderKeyID),
			Timestamp: r.Header.Get(auth.HeaderTimestamp),
			Signature: r.Header.Get(auth.HeaderSignature),
			Method:    r.Method,
			Path:      r.URL.Path,
			Body:      body,
		}, a.now(), a.skew)
		if err != nil {
			slog.WarnContext(r.Context(), "ingest authentication failed",
				"error", err,
				"key_id", r.Header.Get(auth.HeaderKeyID),
				"path", r.URL.Path,
			)
			StatusError(w, http.StatusUnauthorized, "Authentication failed: "+ingestFailure(err))
			return
		}

		r.Body = io.NopCloser(bytes.NewReader(body))
		ctx := context.WithValue(r.Context(), signingKeyKey, key)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ingestFailure hides lookup errors behind a generic message; the
// sentinel errors are safe to show.
func ingestFailure(err error) string {
	for _, known := range []error{
		auth.ErrMissingHeaders,
		auth.ErrBadTimestamp,
		auth.ErrTimestampSkew,
		auth.ErrUnknownKey,
		auth.ErrRevokedKey,
		auth.ErrInvalidSignature,
	} {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	return "Signature verification error"
}
