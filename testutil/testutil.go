// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package testutil

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/beaconhill/compliance-tracker/auth"
	"github.com/beaconhill/compliance-tracker/cliparse"
	"github.com/beaconhill/compliance-tracker/db"
	"github.com/beaconhill/compliance-tracker/models"
)

// TestJWTSecret signs access tokens in tests.
const TestJWTSecret = "test-jwt-secret-0123456789"

// SetupTestDB creates a fresh SQLite database with the full schema in the
// test's temp directory.
func SetupTestDB(t *testing.T) *db.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "tracker.db")
	d, err := db.Open("sqlite:///" + path)
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { d.Close() })

	if err := db.CreateSchema(context.Background(), d); err != nil {
		t.Fatalf("Failed to create schema: %v", err)
	}
	return d
}

// GetTestConfig returns a standard test configuration
func GetTestConfig() cliparse.Config {
	cfg := cliparse.Defaults()
	cfg.Env = "testing"
	cfg.Database.URL = "sqlite:///:memory:"
	cfg.Database.Type = cliparse.DatabaseSQLite
	cfg.Auth.JWTSecret = TestJWTSecret
	cfg.Auth.BcryptCost = 4
	cfg.Security.RateLimitDefault = "10000 per hour"
	cfg.Security.RateLimitAuth = "10000 per minute"
	return cfg
}

// CreateTestCommittee inserts a committee.
func CreateTestCommittee(t *testing.T, d *db.DB, id, name, chamber string) {
	t.Helper()

	_, err := d.ExecContext(context.Background(), `
		INSERT INTO committees (committee_id, name, chamber, url, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`, id, name, chamber, "https://malegislature.gov/Committees/"+id, db.Now())
	if err != nil {
		t.Fatalf("Failed to create test committee: %v", err)
	}
}

// AddTestCompliance records one observation of a bill. The bill row is
// created on first use.
func AddTestCompliance(t *testing.T, d *db.DB, committeeID, billID, state string, at time.Time) {
	t.Helper()
	ctx := context.Background()

	_, err := d.ExecContext(ctx, `
		INSERT INTO bills (bill_id, bill_title, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (bill_id) DO NOTHING
	`, billID, "An Act relative to "+billID, db.Now())
	if err != nil {
		t.Fatalf("Failed to create test bill: %v", err)
	}

	_, err = d.ExecContext(ctx, `
		INSERT INTO bill_compliance (committee_id, bill_id, state, reason, generated_at)
		VALUES (?, ?, ?, '', ?)
	`, committeeID, billID, state, db.FormatTime(at))
	if err != nil {
		t.Fatalf("Failed to create test compliance row: %v", err)
	}
}

// AddTestMetadata stores a raw diff_report document for a committee.
func AddTestMetadata(t *testing.T, d *db.DB, committeeID string, at time.Time, diffReport string) {
	t.Helper()

	var report any
	if diffReport != "" {
		report = diffReport
	}
	_, err := d.ExecContext(context.Background(), `
		INSERT INTO compliance_scan_metadata (committee_id, scan_date, diff_report, analysis)
		VALUES (?, ?, ?, ?)
	`, committeeID, db.FormatTime(at), report, nil)
	if err != nil {
		t.Fatalf("Failed to create test metadata: %v", err)
	}
}

// CreateTestUser inserts an account and returns it.
func CreateTestUser(t *testing.T, d *db.DB, email, password, role string, active bool) models.User {
	t.Helper()

	hash, err := auth.HashPassword(password, 4)
	if err != nil {
		t.Fatalf("Failed to hash password: %v", err)
	}
	u := models.User{Email: email, PwHash: hash, Role: role, IsActive: active, CreatedAt: db.Now()}
	u.ID, err = db.InsertID(context.Background(), d, `
		INSERT INTO users (email, pw_hash, role, is_active, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, u.Email, u.PwHash, u.Role, db.BoolInt(u.IsActive), u.CreatedAt)
	if err != nil {
		t.Fatalf("Failed to create test user: %v", err)
	}
	return u
}

// CreateTestSigningKey issues a signing key for userID and returns its id
// and secret.
func CreateTestSigningKey(t *testing.T, d *db.DB, userID int64) (keyID, secret string) {
	t.Helper()

	keyID, secret, err := auth.GenerateKeyPair()
	if err != nil {
		t.Fatalf("Failed to generate key pair: %v", err)
	}
	_, err = d.ExecContext(context.Background(), `
		INSERT INTO signing_keys (user_id, key_id, secret, created_at)
		VALUES (?, ?, ?, ?)
	`, userID, keyID, secret, db.Now())
	if err != nil {
		t.Fatalf("Failed to create test signing key: %v", err)
	}
	return keyID, secret
}

// AccessToken issues a bearer token for u signed with TestJWTSecret.
func AccessToken(t *testing.T, u models.User) string {
	t.Helper()

	m, err := auth.NewJWTManager(TestJWTSecret, time.Hour)
	if err != nil {
		t.Fatalf("Failed to create JWT manager: %v", err)
	}
	token, err := m.GenerateToken(u.ID, u.Role)
	if err != nil {
		t.Fatalf("Failed to issue token: %v", err)
	}
	return token
}

// BearerHeaders returns request headers carrying token.
func BearerHeaders(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

// SignedRequest builds an ingest request signed with keyID/secret at ts.
func SignedRequest(method, path string, body []byte, keyID, secret string, ts time.Time) *http.Request {
	stamp := strconv.FormatInt(ts.Unix(), 10)
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(auth.HeaderKeyID, keyID)
	req.Header.Set(auth.HeaderTimestamp, stamp)
	req.Header.Set(auth.HeaderSignature, auth.SignRequest(secret, stamp, method, req.URL.Path, body))
	return req
}

// MakeRequest creates an HTTP test request
func MakeRequest(method, path string, body interface{}, headers map[string]string) *http.Request {
	var req *http.Request
	if body != nil {
		jsonBody, _ := json.Marshal(body)
		req = httptest.NewRequest(method, path, bytes.NewReader(jsonBody))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	req.Header.Set("User-Agent", "testutil-client/1.0")

	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return req
}

// AssertStatus checks that the response has the expected status code
func AssertStatus(t *testing.T, w *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if w.Code != expected {
		t.Errorf("Expected status %d, got %d. Body: %s", expected, w.Code, w.Body.String())
	}
}

// AssertJSON decodes the response body into the provided struct
func AssertJSON(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("Failed to decode JSON response: %v", err)
	}
}
