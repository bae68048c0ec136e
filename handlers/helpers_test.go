// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/beaconhill/compliance-tracker/auth"
	"github.com/beaconhill/compliance-tracker/email"
	"github.com/beaconhill/compliance-tracker/middleware"
	"github.com/beaconhill/compliance-tracker/models"
	"github.com/beaconhill/compliance-tracker/testutil"
)

// newTestNotifier returns a notifier that records instead of sending.
func newTestNotifier(t *testing.T) (*email.Notifier, *email.Recorder) {
	t.Helper()
	rec := &email.Recorder{}
	n, err := email.NewNotifier(rec, email.NotifierConfig{ContactEmail: "info@example.org"})
	if err != nil {
		t.Fatalf("Failed to create notifier: %v", err)
	}
	return n, rec
}

func newTestJWT(t *testing.T) *auth.JWTManager {
	t.Helper()
	m, err := auth.NewJWTManager(testutil.TestJWTSecret, time.Hour)
	if err != nil {
		t.Fatalf("Failed to create JWT manager: %v", err)
	}
	return m
}

// asUser attaches u to the request the way Authenticate does.
func asUser(req *http.Request, u models.User) *http.Request {
	return req.WithContext(middleware.WithUser(req.Context(), u))
}

func serve(h http.HandlerFunc, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h(w, req)
	return w
}

func decodeMap(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &m); err != nil {
		t.Fatalf("Failed to decode response %q: %v", w.Body.String(), err)
	}
	return m
}

func assertError(t *testing.T, w *httptest.ResponseRecorder, status int, msg string) {
	t.Helper()
	testutil.AssertStatus(t, w, status)
	if got := decodeMap(t, w)["error"]; got != msg {
		t.Errorf("Expected error %q, got %v", msg, got)
	}
}

var tokenPattern = regexp.MustCompile(`token=([A-Za-z0-9_-]+)`)

// mailedToken pulls the token out of the most recent message.
func mailedToken(t *testing.T, rec *email.Recorder) string {
	t.Helper()
	msgs := rec.Messages()
	if len(msgs) == 0 {
		t.Fatal("Expected an email to be sent")
	}
	m := tokenPattern.FindStringSubmatch(msgs[len(msgs)-1].Text)
	if m == nil {
		t.Fatalf("No token in email body: %s", msgs[len(msgs)-1].Text)
	}
	return m[1]
}
