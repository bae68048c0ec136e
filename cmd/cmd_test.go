// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package cmd

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beaconhill/compliance-tracker/auth"
	"github.com/beaconhill/compliance-tracker/compliance"
	"github.com/beaconhill/compliance-tracker/db"
	"github.com/beaconhill/compliance-tracker/models"
	"github.com/beaconhill/compliance-tracker/testutil"
)

var day1 = time.Date(2024, 11, 9, 12, 0, 0, 0, time.UTC)

// testEnv isolates a command run from the caller's environment and returns
// the URL of an empty database in a temp directory.
func testEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	for _, v := range []string{
		"CONFIG_PATH", "DATABASE_URL", "DATABASE_TYPE", "JWT_SECRET_KEY", "APP_ENV", "FLASK_ENV",
		"ADMIN_EMAIL", "ADMIN_PASSWORD", "MAIL_SERVER", "MAIL_USERNAME", "MAIL_PASSWORD",
		"CORS_ORIGINS", "FRONTEND_URL", "LOG_LEVEL", "BCRYPT_COST",
	} {
		t.Setenv(v, "")
		os.Unsetenv(v)
	}
	t.Setenv("BCRYPT_COST", "4")
	t.Setenv("LOG_LEVEL", "error")
	return "sqlite:///" + filepath.Join(dir, "tracker.db")
}

// withDB opens the database at url, creates the schema and runs seed
// against it before any command touches the file.
func withDB(t *testing.T, url string, seed func(d *db.DB)) {
	t.Helper()
	d, err := db.Open(url)
	require.NoError(t, err)
	defer d.Close()
	require.NoError(t, db.CreateSchema(context.Background(), d))
	seed(d)
}

func run(t *testing.T, url string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := NewRootCommand()
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(append([]string{"-d", url}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestConfigShow(t *testing.T) {
	url := testEnv(t)
	t.Setenv("JWT_SECRET_KEY", "very-secret-signing-key")
	t.Setenv("ADMIN_PASSWORD", "hunter2hunter2")

	out, err := run(t, url, "config", "show")
	require.NoError(t, err)

	assert.Contains(t, out, "jwt_secret:")
	assert.Contains(t, out, "********")
	assert.NotContains(t, out, "very-secret-signing-key")
	assert.NotContains(t, out, "hunter2hunter2")
	assert.Contains(t, out, "rate_limit_auth: 5 per minute")
}

func TestUsersActivate(t *testing.T) {
	url := testEnv(t)
	withDB(t, url, func(d *db.DB) {
		testutil.CreateTestUser(t, d, "staffer@example.org", "password123", models.RoleUser, false)
		testutil.CreateTestUser(t, d, "aide@example.org", "password123", models.RoleUser, false)
	})

	out, err := run(t, url, "users", "activate", "Staffer@Example.org")
	require.NoError(t, err)
	assert.Contains(t, out, "Activated staffer@example.org")

	out, err = run(t, url, "users", "activate", "staffer@example.org")
	require.NoError(t, err)
	assert.Contains(t, out, "already active")

	out, err = run(t, url, "users", "activate", "--all")
	require.NoError(t, err)
	assert.Contains(t, out, "Activated 1 user(s)")

	out, err = run(t, url, "users", "activate", "--all")
	require.NoError(t, err)
	assert.Contains(t, out, "No inactive users found")

	_, err = run(t, url, "users", "activate", "nobody@example.org")
	assert.ErrorContains(t, err, "user not found: nobody@example.org")

	_, err = run(t, url, "users", "activate")
	assert.Error(t, err, "needs an email or --all")
	_, err = run(t, url, "users", "activate", "--all", "aide@example.org")
	assert.Error(t, err, "email and --all are exclusive")

	out, err = run(t, url, "users", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "aide@example.org")
	assert.NotContains(t, out, "inactive")
}

func TestAdminReset(t *testing.T) {
	url := testEnv(t)
	withDB(t, url, func(d *db.DB) {
		testutil.CreateTestUser(t, d, defaultAdminEmail, "change-this-admin-password", models.RoleAdmin, true)
		testutil.CreateTestUser(t, d, "ops@example.org", "oldpassword", models.RoleUser, false)
	})

	out, err := run(t, url, "admin", "reset", "--list")
	require.NoError(t, err)
	assert.Contains(t, out, "INSECURE DEFAULT")

	t.Setenv("ADMIN_EMAIL", "ops@example.org")
	t.Setenv("ADMIN_PASSWORD", "short")
	_, err = run(t, url, "admin", "reset", "--create-secure")
	assert.ErrorContains(t, err, "at least 8 characters")

	t.Setenv("ADMIN_PASSWORD", "a-much-longer-password")
	out, err = run(t, url, "admin", "reset", "--delete-default", "--create-secure", "--list")
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted default admin "+defaultAdminEmail)
	assert.Contains(t, out, "Updated admin user ops@example.org")
	assert.NotContains(t, out, "INSECURE DEFAULT")

	withDB(t, url, func(d *db.DB) {
		ctx := context.Background()
		_, err := auth.GetUserByEmail(ctx, d, defaultAdminEmail)
		assert.ErrorIs(t, err, db.ErrNotFound)

		u, err := auth.GetUserByEmail(ctx, d, "ops@example.org")
		require.NoError(t, err)
		assert.Equal(t, models.RoleAdmin, u.Role)
		assert.True(t, u.IsActive)
		assert.True(t, auth.CheckPassword(u.PwHash, "a-much-longer-password"))
	})

	t.Setenv("ADMIN_EMAIL", defaultAdminEmail)
	_, err = run(t, url, "admin", "reset", "--create-secure")
	assert.ErrorContains(t, err, "must not be "+defaultAdminEmail)
}

func TestSeedAdmin(t *testing.T) {
	testEnv(t)
	d := testutil.SetupTestDB(t)
	ctx := context.Background()

	cfg := testutil.GetTestConfig()
	cfg.Admin.Password = ""
	require.NoError(t, seedAdmin(ctx, d, cfg.Admin, 4))
	users, err := auth.ListUsers(ctx, d)
	require.NoError(t, err)
	assert.Empty(t, users, "no password, no admin")

	cfg.Admin.Email = "Root@Example.org"
	cfg.Admin.Password = "a-much-longer-password"
	require.NoError(t, seedAdmin(ctx, d, cfg.Admin, 4))
	require.NoError(t, seedAdmin(ctx, d, cfg.Admin, 4), "second run is a no-op")

	users, err = auth.ListUsers(ctx, d)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "root@example.org", users[0].Email)
	assert.Equal(t, models.RoleAdmin, users[0].Role)
	assert.True(t, users[0].IsActive)
}

func TestCleanup(t *testing.T) {
	url := testEnv(t)
	withDB(t, url, func(d *db.DB) {
		testutil.CreateTestCommittee(t, d, "J10", "Joint Committee on Transportation", "Joint")
		for i := range 3 {
			testutil.AddTestCompliance(t, d, "J10", "H100", "compliant", day1.Add(time.Duration(i)*time.Hour))
		}
		testutil.AddTestCompliance(t, d, "J10", "H200", "unknown", day1)
	})

	out, err := run(t, url, "cleanup", "--stats-only")
	require.NoError(t, err)
	assert.Contains(t, out, "Total entries:               4")

	out, err = run(t, url, "cleanup", "--dry-run")
	require.NoError(t, err)
	assert.Contains(t, out, "Dry run: would delete 2 bill_compliance and 0 compliance_scan_metadata rows")

	out, err = run(t, url, "cleanup")
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted 2 bill_compliance rows (2 remain)")

	out, err = run(t, url, "cleanup")
	require.NoError(t, err)
	assert.Contains(t, out, "No cleanup needed")
}

func TestCompare(t *testing.T) {
	url := testEnv(t)
	day2 := day1.Add(24 * time.Hour)
	withDB(t, url, func(d *db.DB) {
		testutil.CreateTestCommittee(t, d, "J10", "Joint Committee on Transportation", "Joint")
		testutil.AddTestCompliance(t, d, "J10", "B1", "compliant", day1)
		testutil.AddTestCompliance(t, d, "J10", "B2", "non-compliant", day1)
		testutil.AddTestCompliance(t, d, "J10", "B1", "non-compliant", day2)
		testutil.AddTestCompliance(t, d, "J10", "B2", "compliant", day2)
		testutil.AddTestCompliance(t, d, "J10", "B3", "compliant", day2)
		testutil.AddTestMetadata(t, d, "J10", day2,
			`{"daily":{"compliance_delta":16.7,"previous_date":"2024-11-09","current_date":"2024-11-10"}}`)
	})

	out, err := run(t, url, "compare", "--list-committees")
	require.NoError(t, err)
	assert.Contains(t, out, "Joint Committee on Transportation")

	out, err = run(t, url, "compare", "--list-dates", "J10")
	require.NoError(t, err)
	assert.Contains(t, out, "2024-11-10  3 bills")
	assert.Contains(t, out, "2024-11-09  2 bills")

	out, err = run(t, url, "compare", "J10", "2024-11-09", "2024-11-10")
	require.NoError(t, err)
	assert.Contains(t, out, "Joint Committee on Transportation (J10)")
	assert.Contains(t, out, "New bills (1): B3")
	assert.Contains(t, out, "B1: compliant -> non-compliant")
	assert.Contains(t, out, "Stored diff report")

	out, err = run(t, url, "compare", "J10", "2024-11-09", "2024-11-10", "--json")
	require.NoError(t, err)
	assert.Contains(t, out, `"committee_id"`)

	_, err = run(t, url, "compare", "J10", "2024-01-01", "2024-11-10")
	assert.ErrorIs(t, err, compliance.ErrNoScan)

	_, err = run(t, url, "compare", "J10")
	assert.Error(t, err, "needs three arguments")
}

func TestChangelog(t *testing.T) {
	url := testEnv(t)
	agent := "compliance-scanner/2.1.0"
	withDB(t, url, func(d *db.DB) {
		_, err := compliance.ImportChangelog(context.Background(), d, compliance.ChangelogPayload{
			UserAgent: &agent,
			Changelog: []compliance.ChangelogRelease{{
				Version: "2.1.0",
				Date:    "2025-01-15",
				Changes: map[string]compliance.StringList{
					"fixed": {"Vote counts on joint committees"},
					"added": {"Hearing notice checks"},
				},
			}},
		}, day1)
		require.NoError(t, err)
	})

	out, err := run(t, url, "changelog", "--plain")
	require.NoError(t, err)
	assert.Contains(t, out, "## 2.1.0 (2025-01-15)")
	assert.Contains(t, out, "from compliance-scanner/2.1.0")
	added := bytes.Index([]byte(out), []byte("### Added"))
	fixed := bytes.Index([]byte(out), []byte("### Fixed"))
	assert.True(t, added >= 0 && fixed > added, "categories in display order")
	assert.Contains(t, out, "- Hearing notice checks")

	out, err = run(t, url, "changelog")
	require.NoError(t, err)
	assert.Contains(t, out, "Hearing notice checks")

	_, err = run(t, url, "changelog", "--version", "9.9.9")
	assert.ErrorIs(t, err, db.ErrNotFound)

	_, err = run(t, url, "changelog", "--limit", "0")
	assert.Error(t, err)
}

func TestChangelogMarkdown_Empty(t *testing.T) {
	assert.Equal(t, "# Changelog\n\nNo changelog entries.\n", changelogMarkdown(nil))
}

func TestOptimizeRequiresPostgres(t *testing.T) {
	url := testEnv(t)

	out, err := run(t, url, "optimize")
	require.NoError(t, err)
	assert.Contains(t, out, "Usage:")

	_, err = run(t, url, "optimize", "--status")
	assert.ErrorIs(t, err, db.ErrNotPostgres)
	_, err = run(t, url, "optimize", "--all")
	assert.ErrorIs(t, err, db.ErrNotPostgres)
}

func TestDoctor(t *testing.T) {
	url := testEnv(t)
	withDB(t, url, func(d *db.DB) {
		testutil.CreateTestUser(t, d, "ops@example.org", "password123", models.RoleAdmin, true)
	})
	t.Setenv("ADMIN_EMAIL", "ops@example.org")
	t.Setenv("JWT_SECRET_KEY", testutil.TestJWTSecret)
	t.Setenv("FRONTEND_URL", "https://app.example.org")

	out, err := run(t, url, "doctor")
	require.NoError(t, err)
	assert.Contains(t, out, "PASS  Configuration")
	assert.Contains(t, out, "PASS  Database")
	assert.Contains(t, out, "PASS  CORS")
	assert.Contains(t, out, "admin ops@example.org: active")
	assert.Contains(t, out, "users: 1 (1 active, 0 inactive)")
	assert.Contains(t, out, "https://app.example.org")
	assert.Contains(t, out, "CORS_ORIGINS not set")

	os.Unsetenv("JWT_SECRET_KEY")
	out, err = run(t, url, "doctor")
	assert.ErrorIs(t, err, errUnhealthy)
	assert.Contains(t, out, "FAIL  Configuration")
	assert.Contains(t, out, "JWT_SECRET_KEY required")
}
