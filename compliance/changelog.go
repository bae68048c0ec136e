// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package compliance

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/goccy/go-json"

	"github.com/beaconhill/compliance-tracker/db"
	"github.com/beaconhill/compliance-tracker/models"
)

// StringList accepts a JSON array or a single scalar, which becomes a
// one-element list.
type StringList []string

func (l *StringList) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*l = nil
		return nil
	}
	if len(b) > 0 && b[0] == '[' {
		var items []any
		if err := json.Unmarshal(b, &items); err != nil {
			return err
		}
		out := make([]string, 0, len(items))
		for _, it := range items {
			out = append(out, scalarString(it))
		}
		*l = out
		return nil
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*l = []string{scalarString(v)}
	return nil
}

func scalarString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

// ChangelogRelease is one version in a pushed changelog.
type ChangelogRelease struct {
	Version string                `json:"version"`
	Date    string                `json:"date"`
	Changes map[string]StringList `json:"changes"`
}

// ChangelogPayload is the body of POST /ingest/changelog.
type ChangelogPayload struct {
	CurrentVersion string             `json:"current_version"`
	UserAgent      *string            `json:"user_agent"`
	Changelog      []ChangelogRelease `json:"changelog"`
}

// ChangelogResult counts what ImportChangelog wrote. Versions counts only
// versions that did not exist before.
type ChangelogResult struct {
	Versions int
	Entries  int
}

// orderedCategories yields known categories in display order, then any
// others alphabetically.
func orderedCategories(changes map[string]StringList) []string {
	out := make([]string, 0, len(changes))
	for _, c := range models.ChangelogCategories {
		if _, ok := changes[c]; ok {
			out = append(out, c)
		}
	}
	var extra []string
	for c := range changes {
		if !slices.Contains(models.ChangelogCategories, c) {
			extra = append(extra, c)
		}
	}
	slices.Sort(extra)
	return append(out, extra...)
}

// ImportChangelog stores every release in p. Releases missing a version or
// a date are skipped. A release that already exists has its entries
// replaced and its date, user agent and received_at refreshed.
func ImportChangelog(ctx context.Context, d *db.DB, p ChangelogPayload, now time.Time) (ChangelogResult, error) {
	var res ChangelogResult
	for _, rel := range p.Changelog {
		if rel.Version == "" || rel.Date == "" {
			continue
		}
		for c := range rel.Changes {
			if !slices.Contains(models.ChangelogCategories, c) {
				return res, fmt.Errorf("%w: unknown changelog category %q in version %s", ErrInvalidInput, c, rel.Version)
			}
		}
	}

	ts := db.FormatTime(now)
	err := d.WithTx(ctx, func(tx *db.Tx) error {
		for _, rel := range p.Changelog {
			if rel.Version == "" || rel.Date == "" {
				slog.WarnContext(ctx, "skipping changelog entry without version or date", "version", rel.Version)
				continue
			}

			var versionID int64
			err := tx.QueryRowContext(ctx, `SELECT id FROM changelog_versions WHERE version = ?`, rel.Version).Scan(&versionID)
			switch {
			case errors.Is(err, sql.ErrNoRows):
				versionID, err = db.InsertID(ctx, tx, `
					INSERT INTO changelog_versions (version, date, user_agent, received_at)
					VALUES (?, ?, ?, ?)
				`, rel.Version, rel.Date, p.UserAgent, ts)
				if err != nil {
					return fmt.Errorf("failed to insert version %s: %w", rel.Version, err)
				}
				res.Versions++
			case err != nil:
				return fmt.Errorf("failed to look up version %s: %w", rel.Version, err)
			default:
				if _, err := tx.ExecContext(ctx, `DELETE FROM changelog_entries WHERE version_id = ?`, versionID); err != nil {
					return fmt.Errorf("failed to clear version %s: %w", rel.Version, err)
				}
				if _, err := tx.ExecContext(ctx, `
					UPDATE changelog_versions SET date = ?, user_agent = ?, received_at = ? WHERE id = ?
				`, rel.Date, p.UserAgent, ts, versionID); err != nil {
					return fmt.Errorf("failed to update version %s: %w", rel.Version, err)
				}
			}

			for _, category := range orderedCategories(rel.Changes) {
				for _, desc := range rel.Changes[category] {
					if _, err := tx.ExecContext(ctx, `
						INSERT INTO changelog_entries (version_id, category, description) VALUES (?, ?, ?)
					`, versionID, category, desc); err != nil {
						return fmt.Errorf("failed to insert entry for %s: %w", rel.Version, err)
					}
					res.Entries++
				}
			}
		}
		return nil
	})
	if err != nil {
		return ChangelogResult{}, err
	}
	return res, nil
}

// ListChangelog returns the limit most recently received versions, or just
// the named version when version is set (db.ErrNotFound if absent).
func ListChangelog(ctx context.Context, q db.Querier, limit int, version string) ([]models.ChangelogVersion, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if version != "" {
		rows, err = q.QueryContext(ctx, `
			SELECT id, version, date, user_agent, received_at
			FROM changelog_versions
			WHERE version = ?
		`, version)
	} else {
		rows, err = q.QueryContext(ctx, `
			SELECT id, version, date, user_agent, received_at
			FROM changelog_versions
			ORDER BY received_at DESC
			LIMIT ?
		`, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query changelog: %w", err)
	}

	var (
		ids      []int64
		versions []models.ChangelogVersion
	)
	for rows.Next() {
		var (
			id int64
			v  models.ChangelogVersion
		)
		if err := rows.Scan(&id, &v.Version, &v.Date, &v.UserAgent, &v.ReceivedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan changelog version: %w", err)
		}
		v.Changes = map[string][]string{}
		ids = append(ids, id)
		versions = append(versions, v)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read changelog: %w", err)
	}
	if version != "" && len(versions) == 0 {
		return nil, db.ErrNotFound
	}

	// entries are read after the versions cursor is closed; SQLite runs on
	// a single connection
	for i, id := range ids {
		entries, err := q.QueryContext(ctx, `
			SELECT category, description
			FROM changelog_entries
			WHERE version_id = ?
			ORDER BY id
		`, id)
		if err != nil {
			return nil, fmt.Errorf("failed to query changelog entries: %w", err)
		}
		for entries.Next() {
			var category, desc string
			if err := entries.Scan(&category, &desc); err != nil {
				entries.Close()
				return nil, fmt.Errorf("failed to scan changelog entry: %w", err)
			}
			versions[i].Changes[category] = append(versions[i].Changes[category], desc)
		}
		entries.Close()
		if err := entries.Err(); err != nil {
			return nil, fmt.Errorf("failed to read changelog entries: %w", err)
		}
	}
	if versions == nil {
		versions = []models.ChangelogVersion{}
	}
	return versions, nil
}
