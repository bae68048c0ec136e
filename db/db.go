// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Dialect identifies the SQL flavour behind a DB.
type Dialect string

const (
	SQLite   Dialect = "sqlite"
	Postgres Dialect = "postgres"
)

// TimeFormat is how every timestamp column is stored. Fixed width keeps
// lexical and chronological order identical in both dialects.
const TimeFormat = "2006-01-02T15:04:05.000000Z07:00"

// Now returns the current UTC time in TimeFormat.
func Now() string {
	return FormatTime(time.Now())
}

// FormatTime renders t in TimeFormat (UTC).
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeFormat)
}

// ParseTime accepts TimeFormat and the looser ISO-8601 forms found in
// older rows (no fraction, no zone, space separator).
func ParseTime(s string) (time.Time, error) {
	layouts := []string{
		TimeFormat,
		time.RFC3339Nano,
		"2006-01-02T15:04:05.999999",
		"2006-01-02 15:04:05.999999",
		"2006-01-02 15:04:05",
		"2006-01-02",
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}

// ErrNotFound is returned by lookups that match no row.
var ErrNotFound = errors.New("not found")

// Querier is satisfied by *DB and *Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	Dialect() Dialect
}

// DB wraps *sql.DB so queries can be written once with ? placeholders.
type DB struct {
	*sql.DB
	dialect Dialect
}

// New wraps an already opened connection.
func New(conn *sql.DB, dialect Dialect) *DB {
	return &DB{DB: conn, dialect: dialect}
}

// Open connects to the database named by url. postgres:// and
// postgresql:// URLs use lib/pq; anything else is treated as a SQLite
// path (sqlite:///relative.db, sqlite:////abs/path.db or a bare path).
func Open(url string) (*DB, error) {
	if strings.HasPrefix(url, "postgres://") || strings.HasPrefix(url, "postgresql://") {
		conn, err := sql.Open("postgres", url)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres: %w", err)
		}
		conn.SetMaxOpenConns(20)
		conn.SetMaxIdleConns(5)
		conn.SetConnMaxLifetime(30 * time.Minute)
		return New(conn, Postgres), nil
	}

	path := SQLitePath(url)
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	}

	conn, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	// one writer at a time avoids SQLITE_BUSY under concurrent requests
	conn.SetMaxOpenConns(1)
	return New(conn, SQLite), nil
}

// SQLitePath extracts the file path from a sqlite:// URL.
func SQLitePath(url string) string {
	switch {
	case strings.HasPrefix(url, "sqlite:///"):
		url = strings.TrimPrefix(url, "sqlite:///")
	case strings.HasPrefix(url, "sqlite://"):
		url = strings.TrimPrefix(url, "sqlite://")
	}
	if url == "" {
		return ":memory:"
	}
	return url
}

func (d *DB) Dialect() Dialect { return d.dialect }

func (d *DB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return d.DB.ExecContext(ctx, Rebind(d.dialect, query), args...)
}

func (d *DB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return d.DB.QueryContext(ctx, Rebind(d.dialect, query), args...)
}

func (d *DB) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return d.DB.QueryRowContext(ctx, Rebind(d.dialect, query), args...)
}

// BeginTx starts a transaction that rebinds like its parent.
func (d *DB) BeginTx(ctx context.Context, opts *sql.TxOptions) (*Tx, error) {
	tx, err := d.DB.BeginTx(ctx, opts)
	if err != nil {
		return nil, err
	}
	return &Tx{Tx: tx, dialect: d.dialect}, nil
}

// WithTx runs fn inside a transaction, committing when fn returns nil.
func (d *DB) WithTx(ctx context.Context, fn func(tx *Tx) error) error {
	tx, err := d.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Tx is a transaction with placeholder rebinding.
type Tx struct {
	*sql.Tx
	dialect Dialect
}

func (t *Tx) Dialect() Dialect { return t.dialect }

func (t *Tx) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return t.Tx.ExecContext(ctx, Rebind(t.dialect, query), args...)
}

func (t *Tx) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return t.Tx.QueryContext(ctx, Rebind(t.dialect, query), args...)
}

func (t *Tx) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return t.Tx.QueryRowContext(ctx, Rebind(t.dialect, query), args...)
}

// Rebind rewrites ? placeholders to $1, $2, ... for Postgres. Question
// marks inside single-quoted literals are left alone.
func Rebind(dialect Dialect, query string) string {
	if dialect != Postgres || !strings.Contains(query, "?") {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	inQuote := false
	for i := 0; i < len(query); i++ {
		c := query[i]
		switch {
		case c == '\'':
			inQuote = !inQuote
			b.WriteByte(c)
		case c == '?' && !inQuote:
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// Placeholders returns "?, ?, ?" for n values.
func Placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// InsertID runs an INSERT ... RETURNING id and returns the new key.
// Both SQLite (3.35+) and Postgres support RETURNING.
func InsertID(ctx context.Context, q Querier, query string, args ...any) (int64, error) {
	var id int64
	if err := q.QueryRowContext(ctx, query+" RETURNING id", args...).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

// IsUniqueViolation reports whether err is a unique-constraint failure.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		code := sqliteErr.Code()
		if code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY {
			return true
		}
		return code&0xff == sqlite3.SQLITE_CONSTRAINT && strings.Contains(sqliteErr.Error(), "UNIQUE")
	}
	return false
}

// BoolInt stores booleans as 0/1 INTEGER in both dialects.
func BoolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// NullString converts "" to SQL NULL.
func NullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// Counts holds row totals reported by the diagnostics endpoint.
type Counts struct {
	Committees     int `json:"committees"`
	Bills          int `json:"bills"`
	BillCompliance int `json:"bill_compliance"`
}

// TableCounts returns row counts for the compliance tables.
func TableCounts(ctx context.Context, q Querier) (Counts, error) {
	var c Counts
	err := q.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM committees),
			(SELECT COUNT(*) FROM bills),
			(SELECT COUNT(*) FROM bill_compliance)
	`).Scan(&c.Committees, &c.Bills, &c.BillCompliance)
	if err != nil {
		return Counts{}, fmt.Errorf("failed to count rows: %w", err)
	}
	return c, nil
}
