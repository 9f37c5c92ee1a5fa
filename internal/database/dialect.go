package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// dialect captures the few places where SQLite and PostgreSQL disagree.
type dialect struct {
	driver      string
	numbered    bool   // $1..$n placeholders instead of ?
	skipLocked  string // appended to the LRU selection subquery
	forUpdate   string // appended to read-for-update selects
	types       *strings.Replacer
	dsnDecorate func(path string) string
}

var sqliteDialect = &dialect{
	driver: DriverSQLite,
	// SQLite has no row locks. The conditional UPDATE ... WHERE state = 'AVAILABLE'
	// is the compare-and-swap, and _txlock=immediate serializes writers.
	skipLocked: "",
	forUpdate:  "",
	types: strings.NewReplacer(
		"{{timestamp}}", "TIMESTAMP",
		"{{bigint}}", "INTEGER",
	),
	dsnDecorate: func(path string) string {
		if strings.Contains(path, "?") {
			return path
		}
		return path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_txlock=immediate&_foreign_keys=on"
	},
}

var postgresDialect = &dialect{
	driver:     DriverPostgres,
	numbered:   true,
	skipLocked: "FOR UPDATE SKIP LOCKED",
	forUpdate:  "FOR UPDATE",
	types: strings.NewReplacer(
		"{{timestamp}}", "TIMESTAMPTZ",
		"{{bigint}}", "BIGINT",
	),
	dsnDecorate: func(dsn string) string { return dsn },
}

func dialectFor(driver string) (*dialect, error) {
	switch driver {
	case "", DriverSQLite:
		return sqliteDialect, nil
	case DriverPostgres:
		return postgresDialect, nil
	}
	return nil, fmt.Errorf("unsupported database driver %q", driver)
}

// rebind rewrites ? placeholders to $n for drivers that need numbered parameters.
// Question marks inside single-quoted literals are left alone.
func (d *dialect) rebind(query string) string {
	if !d.numbered {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 16)
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

func (d *dialect) schema(template string) string {
	return d.types.Replace(template)
}

// isUniqueViolation reports whether err is a unique or primary key constraint failure.
func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrConstraint &&
			(sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
				sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// conn routes every statement through the dialect's placeholder rewriting.
type conn struct {
	q querier
	d *dialect
}

func (c conn) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return c.q.ExecContext(ctx, c.d.rebind(query), args...)
}

func (c conn) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return c.q.QueryContext(ctx, c.d.rebind(query), args...)
}

func (c conn) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return c.q.QueryRowContext(ctx, c.d.rebind(query), args...)
}
