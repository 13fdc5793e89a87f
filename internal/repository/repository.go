// Package repository holds the SQLite persistence layer. Each repository
// wraps one table (plus its read joins) and maps rows to domain structs.
package repository

import (
	"database/sql"
	"errors"
	"time"

	"github.com/mattn/go-sqlite3"
)

// Snapshot and delivery dates are stored as YYYY-MM-DD text so day-level
// uniqueness and lexicographic comparisons work without timezone math.
const dateLayout = "2006-01-02"

// FormatDate renders a UTC calendar date for storage.
func FormatDate(t time.Time) string {
	return t.UTC().Format(dateLayout)
}

// ParseDate parses a stored calendar date back into UTC midnight.
func ParseDate(s string) (time.Time, error) {
	return time.ParseInLocation(dateLayout, s, time.UTC)
}

// IsUniqueConstraint reports whether err is a SQLite unique-constraint
// violation, which callers use to detect insert races on idempotency keys.
func IsUniqueConstraint(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

func timeOrZero(t sql.NullTime) time.Time {
	if !t.Valid {
		return time.Time{}
	}
	return t.Time
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func stringOrEmpty(s sql.NullString) string {
	if !s.Valid {
		return ""
	}
	return s.String
}
