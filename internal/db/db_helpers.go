package db

import (
	"database/sql"
	"time"
)

// TimeFormat is the layout SQLite's CURRENT_TIMESTAMP produces.
const TimeFormat = "2006-01-02 15:04:05"

var timeLayouts = []string{
	TimeFormat,
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
}

// ParseTime parses a SQLite timestamp, returning the zero time on failure.
// The driver may hand DATETIME columns back already formatted as RFC 3339.
func ParseTime(s string) time.Time {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// ParseNullTime parses a nullable time string from SQLite
func ParseNullTime(ns sql.NullString) time.Time {
	if !ns.Valid || ns.String == "" {
		return time.Time{}
	}
	return ParseTime(ns.String)
}

// NullTimeString converts a time to a nullable string for SQLite storage
func NullTimeString(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(TimeFormat)
}

// BoolToInt converts a bool to int for SQLite storage
func BoolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// ExpectOneRow turns a zero-row update or delete into an error.
func ExpectOneRow(res sql.Result, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return &OpError{Op: op, Err: err}
	}
	if n == 0 {
		return &OpError{Op: op, Err: ErrNotFound}
	}
	return nil
}
