// Package timeutil formats and parses the UTC timestamps stored
// in the database.
package timeutil

import (
	"strings"
	"time"
)

// layouts accepted by Parse, most specific first.
var layouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05Z",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Format returns t as an RFC3339Nano UTC string, or "" for the
// zero time.
func Format(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// sortableLayout has fixed width so stored values order
// lexically the same as chronologically.
const sortableLayout = "2006-01-02T15:04:05.000Z"

// FormatSortable returns t in UTC with millisecond precision and
// a fixed width, or "" for the zero time.
func FormatSortable(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(sortableLayout)
}

// Ptr is Format returning nil for the zero time.
func Ptr(t time.Time) *string {
	if t.IsZero() {
		return nil
	}
	s := Format(t)
	return &s
}

// Parse reads a timestamp in any of the stored layouts. Values
// without a zone are taken as UTC. ok is false for empty or
// unparseable input.
func Parse(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// IsDate reports whether s is a well-formed YYYY-MM-DD string.
func IsDate(s string) bool {
	_, err := time.Parse("2006-01-02", s)
	return err == nil
}
