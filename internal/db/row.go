package db

import (
	"strings"
	"time"
)

// TimestampLayout is the textual timestamp format accepted by DATETIME(3)
// columns.
const TimestampLayout = "2006-01-02 15:04:05.000"

// Now returns the current UTC time formatted with TimestampLayout.
func Now() string {
	return FormatTimestamp(time.Now())
}

// FormatTimestamp formats t in UTC with TimestampLayout.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// PickWithPrefix returns the columns of row whose name starts with prefix,
// with the prefix stripped. Useful to split joined rows such as
// "author_id", "author_name" into their own Row.
func PickWithPrefix(row Row, prefix string) Row {
	out := make(Row)
	for k, v := range row {
		if rest, ok := strings.CutPrefix(k, prefix); ok {
			out[rest] = v
		}
	}
	return out
}

// PickWithoutPrefix returns the columns of row whose name does not start with
// prefix, unchanged.
func PickWithoutPrefix(row Row, prefix string) Row {
	out := make(Row)
	for k, v := range row {
		if !strings.HasPrefix(k, prefix) {
			out[k] = v
		}
	}
	return out
}
