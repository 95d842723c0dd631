package db

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStatementCopiesParams(t *testing.T) {
	params := []any{1, "a"}
	stmt := NewStatement("INSERT INTO t (id, name) VALUES (?, ?)", params...)
	params[0] = 99

	require.Len(t, stmt.Params, 2)
	assert.Equal(t, 1, stmt.Params[0])
	assert.Equal(t, "a", stmt.Params[1])
}

func TestNewStatementWithoutParams(t *testing.T) {
	stmt := NewStatement("SELECT 1")
	assert.Nil(t, stmt.Params)
	assert.Equal(t, "SELECT 1", stmt.Query)
}

func TestRowSetLen(t *testing.T) {
	var rs *RowSet
	assert.Equal(t, 0, rs.Len())

	rs = &RowSet{Rows: []Row{{"a": 1}, {"a": 2}}}
	assert.Equal(t, 2, rs.Len())
}

func TestPickWithPrefix(t *testing.T) {
	row := Row{"author_id": 7, "author_name": "ann", "id": 1, "title": "x"}

	assert.Equal(t, Row{"id": 7, "name": "ann"}, PickWithPrefix(row, "author_"))
	assert.Equal(t, Row{"id": 1, "title": "x"}, PickWithoutPrefix(row, "author_"))
}

func TestPickWithPrefixNoMatch(t *testing.T) {
	row := Row{"id": 1}
	assert.Empty(t, PickWithPrefix(row, "x_"))
	assert.Equal(t, row, PickWithoutPrefix(row, "x_"))
}

func TestFormatTimestamp(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	ts := time.Date(2024, 3, 9, 14, 5, 6, 789_000_000, loc)

	assert.Equal(t, "2024-03-09 12:05:06.789", FormatTimestamp(ts))
}

func TestNowIsUTCLayout(t *testing.T) {
	got := Now()
	parsed, err := time.Parse(TimestampLayout, got)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().UTC(), parsed, 5*time.Second)
}
