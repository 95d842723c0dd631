// Package db defines the abstract connection pool consumed by the data-access
// layer. A Pool hands out exclusive Conn leases; each Conn can run statements
// on its own or inside a begin/commit/rollback bracket. Backends (PostgreSQL,
// MySQL, Cassandra) implement these interfaces in the store package so the
// transaction coordinator never depends on a particular driver.
package db

import (
	"context"
	"time"
)

// Row is a single result row keyed by column name.
type Row map[string]any

// RowSet is the outcome of one executed statement.
type RowSet struct {
	// Rows holds the returned rows in driver order. Empty for statements that
	// return nothing.
	Rows []Row
	// RowsAffected is the driver-reported count of changed rows, when known.
	RowsAffected int64
}

// Len returns the number of rows.
func (r *RowSet) Len() int {
	if r == nil {
		return 0
	}
	return len(r.Rows)
}

// Statement is a parameterized query with its bind values.
type Statement struct {
	Query  string `json:"query" yaml:"query"`
	Params []any  `json:"params,omitempty" yaml:"params,omitempty"`
}

// NewStatement builds a Statement, copying params so later changes to the
// caller's slice are not observed.
func NewStatement(query string, params ...any) Statement {
	var cp []any
	if len(params) > 0 {
		cp = make([]any, len(params))
		copy(cp, params)
	}
	return Statement{Query: query, Params: cp}
}

// Conn is an exclusive lease on one physical database link. It must be used by
// a single logical operation at a time and released exactly once.
type Conn interface {
	// Begin opens a transaction on the connection.
	Begin(ctx context.Context) error
	// Commit commits the open transaction.
	Commit(ctx context.Context) error
	// Rollback aborts the open transaction.
	Rollback(ctx context.Context) error
	// Run executes one statement, inside the open transaction if there is one.
	Run(ctx context.Context, query string, params []any) (*RowSet, error)
	// Release returns the connection to its pool.
	Release()
}

// Pool abstracts a bounded set of reusable connections.
// Implementations handle dialing, health checks and reconnection internally.
type Pool interface {
	// Acquire leases a connection, blocking until one is free or ctx is done.
	Acquire(ctx context.Context) (Conn, error)

	// Close releases all connections in the pool.
	Close() error

	// Backend returns the name of the underlying store
	// (e.g. "postgres", "mysql", "cassandra").
	Backend() string
}

// PoolStats is a point-in-time snapshot of a pool's connections.
type PoolStats struct {
	Open  int
	InUse int
	Idle  int
	Max   int
	// WaitCount counts acquires that had to wait for a free connection.
	WaitCount    int64
	WaitDuration time.Duration
}

// StatsReporter is implemented by pools that can report PoolStats.
type StatsReporter interface {
	Stats() PoolStats
}
