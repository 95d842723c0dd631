// Package store holds the db.Pool implementations for each supported
// backend: PostgreSQL (pgx), MySQL (database/sql with go-sql-driver/mysql)
// and Cassandra (gocql), plus the statement builders of the wide-column
// flavour.
package store

import "errors"

// Backend names returned by db.Pool.Backend.
const (
	BackendPostgres  = "postgres"
	BackendMySQL     = "mysql"
	BackendCassandra = "cassandra"
)

var (
	// ErrTxInProgress is returned by Begin on a connection that already has
	// an open transaction.
	ErrTxInProgress = errors.New("store: transaction already in progress")
	// ErrNoTx is returned by Commit and Rollback without an open transaction.
	ErrNoTx = errors.New("store: no transaction in progress")
	// ErrPoolClosed is returned when a pool was never opened or is closed.
	ErrPoolClosed = errors.New("store: pool is not open")
)
