package store

import (
	"context"
	"fmt"
	"time"

	"github.com/gocql/gocql"

	"github.com/oriys/dbkit/internal/db"
)

// CassandraConfig holds cluster connection settings.
type CassandraConfig struct {
	Hosts          []string      `yaml:"hosts"`
	Keyspace       string        `yaml:"keyspace"`
	Consistency    string        `yaml:"consistency"`
	Username       string        `yaml:"username"`
	Password       string        `yaml:"password"`
	NumConns       int           `yaml:"num_conns" split_words:"true"`
	ProtoVersion   int           `yaml:"proto_version" split_words:"true"`
	Timeout        time.Duration `yaml:"timeout"`
	ConnectTimeout time.Duration `yaml:"connect_timeout" split_words:"true"`
}

// ClusterConfig converts cfg to a gocql cluster configuration.
func (cfg CassandraConfig) ClusterConfig() (*gocql.ClusterConfig, error) {
	if len(cfg.Hosts) == 0 {
		return nil, fmt.Errorf("cassandra hosts are required")
	}

	cluster := gocql.NewCluster(cfg.Hosts...)
	cluster.Keyspace = cfg.Keyspace
	if cfg.Consistency != "" {
		c, err := gocql.ParseConsistencyWrapper(cfg.Consistency)
		if err != nil {
			return nil, fmt.Errorf("parse cassandra consistency: %w", err)
		}
		cluster.Consistency = c
	}
	if cfg.Username != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: cfg.Username,
			Password: cfg.Password,
		}
	}
	if cfg.NumConns > 0 {
		cluster.NumConns = cfg.NumConns
	}
	if cfg.ProtoVersion > 0 {
		cluster.ProtoVersion = cfg.ProtoVersion
	}
	if cfg.Timeout > 0 {
		cluster.Timeout = cfg.Timeout
	}
	if cfg.ConnectTimeout > 0 {
		cluster.ConnectTimeout = cfg.ConnectTimeout
	}
	return cluster, nil
}

// CassandraPool is a db.Pool over one gocql session. gocql multiplexes
// requests over its own per-host connection pools, so a lease here is a
// statement buffer bound to the shared session rather than a socket.
type CassandraPool struct {
	session cqlSession
}

// cqlSession is the part of *gocql.Session a lease uses.
type cqlSession interface {
	Query(stmt string, values ...any) *gocql.Query
	NewBatch(typ gocql.BatchType) *gocql.Batch
	ExecuteBatch(b *gocql.Batch) error
	Closed() bool
	Close()
}

// NewCassandraPool creates a session against the cluster described by cfg.
func NewCassandraPool(ctx context.Context, cfg CassandraConfig) (*CassandraPool, error) {
	cluster, err := cfg.ClusterConfig()
	if err != nil {
		return nil, err
	}
	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("create cassandra session: %w", err)
	}
	return &CassandraPool{session: session}, nil
}

// EnsureKeyspace connects without a keyspace and creates keyspace with the
// given replication if it does not exist.
func EnsureKeyspace(ctx context.Context, cfg CassandraConfig, keyspace string, repl Replication) error {
	stmt, err := CreateKeyspace(keyspace, repl)
	if err != nil {
		return err
	}
	cfg.Keyspace = ""
	cluster, err := cfg.ClusterConfig()
	if err != nil {
		return err
	}
	session, err := cluster.CreateSession()
	if err != nil {
		return fmt.Errorf("create cassandra session: %w", err)
	}
	defer session.Close()

	if err := session.Query(stmt).WithContext(ctx).Exec(); err != nil {
		return fmt.Errorf("create keyspace %s: %w", keyspace, err)
	}
	return nil
}

func (p *CassandraPool) Acquire(ctx context.Context) (db.Conn, error) {
	if p == nil || p.session == nil {
		return nil, ErrPoolClosed
	}
	if p.session.Closed() {
		return nil, fmt.Errorf("acquire cassandra session: %w", gocql.ErrSessionClosed)
	}
	return &cassandraConn{session: p.session}, nil
}

func (p *CassandraPool) Close() error {
	if p == nil || p.session == nil {
		return nil
	}
	p.session.Close()
	return nil
}

func (p *CassandraPool) Backend() string { return BackendCassandra }

// cassandraConn runs statements directly, or between Begin and Commit queues
// them into one logged batch that Commit applies atomically.
type cassandraConn struct {
	session cqlSession
	batch   *gocql.Batch
}

func (c *cassandraConn) Begin(ctx context.Context) error {
	if c.batch != nil {
		return ErrTxInProgress
	}
	c.batch = c.session.NewBatch(gocql.LoggedBatch)
	return nil
}

func (c *cassandraConn) Commit(ctx context.Context) error {
	if c.batch == nil {
		return ErrNoTx
	}
	if c.batch.Size() > 0 {
		// The batch stays queued on failure so Rollback can discard it.
		if err := c.session.ExecuteBatch(c.batch.WithContext(ctx)); err != nil {
			return err
		}
	}
	c.batch = nil
	return nil
}

// Rollback discards the queued batch. Nothing has reached the cluster yet,
// except when Commit failed mid-flight; logged batches are then either
// applied in full by the coordinator's batchlog or not at all.
func (c *cassandraConn) Rollback(ctx context.Context) error {
	if c.batch == nil {
		return ErrNoTx
	}
	c.batch = nil
	return nil
}

func (c *cassandraConn) Run(ctx context.Context, query string, params []any) (*db.RowSet, error) {
	if c.batch != nil {
		c.batch.Query(query, params...)
		return &db.RowSet{}, nil
	}

	iter := c.session.Query(query, params...).WithContext(ctx).Iter()
	maps, err := iter.SliceMap()
	if cerr := iter.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, err
	}

	rs := &db.RowSet{Rows: make([]db.Row, len(maps))}
	for i, m := range maps {
		rs.Rows[i] = db.Row(m)
	}
	return rs, nil
}

// Release drops the lease; the session stays open for other callers.
func (c *cassandraConn) Release() {
	c.batch = nil
}
