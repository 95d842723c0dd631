package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/oriys/dbkit/internal/db"
)

// PostgresConfig holds PostgreSQL connection and pool tuning parameters.
type PostgresConfig struct {
	DSN               string        `yaml:"dsn"`
	MaxConns          int32         `yaml:"max_conns" split_words:"true"`
	MinConns          int32         `yaml:"min_conns" split_words:"true"`
	MaxConnLifetime   time.Duration `yaml:"max_conn_lifetime" split_words:"true"`
	HealthCheckPeriod time.Duration `yaml:"health_check_period" split_words:"true"`
}

// PostgresPool is a db.Pool backed by pgxpool.
type PostgresPool struct {
	pool *pgxpool.Pool
	// acquire leases a connection and returns its release func.
	acquire func(ctx context.Context) (pgxConn, func(), error)
}

// NewPostgresPool connects to PostgreSQL and verifies the connection.
func NewPostgresPool(ctx context.Context, cfg PostgresConfig) (*PostgresPool, error) {
	pcfg, err := pgxPoolConfig(cfg)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}

	p := newPostgresPool(pool)

	if err := p.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return p, nil
}

func newPostgresPool(pool *pgxpool.Pool) *PostgresPool {
	return &PostgresPool{
		pool: pool,
		acquire: func(ctx context.Context) (pgxConn, func(), error) {
			c, err := pool.Acquire(ctx)
			if err != nil {
				return nil, nil, err
			}
			return c, c.Release, nil
		},
	}
}

func pgxPoolConfig(cfg PostgresConfig) (*pgxpool.Config, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("postgres DSN is required")
	}
	pcfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres DSN: %w", err)
	}
	if cfg.MaxConns > 0 {
		pcfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		pcfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		pcfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.HealthCheckPeriod > 0 {
		pcfg.HealthCheckPeriod = cfg.HealthCheckPeriod
	}
	return pcfg, nil
}

func (p *PostgresPool) Ping(ctx context.Context) error {
	if p == nil || p.pool == nil {
		return ErrPoolClosed
	}
	if err := p.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

func (p *PostgresPool) Acquire(ctx context.Context) (db.Conn, error) {
	if p == nil || p.acquire == nil {
		return nil, ErrPoolClosed
	}
	c, release, err := p.acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire postgres connection: %w", err)
	}
	return &postgresConn{conn: c, release: release}, nil
}

func (p *PostgresPool) Close() error {
	if p == nil || p.pool == nil {
		return nil
	}
	p.pool.Close()
	return nil
}

func (p *PostgresPool) Backend() string { return BackendPostgres }

// Stats reports pgxpool statistics.
func (p *PostgresPool) Stats() db.PoolStats {
	if p == nil || p.pool == nil {
		return db.PoolStats{}
	}
	s := p.pool.Stat()
	return db.PoolStats{
		Open:         int(s.TotalConns()),
		InUse:        int(s.AcquiredConns()),
		Idle:         int(s.IdleConns()),
		Max:          int(s.MaxConns()),
		WaitCount:    s.EmptyAcquireCount(),
		WaitDuration: s.AcquireDuration(),
	}
}

// pgxQuerier is the part shared by a pooled connection and pgx.Tx.
type pgxQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// pgxConn is the part of *pgxpool.Conn a lease uses.
type pgxConn interface {
	pgxQuerier
	Begin(ctx context.Context) (pgx.Tx, error)
}

type postgresConn struct {
	conn    pgxConn
	release func()
	tx      pgx.Tx
}

func (c *postgresConn) Begin(ctx context.Context) error {
	if c.tx != nil {
		return ErrTxInProgress
	}
	tx, err := c.conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	c.tx = tx
	return nil
}

func (c *postgresConn) Commit(ctx context.Context) error {
	if c.tx == nil {
		return ErrNoTx
	}
	// The tx stays set on failure so Rollback can still run.
	if err := c.tx.Commit(ctx); err != nil {
		return err
	}
	c.tx = nil
	return nil
}

func (c *postgresConn) Rollback(ctx context.Context) error {
	if c.tx == nil {
		return ErrNoTx
	}
	tx := c.tx
	c.tx = nil
	// pgx closes the tx itself when commit fails.
	if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return err
	}
	return nil
}

func (c *postgresConn) Run(ctx context.Context, query string, params []any) (*db.RowSet, error) {
	var q pgxQuerier = c.conn
	if c.tx != nil {
		q = c.tx
	}

	rows, err := q.Query(ctx, query, params...)
	if err != nil {
		return nil, err
	}
	maps, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, err
	}

	rs := &db.RowSet{
		Rows:         make([]db.Row, len(maps)),
		RowsAffected: rows.CommandTag().RowsAffected(),
	}
	for i, m := range maps {
		rs.Rows[i] = db.Row(m)
	}
	return rs, nil
}

// Release returns the connection to pgxpool. A connection still inside a
// transaction is destroyed by pgxpool rather than reused.
func (c *postgresConn) Release() {
	c.release()
}
