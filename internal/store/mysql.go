package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/oriys/dbkit/internal/db"
)

// MySQLConfig holds MySQL connection and pool tuning parameters.
type MySQLConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	MaxOpenConns    int           `yaml:"max_open_conns" split_words:"true"`
	MaxIdleConns    int           `yaml:"max_idle_conns" split_words:"true"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" split_words:"true"`
	DialTimeout     time.Duration `yaml:"dial_timeout" split_words:"true"`
}

// DriverConfig converts cfg to a go-sql-driver configuration. Times are read
// and written in UTC.
func (cfg MySQLConfig) DriverConfig() *mysql.Config {
	mc := mysql.NewConfig()
	host := cfg.Host
	if host == "" {
		host = "localhost"
	}
	port := cfg.Port
	if port == 0 {
		port = 3306
	}
	mc.Net = "tcp"
	mc.Addr = net.JoinHostPort(host, strconv.Itoa(port))
	mc.User = cfg.User
	mc.Passwd = cfg.Password
	mc.DBName = cfg.Database
	mc.ParseTime = true
	mc.Loc = time.UTC
	if cfg.DialTimeout > 0 {
		mc.Timeout = cfg.DialTimeout
	}
	return mc
}

// DSN returns the data source name for cfg.
func (cfg MySQLConfig) DSN() string {
	return cfg.DriverConfig().FormatDSN()
}

// NewMySQLPool opens a MySQL pool and verifies the connection.
func NewMySQLPool(ctx context.Context, cfg MySQLConfig) (*SQLPool, error) {
	if cfg.User == "" {
		return nil, fmt.Errorf("mysql user is required")
	}
	connector, err := mysql.NewConnector(cfg.DriverConfig())
	if err != nil {
		return nil, fmt.Errorf("create mysql connector: %w", err)
	}

	sqlDB := sql.OpenDB(connector)
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("ping mysql: %w", err)
	}

	return NewSQLPool(sqlDB, BackendMySQL), nil
}

// SQLPool is a db.Pool over a database/sql handle. Each Acquire leases a
// dedicated *sql.Conn so begin, statements and commit share one session.
type SQLPool struct {
	db      *sql.DB
	backend string
}

// NewSQLPool wraps an already opened *sql.DB.
func NewSQLPool(sqlDB *sql.DB, backend string) *SQLPool {
	return &SQLPool{db: sqlDB, backend: backend}
}

func (p *SQLPool) Acquire(ctx context.Context) (db.Conn, error) {
	if p == nil || p.db == nil {
		return nil, ErrPoolClosed
	}
	c, err := p.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire %s connection: %w", p.backend, err)
	}
	return &sqlConn{conn: c}, nil
}

func (p *SQLPool) Close() error {
	if p == nil || p.db == nil {
		return nil
	}
	return p.db.Close()
}

func (p *SQLPool) Backend() string {
	if p == nil {
		return ""
	}
	return p.backend
}

// Stats reports database/sql pool statistics.
func (p *SQLPool) Stats() db.PoolStats {
	if p == nil || p.db == nil {
		return db.PoolStats{}
	}
	s := p.db.Stats()
	return db.PoolStats{
		Open:         s.OpenConnections,
		InUse:        s.InUse,
		Idle:         s.Idle,
		Max:          s.MaxOpenConnections,
		WaitCount:    s.WaitCount,
		WaitDuration: s.WaitDuration,
	}
}

// sqlQuerier is the part shared by *sql.Conn and *sql.Tx.
type sqlQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

type sqlConn struct {
	conn *sql.Conn
	tx   *sql.Tx
}

func (c *sqlConn) Begin(ctx context.Context) error {
	if c.tx != nil {
		return ErrTxInProgress
	}
	tx, err := c.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	c.tx = tx
	return nil
}

func (c *sqlConn) Commit(ctx context.Context) error {
	if c.tx == nil {
		return ErrNoTx
	}
	if err := c.tx.Commit(); err != nil {
		return err
	}
	c.tx = nil
	return nil
}

func (c *sqlConn) Rollback(ctx context.Context) error {
	if c.tx == nil {
		return ErrNoTx
	}
	tx := c.tx
	c.tx = nil
	// database/sql marks the tx done when Commit fails.
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return err
	}
	return nil
}

func (c *sqlConn) Run(ctx context.Context, query string, params []any) (*db.RowSet, error) {
	var q sqlQuerier = c.conn
	if c.tx != nil {
		q = c.tx
	}

	if !returnsRows(query) {
		res, err := q.ExecContext(ctx, query, params...)
		if err != nil {
			return nil, err
		}
		rs := &db.RowSet{}
		if n, err := res.RowsAffected(); err == nil {
			rs.RowsAffected = n
		}
		return rs, nil
	}

	rows, err := q.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRows(rows)
}

// Release returns the session to the database/sql pool.
func (c *sqlConn) Release() {
	c.conn.Close()
}

// returnsRows reports whether query is a read that produces a result set.
// Leading comments are skipped before the first keyword is inspected.
func returnsRows(query string) bool {
	q := skipLeadingComments(query)
	end := strings.IndexAny(q, " \t\r\n(")
	if end > 0 {
		q = q[:end]
	}
	switch strings.ToUpper(q) {
	case "SELECT", "SHOW", "DESCRIBE", "DESC", "EXPLAIN", "WITH", "VALUES", "TABLE", "CALL":
		return true
	}
	return false
}

// skipLeadingComments strips whitespace, opening parentheses and SQL
// comments (/* */, -- and #) from the front of query.
func skipLeadingComments(query string) string {
	q := query
	for {
		q = strings.TrimLeft(q, " \t\r\n(")
		switch {
		case strings.HasPrefix(q, "/*"):
			end := strings.Index(q[2:], "*/")
			if end < 0 {
				return ""
			}
			q = q[2+end+2:]
		case strings.HasPrefix(q, "--"), strings.HasPrefix(q, "#"):
			end := strings.IndexByte(q, '\n')
			if end < 0 {
				return ""
			}
			q = q[end+1:]
		default:
			return q
		}
	}
}

func scanRows(rows *sql.Rows) (*db.RowSet, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	rs := &db.RowSet{}
	values := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}

	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(db.Row, len(cols))
		for i, col := range cols {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
				continue
			}
			row[col] = values[i]
		}
		rs.Rows = append(rs.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rs.RowsAffected = int64(len(rs.Rows))
	return rs, nil
}
