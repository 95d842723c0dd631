package store

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oriys/dbkit/internal/db"
	"github.com/oriys/dbkit/internal/dbaccess"
)

func newMockGateway(t *testing.T) (*dbaccess.Gateway, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	g := dbaccess.New(NewSQLPool(sqlDB, BackendMySQL),
		dbaccess.WithLogger(slog.New(discardHandler)))
	return g, mock
}

func TestSQLPoolTransactionCommits(t *testing.T) {
	g, mock := newMockGateway(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO t (a) VALUES (?)").
		WithArgs(1).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO t (a) VALUES (?)").
		WithArgs(2).
		WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectCommit()

	err := g.Transaction(context.Background(), []db.Statement{
		db.NewStatement("INSERT INTO t (a) VALUES (?)", 1),
		db.NewStatement("INSERT INTO t (a) VALUES (?)", 2),
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLPoolTransactionRollsBackOnStatementFailure(t *testing.T) {
	g, mock := newMockGateway(t)
	boom := errors.New("duplicate entry")

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO t (a) VALUES (?)").
		WithArgs(1).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO t (a) VALUES (?)").
		WithArgs(1).
		WillReturnError(boom)
	mock.ExpectRollback()

	err := g.Transaction(context.Background(), []db.Statement{
		db.NewStatement("INSERT INTO t (a) VALUES (?)", 1),
		db.NewStatement("INSERT INTO t (a) VALUES (?)", 1),
		db.NewStatement("DELETE FROM t"),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, err, dbaccess.ErrStatementFailed)

	var txErr *dbaccess.Error
	require.ErrorAs(t, err, &txErr)
	assert.Equal(t, 1, txErr.Index)
	assert.NoError(t, txErr.RollbackErr)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLPoolTransactionCommitFailure(t *testing.T) {
	g, mock := newMockGateway(t)
	boom := errors.New("deadlock")

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE t SET a = ?").
		WithArgs(3).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit().WillReturnError(boom)

	err := g.Transaction(context.Background(), []db.Statement{
		db.NewStatement("UPDATE t SET a = ?", 3),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, err, dbaccess.ErrCommitFailed)

	// database/sql closes the tx on a failed commit; the rollback that
	// follows is a no-op rather than a second error.
	var txErr *dbaccess.Error
	require.ErrorAs(t, err, &txErr)
	assert.NoError(t, txErr.RollbackErr)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLPoolTransactionBeginFailure(t *testing.T) {
	g, mock := newMockGateway(t)

	mock.ExpectBegin().WillReturnError(errors.New("too many connections"))

	err := g.Transaction(context.Background(), []db.Statement{
		db.NewStatement("DELETE FROM t"),
	})
	assert.ErrorIs(t, err, dbaccess.ErrBeginFailed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLPoolExecuteQuery(t *testing.T) {
	g, mock := newMockGateway(t)

	mock.ExpectQuery("SELECT id, name FROM users WHERE id > ?").
		WithArgs(0).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).
			AddRow(int64(1), []byte("ada")).
			AddRow(int64(2), []byte("grace")))

	rs, err := g.Execute(context.Background(), "SELECT id, name FROM users WHERE id > ?", 0)
	require.NoError(t, err)
	require.Equal(t, 2, rs.Len())
	assert.Equal(t, db.Row{"id": int64(1), "name": "ada"}, rs.Rows[0])
	assert.Equal(t, db.Row{"id": int64(2), "name": "grace"}, rs.Rows[1])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLPoolExecuteWrite(t *testing.T) {
	g, mock := newMockGateway(t)

	mock.ExpectExec("UPDATE users SET active = ?").
		WithArgs(false).
		WillReturnResult(sqlmock.NewResult(0, 4))

	rs, err := g.Execute(context.Background(), "UPDATE users SET active = ?", false)
	require.NoError(t, err)
	assert.Equal(t, int64(4), rs.RowsAffected)
	assert.Equal(t, 0, rs.Len())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLConnRejectsNestedBegin(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	mock.ExpectBegin()
	mock.ExpectRollback()

	pool := NewSQLPool(sqlDB, BackendMySQL)
	conn, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	defer conn.Release()

	require.NoError(t, conn.Begin(context.Background()))
	assert.ErrorIs(t, conn.Begin(context.Background()), ErrTxInProgress)
	require.NoError(t, conn.Rollback(context.Background()))
	assert.ErrorIs(t, conn.Commit(context.Background()), ErrNoTx)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReturnsRows(t *testing.T) {
	tests := []struct {
		query string
		want  bool
	}{
		{"SELECT 1", true},
		{"  select * from t", true},
		{"(SELECT a FROM t) UNION (SELECT a FROM u)", true},
		{"WITH x AS (SELECT 1) SELECT * FROM x", true},
		{"SHOW TABLES", true},
		{"EXPLAIN SELECT 1", true},
		{"CALL proc()", true},
		{"INSERT INTO t VALUES (1)", false},
		{"update t set a = 1", false},
		{"DELETE FROM t", false},
		{"CREATE TABLE t (a INT)", false},
		{"", false},
		{"/* hint */ SELECT 1", true},
		{"/*+ MAX_EXECUTION_TIME(1000) */ SELECT * FROM t", true},
		{"-- report\nSELECT 1", true},
		{"# report\n  SHOW TABLES", true},
		{"/* a */ /* b */\n(SELECT 1)", true},
		{"/* audit */ DELETE FROM t", false},
		{"-- SELECT\nUPDATE t SET a = 1", false},
		{"/* unterminated SELECT 1", false},
		{"-- only a comment", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, returnsRows(tt.query), tt.query)
	}
}

func TestSQLPoolExecuteRoutesCommentedQuery(t *testing.T) {
	g, mock := newMockGateway(t)

	mock.ExpectQuery("/* hint */ SELECT 1").
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(int64(1)))

	rs, err := g.Execute(context.Background(), "/* hint */ SELECT 1")
	require.NoError(t, err)
	assert.Equal(t, []db.Row{{"1": int64(1)}}, rs.Rows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLPoolStats(t *testing.T) {
	sqlDB, _, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()
	sqlDB.SetMaxOpenConns(6)

	stats := NewSQLPool(sqlDB, BackendMySQL).Stats()
	assert.Equal(t, 6, stats.Max)
	assert.Equal(t, stats.InUse+stats.Idle, stats.Open)
}

func TestMySQLConfigDSN(t *testing.T) {
	cfg := MySQLConfig{
		Host:        "db.internal",
		Port:        3307,
		User:        "app",
		Password:    "secret",
		Database:    "orders",
		DialTimeout: 5 * time.Second,
	}
	mc := cfg.DriverConfig()
	assert.Equal(t, "tcp", mc.Net)
	assert.Equal(t, "db.internal:3307", mc.Addr)
	assert.True(t, mc.ParseTime)
	assert.Equal(t, time.UTC, mc.Loc)

	dsn := cfg.DSN()
	assert.Contains(t, dsn, "app:secret@tcp(db.internal:3307)/orders")
	assert.Contains(t, dsn, "parseTime=true")
	assert.Contains(t, dsn, "timeout=5s")
}

func TestMySQLConfigDefaults(t *testing.T) {
	mc := MySQLConfig{User: "root"}.DriverConfig()
	assert.Equal(t, "localhost:3306", mc.Addr)
}

func TestNewMySQLPoolRequiresUser(t *testing.T) {
	_, err := NewMySQLPool(context.Background(), MySQLConfig{})
	assert.Error(t, err)
}
