// Package backend opens the db.Pool selected by configuration.
// Implementations include PostgreSQL (pgx), MySQL (database/sql) and
// Cassandra (gocql).
package backend

import (
	"context"
	"fmt"

	"github.com/oriys/dbkit/internal/config"
	"github.com/oriys/dbkit/internal/db"
	"github.com/oriys/dbkit/internal/store"
)

// Open creates the pool for cfg.Backend and verifies it can reach the
// database. The caller owns the returned pool and must Close it once.
func Open(ctx context.Context, cfg *config.Config) (db.Pool, error) {
	switch cfg.Backend {
	case store.BackendPostgres:
		p, err := store.NewPostgresPool(ctx, cfg.Postgres)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", cfg.Backend, err)
		}
		return p, nil
	case store.BackendMySQL:
		p, err := store.NewMySQLPool(ctx, cfg.MySQL)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", cfg.Backend, err)
		}
		return p, nil
	case store.BackendCassandra:
		p, err := store.NewCassandraPool(ctx, cfg.Cassandra)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", cfg.Backend, err)
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}

// Info describes a supported backend and whether cfg carries enough
// settings to open it.
type Info struct {
	Name       string `json:"name"`
	Selected   bool   `json:"selected"`
	Configured bool   `json:"configured"`
	Reason     string `json:"reason,omitempty"`
}

// Describe reports every supported backend for cfg.
func Describe(cfg *config.Config) []Info {
	infos := []Info{
		describePostgres(cfg.Postgres),
		describeMySQL(cfg.MySQL),
		describeCassandra(cfg.Cassandra),
	}
	for i := range infos {
		infos[i].Selected = infos[i].Name == cfg.Backend
	}
	return infos
}

func describePostgres(cfg store.PostgresConfig) Info {
	info := Info{Name: store.BackendPostgres}
	if cfg.DSN == "" {
		info.Reason = "postgres.dsn not set"
		return info
	}
	info.Configured = true
	return info
}

func describeMySQL(cfg store.MySQLConfig) Info {
	info := Info{Name: store.BackendMySQL}
	if cfg.User == "" {
		info.Reason = "mysql.user not set"
		return info
	}
	info.Configured = true
	return info
}

func describeCassandra(cfg store.CassandraConfig) Info {
	info := Info{Name: store.BackendCassandra}
	if len(cfg.Hosts) == 0 {
		info.Reason = "cassandra.hosts not set"
		return info
	}
	if cfg.Keyspace == "" {
		info.Reason = "cassandra.keyspace not set"
		return info
	}
	info.Configured = true
	return info
}
