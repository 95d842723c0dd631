package store

import (
	"fmt"
	"sort"
	"strings"

	"github.com/oriys/dbkit/internal/db"
)

// InsertOptions tune the statement built by PreparedInsert.
type InsertOptions struct {
	// TTL in seconds; zero means no expiry.
	TTL int
	// NotExists adds IF NOT EXISTS, making the insert a lightweight
	// transaction.
	NotExists bool
}

// PreparedInsert builds a parameterised CQL insert for values. Columns are
// emitted in alphabetical order and the params follow the same order.
func PreparedInsert(table string, values map[string]any, opts InsertOptions) (db.Statement, error) {
	if table == "" {
		return db.Statement{}, fmt.Errorf("insert: table name is required")
	}
	if len(values) == 0 {
		return db.Statement{}, fmt.Errorf("insert into %s: no values", table)
	}
	if opts.TTL < 0 {
		return db.Statement{}, fmt.Errorf("insert into %s: negative ttl %d", table, opts.TTL)
	}

	cols := make([]string, 0, len(values))
	for col := range values {
		cols = append(cols, col)
	}
	sort.Strings(cols)

	params := make([]any, len(cols))
	marks := make([]string, len(cols))
	for i, col := range cols {
		params[i] = values[col]
		marks[i] = "?"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(cols, ", "), strings.Join(marks, ", "))
	if opts.NotExists {
		b.WriteString(" IF NOT EXISTS")
	}
	if opts.TTL > 0 {
		fmt.Fprintf(&b, " USING TTL %d", opts.TTL)
	}

	return db.Statement{Query: b.String(), Params: params}, nil
}

// Replication strategy classes.
const (
	SimpleStrategy          = "SimpleStrategy"
	NetworkTopologyStrategy = "NetworkTopologyStrategy"
)

// Replication describes a keyspace replication map. Factor applies to
// SimpleStrategy, DataCenters to NetworkTopologyStrategy.
type Replication struct {
	Class       string
	Factor      int
	DataCenters map[string]int
}

// CreateKeyspace returns the DDL creating keyspace name if it is missing.
// An empty class defaults to SimpleStrategy with factor 1.
func CreateKeyspace(name string, repl Replication) (string, error) {
	if name == "" {
		return "", fmt.Errorf("keyspace name is required")
	}

	switch repl.Class {
	case "", SimpleStrategy:
		factor := repl.Factor
		if factor <= 0 {
			factor = 1
		}
		return fmt.Sprintf(
			"CREATE KEYSPACE IF NOT EXISTS %s WITH REPLICATION = { 'class' : '%s', 'replication_factor' : %d }",
			name, SimpleStrategy, factor), nil

	case NetworkTopologyStrategy:
		if len(repl.DataCenters) == 0 {
			return "", fmt.Errorf("keyspace %s: %s needs at least one data center", name, NetworkTopologyStrategy)
		}
		dcs := make([]string, 0, len(repl.DataCenters))
		for dc := range repl.DataCenters {
			dcs = append(dcs, dc)
		}
		sort.Strings(dcs)
		parts := make([]string, len(dcs))
		for i, dc := range dcs {
			parts[i] = fmt.Sprintf("'%s' : %d", dc, repl.DataCenters[dc])
		}
		return fmt.Sprintf(
			"CREATE KEYSPACE IF NOT EXISTS %s WITH REPLICATION = { 'class' : '%s', %s }",
			name, NetworkTopologyStrategy, strings.Join(parts, ", ")), nil

	default:
		return "", fmt.Errorf("keyspace %s: unknown replication class %q", name, repl.Class)
	}
}
