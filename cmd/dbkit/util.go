package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"

	"github.com/oriys/dbkit/internal/backend"
	"github.com/oriys/dbkit/internal/config"
	"github.com/oriys/dbkit/internal/db"
	"github.com/oriys/dbkit/internal/dbaccess"
	"github.com/oriys/dbkit/internal/lifecycle"
	"github.com/oriys/dbkit/internal/logging"
	"github.com/oriys/dbkit/internal/metrics"
	"github.com/oriys/dbkit/internal/observability"
)

// session is an open gateway plus everything that must be torn down with it.
type session struct {
	gw      *dbaccess.Gateway
	metrics *metrics.Prometheus
	// server is set when metrics.enabled is true.
	server *metricsServer
	closer *lifecycle.Closer
	stop   func()
}

// openSession opens the configured pool and installs the signal hook that
// closes it. With metrics enabled it also serves /metrics on metrics.addr.
// Close must be called on the normal exit path.
func openSession(ctx context.Context, cfg *config.Config) (*session, error) {
	if cfg.Tracing.Enabled {
		if err := observability.Init(ctx, cfg.Tracing); err != nil {
			return nil, err
		}
	}

	pool, err := backend.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	pm := metrics.NewPrometheus(cfg.Metrics.Namespace, nil)
	gw := dbaccess.New(pool,
		dbaccess.WithLogger(logging.Op()),
		dbaccess.WithMetrics(pm),
		dbaccess.WithLimits(cfg.Limits),
	)

	var server *metricsServer
	if cfg.Metrics.Enabled {
		if server, err = serveMetrics(cfg.Metrics.Addr, pm); err != nil {
			gw.Close()
			return nil, err
		}
	}

	closer := lifecycle.NewCloser(gw)
	return &session{
		gw:      gw,
		metrics: pm,
		server:  server,
		closer:  closer,
		stop:    lifecycle.CloseOnSignal(ctx, closer, logging.Op()),
	}, nil
}

func (s *session) Close() error {
	s.stop()
	if s.server != nil {
		if err := s.server.Close(); err != nil {
			logging.Op().Warn("metrics server shutdown failed", "error", err)
		}
	}
	err := s.closer.Close()
	if serr := observability.Shutdown(context.Background()); serr != nil {
		logging.Op().Warn("tracer shutdown failed", "error", serr)
	}
	return err
}

// parseParams decodes each CLI argument as a YAML scalar so numbers and
// booleans bind with their natural type. raw keeps every value a string.
func parseParams(args []string, raw bool) ([]any, error) {
	params := make([]any, len(args))
	for i, arg := range args {
		if raw {
			params[i] = arg
			continue
		}
		var v any
		if err := yaml.Unmarshal([]byte(arg), &v); err != nil {
			return nil, fmt.Errorf("param %d: %w", i+1, err)
		}
		switch v.(type) {
		case map[string]any, []any:
			params[i] = arg
		default:
			params[i] = v
		}
	}
	return params, nil
}

// readInput returns the contents of path, or stdin when path is "-".
func readInput(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

// readYAMLFile decodes path, or stdin when path is "-", into out.
func readYAMLFile(path string, out any) error {
	data, err := readInput(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func printRows(w io.Writer, rs *db.RowSet, format string) error {
	if format == "json" {
		rows := rs.Rows
		if rows == nil {
			rows = []db.Row{}
		}
		return writeJSON(w, map[string]any{
			"rows":          rows,
			"rows_affected": rs.RowsAffected,
		})
	}

	if rs.Len() == 0 {
		_, err := fmt.Fprintf(w, "OK, %d rows affected\n", rs.RowsAffected)
		return err
	}

	cols := columns(rs.Rows)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.ToUpper(strings.Join(cols, "\t")))
	for _, row := range rs.Rows {
		vals := make([]string, len(cols))
		for i, col := range cols {
			vals[i] = truncate(formatValue(row[col]), 40)
		}
		fmt.Fprintln(tw, strings.Join(vals, "\t"))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "(%d rows)\n", rs.Len())
	return err
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// columns returns the sorted union of column names across rows.
func columns(rows []db.Row) []string {
	seen := make(map[string]struct{})
	for _, row := range rows {
		for k := range row {
			seen[k] = struct{}{}
		}
	}
	cols := make([]string, 0, len(seen))
	for k := range seen {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return cols
}

func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return string(x)
	default:
		return fmt.Sprint(x)
	}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
