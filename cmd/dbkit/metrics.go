package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/oriys/dbkit/internal/logging"
	"github.com/oriys/dbkit/internal/metrics"
)

func metricsCmd() *cobra.Command {
	var (
		addr     string
		probe    string
		interval time.Duration
	)

	cmd := &cobra.Command{
		Use:   "metrics",
		Short: "Serve Prometheus metrics until interrupted",
		Long:  "Opens the pool, optionally runs a probe statement on an interval, and serves /metrics until SIGINT or SIGTERM",
		RunE: func(cmd *cobra.Command, args []string) error {
			if interval <= 0 {
				return fmt.Errorf("--interval must be positive, got %s", interval)
			}

			cfg := *appConfig
			cfg.Metrics.Enabled = true
			if addr != "" {
				cfg.Metrics.Addr = addr
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			s, err := openSession(ctx, &cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			if probe != "" {
				go runProbe(ctx, s, probe, interval)
			}

			logging.Op().Info("serving metrics", "addr", s.server.addr, "backend", s.gw.Backend())

			// The session's signal hook closes the pool; stop serving then.
			select {
			case <-s.closer.Done():
			case <-ctx.Done():
			case err := <-s.server.errc:
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from config)")
	cmd.Flags().StringVar(&probe, "probe", "", "Statement to execute on every interval, e.g. SELECT 1")
	cmd.Flags().DurationVar(&interval, "interval", 15*time.Second, "Probe interval")

	return cmd
}

func runProbe(ctx context.Context, s *session, query string, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		if _, err := s.gw.Execute(ctx, query); err != nil {
			logging.Op().Warn("probe failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

// metricsServer exposes a recorder on /metrics.
type metricsServer struct {
	srv  *http.Server
	addr string
	// errc yields a serve error, or is closed once serving stops cleanly.
	errc chan error
}

// serveMetrics binds addr and serves pm in the background. Bind errors are
// returned directly.
func serveMetrics(addr string, pm *metrics.Prometheus) (*metricsServer, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", pm.Handler())
	ms := &metricsServer{
		srv:  &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second},
		addr: ln.Addr().String(),
		errc: make(chan error, 1),
	}

	go func() {
		defer close(ms.errc)
		if err := ms.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			ms.errc <- err
		}
	}()
	return ms, nil
}

func (ms *metricsServer) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return ms.srv.Shutdown(ctx)
}
