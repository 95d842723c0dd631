// Package lifecycle ties pool teardown to process termination.
package lifecycle

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/oriys/dbkit/internal/logging"
)

// Closer makes Close idempotent so the signal hook and the normal exit path
// can both call it. Only the first call reaches the wrapped closer; later
// calls return the first result.
type Closer struct {
	c    io.Closer
	once sync.Once
	err  error
	done chan struct{}
}

// NewCloser wraps c.
func NewCloser(c io.Closer) *Closer {
	return &Closer{c: c, done: make(chan struct{})}
}

func (c *Closer) Close() error {
	c.once.Do(func() {
		c.err = c.c.Close()
		close(c.done)
	})
	return c.err
}

// Done is closed once the wrapped closer has been closed.
func (c *Closer) Done() <-chan struct{} {
	return c.done
}

// CloseOnSignal closes closer once when one of signals arrives or ctx is
// done. With no signals it listens for SIGINT and SIGTERM. A close error is
// logged and otherwise dropped.
//
// The returned stop func detaches the hook without closing anything; call it
// on the normal exit path. Panics bypass the hook.
func CloseOnSignal(ctx context.Context, closer io.Closer, logger *slog.Logger, signals ...os.Signal) (stop func()) {
	if len(signals) == 0 {
		signals = []os.Signal{syscall.SIGINT, syscall.SIGTERM}
	}
	logger = logging.OrOp(logger)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, signals...)

	done := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		select {
		case sig := <-sigCh:
			logger.Info("signal received, closing pool", "signal", sig.String())
		case <-ctx.Done():
			logger.Debug("context done, closing pool")
		case <-done:
			return
		}
		if err := closer.Close(); err != nil {
			logger.Error("pool close failed", "error", err)
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			signal.Stop(sigCh)
			close(done)
			<-finished
		})
	}
}
