package dbaccess

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/oriys/dbkit/internal/db"
)

// fakePool is a db.Pool that records every call made against it, in order,
// across all connections it hands out.
type fakePool struct {
	mu     sync.Mutex
	events []string
	conns  []*fakeConn

	acquireErr  error
	beginErr    error
	commitErr   error
	rollbackErr error
	failOn      map[string]error
	block       map[string]chan struct{}
	onRun       func(query string) error
	closed      int
}

func newFakePool() *fakePool {
	return &fakePool{
		failOn: make(map[string]error),
		block:  make(map[string]chan struct{}),
	}
}

func (p *fakePool) record(format string, args ...any) {
	p.mu.Lock()
	p.events = append(p.events, fmt.Sprintf(format, args...))
	p.mu.Unlock()
}

func (p *fakePool) Events() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	copy(out, p.events)
	return out
}

func (p *fakePool) count(event string) int {
	n := 0
	for _, e := range p.Events() {
		if e == event {
			n++
		}
	}
	return n
}

func (p *fakePool) Acquire(ctx context.Context) (db.Conn, error) {
	p.record("acquire")
	if p.acquireErr != nil {
		return nil, p.acquireErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	c := &fakeConn{pool: p, id: len(p.conns)}
	p.conns = append(p.conns, c)
	p.mu.Unlock()
	return c, nil
}

func (p *fakePool) Close() error {
	p.mu.Lock()
	p.closed++
	p.mu.Unlock()
	return nil
}

func (p *fakePool) Backend() string { return "fake" }

type fakeConn struct {
	pool     *fakePool
	id       int
	inTx     bool
	released int

	rollbackCtxErr error
}

func (c *fakeConn) Begin(ctx context.Context) error {
	c.pool.record("begin")
	if c.pool.beginErr != nil {
		return c.pool.beginErr
	}
	c.inTx = true
	return nil
}

func (c *fakeConn) Commit(ctx context.Context) error {
	c.pool.record("commit")
	if !c.inTx {
		return errors.New("commit outside transaction")
	}
	if c.pool.commitErr != nil {
		return c.pool.commitErr
	}
	c.inTx = false
	return nil
}

func (c *fakeConn) Rollback(ctx context.Context) error {
	c.pool.record("rollback")
	c.rollbackCtxErr = ctx.Err()
	c.inTx = false
	return c.pool.rollbackErr
}

func (c *fakeConn) Run(ctx context.Context, query string, params []any) (*db.RowSet, error) {
	c.pool.record("run:%s", query)
	if ch, ok := c.pool.block[query]; ok {
		<-ch
	}
	if err, ok := c.pool.failOn[query]; ok {
		return nil, err
	}
	if c.pool.onRun != nil {
		if err := c.pool.onRun(query); err != nil {
			return nil, err
		}
	}
	return &db.RowSet{Rows: []db.Row{{"query": query, "params": len(params)}}, RowsAffected: 1}, nil
}

func (c *fakeConn) Release() {
	c.pool.record("release")
	c.pool.mu.Lock()
	c.released++
	c.pool.mu.Unlock()
}
