package dbaccess

import (
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// Limits caps how many sessions (any leased connection) and transactions
// the gateway lets run at once. Zero means unlimited. Exhausted slots fail
// fast with a *QuotaError instead of queueing behind the pool.
type Limits struct {
	MaxSessions int `yaml:"max_sessions" split_words:"true" validate:"gte=0"`
	MaxTx       int `yaml:"max_tx" split_words:"true" validate:"gte=0"`
}

// slot tracks usage of one limited dimension. A nil slot is unlimited.
type slot struct {
	dimension string
	limit     int
	sem       *semaphore.Weighted
	active    atomic.Int64
}

func newSlot(dimension string, limit int) *slot {
	s := &slot{dimension: dimension, limit: limit}
	if limit > 0 {
		s.sem = semaphore.NewWeighted(int64(limit))
	}
	return s
}

func (s *slot) acquire() error {
	if s.sem != nil && !s.sem.TryAcquire(1) {
		return &QuotaError{Dimension: s.dimension, Limit: s.limit, Current: int(s.active.Load())}
	}
	s.active.Add(1)
	return nil
}

func (s *slot) release() {
	s.active.Add(-1)
	if s.sem != nil {
		s.sem.Release(1)
	}
}

func (s *slot) inUse() int {
	return int(s.active.Load())
}
