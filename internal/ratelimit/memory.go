package ratelimit

import (
	"context"
	"sync"
	"time"
)

const sweepInterval = 5 * time.Minute

type window struct {
	count   int64
	resetAt time.Time
}

// MemoryStore keeps fixed-window counters in a mutex-guarded map. A
// background sweep removes expired windows so the map stays bounded by
// the number of clients active in the last window, not ever seen.
//
// State is per-process; see Limiter for the multi-instance caveat.
type MemoryStore struct {
	mu      sync.Mutex
	windows map[string]*window

	now  func() time.Time
	stop chan struct{}
	once sync.Once
}

// NewMemoryStore constructs a MemoryStore and starts its sweeper.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{
		windows: make(map[string]*window),
		now:     time.Now,
		stop:    make(chan struct{}),
	}
	go s.sweepLoop()
	return s
}

func (s *MemoryStore) Incr(ctx context.Context, key string, windowSize time.Duration) (int64, time.Time, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.windows[key]
	if !ok || !now.Before(w.resetAt) {
		w = &window{resetAt: now.Add(windowSize)}
		s.windows[key] = w
	}
	w.count++
	return w.count, w.resetAt, nil
}

// Close stops the sweeper. Safe to call more than once.
func (s *MemoryStore) Close() error {
	s.once.Do(func() { close(s.stop) })
	return nil
}

func (s *MemoryStore) sweepLoop() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

// sweep deletes windows that have fully expired. Runs under the same
// lock as Incr, so a concurrent check either sees the entry or gets a
// fresh window; it never observes a partially deleted one.
func (s *MemoryStore) sweep() {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	for key, w := range s.windows {
		if !now.Before(w.resetAt) {
			delete(s.windows, key)
		}
	}
}
