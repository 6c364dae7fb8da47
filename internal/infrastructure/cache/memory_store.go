package cache

import (
	"context"
	"sync"
	"time"
)

const memoryCleanupInterval = 5 * time.Minute

// MemoryStore keeps idempotency keys and run-locks in process memory.
// State is lost on restart and is not shared between instances.
type MemoryStore struct {
	mu        sync.Mutex
	keys      map[string]time.Time // key -> expiry
	locks     map[string]time.Time // lock name -> lease expiry
	now       func() time.Time
	stopCh    chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewMemoryStore creates a MemoryStore and starts its expiry sweeper
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{
		keys:   make(map[string]time.Time),
		locks:  make(map[string]time.Time),
		now:    time.Now,
		stopCh: make(chan struct{}),
	}
	s.wg.Add(1)
	go s.sweepLoop()
	return s
}

// MarkProcessed records key for ttl. It returns false when the key is still live.
// A non-positive ttl marks the key without expiry.
func (s *MemoryStore) MarkProcessed(_ context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if exp, ok := s.keys[key]; ok && live(exp, now) {
		return false, nil
	}
	s.keys[key] = expiry(now, ttl)
	return true, nil
}

// IsProcessed reports whether key is marked and not expired
func (s *MemoryStore) IsProcessed(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	exp, ok := s.keys[key]
	return ok && live(exp, s.now()), nil
}

// TryLock takes the named lease if it is free or expired
func (s *MemoryStore) TryLock(_ context.Context, name string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if exp, ok := s.locks[name]; ok && live(exp, now) {
		return false, nil
	}
	s.locks[name] = expiry(now, ttl)
	return true, nil
}

// Unlock releases the named lease
func (s *MemoryStore) Unlock(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.locks, name)
	return nil
}

// Close stops the sweeper. Safe to call more than once.
func (s *MemoryStore) Close() error {
	s.closeOnce.Do(func() {
		close(s.stopCh)
		s.wg.Wait()
	})
	return nil
}

// Size returns the number of tracked idempotency keys
func (s *MemoryStore) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.keys)
}

func (s *MemoryStore) sweepLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(memoryCleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *MemoryStore) sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for k, exp := range s.keys {
		if !live(exp, now) {
			delete(s.keys, k)
		}
	}
	for k, exp := range s.locks {
		if !live(exp, now) {
			delete(s.locks, k)
		}
	}
}

// zero expiry means "never"
func expiry(now time.Time, ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return now.Add(ttl)
}

func live(exp, now time.Time) bool {
	return exp.IsZero() || now.Before(exp)
}

var _ Store = (*MemoryStore)(nil)
