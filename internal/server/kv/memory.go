package kv

import (
	"context"
	"sync"
	"time"
)

// MemoryOptions configures a MemoryStore
type MemoryOptions struct {
	// Now overrides the clock, used by tests
	Now func() time.Time
	// SweepInterval controls how often expired entries are reclaimed
	// Zero disables the background sweeper
	SweepInterval time.Duration
	// MaxEntries bounds the number of stored entries, zero means unbounded
	MaxEntries int
}

// MemoryStore is an in-process Store
type MemoryStore struct {
	entries    map[string]memoryEntry
	now        func() time.Time
	stopC      chan struct{}
	stopOnce   sync.Once
	maxEntries int
	mu         sync.RWMutex
}

type memoryEntry struct {
	expiresAt time.Time
	value     []byte
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates a MemoryStore and starts its sweeper when configured
func NewMemoryStore(opts MemoryOptions) *MemoryStore {
	if opts.Now == nil {
		opts.Now = time.Now
	}

	s := &MemoryStore{
		entries:    make(map[string]memoryEntry),
		now:        opts.Now,
		maxEntries: opts.MaxEntries,
		stopC:      make(chan struct{}),
	}

	if opts.SweepInterval > 0 {
		go s.sweepLoop(opts.SweepInterval)
	}

	return s
}

// Get returns the value stored under key
func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	entry, ok := s.entries[key]
	s.mu.RUnlock()

	if !ok || entry.expired(s.now()) {
		return nil, ErrNotFound
	}

	value := make([]byte, len(entry.value))
	copy(value, entry.value)
	return value, nil
}

// Set stores value under key
func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	entry := memoryEntry{value: make([]byte, len(value))}
	copy(entry.value, value)
	if ttl > 0 {
		entry.expiresAt = s.now().Add(ttl)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[key]; !exists && s.maxEntries > 0 && len(s.entries) >= s.maxEntries {
		s.evictLocked()
	}

	s.entries[key] = entry
	return nil
}

// Delete removes key
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
	return nil
}

// Len returns the number of physically stored entries, expired ones included
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Sweep removes expired entries and returns how many were removed
func (s *MemoryStore) Sweep() int {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, entry := range s.entries {
		if entry.expired(now) {
			delete(s.entries, key)
			removed++
		}
	}
	return removed
}

// Close stops the sweeper
func (s *MemoryStore) Close() error {
	s.stopOnce.Do(func() {
		close(s.stopC)
	})
	return nil
}

func (s *MemoryStore) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Sweep()
		case <-s.stopC:
			return
		}
	}
}

// evictLocked drops expired entries first, then the live entry closest to
// expiry. Entries without TTL go only when nothing with a TTL is left.
func (s *MemoryStore) evictLocked() {
	now := s.now()

	var (
		victim    string
		victimExp time.Time
		found     bool
	)
	for key, entry := range s.entries {
		if entry.expired(now) {
			delete(s.entries, key)
			continue
		}

		switch {
		case !found:
		case entry.expiresAt.IsZero():
			continue
		case victimExp.IsZero() || entry.expiresAt.Before(victimExp):
		default:
			continue
		}
		victim, victimExp, found = key, entry.expiresAt, true
	}

	if found && len(s.entries) >= s.maxEntries {
		delete(s.entries, victim)
	}
}
