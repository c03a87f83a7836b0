package session

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// MemoryStore is an in-process Store. Suitable for tests and single-replica
// deployments; state is lost on restart.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]map[string]memoryEntry),
		now:     time.Now,
	}
}

// WithClock replaces the clock used for expiry. Intended for tests.
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
	return s
}

func (s *MemoryStore) Get(_ context.Context, sessionID, key string) ([]byte, bool, error) {
	if err := checkID(sessionID); err != nil {
		return nil, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	bucket, ok := s.entries[sessionID]
	if !ok {
		return nil, false, nil
	}
	entry, ok := bucket[key]
	if !ok {
		return nil, false, nil
	}
	if entry.expired(s.now()) {
		delete(bucket, key)
		if len(bucket) == 0 {
			delete(s.entries, sessionID)
		}
		return nil, false, nil
	}

	out := make([]byte, len(entry.value))
	copy(out, entry.value)
	return out, true, nil
}

func (s *MemoryStore) Set(_ context.Context, sessionID, key string, value []byte, ttl time.Duration) error {
	if err := checkID(sessionID); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry := memoryEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		entry.expiresAt = s.now().Add(ttl)
	}

	bucket, ok := s.entries[sessionID]
	if !ok {
		bucket = make(map[string]memoryEntry)
		s.entries[sessionID] = bucket
	}
	bucket[key] = entry
	return nil
}

func (s *MemoryStore) Clear(_ context.Context, sessionID, key string) error {
	if err := checkID(sessionID); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if bucket, ok := s.entries[sessionID]; ok {
		delete(bucket, key)
		if len(bucket) == 0 {
			delete(s.entries, sessionID)
		}
	}
	return nil
}

// Sweep drops every expired key and returns how many were removed. Keys are
// otherwise only evicted when read, so a store seeing many one-off sessions
// needs this run periodically.
func (s *MemoryStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for sessionID, bucket := range s.entries {
		for key, entry := range bucket {
			if entry.expired(now) {
				delete(bucket, key)
				removed++
			}
		}
		if len(bucket) == 0 {
			delete(s.entries, sessionID)
		}
	}
	return removed
}

// Len returns the number of sessions holding at least one key.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
