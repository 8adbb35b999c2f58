package idempotency

import (
	"context"
	"sync"
	"time"
)

type memEntry struct {
	rec       Record
	done      bool
	expiresAt time.Time
}

// MemoryStore keeps records in process memory. It is only correct for a
// single API instance.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memEntry
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]memEntry), now: time.Now}
}

func compositeKey(userID, key string) string { return userID + ":" + key }

func (s *MemoryStore) Get(_ context.Context, userID, key string) (Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := compositeKey(userID, key)
	e, ok := s.entries[k]
	if !ok || !e.done {
		return Record{}, false, nil
	}
	if !s.now().Before(e.expiresAt) {
		delete(s.entries, k)
		return Record{}, false, nil
	}
	return e.rec, true, nil
}

func (s *MemoryStore) Claim(_ context.Context, userID, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := compositeKey(userID, key)
	if e, ok := s.entries[k]; ok && s.now().Before(e.expiresAt) {
		return false, nil
	}
	s.entries[k] = memEntry{expiresAt: s.now().Add(ttl)}
	return true, nil
}

func (s *MemoryStore) Save(_ context.Context, userID, key string, rec Record, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[compositeKey(userID, key)] = memEntry{rec: rec, done: true, expiresAt: s.now().Add(ttl)}
	return nil
}

func (s *MemoryStore) Release(_ context.Context, userID, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := compositeKey(userID, key)
	if e, ok := s.entries[k]; ok && !e.done {
		delete(s.entries, k)
	}
	return nil
}

// Evict drops expired entries and returns how many were removed.
func (s *MemoryStore) Evict() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	n := 0
	for k, e := range s.entries {
		if !now.Before(e.expiresAt) {
			delete(s.entries, k)
			n++
		}
	}
	return n
}

// Len is the number of live and not yet evicted entries.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// RunJanitor evicts expired entries every interval until ctx is done.
func (s *MemoryStore) RunJanitor(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.Evict()
		}
	}
}
