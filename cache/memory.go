package cache

import (
	"context"
	"sync"
	"time"

	"github.com/ZaguanLabs/phrasebook"
)

// MemoryStore is a thread-safe in-memory cache store. It does not survive
// restarts and is meant for tests and single-process tools.
type MemoryStore struct {
	entries   map[phrasebook.CacheKey]phrasebook.CacheEntry
	mu        sync.RWMutex
	retention time.Duration
	now       func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	o := newOptions(opts)
	return &MemoryStore{
		entries:   make(map[phrasebook.CacheKey]phrasebook.CacheEntry),
		retention: o.retention,
		now:       o.now,
	}
}

// Get returns the entry for key if it is inside the retention window.
func (s *MemoryStore) Get(_ context.Context, key phrasebook.CacheKey) (phrasebook.CacheEntry, bool, error) {
	s.mu.RLock()
	entry, ok := s.entries[key]
	s.mu.RUnlock()

	if !ok || entry.Expired(s.now(), s.retention) {
		return phrasebook.CacheEntry{}, false, nil
	}
	return entry, true, nil
}

// Put stores entry, replacing any previous entry for the same key.
func (s *MemoryStore) Put(_ context.Context, entry phrasebook.CacheEntry) error {
	entry, err := stamp(entry, s.now)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[entry.Key] = entry
	return nil
}

// PurgeExpired deletes entries that are stale at now.
func (s *MemoryStore) PurgeExpired(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := 0
	for key, entry := range s.entries {
		if entry.Expired(now, s.retention) {
			delete(s.entries, key)
			deleted++
		}
	}
	return deleted, nil
}

// Len returns the number of entries in the store (including expired ones).
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Clear removes all entries from the store.
func (s *MemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[phrasebook.CacheKey]phrasebook.CacheEntry)
}

// Entries returns all non-expired entries.
func (s *MemoryStore) Entries(_ context.Context) ([]phrasebook.CacheEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now()
	result := make([]phrasebook.CacheEntry, 0, len(s.entries))
	for _, entry := range s.entries {
		if entry.Expired(now, s.retention) {
			continue
		}
		result = append(result, entry)
	}
	return result, nil
}

var (
	_ phrasebook.CacheStore = (*MemoryStore)(nil)
	_ Lister                = (*MemoryStore)(nil)
)
