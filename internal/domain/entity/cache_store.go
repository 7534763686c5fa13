package entity

import (
	"time"
)

// CacheStore maps a question id to the unix time of its creation. An id in
// the store has already been pushed once.
type CacheStore struct {
	entries map[string]int64
}

func NewCacheStore() *CacheStore {
	return &CacheStore{entries: make(map[string]int64)}
}

// CacheStoreFrom copies entries into a new store.
func CacheStoreFrom(entries map[string]int64) *CacheStore {
	s := NewCacheStore()
	for id, ts := range entries {
		s.entries[id] = ts
	}
	return s
}

func (s *CacheStore) IsNew(id string) bool {
	_, ok := s.entries[id]
	return !ok
}

func (s *CacheStore) Record(id string, createdAt time.Time) {
	s.entries[id] = createdAt.Unix()
}

// Evict drops every entry older than now-retention and reports how many
// were removed. An entry exactly on the boundary is kept.
func (s *CacheStore) Evict(now time.Time, retention time.Duration) int {
	cutoff := now.Add(-retention).Unix()
	removed := 0
	for id, ts := range s.entries {
		if ts < cutoff {
			delete(s.entries, id)
			removed++
		}
	}
	return removed
}

func (s *CacheStore) Len() int {
	return len(s.entries)
}

func (s *CacheStore) Snapshot() map[string]int64 {
	out := make(map[string]int64, len(s.entries))
	for id, ts := range s.entries {
		out[id] = ts
	}
	return out
}

func (s *CacheStore) Oldest() (time.Time, bool) {
	return s.edge(func(a, b int64) bool { return a < b })
}

func (s *CacheStore) Newest() (time.Time, bool) {
	return s.edge(func(a, b int64) bool { return a > b })
}

func (s *CacheStore) edge(better func(a, b int64) bool) (time.Time, bool) {
	var (
		best  int64
		found bool
	)
	for _, ts := range s.entries {
		if !found || better(ts, best) {
			best = ts
			found = true
		}
	}
	if !found {
		return time.Time{}, false
	}
	return time.Unix(best, 0).UTC(), true
}
