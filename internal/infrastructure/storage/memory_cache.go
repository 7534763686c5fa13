package storage

import (
	"context"
	"sync"

	"soPushBot/internal/domain/entity"
	"soPushBot/internal/domain/repository"
)

// memoryCache lives only as long as the process. It serves the watch loop
// when no file should be written, and tests.
type memoryCache struct {
	mu      sync.RWMutex
	entries map[string]int64
}

func NewMemoryCacheRepository() repository.CacheRepository {
	return &memoryCache{
		entries: make(map[string]int64),
	}
}

func (c *memoryCache) Load(ctx context.Context) (*entity.CacheStore, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return entity.CacheStoreFrom(c.entries), nil
}

func (c *memoryCache) Persist(ctx context.Context, store *entity.CacheStore) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = store.Snapshot()
	return nil
}
