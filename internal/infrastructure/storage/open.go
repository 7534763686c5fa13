package storage

import (
	"fmt"
	"io"
	"strings"

	"soPushBot/internal/domain/repository"
)

const (
	DriverJSON   = "json"
	DriverSQLite = "sqlite"
	DriverMemory = "memory"
)

type Config struct {
	Driver string
	Path   string
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Open returns the cache repository for cfg.Driver. The closer must be
// called once the repository is no longer used.
func Open(cfg Config) (repository.CacheRepository, io.Closer, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case DriverJSON, "":
		if cfg.Path == "" {
			return nil, nil, fmt.Errorf("cache path is required for the %s driver", DriverJSON)
		}
		return NewJSONCacheRepository(cfg.Path), nopCloser{}, nil
	case DriverSQLite:
		if cfg.Path == "" {
			return nil, nil, fmt.Errorf("cache path is required for the %s driver", DriverSQLite)
		}
		cache, err := NewSQLiteCacheRepository(cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		return cache, cache, nil
	case DriverMemory:
		return NewMemoryCacheRepository(), nopCloser{}, nil
	default:
		return nil, nil, fmt.Errorf("unknown cache driver: %s", cfg.Driver)
	}
}
