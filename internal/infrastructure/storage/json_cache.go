package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"soPushBot/internal/domain/apperror"
	"soPushBot/internal/domain/entity"
	"soPushBot/internal/domain/repository"
)

const legacyDayLayout = "2006-01-02"

type jsonCache struct {
	path string
}

// NewJSONCacheRepository keeps the cache as a single JSON object mapping a
// question id to a unix timestamp.
func NewJSONCacheRepository(path string) repository.CacheRepository {
	return &jsonCache{path: path}
}

func (c *jsonCache) Load(ctx context.Context) (*entity.CacheStore, error) {
	raw, err := os.ReadFile(c.path)
	if errors.Is(err, os.ErrNotExist) {
		return entity.NewCacheStore(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cache file: %w", err)
	}

	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, &apperror.CacheCorruptError{Path: c.path, Err: errors.New("empty file")}
	}

	entries, err := decodeEntries(raw)
	if err != nil {
		return nil, &apperror.CacheCorruptError{Path: c.path, Err: err}
	}
	return entity.CacheStoreFrom(entries), nil
}

// decodeEntries accepts the current {"id": unix} layout and the older
// day-bucketed {"2006-01-02": ["id", ...]} layout. Bucketed ids are stamped
// with midnight UTC of their day.
func decodeEntries(raw []byte) (map[string]int64, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode cache: %w", err)
	}
	if doc == nil {
		return nil, errors.New("cache document is null")
	}

	entries := make(map[string]int64, len(doc))
	var sawStamp, sawBucket bool
	for key, value := range doc {
		var ts int64
		if err := json.Unmarshal(value, &ts); err == nil {
			sawStamp = true
			entries[key] = ts
			continue
		}

		var ids []string
		if err := json.Unmarshal(value, &ids); err != nil {
			return nil, fmt.Errorf("entry %q is neither a timestamp nor an id list", key)
		}
		day, err := time.ParseInLocation(legacyDayLayout, key, time.UTC)
		if err != nil {
			return nil, fmt.Errorf("bucket key %q is not a date: %w", key, err)
		}
		sawBucket = true
		for _, id := range ids {
			if prev, ok := entries[id]; !ok || day.Unix() > prev {
				entries[id] = day.Unix()
			}
		}
	}

	if sawStamp && sawBucket {
		return nil, errors.New("cache mixes timestamp entries and day buckets")
	}
	return entries, nil
}

func (c *jsonCache) Persist(ctx context.Context, store *entity.CacheStore) error {
	data, err := json.MarshalIndent(store.Snapshot(), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode cache: %w", err)
	}
	data = append(data, '\n')

	if err := writeFileAtomic(c.path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write cache file: %w", err)
	}
	return nil
}

// writeFileAtomic writes data to a temp file next to path and renames it into
// place, so readers see either the old file or the new one.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpPath) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return err
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		cleanup()
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		cleanup()
		return err
	}

	syncDir(dir)
	return nil
}

func syncDir(dir string) {
	if runtime.GOOS == "windows" {
		return
	}
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	defer d.Close()
	_ = d.Sync()
}
