package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"soPushBot/internal/domain/apperror"
	"soPushBot/internal/domain/entity"
)

func TestJSONCache_LoadMissingFile(t *testing.T) {
	cache := NewJSONCacheRepository(filepath.Join(t.TempDir(), "data.json"))

	store, err := cache.Load(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.Len() != 0 {
		t.Errorf("expected empty store, got %d entries", store.Len())
	}
}

func TestJSONCache_PersistAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.json")
	cache := NewJSONCacheRepository(path)
	ctx := context.Background()

	store := entity.NewCacheStore()
	store.Record("100", time.Unix(1000, 0))
	store.Record("200", time.Unix(2000, 0))

	if err := cache.Persist(ctx, store); err != nil {
		t.Fatalf("failed to persist: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read file: %v", err)
	}
	want := "{\n  \"100\": 1000,\n  \"200\": 2000\n}\n"
	if string(raw) != want {
		t.Errorf("unexpected file content:\n%s", raw)
	}

	loaded, err := cache.Load(ctx)
	if err != nil {
		t.Fatalf("failed to load: %v", err)
	}
	if loaded.Len() != 2 || loaded.IsNew("100") || loaded.IsNew("200") {
		t.Errorf("unexpected loaded store: %v", loaded.Snapshot())
	}
}

func TestJSONCache_PersistReplacesWholeFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.json")
	cache := NewJSONCacheRepository(path)
	ctx := context.Background()

	first := entity.CacheStoreFrom(map[string]int64{"1": 1, "2": 2, "3": 3})
	if err := cache.Persist(ctx, first); err != nil {
		t.Fatalf("failed to persist: %v", err)
	}

	second := entity.CacheStoreFrom(map[string]int64{"3": 3})
	if err := cache.Persist(ctx, second); err != nil {
		t.Fatalf("failed to persist: %v", err)
	}

	loaded, err := cache.Load(ctx)
	if err != nil {
		t.Fatalf("failed to load: %v", err)
	}
	if loaded.Len() != 1 {
		t.Errorf("expected 1 entry after rewrite, got %v", loaded.Snapshot())
	}

	matches, _ := filepath.Glob(filepath.Join(filepath.Dir(path), "*.tmp"))
	if len(matches) != 0 {
		t.Errorf("expected no leftover temp files, got %v", matches)
	}
}

func TestJSONCache_LoadCorrupt(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"truncated", `{"100": 10`},
		{"empty", ""},
		{"array", `[1, 2, 3]`},
		{"null", `null`},
		{"wrong value type", `{"100": "soon"}`},
		{"bucket with bad key", `{"yesterday": ["1"]}`},
		{"mixed layouts", `{"100": 1000, "2024-01-01": ["1"]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "data.json")
			if err := os.WriteFile(path, []byte(tt.content), 0o644); err != nil {
				t.Fatalf("failed to write: %v", err)
			}

			_, err := NewJSONCacheRepository(path).Load(context.Background())
			var corrupt *apperror.CacheCorruptError
			if !errors.As(err, &corrupt) {
				t.Fatalf("expected CacheCorruptError, got %v", err)
			}
			if corrupt.Path != path {
				t.Errorf("expected path %s, got %s", path, corrupt.Path)
			}
		})
	}
}

func TestJSONCache_LoadLegacyDayBuckets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.json")
	legacy := `{
  "2024-03-01": ["111", "222"],
  "2024-03-02": ["222", "333"]
}`
	if err := os.WriteFile(path, []byte(legacy), 0o644); err != nil {
		t.Fatalf("failed to write: %v", err)
	}

	store, err := NewJSONCacheRepository(path).Load(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	day1 := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC).Unix()
	day2 := time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC).Unix()
	snap := store.Snapshot()

	if snap["111"] != day1 {
		t.Errorf("expected 111 stamped %d, got %d", day1, snap["111"])
	}
	if snap["222"] != day2 {
		t.Errorf("expected 222 to keep the later day %d, got %d", day2, snap["222"])
	}
	if snap["333"] != day2 {
		t.Errorf("expected 333 stamped %d, got %d", day2, snap["333"])
	}
}

func TestJSONCache_PersistCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state", "data.json")
	cache := NewJSONCacheRepository(path)

	if err := cache.Persist(context.Background(), entity.NewCacheStore()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("expected file to exist: %v", err)
	}
	if strings.TrimSpace(string(raw)) != "{}" {
		t.Errorf("expected empty object, got %q", raw)
	}
}
