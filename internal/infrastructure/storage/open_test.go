package storage

import (
	"path/filepath"
	"testing"
)

func TestOpen(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"json", Config{Driver: "json", Path: filepath.Join(dir, "data.json")}, false},
		{"default driver", Config{Path: filepath.Join(dir, "data.json")}, false},
		{"sqlite", Config{Driver: "SQLite", Path: filepath.Join(dir, "cache.db")}, false},
		{"memory", Config{Driver: "memory"}, false},
		{"json without path", Config{Driver: "json"}, true},
		{"sqlite without path", Config{Driver: "sqlite"}, true},
		{"unknown", Config{Driver: "redis", Path: "x"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, closer, err := Open(tt.cfg)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if repo == nil || closer == nil {
				t.Fatal("expected repository and closer")
			}
			if err := closer.Close(); err != nil {
				t.Errorf("close failed: %v", err)
			}
		})
	}
}
