package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"soPushBot/internal/domain/apperror"
	"soPushBot/internal/domain/entity"

	_ "modernc.org/sqlite"
)

type SQLiteCache struct {
	db   *sql.DB
	path string
}

// NewSQLiteCacheRepository opens (or creates) a SQLite database holding the
// seen questions. Persist swaps the table contents inside one transaction.
func NewSQLiteCacheRepository(dbPath string) (*SQLiteCache, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to sqlite database: %w", err)
	}

	cache := &SQLiteCache{db: db, path: dbPath}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := cache.initSchema(ctx); err != nil {
		db.Close()
		return nil, &apperror.CacheCorruptError{Path: dbPath, Err: fmt.Errorf("failed to initialize schema: %w", err)}
	}

	return cache, nil
}

func (c *SQLiteCache) initSchema(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS seen_questions (
			id TEXT PRIMARY KEY,
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_seen_questions_created_at ON seen_questions(created_at)`,
	}

	for _, query := range queries {
		if _, err := c.db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute schema query: %w", err)
		}
	}

	return nil
}

func (c *SQLiteCache) Load(ctx context.Context) (*entity.CacheStore, error) {
	rows, err := c.db.QueryContext(ctx, "SELECT id, created_at FROM seen_questions")
	if err != nil {
		return nil, &apperror.CacheCorruptError{Path: c.path, Err: err}
	}
	defer rows.Close()

	entries := make(map[string]int64)
	for rows.Next() {
		var (
			id string
			ts int64
		)
		if err := rows.Scan(&id, &ts); err != nil {
			return nil, &apperror.CacheCorruptError{Path: c.path, Err: err}
		}
		entries[id] = ts
	}
	if err := rows.Err(); err != nil {
		return nil, &apperror.CacheCorruptError{Path: c.path, Err: err}
	}

	return entity.CacheStoreFrom(entries), nil
}

func (c *SQLiteCache) Persist(ctx context.Context, store *entity.CacheStore) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM seen_questions"); err != nil {
		return fmt.Errorf("failed to clear seen questions: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, "INSERT INTO seen_questions (id, created_at) VALUES (?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for id, ts := range store.Snapshot() {
		if _, err := stmt.ExecContext(ctx, id, ts); err != nil {
			return fmt.Errorf("failed to insert question %s: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit cache: %w", err)
	}
	return nil
}

func (c *SQLiteCache) Close() error {
	return c.db.Close()
}
