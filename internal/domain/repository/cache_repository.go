package repository

import (
	"context"

	"soPushBot/internal/domain/entity"
)

type CacheRepository interface {
	// Load returns an empty store when nothing has been persisted yet and
	// *apperror.CacheCorruptError when the persisted state cannot be read.
	Load(ctx context.Context) (*entity.CacheStore, error)
	// Persist replaces the persisted state with store as a whole.
	Persist(ctx context.Context, store *entity.CacheStore) error
}
