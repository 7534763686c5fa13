package repository

import (
	"context"

	"soPushBot/internal/domain/entity"
)

// QuestionRepository returns candidate questions, newest first as upstream
// lists them. Failures are reported as *apperror.FetchError.
type QuestionRepository interface {
	Fetch(ctx context.Context, query entity.QuestionQuery) ([]*entity.Question, error)
}
