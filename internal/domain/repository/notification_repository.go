package repository

import (
	"context"

	"soPushBot/internal/domain/entity"
)

type NotificationRepository interface {
	Send(ctx context.Context, notification *entity.Notification) error
}
