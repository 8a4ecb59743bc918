package store

import (
	"context"
	"log/slog"

	"prayer-push-go/internal/models"
)

// PublishingNotificationStore publishes every successfully inserted
// notification. Publish failures are logged and never fail the insert: the
// database row is the source of truth.
type PublishingNotificationStore struct {
	NotificationStore
	publisher Publisher
	log       *slog.Logger
}

func WithPublisher(next NotificationStore, publisher Publisher, log *slog.Logger) *PublishingNotificationStore {
	return &PublishingNotificationStore{NotificationStore: next, publisher: publisher, log: log}
}

func (s *PublishingNotificationStore) InsertNotifications(ctx context.Context, notifications []models.Notification) ([]models.Notification, error) {
	saved, err := s.NotificationStore.InsertNotifications(ctx, notifications)
	if err != nil {
		return nil, err
	}
	for _, n := range saved {
		if err := s.publisher.PublishNotification(ctx, n); err != nil {
			s.log.WarnContext(ctx, "Failed to publish notification", slog.String("user_id", n.UserID), slog.Any("error", err))
		}
	}
	return saved, nil
}
