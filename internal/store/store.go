package store

import (
	"context"
	"errors"
	"time"

	"prayer-push-go/internal/models"
)

var ErrNotFound = errors.New("store: not found")

// SubscriptionStore is the durable set of browser push channels.
type SubscriptionStore interface {
	// ListForUsers returns every subscription owned by any of userIDs.
	ListForUsers(ctx context.Context, userIDs []string) ([]models.PushSubscription, error)
	// RemoveSubscription deletes by id; deleting an absent id is not an error.
	RemoveSubscription(ctx context.Context, id string) error
	// ReplaceForUser upserts the subscription keyed on (user, endpoint).
	ReplaceForUser(ctx context.Context, userID string, sub models.PushSubscription) (models.PushSubscription, error)
	RemoveByEndpoint(ctx context.Context, userID, endpoint string) error
}

// NotificationStore is the in-app inbox.
type NotificationStore interface {
	InsertNotifications(ctx context.Context, notifications []models.Notification) ([]models.Notification, error)
	// UsersNotifiedSince returns the subset of userIDs owning a notification of
	// the given type created at or after since.
	UsersNotifiedSince(ctx context.Context, notificationType string, since time.Time, userIDs []string) (map[string]bool, error)
}

type ReminderStore interface {
	// DueReminders returns active reminders whose reminder_time equals clock
	// (HH:MM:SS) exactly.
	DueReminders(ctx context.Context, clock string) ([]models.Reminder, error)
}

// Store is everything the push service persists.
type Store interface {
	SubscriptionStore
	NotificationStore
	ReminderStore
}
