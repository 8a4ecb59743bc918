package store

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"prayer-push-go/internal/models"
)

//go:embed schema.sql
var schemaSQL string

type PostgresStore struct {
	db *sqlx.DB
}

func NewPostgresStore(databaseURL string) (*PostgresStore, error) {
	db, err := sqlx.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// RunMigrations creates the push tables if they don't exist.
func (s *PostgresStore) RunMigrations(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	return nil
}

// Subscription methods

func (s *PostgresStore) ListForUsers(ctx context.Context, userIDs []string) ([]models.PushSubscription, error) {
	if len(userIDs) == 0 {
		return []models.PushSubscription{}, nil
	}

	subs := []models.PushSubscription{}
	err := s.db.SelectContext(ctx, &subs,
		`SELECT id, user_id, endpoint, p256dh, auth, created_at, updated_at
		 FROM push_subscriptions
		 WHERE user_id = ANY($1::uuid[])`,
		pq.Array(userIDs),
	)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	return subs, nil
}

func (s *PostgresStore) RemoveSubscription(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM push_subscriptions WHERE id = $1`, id); err != nil {
		return fmt.Errorf("remove subscription %s: %w", id, err)
	}
	return nil
}

// ReplaceForUser refreshes the keys of an existing (user, endpoint) row or
// inserts it, in one statement.
func (s *PostgresStore) ReplaceForUser(ctx context.Context, userID string, sub models.PushSubscription) (models.PushSubscription, error) {
	var saved models.PushSubscription
	err := s.db.QueryRowxContext(ctx,
		`INSERT INTO push_subscriptions (user_id, endpoint, p256dh, auth, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, NOW(), NOW())
		 ON CONFLICT (user_id, endpoint) DO UPDATE
		 SET p256dh = EXCLUDED.p256dh, auth = EXCLUDED.auth, updated_at = NOW()
		 RETURNING id, user_id, endpoint, p256dh, auth, created_at, updated_at`,
		userID, sub.Endpoint, sub.P256dh, sub.Auth,
	).StructScan(&saved)
	if err != nil {
		return models.PushSubscription{}, fmt.Errorf("upsert subscription: %w", err)
	}
	return saved, nil
}

func (s *PostgresStore) RemoveByEndpoint(ctx context.Context, userID, endpoint string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM push_subscriptions WHERE user_id = $1 AND endpoint = $2`,
		userID, endpoint,
	)
	if err != nil {
		return fmt.Errorf("remove subscription by endpoint: %w", err)
	}
	return nil
}

// Notification methods

func (s *PostgresStore) InsertNotifications(ctx context.Context, notifications []models.Notification) ([]models.Notification, error) {
	if len(notifications) == 0 {
		return []models.Notification{}, nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin insert notifications: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx,
		`INSERT INTO notifications (user_id, title, message, type, action_url, is_read, created_at)
		 VALUES ($1, $2, $3, $4, $5, FALSE, NOW())
		 RETURNING id, user_id, title, message, type, action_url, is_read, created_at`,
	)
	if err != nil {
		return nil, fmt.Errorf("prepare insert notifications: %w", err)
	}
	defer stmt.Close()

	saved := make([]models.Notification, 0, len(notifications))
	for _, n := range notifications {
		var row models.Notification
		if err := stmt.QueryRowxContext(ctx, n.UserID, n.Title, n.Message, n.Type, n.ActionURL).StructScan(&row); err != nil {
			return nil, fmt.Errorf("insert notification for user %s: %w", n.UserID, err)
		}
		saved = append(saved, row)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit notifications: %w", err)
	}
	return saved, nil
}

func (s *PostgresStore) UsersNotifiedSince(ctx context.Context, notificationType string, since time.Time, userIDs []string) (map[string]bool, error) {
	notified := make(map[string]bool)
	if len(userIDs) == 0 {
		return notified, nil
	}

	var ids []string
	err := s.db.SelectContext(ctx, &ids,
		`SELECT DISTINCT user_id::text
		 FROM notifications
		 WHERE type = $1 AND created_at >= $2 AND user_id = ANY($3::uuid[])`,
		notificationType, since, pq.Array(userIDs),
	)
	if err != nil {
		return nil, fmt.Errorf("query notified users: %w", err)
	}
	for _, id := range ids {
		notified[id] = true
	}
	return notified, nil
}

// Reminder methods

func (s *PostgresStore) DueReminders(ctx context.Context, clock string) ([]models.Reminder, error) {
	reminders := []models.Reminder{}
	err := s.db.SelectContext(ctx, &reminders,
		`SELECT id, user_id, to_char(reminder_time, 'HH24:MI:SS') AS reminder_time, reminder_type, is_active
		 FROM prayer_reminders
		 WHERE is_active AND reminder_time = $1::time`,
		clock,
	)
	if err != nil {
		return nil, fmt.Errorf("query due reminders: %w", err)
	}
	return reminders, nil
}
