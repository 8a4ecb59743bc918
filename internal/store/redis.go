package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"prayer-push-go/internal/models"
)

// Publisher fans freshly inserted in-app notifications out to live clients.
type Publisher interface {
	PublishNotification(ctx context.Context, n models.Notification) error
}

// Feed is a Publisher whose messages can be listened to per user.
type Feed interface {
	Publisher
	// Listen streams the JSON of each notification published for userID
	// until stop is called or ctx ends.
	Listen(ctx context.Context, userID string) (messages <-chan string, stop func())
}

// RedisStore carries the realtime notification feed over Redis pub/sub.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(opts *redis.Options) *RedisStore {
	rdb := redis.NewClient(opts)
	return &RedisStore{client: rdb}
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func NotificationChannel(userID string) string {
	return "notifications:" + userID
}

func (s *RedisStore) PublishNotification(ctx context.Context, n models.Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return err
	}
	if err := s.client.Publish(ctx, NotificationChannel(n.UserID), data).Err(); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}

// Subscribe opens the live feed of one user's notifications.
func (s *RedisStore) Subscribe(ctx context.Context, userID string) *redis.PubSub {
	return s.client.Subscribe(ctx, NotificationChannel(userID))
}

func (s *RedisStore) Listen(ctx context.Context, userID string) (<-chan string, func()) {
	pubsub := s.Subscribe(ctx, userID)
	out := make(chan string)

	go func() {
		defer close(out)
		for msg := range pubsub.Channel() {
			select {
			case out <- msg.Payload:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, func() { _ = pubsub.Close() }
}
