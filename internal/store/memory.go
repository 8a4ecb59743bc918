package store

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"prayer-push-go/internal/models"
)

// MemoryStore keeps everything in process. It backs `serve --in-memory` and
// the tests; it is not shared between processes.
type MemoryStore struct {
	mu            sync.Mutex
	subscriptions map[string]models.PushSubscription
	notifications []models.Notification
	reminders     []models.Reminder
	listeners     map[string]map[chan string]struct{}

	now func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		subscriptions: make(map[string]models.PushSubscription),
		listeners:     make(map[string]map[chan string]struct{}),
		now:           time.Now,
	}
}

// SetClock overrides the timestamp source used for created_at.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *MemoryStore) ListForUsers(_ context.Context, userIDs []string) ([]models.PushSubscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	wanted := make(map[string]bool, len(userIDs))
	for _, id := range userIDs {
		wanted[id] = true
	}

	subs := []models.PushSubscription{}
	for _, sub := range s.subscriptions {
		if wanted[sub.UserID] {
			subs = append(subs, sub)
		}
	}
	sort.Slice(subs, func(i, j int) bool { return subs[i].CreatedAt.Before(subs[j].CreatedAt) })
	return subs, nil
}

func (s *MemoryStore) RemoveSubscription(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subscriptions, id)
	return nil
}

func (s *MemoryStore) ReplaceForUser(_ context.Context, userID string, sub models.PushSubscription) (models.PushSubscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for id, existing := range s.subscriptions {
		if existing.UserID == userID && existing.Endpoint == sub.Endpoint {
			existing.P256dh = sub.P256dh
			existing.Auth = sub.Auth
			existing.UpdatedAt = now
			s.subscriptions[id] = existing
			return existing, nil
		}
	}

	saved := models.PushSubscription{
		ID:        uuid.NewString(),
		UserID:    userID,
		Endpoint:  sub.Endpoint,
		P256dh:    sub.P256dh,
		Auth:      sub.Auth,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.subscriptions[saved.ID] = saved
	return saved, nil
}

func (s *MemoryStore) RemoveByEndpoint(_ context.Context, userID, endpoint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, sub := range s.subscriptions {
		if sub.UserID == userID && sub.Endpoint == endpoint {
			delete(s.subscriptions, id)
		}
	}
	return nil
}

func (s *MemoryStore) InsertNotifications(_ context.Context, notifications []models.Notification) ([]models.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	saved := make([]models.Notification, 0, len(notifications))
	for _, n := range notifications {
		n.ID = uuid.NewString()
		n.IsRead = false
		n.CreatedAt = s.now()
		s.notifications = append(s.notifications, n)
		saved = append(saved, n)
	}
	return saved, nil
}

func (s *MemoryStore) UsersNotifiedSince(_ context.Context, notificationType string, since time.Time, userIDs []string) (map[string]bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	wanted := make(map[string]bool, len(userIDs))
	for _, id := range userIDs {
		wanted[id] = true
	}

	notified := make(map[string]bool)
	for _, n := range s.notifications {
		if n.Type == notificationType && wanted[n.UserID] && !n.CreatedAt.Before(since) {
			notified[n.UserID] = true
		}
	}
	return notified, nil
}

func (s *MemoryStore) DueReminders(_ context.Context, clock string) ([]models.Reminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	due := []models.Reminder{}
	for _, r := range s.reminders {
		if r.IsActive && r.ReminderTime == clock {
			due = append(due, r)
		}
	}
	return due, nil
}

// AddReminder stores a reminder; reminders are owned by the client app, so
// the push service itself never writes them.
func (s *MemoryStore) AddReminder(r models.Reminder) models.Reminder {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	s.reminders = append(s.reminders, r)
	return r
}

// Notifications returns a copy of the inbox of userID.
func (s *MemoryStore) Notifications(userID string) []models.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Notification
	for _, n := range s.notifications {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	return out
}

func (s *MemoryStore) PublishNotification(_ context.Context, n models.Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.listeners[n.UserID] {
		select {
		case ch <- string(data):
		default:
			// Slow listener; it still has the inbox row.
		}
	}
	return nil
}

func (s *MemoryStore) Listen(ctx context.Context, userID string) (<-chan string, func()) {
	ch := make(chan string, 16)

	s.mu.Lock()
	if s.listeners[userID] == nil {
		s.listeners[userID] = make(map[chan string]struct{})
	}
	s.listeners[userID][ch] = struct{}{}
	s.mu.Unlock()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners[userID], ch)
			s.mu.Unlock()
			close(ch)
		})
	}
	go func() {
		<-ctx.Done()
		stop()
	}()
	return ch, stop
}
