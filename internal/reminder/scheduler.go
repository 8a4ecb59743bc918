// Package reminder turns due prayer reminders into notifications, once per
// user per civil day.
package reminder

import (
	"context"
	"fmt"
	"log/slog"
	"time"
	_ "time/tzdata"

	"prayer-push-go/internal/metrics"
	"prayer-push-go/internal/models"
	"prayer-push-go/internal/push"
	"prayer-push-go/internal/store"
)

// ActionURL is the deep link every reminder opens.
const ActionURL = "/lembretes-oracao"

// Pusher is the push-only path of the dispatcher.
type Pusher interface {
	Push(ctx context.Context, userIDs []string, msg push.Message, ttl time.Duration) (models.PushReport, error)
}

type text struct {
	title string
	body  string
}

var texts = map[string]text{
	models.ReminderMorning: {
		title: "🌅 Oração da Manhã",
		body:  "Bom dia! Comece o seu dia conversando com Deus.",
	},
	models.ReminderAfternoon: {
		title: "☀️ Oração da Tarde",
		body:  "Boa tarde! Separe um momento para orar.",
	},
	models.ReminderEvening: {
		title: "🌙 Oração da Noite",
		body:  "Boa noite! Agradeça a Deus pelo dia de hoje.",
	},
	models.ReminderCustom: {
		title: "🙏 Hora de Orar",
		body:  "Chegou o seu momento de oração.",
	},
}

// textFor falls back to the custom pair for unknown categories.
func textFor(reminderType string) text {
	if t, ok := texts[reminderType]; ok {
		return t
	}
	return texts[models.ReminderCustom]
}

type Scheduler struct {
	reminders store.ReminderStore
	inbox     store.NotificationStore
	pusher    Pusher
	loc       *time.Location
	now       func() time.Time
	log       *slog.Logger
}

type Option func(*Scheduler)

func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

func NewScheduler(reminders store.ReminderStore, inbox store.NotificationStore, pusher Pusher, loc *time.Location, log *slog.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		reminders: reminders,
		inbox:     inbox,
		pusher:    pusher,
		loc:       loc,
		now:       time.Now,
		log:       log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LoadLocation resolves the reminder timezone, falling back to a fixed UTC-3
// zone when name is unknown.
func LoadLocation(name string, log *slog.Logger) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		log.Warn("Unknown reminder timezone, using UTC-3", slog.String("timezone", name), slog.Any("error", err))
		return time.FixedZone("UTC-3", -3*60*60)
	}
	return loc
}

// Clock returns the civil time of t as HH:MM:00 and the start of its civil day.
func (s *Scheduler) Clock(t time.Time) (string, time.Time) {
	local := t.In(s.loc)
	dayStart := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.loc)
	return local.Format("15:04") + ":00", dayStart
}

// Run is one sweep. Reminders whose minute was missed are not caught up.
// Overlapping sweeps rely on the same-day check, which is not a lock: two
// sweeps racing between the check and the insert may both send.
func (s *Scheduler) Run(ctx context.Context) (models.SweepResult, error) {
	clock, dayStart := s.Clock(s.now())
	result := models.SweepResult{Success: true, Time: clock}

	due, err := s.reminders.DueReminders(ctx, clock)
	if err != nil {
		return models.SweepResult{}, fmt.Errorf("load due reminders: %w", err)
	}
	if len(due) == 0 {
		return result, nil
	}

	userIDs := make([]string, 0, len(due))
	for _, r := range due {
		userIDs = append(userIDs, r.UserID)
	}
	notified, err := s.inbox.UsersNotifiedSince(ctx, models.NotificationPrayerReminder, dayStart, userIDs)
	if err != nil {
		return models.SweepResult{}, fmt.Errorf("load today's reminders: %w", err)
	}

	for _, r := range due {
		if notified[r.UserID] {
			result.Skipped++
			metrics.ReminderSweep.WithLabelValues("skipped").Inc()
			continue
		}
		notified[r.UserID] = true

		pushed, err := s.remind(ctx, r)
		if err != nil {
			metrics.ReminderSweep.WithLabelValues("failed").Inc()
			s.log.ErrorContext(ctx, "Reminder failed",
				slog.String("reminder_id", r.ID),
				slog.String("user_id", r.UserID),
				slog.Any("error", err))
			continue
		}
		result.Sent++
		result.PushSent += pushed
		metrics.ReminderSweep.WithLabelValues("sent").Inc()
	}

	s.log.InfoContext(ctx, "Reminder sweep finished",
		slog.String("time", clock),
		slog.Int("due", len(due)),
		slog.Int("sent", result.Sent),
		slog.Int("push_sent", result.PushSent),
		slog.Int("skipped", result.Skipped))

	return result, nil
}

// remind writes the in-app row and then pushes. A push failure is logged and
// does not undo the row.
func (s *Scheduler) remind(ctx context.Context, r models.Reminder) (int, error) {
	t := textFor(r.ReminderType)

	saved, err := s.inbox.InsertNotifications(ctx, []models.Notification{{
		UserID:    r.UserID,
		Title:     t.title,
		Message:   t.body,
		Type:      models.NotificationPrayerReminder,
		ActionURL: ActionURL,
	}})
	if err != nil {
		return 0, fmt.Errorf("insert notification: %w", err)
	}
	metrics.InAppNotifications.WithLabelValues(models.NotificationPrayerReminder).Add(float64(len(saved)))

	report, err := s.pusher.Push(ctx, []string{r.UserID}, push.Message{
		Title: t.title,
		Body:  t.body,
		URL:   ActionURL,
		Tag:   "prayer-reminder-" + r.ID,
	}, push.ReminderTTL)
	if err != nil {
		s.log.ErrorContext(ctx, "Reminder push failed",
			slog.String("user_id", r.UserID), slog.Any("error", err))
		return 0, nil
	}
	return report.Sent, nil
}
