// Package push fans a notification out to every stored browser subscription
// of its target users.
package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"prayer-push-go/internal/metrics"
	"prayer-push-go/internal/models"
	"prayer-push-go/internal/store"
	"prayer-push-go/internal/vapid"
)

// ErrNoTargets is a caller error, distinct from targets without subscriptions.
var ErrNoTargets = errors.New("push: at least one target user is required")

const (
	GeneralTTL  = 24 * time.Hour
	ReminderTTL = time.Hour

	IconPath   = "/icons/icon-192x192.png"
	BadgePath  = "/icons/icon-96x96.png"
	DefaultURL = "/"
)

// ServerProvider hands out the VAPID context, nil when push is unavailable.
type ServerProvider interface {
	Get() *vapid.ApplicationServer
}

// ServerFunc adapts a function to ServerProvider.
type ServerFunc func() *vapid.ApplicationServer

func (f ServerFunc) Get() *vapid.ApplicationServer { return f() }

// Message is the user-visible part of a push.
type Message struct {
	Title string
	Body  string
	URL   string
	Tag   string
}

// Request is one Dispatch call: in-app rows for every target plus push.
type Request struct {
	UserIDs []string
	Title   string
	Body    string
	URL     string
	Tag     string
	Type    string
}

type Dispatcher struct {
	subs           store.SubscriptionStore
	inbox          store.NotificationStore
	servers        ServerProvider
	sender         Sender
	maxConcurrency int
	now            func() time.Time
	log            *slog.Logger
}

type Option func(*Dispatcher)

// WithMaxConcurrency bounds in-flight sends per batch; 0 means unbounded.
func WithMaxConcurrency(n int) Option {
	return func(d *Dispatcher) { d.maxConcurrency = n }
}

func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

func NewDispatcher(subs store.SubscriptionStore, inbox store.NotificationStore, servers ServerProvider, sender Sender, log *slog.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		subs:    subs,
		inbox:   inbox,
		servers: servers,
		sender:  sender,
		now:     time.Now,
		log:     log,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch writes one in-app notification per target user and then pushes
// to all of their subscriptions. Push failures, partial or total, never fail
// the call: the in-app row is the record of truth.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (models.DispatchResult, error) {
	userIDs := uniqueNonEmpty(req.UserIDs)
	if len(userIDs) == 0 {
		return models.DispatchResult{}, ErrNoTargets
	}

	notificationType := req.Type
	if notificationType == "" {
		notificationType = models.NotificationPush
	}
	url := req.URL
	if url == "" {
		url = DefaultURL
	}

	rows := make([]models.Notification, 0, len(userIDs))
	for _, userID := range userIDs {
		rows = append(rows, models.Notification{
			UserID:    userID,
			Title:     req.Title,
			Message:   req.Body,
			Type:      notificationType,
			ActionURL: url,
		})
	}
	saved, err := d.inbox.InsertNotifications(ctx, rows)
	if err != nil {
		return models.DispatchResult{}, fmt.Errorf("insert in-app notifications: %w", err)
	}
	metrics.InAppNotifications.WithLabelValues(notificationType).Add(float64(len(saved)))

	report, err := d.Push(ctx, userIDs, Message{Title: req.Title, Body: req.Body, URL: url, Tag: req.Tag}, GeneralTTL)
	if err != nil {
		d.log.ErrorContext(ctx, "Push delivery skipped", slog.Any("error", err))
		report.Errors = append(report.Errors, err.Error())
	}

	return models.DispatchResult{
		Success:            true,
		InAppNotifications: len(saved),
		PushNotifications:  report,
	}, nil
}

// Push delivers msg to every subscription of userIDs concurrently. There is
// no retry loop: a transient failure leaves the subscription in place and the
// next triggering event is the retry. Gone endpoints are deleted.
func (d *Dispatcher) Push(ctx context.Context, userIDs []string, msg Message, ttl time.Duration) (models.PushReport, error) {
	report := models.PushReport{Errors: []string{}}

	server := d.servers.Get()
	if server == nil {
		metrics.PushUnavailable.Inc()
		d.log.WarnContext(ctx, "Push unavailable, delivering in-app only", slog.Int("users", len(userIDs)))
		return report, nil
	}

	subs, err := d.subs.ListForUsers(ctx, userIDs)
	if err != nil {
		return report, fmt.Errorf("load subscriptions: %w", err)
	}
	if len(subs) == 0 {
		d.log.InfoContext(ctx, "No push subscriptions for target users", slog.Int("users", len(userIDs)))
		return report, nil
	}

	payload, err := json.Marshal(d.payload(msg))
	if err != nil {
		return report, fmt.Errorf("encode payload: %w", err)
	}

	start := time.Now()
	results := make([]error, len(subs))
	var g errgroup.Group
	if d.maxConcurrency > 0 {
		g.SetLimit(d.maxConcurrency)
	}
	for i, sub := range subs {
		g.Go(func() error {
			results[i] = d.deliver(ctx, server, sub, payload, ttl)
			return nil
		})
	}
	_ = g.Wait()
	metrics.PushDispatchDuration.Observe(time.Since(start).Seconds())

	for i, err := range results {
		if err == nil {
			report.Sent++
			continue
		}
		report.Failed++
		report.Errors = append(report.Errors, fmt.Sprintf("subscription %s: %v", subs[i].ID, err))
	}

	d.log.InfoContext(ctx, "Push batch delivered",
		slog.Int("subscriptions", len(subs)),
		slog.Int("sent", report.Sent),
		slog.Int("failed", report.Failed),
		slog.Duration("duration", time.Since(start)))

	return report, nil
}

func (d *Dispatcher) deliver(ctx context.Context, server *vapid.ApplicationServer, sub models.PushSubscription, payload []byte, ttl time.Duration) error {
	err := d.sender.Send(ctx, server, sub, payload, ttl)
	if err == nil {
		metrics.PushDeliveries.WithLabelValues("sent").Inc()
		return nil
	}

	var delivery *DeliveryError
	if errors.As(err, &delivery) && delivery.Gone() {
		metrics.PushDeliveries.WithLabelValues("gone").Inc()
		d.log.InfoContext(ctx, "Removing gone push subscription",
			slog.String("subscription_id", sub.ID),
			slog.String("user_id", sub.UserID),
			slog.Int("status", delivery.StatusCode))
		if rmErr := d.subs.RemoveSubscription(ctx, sub.ID); rmErr != nil {
			d.log.ErrorContext(ctx, "Failed to remove gone subscription",
				slog.String("subscription_id", sub.ID), slog.Any("error", rmErr))
		}
		return err
	}

	metrics.PushDeliveries.WithLabelValues("failed").Inc()
	d.log.ErrorContext(ctx, "Push delivery failed",
		slog.String("subscription_id", sub.ID),
		slog.String("user_id", sub.UserID),
		slog.Any("error", err))
	return err
}

func (d *Dispatcher) payload(msg Message) models.Payload {
	tag := msg.Tag
	if tag == "" {
		tag = "notification-" + strconv.FormatInt(d.now().UnixMilli(), 10)
	}
	url := msg.URL
	if url == "" {
		url = DefaultURL
	}
	return models.Payload{
		Title:     msg.Title,
		Body:      msg.Body,
		Icon:      IconPath,
		Badge:     BadgePath,
		Tag:       tag,
		URL:       url,
		ActionURL: url,
	}
}

func uniqueNonEmpty(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
