package push

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/SherClockHolmes/webpush-go"

	"prayer-push-go/internal/models"
	"prayer-push-go/internal/vapid"
)

// Sender delivers one encrypted payload to one subscription.
type Sender interface {
	Send(ctx context.Context, server *vapid.ApplicationServer, sub models.PushSubscription, payload []byte, ttl time.Duration) error
}

// DeliveryError is a non-2xx answer from the push service.
type DeliveryError struct {
	StatusCode int
	Body       string
}

func (e *DeliveryError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("push service responded %d", e.StatusCode)
	}
	return fmt.Sprintf("push service responded %d: %s", e.StatusCode, e.Body)
}

// Gone reports whether the push service says the endpoint no longer exists.
func (e *DeliveryError) Gone() bool {
	return e.StatusCode == http.StatusGone || e.StatusCode == http.StatusNotFound
}

// WebPushSender signs and encrypts with webpush-go. Request timeouts are left
// to the HTTP client; the TTL only tells the push service how long to queue.
type WebPushSender struct {
	client webpush.HTTPClient
}

// NewWebPushSender uses client for outgoing requests, or the library default
// when client is nil.
func NewWebPushSender(client webpush.HTTPClient) *WebPushSender {
	return &WebPushSender{client: client}
}

func (s *WebPushSender) Send(ctx context.Context, server *vapid.ApplicationServer, sub models.PushSubscription, payload []byte, ttl time.Duration) error {
	resp, err := webpush.SendNotificationWithContext(ctx, payload, sub.ToWebPush(), &webpush.Options{
		HTTPClient:      s.client,
		Subscriber:      subscriber(server.Subject),
		VAPIDPublicKey:  server.PublicKey,
		VAPIDPrivateKey: server.PrivateKey,
		TTL:             int(ttl.Seconds()),
		Urgency:         webpush.UrgencyHigh,
	})
	if err != nil {
		return fmt.Errorf("send push: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return &DeliveryError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
}

// subscriber drops the mailto: scheme; webpush-go adds it to any non-https subject.
func subscriber(subject string) string {
	return strings.TrimPrefix(subject, "mailto:")
}
