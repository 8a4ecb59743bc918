package models

import (
	"time"

	"github.com/SherClockHolmes/webpush-go"
)

type PushSubscription struct {
	ID        string    `json:"id" db:"id"`
	UserID    string    `json:"user_id" db:"user_id"`
	Endpoint  string    `json:"endpoint" db:"endpoint"`
	P256dh    string    `json:"p256dh" db:"p256dh"`
	Auth      string    `json:"auth" db:"auth"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// ToWebPush converts the stored row into the push library's subscription.
func (p *PushSubscription) ToWebPush() *webpush.Subscription {
	return &webpush.Subscription{
		Endpoint: p.Endpoint,
		Keys: webpush.Keys{
			P256dh: p.P256dh,
			Auth:   p.Auth,
		},
	}
}

// FromWebPush copies the browser-reported subscription into the row.
func (p *PushSubscription) FromWebPush(s *webpush.Subscription) {
	p.Endpoint = s.Endpoint
	p.P256dh = s.Keys.P256dh
	p.Auth = s.Keys.Auth
}

// Payload is the JSON document delivered to the service worker's push event.
type Payload struct {
	Title     string `json:"title"`
	Body      string `json:"body"`
	Icon      string `json:"icon"`
	Badge     string `json:"badge"`
	Tag       string `json:"tag"`
	URL       string `json:"url"`
	ActionURL string `json:"action_url"`
}

type PushReport struct {
	Sent   int      `json:"sent"`
	Failed int      `json:"failed"`
	Errors []string `json:"errors"`
}

type DispatchResult struct {
	Success            bool       `json:"success"`
	InAppNotifications int        `json:"inAppNotifications"`
	PushNotifications  PushReport `json:"pushNotifications"`
}
