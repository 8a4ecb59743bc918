package models

import "time"

// Notification types written to the in-app inbox.
const (
	NotificationPush           = "push"
	NotificationPrayerReminder = "prayer_reminder"
)

// Notification is a row of the in-app inbox. The scheduler also reads it as
// its same-day dedup ledger.
type Notification struct {
	ID        string    `json:"id" db:"id"`
	UserID    string    `json:"user_id" db:"user_id"`
	Title     string    `json:"title" db:"title"`
	Message   string    `json:"message" db:"message"`
	Type      string    `json:"type" db:"type"`
	ActionURL string    `json:"action_url" db:"action_url"`
	IsRead    bool      `json:"is_read" db:"is_read"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
