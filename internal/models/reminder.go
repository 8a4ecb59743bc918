package models

// Reminder categories as stored in prayer_reminders.reminder_type.
const (
	ReminderMorning   = "manha"
	ReminderAfternoon = "tarde"
	ReminderEvening   = "noite"
	ReminderCustom    = "personalizado"
)

type Reminder struct {
	ID           string `json:"id" db:"id"`
	UserID       string `json:"user_id" db:"user_id"`
	ReminderTime string `json:"reminder_time" db:"reminder_time"` // HH:MM:SS, no date
	ReminderType string `json:"reminder_type" db:"reminder_type"`
	IsActive     bool   `json:"is_active" db:"is_active"`
}

// SweepResult is what one scheduler invocation reports.
type SweepResult struct {
	Success  bool   `json:"success"`
	Sent     int    `json:"sent"`
	PushSent int    `json:"pushSent"`
	Skipped  int    `json:"skipped,omitempty"`
	Time     string `json:"time"`
}
