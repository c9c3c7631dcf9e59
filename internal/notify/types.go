package notify

import (
	"context"
	"time"
)

// Message kinds.
const (
	KindAdhan    = "adhan"
	KindReminder = "reminder"
	KindTest     = "test"
)

// Message is one user-facing notification.
type Message struct {
	Kind        string    `json:"kind"`
	Prayer      string    `json:"prayer,omitempty"`
	Date        string    `json:"date,omitempty"`
	ScheduledAt time.Time `json:"scheduled_at,omitzero"`
	Now         time.Time `json:"now"`
	Title       string    `json:"title"`
	Body        string    `json:"body"`
}

// Text renders the message for plain-text channels.
func (m Message) Text() string {
	if m.Title == "" {
		return m.Body
	}
	return m.Title + ": " + m.Body
}

// Notifier delivers messages. Implementations must not block the caller
// for longer than ctx allows.
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, msg Message) error

func (f NotifierFunc) Notify(ctx context.Context, msg Message) error { return f(ctx, msg) }

// Channel is one delivery target inside a Dispatcher.
type Channel interface {
	Name() string
	Send(ctx context.Context, msg Message) error
}

// NotificationService is a configured Shoutrrr destination.
type NotificationService struct {
	ID               int64     `json:"id" db:"id"`
	Name             string    `json:"name" db:"name"`
	ServiceType      string    `json:"service_type" db:"service_type"`
	ConfigJSON       string    `json:"config_json" db:"config_json"`
	Enabled          bool      `json:"enabled" db:"enabled"`
	NotifyOnAdhan    bool      `json:"notify_on_adhan" db:"notify_on_adhan"`
	NotifyOnReminder bool      `json:"notify_on_reminder" db:"notify_on_reminder"`
	CreatedAt        time.Time `json:"created_at" db:"-"`
	UpdatedAt        time.Time `json:"updated_at" db:"-"`
}

// Wants reports whether the service subscribes to messages of kind.
// Test messages go to every enabled service.
func (s NotificationService) Wants(kind string) bool {
	switch kind {
	case KindAdhan:
		return s.NotifyOnAdhan
	case KindReminder:
		return s.NotifyOnReminder
	case KindTest:
		return true
	}
	return false
}

// NotificationRecord is a row from notification_history.
type NotificationRecord struct {
	ID           int64     `json:"id"`
	ServiceID    int64     `json:"service_id,omitempty"`
	Channel      string    `json:"channel"`
	Kind         string    `json:"kind"`
	Prayer       string    `json:"prayer,omitempty"`
	Message      string    `json:"message"`
	Status       string    `json:"status"`
	ErrorMessage string    `json:"error_message,omitempty"`
	SentAt       time.Time `json:"sent_at,omitzero"`
	CreatedAt    time.Time `json:"created_at"`
}

// History statuses.
const (
	StatusSent   = "sent"
	StatusFailed = "failed"
)
