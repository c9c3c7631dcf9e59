package events

import (
	"time"

	"github.com/google/uuid"
)

// EventType identifies the kind of event being published.
type EventType string

const (
	// Scheduler events
	AdhanFired  EventType = "adhan_fired"
	ReminderDue EventType = "reminder_due"
	PortFailed  EventType = "port_failed"

	// Housekeeping
	StatePruned     EventType = "state_pruned"
	SettingsChanged EventType = "settings_changed"
	TestNotice      EventType = "test_notification"
)

// Severity indicates the urgency of an event.
type Severity int

const (
	SeverityInfo     Severity = 0
	SeverityWarning  Severity = 1
	SeverityCritical Severity = 2
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// MarshalText renders the severity by name in JSON.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Event is the payload published through the bus.
type Event struct {
	ID          string            `json:"id"`
	Type        EventType         `json:"type"`
	Severity    Severity          `json:"severity"`
	Prayer      string            `json:"prayer,omitempty"`
	Date        string            `json:"date,omitempty"`
	ScheduledAt time.Time         `json:"scheduled_at,omitzero"`
	Message     string            `json:"message"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	Timestamp   time.Time         `json:"timestamp"`
}

func newID() string {
	return uuid.NewString()
}
