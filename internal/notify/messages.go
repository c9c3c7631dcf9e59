package notify

import (
	"fmt"
	"time"
)

// AdhanMessage is sent when a prayer's time arrives.
func AdhanMessage(prayer, date string, scheduledAt, now time.Time) Message {
	return Message{
		Kind:        KindAdhan,
		Prayer:      prayer,
		Date:        date,
		ScheduledAt: scheduledAt,
		Now:         now,
		Title:       "Prayer Time",
		Body:        fmt.Sprintf("%s time (%s)", prayer, scheduledAt.Format("03:04 PM")),
	}
}

// ReminderMessage is sent ahead of a prayer.
func ReminderMessage(prayer, date string, scheduledAt, now time.Time) Message {
	return Message{
		Kind:        KindReminder,
		Prayer:      prayer,
		Date:        date,
		ScheduledAt: scheduledAt,
		Now:         now,
		Title:       "Prayer Time Reminder",
		Body:        fmt.Sprintf("%s in %s", prayer, FormatCountdown(scheduledAt.Sub(now))),
	}
}

// TestMessage checks that delivery works end to end.
func TestMessage(now time.Time) Message {
	return Message{
		Kind:  KindTest,
		Now:   now,
		Title: "Notifications enabled",
		Body:  "Test notification: if you can read this, prayer alerts will reach you here.",
	}
}

// FormatCountdown renders d as HH:MM:SS. Anything under a second is zero.
func FormatCountdown(d time.Duration) string {
	if d < time.Second {
		return "00:00:00"
	}
	secs := int(d / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", secs/3600, secs/60%60, secs%60)
}
