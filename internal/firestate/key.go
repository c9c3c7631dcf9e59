// Package firestate keeps the durable record of which prayer obligations
// have been discharged on which date.
package firestate

import (
	"fmt"
	"strings"

	"adhan/internal/prayer"
)

// Kind distinguishes the adhan itself from the pre-prayer reminder.
type Kind string

const (
	KindAdhan    Kind = "adhan"
	KindReminder Kind = "reminder"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k == KindAdhan || k == KindReminder
}

// Key identifies one fire: a prayer on a calendar date.
type Key struct {
	Date   string      `json:"date"`
	Prayer prayer.Name `json:"prayer"`
	Kind   Kind        `json:"kind"`
}

// AdhanKey returns the adhan key for p on date.
func AdhanKey(date string, p prayer.Name) Key {
	return Key{Date: date, Prayer: p, Kind: KindAdhan}
}

// ReminderKey returns the reminder key for p on date.
func ReminderKey(date string, p prayer.Name) Key {
	return Key{Date: date, Prayer: p, Kind: KindReminder}
}

// String renders "2006-01-02:Fajr" for adhan keys and
// "2006-01-02:Fajr:reminder" otherwise.
func (k Key) String() string {
	if k.Kind == KindAdhan || k.Kind == "" {
		return k.Date + ":" + string(k.Prayer)
	}
	return k.Date + ":" + string(k.Prayer) + ":" + string(k.Kind)
}

// Valid reports whether the date parses and the prayer and kind are known.
func (k Key) Valid() bool {
	if _, err := prayer.ParseDate(k.Date); err != nil {
		return false
	}
	return k.Prayer.Valid() && k.Kind.Valid()
}

// ParseKey is the inverse of Key.String.
func ParseKey(s string) (Key, error) {
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return Key{}, fmt.Errorf("parse fire key %q: want date:prayer[:kind]", s)
	}
	name, err := prayer.ParseName(parts[1])
	if err != nil {
		return Key{}, fmt.Errorf("parse fire key %q: %w", s, err)
	}
	k := Key{Date: parts[0], Prayer: name, Kind: KindAdhan}
	if len(parts) == 3 {
		k.Kind = Kind(strings.ToLower(parts[2]))
	}
	if !k.Valid() {
		return Key{}, fmt.Errorf("parse fire key %q: invalid date or kind", s)
	}
	return k, nil
}
