// Package prayer defines the six canonical daily prayer markers and the
// per-day schedule that maps each of them to a local instant.
package prayer

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Name identifies one of the six daily prayer markers.
type Name string

const (
	Fajr    Name = "Fajr"
	Sunrise Name = "Sunrise" // transition marker, never a call to prayer
	Dhuhr   Name = "Dhuhr"
	Asr     Name = "Asr"
	Maghrib Name = "Maghrib"
	Isha    Name = "Isha"
)

// Names lists every prayer in time-of-day order.
var Names = []Name{Fajr, Sunrise, Dhuhr, Asr, Maghrib, Isha}

// DateLayout is the calendar-date format used for schedule and fire-state keys.
const DateLayout = "2006-01-02"

// Index returns the canonical position of n, or -1 for an unknown name.
func (n Name) Index() int {
	for i, v := range Names {
		if v == n {
			return i
		}
	}
	return -1
}

// Valid reports whether n is one of the canonical names.
func (n Name) Valid() bool { return n.Index() >= 0 }

func (n Name) String() string { return string(n) }

// Key returns the lowercase form used for settings categories and MQTT topics.
func (n Name) Key() string { return strings.ToLower(string(n)) }

// ParseName resolves a prayer name case-insensitively.
func ParseName(s string) (Name, error) {
	s = strings.TrimSpace(s)
	for _, n := range Names {
		if strings.EqualFold(s, string(n)) {
			return n, nil
		}
	}
	return "", fmt.Errorf("unknown prayer %q", s)
}

// DateOf returns the calendar date of t in t's own location.
func DateOf(t time.Time) string {
	return t.Format(DateLayout)
}

// ParseDate parses a "2006-01-02" calendar date as midnight UTC.
func ParseDate(s string) (time.Time, error) {
	return time.Parse(DateLayout, s)
}

// Entry is one scheduled prayer instant.
type Entry struct {
	Prayer Name      `json:"prayer"`
	At     time.Time `json:"at"`
}

// Schedule maps prayer names to local instants for one calendar date.
// The zero value is an empty schedule. A Schedule is never mutated after
// construction.
type Schedule struct {
	Date  string
	times map[Name]time.Time
}

// NewSchedule copies times into a new Schedule for date. Unknown names and
// zero instants are dropped.
func NewSchedule(date string, times map[Name]time.Time) Schedule {
	s := Schedule{Date: date, times: make(map[Name]time.Time, len(times))}
	for n, t := range times {
		if !n.Valid() || t.IsZero() {
			continue
		}
		s.times[n] = t
	}
	return s
}

// Time returns the instant for n.
func (s Schedule) Time(n Name) (time.Time, bool) {
	t, ok := s.times[n]
	return t, ok
}

// Len returns the number of prayers present.
func (s Schedule) Len() int { return len(s.times) }

// IsEmpty reports whether the schedule carries no instants.
func (s Schedule) IsEmpty() bool { return len(s.times) == 0 }

// Entries returns the schedule sorted ascending by instant. Equal instants
// keep canonical prayer order.
func (s Schedule) Entries() []Entry {
	out := make([]Entry, 0, len(s.times))
	for _, n := range Names {
		if t, ok := s.times[n]; ok {
			out = append(out, Entry{Prayer: n, At: t})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].At.Before(out[j].At)
	})
	return out
}

// Next returns the first call-to-prayer entry strictly after now. Sunrise
// is skipped since it is not a prayer one waits for.
func Next(s Schedule, now time.Time) (Entry, bool) {
	for _, e := range s.Entries() {
		if e.Prayer == Sunrise {
			continue
		}
		if e.At.After(now) {
			return e, true
		}
	}
	return Entry{}, false
}
