package prayer

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNoSchedule is returned by providers that cannot produce times yet.
var ErrNoSchedule = errors.New("prayer schedule not available")

// Provider returns the schedule for the calendar date of now. Callers
// re-query it on every evaluation.
type Provider interface {
	Today(now time.Time) (Schedule, error)
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc func(now time.Time) (Schedule, error)

func (f ProviderFunc) Today(now time.Time) (Schedule, error) { return f(now) }

// clockTime is a wall-clock offset within a day.
type clockTime struct {
	hour, min, sec int
}

func parseClock(s string) (clockTime, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{"15:04:05", "15:04"} {
		if t, err := time.Parse(layout, s); err == nil {
			return clockTime{t.Hour(), t.Minute(), t.Second()}, nil
		}
	}
	return clockTime{}, fmt.Errorf("invalid time of day %q (want HH:MM or HH:MM:SS)", s)
}

func (c clockTime) on(day time.Time, loc *time.Location) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, c.hour, c.min, c.sec, 0, loc)
}

func parseDay(times map[string]string) (map[Name]clockTime, error) {
	out := make(map[Name]clockTime, len(times))
	for k, v := range times {
		n, err := ParseName(k)
		if err != nil {
			return nil, err
		}
		c, err := parseClock(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", n, err)
		}
		out[n] = c
	}
	return out, nil
}

// FixedProvider repeats the same wall-clock times every day, e.g. a
// mosque's published iqama board.
type FixedProvider struct {
	loc   *time.Location
	times map[Name]clockTime
}

// NewFixedProvider builds a provider from "HH:MM" strings keyed by prayer
// name. A nil loc means time.Local.
func NewFixedProvider(times map[string]string, loc *time.Location) (*FixedProvider, error) {
	if loc == nil {
		loc = time.Local
	}
	parsed, err := parseDay(times)
	if err != nil {
		return nil, err
	}
	return &FixedProvider{loc: loc, times: parsed}, nil
}

// Today returns the fixed times placed on now's date in the provider's zone.
func (p *FixedProvider) Today(now time.Time) (Schedule, error) {
	if len(p.times) == 0 {
		return Schedule{}, ErrNoSchedule
	}
	local := now.In(p.loc)
	times := make(map[Name]time.Time, len(p.times))
	for n, c := range p.times {
		times[n] = c.on(local, p.loc)
	}
	return NewSchedule(DateOf(local), times), nil
}

// TimetableProvider serves per-date rows, typically a printed monthly
// timetable, and defers to a fallback for dates it does not cover.
type TimetableProvider struct {
	loc      *time.Location
	days     map[string]map[Name]clockTime
	fallback Provider
}

// NewTimetableProvider parses rows keyed by "2006-01-02". fallback may be nil.
func NewTimetableProvider(rows map[string]map[string]string, loc *time.Location, fallback Provider) (*TimetableProvider, error) {
	if loc == nil {
		loc = time.Local
	}
	days := make(map[string]map[Name]clockTime, len(rows))
	for date, times := range rows {
		if _, err := time.ParseInLocation(DateLayout, date, loc); err != nil {
			return nil, fmt.Errorf("timetable date %q: %w", date, err)
		}
		parsed, err := parseDay(times)
		if err != nil {
			return nil, fmt.Errorf("timetable %s: %w", date, err)
		}
		days[date] = parsed
	}
	return &TimetableProvider{loc: loc, days: days, fallback: fallback}, nil
}

// Today looks up now's date; missing dates go to the fallback.
func (p *TimetableProvider) Today(now time.Time) (Schedule, error) {
	local := now.In(p.loc)
	date := DateOf(local)
	row, ok := p.days[date]
	if !ok {
		if p.fallback == nil {
			return Schedule{}, ErrNoSchedule
		}
		return p.fallback.Today(now)
	}
	times := make(map[Name]time.Time, len(row))
	for n, c := range row {
		times[n] = c.on(local, p.loc)
	}
	return NewSchedule(date, times), nil
}

// Days returns how many dates the timetable covers.
func (p *TimetableProvider) Days() int { return len(p.days) }

// NextAfter finds the next call to prayer after now, looking into
// tomorrow's schedule once today's Isha has passed.
func NextAfter(p Provider, now time.Time) (Entry, bool, error) {
	today, err := p.Today(now)
	if err != nil {
		return Entry{}, false, err
	}
	if e, ok := Next(today, now); ok {
		return e, true, nil
	}
	y, m, d := now.Date()
	tomorrow := time.Date(y, m, d+1, 12, 0, 0, 0, now.Location())
	next, err := p.Today(tomorrow)
	if err != nil {
		if errors.Is(err, ErrNoSchedule) {
			return Entry{}, false, nil
		}
		return Entry{}, false, err
	}
	e, ok := Next(next, now)
	return e, ok, nil
}
