// Package policy decides, for a single instant, whether a prayer is due.
//
// Evaluation is a pure function of its inputs: the clock reading, the
// day's schedule, a settings snapshot and a read-only view of what has
// already fired. It never mutates anything and returns at most one
// Decision per call.
package policy

import (
	"strings"
	"time"

	"adhan/internal/firestate"
	"adhan/internal/prayer"
	"adhan/internal/settings"
)

// FiredView is the read side of the fire-state store.
type FiredView interface {
	Contains(firestate.Key) bool
}

// Decision is the outcome of a successful evaluation.
type Decision struct {
	Prayer      prayer.Name    `json:"prayer"`
	Kind        firestate.Kind `json:"kind"`
	Date        string         `json:"date"`
	ScheduledAt time.Time      `json:"scheduled_at"`
	DoNotify    bool           `json:"do_notify"`
	DoPlayAudio bool           `json:"do_play_audio"`
	AudioRef    string         `json:"audio_ref,omitempty"`
}

// Key is the fire-state key the decision must be recorded under.
func (d Decision) Key() firestate.Key {
	return firestate.Key{Date: d.Date, Prayer: d.Prayer, Kind: d.Kind}
}

// Observable reports whether applying d invokes any port.
func (d Decision) Observable() bool {
	return d.DoNotify || d.DoPlayAudio
}

// Evaluate returns the adhan decision for now, if any. A candidate is due
// while now lies in [scheduledAt, scheduledAt+window], both ends inclusive.
// When several windows overlap only the earliest unfired prayer is chosen.
func Evaluate(now time.Time, sched prayer.Schedule, cfg *settings.Config, fired FiredView) (Decision, bool) {
	if cfg == nil || cfg.Silent() {
		return Decision{}, false
	}

	date := prayer.DateOf(now)
	window := cfg.Window()

	for _, e := range candidates(now, sched) {
		if now.Before(e.At) || now.After(e.At.Add(window)) {
			continue
		}
		if fired != nil && fired.Contains(firestate.AdhanKey(date, e.Prayer)) {
			continue
		}
		return Decision{
			Prayer:      e.Prayer,
			Kind:        firestate.KindAdhan,
			Date:        date,
			ScheduledAt: e.At,
			DoNotify:    cfg.NotificationsEnabled,
			DoPlayAudio: playsAudio(cfg, e.Prayer),
			AudioRef:    audioRef(cfg, e.Prayer),
		}, true
	}
	return Decision{}, false
}

// EvaluateReminder returns the pre-prayer reminder due at now, if any. A
// reminder is due while 0 < scheduledAt-now <= lead. Reminders are
// notification-only, require the notification master and skip Sunrise.
func EvaluateReminder(now time.Time, sched prayer.Schedule, cfg *settings.Config, fired FiredView) (Decision, bool) {
	if cfg == nil || cfg.QuietMode || !cfg.NotificationsEnabled {
		return Decision{}, false
	}
	lead := cfg.Reminder()
	if lead <= 0 {
		return Decision{}, false
	}

	date := prayer.DateOf(now)
	for _, e := range candidates(now, sched) {
		if e.Prayer == prayer.Sunrise {
			continue
		}
		until := e.At.Sub(now)
		if until <= 0 || until > lead {
			continue
		}
		if fired != nil && fired.Contains(firestate.ReminderKey(date, e.Prayer)) {
			continue
		}
		return Decision{
			Prayer:      e.Prayer,
			Kind:        firestate.KindReminder,
			Date:        date,
			ScheduledAt: e.At,
			DoNotify:    true,
		}, true
	}
	return Decision{}, false
}

// candidates returns the schedule entries that fall on now's calendar
// date, earliest first. Entries left over from another day are dropped.
func candidates(now time.Time, sched prayer.Schedule) []prayer.Entry {
	if sched.IsEmpty() {
		return nil
	}
	today := prayer.DateOf(now)
	loc := now.Location()

	all := sched.Entries()
	out := all[:0]
	for _, e := range all {
		if prayer.DateOf(e.At.In(loc)) == today {
			out = append(out, e)
		}
	}
	return out
}

// playsAudio applies the audio rules. Sunrise never plays.
func playsAudio(cfg *settings.Config, n prayer.Name) bool {
	if n == prayer.Sunrise || !cfg.AudioEnabled {
		return false
	}
	p := cfg.Prayer(n)
	return p.Enabled && strings.TrimSpace(p.AudioFile) != ""
}

func audioRef(cfg *settings.Config, n prayer.Name) string {
	if !playsAudio(cfg, n) {
		return ""
	}
	return strings.TrimSpace(cfg.Prayer(n).AudioFile)
}
