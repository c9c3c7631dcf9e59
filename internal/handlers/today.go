package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"adhan/internal/events"
	"adhan/internal/firestate"
	"adhan/internal/notify"
	"adhan/internal/prayer"
)

// PrayerStatus is one row of the today view.
type PrayerStatus struct {
	Prayer    prayer.Name `json:"prayer"`
	At        time.Time   `json:"at"`
	Enabled   bool        `json:"enabled"`
	AudioFile string      `json:"audio_file,omitempty"`
	Fired     bool        `json:"fired"`
	FiredAt   time.Time   `json:"fired_at,omitzero"`
	Reminded  bool        `json:"reminded"`
}

// NextPrayer is the upcoming call to prayer.
type NextPrayer struct {
	Prayer    prayer.Name `json:"prayer"`
	At        time.Time   `json:"at"`
	Countdown string      `json:"countdown"`
	Seconds   int64       `json:"seconds"`
}

// TodayResponse is returned by GET /api/today.
type TodayResponse struct {
	Date     string         `json:"date"`
	Now      time.Time      `json:"now"`
	Timezone string         `json:"timezone"`
	Prayers  []PrayerStatus `json:"prayers"`
	Next     *NextPrayer    `json:"next"`
}

// Today handles GET /api/today
func (a *API) Today(w http.ResponseWriter, r *http.Request) {
	now := a.Clock.Now()
	sched, err := a.Provider.Today(now)
	if err != nil {
		if errors.Is(err, prayer.ErrNoSchedule) {
			JSONError(w, "No prayer schedule for today", http.StatusServiceUnavailable)
			return
		}
		log.Error().Err(err).Str("component", "handlers").Msg("load schedule")
		JSONError(w, "Failed to load schedule", http.StatusInternalServerError)
		return
	}

	cfg := a.Settings.Get()
	date := prayer.DateOf(now)
	resp := TodayResponse{
		Date:     date,
		Now:      now,
		Timezone: now.Location().String(),
		Prayers:  make([]PrayerStatus, 0, sched.Len()),
	}
	for _, e := range sched.Entries() {
		pp := cfg.Prayer(e.Prayer)
		st := PrayerStatus{
			Prayer:    e.Prayer,
			At:        e.At,
			Enabled:   pp.Enabled,
			AudioFile: pp.AudioFile,
		}
		st.FiredAt, st.Fired = a.Store.FiredAt(firestate.AdhanKey(date, e.Prayer))
		st.Reminded = a.Store.Contains(firestate.ReminderKey(date, e.Prayer))
		resp.Prayers = append(resp.Prayers, st)
	}

	next, ok, err := prayer.NextAfter(a.Provider, now)
	if err != nil {
		log.Warn().Err(err).Str("component", "handlers").Msg("next prayer lookup")
	}
	if ok {
		until := next.At.Sub(now)
		resp.Next = &NextPrayer{
			Prayer:    next.Prayer,
			At:        next.At,
			Countdown: notify.FormatCountdown(until),
			Seconds:   int64(until / time.Second),
		}
	}
	JSONResponse(w, resp)
}

// State handles GET /api/state?date=2006-01-02. Without a date every
// recorded entry is returned.
func (a *API) State(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if date == "" {
		JSONResponse(w, map[string]interface{}{"entries": a.Store.Entries()})
		return
	}
	if _, err := prayer.ParseDate(date); err != nil {
		JSONError(w, "date must be YYYY-MM-DD", http.StatusBadRequest)
		return
	}
	JSONResponse(w, map[string]interface{}{
		"date":    date,
		"entries": a.Store.ForDate(date),
	})
}

// PruneState handles POST /api/state/prune {"before":"2006-01-02"}
func (a *API) PruneState(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Before string `json:"before"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		JSONError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if _, err := prayer.ParseDate(req.Before); err != nil {
		JSONError(w, "before must be YYYY-MM-DD", http.StatusBadRequest)
		return
	}
	// Pruning today's keys would let today's prayers fire again.
	if req.Before > prayer.DateOf(a.Clock.Now()) {
		JSONError(w, "before must not be after today", http.StatusBadRequest)
		return
	}

	n, err := a.Store.Prune(r.Context(), req.Before)
	if err != nil {
		log.Error().Err(err).Str("component", "handlers").Msg("prune fire state")
		JSONError(w, "Failed to prune state", http.StatusInternalServerError)
		return
	}
	JSONResponse(w, map[string]interface{}{"removed": n, "before": req.Before})
}

// TestNotify handles POST /api/notify/test. It delivers synchronously to
// every channel and service and never touches fire state.
func (a *API) TestNotify(w http.ResponseWriter, r *http.Request) {
	if a.Dispatcher == nil {
		JSONError(w, "Notifications are not configured", http.StatusServiceUnavailable)
		return
	}

	err := a.Dispatcher.Deliver(r.Context(), notify.TestMessage(a.Clock.Now()))
	if a.Bus != nil {
		e := events.Event{
			Type:     events.TestNotice,
			Severity: events.SeverityInfo,
			Message:  "test notification sent",
		}
		if err != nil {
			e.Severity = events.SeverityWarning
			e.Message = "test notification failed: " + err.Error()
		}
		a.Bus.Publish(e)
	}

	if err != nil {
		JSONResponse(w, map[string]interface{}{"success": false, "error": err.Error()})
		return
	}
	JSONResponse(w, map[string]interface{}{"success": true, "message": "Test notification sent"})
}
