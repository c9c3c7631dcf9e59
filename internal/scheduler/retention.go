package scheduler

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"adhan/internal/db"
	"adhan/internal/events"
	"adhan/internal/firestate"
	"adhan/internal/notify"
	"adhan/internal/prayer"
)

// DefaultRetentionSchedule runs the cleanup once a night.
const DefaultRetentionSchedule = "15 3 * * *"

// RetentionOptions configures pruning of fire state and notification
// history. Days <= 0 disables it.
type RetentionOptions struct {
	Store    *firestate.Store
	DB       *sqlx.DB // optional; enables history pruning
	Bus      *events.Bus
	Clock    Clock
	Days     int
	Schedule string
}

// RetentionResult reports what one run removed.
type RetentionResult struct {
	Cutoff         string `json:"cutoff"`
	FireState      int    `json:"fire_state"`
	HistoryEntries int64  `json:"history_entries"`
}

// Retention prunes old records on a cron schedule.
type Retention struct {
	opts   RetentionOptions
	cron   *cron.Cron
	logger zerolog.Logger
}

// NewRetention validates the cron expression up front.
func NewRetention(opts RetentionOptions) (*Retention, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("retention: fire-state store is required")
	}
	if opts.Clock == nil {
		opts.Clock = SystemClock{}
	}
	if opts.Schedule == "" {
		opts.Schedule = DefaultRetentionSchedule
	}
	if _, err := cron.ParseStandard(opts.Schedule); err != nil {
		return nil, fmt.Errorf("retention schedule %q: %w", opts.Schedule, err)
	}

	loc := time.Local
	if sc, ok := opts.Clock.(SystemClock); ok && sc.Location != nil {
		loc = sc.Location
	}
	return &Retention{
		opts:   opts,
		cron:   cron.New(cron.WithLocation(loc)),
		logger: log.With().Str("component", "scheduler").Str("job", "retention").Logger(),
	}, nil
}

// Enabled reports whether pruning is configured.
func (r *Retention) Enabled() bool { return r.opts.Days > 0 }

// Start registers the job and starts the cron runner.
func (r *Retention) Start() error {
	if !r.Enabled() {
		r.logger.Info().Msg("retention disabled")
		return nil
	}
	_, err := r.cron.AddFunc(r.opts.Schedule, func() {
		if _, err := r.Run(context.Background()); err != nil {
			r.logger.Error().Err(err).Msg("retention run failed")
		}
	})
	if err != nil {
		return fmt.Errorf("schedule retention: %w", err)
	}
	r.cron.Start()
	r.logger.Info().Str("schedule", r.opts.Schedule).Int("days", r.opts.Days).Msg("retention scheduled")
	return nil
}

// Stop halts the cron runner and waits for a running job.
func (r *Retention) Stop() {
	<-r.cron.Stop().Done()
}

// Cutoff returns the first date that is kept.
func (r *Retention) Cutoff(now time.Time) string {
	return prayer.DateOf(now.AddDate(0, 0, -r.opts.Days))
}

// Run prunes once, regardless of the schedule.
func (r *Retention) Run(ctx context.Context) (RetentionResult, error) {
	now := r.opts.Clock.Now()
	res := RetentionResult{Cutoff: r.Cutoff(now)}
	if !r.Enabled() {
		return res, nil
	}

	n, err := r.opts.Store.Prune(ctx, res.Cutoff)
	if err != nil {
		return res, fmt.Errorf("prune fire state: %w", err)
	}
	res.FireState = n

	if r.opts.DB != nil {
		cutoff := now.AddDate(0, 0, -r.opts.Days).UTC().Format(db.TimeFormat)
		h, err := notify.PruneHistory(r.opts.DB, cutoff)
		if err != nil {
			return res, err
		}
		res.HistoryEntries = h
	}

	r.logger.Info().
		Str("cutoff", res.Cutoff).
		Int("fire_state", res.FireState).
		Int64("history", res.HistoryEntries).
		Msg("retention run complete")

	if r.opts.Bus != nil && (res.FireState > 0 || res.HistoryEntries > 0) {
		r.opts.Bus.Publish(events.Event{
			Type:     events.StatePruned,
			Severity: events.SeverityInfo,
			Message:  fmt.Sprintf("pruned %d fire-state entries before %s", res.FireState, res.Cutoff),
			Metadata: map[string]string{
				"cutoff":  res.Cutoff,
				"removed": strconv.Itoa(res.FireState),
				"history": strconv.FormatInt(res.HistoryEntries, 10),
			},
		})
	}
	return res, nil
}
