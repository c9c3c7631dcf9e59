// Package scheduler drives the periodic prayer evaluation: it reads the
// clock, asks the policy for a decision, records it durably and only then
// invokes the audio and notification ports.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"adhan/internal/audio"
	"adhan/internal/events"
	"adhan/internal/firestate"
	"adhan/internal/notify"
	"adhan/internal/policy"
	"adhan/internal/prayer"
	"adhan/internal/settings"
)

const (
	DefaultInterval       = time.Second
	DefaultPersistTimeout = 2 * time.Second
	DefaultPortTimeout    = 10 * time.Second
)

// Options wires a Loop. Clock, Provider, Settings and Store are required.
type Options struct {
	Clock    Clock
	Provider prayer.Provider
	Settings *settings.Holder
	Store    *firestate.Store
	Notifier notify.Notifier
	Sink     audio.Sink
	Bus      *events.Bus
	// Logger receives diagnostics. Nil means the global logger.
	Logger *zerolog.Logger

	Interval       time.Duration
	PersistTimeout time.Duration
	PortTimeout    time.Duration
}

// Loop evaluates the policy once per Interval on a single goroutine.
type Loop struct {
	clock    Clock
	provider prayer.Provider
	settings *settings.Holder
	store    *firestate.Store
	notifier notify.Notifier
	sink     audio.Sink
	bus      *events.Bus
	logger   zerolog.Logger

	interval       time.Duration
	persistTimeout time.Duration
	portTimeout    time.Duration

	mu       sync.Mutex
	running  bool
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New validates opts and fills defaults.
func New(opts Options) (*Loop, error) {
	switch {
	case opts.Clock == nil:
		return nil, errors.New("scheduler: clock is required")
	case opts.Provider == nil:
		return nil, errors.New("scheduler: provider is required")
	case opts.Settings == nil:
		return nil, errors.New("scheduler: settings holder is required")
	case opts.Store == nil:
		return nil, errors.New("scheduler: fire-state store is required")
	}

	l := &Loop{
		clock:          opts.Clock,
		provider:       opts.Provider,
		settings:       opts.Settings,
		store:          opts.Store,
		notifier:       opts.Notifier,
		sink:           opts.Sink,
		bus:            opts.Bus,
		interval:       opts.Interval,
		persistTimeout: opts.PersistTimeout,
		portTimeout:    opts.PortTimeout,
		stopCh:         make(chan struct{}),
	}
	if opts.Logger != nil {
		l.logger = *opts.Logger
	} else {
		l.logger = log.With().Str("component", "scheduler").Logger()
	}
	if l.sink == nil {
		l.sink = audio.NullSink{}
	}
	if l.interval <= 0 {
		l.interval = DefaultInterval
	}
	if l.persistTimeout <= 0 {
		l.persistTimeout = DefaultPersistTimeout
	}
	if l.portTimeout <= 0 {
		l.portTimeout = DefaultPortTimeout
	}
	return l, nil
}

// Start runs the first tick immediately and then one per interval until
// ctx is cancelled or Stop is called.
func (l *Loop) Start(ctx context.Context) {
	l.mu.Lock()
	if l.running {
		l.mu.Unlock()
		return
	}
	l.running = true
	l.mu.Unlock()

	// A tick that has started completes even if ctx is cancelled mid-way.
	tickCtx := context.WithoutCancel(ctx)

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		ticker := time.NewTicker(l.interval)
		defer ticker.Stop()

		l.Tick(tickCtx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-l.stopCh:
				return
			case <-ticker.C:
				l.Tick(tickCtx)
			}
		}
	}()
	l.logger.Info().Dur("interval", l.interval).Msg("scheduler started")
}

// Stop prevents further ticks and waits for an in-flight tick.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() { close(l.stopCh) })
	l.wg.Wait()

	l.mu.Lock()
	wasRunning := l.running
	l.running = false
	l.mu.Unlock()
	if wasRunning {
		l.logger.Info().Msg("scheduler stopped")
	}
}

// Tick performs one evaluation and returns the decision it applied: an
// adhan, or failing that a reminder. A reminder still due is picked up on
// the next tick.
func (l *Loop) Tick(ctx context.Context) []policy.Decision {
	cfg := l.settings.Get()
	now := l.clock.Now()

	sched, err := l.provider.Today(now)
	if err != nil {
		l.logger.Debug().Err(err).Time("now", now).Msg("no schedule, skipping tick")
		return nil
	}
	if sched.IsEmpty() {
		l.logger.Debug().Time("now", now).Msg("empty schedule, skipping tick")
		return nil
	}

	if d, ok := policy.Evaluate(now, sched, cfg, l.store); ok {
		l.apply(ctx, now, d)
		return []policy.Decision{d}
	}
	if d, ok := policy.EvaluateReminder(now, sched, cfg, l.store); ok {
		l.apply(ctx, now, d)
		return []policy.Decision{d}
	}
	return nil
}

// apply records d before touching any port. A failed persist is logged
// and the in-memory record stays, so this process cannot refire d.
func (l *Loop) apply(ctx context.Context, now time.Time, d policy.Decision) {
	logger := l.logger.With().
		Str("prayer", d.Prayer.String()).
		Str("kind", string(d.Kind)).
		Str("date", d.Date).
		Logger()

	l.store.Record(d.Key(), now)
	pctx, cancel := context.WithTimeout(ctx, l.persistTimeout)
	err := l.store.Persist(pctx)
	cancel()
	if err != nil {
		logger.Error().Err(err).Msg("persist fire state failed")
	}

	if d.DoPlayAudio {
		l.callPort(ctx, "audio", d, func(pctx context.Context) error {
			return l.sink.Play(pctx, d.AudioRef)
		})
	}
	if d.DoNotify && l.notifier != nil {
		msg := message(d, now)
		l.callPort(ctx, "notifier", d, func(pctx context.Context) error {
			return l.notifier.Notify(pctx, msg)
		})
	}

	logger.Info().
		Time("scheduled_at", d.ScheduledAt).
		Bool("notify", d.DoNotify).
		Bool("audio", d.DoPlayAudio).
		Msg("decision applied")
	l.publish(d)
}

// callPort runs fn under the port timeout. Errors and panics are logged
// and published; nothing is rolled back.
func (l *Loop) callPort(ctx context.Context, port string, d policy.Decision, fn func(context.Context) error) {
	pctx, cancel := context.WithTimeout(ctx, l.portTimeout)
	defer cancel()

	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("%s port panicked: %v", port, r)
			}
		}()
		return fn(pctx)
	}()
	if err == nil {
		return
	}

	l.logger.Error().Err(err).
		Str("port", port).
		Str("prayer", d.Prayer.String()).
		Str("kind", string(d.Kind)).
		Msg("port failed")
	if l.bus != nil {
		l.bus.Publish(events.Event{
			Type:        events.PortFailed,
			Severity:    events.SeverityWarning,
			Prayer:      d.Prayer.String(),
			Date:        d.Date,
			ScheduledAt: d.ScheduledAt,
			Message:     fmt.Sprintf("%s for %s failed: %v", port, d.Prayer, err),
			Metadata: map[string]string{
				"port": port,
				"kind": string(d.Kind),
			},
		})
	}
}

func (l *Loop) publish(d policy.Decision) {
	if l.bus == nil {
		return
	}
	e := events.Event{
		Type:        events.AdhanFired,
		Severity:    events.SeverityInfo,
		Prayer:      d.Prayer.String(),
		Date:        d.Date,
		ScheduledAt: d.ScheduledAt,
		Message:     fmt.Sprintf("%s time", d.Prayer),
		Metadata: map[string]string{
			"kind":   string(d.Kind),
			"notify": strconv.FormatBool(d.DoNotify),
			"audio":  strconv.FormatBool(d.DoPlayAudio),
		},
	}
	if d.Kind == firestate.KindReminder {
		e.Type = events.ReminderDue
		e.Message = fmt.Sprintf("%s reminder", d.Prayer)
	}
	if d.AudioRef != "" {
		e.Metadata["audio_ref"] = d.AudioRef
	}
	l.bus.Publish(e)
}

func message(d policy.Decision, now time.Time) notify.Message {
	if d.Kind == firestate.KindReminder {
		return notify.ReminderMessage(d.Prayer.String(), d.Date, d.ScheduledAt, now)
	}
	return notify.AdhanMessage(d.Prayer.String(), d.Date, d.ScheduledAt, now)
}
