package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/nicholas-fedor/shoutrrr"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"adhan/internal/events"
)

// ErrQueueFull is returned by Notify when the delivery queue is saturated.
var ErrQueueFull = errors.New("notification queue full")

// Sender abstracts message dispatch so the dispatcher can be tested
// without hitting real services.
type Sender interface {
	Send(shoutrrrURL, message string) error
}

// ShoutrrrSender dispatches via the Shoutrrr library.
type ShoutrrrSender struct{}

func (ShoutrrrSender) Send(url, message string) error {
	return shoutrrr.Send(url, message)
}

// serviceConfig is the Shoutrrr URL extracted from a service's config_json.
type serviceConfig struct {
	ShoutrrrURL string `json:"shoutrrr_url"`
}

// Dispatcher fans a Message out to the static channels (websocket hub,
// MQTT) and to every enabled Shoutrrr service that wants its kind. Each
// attempt is written to notification_history.
type Dispatcher struct {
	db      *sqlx.DB
	bus     *events.Bus
	sender  Sender
	timeout time.Duration
	logger  zerolog.Logger

	mu       sync.RWMutex
	channels []Channel

	queue    chan queued
	stopCh   chan struct{}
	stopOnce sync.Once
	running  bool
	wg       sync.WaitGroup
}

type queued struct {
	msg Message
}

// NewDispatcher creates a dispatcher. db and bus may be nil, in which case
// Shoutrrr services, history and failure events are skipped.
func NewDispatcher(conn *sqlx.DB, bus *events.Bus, sender Sender, channels ...Channel) *Dispatcher {
	if sender == nil {
		sender = ShoutrrrSender{}
	}
	return &Dispatcher{
		db:       conn,
		bus:      bus,
		sender:   sender,
		timeout:  30 * time.Second,
		logger:   log.With().Str("component", "notify").Logger(),
		channels: channels,
		queue:    make(chan queued, 64),
		stopCh:   make(chan struct{}),
	}
}

// AddChannel registers another delivery target.
func (d *Dispatcher) AddChannel(c Channel) {
	d.mu.Lock()
	d.channels = append(d.channels, c)
	d.mu.Unlock()
}

// Channels returns the names of the registered channels.
func (d *Dispatcher) Channels() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]string, 0, len(d.channels))
	for _, c := range d.channels {
		out = append(out, c.Name())
	}
	return out
}

// Start launches the background delivery worker. Until Start is called
// Notify delivers inline.
func (d *Dispatcher) Start() {
	d.mu.Lock()
	d.running = true
	d.mu.Unlock()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		for {
			select {
			case q := <-d.queue:
				d.deliverQueued(q)
			case <-d.stopCh:
				// Drain remaining messages
				for {
					select {
					case q := <-d.queue:
						d.deliverQueued(q)
					default:
						return
					}
				}
			}
		}
	}()
}

// Stop signals the worker to finish pending messages and waits for it.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		d.mu.Lock()
		d.running = false
		d.mu.Unlock()
		close(d.stopCh)
	})
	d.wg.Wait()
}

func (d *Dispatcher) deliverQueued(q queued) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	d.Deliver(ctx, q.msg)
}

// Notify queues msg for delivery and returns immediately when the worker
// is running. Delivery errors are reported through history and the bus.
func (d *Dispatcher) Notify(ctx context.Context, msg Message) error {
	d.mu.RLock()
	running := d.running
	d.mu.RUnlock()

	if !running {
		return d.Deliver(ctx, msg)
	}

	select {
	case d.queue <- queued{msg: msg}:
		return nil
	default:
		d.logger.Warn().Str("kind", msg.Kind).Str("prayer", msg.Prayer).Msg("notification queue full, dropping message")
		return ErrQueueFull
	}
}

// Deliver sends msg to every target synchronously and joins the errors.
func (d *Dispatcher) Deliver(ctx context.Context, msg Message) error {
	var errs []error

	d.mu.RLock()
	channels := make([]Channel, len(d.channels))
	copy(channels, d.channels)
	d.mu.RUnlock()

	for _, c := range channels {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		err := c.Send(ctx, msg)
		d.record(0, c.Name(), msg, err)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", c.Name(), err))
		}
	}

	if d.db != nil {
		errs = append(errs, d.deliverServices(ctx, msg)...)
	}

	return errors.Join(errs...)
}

func (d *Dispatcher) deliverServices(ctx context.Context, msg Message) []error {
	services, err := ListEnabledServices(d.db)
	if err != nil {
		d.logger.Error().Err(err).Msg("list services")
		return []error{err}
	}

	var errs []error
	for _, svc := range services {
		if !svc.Wants(msg.Kind) {
			continue
		}
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		var cfg serviceConfig
		if err := json.Unmarshal([]byte(svc.ConfigJSON), &cfg); err != nil {
			d.logger.Error().Err(err).Int64("service_id", svc.ID).Str("service", svc.Name).Msg("bad service config")
			continue
		}
		if cfg.ShoutrrrURL == "" {
			d.logger.Warn().Int64("service_id", svc.ID).Str("service", svc.Name).Msg("service has no shoutrrr_url")
			continue
		}

		err := d.sender.Send(cfg.ShoutrrrURL, msg.Text())
		d.record(svc.ID, "shoutrrr:"+svc.Name, msg, err)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", svc.Name, err))
		}
	}
	return errs
}

// record writes the attempt to history and raises failures on the bus.
func (d *Dispatcher) record(serviceID int64, channel string, msg Message, sendErr error) {
	rec := &NotificationRecord{
		ServiceID: serviceID,
		Channel:   channel,
		Kind:      msg.Kind,
		Prayer:    msg.Prayer,
		Message:   msg.Text(),
	}
	if sendErr != nil {
		rec.Status = StatusFailed
		rec.ErrorMessage = sendErr.Error()
		d.logger.Error().Err(sendErr).Str("channel", channel).Str("prayer", msg.Prayer).Msg("send failed")
	} else {
		rec.Status = StatusSent
		rec.SentAt = time.Now().UTC()
	}

	if d.db != nil {
		if _, err := RecordNotification(d.db, rec); err != nil {
			d.logger.Error().Err(err).Msg("record history")
		}
	}

	if sendErr != nil && d.bus != nil {
		d.bus.Publish(events.Event{
			Type:     events.PortFailed,
			Severity: events.SeverityWarning,
			Prayer:   msg.Prayer,
			Date:     msg.Date,
			Message:  fmt.Sprintf("notification via %s failed: %v", channel, sendErr),
			Metadata: map[string]string{
				"port":       "notifier",
				"channel":    channel,
				"kind":       msg.Kind,
				"service_id": strconv.FormatInt(serviceID, 10),
			},
		})
	}
}
