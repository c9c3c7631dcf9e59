package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli"

	"adhan/internal/firestate"
	"adhan/internal/notify"
	"adhan/internal/prayer"
)

func today(c *cli.Context) error {
	ctx := context.Background()
	d, err := bootstrap(ctx, false)
	if err != nil {
		return err
	}
	defer d.Close()
	return printToday(os.Stdout, d, d.clock.Now())
}

func printToday(w io.Writer, d *daemon, now time.Time) error {
	sched, err := d.provider.Today(now)
	if err != nil {
		if errors.Is(err, prayer.ErrNoSchedule) {
			fmt.Fprintf(w, "No prayer times configured for %s\n", prayer.DateOf(now))
			return nil
		}
		return err
	}

	cfg := d.settings.Get()
	date := prayer.DateOf(now)
	fmt.Fprintf(w, "%s (%s)\n", date, now.Location())

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PRAYER\tTIME\tENABLED\tFIRED\tREMINDED")
	for _, e := range sched.Entries() {
		fired := "-"
		if at, ok := d.store.FiredAt(firestate.AdhanKey(date, e.Prayer)); ok {
			fired = at.In(now.Location()).Format("15:04:05")
		}
		reminded := "-"
		if d.store.Contains(firestate.ReminderKey(date, e.Prayer)) {
			reminded = "yes"
		}
		fmt.Fprintf(tw, "%s\t%s\t%t\t%s\t%s\n",
			e.Prayer, e.At.Format("15:04"), cfg.Prayer(e.Prayer).Enabled, fired, reminded)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	next, ok, err := prayer.NextAfter(d.provider, now)
	if err != nil {
		return err
	}
	if ok {
		fmt.Fprintf(w, "Next: %s at %s (in %s)\n", next.Prayer, next.At.Format("15:04"), notify.FormatCountdown(next.At.Sub(now)))
	}
	return nil
}

func stateList(c *cli.Context) error {
	date := c.String("date")
	if date != "" {
		if _, err := prayer.ParseDate(date); err != nil {
			return fmt.Errorf("--date must be YYYY-MM-DD: %w", err)
		}
	}

	d, err := bootstrap(context.Background(), false)
	if err != nil {
		return err
	}
	defer d.Close()
	return printEntries(os.Stdout, d.store, date)
}

func printEntries(w io.Writer, store *firestate.Store, date string) error {
	entries := store.Entries()
	if date != "" {
		entries = store.ForDate(date)
	}
	if len(entries) == 0 {
		fmt.Fprintln(w, "No fires recorded")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DATE\tPRAYER\tKIND\tFIRED AT")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.Date, e.Prayer, e.Kind, e.FiredAt.Format(time.RFC3339))
	}
	return tw.Flush()
}

// checkPruneCutoff refuses cutoffs after today; pruning today's keys would
// let today's prayers fire again.
func checkPruneCutoff(before string, now time.Time) error {
	if today := prayer.DateOf(now); before > today {
		return fmt.Errorf("--before %s is after today (%s)", before, today)
	}
	return nil
}

func statePrune(c *cli.Context) error {
	before := c.String("before")
	if before != "" {
		if _, err := prayer.ParseDate(before); err != nil {
			return fmt.Errorf("--before must be YYYY-MM-DD: %w", err)
		}
	}

	ctx := context.Background()
	d, err := bootstrap(ctx, false)
	if err != nil {
		return err
	}
	defer d.Close()

	if before != "" {
		if err := checkPruneCutoff(before, d.clock.Now()); err != nil {
			return err
		}
		n, err := d.store.Prune(ctx, before)
		if err != nil {
			return err
		}
		fmt.Printf("Removed %d entries before %s\n", n, before)
		return nil
	}

	days := d.cfg.StateRetentionDays
	if c.IsSet("days") {
		days = c.Int("days")
	}
	if days <= 0 {
		return errors.New("retention is disabled; pass --before or --days")
	}
	r, err := d.retention(d.cfg.RetentionSchedule, days)
	if err != nil {
		return err
	}
	res, err := r.Run(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Removed %d entries and %d history records before %s\n", res.FireState, res.HistoryEntries, res.Cutoff)
	return nil
}

func notifyTest(c *cli.Context) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	d, err := bootstrap(ctx, false)
	if err != nil {
		return err
	}
	defer d.Close()

	dispatcher := notify.NewDispatcher(d.conn, nil, notify.ShoutrrrSender{})
	if d.cfg.MQTTBroker != "" {
		pub, err := notify.ConnectMQTT(notify.MQTTConfig{
			BrokerURL: d.cfg.MQTTBroker,
			ClientID:  d.cfg.MQTTClientID + "-test",
			Username:  d.cfg.MQTTUsername,
			Password:  d.cfg.MQTTPassword,
			Topic:     d.cfg.MQTTTopic,
			QoS:       1,
		})
		if err != nil {
			return err
		}
		defer pub.Close()
		dispatcher.AddChannel(pub)
	}

	if err := dispatcher.Deliver(ctx, notify.TestMessage(d.clock.Now())); err != nil {
		return fmt.Errorf("test notification: %w", err)
	}
	fmt.Println("Test notification sent")
	return nil
}
