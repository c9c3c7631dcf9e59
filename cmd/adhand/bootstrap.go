package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"

	"adhan/internal/config"
	"adhan/internal/db"
	"adhan/internal/firestate"
	"adhan/internal/models"
	"adhan/internal/notify"
	"adhan/internal/prayer"
	"adhan/internal/scheduler"
	"adhan/internal/settings"
)

// daemon holds everything the commands share: the database, the prayer
// time source, settings and fire state.
type daemon struct {
	cfg      models.Config
	conn     *sqlx.DB
	loc      *time.Location
	clock    scheduler.Clock
	provider prayer.Provider
	settings *settings.Holder
	store    *firestate.Store
}

func bootstrap(ctx context.Context, requireAuth bool) (*daemon, error) {
	cfg := config.Load()
	if !requireAuth {
		// only serve exposes the API
		cfg.AuthEnabled = false
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	sf, err := config.LoadSchedule(afero.NewOsFs(), cfg.ConfigFile)
	if err != nil {
		return nil, err
	}
	loc, err := sf.Location(cfg.Timezone)
	if err != nil {
		return nil, err
	}
	provider, err := sf.Provider(loc)
	if err != nil {
		return nil, err
	}
	if sf.Empty() {
		log.Warn().Str("path", cfg.ConfigFile).Msg("no prayer times configured, nothing will fire")
	}

	conn, err := db.Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	d := &daemon{
		cfg:      cfg,
		conn:     conn,
		loc:      loc,
		clock:    scheduler.SystemClock{Location: loc},
		provider: provider,
	}

	if err := settings.InitSettingsTable(conn); err != nil {
		d.Close()
		return nil, fmt.Errorf("settings table: %w", err)
	}
	if err := notify.Migrate(conn); err != nil {
		d.Close()
		return nil, fmt.Errorf("notification tables: %w", err)
	}
	d.settings = settings.NewHolder(conn)

	var backend firestate.Backend
	switch cfg.StateBackend {
	case "file":
		backend = firestate.NewFileBackend(afero.NewOsFs(), cfg.StatePath)
	default:
		if err := firestate.Migrate(conn); err != nil {
			d.Close()
			return nil, fmt.Errorf("fire state table: %w", err)
		}
		backend = firestate.NewSQLiteBackend(conn)
	}
	d.store = firestate.Open(ctx, backend)

	log.Info().
		Str("db", cfg.DBPath).
		Str("state_backend", cfg.StateBackend).
		Str("timezone", loc.String()).
		Int("fired", d.store.Len()).
		Msg("adhand initialized")
	return d, nil
}

func (d *daemon) retention(schedule string, days int) (*scheduler.Retention, error) {
	return scheduler.NewRetention(scheduler.RetentionOptions{
		Store:    d.store,
		DB:       d.conn,
		Clock:    d.clock,
		Days:     days,
		Schedule: schedule,
	})
}

func (d *daemon) Close() {
	if d.conn != nil {
		d.conn.Close()
	}
}
