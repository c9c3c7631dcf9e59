package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
	"github.com/urfave/cli"

	"adhan/internal/audio"
	"adhan/internal/events"
	"adhan/internal/handlers"
	"adhan/internal/middleware"
	"adhan/internal/notify"
	"adhan/internal/scheduler"
	"adhan/internal/settings"
)

func serve(c *cli.Context) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d, err := bootstrap(ctx, true)
	if err != nil {
		return err
	}
	defer d.Close()
	cfg := d.cfg

	bus := events.NewBus()
	hub := notify.NewHub()
	detach := hub.Attach(bus)
	defer detach()

	dispatcher := notify.NewDispatcher(d.conn, bus, notify.ShoutrrrSender{}, hub)
	if cfg.MQTTBroker != "" {
		pub, err := notify.ConnectMQTT(notify.MQTTConfig{
			BrokerURL: cfg.MQTTBroker,
			ClientID:  cfg.MQTTClientID,
			Username:  cfg.MQTTUsername,
			Password:  cfg.MQTTPassword,
			Topic:     cfg.MQTTTopic,
			QoS:       1,
		})
		if err != nil {
			log.Warn().Err(err).Str("broker", cfg.MQTTBroker).Msg("MQTT disabled")
		} else {
			dispatcher.AddChannel(pub)
			defer pub.Close()
		}
	}
	dispatcher.Start()

	var sink audio.Sink = audio.NullSink{}
	player, err := audio.NewCommandPlayer(audio.ParseCommand(cfg.AudioPlayer), cfg.AudioDir, afero.NewOsFs())
	if err != nil {
		log.Warn().Err(err).Msg("audio playback disabled")
	} else {
		sink = player
	}

	loop, err := scheduler.New(scheduler.Options{
		Clock:    d.clock,
		Provider: d.provider,
		Settings: d.settings,
		Store:    d.store,
		Notifier: dispatcher,
		Sink:     sink,
		Bus:      bus,
	})
	if err != nil {
		return err
	}

	retention, err := scheduler.NewRetention(scheduler.RetentionOptions{
		Store:    d.store,
		DB:       d.conn,
		Bus:      bus,
		Clock:    d.clock,
		Days:     cfg.StateRetentionDays,
		Schedule: cfg.RetentionSchedule,
	})
	if err != nil {
		return err
	}
	if err := retention.Start(); err != nil {
		return err
	}

	limiter := middleware.NewRateLimiter(cfg.RateLimit, time.Minute)
	defer limiter.Close()

	mux := http.NewServeMux()
	settingsAPI := settings.NewHandler(d.conn, d.settings)
	settingsAPI.Bus = bus
	settingsAPI.Register(mux)
	api := &handlers.API{
		DB:         d.conn,
		Provider:   d.provider,
		Store:      d.store,
		Settings:   d.settings,
		Dispatcher: dispatcher,
		Hub:        hub,
		Bus:        bus,
		Clock:      d.clock,
		Version:    version,
	}
	api.Register(mux, limiter.Limit)

	var handler http.Handler = mux
	if cfg.AuthEnabled {
		basic, err := middleware.NewBasicAuth(cfg.AdminUser, cfg.AdminPass, "/health")
		if err != nil {
			return err
		}
		handler = basic.Wrap(handler)
	} else {
		log.Warn().Msg("authentication disabled")
	}
	handler = middleware.Logging(middleware.CORS(handler))

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	loop.Start(ctx)

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", version).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	var runErr error
	select {
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	case runErr = <-errCh:
		log.Error().Err(runErr).Msg("HTTP server failed")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("HTTP shutdown incomplete")
	}

	// Stop waits for an in-flight tick, so its persist and ports complete.
	loop.Stop()
	cancel()
	retention.Stop()
	dispatcher.Stop()
	hub.CloseAll()
	sink.Stop()

	log.Info().Msg("adhand stopped")
	return runErr
}
