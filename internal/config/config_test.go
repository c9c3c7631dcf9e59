package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"

	"adhan/internal/models"
	"adhan/internal/prayer"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
	for _, k := range []string{"PORT", "DB_PATH", "STATE_BACKEND", "STATE_RETENTION_DAYS", "AUTH_ENABLED"} {
		if v, ok := os.LookupEnv(k); ok {
			os.Unsetenv(k)
			t.Cleanup(func() { os.Setenv(k, v) })
		}
	}

	cfg := Load()
	if cfg.Port != "9080" {
		t.Errorf("Port = %q, want 9080", cfg.Port)
	}
	if cfg.DBPath != "adhan.db" {
		t.Errorf("DBPath = %q", cfg.DBPath)
	}
	if cfg.StateBackend != "sqlite" {
		t.Errorf("StateBackend = %q", cfg.StateBackend)
	}
	if cfg.StateRetentionDays != 30 {
		t.Errorf("StateRetentionDays = %d", cfg.StateRetentionDays)
	}
	if !cfg.AuthEnabled {
		t.Error("auth should default to enabled")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
	t.Setenv("PORT", "8181")
	t.Setenv("STATE_BACKEND", "FILE")
	t.Setenv("STATE_RETENTION_DAYS", "7")
	t.Setenv("AUTH_ENABLED", "false")
	t.Setenv("RATE_LIMIT", "not-a-number")

	cfg := Load()
	if cfg.Port != "8181" {
		t.Errorf("Port = %q", cfg.Port)
	}
	if cfg.StateBackend != "file" {
		t.Errorf("StateBackend = %q, want lower-cased file", cfg.StateBackend)
	}
	if cfg.StateRetentionDays != 7 {
		t.Errorf("StateRetentionDays = %d", cfg.StateRetentionDays)
	}
	if cfg.AuthEnabled {
		t.Error("AUTH_ENABLED=false ignored")
	}
	if cfg.RateLimit != 10 {
		t.Errorf("RateLimit = %d, want fallback 10", cfg.RateLimit)
	}
}

func TestLoadDotEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	if err := os.WriteFile(path, []byte("MQTT_TOPIC=masjid/adhan\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("ENV_FILE", path)
	// t.Setenv registers restoration; unset so the file value applies.
	t.Setenv("MQTT_TOPIC", "")
	os.Unsetenv("MQTT_TOPIC")

	cfg := Load()
	if cfg.MQTTTopic != "masjid/adhan" {
		t.Errorf("MQTTTopic = %q, want value from env file", cfg.MQTTTopic)
	}
}

func TestValidate(t *testing.T) {
	base := models.Config{StateBackend: "sqlite", AuthEnabled: true, AdminPass: "secret"}

	tests := []struct {
		name    string
		mutate  func(*models.Config)
		wantErr bool
	}{
		{"ok", func(*models.Config) {}, false},
		{"file backend", func(c *models.Config) { c.StateBackend = "file"; c.StatePath = "fired.json" }, false},
		{"file without path", func(c *models.Config) { c.StateBackend = "file"; c.StatePath = "" }, true},
		{"unknown backend", func(c *models.Config) { c.StateBackend = "redis" }, true},
		{"auth without password", func(c *models.Config) { c.AdminPass = "" }, true},
		{"auth disabled", func(c *models.Config) { c.AuthEnabled = false; c.AdminPass = "" }, false},
		{"negative retention", func(c *models.Config) { c.StateRetentionDays = -1 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			if err := Validate(cfg); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

const scheduleYAML = `
timezone: Europe/London
fixed:
  fajr: "05:10"
  sunrise: "06:30"
  dhuhr: "12:20"
  asr: "15:30"
  maghrib: "18:05"
  isha: "19:30"
timetable:
  "2025-03-10":
    fajr: "05:02"
    dhuhr: "12:19:30"
`

func TestLoadSchedule(t *testing.T) {
	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, "/etc/adhan.yaml", []byte(scheduleYAML), 0o644); err != nil {
		t.Fatal(err)
	}

	sf, err := LoadSchedule(fs, "/etc/adhan.yaml")
	if err != nil {
		t.Fatalf("LoadSchedule: %v", err)
	}
	if sf.Timezone != "Europe/London" {
		t.Errorf("Timezone = %q", sf.Timezone)
	}
	if len(sf.Fixed) != 6 || len(sf.Timetable) != 1 {
		t.Fatalf("fixed=%d timetable=%d", len(sf.Fixed), len(sf.Timetable))
	}

	loc, err := sf.Location("")
	if err != nil {
		t.Fatalf("Location: %v", err)
	}
	p, err := sf.Provider(loc)
	if err != nil {
		t.Fatalf("Provider: %v", err)
	}

	// Timetable date: only its own rows.
	sched, err := p.Today(time.Date(2025, 3, 10, 9, 0, 0, 0, loc))
	if err != nil {
		t.Fatalf("Today: %v", err)
	}
	if sched.Len() != 2 {
		t.Errorf("timetable day has %d entries, want 2", sched.Len())
	}
	dhuhr, _ := sched.Time(prayer.Dhuhr)
	if dhuhr.Hour() != 12 || dhuhr.Minute() != 19 || dhuhr.Second() != 30 {
		t.Errorf("Dhuhr = %v", dhuhr)
	}

	// Other dates fall back to fixed times.
	sched, err = p.Today(time.Date(2025, 3, 11, 9, 0, 0, 0, loc))
	if err != nil {
		t.Fatalf("Today fallback: %v", err)
	}
	if sched.Len() != 6 {
		t.Errorf("fallback day has %d entries, want 6", sched.Len())
	}
}

func TestLoadScheduleMissingFile(t *testing.T) {
	sf, err := LoadSchedule(afero.NewMemMapFs(), "/nope.yaml")
	if err != nil {
		t.Fatalf("LoadSchedule: %v", err)
	}
	if !sf.Empty() {
		t.Error("missing file should give an empty schedule")
	}

	p, err := sf.Provider(time.UTC)
	if err != nil {
		t.Fatalf("Provider: %v", err)
	}
	if _, err := p.Today(time.Now()); !errors.Is(err, prayer.ErrNoSchedule) {
		t.Errorf("Today() err = %v, want ErrNoSchedule", err)
	}
}

func TestLoadScheduleErrors(t *testing.T) {
	fs := afero.NewMemMapFs()
	afero.WriteFile(fs, "/bad.yaml", []byte("fixed: [unclosed"), 0o644)
	afero.WriteFile(fs, "/badtime.yaml", []byte("fixed:\n  fajr: \"25:99\"\n"), 0o644)
	afero.WriteFile(fs, "/badname.yaml", []byte("fixed:\n  tahajjud: \"03:00\"\n"), 0o644)

	if _, err := LoadSchedule(fs, "/bad.yaml"); err == nil {
		t.Error("malformed YAML accepted")
	}
	for _, path := range []string{"/badtime.yaml", "/badname.yaml"} {
		sf, err := LoadSchedule(fs, path)
		if err != nil {
			t.Fatalf("LoadSchedule(%s): %v", path, err)
		}
		if _, err := sf.Provider(time.UTC); err == nil {
			t.Errorf("%s: Provider accepted invalid times", path)
		}
	}
}

func TestScheduleLocationOverride(t *testing.T) {
	sf := &ScheduleFile{Timezone: "Europe/London"}
	loc, err := sf.Location("Asia/Riyadh")
	if err != nil {
		t.Fatalf("Location: %v", err)
	}
	if loc.String() != "Asia/Riyadh" {
		t.Errorf("loc = %s, want override", loc)
	}
	if _, err := sf.Location("Not/AZone"); err == nil {
		t.Error("unknown zone accepted")
	}
}
