package settings

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"adhan/internal/prayer"
)

// PerPrayer holds the adhan controls for one prayer.
type PerPrayer struct {
	Enabled   bool   `json:"enabled"`
	AudioFile string `json:"audio_file"`
}

// Config is the scheduler's view of the user settings. A *Config handed
// out by Holder is shared and must be treated as read-only; use Clone
// before changing anything.
type Config struct {
	AudioEnabled          bool                      `json:"audio_enabled"`
	NotificationsEnabled  bool                      `json:"notifications_enabled"`
	QuietMode             bool                      `json:"quiet_mode"`
	TriggerWindowSeconds  int                       `json:"trigger_window_seconds"`
	ReminderMinutesBefore int                       `json:"reminder_minutes_before"`
	PerPrayer             map[prayer.Name]PerPrayer `json:"per_prayer"`
}

// Default returns the factory configuration.
func Default() *Config {
	c := &Config{
		AudioEnabled:         true,
		NotificationsEnabled: true,
		TriggerWindowSeconds: 20,
		PerPrayer:            make(map[prayer.Name]PerPrayer, len(prayer.Names)),
	}
	for _, n := range prayer.Names {
		c.PerPrayer[n] = PerPrayer{Enabled: n != prayer.Sunrise, AudioFile: defaultAudio[n]}
	}
	return c
}

// Disabled returns the conservative fallback used when settings could
// never be read: both masters off and every prayer disabled.
func Disabled() *Config {
	c := &Config{
		TriggerWindowSeconds: MinTriggerWindowSeconds,
		PerPrayer:            make(map[prayer.Name]PerPrayer, len(prayer.Names)),
	}
	for _, n := range prayer.Names {
		c.PerPrayer[n] = PerPrayer{}
	}
	return c
}

// Clone returns a deep copy.
func (c *Config) Clone() *Config {
	out := *c
	out.PerPrayer = make(map[prayer.Name]PerPrayer, len(c.PerPrayer))
	for k, v := range c.PerPrayer {
		out.PerPrayer[k] = v
	}
	return &out
}

// Window returns the effective trigger window, never below the floor.
func (c *Config) Window() time.Duration {
	w := c.TriggerWindowSeconds
	if w < MinTriggerWindowSeconds {
		w = MinTriggerWindowSeconds
	}
	return time.Duration(w) * time.Second
}

// Reminder returns the pre-prayer reminder lead time, zero when disabled.
func (c *Config) Reminder() time.Duration {
	if c.ReminderMinutesBefore <= 0 {
		return 0
	}
	return time.Duration(c.ReminderMinutesBefore) * time.Minute
}

// Prayer returns the per-prayer controls; missing entries are disabled.
func (c *Config) Prayer(n prayer.Name) PerPrayer {
	return c.PerPrayer[n]
}

// Silent reports whether nothing can be emitted at all.
func (c *Config) Silent() bool {
	return c.QuietMode || (!c.AudioEnabled && !c.NotificationsEnabled)
}

// Validate checks the bounds enforced on save.
func (c *Config) Validate() error {
	if c.TriggerWindowSeconds < MinTriggerWindowSeconds {
		return fmt.Errorf("trigger window must be at least %d seconds", MinTriggerWindowSeconds)
	}
	if c.ReminderMinutesBefore < 0 || c.ReminderMinutesBefore > MaxReminderMinutes {
		return fmt.Errorf("reminder must be between 0 and %d minutes", MaxReminderMinutes)
	}
	for n := range c.PerPrayer {
		if !n.Valid() {
			return fmt.Errorf("unknown prayer %q", n)
		}
	}
	return nil
}

// LoadConfig builds a Config from the settings table. Rows that are
// missing keep their default value.
func LoadConfig(conn *sqlx.DB) (*Config, error) {
	rows, err := GetAllSettings(conn)
	if err != nil {
		return nil, err
	}

	c := Default()
	for _, s := range rows {
		if err := c.apply(s); err != nil {
			return nil, fmt.Errorf("setting %s.%s: %w", s.Category, s.Key, err)
		}
	}
	return c, nil
}

func (c *Config) apply(s Setting) error {
	if s.Category == CategoryAdhan {
		switch s.Key {
		case KeyAudioEnabled:
			return parseBool(s.Value, &c.AudioEnabled)
		case KeyNotificationsEnabled:
			return parseBool(s.Value, &c.NotificationsEnabled)
		case KeyQuietMode:
			return parseBool(s.Value, &c.QuietMode)
		case KeyTriggerWindowSeconds:
			return parseInt(s.Value, &c.TriggerWindowSeconds)
		case KeyReminderMinutes:
			return parseInt(s.Value, &c.ReminderMinutesBefore)
		}
		return nil
	}

	n, err := prayer.ParseName(s.Category)
	if err != nil {
		// Unknown categories belong to someone else.
		return nil
	}
	p := c.PerPrayer[n]
	switch s.Key {
	case KeyEnabled:
		if err := parseBool(s.Value, &p.Enabled); err != nil {
			return err
		}
	case KeyAudioFile:
		p.AudioFile = strings.TrimSpace(s.Value)
	}
	c.PerPrayer[n] = p
	return nil
}

func parseBool(v string, dst *bool) error {
	b, err := strconv.ParseBool(v)
	if err != nil {
		return err
	}
	*dst = b
	return nil
}

func parseInt(v string, dst *int) error {
	n, err := strconv.Atoi(v)
	if err != nil {
		return err
	}
	*dst = n
	return nil
}

// SaveConfig writes every field of c in one transaction.
func SaveConfig(conn *sqlx.DB, c *Config) error {
	if err := c.Validate(); err != nil {
		return err
	}

	values := map[[2]string]string{
		{CategoryAdhan, KeyAudioEnabled}:         strconv.FormatBool(c.AudioEnabled),
		{CategoryAdhan, KeyNotificationsEnabled}: strconv.FormatBool(c.NotificationsEnabled),
		{CategoryAdhan, KeyQuietMode}:            strconv.FormatBool(c.QuietMode),
		{CategoryAdhan, KeyTriggerWindowSeconds}: strconv.Itoa(c.TriggerWindowSeconds),
		{CategoryAdhan, KeyReminderMinutes}:      strconv.Itoa(c.ReminderMinutesBefore),
	}
	for _, n := range prayer.Names {
		p := c.PerPrayer[n]
		values[[2]string{n.Key(), KeyEnabled}] = strconv.FormatBool(p.Enabled)
		values[[2]string{n.Key(), KeyAudioFile}] = p.AudioFile
	}

	tx, err := conn.Beginx()
	if err != nil {
		return fmt.Errorf("save config: begin: %w", err)
	}
	defer tx.Rollback()

	for k, v := range values {
		if _, err := tx.Exec(`
		UPDATE settings
		SET value = ?, updated_at = CURRENT_TIMESTAMP
		WHERE category = ? AND key = ?`, v, k[0], k[1]); err != nil {
			return fmt.Errorf("save config %s.%s: %w", k[0], k[1], err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("save config: commit: %w", err)
	}
	return nil
}

// Holder publishes immutable Config snapshots. Readers call Get once per
// evaluation and never see a half-applied update.
type Holder struct {
	conn *sqlx.DB
	cur  atomic.Pointer[Config]

	// serializes writers; readers never take it
	mu sync.Mutex
}

// NewHolder loads the current settings. If they cannot be read the holder
// starts from Disabled so nothing fires on a broken configuration.
func NewHolder(conn *sqlx.DB) *Holder {
	h := &Holder{conn: conn}
	cfg, err := LoadConfig(conn)
	if err != nil {
		log.Error().Err(err).Str("component", "settings").Msg("load settings failed, starting with everything disabled")
		cfg = Disabled()
	}
	h.cur.Store(cfg)
	return h
}

// NewStaticHolder serves a fixed configuration without a database.
func NewStaticHolder(cfg *Config) *Holder {
	h := &Holder{}
	h.cur.Store(cfg.Clone())
	return h
}

// Get returns the current snapshot.
func (h *Holder) Get() *Config {
	return h.cur.Load()
}

// Reload re-reads the database. On failure the last good snapshot stays.
func (h *Holder) Reload() error {
	if h.conn == nil {
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	cfg, err := LoadConfig(h.conn)
	if err != nil {
		log.Warn().Err(err).Str("component", "settings").Msg("reload failed, keeping last known good settings")
		return err
	}
	h.cur.Store(cfg)
	return nil
}

// Update applies fn to a copy of the current snapshot, persists it and
// swaps it in.
func (h *Holder) Update(fn func(*Config)) (*Config, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	next := h.cur.Load().Clone()
	fn(next)
	if err := next.Validate(); err != nil {
		return nil, err
	}
	if h.conn != nil {
		if err := SaveConfig(h.conn, next); err != nil {
			return nil, err
		}
	}
	h.cur.Store(next)
	return next, nil
}
