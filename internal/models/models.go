package models

// Config holds daemon configuration read from the environment at startup.
// User-facing prayer settings live in the settings table, not here.
type Config struct {
	Port        string
	DBPath      string
	AdminUser   string
	AdminPass   string
	AuthEnabled bool

	// Timezone is an IANA zone name; empty means the host's local zone.
	Timezone string
	// ConfigFile is the optional YAML schedule file (ADHAN_CONFIG).
	ConfigFile string

	AudioPlayer string
	AudioDir    string

	// StateBackend is "sqlite" (default) or "file".
	StateBackend       string
	StatePath          string
	StateRetentionDays int
	RetentionSchedule  string

	MQTTBroker   string
	MQTTClientID string
	MQTTUsername string
	MQTTPassword string
	MQTTTopic    string

	RateLimit int

	LogLevel  string
	LogFormat string
}
