package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"adhan/internal/models"
)

// Load returns the daemon configuration from environment variables. A
// .env file in the working directory (or ENV_FILE) is read first; values
// already in the environment win.
func Load() models.Config {
	loadDotEnv()

	return models.Config{
		Port:        getEnv("PORT", "9080"),
		DBPath:      getEnv("DB_PATH", "adhan.db"),
		AdminUser:   getEnv("ADMIN_USER", "admin"),
		AdminPass:   getEnv("ADMIN_PASS", ""),
		AuthEnabled: getEnv("AUTH_ENABLED", "true") == "true",

		Timezone:   getEnv("TZ_NAME", ""),
		ConfigFile: getEnv("ADHAN_CONFIG", "adhan.yaml"),

		AudioPlayer: getEnv("AUDIO_PLAYER", ""),
		AudioDir:    getEnv("AUDIO_DIR", "audio"),

		StateBackend:       strings.ToLower(getEnv("STATE_BACKEND", "sqlite")),
		StatePath:          getEnv("STATE_PATH", "fired.json"),
		StateRetentionDays: getEnvInt("STATE_RETENTION_DAYS", 30),
		RetentionSchedule:  getEnv("RETENTION_SCHEDULE", "15 3 * * *"),

		MQTTBroker:   getEnv("MQTT_BROKER", ""),
		MQTTClientID: getEnv("MQTT_CLIENT_ID", "adhand"),
		MQTTUsername: getEnv("MQTT_USERNAME", ""),
		MQTTPassword: getEnv("MQTT_PASSWORD", ""),
		MQTTTopic:    getEnv("MQTT_TOPIC", "adhan"),

		RateLimit: getEnvInt("RATE_LIMIT", 10),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "console"),
	}
}

// Validate rejects combinations the daemon cannot start with.
func Validate(cfg models.Config) error {
	switch cfg.StateBackend {
	case "sqlite":
	case "file":
		if cfg.StatePath == "" {
			return errors.New("STATE_PATH is required when STATE_BACKEND=file")
		}
	default:
		return fmt.Errorf("unknown STATE_BACKEND %q (want sqlite or file)", cfg.StateBackend)
	}
	if cfg.AuthEnabled && cfg.AdminPass == "" {
		return errors.New("ADMIN_PASS is required when AUTH_ENABLED=true")
	}
	if cfg.StateRetentionDays < 0 {
		return errors.New("STATE_RETENTION_DAYS must not be negative")
	}
	return nil
}

func loadDotEnv() {
	path := getEnv("ENV_FILE", ".env")
	err := godotenv.Load(path)
	switch {
	case err == nil:
		log.Debug().Str("path", path).Msg("loaded environment file")
	case errors.Is(err, fs.ErrNotExist):
	default:
		log.Warn().Err(err).Str("path", path).Msg("failed to read environment file")
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		log.Warn().Str("key", key).Str("value", v).Msg("ignoring non-numeric environment value")
		return fallback
	}
	return n
}
