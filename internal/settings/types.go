package settings

import "time"

// Setting represents a configuration setting in the database
type Setting struct {
	ID          int64     `json:"id" db:"id"`
	Category    string    `json:"category" db:"category"`
	Key         string    `json:"key" db:"key"`
	Value       string    `json:"value" db:"value"`
	ValueType   string    `json:"value_type" db:"value_type"`
	Description string    `json:"description,omitempty" db:"description"`
	UpdatedAt   time.Time `json:"updated_at" db:"-"`
}

// settingRow is the scan target; SQLite hands timestamps back as text.
type settingRow struct {
	Setting
	UpdatedAtRaw string `db:"updated_at"`
}

// SettingUpdate represents a request to update a setting
type SettingUpdate struct {
	Value string `json:"value"`
}

// SettingsGrouped represents settings grouped by category
type SettingsGrouped map[string][]Setting

// Categories and keys backing Config.
const (
	CategoryAdhan = "adhan"

	KeyAudioEnabled         = "audio_enabled"
	KeyNotificationsEnabled = "notifications_enabled"
	KeyQuietMode            = "quiet_mode"
	KeyTriggerWindowSeconds = "trigger_window_seconds"
	KeyReminderMinutes      = "reminder_minutes_before"

	KeyEnabled   = "enabled"
	KeyAudioFile = "audio_file"
)
