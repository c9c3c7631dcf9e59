package settings

import (
	"encoding/json"
	"fmt"
	"strconv"

	"adhan/internal/prayer"
)

const (
	// MinTriggerWindowSeconds is the floor applied to the trigger window.
	MinTriggerWindowSeconds = 3
	// MaxReminderMinutes bounds the pre-prayer reminder lead time.
	MaxReminderMinutes = 60
)

var defaultAudio = map[prayer.Name]string{
	prayer.Fajr:    "Mishary_Al-Afasy.mp3",
	prayer.Sunrise: "",
	prayer.Dhuhr:   "Hamza_Al_Majale.mp3",
	prayer.Asr:     "Rabeh_Al_Jazairi.mp3",
	prayer.Maghrib: "Mishary_Al-Afasy.mp3",
	prayer.Isha:    "Rabeh_Al_Jazairi.mp3",
}

// DefaultSettings defines the default configuration values
var DefaultSettings = buildDefaults()

func buildDefaults() []Setting {
	out := []Setting{
		{Category: CategoryAdhan, Key: KeyAudioEnabled, Value: "true", ValueType: "bool", Description: "Master switch for adhan audio"},
		{Category: CategoryAdhan, Key: KeyNotificationsEnabled, Value: "true", ValueType: "bool", Description: "Master switch for prayer notifications"},
		{Category: CategoryAdhan, Key: KeyQuietMode, Value: "false", ValueType: "bool", Description: "Suppress all audio and notifications"},
		{Category: CategoryAdhan, Key: KeyTriggerWindowSeconds, Value: "20", ValueType: "int", Description: "Seconds after a prayer instant during which a late tick still fires"},
		{Category: CategoryAdhan, Key: KeyReminderMinutes, Value: "0", ValueType: "int", Description: "Minutes before a prayer to send a reminder (0 disables)"},
	}
	for _, n := range prayer.Names {
		enabled := "true"
		if n == prayer.Sunrise {
			enabled = "false"
		}
		out = append(out,
			Setting{Category: n.Key(), Key: KeyEnabled, Value: enabled, ValueType: "bool", Description: fmt.Sprintf("Play adhan at %s", n)},
			Setting{Category: n.Key(), Key: KeyAudioFile, Value: defaultAudio[n], ValueType: "string", Description: fmt.Sprintf("Audio file played at %s", n)},
		)
	}
	return out
}

// validateSettingValue validates a value against its expected type
func validateSettingValue(valueType, value string) error {
	switch valueType {
	case "int":
		if _, err := strconv.Atoi(value); err != nil {
			return fmt.Errorf("value must be an integer")
		}
	case "float":
		if _, err := strconv.ParseFloat(value, 64); err != nil {
			return fmt.Errorf("value must be a number")
		}
	case "bool":
		if value != "true" && value != "false" {
			return fmt.Errorf("value must be 'true' or 'false'")
		}
	case "json":
		if !json.Valid([]byte(value)) {
			return fmt.Errorf("value must be valid JSON")
		}
	}
	return nil
}

// validateRange applies the per-key bounds on top of the type check.
func validateRange(category, key, value string) error {
	if category != CategoryAdhan {
		return nil
	}
	switch key {
	case KeyTriggerWindowSeconds:
		n, _ := strconv.Atoi(value)
		if n < MinTriggerWindowSeconds {
			return fmt.Errorf("trigger window must be at least %d seconds", MinTriggerWindowSeconds)
		}
	case KeyReminderMinutes:
		n, _ := strconv.Atoi(value)
		if n < 0 || n > MaxReminderMinutes {
			return fmt.Errorf("reminder must be between 0 and %d minutes", MaxReminderMinutes)
		}
	}
	return nil
}
