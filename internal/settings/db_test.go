package settings

import (
	"errors"
	"testing"

	"github.com/jmoiron/sqlx"

	"adhan/internal/db"
)

func setupTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	conn, err := db.OpenMemory()
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	if err := InitSettingsTable(conn); err != nil {
		t.Fatalf("Failed to initialize settings table: %v", err)
	}

	return conn
}

func TestInitSettingsTable(t *testing.T) {
	conn := setupTestDB(t)

	var count int
	if err := conn.Get(&count, "SELECT COUNT(*) FROM settings"); err != nil {
		t.Fatalf("Failed to query settings table: %v", err)
	}
	if count != len(DefaultSettings) {
		t.Errorf("Expected %d default settings, got %d", len(DefaultSettings), count)
	}

	var prayerCount int
	if err := conn.Get(&prayerCount, "SELECT COUNT(*) FROM settings WHERE category = 'fajr'"); err != nil {
		t.Fatalf("Failed to query fajr settings: %v", err)
	}
	if prayerCount != 2 {
		t.Errorf("Expected 2 fajr settings, got %d", prayerCount)
	}
}

func TestInitSettingsTableIsIdempotent(t *testing.T) {
	conn := setupTestDB(t)

	if err := UpdateSetting(conn, CategoryAdhan, KeyQuietMode, "true"); err != nil {
		t.Fatalf("UpdateSetting failed: %v", err)
	}
	if err := InitSettingsTable(conn); err != nil {
		t.Fatalf("second InitSettingsTable failed: %v", err)
	}

	quiet, err := GetBoolSetting(conn, CategoryAdhan, KeyQuietMode)
	if err != nil {
		t.Fatal(err)
	}
	if !quiet {
		t.Error("re-initialising must not overwrite user values")
	}
}

func TestGetSetting(t *testing.T) {
	conn := setupTestDB(t)

	setting, err := GetSetting(conn, CategoryAdhan, KeyTriggerWindowSeconds)
	if err != nil {
		t.Fatalf("GetSetting failed: %v", err)
	}
	if setting == nil {
		t.Fatal("Expected setting to be found")
	}
	if setting.Value != "20" {
		t.Errorf("Expected value '20', got '%s'", setting.Value)
	}
	if setting.ValueType != "int" {
		t.Errorf("Expected value_type 'int', got '%s'", setting.ValueType)
	}
	if setting.UpdatedAt.IsZero() {
		t.Error("Expected updated_at to be parsed")
	}

	missing, err := GetSetting(conn, "nonexistent", "key")
	if err != nil {
		t.Fatalf("GetSetting for missing key returned error: %v", err)
	}
	if missing != nil {
		t.Error("Expected nil for missing setting")
	}
}

func TestGetSettingsByCategory(t *testing.T) {
	conn := setupTestDB(t)

	settings, err := GetSettingsByCategory(conn, CategoryAdhan)
	if err != nil {
		t.Fatalf("GetSettingsByCategory failed: %v", err)
	}
	if len(settings) != 5 {
		t.Errorf("Expected 5 adhan settings, got %d", len(settings))
	}
	for _, s := range settings {
		if s.Category != CategoryAdhan {
			t.Errorf("Expected category adhan, got %s", s.Category)
		}
	}
}

func TestUpdateSetting(t *testing.T) {
	conn := setupTestDB(t)

	if err := UpdateSetting(conn, "isha", KeyAudioFile, "Makkah.mp3"); err != nil {
		t.Fatalf("UpdateSetting failed: %v", err)
	}

	setting, _ := GetSetting(conn, "isha", KeyAudioFile)
	if setting.Value != "Makkah.mp3" {
		t.Errorf("Expected 'Makkah.mp3', got '%s'", setting.Value)
	}
}

func TestUpdateSettingValidation(t *testing.T) {
	conn := setupTestDB(t)

	tests := []struct {
		name     string
		category string
		key      string
		value    string
	}{
		{"int type", CategoryAdhan, KeyTriggerWindowSeconds, "soon"},
		{"bool type", CategoryAdhan, KeyQuietMode, "yes"},
		{"window floor", CategoryAdhan, KeyTriggerWindowSeconds, "2"},
		{"reminder ceiling", CategoryAdhan, KeyReminderMinutes, "61"},
		{"reminder negative", CategoryAdhan, KeyReminderMinutes, "-1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := UpdateSetting(conn, tt.category, tt.key, tt.value); err == nil {
				t.Errorf("Expected error for %s.%s=%q", tt.category, tt.key, tt.value)
			}
		})
	}

	if err := UpdateSetting(conn, CategoryAdhan, KeyTriggerWindowSeconds, "3"); err != nil {
		t.Errorf("window of 3 seconds should be accepted: %v", err)
	}
}

func TestUpdateSettingNotFound(t *testing.T) {
	conn := setupTestDB(t)

	err := UpdateSetting(conn, "nonexistent", "key", "value")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestResetAllToDefaults(t *testing.T) {
	conn := setupTestDB(t)

	UpdateSetting(conn, CategoryAdhan, KeyAudioEnabled, "false")
	UpdateSetting(conn, "fajr", KeyEnabled, "false")

	if err := ResetAllToDefaults(conn); err != nil {
		t.Fatalf("ResetAllToDefaults failed: %v", err)
	}

	audio, _ := GetBoolSetting(conn, CategoryAdhan, KeyAudioEnabled)
	fajr, _ := GetBoolSetting(conn, "fajr", KeyEnabled)
	if !audio || !fajr {
		t.Errorf("Expected defaults restored, got audio=%v fajr=%v", audio, fajr)
	}
}

func TestGetIntSetting(t *testing.T) {
	conn := setupTestDB(t)

	val, err := GetIntSetting(conn, CategoryAdhan, KeyTriggerWindowSeconds)
	if err != nil {
		t.Fatalf("GetIntSetting failed: %v", err)
	}
	if val != 20 {
		t.Errorf("Expected 20, got %d", val)
	}

	if _, err := GetIntSetting(conn, "fajr", KeyAudioFile); err == nil {
		t.Error("Expected error reading a string setting as int")
	}
}

func TestGetSettingsGrouped(t *testing.T) {
	conn := setupTestDB(t)

	grouped, err := GetSettingsGrouped(conn)
	if err != nil {
		t.Fatalf("GetSettingsGrouped failed: %v", err)
	}
	if len(grouped) != 7 {
		t.Errorf("Expected 7 categories (adhan + six prayers), got %d", len(grouped))
	}
	if len(grouped["sunrise"]) != 2 {
		t.Errorf("Expected 2 sunrise settings, got %d", len(grouped["sunrise"]))
	}
}
