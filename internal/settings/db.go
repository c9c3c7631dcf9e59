package settings

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"github.com/jmoiron/sqlx"

	"adhan/internal/db"
)

// ErrNotFound is returned when a category/key pair does not exist.
var ErrNotFound = errors.New("setting not found")

const selectColumns = `
	SELECT id, category, key, value, value_type, COALESCE(description, '') AS description, updated_at
	FROM settings`

// InitSettingsTable creates the settings table and populates defaults
func InitSettingsTable(conn *sqlx.DB) error {
	createTableSQL := `
	CREATE TABLE IF NOT EXISTS settings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		category TEXT NOT NULL,
		key TEXT NOT NULL,
		value TEXT NOT NULL,
		value_type TEXT DEFAULT 'string',
		description TEXT,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(category, key)
	);

	CREATE INDEX IF NOT EXISTS idx_settings_category ON settings(category);
	`

	if _, err := conn.Exec(createTableSQL); err != nil {
		return fmt.Errorf("failed to create settings table: %w", err)
	}

	insertSQL := `
	INSERT OR IGNORE INTO settings (category, key, value, value_type, description)
	VALUES (?, ?, ?, ?, ?)
	`

	for _, setting := range DefaultSettings {
		if _, err := conn.Exec(insertSQL,
			setting.Category,
			setting.Key,
			setting.Value,
			setting.ValueType,
			setting.Description,
		); err != nil {
			return fmt.Errorf("failed to insert default setting %s.%s: %w",
				setting.Category, setting.Key, err)
		}
	}

	return nil
}

func toSettings(rows []settingRow) []Setting {
	out := make([]Setting, 0, len(rows))
	for _, r := range rows {
		s := r.Setting
		s.UpdatedAt = db.ParseTime(r.UpdatedAtRaw)
		out = append(out, s)
	}
	return out
}

// GetAllSettings retrieves all settings from the database
func GetAllSettings(conn *sqlx.DB) ([]Setting, error) {
	var rows []settingRow
	if err := conn.Select(&rows, selectColumns+` ORDER BY category, key`); err != nil {
		return nil, fmt.Errorf("failed to query settings: %w", err)
	}
	return toSettings(rows), nil
}

// GetSettingsByCategory retrieves all settings for a specific category
func GetSettingsByCategory(conn *sqlx.DB, category string) ([]Setting, error) {
	var rows []settingRow
	if err := conn.Select(&rows, selectColumns+` WHERE category = ? ORDER BY key`, category); err != nil {
		return nil, fmt.Errorf("failed to query settings for category %s: %w", category, err)
	}
	return toSettings(rows), nil
}

// GetSetting retrieves a specific setting by category and key. It returns
// nil, nil when the setting does not exist.
func GetSetting(conn *sqlx.DB, category, key string) (*Setting, error) {
	var row settingRow
	err := conn.Get(&row, selectColumns+` WHERE category = ? AND key = ?`, category, key)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get setting %s.%s: %w", category, key, err)
	}
	s := row.Setting
	s.UpdatedAt = db.ParseTime(row.UpdatedAtRaw)
	return &s, nil
}

// UpdateSetting updates the value of a specific setting
func UpdateSetting(conn *sqlx.DB, category, key, value string) error {
	existing, err := GetSetting(conn, category, key)
	if err != nil {
		return err
	}
	if existing == nil {
		return fmt.Errorf("setting %s.%s: %w", category, key, ErrNotFound)
	}

	if err := validateSettingValue(existing.ValueType, value); err != nil {
		return fmt.Errorf("invalid value for %s.%s: %w", category, key, err)
	}
	if err := validateRange(category, key, value); err != nil {
		return fmt.Errorf("invalid value for %s.%s: %w", category, key, err)
	}

	res, err := conn.Exec(`
	UPDATE settings
	SET value = ?, updated_at = CURRENT_TIMESTAMP
	WHERE category = ? AND key = ?`, value, category, key)
	if err != nil {
		return fmt.Errorf("failed to update setting %s.%s: %w", category, key, err)
	}
	if err := db.ExpectOneRow(res, "update setting "+category+"."+key); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return fmt.Errorf("setting %s.%s: %w", category, key, ErrNotFound)
		}
		return err
	}
	return nil
}

// ResetAllToDefaults resets all settings to their default values
func ResetAllToDefaults(conn *sqlx.DB) error {
	for _, def := range DefaultSettings {
		if err := UpdateSetting(conn, def.Category, def.Key, def.Value); err != nil {
			return fmt.Errorf("failed to reset %s.%s: %w", def.Category, def.Key, err)
		}
	}
	return nil
}

// GetIntSetting retrieves a setting as an integer
func GetIntSetting(conn *sqlx.DB, category, key string) (int, error) {
	s, err := GetSetting(conn, category, key)
	if err != nil {
		return 0, err
	}
	if s == nil {
		return 0, fmt.Errorf("setting %s.%s: %w", category, key, ErrNotFound)
	}
	val, err := strconv.Atoi(s.Value)
	if err != nil {
		return 0, fmt.Errorf("setting %s.%s is not an integer: %w", category, key, err)
	}
	return val, nil
}

// GetBoolSetting retrieves a setting as a boolean
func GetBoolSetting(conn *sqlx.DB, category, key string) (bool, error) {
	s, err := GetSetting(conn, category, key)
	if err != nil {
		return false, err
	}
	if s == nil {
		return false, fmt.Errorf("setting %s.%s: %w", category, key, ErrNotFound)
	}
	return s.Value == "true", nil
}

// GetSettingsGrouped retrieves all settings grouped by category
func GetSettingsGrouped(conn *sqlx.DB) (SettingsGrouped, error) {
	settings, err := GetAllSettings(conn)
	if err != nil {
		return nil, err
	}

	grouped := make(SettingsGrouped)
	for _, s := range settings {
		grouped[s.Category] = append(grouped[s.Category], s)
	}

	return grouped, nil
}
