package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/saltyorg/opsboard/internal/config"
	"github.com/saltyorg/opsboard/internal/logging"
)

// DefaultSettings are written on migrate for keys that have no value yet.
var DefaultSettings = map[string]string{
	config.KeyExternQueryTimeout:  "30s",
	config.KeyExternMaxConns:      "4",
	config.KeyMaintenanceSchedule: "@every 1h",
	config.KeyLogMaxSizeMB:        fmt.Sprint(logging.DefaultMaxSizeMB),
	config.KeyLogMaxBackups:       fmt.Sprint(logging.DefaultMaxBackups),
	config.KeyLogMaxAgeDays:       fmt.Sprint(logging.DefaultMaxAgeDays),
	config.KeyLogCompress:         fmt.Sprint(logging.DefaultCompress),
}

// GetSetting retrieves a setting value by key. Missing keys return "".
func (db *DB) GetSetting(key string) (string, error) {
	var value string
	err := db.QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get setting %s: %w", key, err)
	}
	return value, nil
}

// SetSetting stores a setting value
func (db *DB) SetSetting(key, value string) error {
	_, err := db.Exec(`
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value, time.Now())
	if err != nil {
		return fmt.Errorf("failed to set setting %s: %w", key, err)
	}
	return nil
}

// GetAllSettings retrieves all settings
func (db *DB) GetAllSettings() (map[string]string, error) {
	rows, err := db.Query("SELECT key, value FROM settings")
	if err != nil {
		return nil, fmt.Errorf("failed to get settings: %w", err)
	}
	defer rows.Close()

	settings := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("failed to scan setting: %w", err)
		}
		settings[key] = value
	}
	return settings, rows.Err()
}

// InitializeDefaults sets default values for settings that don't exist
func (db *DB) InitializeDefaults() error {
	for key, value := range DefaultSettings {
		if _, err := db.Exec(
			"INSERT INTO settings (key, value) VALUES (?, ?) ON CONFLICT(key) DO NOTHING",
			key, value,
		); err != nil {
			return fmt.Errorf("failed to seed setting %s: %w", key, err)
		}
	}
	return nil
}
