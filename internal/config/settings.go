package config

import (
	"strconv"
	"time"
)

// Setting keys stored in the settings table.
const (
	KeyExternQueryTimeout  = "extern.query_timeout"
	KeyExternMaxConns      = "extern.max_conns"
	KeyMaintenanceSchedule = "maintenance.schedule"
	KeyLogMaxSizeMB        = "log.max_size_mb"
	KeyLogMaxBackups       = "log.max_backups"
	KeyLogMaxAgeDays       = "log.max_age_days"
	KeyLogCompress         = "log.compress"
)

// EditableKeys lists the settings an admin may change through the API,
// mapped to the kind of value each one accepts.
var EditableKeys = map[string]string{
	KeyExternQueryTimeout:  "duration",
	KeyExternMaxConns:      "int",
	KeyMaintenanceSchedule: "string",
	KeyLogMaxSizeMB:        "int",
	KeyLogMaxBackups:       "int",
	KeyLogMaxAgeDays:       "int",
	KeyLogCompress:         "bool",
}

// SettingsGetter is an interface for retrieving settings from storage
type SettingsGetter interface {
	GetSetting(key string) (string, error)
}

// Loader provides typed access to settings with default values
type Loader struct {
	db SettingsGetter
}

// NewLoader creates a new settings loader
func NewLoader(db SettingsGetter) *Loader {
	return &Loader{db: db}
}

func (l *Loader) raw(key string) string {
	if l == nil || l.db == nil {
		return ""
	}
	val, _ := l.db.GetSetting(key)
	return val
}

// Int retrieves an integer setting, returning defaultVal if not found or invalid
func (l *Loader) Int(key string, defaultVal int) int {
	if val := l.raw(key); val != "" {
		if v, err := strconv.Atoi(val); err == nil {
			return v
		}
	}
	return defaultVal
}

// Bool retrieves a boolean setting, returning defaultVal if not found.
// Only "true" counts as true once a value is stored.
func (l *Loader) Bool(key string, defaultVal bool) bool {
	if val := l.raw(key); val != "" {
		return val == "true"
	}
	return defaultVal
}

// String retrieves a string setting, returning defaultVal if not found or empty
func (l *Loader) String(key, defaultVal string) string {
	if val := l.raw(key); val != "" {
		return val
	}
	return defaultVal
}

// Duration retrieves a duration setting in Go duration format ("30s", "2m")
func (l *Loader) Duration(key string, defaultVal time.Duration) time.Duration {
	if val := l.raw(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil && d > 0 {
			return d
		}
	}
	return defaultVal
}

// ValidateValue checks that value parses as the kind registered for key.
func ValidateValue(key, value string) bool {
	kind, ok := EditableKeys[key]
	if !ok {
		return false
	}
	switch kind {
	case "int":
		_, err := strconv.Atoi(value)
		return err == nil
	case "bool":
		return value == "true" || value == "false"
	case "duration":
		d, err := time.ParseDuration(value)
		return err == nil && d > 0
	default:
		return value != ""
	}
}
