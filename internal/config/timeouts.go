package config

import "time"

// TimeoutConfig holds timeout settings for various operations.
// These can be configured via CLI flags.
type TimeoutConfig struct {
	// HTTPRequest bounds handling of a regular API request. Default: 60s
	HTTPRequest time.Duration

	// ExternalQuery bounds a single external database query, including
	// connecting and closing the pool. The extern.query_timeout setting
	// overrides it at runtime. Default: 30s
	ExternalQuery time.Duration

	// Shutdown is how long in-flight requests get during graceful shutdown.
	// Default: 30s
	Shutdown time.Duration
}

// DefaultTimeoutConfig returns the default timeout configuration
func DefaultTimeoutConfig() *TimeoutConfig {
	return &TimeoutConfig{
		HTTPRequest:   60 * time.Second,
		ExternalQuery: 30 * time.Second,
		Shutdown:      30 * time.Second,
	}
}

var globalTimeouts = DefaultTimeoutConfig()

// SetGlobalTimeouts sets the global timeout configuration
func SetGlobalTimeouts(cfg *TimeoutConfig) {
	globalTimeouts = cfg
}

// GetTimeouts returns the global timeout configuration
func GetTimeouts() *TimeoutConfig {
	return globalTimeouts
}
