package config

import "time"

// Default values for configuration options. They are chosen so that a
// config file naming only the server section yields a working setup.
const (
	defaultInterval      = "5m"
	defaultRetryInterval = "30s"
	defaultLogLevel      = "info"
	defaultLogFormat     = "auto"

	defaultIntervalDuration      = 5 * time.Minute
	defaultRetryIntervalDuration = 30 * time.Second
)

// DefaultConfig returns a Config populated with all default values.
// It is the starting point for TOML decoding, so unset fields retain
// their defaults, and the fallback when no config file exists.
func DefaultConfig() *Config {
	return &Config{
		Sync: SyncConfig{
			Enabled:       true,
			Interval:      defaultInterval,
			RetryInterval: defaultRetryInterval,
		},
		Logging: LoggingConfig{
			LogLevel:  defaultLogLevel,
			LogFormat: defaultLogFormat,
		},
	}
}
