// Package config implements TOML configuration loading, validation, and
// platform-specific path resolution for covey. Unknown keys in the
// config file are fatal, with "did you mean?" suggestions.
package config

import "time"

// Config is the top-level configuration structure parsed from a TOML
// file. Every section is optional; an absent or empty [server] section
// leaves the app in local-only mode where sync cycles are no-ops.
type Config struct {
	Server  ServerConfig  `toml:"server"`
	Remote  RemoteConfig  `toml:"remote"`
	Sync    SyncConfig    `toml:"sync"`
	Logging LoggingConfig `toml:"logging"`
}

// ServerConfig identifies the WebDAV server and the credentials for it.
// app_password is expected to be a per-application password, not the
// account password.
type ServerConfig struct {
	URL         string `toml:"url"`
	Username    string `toml:"username"`
	AppPassword string `toml:"app_password"`
}

// RemoteConfig locates the sync tree on the server. Root is prefixed to
// every remote path, so several apps can share one WebDAV account.
type RemoteConfig struct {
	Root string `toml:"root"`
}

// SyncConfig controls the background scheduler.
type SyncConfig struct {
	Enabled       bool   `toml:"enabled"`
	Interval      string `toml:"interval"`
	RetryInterval string `toml:"retry_interval"`
}

// IntervalDuration returns the parsed cycle interval. The value has
// been validated; call only on a validated Config.
func (s SyncConfig) IntervalDuration() time.Duration {
	d, err := time.ParseDuration(s.Interval)
	if err != nil {
		return defaultIntervalDuration
	}

	return d
}

// RetryIntervalDuration returns the parsed retry interval.
func (s SyncConfig) RetryIntervalDuration() time.Duration {
	d, err := time.ParseDuration(s.RetryInterval)
	if err != nil {
		return defaultRetryIntervalDuration
	}

	return d
}

// LoggingConfig controls log output behavior: level, format, and the
// optional rotating log file.
type LoggingConfig struct {
	LogLevel  string `toml:"log_level"`
	LogFile   string `toml:"log_file"`
	LogFormat string `toml:"log_format"`
}

// Configured reports whether a remote server is fully specified. With
// no server, every sync command degrades to a local no-op.
func (c *Config) Configured() bool {
	return c.Server.URL != "" && c.Server.Username != "" && c.Server.AppPassword != ""
}
