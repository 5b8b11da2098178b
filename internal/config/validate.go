package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

// Valid log levels and formats.
var (
	validLogLevels  = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	validLogFormats = map[string]bool{"auto": true, "text": true, "json": true}
)

// Validate checks a parsed Config for contradictions. A partially
// specified server section is an error: all three of url, username,
// and app_password must be present together or all absent.
func Validate(cfg *Config) error {
	var errs []error

	if err := validateServer(cfg.Server); err != nil {
		errs = append(errs, err)
	}

	if err := validateSync(cfg.Sync); err != nil {
		errs = append(errs, err)
	}

	if !validLogLevels[cfg.Logging.LogLevel] {
		errs = append(errs, fmt.Errorf("log_level %q: must be debug, info, warn, or error", cfg.Logging.LogLevel))
	}

	if !validLogFormats[cfg.Logging.LogFormat] {
		errs = append(errs, fmt.Errorf("log_format %q: must be auto, text, or json", cfg.Logging.LogFormat))
	}

	return errors.Join(errs...)
}

func validateServer(s ServerConfig) error {
	if s.URL == "" && s.Username == "" && s.AppPassword == "" {
		return nil
	}

	if s.URL == "" || s.Username == "" || s.AppPassword == "" {
		return errors.New("server: url, username, and app_password must be set together")
	}

	u, err := url.Parse(s.URL)
	if err != nil {
		return fmt.Errorf("server url %q: %w", s.URL, err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("server url %q: scheme must be http or https", s.URL)
	}

	if u.Host == "" {
		return fmt.Errorf("server url %q: missing host", s.URL)
	}

	return nil
}

func validateSync(s SyncConfig) error {
	var errs []error

	for name, value := range map[string]string{
		"interval":       s.Interval,
		"retry_interval": s.RetryInterval,
	} {
		d, err := time.ParseDuration(value)
		if err != nil {
			errs = append(errs, fmt.Errorf("sync %s %q: %w", name, value, err))

			continue
		}

		if d <= 0 {
			errs = append(errs, fmt.Errorf("sync %s %q: must be positive", name, value))
		}
	}

	return errors.Join(errs...)
}
