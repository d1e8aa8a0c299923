package config

import (
	"fmt"
	"net/url"
	"strings"
)

func Validate(cfg *Config) error {
	if err := validateAPI(&cfg.API); err != nil {
		return fmt.Errorf("api config validation failed: %w", err)
	}
	if err := validateStore(&cfg.Store); err != nil {
		return fmt.Errorf("store config validation failed: %w", err)
	}
	if cfg.Password.MinLength < 1 {
		return fmt.Errorf("password min_length must be at least 1")
	}
	if cfg.OTP.Length < 4 || cfg.OTP.Length > 10 {
		return fmt.Errorf("otp length %d out of range 4..10", cfg.OTP.Length)
	}
	if cfg.OTP.SubmitDelay.Duration < 0 || cfg.Wizard.CopiedReset.Duration < 0 {
		return fmt.Errorf("durations must not be negative")
	}
	switch strings.ToLower(cfg.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", cfg.Log.Level)
	}
	switch cfg.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", cfg.Log.Format)
	}
	return nil
}

// validateAPI checks the URL is absolute http(s) and normalizes the
// trailing slash away.
func validateAPI(api *API) error {
	if api.URL == "" {
		return fmt.Errorf("api url cannot be empty")
	}
	u, err := url.Parse(api.URL)
	if err != nil {
		return fmt.Errorf("invalid api url '%s': %w", api.URL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("api url '%s' must be http or https", api.URL)
	}
	if u.Host == "" {
		return fmt.Errorf("api url '%s' has no host", api.URL)
	}
	api.URL = strings.TrimRight(api.URL, "/")
	if api.Timeout.Duration < 0 {
		return fmt.Errorf("api timeout must not be negative")
	}
	return nil
}

func validateStore(store *Store) error {
	switch store.Backend {
	case StoreFile, StoreSQLite, StoreMemory:
		return nil
	case "":
		store.Backend = StoreFile
		return nil
	}
	return fmt.Errorf("unknown store backend %q", store.Backend)
}
