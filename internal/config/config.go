// Package config loads service configuration from a YAML file with
// environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all service configuration.
type Config struct {
	Port            int
	DBPath          string
	HistoryDSN      string // Postgres DSN for the historical log sink; empty disables it
	PushURL         string
	PushKey         string
	HMACSecret      string
	ResponseTimeout time.Duration
	DuplicateWindow time.Duration
	ArrivalLimit    int
	GatePulse       time.Duration
	DevMode         bool
}

// fileConfig is the YAML shape of the config file. Durations are strings
// in time.ParseDuration format ("5m", "10s").
type fileConfig struct {
	Port            *int    `yaml:"port"`
	DBPath          *string `yaml:"db_path"`
	HistoryDSN      *string `yaml:"history_dsn"`
	PushURL         *string `yaml:"push_url"`
	PushKey         *string `yaml:"push_key"`
	HMACSecret      *string `yaml:"hmac_secret"`
	ResponseTimeout *string `yaml:"response_timeout"`
	DuplicateWindow *string `yaml:"duplicate_window"`
	ArrivalLimit    *int    `yaml:"arrival_limit"`
	GatePulse       *string `yaml:"gate_pulse"`
	DevMode         *bool   `yaml:"dev_mode"`
}

// Default returns the built-in defaults.
func Default() Config {
	return Config{
		Port:            8080,
		ResponseTimeout: 5 * time.Minute,
		DuplicateWindow: 5 * time.Minute,
		ArrivalLimit:    3,
		GatePulse:       10 * time.Second,
	}
}

// Load reads the config file at path (optional — empty path skips the file),
// applies PORTERIA_* environment overrides, and fills in defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("reading config %s: %w", path, err)
		}
		var fc fileConfig
		if err := yaml.Unmarshal(data, &fc); err != nil {
			return Config{}, fmt.Errorf("parsing config %s: %w", path, err)
		}
		if err := fc.apply(&cfg); err != nil {
			return Config{}, fmt.Errorf("config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}

	if cfg.Port <= 0 {
		cfg.Port = 8080
	}
	if cfg.ResponseTimeout <= 0 {
		cfg.ResponseTimeout = 5 * time.Minute
	}
	if cfg.DuplicateWindow <= 0 {
		cfg.DuplicateWindow = 5 * time.Minute
	}
	if cfg.ArrivalLimit <= 0 {
		cfg.ArrivalLimit = 3
	}
	if cfg.GatePulse <= 0 {
		cfg.GatePulse = 10 * time.Second
	}

	return cfg, nil
}

// apply copies set file fields onto cfg.
func (fc *fileConfig) apply(cfg *Config) error {
	if fc.Port != nil {
		cfg.Port = *fc.Port
	}
	if fc.DBPath != nil {
		cfg.DBPath = *fc.DBPath
	}
	if fc.HistoryDSN != nil {
		cfg.HistoryDSN = *fc.HistoryDSN
	}
	if fc.PushURL != nil {
		cfg.PushURL = *fc.PushURL
	}
	if fc.PushKey != nil {
		cfg.PushKey = *fc.PushKey
	}
	if fc.HMACSecret != nil {
		cfg.HMACSecret = *fc.HMACSecret
	}
	if fc.ArrivalLimit != nil {
		cfg.ArrivalLimit = *fc.ArrivalLimit
	}
	if fc.DevMode != nil {
		cfg.DevMode = *fc.DevMode
	}
	durations := []struct {
		name  string
		value *string
		dst   *time.Duration
	}{
		{"response_timeout", fc.ResponseTimeout, &cfg.ResponseTimeout},
		{"duplicate_window", fc.DuplicateWindow, &cfg.DuplicateWindow},
		{"gate_pulse", fc.GatePulse, &cfg.GatePulse},
	}
	for _, d := range durations {
		if d.value == nil {
			continue
		}
		parsed, err := time.ParseDuration(*d.value)
		if err != nil {
			return fmt.Errorf("%s: %w", d.name, err)
		}
		*d.dst = parsed
	}
	return nil
}

// applyEnv overrides fields from PORTERIA_* environment variables.
func (c *Config) applyEnv() error {
	if v := os.Getenv("PORTERIA_PORT"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PORTERIA_PORT: %w", err)
		}
		c.Port = p
	}
	if v := os.Getenv("PORTERIA_DB_PATH"); v != "" {
		c.DBPath = v
	}
	if v := os.Getenv("PORTERIA_HISTORY_DSN"); v != "" {
		c.HistoryDSN = v
	}
	if v := os.Getenv("PORTERIA_PUSH_URL"); v != "" {
		c.PushURL = v
	}
	if v := os.Getenv("PORTERIA_PUSH_KEY"); v != "" {
		c.PushKey = v
	}
	if v := os.Getenv("PORTERIA_HMAC_SECRET"); v != "" {
		c.HMACSecret = v
	}
	if v := os.Getenv("PORTERIA_RESPONSE_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("PORTERIA_RESPONSE_TIMEOUT: %w", err)
		}
		c.ResponseTimeout = d
	}
	if v := os.Getenv("PORTERIA_DUPLICATE_WINDOW"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("PORTERIA_DUPLICATE_WINDOW: %w", err)
		}
		c.DuplicateWindow = d
	}
	if v := os.Getenv("PORTERIA_GATE_PULSE"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("PORTERIA_GATE_PULSE: %w", err)
		}
		c.GatePulse = d
	}
	if v := os.Getenv("PORTERIA_DEV_MODE"); v != "" {
		c.DevMode = v == "true"
	}
	return nil
}
