// Package config provides unified configuration loading for attendsim.
// It supports loading from YAML files and environment variables.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/nvandessel/attendsim/internal/pacing"
	"github.com/nvandessel/attendsim/internal/rssi"
)

// SecretEnvVar is the variable the backend reads its device salt from.
const SecretEnvVar = "DEVICE_SALT_SECRET"

// Config contains all attendsim configuration settings.
type Config struct {
	// Target describes the backend under test.
	Target TargetConfig `json:"target" yaml:"target"`

	// Session identifies the class session students check into.
	Session SessionConfig `json:"session" yaml:"session"`

	// Load shapes the simulated traffic.
	Load LoadConfig `json:"load" yaml:"load"`

	// Logging contains settings for operational logging.
	Logging LoggingConfig `json:"logging" yaml:"logging"`
}

// TargetConfig describes the backend.
type TargetConfig struct {
	// BaseURL is the API root, e.g. http://localhost:5000/api.
	BaseURL string `json:"base_url" yaml:"base_url"`

	// Secret is the shared HMAC key for device signatures. Supports ${VAR} syntax.
	Secret string `json:"secret,omitempty" yaml:"secret,omitempty"`

	// Timeout bounds each request. Zero leaves requests unbounded.
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// RedactedSecret returns the secret with most characters masked.
// Shows first 4 and last 4 characters. Returns "" for an empty secret
// and "(set)" for secrets shorter than 12 chars.
func (t TargetConfig) RedactedSecret() string {
	if t.Secret == "" {
		return ""
	}
	if len(t.Secret) < 12 {
		return "(set)"
	}
	return t.Secret[:4] + "..." + t.Secret[len(t.Secret)-4:]
}

// String implements fmt.Stringer to prevent accidental secret logging.
func (t TargetConfig) String() string {
	return fmt.Sprintf("TargetConfig{BaseURL:%s, Secret:%s, Timeout:%v}",
		t.BaseURL, t.RedactedSecret(), t.Timeout)
}

// SessionConfig identifies the attendance session.
type SessionConfig struct {
	// ID is the active session id. Leave empty with Discover set to look it up by minor.
	ID string `json:"id" yaml:"id"`

	// ClassID is sent with every request.
	ClassID string `json:"class_id" yaml:"class_id"`

	// Minor is the beacon minor the backend currently expects.
	Minor int `json:"minor" yaml:"minor"`

	// Discover resolves ID (and ClassID when empty) from the backend by Minor.
	Discover bool `json:"discover" yaml:"discover"`
}

// LoadConfig shapes the traffic of a run.
type LoadConfig struct {
	// Students is the number of simulated students.
	Students int `json:"students" yaml:"students"`

	// Delay is the pause after each student.
	Delay time.Duration `json:"delay" yaml:"delay"`

	// MaxRate caps students per second on top of Delay. 0 disables the cap.
	MaxRate float64 `json:"max_rate,omitempty" yaml:"max_rate,omitempty"`

	// CheckInRSSI is the range of the single reading sent on check-in.
	CheckInRSSI rssi.Range `json:"checkin_rssi" yaml:"checkin_rssi"`

	// StreamRSSI is the range of streamed readings.
	StreamRSSI rssi.Range `json:"stream_rssi" yaml:"stream_rssi"`

	// Samples is the number of readings per stream upload.
	Samples int `json:"samples" yaml:"samples"`

	// Seed makes the RSSI sequence reproducible when non-zero.
	Seed uint64 `json:"seed,omitempty" yaml:"seed,omitempty"`
}

// LoggingConfig configures logging behavior.
type LoggingConfig struct {
	// Level sets the log verbosity: "info" (default), "debug", or "trace".
	// "trace" additionally logs raw response bodies.
	Level string `json:"level" yaml:"level"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Target: TargetConfig{
			BaseURL: "http://localhost:5000/api",
		},
		Session: SessionConfig{
			ClassID: "CS101",
			Minor:   101,
		},
		Load: LoadConfig{
			Students:    50,
			Delay:       pacing.DefaultDelay,
			CheckInRSSI: rssi.DefaultCheckInRange,
			StreamRSSI:  rssi.DefaultStreamRange,
			Samples:     rssi.DefaultSamples,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// DefaultPath returns ~/.attendsim/config.yaml, or "" if HOME is unknown.
func DefaultPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(homeDir, ".attendsim", "config.yaml")
}

// Load loads configuration from the default locations and environment variables.
// Order: defaults -> ~/.attendsim/config.yaml -> environment variables
func Load() (*Config, error) {
	config := Default()

	if configPath := DefaultPath(); configPath != "" {
		if _, statErr := os.Stat(configPath); statErr == nil {
			fileConfig, loadErr := LoadFromFile(configPath)
			if loadErr != nil {
				return nil, fmt.Errorf("loading config file: %w", loadErr)
			}
			config = fileConfig
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// LoadPath loads from path when set, otherwise from the default locations.
// Environment overrides are applied either way.
func LoadPath(path string) (*Config, error) {
	if path == "" {
		return Load()
	}
	config, err := LoadFromFile(path)
	if err != nil {
		return nil, err
	}
	applyEnvOverrides(config)
	return config, nil
}

// LoadFromFile loads configuration from a specific YAML file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Expand environment variables in the secret
	config.Target.Secret = expandEnvVars(config.Target.Secret)

	return config, nil
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Target.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("target.base_url must be an http(s) URL, got %q", c.Target.BaseURL)
	}

	if c.Target.Secret == "" {
		return fmt.Errorf("target.secret is empty (set %s or target.secret)", SecretEnvVar)
	}

	if c.Target.Timeout < 0 {
		return fmt.Errorf("timeout must be non-negative, got %v", c.Target.Timeout)
	}

	if c.Session.ID == "" && !c.Session.Discover {
		return fmt.Errorf("session.id is empty and session.discover is off")
	}

	if c.Session.ClassID == "" && !c.Session.Discover {
		return fmt.Errorf("session.class_id is empty")
	}

	if c.Load.Students < 0 {
		return fmt.Errorf("students must be non-negative, got %d", c.Load.Students)
	}

	if c.Load.Delay < 0 {
		return fmt.Errorf("delay must be non-negative, got %v", c.Load.Delay)
	}

	if c.Load.MaxRate < 0 {
		return fmt.Errorf("max_rate must be non-negative, got %f", c.Load.MaxRate)
	}

	if c.Load.Samples <= 0 {
		return fmt.Errorf("samples must be positive, got %d", c.Load.Samples)
	}

	if err := c.Load.CheckInRSSI.Validate(); err != nil {
		return fmt.Errorf("checkin_rssi: %w", err)
	}
	if err := c.Load.StreamRSSI.Validate(); err != nil {
		return fmt.Errorf("stream_rssi: %w", err)
	}

	validLevels := map[string]bool{"info": true, "debug": true, "trace": true, "warn": true, "error": true}
	if c.Logging.Level != "" && !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (valid: info, debug, trace, warn, error, or empty for default)", c.Logging.Level)
	}

	return nil
}

// Warnings returns non-fatal problems worth surfacing before a run.
func (c *Config) Warnings() []string {
	var warnings []string
	if c.Session.ID != "" {
		if _, err := uuid.Parse(c.Session.ID); err != nil {
			warnings = append(warnings, fmt.Sprintf("session id %q is not a UUID; the backend is likely to reject every check-in", c.Session.ID))
		}
	}
	if c.Load.Delay == 0 && c.Load.MaxRate == 0 {
		warnings = append(warnings, "no delay and no rate cap; large runs may exhaust local ports")
	}
	return warnings
}

// applyEnvOverrides applies environment variable overrides to the config.
func applyEnvOverrides(config *Config) {
	if v := os.Getenv("ATTENDSIM_BASE_URL"); v != "" {
		config.Target.BaseURL = v
	}

	if v := os.Getenv(SecretEnvVar); v != "" {
		config.Target.Secret = v
	}

	if v := os.Getenv("ATTENDSIM_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.Target.Timeout = d
		}
	}

	if v := os.Getenv("ATTENDSIM_SESSION_ID"); v != "" {
		config.Session.ID = v
	}

	if v := os.Getenv("ATTENDSIM_CLASS_ID"); v != "" {
		config.Session.ClassID = v
	}

	if v := os.Getenv("ATTENDSIM_MINOR"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Session.Minor = n
		}
	}

	if v := os.Getenv("ATTENDSIM_DISCOVER"); v != "" {
		config.Session.Discover = v == "true" || v == "1"
	}

	if v := os.Getenv("ATTENDSIM_STUDENTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Load.Students = n
		}
	}

	if v := os.Getenv("ATTENDSIM_DELAY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.Load.Delay = d
		}
	}

	if v := os.Getenv("ATTENDSIM_MAX_RATE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			config.Load.MaxRate = f
		}
	}

	if v := os.Getenv("ATTENDSIM_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}
}

// expandEnvVars expands ${VAR} patterns in a string with environment variable values.
func expandEnvVars(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return os.Expand(s, os.Getenv)
}
