package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nvandessel/attendsim/internal/rssi"
)

const testSessionID = "0b8e6f3c-6a3c-4c38-9c59-0d6f1f2a9d11"

// clearEnv blanks every variable applyEnvOverrides reads.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"ATTENDSIM_BASE_URL", SecretEnvVar, "ATTENDSIM_TIMEOUT", "ATTENDSIM_SESSION_ID",
		"ATTENDSIM_CLASS_ID", "ATTENDSIM_MINOR", "ATTENDSIM_DISCOVER", "ATTENDSIM_STUDENTS",
		"ATTENDSIM_DELAY", "ATTENDSIM_MAX_RATE", "ATTENDSIM_LOG_LEVEL",
	} {
		t.Setenv(k, "")
	}
}

func validConfig() *Config {
	c := Default()
	c.Target.Secret = "64650144b7d4b235198e6b1ca6d3352a921022d311f14e06d45dc4667314155a"
	c.Session.ID = testSessionID
	return c
}

func TestDefault(t *testing.T) {
	config := Default()

	if config.Target.BaseURL != "http://localhost:5000/api" {
		t.Errorf("expected BaseURL 'http://localhost:5000/api', got '%s'", config.Target.BaseURL)
	}
	if config.Target.Secret != "" {
		t.Error("expected no default secret")
	}
	if config.Target.Timeout != 0 {
		t.Errorf("expected no default timeout, got %v", config.Target.Timeout)
	}
	if config.Session.ClassID != "CS101" {
		t.Errorf("expected ClassID 'CS101', got '%s'", config.Session.ClassID)
	}
	if config.Session.Minor != 101 {
		t.Errorf("expected Minor 101, got %d", config.Session.Minor)
	}
	if config.Load.Students != 50 {
		t.Errorf("expected Students 50, got %d", config.Load.Students)
	}
	if config.Load.Delay != 100*time.Millisecond {
		t.Errorf("expected Delay 100ms, got %v", config.Load.Delay)
	}
	if config.Load.CheckInRSSI != (rssi.Range{Min: -80, Max: -60}) {
		t.Errorf("unexpected CheckInRSSI %v", config.Load.CheckInRSSI)
	}
	if config.Load.StreamRSSI != (rssi.Range{Min: -85, Max: -55}) {
		t.Errorf("unexpected StreamRSSI %v", config.Load.StreamRSSI)
	}
	if config.Load.Samples != 5 {
		t.Errorf("expected Samples 5, got %d", config.Load.Samples)
	}
	if config.Logging.Level != "info" {
		t.Errorf("expected Logging.Level 'info', got '%s'", config.Logging.Level)
	}
}

func TestLoadFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
target:
  base_url: https://attend.example.edu/api
  secret: file-secret-value
  timeout: 3s
session:
  id: ` + testSessionID + `
  class_id: EE220
  minor: 7
load:
  students: 12
  delay: 250ms
  checkin_rssi: {min: -75, max: -65}
  samples: 9
`
	if err := os.WriteFile(configPath, []byte(configContent), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	config, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}

	if config.Target.BaseURL != "https://attend.example.edu/api" {
		t.Errorf("BaseURL = %q", config.Target.BaseURL)
	}
	if config.Target.Secret != "file-secret-value" {
		t.Errorf("Secret = %q", config.Target.Secret)
	}
	if config.Target.Timeout != 3*time.Second {
		t.Errorf("Timeout = %v, want 3s", config.Target.Timeout)
	}
	if config.Session.ClassID != "EE220" || config.Session.Minor != 7 {
		t.Errorf("Session = %+v", config.Session)
	}
	if config.Load.Students != 12 {
		t.Errorf("Students = %d, want 12", config.Load.Students)
	}
	if config.Load.Delay != 250*time.Millisecond {
		t.Errorf("Delay = %v, want 250ms", config.Load.Delay)
	}
	if config.Load.CheckInRSSI != (rssi.Range{Min: -75, Max: -65}) {
		t.Errorf("CheckInRSSI = %v", config.Load.CheckInRSSI)
	}
	// Unset keys keep their defaults
	if config.Load.StreamRSSI != rssi.DefaultStreamRange {
		t.Errorf("StreamRSSI = %v, want default", config.Load.StreamRSSI)
	}
	if config.Load.Samples != 9 {
		t.Errorf("Samples = %d, want 9", config.Load.Samples)
	}
}

func TestLoadFromFile_ExpandsSecret(t *testing.T) {
	t.Setenv("ATTENDSIM_TEST_SALT", "expanded-salt")
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte("target:\n  secret: ${ATTENDSIM_TEST_SALT}\n"), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	config, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}
	if config.Target.Secret != "expanded-salt" {
		t.Errorf("Secret = %q, want expanded-salt", config.Target.Secret)
	}
}

func TestLoadFromFile_Errors(t *testing.T) {
	if _, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(bad, []byte("load: [unterminated"), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := LoadFromFile(bad); err == nil {
		t.Error("expected parse error")
	}
}

func TestLoad_NoFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("HOME", t.TempDir())

	config, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if config.Load.Students != 50 {
		t.Errorf("Students = %d, want default 50", config.Load.Students)
	}
}

func TestLoad_HomeFile(t *testing.T) {
	clearEnv(t)
	home := t.TempDir()
	t.Setenv("HOME", home)

	dir := filepath.Join(home, ".attendsim")
	if err := os.MkdirAll(dir, 0700); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("load:\n  students: 3\n"), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	config, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if config.Load.Students != 3 {
		t.Errorf("Students = %d, want 3", config.Load.Students)
	}
}

func TestEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("HOME", t.TempDir())
	t.Setenv("ATTENDSIM_BASE_URL", "http://10.0.0.5:5000/api")
	t.Setenv(SecretEnvVar, "env-secret")
	t.Setenv("ATTENDSIM_TIMEOUT", "2s")
	t.Setenv("ATTENDSIM_SESSION_ID", testSessionID)
	t.Setenv("ATTENDSIM_CLASS_ID", "MA101")
	t.Setenv("ATTENDSIM_MINOR", "303")
	t.Setenv("ATTENDSIM_DISCOVER", "1")
	t.Setenv("ATTENDSIM_STUDENTS", "7")
	t.Setenv("ATTENDSIM_DELAY", "1s")
	t.Setenv("ATTENDSIM_MAX_RATE", "2.5")
	t.Setenv("ATTENDSIM_LOG_LEVEL", "debug")

	config, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if config.Target.BaseURL != "http://10.0.0.5:5000/api" {
		t.Errorf("BaseURL = %q", config.Target.BaseURL)
	}
	if config.Target.Secret != "env-secret" {
		t.Errorf("Secret = %q", config.Target.Secret)
	}
	if config.Target.Timeout != 2*time.Second {
		t.Errorf("Timeout = %v", config.Target.Timeout)
	}
	if config.Session.ID != testSessionID || config.Session.ClassID != "MA101" || config.Session.Minor != 303 {
		t.Errorf("Session = %+v", config.Session)
	}
	if !config.Session.Discover {
		t.Error("Discover should be true")
	}
	if config.Load.Students != 7 || config.Load.Delay != time.Second || config.Load.MaxRate != 2.5 {
		t.Errorf("Load = %+v", config.Load)
	}
	if config.Logging.Level != "debug" {
		t.Errorf("Level = %q", config.Logging.Level)
	}
}

func TestEnvOverrides_IgnoresGarbage(t *testing.T) {
	clearEnv(t)
	t.Setenv("HOME", t.TempDir())
	t.Setenv("ATTENDSIM_STUDENTS", "many")
	t.Setenv("ATTENDSIM_DELAY", "soon")

	config, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if config.Load.Students != 50 {
		t.Errorf("Students = %d, want default", config.Load.Students)
	}
	if config.Load.Delay != 100*time.Millisecond {
		t.Errorf("Delay = %v, want default", config.Load.Delay)
	}
}

func TestLoadPath(t *testing.T) {
	clearEnv(t)
	t.Setenv("ATTENDSIM_CLASS_ID", "ENV01")
	path := filepath.Join(t.TempDir(), "run.yaml")
	if err := os.WriteFile(path, []byte("session:\n  class_id: FILE01\n  minor: 5\n"), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	config, err := LoadPath(path)
	if err != nil {
		t.Fatalf("LoadPath: %v", err)
	}
	if config.Session.ClassID != "ENV01" {
		t.Errorf("ClassID = %q, env should win over file", config.Session.ClassID)
	}
	if config.Session.Minor != 5 {
		t.Errorf("Minor = %d, want 5", config.Session.Minor)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"bad url", func(c *Config) { c.Target.BaseURL = "localhost:5000" }, "base_url"},
		{"no secret", func(c *Config) { c.Target.Secret = "" }, "secret"},
		{"negative timeout", func(c *Config) { c.Target.Timeout = -time.Second }, "timeout"},
		{"no session", func(c *Config) { c.Session.ID = "" }, "session.id"},
		{"no session with discover", func(c *Config) { c.Session.ID = ""; c.Session.Discover = true }, ""},
		{"no class", func(c *Config) { c.Session.ClassID = "" }, "class_id"},
		{"negative students", func(c *Config) { c.Load.Students = -1 }, "students"},
		{"zero students", func(c *Config) { c.Load.Students = 0 }, ""},
		{"negative delay", func(c *Config) { c.Load.Delay = -1 }, "delay"},
		{"negative rate", func(c *Config) { c.Load.MaxRate = -1 }, "max_rate"},
		{"zero samples", func(c *Config) { c.Load.Samples = 0 }, "samples"},
		{"inverted range", func(c *Config) { c.Load.CheckInRSSI = rssi.Range{Min: -60, Max: -80} }, "checkin_rssi"},
		{"positive range", func(c *Config) { c.Load.StreamRSSI = rssi.Range{Min: -10, Max: 10} }, "stream_rssi"},
		{"bad level", func(c *Config) { c.Logging.Level = "verbose" }, "log level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestWarnings(t *testing.T) {
	c := validConfig()
	if w := c.Warnings(); len(w) != 0 {
		t.Errorf("unexpected warnings: %v", w)
	}

	c.Session.ID = "YOUR_ACTIVE_SESSION_UUID"
	c.Load.Delay = 0
	w := c.Warnings()
	if len(w) != 2 {
		t.Fatalf("got %d warnings, want 2: %v", len(w), w)
	}
	if !strings.Contains(w[0], "not a UUID") {
		t.Errorf("first warning = %q", w[0])
	}
}

func TestRedactedSecret(t *testing.T) {
	tests := []struct {
		secret string
		want   string
	}{
		{"", ""},
		{"short", "(set)"},
		{"64650144b7d4b235198e6b1ca6d3352a921022d311f14e06d45dc4667314155a", "6465...155a"},
	}
	for _, tt := range tests {
		target := TargetConfig{Secret: tt.secret}
		if got := target.RedactedSecret(); got != tt.want {
			t.Errorf("RedactedSecret(%q) = %q, want %q", tt.secret, got, tt.want)
		}
		if tt.secret != "" && strings.Contains(target.String(), tt.secret) {
			t.Errorf("String() leaks secret: %s", target.String())
		}
	}
}
