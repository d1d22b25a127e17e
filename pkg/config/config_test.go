package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Database.Path != "driftline.db" {
		t.Errorf("expected default database path 'driftline.db', got %q", cfg.Database.Path)
	}
	if cfg.Retry.MaxAttempts != 5 {
		t.Errorf("expected 5 retry attempts, got %d", cfg.Retry.MaxAttempts)
	}
	if cfg.Retry.Delay != 5*time.Second {
		t.Errorf("expected 5s retry delay, got %v", cfg.Retry.Delay)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestLoadEmptyPath(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") failed: %v", err)
	}
	if cfg.Telemetry.ServiceName != "driftline" {
		t.Errorf("expected service name 'driftline', got %q", cfg.Telemetry.ServiceName)
	}
}

func TestLoadFile(t *testing.T) {
	content := `
database:
  path: /tmp/test.db
  max_open_conns: 4
retry:
  max_attempts: 3
  delay: 1s
telemetry:
  logging:
    level: debug
ephemeral_paths:
  securitygroup:
    - assigned_to
  elb:
    - listeners.*.health
`
	path := filepath.Join(t.TempDir(), "driftline.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Database.Path != "/tmp/test.db" {
		t.Errorf("expected database path '/tmp/test.db', got %q", cfg.Database.Path)
	}
	if cfg.Database.MaxOpenConns != 4 {
		t.Errorf("expected 4 max open conns, got %d", cfg.Database.MaxOpenConns)
	}
	if cfg.Retry.MaxAttempts != 3 {
		t.Errorf("expected 3 retry attempts, got %d", cfg.Retry.MaxAttempts)
	}
	if cfg.Retry.Delay != time.Second {
		t.Errorf("expected 1s retry delay, got %v", cfg.Retry.Delay)
	}
	if cfg.Telemetry.Logging.Level != "debug" {
		t.Errorf("expected debug log level, got %q", cfg.Telemetry.Logging.Level)
	}
	if got := cfg.EphemeralPaths["securitygroup"]; len(got) != 1 || got[0] != "assigned_to" {
		t.Errorf("unexpected securitygroup ephemeral paths: %v", got)
	}
	if got := cfg.EphemeralPaths["elb"]; len(got) != 1 || got[0] != "listeners.*.health" {
		t.Errorf("unexpected elb ephemeral paths: %v", got)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/driftline.yaml"); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty database path", func(c *Config) { c.Database.Path = "" }},
		{"zero retry attempts", func(c *Config) { c.Retry.MaxAttempts = 0 }},
		{"bad log level", func(c *Config) { c.Telemetry.Logging.Level = "loud" }},
		{"bad log format", func(c *Config) { c.Telemetry.Logging.Format = "xml" }},
		{"sampling rate above one", func(c *Config) { c.Telemetry.Tracing.SamplingRate = 1.5 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
