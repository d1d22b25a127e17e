package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/driftline/driftline/pkg/telemetry"
)

// Config is the top-level driftline configuration.
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Retry     RetryConfig     `yaml:"retry"`
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// EphemeralPaths maps a technology name to additional configuration
	// paths treated as ephemeral, merged with the built-in defaults.
	EphemeralPaths map[string][]string `yaml:"ephemeral_paths"`
}

// DatabaseConfig configures the SQLite datastore.
type DatabaseConfig struct {
	// Path is the SQLite database file path, or ":memory:".
	Path string `yaml:"path" validate:"required"`

	MaxOpenConns    int           `yaml:"max_open_conns" validate:"min=1"`
	MaxIdleConns    int           `yaml:"max_idle_conns" validate:"min=0"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// RetryConfig configures the filtered-listing retry policy.
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts" validate:"min=1"`
	Delay       time.Duration `yaml:"delay" validate:"min=0"`
}

// TelemetryConfig mirrors the telemetry package configuration with
// YAML tags for the config file.
type TelemetryConfig struct {
	ServiceName    string `yaml:"service_name"`
	ServiceVersion string `yaml:"service_version"`
	Environment    string `yaml:"environment"`

	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level        string `yaml:"level" validate:"oneof=trace debug info warn error"`
	Format       string `yaml:"format" validate:"oneof=console json"`
	Output       string `yaml:"output"`
	EnableCaller bool   `yaml:"enable_caller"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled       bool   `yaml:"enabled"`
	ListenAddress string `yaml:"listen_address"`
	Path          string `yaml:"path"`
	Namespace     string `yaml:"namespace"`
}

// TracingConfig configures OpenTelemetry tracing.
type TracingConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Exporter      string        `yaml:"exporter"`
	Endpoint      string        `yaml:"endpoint"`
	SamplingRate  float64       `yaml:"sampling_rate" validate:"min=0,max=1"`
	ExportTimeout time.Duration `yaml:"export_timeout"`
	Insecure      bool          `yaml:"insecure"`
}

var validate = validator.New()

// Default returns the configuration defaults applied before the file
// is loaded.
func Default() *Config {
	tel := telemetry.DefaultConfig()
	return &Config{
		Database: DatabaseConfig{
			Path:            "driftline.db",
			MaxOpenConns:    1,
			MaxIdleConns:    1,
			ConnMaxLifetime: time.Hour,
		},
		Retry: RetryConfig{
			MaxAttempts: 5,
			Delay:       5 * time.Second,
		},
		Telemetry: TelemetryConfig{
			ServiceName:    tel.ServiceName,
			ServiceVersion: tel.ServiceVersion,
			Environment:    tel.Environment,
			Logging: LoggingConfig{
				Level:        tel.Logging.Level,
				Format:       tel.Logging.Format,
				Output:       tel.Logging.Output,
				EnableCaller: tel.Logging.EnableCaller,
			},
			Metrics: MetricsConfig{
				Enabled:       tel.Metrics.Enabled,
				ListenAddress: tel.Metrics.ListenAddress,
				Path:          tel.Metrics.Path,
				Namespace:     tel.Metrics.Namespace,
			},
			Tracing: TracingConfig{
				Enabled:       tel.Tracing.Enabled,
				Exporter:      tel.Tracing.Exporter,
				Endpoint:      tel.Tracing.Endpoint,
				SamplingRate:  tel.Tracing.SamplingRate,
				ExportTimeout: tel.Tracing.ExportTimeout,
				Insecure:      tel.Tracing.Insecure,
			},
		},
		EphemeralPaths: map[string][]string{},
	}
}

// Load reads the configuration file at path, applies defaults, and
// validates the result. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return c.TelemetryConfig().Validate()
}

// TelemetryConfig converts the file representation into the telemetry
// package configuration.
func (c *Config) TelemetryConfig() *telemetry.Config {
	return &telemetry.Config{
		ServiceName:    c.Telemetry.ServiceName,
		ServiceVersion: c.Telemetry.ServiceVersion,
		Environment:    c.Telemetry.Environment,
		Logging: telemetry.LoggingConfig{
			Level:        c.Telemetry.Logging.Level,
			Format:       c.Telemetry.Logging.Format,
			Output:       c.Telemetry.Logging.Output,
			EnableCaller: c.Telemetry.Logging.EnableCaller,
		},
		Metrics: telemetry.MetricsConfig{
			Enabled:       c.Telemetry.Metrics.Enabled,
			ListenAddress: c.Telemetry.Metrics.ListenAddress,
			Path:          c.Telemetry.Metrics.Path,
			Namespace:     c.Telemetry.Metrics.Namespace,
		},
		Tracing: telemetry.TracingConfig{
			Enabled:       c.Telemetry.Tracing.Enabled,
			Exporter:      c.Telemetry.Tracing.Exporter,
			Endpoint:      c.Telemetry.Tracing.Endpoint,
			SamplingRate:  c.Telemetry.Tracing.SamplingRate,
			ExportTimeout: c.Telemetry.Tracing.ExportTimeout,
			Insecure:      c.Telemetry.Tracing.Insecure,
		},
	}
}
