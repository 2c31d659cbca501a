package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/confield/confield/pkg/telemetry"
)

// AppConfig is the optional YAML file passed with --config. Command flags
// override its values.
type AppConfig struct {
	// Catalog is the default catalog file (.yaml, .yml or .cue).
	Catalog string `yaml:"catalog"`

	// Database is the SQLite catalog store used when no catalog file is given.
	Database string `yaml:"database"`

	// ToolsRepository is prepended to default labels marked for it.
	ToolsRepository string `yaml:"tools_repository" validate:"omitempty,startswith=@"`

	// Timeout bounds the evaluation of one file.
	Timeout time.Duration `yaml:"timeout" validate:"gte=0"`

	// Policies lists extra .rego/.json policy files or directories.
	Policies []string `yaml:"policies"`

	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// TelemetryConfig selects logging, tracing and metrics settings.
type TelemetryConfig struct {
	Environment    string `yaml:"environment" validate:"omitempty,oneof=development production"`
	LogLevel       string `yaml:"log_level" validate:"omitempty,oneof=trace debug info warn error"`
	LogFormat      string `yaml:"log_format" validate:"omitempty,oneof=console json"`
	TraceExporter  string `yaml:"trace_exporter" validate:"omitempty,oneof=otlp stdout none"`
	TraceEndpoint  string `yaml:"trace_endpoint" validate:"required_if=TraceExporter otlp"`
	MetricsEnabled bool   `yaml:"metrics_enabled"`
	MetricsAddress string `yaml:"metrics_address" validate:"omitempty,hostname_port"`
}

var configValidator = validator.New()

// DefaultAppConfig returns the configuration used without --config.
func DefaultAppConfig() *AppConfig {
	return &AppConfig{
		ToolsRepository: "@bazel_tools",
		Timeout:         30 * time.Second,
		Telemetry: TelemetryConfig{
			Environment: "development",
			LogLevel:    "info",
			LogFormat:   "console",
		},
	}
}

// LoadAppConfig reads path over the defaults. An empty path yields the
// defaults.
func LoadAppConfig(path string) (*AppConfig, error) {
	cfg := DefaultAppConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field constraints.
func (c *AppConfig) Validate() error {
	if err := configValidator.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// telemetryConfig builds the telemetry configuration for this run.
func (c *AppConfig) telemetryConfig(version, logLevel string, verbose bool) *telemetry.Config {
	var cfg *telemetry.Config
	if c.Telemetry.Environment == "production" {
		cfg = telemetry.ProductionConfig()
	} else {
		cfg = telemetry.DefaultConfig()
	}
	cfg.ServiceVersion = version

	if c.Telemetry.LogLevel != "" {
		cfg.Logging.Level = c.Telemetry.LogLevel
	}
	if c.Telemetry.LogFormat != "" {
		cfg.Logging.Format = c.Telemetry.LogFormat
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	if c.Telemetry.TraceExporter != "" {
		cfg.Tracing.Exporter = c.Telemetry.TraceExporter
		cfg.Tracing.Enabled = c.Telemetry.TraceExporter != "none"
		cfg.Tracing.Endpoint = c.Telemetry.TraceEndpoint
	}

	cfg.Metrics.Enabled = cfg.Metrics.Enabled || c.Telemetry.MetricsEnabled
	if c.Telemetry.MetricsAddress != "" {
		cfg.Metrics.ListenAddress = c.Telemetry.MetricsAddress
	}
	return cfg
}
