package telemetry

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config selects how a confield run logs, traces, counts and publishes.
type Config struct {
	ServiceName    string `validate:"required"`
	ServiceVersion string `validate:"required"`
	Environment    string

	Logging LoggingConfig
	Tracing TracingConfig
	Metrics MetricsConfig
	Events  EventsConfig
}

// LoggingConfig configures the zerolog logger. Output is stdout, stderr or a
// file path.
type LoggingConfig struct {
	Level  string `validate:"oneof=trace debug info warn error fatal"`
	Format string `validate:"oneof=console json"`
	Output string

	EnableCaller bool

	// Burst sampling: SamplingInitial per second, then every
	// SamplingThereafter-th message.
	EnableSampling     bool
	SamplingInitial    int
	SamplingThereafter int

	TimeFormat string // unix, unixms or rfc3339
}

// TracingConfig configures the OpenTelemetry tracer.
type TracingConfig struct {
	Enabled            bool
	Exporter           string `validate:"omitempty,oneof=otlp stdout none"`
	Endpoint           string // OTLP collector, e.g. "localhost:4317"
	Insecure           bool
	SamplingRate       float64 `validate:"gte=0,lte=1"`
	MaxExportBatchSize int
	ExportTimeout      time.Duration
}

// MetricsConfig configures the prometheus registry and its HTTP endpoint.
type MetricsConfig struct {
	Enabled                 bool
	ListenAddress           string `validate:"required_if=Enabled true"`
	Path                    string
	Namespace               string
	DefaultHistogramBuckets []float64
}

// EventsConfig configures the event publisher.
type EventsConfig struct {
	Enabled      bool
	BufferSize   int `validate:"gte=0,required_if=Enabled true"`
	MaxBatchSize int
	EnableAsync  bool
}

var configValidator = validator.New()

// configMessages maps a failing field to the error reported for it.
var configMessages = map[string]string{
	"Config.ServiceName":           "service name is required",
	"Config.ServiceVersion":        "service version is required",
	"Config.Logging.Level":         "invalid log level: %v",
	"Config.Logging.Format":        "invalid log format: %v (must be 'console' or 'json')",
	"Config.Tracing.Exporter":      "invalid trace exporter: %v",
	"Config.Tracing.SamplingRate":  "trace sampling rate must be between 0 and 1, got: %v",
	"Config.Metrics.ListenAddress": "metrics listen address is required when metrics are enabled",
	"Config.Events.BufferSize":     "event buffer size must be positive, got: %v",
}

// DefaultConfig returns a default telemetry configuration suited to a
// command-line run: console logs on stderr, tracing and metrics off.
func DefaultConfig() *Config {
	return &Config{
		ServiceName:    "confield",
		ServiceVersion: "dev",
		Environment:    "development",
		Logging: LoggingConfig{
			Level:              "info",
			Format:             "console",
			Output:             "stderr",
			EnableCaller:       false,
			EnableSampling:     false,
			SamplingInitial:    100,
			SamplingThereafter: 100,
			TimeFormat:         "rfc3339",
		},
		Tracing: TracingConfig{
			Enabled:            false,
			Exporter:           "none",
			SamplingRate:       1.0,
			MaxExportBatchSize: 512,
			ExportTimeout:      30 * time.Second,
			Insecure:           true,
		},
		Metrics: MetricsConfig{
			Enabled:       false,
			ListenAddress: ":9464",
			Path:          "/metrics",
			Namespace:     "confield",
			DefaultHistogramBuckets: []float64{
				0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0,
			},
		},
		Events: EventsConfig{
			Enabled:      true,
			BufferSize:   256,
			MaxBatchSize: 32,
			EnableAsync:  false,
		},
	}
}

// ProductionConfig returns a configuration for long-running deployments.
func ProductionConfig() *Config {
	cfg := DefaultConfig()
	cfg.Environment = "production"
	cfg.Logging.Format = "json"
	cfg.Logging.EnableSampling = true
	cfg.Logging.TimeFormat = "unix"
	cfg.Tracing.Enabled = true
	cfg.Tracing.Exporter = "otlp"
	cfg.Tracing.SamplingRate = 0.1
	cfg.Tracing.Insecure = false
	cfg.Metrics.Enabled = true
	cfg.Events.EnableAsync = true
	return cfg
}

// DevelopmentConfig returns a verbose configuration for local debugging.
func DevelopmentConfig() *Config {
	cfg := DefaultConfig()
	cfg.Environment = "development"
	cfg.Logging.Level = "debug"
	cfg.Logging.EnableCaller = true
	cfg.Tracing.Enabled = true
	cfg.Tracing.Exporter = "stdout"
	return cfg
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	err := configValidator.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	fe := verrs[0]
	msg, ok := configMessages[fe.StructNamespace()]
	if !ok {
		return fmt.Errorf("invalid telemetry config: %s fails %s", fe.Namespace(), fe.Tag())
	}
	if strings.Contains(msg, "%v") {
		return fmt.Errorf(msg, fe.Value())
	}
	return errors.New(msg)
}
