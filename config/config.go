// Package config loads jankmon settings from an optional YAML file and the
// environment.
package config

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"

	"github.com/Swind/go-responsiveness/core"
)

type (
	// Config is the complete jankmon configuration. Environment variables
	// override file values.
	Config struct {
		Calculator CalculatorConfig `yaml:"calculator"`

		Metrics MetricsConfig `yaml:"metrics"`
		Trace   TraceConfig   `yaml:"trace"`
		Kafka   KafkaConfig   `yaml:"kafka"`
		Stream  StreamConfig  `yaml:"stream"`
		Sentry  SentryConfig  `yaml:"sentry"`

		Environment string `yaml:"environment" env:"JANK_ENVIRONMENT" env-default:"development"`
		LogLevel    string `yaml:"log_level" env:"JANK_LOG_LEVEL" env-default:"info"`
		LogConsole  bool   `yaml:"log_console" env:"JANK_LOG_CONSOLE" env-default:"true"`
	}

	CalculatorConfig struct {
		MeasurementInterval time.Duration `yaml:"measurement_interval" env:"JANK_MEASUREMENT_INTERVAL" env-default:"30s"`
		JankThreshold       time.Duration `yaml:"jank_threshold" env:"JANK_THRESHOLD" env-default:"100ms"`
		SuspendInterval     time.Duration `yaml:"suspend_interval" env:"JANK_SUSPEND_INTERVAL" env-default:"30s"`
		HistorySize         int           `yaml:"history_size" env:"JANK_HISTORY_SIZE" env-default:"64"`
	}

	MetricsConfig struct {
		// Addr serves /metrics when set, e.g. ":9090".
		Addr         string        `yaml:"addr" env:"JANK_METRICS_ADDR"`
		Namespace    string        `yaml:"namespace" env:"JANK_METRICS_NAMESPACE" env-default:"browser_responsiveness"`
		PollInterval time.Duration `yaml:"poll_interval" env:"JANK_METRICS_POLL_INTERVAL" env-default:"1s"`
	}

	TraceConfig struct {
		// Path receives a Chrome trace JSON file on exit when set.
		Path      string `yaml:"path" env:"JANK_TRACE_PATH"`
		MaxEvents int    `yaml:"max_events" env:"JANK_TRACE_MAX_EVENTS" env-default:"100000"`
	}

	KafkaConfig struct {
		Brokers []string `yaml:"brokers" env:"JANK_KAFKA_BROKERS" env-separator:","`
		Topic   string   `yaml:"topic" env:"JANK_KAFKA_TOPIC" env-default:"browser-responsiveness"`
	}

	StreamConfig struct {
		// URL of a WebSocket monitoring server, e.g. "ws://host:8080/monitoring".
		URL     string `yaml:"url" env:"JANK_STREAM_URL"`
		AgentID string `yaml:"agent_id" env:"JANK_STREAM_AGENT_ID" env-default:"browser"`
	}

	SentryConfig struct {
		DSN string `yaml:"dsn" env:"JANK_SENTRY_DSN"`

		// MinJankDuration filters which janks become transactions.
		MinJankDuration time.Duration `yaml:"min_jank_duration" env:"JANK_SENTRY_MIN_JANK_DURATION" env-default:"1s"`
	}
)

// Load reads path when it is not empty, then applies the environment.
func Load(path string) (Config, error) {
	var cfg Config
	if path != "" {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: read environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the calculator settings.
func (c Config) Validate() error {
	calc := c.CalculatorConfig()
	if err := calc.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// CalculatorConfig converts the calculator settings. Collaborators such as
// sinks and tracers are left for the caller to fill in.
func (c Config) CalculatorConfig() *core.CalculatorConfig {
	return &core.CalculatorConfig{
		MeasurementInterval: c.Calculator.MeasurementInterval,
		JankThreshold:       c.Calculator.JankThreshold,
		SuspendInterval:     c.Calculator.SuspendInterval,
		HistorySize:         c.Calculator.HistorySize,
	}
}

// KafkaEnabled reports whether samples should be published to Kafka.
func (c Config) KafkaEnabled() bool {
	return len(c.Kafka.Brokers) > 0
}

// StreamEnabled reports whether samples should be streamed over WebSocket.
func (c Config) StreamEnabled() bool {
	return c.Stream.URL != ""
}

// Usage describes every environment variable.
func Usage() string {
	var cfg Config
	text, err := cleanenv.GetDescription(&cfg, nil)
	if err != nil {
		return err.Error()
	}
	return text
}
