package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	Server      ServerConfig
	Host        HostConfig
	Instruments InstrumentsConfig
	Driver      DriverConfig
	Inspector   InspectorConfig
	Catalog     CatalogConfig
	Logging     LogConfig
	RateLimit   RateLimitConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            int           `envconfig:"PORT" default:"4444"`
	Host            string        `envconfig:"HOST" default:"0.0.0.0"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`
}

// HostConfig describes the SDKs available on this machine.
type HostConfig struct {
	SDKs         []string `envconfig:"IOS_SDKS"`
	DefaultSDK   string   `envconfig:"IOS_DEFAULT_SDK"`
	Probe        bool     `envconfig:"SDK_PROBE" default:"true"`
	ProbeCommand []string `envconfig:"SDK_PROBE_COMMAND" default:"xcodebuild,-showsdks"`
}

// InstrumentsConfig controls how the instrumentation process is launched.
type InstrumentsConfig struct {
	Command     string        `envconfig:"INSTRUMENTS_COMMAND" default:"instruments"`
	Args        []string      `envconfig:"INSTRUMENTS_ARGS"`
	OutputRoot  string        `envconfig:"INSTRUMENTS_OUTPUT_ROOT"`
	StopTimeout time.Duration `envconfig:"INSTRUMENTS_STOP_TIMEOUT" default:"10s"`
}

// DriverConfig tunes the remote native driver client.
type DriverConfig struct {
	Timeout           time.Duration `envconfig:"DRIVER_TIMEOUT" default:"30s"`
	Retries           int           `envconfig:"DRIVER_RETRIES" default:"3"`
	RequestsPerSecond float64       `envconfig:"DRIVER_RPS" default:"0"`
}

// InspectorConfig locates the web inspector debug socket.
type InspectorConfig struct {
	Address string        `envconfig:"INSPECTOR_ADDR" default:"ws://localhost:27753/devtools"`
	Timeout time.Duration `envconfig:"INSPECTOR_TIMEOUT" default:"10s"`
}

// CatalogConfig points at application manifests.
type CatalogConfig struct {
	Pattern string `envconfig:"APP_CATALOG" default:"apps/**/*.{yaml,yml,toml}"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"100"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"200"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            4444,
			Host:            "0.0.0.0",
			ShutdownTimeout: 30 * time.Second,
		},
		Host: HostConfig{
			Probe:        true,
			ProbeCommand: []string{"xcodebuild", "-showsdks"},
		},
		Instruments: InstrumentsConfig{
			Command:     "instruments",
			StopTimeout: 10 * time.Second,
		},
		Driver: DriverConfig{
			Timeout: 30 * time.Second,
			Retries: 3,
		},
		Inspector: InspectorConfig{
			Address: "ws://localhost:27753/devtools",
			Timeout: 10 * time.Second,
		},
		Catalog: CatalogConfig{
			Pattern: "apps/**/*.{yaml,yml,toml}",
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
	}
}
