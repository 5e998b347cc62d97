package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	// Server config
	assert.Equal(t, 4444, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)

	// Host config
	assert.Empty(t, cfg.Host.SDKs)
	assert.True(t, cfg.Host.Probe)
	assert.Equal(t, []string{"xcodebuild", "-showsdks"}, cfg.Host.ProbeCommand)

	// Instruments config
	assert.Equal(t, "instruments", cfg.Instruments.Command)
	assert.Equal(t, 10*time.Second, cfg.Instruments.StopTimeout)

	// Driver config
	assert.Equal(t, 30*time.Second, cfg.Driver.Timeout)
	assert.Equal(t, 3, cfg.Driver.Retries)

	// Inspector config
	assert.Equal(t, "ws://localhost:27753/devtools", cfg.Inspector.Address)

	// Logging config
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.False(t, cfg.Logging.Development)

	// Rate limit config
	assert.Equal(t, 100, cfg.RateLimit.RequestsPerSecond)
	assert.Equal(t, 200, cfg.RateLimit.Burst)
	assert.True(t, cfg.RateLimit.Enabled)
}

func TestLoadWithEnvironmentVariables(t *testing.T) {
	envVars := map[string]string{
		"PORT":                     "5555",
		"HOST":                     "127.0.0.1",
		"IOS_SDKS":                 "8.4,9.1",
		"IOS_DEFAULT_SDK":          "9.1",
		"SDK_PROBE":                "false",
		"INSTRUMENTS_COMMAND":      "/usr/bin/instruments",
		"INSTRUMENTS_ARGS":         "-t,Automation",
		"INSTRUMENTS_STOP_TIMEOUT": "3s",
		"DRIVER_TIMEOUT":           "5s",
		"DRIVER_RETRIES":           "1",
		"INSPECTOR_ADDR":           "ws://127.0.0.1:9222/devtools",
		"APP_CATALOG":              "/opt/apps/*.yaml",
		"LOG_LEVEL":                "debug",
		"LOG_DEV":                  "true",
		"RATE_LIMIT_ENABLED":       "false",
	}

	for key, value := range envVars {
		t.Setenv(key, value)
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 5555, cfg.Server.Port)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)

	assert.Equal(t, []string{"8.4", "9.1"}, cfg.Host.SDKs)
	assert.Equal(t, "9.1", cfg.Host.DefaultSDK)
	assert.False(t, cfg.Host.Probe)

	assert.Equal(t, "/usr/bin/instruments", cfg.Instruments.Command)
	assert.Equal(t, []string{"-t", "Automation"}, cfg.Instruments.Args)
	assert.Equal(t, 3*time.Second, cfg.Instruments.StopTimeout)

	assert.Equal(t, 5*time.Second, cfg.Driver.Timeout)
	assert.Equal(t, 1, cfg.Driver.Retries)

	assert.Equal(t, "ws://127.0.0.1:9222/devtools", cfg.Inspector.Address)
	assert.Equal(t, "/opt/apps/*.yaml", cfg.Catalog.Pattern)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Development)
	assert.False(t, cfg.RateLimit.Enabled)
}

func TestLoadRejectsMalformedValues(t *testing.T) {
	t.Setenv("PORT", "not-a-port")

	_, err := Load()
	assert.Error(t, err)

	// LoadOrDefault falls back instead of failing
	cfg := LoadOrDefault()
	assert.Equal(t, 4444, cfg.Server.Port)
}

func TestLoggingConfig(t *testing.T) {
	tests := []struct {
		name      string
		level     string
		dev       string
		wantLevel string
		wantDev   bool
	}{
		{
			name:      "default values",
			wantLevel: "info",
			wantDev:   false,
		},
		{
			name:      "debug level",
			level:     "debug",
			wantLevel: "debug",
			wantDev:   false,
		},
		{
			name:      "development mode",
			dev:       "true",
			wantLevel: "info",
			wantDev:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Unsetenv("LOG_LEVEL")
			os.Unsetenv("LOG_DEV")

			if tt.level != "" {
				require.NoError(t, os.Setenv("LOG_LEVEL", tt.level))
				defer os.Unsetenv("LOG_LEVEL")
			}
			if tt.dev != "" {
				require.NoError(t, os.Setenv("LOG_DEV", tt.dev))
				defer os.Unsetenv("LOG_DEV")
			}

			cfg := LoadOrDefault()

			assert.Equal(t, tt.wantLevel, cfg.Logging.Level)
			assert.Equal(t, tt.wantDev, cfg.Logging.Development)
		})
	}
}
