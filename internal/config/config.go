package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/satindergrewal/vibejockey/internal/lyria"
)

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

// Config holds all runtime configuration, loaded from environment variables.
type Config struct {
	// Lyria RealTime connection
	APIKey   string
	Model    string
	Endpoint string

	// Server
	Port int

	// Audio output
	SampleRate       int
	Channels         int
	StartupLatency   time.Duration // lead before the first chunk
	SchedulingMargin time.Duration // minimum distance from the device clock

	// Session behavior
	Debounce            time.Duration // quiet window before auto-apply
	LogCapacity         int           // activity log entries kept
	AutoApply           bool
	ResetOnConfigUpdate bool
	AutoConnect         bool   // connect with APIKey on startup
	PresetsFile         string // optional YAML preset library

	// Logging
	LogLevel string
	LogFile  string
}

// Load reads configuration from environment variables with sane defaults.
// A .env file in the working directory is loaded first if present.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		APIKey:   envStr("GEMINI_API_KEY", ""),
		Model:    envStr("LYRIA_MODEL", lyria.DefaultModel),
		Endpoint: envStr("LYRIA_ENDPOINT", lyria.DefaultEndpoint),

		Port: envInt("DECK_PORT", 8080),

		SampleRate:       envInt("DECK_SAMPLE_RATE", 48000),
		Channels:         envInt("DECK_CHANNELS", 2),
		StartupLatency:   envDuration("DECK_START_LATENCY_MS", 100*time.Millisecond),
		SchedulingMargin: envDuration("DECK_SCHEDULE_MARGIN_MS", 20*time.Millisecond),

		Debounce:            envDuration("DECK_DEBOUNCE_MS", 400*time.Millisecond),
		LogCapacity:         envInt("DECK_LOG_CAPACITY", 50),
		AutoApply:           envBool("DECK_AUTO_APPLY", true),
		ResetOnConfigUpdate: envBool("DECK_RESET_ON_CONFIG", true),
		AutoConnect:         envBool("DECK_AUTO_CONNECT", false),
		PresetsFile:         envStr("DECK_PRESETS_FILE", ""),

		LogLevel: envStr("DECK_LOG_LEVEL", "info"),
		LogFile:  envStr("DECK_LOG_FILE", ""),
	}
}

// Validate rejects values the audio path or session cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("DECK_SAMPLE_RATE must be positive, got %d", c.SampleRate))
	}
	if c.Channels <= 0 {
		errs = append(errs, fmt.Errorf("DECK_CHANNELS must be positive, got %d", c.Channels))
	}
	if c.StartupLatency < 0 || c.SchedulingMargin < 0 || c.Debounce < 0 {
		errs = append(errs, errors.New("durations must not be negative"))
	}
	if c.LogCapacity <= 0 {
		errs = append(errs, fmt.Errorf("DECK_LOG_CAPACITY must be positive, got %d", c.LogCapacity))
	}
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("DECK_PORT out of range: %d", c.Port))
	}
	return errors.Join(errs...)
}

// Addr is the listen address for the HTTP server.
func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

// envDuration reads a millisecond count.
func envDuration(key string, fallback time.Duration) time.Duration {
	ms := envFloat(key, float64(fallback)/float64(time.Millisecond))
	return time.Duration(ms * float64(time.Millisecond))
}
