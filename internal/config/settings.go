// Package config loads runtime settings from the environment and the
// endpoint inventory from a JSON file, with hot reload on file change.
package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Settings is the engine's runtime configuration, read once at startup.
type Settings struct {
	ListenAddr      string
	CheckInterval   time.Duration
	CleanupInterval time.Duration
	HistoryMaxAge   time.Duration
	LogLevel        string
	LogFormat       string
	EndpointsFile   string
	Tenant          string
}

const (
	DefaultListenAddr      = ":8080"
	DefaultCheckInterval   = 30 * time.Second
	DefaultCleanupInterval = time.Hour
	DefaultHistoryMaxAge   = 24 * time.Hour
	DefaultEndpointsFile   = "endpoints.json"
	DefaultTenant          = "default"
)

// Load reads settings from the environment. A .env file in the working
// directory is applied first when present; real environment variables
// win over .env entries.
func Load() Settings {
	if err := godotenv.Load(); err == nil {
		log.Debug().Msg("Loaded environment from .env file")
	}

	return Settings{
		ListenAddr:      envString("CHAINPULSE_LISTEN_ADDR", DefaultListenAddr),
		CheckInterval:   envDuration("CHAINPULSE_CHECK_INTERVAL", DefaultCheckInterval),
		CleanupInterval: envDuration("CHAINPULSE_CLEANUP_INTERVAL", DefaultCleanupInterval),
		HistoryMaxAge:   envDuration("CHAINPULSE_HISTORY_MAX_AGE", DefaultHistoryMaxAge),
		LogLevel:        envString("CHAINPULSE_LOG_LEVEL", "info"),
		LogFormat:       envString("CHAINPULSE_LOG_FORMAT", "auto"),
		EndpointsFile:   envString("CHAINPULSE_ENDPOINTS_FILE", DefaultEndpointsFile),
		Tenant:          envString("CHAINPULSE_TENANT", DefaultTenant),
	}
}

func envString(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		log.Warn().
			Str("key", key).
			Str("value", value).
			Dur("fallback", fallback).
			Msg("Invalid duration in environment, using fallback")
		return fallback
	}
	return parsed
}
