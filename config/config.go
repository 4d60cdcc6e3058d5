package config

import (
	"os"
	"strconv"
	"strings"
)

// global config instance
var global *Config

// Config holds process-wide configuration loaded from the environment.
// Sync tuning knobs live here; per-exchange settings live in the store.
type Config struct {
	APIServerPort       int
	JWTSecret           string
	RegistrationEnabled bool

	// Sync tuning
	SyncMaxChunkDays int // max days covered by a single fetch chunk
	SyncPageDelayMs  int // delay between paginated requests
}

// Init initializes global configuration from environment variables
func Init() {
	cfg := &Config{
		APIServerPort:       8080,
		RegistrationEnabled: true,
		SyncMaxChunkDays:    7,
		SyncPageDelayMs:     100,
	}

	if v := os.Getenv("JWT_SECRET"); v != "" {
		cfg.JWTSecret = strings.TrimSpace(v)
	}
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = "default-jwt-secret-change-in-production"
	}

	if v := os.Getenv("REGISTRATION_ENABLED"); v != "" {
		cfg.RegistrationEnabled = strings.ToLower(v) == "true"
	}

	if v := os.Getenv("API_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			cfg.APIServerPort = port
		}
	}

	if v := os.Getenv("SYNC_MAX_CHUNK_DAYS"); v != "" {
		if days, err := strconv.Atoi(v); err == nil && days > 0 {
			cfg.SyncMaxChunkDays = days
		}
	}

	if v := os.Getenv("SYNC_PAGE_DELAY_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms >= 0 {
			cfg.SyncPageDelayMs = ms
		}
	}

	global = cfg
}

// Get returns the global configuration
func Get() *Config {
	if global == nil {
		Init()
	}
	return global
}
