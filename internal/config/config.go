// Package config loads the arena configuration from the environment.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

type AppConfig struct {
	// Engine commands, split shell-style on whitespace.
	WhiteEngineCmd string
	BlackEngineCmd string

	// Optional per-engine settings files (YAML).
	WhiteSettingsPath string
	BlackSettingsPath string

	Variant     string
	TimeControl string
	MaxPlies    int

	HeartbeatTimeout time.Duration

	RedisURL    string
	DatabaseURL string
	RecordTTL   time.Duration
}

func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		Variant:          "standard",
		TimeControl:      "none",
		HeartbeatTimeout: 10 * time.Second,
		RecordTTL:        24 * time.Hour,
	}

	cfg.WhiteEngineCmd = strings.TrimSpace(os.Getenv("WHITE_ENGINE_CMD"))
	cfg.BlackEngineCmd = strings.TrimSpace(os.Getenv("BLACK_ENGINE_CMD"))
	cfg.WhiteSettingsPath = strings.TrimSpace(os.Getenv("WHITE_ENGINE_SETTINGS"))
	cfg.BlackSettingsPath = strings.TrimSpace(os.Getenv("BLACK_ENGINE_SETTINGS"))

	if v := strings.TrimSpace(os.Getenv("VARIANT")); v != "" {
		cfg.Variant = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv("TIME_CONTROL")); v != "" {
		cfg.TimeControl = v
	}
	if v := strings.TrimSpace(os.Getenv("MAX_PLIES")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxPlies = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("HEARTBEAT_TIMEOUT")); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.HeartbeatTimeout = d
		}
	}

	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if v := strings.TrimSpace(os.Getenv("RECORD_TTL")); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.RecordTTL = d
		}
	}

	if cfg.WhiteEngineCmd == "" {
		return nil, errors.New("WHITE_ENGINE_CMD is required")
	}
	if cfg.BlackEngineCmd == "" {
		return nil, errors.New("BLACK_ENGINE_CMD is required")
	}
	switch cfg.Variant {
	case "standard", "crazyhouse":
	default:
		return nil, errors.New("VARIANT must be standard or crazyhouse")
	}
	return cfg, nil
}
