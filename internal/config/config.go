package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/BurntSushi/toml"
)

// Config holds all sprout configuration.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Database DatabaseConfig `toml:"database"`
	Decay    DecayConfig    `toml:"decay"`
}

type ServerConfig struct {
	Bind string `toml:"bind"`
	Port int    `toml:"port"`
}

type DatabaseConfig struct {
	Path string `toml:"path"`
}

// DecayConfig tunes the decay scheduler and cycle batching.
type DecayConfig struct {
	FullIntervalHours   int `toml:"full_interval_hours"`   // cadence for the full rule sweep
	UrgentIntervalMins  int `toml:"urgent_interval_mins"`  // cadence for urgent-flagged rules
	BatchSize           int `toml:"batch_size"`            // users processed between yields
	RecentWindowDays    int `toml:"recent_window_days"`    // how far back a cycle scans sessions
	CycleTimeoutMinutes int `toml:"cycle_timeout_minutes"` // soft deadline per cycle
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Bind: "127.0.0.1",
			Port: 38384,
		},
		Database: DatabaseConfig{
			Path: "", // resolved at runtime via store.DefaultDBPath()
		},
		Decay: DecayConfig{
			FullIntervalHours:   24,
			UrgentIntervalMins:  60,
			BatchSize:           50,
			RecentWindowDays:    90,
			CycleTimeoutMinutes: 30,
		},
	}
}

// Load reads TOML config from path, layered over defaults. A missing file
// is not an error — defaults apply. Environment variables SPROUT_DB,
// SPROUT_BIND and SPROUT_PORT override whatever the file says.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if _, err := toml.DecodeFile(path, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	if v := os.Getenv("SPROUT_DB"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("SPROUT_BIND"); v != "" {
		cfg.Server.Bind = v
	}
	if v := os.Getenv("SPROUT_PORT"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("SPROUT_PORT: %w", err)
		}
		cfg.Server.Port = p
	}

	return cfg, nil
}

// DefaultPath returns the default config location: ~/.sprout/config.toml
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".sprout", "config.toml")
}

// ListenAddr returns the bind:port address string.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Bind, c.Server.Port)
}
