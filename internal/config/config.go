package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the application configuration
type Config struct {
	Library  LibraryConfig  `toml:"library"`
	Database DatabaseConfig `toml:"database"`
	Playback PlaybackConfig `toml:"playback"`
	Session  SessionConfig  `toml:"session"`
	Logging  LoggingConfig  `toml:"logging"`
}

// LibraryConfig contains music library configuration
type LibraryConfig struct {
	Folders          []string `toml:"folders"`
	SupportedFormats []string `toml:"supported_formats"`
	WatchForChanges  bool     `toml:"watch_for_changes"`
	ScanOnStartup    bool     `toml:"scan_on_startup"`
}

// DatabaseConfig contains database-related configuration
type DatabaseConfig struct {
	Path string `toml:"path"`
}

// PlaybackConfig contains playback behavior configuration
type PlaybackConfig struct {
	Volume float64 `toml:"volume"`
	// RestartWindowSeconds is how far into a track "previous" restarts the
	// current track instead of moving the cursor back.
	RestartWindowSeconds float64 `toml:"restart_window_seconds"`
}

// SessionConfig contains session snapshot/restore configuration. The
// staleness window and match-ratio threshold are tunable rather than
// hard-coded; the defaults mirror long-standing behavior.
type SessionConfig struct {
	StorePath           string  `toml:"store_path"`
	SaveIntervalSeconds int     `toml:"save_interval_seconds"`
	StalenessDays       int     `toml:"staleness_days"`
	MinMatchRatio       float64 `toml:"min_match_ratio"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
	File   string `toml:"file"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Library: LibraryConfig{
			Folders:          []string{"./music"},
			SupportedFormats: []string{".flac", ".mp3", ".wav", ".m4a"},
			WatchForChanges:  true,
			ScanOnStartup:    true,
		},
		Database: DatabaseConfig{
			Path: "./cadenza.db",
		},
		Playback: PlaybackConfig{
			Volume:               1.0,
			RestartWindowSeconds: 3,
		},
		Session: SessionConfig{
			StorePath:           "./cadenza-session.db",
			SaveIntervalSeconds: 30,
			StalenessDays:       7,
			MinMatchRatio:       0.5,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			File:   "",
		},
	}
}

// LoadConfig loads configuration from a TOML file
func LoadConfig(configPath string) (*Config, error) {
	// Start with defaults
	cfg := DefaultConfig()

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		// Config file doesn't exist, create it with defaults
		if err := cfg.SaveToFile(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config file: %w", err)
		}
		fmt.Printf("Created default configuration file at: %s\n", configPath)
		return cfg, nil
	}

	// Load from file
	if _, err := toml.DecodeFile(configPath, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// SaveToFile saves the configuration to a TOML file
func (c *Config) SaveToFile(configPath string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Create or open file
	file, err := os.Create(configPath)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	// Write header comment
	header := `# Cadenza Music Player Configuration
# This file contains all configuration options for the Cadenza player.
# Edit the values below to customize your library and playback settings.

`
	if _, err := file.WriteString(header); err != nil {
		return fmt.Errorf("failed to write config header: %w", err)
	}

	// Encode configuration to TOML
	encoder := toml.NewEncoder(file)
	if err := encoder.Encode(c); err != nil {
		return fmt.Errorf("failed to encode config to TOML: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Validate library config
	if len(c.Library.Folders) == 0 {
		return fmt.Errorf("at least one library folder must be configured")
	}
	for _, folder := range c.Library.Folders {
		if folder == "" {
			return fmt.Errorf("library folder path cannot be empty")
		}
	}
	if len(c.Library.SupportedFormats) == 0 {
		return fmt.Errorf("at least one supported audio format must be specified")
	}

	// Validate database config
	if c.Database.Path == "" {
		return fmt.Errorf("database path cannot be empty")
	}

	// Validate playback config
	if c.Playback.Volume < 0 || c.Playback.Volume > 1 {
		return fmt.Errorf("playback volume must be between 0.0 and 1.0")
	}
	if c.Playback.RestartWindowSeconds < 0 {
		return fmt.Errorf("playback restart window must not be negative")
	}

	// Validate session config
	if c.Session.StorePath == "" {
		return fmt.Errorf("session store path cannot be empty")
	}
	if c.Session.SaveIntervalSeconds < 1 {
		return fmt.Errorf("session save interval must be at least 1 second")
	}
	if c.Session.StalenessDays < 1 {
		return fmt.Errorf("session staleness window must be at least 1 day")
	}
	if c.Session.MinMatchRatio < 0 || c.Session.MinMatchRatio > 1 {
		return fmt.Errorf("session match ratio must be between 0.0 and 1.0")
	}

	// Validate logging config
	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	validLogFormats := map[string]bool{
		"text": true, "json": true,
	}
	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format: %s (must be text or json)", c.Logging.Format)
	}

	return nil
}

// IsFormatSupported checks if an audio format is supported
func (c *Config) IsFormatSupported(format string) bool {
	for _, supported := range c.Library.SupportedFormats {
		if supported == format {
			return true
		}
	}
	return false
}
