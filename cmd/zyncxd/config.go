// config.go - Configuration management for the pool daemon.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/0xr10t/zyncx/internal/zyncx"
)

// Config represents the daemon configuration.
type Config struct {
	// HTTP server
	ListenAddr string `json:"listen_addr"`

	// File paths
	DataDir          string `json:"data_dir"`
	StatePath        string `json:"state_path"`
	VerifyingKeyPath string `json:"verifying_key_path"`

	// Compute fabric
	FabricPublicKey string `json:"fabric_public_key"` // hex ed25519 key, empty disables attestation checks

	// Engine limits
	Engine zyncx.Config `json:"engine"`

	// Logging
	LogLevel string `json:"log_level"`
	LogFile  string `json:"log_file"`

	// Rate limiting
	RateLimitBurst  int `json:"rate_limit_burst"`
	RateLimitRefill int `json:"rate_limit_refill"` // tokens per second per client

	// Persistence
	SnapshotIntervalSeconds int `json:"snapshot_interval_seconds"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		ListenAddr:              ":8545",
		DataDir:                 "data",
		StatePath:               "data/state.json",
		LogLevel:                "info",
		Engine:                  zyncx.DefaultConfig(),
		RateLimitBurst:          20,
		RateLimitRefill:         10,
		SnapshotIntervalSeconds: 60,
	}
}

// LoadConfig loads configuration from file or creates the default.
func LoadConfig(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); err == nil {
		file, err := os.Open(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open config file: %w", err)
		}
		defer file.Close()

		var config Config
		if err := json.NewDecoder(file).Decode(&config); err != nil {
			return nil, fmt.Errorf("failed to decode config file: %w", err)
		}
		return &config, nil
	}

	config := DefaultConfig()
	if err := SaveConfig(config, configPath); err != nil {
		return nil, fmt.Errorf("failed to save default config: %w", err)
	}
	return config, nil
}

// SaveConfig saves configuration to file.
func SaveConfig(config *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	file, err := os.Create(configPath)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(config); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listen_addr must be set")
	}
	if c.StatePath == "" {
		return fmt.Errorf("state_path must be set")
	}
	if c.Engine.MinAmount == 0 || c.Engine.MaxAmount == 0 {
		return fmt.Errorf("engine amount bounds must be positive")
	}
	if c.Engine.MinAmount > c.Engine.MaxAmount {
		return fmt.Errorf("engine min_amount exceeds max_amount")
	}
	if c.Engine.DefaultTimeout <= 0 {
		return fmt.Errorf("engine default_timeout must be positive")
	}
	if c.RateLimitBurst <= 0 || c.RateLimitRefill <= 0 {
		return fmt.Errorf("rate limit settings must be positive")
	}
	if c.SnapshotIntervalSeconds <= 0 {
		return fmt.Errorf("snapshot_interval_seconds must be positive")
	}
	return nil
}
