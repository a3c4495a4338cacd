package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Defaults applied when a field is absent from config.json.
const (
	DefaultInheritLastN    = 10
	DefaultRelaxIterations = 60
)

// Config represents the flat sidebar configuration stored at
// ~/.sidebar/config.json.
type Config struct {
	Version string `json:"version"`

	// InheritLastN is how many of the parent's most recent local exchanges
	// a spawned child inherits by default. Negative means all.
	InheritLastN int `json:"inherit_last_n"`

	// AutoPlace skips the staging cushion and seats new graph points
	// directly on the board.
	AutoPlace bool `json:"auto_place"`

	// RelaxIterations is the default force-directed iteration count per
	// render.
	RelaxIterations int `json:"relax_iterations"`

	// DBPath overrides the default database location when set.
	DBPath string `json:"db_path,omitempty"`
}

// DefaultConfig returns a config with every default filled in.
func DefaultConfig() *Config {
	return &Config{
		Version:         "1",
		InheritLastN:    DefaultInheritLastN,
		RelaxIterations: DefaultRelaxIterations,
	}
}

// ConfigDir returns the sidebar configuration directory (~/.sidebar).
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".sidebar"), nil
}

// LoadConfig reads config.json from dir. A missing file is not an error:
// defaults are returned so a fresh install works without setup.
func LoadConfig(dir string) (*Config, error) {
	path := filepath.Join(dir, "config.json")
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return DefaultConfig(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.RelaxIterations <= 0 {
		cfg.RelaxIterations = DefaultRelaxIterations
	}
	return cfg, nil
}

// SaveConfig writes config.json to dir, creating the directory if needed.
func SaveConfig(dir string, cfg *Config) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}
