// Package config handles the polterpack.config.{yaml,yml,json} project settings
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/poltergeist/polterpack/pkg/types"
)

// FileNames lists the settings files in lookup order
var FileNames = []string{"polterpack.config.yaml", "polterpack.config.yml", "polterpack.config.json"}

// Config holds the project settings
type Config struct {
	Bundler string `json:"bundler,omitempty" yaml:"bundler,omitempty"`
	Cwd     string `json:"cwd,omitempty" yaml:"cwd,omitempty"`
	Src     string `json:"src,omitempty" yaml:"src,omitempty"`
	Dest    string `json:"dest,omitempty" yaml:"dest,omitempty"`
	Dev     bool   `json:"dev,omitempty" yaml:"dev,omitempty"`
	Nollup  bool   `json:"nollup,omitempty" yaml:"nollup,omitempty"`

	Webpack       WebpackConfig       `json:"webpack" yaml:"webpack"`
	Logging       LoggingConfig       `json:"logging" yaml:"logging"`
	Notifications NotificationsConfig `json:"notifications" yaml:"notifications"`
}

// WebpackConfig configures the webpack bridge
type WebpackConfig struct {
	Node        string `json:"node,omitempty" yaml:"node,omitempty"`
	ExitOnError bool   `json:"exitOnError,omitempty" yaml:"exitOnError,omitempty"`
}

// LoggingConfig configures the logger
type LoggingConfig struct {
	Level string `json:"level,omitempty" yaml:"level,omitempty"`
	File  string `json:"file,omitempty" yaml:"file,omitempty"`
}

// NotificationsConfig configures desktop notifications during dev
type NotificationsConfig struct {
	Enabled *bool `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	Sound   bool  `json:"sound,omitempty" yaml:"sound,omitempty"`
}

// NotificationsEnabled reports whether notifications are on; they default to on
func (c *Config) NotificationsEnabled() bool {
	return c.Notifications.Enabled == nil || *c.Notifications.Enabled
}

// Manager handles configuration operations
type Manager struct{}

// NewManager creates a new configuration manager
func NewManager() *Manager {
	return &Manager{}
}

// Default returns the settings used without a settings file
func Default() *Config {
	return &Config{
		Cwd:     ".",
		Src:     "src",
		Logging: LoggingConfig{Level: "info"},
	}
}

// FindConfig returns the first settings file in dir, or "" when there is none
func (m *Manager) FindConfig(dir string) string {
	for _, name := range FileNames {
		path := filepath.Join(dir, name)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path
		}
	}
	return ""
}

// LoadConfig loads settings from a JSON or YAML file on top of the defaults
func (m *Manager) LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()

	if filepath.Ext(path) == ".json" {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config as JSON: %w", err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config as YAML: %w", err)
	}

	if err := m.ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ValidateConfig validates a configuration
func (m *Manager) ValidateConfig(cfg *Config) error {
	if cfg.Bundler != "" && !types.Bundler(cfg.Bundler).IsValid() {
		return fmt.Errorf("invalid bundler: %s", cfg.Bundler)
	}

	switch cfg.Logging.Level {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid log level: %s", cfg.Logging.Level)
	}

	if cfg.Nollup && cfg.Bundler == string(types.BundlerWebpack) {
		return fmt.Errorf("nollup requires the rollup bundler")
	}
	return nil
}

// ResolveDest returns the destination directory; dev and production builds
// default to separate directories
func (c *Config) ResolveDest() string {
	if c.Dest != "" {
		return c.Dest
	}
	if c.Dev {
		return filepath.Join("__sapper__", "dev")
	}
	return filepath.Join("__sapper__", "build")
}
