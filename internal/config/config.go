// Package config manages dcb configuration and the .dcb directory structure.
// It handles loading, saving, and initializing the repository configuration.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

const (
	DCBDir      = ".dcb"
	ConfigFile  = "config"
	SessionFile = "session.db"

	DefaultBackend   = "sqlite"
	DefaultDatabase  = "inventory.db"
	DefaultLogLevel  = "warn"
	DefaultLogFormat = "text"
)

// Config represents the dcb configuration
type Config struct {
	Backend    string `toml:"backend"`     // Inventory backend: sqlite, bbolt or memory
	Database   string `toml:"database"`    // Inventory path, relative to the .dcb directory
	Session    string `toml:"session"`     // Session store path, relative to the .dcb directory
	Author     string `toml:"author"`      // Author recorded on commits
	RootBranch string `toml:"root_branch"` // Name of the root branch
	LogLevel   string `toml:"log_level"`   // debug, info, warn, error
	LogFormat  string `toml:"log_format"`  // text or json
	path       string // path to .dcb directory
}

// FindRoot finds the .dcb directory by walking up from current directory
func FindRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		dcbPath := filepath.Join(dir, DCBDir)
		if info, err := os.Stat(dcbPath); err == nil && info.IsDir() {
			return dcbPath, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("not a dcb repository (or any parent up to root)")
		}
		dir = parent
	}
}

// Load loads the configuration from the .dcb directory
func Load() (*Config, error) {
	dcbPath, err := FindRoot()
	if err != nil {
		return nil, err
	}
	return LoadFrom(dcbPath)
}

// LoadFrom loads the configuration from a specific .dcb directory
func LoadFrom(dcbPath string) (*Config, error) {
	configPath := filepath.Join(dcbPath, ConfigFile)
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.path = dcbPath
	cfg.applyDefaults()
	cfg.applyEnv()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Backend == "" {
		c.Backend = DefaultBackend
	}
	if c.Database == "" {
		c.Database = DefaultDatabase
	}
	if c.Session == "" {
		c.Session = SessionFile
	}
	if c.RootBranch == "" {
		c.RootBranch = "main"
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.LogFormat == "" {
		c.LogFormat = DefaultLogFormat
	}
}

// applyEnv lets DCB_AUTHOR and DCB_LOG_LEVEL override the file
func (c *Config) applyEnv() {
	if v := os.Getenv("DCB_AUTHOR"); v != "" {
		c.Author = v
	}
	if v := os.Getenv("DCB_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if c.Author == "" {
		c.Author = os.Getenv("USER")
	}
}

// Save saves the configuration to disk
func (c *Config) Save() error {
	configPath := filepath.Join(c.path, ConfigFile)
	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	return os.WriteFile(configPath, data, 0644)
}

// Path returns the path to the .dcb directory
func (c *Config) Path() string {
	return c.path
}

// DatabasePath returns the path to the inventory database
func (c *Config) DatabasePath() string {
	return c.resolve(c.Database)
}

// SessionPath returns the path to the session store
func (c *Config) SessionPath() string {
	return c.resolve(c.Session)
}

func (c *Config) resolve(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.path, p)
}

// Level returns the slog level named by LogLevel
func (c *Config) Level() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "error":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}

// Initialize creates a new .dcb directory under dir with initial configuration
func Initialize(dir, backend string) (*Config, error) {
	dcbPath := filepath.Join(dir, DCBDir)

	// Check if already initialized
	if _, err := os.Stat(dcbPath); err == nil {
		return nil, fmt.Errorf("dcb repository already exists")
	}

	if err := os.MkdirAll(dcbPath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create .dcb directory: %w", err)
	}

	cfg := &Config{Backend: backend, path: dcbPath}
	cfg.applyDefaults()
	if cfg.Backend == "bbolt" && cfg.Database == DefaultDatabase {
		cfg.Database = "inventory.bolt"
	}

	if err := cfg.Save(); err != nil {
		// Cleanup on failure
		os.RemoveAll(dcbPath)
		return nil, err
	}

	cfg.applyEnv()
	return cfg, nil
}
