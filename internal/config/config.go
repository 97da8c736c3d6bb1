// Package config loads runtime configuration for the gridharvest CLI and
// status server.
//
// Precedence, highest first:
//  1. Runtime overrides passed to Load
//  2. Environment variables (GRIDHARVEST_ prefix)
//  3. Config file (gridharvest.yaml in ~/.gridharvest or the working dir)
//  4. Built-in defaults
package config

import (
	"os"
	"path/filepath"
	"time"
)

// Config is the fully resolved runtime configuration.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Logging LoggingConfig `mapstructure:"logging"`
	Data    DataConfig    `mapstructure:"data"`
}

// ServerConfig configures the status HTTP server.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `mapstructure:"level"`

	// Profile selects the output encoding: "structured" (JSON) or
	// "console" (human-readable).
	Profile string `mapstructure:"profile"`
}

// DataConfig configures local data locations.
type DataConfig struct {
	// Dir is the app data root holding the submission registry.
	// Default: ~/.gridharvest.
	Dir string `mapstructure:"dir"`

	// Workspace is the local directory collected artifacts land in.
	// Default: <dir>/collections.
	Workspace string `mapstructure:"workspace"`
}

// RegistryDir returns the submission registry directory.
func (c *Config) RegistryDir() string {
	return filepath.Join(c.Data.Dir, "submissions")
}

// WorkspaceDir returns the artifact collection workspace.
func (c *Config) WorkspaceDir() string {
	if c.Data.Workspace != "" {
		return c.Data.Workspace
	}
	return filepath.Join(c.Data.Dir, "collections")
}

// defaultDataDir resolves the default app data root.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".gridharvest"
	}
	return filepath.Join(home, ".gridharvest")
}
