// Package config provides centralized configuration management using Viper.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gosimple/slug"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration values for taskloop.
type Config struct {
	AgentCommand   string `mapstructure:"agent_command" yaml:"agent_command"`
	Channel        string `mapstructure:"channel" yaml:"channel"`
	User           string `mapstructure:"user" yaml:"user"`
	Checklist      string `mapstructure:"checklist" yaml:"checklist"`
	LockPath       string `mapstructure:"lock_path" yaml:"lock_path"`
	LogFile        string `mapstructure:"log_file" yaml:"log_file"`
	LogLevel       string `mapstructure:"log_level" yaml:"log_level"`
	BatchSize      int    `mapstructure:"batch_size" yaml:"batch_size"`
	MaxSessions    int    `mapstructure:"max_sessions" yaml:"max_sessions"`
	TimeoutMinutes int    `mapstructure:"session_timeout_minutes" yaml:"session_timeout_minutes"`
	BackoffSeconds int    `mapstructure:"backoff_seconds" yaml:"backoff_seconds"`
	DryRun         bool   `mapstructure:"dry_run" yaml:"dry_run"`
}

// Load loads configuration with full precedence:
// CLI flags > ENV vars > project config > XDG global config > defaults
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigName("taskloop")

	// Set defaults (channel and user have no defaults - they are required)
	v.SetDefault("agent_command", "agentchat")
	v.SetDefault("checklist", "TODO.md")
	v.SetDefault("lock_path", "")
	v.SetDefault("log_file", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("batch_size", 5)
	v.SetDefault("max_sessions", 50)
	v.SetDefault("session_timeout_minutes", 30)
	v.SetDefault("backoff_seconds", 10)
	v.SetDefault("dry_run", false)

	// Setup ENV binding with TASKLOOP_ prefix
	v.SetEnvPrefix("TASKLOOP")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Explicit ENV bindings for better bool/int parsing
	bindings := map[string]string{
		"agent_command":           "TASKLOOP_AGENT_COMMAND",
		"channel":                 "TASKLOOP_CHANNEL",
		"user":                    "TASKLOOP_USER",
		"checklist":               "TASKLOOP_CHECKLIST",
		"lock_path":               "TASKLOOP_LOCK_PATH",
		"log_file":                "TASKLOOP_LOG_FILE",
		"log_level":               "TASKLOOP_LOG_LEVEL",
		"batch_size":              "TASKLOOP_BATCH_SIZE",
		"max_sessions":            "TASKLOOP_MAX_SESSIONS",
		"session_timeout_minutes": "TASKLOOP_SESSION_TIMEOUT_MINUTES",
		"backoff_seconds":         "TASKLOOP_BACKOFF_SECONDS",
		"dry_run":                 "TASKLOOP_DRY_RUN",
	}
	for key, env := range bindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("binding %s env: %w", key, err)
		}
	}

	// Load global config first (if exists)
	globalPath := GlobalPath()
	if fileExists(globalPath) {
		v.SetConfigFile(globalPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading global config: %w", err)
		}
	}

	// Merge project config on top (if exists)
	projectPath := ProjectPath()
	if fileExists(projectPath) {
		v.SetConfigFile(projectPath)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("merging project config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, nil
}

// Validate checks required fields and value ranges.
func (c *Config) Validate() error {
	if c.Channel == "" {
		return fmt.Errorf("channel is required (set channel in taskloop.yml or TASKLOOP_CHANNEL)")
	}
	if c.User == "" {
		return fmt.Errorf("user is required (set user in taskloop.yml or TASKLOOP_USER)")
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("batch_size must be >= 1, got %d", c.BatchSize)
	}
	if c.MaxSessions < 1 {
		return fmt.Errorf("max_sessions must be >= 1, got %d", c.MaxSessions)
	}
	if c.TimeoutMinutes < 1 {
		return fmt.Errorf("session_timeout_minutes must be >= 1, got %d", c.TimeoutMinutes)
	}
	return nil
}

// ResolvedLockPath returns the configured lock path, or a default derived
// from the checklist filename under the system temp directory.
func (c *Config) ResolvedLockPath() string {
	if c.LockPath != "" {
		return c.LockPath
	}
	return filepath.Join(os.TempDir(), fmt.Sprintf("taskloop-%s.lock", checklistSlug(c.Checklist)))
}

// ResolvedLogFile returns the configured log file, or a default derived from
// the checklist filename under the system temp directory.
func (c *Config) ResolvedLogFile() string {
	if c.LogFile != "" {
		return c.LogFile
	}
	return filepath.Join(os.TempDir(), fmt.Sprintf("taskloop-%s.log", checklistSlug(c.Checklist)))
}

func checklistSlug(path string) string {
	base := filepath.Base(path)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	s := slug.Make(stem)
	if s == "" {
		s = "checklist"
	}
	return s
}

// Exists returns true if any config file exists (global or project).
func Exists() bool {
	return fileExists(GlobalPath()) || fileExists(ProjectPath())
}

// GlobalPath returns the XDG global config path.
// Returns ~/.config/taskloop/taskloop.yml or $XDG_CONFIG_HOME/taskloop/taskloop.yml.
func GlobalPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "taskloop", "taskloop.yml")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "taskloop", "taskloop.yml")
}

// ProjectPath returns the project-local config path.
// Returns ./taskloop.yml in the current working directory.
func ProjectPath() string {
	return "taskloop.yml"
}

// WriteGlobal writes the config to the XDG global location.
func WriteGlobal(cfg *Config) error {
	path := GlobalPath()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// WriteProject writes the config to the project-local location.
func WriteProject(cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(ProjectPath(), data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// fileExists checks if a file exists.
func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
