// Package config loads taskctl configuration from a JSON file with
// environment overrides. Configuration lives at
// {config-dir}/taskctl/config.json; the database and logs live under
// the data directory unless overridden.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete taskctl configuration.
type Config struct {
	Database  DatabaseConfig  `mapstructure:"database"`
	Planner   PlannerConfig   `mapstructure:"planner"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	PR        PRConfig        `mapstructure:"pr"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// DatabaseConfig controls where the store lives.
type DatabaseConfig struct {
	// Path is the sqlite database file. Empty means {data-dir}/taskctl.db.
	// Overridable via TASKCTL_DB_PATH. Supports ~ for home expansion.
	Path string `mapstructure:"path"`
}

// PlannerConfig controls the LLM planner.
type PlannerConfig struct {
	// APIKey authenticates against the Anthropic API. The
	// ANTHROPIC_API_KEY environment variable takes precedence.
	APIKey string `mapstructure:"api_key"`
	// Model is the model used for plan decomposition.
	Model string `mapstructure:"model"`
	// MaxRetries is the retry budget for transient model call failures.
	MaxRetries int `mapstructure:"max_retries"`
	// TimeoutSeconds bounds a single decomposition call.
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// SchedulerConfig controls task scheduling defaults.
type SchedulerConfig struct {
	// MaxConcurrent is the default concurrency cap for new projects.
	MaxConcurrent int `mapstructure:"max_concurrent"`
	// WorktreeDir is where slot worktrees are created. Empty means
	// ".taskctl/worktrees" relative to the repository root. Supports ~.
	WorktreeDir string `mapstructure:"worktree_dir"`
}

// PRConfig controls pull request creation.
type PRConfig struct {
	// Draft creates PRs as drafts by default.
	Draft bool `mapstructure:"draft"`
	// Template is a custom PR body template using Go text/template syntax.
	Template string `mapstructure:"template"`
}

// LoggingConfig controls the debug log.
type LoggingConfig struct {
	// Enabled controls whether file logging is on.
	Enabled bool `mapstructure:"enabled"`
	// Level is the log level: "debug", "info", "warn", "error".
	// Overridable via TASKCTL_LOG_LEVEL.
	Level string `mapstructure:"level"`
	// MaxSizeMB is the log file size in megabytes before rotation.
	MaxSizeMB int `mapstructure:"max_size_mb"`
	// MaxBackups is the number of rotated log files to keep.
	MaxBackups int `mapstructure:"max_backups"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path: "", // Empty means use default: {data-dir}/taskctl.db
		},
		Planner: PlannerConfig{
			Model:          "claude-sonnet-4-5",
			MaxRetries:     3,
			TimeoutSeconds: 180,
		},
		Scheduler: SchedulerConfig{
			MaxConcurrent: 2,
			WorktreeDir:   "", // Empty means use default: .taskctl/worktrees
		},
		PR: PRConfig{
			Draft:    true,
			Template: "",
		},
		Logging: LoggingConfig{
			Enabled:    true,
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
	}
}

// SetDefaults registers default values and env bindings with viper.
func SetDefaults() {
	defaults := Default()

	viper.SetDefault("database.path", defaults.Database.Path)

	viper.SetDefault("planner.api_key", defaults.Planner.APIKey)
	viper.SetDefault("planner.model", defaults.Planner.Model)
	viper.SetDefault("planner.max_retries", defaults.Planner.MaxRetries)
	viper.SetDefault("planner.timeout_seconds", defaults.Planner.TimeoutSeconds)

	viper.SetDefault("scheduler.max_concurrent", defaults.Scheduler.MaxConcurrent)
	viper.SetDefault("scheduler.worktree_dir", defaults.Scheduler.WorktreeDir)

	viper.SetDefault("pr.draft", defaults.PR.Draft)
	viper.SetDefault("pr.template", defaults.PR.Template)

	viper.SetDefault("logging.enabled", defaults.Logging.Enabled)
	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.max_size_mb", defaults.Logging.MaxSizeMB)
	viper.SetDefault("logging.max_backups", defaults.Logging.MaxBackups)

	// Env overrides. Errors only occur for empty bindings.
	_ = viper.BindEnv("database.path", "TASKCTL_DB_PATH")
	_ = viper.BindEnv("logging.level", "TASKCTL_LOG_LEVEL")
}

// Load reads the configuration from viper into a Config struct and
// validates it.
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// Get returns the current configuration, falling back to defaults when
// loading fails.
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Timeout returns the planner call timeout as a time.Duration.
func (c *PlannerConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// ResolveDatabasePath returns the resolved database file path.
func (d *DatabaseConfig) ResolveDatabasePath() string {
	if d.Path == "" {
		return filepath.Join(DataDir(), "taskctl.db")
	}
	return expandHome(d.Path)
}

// ResolveWorktreeDir returns the resolved worktree directory. If
// WorktreeDir is empty or relative, it is resolved against repoRoot.
func (s *SchedulerConfig) ResolveWorktreeDir(repoRoot string) string {
	if s.WorktreeDir == "" {
		return filepath.Join(repoRoot, ".taskctl", "worktrees")
	}
	path := expandHome(s.WorktreeDir)
	if !filepath.IsAbs(path) {
		path = filepath.Join(repoRoot, path)
	}
	return path
}

func expandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path[2:])
		}
	} else if path == "~" {
		home, err := os.UserHomeDir()
		if err == nil {
			return home
		}
	}
	return path
}

// ConfigDir returns the path to the user's config directory.
func ConfigDir() string {
	// Check XDG_CONFIG_HOME first
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "taskctl")
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".taskctl"
	}
	return filepath.Join(dir, "taskctl")
}

// ConfigFile returns the path to the config file.
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.json")
}

// DataDir returns the path to the user's data directory, where the
// database and logs live.
func DataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "taskctl")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".taskctl"
	}
	return filepath.Join(home, ".local", "share", "taskctl")
}

// LogDir returns the directory where rotated log files live.
func LogDir() string {
	return filepath.Join(DataDir(), "logs")
}
