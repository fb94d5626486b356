// Package config provides unified configuration loading for proofread.
// It supports loading from YAML files and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/dfbr/choose-your-own-adventure-world/internal/backup"
	"github.com/dfbr/choose-your-own-adventure-world/internal/story"
)

// FileName is the per-directory config file consulted after the user config.
const FileName = "proofread.yaml"

// Publish backends.
const (
	BackendJSON   = "json"
	BackendSQLite = "sqlite"
)

// ProofreadConfig contains all proofread configuration settings.
type ProofreadConfig struct {
	// StoriesDir holds one directory per story, each with a story.json.
	StoriesDir string `json:"stories_dir" yaml:"stories_dir" env:"PROOFREAD_STORIES_DIR"`

	// StateFile is the approval state document.
	StateFile string `json:"state_file" yaml:"state_file" env:"PROOFREAD_STATE_FILE"`

	// MaxDepth bounds every traversal from a story root.
	MaxDepth int `json:"max_depth" yaml:"max_depth" env:"PROOFREAD_MAX_DEPTH"`

	Logging LoggingConfig `json:"logging" yaml:"logging"`
	Publish PublishConfig `json:"publish" yaml:"publish"`
	Backup  BackupConfig  `json:"backup" yaml:"backup"`
}

// LoggingConfig configures operational and decision logging.
type LoggingConfig struct {
	// Level sets the log verbosity: "info" (default), "debug", or "trace".
	// "debug" enables decision logging next to the state file.
	Level string `json:"level" yaml:"level" env:"PROOFREAD_LOG_LEVEL"`

	// Format is "text" (default) or "json".
	Format string `json:"format" yaml:"format" env:"PROOFREAD_LOG_FORMAT"`
}

// PublishConfig configures catalog publishing.
type PublishConfig struct {
	// Backend is "json" (stories/index.json) or "sqlite".
	Backend string `json:"backend" yaml:"backend" env:"PROOFREAD_PUBLISH_BACKEND"`

	// SQLitePath is the catalog database used by the sqlite backend.
	// Relative paths resolve against StoriesDir.
	SQLitePath string `json:"sqlite_path,omitempty" yaml:"sqlite_path,omitempty" env:"PROOFREAD_PUBLISH_SQLITE_PATH"`

	// RequireApproval refuses to publish a story with unapproved nodes.
	RequireApproval bool `json:"require_approval" yaml:"require_approval" env:"PROOFREAD_REQUIRE_APPROVAL"`

	// GitCommit commits the stories directory after a publish.
	GitCommit bool `json:"git_commit" yaml:"git_commit" env:"PROOFREAD_GIT_COMMIT"`
}

// BackupConfig configures state document backups.
type BackupConfig struct {
	// Dir holds state backups. Empty means a "backups" directory next to
	// the state file.
	Dir string `json:"dir,omitempty" yaml:"dir,omitempty" env:"PROOFREAD_BACKUP_DIR"`

	// MaxCount is how many backups are retained (0 = unlimited).
	MaxCount int `json:"max_count" yaml:"max_count" env:"PROOFREAD_BACKUP_MAX_COUNT"`

	// MaxAge additionally keeps any backup younger than this ("30d", "2w",
	// "720h"). Empty disables age-based retention.
	MaxAge string `json:"max_age,omitempty" yaml:"max_age,omitempty" env:"PROOFREAD_BACKUP_MAX_AGE"`
}

// Default returns a ProofreadConfig with sensible defaults.
func Default() *ProofreadConfig {
	return &ProofreadConfig{
		StoriesDir: "stories",
		StateFile:  "state.json",
		MaxDepth:   story.DefaultMaxDepth,
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Publish: PublishConfig{
			Backend:    BackendJSON,
			SQLitePath: "catalog.db",
		},
		Backup: BackupConfig{
			MaxCount: 10,
		},
	}
}

// Load loads configuration from the default locations and environment variables.
// Order: defaults -> ~/.proofread/config.yaml -> ./proofread.yaml -> environment variables
func Load() (*ProofreadConfig, error) {
	config := Default()

	var paths []string
	if homeDir, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(homeDir, ".proofread", "config.yaml"))
	}
	paths = append(paths, FileName)

	for _, path := range paths {
		if _, statErr := os.Stat(path); statErr != nil {
			continue
		}
		if err := mergeFile(config, path); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}

	if err := applyEnvOverrides(config); err != nil {
		return nil, err
	}
	return config, nil
}

// LoadFromFile loads configuration from a specific YAML file on top of the
// defaults, then applies environment overrides.
func LoadFromFile(path string) (*ProofreadConfig, error) {
	config := Default()
	if err := mergeFile(config, path); err != nil {
		return nil, err
	}
	if err := applyEnvOverrides(config); err != nil {
		return nil, err
	}
	return config, nil
}

func mergeFile(config *ProofreadConfig, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, config); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	config.StoriesDir = expandEnvVars(config.StoriesDir)
	config.StateFile = expandEnvVars(config.StateFile)
	config.Backup.Dir = expandEnvVars(config.Backup.Dir)
	return nil
}

// Validate checks that the configuration is valid.
func (c *ProofreadConfig) Validate() error {
	if c.StoriesDir == "" {
		return fmt.Errorf("stories_dir must be set")
	}
	if c.StateFile == "" {
		return fmt.Errorf("state_file must be set")
	}
	if c.MaxDepth < 0 {
		return fmt.Errorf("max_depth must be non-negative, got %d", c.MaxDepth)
	}

	validLevels := map[string]bool{"info": true, "debug": true, "trace": true}
	if c.Logging.Level != "" && !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (valid: info, debug, trace, or empty for default)", c.Logging.Level)
	}
	validFormats := map[string]bool{"": true, "text": true, "json": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format: %s (valid: text, json)", c.Logging.Format)
	}

	switch c.Publish.Backend {
	case BackendJSON:
	case BackendSQLite:
		if c.Publish.SQLitePath == "" {
			return fmt.Errorf("publish.sqlite_path must be set for the sqlite backend")
		}
	default:
		return fmt.Errorf("invalid publish backend: %s (valid: json, sqlite)", c.Publish.Backend)
	}

	if c.Backup.MaxCount < 0 {
		return fmt.Errorf("backup.max_count must be non-negative, got %d", c.Backup.MaxCount)
	}
	if c.Backup.MaxAge != "" {
		if _, err := backup.ParseDuration(c.Backup.MaxAge); err != nil {
			return fmt.Errorf("backup.max_age: %w", err)
		}
	}
	return nil
}

// BackupDir resolves the backup directory.
func (c *ProofreadConfig) BackupDir() string {
	if c.Backup.Dir != "" {
		return c.Backup.Dir
	}
	return filepath.Join(filepath.Dir(c.StateFile), "backups")
}

// SQLitePath resolves the sqlite catalog path against the stories directory.
func (c *ProofreadConfig) SQLitePath() string {
	if filepath.IsAbs(c.Publish.SQLitePath) {
		return c.Publish.SQLitePath
	}
	return filepath.Join(c.StoriesDir, c.Publish.SQLitePath)
}

// applyEnvOverrides applies PROOFREAD_* environment variables to the config.
// Unset variables leave the loaded values alone.
func applyEnvOverrides(config *ProofreadConfig) error {
	if err := env.Parse(config); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// expandEnvVars expands ${VAR} patterns in a string with environment variable values.
func expandEnvVars(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return os.Expand(s, os.Getenv)
}
