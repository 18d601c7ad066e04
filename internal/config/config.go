// Package config loads the checkpoint configuration.
//
// Configuration lives in ~/.ckpt/config.yaml and may be overridden with
// CKPT_-prefixed environment variables. A missing or corrupt file never
// fails a load; checkpointing must stay available on defaults.
package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Default settings applied when no config file exists.
const (
	DefaultRetentionDays = 7
	DefaultMaxFileSizeMB = 10
)

// DefaultExcludePatterns are matched against path segments of checkpoint
// candidates. A file whose path contains any of these is never the trigger
// for a checkpoint.
var DefaultExcludePatterns = []string{
	"node_modules",
	".git",
	"build",
	"dist",
	"target",
	"vendor",
	"__pycache__",
	"*.log",
	"*.tmp",
	".env",
	".DS_Store",
}

// Config holds all checkpoint settings.
type Config struct {
	Enabled          bool     `mapstructure:"enabled" json:"enabled"`
	RetentionDays    int      `mapstructure:"retention_days" json:"retention_days"`
	ExcludePatterns  []string `mapstructure:"exclude_patterns" json:"exclude_patterns"`
	MaxFileSizeMB    int      `mapstructure:"max_file_size_mb" json:"max_file_size_mb"`
	CheckpointOnStop bool     `mapstructure:"checkpoint_on_stop" json:"checkpoint_on_stop"`
	AutoCleanup      bool     `mapstructure:"auto_cleanup" json:"auto_cleanup"`
	LogLevel         string   `mapstructure:"log_level" json:"log_level"`

	// BaseDir is where all checkpoint state lives (~/.ckpt). Not part of
	// the config file; set at load time and overridable for tests.
	BaseDir string `mapstructure:"-" json:"-"`
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		Enabled:          true,
		RetentionDays:    DefaultRetentionDays,
		ExcludePatterns:  append([]string(nil), DefaultExcludePatterns...),
		MaxFileSizeMB:    DefaultMaxFileSizeMB,
		CheckpointOnStop: false,
		AutoCleanup:      true,
		LogLevel:         "info",
		BaseDir:          defaultBaseDir(),
	}
}

func defaultBaseDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		home = "."
	}
	return filepath.Join(home, ".ckpt")
}

// Load reads the config file under baseDir (the default base dir when
// empty). Read or parse failures degrade to defaults; they are never
// propagated, so a corrupt config cannot block checkpointing.
func Load(baseDir string) *Config {
	cfg := Defaults()
	if baseDir != "" {
		cfg.BaseDir = baseDir
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(cfg.BaseDir)
	v.SetEnvPrefix("CKPT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("enabled", cfg.Enabled)
	v.SetDefault("retention_days", cfg.RetentionDays)
	v.SetDefault("exclude_patterns", cfg.ExcludePatterns)
	v.SetDefault("max_file_size_mb", cfg.MaxFileSizeMB)
	v.SetDefault("checkpoint_on_stop", cfg.CheckpointOnStop)
	v.SetDefault("auto_cleanup", cfg.AutoCleanup)
	v.SetDefault("log_level", cfg.LogLevel)

	if err := v.ReadInConfig(); err != nil {
		// Missing file is the common case; corrupt files also fall back.
		return cfg
	}
	loaded := Defaults()
	loaded.BaseDir = cfg.BaseDir
	if err := v.Unmarshal(loaded); err != nil {
		return cfg
	}
	if loaded.RetentionDays <= 0 {
		loaded.RetentionDays = DefaultRetentionDays
	}
	if loaded.MaxFileSizeMB <= 0 {
		loaded.MaxFileSizeMB = DefaultMaxFileSizeMB
	}
	return loaded
}

// MetadataPath returns the path of the persisted metadata document.
func (c *Config) MetadataPath() string {
	return filepath.Join(c.BaseDir, "metadata.json")
}

// ShadowsDir returns the directory holding per-project shadow repositories.
func (c *Config) ShadowsDir() string {
	return filepath.Join(c.BaseDir, "shadows")
}

// LogPath returns the rotating log file path.
func (c *Config) LogPath() string {
	return filepath.Join(c.BaseDir, "ckpt.log")
}

// ShouldExcludeFile reports whether path is excluded from checkpointing by
// pattern or size. Patterns match whole path segments, or the basename by
// glob (so "*.log" excludes "a/b/x.log" and "build" excludes "build/x.js").
func (c *Config) ShouldExcludeFile(path string) bool {
	if path == "" {
		return false
	}
	clean := filepath.ToSlash(filepath.Clean(path))
	segments := strings.Split(clean, "/")
	base := segments[len(segments)-1]

	for _, pattern := range c.ExcludePatterns {
		pattern = strings.TrimSuffix(strings.TrimSpace(pattern), "/")
		if pattern == "" {
			continue
		}
		if strings.ContainsAny(pattern, "*?[") {
			if ok, _ := filepath.Match(pattern, base); ok {
				return true
			}
			continue
		}
		for _, seg := range segments {
			if seg == pattern {
				return true
			}
		}
	}

	if info, err := os.Stat(path); err == nil && !info.IsDir() {
		if info.Size() > int64(c.MaxFileSizeMB)<<20 {
			return true
		}
	}
	return false
}
