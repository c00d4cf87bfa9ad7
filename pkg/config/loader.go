package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/codeready-toolchain/scout/pkg/research"
)

// ConfigFileName is the main configuration file inside the config directory.
const ConfigFileName = "scout.yaml"

// Initialize loads the configuration from configDir: a .env file (if
// present) is loaded into the process environment first, then scout.yaml is
// read, environment-expanded, unmarshaled, defaulted and validated.
func Initialize(ctx context.Context, configDir string) (*Config, error) {
	if err := loadDotEnv(configDir); err != nil {
		return nil, err
	}

	path := filepath.Join(configDir, ConfigFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &LoadError{Path: path, Err: ErrConfigNotFound}
		}
		return nil, &LoadError{Path: path, Err: err}
	}

	cfg := &Config{configDir: configDir}
	if err := yaml.Unmarshal(ExpandEnv(data), cfg); err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	stats := cfg.Stats()
	slog.InfoContext(ctx, "configuration loaded",
		"config_dir", configDir,
		"profiles", stats.Profiles,
		"workers", stats.Workers)

	return cfg, nil
}

// loadDotEnv loads configDir/.env into the process environment. A missing
// file is not an error; existing variables are never overwritten.
func loadDotEnv(configDir string) error {
	path := filepath.Join(configDir, ".env")
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return &LoadError{Path: path, Err: err}
	}
	if err := godotenv.Load(path); err != nil {
		return &LoadError{Path: path, Err: err}
	}
	return nil
}

func (c *Config) validate() error {
	if c.LLM.APIKey == "" {
		return &ValidationError{Field: "llm.api_key", Message: "required"}
	}
	if c.Database.Host != "" {
		if c.Database.User == "" {
			return &ValidationError{Field: "database.user", Message: "required when database.host is set"}
		}
		if c.Database.Database == "" {
			return &ValidationError{Field: "database.database", Message: "required when database.host is set"}
		}
	}
	if c.Cache.SimilarityThreshold < 0 || c.Cache.SimilarityThreshold > 1 {
		return &ValidationError{Field: "cache.similarity_threshold", Message: "must be between 0 and 1"}
	}
	if c.Queue.Workers < 1 {
		return &ValidationError{Field: "queue.workers", Message: "must be at least 1"}
	}
	for name, profile := range c.Profiles {
		if profile.SearchMode != "" && !research.ValidSearchMode(profile.SearchMode) {
			return &ValidationError{
				Field:   fmt.Sprintf("profiles.%s.search_mode", name),
				Message: fmt.Sprintf("unknown search mode %q", profile.SearchMode),
			}
		}
	}
	if c.Research.SearchMode != "" && !research.ValidSearchMode(c.Research.SearchMode) {
		return &ValidationError{
			Field:   "research.search_mode",
			Message: fmt.Sprintf("unknown search mode %q", c.Research.SearchMode),
		}
	}
	return nil
}
