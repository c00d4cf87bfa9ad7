// Package config loads and validates the application configuration from a
// directory of YAML files plus environment variables.
package config

import (
	"fmt"
	"time"

	"dario.cat/mergo"

	"github.com/codeready-toolchain/scout/pkg/research"
)

// Config is the umbrella configuration returned by Initialize.
type Config struct {
	configDir string

	System   SystemConfig   `yaml:"system"`
	Database DatabaseConfig `yaml:"database"`
	LLM      LLMConfig      `yaml:"llm"`
	Cache    CacheConfig    `yaml:"cache"`
	Queue    QueueConfig    `yaml:"queue"`
	Tools    ToolsConfig    `yaml:"tools"`
	Triggers TriggerConfig  `yaml:"triggers"`

	Retention RetentionConfig `yaml:"retention"`

	// Research holds the baseline run configuration; Profiles override it
	// per named agent profile.
	Research research.Config            `yaml:"research"`
	Profiles map[string]research.Config `yaml:"profiles"`
}

// SystemConfig groups system-wide infrastructure settings.
type SystemConfig struct {
	ListenAddr       string   `yaml:"listen_addr"`
	AllowedWSOrigins []string `yaml:"allowed_ws_origins"`
	// MaskingPatterns adds custom credential regexes on top of the builtin
	// set applied to tool output.
	MaskingPatterns map[string]string `yaml:"masking_patterns"`
	Slack           SlackConfig       `yaml:"slack"`
}

// SlackConfig holds completion-notification settings.
type SlackConfig struct {
	Enabled bool   `yaml:"enabled"`
	Token   string `yaml:"token"`
	Channel string `yaml:"channel"`
	// BaseURL is the externally reachable scout URL used in notification
	// links; empty omits them.
	BaseURL string `yaml:"base_url"`
}

// DatabaseConfig holds Postgres connection settings.
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"ssl_mode"`

	MaxConns        int           `yaml:"max_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
}

// DSN renders the pgx connection string.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// LLMConfig holds provider connection settings.
type LLMConfig struct {
	APIKey         string  `yaml:"api_key"`
	BaseURL        string  `yaml:"base_url"`
	Model          string  `yaml:"model"`
	ReasoningModel string  `yaml:"reasoning_model"`
	Temperature    float64 `yaml:"temperature"`
	MaxTokens      int     `yaml:"max_tokens"`
}

// CacheConfig sizes the process-wide search cache.
type CacheConfig struct {
	MaxSize             int           `yaml:"max_size"`
	TTL                 time.Duration `yaml:"ttl"`
	SimilarityThreshold float64       `yaml:"similarity_threshold"`
}

// QueueConfig sizes the run worker pool.
type QueueConfig struct {
	Workers    int `yaml:"workers"`
	BufferSize int `yaml:"buffer_size"`
}

// ToolsConfig holds the external endpoints behind the built-in tools. An
// empty SearchEndpoint switches web_search to seeded offline results.
type ToolsConfig struct {
	SearchEndpoint string            `yaml:"search_endpoint"`
	SearchAPIKey   string            `yaml:"search_api_key"`
	SearchTimeout  time.Duration     `yaml:"search_timeout"`
	CrawlTimeout   time.Duration     `yaml:"crawl_timeout"`
	MCPServers     map[string]string `yaml:"mcp_servers"`
}

// TriggerConfig bounds the trigger manager.
type TriggerConfig struct {
	HistoryLimit int `yaml:"history_limit"`
}

// RetentionConfig controls how long finished runs and their thread state are
// kept before the cleanup service removes them.
type RetentionConfig struct {
	RunRetentionDays int           `yaml:"run_retention_days"`
	CleanupInterval  time.Duration `yaml:"cleanup_interval"`
}

// ConfigDir returns the directory the configuration was loaded from.
func (c *Config) ConfigDir() string { return c.configDir }

// ResolveProfile returns the research configuration for a named profile:
// the profile's set fields layered over the baseline. An empty name returns
// the baseline; an unknown name is an error.
func (c *Config) ResolveProfile(name string) (research.Config, error) {
	if name == "" {
		return c.Research, nil
	}
	profile, ok := c.Profiles[name]
	if !ok {
		return research.Config{}, fmt.Errorf("%w: %s", ErrProfileNotFound, name)
	}
	if err := mergo.Merge(&profile, c.Research); err != nil {
		return research.Config{}, fmt.Errorf("config: merge profile %s: %w", name, err)
	}
	return profile, nil
}

// Stats summarizes loaded configuration for startup logging.
type Stats struct {
	Profiles int
	Workers  int
}

// Stats returns configuration statistics.
func (c *Config) Stats() Stats {
	return Stats{Profiles: len(c.Profiles), Workers: c.Queue.Workers}
}
