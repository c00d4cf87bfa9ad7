package config

import (
	"time"

	"github.com/codeready-toolchain/scout/pkg/cache"
)

const (
	defaultListenAddr = ":8080"

	defaultCacheMaxSize   = 128
	defaultCacheTTL       = 10 * time.Minute
	defaultQueueWorkers   = 4
	defaultQueueBuffer    = 64
	defaultHistoryLimit   = 100
	defaultDBPort         = 5432
	defaultDBSSLMode      = "disable"
	defaultDBMaxConns     = 10
	defaultConnLifetime   = time.Hour
	defaultConnIdleTime   = 30 * time.Minute
	defaultLLMModel       = "gpt-4o"
	defaultLLMTemperature = 0.2

	defaultRunRetentionDays = 90
	defaultCleanupInterval  = 6 * time.Hour

	defaultSearchTimeout = 15 * time.Second
	defaultCrawlTimeout  = 20 * time.Second
)

// applyDefaults fills unset fields after YAML unmarshaling.
func applyDefaults(cfg *Config) {
	if cfg.System.ListenAddr == "" {
		cfg.System.ListenAddr = defaultListenAddr
	}

	if cfg.Database.Port == 0 {
		cfg.Database.Port = defaultDBPort
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = defaultDBSSLMode
	}
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = defaultDBMaxConns
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = defaultConnLifetime
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = defaultConnIdleTime
	}

	if cfg.LLM.Model == "" {
		cfg.LLM.Model = defaultLLMModel
	}
	if cfg.LLM.Temperature == 0 {
		cfg.LLM.Temperature = defaultLLMTemperature
	}

	if cfg.Cache.MaxSize == 0 {
		cfg.Cache.MaxSize = defaultCacheMaxSize
	}
	if cfg.Cache.TTL == 0 {
		cfg.Cache.TTL = defaultCacheTTL
	}
	if cfg.Cache.SimilarityThreshold == 0 {
		cfg.Cache.SimilarityThreshold = cache.DefaultSimilarityThreshold
	}

	if cfg.Queue.Workers == 0 {
		cfg.Queue.Workers = defaultQueueWorkers
	}
	if cfg.Queue.BufferSize == 0 {
		cfg.Queue.BufferSize = defaultQueueBuffer
	}

	if cfg.Tools.SearchTimeout == 0 {
		cfg.Tools.SearchTimeout = defaultSearchTimeout
	}
	if cfg.Tools.CrawlTimeout == 0 {
		cfg.Tools.CrawlTimeout = defaultCrawlTimeout
	}

	if cfg.Triggers.HistoryLimit == 0 {
		cfg.Triggers.HistoryLimit = defaultHistoryLimit
	}

	if cfg.Retention.RunRetentionDays == 0 {
		cfg.Retention.RunRetentionDays = defaultRunRetentionDays
	}
	if cfg.Retention.CleanupInterval == 0 {
		cfg.Retention.CleanupInterval = defaultCleanupInterval
	}

	if cfg.Research.Model == "" {
		cfg.Research.Model = cfg.LLM.Model
	}
	if cfg.Research.ReasoningModel == "" {
		cfg.Research.ReasoningModel = cfg.LLM.ReasoningModel
	}
}
