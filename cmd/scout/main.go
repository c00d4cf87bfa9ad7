// Scout orchestrator server — provides the HTTP API, manages queue workers,
// and runs the research pipeline.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/codeready-toolchain/scout/pkg/api"
	"github.com/codeready-toolchain/scout/pkg/cache"
	"github.com/codeready-toolchain/scout/pkg/cleanup"
	"github.com/codeready-toolchain/scout/pkg/config"
	"github.com/codeready-toolchain/scout/pkg/database"
	"github.com/codeready-toolchain/scout/pkg/events"
	"github.com/codeready-toolchain/scout/pkg/graph"
	"github.com/codeready-toolchain/scout/pkg/llm"
	"github.com/codeready-toolchain/scout/pkg/masking"
	"github.com/codeready-toolchain/scout/pkg/queue"
	"github.com/codeready-toolchain/scout/pkg/research"
	"github.com/codeready-toolchain/scout/pkg/services"
	"github.com/codeready-toolchain/scout/pkg/slack"
	"github.com/codeready-toolchain/scout/pkg/tools"
	"github.com/codeready-toolchain/scout/pkg/trigger"
	"github.com/codeready-toolchain/scout/pkg/version"
)

// poolShutdownTimeout bounds how long in-flight runs may take to finish
// after the shutdown signal before the process stops waiting for them.
const poolShutdownTimeout = 30 * time.Second

// httpShutdownTimeout bounds draining of in-flight HTTP requests.
const httpShutdownTimeout = 5 * time.Second

// wsWriteTimeout bounds a single event frame write to a WebSocket client.
const wsWriteTimeout = 10 * time.Second

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "./config"),
		"Path to configuration directory")
	flag.Parse()

	ctx := context.Background()

	slog.Info("Starting scout",
		"version", version.GitCommit,
		"config_dir", *configDir)

	// 1. Configuration (loads .env from the config directory first)
	cfg, err := config.Initialize(ctx, *configDir)
	if err != nil {
		slog.Error("Failed to initialize configuration", "error", err)
		os.Exit(1)
	}

	// 2. Database (runs migrations before opening the pool)
	dbClient, err := database.NewClient(ctx, database.Config{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		Database:        cfg.Database.Database,
		SSLMode:         cfg.Database.SSLMode,
		MaxConns:        cfg.Database.MaxConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
	})
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbClient.Close()
	slog.Info("Connected to PostgreSQL database")

	runStore := database.NewRunStore(dbClient.Pool())
	checkpointStore := database.NewCheckpointStore(dbClient.Pool())
	triggerStore := database.NewTriggerStore(dbClient.Pool())

	// 3. Event streaming infrastructure
	bus := events.NewBus(slog.Default())
	publisher := events.NewPublisher(bus)
	connManager := events.NewConnectionManager(bus, wsWriteTimeout, slog.Default())

	// 4. One-time startup orphan cleanup
	if err := queue.RecoverOrphans(ctx, runStore, publisher, slog.Default()); err != nil {
		slog.Error("Failed to recover orphaned runs", "error", err)
		// Non-fatal — continue
	}

	// 5. LLM client, tool registry, search cache
	llmClient, err := llm.NewClient(llm.Config{
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
	})
	if err != nil {
		slog.Error("Failed to initialize LLM client", "error", err)
		os.Exit(1)
	}

	maskingService := masking.NewService(cfg.System.MaskingPatterns)

	registry := tools.NewRegistry(tools.RetryPolicy{
		Enabled:     cfg.Research.ToolRetry,
		MaxAttempts: cfg.Research.ToolRetryMaxAttempts,
		Backoff:     cfg.Research.ToolRetryBackoff,
	})
	registry.SetMasker(maskingService)

	if err := registerBuiltinTools(registry, cfg); err != nil {
		slog.Error("Failed to register built-in tools", "error", err)
		os.Exit(1)
	}

	// Eager MCP connect: a server that cannot be reached at startup is a
	// broken config, not a runtime condition.
	bridge, err := connectMCPServers(ctx, registry, cfg.Tools.MCPServers)
	if err != nil {
		slog.Error("MCP startup validation failed", "error", err)
		os.Exit(1)
	}
	if bridge != nil {
		defer bridge.Close() //nolint:errcheck
	}

	searchCache := cache.NewSearchCache(
		cfg.Cache.MaxSize, cfg.Cache.TTL, cfg.Cache.SimilarityThreshold)

	// 6. Runner factory: one orchestrator per run, sharing the process-wide
	// cache, checkpoint store, and cancel registry.
	cancels := graph.NewCancelRegistry()
	factory := func(rcfg research.Config, _ string) queue.Runner {
		o := research.NewOrchestrator(llmClient, registry, searchCache, rcfg)
		o.Checkpointer = checkpointStore
		o.Cancels = cancels
		o.OnEvent = func(runID, event string, payload any) {
			detail, ok := payload.(map[string]any)
			if !ok && payload != nil {
				detail = map[string]any{"detail": payload}
			}
			publisher.PublishNodeProgress(runID, event, detail)
		}
		return o
	}

	// 7. Worker pool
	executor := &queue.Executor{
		Store:     runStore,
		Publisher: publisher,
		Factory:   factory,
		Resolve:   cfg.ResolveProfile,
		Logger:    slog.Default(),
	}
	if cfg.System.Slack.Enabled {
		slackSvc := slack.NewService(slack.ServiceConfig{
			Token:   cfg.System.Slack.Token,
			Channel: cfg.System.Slack.Channel,
			BaseURL: cfg.System.Slack.BaseURL,
		})
		if slackSvc != nil {
			executor.Notifier = slackSvc
			slog.Info("Slack notifications enabled", "channel", cfg.System.Slack.Channel)
		} else {
			slog.Warn("Slack enabled but token or channel missing, notifications disabled")
		}
	}

	pool := queue.NewPool(executor, cfg.Queue.Workers, cfg.Queue.BufferSize, slog.Default())
	pool.Start(ctx)

	// 8. Domain services and triggers
	runService := services.NewRunService(runStore, pool, cancels, publisher)

	launcher := func(ctx context.Context, tr *trigger.Trigger, params map[string]any) (any, error) {
		run, err := runService.CreateFromTrigger(ctx, tr.ID, tr.Task, params)
		if err != nil {
			return nil, err
		}
		return run.ID, nil
	}
	triggerManager := trigger.NewManager(ctx, launcher, triggerStore)
	triggerManager.SetHistoryLimit(cfg.Triggers.HistoryLimit)
	triggerManager.SetMasker(maskingService)
	if err := triggerManager.Restore(ctx); err != nil {
		slog.Error("Failed to restore persisted triggers", "error", err)
		os.Exit(1)
	}
	triggerService := services.NewTriggerService(triggerManager)

	cleanupService := cleanup.NewService(
		cfg.Retention.RunRetentionDays, cfg.Retention.CleanupInterval,
		runStore, checkpointStore)
	cleanupService.Start(ctx)

	// 9. HTTP server (non-blocking)
	httpServer := api.NewServer(cfg, runService, triggerService, dbClient, pool, connManager)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", cfg.System.ListenAddr)
		if err := httpServer.Start(cfg.System.ListenAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
			errCh <- err
		}
	}()

	slog.Info("Scout started successfully", "workers", cfg.Queue.Workers)

	// 10. Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	// 11. Graceful shutdown: drain workers first so finished runs still
	// reach the store, then stop the periodic machinery and the listener.
	poolStopped := make(chan struct{})
	go func() {
		pool.Stop()
		close(poolStopped)
	}()
	select {
	case <-poolStopped:
		slog.Info("Worker pool drained")
	case <-time.After(poolShutdownTimeout):
		slog.Warn("Worker pool drain timed out", "timeout", poolShutdownTimeout)
	}

	triggerManager.Stop()
	cleanupService.Stop()

	shutdownCtx, cancel := context.WithTimeout(ctx, httpShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("Shutdown complete")
}

// registerBuiltinTools wires web_search and crawl into the registry. Without
// a configured search endpoint web_search falls back to seeded offline
// results, which keeps local development working without credentials.
func registerBuiltinTools(registry *tools.Registry, cfg *config.Config) error {
	var provider tools.SearchProvider
	if cfg.Tools.SearchEndpoint != "" {
		provider = &tools.HTTPSearchProvider{
			Endpoint: cfg.Tools.SearchEndpoint,
			APIKey:   cfg.Tools.SearchAPIKey,
		}
	} else {
		slog.Warn("No search endpoint configured, web_search serves seeded results only")
		provider = &tools.StaticSearchProvider{}
	}

	if err := registry.Register(tools.NewWebSearchTool(provider, cfg.Tools.SearchTimeout), false, "search"); err != nil {
		return err
	}
	return registry.Register(tools.NewCrawlTool(nil, cfg.Tools.CrawlTimeout), false, "crawl")
}

// connectMCPServers connects every configured MCP server and registers the
// discovered tools. Targets starting with http:// or https:// use the
// streamable HTTP transport; anything else is run as a stdio command line.
func connectMCPServers(ctx context.Context, registry *tools.Registry, servers map[string]string) (*tools.MCPBridge, error) {
	if len(servers) == 0 {
		return nil, nil
	}
	bridge := tools.NewMCPBridge()
	for name, target := range servers {
		transport, err := mcpTransport(target)
		if err != nil {
			return bridge, fmt.Errorf("server %q: %w", name, err)
		}
		discovered, err := bridge.Connect(ctx, name, transport)
		if err != nil {
			return bridge, err
		}
		for _, tool := range discovered {
			if err := registry.Register(tool, false, "mcp", name); err != nil {
				return bridge, fmt.Errorf("register %s: %w", tool.Name(), err)
			}
		}
		slog.Info("MCP server connected", "server", name, "tools", len(discovered))
	}
	return bridge, nil
}

func mcpTransport(target string) (mcpsdk.Transport, error) {
	if strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://") {
		return &mcpsdk.StreamableClientTransport{Endpoint: target}, nil
	}
	fields := strings.Fields(target)
	if len(fields) == 0 {
		return nil, fmt.Errorf("empty MCP server target")
	}
	cmd := exec.Command(fields[0], fields[1:]...)
	cmd.Env = os.Environ()
	return &mcpsdk.CommandTransport{Command: cmd}, nil
}
