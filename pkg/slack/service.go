package slack

import (
	"context"
	"log/slog"
	"time"

	"github.com/codeready-toolchain/scout/pkg/models"
)

const postTimeout = 10 * time.Second

// ServiceConfig holds the parameters needed to construct a Service.
type ServiceConfig struct {
	Token   string
	Channel string
	// BaseURL is the externally reachable scout URL used in message links;
	// empty omits the link button.
	BaseURL string
}

// Service delivers run-completion notifications to Slack.
// Nil-safe: all methods are no-ops when service is nil.
type Service struct {
	client  *Client
	baseURL string
	logger  *slog.Logger
}

// NewService creates a new Slack notification service.
// Returns nil if Token or Channel is empty.
func NewService(cfg ServiceConfig) *Service {
	if cfg.Token == "" || cfg.Channel == "" {
		return nil
	}
	return &Service{
		client:  NewClient(cfg.Token, cfg.Channel),
		baseURL: cfg.BaseURL,
		logger:  slog.Default().With("component", "slack-service"),
	}
}

// NewServiceWithClient creates a Service backed by a pre-built Client.
// Useful for testing with a mock API server.
func NewServiceWithClient(client *Client, baseURL string) *Service {
	return &Service{
		client:  client,
		baseURL: baseURL,
		logger:  slog.Default().With("component", "slack-service"),
	}
}

// NotifyRunFinished posts a terminal-run notification.
// Fail-open: errors are logged, never returned; a Slack outage must not
// affect the run pipeline.
func (s *Service) NotifyRunFinished(ctx context.Context, run *models.Run) {
	if s == nil {
		return
	}

	blocks := BuildRunMessage(run, s.baseURL)
	if err := s.client.PostMessage(ctx, blocks, postTimeout); err != nil {
		s.logger.Error("run notification failed", "run_id", run.ID, "error", err)
		return
	}
	s.logger.Info("run notification sent", "run_id", run.ID, "status", run.Status)
}
