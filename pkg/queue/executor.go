package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/codeready-toolchain/scout/pkg/events"
	"github.com/codeready-toolchain/scout/pkg/models"
	"github.com/codeready-toolchain/scout/pkg/research"
)

// Executor runs one job end to end: status transitions, orchestration,
// persistence of the outcome, and notifications.
type Executor struct {
	Store     RunStore
	Publisher *events.Publisher
	Factory   RunnerFactory

	// Resolve maps a profile name to a run configuration; "" is the
	// baseline.
	Resolve func(profile string) (research.Config, error)

	Notifier Notifier
	Logger   *slog.Logger
}

// Execute processes a job. Errors are terminal run outcomes, not return
// values: the run record carries them.
func (e *Executor) Execute(ctx context.Context, job Job) {
	logger := e.logger().With("run_id", job.Run.ID)

	// The run may have been cancelled while queued.
	current, err := e.Store.Get(ctx, job.Run.ID)
	if err != nil {
		logger.Error("failed to load run before execution", "error", err)
		return
	}
	if current.Status.Terminal() {
		logger.Info("skipping run in terminal status", "status", current.Status)
		return
	}

	if err := e.Store.MarkStarted(ctx, job.Run.ID); err != nil {
		logger.Error("failed to mark run started", "error", err)
		return
	}
	current.Status = models.RunStatusRunning
	e.Publisher.PublishRunStatus(current)

	cfg, err := e.resolveConfig(job.Request)
	if err != nil {
		e.finishFailed(ctx, current, fmt.Errorf("resolve config: %w", err))
		return
	}

	runner := e.Factory(cfg, job.Run.ID)

	var outcome *research.Outcome
	if job.Resume {
		outcome, err = runner.Resume(ctx, current.ThreadID, current.ID, job.Reviewed)
	} else {
		outcome, err = runner.Start(ctx, research.StartInput{
			RunID:    current.ID,
			ThreadID: current.ThreadID,
			UserID:   current.UserID,
			Input:    current.Input,
			Images:   job.Request.Images,
		})
	}
	if err != nil {
		e.finishFailed(ctx, current, err)
		return
	}

	e.finishOutcome(ctx, current, outcome)
}

// resolveConfig layers request overrides over the named profile's config.
// A "profile" key in the overrides selects the profile; the remaining keys
// are JSON-merged into the resolved configuration.
func (e *Executor) resolveConfig(req models.CreateRunRequest) (research.Config, error) {
	profile := ""
	overrides := make(map[string]any, len(req.Config))
	for k, v := range req.Config {
		if k == "profile" {
			if name, ok := v.(string); ok {
				profile = name
			}
			continue
		}
		overrides[k] = v
	}

	cfg, err := e.Resolve(profile)
	if err != nil {
		return research.Config{}, err
	}
	if len(overrides) == 0 {
		return cfg, nil
	}

	data, err := json.Marshal(overrides)
	if err != nil {
		return research.Config{}, fmt.Errorf("marshal config overrides: %w", err)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return research.Config{}, fmt.Errorf("apply config overrides: %w", err)
	}
	return cfg, nil
}

func (e *Executor) finishOutcome(ctx context.Context, run *models.Run, outcome *research.Outcome) {
	s := outcome.State
	run.Route = s.Route
	run.FinalReport = s.FinalReport
	run.IsCancelled = s.IsCancelled
	run.RevisionCount = s.RevisionCount
	run.ToolCallCount = s.ToolCallCount
	if len(s.Errors) > 0 {
		run.Error = strings.Join(s.Errors, "; ")
	}

	switch {
	case outcome.Suspended():
		run.Status = models.RunStatusPaused
	case s.IsCancelled:
		run.Status = models.RunStatusCancelled
		now := time.Now().UTC()
		run.CompletedAt = &now
	default:
		run.Status = models.RunStatusCompleted
		now := time.Now().UTC()
		run.CompletedAt = &now
	}

	if err := e.Store.Finish(ctx, run); err != nil {
		e.logger().Error("failed to persist run outcome", "run_id", run.ID, "error", err)
	}
	e.Publisher.PublishRunStatus(run)
	if run.Status == models.RunStatusCompleted && run.FinalReport != "" {
		e.Publisher.PublishRunReport(run.ID, run.FinalReport)
	}
	if e.Notifier != nil && run.Status.Terminal() && run.TriggerID != "" {
		e.Notifier.NotifyRunFinished(ctx, run)
	}
}

func (e *Executor) finishFailed(ctx context.Context, run *models.Run, cause error) {
	e.logger().Error("run failed", "run_id", run.ID, "error", cause)

	now := time.Now().UTC()
	run.Status = models.RunStatusFailed
	run.Error = cause.Error()
	run.CompletedAt = &now

	if err := e.Store.Finish(ctx, run); err != nil {
		e.logger().Error("failed to persist run failure", "run_id", run.ID, "error", err)
	}
	e.Publisher.PublishRunStatus(run)
	if e.Notifier != nil && run.TriggerID != "" {
		e.Notifier.NotifyRunFinished(ctx, run)
	}
}

func (e *Executor) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}
