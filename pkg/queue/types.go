// Package queue runs research jobs on a bounded worker pool.
package queue

import (
	"context"
	"errors"

	"github.com/codeready-toolchain/scout/pkg/models"
	"github.com/codeready-toolchain/scout/pkg/research"
)

var (
	// ErrQueueFull is returned by Submit when the job buffer is at capacity.
	ErrQueueFull = errors.New("queue full")

	// ErrStopped is returned by Submit after the pool began shutting down.
	ErrStopped = errors.New("queue stopped")
)

// Job is one unit of work: a fresh start or a resume of a suspended run.
// The create request rides along because images and config overrides are not
// part of the durable run record.
type Job struct {
	Run      *models.Run
	Request  models.CreateRunRequest
	Resume   bool
	Reviewed string // reviewed report text for resume jobs; empty approves the draft
}

// RunStore is the slice of the database layer the queue needs.
type RunStore interface {
	Get(ctx context.Context, id string) (*models.Run, error)
	MarkStarted(ctx context.Context, id string) error
	Finish(ctx context.Context, run *models.Run) error
	ListByStatus(ctx context.Context, status models.RunStatus) ([]*models.Run, error)
}

// Runner executes one research run. Satisfied by research.Orchestrator.
type Runner interface {
	Start(ctx context.Context, in research.StartInput) (*research.Outcome, error)
	Resume(ctx context.Context, threadID, runID, reviewed string) (*research.Outcome, error)
}

// RunnerFactory builds a runner for one run with its resolved configuration.
type RunnerFactory func(cfg research.Config, runID string) Runner

// Notifier is told about finished triggered runs. Satisfied by the Slack
// service; nil disables notifications.
type Notifier interface {
	NotifyRunFinished(ctx context.Context, run *models.Run)
}
