package queue

import (
	"context"
	"log/slog"
	"time"

	"github.com/codeready-toolchain/scout/pkg/events"
	"github.com/codeready-toolchain/scout/pkg/models"
)

// orphanError marks runs a previous process left behind.
const orphanError = "interrupted by restart"

// RecoverOrphans fails runs left pending or running by a previous process.
// Paused runs are untouched: their checkpoints make them resumable.
func RecoverOrphans(ctx context.Context, store RunStore, publisher *events.Publisher, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	for _, status := range []models.RunStatus{models.RunStatusRunning, models.RunStatusPending} {
		runs, err := store.ListByStatus(ctx, status)
		if err != nil {
			return err
		}
		for _, run := range runs {
			now := time.Now().UTC()
			run.Status = models.RunStatusFailed
			run.Error = orphanError
			run.CompletedAt = &now
			if err := store.Finish(ctx, run); err != nil {
				logger.Error("failed to fail orphaned run", "run_id", run.ID, "error", err)
				continue
			}
			publisher.PublishRunStatus(run)
			logger.Warn("failed orphaned run", "run_id", run.ID, "was", status)
		}
	}
	return nil
}
