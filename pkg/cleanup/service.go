// Package cleanup provides data retention for finished runs.
package cleanup

import (
	"context"
	"log/slog"
	"time"
)

// RunPruner deletes terminal runs that completed before the cutoff.
type RunPruner interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// CheckpointPruner deletes checkpoints whose thread no longer has runs.
type CheckpointPruner interface {
	PruneOrphaned(ctx context.Context, cutoff time.Time) (int64, error)
}

// Service periodically enforces the retention policy: terminal runs older
// than the retention window are deleted, then checkpoints orphaned by that
// deletion are swept. Both operations are idempotent.
type Service struct {
	retention time.Duration
	interval  time.Duration
	runs      RunPruner
	chkpts    CheckpointPruner
	logger    *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// NewService creates a cleanup service keeping runs for retentionDays and
// sweeping every interval.
func NewService(retentionDays int, interval time.Duration, runs RunPruner, chkpts CheckpointPruner) *Service {
	return &Service{
		retention: time.Duration(retentionDays) * 24 * time.Hour,
		interval:  interval,
		runs:      runs,
		chkpts:    chkpts,
		logger:    slog.Default().With("component", "cleanup"),
	}
}

// Start launches the background cleanup loop.
func (s *Service) Start(ctx context.Context) {
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go s.run(ctx)

	s.logger.Info("cleanup service started",
		"retention", s.retention, "interval", s.interval)
}

// Stop signals the cleanup loop to exit and waits for it to finish.
func (s *Service) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.logger.Info("cleanup service stopped")
}

func (s *Service) run(ctx context.Context) {
	defer close(s.done)

	s.sweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Service) sweep(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-s.retention)

	deleted, err := s.runs.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		s.logger.Error("retention: run deletion failed", "error", err)
		return
	}
	if deleted > 0 {
		s.logger.Info("retention: deleted old runs", "count", deleted)
	}

	pruned, err := s.chkpts.PruneOrphaned(ctx, cutoff)
	if err != nil {
		s.logger.Error("retention: checkpoint prune failed", "error", err)
		return
	}
	if pruned > 0 {
		s.logger.Info("retention: pruned orphaned checkpoints", "count", pruned)
	}
}
