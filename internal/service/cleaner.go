package service

import (
	"context"
	"fmt"
	"time"

	"github.com/fieldserve/notify-planner/internal/observability"
	"github.com/fieldserve/notify-planner/internal/repository"
	"go.uber.org/zap"
)

const (
	defaultCleanupInterval = time.Hour
	defaultRetentionMaxAge = 30 * 24 * time.Hour
)

// Cleaner prunes terminal entries (SENT, CANCELLED, SKIPPED) past the
// retention window. FAILED entries are kept; they hold the error trail.
type Cleaner struct {
	repo     repository.PlannedNotificationRepository
	metrics  *observability.Metrics
	logger   *zap.Logger
	interval time.Duration
	maxAge   time.Duration
	now      func() time.Time
}

func NewCleaner(
	repo repository.PlannedNotificationRepository,
	interval time.Duration,
	maxAge time.Duration,
	metrics *observability.Metrics,
	logger *zap.Logger,
) (*Cleaner, error) {
	if repo == nil {
		return nil, fmt.Errorf("notification repository is required")
	}
	if interval <= 0 {
		interval = defaultCleanupInterval
	}
	if maxAge <= 0 {
		maxAge = defaultRetentionMaxAge
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Cleaner{
		repo:     repo,
		metrics:  metrics,
		logger:   logger,
		interval: interval,
		maxAge:   maxAge,
		now:      time.Now,
	}, nil
}

func (c *Cleaner) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := c.RunOnce(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				c.logger.Error("cleanup pass failed", zap.Error(err))
			}
		}
	}
}

// RunOnce prunes everything terminal older than the retention window.
func (c *Cleaner) RunOnce(ctx context.Context) error {
	cutoff := c.now().Add(-c.maxAge)
	pruned, err := c.repo.PruneTerminal(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("failed to prune terminal notifications: %w", err)
	}

	if pruned > 0 {
		c.metrics.AddPruned(pruned)
		c.logger.Info("pruned terminal notifications",
			zap.Int64("count", pruned),
			zap.Time("cutoff", cutoff),
		)
	}
	return nil
}
