package service

import (
	"context"
	"fmt"
	"time"

	"github.com/fieldserve/notify-planner/internal/observability"
	"github.com/fieldserve/notify-planner/internal/queue"
	"github.com/fieldserve/notify-planner/internal/repository"
	"go.uber.org/zap"
)

const (
	defaultDispatchInterval = 30 * time.Second
	defaultDispatchLimit    = 100
)

// Dispatcher periodically hands due SCHEDULED notifications to the SMS
// gateway queue. The entry stays SCHEDULED with dispatched_at set; a delivery
// receipt later settles it as SENT or FAILED.
type Dispatcher struct {
	repo      repository.PlannedNotificationRepository
	publisher queue.Publisher
	metrics   *observability.Metrics
	logger    *zap.Logger
	interval  time.Duration
	limit     int
	now       func() time.Time
}

func NewDispatcher(
	repo repository.PlannedNotificationRepository,
	publisher queue.Publisher,
	interval time.Duration,
	limit int,
	metrics *observability.Metrics,
	logger *zap.Logger,
) (*Dispatcher, error) {
	if repo == nil {
		return nil, fmt.Errorf("notification repository is required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("publisher is required")
	}
	if interval <= 0 {
		interval = defaultDispatchInterval
	}
	if limit <= 0 {
		limit = defaultDispatchLimit
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Dispatcher{
		repo:      repo,
		publisher: publisher,
		metrics:   metrics,
		logger:    logger,
		interval:  interval,
		limit:     limit,
		now:       time.Now,
	}, nil
}

func (d *Dispatcher) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	// Run an initial scan so already-due entries do not wait for the first ticker edge.
	if err := d.ScanDue(ctx); err != nil && ctx.Err() == nil {
		d.logger.Error("dispatcher initial scan failed", zap.Error(err))
	}

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := d.ScanDue(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				d.logger.Error("dispatcher scan failed", zap.Error(err))
			}
		}
	}
}

// ScanDue runs one dispatch pass: fetch due entries, publish, mark dispatched.
func (d *Dispatcher) ScanDue(ctx context.Context) error {
	now := d.now()
	due, err := d.repo.GetDueForDispatch(ctx, now, d.limit)
	if err != nil {
		return fmt.Errorf("failed to fetch due notifications: %w", err)
	}

	for i := range due {
		notification := due[i]
		msg := queue.OutboxMessage{
			NotificationID: notification.ID,
			PhoneNumber:    notification.PhoneNumber,
			Message:        notification.Message,
			ScheduledAt:    notification.ScheduledAt,
		}

		if err := d.publisher.Publish(ctx, queue.OutboxQueueName, msg); err != nil {
			d.logger.Error("failed to enqueue due notification",
				zap.String("notificationId", notification.ID),
				zap.Error(err),
			)
			continue
		}

		if err := d.repo.MarkDispatched(ctx, notification.ID, now); err != nil {
			d.logger.Error("failed to mark notification dispatched",
				zap.String("notificationId", notification.ID),
				zap.Error(err),
			)
			continue
		}
		d.metrics.IncDispatched()
	}

	return nil
}
