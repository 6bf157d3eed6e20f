package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/fieldserve/notify-planner/internal/domain"
	"github.com/fieldserve/notify-planner/internal/queue"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const minReceiptConcurrency = 1

// ReceiptWorker consumes delivery receipts from the SMS gateway and settles
// the matching notifications: delivered receipts become SENT, failures become
// FAILED, and transient failures with retry budget left are requeued as fresh
// SCHEDULED entries.
type ReceiptWorker struct {
	lifecycle   *LifecycleService
	consumer    queue.Consumer
	logger      *zap.Logger
	concurrency int
}

func NewReceiptWorker(
	lifecycle *LifecycleService,
	consumer queue.Consumer,
	concurrency int,
	logger *zap.Logger,
) (*ReceiptWorker, error) {
	if lifecycle == nil {
		return nil, fmt.Errorf("lifecycle service is required")
	}
	if consumer == nil {
		return nil, fmt.Errorf("consumer is required")
	}
	if concurrency < minReceiptConcurrency {
		concurrency = minReceiptConcurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &ReceiptWorker{
		lifecycle:   lifecycle,
		consumer:    consumer,
		logger:      logger,
		concurrency: concurrency,
	}, nil
}

// Start consumes the receipt queue until context cancellation.
func (w *ReceiptWorker) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	g, groupCtx := errgroup.WithContext(ctx)
	for i := 0; i < w.concurrency; i++ {
		workerID := i + 1

		g.Go(func() error {
			w.logger.Info("receipt worker started", zap.Int("workerId", workerID))

			err := w.consumer.Consume(groupCtx, queue.ReceiptQueueName, w.ProcessReceipt)
			if err != nil {
				w.logger.Error("receipt worker stopped with error",
					zap.Int("workerId", workerID),
					zap.Error(err),
				)
				return err
			}

			w.logger.Info("receipt worker stopped", zap.Int("workerId", workerID))
			return nil
		})
	}

	return g.Wait()
}

// ProcessReceipt settles one receipt. Receipts for unknown or already-settled
// notifications are logged and acked; redelivering them cannot help.
func (w *ReceiptWorker) ProcessReceipt(ctx context.Context, receipt queue.DeliveryReceipt) error {
	if receipt.Delivered {
		_, err := w.lifecycle.MarkSent(ctx, receipt.NotificationID)
		if err != nil {
			if isStaleReceiptError(err) {
				w.logger.Warn("ignoring receipt for unknown or settled notification",
					zap.String("notificationId", receipt.NotificationID),
					zap.Error(err),
				)
				return nil
			}
			return fmt.Errorf("failed to mark notification sent: %w", err)
		}
		return nil
	}

	failed, err := w.lifecycle.MarkFailed(ctx, receipt.NotificationID, receipt.Error)
	if err != nil {
		if isStaleReceiptError(err) {
			w.logger.Warn("ignoring receipt for unknown or settled notification",
				zap.String("notificationId", receipt.NotificationID),
				zap.Error(err),
			)
			return nil
		}
		return fmt.Errorf("failed to mark notification failed: %w", err)
	}

	if !receipt.Transient {
		return nil
	}
	if failed.RetryCount >= failed.MaxRetries {
		w.logger.Info("retry budget exhausted, leaving notification failed",
			zap.String("notificationId", failed.ID),
			zap.Int("retryCount", failed.RetryCount),
		)
		return nil
	}

	if _, err := w.lifecycle.Requeue(ctx, failed.ID); err != nil {
		// A concurrent requeue or an active duplicate already covers this
		// device; the failure itself is recorded, so ack.
		if errors.Is(err, domain.ErrConflict) || errors.Is(err, domain.ErrInvalidTransition) {
			w.logger.Warn("skipping requeue after transient failure",
				zap.String("notificationId", failed.ID),
				zap.Error(err),
			)
			return nil
		}
		return fmt.Errorf("failed to requeue notification: %w", err)
	}

	return nil
}

func isStaleReceiptError(err error) bool {
	return errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrInvalidTransition)
}
