package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fieldserve/notify-planner/internal/domain"
	"github.com/fieldserve/notify-planner/internal/observability"
	"github.com/fieldserve/notify-planner/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ManualEntryInput carries everything needed to plan a manual notification.
type ManualEntryInput struct {
	ClientID    *string
	DeviceID    *string
	ClientName  string
	DeviceName  string
	PhoneNumber string
	Message     string
	ScheduledAt time.Time
	Type        domain.NotificationType
	MaxRetries  int
}

// LifecycleService owns creation and state transitions of planned
// notifications. All transition rules live on the domain entity; the service
// loads, applies, persists.
type LifecycleService struct {
	repo    repository.PlannedNotificationRepository
	metrics *observability.Metrics
	logger  *zap.Logger
	now     func() time.Time
}

func NewLifecycleService(
	repo repository.PlannedNotificationRepository,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *LifecycleService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LifecycleService{
		repo:    repo,
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
	}
}

// CreateManual plans a manual notification. Manual entries are exempt from
// the automatic dedup rule and are never touched by replans.
func (s *LifecycleService) CreateManual(ctx context.Context, input ManualEntryInput) (*domain.PlannedNotification, error) {
	now := s.now()

	notificationType := input.Type
	if notificationType == "" {
		notificationType = domain.TypeManualCustom
	}

	scheduledAt := input.ScheduledAt
	if scheduledAt.IsZero() {
		scheduledAt = now
	} else if scheduledAt.Before(now) {
		return nil, fmt.Errorf("%w: scheduledAt must not be in the past", domain.ErrValidation)
	}

	maxRetries := input.MaxRetries
	if maxRetries <= 0 {
		maxRetries = domain.DefaultMaxRetries
	}

	notification := &domain.PlannedNotification{
		ID:          uuid.NewString(),
		DeviceID:    input.DeviceID,
		ClientID:    input.ClientID,
		DeviceName:  strings.TrimSpace(input.DeviceName),
		ClientName:  strings.TrimSpace(input.ClientName),
		PhoneNumber: strings.TrimSpace(input.PhoneNumber),
		Message:     strings.TrimSpace(input.Message),
		ScheduledAt: scheduledAt,
		Status:      domain.StatusScheduled,
		Type:        notificationType,
		Source:      domain.SourceManualCustom,
		MaxRetries:  maxRetries,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := notification.Validate(); err != nil {
		return nil, err
	}
	if err := s.repo.Insert(ctx, notification); err != nil {
		return nil, err
	}

	s.logger.Info("manual notification planned",
		zap.String("id", notification.ID),
		zap.String("type", notification.Type.String()),
		zap.Time("scheduledAt", notification.ScheduledAt),
	)
	return notification, nil
}

func (s *LifecycleService) Get(ctx context.Context, id string) (*domain.PlannedNotification, error) {
	return s.repo.GetByID(ctx, id)
}

// MarkSent records successful delivery.
func (s *LifecycleService) MarkSent(ctx context.Context, id string) (*domain.PlannedNotification, error) {
	return s.transition(ctx, id, func(n *domain.PlannedNotification, now time.Time) error {
		return n.MarkSent(now)
	})
}

// MarkFailed records a delivery failure and burns one retry.
func (s *LifecycleService) MarkFailed(ctx context.Context, id string, errorMessage string) (*domain.PlannedNotification, error) {
	return s.transition(ctx, id, func(n *domain.PlannedNotification, now time.Time) error {
		return n.MarkFailed(now, errorMessage)
	})
}

// Cancel withdraws a scheduled notification with an operator-supplied reason.
func (s *LifecycleService) Cancel(ctx context.Context, id string, reason string) (*domain.PlannedNotification, error) {
	return s.transition(ctx, id, func(n *domain.PlannedNotification, now time.Time) error {
		return n.Cancel(now, reason)
	})
}

// Skip marks a scheduled notification as no longer applicable.
func (s *LifecycleService) Skip(ctx context.Context, id string, reason string) (*domain.PlannedNotification, error) {
	return s.transition(ctx, id, func(n *domain.PlannedNotification, now time.Time) error {
		return n.Skip(now, reason)
	})
}

// UpdateMessage edits the message body of a still-scheduled notification.
func (s *LifecycleService) UpdateMessage(ctx context.Context, id string, message string) (*domain.PlannedNotification, error) {
	notification, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := notification.UpdateMessage(s.now(), message); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, notification); err != nil {
		return nil, err
	}
	return notification, nil
}

// Requeue derives a fresh SCHEDULED entry from a FAILED one. The failed entry
// itself stays FAILED; the clone carries the retry count forward.
func (s *LifecycleService) Requeue(ctx context.Context, id string) (*domain.PlannedNotification, error) {
	failed, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	clone, err := failed.RequeueClone(s.now())
	if err != nil {
		return nil, err
	}
	clone.ID = uuid.NewString()

	if err := s.repo.Insert(ctx, clone); err != nil {
		return nil, err
	}

	s.metrics.IncLifecycleTransition(domain.StatusScheduled.String())
	s.logger.Info("failed notification requeued",
		zap.String("failedId", failed.ID),
		zap.String("newId", clone.ID),
		zap.Int("retryCount", clone.RetryCount),
	)
	return clone, nil
}

// Delete removes a notification outright, regardless of status.
func (s *LifecycleService) Delete(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, id)
}

func (s *LifecycleService) transition(ctx context.Context, id string, apply func(*domain.PlannedNotification, time.Time) error) (*domain.PlannedNotification, error) {
	notification, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := apply(notification, s.now()); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, notification); err != nil {
		return nil, err
	}

	s.metrics.IncLifecycleTransition(notification.Status.String())
	return notification, nil
}
