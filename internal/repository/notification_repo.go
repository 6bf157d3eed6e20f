package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fieldserve/notify-planner/internal/domain"
	"gorm.io/gorm"
)

// SortKey is the secondary sort applied after scheduled_at ascending.
type SortKey string

const (
	SortByClientName SortKey = "client"
	SortByStatus     SortKey = "status"
	SortByType       SortKey = "type"
)

func (k SortKey) IsValid() bool {
	switch k {
	case SortByClientName, SortByStatus, SortByType:
		return true
	}
	return false
}

func ParseSortKeyFromString(s string) (SortKey, error) {
	k := SortKey(strings.ToLower(strings.TrimSpace(s)))
	if !k.IsValid() {
		return "", fmt.Errorf("%w: invalid sort key %q", domain.ErrValidation, s)
	}
	return k, nil
}

// ListParams filters and paginates planned notification listings. The
// scheduled window is half-open: [ScheduledFrom, ScheduledTo).
type ListParams struct {
	Status        *domain.Status
	Type          *domain.NotificationType
	Source        *domain.PlannedSource
	ClientID      *string
	DeviceID      *string
	ScheduledFrom *time.Time
	ScheduledTo   *time.Time
	Search        string
	SortBy        SortKey
	Page          int
	PageSize      int
}

type StatusCount struct {
	Status domain.Status `gorm:"column:status"`
	Count  int64         `gorm:"column:count"`
}

// PlannedNotificationRepository is the durable store of planned notifications.
// Insert enforces the one-active-per-(device,type) rule for automatic entries
// and reports a violation as domain.ErrConflict.
type PlannedNotificationRepository interface {
	Insert(ctx context.Context, n *domain.PlannedNotification) error
	GetByID(ctx context.Context, id string) (*domain.PlannedNotification, error)
	List(ctx context.Context, params ListParams) ([]domain.PlannedNotification, int64, error)
	Update(ctx context.Context, n *domain.PlannedNotification) error
	Delete(ctx context.Context, id string) error
	CancelAutomaticScheduled(ctx context.Context, now time.Time, reason string) (int64, error)
	GetDueForDispatch(ctx context.Context, now time.Time, limit int) ([]domain.PlannedNotification, error)
	MarkDispatched(ctx context.Context, id string, at time.Time) error
	CountByStatus(ctx context.Context) ([]StatusCount, error)
	CountScheduledBetween(ctx context.Context, from, to time.Time) (int64, error)
	PruneTerminal(ctx context.Context, olderThan time.Time) (int64, error)
}

type GormPlannedNotificationRepo struct {
	db *gorm.DB
}

func NewGormPlannedNotificationRepo(db *gorm.DB) *GormPlannedNotificationRepo {
	return &GormPlannedNotificationRepo{db: db}
}

func (r *GormPlannedNotificationRepo) Insert(ctx context.Context, n *domain.PlannedNotification) error {
	model := modelFromDomain(n)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		if isUniqueViolationError(err) {
			return fmt.Errorf("%w: active %s notification already planned for device", domain.ErrConflict, n.Type)
		}
		return err
	}
	if n != nil {
		*n = *modelToDomain(model)
	}
	return nil
}

func (r *GormPlannedNotificationRepo) GetByID(ctx context.Context, id string) (*domain.PlannedNotification, error) {
	var model PlannedNotificationModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return modelToDomain(&model), nil
}

func (r *GormPlannedNotificationRepo) List(ctx context.Context, params ListParams) ([]domain.PlannedNotification, int64, error) {
	query := r.db.WithContext(ctx).Model(&PlannedNotificationModel{})

	if params.Status != nil {
		query = query.Where("status = ?", *params.Status)
	}
	if params.Type != nil {
		query = query.Where("notification_type = ?", *params.Type)
	}
	if params.Source != nil {
		query = query.Where("planned_source = ?", *params.Source)
	}
	if params.ClientID != nil {
		query = query.Where("client_id = ?", *params.ClientID)
	}
	if params.DeviceID != nil {
		query = query.Where("device_id = ?", *params.DeviceID)
	}
	if params.ScheduledFrom != nil {
		query = query.Where("scheduled_at >= ?", *params.ScheduledFrom)
	}
	if params.ScheduledTo != nil {
		query = query.Where("scheduled_at < ?", *params.ScheduledTo)
	}
	if term := strings.TrimSpace(params.Search); term != "" {
		pattern := "%" + strings.ToLower(term) + "%"
		query = query.Where(
			"LOWER(client_name) LIKE ? OR LOWER(phone_number) LIKE ? OR LOWER(device_name) LIKE ? OR LOWER(message) LIKE ?",
			pattern, pattern, pattern, pattern,
		)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page := max(params.Page, 1)
	pageSize := params.PageSize
	if pageSize < 1 {
		pageSize = 50
	}
	pageSize = min(pageSize, 100)

	var models []PlannedNotificationModel
	err := query.
		Order("scheduled_at ASC").
		Order(secondaryOrder(params.SortBy)).
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&models).Error
	if err != nil {
		return nil, 0, err
	}

	notifications := make([]domain.PlannedNotification, 0, len(models))
	for i := range models {
		notifications = append(notifications, *modelToDomain(&models[i]))
	}

	return notifications, total, nil
}

func secondaryOrder(key SortKey) string {
	switch key {
	case SortByStatus:
		return "status ASC"
	case SortByType:
		return "notification_type ASC"
	default:
		return "client_name ASC"
	}
}

func (r *GormPlannedNotificationRepo) Update(ctx context.Context, n *domain.PlannedNotification) error {
	if n == nil || strings.TrimSpace(n.ID) == "" {
		return fmt.Errorf("%w: notification id is required", domain.ErrValidation)
	}

	model := modelFromDomain(n)
	result := r.db.WithContext(ctx).
		Model(&PlannedNotificationModel{}).
		Where("id = ?", n.ID).
		Select("*").
		Omit("id", "created_at").
		Updates(model)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *GormPlannedNotificationRepo) Delete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Delete(&PlannedNotificationModel{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// CancelAutomaticScheduled cancels every active automatic entry in one
// statement; this is the destructive phase of force-replan.
func (r *GormPlannedNotificationRepo) CancelAutomaticScheduled(ctx context.Context, now time.Time, reason string) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&PlannedNotificationModel{}).
		Where("status = ? AND planned_source IN ?", domain.StatusScheduled, automaticSources()).
		Updates(map[string]any{
			"status":        domain.StatusCancelled,
			"status_reason": reason,
			"updated_at":    now,
		})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func (r *GormPlannedNotificationRepo) GetDueForDispatch(ctx context.Context, now time.Time, limit int) ([]domain.PlannedNotification, error) {
	var models []PlannedNotificationModel
	err := r.db.WithContext(ctx).
		Where("status = ? AND scheduled_at <= ? AND dispatched_at IS NULL", domain.StatusScheduled, now).
		Order("scheduled_at ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	notifications := make([]domain.PlannedNotification, 0, len(models))
	for i := range models {
		notifications = append(notifications, *modelToDomain(&models[i]))
	}

	return notifications, nil
}

func (r *GormPlannedNotificationRepo) MarkDispatched(ctx context.Context, id string, at time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&PlannedNotificationModel{}).
		Where("id = ? AND status = ?", id, domain.StatusScheduled).
		Update("dispatched_at", at)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *GormPlannedNotificationRepo) CountByStatus(ctx context.Context) ([]StatusCount, error) {
	var counts []StatusCount
	err := r.db.WithContext(ctx).
		Model(&PlannedNotificationModel{}).
		Select("status, COUNT(*) as count").
		Group("status").
		Scan(&counts).Error
	if err != nil {
		return nil, err
	}
	return counts, nil
}

func (r *GormPlannedNotificationRepo) CountScheduledBetween(ctx context.Context, from, to time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&PlannedNotificationModel{}).
		Where("scheduled_at >= ? AND scheduled_at < ?", from, to).
		Count(&count).Error
	return count, err
}

func (r *GormPlannedNotificationRepo) PruneTerminal(ctx context.Context, olderThan time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("status IN ? AND updated_at < ?", terminalStatuses(), olderThan).
		Delete(&PlannedNotificationModel{})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func automaticSources() []domain.PlannedSource {
	return []domain.PlannedSource{domain.SourceAutomaticInspection, domain.SourceAutomaticExpiration}
}

func terminalStatuses() []domain.Status {
	return []domain.Status{domain.StatusSent, domain.StatusCancelled, domain.StatusSkipped}
}

func isUniqueViolationError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "unique constraint")
}
