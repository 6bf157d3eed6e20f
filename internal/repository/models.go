package repository

import (
	"time"

	"github.com/fieldserve/notify-planner/internal/domain"
)

// PlannedNotificationModel is the persistence model for planned_notifications.
type PlannedNotificationModel struct {
	ID           string                  `gorm:"type:uuid;primaryKey"`
	DeviceID     *string                 `gorm:"type:varchar(64);index"`
	ClientID     *string                 `gorm:"type:varchar(64);index"`
	DeviceName   string                  `gorm:"type:varchar(255);not null;default:''"`
	ClientName   string                  `gorm:"type:varchar(255);not null;default:''"`
	PhoneNumber  string                  `gorm:"type:varchar(32);not null"`
	Message      string                  `gorm:"type:text;not null"`
	ScheduledAt  time.Time               `gorm:"type:timestamptz;not null"`
	Status       domain.Status           `gorm:"type:varchar(20);not null"`
	Type         domain.NotificationType `gorm:"column:notification_type;type:varchar(32);not null"`
	Source       domain.PlannedSource    `gorm:"column:planned_source;type:varchar(32);not null"`
	StatusReason *string                 `gorm:"type:text"`
	ErrorMessage *string                 `gorm:"type:text"`
	RetryCount   int                     `gorm:"not null;default:0"`
	MaxRetries   int                     `gorm:"not null;default:3"`
	SentAt       *time.Time              `gorm:"type:timestamptz"`
	DispatchedAt *time.Time              `gorm:"type:timestamptz"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (PlannedNotificationModel) TableName() string {
	return "planned_notifications"
}

func modelFromDomain(n *domain.PlannedNotification) *PlannedNotificationModel {
	if n == nil {
		return nil
	}

	return &PlannedNotificationModel{
		ID:           n.ID,
		DeviceID:     n.DeviceID,
		ClientID:     n.ClientID,
		DeviceName:   n.DeviceName,
		ClientName:   n.ClientName,
		PhoneNumber:  n.PhoneNumber,
		Message:      n.Message,
		ScheduledAt:  n.ScheduledAt,
		Status:       n.Status,
		Type:         n.Type,
		Source:       n.Source,
		StatusReason: n.StatusReason,
		ErrorMessage: n.ErrorMessage,
		RetryCount:   n.RetryCount,
		MaxRetries:   n.MaxRetries,
		SentAt:       n.SentAt,
		DispatchedAt: n.DispatchedAt,
		CreatedAt:    n.CreatedAt,
		UpdatedAt:    n.UpdatedAt,
	}
}

func modelToDomain(m *PlannedNotificationModel) *domain.PlannedNotification {
	if m == nil {
		return nil
	}

	return &domain.PlannedNotification{
		ID:           m.ID,
		DeviceID:     m.DeviceID,
		ClientID:     m.ClientID,
		DeviceName:   m.DeviceName,
		ClientName:   m.ClientName,
		PhoneNumber:  m.PhoneNumber,
		Message:      m.Message,
		ScheduledAt:  m.ScheduledAt,
		Status:       m.Status,
		Type:         m.Type,
		Source:       m.Source,
		StatusReason: m.StatusReason,
		ErrorMessage: m.ErrorMessage,
		RetryCount:   m.RetryCount,
		MaxRetries:   m.MaxRetries,
		SentAt:       m.SentAt,
		DispatchedAt: m.DispatchedAt,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}
