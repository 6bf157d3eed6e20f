package domain

import (
	"fmt"
	"strings"
	"time"
)

// Status represents the lifecycle state of a planned notification.
type Status string

const (
	StatusScheduled Status = "SCHEDULED"
	StatusSent      Status = "SENT"
	StatusFailed    Status = "FAILED"
	StatusSkipped   Status = "SKIPPED"
	StatusCancelled Status = "CANCELLED"
)

func (s Status) String() string { return string(s) }

func (s Status) IsValid() bool {
	switch s {
	case StatusScheduled, StatusSent, StatusFailed, StatusSkipped, StatusCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether no further lifecycle transition is permitted.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusSent, StatusCancelled, StatusSkipped:
		return true
	}
	return false
}

func ParseStatusFromString(s string) (Status, error) {
	st := Status(strings.ToUpper(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid status %q", ErrValidation, s)
	}
	return st, nil
}

// NotificationType classifies what a planned notification is about.
type NotificationType string

const (
	TypeInspectionReminder     NotificationType = "INSPECTION_REMINDER"
	TypeExpirationNotification NotificationType = "EXPIRATION_NOTIFICATION"
	TypeManualCustom           NotificationType = "MANUAL_CUSTOM"
	TypeAdvertising            NotificationType = "ADVERTISING"
)

func (t NotificationType) String() string { return string(t) }

func (t NotificationType) IsValid() bool {
	switch t {
	case TypeInspectionReminder, TypeExpirationNotification, TypeManualCustom, TypeAdvertising:
		return true
	}
	return false
}

func ParseNotificationTypeFromString(s string) (NotificationType, error) {
	t := NotificationType(strings.ToUpper(strings.TrimSpace(s)))
	if !t.IsValid() {
		return "", fmt.Errorf("%w: invalid notification type %q", ErrValidation, s)
	}
	return t, nil
}

// PlannedSource records how a notification came into existence.
type PlannedSource string

const (
	SourceAutomaticInspection PlannedSource = "AUTOMATIC_INSPECTION"
	SourceAutomaticExpiration PlannedSource = "AUTOMATIC_EXPIRATION"
	SourceManualCustom        PlannedSource = "MANUAL_CUSTOM"
)

func (p PlannedSource) String() string { return string(p) }

func (p PlannedSource) IsValid() bool {
	switch p {
	case SourceAutomaticInspection, SourceAutomaticExpiration, SourceManualCustom:
		return true
	}
	return false
}

// IsAutomatic reports whether the entry was generated by the policy engine.
// Automatic entries fall under the one-active-per-(device,type) dedup rule and
// are the only entries touched by refresh and force-replan.
func (p PlannedSource) IsAutomatic() bool {
	return p == SourceAutomaticInspection || p == SourceAutomaticExpiration
}

func ParsePlannedSourceFromString(s string) (PlannedSource, error) {
	p := PlannedSource(strings.ToUpper(strings.TrimSpace(s)))
	if !p.IsValid() {
		return "", fmt.Errorf("%w: invalid planned source %q", ErrValidation, s)
	}
	return p, nil
}

const DefaultMaxRetries = 3

// PlannedNotification is the core entity: a reminder/message awaiting delivery.
// Client and device names are denormalized at planning time so entries stay
// searchable after the referenced device or client is deleted.
type PlannedNotification struct {
	ID           string
	DeviceID     *string
	ClientID     *string
	DeviceName   string
	ClientName   string
	PhoneNumber  string
	Message      string
	ScheduledAt  time.Time
	Status       Status
	Type         NotificationType
	Source       PlannedSource
	StatusReason *string
	ErrorMessage *string
	RetryCount   int
	MaxRetries   int
	SentAt       *time.Time
	DispatchedAt *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (n *PlannedNotification) Validate() error {
	if strings.TrimSpace(n.PhoneNumber) == "" {
		return fmt.Errorf("%w: phone number is required", ErrValidation)
	}
	if strings.TrimSpace(n.Message) == "" {
		return fmt.Errorf("%w: message is required", ErrValidation)
	}
	if n.ScheduledAt.IsZero() {
		return fmt.Errorf("%w: scheduledAt is required", ErrValidation)
	}
	if !n.Status.IsValid() {
		return fmt.Errorf("%w: invalid status %q", ErrValidation, n.Status)
	}
	if !n.Type.IsValid() {
		return fmt.Errorf("%w: invalid notification type %q", ErrValidation, n.Type)
	}
	if !n.Source.IsValid() {
		return fmt.Errorf("%w: invalid planned source %q", ErrValidation, n.Source)
	}
	if n.MaxRetries <= 0 {
		return fmt.Errorf("%w: maxRetries must be positive", ErrValidation)
	}
	if n.RetryCount > n.MaxRetries {
		return fmt.Errorf("%w: retryCount %d exceeds maxRetries %d", ErrValidation, n.RetryCount, n.MaxRetries)
	}
	if n.Source.IsAutomatic() && n.DeviceID == nil {
		return fmt.Errorf("%w: automatic entries require a device reference", ErrValidation)
	}
	return nil
}

// guardActive rejects lifecycle events on anything but a SCHEDULED entry.
func (n *PlannedNotification) guardActive(event string) error {
	if n.Status != StatusScheduled {
		return fmt.Errorf("%w: cannot %s a %s notification", ErrInvalidTransition, event, n.Status)
	}
	return nil
}

// MarkSent moves SCHEDULED -> SENT and records the delivery time.
func (n *PlannedNotification) MarkSent(now time.Time) error {
	if err := n.guardActive("mark sent"); err != nil {
		return err
	}
	sentAt := now
	n.Status = StatusSent
	n.SentAt = &sentAt
	n.ErrorMessage = nil
	n.UpdatedAt = now
	return nil
}

// MarkFailed moves SCHEDULED -> FAILED and burns one retry. The entry stays
// FAILED; a new SCHEDULED entry is created via Requeue if budget remains.
func (n *PlannedNotification) MarkFailed(now time.Time, errorMessage string) error {
	if err := n.guardActive("mark failed"); err != nil {
		return err
	}
	n.Status = StatusFailed
	if n.RetryCount < n.MaxRetries {
		n.RetryCount++
	}
	msg := strings.TrimSpace(errorMessage)
	if msg == "" {
		msg = "delivery failed"
	}
	n.ErrorMessage = &msg
	n.UpdatedAt = now
	return nil
}

// Cancel moves SCHEDULED -> CANCELLED. A reason is mandatory.
func (n *PlannedNotification) Cancel(now time.Time, reason string) error {
	trimmed := strings.TrimSpace(reason)
	if trimmed == "" {
		return fmt.Errorf("%w: cancel reason is required", ErrValidation)
	}
	if err := n.guardActive("cancel"); err != nil {
		return err
	}
	n.Status = StatusCancelled
	n.StatusReason = &trimmed
	n.UpdatedAt = now
	return nil
}

// Skip moves SCHEDULED -> SKIPPED, used when the target device or client no
// longer exists.
func (n *PlannedNotification) Skip(now time.Time, reason string) error {
	trimmed := strings.TrimSpace(reason)
	if trimmed == "" {
		return fmt.Errorf("%w: skip reason is required", ErrValidation)
	}
	if err := n.guardActive("skip"); err != nil {
		return err
	}
	n.Status = StatusSkipped
	n.StatusReason = &trimmed
	n.UpdatedAt = now
	return nil
}

// UpdateMessage replaces the message body; legal only while still SCHEDULED.
func (n *PlannedNotification) UpdateMessage(now time.Time, message string) error {
	trimmed := strings.TrimSpace(message)
	if trimmed == "" {
		return fmt.Errorf("%w: message is required", ErrValidation)
	}
	if err := n.guardActive("update message of"); err != nil {
		return err
	}
	n.Message = trimmed
	n.UpdatedAt = now
	return nil
}

// RequeueClone derives a fresh SCHEDULED entry from a FAILED one, carrying the
// retry count forward. The caller assigns the new ID before persisting; the
// original entry is left untouched.
func (n *PlannedNotification) RequeueClone(now time.Time) (*PlannedNotification, error) {
	if n.Status != StatusFailed {
		return nil, fmt.Errorf("%w: only failed notifications can be requeued, got %s", ErrInvalidTransition, n.Status)
	}
	if n.RetryCount >= n.MaxRetries {
		return nil, fmt.Errorf("%w: retry budget exhausted (%d/%d)", ErrInvalidTransition, n.RetryCount, n.MaxRetries)
	}

	clone := *n
	clone.ID = ""
	clone.Status = StatusScheduled
	clone.ScheduledAt = now
	clone.StatusReason = nil
	clone.ErrorMessage = nil
	clone.SentAt = nil
	clone.DispatchedAt = nil
	clone.CreatedAt = now
	clone.UpdatedAt = now
	return &clone, nil
}
