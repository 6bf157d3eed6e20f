package domain

import "time"

// DeviceSnapshot is the device view consumed from the field-service backend.
type DeviceSnapshot struct {
	ID                string
	ClientID          string
	DisplayName       string
	InspectionDueDate time.Time
	Active            bool
}

// ClientSnapshot is the client view consumed from the field-service backend.
type ClientSnapshot struct {
	ID          string
	Name        string
	PhoneNumber string
}

const DefaultReminderDaysAhead = 14

// PolicyConfig drives automatic planning.
type PolicyConfig struct {
	ReminderDaysAhead    int
	ExpirationDayEnabled bool
	MaxRetries           int
}

// Normalized returns a copy with defaults filled in for non-positive values.
func (c PolicyConfig) Normalized() PolicyConfig {
	out := c
	if out.ReminderDaysAhead <= 0 {
		out.ReminderDaysAhead = DefaultReminderDaysAhead
	}
	if out.MaxRetries <= 0 {
		out.MaxRetries = DefaultMaxRetries
	}
	return out
}
