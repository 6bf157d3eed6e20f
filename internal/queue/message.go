package queue

import (
	"fmt"
	"strings"
	"time"
)

// OutboxMessage is the broker payload handed to the SMS gateway.
type OutboxMessage struct {
	NotificationID string    `json:"notificationId"`
	PhoneNumber    string    `json:"phoneNumber"`
	Message        string    `json:"message"`
	ScheduledAt    time.Time `json:"scheduledAt"`
}

func (m OutboxMessage) Validate() error {
	if strings.TrimSpace(m.NotificationID) == "" {
		return fmt.Errorf("notificationId is required")
	}
	if strings.TrimSpace(m.PhoneNumber) == "" {
		return fmt.Errorf("phoneNumber is required")
	}
	if strings.TrimSpace(m.Message) == "" {
		return fmt.Errorf("message is required")
	}
	return nil
}

// DeliveryReceipt is the gateway's answer for a dispatched notification.
// Transient marks failures worth retrying (gateway timeout, throttling).
type DeliveryReceipt struct {
	NotificationID string `json:"notificationId"`
	Delivered      bool   `json:"delivered"`
	Transient      bool   `json:"transient,omitempty"`
	Error          string `json:"error,omitempty"`
}

func (r DeliveryReceipt) Validate() error {
	if strings.TrimSpace(r.NotificationID) == "" {
		return fmt.Errorf("notificationId is required")
	}
	if !r.Delivered && strings.TrimSpace(r.Error) == "" {
		return fmt.Errorf("error is required for failed deliveries")
	}
	return nil
}
