package service

import (
	"fmt"
	"time"

	"github.com/fieldserve/notify-planner/internal/domain"
)

// PolicyEngine computes the desired set of automatic notifications from
// device and client snapshots. It is pure: no store access, no wall clock.
// Deduplication is not its job; the store rejects candidates that are
// already planned.
type PolicyEngine struct{}

func NewPolicyEngine() *PolicyEngine {
	return &PolicyEngine{}
}

// CandidateError reports a device that could not be planned for.
type CandidateError struct {
	DeviceID string
	Err      error
}

// Candidates returns the full desired set for the given snapshots:
// inspection reminders plus, when enabled, expiration-day notifications.
func (e *PolicyEngine) Candidates(
	now time.Time,
	devices []domain.DeviceSnapshot,
	clients []domain.ClientSnapshot,
	cfg domain.PolicyConfig,
) ([]domain.PlannedNotification, []CandidateError) {
	cfg = cfg.Normalized()

	candidates, errs := e.InspectionCandidates(now, devices, clients, cfg)
	if cfg.ExpirationDayEnabled {
		expiration, expirationErrs := e.ExpirationCandidates(now, devices, clients, cfg)
		candidates = append(candidates, expiration...)
		errs = append(errs, expirationErrs...)
	}

	return candidates, errs
}

// InspectionCandidates produces one INSPECTION_REMINDER per active device
// whose reminder date (inspection due date minus the configured lead time)
// has arrived.
func (e *PolicyEngine) InspectionCandidates(
	now time.Time,
	devices []domain.DeviceSnapshot,
	clients []domain.ClientSnapshot,
	cfg domain.PolicyConfig,
) ([]domain.PlannedNotification, []CandidateError) {
	cfg = cfg.Normalized()
	clientIndex := indexClients(clients)

	var candidates []domain.PlannedNotification
	var errs []CandidateError

	for _, device := range devices {
		if !device.Active {
			continue
		}

		reminderDate := device.InspectionDueDate.AddDate(0, 0, -cfg.ReminderDaysAhead)
		if reminderDate.After(now) {
			continue
		}

		client, err := resolveClient(clientIndex, device)
		if err != nil {
			errs = append(errs, CandidateError{DeviceID: device.ID, Err: err})
			continue
		}

		message := fmt.Sprintf(
			"Reminder: inspection of %s for %s is due on %s.",
			device.DisplayName, client.Name, device.InspectionDueDate.Format("2006-01-02"),
		)
		candidates = append(candidates, buildCandidate(
			now, device, client, message,
			domain.TypeInspectionReminder, domain.SourceAutomaticInspection, cfg,
		))
	}

	return candidates, errs
}

// ExpirationCandidates produces one EXPIRATION_NOTIFICATION per active
// device whose inspection due date falls on the current calendar day.
func (e *PolicyEngine) ExpirationCandidates(
	now time.Time,
	devices []domain.DeviceSnapshot,
	clients []domain.ClientSnapshot,
	cfg domain.PolicyConfig,
) ([]domain.PlannedNotification, []CandidateError) {
	cfg = cfg.Normalized()
	clientIndex := indexClients(clients)

	var candidates []domain.PlannedNotification
	var errs []CandidateError

	for _, device := range devices {
		if !device.Active {
			continue
		}
		if !sameDay(device.InspectionDueDate, now) {
			continue
		}

		client, err := resolveClient(clientIndex, device)
		if err != nil {
			errs = append(errs, CandidateError{DeviceID: device.ID, Err: err})
			continue
		}

		message := fmt.Sprintf(
			"Inspection of %s for %s expires today.",
			device.DisplayName, client.Name,
		)
		candidates = append(candidates, buildCandidate(
			now, device, client, message,
			domain.TypeExpirationNotification, domain.SourceAutomaticExpiration, cfg,
		))
	}

	return candidates, errs
}

func indexClients(clients []domain.ClientSnapshot) map[string]domain.ClientSnapshot {
	index := make(map[string]domain.ClientSnapshot, len(clients))
	for _, client := range clients {
		index[client.ID] = client
	}
	return index
}

func resolveClient(index map[string]domain.ClientSnapshot, device domain.DeviceSnapshot) (domain.ClientSnapshot, error) {
	client, ok := index[device.ClientID]
	if !ok {
		return domain.ClientSnapshot{}, fmt.Errorf("%w: client %s for device %s not found", domain.ErrDependency, device.ClientID, device.ID)
	}
	if client.PhoneNumber == "" {
		return domain.ClientSnapshot{}, fmt.Errorf("%w: client %s has no phone number", domain.ErrDependency, client.ID)
	}
	return client, nil
}

func buildCandidate(
	now time.Time,
	device domain.DeviceSnapshot,
	client domain.ClientSnapshot,
	message string,
	notificationType domain.NotificationType,
	source domain.PlannedSource,
	cfg domain.PolicyConfig,
) domain.PlannedNotification {
	deviceID := device.ID
	clientID := client.ID

	return domain.PlannedNotification{
		DeviceID:    &deviceID,
		ClientID:    &clientID,
		DeviceName:  device.DisplayName,
		ClientName:  client.Name,
		PhoneNumber: client.PhoneNumber,
		Message:     message,
		ScheduledAt: now,
		Status:      domain.StatusScheduled,
		Type:        notificationType,
		Source:      source,
		MaxRetries:  cfg.MaxRetries,
	}
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}
