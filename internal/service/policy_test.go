package service

import (
	"errors"
	"testing"
	"time"

	"github.com/fieldserve/notify-planner/internal/domain"
)

var policyNow = time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)

func policyDevices() []domain.DeviceSnapshot {
	return []domain.DeviceSnapshot{
		{ID: "dev-due-soon", ClientID: "cli-1", DisplayName: "Boiler GX-200", InspectionDueDate: policyNow.AddDate(0, 0, 10), Active: true},
		{ID: "dev-far-out", ClientID: "cli-1", DisplayName: "Heat pump A3", InspectionDueDate: policyNow.AddDate(0, 0, 20), Active: true},
		{ID: "dev-inactive", ClientID: "cli-1", DisplayName: "Old furnace", InspectionDueDate: policyNow.AddDate(0, 0, 2), Active: false},
		{ID: "dev-due-today", ClientID: "cli-2", DisplayName: "AC unit B1", InspectionDueDate: policyNow, Active: true},
	}
}

func policyClients() []domain.ClientSnapshot {
	return []domain.ClientSnapshot{
		{ID: "cli-1", Name: "Jan Kowalski", PhoneNumber: "+48555111222"},
		{ID: "cli-2", Name: "Anna Nowak", PhoneNumber: "+48555333444"},
	}
}

func TestInspectionCandidates(t *testing.T) {
	t.Parallel()

	engine := NewPolicyEngine()
	cfg := domain.PolicyConfig{ReminderDaysAhead: 14, MaxRetries: 3}

	candidates, errs := engine.InspectionCandidates(policyNow, policyDevices(), policyClients(), cfg)
	if len(errs) != 0 {
		t.Fatalf("unexpected candidate errors: %v", errs)
	}

	// dev-due-soon (10 days out) and dev-due-today qualify; dev-far-out is
	// beyond the lead time and dev-inactive is skipped.
	if len(candidates) != 2 {
		t.Fatalf("candidates = %d, want 2", len(candidates))
	}

	byDevice := make(map[string]domain.PlannedNotification)
	for _, c := range candidates {
		byDevice[*c.DeviceID] = c
	}
	if _, ok := byDevice["dev-due-soon"]; !ok {
		t.Fatal("expected candidate for dev-due-soon")
	}
	if _, ok := byDevice["dev-due-today"]; !ok {
		t.Fatal("expected candidate for dev-due-today")
	}

	got := byDevice["dev-due-soon"]
	if got.Type != domain.TypeInspectionReminder {
		t.Fatalf("type = %s, want INSPECTION_REMINDER", got.Type)
	}
	if got.Source != domain.SourceAutomaticInspection {
		t.Fatalf("source = %s, want AUTOMATIC_INSPECTION", got.Source)
	}
	if got.Status != domain.StatusScheduled {
		t.Fatalf("status = %s, want SCHEDULED", got.Status)
	}
	if !got.ScheduledAt.Equal(policyNow) {
		t.Fatalf("scheduledAt = %v, want %v", got.ScheduledAt, policyNow)
	}
	if got.PhoneNumber != "+48555111222" {
		t.Fatalf("phone = %q, want client phone", got.PhoneNumber)
	}
	if got.ClientName != "Jan Kowalski" || got.DeviceName != "Boiler GX-200" {
		t.Fatalf("denormalized names not carried: %q / %q", got.ClientName, got.DeviceName)
	}
	if got.MaxRetries != 3 {
		t.Fatalf("maxRetries = %d, want 3", got.MaxRetries)
	}
}

func TestExpirationCandidates(t *testing.T) {
	t.Parallel()

	engine := NewPolicyEngine()
	cfg := domain.PolicyConfig{ReminderDaysAhead: 14, MaxRetries: 3}

	candidates, errs := engine.ExpirationCandidates(policyNow, policyDevices(), policyClients(), cfg)
	if len(errs) != 0 {
		t.Fatalf("unexpected candidate errors: %v", errs)
	}
	if len(candidates) != 1 {
		t.Fatalf("candidates = %d, want 1", len(candidates))
	}

	got := candidates[0]
	if *got.DeviceID != "dev-due-today" {
		t.Fatalf("device = %s, want dev-due-today", *got.DeviceID)
	}
	if got.Type != domain.TypeExpirationNotification {
		t.Fatalf("type = %s, want EXPIRATION_NOTIFICATION", got.Type)
	}
	if got.Source != domain.SourceAutomaticExpiration {
		t.Fatalf("source = %s, want AUTOMATIC_EXPIRATION", got.Source)
	}
}

func TestCandidatesHonorsExpirationFlag(t *testing.T) {
	t.Parallel()

	engine := NewPolicyEngine()

	enabled := domain.PolicyConfig{ReminderDaysAhead: 14, ExpirationDayEnabled: true, MaxRetries: 3}
	candidates, _ := engine.Candidates(policyNow, policyDevices(), policyClients(), enabled)
	if len(candidates) != 3 {
		t.Fatalf("candidates with expiration enabled = %d, want 3", len(candidates))
	}

	disabled := domain.PolicyConfig{ReminderDaysAhead: 14, ExpirationDayEnabled: false, MaxRetries: 3}
	candidates, _ = engine.Candidates(policyNow, policyDevices(), policyClients(), disabled)
	if len(candidates) != 2 {
		t.Fatalf("candidates with expiration disabled = %d, want 2", len(candidates))
	}
	for _, c := range candidates {
		if c.Type == domain.TypeExpirationNotification {
			t.Fatal("expiration candidate produced while disabled")
		}
	}
}

func TestCandidatesReportsUnresolvableClients(t *testing.T) {
	t.Parallel()

	engine := NewPolicyEngine()
	cfg := domain.PolicyConfig{ReminderDaysAhead: 14, MaxRetries: 3}

	devices := []domain.DeviceSnapshot{
		{ID: "dev-orphan", ClientID: "cli-missing", DisplayName: "Boiler", InspectionDueDate: policyNow.AddDate(0, 0, 5), Active: true},
		{ID: "dev-no-phone", ClientID: "cli-silent", DisplayName: "Heat pump", InspectionDueDate: policyNow.AddDate(0, 0, 5), Active: true},
		{ID: "dev-ok", ClientID: "cli-1", DisplayName: "AC unit", InspectionDueDate: policyNow.AddDate(0, 0, 5), Active: true},
	}
	clients := []domain.ClientSnapshot{
		{ID: "cli-silent", Name: "Quiet Client", PhoneNumber: ""},
		{ID: "cli-1", Name: "Jan Kowalski", PhoneNumber: "+48555111222"},
	}

	candidates, errs := engine.InspectionCandidates(policyNow, devices, clients, cfg)
	if len(candidates) != 1 {
		t.Fatalf("candidates = %d, want 1", len(candidates))
	}
	if *candidates[0].DeviceID != "dev-ok" {
		t.Fatalf("candidate device = %s, want dev-ok", *candidates[0].DeviceID)
	}

	if len(errs) != 2 {
		t.Fatalf("candidate errors = %d, want 2", len(errs))
	}
	for _, candidateErr := range errs {
		if !errors.Is(candidateErr.Err, domain.ErrDependency) {
			t.Fatalf("error for %s = %v, want ErrDependency", candidateErr.DeviceID, candidateErr.Err)
		}
	}
}

func TestCandidatesDefaultsLeadTime(t *testing.T) {
	t.Parallel()

	engine := NewPolicyEngine()

	// ReminderDaysAhead 0 falls back to the 14-day default, so a device due
	// in 10 days still qualifies.
	devices := []domain.DeviceSnapshot{
		{ID: "dev-1", ClientID: "cli-1", DisplayName: "Boiler", InspectionDueDate: policyNow.AddDate(0, 0, 10), Active: true},
	}
	candidates, errs := engine.InspectionCandidates(policyNow, devices, policyClients(), domain.PolicyConfig{})
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if len(candidates) != 1 {
		t.Fatalf("candidates = %d, want 1", len(candidates))
	}
	if candidates[0].MaxRetries != domain.DefaultMaxRetries {
		t.Fatalf("maxRetries = %d, want default %d", candidates[0].MaxRetries, domain.DefaultMaxRetries)
	}
}
