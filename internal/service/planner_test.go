package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fieldserve/notify-planner/internal/domain"
	"github.com/fieldserve/notify-planner/internal/repository"
	"go.uber.org/zap"
)

type fakeSource struct {
	devices    []domain.DeviceSnapshot
	clients    []domain.ClientSnapshot
	devicesErr error
	clientsErr error
}

func (f *fakeSource) Devices(context.Context) ([]domain.DeviceSnapshot, error) {
	return f.devices, f.devicesErr
}

func (f *fakeSource) Clients(context.Context) ([]domain.ClientSnapshot, error) {
	return f.clients, f.clientsErr
}

type fakeLock struct {
	held     bool
	acquired int
	released int
}

func (f *fakeLock) Acquire(context.Context) (func(context.Context) error, error) {
	if f.held {
		return nil, domain.ErrConflict
	}
	f.acquired++
	f.held = true
	return func(context.Context) error {
		f.held = false
		f.released++
		return nil
	}, nil
}

func newTestPlanner(repo repository.PlannedNotificationRepository, source *fakeSource, lock ReplanLock) *Planner {
	cfg := domain.PolicyConfig{ReminderDaysAhead: 14, ExpirationDayEnabled: true, MaxRetries: 3}
	planner := NewPlanner(repo, source, lock, cfg, nil, zap.NewNop())
	planner.now = func() time.Time { return policyNow }
	return planner
}

func TestRefreshPlanningIsIdempotent(t *testing.T) {
	t.Parallel()

	repo := repository.NewMemoryPlannedNotificationRepo()
	source := &fakeSource{devices: policyDevices(), clients: policyClients()}
	planner := newTestPlanner(repo, source, nil)

	first, err := planner.RefreshPlanning(context.Background(), 0)
	if err != nil {
		t.Fatalf("RefreshPlanning() error = %v", err)
	}
	// Two inspection reminders plus one expiration-day entry.
	if first.Added != 3 {
		t.Fatalf("first run added = %d, want 3", first.Added)
	}
	if first.AlreadyPlanned != 0 || len(first.Errors) != 0 {
		t.Fatalf("first run = %+v, want clean", first)
	}

	second, err := planner.RefreshPlanning(context.Background(), 0)
	if err != nil {
		t.Fatalf("RefreshPlanning() second run error = %v", err)
	}
	if second.Added != 0 {
		t.Fatalf("second run added = %d, want 0", second.Added)
	}
	if second.AlreadyPlanned != 3 {
		t.Fatalf("second run alreadyPlanned = %d, want 3", second.AlreadyPlanned)
	}
	if repo.Len() != 3 {
		t.Fatalf("stored entries = %d, want 3", repo.Len())
	}
}

func TestRefreshPlanningDaysAheadOverride(t *testing.T) {
	t.Parallel()

	repo := repository.NewMemoryPlannedNotificationRepo()
	source := &fakeSource{devices: policyDevices(), clients: policyClients()}
	planner := newTestPlanner(repo, source, nil)

	// With a 30-day lead time dev-far-out (20 days out) qualifies too.
	report, err := planner.RefreshPlanning(context.Background(), 30)
	if err != nil {
		t.Fatalf("RefreshPlanning() error = %v", err)
	}
	if report.Added != 4 {
		t.Fatalf("added = %d, want 4", report.Added)
	}
}

func TestRefreshPlanningReportsPartialFailure(t *testing.T) {
	t.Parallel()

	devices := append(policyDevices(), domain.DeviceSnapshot{
		ID: "dev-orphan", ClientID: "cli-missing", DisplayName: "Chiller",
		InspectionDueDate: policyNow.AddDate(0, 0, 3), Active: true,
	})

	repo := repository.NewMemoryPlannedNotificationRepo()
	source := &fakeSource{devices: devices, clients: policyClients()}
	planner := newTestPlanner(repo, source, nil)

	report, err := planner.RefreshPlanning(context.Background(), 0)
	if err != nil {
		t.Fatalf("RefreshPlanning() error = %v", err)
	}
	if report.Added != 3 {
		t.Fatalf("added = %d, want 3", report.Added)
	}
	if len(report.Errors) != 1 {
		t.Fatalf("errors = %d, want 1", len(report.Errors))
	}
	if report.Errors[0].DeviceID != "dev-orphan" {
		t.Fatalf("error device = %s, want dev-orphan", report.Errors[0].DeviceID)
	}
}

func TestRefreshPlanningPropagatesSnapshotFailure(t *testing.T) {
	t.Parallel()

	repo := repository.NewMemoryPlannedNotificationRepo()
	source := &fakeSource{devicesErr: domain.ErrDependency}
	planner := newTestPlanner(repo, source, nil)

	if _, err := planner.RefreshPlanning(context.Background(), 0); !errors.Is(err, domain.ErrDependency) {
		t.Fatalf("RefreshPlanning() error = %v, want ErrDependency", err)
	}
	if repo.Len() != 0 {
		t.Fatalf("stored entries = %d, want 0", repo.Len())
	}
}

func TestForceReplanRebuildsAutomaticPlan(t *testing.T) {
	t.Parallel()

	deviceID := "dev-due-soon"
	clientID := "cli-1"
	manualID := "manual-1"
	staleID := "stale-auto"
	stale := domain.PlannedNotification{
		ID: staleID, DeviceID: &deviceID, ClientID: &clientID,
		DeviceName: "Boiler GX-200", ClientName: "Jan Kowalski",
		PhoneNumber: "+48555111222", Message: "old reminder",
		ScheduledAt: policyNow.AddDate(0, 0, -1),
		Status:      domain.StatusScheduled, Type: domain.TypeInspectionReminder,
		Source: domain.SourceAutomaticInspection, MaxRetries: 3,
		CreatedAt: policyNow.AddDate(0, 0, -1), UpdatedAt: policyNow.AddDate(0, 0, -1),
	}
	manual := domain.PlannedNotification{
		ID: manualID, ClientName: "Anna Nowak", PhoneNumber: "+48555333444",
		Message: "custom offer", ScheduledAt: policyNow.AddDate(0, 0, 2),
		Status: domain.StatusScheduled, Type: domain.TypeManualCustom,
		Source: domain.SourceManualCustom, MaxRetries: 3,
		CreatedAt: policyNow, UpdatedAt: policyNow,
	}

	repo := repository.NewMemoryPlannedNotificationRepo(stale, manual)
	source := &fakeSource{devices: policyDevices(), clients: policyClients()}
	lock := &fakeLock{}
	planner := newTestPlanner(repo, source, lock)

	report, err := planner.ForceReplan(context.Background(), 0)
	if err != nil {
		t.Fatalf("ForceReplan() error = %v", err)
	}
	if report.Cancelled != 1 {
		t.Fatalf("cancelled = %d, want 1", report.Cancelled)
	}
	if report.Added != 3 {
		t.Fatalf("added = %d, want 3", report.Added)
	}
	if lock.acquired != 1 || lock.released != 1 {
		t.Fatalf("lock acquired/released = %d/%d, want 1/1", lock.acquired, lock.released)
	}

	cancelled, err := repo.GetByID(context.Background(), staleID)
	if err != nil {
		t.Fatalf("GetByID(stale) error = %v", err)
	}
	if cancelled.Status != domain.StatusCancelled {
		t.Fatalf("stale status = %s, want CANCELLED", cancelled.Status)
	}

	untouched, err := repo.GetByID(context.Background(), manualID)
	if err != nil {
		t.Fatalf("GetByID(manual) error = %v", err)
	}
	if untouched.Status != domain.StatusScheduled {
		t.Fatalf("manual status = %s, want SCHEDULED", untouched.Status)
	}
}

func TestForceReplanRejectsConcurrentRun(t *testing.T) {
	t.Parallel()

	repo := repository.NewMemoryPlannedNotificationRepo()
	source := &fakeSource{devices: policyDevices(), clients: policyClients()}
	planner := newTestPlanner(repo, source, &fakeLock{held: true})

	if _, err := planner.ForceReplan(context.Background(), 0); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("ForceReplan() error = %v, want ErrConflict", err)
	}
	if repo.Len() != 0 {
		t.Fatalf("stored entries = %d, want 0", repo.Len())
	}
}

func TestPlanInspectionRemindersOnly(t *testing.T) {
	t.Parallel()

	repo := repository.NewMemoryPlannedNotificationRepo()
	source := &fakeSource{devices: policyDevices(), clients: policyClients()}
	planner := newTestPlanner(repo, source, nil)

	report, err := planner.PlanInspectionReminders(context.Background(), 0)
	if err != nil {
		t.Fatalf("PlanInspectionReminders() error = %v", err)
	}
	if report.Added != 2 {
		t.Fatalf("added = %d, want 2", report.Added)
	}
}

func TestPlanExpirationNotificationsIgnoresFlag(t *testing.T) {
	t.Parallel()

	repo := repository.NewMemoryPlannedNotificationRepo()
	source := &fakeSource{devices: policyDevices(), clients: policyClients()}
	cfg := domain.PolicyConfig{ReminderDaysAhead: 14, ExpirationDayEnabled: false, MaxRetries: 3}
	planner := NewPlanner(repo, source, nil, cfg, nil, zap.NewNop())
	planner.now = func() time.Time { return policyNow }

	// The explicit endpoint plans expiration entries even with the scheduled
	// pass disabled.
	report, err := planner.PlanExpirationNotifications(context.Background())
	if err != nil {
		t.Fatalf("PlanExpirationNotifications() error = %v", err)
	}
	if report.Added != 1 {
		t.Fatalf("added = %d, want 1", report.Added)
	}
}
