package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/fieldserve/notify-planner/internal/domain"
	"github.com/fieldserve/notify-planner/internal/queue"
	"github.com/fieldserve/notify-planner/internal/repository"
	"go.uber.org/zap"
)

type fakePublisher struct {
	mu        sync.Mutex
	published []queue.OutboxMessage
	failNext  bool
}

func (f *fakePublisher) Publish(_ context.Context, _ string, msg queue.OutboxMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext {
		f.failNext = false
		return fmt.Errorf("broker unavailable")
	}
	f.published = append(f.published, msg)
	return nil
}

func (f *fakePublisher) Close() error { return nil }

func (f *fakePublisher) messages() []queue.OutboxMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]queue.OutboxMessage(nil), f.published...)
}

func TestDispatcherScanDue(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 9, 2, 10, 0, 0, 0, time.UTC)
	repo := repository.NewMemoryPlannedNotificationRepo(
		queryFixture("due-1", "Kowalski", now.Add(-time.Hour), domain.StatusScheduled),
		queryFixture("due-2", "Nowak", now, domain.StatusScheduled),
		queryFixture("future", "Wisniewski", now.Add(time.Hour), domain.StatusScheduled),
		queryFixture("already-sent", "Kowalski", now.Add(-time.Hour), domain.StatusSent),
	)
	publisher := &fakePublisher{}

	dispatcher, err := NewDispatcher(repo, publisher, time.Minute, 100, nil, zap.NewNop())
	if err != nil {
		t.Fatalf("NewDispatcher() error = %v", err)
	}
	dispatcher.now = func() time.Time { return now }

	if err := dispatcher.ScanDue(context.Background()); err != nil {
		t.Fatalf("ScanDue() error = %v", err)
	}

	msgs := publisher.messages()
	if len(msgs) != 2 {
		t.Fatalf("published = %d, want 2", len(msgs))
	}
	if msgs[0].NotificationID != "due-1" || msgs[1].NotificationID != "due-2" {
		t.Fatalf("published order = %s, %s; want due-1, due-2", msgs[0].NotificationID, msgs[1].NotificationID)
	}

	// Dispatched entries stay SCHEDULED with dispatched_at set and are not
	// re-published on the next pass.
	dispatched, err := repo.GetByID(context.Background(), "due-1")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if dispatched.Status != domain.StatusScheduled {
		t.Fatalf("status = %s, want SCHEDULED", dispatched.Status)
	}
	if dispatched.DispatchedAt == nil {
		t.Fatal("dispatchedAt not set")
	}

	if err := dispatcher.ScanDue(context.Background()); err != nil {
		t.Fatalf("ScanDue() second pass error = %v", err)
	}
	if len(publisher.messages()) != 2 {
		t.Fatalf("published after second pass = %d, want 2", len(publisher.messages()))
	}
}

func TestDispatcherKeepsUnpublishedEntriesDue(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 9, 2, 10, 0, 0, 0, time.UTC)
	repo := repository.NewMemoryPlannedNotificationRepo(
		queryFixture("due-1", "Kowalski", now.Add(-time.Hour), domain.StatusScheduled),
	)
	publisher := &fakePublisher{failNext: true}

	dispatcher, err := NewDispatcher(repo, publisher, time.Minute, 100, nil, zap.NewNop())
	if err != nil {
		t.Fatalf("NewDispatcher() error = %v", err)
	}
	dispatcher.now = func() time.Time { return now }

	if err := dispatcher.ScanDue(context.Background()); err != nil {
		t.Fatalf("ScanDue() error = %v", err)
	}

	// The publish failed, so the entry is not marked dispatched and the
	// next pass picks it up again.
	entry, err := repo.GetByID(context.Background(), "due-1")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if entry.DispatchedAt != nil {
		t.Fatal("entry marked dispatched despite publish failure")
	}

	if err := dispatcher.ScanDue(context.Background()); err != nil {
		t.Fatalf("ScanDue() retry error = %v", err)
	}
	if len(publisher.messages()) != 1 {
		t.Fatalf("published = %d, want 1 after retry", len(publisher.messages()))
	}
}

func TestNewDispatcherValidation(t *testing.T) {
	t.Parallel()

	repo := repository.NewMemoryPlannedNotificationRepo()
	if _, err := NewDispatcher(nil, &fakePublisher{}, 0, 0, nil, nil); err == nil {
		t.Fatal("expected error for nil repository")
	}
	if _, err := NewDispatcher(repo, nil, 0, 0, nil, nil); err == nil {
		t.Fatal("expected error for nil publisher")
	}

	dispatcher, err := NewDispatcher(repo, &fakePublisher{}, 0, 0, nil, nil)
	if err != nil {
		t.Fatalf("NewDispatcher() error = %v", err)
	}
	if dispatcher.interval != defaultDispatchInterval {
		t.Fatalf("interval = %v, want default", dispatcher.interval)
	}
	if dispatcher.limit != defaultDispatchLimit {
		t.Fatalf("limit = %d, want default", dispatcher.limit)
	}
}
