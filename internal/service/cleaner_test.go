package service

import (
	"context"
	"testing"
	"time"

	"github.com/fieldserve/notify-planner/internal/domain"
	"github.com/fieldserve/notify-planner/internal/repository"
	"go.uber.org/zap"
)

func TestCleanerRunOnce(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 9, 2, 10, 0, 0, 0, time.UTC)
	maxAge := 30 * 24 * time.Hour

	oldSent := queryFixture("old-sent", "Kowalski", now.AddDate(0, -2, 0), domain.StatusSent)
	oldSent.UpdatedAt = now.AddDate(0, -2, 0)
	oldCancelled := queryFixture("old-cancelled", "Nowak", now.AddDate(0, -2, 0), domain.StatusCancelled)
	oldCancelled.UpdatedAt = now.AddDate(0, -2, 0)
	oldFailed := queryFixture("old-failed", "Nowak", now.AddDate(0, -2, 0), domain.StatusFailed)
	oldFailed.UpdatedAt = now.AddDate(0, -2, 0)
	recentSent := queryFixture("recent-sent", "Wisniewski", now.AddDate(0, 0, -2), domain.StatusSent)
	recentSent.UpdatedAt = now.AddDate(0, 0, -2)
	scheduled := queryFixture("scheduled", "Kowalski", now.AddDate(0, -2, 0), domain.StatusScheduled)
	scheduled.UpdatedAt = now.AddDate(0, -2, 0)

	repo := repository.NewMemoryPlannedNotificationRepo(oldSent, oldCancelled, oldFailed, recentSent, scheduled)

	cleaner, err := NewCleaner(repo, time.Hour, maxAge, nil, zap.NewNop())
	if err != nil {
		t.Fatalf("NewCleaner() error = %v", err)
	}
	cleaner.now = func() time.Time { return now }

	if err := cleaner.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}

	// Only old terminal entries go; FAILED is not terminal and scheduled
	// work is never pruned.
	if repo.Len() != 3 {
		t.Fatalf("remaining entries = %d, want 3", repo.Len())
	}
	for _, id := range []string{"old-failed", "recent-sent", "scheduled"} {
		if _, err := repo.GetByID(context.Background(), id); err != nil {
			t.Fatalf("entry %s unexpectedly pruned: %v", id, err)
		}
	}
	for _, id := range []string{"old-sent", "old-cancelled"} {
		if _, err := repo.GetByID(context.Background(), id); err == nil {
			t.Fatalf("entry %s should have been pruned", id)
		}
	}
}

func TestNewCleanerDefaults(t *testing.T) {
	t.Parallel()

	if _, err := NewCleaner(nil, 0, 0, nil, nil); err == nil {
		t.Fatal("expected error for nil repository")
	}

	cleaner, err := NewCleaner(repository.NewMemoryPlannedNotificationRepo(), 0, 0, nil, nil)
	if err != nil {
		t.Fatalf("NewCleaner() error = %v", err)
	}
	if cleaner.interval != defaultCleanupInterval {
		t.Fatalf("interval = %v, want default", cleaner.interval)
	}
	if cleaner.maxAge != defaultRetentionMaxAge {
		t.Fatalf("maxAge = %v, want default", cleaner.maxAge)
	}
}
