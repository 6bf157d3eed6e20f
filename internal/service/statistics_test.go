package service

import (
	"context"
	"testing"
	"time"

	"github.com/fieldserve/notify-planner/internal/domain"
	"github.com/fieldserve/notify-planner/internal/repository"
)

func TestStatisticsSummary(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 9, 2, 10, 0, 0, 0, time.UTC) // Wednesday

	repo := repository.NewMemoryPlannedNotificationRepo(
		queryFixture("s1", "Kowalski", now.Add(2*time.Hour), domain.StatusScheduled),
		queryFixture("s2", "Nowak", now.AddDate(0, 0, 2), domain.StatusScheduled),
		queryFixture("sent-today", "Kowalski", now.Add(-time.Hour), domain.StatusSent),
		queryFixture("failed-next-week", "Nowak", now.AddDate(0, 0, 8), domain.StatusFailed),
		queryFixture("cancelled-old", "Wisniewski", now.AddDate(0, 0, -10), domain.StatusCancelled),
	)

	svc := NewStatisticsService(repo)
	svc.now = func() time.Time { return now }

	stats, err := svc.Summary(context.Background())
	if err != nil {
		t.Fatalf("Summary() error = %v", err)
	}

	if stats.Total != 5 {
		t.Fatalf("total = %d, want 5", stats.Total)
	}

	// All five statuses are present even when zero.
	if len(stats.ByStatus) != 5 {
		t.Fatalf("byStatus keys = %d, want 5", len(stats.ByStatus))
	}
	if stats.ByStatus[domain.StatusScheduled] != 2 {
		t.Fatalf("scheduled = %d, want 2", stats.ByStatus[domain.StatusScheduled])
	}
	if stats.ByStatus[domain.StatusSkipped] != 0 {
		t.Fatalf("skipped = %d, want 0", stats.ByStatus[domain.StatusSkipped])
	}

	var sum int64
	for _, count := range stats.ByStatus {
		sum += count
	}
	if sum != stats.Total {
		t.Fatalf("sum of byStatus = %d, want total %d", sum, stats.Total)
	}

	// Window counts include every status: s1 and sent-today fall on the
	// current day.
	if stats.ScheduledToday != 2 {
		t.Fatalf("scheduledToday = %d, want 2", stats.ScheduledToday)
	}
	// The ISO week (Mon 2026-08-31 to Mon 2026-09-07) also covers s2; the
	// entry 8 days out and the 10-day-old one fall outside.
	if stats.ScheduledThisWeek != 3 {
		t.Fatalf("scheduledThisWeek = %d, want 3", stats.ScheduledThisWeek)
	}
}

func TestStatisticsSummaryEmptyStore(t *testing.T) {
	t.Parallel()

	svc := NewStatisticsService(repository.NewMemoryPlannedNotificationRepo())

	stats, err := svc.Summary(context.Background())
	if err != nil {
		t.Fatalf("Summary() error = %v", err)
	}
	if stats.Total != 0 {
		t.Fatalf("total = %d, want 0", stats.Total)
	}
	if len(stats.ByStatus) != 5 {
		t.Fatalf("byStatus keys = %d, want 5", len(stats.ByStatus))
	}
	for status, count := range stats.ByStatus {
		if count != 0 {
			t.Fatalf("count for %s = %d, want 0", status, count)
		}
	}
}
