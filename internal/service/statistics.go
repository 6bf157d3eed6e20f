package service

import (
	"context"
	"time"

	"github.com/fieldserve/notify-planner/internal/domain"
	"github.com/fieldserve/notify-planner/internal/repository"
)

// Statistics is a point-in-time summary of the plan. ByStatus always carries
// all five statuses, zero-valued when absent, so dashboards need no null
// handling. The window counts include every status: they answer "how much is
// planned for this period", not "how much is still pending".
type Statistics struct {
	Total             int64                   `json:"total"`
	ByStatus          map[domain.Status]int64 `json:"byStatus"`
	ScheduledToday    int64                   `json:"scheduledToday"`
	ScheduledThisWeek int64                   `json:"scheduledThisWeek"`
}

type StatisticsService struct {
	repo repository.PlannedNotificationRepository
	now  func() time.Time
}

func NewStatisticsService(repo repository.PlannedNotificationRepository) *StatisticsService {
	return &StatisticsService{
		repo: repo,
		now:  time.Now,
	}
}

func (s *StatisticsService) Summary(ctx context.Context) (*Statistics, error) {
	counts, err := s.repo.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}

	byStatus := map[domain.Status]int64{
		domain.StatusScheduled: 0,
		domain.StatusSent:      0,
		domain.StatusFailed:    0,
		domain.StatusSkipped:   0,
		domain.StatusCancelled: 0,
	}
	var total int64
	for _, c := range counts {
		byStatus[c.Status] = c.Count
		total += c.Count
	}

	now := s.now()
	dayFrom, dayTo := dayBounds(now)
	today, err := s.repo.CountScheduledBetween(ctx, dayFrom, dayTo)
	if err != nil {
		return nil, err
	}

	weekFrom, weekTo := weekBounds(now)
	thisWeek, err := s.repo.CountScheduledBetween(ctx, weekFrom, weekTo)
	if err != nil {
		return nil, err
	}

	return &Statistics{
		Total:             total,
		ByStatus:          byStatus,
		ScheduledToday:    today,
		ScheduledThisWeek: thisWeek,
	}, nil
}
