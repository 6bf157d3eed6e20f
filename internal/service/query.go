package service

import (
	"context"
	"fmt"
	"time"

	"github.com/fieldserve/notify-planner/internal/domain"
	"github.com/fieldserve/notify-planner/internal/repository"
)

// Page is a paginated listing result.
type Page struct {
	Items    []domain.PlannedNotification `json:"items"`
	Total    int64                        `json:"total"`
	Page     int                          `json:"page"`
	PageSize int                          `json:"pageSize"`
}

// QueryService answers read-only questions about the plan. Window queries are
// half-open [from, to) and cover SCHEDULED entries only; listings see
// everything.
type QueryService struct {
	repo repository.PlannedNotificationRepository
	now  func() time.Time
}

func NewQueryService(repo repository.PlannedNotificationRepository) *QueryService {
	return &QueryService{
		repo: repo,
		now:  time.Now,
	}
}

func (s *QueryService) List(ctx context.Context, params repository.ListParams) (*Page, error) {
	items, total, err := s.repo.List(ctx, params)
	if err != nil {
		return nil, err
	}
	return newPage(items, total, params), nil
}

// Search runs a case-insensitive substring match over client name, phone
// number, device name, and message.
func (s *QueryService) Search(ctx context.Context, term string, params repository.ListParams) (*Page, error) {
	params.Search = term
	return s.List(ctx, params)
}

// Today returns the SCHEDULED entries falling on the current UTC day.
func (s *QueryService) Today(ctx context.Context, params repository.ListParams) (*Page, error) {
	from, to := dayBounds(s.now())
	return s.scheduledWindow(ctx, from, to, params)
}

// Next7Days returns the SCHEDULED entries due within the coming 7 days.
func (s *QueryService) Next7Days(ctx context.Context, params repository.ListParams) (*Page, error) {
	now := s.now()
	return s.scheduledWindow(ctx, now, now.AddDate(0, 0, 7), params)
}

// Next30Days returns the SCHEDULED entries due within the coming 30 days.
func (s *QueryService) Next30Days(ctx context.Context, params repository.ListParams) (*Page, error) {
	now := s.now()
	return s.scheduledWindow(ctx, now, now.AddDate(0, 0, 30), params)
}

// Range returns the SCHEDULED entries within an arbitrary [from, to) window.
func (s *QueryService) Range(ctx context.Context, from, to time.Time, params repository.ListParams) (*Page, error) {
	if from.IsZero() || to.IsZero() {
		return nil, fmt.Errorf("%w: both from and to are required", domain.ErrValidation)
	}
	if !from.Before(to) {
		return nil, fmt.Errorf("%w: from must precede to", domain.ErrValidation)
	}
	return s.scheduledWindow(ctx, from, to, params)
}

func (s *QueryService) scheduledWindow(ctx context.Context, from, to time.Time, params repository.ListParams) (*Page, error) {
	scheduled := domain.StatusScheduled
	params.Status = &scheduled
	params.ScheduledFrom = &from
	params.ScheduledTo = &to
	return s.List(ctx, params)
}

func newPage(items []domain.PlannedNotification, total int64, params repository.ListParams) *Page {
	page := max(params.Page, 1)
	pageSize := params.PageSize
	if pageSize < 1 {
		pageSize = 50
	}
	pageSize = min(pageSize, 100)

	if items == nil {
		items = []domain.PlannedNotification{}
	}
	return &Page{
		Items:    items,
		Total:    total,
		Page:     page,
		PageSize: pageSize,
	}
}

// dayBounds returns the half-open UTC calendar day containing t.
func dayBounds(t time.Time) (time.Time, time.Time) {
	utc := t.UTC()
	start := time.Date(utc.Year(), utc.Month(), utc.Day(), 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 0, 1)
}

// weekBounds returns the half-open ISO week (Monday start) containing t.
func weekBounds(t time.Time) (time.Time, time.Time) {
	start, _ := dayBounds(t)
	offset := (int(start.Weekday()) + 6) % 7
	start = start.AddDate(0, 0, -offset)
	return start, start.AddDate(0, 0, 7)
}
