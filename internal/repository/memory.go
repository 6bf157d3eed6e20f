package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fieldserve/notify-planner/internal/domain"
)

// MemoryPlannedNotificationRepo is an in-process implementation of the store.
// It enforces the same invariants as the Postgres repository, including the
// one-active-per-(device,type) rule, and is what the service tests run on.
type MemoryPlannedNotificationRepo struct {
	mu      sync.RWMutex
	entries map[string]domain.PlannedNotification
}

var _ PlannedNotificationRepository = (*MemoryPlannedNotificationRepo)(nil)

func NewMemoryPlannedNotificationRepo(initial ...domain.PlannedNotification) *MemoryPlannedNotificationRepo {
	entries := make(map[string]domain.PlannedNotification, len(initial))
	for _, n := range initial {
		entries[n.ID] = n
	}
	return &MemoryPlannedNotificationRepo{entries: entries}
}

func (r *MemoryPlannedNotificationRepo) Insert(_ context.Context, n *domain.PlannedNotification) error {
	if n == nil || strings.TrimSpace(n.ID) == "" {
		return fmt.Errorf("%w: notification id is required", domain.ErrValidation)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[n.ID]; exists {
		return fmt.Errorf("%w: notification %s already exists", domain.ErrConflict, n.ID)
	}

	if n.Source.IsAutomatic() && n.Status == domain.StatusScheduled && n.DeviceID != nil {
		for _, existing := range r.entries {
			if existing.Status != domain.StatusScheduled || !existing.Source.IsAutomatic() {
				continue
			}
			if existing.DeviceID != nil && *existing.DeviceID == *n.DeviceID && existing.Type == n.Type {
				return fmt.Errorf("%w: active %s notification already planned for device %s", domain.ErrConflict, n.Type, *n.DeviceID)
			}
		}
	}

	r.entries[n.ID] = *n
	return nil
}

func (r *MemoryPlannedNotificationRepo) GetByID(_ context.Context, id string) (*domain.PlannedNotification, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n, ok := r.entries[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &n, nil
}

func (r *MemoryPlannedNotificationRepo) List(_ context.Context, params ListParams) ([]domain.PlannedNotification, int64, error) {
	r.mu.RLock()
	matched := make([]domain.PlannedNotification, 0, len(r.entries))
	for _, n := range r.entries {
		if matches(n, params) {
			matched = append(matched, n)
		}
	}
	r.mu.RUnlock()

	sortEntries(matched, params.SortBy)

	total := int64(len(matched))

	page := max(params.Page, 1)
	pageSize := params.PageSize
	if pageSize < 1 {
		pageSize = 50
	}
	pageSize = min(pageSize, 100)

	start := (page - 1) * pageSize
	if start >= len(matched) {
		return []domain.PlannedNotification{}, total, nil
	}
	end := min(start+pageSize, len(matched))

	return matched[start:end], total, nil
}

func matches(n domain.PlannedNotification, params ListParams) bool {
	if params.Status != nil && n.Status != *params.Status {
		return false
	}
	if params.Type != nil && n.Type != *params.Type {
		return false
	}
	if params.Source != nil && n.Source != *params.Source {
		return false
	}
	if params.ClientID != nil && (n.ClientID == nil || *n.ClientID != *params.ClientID) {
		return false
	}
	if params.DeviceID != nil && (n.DeviceID == nil || *n.DeviceID != *params.DeviceID) {
		return false
	}
	if params.ScheduledFrom != nil && n.ScheduledAt.Before(*params.ScheduledFrom) {
		return false
	}
	if params.ScheduledTo != nil && !n.ScheduledAt.Before(*params.ScheduledTo) {
		return false
	}
	if term := strings.ToLower(strings.TrimSpace(params.Search)); term != "" {
		haystacks := []string{n.ClientName, n.PhoneNumber, n.DeviceName, n.Message}
		found := false
		for _, h := range haystacks {
			if strings.Contains(strings.ToLower(h), term) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func sortEntries(entries []domain.PlannedNotification, key SortKey) {
	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].ScheduledAt.Equal(entries[j].ScheduledAt) {
			return entries[i].ScheduledAt.Before(entries[j].ScheduledAt)
		}
		switch key {
		case SortByStatus:
			return entries[i].Status < entries[j].Status
		case SortByType:
			return entries[i].Type < entries[j].Type
		default:
			return entries[i].ClientName < entries[j].ClientName
		}
	})
}

func (r *MemoryPlannedNotificationRepo) Update(_ context.Context, n *domain.PlannedNotification) error {
	if n == nil || strings.TrimSpace(n.ID) == "" {
		return fmt.Errorf("%w: notification id is required", domain.ErrValidation)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[n.ID]; !ok {
		return domain.ErrNotFound
	}
	r.entries[n.ID] = *n
	return nil
}

func (r *MemoryPlannedNotificationRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[id]; !ok {
		return domain.ErrNotFound
	}
	delete(r.entries, id)
	return nil
}

func (r *MemoryPlannedNotificationRepo) CancelAutomaticScheduled(_ context.Context, now time.Time, reason string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var cancelled int64
	for id, n := range r.entries {
		if n.Status != domain.StatusScheduled || !n.Source.IsAutomatic() {
			continue
		}
		trimmed := reason
		n.Status = domain.StatusCancelled
		n.StatusReason = &trimmed
		n.UpdatedAt = now
		r.entries[id] = n
		cancelled++
	}
	return cancelled, nil
}

func (r *MemoryPlannedNotificationRepo) GetDueForDispatch(_ context.Context, now time.Time, limit int) ([]domain.PlannedNotification, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	due := make([]domain.PlannedNotification, 0)
	for _, n := range r.entries {
		if n.Status == domain.StatusScheduled && !n.ScheduledAt.After(now) && n.DispatchedAt == nil {
			due = append(due, n)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].ScheduledAt.Before(due[j].ScheduledAt) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (r *MemoryPlannedNotificationRepo) MarkDispatched(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, ok := r.entries[id]
	if !ok || n.Status != domain.StatusScheduled {
		return domain.ErrNotFound
	}
	dispatched := at
	n.DispatchedAt = &dispatched
	r.entries[id] = n
	return nil
}

func (r *MemoryPlannedNotificationRepo) CountByStatus(_ context.Context) ([]StatusCount, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	byStatus := make(map[domain.Status]int64)
	for _, n := range r.entries {
		byStatus[n.Status]++
	}

	counts := make([]StatusCount, 0, len(byStatus))
	for status, count := range byStatus {
		counts = append(counts, StatusCount{Status: status, Count: count})
	}
	sort.Slice(counts, func(i, j int) bool { return counts[i].Status < counts[j].Status })
	return counts, nil
}

func (r *MemoryPlannedNotificationRepo) CountScheduledBetween(_ context.Context, from, to time.Time) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var count int64
	for _, n := range r.entries {
		if !n.ScheduledAt.Before(from) && n.ScheduledAt.Before(to) {
			count++
		}
	}
	return count, nil
}

func (r *MemoryPlannedNotificationRepo) PruneTerminal(_ context.Context, olderThan time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var pruned int64
	for id, n := range r.entries {
		if n.Status.IsTerminal() && n.UpdatedAt.Before(olderThan) {
			delete(r.entries, id)
			pruned++
		}
	}
	return pruned, nil
}

// Len reports the number of stored entries; test helper.
func (r *MemoryPlannedNotificationRepo) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
