package service

import (
	"context"
	"errors"
	"time"

	"github.com/fieldserve/notify-planner/internal/domain"
	"github.com/fieldserve/notify-planner/internal/observability"
	"github.com/fieldserve/notify-planner/internal/repository"
	"github.com/fieldserve/notify-planner/internal/snapshot"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ReplanLock serializes destructive replans across instances. Acquire returns
// a release func on success and domain.ErrConflict while another replan holds
// the lease.
type ReplanLock interface {
	Acquire(ctx context.Context) (func(context.Context) error, error)
}

// PlanError names a device the planning pass could not produce a candidate
// for, typically a missing client or a client without a phone number.
type PlanError struct {
	DeviceID string `json:"deviceId"`
	Error    string `json:"error"`
}

// PlanReport summarizes one planning pass.
type PlanReport struct {
	Added          int         `json:"added"`
	AlreadyPlanned int         `json:"alreadyPlanned"`
	Cancelled      int64       `json:"cancelled"`
	Errors         []PlanError `json:"errors,omitempty"`
}

// Planner runs the automatic planning passes: it reads device and client
// snapshots, asks the policy engine for candidates, and inserts whatever is
// not already planned.
type Planner struct {
	repo    repository.PlannedNotificationRepository
	source  snapshot.Source
	engine  *PolicyEngine
	lock    ReplanLock
	cfg     domain.PolicyConfig
	metrics *observability.Metrics
	logger  *zap.Logger
	now     func() time.Time
}

func NewPlanner(
	repo repository.PlannedNotificationRepository,
	source snapshot.Source,
	lock ReplanLock,
	cfg domain.PolicyConfig,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *Planner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Planner{
		repo:    repo,
		source:  source,
		engine:  NewPolicyEngine(),
		lock:    lock,
		cfg:     cfg.Normalized(),
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
	}
}

// RefreshPlanning runs an additive planning pass: every candidate missing
// from the store is inserted, existing active entries are counted as already
// planned, and nothing is cancelled. daysAhead <= 0 falls back to the
// configured lead time.
func (p *Planner) RefreshPlanning(ctx context.Context, daysAhead int) (*PlanReport, error) {
	cfg := p.cfg
	if daysAhead > 0 {
		cfg.ReminderDaysAhead = daysAhead
	}

	devices, clients, err := p.loadSnapshots(ctx)
	if err != nil {
		return nil, err
	}

	candidates, candidateErrs := p.engine.Candidates(p.now(), devices, clients, cfg)
	return p.applyCandidates(ctx, candidates, candidateErrs), nil
}

// ForceReplan cancels every active automatic entry and rebuilds the plan from
// current snapshots. A Redis lease serializes concurrent calls; a held lease
// surfaces as domain.ErrConflict. Manual entries are never touched.
func (p *Planner) ForceReplan(ctx context.Context, daysAhead int) (*PlanReport, error) {
	cfg := p.cfg
	if daysAhead > 0 {
		cfg.ReminderDaysAhead = daysAhead
	}

	release, err := p.acquireLock(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		if release == nil {
			return
		}
		if err := release(context.WithoutCancel(ctx)); err != nil {
			p.logger.Warn("failed to release replan lock", zap.Error(err))
		}
	}()

	devices, clients, err := p.loadSnapshots(ctx)
	if err != nil {
		return nil, err
	}

	now := p.now()
	cancelled, err := p.repo.CancelAutomaticScheduled(ctx, now, "force replan")
	if err != nil {
		return nil, err
	}

	candidates, candidateErrs := p.engine.Candidates(now, devices, clients, cfg)
	report := p.applyCandidates(ctx, candidates, candidateErrs)
	report.Cancelled = cancelled

	p.logger.Info("force replan finished",
		zap.Int64("cancelled", report.Cancelled),
		zap.Int("added", report.Added),
		zap.Int("errors", len(report.Errors)),
	)
	return report, nil
}

// PlanInspectionReminders runs the inspection-reminder pass alone.
func (p *Planner) PlanInspectionReminders(ctx context.Context, daysAhead int) (*PlanReport, error) {
	cfg := p.cfg
	if daysAhead > 0 {
		cfg.ReminderDaysAhead = daysAhead
	}

	devices, clients, err := p.loadSnapshots(ctx)
	if err != nil {
		return nil, err
	}

	candidates, candidateErrs := p.engine.InspectionCandidates(p.now(), devices, clients, cfg)
	return p.applyCandidates(ctx, candidates, candidateErrs), nil
}

// PlanExpirationNotifications runs the expiration-day pass alone. Being an
// explicit request, it does not consult the ExpirationDayEnabled flag.
func (p *Planner) PlanExpirationNotifications(ctx context.Context) (*PlanReport, error) {
	devices, clients, err := p.loadSnapshots(ctx)
	if err != nil {
		return nil, err
	}

	candidates, candidateErrs := p.engine.ExpirationCandidates(p.now(), devices, clients, p.cfg)
	return p.applyCandidates(ctx, candidates, candidateErrs), nil
}

func (p *Planner) acquireLock(ctx context.Context) (func(context.Context) error, error) {
	if p.lock == nil {
		return nil, nil
	}
	return p.lock.Acquire(ctx)
}

func (p *Planner) loadSnapshots(ctx context.Context) ([]domain.DeviceSnapshot, []domain.ClientSnapshot, error) {
	devices, err := p.source.Devices(ctx)
	if err != nil {
		return nil, nil, err
	}
	clients, err := p.source.Clients(ctx)
	if err != nil {
		return nil, nil, err
	}
	return devices, clients, nil
}

// applyCandidates inserts candidates one by one. The store's dedup rule turns
// an already-planned candidate into domain.ErrConflict, which is counted, not
// failed: re-running a planning pass is idempotent.
func (p *Planner) applyCandidates(ctx context.Context, candidates []domain.PlannedNotification, candidateErrs []CandidateError) *PlanReport {
	report := &PlanReport{}

	for _, candidateErr := range candidateErrs {
		report.Errors = append(report.Errors, PlanError{
			DeviceID: candidateErr.DeviceID,
			Error:    candidateErr.Err.Error(),
		})
		p.metrics.IncPlanningError()
		p.logger.Warn("planning candidate skipped",
			zap.String("deviceId", candidateErr.DeviceID),
			zap.Error(candidateErr.Err),
		)
	}

	now := p.now()
	for i := range candidates {
		candidate := candidates[i]
		candidate.ID = uuid.NewString()
		candidate.CreatedAt = now
		candidate.UpdatedAt = now

		if err := candidate.Validate(); err != nil {
			report.Errors = append(report.Errors, PlanError{DeviceID: derefOr(candidate.DeviceID, ""), Error: err.Error()})
			p.metrics.IncPlanningError()
			continue
		}

		err := p.repo.Insert(ctx, &candidate)
		switch {
		case err == nil:
			report.Added++
			p.metrics.IncPlanningAdded(candidate.Type.String())
		case errors.Is(err, domain.ErrConflict):
			report.AlreadyPlanned++
			p.metrics.IncPlanningConflict(candidate.Type.String())
		default:
			report.Errors = append(report.Errors, PlanError{DeviceID: derefOr(candidate.DeviceID, ""), Error: err.Error()})
			p.metrics.IncPlanningError()
			p.logger.Error("failed to insert planned notification",
				zap.String("deviceId", derefOr(candidate.DeviceID, "")),
				zap.Error(err),
			)
		}
	}

	return report
}

func derefOr(s *string, fallback string) string {
	if s == nil {
		return fallback
	}
	return *s
}
