package handler

import (
	"context"
	"fmt"

	"github.com/fieldserve/notify-planner/internal/domain"
	"github.com/fieldserve/notify-planner/internal/service"
	"github.com/gofiber/fiber/v2"
)

type PlanningService interface {
	RefreshPlanning(ctx context.Context, daysAhead int) (*service.PlanReport, error)
	ForceReplan(ctx context.Context, daysAhead int) (*service.PlanReport, error)
	PlanInspectionReminders(ctx context.Context, daysAhead int) (*service.PlanReport, error)
	PlanExpirationNotifications(ctx context.Context) (*service.PlanReport, error)
}

type StatisticsService interface {
	Summary(ctx context.Context) (*service.Statistics, error)
}

type PlanningHandler struct {
	planner    PlanningService
	statistics StatisticsService
}

func NewPlanningHandler(planner PlanningService, statistics StatisticsService) (*PlanningHandler, error) {
	if planner == nil {
		return nil, fmt.Errorf("planning service is required")
	}
	if statistics == nil {
		return nil, fmt.Errorf("statistics service is required")
	}
	return &PlanningHandler{planner: planner, statistics: statistics}, nil
}

func RegisterPlanningRoutes(router fiber.Router, planner PlanningService, statistics StatisticsService) error {
	h, err := NewPlanningHandler(planner, statistics)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Get("/statistics", h.GetStatistics)
	v1.Post("/planning/refresh", h.RefreshPlanning)
	v1.Post("/planning/force-replan", h.ForceReplan)
	v1.Post("/planning/inspection-reminders", h.PlanInspectionReminders)
	v1.Post("/planning/expiration", h.PlanExpirationNotifications)

	return nil
}

type statisticsResponse struct {
	Total             int64            `json:"total"`
	ByStatus          map[string]int64 `json:"byStatus"`
	ScheduledToday    int64            `json:"scheduledToday"`
	ScheduledThisWeek int64            `json:"scheduledThisWeek"`
}

func (h *PlanningHandler) GetStatistics(c *fiber.Ctx) error {
	stats, err := h.statistics.Summary(c.Context())
	if err != nil {
		return toHTTPError(err)
	}

	byStatus := make(map[string]int64, len(stats.ByStatus))
	for status, count := range stats.ByStatus {
		byStatus[status.String()] = count
	}

	return c.Status(fiber.StatusOK).JSON(statisticsResponse{
		Total:             stats.Total,
		ByStatus:          byStatus,
		ScheduledToday:    stats.ScheduledToday,
		ScheduledThisWeek: stats.ScheduledThisWeek,
	})
}

func (h *PlanningHandler) RefreshPlanning(c *fiber.Ctx) error {
	daysAhead, err := parseDaysAhead(c)
	if err != nil {
		return toHTTPError(err)
	}

	report, err := h.planner.RefreshPlanning(c.Context(), daysAhead)
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(report)
}

func (h *PlanningHandler) ForceReplan(c *fiber.Ctx) error {
	daysAhead, err := parseDaysAhead(c)
	if err != nil {
		return toHTTPError(err)
	}

	report, err := h.planner.ForceReplan(c.Context(), daysAhead)
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(report)
}

func (h *PlanningHandler) PlanInspectionReminders(c *fiber.Ctx) error {
	daysAhead, err := parseDaysAhead(c)
	if err != nil {
		return toHTTPError(err)
	}

	report, err := h.planner.PlanInspectionReminders(c.Context(), daysAhead)
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(report)
}

func (h *PlanningHandler) PlanExpirationNotifications(c *fiber.Ctx) error {
	report, err := h.planner.PlanExpirationNotifications(c.Context())
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(report)
}

func parseDaysAhead(c *fiber.Ctx) (int, error) {
	daysAhead := c.QueryInt("daysAhead", 0)
	if daysAhead < 0 {
		return 0, fmt.Errorf("%w: daysAhead must be >= 0", domain.ErrValidation)
	}
	return daysAhead, nil
}
