package handler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fieldserve/notify-planner/internal/domain"
	"github.com/fieldserve/notify-planner/internal/repository"
	"github.com/fieldserve/notify-planner/internal/service"
	"github.com/gofiber/fiber/v2"
)

const (
	defaultPage     = 1
	defaultPageSize = 50
	maxPageSize     = 100
)

type LifecycleService interface {
	CreateManual(ctx context.Context, input service.ManualEntryInput) (*domain.PlannedNotification, error)
	Get(ctx context.Context, id string) (*domain.PlannedNotification, error)
	MarkSent(ctx context.Context, id string) (*domain.PlannedNotification, error)
	MarkFailed(ctx context.Context, id string, errorMessage string) (*domain.PlannedNotification, error)
	Cancel(ctx context.Context, id string, reason string) (*domain.PlannedNotification, error)
	Skip(ctx context.Context, id string, reason string) (*domain.PlannedNotification, error)
	UpdateMessage(ctx context.Context, id string, message string) (*domain.PlannedNotification, error)
	Requeue(ctx context.Context, id string) (*domain.PlannedNotification, error)
	Delete(ctx context.Context, id string) error
}

type QueryService interface {
	List(ctx context.Context, params repository.ListParams) (*service.Page, error)
	Search(ctx context.Context, term string, params repository.ListParams) (*service.Page, error)
	Today(ctx context.Context, params repository.ListParams) (*service.Page, error)
	Next7Days(ctx context.Context, params repository.ListParams) (*service.Page, error)
	Next30Days(ctx context.Context, params repository.ListParams) (*service.Page, error)
	Range(ctx context.Context, from, to time.Time, params repository.ListParams) (*service.Page, error)
}

type NotificationHandler struct {
	lifecycle LifecycleService
	query     QueryService
}

func NewNotificationHandler(lifecycle LifecycleService, query QueryService) (*NotificationHandler, error) {
	if lifecycle == nil {
		return nil, fmt.Errorf("lifecycle service is required")
	}
	if query == nil {
		return nil, fmt.Errorf("query service is required")
	}
	return &NotificationHandler{lifecycle: lifecycle, query: query}, nil
}

func RegisterNotificationRoutes(router fiber.Router, lifecycle LifecycleService, query QueryService) error {
	h, err := NewNotificationHandler(lifecycle, query)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Post("/notifications", h.CreateNotification)
	v1.Get("/notifications", h.ListNotifications)
	v1.Get("/notifications/search", h.SearchNotifications)
	v1.Get("/notifications/windows/today", h.WindowToday)
	v1.Get("/notifications/windows/next7", h.WindowNext7)
	v1.Get("/notifications/windows/next30", h.WindowNext30)
	v1.Get("/notifications/windows/range", h.WindowRange)
	v1.Get("/notifications/:id", h.GetNotification)
	v1.Patch("/notifications/:id/message", h.UpdateMessage)
	v1.Post("/notifications/:id/cancel", h.CancelNotification)
	v1.Post("/notifications/:id/skip", h.SkipNotification)
	v1.Post("/notifications/:id/sent", h.MarkSent)
	v1.Post("/notifications/:id/failed", h.MarkFailed)
	v1.Post("/notifications/:id/requeue", h.RequeueNotification)
	v1.Delete("/notifications/:id", h.DeleteNotification)

	return nil
}

type createNotificationRequest struct {
	ClientID    *string    `json:"clientId"`
	DeviceID    *string    `json:"deviceId"`
	ClientName  string     `json:"clientName"`
	DeviceName  string     `json:"deviceName"`
	PhoneNumber string     `json:"phoneNumber"`
	Message     string     `json:"message"`
	ScheduledAt *time.Time `json:"scheduledAt,omitempty"`
	Type        string     `json:"type,omitempty"`
	MaxRetries  *int       `json:"maxRetries,omitempty"`
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

type failedRequest struct {
	Error string `json:"error"`
}

type updateMessageRequest struct {
	Message string `json:"message"`
}

type notificationResponse struct {
	ID           string     `json:"id"`
	DeviceID     *string    `json:"deviceId,omitempty"`
	ClientID     *string    `json:"clientId,omitempty"`
	DeviceName   string     `json:"deviceName,omitempty"`
	ClientName   string     `json:"clientName,omitempty"`
	PhoneNumber  string     `json:"phoneNumber"`
	Message      string     `json:"message"`
	ScheduledAt  time.Time  `json:"scheduledAt"`
	Status       string     `json:"status"`
	Type         string     `json:"type"`
	Source       string     `json:"source"`
	StatusReason *string    `json:"statusReason,omitempty"`
	ErrorMessage *string    `json:"errorMessage,omitempty"`
	RetryCount   int        `json:"retryCount"`
	MaxRetries   int        `json:"maxRetries"`
	SentAt       *time.Time `json:"sentAt,omitempty"`
	DispatchedAt *time.Time `json:"dispatchedAt,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

type listNotificationsResponse struct {
	Data []notificationResponse `json:"data"`
	Meta listMeta               `json:"meta"`
}

type listMeta struct {
	Page     int   `json:"page"`
	PageSize int   `json:"pageSize"`
	Total    int64 `json:"total"`
}

func (h *NotificationHandler) CreateNotification(c *fiber.Ctx) error {
	var req createNotificationRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	input := service.ManualEntryInput{
		ClientID:    req.ClientID,
		DeviceID:    req.DeviceID,
		ClientName:  strings.TrimSpace(req.ClientName),
		DeviceName:  strings.TrimSpace(req.DeviceName),
		PhoneNumber: strings.TrimSpace(req.PhoneNumber),
		Message:     strings.TrimSpace(req.Message),
	}
	if req.ScheduledAt != nil {
		input.ScheduledAt = *req.ScheduledAt
	}
	if rawType := strings.TrimSpace(req.Type); rawType != "" {
		notificationType, err := domain.ParseNotificationTypeFromString(rawType)
		if err != nil {
			return toHTTPError(err)
		}
		input.Type = notificationType
	}
	if req.MaxRetries != nil {
		input.MaxRetries = *req.MaxRetries
	}

	created, err := h.lifecycle.CreateManual(c.Context(), input)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusCreated).JSON(toNotificationResponse(created))
}

func (h *NotificationHandler) GetNotification(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	notification, err := h.lifecycle.Get(c.Context(), id)
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(toNotificationResponse(notification))
}

func (h *NotificationHandler) ListNotifications(c *fiber.Ctx) error {
	params, err := parseListParams(c)
	if err != nil {
		return toHTTPError(err)
	}

	page, err := h.query.List(c.Context(), params)
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(toListResponse(page))
}

func (h *NotificationHandler) SearchNotifications(c *fiber.Ctx) error {
	term := strings.TrimSpace(c.Query("q"))
	if term == "" {
		return toHTTPError(fmt.Errorf("%w: q is required", domain.ErrValidation))
	}

	params, err := parseListParams(c)
	if err != nil {
		return toHTTPError(err)
	}

	page, err := h.query.Search(c.Context(), term, params)
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(toListResponse(page))
}

func (h *NotificationHandler) WindowToday(c *fiber.Ctx) error {
	return h.window(c, h.query.Today)
}

func (h *NotificationHandler) WindowNext7(c *fiber.Ctx) error {
	return h.window(c, h.query.Next7Days)
}

func (h *NotificationHandler) WindowNext30(c *fiber.Ctx) error {
	return h.window(c, h.query.Next30Days)
}

func (h *NotificationHandler) window(c *fiber.Ctx, query func(context.Context, repository.ListParams) (*service.Page, error)) error {
	params, err := parseListParams(c)
	if err != nil {
		return toHTTPError(err)
	}

	page, err := query(c.Context(), params)
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(toListResponse(page))
}

func (h *NotificationHandler) WindowRange(c *fiber.Ctx) error {
	from, err := parseRFC3339Query(c.Query("from"), "from")
	if err != nil {
		return toHTTPError(err)
	}
	to, err := parseRFC3339Query(c.Query("to"), "to")
	if err != nil {
		return toHTTPError(err)
	}
	if from == nil || to == nil {
		return toHTTPError(fmt.Errorf("%w: from and to are required", domain.ErrValidation))
	}

	params, err := parseListParams(c)
	if err != nil {
		return toHTTPError(err)
	}

	page, err := h.query.Range(c.Context(), *from, *to, params)
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(toListResponse(page))
}

func (h *NotificationHandler) UpdateMessage(c *fiber.Ctx) error {
	var req updateMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	id := strings.TrimSpace(c.Params("id"))
	updated, err := h.lifecycle.UpdateMessage(c.Context(), id, req.Message)
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(toNotificationResponse(updated))
}

func (h *NotificationHandler) CancelNotification(c *fiber.Ctx) error {
	var req reasonRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	id := strings.TrimSpace(c.Params("id"))
	cancelled, err := h.lifecycle.Cancel(c.Context(), id, req.Reason)
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(toNotificationResponse(cancelled))
}

func (h *NotificationHandler) SkipNotification(c *fiber.Ctx) error {
	var req reasonRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	id := strings.TrimSpace(c.Params("id"))
	skipped, err := h.lifecycle.Skip(c.Context(), id, req.Reason)
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(toNotificationResponse(skipped))
}

func (h *NotificationHandler) MarkSent(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	sent, err := h.lifecycle.MarkSent(c.Context(), id)
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(toNotificationResponse(sent))
}

func (h *NotificationHandler) MarkFailed(c *fiber.Ctx) error {
	var req failedRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	id := strings.TrimSpace(c.Params("id"))
	failed, err := h.lifecycle.MarkFailed(c.Context(), id, req.Error)
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(toNotificationResponse(failed))
}

func (h *NotificationHandler) RequeueNotification(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	clone, err := h.lifecycle.Requeue(c.Context(), id)
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusCreated).JSON(toNotificationResponse(clone))
}

func (h *NotificationHandler) DeleteNotification(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	if err := h.lifecycle.Delete(c.Context(), id); err != nil {
		return toHTTPError(err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func parseListParams(c *fiber.Ctx) (repository.ListParams, error) {
	params := repository.ListParams{
		Page:     c.QueryInt("page", defaultPage),
		PageSize: c.QueryInt("pageSize", defaultPageSize),
	}

	if params.Page < 1 {
		return repository.ListParams{}, fmt.Errorf("%w: page must be >= 1", domain.ErrValidation)
	}
	if params.PageSize < 1 || params.PageSize > maxPageSize {
		return repository.ListParams{}, fmt.Errorf("%w: pageSize must be between 1 and %d", domain.ErrValidation, maxPageSize)
	}

	if rawStatus := strings.TrimSpace(c.Query("status")); rawStatus != "" {
		status, err := domain.ParseStatusFromString(rawStatus)
		if err != nil {
			return repository.ListParams{}, err
		}
		params.Status = &status
	}
	if rawType := strings.TrimSpace(c.Query("type")); rawType != "" {
		notificationType, err := domain.ParseNotificationTypeFromString(rawType)
		if err != nil {
			return repository.ListParams{}, err
		}
		params.Type = &notificationType
	}
	if rawSource := strings.TrimSpace(c.Query("source")); rawSource != "" {
		source, err := domain.ParsePlannedSourceFromString(rawSource)
		if err != nil {
			return repository.ListParams{}, err
		}
		params.Source = &source
	}
	if clientID := strings.TrimSpace(c.Query("clientId")); clientID != "" {
		params.ClientID = &clientID
	}
	if deviceID := strings.TrimSpace(c.Query("deviceId")); deviceID != "" {
		params.DeviceID = &deviceID
	}
	if rawSort := strings.TrimSpace(c.Query("sortBy")); rawSort != "" {
		sortBy, err := repository.ParseSortKeyFromString(rawSort)
		if err != nil {
			return repository.ListParams{}, err
		}
		params.SortBy = sortBy
	}

	from, err := parseRFC3339Query(c.Query("from"), "from")
	if err != nil {
		return repository.ListParams{}, err
	}
	to, err := parseRFC3339Query(c.Query("to"), "to")
	if err != nil {
		return repository.ListParams{}, err
	}
	params.ScheduledFrom = from
	params.ScheduledTo = to

	return params, nil
}

func parseRFC3339Query(value string, field string) (*time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}

	t, err := time.Parse(time.RFC3339, trimmed)
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be RFC3339", domain.ErrValidation, field)
	}
	return &t, nil
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrConflict):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrInvalidTransition):
		return fiber.NewError(fiber.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, domain.ErrDependency):
		return fiber.NewError(fiber.StatusBadGateway, err.Error())
	default:
		return err
	}
}

func toListResponse(page *service.Page) listNotificationsResponse {
	data := make([]notificationResponse, 0, len(page.Items))
	for i := range page.Items {
		data = append(data, toNotificationResponse(&page.Items[i]))
	}
	return listNotificationsResponse{
		Data: data,
		Meta: listMeta{
			Page:     page.Page,
			PageSize: page.PageSize,
			Total:    page.Total,
		},
	}
}

func toNotificationResponse(n *domain.PlannedNotification) notificationResponse {
	if n == nil {
		return notificationResponse{}
	}

	return notificationResponse{
		ID:           n.ID,
		DeviceID:     n.DeviceID,
		ClientID:     n.ClientID,
		DeviceName:   n.DeviceName,
		ClientName:   n.ClientName,
		PhoneNumber:  n.PhoneNumber,
		Message:      n.Message,
		ScheduledAt:  n.ScheduledAt,
		Status:       n.Status.String(),
		Type:         n.Type.String(),
		Source:       n.Source.String(),
		StatusReason: n.StatusReason,
		ErrorMessage: n.ErrorMessage,
		RetryCount:   n.RetryCount,
		MaxRetries:   n.MaxRetries,
		SentAt:       n.SentAt,
		DispatchedAt: n.DispatchedAt,
		CreatedAt:    n.CreatedAt,
		UpdatedAt:    n.UpdatedAt,
	}
}
