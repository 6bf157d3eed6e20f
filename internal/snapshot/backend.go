package snapshot

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/fieldserve/notify-planner/internal/domain"
	"github.com/go-resty/resty/v2"
)

const defaultBackendTimeout = 10 * time.Second

// dueDateLayout is the date-only format the backend uses for inspection dates.
const dueDateLayout = "2006-01-02"

type deviceDTO struct {
	ID                string `json:"id"`
	ClientID          string `json:"clientId"`
	DisplayName       string `json:"displayName"`
	InspectionDueDate string `json:"inspectionDueDate"`
	Active            bool   `json:"active"`
}

type clientDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	PhoneNumber string `json:"phoneNumber"`
}

// BackendClient reads device and client snapshots from the field-service
// backend's REST API.
type BackendClient struct {
	client  *resty.Client
	baseURL string
}

var _ Source = (*BackendClient)(nil)

func NewBackendClient(baseURL string) (*BackendClient, error) {
	client := resty.New()
	client.SetTimeout(defaultBackendTimeout)
	client.SetRetryCount(0)

	return NewBackendClientWithClient(baseURL, client)
}

func NewBackendClientWithClient(baseURL string, client *resty.Client) (*BackendClient, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		return nil, fmt.Errorf("backend base url is required")
	}
	if _, err := url.ParseRequestURI(trimmed); err != nil {
		return nil, fmt.Errorf("invalid backend base url: %w", err)
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}

	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultBackendTimeout)
	}

	return &BackendClient{
		client:  client,
		baseURL: trimmed,
	}, nil
}

func (b *BackendClient) Devices(ctx context.Context) ([]domain.DeviceSnapshot, error) {
	var dtos []deviceDTO
	resp, err := b.client.R().
		SetContext(ctx).
		SetResult(&dtos).
		Get(b.baseURL + "/api/devices")
	if err != nil {
		return nil, fmt.Errorf("%w: failed to fetch devices: %v", domain.ErrDependency, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%w: backend returned %d for devices", domain.ErrDependency, resp.StatusCode())
	}

	devices := make([]domain.DeviceSnapshot, 0, len(dtos))
	for _, dto := range dtos {
		dueDate, err := parseDueDate(dto.InspectionDueDate)
		if err != nil {
			return nil, fmt.Errorf("%w: device %s has invalid inspection date %q", domain.ErrDependency, dto.ID, dto.InspectionDueDate)
		}
		devices = append(devices, domain.DeviceSnapshot{
			ID:                dto.ID,
			ClientID:          dto.ClientID,
			DisplayName:       dto.DisplayName,
			InspectionDueDate: dueDate,
			Active:            dto.Active,
		})
	}

	return devices, nil
}

func (b *BackendClient) Clients(ctx context.Context) ([]domain.ClientSnapshot, error) {
	var dtos []clientDTO
	resp, err := b.client.R().
		SetContext(ctx).
		SetResult(&dtos).
		Get(b.baseURL + "/api/clients")
	if err != nil {
		return nil, fmt.Errorf("%w: failed to fetch clients: %v", domain.ErrDependency, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%w: backend returned %d for clients", domain.ErrDependency, resp.StatusCode())
	}

	clients := make([]domain.ClientSnapshot, 0, len(dtos))
	for _, dto := range dtos {
		clients = append(clients, domain.ClientSnapshot{
			ID:          dto.ID,
			Name:        dto.Name,
			PhoneNumber: dto.PhoneNumber,
		})
	}

	return clients, nil
}

func parseDueDate(value string) (time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if t, err := time.Parse(dueDateLayout, trimmed); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, trimmed)
}
