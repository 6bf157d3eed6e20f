package snapshot

import (
	"context"

	"github.com/fieldserve/notify-planner/internal/domain"
)

// Source supplies the device and client views the planner works from. The
// field-service backend owns this data; the planner only reads it.
type Source interface {
	Devices(ctx context.Context) ([]domain.DeviceSnapshot, error)
	Clients(ctx context.Context) ([]domain.ClientSnapshot, error)
}
