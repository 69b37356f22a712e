package repositories

import (
	"context"

	"github.com/satriahrh/scribe/domain/entities"
)

// TranscriptStore persists the transcript of the current session
type TranscriptStore interface {
	Initialize(ctx context.Context) error
	Append(ctx context.Context, entry entities.TranscriptEntry) error
	AppendSystemMessage(ctx context.Context, message string) error
	Content(ctx context.Context) (string, error)
	Clear(ctx context.Context) error
	Delete(ctx context.Context) error
	Path() string
}

// DeviceRepository defines data access methods for capture devices
type DeviceRepository interface {
	Create(ctx context.Context, device *entities.Device) error
	GetByID(ctx context.Context, id string) (*entities.Device, error)
	// ValidateDevice validates device credentials for authentication
	ValidateDevice(serialNumber, secret string) (*entities.Device, error)
}
