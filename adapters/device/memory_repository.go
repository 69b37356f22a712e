package device

import (
	"context"
	"crypto/subtle"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/satriahrh/scribe/domain/entities"
	"github.com/satriahrh/scribe/domain/repositories"
)

var _ repositories.DeviceRepository = (*MemoryRepository)(nil)

var (
	ErrDeviceNotFound     = errors.New("device not found")
	ErrInvalidCredentials = errors.New("invalid device credentials")
	ErrDuplicateSerial    = errors.New("device with this serial number already exists")
)

// MemoryRepository keeps the capture devices allowed to stream audio.
// Devices are registered from configuration at startup.
type MemoryRepository struct {
	mu      sync.RWMutex
	devices map[string]*entities.Device // id -> device
	serials map[string]*entities.Device // serial_number -> device
}

// NewMemoryRepository creates a repository pre-loaded with the given devices
func NewMemoryRepository(ctx context.Context, devices ...entities.Device) (*MemoryRepository, error) {
	m := &MemoryRepository{
		devices: make(map[string]*entities.Device),
		serials: make(map[string]*entities.Device),
	}
	for i := range devices {
		d := devices[i]
		if err := m.Create(ctx, &d); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// ValidateDevice validates device credentials (serial number + secret)
func (m *MemoryRepository) ValidateDevice(serialNumber, secret string) (*entities.Device, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	device, exists := m.serials[serialNumber]
	if !exists {
		return nil, ErrDeviceNotFound
	}
	if subtle.ConstantTimeCompare([]byte(device.SecretKey), []byte(secret)) != 1 {
		return nil, ErrInvalidCredentials
	}

	deviceCopy := *device
	return &deviceCopy, nil
}

// Create implements repositories.DeviceRepository
func (m *MemoryRepository) Create(ctx context.Context, device *entities.Device) error {
	if device == nil {
		return errors.New("device cannot be nil")
	}
	if err := device.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.serials[device.SerialNumber]; exists {
		return ErrDuplicateSerial
	}

	if device.ID == "" {
		device.ID = uuid.New().String()
	}
	device.CreatedAt = time.Now()

	deviceCopy := *device
	m.devices[device.ID] = &deviceCopy
	m.serials[device.SerialNumber] = &deviceCopy
	return nil
}

// GetByID implements repositories.DeviceRepository
func (m *MemoryRepository) GetByID(ctx context.Context, id string) (*entities.Device, error) {
	if id == "" {
		return nil, errors.New("device ID cannot be empty")
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	device, exists := m.devices[id]
	if !exists {
		return nil, ErrDeviceNotFound
	}

	deviceCopy := *device
	return &deviceCopy, nil
}
