package entities

import (
	"errors"
	"time"
)

// Device represents a capture device allowed to stream audio
type Device struct {
	ID           string    `json:"id" yaml:"id"`
	SerialNumber string    `json:"serial_number" yaml:"serial_number"`
	SecretKey    string    `json:"-" yaml:"secret_key"`
	Name         string    `json:"name" yaml:"name"`
	CreatedAt    time.Time `json:"created_at" yaml:"-"`
}

func (d *Device) Validate() error {
	if d.SerialNumber == "" {
		return errors.New("serial number is required")
	}
	if d.SecretKey == "" {
		return errors.New("secret key is required")
	}
	return nil
}
