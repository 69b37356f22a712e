package api

import (
	"time"

	"github.com/satriahrh/scribe/domain/entities"
)

// DeviceAuthRequest represents the request payload for device authentication
type DeviceAuthRequest struct {
	SerialNumber string `json:"serial_number"`
	SecretKey    string `json:"secret_key"`
}

// DeviceAuthResponse represents the response payload for device authentication
type DeviceAuthResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	DeviceID  string    `json:"device_id"`
}

// OperatorAuthRequest exchanges the configured API key for an operator token
type OperatorAuthRequest struct {
	APIKey     string `json:"api_key"`
	OperatorID string `json:"operator_id,omitempty"`
}

// OperatorAuthResponse represents the response payload for operator authentication
type OperatorAuthResponse struct {
	Token      string    `json:"token"`
	ExpiresAt  time.Time `json:"expires_at"`
	OperatorID string    `json:"operator_id"`
}

// SessionResponse is returned by every session state change
type SessionResponse struct {
	Message string            `json:"message"`
	Status  entities.Snapshot `json:"status"`
}

// TranscriptResponse carries the transcript document
type TranscriptResponse struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// TranscriptPathResponse carries where the transcript is stored
type TranscriptPathResponse struct {
	Path string `json:"path"`
}

// MessageResponse is a plain acknowledgement
type MessageResponse struct {
	Message string `json:"message"`
}

// HealthResponse reports service health
type HealthResponse struct {
	Status          string `json:"status"`
	Service         string `json:"service"`
	SessionRunning  bool   `json:"session_running"`
	DeviceConnected bool   `json:"device_connected"`
	SpeechToText    string `json:"speech_to_text,omitempty"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
