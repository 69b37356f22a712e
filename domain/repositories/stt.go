package repositories

import (
	"context"

	"github.com/satriahrh/scribe/domain/entities"
)

// SpeechToText abstracts speech recognition services
type SpeechToText interface {
	// Transcribe converts one WAV unit to text. A nil entry with a nil error means no speech was found.
	Transcribe(ctx context.Context, wav []byte) (*entities.TranscriptEntry, error)
	// HealthCheck verifies credentials and reachability
	HealthCheck(ctx context.Context) error
}

// AudioConfig represents the PCM format delivered by an audio source
type AudioConfig struct {
	SampleRate int    `json:"sample_rate" yaml:"sample_rate"`
	Channels   int    `json:"channels" yaml:"channels"`
	Language   string `json:"language" yaml:"language"`
}
