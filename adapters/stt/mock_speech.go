package stt

import (
	"context"

	"go.uber.org/zap"

	"github.com/satriahrh/scribe/domain/entities"
	"github.com/satriahrh/scribe/domain/repositories"
	"github.com/satriahrh/scribe/internal/audio"
)

var _ repositories.SpeechToText = (*MockSpeechToText)(nil)

// MockSpeechToText is an offline stand-in for development
type MockSpeechToText struct {
	logger *zap.Logger
}

// NewMockSpeechToText creates a new mock speech-to-text service
func NewMockSpeechToText(logger *zap.Logger) *MockSpeechToText {
	return &MockSpeechToText{
		logger: logger,
	}
}

// Transcribe returns canned text chosen by how loud the chunk is
func (s *MockSpeechToText) Transcribe(ctx context.Context, wav []byte) (*entities.TranscriptEntry, error) {
	peak := audio.PeakAmplitude(wav)
	s.logger.Debug("Processing mock speech-to-text",
		zap.Int("audioSize", len(wav)),
		zap.Int("peak", peak))

	var text string
	switch {
	case peak > 10000:
		text = "This is a loud mock transcription."
	case peak > 2000:
		text = "This is a mock transcription."
	case peak > 0:
		text = "mock whisper"
	default:
		return nil, nil
	}

	return &entities.TranscriptEntry{Text: text, Language: "en"}, nil
}

// HealthCheck always succeeds
func (s *MockSpeechToText) HealthCheck(ctx context.Context) error {
	return nil
}
