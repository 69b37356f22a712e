package stt

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/satriahrh/scribe/domain/entities"
	"github.com/satriahrh/scribe/domain/repositories"
)

var _ repositories.SpeechToText = (*WhisperSpeechToText)(nil)

// WhisperConfig configures the OpenAI transcription API
type WhisperConfig struct {
	APIKey   string `yaml:"-"`
	BaseURL  string `yaml:"base_url"`
	Model    string `yaml:"model"`
	Language string `yaml:"language"`
	Prompt   string `yaml:"prompt"`
}

// WhisperSpeechToText implements SpeechToText with OpenAI Whisper
type WhisperSpeechToText struct {
	client *openai.Client
	config WhisperConfig
	logger *zap.Logger
}

// NewWhisperSpeechToText creates an OpenAI transcription client
func NewWhisperSpeechToText(config WhisperConfig, logger *zap.Logger) (*WhisperSpeechToText, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}
	if config.Model == "" {
		config.Model = openai.Whisper1
		logger.Info("Using default transcription model", zap.String("model", config.Model))
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}

	return &WhisperSpeechToText{
		client: openai.NewClientWithConfig(clientConfig),
		config: config,
		logger: logger,
	}, nil
}

// Transcribe implements repositories.SpeechToText
func (w *WhisperSpeechToText) Transcribe(ctx context.Context, wav []byte) (*entities.TranscriptEntry, error) {
	resp, err := w.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    w.config.Model,
		FilePath: "chunk.wav",
		Reader:   bytes.NewReader(wav),
		Prompt:   w.config.Prompt,
		Language: w.config.Language,
		Format:   openai.AudioResponseFormatJSON,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create transcription: %w", err)
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return nil, nil
	}

	return &entities.TranscriptEntry{
		Timestamp: time.Now(),
		Text:      text,
		Language:  w.config.Language,
	}, nil
}

// HealthCheck lists models, which fails fast on a bad API key
func (w *WhisperSpeechToText) HealthCheck(ctx context.Context) error {
	if _, err := w.client.ListModels(ctx); err != nil {
		return fmt.Errorf("openai health check failed: %w", err)
	}
	return nil
}
