package stt

import (
	"context"
	"fmt"
	"strings"
	"time"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"go.uber.org/zap"

	"github.com/satriahrh/scribe/domain/entities"
	"github.com/satriahrh/scribe/domain/repositories"
	"github.com/satriahrh/scribe/internal/audio"
)

var _ repositories.SpeechToText = (*GoogleSpeechToText)(nil)

// GoogleConfig configures Google Cloud Speech-to-Text.
// Credentials come from GOOGLE_APPLICATION_CREDENTIALS.
type GoogleConfig struct {
	Language string `yaml:"language"`
	Model    string `yaml:"model"`
}

// GoogleSpeechToText implements SpeechToText for Google Cloud
type GoogleSpeechToText struct {
	client *speech.Client
	config GoogleConfig
	logger *zap.Logger
}

// NewGoogleSpeechToText creates a Google Cloud Speech client
func NewGoogleSpeechToText(ctx context.Context, config GoogleConfig, logger *zap.Logger) (*GoogleSpeechToText, error) {
	if config.Language == "" {
		config.Language = "en-US"
		logger.Info("Using default Google speech language", zap.String("language", config.Language))
	}

	client, err := speech.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create speech client: %w", err)
	}

	return &GoogleSpeechToText{
		client: client,
		config: config,
		logger: logger,
	}, nil
}

// Transcribe implements repositories.SpeechToText
func (g *GoogleSpeechToText) Transcribe(ctx context.Context, wav []byte) (*entities.TranscriptEntry, error) {
	header, err := audio.ParseWAVHeader(wav)
	if err != nil {
		return nil, fmt.Errorf("invalid audio chunk: %w", err)
	}

	resp, err := g.client.Recognize(ctx, g.recognizeRequest(header, audio.PCM(wav)))
	if err != nil {
		return nil, fmt.Errorf("failed to recognize speech: %w", err)
	}

	var parts []string
	var confidence *float64
	for _, result := range resp.GetResults() {
		if len(result.GetAlternatives()) == 0 {
			continue
		}
		best := result.GetAlternatives()[0]
		if text := strings.TrimSpace(best.GetTranscript()); text != "" {
			parts = append(parts, text)
		}
		if confidence == nil {
			c := float64(best.GetConfidence())
			confidence = &c
		}
	}

	if len(parts) == 0 {
		return nil, nil
	}

	return &entities.TranscriptEntry{
		Timestamp:  time.Now(),
		Text:       strings.Join(parts, " "),
		Language:   g.config.Language,
		Confidence: confidence,
	}, nil
}

// HealthCheck recognizes a quarter second of silence to verify credentials
func (g *GoogleSpeechToText) HealthCheck(ctx context.Context) error {
	const sampleRate = 16000
	header := audio.NewWAVHeader(sampleRate, 1, sampleRate/2)
	if _, err := g.client.Recognize(ctx, g.recognizeRequest(&header, make([]byte, sampleRate/2))); err != nil {
		return fmt.Errorf("google speech health check failed: %w", err)
	}
	return nil
}

// Close releases the underlying gRPC connection
func (g *GoogleSpeechToText) Close() error {
	return g.client.Close()
}

func (g *GoogleSpeechToText) recognizeRequest(header *audio.WAVHeader, pcm []byte) *speechpb.RecognizeRequest {
	return &speechpb.RecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			Encoding:                   speechpb.RecognitionConfig_LINEAR16,
			SampleRateHertz:            int32(header.SampleRate),
			AudioChannelCount:          int32(header.NumChannels),
			LanguageCode:               g.config.Language,
			Model:                      g.config.Model,
			EnableAutomaticPunctuation: true,
		},
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: pcm},
		},
	}
}
