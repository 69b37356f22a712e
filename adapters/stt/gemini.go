package stt

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/satriahrh/scribe/domain/entities"
	"github.com/satriahrh/scribe/domain/repositories"
)

var _ repositories.SpeechToText = (*GeminiSpeechToText)(nil)

const (
	defaultGeminiModel = "gemini-2.0-flash"
	geminiNoSpeech     = "NO_SPEECH"
	geminiPrompt       = "Transcribe the speech in this audio verbatim. Output only the transcript text. " +
		"If there is no intelligible speech, output exactly " + geminiNoSpeech + "."
)

// GeminiConfig configures transcription through Gemini audio understanding
type GeminiConfig struct {
	APIKey   string `yaml:"-"`
	Model    string `yaml:"model"`
	Language string `yaml:"language"`
	Attempts int    `yaml:"attempts"`
}

// GeminiSpeechToText implements SpeechToText using Google's Gemini API
type GeminiSpeechToText struct {
	client *genai.Client
	config GeminiConfig
	logger *zap.Logger
}

// NewGeminiSpeechToText creates a new Gemini transcription client
func NewGeminiSpeechToText(ctx context.Context, config GeminiConfig, logger *zap.Logger) (*GeminiSpeechToText, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("Gemini API key is required")
	}
	if config.Model == "" {
		config.Model = defaultGeminiModel
		logger.Info("Using default Gemini model", zap.String("model", config.Model))
	}
	if config.Attempts <= 0 {
		config.Attempts = 2
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiSpeechToText{
		client: client,
		config: config,
		logger: logger,
	}, nil
}

// Transcribe implements repositories.SpeechToText
func (g *GeminiSpeechToText) Transcribe(ctx context.Context, wav []byte) (*entities.TranscriptEntry, error) {
	prompt := geminiPrompt
	if g.config.Language != "" {
		prompt += " The speech is in " + g.config.Language + "."
	}

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromText(prompt),
			genai.NewPartFromBytes(wav, "audio/wav"),
		}, genai.RoleUser),
	}
	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr[float32](0),
	}

	var response *genai.GenerateContentResponse
	var err error
	for attempt := 0; attempt < g.config.Attempts; attempt++ {
		response, err = g.client.Models.GenerateContent(ctx, g.config.Model, contents, config)
		if err == nil {
			break
		}

		g.logger.Warn("Failed to transcribe with Gemini, retrying",
			zap.Int("attempt", attempt+1),
			zap.Error(err))

		if attempt < g.config.Attempts-1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt+1) * time.Second):
			}
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to generate transcription: %w", err)
	}

	return parseGeminiTranscript(response.Text(), g.config.Language), nil
}

// HealthCheck fetches the configured model, which requires a valid API key
func (g *GeminiSpeechToText) HealthCheck(ctx context.Context) error {
	if _, err := g.client.Models.Get(ctx, g.config.Model, nil); err != nil {
		return fmt.Errorf("gemini health check failed: %w", err)
	}
	return nil
}

func parseGeminiTranscript(text, language string) *entities.TranscriptEntry {
	text = strings.TrimSpace(text)
	if text == "" || strings.EqualFold(strings.Trim(text, ". "), geminiNoSpeech) {
		return nil
	}
	return &entities.TranscriptEntry{
		Timestamp: time.Now(),
		Text:      text,
		Language:  language,
	}
}
