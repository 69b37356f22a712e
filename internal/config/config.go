package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/satriahrh/scribe/adapters/capture"
	"github.com/satriahrh/scribe/adapters/mongo"
	"github.com/satriahrh/scribe/adapters/stt"
	"github.com/satriahrh/scribe/domain/entities"
	"github.com/satriahrh/scribe/usecase"
)

// Speech-to-text providers
const (
	ProviderWhisper = "whisper"
	ProviderGoogle  = "google"
	ProviderGemini  = "gemini"
	ProviderMock    = "mock"
)

// Audio sources
const (
	SourceFFmpeg    = "ffmpeg"
	SourceWebSocket = "websocket"
)

// Transcript stores
const (
	StoreFile  = "file"
	StoreMongo = "mongo"
)

// Config represents the complete service configuration
type Config struct {
	Server     ServerConfig      `yaml:"server"`
	Session    SessionConfig     `yaml:"session"`
	STT        STTConfig         `yaml:"stt"`
	Audio      AudioConfig       `yaml:"audio"`
	Transcript TranscriptConfig  `yaml:"transcript"`
	Devices    []entities.Device `yaml:"devices"`
	Logging    LoggingConfig     `yaml:"logging"`
}

// ServerConfig contains HTTP API and auth settings
type ServerConfig struct {
	Address   string        `yaml:"address"`
	JWTSecret string        `yaml:"jwt_secret"`
	APIKey    string        `yaml:"api_key"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
}

// SessionConfig contains chunking and safeguard parameters
type SessionConfig struct {
	SampleRate         int           `yaml:"sample_rate"`
	Channels           int           `yaml:"channels"`
	ChunkSeconds       int           `yaml:"chunk_seconds"`
	SilenceAmplitude   int           `yaml:"silence_amplitude"`
	SilenceStride      int           `yaml:"silence_stride"`
	SilenceChunks      int           `yaml:"silence_chunks"`
	InactivityTimeout  time.Duration `yaml:"inactivity_timeout"`
	StopGrace          time.Duration `yaml:"stop_grace"`
	TranscribeTimeout  time.Duration `yaml:"transcribe_timeout"`
	WatchdogInterval   time.Duration `yaml:"watchdog_interval"`
	QueueSize          int           `yaml:"queue_size"`
	StopOnAudioFailure bool          `yaml:"stop_on_audio_failure"`
}

// STTConfig selects and configures the speech-to-text provider
type STTConfig struct {
	Provider string            `yaml:"provider"`
	Language string            `yaml:"language"`
	Whisper  stt.WhisperConfig `yaml:"whisper"`
	Google   stt.GoogleConfig  `yaml:"google"`
	Gemini   stt.GeminiConfig  `yaml:"gemini"`
}

// AudioConfig selects the audio source
type AudioConfig struct {
	Source string               `yaml:"source"`
	FFmpeg capture.FFmpegConfig `yaml:"ffmpeg"`
}

// TranscriptConfig selects the transcript store
type TranscriptConfig struct {
	Store string       `yaml:"store"`
	Path  string       `yaml:"path"`
	Mongo mongo.Config `yaml:"mongo"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when nothing is overridden
func Default() *Config {
	session := usecase.DefaultTranscriptionConfig()
	return &Config{
		Server: ServerConfig{
			Address:  ":8080",
			TokenTTL: 24 * time.Hour,
		},
		Session: SessionConfig{
			SampleRate:        session.SampleRate,
			Channels:          session.Channels,
			ChunkSeconds:      session.ChunkSeconds,
			SilenceAmplitude:  session.SilenceAmplitude,
			SilenceStride:     session.SilenceStride,
			SilenceChunks:     session.SilenceThreshold,
			InactivityTimeout: session.InactivityTimeout,
			StopGrace:         session.StopGrace,
			TranscribeTimeout: session.TranscribeTimeout,
			WatchdogInterval:  time.Minute,
			QueueSize:         session.QueueSize,
		},
		STT: STTConfig{
			Provider: ProviderWhisper,
		},
		Audio: AudioConfig{
			Source: SourceFFmpeg,
		},
		Transcript: TranscriptConfig{
			Store: StoreFile,
			Path:  "transcript.md",
			Mongo: mongo.Config{
				URI:        "mongodb://localhost:27017",
				Database:   "scribe",
				Collection: "transcripts",
				Transcript: "default",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file, a .env file
// and finally environment variables, in increasing precedence.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if port := envOrDefault("PORT", ""); port != "" {
		c.Server.Address = ":" + port
	}
	c.Server.Address = envOrDefault("SCRIBE_ADDR", c.Server.Address)
	c.Server.JWTSecret = envOrDefault("JWT_SECRET", c.Server.JWTSecret)
	c.Server.APIKey = envOrDefault("SCRIBE_API_KEY", c.Server.APIKey)
	c.Server.TokenTTL = envOrDefaultDuration("SCRIBE_TOKEN_TTL", c.Server.TokenTTL)

	s := &c.Session
	s.SampleRate = envOrDefaultInt("SCRIBE_SAMPLE_RATE", s.SampleRate)
	s.Channels = envOrDefaultInt("SCRIBE_CHANNELS", s.Channels)
	s.ChunkSeconds = envOrDefaultInt("SCRIBE_CHUNK_SECONDS", s.ChunkSeconds)
	s.SilenceAmplitude = envOrDefaultInt("SCRIBE_SILENCE_AMPLITUDE", s.SilenceAmplitude)
	s.SilenceStride = envOrDefaultInt("SCRIBE_SILENCE_STRIDE", s.SilenceStride)
	s.SilenceChunks = envOrDefaultInt("SCRIBE_SILENCE_CHUNKS", s.SilenceChunks)
	s.InactivityTimeout = envOrDefaultDuration("SCRIBE_INACTIVITY_TIMEOUT", s.InactivityTimeout)
	s.StopGrace = envOrDefaultDuration("SCRIBE_STOP_GRACE", s.StopGrace)
	s.StopOnAudioFailure = envOrDefaultBool("SCRIBE_STOP_ON_AUDIO_FAILURE", s.StopOnAudioFailure)

	c.STT.Provider = strings.ToLower(envOrDefault("SCRIBE_STT_PROVIDER", c.STT.Provider))
	c.STT.Language = envOrDefault("SCRIBE_LANGUAGE", c.STT.Language)
	c.STT.Whisper.APIKey = envOrDefault("OPENAI_API_KEY", c.STT.Whisper.APIKey)
	c.STT.Whisper.BaseURL = envOrDefault("OPENAI_BASE_URL", c.STT.Whisper.BaseURL)
	c.STT.Whisper.Model = envOrDefault("SCRIBE_WHISPER_MODEL", c.STT.Whisper.Model)
	c.STT.Gemini.APIKey = envOrDefault("GEMINI_API_KEY", c.STT.Gemini.APIKey)
	c.STT.Gemini.Model = envOrDefault("SCRIBE_GEMINI_MODEL", c.STT.Gemini.Model)

	c.Audio.Source = strings.ToLower(envOrDefault("SCRIBE_AUDIO_SOURCE", c.Audio.Source))
	c.Audio.FFmpeg.Command = envOrDefault("SCRIBE_FFMPEG_COMMAND", c.Audio.FFmpeg.Command)
	c.Audio.FFmpeg.InputFormat = envOrDefault("SCRIBE_AUDIO_INPUT_FORMAT", c.Audio.FFmpeg.InputFormat)
	c.Audio.FFmpeg.InputDevice = envOrDefault("SCRIBE_AUDIO_INPUT_DEVICE", c.Audio.FFmpeg.InputDevice)

	c.Transcript.Store = strings.ToLower(envOrDefault("SCRIBE_TRANSCRIPT_STORE", c.Transcript.Store))
	c.Transcript.Path = envOrDefault("SCRIBE_TRANSCRIPT_PATH", c.Transcript.Path)
	c.Transcript.Mongo.URI = envOrDefault("MONGODB_URI", c.Transcript.Mongo.URI)
	c.Transcript.Mongo.Database = envOrDefault("MONGODB_DATABASE", c.Transcript.Mongo.Database)

	c.Logging.Level = envOrDefault("LOG_LEVEL", c.Logging.Level)
	c.Logging.Format = envOrDefault("LOG_FORMAT", c.Logging.Format)

	// the language is shared by all providers unless one sets its own
	if c.STT.Language != "" {
		if c.STT.Whisper.Language == "" {
			c.STT.Whisper.Language = c.STT.Language
		}
		if c.STT.Google.Language == "" {
			c.STT.Google.Language = c.STT.Language
		}
		if c.STT.Gemini.Language == "" {
			c.STT.Gemini.Language = c.STT.Language
		}
	}
	c.Audio.FFmpeg.SampleRate = c.Session.SampleRate
	c.Audio.FFmpeg.Channels = c.Session.Channels
}

// Validate performs validation of the configuration
func (c *Config) Validate() error {
	if err := c.Session.Validate(); err != nil {
		return fmt.Errorf("session config: %w", err)
	}
	if err := c.STT.Validate(); err != nil {
		return fmt.Errorf("stt config: %w", err)
	}
	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}
	if err := c.Transcript.Validate(); err != nil {
		return fmt.Errorf("transcript config: %w", err)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}
	for i := range c.Devices {
		if err := c.Devices[i].Validate(); err != nil {
			return fmt.Errorf("device %d: %w", i, err)
		}
	}
	return nil
}

// Validate validates session parameters
func (s *SessionConfig) Validate() error {
	if s.SampleRate <= 0 {
		return fmt.Errorf("sample_rate must be positive, got %d", s.SampleRate)
	}
	if s.Channels <= 0 {
		return fmt.Errorf("channels must be positive, got %d", s.Channels)
	}
	if s.ChunkSeconds <= 0 {
		return fmt.Errorf("chunk_seconds must be positive, got %d", s.ChunkSeconds)
	}
	if s.SilenceAmplitude <= 0 || s.SilenceAmplitude > 32767 {
		return fmt.Errorf("silence_amplitude must be within 1..32767, got %d", s.SilenceAmplitude)
	}
	if s.SilenceChunks <= 0 {
		return fmt.Errorf("silence_chunks must be positive, got %d", s.SilenceChunks)
	}
	if s.InactivityTimeout <= 0 {
		return fmt.Errorf("inactivity_timeout must be positive, got %s", s.InactivityTimeout)
	}
	return nil
}

// Transcription converts the session section into orchestrator settings
func (s SessionConfig) Transcription() usecase.TranscriptionConfig {
	return usecase.TranscriptionConfig{
		SampleRate:         s.SampleRate,
		Channels:           s.Channels,
		ChunkSeconds:       s.ChunkSeconds,
		SilenceAmplitude:   s.SilenceAmplitude,
		SilenceStride:      s.SilenceStride,
		SilenceThreshold:   s.SilenceChunks,
		InactivityTimeout:  s.InactivityTimeout,
		StopGrace:          s.StopGrace,
		TranscribeTimeout:  s.TranscribeTimeout,
		QueueSize:          s.QueueSize,
		StopOnAudioFailure: s.StopOnAudioFailure,
	}
}

// Validate validates the provider selection and its credentials
func (s *STTConfig) Validate() error {
	switch s.Provider {
	case ProviderWhisper:
		if s.Whisper.APIKey == "" {
			return errors.New("OPENAI_API_KEY is required for the whisper provider")
		}
	case ProviderGemini:
		if s.Gemini.APIKey == "" {
			return errors.New("GEMINI_API_KEY is required for the gemini provider")
		}
	case ProviderGoogle, ProviderMock:
	default:
		return fmt.Errorf("unknown provider %q", s.Provider)
	}
	return nil
}

// Validate validates the audio source selection
func (a *AudioConfig) Validate() error {
	switch a.Source {
	case SourceFFmpeg, SourceWebSocket:
		return nil
	default:
		return fmt.Errorf("unknown audio source %q", a.Source)
	}
}

// Validate validates the transcript store selection
func (t *TranscriptConfig) Validate() error {
	switch t.Store {
	case StoreFile:
		if t.Path == "" {
			return errors.New("path is required for the file store")
		}
	case StoreMongo:
		if t.Mongo.URI == "" {
			return errors.New("mongo uri is required for the mongo store")
		}
	default:
		return fmt.Errorf("unknown transcript store %q", t.Store)
	}
	return nil
}

// Validate validates logging settings
func (l *LoggingConfig) Validate() error {
	switch l.Format {
	case "json", "console":
	default:
		return fmt.Errorf("unknown log format %q", l.Format)
	}
	switch strings.ToLower(l.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", l.Level)
	}
	return nil
}

func envOrDefault(key string, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func envOrDefaultInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envOrDefaultBool(key string, fallback bool) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envOrDefaultDuration(key string, fallback time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}
