package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/satriahrh/scribe/adapters/capture"
	"github.com/satriahrh/scribe/adapters/device"
	"github.com/satriahrh/scribe/adapters/mongo"
	"github.com/satriahrh/scribe/adapters/stt"
	"github.com/satriahrh/scribe/adapters/transcript"
	"github.com/satriahrh/scribe/domain/repositories"
	"github.com/satriahrh/scribe/internal/config"
	"github.com/satriahrh/scribe/internal/events"
	"github.com/satriahrh/scribe/internal/metrics"
	"github.com/satriahrh/scribe/internal/websocket"
	"github.com/satriahrh/scribe/usecase"
)

// app holds the wired components shared by serve and mcp
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	service  *usecase.TranscriptionService
	stt      repositories.SpeechToText
	hub      *websocket.Hub
	devices  *device.MemoryRepository
	registry *prometheus.Registry
	closers  []func(context.Context) error
}

func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	a := &app{
		cfg:      cfg,
		logger:   logger,
		hub:      websocket.NewHub(logger.Named("ws")),
		registry: prometheus.NewRegistry(),
	}
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.NewMetrics(a.registry)

	speech, err := a.buildSpeechToText(ctx)
	if err != nil {
		a.close(ctx)
		return nil, fmt.Errorf("speech-to-text: %w", err)
	}
	a.stt = m.InstrumentSpeechToText(speech)

	store, err := a.buildTranscriptStore(ctx)
	if err != nil {
		a.close(ctx)
		return nil, fmt.Errorf("transcript store: %w", err)
	}

	a.devices, err = device.NewMemoryRepository(ctx, cfg.Devices...)
	if err != nil {
		a.close(ctx)
		return nil, fmt.Errorf("devices: %w", err)
	}

	var source repositories.AudioSource = a.hub
	if cfg.Audio.Source == config.SourceFFmpeg {
		source = capture.NewFFmpegSource(cfg.Audio.FFmpeg, logger.Named("ffmpeg"))
	}

	sink := events.NewMultiSink(logger, events.NewZapSink(logger.Named("events")), m, a.hub)

	a.service = usecase.NewTranscriptionService(
		a.stt,
		source,
		store,
		sink,
		cfg.Session.Transcription(),
		logger.Named("session"),
	)
	a.hub.SetController(a.service)
	m.RegisterStatus(a.service.Snapshot)

	logger.Info("Components wired",
		zap.String("stt_provider", cfg.STT.Provider),
		zap.String("audio_source", cfg.Audio.Source),
		zap.String("transcript_store", cfg.Transcript.Store),
		zap.String("transcript_path", store.Path()),
		zap.Int("devices", len(cfg.Devices)))

	return a, nil
}

func (a *app) buildSpeechToText(ctx context.Context) (repositories.SpeechToText, error) {
	logger := a.logger.Named("stt")
	switch a.cfg.STT.Provider {
	case config.ProviderWhisper:
		return stt.NewWhisperSpeechToText(a.cfg.STT.Whisper, logger)
	case config.ProviderGemini:
		return stt.NewGeminiSpeechToText(ctx, a.cfg.STT.Gemini, logger)
	case config.ProviderGoogle:
		google, err := stt.NewGoogleSpeechToText(ctx, a.cfg.STT.Google, logger)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func(context.Context) error { return google.Close() })
		return google, nil
	case config.ProviderMock:
		return stt.NewMockSpeechToText(logger), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", a.cfg.STT.Provider)
	}
}

func (a *app) buildTranscriptStore(ctx context.Context) (repositories.TranscriptStore, error) {
	logger := a.logger.Named("transcript")
	switch a.cfg.Transcript.Store {
	case config.StoreMongo:
		client, err := mongo.NewClient(ctx, a.cfg.Transcript.Mongo, logger)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, client.Close)
		return mongo.NewTranscriptRepository(client.Database, a.cfg.Transcript.Mongo.Collection, a.cfg.Transcript.Mongo.Transcript, logger)
	default:
		return transcript.NewFileStore(a.cfg.Transcript.Path, logger)
	}
}

// shutdown stops a running session and releases clients
func (a *app) shutdown(ctx context.Context) error {
	var errs []error
	if a.service != nil && a.service.Snapshot().IsRunning {
		a.logger.Info("Stopping running session before exit")
		if err := a.service.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop session: %w", err))
		}
	}
	errs = append(errs, a.close(ctx))
	return errors.Join(errs...)
}

func (a *app) close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i](ctx))
	}
	a.closers = nil
	return errors.Join(errs...)
}
