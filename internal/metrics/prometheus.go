package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/satriahrh/scribe/domain/entities"
	"github.com/satriahrh/scribe/domain/repositories"
)

var _ repositories.EventSink = (*Metrics)(nil)

// Metrics contains the Prometheus metrics of the transcription service
type Metrics struct {
	// Session lifecycle
	Events        *prometheus.CounterVec
	Pauses        *prometheus.CounterVec
	SessionActive prometheus.Gauge
	SessionPaused prometheus.Gauge

	// Transcription
	TranscriptionRequests prometheus.Counter
	TranscriptionFailures prometheus.Counter
	TranscriptionEmpty    prometheus.Counter
	TranscriptionDuration prometheus.Histogram

	registerer prometheus.Registerer
}

// NewMetrics creates and registers all metrics on reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Events: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "scribe_session_events_total",
			Help: "Total number of session events by type",
		}, []string{"type"}),
		Pauses: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "scribe_session_pauses_total",
			Help: "Total number of pauses by reason",
		}, []string{"reason"}),
		SessionActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "scribe_session_running",
			Help: "1 while a transcription session is running",
		}),
		SessionPaused: factory.NewGauge(prometheus.GaugeOpts{
			Name: "scribe_session_paused",
			Help: "1 while the running session is paused",
		}),
		TranscriptionRequests: factory.NewCounter(prometheus.CounterOpts{
			Name: "scribe_transcription_requests_total",
			Help: "Total number of chunks sent to speech-to-text",
		}),
		TranscriptionFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "scribe_transcription_failures_total",
			Help: "Total number of failed speech-to-text calls",
		}),
		TranscriptionEmpty: factory.NewCounter(prometheus.CounterOpts{
			Name: "scribe_transcription_empty_total",
			Help: "Total number of chunks where no speech was recognized",
		}),
		TranscriptionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "scribe_transcription_duration_seconds",
			Help:    "Time spent in speech-to-text calls",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		}),
		registerer: reg,
	}
}

// RegisterStatus exposes counters and costs of the current session, read on every scrape
func (m *Metrics) RegisterStatus(status func() entities.Snapshot) {
	factory := promauto.With(m.registerer)
	gauge := func(name, help string, value func(entities.Snapshot) float64) {
		factory.NewGaugeFunc(prometheus.GaugeOpts{Name: name, Help: help}, func() float64 {
			return value(status())
		})
	}
	gauge("scribe_chunks_processed", "Chunks transcribed in the current session",
		func(s entities.Snapshot) float64 { return float64(s.ChunksProcessed) })
	gauge("scribe_silent_chunks_skipped", "Silent chunks skipped in the current session",
		func(s entities.Snapshot) float64 { return float64(s.SilentChunksSkipped) })
	gauge("scribe_session_errors", "Errors in the current session",
		func(s entities.Snapshot) float64 { return float64(s.Errors) })
	gauge("scribe_estimated_cost_usd", "Estimated transcription cost of the current session",
		func(s entities.Snapshot) float64 { return s.EstimatedCost })
	gauge("scribe_cost_saved_usd", "Cost avoided by skipping silence in the current session",
		func(s entities.Snapshot) float64 { return s.CostSaved })
}

// Emit implements repositories.EventSink
func (m *Metrics) Emit(event entities.StatusChangeEvent) {
	m.Events.WithLabelValues(string(event.Type)).Inc()

	switch event.Type {
	case entities.EventStarted:
		m.SessionActive.Set(1)
		m.SessionPaused.Set(0)
	case entities.EventStopped:
		m.SessionActive.Set(0)
		m.SessionPaused.Set(0)
	case entities.EventPaused:
		m.Pauses.WithLabelValues(string(event.Reason)).Inc()
		m.SessionPaused.Set(1)
	case entities.EventWarning:
		m.Pauses.WithLabelValues(string(entities.PauseReasonInactivity)).Inc()
		m.SessionPaused.Set(1)
	case entities.EventResumed:
		m.SessionPaused.Set(0)
	}
}

// InstrumentedSpeechToText records request metrics around another SpeechToText
type InstrumentedSpeechToText struct {
	next    repositories.SpeechToText
	metrics *Metrics
}

var _ repositories.SpeechToText = (*InstrumentedSpeechToText)(nil)

// InstrumentSpeechToText wraps next with transcription metrics
func (m *Metrics) InstrumentSpeechToText(next repositories.SpeechToText) *InstrumentedSpeechToText {
	return &InstrumentedSpeechToText{next: next, metrics: m}
}

func (i *InstrumentedSpeechToText) Transcribe(ctx context.Context, wav []byte) (*entities.TranscriptEntry, error) {
	start := time.Now()
	i.metrics.TranscriptionRequests.Inc()

	entry, err := i.next.Transcribe(ctx, wav)
	i.metrics.TranscriptionDuration.Observe(time.Since(start).Seconds())

	switch {
	case err != nil:
		i.metrics.TranscriptionFailures.Inc()
	case entry == nil:
		i.metrics.TranscriptionEmpty.Inc()
	}
	return entry, err
}

func (i *InstrumentedSpeechToText) HealthCheck(ctx context.Context) error {
	return i.next.HealthCheck(ctx)
}
