package events

import (
	"go.uber.org/zap"

	"github.com/satriahrh/scribe/domain/entities"
	"github.com/satriahrh/scribe/domain/repositories"
)

var (
	_ repositories.EventSink = (*ZapSink)(nil)
	_ repositories.EventSink = (*MultiSink)(nil)
)

// ZapSink writes every session transition to a structured log
type ZapSink struct {
	logger *zap.Logger
}

// NewZapSink creates a logging event sink
func NewZapSink(logger *zap.Logger) *ZapSink {
	return &ZapSink{logger: logger}
}

// Emit implements repositories.EventSink
func (z *ZapSink) Emit(event entities.StatusChangeEvent) {
	fields := []zap.Field{
		zap.String("sessionID", event.SessionID),
		zap.String("event", string(event.Type)),
		zap.Time("timestamp", event.Timestamp),
	}

	switch event.Type {
	case entities.EventPaused:
		fields = append(fields, zap.String("reason", string(event.Reason)), zap.String("message", event.Message))
	case entities.EventResumed:
		fields = append(fields, zap.String("previousReason", string(event.PreviousReason)))
	case entities.EventSilenceDetected:
		fields = append(fields, zap.Int("consecutiveChunks", event.ConsecutiveChunks))
	case entities.EventWarning:
		fields = append(fields, zap.String("message", event.Message), zap.Int("elapsedMinutes", event.ElapsedMinutes))
		z.logger.Warn("Session warning", fields...)
		return
	case entities.EventError:
		fields = append(fields, zap.String("message", event.Message))
		z.logger.Error("Session error", fields...)
		return
	case entities.EventStopped:
		if event.Stats != nil {
			fields = append(fields,
				zap.Int("chunksProcessed", event.Stats.ChunksProcessed),
				zap.Float64("durationSeconds", event.Stats.DurationSeconds),
				zap.Int("errors", event.Stats.Errors))
		}
	}

	if event.Type == entities.EventSilenceDetected || event.Type == entities.EventAudioDetected {
		z.logger.Debug("Session event", fields...)
		return
	}
	z.logger.Info("Session event", fields...)
}

// MultiSink fans an event out to several sinks. A panicking sink is logged and
// does not prevent delivery to the others.
type MultiSink struct {
	sinks  []repositories.EventSink
	logger *zap.Logger
}

// NewMultiSink creates a fan-out sink; nil sinks are skipped
func NewMultiSink(logger *zap.Logger, sinks ...repositories.EventSink) *MultiSink {
	m := &MultiSink{logger: logger}
	for _, s := range sinks {
		if s != nil {
			m.sinks = append(m.sinks, s)
		}
	}
	return m
}

// Emit implements repositories.EventSink
func (m *MultiSink) Emit(event entities.StatusChangeEvent) {
	for _, sink := range m.sinks {
		m.emitSafely(sink, event)
	}
}

func (m *MultiSink) emitSafely(sink repositories.EventSink, event entities.StatusChangeEvent) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("Event sink panicked",
				zap.String("event", string(event.Type)),
				zap.Any("panic", r))
		}
	}()
	sink.Emit(event)
}
