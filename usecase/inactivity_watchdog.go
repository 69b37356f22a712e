package usecase

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// InactivityChecker applies the inactivity safeguard on demand
type InactivityChecker interface {
	CheckInactivity(ctx context.Context)
}

// InactivityWatchdog periodically checks the session for inactivity, so an idle
// session is paused even when the audio source stops delivering data.
type InactivityWatchdog struct {
	checker  InactivityChecker
	interval time.Duration
	logger   *zap.Logger
}

// NewInactivityWatchdog creates a watchdog. A non-positive interval means one minute.
func NewInactivityWatchdog(checker InactivityChecker, interval time.Duration, logger *zap.Logger) *InactivityWatchdog {
	if interval <= 0 {
		interval = time.Minute
	}
	return &InactivityWatchdog{
		checker:  checker,
		interval: interval,
		logger:   logger,
	}
}

// Run checks on every tick until ctx is done
func (w *InactivityWatchdog) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("Inactivity watchdog started", zap.Duration("interval", w.interval))
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Inactivity watchdog stopped")
			return nil
		case <-ticker.C:
			w.checker.CheckInactivity(ctx)
		}
	}
}
