package observe

import (
	"context"
	"log/slog"

	"github.com/stepguard/stepguard/internal/core/domain"
)

// Slog logs every event through a slog.Logger. The event type becomes the
// message and payload keys are flattened as attributes.
type Slog struct {
	logger *slog.Logger
}

// NewSlog creates a Slog observer. A nil logger falls back to slog.Default.
func NewSlog(logger *slog.Logger) *Slog {
	if logger == nil {
		logger = slog.Default()
	}
	return &Slog{logger: logger}
}

func (o *Slog) OnEvent(ctx context.Context, event domain.Event) {
	attrs := make([]slog.Attr, 0, len(event.Data))
	for k, v := range event.Data {
		attrs = append(attrs, slog.Any(k, v))
	}
	o.logger.LogAttrs(ctx, levelFor(event.Type), string(event.Type), attrs...)
}

func levelFor(t domain.EventType) slog.Level {
	switch t {
	case domain.EventErrorDetected,
		domain.EventRecoveryPrimaryFailed,
		domain.EventRetryMaxAttemptsReached,
		domain.EventBreakerOpened:
		return slog.LevelWarn
	case domain.EventRetryAttempt,
		domain.EventBreakerHalfOpenTest:
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}
