package retry

import (
	"context"
	"log/slog"
	"time"

	"github.com/stonezone/batchgen/failure"
)

// Event describes one step of a retry loop.
type Event struct {
	Label   string
	Attempt int
	Kind    failure.Kind
	Delay   time.Duration
	Err     error
}

// Observer receives retry loop events. Implementations must be safe for
// concurrent use and must not block.
type Observer interface {
	OnAttempt(ctx context.Context, ev Event)
	OnBackoff(ctx context.Context, ev Event)
	OnSuccess(ctx context.Context, ev Event)
	// OnGiveUp is called when a non-retryable error ends the loop.
	OnGiveUp(ctx context.Context, ev Event)
	OnExhausted(ctx context.Context, ev Event)
}

// Observers fans events out to several observers.
type Observers []Observer

func (o Observers) OnAttempt(ctx context.Context, ev Event) {
	for _, obs := range o {
		obs.OnAttempt(ctx, ev)
	}
}

func (o Observers) OnBackoff(ctx context.Context, ev Event) {
	for _, obs := range o {
		obs.OnBackoff(ctx, ev)
	}
}

func (o Observers) OnSuccess(ctx context.Context, ev Event) {
	for _, obs := range o {
		obs.OnSuccess(ctx, ev)
	}
}

func (o Observers) OnGiveUp(ctx context.Context, ev Event) {
	for _, obs := range o {
		obs.OnGiveUp(ctx, ev)
	}
}

func (o Observers) OnExhausted(ctx context.Context, ev Event) {
	for _, obs := range o {
		obs.OnExhausted(ctx, ev)
	}
}

// LogObserver writes retry events to a slog.Logger.
type LogObserver struct {
	logger *slog.Logger
}

var _ Observer = (*LogObserver)(nil)

// NewLogObserver returns an observer logging to logger, or slog.Default
// when logger is nil.
func NewLogObserver(logger *slog.Logger) *LogObserver {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogObserver{logger: logger}
}

func (l *LogObserver) OnAttempt(ctx context.Context, ev Event) {
	l.logger.DebugContext(ctx, "retry attempt",
		slog.String("job_id", ev.Label),
		slog.Int("attempt", ev.Attempt),
	)
}

func (l *LogObserver) OnBackoff(ctx context.Context, ev Event) {
	l.logger.WarnContext(ctx, "retry backoff",
		slog.String("job_id", ev.Label),
		slog.Int("attempt", ev.Attempt),
		slog.String("error_kind", string(ev.Kind)),
		slog.Int64("delay_ms", ev.Delay.Milliseconds()),
		slog.String("error", errString(ev.Err)),
	)
}

func (l *LogObserver) OnSuccess(ctx context.Context, ev Event) {
	if ev.Attempt == 0 {
		return
	}
	l.logger.InfoContext(ctx, "retry succeeded",
		slog.String("job_id", ev.Label),
		slog.Int("attempt", ev.Attempt),
	)
}

func (l *LogObserver) OnGiveUp(ctx context.Context, ev Event) {
	l.logger.ErrorContext(ctx, "retry aborted on terminal error",
		slog.String("job_id", ev.Label),
		slog.Int("attempt", ev.Attempt),
		slog.String("error_kind", string(ev.Kind)),
		slog.String("error", errString(ev.Err)),
	)
}

func (l *LogObserver) OnExhausted(ctx context.Context, ev Event) {
	l.logger.ErrorContext(ctx, "retry exhausted",
		slog.String("job_id", ev.Label),
		slog.Int("attempt", ev.Attempt),
		slog.String("error_kind", string(ev.Kind)),
		slog.String("error", errString(ev.Err)),
	)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
