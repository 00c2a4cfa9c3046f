// Package retry runs operations against a remote service under a retry
// policy chosen from the classified kind of each failure.
//
// Non-retryable kinds (see failure.Retryable) end the loop immediately with
// the original error. Retryable failures are retried with jittered
// exponential backoff until the budget is spent, at which point an
// *ExhaustedError carrying every attempt's error is returned.
//
//	exec := retry.NewExecutor(retry.WithObserver(retry.NewLogObserver(logger)))
//	img, err := retry.Run(ctx, exec, retry.DefaultConfig(), jobID, client.Generate)
package retry

import (
	"context"
	"time"

	"github.com/stonezone/batchgen/failure"
)

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Executor runs operations with retries. An Executor is safe for
// concurrent use.
type Executor struct {
	observer Observer
	sleep    Sleeper
	rand     func() float64
}

// Option configures an Executor.
type Option func(*Executor)

// WithObserver adds observers that receive retry events.
func WithObserver(obs ...Observer) Option {
	return func(e *Executor) {
		if existing, ok := e.observer.(Observers); ok {
			e.observer = append(existing, obs...)
			return
		}
		e.observer = Observers(obs)
	}
}

// WithSleeper replaces the backoff sleep. Tests use it to avoid waiting.
func WithSleeper(s Sleeper) Option {
	return func(e *Executor) { e.sleep = s }
}

// WithRand replaces the jitter source.
func WithRand(fn func() float64) Option {
	return func(e *Executor) { e.rand = fn }
}

// NewExecutor creates an Executor.
func NewExecutor(opts ...Option) *Executor {
	e := &Executor{
		observer: Observers(nil),
		sleep:    SleepContext,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Do runs fn until it succeeds, fails with a non-retryable error, the
// context is cancelled, or the attempts allowed by cfg are spent. An empty
// label falls back to LabelFromContext.
func (e *Executor) Do(ctx context.Context, cfg Config, label string, fn func(ctx context.Context) error) error {
	if label == "" {
		label = LabelFromContext(ctx)
	}

	var errs []error
	adapted := false
	ev := Event{Label: label}

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		ev.Attempt = attempt
		ev.Kind, ev.Delay, ev.Err = "", 0, nil
		e.observer.OnAttempt(ctx, ev)

		err := fn(ctx)
		if err == nil {
			e.observer.OnSuccess(ctx, ev)
			return nil
		}
		errs = append(errs, err)
		ev.Err = err
		ev.Kind = failure.Classify(err)

		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if !failure.Retryable(ev.Kind) {
			e.observer.OnGiveUp(ctx, ev)
			return err
		}
		if cfg.Adaptive && !adapted && ev.Kind != failure.Unknown {
			adapted = true
			cfg = PolicyFor(ev.Kind)
		}
		if attempt >= cfg.MaxRetries {
			break
		}

		ev.Delay = cfg.Strategy(e.rand).Delay(attempt)
		e.observer.OnBackoff(ctx, ev)
		if err := e.sleep(ctx, ev.Delay); err != nil {
			return err
		}
	}

	e.observer.OnExhausted(ctx, ev)
	return &ExhaustedError{Label: label, Errors: errs}
}

// Run is Do for operations that return a value.
func Run[T any](ctx context.Context, e *Executor, cfg Config, label string, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := e.Do(ctx, cfg, label, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}

// SleepContext waits for d or until ctx is done, returning ctx.Err() in
// the latter case.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type labelKey struct{}

// WithLabel returns a context carrying label for Do calls that pass an
// empty label.
func WithLabel(ctx context.Context, label string) context.Context {
	return context.WithValue(ctx, labelKey{}, label)
}

// LabelFromContext returns the label set by WithLabel.
func LabelFromContext(ctx context.Context) string {
	s, _ := ctx.Value(labelKey{}).(string)
	return s
}
