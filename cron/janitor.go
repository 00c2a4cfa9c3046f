package cron

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	cronlib "github.com/robfig/cron/v3"

	"github.com/stonezone/batchgen/store"
)

// Emitter emits sweep lifecycle events.
// ext.Registry satisfies this interface via EmitSweepCompleted.
type Emitter interface {
	EmitSweepCompleted(ctx context.Context, res *store.SweepResult)
}

// JanitorOption configures a Janitor.
type JanitorOption func(*Janitor)

// WithTickInterval sets how often the janitor checks whether a sweep is due.
func WithTickInterval(d time.Duration) JanitorOption {
	return func(j *Janitor) {
		if d > 0 {
			j.tickInterval = d
		}
	}
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) JanitorOption {
	return func(j *Janitor) { j.now = now }
}

// cronParser supports standard 5-field cron and descriptors like "@every 30s".
var cronParser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow | cronlib.Descriptor,
)

// ParseSchedule parses a cron expression and returns the schedule.
func ParseSchedule(expr string) (cronlib.Schedule, error) {
	return cronParser.Parse(expr)
}

// Janitor sweeps old status records on a cron schedule.
type Janitor struct {
	sweeper  store.Sweeper
	emitter  Emitter
	schedule cronlib.Schedule
	expr     string
	maxAge   time.Duration
	logger   *slog.Logger
	now      func() time.Time

	tickInterval time.Duration

	mu      sync.Mutex
	entry   Entry
	next    time.Time
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewJanitor creates a Janitor that removes records older than maxAge
// whenever expr fires. emitter may be nil.
func NewJanitor(
	sweeper store.Sweeper,
	emitter Emitter,
	expr string,
	maxAge time.Duration,
	logger *slog.Logger,
	opts ...JanitorOption,
) (*Janitor, error) {
	sched, err := ParseSchedule(expr)
	if err != nil {
		return nil, fmt.Errorf("parse sweep schedule %q: %w", expr, err)
	}
	if maxAge <= 0 {
		return nil, fmt.Errorf("sweep max age must be positive, got %s", maxAge)
	}
	if logger == nil {
		logger = slog.Default()
	}
	j := &Janitor{
		sweeper:      sweeper,
		emitter:      emitter,
		schedule:     sched,
		expr:         expr,
		maxAge:       maxAge,
		logger:       logger,
		now:          func() time.Time { return time.Now().UTC() },
		tickInterval: time.Second,
		entry:        Entry{Schedule: expr, MaxAge: maxAge.String()},
	}
	for _, opt := range opts {
		opt(j)
	}
	return j, nil
}

// Start launches the tick goroutine. The first sweep runs at the first
// time the schedule fires after Start.
func (j *Janitor) Start(_ context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.running {
		return nil
	}
	j.running = true
	j.stopCh = make(chan struct{})
	j.next = j.schedule.Next(j.now())
	next := j.next
	j.entry.NextRunAt = &next

	j.wg.Add(1)
	go j.tickLoop(j.stopCh)

	j.logger.Info("sweep janitor started",
		slog.String("schedule", j.expr),
		slog.Duration("max_age", j.maxAge),
		slog.Time("next_run_at", next),
	)
	return nil
}

// Stop signals the janitor to stop and waits for a running sweep to end.
func (j *Janitor) Stop(_ context.Context) error {
	j.mu.Lock()
	if !j.running {
		j.mu.Unlock()
		return nil
	}
	j.running = false
	close(j.stopCh)
	j.mu.Unlock()

	j.wg.Wait()
	j.logger.Info("sweep janitor stopped")
	return nil
}

// Entry returns the schedule and the outcome of the last sweep.
func (j *Janitor) Entry() Entry {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.entry
}

// RunOnce sweeps immediately, independent of the schedule.
func (j *Janitor) RunOnce(ctx context.Context) (*store.SweepResult, error) {
	start := j.now()
	res, err := j.sweeper.Sweep(ctx, j.maxAge)

	j.mu.Lock()
	j.entry.Runs++
	j.entry.LastRunAt = &start
	j.entry.LastError = ""
	j.entry.LastRemoved = 0
	if err != nil {
		j.entry.LastError = err.Error()
	}
	if res != nil {
		j.entry.LastRemoved = res.Removed
	}
	j.mu.Unlock()

	if err != nil {
		j.logger.Error("status sweep failed", slog.String("error", err.Error()))
		return nil, err
	}

	j.logger.Info("status sweep finished",
		slog.Int("scanned", res.Scanned),
		slog.Int("removed", res.Removed),
		slog.Int("errors", len(res.Errors)),
	)
	if j.emitter != nil {
		j.emitter.EmitSweepCompleted(ctx, res)
	}
	return res, nil
}

// tickLoop fires on each tick interval and sweeps when the schedule is due.
func (j *Janitor) tickLoop(stopCh chan struct{}) {
	defer j.wg.Done()

	ticker := time.NewTicker(j.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			j.tick()
		}
	}
}

func (j *Janitor) tick() {
	now := j.now()

	j.mu.Lock()
	due := !j.next.After(now)
	if due {
		j.next = j.schedule.Next(now)
		next := j.next
		j.entry.NextRunAt = &next
	}
	j.mu.Unlock()

	if due {
		_, _ = j.RunOnce(context.Background())
	}
}
