// Package worker provides the job execution engine: an Executor that
// invokes job callbacks through middleware and records their outcome, and
// a Pool that runs worker goroutines over an in-memory queue.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/stonezone/batchgen/ext"
	"github.com/stonezone/batchgen/job"
	"github.com/stonezone/batchgen/middleware"
	"github.com/stonezone/batchgen/payload"
	"github.com/stonezone/batchgen/retry"
)

// Executor runs a single job through the middleware chain and its
// callback, writes the resulting status and emits lifecycle events.
type Executor struct {
	extensions *ext.Registry
	store      job.Store
	mw         middleware.Middleware
	logger     *slog.Logger
	now        func() time.Time
}

// NewExecutor creates an Executor with the given dependencies.
func NewExecutor(
	extensions *ext.Registry,
	store job.Store,
	logger *slog.Logger,
	mws ...middleware.Middleware,
) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	if extensions == nil {
		extensions = ext.NewRegistry(logger)
	}
	return &Executor{
		extensions: extensions,
		store:      store,
		mw:         middleware.Chain(mws...),
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Execute runs a job that the pool has already marked running. The
// running status is written first, then cb is invoked with a copy of the
// job's params.
//
// On success the job is marked completed with the callback's result. If
// the callback fails after ctx was cancelled the job is marked cancelled;
// any other error marks it failed. The callback error is returned.
func (e *Executor) Execute(ctx context.Context, j *job.Job, cb job.Callback) error {
	_ = e.write(ctx, j)
	e.extensions.EmitJobStarted(ctx, j)

	ctx = withJobID(ctx, j.ID)
	ctx = retry.WithLabel(ctx, j.ID)

	var result payload.Map
	terminal := func(ctx context.Context) error {
		res, err := cb(ctx, *j.Params.Clone())
		if err != nil {
			return err
		}
		result = res
		return nil
	}

	start := time.Now()
	err := e.mw(ctx, j, terminal)
	elapsed := time.Since(start)
	now := e.now()

	switch {
	case err == nil:
		j.MarkCompleted(now, *result.Clone())
		if !e.writeTerminal(ctx, j) {
			e.extensions.EmitJobFailed(ctx, j, errors.New(j.ErrorMessage))
			break
		}
		e.extensions.EmitJobCompleted(ctx, j, elapsed)

	case ctx.Err() != nil:
		j.MarkCancelled(now)
		if !e.writeTerminal(ctx, j) {
			e.extensions.EmitJobFailed(ctx, j, errors.New(j.ErrorMessage))
			break
		}
		e.logger.Info("job cancelled",
			slog.String("job_id", j.ID),
			slog.String("job_name", j.Name),
		)
		e.extensions.EmitJobCancelled(ctx, j)

	default:
		j.MarkFailed(now, err.Error())
		e.writeTerminal(ctx, j)
		e.logger.Warn("job failed",
			slog.String("job_id", j.ID),
			slog.String("job_name", j.Name),
			slog.Duration("elapsed", elapsed),
			slog.String("error", err.Error()),
		)
		e.extensions.EmitJobFailed(ctx, j, err)
	}

	return err
}

// write records the job's status. A failed write is logged; the in-memory
// view stays authoritative for this process.
func (e *Executor) write(ctx context.Context, j *job.Job) error {
	// Status writes must land even when the job's own context is done.
	ctx = context.WithoutCancel(ctx)
	err := e.store.Write(ctx, j)
	if err != nil {
		e.logger.Error("failed to write job status",
			slog.String("job_id", j.ID),
			slog.String("status", string(j.Status)),
			slog.String("error", err.Error()),
		)
	}
	return err
}

// writeTerminal records a finished job. If the record cannot be written,
// for example because the lock timed out, the job is marked failed with the
// write error and written once more; a status file must not stay running
// after the callback returned. It reports whether the job kept the status
// it was given.
func (e *Executor) writeTerminal(ctx context.Context, j *job.Job) bool {
	err := e.write(ctx, j)
	if err == nil {
		return true
	}
	if j.Status != job.StatusFailed {
		j.MarkFailed(*j.CompletedAt, "write job status: "+err.Error())
		_ = e.write(ctx, j)
		return false
	}
	return true
}

type jobIDKey struct{}

func withJobID(ctx context.Context, jobID string) context.Context {
	return context.WithValue(ctx, jobIDKey{}, jobID)
}

// JobIDFromContext returns the ID of the job whose callback received ctx.
func JobIDFromContext(ctx context.Context) (string, bool) {
	s, ok := ctx.Value(jobIDKey{}).(string)
	return s, ok && s != ""
}
