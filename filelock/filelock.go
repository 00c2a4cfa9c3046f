// Package filelock serialises access to status files shared between
// goroutines and processes. Each protected file gets a sidecar "<path>.lock"
// locked with flock(2) on POSIX systems and LockFileEx on Windows.
package filelock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/flock"

	"github.com/stonezone/batchgen"
)

// DefaultTimeout bounds lock acquisition when no timeout is configured.
const DefaultTimeout = 5 * time.Second

const defaultRetryDelay = 10 * time.Millisecond

// Locker acquires sidecar locks with a bounded wait.
type Locker struct {
	timeout    time.Duration
	retryDelay time.Duration
}

// New returns a Locker that waits at most timeout for a lock. A zero or
// negative timeout means DefaultTimeout.
func New(timeout time.Duration) *Locker {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Locker{timeout: timeout, retryDelay: defaultRetryDelay}
}

var defaultLocker = New(DefaultTimeout)

// LockPath returns the sidecar lock path for path.
func LockPath(path string) string { return path + ".lock" }

// WithExclusive runs fn while holding an exclusive lock on path.
func (l *Locker) WithExclusive(ctx context.Context, path string, fn func() error) error {
	return l.with(ctx, path, true, fn)
}

// WithShared runs fn while holding a shared lock on path. Shared holders
// exclude exclusive holders but not each other.
func (l *Locker) WithShared(ctx context.Context, path string, fn func() error) error {
	return l.with(ctx, path, false, fn)
}

func (l *Locker) with(ctx context.Context, path string, exclusive bool, fn func() error) error {
	lock := flock.New(LockPath(path))

	lockCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	var (
		ok  bool
		err error
	)
	if exclusive {
		ok, err = lock.TryLockContext(lockCtx, l.retryDelay)
	} else {
		ok, err = lock.TryRLockContext(lockCtx, l.retryDelay)
	}
	if !ok || err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err == nil || errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: %s after %s", batchgen.ErrLockTimeout, path, l.timeout)
		}
		return fmt.Errorf("filelock: acquire %s: %w", path, err)
	}
	defer func() { _ = lock.Unlock() }()

	return fn()
}

// WithExclusive runs fn under an exclusive lock using DefaultTimeout.
func WithExclusive(ctx context.Context, path string, fn func() error) error {
	return defaultLocker.WithExclusive(ctx, path, fn)
}

// WithShared runs fn under a shared lock using DefaultTimeout.
func WithShared(ctx context.Context, path string, fn func() error) error {
	return defaultLocker.WithShared(ctx, path, fn)
}
