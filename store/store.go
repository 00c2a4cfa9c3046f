// Package store defines the aggregate persistence interface. The job
// status store and the batch record store are separate contracts defined
// next to their entities; a backend implements both plus the age sweep.
package store

import (
	"context"
	"time"

	"github.com/stonezone/batchgen/batch"
	"github.com/stonezone/batchgen/job"
)

// Store is the aggregate persistence interface.
type Store interface {
	job.Store
	batch.Store
	Sweeper

	// Close releases the store. Subsequent calls fail with
	// batchgen.ErrStoreClosed.
	Close() error
}

// Sweeper deletes job status records older than a maximum age.
type Sweeper interface {
	Sweep(ctx context.Context, maxAge time.Duration) (*SweepResult, error)
}

// SweepResult summarises one sweep. Per-record failures are collected in
// Errors rather than aborting the sweep.
type SweepResult struct {
	Scanned int
	Removed int
	Errors  []error
}
