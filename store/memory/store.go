// Package memory provides an in-memory implementation of store.Store.
// Safe for concurrent access. Intended for unit tests and runs that do not
// need status to outlive the process.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/stonezone/batchgen"
	"github.com/stonezone/batchgen/batch"
	"github.com/stonezone/batchgen/job"
	"github.com/stonezone/batchgen/store"
)

var _ store.Store = (*Store)(nil)

type jobRecord struct {
	job       *job.Job
	writtenAt time.Time
}

// Store is a fully in-memory implementation of store.Store.
type Store struct {
	mu sync.RWMutex

	jobs    map[string]jobRecord
	batches map[string]*batch.Batch
	closed  bool

	now func() time.Time
}

// New returns a new empty Store.
func New() *Store {
	return &Store{
		jobs:    make(map[string]jobRecord),
		batches: make(map[string]*batch.Batch),
		now:     time.Now,
	}
}

// Close marks the store closed.
func (m *Store) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// ──────────────────────────────────────────────────
// Job Store
// ──────────────────────────────────────────────────

// Write validates j and stores a copy.
func (m *Store) Write(_ context.Context, j *job.Job) error {
	if err := j.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return batchgen.ErrStoreClosed
	}
	m.jobs[j.ID] = jobRecord{job: j.Clone(), writtenAt: m.now()}
	return nil
}

// Read returns a copy of the stored job.
func (m *Store) Read(_ context.Context, jobID string) (*job.Job, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, false
	}
	rec, ok := m.jobs[jobID]
	if !ok {
		return nil, false
	}
	return rec.job.Clone(), true
}

// Sweep removes job records written more than maxAge ago.
func (m *Store) Sweep(_ context.Context, maxAge time.Duration) (*store.SweepResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, batchgen.ErrStoreClosed
	}

	cutoff := m.now().Add(-maxAge)
	res := &store.SweepResult{Scanned: len(m.jobs)}
	for jobID, rec := range m.jobs {
		if rec.writtenAt.Before(cutoff) {
			delete(m.jobs, jobID)
			res.Removed++
		}
	}
	return res, nil
}

// ──────────────────────────────────────────────────
// Batch Store
// ──────────────────────────────────────────────────

// SaveBatch stores a copy of b.
func (m *Store) SaveBatch(_ context.Context, b *batch.Batch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return batchgen.ErrStoreClosed
	}
	m.batches[b.ID] = b.Clone()
	return nil
}

// LoadBatch returns a copy of the stored batch.
func (m *Store) LoadBatch(_ context.Context, batchID string) (*batch.Batch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, batchgen.ErrStoreClosed
	}
	b, ok := m.batches[batchID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", batchgen.ErrBatchNotFound, batchID)
	}
	return b.Clone(), nil
}

// DeleteBatch removes a batch. Missing batches are ignored.
func (m *Store) DeleteBatch(_ context.Context, batchID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return batchgen.ErrStoreClosed
	}
	delete(m.batches, batchID)
	return nil
}

// ListBatches returns copies of every stored batch.
func (m *Store) ListBatches(_ context.Context) ([]*batch.Batch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, batchgen.ErrStoreClosed
	}
	out := make([]*batch.Batch, 0, len(m.batches))
	for _, b := range m.batches {
		out = append(out, b.Clone())
	}
	return out, nil
}
