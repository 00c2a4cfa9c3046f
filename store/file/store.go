// Package file implements the status and batch stores on the local
// filesystem.
//
// Storage layout:
//
//	{statusDir}/
//	  job_01h….json        one record per job, rewritten on every transition
//	  job_01h….json.lock   sidecar lock, kept after the record is removed
//	{batchDir}/
//	  batch_01h….json
//	  batch_01h….json.lock
//
// Every read takes a shared lock and every write an exclusive lock on the
// record's sidecar, so the directories may be shared by several processes.
// Writes go to a temporary file that is renamed into place, so readers
// never observe a partially written record.
package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stonezone/batchgen"
	"github.com/stonezone/batchgen/batch"
	"github.com/stonezone/batchgen/filelock"
	"github.com/stonezone/batchgen/job"
	"github.com/stonezone/batchgen/store"
)

var _ store.Store = (*Store)(nil)

// Store is a file-per-record implementation of store.Store.
type Store struct {
	statusDir string
	batchDir  string
	codec     Codec
	locker    *filelock.Locker
	logger    *slog.Logger

	mu     sync.RWMutex
	closed bool
}

// Option configures a Store.
type Option func(*Store)

// WithCodec selects the record encoding. Defaults to JSON.
func WithCodec(c Codec) Option {
	return func(s *Store) { s.codec = c }
}

// WithLockTimeout bounds how long reads and writes wait for a file lock.
func WithLockTimeout(d time.Duration) Option {
	return func(s *Store) { s.locker = filelock.New(d) }
}

// WithLogger sets the logger used for infrastructure failures.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// New creates the status and batch directories if needed and returns a
// Store rooted at them.
func New(statusDir, batchDir string, opts ...Option) (*Store, error) {
	s := &Store{
		statusDir: statusDir,
		batchDir:  batchDir,
		codec:     JSONCodec{},
		locker:    filelock.New(filelock.DefaultTimeout),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	for _, dir := range []string{statusDir, batchDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("file: create %s: %w", dir, err)
		}
	}
	return s, nil
}

// Close marks the store closed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *Store) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

// StatusPath returns the file holding the status of jobID.
func (s *Store) StatusPath(jobID string) string {
	return filepath.Join(s.statusDir, jobID+"."+s.codec.Name())
}

// BatchPath returns the file holding the record of batchID.
func (s *Store) BatchPath(batchID string) string {
	return filepath.Join(s.batchDir, batchID+"."+s.codec.Name())
}

// ──────────────────────────────────────────────────
// Job status
// ──────────────────────────────────────────────────

// Write validates j and replaces its status record.
func (s *Store) Write(ctx context.Context, j *job.Job) error {
	if s.isClosed() {
		return batchgen.ErrStoreClosed
	}
	if err := checkName(j.ID); err != nil {
		return err
	}
	if err := j.Validate(); err != nil {
		return err
	}

	data, err := s.codec.Encode(j)
	if err != nil {
		return fmt.Errorf("file: encode job %s: %w", j.ID, err)
	}

	path := s.StatusPath(j.ID)
	return s.locker.WithExclusive(ctx, path, func() error {
		return writeAtomic(path, data)
	})
}

// Read returns the recorded status of jobID. Missing, unreadable and
// invalid records all yield false; the latter two are logged.
func (s *Store) Read(ctx context.Context, jobID string) (*job.Job, bool) {
	if s.isClosed() || checkName(jobID) != nil {
		return nil, false
	}

	path := s.StatusPath(jobID)
	var j job.Job
	found, err := s.readRecord(ctx, path, &j)
	if err != nil {
		s.logger.Warn("unreadable job status record",
			slog.String("job_id", jobID),
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return nil, false
	}
	if !found {
		return nil, false
	}

	if err := j.Validate(); err != nil {
		s.logger.Warn("invalid job status record",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		return nil, false
	}
	if j.ID != jobID {
		s.logger.Warn("job status record holds another job",
			slog.String("job_id", jobID),
			slog.String("record_id", j.ID),
		)
		return nil, false
	}

	normalizeJob(&j)
	return &j, true
}

// ──────────────────────────────────────────────────
// Batch records
// ──────────────────────────────────────────────────

// SaveBatch replaces the record of b.
func (s *Store) SaveBatch(ctx context.Context, b *batch.Batch) error {
	if s.isClosed() {
		return batchgen.ErrStoreClosed
	}
	if err := checkName(b.ID); err != nil {
		return err
	}

	data, err := s.codec.Encode(b)
	if err != nil {
		return fmt.Errorf("file: encode batch %s: %w", b.ID, err)
	}

	path := s.BatchPath(b.ID)
	return s.locker.WithExclusive(ctx, path, func() error {
		return writeAtomic(path, data)
	})
}

// LoadBatch reads the record of batchID.
func (s *Store) LoadBatch(ctx context.Context, batchID string) (*batch.Batch, error) {
	if s.isClosed() {
		return nil, batchgen.ErrStoreClosed
	}
	if err := checkName(batchID); err != nil {
		return nil, err
	}

	var b batch.Batch
	found, err := s.readRecord(ctx, s.BatchPath(batchID), &b)
	if err != nil {
		return nil, fmt.Errorf("file: load batch %s: %w", batchID, err)
	}
	if !found {
		return nil, fmt.Errorf("%w: %s", batchgen.ErrBatchNotFound, batchID)
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}

	if b.Jobs == nil {
		b.Jobs = []*job.Job{}
	}
	for _, j := range b.Jobs {
		normalizeJob(j)
	}
	b.CreatedAt = b.CreatedAt.UTC()
	b.StartedAt = utcPtr(b.StartedAt)
	b.CompletedAt = utcPtr(b.CompletedAt)
	return &b, nil
}

// DeleteBatch removes the record of batchID. Its lock sidecar stays.
func (s *Store) DeleteBatch(ctx context.Context, batchID string) error {
	if s.isClosed() {
		return batchgen.ErrStoreClosed
	}
	if err := checkName(batchID); err != nil {
		return err
	}

	path := s.BatchPath(batchID)
	return s.locker.WithExclusive(ctx, path, func() error {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("file: delete batch %s: %w", batchID, err)
		}
		return nil
	})
}

// ListBatches loads every batch record. Records that fail to load are
// logged and skipped.
func (s *Store) ListBatches(ctx context.Context) ([]*batch.Batch, error) {
	if s.isClosed() {
		return nil, batchgen.ErrStoreClosed
	}

	entries, err := os.ReadDir(s.batchDir)
	if err != nil {
		return nil, fmt.Errorf("file: list batches: %w", err)
	}

	ext := "." + s.codec.Name()
	var out []*batch.Batch
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, ext) {
			continue
		}
		b, err := s.LoadBatch(ctx, strings.TrimSuffix(name, ext))
		if err != nil {
			s.logger.Warn("skipping unreadable batch record",
				slog.String("file", name),
				slog.String("error", err.Error()),
			)
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

// readRecord decodes path into v under a shared lock. A missing file
// reports found == false with a nil error.
func (s *Store) readRecord(ctx context.Context, path string, v any) (bool, error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}

	var data []byte
	err := s.locker.WithShared(ctx, path, func() error {
		var readErr error
		data, readErr = os.ReadFile(path)
		return readErr
	})
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if err := s.codec.Decode(data, v); err != nil {
		return false, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return true, nil
}

func writeAtomic(path string, data []byte) error {
	tmp := filepath.Join(filepath.Dir(path), "."+filepath.Base(path)+"."+uuid.NewString()+".tmp")
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("file: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("file: rename %s: %w", path, err)
	}
	return nil
}

// checkName rejects identifiers that would escape the store directories.
func checkName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".") {
		return fmt.Errorf("%w: bad record id %q", batchgen.ErrInvalidRecord, name)
	}
	return nil
}

// normalizeJob puts timestamps in UTC so records decode identically with
// either codec.
func normalizeJob(j *job.Job) {
	j.CreatedAt = j.CreatedAt.UTC()
	j.StartedAt = utcPtr(j.StartedAt)
	j.CompletedAt = utcPtr(j.CompletedAt)
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
