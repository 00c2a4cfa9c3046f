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
	"time"

	"github.com/stonezone/batchgen"
	"github.com/stonezone/batchgen/store"
)

// Sweep deletes status records and abandoned temporary files last modified
// more than maxAge ago. Lock sidecars are never unlinked: a process blocked
// on the old inode would otherwise share the lock with one that created a
// new sidecar.
//
// Failures on individual files are logged and collected in the result; the
// returned error is reserved for failures to scan the directory at all.
func (s *Store) Sweep(ctx context.Context, maxAge time.Duration) (*store.SweepResult, error) {
	if s.isClosed() {
		return nil, batchgen.ErrStoreClosed
	}

	entries, err := os.ReadDir(s.statusDir)
	if err != nil {
		return nil, fmt.Errorf("file: sweep %s: %w", s.statusDir, err)
	}

	cutoff := time.Now().Add(-maxAge)
	result := &store.SweepResult{}
	record := func(name string, err error) {
		result.Errors = append(result.Errors, err)
		s.logger.Warn("sweep: failed to remove file",
			slog.String("file", name),
			slog.String("error", err.Error()),
		)
	}

	for _, e := range entries {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasSuffix(name, ".lock") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				record(name, err)
			}
			continue
		}
		result.Scanned++
		if !info.ModTime().Before(cutoff) {
			continue
		}

		path := filepath.Join(s.statusDir, name)
		switch {
		case strings.HasPrefix(name, "."):
			if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
				record(name, err)
				continue
			}
			result.Removed++
		default:
			err := s.locker.WithExclusive(ctx, path, func() error {
				if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
					return err
				}
				return nil
			})
			if err != nil {
				record(name, err)
				continue
			}
			result.Removed++
		}
	}

	if result.Removed > 0 || len(result.Errors) > 0 {
		s.logger.Info("status sweep finished",
			slog.Int("scanned", result.Scanned),
			slog.Int("removed", result.Removed),
			slog.Int("errors", len(result.Errors)),
			slog.Duration("max_age", maxAge),
		)
	}
	return result, nil
}
