package commands_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stonezone/batchgen/batch"
	"github.com/stonezone/batchgen/cmd/batchctl/commands"
	"github.com/stonezone/batchgen/id"
	"github.com/stonezone/batchgen/job"
	"github.com/stonezone/batchgen/payload"
	"github.com/stonezone/batchgen/store/file"
)

type fixture struct {
	statusDir string
	batchDir  string
	store     *file.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	f := &fixture{
		statusDir: filepath.Join(dir, "status"),
		batchDir:  filepath.Join(dir, "batches"),
	}
	s, err := file.New(f.statusDir, f.batchDir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	f.store = s
	return f
}

// addBatch persists a batch whose jobs' status records carry statuses.
// The batch record itself keeps every job pending, as a running engine
// would between status polls.
func (f *fixture) addBatch(t *testing.T, name string, status batch.Status, created time.Time, statuses ...job.Status) *batch.Batch {
	t.Helper()
	ctx := context.Background()
	b := &batch.Batch{
		ID:        id.NewBatchID().String(),
		Name:      name,
		Status:    status,
		CreatedAt: created,
	}
	now := time.Now().UTC()
	for i, st := range statuses {
		j := job.New(name+"-job", payload.NewMap().Set("index", payload.Int(int64(i))))
		j.BatchID = b.ID
		b.Jobs = append(b.Jobs, j.Clone())

		switch st {
		case job.StatusRunning:
			j.MarkRunning(now)
		case job.StatusCompleted:
			j.MarkRunning(now)
			j.MarkCompleted(now, *payload.NewMap().Set("text", payload.String("done")))
		case job.StatusFailed:
			j.MarkRunning(now)
			j.MarkFailed(now, "content filter triggered")
		case job.StatusCancelled:
			j.MarkCancelled(now)
		}
		require.NoError(t, f.store.Write(ctx, j))
	}
	b.TotalJobs = len(b.Jobs)
	require.NoError(t, f.store.SaveBatch(ctx, b))
	return b
}

func (f *fixture) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := commands.NewCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(append([]string{
		"--status-dir", f.statusDir,
		"--batch-dir", f.batchDir,
		"--no-color",
	}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestBatchesList_NewestFirstWithLiveCounts(t *testing.T) {
	f := newFixture(t)
	old := f.addBatch(t, "old-set", batch.StatusCompleted, time.Now().Add(-time.Hour).UTC(),
		job.StatusCompleted, job.StatusFailed)
	fresh := f.addBatch(t, "fresh-set", batch.StatusRunning, time.Now().UTC(),
		job.StatusCompleted, job.StatusRunning, job.StatusPending)

	out, err := f.run(t, "batches", "list")
	require.NoError(t, err)

	assert.Contains(t, out, "fresh-set")
	assert.Contains(t, out, "old-set")
	assert.Less(t, bytes.Index([]byte(out), []byte(fresh.ID)), bytes.Index([]byte(out), []byte(old.ID)))
	assert.Contains(t, out, "1/3 done")
	assert.Contains(t, out, "1/2 done, 1 failed")
	assert.Contains(t, out, "33%")
}

func TestBatchesList_StatusFilter(t *testing.T) {
	f := newFixture(t)
	f.addBatch(t, "finished", batch.StatusCompleted, time.Now().UTC(), job.StatusCompleted)
	f.addBatch(t, "underway", batch.StatusRunning, time.Now().UTC(), job.StatusRunning)

	out, err := f.run(t, "batches", "list", "--status", "running")
	require.NoError(t, err)
	assert.Contains(t, out, "underway")
	assert.NotContains(t, out, "finished")

	_, err = f.run(t, "batches", "list", "--status", "sleeping")
	assert.Error(t, err)
}

func TestBatchesList_JSON(t *testing.T) {
	f := newFixture(t)
	b := f.addBatch(t, "json-set", batch.StatusRunning, time.Now().UTC(), job.StatusCompleted, job.StatusCompleted)

	out, err := f.run(t, "--json", "batches", "list")
	require.NoError(t, err)

	var got []*batch.Batch
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Len(t, got, 1)
	assert.Equal(t, b.ID, got[0].ID)
	assert.Equal(t, 2, got[0].CompletedJobs)
}

func TestBatchesShow(t *testing.T) {
	f := newFixture(t)
	b := f.addBatch(t, "shown", batch.StatusRunning, time.Now().UTC(), job.StatusFailed, job.StatusCancelled)

	out, err := f.run(t, "batches", "show", b.ID)
	require.NoError(t, err)
	assert.Contains(t, out, "Batch "+b.ID)
	assert.Contains(t, out, "content filter triggered")
	assert.Contains(t, out, "cancelled")
	assert.Contains(t, out, b.Jobs[0].ID)

	_, err = f.run(t, "batches", "show", id.NewBatchID().String())
	assert.ErrorContains(t, err, "not found")

	_, err = f.run(t, "batches", "show", "../"+b.ID)
	assert.ErrorContains(t, err, "not a valid identifier")

	_, err = f.run(t, "batches", "show", b.Jobs[0].ID)
	assert.ErrorContains(t, err, "not a batch identifier")
}

func TestBatchesDelete_OnlyFinished(t *testing.T) {
	f := newFixture(t)
	running := f.addBatch(t, "busy", batch.StatusRunning, time.Now().UTC(), job.StatusRunning)
	done := f.addBatch(t, "done", batch.StatusCompleted, time.Now().UTC(), job.StatusCompleted)

	_, err := f.run(t, "batches", "delete", running.ID)
	assert.ErrorContains(t, err, "only finished batches")
	assert.FileExists(t, f.store.BatchPath(running.ID))

	out, err := f.run(t, "batches", "delete", done.ID)
	require.NoError(t, err)
	assert.Contains(t, out, "deleted batch "+done.ID)
	assert.NoFileExists(t, f.store.BatchPath(done.ID))
	assert.FileExists(t, f.store.StatusPath(done.Jobs[0].ID), "job records stay for the sweep")
}

func TestJobsShow(t *testing.T) {
	f := newFixture(t)
	b := f.addBatch(t, "jobs", batch.StatusRunning, time.Now().UTC(), job.StatusCompleted)
	jobID := b.Jobs[0].ID

	out, err := f.run(t, "jobs", "show", jobID)
	require.NoError(t, err)
	assert.Contains(t, out, "Job "+jobID)
	assert.Contains(t, out, "{text=done}")
	assert.Contains(t, out, "{index=0}")
	assert.Contains(t, out, b.ID)

	_, err = f.run(t, "jobs", "show", id.NewJobID().String())
	assert.ErrorContains(t, err, "no readable status record")

	_, err = f.run(t, "jobs", "show", b.ID)
	assert.ErrorContains(t, err, "not a job identifier")
}

func TestSweep_RemovesOldRecords(t *testing.T) {
	f := newFixture(t)
	b := f.addBatch(t, "aging", batch.StatusCompleted, time.Now().UTC(), job.StatusCompleted, job.StatusCompleted)
	stale := time.Now().Add(-3 * time.Hour)
	require.NoError(t, os.Chtimes(f.store.StatusPath(b.Jobs[0].ID), stale, stale))

	out, err := f.run(t, "sweep", "--max-age", "1h")
	require.NoError(t, err)
	assert.Contains(t, out, "removed 1")
	assert.NoFileExists(t, f.store.StatusPath(b.Jobs[0].ID))
	assert.FileExists(t, f.store.StatusPath(b.Jobs[1].ID))
}

func TestVersion(t *testing.T) {
	cmd := commands.NewCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "batchctl dev")
}
