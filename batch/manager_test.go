package batch_test

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stonezone/batchgen"
	"github.com/stonezone/batchgen/batch"
	"github.com/stonezone/batchgen/ext"
	"github.com/stonezone/batchgen/job"
	"github.com/stonezone/batchgen/payload"
	"github.com/stonezone/batchgen/retry"
	"github.com/stonezone/batchgen/store/file"
	"github.com/stonezone/batchgen/worker"
)

type harness struct {
	store   *file.Store
	pool    *worker.Pool
	manager *batch.Manager
	hooks   *batchRecorder
}

func newHarness(t *testing.T, opts ...batch.ManagerOption) *harness {
	t.Helper()
	return newHarnessOver(t, func(s *file.Store) batch.ManagerStore { return s }, opts...)
}

// newHarnessOver lets a test put a wrapper between the file store and the
// pool and manager.
func newHarnessOver(t *testing.T, wrap func(*file.Store) batch.ManagerStore, opts ...batch.ManagerOption) *harness {
	t.Helper()
	logger := slog.Default()
	dir := t.TempDir()

	fs, err := file.New(dir+"/status", dir+"/batches", file.WithLogger(logger))
	require.NoError(t, err)
	s := wrap(fs)

	registry := ext.NewRegistry(logger)
	rec := &batchRecorder{}
	registry.Register(rec)

	pool := worker.NewPool(s, worker.NewExecutor(registry, s, logger), registry, logger,
		worker.WithPoolConcurrency(2),
		worker.WithPollInterval(10*time.Millisecond),
	)
	require.NoError(t, pool.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = pool.Stop(ctx)
	})

	return &harness{
		store:   fs,
		pool:    pool,
		manager: batch.NewManager(pool, s, registry, logger, opts...),
		hooks:   rec,
	}
}

func subjectsAndGrades() []batch.Axis {
	return []batch.Axis{
		{Name: "subject", Values: []payload.Value{payload.String("Math"), payload.String("Art")}},
		{Name: "grade", Values: []payload.Value{payload.Int(3), payload.Int(4)}},
	}
}

func waitForBatch(t *testing.T, m *batch.Manager, batchID string, want batch.Status) *batch.Batch {
	t.Helper()
	var got *batch.Batch
	require.Eventually(t, func() bool {
		b, err := m.Status(context.Background(), batchID)
		if err != nil {
			return false
		}
		got = b
		return b.Status == want
	}, 5*time.Second, 10*time.Millisecond)
	return got
}

func TestCreateFromCombinations_ExpandsCrossProduct(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	batchID, err := h.manager.CreateFromCombinations(ctx, "worksheets", "grade 3-4", nil, subjectsAndGrades()...)
	require.NoError(t, err)

	b, err := h.manager.Get(ctx, batchID)
	require.NoError(t, err)
	assert.Equal(t, batch.StatusPending, b.Status)
	assert.Equal(t, 4, b.TotalJobs)
	require.Len(t, b.Jobs, 4)

	names := make([]string, len(b.Jobs))
	for i, j := range b.Jobs {
		names[i] = j.Name
		assert.Equal(t, job.StatusPending, j.Status)
		assert.Equal(t, batchID, j.BatchID)
	}
	assert.Equal(t, []string{"Math_3", "Math_4", "Art_3", "Art_4"}, names)
	assert.Equal(t, "Math", b.Jobs[0].Params.GetString("subject"))

	// Batch record and every initial job record are on disk.
	_, err = os.Stat(h.store.BatchPath(batchID))
	require.NoError(t, err)
	for _, j := range b.Jobs {
		got, ok := h.store.Read(ctx, j.ID)
		require.True(t, ok)
		assert.Equal(t, job.StatusPending, got.Status)
	}
	assert.Equal(t, int32(1), h.hooks.created.Load())
}

func TestCreateFromCombinations_TemplateErrorsSkipCombination(t *testing.T) {
	h := newHarness(t)

	tmpl := func(combo payload.Map) (batch.JobSpec, error) {
		if combo.GetString("subject") == "Art" {
			return batch.JobSpec{}, errors.New("no art template")
		}
		return batch.JobSpec{Name: "sheet-" + combo.String()}, nil
	}

	batchID, err := h.manager.CreateFromCombinations(context.Background(), "math-only", "", tmpl, subjectsAndGrades()...)
	require.NoError(t, err)

	b, err := h.manager.Get(context.Background(), batchID)
	require.NoError(t, err)
	assert.Equal(t, 2, b.TotalJobs)
	// Params default to the combination.
	assert.Equal(t, "Math", b.Jobs[0].Params.GetString("subject"))
}

func TestCreate_EmptyBatchRejected(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.manager.Create(ctx, "empty", "", nil)
	assert.ErrorIs(t, err, batchgen.ErrEmptyBatch)

	_, err = h.manager.CreateFromCombinations(ctx, "empty", "", nil,
		batch.Axis{Name: "subject", Values: nil})
	assert.ErrorIs(t, err, batchgen.ErrEmptyBatch)

	fail := func(payload.Map) (batch.JobSpec, error) { return batch.JobSpec{}, errors.New("nope") }
	_, err = h.manager.CreateFromCombinations(ctx, "all-fail", "", fail, subjectsAndGrades()...)
	assert.ErrorIs(t, err, batchgen.ErrEmptyBatch)
}

func TestCreate_EstimatesCost(t *testing.T) {
	h := newHarness(t, batch.WithCostEstimator(func(specs []batch.JobSpec) float64 {
		return 0.04 * float64(len(specs))
	}))

	batchID, err := h.manager.CreateFromCombinations(context.Background(), "priced", "", nil, subjectsAndGrades()...)
	require.NoError(t, err)

	b, err := h.manager.Get(context.Background(), batchID)
	require.NoError(t, err)
	assert.InDelta(t, 0.16, b.EstimatedCost, 1e-9)
}

func TestStart_RunsJobsToCompletion(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	batchID, err := h.manager.CreateFromCombinations(ctx, "worksheets", "", nil, subjectsAndGrades()...)
	require.NoError(t, err)

	cb := func(_ context.Context, p payload.Map) (payload.Map, error) {
		return *payload.NewMap().Set("title", payload.String(p.GetString("subject")+" worksheet")), nil
	}
	require.True(t, h.manager.Start(ctx, batchID, cb))
	assert.False(t, h.manager.Start(ctx, batchID, cb), "a running batch cannot be started again")

	b := waitForBatch(t, h.manager, batchID, batch.StatusCompleted)
	assert.Equal(t, 4, b.CompletedJobs)
	assert.Equal(t, 0, b.FailedJobs)
	assert.InDelta(t, 1.0, b.Progress(), 1e-9)
	require.NotNil(t, b.StartedAt)
	require.NotNil(t, b.CompletedAt)
	for _, j := range b.Jobs {
		require.NotNil(t, j.Result)
		assert.Contains(t, j.Result.GetString("title"), "worksheet")
	}

	stored, err := h.store.LoadBatch(ctx, batchID)
	require.NoError(t, err)
	assert.Equal(t, batch.StatusCompleted, stored.Status)
	assert.Equal(t, 4, stored.CompletedJobs)

	require.Eventually(t, func() bool { return h.hooks.completed.Load() == 1 }, time.Second, 5*time.Millisecond)

	// A further status query does not complete the batch twice.
	_, err = h.manager.Status(ctx, batchID)
	require.NoError(t, err)
	assert.Equal(t, int32(1), h.hooks.completed.Load())
}

func TestStart_RateLimitedJobsFailAfterRetries(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	var calls atomic.Int32
	exec := retry.NewExecutor(retry.WithSleeper(func(context.Context, time.Duration) error { return nil }))
	cb := func(ctx context.Context, _ payload.Map) (payload.Map, error) {
		return retry.Run(ctx, exec, retry.DefaultConfig(), "", func(context.Context) (payload.Map, error) {
			calls.Add(1)
			return payload.Map{}, errors.New("429 Too Many Requests: rate limit exceeded")
		})
	}

	batchID, err := h.manager.CreateFromCombinations(ctx, "throttled", "", nil, subjectsAndGrades()...)
	require.NoError(t, err)
	require.True(t, h.manager.Start(ctx, batchID, cb))

	b := waitForBatch(t, h.manager, batchID, batch.StatusCompleted)
	assert.Equal(t, 4, b.FailedJobs)
	assert.Equal(t, 0, b.CompletedJobs)
	for _, j := range b.Jobs {
		assert.Equal(t, job.StatusFailed, j.Status)
		assert.Contains(t, j.ErrorMessage, "rate limit")
	}
	// One initial attempt plus five rate-limit retries per job.
	assert.Equal(t, int32(4*6), calls.Load())
}

func TestStart_NonFiniteResultCompletes(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	cb := func(context.Context, payload.Map) (payload.Map, error) {
		return *payload.NewMap().
			Set("score", payload.Float(math.NaN())).
			Set("ceiling", payload.Float(math.Inf(1))), nil
	}

	batchID, err := h.manager.CreateFromCombinations(ctx, "scored", "", nil, subjectsAndGrades()...)
	require.NoError(t, err)
	require.True(t, h.manager.Start(ctx, batchID, cb))

	b := waitForBatch(t, h.manager, batchID, batch.StatusCompleted)
	assert.Equal(t, 4, b.CompletedJobs)
	assert.Equal(t, 0, b.FailedJobs)

	rec, ok := h.store.Read(ctx, b.Jobs[0].ID)
	require.True(t, ok)
	assert.Equal(t, job.StatusCompleted, rec.Status)
	score, ok := rec.Result.Get("score")
	require.True(t, ok)
	assert.True(t, score.IsNull(), "NaN is stored as null, got %s", score)
}

// rejectCompleted fails every write of a completed job record.
type rejectCompleted struct {
	*file.Store
	rejected atomic.Int32
}

func (r *rejectCompleted) Write(ctx context.Context, j *job.Job) error {
	if j.Status == job.StatusCompleted {
		r.rejected.Add(1)
		return errors.New("no space left on device")
	}
	return r.Store.Write(ctx, j)
}

func TestStart_FinalWriteFailureFailsJob(t *testing.T) {
	rc := &rejectCompleted{}
	h := newHarnessOver(t, func(s *file.Store) batch.ManagerStore {
		rc.Store = s
		return rc
	})
	ctx := context.Background()

	batchID, err := h.manager.CreateFromCombinations(ctx, "disk-full", "", nil, subjectsAndGrades()...)
	require.NoError(t, err)
	require.True(t, h.manager.Start(ctx, batchID, okCallback))

	b := waitForBatch(t, h.manager, batchID, batch.StatusCompleted)
	assert.Equal(t, 0, b.CompletedJobs)
	assert.Equal(t, 4, b.FailedJobs)
	assert.Equal(t, int32(4), rc.rejected.Load())

	for _, j := range b.Jobs {
		rec, ok := h.store.Read(ctx, j.ID)
		require.True(t, ok)
		assert.Equal(t, job.StatusFailed, rec.Status, "record on disk left %s", rec.Status)
		assert.Contains(t, rec.ErrorMessage, "no space left on device")
	}
}

func TestStart_UnknownOrPendingOnly(t *testing.T) {
	h := newHarness(t)
	assert.False(t, h.manager.Start(context.Background(), "batch_missing", okCallback))
}

func TestCancel_RunningBatch(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	release := make(chan struct{})
	defer close(release)
	cb := func(ctx context.Context, _ payload.Map) (payload.Map, error) {
		select {
		case <-ctx.Done():
			return payload.Map{}, ctx.Err()
		case <-release:
			return payload.Map{}, nil
		}
	}

	batchID, err := h.manager.CreateFromCombinations(ctx, "long", "", nil, subjectsAndGrades()...)
	require.NoError(t, err)
	require.True(t, h.manager.Start(ctx, batchID, cb))

	require.True(t, h.manager.Cancel(ctx, batchID))
	assert.False(t, h.manager.Cancel(ctx, batchID), "cancelling twice reports false")

	require.Eventually(t, func() bool {
		b, err := h.manager.Status(ctx, batchID)
		return err == nil && b.CancelledJobs == 4
	}, 5*time.Second, 10*time.Millisecond)

	b, err := h.manager.Get(ctx, batchID)
	require.NoError(t, err)
	assert.Equal(t, batch.StatusCancelled, b.Status)
	assert.NotNil(t, b.CompletedAt)
	assert.Equal(t, int32(1), h.hooks.cancelled.Load())
}

func TestCancel_PendingBatchCancelsJobsDirectly(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	batchID, err := h.manager.CreateFromCombinations(ctx, "never-run", "", nil, subjectsAndGrades()...)
	require.NoError(t, err)
	require.True(t, h.manager.Cancel(ctx, batchID))

	b, err := h.manager.Status(ctx, batchID)
	require.NoError(t, err)
	assert.Equal(t, batch.StatusCancelled, b.Status)
	assert.Equal(t, 4, b.CancelledJobs)
	for _, j := range b.Jobs {
		require.NotNil(t, j.StartedAt)
		assert.True(t, j.CancelledBeforeStart())
		assert.NoError(t, j.Validate())
	}
	assert.False(t, h.manager.Start(ctx, batchID, okCallback))
}

func TestDelete_OnlyTerminalBatches(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	release := make(chan struct{})
	cb := func(context.Context, payload.Map) (payload.Map, error) {
		<-release
		return payload.Map{}, nil
	}

	batchID, err := h.manager.CreateFromCombinations(ctx, "busy", "", nil, subjectsAndGrades()...)
	require.NoError(t, err)
	require.True(t, h.manager.Start(ctx, batchID, cb))

	assert.False(t, h.manager.Delete(ctx, batchID), "running batches cannot be deleted")
	_, err = os.Stat(h.store.BatchPath(batchID))
	require.NoError(t, err, "batch file must remain")

	close(release)
	waitForBatch(t, h.manager, batchID, batch.StatusCompleted)

	require.True(t, h.manager.Delete(ctx, batchID))
	_, err = os.Stat(h.store.BatchPath(batchID))
	assert.True(t, os.IsNotExist(err))
	_, err = h.manager.Get(ctx, batchID)
	assert.ErrorIs(t, err, batchgen.ErrBatchNotFound)
	assert.False(t, h.manager.Delete(ctx, batchID))
	assert.Equal(t, int32(1), h.hooks.deleted.Load())
}

func TestCancelJob_CompletedJobUnchanged(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	batchID, err := h.manager.CreateFromCombinations(ctx, "quick", "", nil, subjectsAndGrades()...)
	require.NoError(t, err)
	require.True(t, h.manager.Start(ctx, batchID, okCallback))
	b := waitForBatch(t, h.manager, batchID, batch.StatusCompleted)

	target := b.Jobs[0]
	assert.True(t, h.pool.CancelJob(ctx, target.ID))

	got, ok := h.pool.JobStatus(ctx, target.ID)
	require.True(t, ok)
	assert.Equal(t, job.StatusCompleted, got.Status)
	assert.True(t, got.CompletedAt.Equal(*target.CompletedAt))
}

func TestStatus_UnknownBatch(t *testing.T) {
	h := newHarness(t)
	_, err := h.manager.Status(context.Background(), "batch_missing")
	assert.ErrorIs(t, err, batchgen.ErrBatchNotFound)
}

func TestList_NewestFirstWithFilter(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	first, err := h.manager.Create(ctx, "first", "", []batch.JobSpec{{Name: "a"}})
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	second, err := h.manager.Create(ctx, "second", "", []batch.JobSpec{{Name: "b"}})
	require.NoError(t, err)
	require.True(t, h.manager.Cancel(ctx, first))

	all := h.manager.List(ctx)
	require.Len(t, all, 2)
	assert.Equal(t, second, all[0].ID)
	assert.Equal(t, first, all[1].ID)

	pending := h.manager.List(ctx, batch.StatusPending)
	require.Len(t, pending, 1)
	assert.Equal(t, second, pending[0].ID)
}

func TestLoad_RehydratesStoredBatches(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	batchID, err := h.manager.CreateFromCombinations(ctx, "persisted", "", nil, subjectsAndGrades()...)
	require.NoError(t, err)

	// A second manager over the same directories sees the batch after Load.
	other := batch.NewManager(h.pool, h.store, nil, slog.Default())
	n, err := other.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	b, err := other.Get(ctx, batchID)
	require.NoError(t, err)
	assert.Equal(t, "persisted", b.Name)
	assert.Len(t, b.Jobs, 4)

	n, err = other.Load(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "known batches are not loaded twice")
}

func TestStart_PoolRejectionFailsBatch(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	batchID, err := h.manager.CreateFromCombinations(ctx, "doomed", "", nil, subjectsAndGrades()...)
	require.NoError(t, err)
	require.NoError(t, h.pool.Stop(ctx))

	assert.False(t, h.manager.Start(ctx, batchID, okCallback))

	b, err := h.manager.Get(ctx, batchID)
	require.NoError(t, err)
	assert.Equal(t, batch.StatusFailed, b.Status)
	assert.Equal(t, 4, b.CancelledJobs)
}

func TestCombinations_Order(t *testing.T) {
	combos := batch.Combinations(subjectsAndGrades()...)
	require.Len(t, combos, 4)
	assert.Equal(t, "{subject=Art,grade=3}", combos[2].String())
	assert.Nil(t, batch.Combinations())
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

func okCallback(context.Context, payload.Map) (payload.Map, error) {
	return *payload.NewMap().Set("ok", payload.Bool(true)), nil
}

type batchRecorder struct {
	created   atomic.Int32
	completed atomic.Int32
	cancelled atomic.Int32
	deleted   atomic.Int32
}

func (r *batchRecorder) Name() string { return "batch-recorder" }

func (r *batchRecorder) OnBatchCreated(context.Context, *batch.Batch) error {
	r.created.Add(1)
	return nil
}

func (r *batchRecorder) OnBatchCompleted(context.Context, *batch.Batch) error {
	r.completed.Add(1)
	return nil
}

func (r *batchRecorder) OnBatchCancelled(context.Context, *batch.Batch) error {
	r.cancelled.Add(1)
	return nil
}

func (r *batchRecorder) OnBatchDeleted(context.Context, string) error {
	r.deleted.Add(1)
	return nil
}
