package batch

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/stonezone/batchgen"
	"github.com/stonezone/batchgen/id"
	"github.com/stonezone/batchgen/job"
	"github.com/stonezone/batchgen/payload"
)

// Pool is the part of the worker pool the Manager submits jobs to.
// *worker.Pool implements it.
type Pool interface {
	AddJob(ctx context.Context, j *job.Job, cb job.Callback) error
	JobStatus(ctx context.Context, jobID string) (*job.Job, bool)
	CancelJob(ctx context.Context, jobID string) bool
}

// Hooks receives batch lifecycle events. *ext.Registry implements it.
type Hooks interface {
	EmitBatchCreated(ctx context.Context, b *Batch)
	EmitBatchStarted(ctx context.Context, b *Batch)
	EmitBatchCompleted(ctx context.Context, b *Batch)
	EmitBatchCancelled(ctx context.Context, b *Batch)
	EmitBatchDeleted(ctx context.Context, batchID string)
}

// ManagerStore persists batch records and the initial status record of
// every job. The composite store.Store implements it.
type ManagerStore interface {
	Store
	job.Store
}

// JobSpec describes one job to create.
type JobSpec struct {
	Name   string       `json:"name"`
	Params *payload.Map `json:"params,omitempty"`
}

// Axis is one dimension of a combination batch.
type Axis struct {
	Name   string
	Values []payload.Value
}

// TemplateFunc turns one combination (axis name to value, in axis order)
// into a job spec. An empty Name is filled with the combination values
// joined by "_"; nil Params default to the combination itself.
type TemplateFunc func(combo payload.Map) (JobSpec, error)

// CostEstimator prices a batch before it runs.
type CostEstimator func(specs []JobSpec) float64

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithCostEstimator sets the function used to fill Batch.EstimatedCost.
func WithCostEstimator(fn CostEstimator) ManagerOption {
	return func(m *Manager) { m.estimate = fn }
}

type managed struct {
	b      *Batch
	cancel context.CancelFunc
}

// Manager owns batch lifecycles: it creates batches, submits their jobs to
// the pool, recomputes their progress from job status records and
// persists the batch records. The in-memory view is authoritative;
// persistence failures are logged.
type Manager struct {
	pool     Pool
	store    ManagerStore
	hooks    Hooks
	logger   *slog.Logger
	estimate CostEstimator
	now      func() time.Time

	mu      sync.Mutex
	batches map[string]*managed
}

// NewManager creates a Manager. hooks may be nil.
func NewManager(pool Pool, store ManagerStore, hooks Hooks, logger *slog.Logger, opts ...ManagerOption) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if hooks == nil {
		hooks = nopHooks{}
	}
	m := &Manager{
		pool:    pool,
		store:   store,
		hooks:   hooks,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
		batches: make(map[string]*managed),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ──────────────────────────────────────────────────
// Creation
// ──────────────────────────────────────────────────

// Create registers a pending batch with one fresh job per spec, persists
// the batch record and the jobs' pending status, and returns the batch ID.
func (m *Manager) Create(ctx context.Context, name, description string, specs []JobSpec) (string, error) {
	if name == "" {
		return "", fmt.Errorf("%w: batch name is required", batchgen.ErrInvalidRecord)
	}
	if len(specs) == 0 {
		return "", batchgen.ErrEmptyBatch
	}

	b := &Batch{
		ID:          id.NewBatchID().String(),
		Name:        name,
		Description: description,
		Status:      StatusPending,
		CreatedAt:   m.now(),
		Jobs:        make([]*job.Job, 0, len(specs)),
	}
	for i, spec := range specs {
		if spec.Name == "" {
			return "", fmt.Errorf("%w: job spec %d has no name", batchgen.ErrInvalidRecord, i)
		}
		j := job.New(spec.Name, spec.Params)
		j.BatchID = b.ID
		j.CreatedAt = b.CreatedAt
		b.Jobs = append(b.Jobs, j)
	}
	b.TotalJobs = len(b.Jobs)
	if m.estimate != nil {
		b.EstimatedCost = m.estimate(specs)
	}

	m.mu.Lock()
	m.batches[b.ID] = &managed{b: b}
	snapshot := b.Clone()
	m.mu.Unlock()

	for _, j := range snapshot.Jobs {
		m.writeJob(ctx, j)
	}
	m.persist(ctx, snapshot)

	m.logger.Info("batch created",
		slog.String("batch_id", b.ID),
		slog.String("batch_name", name),
		slog.Int("total_jobs", b.TotalJobs),
	)
	m.hooks.EmitBatchCreated(ctx, snapshot)
	return b.ID, nil
}

// CreateFromCombinations creates a batch from the cross product of axes,
// first axis varying slowest. tmpl is called once per combination; a
// combination whose template fails is logged and skipped. A nil tmpl uses
// each combination as the job params. ErrEmptyBatch is returned when
// nothing expands.
func (m *Manager) CreateFromCombinations(
	ctx context.Context,
	name, description string,
	tmpl TemplateFunc,
	axes ...Axis,
) (string, error) {
	combos := Combinations(axes...)

	specs := make([]JobSpec, 0, len(combos))
	for _, combo := range combos {
		spec := JobSpec{Params: combo.Clone()}
		if tmpl != nil {
			var err error
			spec, err = tmpl(*combo.Clone())
			if err != nil {
				m.logger.Warn("skipping combination",
					slog.String("batch_name", name),
					slog.String("combination", combo.String()),
					slog.String("error", err.Error()),
				)
				continue
			}
		}
		if spec.Name == "" {
			spec.Name = comboName(combo)
		}
		if spec.Params == nil {
			spec.Params = combo.Clone()
		}
		specs = append(specs, spec)
	}

	if len(specs) == 0 {
		return "", batchgen.ErrEmptyBatch
	}
	return m.Create(ctx, name, description, specs)
}

// Combinations returns the cross product of axes as ordered maps, first
// axis varying slowest. It returns nil if there are no axes or any axis is
// empty.
func Combinations(axes ...Axis) []*payload.Map {
	if len(axes) == 0 {
		return nil
	}
	total := 1
	for _, a := range axes {
		total *= len(a.Values)
	}
	if total == 0 {
		return nil
	}

	out := make([]*payload.Map, 0, total)
	idx := make([]int, len(axes))
	for range total {
		combo := payload.NewMap()
		for i, a := range axes {
			combo.Set(a.Name, a.Values[idx[i]])
		}
		out = append(out, combo)

		// Odometer increment, last axis fastest.
		for i := len(axes) - 1; i >= 0; i-- {
			idx[i]++
			if idx[i] < len(axes[i].Values) {
				break
			}
			idx[i] = 0
		}
	}
	return out
}

func comboName(combo *payload.Map) string {
	parts := make([]string, 0, combo.Len())
	combo.Range(func(_ string, v payload.Value) bool {
		parts = append(parts, v.Text())
		return true
	})
	return strings.Join(parts, "_")
}

// ──────────────────────────────────────────────────
// Lifecycle
// ──────────────────────────────────────────────────

// Start submits every job of a pending batch to the pool with cb and
// reports true. It reports false if the batch is unknown or not pending.
//
// Jobs observe a per-batch context that Cancel cancels; it is detached
// from ctx. If the pool rejects a job the batch is marked failed, jobs
// already submitted are cancelled and the rest are recorded cancelled.
func (m *Manager) Start(ctx context.Context, batchID string, cb job.Callback) bool {
	m.mu.Lock()
	mb, ok := m.batches[batchID]
	if !ok || mb.b.Status != StatusPending {
		m.mu.Unlock()
		return false
	}
	now := m.now()
	mb.b.Status = StatusRunning
	mb.b.StartedAt = &now
	batchCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	mb.cancel = cancel
	jobs := cloneJobs(mb.b.Jobs)
	m.mu.Unlock()

	submitted := 0
	var submitErr error
	for _, j := range jobs {
		if submitErr = m.pool.AddJob(batchCtx, j, cb); submitErr != nil {
			break
		}
		submitted++
	}

	if submitErr != nil {
		m.failSubmission(ctx, batchID, jobs, submitted, submitErr)
		return false
	}

	m.mu.Lock()
	snapshot := mb.b.Clone()
	m.mu.Unlock()

	m.persist(ctx, snapshot)
	m.logger.Info("batch started",
		slog.String("batch_id", batchID),
		slog.Int("total_jobs", snapshot.TotalJobs),
	)
	m.hooks.EmitBatchStarted(ctx, snapshot)
	return true
}

func (m *Manager) failSubmission(ctx context.Context, batchID string, jobs []*job.Job, submitted int, cause error) {
	m.logger.Error("batch submission failed",
		slog.String("batch_id", batchID),
		slog.Int("submitted", submitted),
		slog.Int("total_jobs", len(jobs)),
		slog.String("error", cause.Error()),
	)

	for _, j := range jobs[:submitted] {
		m.pool.CancelJob(ctx, j.ID)
	}

	m.mu.Lock()
	mb := m.batches[batchID]
	now := m.now()
	mb.b.Status = StatusFailed
	mb.b.CompletedAt = &now
	if mb.cancel != nil {
		mb.cancel()
	}
	var unsent []*job.Job
	for _, j := range mb.b.Jobs[submitted:] {
		if j.Status == job.StatusPending {
			j.MarkCancelled(now)
			unsent = append(unsent, j.Clone())
		}
	}
	mb.b.Recount()
	snapshot := mb.b.Clone()
	m.mu.Unlock()

	for _, j := range unsent {
		m.writeJob(ctx, j)
	}
	m.persist(ctx, snapshot)
}

// Status refreshes a batch from its jobs' current status, completes it
// when every job has completed or failed, persists it and returns a
// snapshot. A job whose status cannot be read keeps its last known state.
func (m *Manager) Status(ctx context.Context, batchID string) (*Batch, error) {
	m.mu.Lock()
	mb, ok := m.batches[batchID]
	if !ok {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", batchgen.ErrBatchNotFound, batchID)
	}
	ids := make([]string, len(mb.b.Jobs))
	for i, j := range mb.b.Jobs {
		ids[i] = j.ID
	}
	m.mu.Unlock()

	fresh := make(map[string]*job.Job, len(ids))
	for _, jobID := range ids {
		if j, ok := m.pool.JobStatus(ctx, jobID); ok && j.ID == jobID {
			fresh[jobID] = j
		}
	}

	m.mu.Lock()
	for i, j := range mb.b.Jobs {
		if f, ok := fresh[j.ID]; ok {
			mb.b.Jobs[i] = f
		}
	}
	mb.b.Recount()

	completedNow := false
	if mb.b.Status == StatusRunning && mb.b.CompletedJobs+mb.b.FailedJobs == mb.b.TotalJobs {
		now := m.now()
		mb.b.Status = StatusCompleted
		mb.b.CompletedAt = &now
		completedNow = true
		if mb.cancel != nil {
			mb.cancel()
		}
	}
	snapshot := mb.b.Clone()
	m.mu.Unlock()

	m.persist(ctx, snapshot)
	if completedNow {
		m.logger.Info("batch completed",
			slog.String("batch_id", batchID),
			slog.Int("completed_jobs", snapshot.CompletedJobs),
			slog.Int("failed_jobs", snapshot.FailedJobs),
		)
		m.hooks.EmitBatchCompleted(ctx, snapshot)
	}
	return snapshot, nil
}

// Cancel cancels a pending or running batch and reports true. Running
// jobs see their context cancelled and should stop cooperatively; queued
// jobs are cancelled in the pool. Jobs of a batch that never started are
// recorded cancelled directly.
func (m *Manager) Cancel(ctx context.Context, batchID string) bool {
	m.mu.Lock()
	mb, ok := m.batches[batchID]
	if !ok || (mb.b.Status != StatusPending && mb.b.Status != StatusRunning) {
		m.mu.Unlock()
		return false
	}
	wasRunning := mb.b.Status == StatusRunning
	now := m.now()
	mb.b.Status = StatusCancelled
	mb.b.CompletedAt = &now
	if mb.cancel != nil {
		mb.cancel()
	}

	var inFlight []string
	var neverStarted []*job.Job
	for _, j := range mb.b.Jobs {
		if j.Status.Terminal() {
			continue
		}
		if wasRunning {
			inFlight = append(inFlight, j.ID)
			continue
		}
		j.MarkCancelled(now)
		neverStarted = append(neverStarted, j.Clone())
	}
	mb.b.Recount()
	snapshot := mb.b.Clone()
	m.mu.Unlock()

	for _, jobID := range inFlight {
		m.pool.CancelJob(ctx, jobID)
	}
	for _, j := range neverStarted {
		m.writeJob(ctx, j)
	}
	m.persist(ctx, snapshot)

	m.logger.Info("batch cancelled", slog.String("batch_id", batchID))
	m.hooks.EmitBatchCancelled(ctx, snapshot)
	return true
}

// Delete removes a terminal batch from memory and storage and reports
// true. Batches that are unknown, pending or running are left alone.
func (m *Manager) Delete(ctx context.Context, batchID string) bool {
	m.mu.Lock()
	mb, ok := m.batches[batchID]
	if !ok || !mb.b.Status.Terminal() {
		m.mu.Unlock()
		return false
	}
	delete(m.batches, batchID)
	if mb.cancel != nil {
		mb.cancel()
	}
	m.mu.Unlock()

	if err := m.store.DeleteBatch(ctx, batchID); err != nil {
		m.logger.Error("failed to delete batch record",
			slog.String("batch_id", batchID),
			slog.String("error", err.Error()),
		)
	}
	m.hooks.EmitBatchDeleted(ctx, batchID)
	return true
}

// ──────────────────────────────────────────────────
// Queries
// ──────────────────────────────────────────────────

// Get returns a snapshot of a batch without refreshing it.
func (m *Manager) Get(_ context.Context, batchID string) (*Batch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mb, ok := m.batches[batchID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", batchgen.ErrBatchNotFound, batchID)
	}
	return mb.b.Clone(), nil
}

// List returns snapshots of all batches, newest first. With filter set only
// batches in one of the given statuses are returned.
func (m *Manager) List(_ context.Context, filter ...Status) []*Batch {
	m.mu.Lock()
	out := make([]*Batch, 0, len(m.batches))
	for _, mb := range m.batches {
		if len(filter) > 0 && !hasStatus(filter, mb.b.Status) {
			continue
		}
		out = append(out, mb.b.Clone())
	}
	m.mu.Unlock()

	SortNewestFirst(out)
	return out
}

// Load adds batches persisted by an earlier process and returns how many
// were added. Batches already known are kept as they are.
func (m *Manager) Load(ctx context.Context) (int, error) {
	stored, err := m.store.ListBatches(ctx)
	if err != nil {
		return 0, fmt.Errorf("load batches: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	added := 0
	for _, b := range stored {
		if _, ok := m.batches[b.ID]; ok {
			continue
		}
		b.Recount()
		m.batches[b.ID] = &managed{b: b}
		added++
	}
	if added > 0 {
		m.logger.Info("loaded stored batches", slog.Int("count", added))
	}
	return added, nil
}

// SortNewestFirst orders batches by creation time, newest first.
func SortNewestFirst(bs []*Batch) {
	sort.SliceStable(bs, func(i, j int) bool {
		if bs[i].CreatedAt.Equal(bs[j].CreatedAt) {
			return bs[i].ID > bs[j].ID
		}
		return bs[i].CreatedAt.After(bs[j].CreatedAt)
	})
}

func hasStatus(filter []Status, s Status) bool {
	for _, f := range filter {
		if f == s {
			return true
		}
	}
	return false
}

// ──────────────────────────────────────────────────
// Persistence
// ──────────────────────────────────────────────────

func (m *Manager) persist(ctx context.Context, b *Batch) {
	if err := m.store.SaveBatch(context.WithoutCancel(ctx), b); err != nil {
		m.logger.Error("failed to save batch record",
			slog.String("batch_id", b.ID),
			slog.String("error", err.Error()),
		)
	}
}

func (m *Manager) writeJob(ctx context.Context, j *job.Job) {
	if err := m.store.Write(context.WithoutCancel(ctx), j); err != nil {
		m.logger.Error("failed to write job status",
			slog.String("job_id", j.ID),
			slog.String("batch_id", j.BatchID),
			slog.String("error", err.Error()),
		)
	}
}

func cloneJobs(jobs []*job.Job) []*job.Job {
	out := make([]*job.Job, len(jobs))
	for i, j := range jobs {
		out[i] = j.Clone()
	}
	return out
}

type nopHooks struct{}

func (nopHooks) EmitBatchCreated(context.Context, *Batch)   {}
func (nopHooks) EmitBatchStarted(context.Context, *Batch)   {}
func (nopHooks) EmitBatchCompleted(context.Context, *Batch) {}
func (nopHooks) EmitBatchCancelled(context.Context, *Batch) {}
func (nopHooks) EmitBatchDeleted(context.Context, string)   {}
