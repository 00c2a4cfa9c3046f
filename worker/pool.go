package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/stonezone/batchgen"
	"github.com/stonezone/batchgen/ext"
	"github.com/stonezone/batchgen/id"
	"github.com/stonezone/batchgen/job"
	"github.com/stonezone/batchgen/queue"
)

// item is one queued unit of work.
type item struct {
	ctx context.Context
	job *job.Job
	cb  job.Callback
}

type activeJob struct {
	job    *job.Job
	cancel context.CancelFunc
}

// Stats is a point-in-time view of the pool.
type Stats struct {
	Workers   int `json:"workers"`
	Active    int `json:"active"`
	Queued    int `json:"queued"`
	Completed int `json:"completed"`
}

// Pool manages a set of concurrent worker goroutines that pull jobs from
// an unbounded in-memory queue and execute them through the Executor.
type Pool struct {
	store        job.Store
	executor     *Executor
	extensions   *ext.Registry
	concurrency  int
	pollInterval time.Duration
	cacheSize    int
	queueCfg     queue.Config
	workerID     id.ID
	logger       *slog.Logger
	now          func() time.Time

	queue *queue.Queue[item]

	// stopCtx is cancelled by Stop to wake workers blocked on the queue.
	stopCtx    context.Context
	stopCancel context.CancelFunc
	wg         sync.WaitGroup

	// mu guards the fields below and every job pointer they hold.
	mu             sync.Mutex
	running        bool
	stopped        bool
	queued         map[string]*job.Job
	active         map[string]*activeJob
	completed      map[string]*job.Job
	completedOrder []string
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithPoolConcurrency sets the number of concurrent worker goroutines.
func WithPoolConcurrency(n int) PoolOption {
	return func(p *Pool) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

// WithPollInterval sets how long a worker waits on an empty queue before
// checking the stop signal again.
func WithPollInterval(d time.Duration) PoolOption {
	return func(p *Pool) {
		if d > 0 {
			p.pollInterval = d
		}
	}
}

// WithCompletedCacheSize bounds how many finished jobs are kept in memory.
// Evicted jobs remain readable from the store.
func WithCompletedCacheSize(n int) PoolOption {
	return func(p *Pool) {
		if n > 0 {
			p.cacheSize = n
		}
	}
}

// WithDispatchRate limits how many jobs per second the workers may start,
// with the given token bucket burst. A zero rate disables throttling.
func WithDispatchRate(perSecond float64, burst int) PoolOption {
	return func(p *Pool) {
		p.queueCfg = queue.Config{RateLimit: perSecond, RateBurst: burst}
	}
}

// NewPool creates a worker pool. Jobs may be added before Start; they wait
// in the queue until workers are running.
func NewPool(
	store job.Store,
	executor *Executor,
	extensions *ext.Registry,
	logger *slog.Logger,
	opts ...PoolOption,
) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	if extensions == nil {
		extensions = ext.NewRegistry(logger)
	}
	p := &Pool{
		store:        store,
		executor:     executor,
		extensions:   extensions,
		concurrency:  2,
		pollInterval: 200 * time.Millisecond,
		cacheSize:    1000,
		workerID:     id.NewWorkerID(),
		logger:       logger,
		now:          func() time.Time { return time.Now().UTC() },
		queued:       make(map[string]*job.Job),
		active:       make(map[string]*activeJob),
		completed:    make(map[string]*job.Job),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.queue = queue.New[item](p.queueCfg)
	p.stopCtx, p.stopCancel = context.WithCancel(context.Background())
	return p
}

// WorkerID returns the pool's unique identifier.
func (p *Pool) WorkerID() id.ID { return p.workerID }

// AddJob enqueues a copy of j without waiting for it to run. ctx is the
// cancellation signal the callback will observe; it should outlive the
// call. The pending status is written before the job becomes visible to
// workers, so a status write from a worker or CancelJob always lands last.
func (p *Pool) AddJob(ctx context.Context, j *job.Job, cb job.Callback) error {
	if j == nil || cb == nil {
		return fmt.Errorf("%w: job and callback are required", batchgen.ErrInvalidRecord)
	}
	j = j.Clone()
	if j.Status == "" {
		j.Status = job.StatusPending
	}
	if j.CreatedAt.IsZero() {
		j.CreatedAt = p.now()
	}
	if j.Status != job.StatusPending {
		return fmt.Errorf("%w: job %s is %s", batchgen.ErrInvalidState, j.ID, j.Status)
	}

	p.mu.Lock()
	err := p.admitLocked(j.ID)
	p.mu.Unlock()
	if err != nil {
		return err
	}

	snapshot := j.Clone()
	if err := p.store.Write(context.WithoutCancel(ctx), snapshot); err != nil {
		p.logger.Error("failed to write pending job status",
			slog.String("job_id", j.ID),
			slog.String("error", err.Error()),
		)
	}

	p.mu.Lock()
	if err := p.admitLocked(j.ID); err != nil {
		p.mu.Unlock()
		return err
	}
	p.queued[j.ID] = j
	p.mu.Unlock()

	if err := p.queue.Push(item{ctx: ctx, job: j, cb: cb}); err != nil {
		p.mu.Lock()
		delete(p.queued, j.ID)
		p.mu.Unlock()
		return batchgen.ErrPoolStopped
	}

	p.extensions.EmitJobEnqueued(ctx, snapshot)
	return nil
}

// admitLocked rejects jobs once the pool is stopped and jobs that are
// already queued or running. Callers must hold p.mu.
func (p *Pool) admitLocked(jobID string) error {
	if p.stopped {
		return batchgen.ErrPoolStopped
	}
	_, isQueued := p.queued[jobID]
	_, isActive := p.active[jobID]
	if isQueued || isActive {
		return fmt.Errorf("%w: job %s already submitted", batchgen.ErrInvalidState, jobID)
	}
	return nil
}

// JobStatus returns a snapshot of the job. The store is consulted first,
// then the completed cache, then the queued and active jobs. A finished job
// in the completed cache wins over a store record that is not terminal,
// which is what remains on disk when the final status write failed.
func (p *Pool) JobStatus(ctx context.Context, jobID string) (*job.Job, bool) {
	stored, inStore := p.store.Read(ctx, jobID)
	if inStore && stored.Status.Terminal() {
		return stored, true
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if j, ok := p.completed[jobID]; ok {
		return j.Clone(), true
	}
	if inStore {
		return stored, true
	}
	if j, ok := p.queued[jobID]; ok {
		return j.Clone(), true
	}
	if a, ok := p.active[jobID]; ok {
		return a.job.Clone(), true
	}
	return nil, false
}

// CancelJob cancels a job that is still queued and reports true. A job a
// worker is currently executing cannot be cancelled this way and yields
// false; cancel the context passed to AddJob instead. Finished or unknown
// jobs are left untouched and yield true.
func (p *Pool) CancelJob(ctx context.Context, jobID string) bool {
	p.mu.Lock()
	if _, ok := p.active[jobID]; ok {
		p.mu.Unlock()
		return false
	}
	j, ok := p.queued[jobID]
	if !ok {
		p.mu.Unlock()
		return true
	}
	delete(p.queued, jobID)
	j.MarkCancelled(p.now())
	p.cacheCompletedLocked(j)
	snapshot := j.Clone()
	p.mu.Unlock()

	if err := p.store.Write(ctx, snapshot); err != nil {
		p.logger.Error("failed to write cancelled job status",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
	}
	p.extensions.EmitJobCancelled(ctx, snapshot)
	return true
}

// Stats returns the current worker, active, queued and cached counts.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		Workers:   p.concurrency,
		Active:    len(p.active),
		Queued:    len(p.queued),
		Completed: len(p.completed),
	}
}

// Start launches the worker goroutines. It returns immediately.
func (p *Pool) Start(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return batchgen.ErrPoolStopped
	}
	if p.running {
		return nil
	}
	p.running = true

	p.logger.Info("worker pool starting",
		slog.String("worker_id", p.workerID.String()),
		slog.Int("concurrency", p.concurrency),
	)

	for range p.concurrency {
		p.wg.Add(1)
		go p.dequeueLoop()
	}
	return nil
}

// Stop signals all workers to stop and waits for them to finish their
// current job. If ctx ends first, active jobs are cancelled and Stop waits
// for their callbacks to return. Jobs still queued stay pending.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return nil
	}
	p.stopped = true
	wasRunning := p.running
	p.running = false
	p.mu.Unlock()

	p.logger.Info("worker pool stopping", slog.String("worker_id", p.workerID.String()))

	p.stopCancel()
	p.queue.Close()

	if !wasRunning {
		return nil
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("worker pool stopped gracefully")
		return nil
	case <-ctx.Done():
		p.logger.Warn("worker pool shutdown timed out, cancelling active jobs")
		p.cancelActiveJobs()
		<-done
		return ctx.Err()
	}
}

// dequeueLoop is run by each worker goroutine.
func (p *Pool) dequeueLoop() {
	defer p.wg.Done()

	for p.stopCtx.Err() == nil {
		it, ok := p.queue.Pop(p.stopCtx, p.pollInterval)
		if !ok {
			continue
		}
		p.process(it)
	}
}

// process runs one dequeued item.
func (p *Pool) process(it item) {
	p.mu.Lock()
	j, ok := p.queued[it.job.ID]
	if !ok {
		// Cancelled while queued.
		p.mu.Unlock()
		return
	}
	delete(p.queued, j.ID)

	if it.ctx.Err() != nil {
		j.MarkCancelled(p.now())
		p.cacheCompletedLocked(j)
		snapshot := j.Clone()
		p.mu.Unlock()
		p.finishCancelled(snapshot)
		return
	}

	ctx, cancel := context.WithCancel(it.ctx)
	defer cancel()

	j.MarkRunning(p.now())
	work := j.Clone()
	p.active[j.ID] = &activeJob{job: j, cancel: cancel}
	p.mu.Unlock()

	if err := p.executor.Execute(ctx, work, it.cb); err != nil {
		p.logger.Debug("job execution failed",
			slog.String("job_id", work.ID),
			slog.String("job_name", work.Name),
			slog.String("error", err.Error()),
		)
	}

	p.mu.Lock()
	delete(p.active, work.ID)
	p.cacheCompletedLocked(work)
	p.mu.Unlock()
}

func (p *Pool) finishCancelled(j *job.Job) {
	ctx := context.Background()
	if err := p.store.Write(ctx, j); err != nil {
		p.logger.Error("failed to write cancelled job status",
			slog.String("job_id", j.ID),
			slog.String("error", err.Error()),
		)
	}
	p.extensions.EmitJobCancelled(ctx, j)
}

// cacheCompletedLocked records a finished job and evicts the oldest
// entries beyond the cache size. Callers must hold p.mu.
func (p *Pool) cacheCompletedLocked(j *job.Job) {
	if _, ok := p.completed[j.ID]; !ok {
		p.completedOrder = append(p.completedOrder, j.ID)
	}
	p.completed[j.ID] = j

	for len(p.completedOrder) > p.cacheSize {
		oldest := p.completedOrder[0]
		p.completedOrder[0] = ""
		p.completedOrder = p.completedOrder[1:]
		delete(p.completed, oldest)
	}
}

func (p *Pool) cancelActiveJobs() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for jobID, a := range p.active {
		p.logger.Warn("cancelling active job", slog.String("job_id", jobID))
		a.cancel()
	}
}
