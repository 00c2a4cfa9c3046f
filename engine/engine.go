package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/stonezone/batchgen"
	"github.com/stonezone/batchgen/batch"
	"github.com/stonezone/batchgen/cron"
	"github.com/stonezone/batchgen/ext"
	mw "github.com/stonezone/batchgen/middleware"
	"github.com/stonezone/batchgen/observability"
	"github.com/stonezone/batchgen/retry"
	"github.com/stonezone/batchgen/store"
	"github.com/stonezone/batchgen/store/file"
	"github.com/stonezone/batchgen/worker"
)

const instrumentationName = "github.com/stonezone/batchgen"

// Engine owns the store, worker pool, batch manager and sweep janitor
// built from a batchgen.Config.
type Engine struct {
	config     batchgen.Config
	logger     *slog.Logger
	store      store.Store
	extensions *ext.Registry
	retry      *retry.Executor
	pool       *worker.Pool
	batches    *batch.Manager
	janitor    *cron.Janitor

	pendingExts []ext.Extension
	mws         []mw.Middleware
	observers   []retry.Observer
	managerOpts []batch.ManagerOption

	// OpenTelemetry providers (optional; nil means use global).
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger shared by every component.
func WithLogger(l *slog.Logger) Option {
	return func(eng *Engine) {
		if l != nil {
			eng.logger = l
		}
	}
}

// WithStore replaces the file store built from the config directories.
// The engine closes the store on Stop.
func WithStore(s store.Store) Option {
	return func(eng *Engine) {
		eng.store = s
	}
}

// WithExtension registers a lifecycle extension.
func WithExtension(e ext.Extension) Option {
	return func(eng *Engine) {
		eng.pendingExts = append(eng.pendingExts, e)
	}
}

// WithMiddleware appends middleware after the default chain.
func WithMiddleware(m mw.Middleware) Option {
	return func(eng *Engine) {
		eng.mws = append(eng.mws, m)
	}
}

// WithRetryObserver adds observers to the engine's retry executor.
func WithRetryObserver(obs ...retry.Observer) Option {
	return func(eng *Engine) {
		eng.observers = append(eng.observers, obs...)
	}
}

// WithManagerOption passes options through to the batch manager.
func WithManagerOption(opts ...batch.ManagerOption) Option {
	return func(eng *Engine) {
		eng.managerOpts = append(eng.managerOpts, opts...)
	}
}

// WithTracerProvider sets the TracerProvider used by the tracing middleware.
// If not set, the global otel.GetTracerProvider() is used.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(eng *Engine) {
		eng.tracerProvider = tp
	}
}

// WithMeterProvider sets the MeterProvider used by the metrics middleware,
// the observability extension and the retry metrics.
// If not set, the global otel.GetMeterProvider() is used.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(eng *Engine) {
		eng.meterProvider = mp
	}
}

// Build validates cfg and wires the subsystems together. Nothing runs
// until Start.
func Build(cfg batchgen.Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	eng := &Engine{
		config: cfg,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(eng)
	}
	logger := eng.logger

	if eng.store == nil {
		codec, err := file.CodecByName(cfg.Codec)
		if err != nil {
			return nil, err
		}
		fs, err := file.New(cfg.StatusDir, cfg.BatchDir,
			file.WithCodec(codec),
			file.WithLockTimeout(cfg.LockTimeout),
			file.WithLogger(logger),
		)
		if err != nil {
			return nil, fmt.Errorf("open file store: %w", err)
		}
		eng.store = fs
	}

	eng.extensions = ext.NewRegistry(logger)

	// Build tracing middleware (custom provider or global).
	var tracingMw mw.Middleware
	if eng.tracerProvider != nil {
		tracingMw = mw.TracingWithTracer(eng.tracerProvider.Tracer(instrumentationName))
	} else {
		tracingMw = mw.Tracing()
	}

	// Metrics middleware, observability extension and retry metrics share
	// one provider.
	var (
		metricsMw  mw.Middleware
		obsExt     *observability.MetricsExtension
		retryStats *observability.RetryMetrics
	)
	if eng.meterProvider != nil {
		metricsMw = mw.MetricsWithMeter(eng.meterProvider.Meter(instrumentationName))
		meter := eng.meterProvider.Meter(instrumentationName + "/observability")
		obsExt = observability.NewMetricsExtensionWithMeter(meter)
		retryStats = observability.NewRetryMetricsWithMeter(meter)
	} else {
		metricsMw = mw.Metrics()
		obsExt = observability.NewMetricsExtension()
		retryStats = observability.NewRetryMetrics()
	}
	eng.extensions.Register(obsExt)
	for _, e := range eng.pendingExts {
		eng.extensions.Register(e)
	}

	observers := append([]retry.Observer{retry.NewLogObserver(logger), retryStats}, eng.observers...)
	eng.retry = retry.NewExecutor(retry.WithObserver(observers...))

	// Default middleware stack: recover → timeout → logging → tracing → metrics.
	defaultMws := []mw.Middleware{
		mw.Recover(logger),
		mw.Timeout(logger, cfg.JobTimeout),
		mw.Logging(logger),
		tracingMw,
		metricsMw,
	}
	allMws := make([]mw.Middleware, 0, len(defaultMws)+len(eng.mws))
	allMws = append(allMws, defaultMws...)
	allMws = append(allMws, eng.mws...)

	executor := worker.NewExecutor(eng.extensions, eng.store, logger, allMws...)
	eng.pool = worker.NewPool(eng.store, executor, eng.extensions, logger,
		worker.WithPoolConcurrency(cfg.Concurrency),
		worker.WithPollInterval(cfg.PollInterval),
		worker.WithCompletedCacheSize(cfg.CompletedCacheSize),
		worker.WithDispatchRate(cfg.DispatchRate, cfg.DispatchBurst),
	)

	eng.batches = batch.NewManager(eng.pool, eng.store, eng.extensions, logger, eng.managerOpts...)

	if cfg.SweepSchedule != "" {
		j, err := cron.NewJanitor(eng.store, eng.extensions, cfg.SweepSchedule, cfg.StatusMaxAge, logger)
		if err != nil {
			_ = eng.store.Close()
			return nil, err
		}
		eng.janitor = j
	}

	return eng, nil
}

// Start sweeps expired status records, rehydrates persisted batches and
// starts the worker pool and the janitor.
func (eng *Engine) Start(ctx context.Context) error {
	if _, err := eng.Sweep(ctx); err != nil {
		eng.logger.Warn("startup sweep failed", slog.String("error", err.Error()))
	}

	n, err := eng.batches.Load(ctx)
	if err != nil {
		eng.logger.Warn("failed to load persisted batches", slog.String("error", err.Error()))
	} else if n > 0 {
		eng.logger.Info("persisted batches loaded", slog.Int("count", n))
	}

	if err := eng.pool.Start(ctx); err != nil {
		return fmt.Errorf("start worker pool: %w", err)
	}
	if eng.janitor != nil {
		if err := eng.janitor.Start(ctx); err != nil {
			return fmt.Errorf("start sweep janitor: %w", err)
		}
	}
	return nil
}

// Stop shuts down the pool and janitor concurrently, bounded by ctx and
// Config.ShutdownTimeout, then notifies extensions and closes the store.
func (eng *Engine) Stop(ctx context.Context) error {
	if eng.config.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, eng.config.ShutdownTimeout)
		defer cancel()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := eng.pool.Stop(gctx); err != nil {
			return fmt.Errorf("stop worker pool: %w", err)
		}
		return nil
	})
	if eng.janitor != nil {
		g.Go(func() error {
			return eng.janitor.Stop(gctx)
		})
	}
	stopErr := g.Wait()
	if stopErr != nil {
		eng.logger.Error("engine stop error", slog.String("error", stopErr.Error()))
	}

	eng.extensions.EmitShutdown(context.WithoutCancel(ctx))

	return errors.Join(stopErr, eng.store.Close())
}

// Sweep deletes status records older than Config.StatusMaxAge. The janitor
// runs the same sweep on its schedule.
func (eng *Engine) Sweep(ctx context.Context) (*store.SweepResult, error) {
	if eng.janitor != nil {
		return eng.janitor.RunOnce(ctx)
	}
	res, err := eng.store.Sweep(ctx, eng.config.StatusMaxAge)
	if err != nil {
		return nil, err
	}
	eng.logger.Info("status sweep finished",
		slog.Int("scanned", res.Scanned),
		slog.Int("removed", res.Removed),
		slog.Int("errors", len(res.Errors)),
	)
	eng.extensions.EmitSweepCompleted(ctx, res)
	return res, nil
}

// Config returns the engine's configuration.
func (eng *Engine) Config() batchgen.Config { return eng.config }

// Logger returns the engine's logger.
func (eng *Engine) Logger() *slog.Logger { return eng.logger }

// Store returns the status and batch store.
func (eng *Engine) Store() store.Store { return eng.store }

// Extensions returns the extension registry.
func (eng *Engine) Extensions() *ext.Registry { return eng.extensions }

// Retry returns the retry executor callbacks should use for remote calls.
// Its observers log each attempt and record retry metrics.
func (eng *Engine) Retry() *retry.Executor { return eng.retry }

// Pool returns the worker pool.
func (eng *Engine) Pool() *worker.Pool { return eng.pool }

// Batches returns the batch manager.
func (eng *Engine) Batches() *batch.Manager { return eng.batches }

// Janitor returns the sweep janitor, or nil when Config.SweepSchedule is empty.
func (eng *Engine) Janitor() *cron.Janitor { return eng.janitor }
