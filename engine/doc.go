// Package engine wires the batchgen subsystems together: the status store,
// extension registry, middleware chain, retry executor, worker pool, batch
// manager and sweep janitor.
//
// Engine sits above every subsystem package. The batch package cannot
// import worker or ext (both depend on it), so the engine hands the pool
// and the registry to the manager through the small interfaces batch
// declares.
//
// # Building an Engine
//
//	cfg, err := batchgen.NewConfig(
//	    batchgen.WithDataDir("batch_data"),
//	    batchgen.WithConcurrency(4),
//	    batchgen.WithSweep(24*time.Hour, "@every 1h"),
//	)
//
//	eng, err := engine.Build(cfg,
//	    engine.WithLogger(logger),
//	    engine.WithExtension(myExtension),
//	    engine.WithMeterProvider(mp),
//	)
//
// # Running Batches
//
//	_ = eng.Start(ctx) // startup sweep, rehydrate batches, start workers
//	id, _ := eng.Batches().Create(ctx, "lessons", "", specs)
//	eng.Batches().Start(ctx, id, func(ctx context.Context, p payload.Map) (payload.Map, error) {
//	    return retry.Run(ctx, eng.Retry(), retry.DefaultConfig(), "generate", generate(p))
//	})
//	b, _ := eng.Batches().Status(ctx, id)
//
// # Options
//
//   - [WithLogger]: share a logger with every component
//   - [WithStore]: replace the file store (for example with store/memory)
//   - [WithExtension]: register a lifecycle extension
//   - [WithMiddleware]: append middleware to the execution chain
//   - [WithRetryObserver]: observe retry attempts
//   - [WithManagerOption]: pass options to the batch manager
//   - [WithTracerProvider], [WithMeterProvider]: OpenTelemetry providers
package engine
