// Package batchgen provides a batch job execution engine for long-running
// generation work. Callers group independent jobs into batches, hand each
// batch an opaque callback, and poll for progress while a bounded worker
// pool runs the jobs and records their status on disk.
//
// # Quick Start
//
//	eng, err := engine.Build(batchgen.DefaultConfig(), engine.WithLogger(logger))
//	if err != nil { ... }
//	_ = eng.Start(ctx)
//	defer eng.Stop(ctx)
//
//	batchID, _ := eng.Batches().Create(ctx, "lessons", "", specs)
//	eng.Batches().Start(ctx, batchID, callback)
//
// # Architecture
//
// The worker pool writes one status record per job into a status directory,
// guarded by file locks, and the batch manager aggregates those records into
// batch-level counters. The status directory is the source of truth, so a
// separate process (such as cmd/batchctl) can inspect progress.
//
// Callbacks survive transient remote failures through the retry package,
// which classifies errors with the failure package and applies a backoff
// policy tuned per error kind.
//
// All entity IDs use TypeID: type-prefixed, K-sortable, UUIDv7-based.
package batchgen
