// Package job defines the job entity, its status lifecycle, the callback
// contract, and the status store interface.
//
// # Lifecycle
//
//	pending → running → completed
//	pending → running → failed
//	pending → running → cancelled   (callback observed cancellation)
//	pending → cancelled             (cancelled while queued; never started)
//
// Every transition is written to a [Store] so status survives the worker
// that produced it and can be read from other goroutines or processes.
//
// # Invariants
//
// [Job.Validate] enforces the relationships between status and the
// optional fields: StartedAt is set once a job leaves pending, Result is present
// only on completed jobs, ErrorMessage only on failed ones, and Progress
// stays within [0, 1].
package job
