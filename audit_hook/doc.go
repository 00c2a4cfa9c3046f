// Package audithook is a batchgen extension that turns lifecycle events
// into an audit trail.
//
// Every job, batch and sweep hook emits a structured [AuditEvent] through
// the [Recorder] interface. Severity is info for normal operations, warning
// for cancellations and deletions, and critical for failed jobs. Metadata
// carries the job or batch name, counters, elapsed time and errors.
//
// # Logging the trail
//
//	eng, _ := engine.Build(cfg,
//	    engine.WithExtension(audithook.New(audithook.NewLogRecorder(auditLogger))),
//	)
//
// # Selective filtering
//
//	audithook.New(recorder,
//	    audithook.WithActions(
//	        audithook.ActionJobFailed,
//	        audithook.ActionBatchDeleted,
//	    ),
//	)
package audithook
