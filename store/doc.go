// Package store defines the aggregate persistence interface.
//
// The job status contract ([job.Store]) and the batch record contract
// ([batch.Store]) are defined next to their entities. [Store] composes
// them with the age-based [Sweeper] used to bound disk usage.
//
// # Available Backends
//
//   - store/file: one file per record under a status directory and a batch
//     directory, JSON or MessagePack encoded, guarded by sidecar file locks
//     so several processes can share the same directories
//   - store/memory: in-memory store for tests and runs that need no
//     durable status
//
// # Usage
//
//	s, err := file.New("batch_data/status", "batch_data/batches",
//	    file.WithCodec(file.MsgpackCodec{}),
//	    file.WithLogger(logger),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer s.Close()
package store
