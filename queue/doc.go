// Package queue provides the in-process work queue feeding the worker pool.
//
// A [Queue] is an unbounded FIFO: producers never block, so submitting a
// large batch returns immediately. Consumers call [Queue.Pop] with a short
// timeout so they can observe a stop signal between dequeues.
//
// # Dispatch Throttling
//
// Use [Config] to cap how fast items leave the queue. This protects the
// remote service behind job callbacks from bursts when a large batch
// starts:
//
//	q := queue.New[item](queue.Config{
//	    RateLimit: 2,  // at most 2 jobs/s handed to workers
//	    RateBurst: 4,  // allow bursts up to 4
//	})
//
// The limiter is a token bucket from golang.org/x/time/rate.
package queue
