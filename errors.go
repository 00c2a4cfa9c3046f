package batchgen

import "errors"

var (
	// Store errors.
	ErrNoStore     = errors.New("batchgen: no store configured")
	ErrStoreClosed = errors.New("batchgen: store closed")
	ErrLockTimeout = errors.New("batchgen: lock acquisition timed out")

	// Not found errors.
	ErrJobNotFound   = errors.New("batchgen: job not found")
	ErrBatchNotFound = errors.New("batchgen: batch not found")

	// Validation errors.
	ErrEmptyBatch    = errors.New("batchgen: batch has no jobs")
	ErrInvalidRecord = errors.New("batchgen: invalid record")
	ErrInvalidConfig = errors.New("batchgen: invalid config")

	// State errors.
	ErrInvalidState = errors.New("batchgen: invalid state transition")
	ErrPoolStopped  = errors.New("batchgen: worker pool stopped")
)
