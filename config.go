package batchgen

import "time"

// Config holds configuration for the batch engine. Every field has a koanf
// tag so the config package can load it from files, env and flags.
type Config struct {
	// Concurrency is the number of worker goroutines.
	Concurrency int `koanf:"concurrency"`

	// PollInterval is how long a worker waits on an empty queue before
	// re-checking the stop signal.
	PollInterval time.Duration `koanf:"poll_interval"`

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`

	// CompletedCacheSize bounds the in-memory cache of finished jobs.
	CompletedCacheSize int `koanf:"completed_cache_size"`

	// JobTimeout is an optional per-job deadline. Zero means none.
	JobTimeout time.Duration `koanf:"job_timeout"`

	// DispatchRate limits how many jobs per second workers may start.
	// Zero disables throttling.
	DispatchRate float64 `koanf:"dispatch_rate"`

	// DispatchBurst is the token bucket burst for DispatchRate.
	DispatchBurst int `koanf:"dispatch_burst"`

	// StatusDir holds one status record per job.
	StatusDir string `koanf:"status_dir"`

	// BatchDir holds one record per batch.
	BatchDir string `koanf:"batch_dir"`

	// Codec selects the record encoding: "json" or "msgpack".
	Codec string `koanf:"codec"`

	// LockTimeout bounds how long a status read or write waits for its file lock.
	LockTimeout time.Duration `koanf:"lock_timeout"`

	// StatusMaxAge is the age after which the sweep deletes status records.
	StatusMaxAge time.Duration `koanf:"status_max_age"`

	// SweepSchedule is an optional cron expression ("@every 1h") for
	// periodic sweeps after the startup sweep. Empty means startup only.
	SweepSchedule string `koanf:"sweep_schedule"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Concurrency:        2,
		PollInterval:       200 * time.Millisecond,
		ShutdownTimeout:    30 * time.Second,
		CompletedCacheSize: 1000,
		StatusDir:          "batch_data/status",
		BatchDir:           "batch_data/batches",
		Codec:              "json",
		LockTimeout:        5 * time.Second,
		StatusMaxAge:       24 * time.Hour,
	}
}
