package batchgen

import (
	"fmt"
	"path/filepath"
	"time"
)

// Option adjusts a Config.
type Option func(*Config) error

// NewConfig returns DefaultConfig with opts applied and validated.
func NewConfig(opts ...Option) (Config, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports the first invalid field.
func (c Config) Validate() error {
	switch {
	case c.Concurrency <= 0:
		return fmt.Errorf("%w: concurrency must be positive, got %d", ErrInvalidConfig, c.Concurrency)
	case c.PollInterval <= 0:
		return fmt.Errorf("%w: poll_interval must be positive", ErrInvalidConfig)
	case c.CompletedCacheSize <= 0:
		return fmt.Errorf("%w: completed_cache_size must be positive", ErrInvalidConfig)
	case c.JobTimeout < 0:
		return fmt.Errorf("%w: job_timeout must not be negative", ErrInvalidConfig)
	case c.DispatchRate < 0:
		return fmt.Errorf("%w: dispatch_rate must not be negative", ErrInvalidConfig)
	case c.StatusDir == "" || c.BatchDir == "":
		return fmt.Errorf("%w: status_dir and batch_dir are required", ErrInvalidConfig)
	case c.Codec != "json" && c.Codec != "msgpack":
		return fmt.Errorf("%w: unknown codec %q", ErrInvalidConfig, c.Codec)
	case c.StatusMaxAge <= 0:
		return fmt.Errorf("%w: status_max_age must be positive", ErrInvalidConfig)
	}
	return nil
}

// WithConcurrency sets the number of worker goroutines.
func WithConcurrency(n int) Option {
	return func(c *Config) error {
		c.Concurrency = n
		return nil
	}
}

// WithPollInterval sets how long idle workers wait on the queue.
func WithPollInterval(d time.Duration) Option {
	return func(c *Config) error {
		c.PollInterval = d
		return nil
	}
}

// WithJobTimeout sets the per-job deadline. Zero disables it.
func WithJobTimeout(d time.Duration) Option {
	return func(c *Config) error {
		c.JobTimeout = d
		return nil
	}
}

// WithDispatchRate throttles job starts to perSecond with the given burst.
func WithDispatchRate(perSecond float64, burst int) Option {
	return func(c *Config) error {
		c.DispatchRate = perSecond
		c.DispatchBurst = burst
		return nil
	}
}

// WithDataDir places the status and batch directories under dir.
func WithDataDir(dir string) Option {
	return func(c *Config) error {
		if dir == "" {
			return fmt.Errorf("%w: empty data dir", ErrInvalidConfig)
		}
		c.StatusDir = filepath.Join(dir, "status")
		c.BatchDir = filepath.Join(dir, "batches")
		return nil
	}
}

// WithCodec selects the record encoding ("json" or "msgpack").
func WithCodec(name string) Option {
	return func(c *Config) error {
		c.Codec = name
		return nil
	}
}

// WithSweep sets the status record max age and the optional cron schedule
// for periodic sweeps.
func WithSweep(maxAge time.Duration, schedule string) Option {
	return func(c *Config) error {
		c.StatusMaxAge = maxAge
		c.SweepSchedule = schedule
		return nil
	}
}
