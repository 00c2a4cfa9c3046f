package retry

import (
	"time"

	"github.com/stonezone/batchgen/backoff"
	"github.com/stonezone/batchgen/failure"
)

// Config controls how many times an operation is attempted and how long to
// wait between attempts.
type Config struct {
	// MaxRetries is the number of retries after the first attempt, so an
	// operation runs at most MaxRetries+1 times.
	MaxRetries    int           `json:"max_retries" koanf:"max_retries"`
	BaseDelay     time.Duration `json:"base_delay" koanf:"base_delay"`
	MaxDelay      time.Duration `json:"max_delay" koanf:"max_delay"`
	BackoffFactor float64       `json:"backoff_factor" koanf:"backoff_factor"`
	Jitter        bool          `json:"jitter" koanf:"jitter"`
	// Adaptive swaps in PolicyFor(kind) on the first failure whose kind is
	// not failure.Unknown. Unknown failures keep the caller's settings.
	Adaptive bool `json:"adaptive" koanf:"adaptive"`
}

// DefaultConfig returns the generic policy with adaptation enabled.
func DefaultConfig() Config {
	cfg := PolicyFor(failure.Unknown)
	cfg.Adaptive = true
	return cfg
}

// PolicyFor returns the policy tuned for failures of kind k.
func PolicyFor(k failure.Kind) Config {
	cfg := Config{
		MaxRetries:    3,
		BaseDelay:     time.Second,
		MaxDelay:      60 * time.Second,
		BackoffFactor: 2,
		Jitter:        true,
	}
	switch k {
	case failure.RateLimit:
		cfg.MaxRetries = 5
		cfg.BaseDelay = 2 * time.Second
		cfg.MaxDelay = 120 * time.Second
	case failure.Network:
		cfg.MaxRetries = 4
		cfg.BaseDelay = 500 * time.Millisecond
		cfg.MaxDelay = 30 * time.Second
	}
	return cfg
}

// Strategy returns the backoff strategy described by c. rnd overrides the
// jitter source when non-nil.
func (c Config) Strategy(rnd func() float64) backoff.Strategy {
	e := backoff.NewExponential(c.BaseDelay, c.MaxDelay, c.BackoffFactor)
	if !c.Jitter {
		e.Jitter = 0
	}
	e.Rand = rnd
	return e
}
