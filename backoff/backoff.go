// Package backoff provides retry delay strategies. Strategies are stateless
// and safe for concurrent use.
package backoff

import (
	"math"
	"math/rand/v2"
	"time"
)

// DefaultJitter is the jitter fraction applied by NewExponential: delays are
// spread uniformly over ±10% of the nominal value.
const DefaultJitter = 0.1

// Strategy computes the delay before a retry.
type Strategy interface {
	// Delay returns how long to wait after failed attempt n (0-indexed).
	// Attempt 0 is the initial call.
	Delay(attempt int) time.Duration
}

// ──────────────────────────────────────────────────
// Constant
// ──────────────────────────────────────────────────

// Constant always returns the same delay regardless of attempt number.
type Constant struct {
	Interval time.Duration
}

// NewConstant creates a constant backoff strategy.
func NewConstant(interval time.Duration) *Constant {
	return &Constant{Interval: interval}
}

// Delay returns the fixed interval.
func (c *Constant) Delay(_ int) time.Duration {
	return c.Interval
}

// ──────────────────────────────────────────────────
// Exponential
// ──────────────────────────────────────────────────

// Exponential multiplies the delay by Factor each attempt and optionally
// spreads it with symmetric jitter.
// Delay = min(Base * Factor^attempt, Max) * (1 ± Jitter), never negative.
type Exponential struct {
	Base   time.Duration
	Max    time.Duration
	Factor float64
	// Jitter is the fraction of the capped delay to spread over. Zero
	// disables jitter.
	Jitter float64
	// Rand returns a value in [0, 1). Nil uses math/rand/v2.
	Rand func() float64
}

// NewExponential creates an exponential strategy with DefaultJitter.
// A factor below 1 is treated as 2.
func NewExponential(base, maxDelay time.Duration, factor float64) *Exponential {
	if factor < 1 {
		factor = 2
	}
	return &Exponential{Base: base, Max: maxDelay, Factor: factor, Jitter: DefaultJitter}
}

// Nominal returns the capped delay before jitter.
func (e *Exponential) Nominal(attempt int) time.Duration {
	d := float64(e.Base) * math.Pow(e.Factor, float64(max(attempt, 0)))
	if e.Max > 0 && d > float64(e.Max) {
		d = float64(e.Max)
	}
	if d > math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(d)
}

// Delay returns the jittered delay for attempt.
func (e *Exponential) Delay(attempt int) time.Duration {
	d := float64(e.Nominal(attempt))
	if e.Jitter > 0 {
		r := e.Rand
		if r == nil {
			r = rand.Float64 //nolint:gosec // jitter intentionally uses non-crypto rand
		}
		d += d * e.Jitter * (2*r() - 1)
	}
	if d < 0 {
		return 0
	}
	return time.Duration(d)
}
