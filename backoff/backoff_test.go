package backoff_test

import (
	"testing"
	"time"

	"github.com/stonezone/batchgen/backoff"
)

func TestConstant_ReturnsFixedDelay(t *testing.T) {
	c := backoff.NewConstant(5 * time.Second)
	for attempt := 0; attempt <= 10; attempt++ {
		if got := c.Delay(attempt); got != 5*time.Second {
			t.Errorf("Delay(%d) = %v, want %v", attempt, got, 5*time.Second)
		}
	}
}

func TestExponential_GrowsByFactor(t *testing.T) {
	e := backoff.NewExponential(2*time.Second, 120*time.Second, 2)
	e.Jitter = 0

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 2 * time.Second},
		{1, 4 * time.Second},
		{2, 8 * time.Second},
		{5, 64 * time.Second},
		{6, 120 * time.Second}, // capped
		{60, 120 * time.Second},
	}
	for _, tt := range tests {
		if got := e.Delay(tt.attempt); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestExponential_CustomFactor(t *testing.T) {
	e := backoff.NewExponential(time.Second, 0, 3)
	e.Jitter = 0
	if got := e.Delay(2); got != 9*time.Second {
		t.Errorf("Delay(2) = %v, want 9s", got)
	}
}

func TestExponential_JitterBounds(t *testing.T) {
	e := backoff.NewExponential(time.Second, time.Minute, 2)

	e.Rand = func() float64 { return 0 }
	if got := e.Delay(1); got < 1799*time.Millisecond || got > 1800*time.Millisecond {
		t.Errorf("low jitter = %v, want 1.8s", got)
	}

	e.Rand = func() float64 { return 0.999999 }
	if got := e.Delay(1); got < 2199*time.Millisecond || got > 2200*time.Millisecond {
		t.Errorf("high jitter = %v, want ~2.2s", got)
	}

	e.Rand = nil
	for i := 0; i < 100; i++ {
		got := e.Delay(3)
		if got < 7200*time.Millisecond || got > 8800*time.Millisecond {
			t.Fatalf("Delay(3) = %v, outside ±10%% of 8s", got)
		}
	}
}

func TestExponential_NeverNegative(t *testing.T) {
	e := &backoff.Exponential{Base: time.Second, Factor: 2, Jitter: 5, Rand: func() float64 { return 0 }}
	if got := e.Delay(0); got != 0 {
		t.Errorf("Delay = %v, want clamp to 0", got)
	}
}
