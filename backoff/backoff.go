// Package backoff provides delay strategies for idle polling: how long a
// worker waits after a poll that found nothing it could claim.
// All strategies are safe for concurrent use (they are stateless); Idle
// carries per-worker state and is not.
package backoff

import (
	"math"
	"math/rand/v2"
	"time"
)

// Strategy computes the delay after a run of empty polls.
type Strategy interface {
	// Delay returns how long to wait after the n-th consecutive empty
	// poll (1-indexed).
	Delay(misses int) time.Duration
}

// ──────────────────────────────────────────────────
// Constant
// ──────────────────────────────────────────────────

// Constant always returns the same delay.
type Constant struct {
	Interval time.Duration
}

// NewConstant creates a constant strategy.
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

// Exponential doubles the delay with every consecutive miss.
// Delay = min(Initial * 2^(misses-1), Max).
type Exponential struct {
	Initial time.Duration
	Max     time.Duration
}

// NewExponential creates an exponential strategy.
func NewExponential(initial, maxDelay time.Duration) *Exponential {
	return &Exponential{Initial: initial, Max: maxDelay}
}

// Delay returns Initial * 2^(misses-1), capped at Max.
func (e *Exponential) Delay(misses int) time.Duration {
	return capped(e.Initial, e.Max, misses)
}

// ──────────────────────────────────────────────────
// ExponentialWithJitter (equal jitter)
// ──────────────────────────────────────────────────

// ExponentialWithJitter spreads idle workers apart so a fleet started
// together does not poll the store in lockstep.
// Delay = d/2 + random value in [0, d/2], d = min(Initial * 2^(misses-1), Max).
type ExponentialWithJitter struct {
	Initial time.Duration
	Max     time.Duration
}

// NewExponentialWithJitter creates an exponential strategy with equal jitter.
func NewExponentialWithJitter(initial, maxDelay time.Duration) *ExponentialWithJitter {
	return &ExponentialWithJitter{Initial: initial, Max: maxDelay}
}

// Delay returns a random duration in [d/2, d].
func (e *ExponentialWithJitter) Delay(misses int) time.Duration {
	d := capped(e.Initial, e.Max, misses)
	half := d / 2
	return half + time.Duration(rand.Float64()*float64(d-half)) //nolint:gosec // jitter intentionally uses non-crypto rand
}

func capped(initial, maxDelay time.Duration, misses int) time.Duration {
	if misses < 1 {
		misses = 1
	}
	d := float64(initial) * math.Pow(2, float64(misses-1))
	if maxDelay > 0 && d > float64(maxDelay) {
		return maxDelay
	}
	if d > math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(d)
}

// ──────────────────────────────────────────────────
// Idle
// ──────────────────────────────────────────────────

// Idle counts one worker's consecutive empty polls.
type Idle struct {
	strategy Strategy
	misses   int
}

// NewIdle creates an Idle tracker using s.
func NewIdle(s Strategy) *Idle {
	return &Idle{strategy: s}
}

// Miss records an empty poll and returns how long to wait before the next.
func (i *Idle) Miss() time.Duration {
	i.misses++
	return i.strategy.Delay(i.misses)
}

// Reset clears the miss count after a successful claim.
func (i *Idle) Reset() { i.misses = 0 }

// Misses returns the current number of consecutive empty polls.
func (i *Idle) Misses() int { return i.misses }

// ──────────────────────────────────────────────────
// Default
// ──────────────────────────────────────────────────

// DefaultStrategy returns the idle backoff used by the worker pool:
// ExponentialWithJitter with 1s initial and 10s max.
func DefaultStrategy() Strategy {
	return NewExponentialWithJitter(1*time.Second, 10*time.Second)
}
