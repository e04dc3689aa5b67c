// Package health reports liveness and store-backed readiness.
package health

import (
	"context"
	"errors"
	"time"

	"go.uber.org/atomic"
)

// DefaultTimeout bounds a readiness probe.
const DefaultTimeout = 2 * time.Second

// ErrDraining is returned by Ready once the process has started shutting down.
var ErrDraining = errors.New("draining")

// Pinger reports whether a dependency is reachable. store.Store satisfies it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Checker answers readiness probes from a Pinger and a drain flag.
type Checker struct {
	pinger   Pinger
	timeout  time.Duration
	draining atomic.Bool
}

// NewChecker returns a checker. A nil pinger is always reachable.
func NewChecker(pinger Pinger, timeout time.Duration) *Checker {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Checker{pinger: pinger, timeout: timeout}
}

// Ready returns nil when the process should receive traffic.
func (c *Checker) Ready(ctx context.Context) error {
	if c.draining.Load() {
		return ErrDraining
	}
	if c.pinger == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.pinger.Ping(ctx)
}

// Drain marks the process not ready. It reports false if it was already draining.
func (c *Checker) Drain() bool {
	return !c.draining.Swap(true)
}

// Undrain marks the process ready again.
func (c *Checker) Undrain() bool {
	return c.draining.Swap(false)
}
