package ratelimit

import (
	"context"
	"time"
)

// Limiter paces outbound provider calls. Acquire blocks until the caller
// may dispatch one request, or returns the context error.
type Limiter interface {
	Acquire(ctx context.Context) error
}

// Clock abstracts wall time so the gate can be driven by tests.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// Gate enforces a minimum wall-clock interval between consecutive Acquire
// calls. It owns the pacing state (the time the previous Acquire returned);
// nothing else reads or writes it.
//
// Concurrent callers queue on a single slot, so the check-wait-update is
// serialized and the cumulative rate across all callers never exceeds one
// per interval. Waiters are released in arrival order.
type Gate struct {
	interval time.Duration
	clock    Clock

	slot chan struct{}
	last time.Time
}

// GateOption configures a Gate.
type GateOption func(*Gate)

// WithClock replaces the wall clock.
func WithClock(c Clock) GateOption {
	return func(g *Gate) {
		if c != nil {
			g.clock = c
		}
	}
}

// NewGate returns a gate spacing calls at least interval apart.
// An interval <= 0 disables pacing.
func NewGate(interval time.Duration, opts ...GateOption) *Gate {
	g := &Gate{
		interval: interval,
		clock:    realClock{},
		slot:     make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Acquire blocks until interval has elapsed since the previous Acquire
// returned, then records the current time and returns. A canceled context
// aborts the wait and leaves the pacing state untouched.
func (g *Gate) Acquire(ctx context.Context) error {
	if g.interval <= 0 {
		return ctx.Err()
	}

	select {
	case g.slot <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-g.slot }()

	if !g.last.IsZero() {
		wait := g.last.Add(g.interval).Sub(g.clock.Now())
		if wait > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-g.clock.After(wait):
			}
		}
	}
	g.last = g.clock.Now()
	return nil
}

// Chain acquires every limiter in order. Nil entries are skipped.
type Chain []Limiter

func (c Chain) Acquire(ctx context.Context) error {
	for _, l := range c {
		if l == nil {
			continue
		}
		if err := l.Acquire(ctx); err != nil {
			return err
		}
	}
	return nil
}
