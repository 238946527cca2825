package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"marketwatch/internal/provider"
)

// ErrMiss is returned when no live quote is cached for an instrument.
var ErrMiss = errors.New("cache miss")

// Store keeps the latest accepted quote per instrument. A newer quote
// supersedes the previous one; nothing is merged.
type Store interface {
	Put(ctx context.Context, q provider.Quote) error
	Get(ctx context.Context, inst provider.Instrument) (provider.Quote, error)
	All(ctx context.Context) ([]provider.Quote, error)
}

// entry stores the cached quote for a single instrument with expiry.
type entry struct {
	expiresAt time.Time
	quote     provider.Quote
}

// Memory is an in-process Store. A zero TTL keeps entries until replaced.
type Memory struct {
	TTL      time.Duration
	MaxItems int

	mu    sync.RWMutex
	items map[provider.Instrument]entry
	order []provider.Instrument
	now   func() time.Time
}

var _ Store = (*Memory)(nil)

// NewMemory creates a Memory store.
func NewMemory(ttl time.Duration, maxItems int) *Memory {
	return &Memory{TTL: ttl, MaxItems: maxItems, items: map[provider.Instrument]entry{}, now: time.Now}
}

func (c *Memory) clock() time.Time {
	if c.now == nil {
		return time.Now()
	}
	return c.now()
}

func (c *Memory) live(e entry, now time.Time) bool {
	return e.expiresAt.IsZero() || now.Before(e.expiresAt)
}

// Put replaces the cached quote for q's instrument.
func (c *Memory) Put(_ context.Context, q provider.Quote) error {
	inst := q.Instrument()
	now := c.clock()
	e := entry{quote: q}
	if c.TTL > 0 {
		e.expiresAt = now.Add(c.TTL)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.items == nil {
		c.items = make(map[provider.Instrument]entry)
	}
	if _, ok := c.items[inst]; !ok {
		c.order = append(c.order, inst)
	}
	c.items[inst] = e

	// cap cache size: expired first, then oldest inserted
	if c.MaxItems > 0 && len(c.items) > c.MaxItems {
		kept := c.order[:0]
		for _, k := range c.order {
			if len(c.items) > c.MaxItems && !c.live(c.items[k], now) {
				delete(c.items, k)
				continue
			}
			kept = append(kept, k)
		}
		c.order = kept
		for len(c.items) > c.MaxItems && len(c.order) > 0 {
			delete(c.items, c.order[0])
			c.order = c.order[1:]
		}
	}
	return nil
}

// Get returns the live quote for inst or ErrMiss.
func (c *Memory) Get(_ context.Context, inst provider.Instrument) (provider.Quote, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.items[inst]
	if !ok || !c.live(e, c.clock()) {
		return provider.Quote{}, ErrMiss
	}
	return e.quote, nil
}

// All returns every live quote in first-insertion order.
func (c *Memory) All(_ context.Context) ([]provider.Quote, error) {
	now := c.clock()
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]provider.Quote, 0, len(c.order))
	for _, inst := range c.order {
		if e, ok := c.items[inst]; ok && c.live(e, now) {
			out = append(out, e.quote)
		}
	}
	return out, nil
}
