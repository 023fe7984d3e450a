// Package rate provides the local resend throttle for code-dispatching
// steps. Unlike a server-side limiter it protects nothing but the user's
// inbox: re-requesting a one-time code for the same login is refused until
// the cooldown interval passes.
package rate

import (
	"errors"
	"sync"
	"time"
)

// ErrCoolingDown is returned while the interval since the last allowed
// request for a key has not elapsed.
var ErrCoolingDown = errors.New("resend cooling down")

// Cooldown tracks the last allowed request per key. A zero interval allows
// everything. Safe for concurrent use.
type Cooldown struct {
	mu       sync.Mutex
	interval time.Duration
	last     map[string]time.Time
	now      func() time.Time
}

// NewCooldown returns a Cooldown with the given interval.
func NewCooldown(interval time.Duration) *Cooldown {
	return &Cooldown{
		interval: interval,
		last:     make(map[string]time.Time),
		now:      time.Now,
	}
}

// Allow records and permits the request for key unless one was already
// permitted within the interval.
func (c *Cooldown) Allow(key string) error {
	if c == nil || c.interval <= 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if at, ok := c.last[key]; ok && now.Sub(at) < c.interval {
		return ErrCoolingDown
	}
	c.last[key] = now
	return nil
}

// Reset forgets the key, permitting the next request immediately.
func (c *Cooldown) Reset(key string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.last, key)
}
