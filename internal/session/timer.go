package session

import (
	"context"
	"sync"
	"time"
)

const tickInterval = time.Second

// Countdown ticks down from an initial number of seconds at 1Hz and
// invokes onExpire exactly once at zero. The one-shot guard is
// independent of the submission guard's lock: the countdown may reach
// zero before the guard is ever consulted.
type Countdown struct {
	mu        sync.Mutex
	clock     Clock
	remaining int
	fired     bool
	stopped   bool
	ticker    Ticker
	onTick    func(remaining int)
	onExpire  func()
}

// NewCountdown creates a countdown of the given number of seconds.
// onTick may be nil; onExpire must not be.
func NewCountdown(clock Clock, seconds int, onTick func(int), onExpire func()) *Countdown {
	return &Countdown{
		clock:     clock,
		remaining: seconds,
		onTick:    onTick,
		onExpire:  onExpire,
	}
}

// Run ticks until expiry, Stop, or ctx cancellation. Call in a goroutine.
func (c *Countdown) Run(ctx context.Context) {
	c.mu.Lock()
	if c.stopped || c.fired {
		c.mu.Unlock()
		return
	}
	if c.remaining <= 0 {
		c.mu.Unlock()
		c.expire()
		return
	}
	ticker := c.clock.NewTicker(tickInterval)
	c.ticker = ticker
	c.mu.Unlock()

	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			if c.tick() {
				return
			}
		}
	}
}

// tick decrements and reports whether the countdown is finished.
func (c *Countdown) tick() bool {
	c.mu.Lock()
	if c.stopped || c.fired {
		c.mu.Unlock()
		return true
	}
	c.remaining--
	remaining := c.remaining
	onTick := c.onTick
	c.mu.Unlock()

	if onTick != nil {
		onTick(remaining)
	}
	if remaining <= 0 {
		c.expire()
		return true
	}
	return false
}

// expire fires onExpire at most once, even if a tick is re-delivered.
func (c *Countdown) expire() {
	c.mu.Lock()
	if c.fired {
		c.mu.Unlock()
		return
	}
	c.fired = true
	c.mu.Unlock()

	c.onExpire()
}

// Stop halts the countdown without firing onExpire.
func (c *Countdown) Stop() {
	c.mu.Lock()
	c.stopped = true
	ticker := c.ticker
	c.mu.Unlock()

	if ticker != nil {
		ticker.Stop()
	}
}

// Remaining returns the seconds left.
func (c *Countdown) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remaining
}
