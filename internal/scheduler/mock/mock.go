// Package mock provides a manually advanced [scheduler.Scheduler] for tests.
//
// Time only moves when the test calls [Clock.Advance]. Due callbacks run
// synchronously on the calling goroutine in due-time order, which makes timer
// driven behaviour fully deterministic.
package mock

import (
	"sort"
	"sync"
	"time"

	"github.com/MrWong99/phantomlink/internal/scheduler"
)

// Clock is a fake [scheduler.Scheduler]. The zero value is not usable; create
// one with [New].
type Clock struct {
	mu     sync.Mutex
	now    time.Duration
	seq    uint64
	timers []*timer
}

var _ scheduler.Scheduler = (*Clock)(nil)

type timer struct {
	c       *Clock
	seq     uint64
	due     time.Duration
	period  time.Duration
	fn      func()
	stopped bool
}

// New returns a clock at offset zero with no pending timers.
func New() *Clock { return &Clock{} }

// Now returns the elapsed fake time since the clock was created.
func (c *Clock) Now() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// AfterFunc implements [scheduler.Scheduler].
func (c *Clock) AfterFunc(d time.Duration, fn func()) scheduler.Timer {
	return c.add(d, 0, fn)
}

// Every implements [scheduler.Scheduler].
func (c *Clock) Every(d time.Duration, fn func()) scheduler.Timer {
	if d <= 0 {
		panic("mock: non-positive interval for Every")
	}
	return c.add(d, d, fn)
}

func (c *Clock) add(d, period time.Duration, fn func()) *timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	if d < 0 {
		d = 0
	}
	t := &timer{c: c, seq: c.seq, due: c.now + d, period: period, fn: fn}
	c.seq++
	c.timers = append(c.timers, t)
	return t
}

// Pending returns the number of timers that have not fired (one-shot) or have
// not been stopped (periodic).
func (c *Clock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.timers)
}

// Advance moves the clock forward by d, running every callback that becomes
// due on the way. Callbacks scheduled by callbacks are honoured if they fall
// inside the window.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now + d
	c.mu.Unlock()

	for {
		c.mu.Lock()
		next := c.nextDue(target)
		if next == nil {
			c.now = target
			c.mu.Unlock()
			return
		}
		c.now = next.due
		if next.period > 0 {
			next.due += next.period
		} else {
			c.remove(next)
		}
		fn := next.fn
		c.mu.Unlock()

		fn()
	}
}

// nextDue returns the earliest timer due at or before target. Ties are broken
// by creation order. c.mu must be held.
func (c *Clock) nextDue(target time.Duration) *timer {
	if len(c.timers) == 0 {
		return nil
	}
	sort.SliceStable(c.timers, func(i, j int) bool {
		if c.timers[i].due != c.timers[j].due {
			return c.timers[i].due < c.timers[j].due
		}
		return c.timers[i].seq < c.timers[j].seq
	})
	if t := c.timers[0]; t.due <= target {
		return t
	}
	return nil
}

// remove drops t from the pending list. c.mu must be held.
func (c *Clock) remove(t *timer) {
	for i, x := range c.timers {
		if x == t {
			c.timers = append(c.timers[:i], c.timers[i+1:]...)
			break
		}
	}
	t.stopped = true
}

// Stop implements [scheduler.Timer].
func (t *timer) Stop() bool {
	t.c.mu.Lock()
	defer t.c.mu.Unlock()
	if t.stopped {
		return false
	}
	t.c.remove(t)
	return true
}
