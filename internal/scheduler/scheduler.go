// Package scheduler is the single source of time for the conversational
// runtime. Every delayed or repeating callback (reveal ticks, cooldown resets,
// search timers, hint rotation, voice polling) is created through a
// [Scheduler] and returns a cancelable [Timer].
//
// Views own a [Group]; stopping the group cancels every timer the view created,
// so no callback can run after the view has gone away.
package scheduler

import (
	"sync"
	"time"
)

// Timer is a handle to a scheduled callback.
type Timer interface {
	// Stop cancels the callback. It reports whether the call stopped a timer
	// that was still pending. Stop is idempotent and safe for concurrent use.
	Stop() bool
}

// Scheduler creates one-shot and repeating callbacks.
//
// Callbacks run on a goroutine owned by the scheduler implementation. Callers
// must not assume they run on any particular goroutine.
type Scheduler interface {
	// AfterFunc runs fn once after d has elapsed.
	AfterFunc(d time.Duration, fn func()) Timer

	// Every runs fn repeatedly with period d until the returned Timer is
	// stopped. The first invocation happens after d. d must be positive.
	Every(d time.Duration, fn func()) Timer
}

// Real is a [Scheduler] backed by the runtime timers.
type Real struct{}

var _ Scheduler = Real{}

// New returns the wall-clock scheduler.
func New() Real { return Real{} }

// AfterFunc implements [Scheduler].
func (Real) AfterFunc(d time.Duration, fn func()) Timer {
	return &oneShot{t: time.AfterFunc(d, fn)}
}

// Every implements [Scheduler]. The ticker goroutine exits when the returned
// timer is stopped.
func (Real) Every(d time.Duration, fn func()) Timer {
	p := &periodic{done: make(chan struct{})}
	ticker := time.NewTicker(d)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-p.done:
				return
			case <-ticker.C:
				// A tick may race with Stop; re-check so a stopped timer never fires.
				select {
				case <-p.done:
					return
				default:
				}
				fn()
			}
		}
	}()
	return p
}

type oneShot struct {
	t *time.Timer
}

func (o *oneShot) Stop() bool { return o.t.Stop() }

type periodic struct {
	once sync.Once
	done chan struct{}
}

func (p *periodic) Stop() bool {
	stopped := false
	p.once.Do(func() {
		close(p.done)
		stopped = true
	})
	return stopped
}

// ── Group ────────────────────────────────────────────────────────────────────

// Group tracks every timer created through it so they can be cancelled in one
// call. Once [Group.StopAll] has been called the group is closed: further
// scheduling requests return an inert timer and their callbacks never run.
//
// All methods are safe for concurrent use.
type Group struct {
	sched Scheduler

	mu     sync.Mutex
	nextID uint64
	live   map[uint64]Timer
	closed bool
}

var _ Scheduler = (*Group)(nil)

// NewGroup returns an empty group that schedules through s.
func NewGroup(s Scheduler) *Group {
	return &Group{sched: s, live: make(map[uint64]Timer)}
}

// AfterFunc implements [Scheduler].
func (g *Group) AfterFunc(d time.Duration, fn func()) Timer {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return inert{}
	}
	id := g.nextID
	g.nextID++
	t := g.sched.AfterFunc(d, func() {
		g.mu.Lock()
		_, ok := g.live[id]
		delete(g.live, id)
		g.mu.Unlock()
		if ok {
			fn()
		}
	})
	g.live[id] = t
	return &member{g: g, id: id, t: t}
}

// Every implements [Scheduler].
func (g *Group) Every(d time.Duration, fn func()) Timer {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return inert{}
	}
	id := g.nextID
	g.nextID++
	t := g.sched.Every(d, func() {
		g.mu.Lock()
		_, ok := g.live[id]
		g.mu.Unlock()
		if ok {
			fn()
		}
	})
	g.live[id] = t
	return &member{g: g, id: id, t: t}
}

// Len returns the number of timers that are still pending.
func (g *Group) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.live)
}

// StopAll cancels every pending timer and closes the group. It is idempotent.
func (g *Group) StopAll() {
	g.mu.Lock()
	live := g.live
	g.live = make(map[uint64]Timer)
	g.closed = true
	g.mu.Unlock()

	for _, t := range live {
		t.Stop()
	}
}

type member struct {
	g  *Group
	id uint64
	t  Timer
}

func (m *member) Stop() bool {
	m.g.mu.Lock()
	_, ok := m.g.live[m.id]
	delete(m.g.live, m.id)
	m.g.mu.Unlock()
	m.t.Stop()
	return ok
}

type inert struct{}

func (inert) Stop() bool { return false }
