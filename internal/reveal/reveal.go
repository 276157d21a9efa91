// Package reveal animates a ghost reply onto the screen a few characters at a
// time.
//
// An [Animator] holds at most one live reveal. Starting a new reveal cancels
// the previous one, so ticks from a superseded reveal can never touch the
// display. When a reveal completes the full reply is appended to the
// conversation transcript as a ghost turn.
package reveal

import (
	"sync"
	"time"

	"github.com/MrWong99/phantomlink/internal/scheduler"
	"github.com/MrWong99/phantomlink/internal/transcript"
)

// Defaults for typed conversations: two characters every 100 ms.
const (
	DefaultInterval = 100 * time.Millisecond
	DefaultChunk    = 2
)

// State is a snapshot of the animation. Revealed counts characters (runes),
// not bytes, and never exceeds the length of FullText.
type State struct {
	Revealed int
	FullText string
	IsTyping bool
}

// Visible returns the revealed prefix of FullText.
func (s State) Visible() string {
	r := []rune(s.FullText)
	if s.Revealed >= len(r) {
		return s.FullText
	}
	return string(r[:s.Revealed])
}

// Option configures an [Animator].
type Option func(*Animator)

// WithInterval sets the tick period. Default: [DefaultInterval].
func WithInterval(d time.Duration) Option {
	return func(a *Animator) {
		if d > 0 {
			a.interval = d
		}
	}
}

// WithChunk sets how many characters each tick reveals. Default: [DefaultChunk].
func WithChunk(n int) Option {
	return func(a *Animator) {
		if n > 0 {
			a.chunk = n
		}
	}
}

// WithListener registers fn to receive a snapshot after every change. fn runs
// outside the animator's lock and must not block.
func WithListener(fn func(State)) Option {
	return func(a *Animator) { a.listeners = append(a.listeners, fn) }
}

// WithOnComplete registers fn to run after a reveal finishes and the ghost turn
// has been recorded.
func WithOnComplete(fn func(text string)) Option {
	return func(a *Animator) { a.onComplete = fn }
}

// Animator streams replies. All methods are safe for concurrent use.
type Animator struct {
	sched      scheduler.Scheduler
	transcript *transcript.Transcript
	interval   time.Duration
	chunk      int
	listeners  []func(State)
	onComplete func(string)

	mu     sync.Mutex
	runes  []rune
	state  State
	ticker scheduler.Timer
	done   chan struct{}
	gen    uint64
	last   string
}

// New returns an idle animator that records completed replies in tr.
func New(sched scheduler.Scheduler, tr *transcript.Transcript, opts ...Option) *Animator {
	a := &Animator{
		sched:      sched,
		transcript: tr,
		interval:   DefaultInterval,
		chunk:      DefaultChunk,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// BeginReveal starts animating fullText, cancelling any reveal in progress.
// The returned channel is closed when this reveal completes or is cancelled.
func (a *Animator) BeginReveal(fullText string) <-chan struct{} {
	a.mu.Lock()
	a.stopLocked()

	a.gen++
	gen := a.gen
	done := make(chan struct{})
	a.done = done
	a.runes = []rune(fullText)
	a.state = State{FullText: fullText, IsTyping: true}

	if len(a.runes) == 0 {
		a.finishLocked()
		snapshot := a.state
		a.mu.Unlock()
		a.completed(snapshot)
		return done
	}

	a.ticker = a.sched.Every(a.interval, func() { a.tick(gen) })
	snapshot := a.state
	a.mu.Unlock()

	a.notify(snapshot)
	return done
}

// Cancel stops the current reveal without recording it. It is a no-op when
// nothing is being revealed.
func (a *Animator) Cancel() {
	a.mu.Lock()
	if !a.state.IsTyping {
		a.mu.Unlock()
		return
	}
	a.stopLocked()
	a.gen++
	a.state = State{}
	a.runes = nil
	snapshot := a.state
	a.mu.Unlock()

	a.notify(snapshot)
}

// Reset cancels any reveal and forgets the last rendered reply.
func (a *Animator) Reset() {
	a.Cancel()
	a.mu.Lock()
	a.last = ""
	a.mu.Unlock()
}

// State returns the current animation state.
func (a *Animator) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Busy reports whether a reveal is in progress.
func (a *Animator) Busy() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state.IsTyping
}

// Display returns what the ghost's speech area should show: the revealed prefix
// while typing, otherwise the last fully rendered reply.
func (a *Animator) Display() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state.IsTyping {
		return string(a.runes[:a.state.Revealed])
	}
	return a.last
}

func (a *Animator) tick(gen uint64) {
	a.mu.Lock()
	if gen != a.gen || !a.state.IsTyping {
		a.mu.Unlock()
		return
	}
	a.state.Revealed += a.chunk
	if a.state.Revealed < len(a.runes) {
		snapshot := a.state
		a.mu.Unlock()
		a.notify(snapshot)
		return
	}

	a.finishLocked()
	snapshot := a.state
	a.mu.Unlock()
	a.completed(snapshot)
}

// finishLocked marks the current reveal complete. a.mu must be held.
func (a *Animator) finishLocked() {
	if a.ticker != nil {
		a.ticker.Stop()
		a.ticker = nil
	}
	a.state.Revealed = len(a.runes)
	a.state.IsTyping = false
	a.last = a.state.FullText
	a.transcript.Append(transcript.Turn{Role: transcript.RoleGhost, Content: a.state.FullText})
	if a.done != nil {
		close(a.done)
		a.done = nil
	}
}

// stopLocked halts the ticker and releases waiters. a.mu must be held.
func (a *Animator) stopLocked() {
	if a.ticker != nil {
		a.ticker.Stop()
		a.ticker = nil
	}
	if a.done != nil {
		close(a.done)
		a.done = nil
	}
}

func (a *Animator) completed(s State) {
	a.notify(s)
	if a.onComplete != nil {
		a.onComplete(s.FullText)
	}
}

func (a *Animator) notify(s State) {
	for _, fn := range a.listeners {
		fn(s)
	}
}
