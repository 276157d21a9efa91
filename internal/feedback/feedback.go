// Package feedback turns the sentiment score attached to each ghost reply into
// an ambient effect: a background colour and a short sound.
//
// A [Controller] fires at most one effect per cooldown window. When a score
// crosses a threshold the effect is applied, the cooldown starts, and a single
// reset is scheduled that restores the neutral colour once the window elapses.
// Scores that arrive during the cooldown are ignored.
package feedback

import (
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/MrWong99/phantomlink/internal/scheduler"
	"github.com/MrWong99/phantomlink/pkg/audio"
)

// DefaultCooldown is how long an effect stays active before reverting.
const DefaultCooldown = 3 * time.Second

// Decision is the outcome of evaluating one sentiment sample.
type Decision int

const (
	None Decision = iota
	Positive
	Negative
)

// String returns the lower-case name of the decision.
func (d Decision) String() string {
	switch d {
	case Positive:
		return "positive"
	case Negative:
		return "negative"
	default:
		return "none"
	}
}

// Thresholds are inclusive trigger bounds: a score s triggers a positive effect
// when s >= Positive and a negative one when s <= Negative.
type Thresholds struct {
	Positive float64
	Negative float64
}

// Per-mode defaults. Typed conversations need a stronger positive signal than
// spoken ones.
var (
	TypedThresholds  = Thresholds{Positive: 3, Negative: -2}
	SpokenThresholds = Thresholds{Positive: 2, Negative: -2}
)

// Palette maps decisions to display colours. Neutral is shown whenever no
// effect is active.
type Palette struct {
	Positive string
	Negative string
	Neutral  string
}

// DefaultPalette is the stock ghost-room palette.
var DefaultPalette = Palette{
	Positive: "#7ab865",
	Negative: "#b8211d",
	Neutral:  "#b865ad",
}

// State is a snapshot of the ambient effect.
type State struct {
	// Color is the colour currently shown; the palette's neutral colour when no
	// effect is active.
	Color string

	// Effect is the active effect, or None.
	Effect Decision

	// CooldownActive is true from a trigger until its scheduled reset.
	CooldownActive bool
}

// Option configures a [Controller].
type Option func(*Controller)

// WithThresholds overrides the trigger bounds. Default: [TypedThresholds].
func WithThresholds(t Thresholds) Option {
	return func(c *Controller) { c.thresholds = t }
}

// WithPalette overrides the colours. Default: [DefaultPalette].
func WithPalette(p Palette) Option {
	return func(c *Controller) { c.palette = p }
}

// WithCooldown overrides the effect duration. Default: [DefaultCooldown].
func WithCooldown(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.cooldown = d
		}
	}
}

// WithClip registers the sound played when decision d fires.
func WithClip(d Decision, clip audio.Clip) Option {
	return func(c *Controller) {
		if clip != nil {
			c.clips[d] = clip
		}
	}
}

// WithListener registers fn to receive every state change. fn runs outside the
// controller's lock and must not block.
func WithListener(fn func(State)) Option {
	return func(c *Controller) { c.listeners = append(c.listeners, fn) }
}

// WithOnEffect registers fn to be told about each effect that fires. Used for
// metrics.
func WithOnEffect(fn func(Decision)) Option {
	return func(c *Controller) { c.onEffect = fn }
}

// Controller evaluates sentiment samples. All methods are safe for concurrent
// use.
type Controller struct {
	sched     scheduler.Scheduler
	palette   Palette
	cooldown  time.Duration
	clips     map[Decision]audio.Clip
	listeners []func(State)
	onEffect  func(Decision)

	mu         sync.Mutex
	thresholds Thresholds
	state      State
	reset      scheduler.Timer
	gen        uint64
}

// New returns a controller that schedules its resets on sched.
func New(sched scheduler.Scheduler, opts ...Option) *Controller {
	c := &Controller{
		sched:      sched,
		palette:    DefaultPalette,
		cooldown:   DefaultCooldown,
		clips:      make(map[Decision]audio.Clip),
		thresholds: TypedThresholds,
	}
	for _, o := range opts {
		o(c)
	}
	c.state = State{Color: c.palette.Neutral}
	return c
}

// SetThresholds swaps the trigger bounds, e.g. after a config reload. It does
// not affect an effect that is already active.
func (c *Controller) SetThresholds(t Thresholds) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.thresholds = t
}

// State returns the current ambient state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Evaluate consumes one sentiment sample and reports which effect, if any,
// fired. Non-finite samples never trigger.
func (c *Controller) Evaluate(sentiment float64) Decision {
	c.mu.Lock()
	if c.state.CooldownActive || math.IsNaN(sentiment) || math.IsInf(sentiment, 0) {
		c.mu.Unlock()
		return None
	}

	var d Decision
	switch {
	case sentiment >= c.thresholds.Positive:
		d = Positive
	case sentiment <= c.thresholds.Negative:
		d = Negative
	default:
		c.mu.Unlock()
		return None
	}

	c.gen++
	gen := c.gen
	c.state = State{Color: c.colorFor(d), Effect: d, CooldownActive: true}
	c.reset = c.sched.AfterFunc(c.cooldown, func() { c.expire(gen) })
	snapshot := c.state
	clip := c.clips[d]
	c.mu.Unlock()

	if clip != nil {
		if err := clip.Play(); err != nil {
			slog.Warn("feedback: play effect sound", "effect", d.String(), "err", err)
		}
	}
	if c.onEffect != nil {
		c.onEffect(d)
	}
	c.notify(snapshot)
	return d
}

// Stop cancels a pending reset, silences every clip and returns to the neutral
// state. Call it when the conversation view goes away.
func (c *Controller) Stop() {
	c.mu.Lock()
	if c.reset != nil {
		c.reset.Stop()
		c.reset = nil
	}
	c.gen++
	changed := c.state.CooldownActive
	c.state = State{Color: c.palette.Neutral}
	snapshot := c.state
	c.mu.Unlock()

	for _, clip := range c.clips {
		clip.Stop()
	}
	if changed {
		c.notify(snapshot)
	}
}

func (c *Controller) expire(gen uint64) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.reset = nil
	c.state = State{Color: c.palette.Neutral}
	snapshot := c.state
	c.mu.Unlock()

	c.notify(snapshot)
}

func (c *Controller) colorFor(d Decision) string {
	switch d {
	case Positive:
		return c.palette.Positive
	case Negative:
		return c.palette.Negative
	default:
		return c.palette.Neutral
	}
}

func (c *Controller) notify(s State) {
	for _, fn := range c.listeners {
		fn(s)
	}
}
