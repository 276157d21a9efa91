// Package lifecycle sequences a PhantomLink session: the session check, the
// location gate, mode selection, the simulated ghost search, the live
// conversation, and ending it.
//
// A [Controller] owns everything a conversation view needs at run time: the
// transcript, the reply animator, the ambient feedback controller, and every
// timer they create. [Controller.Close] cancels all of it. State changes are
// published as [Snapshot] values; user-facing failures as [Notice] values.
package lifecycle

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/MrWong99/phantomlink/internal/feedback"
	"github.com/MrWong99/phantomlink/internal/input"
	"github.com/MrWong99/phantomlink/internal/observe"
	"github.com/MrWong99/phantomlink/internal/reveal"
	"github.com/MrWong99/phantomlink/internal/scheduler"
	"github.com/MrWong99/phantomlink/internal/transcript"
	"github.com/MrWong99/phantomlink/internal/view"
	"github.com/MrWong99/phantomlink/pkg/audio"
	"github.com/MrWong99/phantomlink/pkg/ghostapi"
)

// State is a lifecycle stage.
type State int

const (
	Entering State = iota
	Unauthenticated
	AwaitingLocation
	ModeSelection
	Searching
	InConversation
	Ended
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case Entering:
		return "entering"
	case Unauthenticated:
		return "unauthenticated"
	case AwaitingLocation:
		return "awaiting-location"
	case ModeSelection:
		return "mode-selection"
	case Searching:
		return "searching"
	case InConversation:
		return "in-conversation"
	case Ended:
		return "ended"
	default:
		return "unknown"
	}
}

var (
	// ErrWrongState is returned when an operation is not valid in the current
	// state.
	ErrWrongState = errors.New("lifecycle: operation not allowed in current state")

	// ErrBusy is returned by Submit while a previous message is in flight.
	ErrBusy = errors.New("lifecycle: a message is already in flight")

	// ErrNotSaved is returned by End when the service did not confirm that the
	// conversation was saved.
	ErrNotSaved = errors.New("lifecycle: conversation not saved")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("lifecycle: controller closed")
)

// Store is the local persisted state the controller reads and writes.
// *localstore.Store implements it.
type Store interface {
	view.FlagReader
	SetLocationShared(ctx context.Context, shared bool) error
	SetSelectedGhost(ctx context.Context, g ghostapi.Ghost) error
	ClearSelectedGhost(ctx context.Context) error
	SelectedGhost(ctx context.Context) (ghostapi.Ghost, bool, error)
}

// Sounds are the optional audio clips the controller plays. Nil clips are
// skipped.
type Sounds struct {
	Positive audio.Clip
	Negative audio.Clip

	// Loading loops while the ghost search runs.
	Loading audio.Clip
}

// SearchStatus is what the search screen shows.
type SearchStatus struct {
	Message string
	Hint    string
	Dots    int
	Found   bool
}

// Snapshot is a consistent view of the controller for rendering.
type Snapshot struct {
	State          State
	Mode           input.Mode
	Flags          view.SessionFlags
	Location       ghostapi.Location
	Ghost          ghostapi.Ghost
	ConversationID string

	Search SearchStatus

	Reply   reveal.State
	Display string
	Ambient feedback.State

	// Echo is the user's last typed message while it is still shown.
	Echo string

	Busy  bool
	Turns []transcript.Turn
}

// Notice is a user-facing failure of a user-initiated action.
type Notice struct {
	Op  string
	Err error
}

func (n Notice) Error() string { return n.Op + ": " + n.Err.Error() }

// Option configures a [Controller].
type Option func(*Controller)

// WithConfig replaces the timing and threshold configuration.
func WithConfig(cfg Config) Option {
	return func(c *Controller) { c.cfg = cfg }
}

// WithSounds sets the audio clips.
func WithSounds(s Sounds) Option {
	return func(c *Controller) { c.sounds = s }
}

// WithListener registers fn to receive a snapshot after every change.
func WithListener(fn func(Snapshot)) Option {
	return func(c *Controller) { c.listeners = append(c.listeners, fn) }
}

// WithNoticeListener registers fn to receive user-facing failures.
func WithNoticeListener(fn func(Notice)) Option {
	return func(c *Controller) { c.noticeFns = append(c.noticeFns, fn) }
}

// WithMetrics records conversation metrics to m.
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithIDGenerator replaces the conversation ID generator.
func WithIDGenerator(fn func() string) Option {
	return func(c *Controller) { c.newID = fn }
}

// WithShuffle replaces the random permutation used to sample ghosts. fn must
// return a permutation of [0, n).
func WithShuffle(fn func(n int) []int) Option {
	return func(c *Controller) { c.perm = fn }
}

// Controller drives one session. It is safe for concurrent use.
//
// Listener callbacks run without any controller lock held and may call back
// into the controller.
type Controller struct {
	api    ghostapi.API
	store  Store
	group  *scheduler.Group
	cfg    Config
	sounds Sounds

	listeners []func(Snapshot)
	noticeFns []func(Notice)
	metrics   *observe.Metrics
	newID     func() string
	perm      func(n int) []int

	transcript *transcript.Transcript
	feedback   *feedback.Controller

	mu        sync.Mutex
	closed    bool
	state     State
	mode      input.Mode
	flags     view.SessionFlags
	location  ghostapi.Location
	ghost     ghostapi.Ghost
	convID    string
	animator  *reveal.Animator
	inflight  bool
	search    SearchStatus
	searchGrp *scheduler.Group
	hintIdx   int
	echo      string
	echoTimer scheduler.Timer
}

// New returns a controller in the Entering state. Every timer it creates goes
// through sched.
func New(api ghostapi.API, store Store, sched scheduler.Scheduler, opts ...Option) *Controller {
	c := &Controller{
		api:        api,
		store:      store,
		group:      scheduler.NewGroup(sched),
		cfg:        DefaultConfig(),
		newID:      newConversationID,
		perm:       randomPerm,
		transcript: &transcript.Transcript{},
	}
	for _, o := range opts {
		o(c)
	}

	fbOpts := []feedback.Option{
		feedback.WithCooldown(c.cfg.Cooldown),
		feedback.WithPalette(c.cfg.Palette),
		feedback.WithThresholds(c.cfg.Typed.Thresholds),
		feedback.WithListener(func(feedback.State) { c.emit() }),
		feedback.WithOnEffect(c.onEffect),
	}
	if c.sounds.Positive != nil {
		fbOpts = append(fbOpts, feedback.WithClip(feedback.Positive, c.sounds.Positive))
	}
	if c.sounds.Negative != nil {
		fbOpts = append(fbOpts, feedback.WithClip(feedback.Negative, c.sounds.Negative))
	}
	c.feedback = feedback.New(c.group, fbOpts...)
	return c
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Transcript returns the turns of the current conversation.
func (c *Controller) Transcript() []transcript.Turn { return c.transcript.Turns() }

// Snapshot returns the current state for rendering.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	s := Snapshot{
		State:          c.state,
		Mode:           c.mode,
		Flags:          c.flags,
		Location:       c.location,
		Ghost:          c.ghost,
		ConversationID: c.convID,
		Search:         c.search,
		Echo:           c.echo,
		Busy:           c.inflight,
	}
	anim := c.animator
	c.mu.Unlock()

	if anim != nil {
		s.Reply = anim.State()
		s.Display = anim.Display()
		s.Busy = s.Busy || s.Reply.IsTyping
	}
	s.Ambient = c.feedback.State()
	s.Turns = c.transcript.Turns()
	return s
}

// Busy implements [input.Submitter]: a chat request or a reveal is in flight.
func (c *Controller) Busy() bool {
	c.mu.Lock()
	inflight, anim := c.inflight, c.animator
	c.mu.Unlock()
	return inflight || (anim != nil && anim.Busy())
}

// Close cancels every timer the controller owns, stops all audio and rewinds
// it. The controller cannot be used afterwards. Close is idempotent.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	anim := c.animator
	active := c.state == InConversation
	c.mu.Unlock()

	c.group.StopAll()
	if anim != nil {
		anim.Cancel()
	}
	c.feedback.Stop()
	if c.sounds.Loading != nil {
		c.sounds.Loading.Stop()
	}
	if active && c.metrics != nil {
		c.metrics.RecordConversationAbandoned(context.Background())
	}
	slog.Debug("lifecycle: closed")
}

// Reconfigure swaps the timings, hints and thresholds. A running search keeps
// its timers and picks up new hints on the next rotation; a live conversation
// switches to the new thresholds at once. Cooldown and palette changes apply
// to the next controller.
func (c *Controller) Reconfigure(cfg Config) {
	c.mu.Lock()
	c.cfg = cfg
	live := c.state == InConversation
	mode := c.mode
	c.mu.Unlock()

	if live {
		c.feedback.SetThresholds(cfg.forMode(mode).Thresholds)
	}
	slog.Debug("lifecycle: reconfigured", "hints", len(cfg.Hints))
}

// ── internals ────────────────────────────────────────────────────────────────

func (c *Controller) setState(s State) {
	c.mu.Lock()
	prev := c.state
	c.state = s
	c.mu.Unlock()
	if prev != s {
		slog.Debug("lifecycle: state change", "from", prev, "to", s)
	}
	c.emit()
}

func (c *Controller) emit() {
	if len(c.listeners) == 0 {
		return
	}
	s := c.Snapshot()
	for _, fn := range c.listeners {
		fn(s)
	}
}

// fail logs err, turns an unauthenticated response into the Unauthenticated
// state, and publishes a notice for the user-initiated op.
func (c *Controller) fail(ctx context.Context, op string, err error) {
	observe.Logger(ctx).Warn("lifecycle: "+op+" failed", "op", op, "err", err)
	if errors.Is(err, ghostapi.ErrUnauthenticated) {
		c.setState(Unauthenticated)
	}
	n := Notice{Op: op, Err: err}
	for _, fn := range c.noticeFns {
		fn(n)
	}
}

// Notify publishes a notice raised outside the controller, such as a speech
// capture failure.
func (c *Controller) Notify(op string, err error) {
	n := Notice{Op: op, Err: err}
	for _, fn := range c.noticeFns {
		fn(n)
	}
}

func (c *Controller) onEffect(d feedback.Decision) {
	if c.metrics != nil {
		c.metrics.RecordEffect(context.Background(), d.String())
	}
}

func (c *Controller) checkOpen() error {
	if c.closed {
		return ErrClosed
	}
	return nil
}
