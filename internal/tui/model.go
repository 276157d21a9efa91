// Package tui renders a PhantomLink session in the terminal.
//
// The [Model] is a bubbletea program driven by lifecycle snapshots delivered
// through a [Bus]. Every network operation runs as a tea.Cmd so the render
// loop never blocks.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/MrWong99/phantomlink/internal/input"
	"github.com/MrWong99/phantomlink/internal/lifecycle"
	"github.com/MrWong99/phantomlink/internal/view"
	"github.com/MrWong99/phantomlink/pkg/ghostapi"
)

// Session is the part of [lifecycle.Controller] the views drive.
type Session interface {
	EnterView(ctx context.Context, kind view.Kind) (view.Decision, error)
	ShareLocation(ctx context.Context, latitude, longitude float64) (ghostapi.Location, error)
	BeginSearch(ctx context.Context, mode input.Mode) error
	End(ctx context.Context) error
	DiscoverGhosts(ctx context.Context) ([]ghostapi.Ghost, error)
	SelectGhost(ctx context.Context, g ghostapi.Ghost) error
	History(ctx context.Context) ([]ghostapi.Conversation, error)
	Logout(ctx context.Context) error
	Snapshot() lifecycle.Snapshot
}

var _ Session = (*lifecycle.Controller)(nil)

// Listener records one spoken turn. [input.Spoken] implements it.
type Listener interface {
	Listen(ctx context.Context) error
	Available() bool
}

var _ Listener = (*input.Spoken)(nil)

// screen is the view currently shown.
type screen int

const (
	screenSession screen = iota
	screenGhosts
	screenHistory
)

// Option configures a [Model].
type Option func(*Model)

// WithStartView opens kind first: view.Home, view.Ghosts or view.History.
func WithStartView(kind view.Kind) Option {
	return func(m *Model) { m.start = kind }
}

// WithAutoStart begins a search in mode as soon as mode selection is reached.
func WithAutoStart(mode input.Mode) Option {
	return func(m *Model) {
		m.autoMode = mode
		m.autoStart = true
	}
}

// WithListener enables spoken conversations.
func WithListener(l Listener) Option {
	return func(m *Model) { m.spoken = l }
}

// WithStyles replaces the default styles.
func WithStyles(s Styles) Option {
	return func(m *Model) { m.styles = s }
}

// Model is the root bubbletea model.
type Model struct {
	ctx    context.Context
	sess   Session
	typed  *input.Typed
	spoken Listener
	bus    *Bus
	styles Styles

	start     view.Kind
	autoMode  input.Mode
	autoStart bool

	screen    screen
	snap      lifecycle.Snapshot
	listening input.ListeningState
	pending   string
	status    string

	ghosts []ghostapi.Ghost
	cursor int
	convs  []ghostapi.Conversation

	text    textinput.Model
	spinner spinner.Model
	history viewport.Model

	width, height int
}

// New returns a model for sess. Typed messages go through typed; bus must be
// the one sess publishes to.
func New(ctx context.Context, sess Session, typed *input.Typed, bus *Bus, opts ...Option) Model {
	ti := textinput.New()
	ti.CharLimit = 500
	ti.Prompt = "> "

	sp := spinner.New()
	sp.Spinner = spinner.MiniDot

	m := Model{
		ctx:     ctx,
		sess:    sess,
		typed:   typed,
		bus:     bus,
		styles:  DefaultStyles(),
		start:   view.Home,
		text:    ti,
		spinner: sp,
		history: viewport.New(80, 20),
		snap:    sess.Snapshot(),
	}
	for _, o := range opts {
		o(&m)
	}
	switch m.start {
	case view.Ghosts:
		m.screen = screenGhosts
	case view.History:
		m.screen = screenHistory
	}
	m.pending = "Checking your session"
	return m
}

// ── commands ─────────────────────────────────────────────────────────────────

type enteredMsg struct {
	kind     view.Kind
	decision view.Decision
	err      error
}

type ghostsMsg struct {
	ghosts []ghostapi.Ghost
	err    error
}

type historyMsg struct {
	convs []ghostapi.Conversation
	err   error
}

// opDoneMsg reports a finished user action. Failures reach the user through
// the notice bus, so err here only clears the pending indicator.
type opDoneMsg struct {
	op  string
	err error
}

func (m Model) enter(kind view.Kind) tea.Cmd {
	return func() tea.Msg {
		d, err := m.sess.EnterView(m.ctx, kind)
		return enteredMsg{kind: kind, decision: d, err: err}
	}
}

func (m Model) discover() tea.Cmd {
	return func() tea.Msg {
		g, err := m.sess.DiscoverGhosts(m.ctx)
		return ghostsMsg{ghosts: g, err: err}
	}
}

func (m Model) loadHistory() tea.Cmd {
	return func() tea.Msg {
		c, err := m.sess.History(m.ctx)
		return historyMsg{convs: c, err: err}
	}
}

func (m Model) run(op string, fn func(ctx context.Context) error) tea.Cmd {
	return func() tea.Msg { return opDoneMsg{op: op, err: fn(m.ctx)} }
}

// ── bubbletea ────────────────────────────────────────────────────────────────

// Init starts the entry check for the start view and subscribes to the bus.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.enter(m.start), m.bus.wait(), m.spinner.Tick, textinput.Blink)
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.text.Width = max(msg.Width-4, 10)
		m.history.Width = msg.Width
		m.history.Height = max(msg.Height-4, 3)
		return m, nil

	case snapshotMsg:
		m.applySnapshot(lifecycle.Snapshot(msg))
		return m, m.bus.wait()

	case noticeMsg:
		m.status = msg.err.Error()
		return m, m.bus.wait()

	case listeningMsg:
		m.listening = input.ListeningState(msg)
		return m, m.bus.wait()

	case busClosedMsg:
		return m, nil

	case enteredMsg:
		return m.onEntered(msg)

	case ghostsMsg:
		m.pending = ""
		if msg.err != nil {
			m.status = "Could not load ghosts: " + msg.err.Error()
			return m, nil
		}
		m.ghosts, m.cursor = msg.ghosts, 0
		return m, nil

	case historyMsg:
		m.pending = ""
		if msg.err != nil {
			m.status = "Could not load history: " + msg.err.Error()
			return m, nil
		}
		m.convs = msg.convs
		m.history.SetContent(m.renderHistory())
		m.history.GotoTop()
		return m, nil

	case opDoneMsg:
		m.pending = ""
		if msg.err == nil && msg.op == "select ghost" {
			m.status = "Ghost selected."
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		return m.onKey(msg)
	}

	var cmd tea.Cmd
	m.text, cmd = m.text.Update(msg)
	return m, cmd
}

func (m *Model) applySnapshot(s lifecycle.Snapshot) {
	prev := m.snap.State
	m.snap = s
	if prev != s.State {
		m.text.Reset()
		if m.wantsText() {
			m.text.Focus()
		} else {
			m.text.Blur()
		}
		if s.State == lifecycle.AwaitingLocation {
			m.text.Placeholder = "latitude, longitude"
		} else {
			m.text.Placeholder = "Say something to the ghost"
		}
	}
}

func (m Model) onEntered(msg enteredMsg) (tea.Model, tea.Cmd) {
	m.pending = ""
	if msg.err != nil {
		m.status = "Session check failed: " + msg.err.Error()
		return m, nil
	}
	m.applySnapshot(m.sess.Snapshot())
	if msg.decision.Outcome != view.Proceed {
		m.screen = screenSession
		return m, nil
	}
	switch msg.kind {
	case view.Ghosts:
		m.screen = screenGhosts
		m.pending = "Looking for nearby ghosts"
		return m, m.discover()
	case view.History:
		m.screen = screenHistory
		m.pending = "Loading your conversations"
		return m, m.loadHistory()
	}
	m.screen = screenSession
	if m.autoStart && m.snap.State == lifecycle.ModeSelection {
		m.autoStart = false
		return m.beginSearch(m.autoMode)
	}
	return m, nil
}

// wantsText reports whether the text field takes keystrokes in the current
// state.
func (m Model) wantsText() bool {
	switch m.snap.State {
	case lifecycle.AwaitingLocation:
		return true
	case lifecycle.InConversation:
		return m.snap.Mode == input.Text
	}
	return false
}

func (m Model) beginSearch(mode input.Mode) (tea.Model, tea.Cmd) {
	if mode == input.Speech && (m.spoken == nil || !m.spoken.Available()) {
		m.status = "Spoken conversations are not available on this machine."
		return m, nil
	}
	m.status = ""
	return m, m.run("search", func(ctx context.Context) error { return m.sess.BeginSearch(ctx, mode) })
}

// ── keys ─────────────────────────────────────────────────────────────────────

func (m Model) onKey(k tea.KeyMsg) (tea.Model, tea.Cmd) {
	if k.Type == tea.KeyCtrlC {
		return m, tea.Quit
	}
	switch m.screen {
	case screenGhosts:
		return m.onGhostsKey(k)
	case screenHistory:
		return m.onHistoryKey(k)
	}

	if m.wantsText() {
		return m.onTextKey(k)
	}

	switch m.snap.State {
	case lifecycle.Unauthenticated:
		if k.String() == "q" {
			return m, tea.Quit
		}
	case lifecycle.ModeSelection, lifecycle.Ended:
		switch k.String() {
		case "t":
			return m.beginSearch(input.Text)
		case "s":
			return m.beginSearch(input.Speech)
		case "g":
			m.pending = "Checking your location"
			return m, m.enter(view.Ghosts)
		case "h":
			m.pending = "Checking your session"
			return m, m.enter(view.History)
		case "l":
			return m, m.run("logout", m.sess.Logout)
		case "q":
			return m, tea.Quit
		}
	case lifecycle.InConversation:
		switch k.String() {
		case " ", "enter":
			if m.spoken != nil && m.listening == input.Idle {
				m.status = ""
				return m, m.run("listen", m.spoken.Listen)
			}
		case "ctrl+e":
			return m, m.run("end conversation", m.sess.End)
		}
	}
	return m, nil
}

func (m Model) onTextKey(k tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch k.Type {
	case tea.KeyCtrlE:
		if m.snap.State == lifecycle.InConversation {
			return m, m.run("end conversation", m.sess.End)
		}
	case tea.KeyEnter:
		raw := m.text.Value()
		if m.snap.State == lifecycle.AwaitingLocation {
			lat, lon, err := ParseCoordinates(raw)
			if err != nil {
				m.status = err.Error()
				return m, nil
			}
			m.text.Reset()
			m.pending = "Sharing your location"
			return m, m.run("share location", func(ctx context.Context) error {
				_, err := m.sess.ShareLocation(ctx, lat, lon)
				return err
			})
		}
		if strings.TrimSpace(raw) == "" || m.snap.Busy {
			return m, nil
		}
		m.text.Reset()
		m.status = ""
		return m, m.run("send", func(ctx context.Context) error {
			_, err := m.typed.Send(ctx, raw)
			return err
		})
	}
	var cmd tea.Cmd
	m.text, cmd = m.text.Update(k)
	return m, cmd
}

func (m Model) onGhostsKey(k tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.snap.State == lifecycle.AwaitingLocation {
		m.screen = screenSession
		return m.onKey(k)
	}
	switch k.String() {
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.ghosts)-1 {
			m.cursor++
		}
	case "r":
		m.pending = "Looking for nearby ghosts"
		return m, m.discover()
	case "enter":
		if m.cursor < len(m.ghosts) {
			g := m.ghosts[m.cursor]
			return m, m.run("select ghost", func(ctx context.Context) error { return m.sess.SelectGhost(ctx, g) })
		}
	case "esc", "b":
		return m, m.enter(view.Home)
	case "q":
		return m, tea.Quit
	}
	return m, nil
}

func (m Model) onHistoryKey(k tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch k.String() {
	case "esc", "b":
		return m, m.enter(view.Home)
	case "q":
		return m, tea.Quit
	}
	var cmd tea.Cmd
	m.history, cmd = m.history.Update(k)
	return m, cmd
}

// ParseCoordinates parses "lat, lon" or "lat lon".
func ParseCoordinates(s string) (lat, lon float64, err error) {
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' || r == '\t' })
	if len(fields) != 2 {
		return 0, 0, errors.New("enter coordinates as: latitude, longitude")
	}
	if lat, err = strconv.ParseFloat(fields[0], 64); err != nil {
		return 0, 0, fmt.Errorf("invalid latitude %q", fields[0])
	}
	if lon, err = strconv.ParseFloat(fields[1], 64); err != nil {
		return 0, 0, fmt.Errorf("invalid longitude %q", fields[1])
	}
	if lat < -90 || lat > 90 {
		return 0, 0, fmt.Errorf("latitude %v out of range", lat)
	}
	if lon < -180 || lon > 180 {
		return 0, 0, fmt.Errorf("longitude %v out of range", lon)
	}
	return lat, lon, nil
}
