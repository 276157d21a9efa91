package tui

import (
	"log/slog"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/MrWong99/phantomlink/internal/input"
	"github.com/MrWong99/phantomlink/internal/lifecycle"
)

// Bus carries controller events from timer and request goroutines into the
// bubbletea loop. Snapshots are coalesced: the model only ever sees the
// latest one. Notices are queued and dropped when the queue is full.
type Bus struct {
	mu     sync.Mutex
	latest lifecycle.Snapshot

	wake      chan struct{}
	notices   chan error
	listening chan input.ListeningState
	done      chan struct{}
	closeOnce sync.Once
}

// NewBus returns an empty bus.
func NewBus() *Bus {
	return &Bus{
		wake:      make(chan struct{}, 1),
		notices:   make(chan error, 16),
		listening: make(chan input.ListeningState, 4),
		done:      make(chan struct{}),
	}
}

// Snapshot publishes s. Pass it to [lifecycle.WithListener].
func (b *Bus) Snapshot(s lifecycle.Snapshot) {
	b.mu.Lock()
	b.latest = s
	b.mu.Unlock()
	select {
	case b.wake <- struct{}{}:
	default:
	}
}

// Notice publishes n. Pass it to [lifecycle.WithNoticeListener].
func (b *Bus) Notice(n lifecycle.Notice) { b.Error(n) }

// Error publishes a user-facing error.
func (b *Bus) Error(err error) {
	select {
	case b.notices <- err:
	default:
		slog.Debug("tui: notice dropped", "err", err)
	}
}

// Listening publishes a spoken-input state change.
func (b *Bus) Listening(st input.ListeningState) {
	select {
	case b.listening <- st:
	default:
	}
}

// Close releases a pending [Bus.wait]. Later publishes are ignored by the
// model.
func (b *Bus) Close() {
	b.closeOnce.Do(func() { close(b.done) })
}

type snapshotMsg lifecycle.Snapshot

type noticeMsg struct{ err error }

type listeningMsg input.ListeningState

type busClosedMsg struct{}

// wait blocks until the next event. The model re-arms it after every bus
// message so exactly one wait is outstanding.
func (b *Bus) wait() tea.Cmd {
	return func() tea.Msg {
		select {
		case <-b.wake:
			b.mu.Lock()
			s := b.latest
			b.mu.Unlock()
			return snapshotMsg(s)
		case err := <-b.notices:
			return noticeMsg{err: err}
		case st := <-b.listening:
			return listeningMsg(st)
		case <-b.done:
			return busClosedMsg{}
		}
	}
}
