// Package transcript holds the ordered record of one conversation between the
// user and a ghost.
//
// A [Transcript] is append-only for the lifetime of a conversation: turns are
// never edited or reordered. It is cleared when the conversation ends or the
// session is reset.
package transcript

import (
	"slices"
	"strings"
	"sync"
)

// Role identifies who authored a [Turn].
type Role string

const (
	RoleUser  Role = "user"
	RoleGhost Role = "ghost"
)

// IsValid reports whether r is a recognised role.
func (r Role) IsValid() bool {
	return r == RoleUser || r == RoleGhost
}

// Turn is a single immutable utterance.
type Turn struct {
	Role    Role
	Content string
}

// Transcript is an append-only, concurrency-safe sequence of turns.
// The zero value is an empty transcript ready for use.
type Transcript struct {
	mu    sync.RWMutex
	turns []Turn
}

// Append adds a turn to the end of the transcript.
func (t *Transcript) Append(turn Turn) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.turns = append(t.turns, turn)
}

// Turns returns a copy of all turns in order.
func (t *Transcript) Turns() []Turn {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return slices.Clone(t.turns)
}

// Len returns the number of turns.
func (t *Transcript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.turns)
}

// Last returns the most recent turn, if any.
func (t *Transcript) Last() (Turn, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if len(t.turns) == 0 {
		return Turn{}, false
	}
	return t.turns[len(t.turns)-1], true
}

// Clear removes every turn.
func (t *Transcript) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.turns = nil
}

// String renders the transcript in the "sender: content" block format used by
// saved conversation logs, with turns separated by a blank line.
func (t *Transcript) String() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	lines := make([]string, 0, len(t.turns))
	for _, turn := range t.turns {
		lines = append(lines, string(turn.Role)+": "+turn.Content)
	}
	return strings.Join(lines, "\n\n")
}
