// Package input turns user input into submitted conversation messages.
//
// A conversation runs in one of two modes, fixed when it starts. [Typed]
// accepts text lines; [Spoken] records an utterance, transcribes it, and speaks
// the ghost's reply aloud. Both hand the resulting [UserMessageSubmitted] to the
// same [Submitter].
package input

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrCapabilityUnavailable means the host cannot capture or synthesize
	// speech. Spoken input stays disabled for the rest of the session.
	ErrCapabilityUnavailable = errors.New("input: speech capability unavailable")

	// ErrCaptureFailed means recording or transcribing an utterance failed. The
	// user may try again.
	ErrCaptureFailed = errors.New("input: capture failed")
)

// Mode is the conversation input mode.
type Mode int

const (
	// Text is typed input with an on-screen reply.
	Text Mode = iota

	// Speech is spoken input with a spoken reply.
	Speech
)

// String returns the mode name used on the command line and in config.
func (m Mode) String() string {
	switch m {
	case Text:
		return "text"
	case Speech:
		return "speech"
	default:
		return "unknown"
	}
}

// ParseMode parses "text" or "speech".
func ParseMode(s string) (Mode, error) {
	switch s {
	case "text", "typed":
		return Text, nil
	case "speech", "spoken", "voice":
		return Speech, nil
	default:
		return 0, fmt.Errorf("input: unknown mode %q (want text or speech)", s)
	}
}

// UserMessageSubmitted is one message from the user.
type UserMessageSubmitted struct {
	Text string
	Mode Mode
}

// Reply is the ghost's answer to a submitted message.
type Reply struct {
	Text string

	// Revealed is closed once the reply has been fully shown on screen or the
	// reveal was cancelled.
	Revealed <-chan struct{}
}

// Submitter forwards messages to the ghost. The lifecycle controller
// implements it.
type Submitter interface {
	// Submit sends msg and starts revealing the reply.
	Submit(ctx context.Context, msg UserMessageSubmitted) (Reply, error)

	// Busy reports whether a request or a reveal is in flight.
	Busy() bool
}

// Channel is the input side of a conversation.
type Channel interface {
	Mode() Mode
}
