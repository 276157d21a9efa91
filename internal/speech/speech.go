// Package speech provides the spoken-conversation capabilities: a [Recognizer]
// that turns one microphone utterance into text and a [Synthesizer] that
// speaks a ghost reply aloud.
//
// Both are optional. A host without a microphone or without a TTS provider
// simply leaves the corresponding capability out of its [Host], and callers
// discover that through [Host.Recognizer] and [Host.Synthesizer].
package speech

import "context"

// Recognizer captures and transcribes a single utterance.
type Recognizer interface {
	// Recognize blocks until the user has finished speaking and returns the
	// recognised text.
	Recognize(ctx context.Context) (string, error)
}

// Synthesizer speaks text aloud.
type Synthesizer interface {
	// Speak blocks until text has been played back completely, ctx is
	// cancelled, or synthesis fails.
	Speak(ctx context.Context, text string) error
}

// Host reports which capabilities are available. A nil field means the
// capability is unavailable. The zero value offers nothing.
type Host struct {
	Rec Recognizer
	Syn Synthesizer
}

// Recognizer returns the recognition capability, if any.
func (h Host) Recognizer() (Recognizer, bool) { return h.Rec, h.Rec != nil }

// Synthesizer returns the synthesis capability, if any.
func (h Host) Synthesizer() (Synthesizer, bool) { return h.Syn, h.Syn != nil }
