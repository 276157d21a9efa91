// Package tts defines the Provider interface for text-to-speech backends used to
// voice ghost replies in spoken conversations.
//
// A provider synthesizes one reply at a time and streams PCM audio frames back
// as they become available, so playback can start before synthesis finishes.
//
// Implementations must be safe for concurrent use.
package tts

import (
	"context"

	"github.com/MrWong99/phantomlink/pkg/audio"
)

// VoiceProfile describes a synthesis voice.
type VoiceProfile struct {
	// ID is the provider-specific voice identifier.
	ID string

	// Name is the human-readable voice name, used for preferred-voice matching.
	Name string

	// Provider identifies which TTS provider this voice belongs to.
	Provider string

	// Language is the BCP-47 tag the voice should speak (e.g., "en-US").
	Language string

	// Rate scales the speaking rate; 1.0 is the voice's natural speed.
	Rate float64

	// Pitch scales the pitch; 1.0 is the voice's natural pitch.
	Pitch float64

	// Metadata holds provider-specific attributes (gender, accent, ...).
	Metadata map[string]string
}

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize converts text to speech. The returned channel emits audio
	// frames and is closed when synthesis completes or ctx is cancelled. The
	// caller must drain it.
	//
	// A non-nil error means synthesis could not be started. Failures after the
	// stream has started close the channel early.
	Synthesize(ctx context.Context, text string, voice VoiceProfile) (<-chan audio.AudioFrame, error)

	// ListVoices returns the voices currently offered by the provider. The
	// list may be empty while the provider is still loading its catalogue.
	ListVoices(ctx context.Context) ([]VoiceProfile, error)
}
