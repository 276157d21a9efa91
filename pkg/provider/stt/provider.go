// Package stt defines the Provider interface for Speech-to-Text backends.
//
// A provider turns one spoken utterance into text. The caller hands it a stream
// of raw 16-bit little-endian PCM (typically a microphone capture); the provider
// reads until the utterance ends, either because the speaker fell silent or the
// stream was exhausted, and returns the recognised text.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"
	"errors"
	"io"
	"strings"
)

// ErrNoSpeech is returned by Transcribe when the audio contained no utterance
// or the recogniser produced no text for it.
var ErrNoSpeech = errors.New("stt: no speech recognised")

// Config describes the audio format and recognition hints for one utterance.
type Config struct {
	// SampleRate is the audio sample rate in Hz. Zero selects the provider default.
	SampleRate int

	// Channels is the number of interleaved channels. Zero means mono.
	Channels int

	// Language is the BCP-47 language tag for recognition (e.g., "en-US").
	// An empty string lets the provider choose.
	Language string
}

// Resolve fills the zero fields of c from def and reduces Language to its
// primary subtag ("en-US" becomes "en"), the form batch recognisers accept.
// Channels falls back to mono when both are zero.
func (c Config) Resolve(def Config) Config {
	if c.SampleRate <= 0 {
		c.SampleRate = def.SampleRate
	}
	if c.Channels <= 0 {
		c.Channels = max(def.Channels, 1)
	}
	if c.Language == "" {
		c.Language = def.Language
	}
	if primary, _, ok := strings.Cut(c.Language, "-"); ok && primary != "" {
		c.Language = primary
	}
	return c
}

// Transcript is the recognised text of one utterance.
type Transcript struct {
	Text string

	// Language is the language the provider recognised, when it reports one.
	Language string
}

// Provider is the abstraction over any STT backend.
type Provider interface {
	// Transcribe reads PCM audio from r until the end of the first utterance and
	// returns its text. It does not close r.
	//
	// Returns [ErrNoSpeech] (possibly wrapped) when nothing was recognised.
	Transcribe(ctx context.Context, r io.Reader, cfg Config) (Transcript, error)
}
