// Package audio defines the local audio devices used by PhantomLink: a
// [Source] that captures one spoken utterance, a [Sink] that plays a stream of
// synthesized speech, and a [Clip] that plays a short sound effect or a looping
// soundtrack.
//
// The bundled implementations shell out to a configurable player or recorder
// program (for example ffplay, aplay, or arecord). Tests use the in-memory
// doubles from audio/mock.
package audio

import (
	"context"
	"io"
	"time"
)

// AudioFrame is a chunk of PCM audio.
type AudioFrame struct {
	// Data is little-endian 16-bit PCM.
	Data []byte

	// SampleRate in Hz (e.g., 16000 for STT input, 22050 for TTS output).
	SampleRate int

	// Channels: 1 for mono, 2 for stereo.
	Channels int

	// Timestamp marks the frame position relative to stream start.
	Timestamp time.Duration
}

// Format describes the sample rate and channel count of an audio stream.
type Format struct {
	SampleRate int
	Channels   int
}

// Source captures microphone input.
//
// Implementations must be safe for concurrent use, although callers normally
// hold at most one capture open at a time.
type Source interface {
	// Format reports the PCM format Capture produces.
	Format() Format

	// Capture starts recording. The returned reader yields raw 16-bit
	// little-endian PCM in the source's [Format] and must be closed by the
	// caller, which ends the recording. Cancelling ctx aborts it as well.
	Capture(ctx context.Context) (io.ReadCloser, error)
}

// Sink plays streamed audio.
type Sink interface {
	// Play consumes frames until the channel is closed or ctx is cancelled and
	// blocks until playback has finished. Remaining frames are drained on
	// cancellation so the producer never blocks.
	Play(ctx context.Context, frames <-chan AudioFrame) error
}

// Clip is a short, restartable sound.
//
// Play always starts from the beginning, interrupting any playback already in
// progress. Stop halts playback and rewinds, so the next Play starts from the
// beginning again. Both are safe for concurrent use.
type Clip interface {
	Play() error
	Stop()
}
