// Package mock provides in-memory doubles for the [audio.Source],
// [audio.Sink], and [audio.Clip] interfaces.
//
// All mocks are safe for concurrent use. They record every call so tests can
// assert on counts and arguments, and expose fields to control results.
package mock

import (
	"bytes"
	"context"
	"io"
	"sync"

	"github.com/MrWong99/phantomlink/pkg/audio"
)

// ─── Clip ─────────────────────────────────────────────────────────────────────

// Clip is a mock [audio.Clip]. Playing reports whether the clip is currently
// "playing"; Position is reset to zero by both Play and Stop.
type Clip struct {
	mu sync.Mutex

	// PlayErr is returned by Play.
	PlayErr error

	// PlayCount records how many times Play was called.
	PlayCount int

	// StopCount records how many times Stop was called.
	StopCount int

	playing bool
}

var _ audio.Clip = (*Clip)(nil)

// Play implements [audio.Clip].
func (c *Clip) Play() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.PlayCount++
	if c.PlayErr != nil {
		return c.PlayErr
	}
	c.playing = true
	return nil
}

// Stop implements [audio.Clip].
func (c *Clip) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.StopCount++
	c.playing = false
}

// Playing reports whether Play was called more recently than Stop.
func (c *Clip) Playing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.playing
}

// Plays returns PlayCount under the lock.
func (c *Clip) Plays() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.PlayCount
}

// Stops returns StopCount under the lock.
func (c *Clip) Stops() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.StopCount
}

// ─── Source ───────────────────────────────────────────────────────────────────

// Source is a mock [audio.Source] that returns Data on every capture.
type Source struct {
	mu sync.Mutex

	// Data is the payload handed out by Capture.
	Data []byte

	// PCMFormat is reported by Format. Zero means 16 kHz mono.
	PCMFormat audio.Format

	// CaptureErr is returned by Capture when non-nil.
	CaptureErr error

	// CaptureCount records how many times Capture was called.
	CaptureCount int
}

var _ audio.Source = (*Source)(nil)

// Format implements [audio.Source].
func (s *Source) Format() audio.Format {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.PCMFormat == (audio.Format{}) {
		return audio.Format{SampleRate: 16000, Channels: 1}
	}
	return s.PCMFormat
}

// Capture implements [audio.Source].
func (s *Source) Capture(_ context.Context) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CaptureCount++
	if s.CaptureErr != nil {
		return nil, s.CaptureErr
	}
	return io.NopCloser(bytes.NewReader(s.Data)), nil
}

// ─── Sink ─────────────────────────────────────────────────────────────────────

// Sink is a mock [audio.Sink] that collects every frame it receives.
type Sink struct {
	mu sync.Mutex

	// PlayErr is returned by Play after the frames are consumed.
	PlayErr error

	// Frames holds every frame received across all Play calls.
	Frames []audio.AudioFrame

	// PlayCount records how many times Play was called.
	PlayCount int
}

var _ audio.Sink = (*Sink)(nil)

// Play implements [audio.Sink].
func (s *Sink) Play(ctx context.Context, frames <-chan audio.AudioFrame) error {
	defer audio.Drain(frames)
	s.mu.Lock()
	s.PlayCount++
	s.mu.Unlock()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case f, ok := <-frames:
			if !ok {
				s.mu.Lock()
				defer s.mu.Unlock()
				return s.PlayErr
			}
			s.mu.Lock()
			s.Frames = append(s.Frames, f)
			s.mu.Unlock()
		}
	}
}

// Received returns a copy of the collected frames.
func (s *Sink) Received() []audio.AudioFrame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]audio.AudioFrame(nil), s.Frames...)
}
