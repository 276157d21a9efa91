package input

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/phantomlink/internal/observe"
	"github.com/MrWong99/phantomlink/internal/speech"
)

// ListeningState is the state of the spoken channel.
type ListeningState int

const (
	Idle ListeningState = iota
	Listening
	Processing
)

// String returns the state name.
func (s ListeningState) String() string {
	switch s {
	case Idle:
		return "idle"
	case Listening:
		return "listening"
	case Processing:
		return "processing"
	default:
		return "unknown"
	}
}

// Capabilities reports which speech capabilities the host offers.
// [speech.Host] implements it.
type Capabilities interface {
	Recognizer() (speech.Recognizer, bool)
	Synthesizer() (speech.Synthesizer, bool)
}

// SpokenOption configures a [Spoken] channel.
type SpokenOption func(*Spoken)

// WithStateListener registers fn to be called on every state change.
func WithStateListener(fn func(ListeningState)) SpokenOption {
	return func(s *Spoken) { s.listeners = append(s.listeners, fn) }
}

// WithNotice registers fn to receive user-facing notices: capability
// unavailability (once per session) and capture failures.
func WithNotice(fn func(error)) SpokenOption {
	return func(s *Spoken) { s.notice = fn }
}

// WithMetrics records speech latency and capture failures to m.
func WithMetrics(m *observe.Metrics) SpokenOption {
	return func(s *Spoken) { s.metrics = m }
}

// Spoken is the speech input channel.
type Spoken struct {
	sub       Submitter
	caps      Capabilities
	listeners []func(ListeningState)
	notice    func(error)
	metrics   *observe.Metrics

	mu       sync.Mutex
	state    ListeningState
	disabled bool
	ttsGone  bool
}

var _ Channel = (*Spoken)(nil)

// NewSpoken returns a spoken channel submitting to sub.
func NewSpoken(sub Submitter, caps Capabilities, opts ...SpokenOption) *Spoken {
	s := &Spoken{sub: sub, caps: caps}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Mode implements [Channel].
func (*Spoken) Mode() Mode { return Speech }

// State returns the current listening state.
func (s *Spoken) State() ListeningState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Available reports whether spoken input can still be used this session.
func (s *Spoken) Available() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disabled {
		return false
	}
	_, ok := s.caps.Recognizer()
	return ok
}

// Listen records one utterance, submits it, then waits until the reply has
// been both revealed and spoken. It blocks for the whole turn.
//
// A call while a turn is already running, or while the ghost is still busy, is
// ignored and returns nil.
func (s *Spoken) Listen(ctx context.Context) error {
	s.mu.Lock()
	if s.disabled {
		s.mu.Unlock()
		return ErrCapabilityUnavailable
	}
	rec, ok := s.caps.Recognizer()
	if !ok {
		s.disabled = true
		s.mu.Unlock()
		s.emitNotice(ErrCapabilityUnavailable)
		return ErrCapabilityUnavailable
	}
	if s.state != Idle || s.sub.Busy() {
		s.mu.Unlock()
		return nil
	}
	s.state = Listening
	s.mu.Unlock()
	s.notify(Listening)

	start := time.Now()
	text, err := rec.Recognize(ctx)
	if err == nil && strings.TrimSpace(text) == "" {
		err = errors.New("empty transcript")
	}
	if err != nil {
		s.setState(Idle)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.recordCaptureFailure(ctx)
		err = fmt.Errorf("%w: %w", ErrCaptureFailed, err)
		s.emitNotice(err)
		return err
	}
	if s.metrics != nil {
		s.metrics.RecordSpeech(ctx, "stt", time.Since(start))
	}

	s.setState(Processing)
	reply, err := s.sub.Submit(ctx, UserMessageSubmitted{Text: strings.TrimSpace(text), Mode: Speech})
	if err != nil {
		s.setState(Idle)
		return err
	}

	var wg sync.WaitGroup
	wg.Go(func() { s.speak(ctx, reply.Text) })
	select {
	case <-reply.Revealed:
	case <-ctx.Done():
	}
	wg.Wait()

	s.setState(Idle)
	return ctx.Err()
}

func (s *Spoken) speak(ctx context.Context, text string) {
	syn, ok := s.caps.Synthesizer()
	if !ok {
		s.mu.Lock()
		first := !s.ttsGone
		s.ttsGone = true
		s.mu.Unlock()
		if first {
			s.emitNotice(fmt.Errorf("%w: speech output", ErrCapabilityUnavailable))
		}
		return
	}
	start := time.Now()
	if err := syn.Speak(ctx, text); err != nil {
		if ctx.Err() == nil {
			slog.Warn("input: speak reply", "err", err)
		}
		return
	}
	if s.metrics != nil {
		s.metrics.RecordSpeech(ctx, "tts", time.Since(start))
	}
}

func (s *Spoken) recordCaptureFailure(ctx context.Context) {
	if s.metrics != nil {
		s.metrics.RecordCaptureFailure(ctx, "capture")
	}
}

func (s *Spoken) setState(st ListeningState) {
	s.mu.Lock()
	changed := s.state != st
	s.state = st
	s.mu.Unlock()
	if changed {
		s.notify(st)
	}
}

func (s *Spoken) notify(st ListeningState) {
	for _, fn := range s.listeners {
		fn(st)
	}
}

func (s *Spoken) emitNotice(err error) {
	if s.notice != nil {
		s.notice(err)
	}
}
