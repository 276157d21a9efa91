package speech

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/phantomlink/internal/scheduler"
	"github.com/MrWong99/phantomlink/pkg/audio"
	"github.com/MrWong99/phantomlink/pkg/provider/tts"
)

// Voice defaults for ghost speech.
const (
	DefaultPreferredVoice = "Mark"
	DefaultLanguage       = "en-US"
	DefaultRate           = 0.9
	DefaultPitch          = 1.0
	DefaultVoicePoll      = 250 * time.Millisecond
)

// ErrNoVoice is returned when the provider reports an empty voice list and the
// caller gives up waiting.
var ErrNoVoice = errors.New("speech: no synthesis voice available")

// SynthOption configures a [TTSSynthesizer].
type SynthOption func(*TTSSynthesizer)

// WithPreferredVoice sets the voice name to look for. Default "Mark".
func WithPreferredVoice(name string) SynthOption {
	return func(s *TTSSynthesizer) { s.preferred = name }
}

// WithVoiceParams sets the language, rate and pitch applied to the chosen
// voice. Zero values keep the defaults.
func WithVoiceParams(language string, rate, pitch float64) SynthOption {
	return func(s *TTSSynthesizer) {
		if language != "" {
			s.language = language
		}
		if rate > 0 {
			s.rate = rate
		}
		if pitch > 0 {
			s.pitch = pitch
		}
	}
}

// WithVoicePoll sets how often the voice list is re-queried while it is empty.
func WithVoicePoll(d time.Duration) SynthOption {
	return func(s *TTSSynthesizer) {
		if d > 0 {
			s.poll = d
		}
	}
}

// TTSSynthesizer speaks through a [tts.Provider] into an [audio.Sink].
//
// The voice is resolved on first use and cached. While the provider's voice
// list is still empty, Speak waits and re-polls on the scheduler.
type TTSSynthesizer struct {
	provider tts.Provider
	sink     audio.Sink
	sched    scheduler.Scheduler

	preferred string
	language  string
	rate      float64
	pitch     float64
	poll      time.Duration

	mu    sync.Mutex
	voice *tts.VoiceProfile
}

var _ Synthesizer = (*TTSSynthesizer)(nil)

// NewSynthesizer returns a synthesizer using provider and sink.
func NewSynthesizer(provider tts.Provider, sink audio.Sink, sched scheduler.Scheduler, opts ...SynthOption) *TTSSynthesizer {
	s := &TTSSynthesizer{
		provider:  provider,
		sink:      sink,
		sched:     sched,
		preferred: DefaultPreferredVoice,
		language:  DefaultLanguage,
		rate:      DefaultRate,
		pitch:     DefaultPitch,
		poll:      DefaultVoicePoll,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Speak implements [Synthesizer].
func (s *TTSSynthesizer) Speak(ctx context.Context, text string) error {
	voice, err := s.Voice(ctx)
	if err != nil {
		return err
	}
	frames, err := s.provider.Synthesize(ctx, text, voice)
	if err != nil {
		return fmt.Errorf("speech: synthesize: %w", err)
	}
	if err := s.sink.Play(ctx, frames); err != nil {
		audio.Drain(frames)
		return fmt.Errorf("speech: play: %w", err)
	}
	return nil
}

// Voice returns the voice Speak uses, resolving it on first call. It blocks
// while the provider has no voices yet, polling on the scheduler.
func (s *TTSSynthesizer) Voice(ctx context.Context) (tts.VoiceProfile, error) {
	s.mu.Lock()
	if s.voice != nil {
		v := *s.voice
		s.mu.Unlock()
		return v, nil
	}
	s.mu.Unlock()

	v, ok, err := s.tryResolve(ctx)
	if err != nil {
		return tts.VoiceProfile{}, err
	}
	if ok {
		return v, nil
	}

	slog.Debug("speech: voice list empty, waiting", "poll", s.poll)
	tick := make(chan struct{}, 1)
	t := s.sched.Every(s.poll, func() {
		select {
		case tick <- struct{}{}:
		default:
		}
	})
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return tts.VoiceProfile{}, fmt.Errorf("%w: %w", ErrNoVoice, ctx.Err())
		case <-tick:
			v, ok, err := s.tryResolve(ctx)
			if err != nil {
				return tts.VoiceProfile{}, err
			}
			if ok {
				return v, nil
			}
		}
	}
}

func (s *TTSSynthesizer) tryResolve(ctx context.Context) (tts.VoiceProfile, bool, error) {
	voices, err := s.provider.ListVoices(ctx)
	if err != nil {
		return tts.VoiceProfile{}, false, fmt.Errorf("speech: list voices: %w", err)
	}
	v, ok := SelectVoice(voices, s.preferred)
	if !ok {
		return tts.VoiceProfile{}, false, nil
	}
	v.Language = s.language
	v.Rate = s.rate
	v.Pitch = s.pitch

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.voice == nil {
		s.voice = &v
		slog.Info("speech: voice selected", "voice", v.Name, "id", v.ID, "preferred", s.preferred)
	}
	return *s.voice, true, nil
}
