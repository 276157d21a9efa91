package speech

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/MrWong99/phantomlink/pkg/audio"
	"github.com/MrWong99/phantomlink/pkg/provider/stt"
)

// STTRecognizer records from an [audio.Source] and transcribes with an
// [stt.Provider].
type STTRecognizer struct {
	src      audio.Source
	provider stt.Provider
	language string
}

var _ Recognizer = (*STTRecognizer)(nil)

// NewRecognizer returns a recognizer for language (BCP-47, e.g. "en-US").
func NewRecognizer(src audio.Source, provider stt.Provider, language string) *STTRecognizer {
	return &STTRecognizer{src: src, provider: provider, language: language}
}

// Recognize implements [Recognizer]. The capture is closed as soon as the
// provider has the utterance.
func (r *STTRecognizer) Recognize(ctx context.Context) (string, error) {
	rc, err := r.src.Capture(ctx)
	if err != nil {
		return "", fmt.Errorf("speech: capture: %w", err)
	}
	defer func() {
		if err := rc.Close(); err != nil {
			slog.Debug("speech: close capture", "err", err)
		}
	}()

	f := r.src.Format()
	t, err := r.provider.Transcribe(ctx, rc, stt.Config{
		SampleRate: f.SampleRate,
		Channels:   f.Channels,
		Language:   r.language,
	})
	if err != nil {
		return "", fmt.Errorf("speech: transcribe: %w", err)
	}
	return t.Text, nil
}
