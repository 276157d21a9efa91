// Package openai provides a TTS provider backed by the OpenAI speech API.
//
// Replies are requested as raw 24 kHz 16-bit mono PCM and streamed to the
// caller in fixed-size frames while the response body arrives.
package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/MrWong99/phantomlink/pkg/audio"
	"github.com/MrWong99/phantomlink/pkg/provider/tts"
)

const (
	defaultModel = "tts-1"

	// sampleRate is fixed by the "pcm" response format.
	sampleRate = 24000

	// frameBytes is 100 ms of mono 16-bit audio at sampleRate.
	frameBytes = sampleRate / 10 * 2
)

// voices are the built-in OpenAI voices. The API offers no listing endpoint.
var voices = []string{"alloy", "ash", "coral", "echo", "fable", "nova", "onyx", "sage", "shimmer"}

var _ tts.Provider = (*Provider)(nil)

// Provider implements tts.Provider using the OpenAI API.
type Provider struct {
	client oai.Client
	model  string
}

type config struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// WithModel selects the speech model. Default: "tts-1".
func WithModel(model string) Option {
	return func(c *config) { c.model = model }
}

// WithHTTPClient replaces the HTTP client used for API requests.
func WithHTTPClient(h *http.Client) Option {
	return func(c *config) { c.httpClient = h }
}

// New constructs an OpenAI TTS provider.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("openai: apiKey must not be empty")
	}
	cfg := &config{model: defaultModel}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.httpClient != nil {
		reqOpts = append(reqOpts, option.WithHTTPClient(cfg.httpClient))
	}
	return &Provider{client: oai.NewClient(reqOpts...), model: cfg.model}, nil
}

// Synthesize implements tts.Provider. voice.Rate maps to the API speed and is
// clamped to its accepted range; pitch is not supported.
func (p *Provider) Synthesize(ctx context.Context, text string, voice tts.VoiceProfile) (<-chan audio.AudioFrame, error) {
	if voice.ID == "" {
		return nil, errors.New("openai: voice.ID must not be empty")
	}
	params := oai.AudioSpeechNewParams{
		Input:          text,
		Model:          oai.SpeechModel(p.model),
		Voice:          oai.AudioSpeechNewParamsVoice(voice.ID),
		ResponseFormat: oai.AudioSpeechNewParamsResponseFormat("pcm"),
	}
	if voice.Rate > 0 {
		params.Speed = oai.Float(min(max(voice.Rate, 0.25), 4.0))
	}

	resp, err := p.client.Audio.Speech.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai: synthesize: %w", err)
	}

	out := make(chan audio.AudioFrame, 16)
	go func() {
		defer close(out)
		defer resp.Body.Close()

		start := time.Now()
		for {
			buf := make([]byte, frameBytes)
			n, err := io.ReadFull(resp.Body, buf)
			// Keep frames sample-aligned.
			if n -= n % 2; n > 0 {
				frame := audio.AudioFrame{Data: buf[:n], SampleRate: sampleRate, Channels: 1, Timestamp: time.Since(start)}
				select {
				case out <- frame:
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				return
			}
		}
	}()
	return out, nil
}

// ListVoices implements tts.Provider.
func (p *Provider) ListVoices(context.Context) ([]tts.VoiceProfile, error) {
	out := make([]tts.VoiceProfile, 0, len(voices))
	for _, v := range voices {
		out = append(out, tts.VoiceProfile{ID: v, Name: v, Provider: "openai"})
	}
	return out, nil
}
