// Package openai provides an STT provider backed by the OpenAI transcription
// API.
//
// The API transcribes whole files, so the provider cuts one utterance out of
// the incoming PCM with [utterance.Segmenter] and uploads it as WAV.
package openai

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/MrWong99/phantomlink/pkg/provider/stt"
	"github.com/MrWong99/phantomlink/pkg/provider/stt/utterance"
)

const (
	defaultModel      = "whisper-1"
	defaultSampleRate = 16000
)

var _ stt.Provider = (*Provider)(nil)

// Provider implements stt.Provider using the OpenAI API.
type Provider struct {
	client   oai.Client
	model    string
	language string
	seg      utterance.Segmenter
}

type config struct {
	baseURL    string
	model      string
	language   string
	httpClient *http.Client
	seg        utterance.Segmenter
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// WithModel selects the transcription model. Default: "whisper-1".
func WithModel(model string) Option {
	return func(c *config) { c.model = model }
}

// WithLanguage sets the language used when the caller gives none.
func WithLanguage(lang string) Option {
	return func(c *config) { c.language = lang }
}

// WithHTTPClient replaces the HTTP client used for API requests.
func WithHTTPClient(h *http.Client) Option {
	return func(c *config) { c.httpClient = h }
}

// WithSilenceThresholdMs sets how long the speaker must be silent before the
// utterance is committed.
func WithSilenceThresholdMs(ms int) Option {
	return func(c *config) { c.seg.SilenceMs = ms }
}

// WithMaxBufferDurationMs caps the utterance length.
func WithMaxBufferDurationMs(ms int) Option {
	return func(c *config) { c.seg.MaxMs = ms }
}

// New constructs an OpenAI STT provider.
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
	return &Provider{
		client:   oai.NewClient(reqOpts...),
		model:    cfg.model,
		language: cfg.language,
		seg:      cfg.seg,
	}, nil
}

// Transcribe implements stt.Provider.
func (p *Provider) Transcribe(ctx context.Context, r io.Reader, cfg stt.Config) (stt.Transcript, error) {
	cfg = cfg.Resolve(stt.Config{SampleRate: defaultSampleRate, Language: p.language})
	pcm, err := p.seg.Read(ctx, r, cfg.SampleRate, cfg.Channels)
	if err != nil {
		return stt.Transcript{}, err
	}
	if len(pcm) == 0 {
		return stt.Transcript{}, stt.ErrNoSpeech
	}

	wav := utterance.EncodeWAV(pcm, cfg.SampleRate, cfg.Channels)
	params := oai.AudioTranscriptionNewParams{
		File:  oai.File(bytes.NewReader(wav), "audio.wav", "audio/wav"),
		Model: oai.AudioModel(p.model),
	}
	if cfg.Language != "" {
		params.Language = oai.String(cfg.Language)
	}

	res, err := p.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("openai: transcribe: %w", err)
	}
	text := strings.TrimSpace(res.Text)
	if text == "" {
		return stt.Transcript{}, stt.ErrNoSpeech
	}
	return stt.Transcript{Text: text, Language: cfg.Language}, nil
}
