// Package whisper provides an STT provider backed by a whisper.cpp server.
//
// It talks to a running whisper-server binary (REST API at POST /inference).
// whisper.cpp is a batch engine, so the provider cuts one utterance out of the
// incoming PCM with [utterance.Segmenter] and uploads it as a WAV file.
//
// Usage:
//
//	p, err := whisper.New("http://localhost:8080",
//	    whisper.WithLanguage("en"),
//	    whisper.WithSilenceThresholdMs(700),
//	)
//	t, err := p.Transcribe(ctx, micStream, stt.Config{SampleRate: 16000})
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"mime/multipart"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/MrWong99/phantomlink/pkg/provider/stt"
	"github.com/MrWong99/phantomlink/pkg/provider/stt/utterance"
)

const (
	defaultLanguage   = "en"
	defaultSampleRate = 16000
)

var _ stt.Provider = (*Provider)(nil)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithModel sets the model identifier forwarded to the server (e.g., "base.en").
// Empty uses whichever model the server was started with.
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithLanguage sets the default language sent to the server. Defaults to "en".
func WithLanguage(lang string) Option {
	return func(p *Provider) { p.language = lang }
}

// WithSampleRate sets the default sample rate in Hz. Defaults to 16000.
func WithSampleRate(rate int) Option {
	return func(p *Provider) { p.sampleRate = rate }
}

// WithSilenceThresholdMs sets how long the speaker must be silent before the
// utterance is committed. Defaults to 700 ms.
func WithSilenceThresholdMs(ms int) Option {
	return func(p *Provider) { p.silenceThresholdMs = ms }
}

// WithMaxBufferDurationMs caps the utterance length. Defaults to 15 s.
func WithMaxBufferDurationMs(ms int) Option {
	return func(p *Provider) { p.maxBufferDurationMs = ms }
}

// WithHTTPClient replaces the HTTP client used for inference requests.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.httpClient = c }
}

// Provider implements stt.Provider backed by a whisper.cpp HTTP server.
type Provider struct {
	serverURL           string
	model               string
	language            string
	sampleRate          int
	silenceThresholdMs  int
	maxBufferDurationMs int
	httpClient          *http.Client
}

// New creates a Provider for the whisper.cpp server at serverURL
// (e.g., "http://localhost:8080").
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("whisper: serverURL must not be empty")
	}
	p := &Provider{
		serverURL:           strings.TrimRight(serverURL, "/"),
		language:            defaultLanguage,
		sampleRate:          defaultSampleRate,
		silenceThresholdMs:  utterance.DefaultSilenceMs,
		maxBufferDurationMs: utterance.DefaultMaxMs,
		httpClient:          &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Transcribe implements stt.Provider.
func (p *Provider) Transcribe(ctx context.Context, r io.Reader, cfg stt.Config) (stt.Transcript, error) {
	cfg = cfg.Resolve(stt.Config{SampleRate: p.sampleRate, Language: p.language})

	seg := utterance.Segmenter{SilenceMs: p.silenceThresholdMs, MaxMs: p.maxBufferDurationMs}
	pcm, err := seg.Read(ctx, r, cfg.SampleRate, cfg.Channels)
	if err != nil {
		return stt.Transcript{}, err
	}
	if len(pcm) == 0 {
		return stt.Transcript{}, stt.ErrNoSpeech
	}

	text, err := p.infer(ctx, utterance.EncodeWAV(pcm, cfg.SampleRate, cfg.Channels), cfg.Language)
	if err != nil {
		return stt.Transcript{}, err
	}
	if text = strings.TrimSpace(text); text == "" {
		return stt.Transcript{}, stt.ErrNoSpeech
	}
	return stt.Transcript{Text: text, Language: cfg.Language}, nil
}

// infer uploads one WAV utterance to POST /inference and returns the text.
func (p *Provider) infer(ctx context.Context, wav []byte, lang string) (string, error) {
	body, contentType, err := inferenceForm(wav, map[string]string{
		"response_format": "json",
		"language":        lang,
		"model":           p.model,
	})
	if err != nil {
		return "", fmt.Errorf("whisper: build request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.serverURL+"/inference", body)
	if err != nil {
		return "", fmt.Errorf("whisper: create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("whisper: inference: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return "", fmt.Errorf("whisper: server returned HTTP %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}
	var out struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("whisper: decode response: %w", err)
	}
	return out.Text, nil
}

// inferenceForm encodes wav as the "file" part followed by the non-empty
// fields in sorted order.
func inferenceForm(wav []byte, fields map[string]string) (io.Reader, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return nil, "", err
	}
	if _, err := fw.Write(wav); err != nil {
		return nil, "", err
	}
	for _, k := range slices.Sorted(maps.Keys(fields)) {
		if v := fields[k]; v != "" {
			if err := mw.WriteField(k, v); err != nil {
				return nil, "", err
			}
		}
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return &buf, mw.FormDataContentType(), nil
}
