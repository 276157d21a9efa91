// Package elevenlabs provides an ElevenLabs-backed TTS provider using the
// ElevenLabs streaming WebSocket API. It implements the tts.Provider interface.
package elevenlabs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/phantomlink/pkg/audio"
	"github.com/MrWong99/phantomlink/pkg/provider/tts"
)

const (
	defaultWSBase    = "wss://api.elevenlabs.io"
	defaultHTTPBase  = "https://api.elevenlabs.io"
	defaultModel     = "eleven_flash_v2_5"
	defaultOutputFmt = "pcm_16000"

	// ElevenLabs accepts speaking speeds in this range.
	minSpeed = 0.7
	maxSpeed = 1.2
)

var _ tts.Provider = (*Provider)(nil)

// Option is a functional option for configuring the ElevenLabs Provider.
type Option func(*Provider)

// WithModel sets the ElevenLabs model ID (e.g., "eleven_flash_v2_5").
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithOutputFormat sets the PCM output format (e.g., "pcm_16000", "pcm_24000").
func WithOutputFormat(format string) Option {
	return func(p *Provider) { p.outputFormat = format }
}

// WithEndpoints overrides the WebSocket and REST base URLs.
func WithEndpoints(wsBase, httpBase string) Option {
	return func(p *Provider) {
		p.wsBase = strings.TrimRight(wsBase, "/")
		p.httpBase = strings.TrimRight(httpBase, "/")
	}
}

// WithHTTPClient replaces the client used for the voices endpoint.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.httpClient = c }
}

// Provider implements tts.Provider backed by the ElevenLabs streaming API.
type Provider struct {
	apiKey       string
	model        string
	outputFormat string
	wsBase       string
	httpBase     string
	httpClient   *http.Client
}

// New creates a new ElevenLabs Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("elevenlabs: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:       apiKey,
		model:        defaultModel,
		outputFormat: defaultOutputFmt,
		wsBase:       defaultWSBase,
		httpBase:     defaultHTTPBase,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(p)
	}
	if _, err := sampleRateOf(p.outputFormat); err != nil {
		return nil, err
	}
	return p, nil
}

// ── WebSocket messages ───────────────────────────────────────────────────────

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Speed           float64 `json:"speed,omitempty"`
}

type textMessage struct {
	Text          string         `json:"text"`
	VoiceSettings *voiceSettings `json:"voice_settings,omitempty"`
	XiAPIKey      string         `json:"xi_api_key,omitempty"`
}

type audioResponse struct {
	Audio   string `json:"audio"`
	IsFinal bool   `json:"isFinal"`
	Message string `json:"message,omitempty"`
}

// Synthesize opens a WebSocket to ElevenLabs, sends text followed by a flush
// and streams back the decoded PCM as audio frames. The channel closes after
// the final chunk, on a read error, or when ctx ends.
func (p *Provider) Synthesize(ctx context.Context, text string, voice tts.VoiceProfile) (<-chan audio.AudioFrame, error) {
	if voice.ID == "" {
		return nil, errors.New("elevenlabs: voice.ID must not be empty")
	}
	rate, _ := sampleRateOf(p.outputFormat)

	conn, _, err := websocket.Dial(ctx, p.streamURL(voice), nil)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: dial: %w", err)
	}
	if err := p.sendText(ctx, conn, text, voice); err != nil {
		conn.Close(websocket.StatusInternalError, "write failed")
		return nil, fmt.Errorf("elevenlabs: send text: %w", err)
	}

	out := make(chan audio.AudioFrame, 64)
	go p.receive(ctx, conn, rate, out)
	return out, nil
}

// sendText performs the stream-input exchange: an opening message carrying the
// key and settings (the server rejects an empty first text), the utterance with
// a trailing space marking it complete, then an empty flush.
func (p *Provider) sendText(ctx context.Context, conn *websocket.Conn, text string, voice tts.VoiceProfile) error {
	for _, m := range []textMessage{
		{Text: " ", VoiceSettings: settingsFor(voice), XiAPIKey: p.apiKey},
		{Text: strings.TrimSpace(text) + " "},
		{Text: ""},
	} {
		if err := conn.Write(ctx, websocket.MessageText, mustJSON(m)); err != nil {
			return err
		}
	}
	return nil
}

// receive forwards decoded audio chunks to out until the final chunk arrives.
func (p *Provider) receive(ctx context.Context, conn *websocket.Conn, rate int, out chan<- audio.AudioFrame) {
	defer close(out)
	defer conn.Close(websocket.StatusNormalClosure, "done")

	start := time.Now()
	for {
		_, msg, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != websocket.StatusNormalClosure && ctx.Err() == nil {
				slog.Warn("elevenlabs: stream ended", "err", err)
			}
			return
		}
		var chunk audioResponse
		if json.Unmarshal(msg, &chunk) != nil {
			continue
		}
		if pcm := chunk.pcm(); len(pcm) > 0 {
			select {
			case out <- audio.AudioFrame{Data: pcm, SampleRate: rate, Channels: 1, Timestamp: time.Since(start)}:
			case <-ctx.Done():
				return
			}
		} else if chunk.Message != "" {
			slog.Warn("elevenlabs: server message", "message", chunk.Message)
		}
		if chunk.IsFinal {
			return
		}
	}
}

// pcm decodes the chunk's audio, or returns nil when it carries none.
func (r audioResponse) pcm() []byte {
	if r.Audio == "" {
		return nil
	}
	b, err := base64.StdEncoding.DecodeString(r.Audio)
	if err != nil {
		return nil
	}
	return b
}

func (p *Provider) streamURL(voice tts.VoiceProfile) string {
	q := url.Values{}
	q.Set("model_id", p.model)
	q.Set("output_format", p.outputFormat)
	if lang := baseLanguage(voice.Language); lang != "" {
		q.Set("language_code", lang)
	}
	return fmt.Sprintf("%s/v1/text-to-speech/%s/stream-input?%s", p.wsBase, url.PathEscape(voice.ID), q.Encode())
}

// settingsFor maps the profile's rate onto ElevenLabs' speed. Pitch has no
// ElevenLabs equivalent and is ignored.
func settingsFor(voice tts.VoiceProfile) *voiceSettings {
	vs := &voiceSettings{Stability: 0.5, SimilarityBoost: 0.75}
	if voice.Rate > 0 {
		vs.Speed = min(max(voice.Rate, minSpeed), maxSpeed)
	}
	return vs
}

// ── ListVoices ───────────────────────────────────────────────────────────────

type voicesResponse struct {
	Voices []elevenLabsVoice `json:"voices"`
}

type elevenLabsVoice struct {
	VoiceID  string            `json:"voice_id"`
	Name     string            `json:"name"`
	Category string            `json:"category"`
	Labels   map[string]string `json:"labels"`
}

// ListVoices returns all voices available for the configured API key.
func (p *Provider) ListVoices(ctx context.Context) ([]tts.VoiceProfile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.httpBase+"/v1/voices", nil)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices: %w", err)
	}
	req.Header.Set("xi-api-key", p.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices HTTP: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("elevenlabs: list voices: unexpected status %d", resp.StatusCode)
	}

	var vr voicesResponse
	if err := json.NewDecoder(resp.Body).Decode(&vr); err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices decode: %w", err)
	}
	return toProfiles(vr), nil
}

// ── helpers ──────────────────────────────────────────────────────────────────

func toProfiles(vr voicesResponse) []tts.VoiceProfile {
	profiles := make([]tts.VoiceProfile, 0, len(vr.Voices))
	for _, v := range vr.Voices {
		meta := make(map[string]string, len(v.Labels)+1)
		maps.Copy(meta, v.Labels)
		if v.Category != "" {
			meta["category"] = v.Category
		}
		profiles = append(profiles, tts.VoiceProfile{
			ID:       v.VoiceID,
			Name:     v.Name,
			Provider: "elevenlabs",
			Metadata: meta,
		})
	}
	return profiles
}

// sampleRateOf extracts the rate from a "pcm_<rate>" output format.
func sampleRateOf(format string) (int, error) {
	r, ok := strings.CutPrefix(format, "pcm_")
	if !ok {
		return 0, fmt.Errorf("elevenlabs: unsupported output format %q (want pcm_<rate>)", format)
	}
	rate, err := strconv.Atoi(r)
	if err != nil || rate <= 0 {
		return 0, fmt.Errorf("elevenlabs: invalid sample rate in output format %q", format)
	}
	return rate, nil
}

// baseLanguage turns "en-US" into "en".
func baseLanguage(tag string) string {
	lang, _, _ := strings.Cut(tag, "-")
	return strings.ToLower(lang)
}

func mustJSON(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
