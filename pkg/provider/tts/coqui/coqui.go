// Package coqui provides a TTS provider backed by a locally running Coqui TTS
// server.
//
// Two server APIs are supported:
//
//   - APIModeStandard (default) targets the stock Coqui TTS server
//     (ghcr.io/coqui-ai/tts-cpu): GET /api/tts for synthesis and GET /details
//     for the voice catalogue.
//   - APIModeXTTS targets the XTTS v2 API server: POST /tts_to_audio/ for
//     synthesis and GET /studio_speakers for the catalogue.
//
// Both servers answer one WAV file per request, so a reply is split into
// sentences that are synthesised concurrently and played back in order.
package coqui

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"
	"unicode"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/phantomlink/pkg/audio"
	"github.com/MrWong99/phantomlink/pkg/provider/tts"
)

var _ tts.Provider = (*Provider)(nil)

const (
	defaultLanguage = "en"
	defaultTimeout  = 30 * time.Second

	// lookahead caps the synthesis requests in flight for one reply.
	lookahead = 4

	// frameMs is the playback length of one emitted frame.
	frameMs = 100
)

// APIMode selects which Coqui server API the provider targets.
type APIMode string

const (
	APIModeStandard APIMode = "standard"
	APIModeXTTS     APIMode = "xtts"
)

// Option is a functional option for configuring a Coqui Provider.
type Option func(*Provider)

// WithLanguage sets the language used when the voice names none. Defaults to "en".
func WithLanguage(lang string) Option {
	return func(p *Provider) { p.language = lang }
}

// WithAPIMode selects the server API. Defaults to [APIModeStandard].
func WithAPIMode(mode APIMode) Option {
	return func(p *Provider) { p.apiMode = mode }
}

// WithHTTPClient replaces the HTTP client used for all requests.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.httpClient = c }
}

// Provider implements tts.Provider backed by a Coqui TTS server.
type Provider struct {
	serverURL  string
	language   string
	apiMode    APIMode
	httpClient *http.Client
}

// New creates a Provider for the server at serverURL (e.g., "http://localhost:5002").
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("coqui: serverURL must not be empty")
	}
	p := &Provider{
		serverURL:  strings.TrimRight(serverURL, "/"),
		language:   defaultLanguage,
		apiMode:    APIModeStandard,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	switch p.apiMode {
	case APIModeStandard, APIModeXTTS:
	default:
		return nil, fmt.Errorf("coqui: unknown api mode %q", p.apiMode)
	}
	return p, nil
}

// ── Synthesize ───────────────────────────────────────────────────────────────

// Synthesize splits text into sentences, requests up to lookahead of them at a
// time and emits their PCM in sentence order. The channel closes early when a
// request fails or ctx ends.
func (p *Provider) Synthesize(ctx context.Context, text string, voice tts.VoiceProfile) (<-chan audio.AudioFrame, error) {
	if voice.ID == "" && p.apiMode == APIModeXTTS {
		return nil, errors.New("coqui: voice.ID must not be empty in xtts mode")
	}
	sentences := splitSentences(text)
	if len(sentences) == 0 {
		return nil, errors.New("coqui: nothing to synthesize")
	}
	lang := p.language
	if primary, _, _ := strings.Cut(voice.Language, "-"); primary != "" {
		lang = strings.ToLower(primary)
	}

	out := make(chan audio.AudioFrame, 64)
	go func() {
		defer close(out)
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		results := make([]chan clip, len(sentences))
		for i := range results {
			results[i] = make(chan clip, 1)
		}
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(lookahead)
		go func() {
			for i, s := range sentences {
				g.Go(func() error {
					c, err := p.synthesize(gctx, s, voice.ID, lang)
					results[i] <- clip{wav: c, err: err}
					return err
				})
			}
			_ = g.Wait()
		}()

		var elapsed time.Duration
		for i, ch := range results {
			var c clip
			select {
			case c = <-ch:
			case <-ctx.Done():
				return
			}
			if c.err != nil {
				if ctx.Err() == nil {
					slog.Warn("coqui: sentence failed, stopping reply", "sentence", i, "err", c.err)
				}
				return
			}
			if !emit(ctx, out, c.wav, &elapsed) {
				return
			}
		}
	}()
	return out, nil
}

type clip struct {
	wav wavClip
	err error
}

// emit slices one sentence into frameMs frames.
func emit(ctx context.Context, out chan<- audio.AudioFrame, c wavClip, elapsed *time.Duration) bool {
	step := c.sampleRate * c.channels * 2 * frameMs / 1000
	if step <= 0 {
		step = len(c.pcm)
	}
	bytesPerSec := c.sampleRate * c.channels * 2
	for pcm := c.pcm; len(pcm) > 0; {
		n := min(step, len(pcm))
		f := audio.AudioFrame{Data: pcm[:n], SampleRate: c.sampleRate, Channels: c.channels, Timestamp: *elapsed}
		select {
		case out <- f:
		case <-ctx.Done():
			return false
		}
		if bytesPerSec > 0 {
			*elapsed += time.Duration(n) * time.Second / time.Duration(bytesPerSec)
		}
		pcm = pcm[n:]
	}
	return true
}

// synthesize fetches one sentence as WAV and strips the container.
func (p *Provider) synthesize(ctx context.Context, sentence, voiceID, lang string) (wavClip, error) {
	var (
		req *http.Request
		err error
	)
	if p.apiMode == APIModeXTTS {
		body, _ := json.Marshal(struct {
			Text       string `json:"text"`
			SpeakerWav string `json:"speaker_wav"`
			Language   string `json:"language"`
		}{sentence, voiceID, lang})
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, p.serverURL+"/tts_to_audio/", bytes.NewReader(body))
		if err == nil {
			req.Header.Set("Content-Type", "application/json")
		}
	} else {
		q := url.Values{}
		q.Set("text", sentence)
		if voiceID != "" {
			q.Set("speaker_id", voiceID)
		}
		if lang != "" {
			q.Set("language_id", lang)
		}
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, p.serverURL+"/api/tts?"+q.Encode(), nil)
	}
	if err != nil {
		return wavClip{}, fmt.Errorf("coqui: create tts request: %w", err)
	}
	req.Header.Set("Accept", "audio/wav")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return wavClip{}, fmt.Errorf("coqui: tts request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return wavClip{}, fmt.Errorf("coqui: tts request returned status %d", resp.StatusCode)
	}
	wav, err := io.ReadAll(resp.Body)
	if err != nil {
		return wavClip{}, fmt.Errorf("coqui: read WAV response: %w", err)
	}
	return parseWAV(wav)
}

// ── ListVoices ───────────────────────────────────────────────────────────────

// ListVoices returns the server's speakers. A single-speaker standard model is
// reported as one voice named after the model.
func (p *Provider) ListVoices(ctx context.Context) ([]tts.VoiceProfile, error) {
	if p.apiMode == APIModeXTTS {
		var speakers map[string]json.RawMessage
		if err := p.getJSON(ctx, "/studio_speakers", &speakers); err != nil {
			return nil, err
		}
		return profiles(slices.Sorted(maps.Keys(speakers)), map[string]string{"type": "studio"}), nil
	}

	var details struct {
		ModelName string   `json:"model_name"`
		Speakers  []string `json:"speakers"`
	}
	if err := p.getJSON(ctx, "/details", &details); err != nil {
		return nil, err
	}
	if len(details.Speakers) > 0 {
		names := slices.Sorted(slices.Values(details.Speakers))
		return profiles(names, map[string]string{"type": "speaker", "model_name": details.ModelName}), nil
	}
	name := details.ModelName
	if name == "" {
		name = "default"
	}
	return profiles([]string{name}, map[string]string{"type": "single-speaker", "model_name": name}), nil
}

func (p *Provider) getJSON(ctx context.Context, path string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.serverURL+path, nil)
	if err != nil {
		return fmt.Errorf("coqui: create list-voices request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("coqui: GET %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("coqui: GET %s returned status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("coqui: decode %s: %w", path, err)
	}
	return nil
}

func profiles(names []string, meta map[string]string) []tts.VoiceProfile {
	out := make([]tts.VoiceProfile, 0, len(names))
	for _, n := range names {
		out = append(out, tts.VoiceProfile{ID: n, Name: n, Provider: "coqui", Metadata: maps.Clone(meta)})
	}
	return out
}

// ── helpers ──────────────────────────────────────────────────────────────────

// splitSentences cuts text after '.', '!' or '?' when followed by whitespace
// or the end of text, so "Dr.Who" and "3.14" stay whole.
func splitSentences(text string) []string {
	var out []string
	start := 0
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '.', '!', '?':
			if i+1 < len(text) && !unicode.IsSpace(rune(text[i+1])) {
				continue
			}
			if s := strings.TrimSpace(text[start : i+1]); s != "" {
				out = append(out, s)
			}
			start = i + 1
		}
	}
	if s := strings.TrimSpace(text[start:]); s != "" {
		out = append(out, s)
	}
	return out
}

// wavClip is the PCM payload of a WAV file and its format.
type wavClip struct {
	pcm        []byte
	sampleRate int
	channels   int
}

// parseWAV walks the RIFF chunks for "fmt " and "data". Chunks are word
// aligned.
func parseWAV(wav []byte) (wavClip, error) {
	if len(wav) < 12 || string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		return wavClip{}, errors.New("coqui: response is not a RIFF/WAVE file")
	}
	c := wavClip{sampleRate: 22050, channels: 1}
	for off := 12; off+8 <= len(wav); {
		id := string(wav[off : off+4])
		size := int(binary.LittleEndian.Uint32(wav[off+4 : off+8]))
		body := wav[off+8:]
		switch id {
		case "fmt ":
			if size >= 16 && len(body) >= 16 {
				c.channels = int(binary.LittleEndian.Uint16(body[2:4]))
				c.sampleRate = int(binary.LittleEndian.Uint32(body[4:8]))
			}
		case "data":
			c.pcm = body[:min(size, len(body))]
			return c, nil
		}
		off += 8 + size + size%2
	}
	return wavClip{}, errors.New("coqui: WAV response missing data chunk")
}
