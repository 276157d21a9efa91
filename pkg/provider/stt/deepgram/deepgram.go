// Package deepgram provides an STT provider backed by the Deepgram streaming
// WebSocket API.
//
// Audio is forwarded to Deepgram as it is read, so recognition runs while the
// speaker is still talking. Deepgram's endpointing decides when the utterance
// is over: the first result flagged speech_final ends it. When the audio stream
// ends first, the provider asks Deepgram to flush and returns what it has.
package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/coder/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/phantomlink/pkg/provider/stt"
)

const (
	defaultEndpoint    = "wss://api.deepgram.com"
	defaultModel       = "nova-3"
	defaultLanguage    = "en"
	defaultSampleRate  = 16000
	defaultEndpointing = 700

	// chunkMs is how much audio goes into one binary message.
	chunkMs = 100
)

var _ stt.Provider = (*Provider)(nil)

// Option is a functional option for configuring the Deepgram Provider.
type Option func(*Provider)

// WithModel sets the Deepgram model to use (e.g., "nova-3", "base").
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithLanguage sets the language used when the caller gives none.
func WithLanguage(language string) Option {
	return func(p *Provider) { p.language = language }
}

// WithSampleRate sets the default sample rate in Hz.
func WithSampleRate(rate int) Option {
	return func(p *Provider) { p.sampleRate = rate }
}

// WithEndpointingMs sets how long Deepgram waits in silence before it marks
// the utterance finished. Defaults to 700 ms.
func WithEndpointingMs(ms int) Option {
	return func(p *Provider) { p.endpointingMs = ms }
}

// WithEndpoint overrides the WebSocket base URL (e.g., "ws://127.0.0.1:9000").
func WithEndpoint(base string) Option {
	return func(p *Provider) { p.endpoint = strings.TrimRight(base, "/") }
}

// Provider implements stt.Provider backed by the Deepgram streaming API.
type Provider struct {
	apiKey        string
	model         string
	language      string
	sampleRate    int
	endpointingMs int
	endpoint      string
}

// New creates a new Deepgram Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:        apiKey,
		model:         defaultModel,
		language:      defaultLanguage,
		sampleRate:    defaultSampleRate,
		endpointingMs: defaultEndpointing,
		endpoint:      defaultEndpoint,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Transcribe implements stt.Provider. It streams r to Deepgram until the
// utterance is marked final or r is exhausted.
func (p *Provider) Transcribe(ctx context.Context, r io.Reader, cfg stt.Config) (stt.Transcript, error) {
	cfg = cfg.Resolve(stt.Config{SampleRate: p.sampleRate, Language: p.language})

	headers := http.Header{}
	headers.Set("Authorization", "Token "+p.apiKey)
	conn, _, err := websocket.Dial(ctx, p.listenURL(cfg), &websocket.DialOptions{HTTPHeader: headers})
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("deepgram: dial: %w", err)
	}
	defer conn.CloseNow()

	s := &session{conn: conn, done: make(chan struct{})}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.send(gctx, r, cfg) })
	g.Go(func() error { return s.receive(gctx) })
	if err := g.Wait(); err != nil {
		return stt.Transcript{}, err
	}
	conn.Close(websocket.StatusNormalClosure, "utterance complete")

	text := strings.TrimSpace(strings.Join(s.parts, " "))
	if text == "" {
		return stt.Transcript{}, stt.ErrNoSpeech
	}
	return stt.Transcript{Text: text, Language: cfg.Language}, nil
}

func (p *Provider) listenURL(cfg stt.Config) string {
	q := url.Values{}
	q.Set("model", p.model)
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(cfg.SampleRate))
	q.Set("channels", strconv.Itoa(cfg.Channels))
	q.Set("punctuate", "true")
	q.Set("interim_results", "true")
	q.Set("endpointing", strconv.Itoa(p.endpointingMs))
	if cfg.Language != "" {
		q.Set("language", cfg.Language)
	}
	return p.endpoint + "/v1/listen?" + q.Encode()
}

// ── session ──────────────────────────────────────────────────────────────────

// result is the part of a Deepgram "Results" message the provider reads.
type result struct {
	Type        string `json:"type"`
	IsFinal     bool   `json:"is_final"`
	SpeechFinal bool   `json:"speech_final"`
	Channel     struct {
		Alternatives []struct {
			Transcript string `json:"transcript"`
		} `json:"alternatives"`
	} `json:"channel"`
}

// session is one utterance in flight. done closes once the receiver has the
// final result, which stops the sender.
type session struct {
	conn     *websocket.Conn
	done     chan struct{}
	doneOnce sync.Once
	parts    []string
}

func (s *session) finish() { s.doneOnce.Do(func() { close(s.done) }) }

// send forwards r in chunkMs slices and asks for a flush when r ends.
func (s *session) send(ctx context.Context, r io.Reader, cfg stt.Config) error {
	chunk := make([]byte, cfg.SampleRate*cfg.Channels*2*chunkMs/1000)
	for {
		select {
		case <-s.done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		n, err := io.ReadFull(r, chunk)
		if n > 0 {
			if werr := s.conn.Write(ctx, websocket.MessageBinary, chunk[:n]); werr != nil {
				return s.writeErr(werr)
			}
		}
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			if werr := s.conn.Write(ctx, websocket.MessageText, []byte(`{"type":"CloseStream"}`)); werr != nil {
				return s.writeErr(werr)
			}
			return nil
		}
		if err != nil {
			return fmt.Errorf("deepgram: read audio: %w", err)
		}
	}
}

// writeErr drops write failures caused by the receiver having already
// finished the utterance.
func (s *session) writeErr(err error) error {
	select {
	case <-s.done:
		return nil
	default:
		return fmt.Errorf("deepgram: send audio: %w", err)
	}
}

// receive collects final segments until one is marked speech_final or the
// server closes the stream.
func (s *session) receive(ctx context.Context) error {
	defer s.finish()
	for {
		_, msg, err := s.conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("deepgram: read: %w", err)
		}
		var res result
		if json.Unmarshal(msg, &res) != nil || res.Type != "Results" || len(res.Channel.Alternatives) == 0 {
			continue
		}
		if !res.IsFinal {
			continue
		}
		if t := strings.TrimSpace(res.Channel.Alternatives[0].Transcript); t != "" {
			s.parts = append(s.parts, t)
		}
		if res.SpeechFinal && len(s.parts) > 0 {
			return nil
		}
	}
}
