// Package mock provides a test double for [stt.Provider].
//
// Results are consumed in order; once exhausted the last one repeats.
//
//	p := &mock.Provider{Results: []stt.Transcript{{Text: "hello"}}}
package mock

import (
	"context"
	"io"
	"sync"

	"github.com/MrWong99/phantomlink/pkg/provider/stt"
)

// TranscribeCall records one invocation of Provider.Transcribe.
type TranscribeCall struct {
	Cfg stt.Config

	// Audio is everything read from the reader.
	Audio []byte
}

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// Results are returned in order. The last entry repeats.
	Results []stt.Transcript

	// Err, if non-nil, is returned instead of a result.
	Err error

	// Block makes Transcribe wait for ctx cancellation before returning.
	Block bool

	calls []TranscribeCall
}

var _ stt.Provider = (*Provider)(nil)

// Transcribe drains r, records the call and returns the next result.
func (p *Provider) Transcribe(ctx context.Context, r io.Reader, cfg stt.Config) (stt.Transcript, error) {
	data, _ := io.ReadAll(r)

	p.mu.Lock()
	n := len(p.calls)
	p.calls = append(p.calls, TranscribeCall{Cfg: cfg, Audio: data})
	block, err := p.Block, p.Err
	var res stt.Transcript
	if len(p.Results) > 0 {
		res = p.Results[min(n, len(p.Results)-1)]
	}
	p.mu.Unlock()

	if block {
		<-ctx.Done()
		return stt.Transcript{}, ctx.Err()
	}
	if err != nil {
		return stt.Transcript{}, err
	}
	if res.Text == "" {
		return stt.Transcript{}, stt.ErrNoSpeech
	}
	return res, nil
}

// Calls returns a copy of the recorded calls.
func (p *Provider) Calls() []TranscribeCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]TranscribeCall, len(p.calls))
	copy(out, p.calls)
	return out
}
