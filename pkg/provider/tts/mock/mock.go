// Package mock provides a test double for the tts.Provider interface.
//
// Example:
//
//	p := &mock.Provider{
//	    Chunks:           [][]byte{[]byte("audio1"), []byte("audio2")},
//	    ListVoicesResult: []tts.VoiceProfile{{ID: "v1", Name: "Mark"}},
//	}
//	frames, _ := p.Synthesize(ctx, "Boo!", voice)
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/phantomlink/pkg/audio"
	"github.com/MrWong99/phantomlink/pkg/provider/tts"
)

// SynthesizeCall records a single invocation of Synthesize.
type SynthesizeCall struct {
	Text  string
	Voice tts.VoiceProfile
}

// Provider is a mock implementation of tts.Provider.
type Provider struct {
	mu sync.Mutex

	// Chunks are emitted as 16 kHz mono frames by Synthesize.
	Chunks [][]byte

	// SynthesizeErr, if non-nil, is returned by Synthesize.
	SynthesizeErr error

	// ListVoicesResult is returned by ListVoices.
	ListVoicesResult []tts.VoiceProfile

	// ListVoicesErr, if non-nil, is returned by ListVoices.
	ListVoicesErr error

	synthesizeCalls []SynthesizeCall
	listVoicesCalls int
}

var _ tts.Provider = (*Provider)(nil)

// Synthesize records the call and returns a channel that emits Chunks then
// closes.
func (p *Provider) Synthesize(ctx context.Context, text string, voice tts.VoiceProfile) (<-chan audio.AudioFrame, error) {
	p.mu.Lock()
	p.synthesizeCalls = append(p.synthesizeCalls, SynthesizeCall{Text: text, Voice: voice})
	if p.SynthesizeErr != nil {
		err := p.SynthesizeErr
		p.mu.Unlock()
		return nil, err
	}
	chunks := make([][]byte, len(p.Chunks))
	copy(chunks, p.Chunks)
	p.mu.Unlock()

	ch := make(chan audio.AudioFrame, len(chunks))
	go func() {
		defer close(ch)
		for _, c := range chunks {
			select {
			case <-ctx.Done():
				return
			case ch <- audio.AudioFrame{Data: c, SampleRate: 16000, Channels: 1}:
			}
		}
	}()
	return ch, nil
}

// SetVoices replaces ListVoicesResult. Thread-safe.
func (p *Provider) SetVoices(v []tts.VoiceProfile) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ListVoicesResult = v
}

// ListVoices records the call and returns ListVoicesResult, ListVoicesErr.
func (p *Provider) ListVoices(context.Context) ([]tts.VoiceProfile, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listVoicesCalls++
	return p.ListVoicesResult, p.ListVoicesErr
}

// SynthesizeCalls returns a copy of the recorded Synthesize calls.
func (p *Provider) SynthesizeCalls() []SynthesizeCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]SynthesizeCall, len(p.synthesizeCalls))
	copy(out, p.synthesizeCalls)
	return out
}

// ListVoicesCalls returns how often ListVoices was called.
func (p *Provider) ListVoicesCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.listVoicesCalls
}
