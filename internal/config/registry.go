package config

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/MrWong99/phantomlink/pkg/provider/stt"
	"github.com/MrWong99/phantomlink/pkg/provider/tts"
)

// ErrProviderNotRegistered is returned when a speech backend is requested by a
// name nobody registered.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Factory builds a speech backend from its configuration entry.
type Factory[P any] func(ProviderEntry) (P, error)

// factories is one kind's name-to-constructor table.
type factories[P any] struct {
	kind  string
	byKey map[string]Factory[P]
}

func (f *factories[P]) build(entry ProviderEntry) (P, error) {
	fn, ok := f.byKey[entry.Name]
	if !ok {
		var zero P
		return zero, fmt.Errorf("%w: %s/%q", ErrProviderNotRegistered, f.kind, entry.Name)
	}
	return fn(entry)
}

func (f *factories[P]) names() []string {
	return slices.Sorted(maps.Keys(f.byKey))
}

// Registry resolves the speech.stt and speech.tts entries of a [Config] to
// recognizer and synthesizer backends. Safe for concurrent use.
type Registry struct {
	mu  sync.RWMutex
	stt factories[stt.Provider]
	tts factories[tts.Provider]
}

// NewRegistry returns a registry with no backends.
func NewRegistry() *Registry {
	return &Registry{
		stt: factories[stt.Provider]{kind: "stt", byKey: map[string]Factory[stt.Provider]{}},
		tts: factories[tts.Provider]{kind: "tts", byKey: map[string]Factory[tts.Provider]{}},
	}
}

// RegisterSTT makes a recognizer backend available under name. A second
// registration under the same name replaces the first.
func (r *Registry) RegisterSTT(name string, fn Factory[stt.Provider]) {
	r.mu.Lock()
	r.stt.byKey[name] = fn
	r.mu.Unlock()
}

// RegisterTTS makes a synthesizer backend available under name.
func (r *Registry) RegisterTTS(name string, fn Factory[tts.Provider]) {
	r.mu.Lock()
	r.tts.byKey[name] = fn
	r.mu.Unlock()
}

// CreateSTT builds the recognizer named by entry.Name, or fails with
// [ErrProviderNotRegistered].
func (r *Registry) CreateSTT(entry ProviderEntry) (stt.Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stt.build(entry)
}

// CreateTTS builds the synthesizer named by entry.Name.
func (r *Registry) CreateTTS(entry ProviderEntry) (tts.Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tts.build(entry)
}

// Names lists the registered backends of kind ("stt" or "tts") in sorted
// order. Unknown kinds yield nil.
func (r *Registry) Names(kind string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	switch kind {
	case r.stt.kind:
		return r.stt.names()
	case r.tts.kind:
		return r.tts.names()
	}
	return nil
}
