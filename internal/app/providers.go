package app

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/MrWong99/phantomlink/internal/config"
	"github.com/MrWong99/phantomlink/internal/observe"
	"github.com/MrWong99/phantomlink/pkg/provider/stt"
	"github.com/MrWong99/phantomlink/pkg/provider/stt/deepgram"
	oaistt "github.com/MrWong99/phantomlink/pkg/provider/stt/openai"
	"github.com/MrWong99/phantomlink/pkg/provider/stt/whisper"
	"github.com/MrWong99/phantomlink/pkg/provider/tts"
	"github.com/MrWong99/phantomlink/pkg/provider/tts/coqui"
	"github.com/MrWong99/phantomlink/pkg/provider/tts/elevenlabs"
	oaitts "github.com/MrWong99/phantomlink/pkg/provider/tts/openai"
)

// Providers holds the speech providers. A nil field means the provider is not
// configured and the matching capability is unavailable.
type Providers struct {
	STT stt.Provider
	TTS tts.Provider
}

// RegisterBuiltinProviders wires the shipped provider factories into reg.
// Provider HTTP traffic goes through an instrumented transport.
func RegisterBuiltinProviders(reg *config.Registry) {
	client := &http.Client{Transport: &observe.Transport{}, Timeout: 30 * time.Second}

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Provider, error) {
		opts := []whisper.Option{whisper.WithHTTPClient(client)}
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		if ms := optInt(entry.Options, "silence_threshold_ms"); ms > 0 {
			opts = append(opts, whisper.WithSilenceThresholdMs(ms))
		}
		if ms := optInt(entry.Options, "max_buffer_ms"); ms > 0 {
			opts = append(opts, whisper.WithMaxBufferDurationMs(ms))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	reg.RegisterSTT("openai", func(entry config.ProviderEntry) (stt.Provider, error) {
		opts := []oaistt.Option{oaistt.WithHTTPClient(client)}
		if entry.BaseURL != "" {
			opts = append(opts, oaistt.WithBaseURL(entry.BaseURL))
		}
		if entry.Model != "" {
			opts = append(opts, oaistt.WithModel(entry.Model))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, oaistt.WithLanguage(lang))
		}
		if ms := optInt(entry.Options, "silence_threshold_ms"); ms > 0 {
			opts = append(opts, oaistt.WithSilenceThresholdMs(ms))
		}
		if ms := optInt(entry.Options, "max_buffer_ms"); ms > 0 {
			opts = append(opts, oaistt.WithMaxBufferDurationMs(ms))
		}
		return oaistt.New(entry.APIKey, opts...)
	})

	reg.RegisterSTT("deepgram", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []deepgram.Option
		if entry.BaseURL != "" {
			opts = append(opts, deepgram.WithEndpoint(entry.BaseURL))
		}
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, deepgram.WithLanguage(lang))
		}
		if ms := optInt(entry.Options, "endpointing_ms"); ms > 0 {
			opts = append(opts, deepgram.WithEndpointingMs(ms))
		}
		return deepgram.New(entry.APIKey, opts...)
	})

	reg.RegisterTTS("elevenlabs", func(entry config.ProviderEntry) (tts.Provider, error) {
		opts := []elevenlabs.Option{elevenlabs.WithHTTPClient(client)}
		if entry.Model != "" {
			opts = append(opts, elevenlabs.WithModel(entry.Model))
		}
		if f := optString(entry.Options, "output_format"); f != "" {
			opts = append(opts, elevenlabs.WithOutputFormat(f))
		}
		ws := optString(entry.Options, "ws_base")
		switch {
		case ws != "" && entry.BaseURL != "":
			opts = append(opts, elevenlabs.WithEndpoints(ws, entry.BaseURL))
		case ws != "" || entry.BaseURL != "":
			return nil, errors.New("elevenlabs: base_url and options.ws_base must be set together")
		}
		return elevenlabs.New(entry.APIKey, opts...)
	})

	reg.RegisterTTS("coqui", func(entry config.ProviderEntry) (tts.Provider, error) {
		opts := []coqui.Option{coqui.WithHTTPClient(client)}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, coqui.WithLanguage(lang))
		}
		if mode := optString(entry.Options, "api_mode"); mode != "" {
			opts = append(opts, coqui.WithAPIMode(coqui.APIMode(mode)))
		}
		return coqui.New(entry.BaseURL, opts...)
	})

	reg.RegisterTTS("openai", func(entry config.ProviderEntry) (tts.Provider, error) {
		opts := []oaitts.Option{oaitts.WithHTTPClient(client)}
		if entry.BaseURL != "" {
			opts = append(opts, oaitts.WithBaseURL(entry.BaseURL))
		}
		if entry.Model != "" {
			opts = append(opts, oaitts.WithModel(entry.Model))
		}
		return oaitts.New(entry.APIKey, opts...)
	})
}

// BuildProviders instantiates the speech providers named in cfg. Names with
// no registered factory are skipped with a warning; a failing factory is an
// error.
func BuildProviders(cfg *config.Config, reg *config.Registry) (*Providers, error) {
	ps := &Providers{}

	if name := cfg.Speech.STT.Name; name != "" {
		p, err := reg.CreateSTT(cfg.Speech.STT)
		switch {
		case errors.Is(err, config.ErrProviderNotRegistered):
			slog.Warn("provider not registered, spoken input disabled", "kind", "stt", "name", name, "known", reg.Names("stt"))
		case err != nil:
			return nil, fmt.Errorf("app: create stt provider %q: %w", name, err)
		default:
			ps.STT = p
			slog.Info("provider created", "kind", "stt", "name", name)
		}
	}

	if name := cfg.Speech.TTS.Name; name != "" {
		p, err := reg.CreateTTS(cfg.Speech.TTS)
		switch {
		case errors.Is(err, config.ErrProviderNotRegistered):
			slog.Warn("provider not registered, spoken replies disabled", "kind", "tts", "name", name, "known", reg.Names("tts"))
		case err != nil:
			return nil, fmt.Errorf("app: create tts provider %q: %w", name, err)
		default:
			ps.TTS = p
			slog.Info("provider created", "kind", "tts", "name", name)
		}
	}
	return ps, nil
}

// optString extracts a string from a provider options map.
func optString(opts map[string]any, key string) string {
	s, _ := opts[key].(string)
	return s
}

// optInt extracts an integer from a provider options map. YAML decodes whole
// numbers as int.
func optInt(opts map[string]any, key string) int {
	switch v := opts[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return 0
}
