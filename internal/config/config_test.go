package config_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/MrWong99/phantomlink/internal/config"
	"github.com/MrWong99/phantomlink/internal/feedback"
	"github.com/MrWong99/phantomlink/internal/lifecycle"
	"github.com/MrWong99/phantomlink/pkg/provider/stt"
	"github.com/MrWong99/phantomlink/pkg/provider/tts"
	sttmock "github.com/MrWong99/phantomlink/pkg/provider/stt/mock"
	ttsmock "github.com/MrWong99/phantomlink/pkg/provider/tts/mock"
)

// ── helpers ──────────────────────────────────────────────────────────────────

const sampleYAML = `
server:
  log_level: debug
  listen_addr: "127.0.0.1:9464"

api:
  base_url: http://localhost:5000
  timeout: 10s
  circuit_breaker:
    max_failures: 3
    reset_timeout: 20s

conversation:
  typed:
    reveal_interval: 80ms
    reveal_chunk: 3
    positive_threshold: 4
    negative_threshold: -3
  cooldown: 2s
  search:
    found_after: 5s
    duration: 8s
    hints:
      - The walls are listening
  ghost_sample_size: 6

sounds:
  player: "paplay {file}"
  positive: sounds/positive.mp3
  negative: sounds/negative.mp3
  loading: sounds/loadingSong2.mp3

speech:
  stt:
    name: whisper
    base_url: http://localhost:8081
  tts:
    name: elevenlabs
    api_key: el-test
  preferred_voice: Daniel
  source: "arecord -q -f S16_LE -r {rate} -c {channels} -t raw"
  sink: "aplay -q -f S16_LE -r {rate} -c {channels} -t raw"

storage:
  path: /tmp/phantomlink.db
`

func mustLoad(t *testing.T, yaml string) *config.Config {
	t.Helper()
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	return cfg
}

// ── YAML loading ──────────────────────────────────────────────────────────────

func TestLoadFromReader_Sample(t *testing.T) {
	t.Parallel()
	cfg := mustLoad(t, sampleYAML)

	if cfg.Server.LogLevel != config.LogDebug || cfg.Server.ListenAddr != "127.0.0.1:9464" {
		t.Errorf("server = %+v", cfg.Server)
	}
	if cfg.API.BaseURL != "http://localhost:5000" || cfg.API.Timeout != 10*time.Second {
		t.Errorf("api = %+v", cfg.API)
	}
	if cfg.API.CircuitBreaker.MaxFailures != 3 || cfg.API.CircuitBreaker.ResetTimeout != 20*time.Second {
		t.Errorf("circuit breaker = %+v", cfg.API.CircuitBreaker)
	}

	typed := cfg.Conversation.Typed
	if typed.RevealInterval != 80*time.Millisecond || typed.RevealChunk != 3 {
		t.Errorf("typed = %+v", typed)
	}
	if got := typed.Thresholds(); got != (feedback.Thresholds{Positive: 4, Negative: -3}) {
		t.Errorf("typed thresholds = %+v", got)
	}
	if diff := cmp.Diff([]string{"The walls are listening"}, cfg.Conversation.Search.Hints); diff != "" {
		t.Errorf("hints mismatch (-want +got):\n%s", diff)
	}
	if cfg.Speech.STT.Name != "whisper" || cfg.Speech.TTS.APIKey != "el-test" || cfg.Speech.PreferredVoice != "Daniel" {
		t.Errorf("speech = %+v", cfg.Speech)
	}
	if cfg.Storage.Path != "/tmp/phantomlink.db" {
		t.Errorf("storage = %+v", cfg.Storage)
	}
}

func TestLoadFromReader_EmptyYieldsDefaults(t *testing.T) {
	t.Parallel()
	cfg := mustLoad(t, "")

	if cfg.Server.LogLevel != config.LogInfo {
		t.Errorf("log level = %q", cfg.Server.LogLevel)
	}
	if cfg.API.Timeout != config.DefaultAPITimeout {
		t.Errorf("timeout = %s", cfg.API.Timeout)
	}
	if diff := cmp.Diff(lifecycle.DefaultConfig(), cfg.Conversation.Lifecycle()); diff != "" {
		t.Errorf("conversation defaults mismatch (-want +got):\n%s", diff)
	}
	s := cfg.Speech
	if s.PreferredVoice != "Mark" || s.Language != "en-US" || s.Rate != 0.9 || s.Pitch != 1 || s.SampleRate != 16000 {
		t.Errorf("speech defaults = %+v", s)
	}
}

func TestLoadFromReader_PartialModeKeepsOtherDefaults(t *testing.T) {
	t.Parallel()
	cfg := mustLoad(t, `
conversation:
  spoken:
    reveal_chunk: 2
`)
	spoken := cfg.Conversation.Spoken
	if spoken.RevealChunk != 2 || spoken.RevealInterval != 50*time.Millisecond {
		t.Errorf("spoken = %+v", spoken)
	}
	if got := spoken.Thresholds(); got != feedback.SpokenThresholds {
		t.Errorf("spoken thresholds = %+v", got)
	}
}

func TestLoadFromReader_UnknownField(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader("server:\n  colour: blue\n"))
	if err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()
	if _, err := config.Load("/nonexistent/phantomlink.yaml"); err == nil {
		t.Fatal("expected error for missing file")
	}
}

// ── validation ───────────────────────────────────────────────────────────────

func TestValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		yaml string
		want []string
	}{
		{
			name: "invalid log level",
			yaml: "server:\n  log_level: verbose\n",
			want: []string{"server.log_level"},
		},
		{
			name: "relative base url",
			yaml: "api:\n  base_url: localhost:5000/api\n",
			want: []string{"api.base_url"},
		},
		{
			name: "inverted thresholds",
			yaml: "conversation:\n  typed:\n    positive_threshold: -1\n    negative_threshold: 2\n",
			want: []string{"conversation.typed", "negative_threshold"},
		},
		{
			name: "search shorter than found",
			yaml: "conversation:\n  search:\n    found_after: 20s\n    duration: 15s\n",
			want: []string{"conversation.search.duration"},
		},
		{
			name: "bad colour",
			yaml: "conversation:\n  colors:\n    positive: green\n",
			want: []string{"conversation.colors.positive"},
		},
		{
			name: "stt without source",
			yaml: "speech:\n  stt:\n    name: whisper\n",
			want: []string{"speech.source"},
		},
		{
			name: "tts without sink",
			yaml: "speech:\n  tts:\n    name: elevenlabs\n",
			want: []string{"speech.sink"},
		},
		{
			name: "two storage backends",
			yaml: "storage:\n  path: /tmp/state.db\n  dsn: postgres://localhost/phantomlink\n",
			want: []string{"storage.path and storage.dsn"},
		},
		{
			name: "several failures are joined",
			yaml: "server:\n  log_level: loud\nspeech:\n  rate: 40\n",
			want: []string{"server.log_level", "speech.rate"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := config.LoadFromReader(strings.NewReader(tt.yaml))
			if err == nil {
				t.Fatal("expected validation error")
			}
			for _, w := range tt.want {
				if !strings.Contains(err.Error(), w) {
					t.Errorf("error %q does not mention %q", err, w)
				}
			}
		})
	}
}

func TestValidate_Defaults(t *testing.T) {
	t.Parallel()
	if err := config.Validate(config.Default()); err != nil {
		t.Errorf("defaults must validate: %v", err)
	}
}

// ── registry ─────────────────────────────────────────────────────────────────

func TestRegistry(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()

	if _, err := reg.CreateSTT(config.ProviderEntry{Name: "whisper"}); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("CreateSTT before registration: err = %v", err)
	}
	if _, err := reg.CreateTTS(config.ProviderEntry{Name: "elevenlabs"}); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("CreateTTS before registration: err = %v", err)
	}

	var gotEntry config.ProviderEntry
	reg.RegisterSTT("whisper", func(e config.ProviderEntry) (stt.Provider, error) {
		gotEntry = e
		return &sttmock.Provider{}, nil
	})
	reg.RegisterTTS("elevenlabs", func(config.ProviderEntry) (tts.Provider, error) {
		return &ttsmock.Provider{}, nil
	})

	entry := config.ProviderEntry{Name: "whisper", BaseURL: "http://localhost:8081", Model: "base.en"}
	if p, err := reg.CreateSTT(entry); err != nil || p == nil {
		t.Fatalf("CreateSTT = (%v, %v)", p, err)
	}
	if diff := cmp.Diff(entry, gotEntry); diff != "" {
		t.Errorf("factory entry mismatch (-want +got):\n%s", diff)
	}
	if p, err := reg.CreateTTS(config.ProviderEntry{Name: "elevenlabs"}); err != nil || p == nil {
		t.Fatalf("CreateTTS = (%v, %v)", p, err)
	}

	boom := errors.New("bad key")
	reg.RegisterTTS("elevenlabs", func(config.ProviderEntry) (tts.Provider, error) { return nil, boom })
	if _, err := reg.CreateTTS(config.ProviderEntry{Name: "elevenlabs"}); !errors.Is(err, boom) {
		t.Errorf("re-registered factory not used: %v", err)
	}

	reg.RegisterSTT("openai", func(config.ProviderEntry) (stt.Provider, error) { return &sttmock.Provider{}, nil })
	if diff := cmp.Diff([]string{"openai", "whisper"}, reg.Names("stt")); diff != "" {
		t.Errorf("Names(stt) mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"elevenlabs"}, reg.Names("tts")); diff != "" {
		t.Errorf("Names(tts) mismatch (-want +got):\n%s", diff)
	}
	if got := reg.Names("llm"); got != nil {
		t.Errorf("Names(llm) = %v, want nil", got)
	}
}
