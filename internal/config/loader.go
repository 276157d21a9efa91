package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"regexp"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/phantomlink/internal/feedback"
	"github.com/MrWong99/phantomlink/internal/lifecycle"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"stt": {"whisper", "openai", "deepgram"},
	"tts": {"elevenlabs", "openai", "coqui"},
}

// Default speech settings.
const (
	DefaultPreferredVoice = "Mark"
	DefaultLanguage       = "en-US"
	DefaultRate           = 0.9
	DefaultPitch          = 1.0
	DefaultSampleRate     = 16000
	DefaultAPITimeout     = 30 * time.Second
)

var hexColor = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, fills in defaults and validates
// the result. An empty document yields the defaults.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a config with every default applied and no backend URL.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills every unset field of cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.API.Timeout == 0 {
		cfg.API.Timeout = DefaultAPITimeout
	}

	def := lifecycle.DefaultConfig()
	c := &cfg.Conversation
	applyModeDefaults(&c.Typed, def.Typed)
	applyModeDefaults(&c.Spoken, def.Spoken)
	setDuration(&c.Cooldown, def.Cooldown)
	setDuration(&c.EchoDuration, def.EchoDuration)
	setDuration(&c.Search.FoundAfter, def.SearchFound)
	setDuration(&c.Search.Duration, def.SearchDuration)
	setDuration(&c.Search.HintInterval, def.HintInterval)
	setDuration(&c.Search.DotsInterval, def.DotsInterval)
	if len(c.Search.Hints) == 0 {
		c.Search.Hints = slices.Clone(def.Hints)
	}
	if c.GhostSampleSize == 0 {
		c.GhostSampleSize = def.GhostSample
	}
	setString(&c.Colors.Positive, def.Palette.Positive)
	setString(&c.Colors.Negative, def.Palette.Negative)
	setString(&c.Colors.Neutral, def.Palette.Neutral)

	s := &cfg.Speech
	setString(&s.PreferredVoice, DefaultPreferredVoice)
	setString(&s.Language, DefaultLanguage)
	if s.Rate == 0 {
		s.Rate = DefaultRate
	}
	if s.Pitch == 0 {
		s.Pitch = DefaultPitch
	}
	setDuration(&s.VoicePoll, 250*time.Millisecond)
	if s.SampleRate == 0 {
		s.SampleRate = DefaultSampleRate
	}
}

func applyModeDefaults(m *ModeConfig, def lifecycle.ModeConfig) {
	setDuration(&m.RevealInterval, def.RevealInterval)
	if m.RevealChunk == 0 {
		m.RevealChunk = def.RevealChunk
	}
	if m.PositiveThreshold == 0 && m.NegativeThreshold == 0 {
		m.PositiveThreshold = def.Thresholds.Positive
		m.NegativeThreshold = def.Thresholds.Negative
	}
}

func setDuration(d *time.Duration, def time.Duration) {
	if *d == 0 {
		*d = def
	}
}

func setString(s *string, def string) {
	if *s == "" {
		*s = def
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// API
	if cfg.API.BaseURL != "" {
		u, err := url.Parse(cfg.API.BaseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, fmt.Errorf("api.base_url %q must be an absolute http(s) URL", cfg.API.BaseURL))
		}
	}
	if cfg.API.Timeout < 0 {
		errs = append(errs, fmt.Errorf("api.timeout %s must not be negative", cfg.API.Timeout))
	}
	if cb := cfg.API.CircuitBreaker; cb.MaxFailures < 0 || cb.HalfOpenMax < 0 || cb.ResetTimeout < 0 {
		errs = append(errs, errors.New("api.circuit_breaker values must not be negative"))
	}

	// Conversation
	c := cfg.Conversation
	errs = append(errs, validateMode("conversation.typed", c.Typed)...)
	errs = append(errs, validateMode("conversation.spoken", c.Spoken)...)
	if c.Cooldown < 0 {
		errs = append(errs, fmt.Errorf("conversation.cooldown %s must not be negative", c.Cooldown))
	}
	if c.Search.Duration < c.Search.FoundAfter {
		errs = append(errs, fmt.Errorf("conversation.search.duration %s must not be shorter than found_after %s", c.Search.Duration, c.Search.FoundAfter))
	}
	for i, h := range c.Search.Hints {
		if strings.TrimSpace(h) == "" {
			errs = append(errs, fmt.Errorf("conversation.search.hints[%d] is empty", i))
		}
	}
	if c.GhostSampleSize < 0 {
		errs = append(errs, fmt.Errorf("conversation.ghost_sample_size %d must not be negative", c.GhostSampleSize))
	}
	for name, v := range map[string]string{"positive": c.Colors.Positive, "negative": c.Colors.Negative, "neutral": c.Colors.Neutral} {
		if !hexColor.MatchString(v) {
			errs = append(errs, fmt.Errorf("conversation.colors.%s %q must be a #rrggbb colour", name, v))
		}
	}

	// Sounds
	if cfg.Sounds.Player == "" && (cfg.Sounds.Positive != "" || cfg.Sounds.Negative != "" || cfg.Sounds.Loading != "") {
		slog.Warn("sound files configured without sounds.player; effects will be silent")
	}

	// Storage
	if cfg.Storage.Path != "" && cfg.Storage.DSN != "" {
		errs = append(errs, errors.New("storage.path and storage.dsn are mutually exclusive"))
	}

	// Speech
	s := cfg.Speech
	validateProviderName("stt", s.STT.Name)
	validateProviderName("tts", s.TTS.Name)
	if s.STT.Name != "" && s.Source == "" {
		errs = append(errs, errors.New("speech.source is required when speech.stt is configured"))
	}
	if s.TTS.Name != "" && s.Sink == "" {
		errs = append(errs, errors.New("speech.sink is required when speech.tts is configured"))
	}
	if s.Rate < 0.1 || s.Rate > 10 {
		errs = append(errs, fmt.Errorf("speech.rate %.2f is out of range [0.1, 10]", s.Rate))
	}
	if s.Pitch < 0 || s.Pitch > 2 {
		errs = append(errs, fmt.Errorf("speech.pitch %.2f is out of range [0, 2]", s.Pitch))
	}
	if s.SampleRate < 8000 || s.SampleRate > 48000 {
		errs = append(errs, fmt.Errorf("speech.sample_rate %d is out of range [8000, 48000]", s.SampleRate))
	}

	return errors.Join(errs...)
}

func validateMode(prefix string, m ModeConfig) []error {
	var errs []error
	if m.RevealInterval <= 0 {
		errs = append(errs, fmt.Errorf("%s.reveal_interval must be positive", prefix))
	}
	if m.RevealChunk <= 0 {
		errs = append(errs, fmt.Errorf("%s.reveal_chunk must be positive", prefix))
	}
	if m.NegativeThreshold >= m.PositiveThreshold {
		errs = append(errs, fmt.Errorf("%s: negative_threshold %.2f must be below positive_threshold %.2f", prefix, m.NegativeThreshold, m.PositiveThreshold))
	}
	return errs
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	if slices.Contains(ValidProviderNames[kind], name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", ValidProviderNames[kind],
	)
}

// Thresholds returns the feedback bounds of m.
func (m ModeConfig) Thresholds() feedback.Thresholds {
	return feedback.Thresholds{Positive: m.PositiveThreshold, Negative: m.NegativeThreshold}
}

// Lifecycle converts the conversation settings into controller timings.
func (c ConversationConfig) Lifecycle() lifecycle.Config {
	return lifecycle.Config{
		Typed:          c.Typed.lifecycle(),
		Spoken:         c.Spoken.lifecycle(),
		Cooldown:       c.Cooldown,
		Palette:        feedback.Palette{Positive: c.Colors.Positive, Negative: c.Colors.Negative, Neutral: c.Colors.Neutral},
		SearchFound:    c.Search.FoundAfter,
		SearchDuration: c.Search.Duration,
		HintInterval:   c.Search.HintInterval,
		DotsInterval:   c.Search.DotsInterval,
		Hints:          slices.Clone(c.Search.Hints),
		EchoDuration:   c.EchoDuration,
		GhostSample:    c.GhostSampleSize,
	}
}

func (m ModeConfig) lifecycle() lifecycle.ModeConfig {
	return lifecycle.ModeConfig{RevealInterval: m.RevealInterval, RevealChunk: m.RevealChunk, Thresholds: m.Thresholds()}
}
