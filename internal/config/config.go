// Package config provides the configuration schema, loader, hot-reload
// watcher, and speech provider registry for the PhantomLink client.
package config

import "time"

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	API          APIConfig          `yaml:"api"`
	Conversation ConversationConfig `yaml:"conversation"`
	Sounds       SoundsConfig       `yaml:"sounds"`
	Speech       SpeechConfig       `yaml:"speech"`
	Storage      StorageConfig      `yaml:"storage"`
}

// ServerConfig holds logging and the optional observability listener.
type ServerConfig struct {
	// LogLevel controls verbosity. Default: info.
	LogLevel LogLevel `yaml:"log_level"`

	// ListenAddr is where /healthz, /readyz and /metrics are served
	// (e.g., "127.0.0.1:9464"). Empty disables the listener.
	ListenAddr string `yaml:"listen_addr"`
}

// APIConfig points the client at the PhantomLink backend.
type APIConfig struct {
	// BaseURL is the backend root, e.g. "http://localhost:5000".
	BaseURL string `yaml:"base_url"`

	// Timeout bounds every request. Default: 30s.
	Timeout time.Duration `yaml:"timeout"`

	// CircuitBreaker tunes the breaker guarding the backend.
	CircuitBreaker BreakerConfig `yaml:"circuit_breaker"`
}

// BreakerConfig mirrors the tunable fields of the resilience circuit breaker.
// Zero values select the breaker's own defaults.
type BreakerConfig struct {
	MaxFailures  int           `yaml:"max_failures"`
	ResetTimeout time.Duration `yaml:"reset_timeout"`
	HalfOpenMax  int           `yaml:"half_open_max"`
}

// ModeConfig holds the reveal cadence and effect thresholds of one input mode.
type ModeConfig struct {
	RevealInterval time.Duration `yaml:"reveal_interval"`
	RevealChunk    int           `yaml:"reveal_chunk"`

	// PositiveThreshold and NegativeThreshold are inclusive sentiment bounds.
	// When both are zero the mode's defaults apply.
	PositiveThreshold float64 `yaml:"positive_threshold"`
	NegativeThreshold float64 `yaml:"negative_threshold"`
}

// ColorsConfig is the ambient palette as CSS-style hex colours.
type ColorsConfig struct {
	Positive string `yaml:"positive"`
	Negative string `yaml:"negative"`
	Neutral  string `yaml:"neutral"`
}

// SearchConfig times the simulated ghost search.
type SearchConfig struct {
	FoundAfter   time.Duration `yaml:"found_after"`
	Duration     time.Duration `yaml:"duration"`
	HintInterval time.Duration `yaml:"hint_interval"`
	DotsInterval time.Duration `yaml:"dots_interval"`
	Hints        []string      `yaml:"hints"`
}

// ConversationConfig tunes the conversation experience.
type ConversationConfig struct {
	Typed  ModeConfig `yaml:"typed"`
	Spoken ModeConfig `yaml:"spoken"`

	// Cooldown is how long an ambient effect lasts. Default: 3s.
	Cooldown time.Duration `yaml:"cooldown"`

	Colors ColorsConfig `yaml:"colors"`
	Search SearchConfig `yaml:"search"`

	// EchoDuration is how long a typed message stays on screen. Default: 3s.
	EchoDuration time.Duration `yaml:"echo_duration"`

	// GhostSampleSize caps the ghosts shown per discovery. Default: 4.
	GhostSampleSize int `yaml:"ghost_sample_size"`
}

// SoundsConfig names the effect and soundtrack files and the program that
// plays them. Player may use the {file} placeholder; empty disables sounds.
type SoundsConfig struct {
	Player   string `yaml:"player"`
	Positive string `yaml:"positive"`
	Negative string `yaml:"negative"`
	Loading  string `yaml:"loading"`
}

// SpeechConfig configures spoken conversations. With no STT provider the
// spoken mode reports itself unavailable; with no TTS provider replies are
// only shown.
type SpeechConfig struct {
	STT ProviderEntry `yaml:"stt"`
	TTS ProviderEntry `yaml:"tts"`

	// PreferredVoice is matched against the TTS voice names. Default: "Mark".
	PreferredVoice string `yaml:"preferred_voice"`

	// Language is a BCP-47 tag. Default: "en-US".
	Language string `yaml:"language"`

	// Rate and Pitch are relative to 1.0. Defaults: 0.9 and 1.
	Rate  float64 `yaml:"rate"`
	Pitch float64 `yaml:"pitch"`

	// VoicePoll is how often the voice list is re-queried while empty.
	// Default: 250ms.
	VoicePoll time.Duration `yaml:"voice_poll"`

	// Source records raw 16-bit PCM to stdout; Sink plays it from stdin. Both
	// may use the {rate} and {channels} placeholders.
	Source string `yaml:"source"`
	Sink   string `yaml:"sink"`

	// SampleRate of the capture. Default: 16000.
	SampleRate int `yaml:"sample_rate"`
}

// ProviderEntry is the common configuration block shared by all provider types.
// The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "whisper").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider.
	Model string `yaml:"model"`

	// Options holds provider-specific values not covered above.
	Options map[string]any `yaml:"options"`
}

// StorageConfig locates the local state database. At most one of Path and
// DSN may be set; with neither, state lives in memory for this run only.
type StorageConfig struct {
	// Path is the SQLite file.
	Path string `yaml:"path"`

	// DSN is a PostgreSQL connection string for state shared between
	// machines.
	DSN string `yaml:"dsn"`

	// Profile separates several users' state in one database. Default:
	// "default".
	Profile string `yaml:"profile"`
}
