package lifecycle

import (
	"time"

	"github.com/MrWong99/phantomlink/internal/feedback"
	"github.com/MrWong99/phantomlink/internal/input"
	"github.com/MrWong99/phantomlink/internal/reveal"
)

// Search phase texts.
const (
	SearchingMessage = "Searching for ghosts"
	FoundMessage     = "Potential ghost connection found!"
)

// DefaultHints rotate on the search screen.
var DefaultHints = []string{
	"There are spirits all around us",
	"Try making your presence welcomed",
	"Commence a séance beforehand",
	"Try Speaking kindly. The spirits are sensitive.",
}

// ModeConfig holds the per-mode reveal cadence and feedback thresholds.
type ModeConfig struct {
	RevealInterval time.Duration
	RevealChunk    int
	Thresholds     feedback.Thresholds
}

// Config holds the controller's timings and thresholds.
type Config struct {
	Typed  ModeConfig
	Spoken ModeConfig

	Cooldown time.Duration
	Palette  feedback.Palette

	// SearchFound is when the search status flips to FoundMessage.
	SearchFound time.Duration

	// SearchDuration is when the conversation starts.
	SearchDuration time.Duration

	HintInterval time.Duration
	DotsInterval time.Duration
	Hints        []string

	// EchoDuration is how long a typed message stays on screen.
	EchoDuration time.Duration

	// GhostSample is how many ghosts DiscoverGhosts returns at most.
	GhostSample int
}

// DefaultConfig returns the stock timings.
func DefaultConfig() Config {
	return Config{
		Typed: ModeConfig{
			RevealInterval: reveal.DefaultInterval,
			RevealChunk:    reveal.DefaultChunk,
			Thresholds:     feedback.TypedThresholds,
		},
		Spoken: ModeConfig{
			RevealInterval: 50 * time.Millisecond,
			RevealChunk:    1,
			Thresholds:     feedback.SpokenThresholds,
		},
		Cooldown:       feedback.DefaultCooldown,
		Palette:        feedback.DefaultPalette,
		SearchFound:    10 * time.Second,
		SearchDuration: 15 * time.Second,
		HintInterval:   4 * time.Second,
		DotsInterval:   500 * time.Millisecond,
		Hints:          DefaultHints,
		EchoDuration:   3 * time.Second,
		GhostSample:    4,
	}
}

func (c Config) forMode(m input.Mode) ModeConfig {
	if m == input.Speech {
		return c.Spoken
	}
	return c.Typed
}
