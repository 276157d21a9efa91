package config

import (
	"reflect"
	"slices"
)

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked; everything else
// needs a restart and is reported through RestartRequired.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// ThresholdsChanged is true if either mode's sentiment bounds changed.
	ThresholdsChanged bool

	// ConversationChanged is true if any conversation timing, colour, hint or
	// threshold changed.
	ConversationChanged bool
	HintsChanged        bool

	// RestartRequired lists the sections that changed but are only read at
	// start-up.
	RestartRequired []string
}

// Empty reports whether nothing changed.
func (d ConfigDiff) Empty() bool {
	return !d.LogLevelChanged && !d.ConversationChanged && len(d.RestartRequired) == 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	oc, nc := old.Conversation, new.Conversation
	d.ThresholdsChanged = oc.Typed.Thresholds() != nc.Typed.Thresholds() ||
		oc.Spoken.Thresholds() != nc.Spoken.Thresholds()
	d.HintsChanged = !slices.Equal(oc.Search.Hints, nc.Search.Hints)

	d.ConversationChanged = !reflect.DeepEqual(oc, nc)

	if old.Server.ListenAddr != new.Server.ListenAddr {
		d.RestartRequired = append(d.RestartRequired, "server.listen_addr")
	}
	if old.API != new.API {
		d.RestartRequired = append(d.RestartRequired, "api")
	}
	if old.Sounds != new.Sounds {
		d.RestartRequired = append(d.RestartRequired, "sounds")
	}
	if !reflect.DeepEqual(old.Speech, new.Speech) {
		d.RestartRequired = append(d.RestartRequired, "speech")
	}
	if old.Storage != new.Storage {
		d.RestartRequired = append(d.RestartRequired, "storage")
	}
	return d
}
