package config

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked: anything else
// (listen address, storage backend, providers) requires a restart.
type ConfigDiff struct {
	// LogLevelChanged is true when server.log_level changed.
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// PersonaChanged is true when any persona field changed. Live calls keep
	// the persona they started with; new calls pick up the change.
	PersonaChanged bool

	// RelayChanged is true when the TTS voice settings changed. Applies to
	// calls connected after the change.
	RelayChanged bool
}

// Empty reports whether the diff carries no changes.
func (d ConfigDiff) Empty() bool {
	return !d.LogLevelChanged && !d.PersonaChanged && !d.RelayChanged
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Persona != new.Persona {
		d.PersonaChanged = true
	}

	if old.Relay != new.Relay {
		d.RelayChanged = true
	}

	return d
}
