package config

import "reflect"

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are applied; everything else is
// reported in RestartRequired.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// Toggles lists actions whose enabled flag changed.
	Toggles []ActionToggleDiff

	FuzzyThresholdChanged bool
	NewFuzzyThreshold     float64

	// RestartRequired names the sections that changed but are only read at
	// startup.
	RestartRequired []string
}

// ActionToggleDiff is a changed enabled flag.
type ActionToggleDiff struct {
	Action  string // "control", "recorder" or "mouse"
	Enabled bool
}

// Changed reports whether anything differs.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || len(d.Toggles) > 0 || d.FuzzyThresholdChanged || len(d.RestartRequired) > 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	// Log level
	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	// Action toggles, in registration order.
	toggles := []struct {
		name     string
		old, new ActionToggle
	}{
		{"control", old.Actions.Control, new.Actions.Control},
		{"recorder", old.Actions.Recorder.ActionToggle, new.Actions.Recorder.ActionToggle},
		{"mouse", old.Actions.Mouse.ActionToggle, new.Actions.Mouse.ActionToggle},
	}
	for _, tg := range toggles {
		if tg.old.IsEnabled() != tg.new.IsEnabled() {
			d.Toggles = append(d.Toggles, ActionToggleDiff{Action: tg.name, Enabled: tg.new.IsEnabled()})
		}
	}

	if old.Actions.Triggers.FuzzyThreshold != new.Actions.Triggers.FuzzyThreshold {
		d.FuzzyThresholdChanged = true
		d.NewFuzzyThreshold = new.Actions.Triggers.FuzzyThreshold
	}

	// Startup-only sections.
	if old.Server.ListenAddr != new.Server.ListenAddr {
		d.RestartRequired = append(d.RestartRequired, "server.listen_addr")
	}
	if old.Audio != new.Audio {
		d.RestartRequired = append(d.RestartRequired, "audio")
	}
	if old.Listener != new.Listener {
		d.RestartRequired = append(d.RestartRequired, "listener")
	}
	if !reflect.DeepEqual(old.Providers, new.Providers) {
		d.RestartRequired = append(d.RestartRequired, "providers")
	}
	if old.Actions.Recorder.Dir != new.Actions.Recorder.Dir || old.Actions.Mouse.Backend != new.Actions.Mouse.Backend {
		d.RestartRequired = append(d.RestartRequired, "actions")
	}

	return d
}
