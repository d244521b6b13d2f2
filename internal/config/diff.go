package config

import "reflect"

// ConfigDiff describes what changed between two configs.
// Only the log level and the pipeline section can be applied without a
// restart; provider and server changes are reported so callers can warn.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// PipelineChanged is true if any directive, sampling or voice setting changed.
	PipelineChanged bool

	// RestartRequired lists changed sections that only take effect on restart
	// (e.g. "providers.tts", "server.listen_addr").
	RestartRequired []string
}

// HotReloadable reports whether the diff contains any change that can be
// applied to a running server.
func (d ConfigDiff) HotReloadable() bool {
	return d.LogLevelChanged || d.PipelineChanged
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	// Log level
	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	d.PipelineChanged = !reflect.DeepEqual(old.Pipeline.Build(), new.Pipeline.Build())

	providers := []struct {
		name     string
		old, new ProviderEntry
	}{
		{"providers.stt", old.Providers.STT, new.Providers.STT},
		{"providers.llm", old.Providers.LLM, new.Providers.LLM},
		{"providers.back_translation_llm", old.Providers.BackTranslationLLM, new.Providers.BackTranslationLLM},
		{"providers.tts", old.Providers.TTS, new.Providers.TTS},
		{"providers.player", old.Providers.Player, new.Providers.Player},
	}
	for _, p := range providers {
		if !reflect.DeepEqual(p.old, p.new) {
			d.RestartRequired = append(d.RestartRequired, p.name)
		}
	}

	if old.Server.ListenAddr != new.Server.ListenAddr {
		d.RestartRequired = append(d.RestartRequired, "server.listen_addr")
	}
	if !reflect.DeepEqual(old.Server.TLS, new.Server.TLS) {
		d.RestartRequired = append(d.RestartRequired, "server.tls")
	}

	return d
}
