package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/vaani/internal/prompt"
)

// Server defaults applied by [ApplyDefaults].
const (
	DefaultListenAddr     = ":8080"
	DefaultMaxUploadBytes = 25 << 20
	DefaultRunsPerMinute  = 10
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"stt":    {"groq", "openai", "whisper", "whisper-native"},
	"llm":    {"groq", "openai", "anthropic", "gemini", "ollama", "deepseek", "mistral", "llamacpp", "llamafile"},
	"tts":    {"elevenlabs", "coqui"},
	"player": {"command", "none"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and validates
// the result. Useful in tests where configs are constructed from string literals.
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

// ApplyDefaults fills unset server fields in place. Pipeline defaults are
// applied by [PipelineConfig.Build].
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Server.MaxUploadBytes == 0 {
		cfg.Server.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if cfg.Server.RunsPerMinute == 0 {
		cfg.Server.RunsPerMinute = DefaultRunsPerMinute
	}
	if cfg.Providers.Player.Name == "" {
		cfg.Providers.Player.Name = "none"
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
	if cfg.Server.MaxUploadBytes < 0 {
		errs = append(errs, fmt.Errorf("server.max_upload_bytes %d must not be negative", cfg.Server.MaxUploadBytes))
	}
	if cfg.Server.RunsPerMinute < 0 {
		errs = append(errs, fmt.Errorf("server.runs_per_minute %d must not be negative", cfg.Server.RunsPerMinute))
	}
	if cfg.Server.ReloadInterval < 0 {
		errs = append(errs, fmt.Errorf("server.reload_interval %s must not be negative", cfg.Server.ReloadInterval))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	// Every stage needs a provider.
	for _, req := range []struct {
		kind string
		name string
	}{
		{"stt", cfg.Providers.STT.Name},
		{"llm", cfg.Providers.LLM.Name},
		{"tts", cfg.Providers.TTS.Name},
	} {
		if req.name == "" {
			errs = append(errs, fmt.Errorf("providers.%s.name is required", req.kind))
		}
	}

	// Provider name validation: warn for unknown provider names.
	validateProviderName("stt", cfg.Providers.STT.Name)
	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("llm", cfg.Providers.BackTranslationLLM.Name)
	validateProviderName("tts", cfg.Providers.TTS.Name)
	validateProviderName("player", cfg.Providers.Player.Name)

	errs = append(errs, validatePipeline(&cfg.Pipeline)...)
	return errors.Join(errs...)
}

func validatePipeline(p *PipelineConfig) []error {
	var errs []error

	templates := []struct {
		field string
		src   string
	}{
		{"pipeline.transcription.prompt", p.Transcription.Prompt},
		{"pipeline.generation.system", p.Generation.System},
		{"pipeline.generation.user", p.Generation.User},
		{"pipeline.back_translation.system", p.BackTranslation.System},
		{"pipeline.back_translation.user", p.BackTranslation.User},
	}
	for _, tpl := range templates {
		if tpl.src == "" {
			continue
		}
		if _, err := prompt.Parse(tpl.src); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", tpl.field, err))
		}
	}

	if t := p.Transcription.Temperature; t != nil && (*t < 0 || *t > 1) {
		errs = append(errs, fmt.Errorf("pipeline.transcription.temperature %.2f is out of range [0, 1]", *t))
	}
	for name, c := range map[string]CompletionConfig{
		"generation":       p.Generation,
		"back_translation": p.BackTranslation,
	} {
		if t := c.Temperature; t != nil && (*t < 0 || *t > 2) {
			errs = append(errs, fmt.Errorf("pipeline.%s.temperature %.2f is out of range [0, 2]", name, *t))
		}
		if tp := c.TopP; tp != nil && (*tp < 0 || *tp > 1) {
			errs = append(errs, fmt.Errorf("pipeline.%s.top_p %.2f is out of range [0, 1]", name, *tp))
		}
		if c.MaxTokens < 0 {
			errs = append(errs, fmt.Errorf("pipeline.%s.max_tokens %d must not be negative", name, c.MaxTokens))
		}
	}
	slices.SortFunc(errs, func(a, b error) int {
		switch {
		case a.Error() < b.Error():
			return -1
		case a.Error() > b.Error():
			return 1
		}
		return 0
	})
	return errs
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
