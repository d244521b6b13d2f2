// Package config provides the configuration schema, loader, and provider registry
// for the vaani voice relay.
package config

import (
	"time"

	"github.com/MrWong99/vaani/internal/pipeline"
	"github.com/MrWong99/vaani/internal/prompt"
)

// LogLevel controls log verbosity for the vaani server.
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

// Config is the root configuration structure for vaani.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Providers ProvidersConfig `yaml:"providers"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
}

// ServerConfig holds network and logging settings for the vaani server.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`

	// AllowedOrigins lists the CORS origins allowed to call the API. Empty
	// allows any origin.
	AllowedOrigins []string `yaml:"allowed_origins"`

	// MaxUploadBytes caps the size of an uploaded capture.
	MaxUploadBytes int64 `yaml:"max_upload_bytes"`

	// RunsPerMinute limits run creation per client IP. 0 disables limiting.
	RunsPerMinute int `yaml:"runs_per_minute"`

	// SpoolDir is where captures are staged during a run. Empty uses the
	// system temp directory.
	SpoolDir string `yaml:"spool_dir"`

	// ReloadInterval is the config file polling interval. 0 disables reload.
	ReloadInterval time.Duration `yaml:"reload_interval"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	// CertFile is the path to the PEM-encoded TLS certificate.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM-encoded TLS private key.
	KeyFile string `yaml:"key_file"`
}

// ProvidersConfig declares which provider implementation to use for each
// pipeline stage. Each field selects a named provider registered in the [Registry].
type ProvidersConfig struct {
	STT ProviderEntry `yaml:"stt"`
	LLM ProviderEntry `yaml:"llm"`

	// BackTranslationLLM optionally selects a separate model for
	// back-translation. When Name is empty the LLM entry is reused.
	BackTranslationLLM ProviderEntry `yaml:"back_translation_llm"`

	TTS    ProviderEntry `yaml:"tts"`
	Player ProviderEntry `yaml:"player"`
}

// ProviderEntry is the common configuration block shared by all provider types.
// The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "groq", "elevenlabs").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any. Prefer
	// APIKeyEnv to keep secrets out of the file.
	APIKey string `yaml:"api_key"`

	// APIKeyEnv names the environment variable holding the API key. When both
	// are empty a provider-specific default (e.g. GROQ_API_KEY) is used.
	APIKeyEnv string `yaml:"api_key_env"`

	// BaseURL overrides the provider's default API endpoint.
	// Leave empty to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g., "whisper-large-v3").
	Model string `yaml:"model"`

	// Options holds provider-specific configuration values not covered by the
	// standard fields above. Decode them with [DecodeOptions].
	Options map[string]any `yaml:"options"`
}

// PipelineConfig holds the directive templates and sampling settings of the
// relay. Every unset field keeps its [pipeline.DefaultConfig] value.
type PipelineConfig struct {
	Languages       LanguagesConfig     `yaml:"languages"`
	Transcription   TranscriptionConfig `yaml:"transcription"`
	Generation      CompletionConfig    `yaml:"generation"`
	BackTranslation CompletionConfig    `yaml:"back_translation"`
	Synthesis       SynthesisConfig     `yaml:"synthesis"`
}

// LanguagesConfig names the languages rendered into directive templates.
type LanguagesConfig struct {
	// Source is the spoken input language (e.g. "Hindi").
	Source string `yaml:"source"`
	// Target is the language replies are spoken in.
	Target string `yaml:"target"`
	// Working is the language the assistant model reasons in.
	Working string `yaml:"working"`
}

// TranscriptionConfig overrides the speech translation request.
type TranscriptionConfig struct {
	Prompt         string   `yaml:"prompt"`
	ResponseFormat string   `yaml:"response_format"`
	Temperature    *float64 `yaml:"temperature"`
}

// CompletionConfig overrides one language model stage.
type CompletionConfig struct {
	System      string   `yaml:"system"`
	User        string   `yaml:"user"`
	Temperature *float64 `yaml:"temperature"`
	TopP        *float64 `yaml:"top_p"`
	MaxTokens   int      `yaml:"max_tokens"`
}

// SynthesisConfig overrides the speech synthesis request.
type SynthesisConfig struct {
	VoiceID      string `yaml:"voice_id"`
	Model        string `yaml:"model"`
	OutputFormat string `yaml:"output_format"`
	LanguageCode string `yaml:"language_code"`
}

// Build returns the [pipeline.Config] described by p on top of the defaults.
func (p PipelineConfig) Build() pipeline.Config {
	cfg := pipeline.DefaultConfig()

	cfg.Languages = prompt.Vars{
		Source:  orDefault(p.Languages.Source, cfg.Languages.Source),
		Target:  orDefault(p.Languages.Target, cfg.Languages.Target),
		Working: orDefault(p.Languages.Working, cfg.Languages.Working),
	}

	t := &cfg.Transcription
	t.Prompt = orDefault(p.Transcription.Prompt, t.Prompt)
	t.ResponseFormat = orDefault(p.Transcription.ResponseFormat, t.ResponseFormat)
	if p.Transcription.Temperature != nil {
		t.Temperature = *p.Transcription.Temperature
	}

	p.Generation.apply(&cfg.Generation)
	p.BackTranslation.apply(&cfg.BackTranslation)

	s := &cfg.Synthesis
	s.VoiceID = orDefault(p.Synthesis.VoiceID, s.VoiceID)
	s.Model = orDefault(p.Synthesis.Model, s.Model)
	s.OutputFormat = orDefault(p.Synthesis.OutputFormat, s.OutputFormat)
	s.LanguageCode = orDefault(p.Synthesis.LanguageCode, s.LanguageCode)
	return cfg
}

func (c CompletionConfig) apply(dst *pipeline.CompletionConfig) {
	dst.System = orDefault(c.System, dst.System)
	dst.User = orDefault(c.User, dst.User)
	if c.Temperature != nil {
		dst.Temperature = *c.Temperature
	}
	if c.TopP != nil {
		dst.TopP = *c.TopP
	}
	if c.MaxTokens > 0 {
		dst.MaxTokens = c.MaxTokens
	}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
