package main

import (
	"cmp"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/vaani/internal/config"
	"github.com/MrWong99/vaani/internal/health"
	"github.com/MrWong99/vaani/internal/observe"
	"github.com/MrWong99/vaani/internal/resilience"
	"github.com/MrWong99/vaani/pkg/audio"
	"github.com/MrWong99/vaani/pkg/provider/llm"
	"github.com/MrWong99/vaani/pkg/provider/llm/anthropic"
	"github.com/MrWong99/vaani/pkg/provider/llm/anyllm"
	oaillm "github.com/MrWong99/vaani/pkg/provider/llm/openai"
	"github.com/MrWong99/vaani/pkg/provider/stt"
	oaistt "github.com/MrWong99/vaani/pkg/provider/stt/openai"
	"github.com/MrWong99/vaani/pkg/provider/stt/whisper"
	"github.com/MrWong99/vaani/pkg/provider/tts"
	"github.com/MrWong99/vaani/pkg/provider/tts/coqui"
	"github.com/MrWong99/vaani/pkg/provider/tts/elevenlabs"
)

// Default models for providers whose entry leaves model empty.
const (
	defaultGroqSTTModel   = "whisper-large-v3"
	defaultOpenAISTTModel = "whisper-1"
	defaultGroqLLMModel   = "llama-3.3-70b-versatile"
	defaultOpenAILLMModel = "gpt-4o-mini"
	defaultDeepSeekModel  = "deepseek-chat"
	defaultMistralModel   = "mistral-small-latest"
	defaultAnthropicModel = "claude-3-5-haiku-latest"

	localServerKey = "no-key"
)

// ── Provider options ──────────────────────────────────────────────────────────

type openAISTTOptions struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

type openAILLMOptions struct {
	Organization string        `mapstructure:"organization"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

type anthropicOptions struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

type whisperOptions struct {
	Language  string `mapstructure:"language"`
	ModelPath string `mapstructure:"model_path"`
}

type elevenLabsOptions struct {
	OutputFormat string `mapstructure:"output_format"`
	Transport    string `mapstructure:"transport"`
	Voice        string `mapstructure:"voice"`
}

type coquiOptions struct {
	Language   string        `mapstructure:"language"`
	APIMode    string        `mapstructure:"api_mode"`
	Timeout    time.Duration `mapstructure:"timeout"`
	SampleRate int           `mapstructure:"sample_rate"`
	Voice      string        `mapstructure:"voice"`
}

type commandPlayerOptions struct {
	Command []string `mapstructure:"command"`
}

// ── Registration ──────────────────────────────────────────────────────────────

// registerBuiltinProviders wires all built-in provider factories into reg.
func registerBuiltinProviders(reg *config.Registry) {
	// ── STT ───────────────────────────────────────────────────────────────────

	openAISTT := func(baseURL, model string) func(config.ProviderEntry) (stt.Provider, error) {
		return func(entry config.ProviderEntry) (stt.Provider, error) {
			var o openAISTTOptions
			if err := config.DecodeOptions(entry, &o); err != nil {
				return nil, err
			}
			var opts []oaistt.Option
			if url := cmp.Or(entry.BaseURL, baseURL); url != "" {
				opts = append(opts, oaistt.WithBaseURL(url))
			}
			if o.Timeout > 0 {
				opts = append(opts, oaistt.WithTimeout(o.Timeout))
			}
			return oaistt.New(entry.APIKey, cmp.Or(entry.Model, model), opts...)
		}
	}
	reg.RegisterSTT("groq", openAISTT(oaistt.GroqBaseURL, defaultGroqSTTModel))
	reg.RegisterSTT("openai", openAISTT("", defaultOpenAISTTModel))

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Provider, error) {
		var o whisperOptions
		if err := config.DecodeOptions(entry, &o); err != nil {
			return nil, err
		}
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if o.Language != "" {
			opts = append(opts, whisper.WithLanguage(o.Language))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	reg.RegisterSTT("whisper-native", func(entry config.ProviderEntry) (stt.Provider, error) {
		var o whisperOptions
		if err := config.DecodeOptions(entry, &o); err != nil {
			return nil, err
		}
		var opts []whisper.NativeOption
		if o.Language != "" {
			opts = append(opts, whisper.WithNativeLanguage(o.Language))
		}
		return whisper.NewNative(cmp.Or(entry.Model, o.ModelPath), opts...)
	})

	// ── LLM ───────────────────────────────────────────────────────────────────

	openAILLM := func(baseURL, model, fallbackKey string) func(config.ProviderEntry) (llm.Provider, error) {
		return func(entry config.ProviderEntry) (llm.Provider, error) {
			var o openAILLMOptions
			if err := config.DecodeOptions(entry, &o); err != nil {
				return nil, err
			}
			var opts []oaillm.Option
			if url := cmp.Or(entry.BaseURL, baseURL); url != "" {
				opts = append(opts, oaillm.WithBaseURL(url))
			}
			if o.Organization != "" {
				opts = append(opts, oaillm.WithOrganization(o.Organization))
			}
			if o.Timeout > 0 {
				opts = append(opts, oaillm.WithTimeout(o.Timeout))
			}
			return oaillm.New(cmp.Or(entry.APIKey, fallbackKey), cmp.Or(entry.Model, model), opts...)
		}
	}
	reg.RegisterLLM("groq", openAILLM(oaillm.GroqBaseURL, defaultGroqLLMModel, ""))
	reg.RegisterLLM("openai", openAILLM("", defaultOpenAILLMModel, ""))
	reg.RegisterLLM("deepseek", openAILLM(oaillm.DeepSeekBaseURL, defaultDeepSeekModel, ""))
	reg.RegisterLLM("mistral", openAILLM(oaillm.MistralBaseURL, defaultMistralModel, ""))
	// Local servers accept any key.
	reg.RegisterLLM("llamacpp", openAILLM(oaillm.LlamaCppBaseURL, "", localServerKey))
	reg.RegisterLLM("llamafile", openAILLM(oaillm.LlamaFileBaseURL, "", localServerKey))

	reg.RegisterLLM("anthropic", func(entry config.ProviderEntry) (llm.Provider, error) {
		var o anthropicOptions
		if err := config.DecodeOptions(entry, &o); err != nil {
			return nil, err
		}
		var opts []anthropic.Option
		if entry.BaseURL != "" {
			opts = append(opts, anthropic.WithBaseURL(entry.BaseURL))
		}
		if o.Timeout > 0 {
			opts = append(opts, anthropic.WithTimeout(o.Timeout))
		}
		return anthropic.New(entry.APIKey, cmp.Or(entry.Model, defaultAnthropicModel), opts...)
	})

	// Backends without an OpenAI-compatible endpoint go through any-llm-go.
	for _, providerName := range anyllm.Backends {
		reg.RegisterLLM(providerName, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, opts...)
		})
	}

	// ── TTS ───────────────────────────────────────────────────────────────────

	reg.RegisterTTS("elevenlabs", func(entry config.ProviderEntry) (tts.Provider, error) {
		var o elevenLabsOptions
		if err := config.DecodeOptions(entry, &o); err != nil {
			return nil, err
		}
		var opts []elevenlabs.Option
		if entry.Model != "" {
			opts = append(opts, elevenlabs.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, elevenlabs.WithBaseURL(entry.BaseURL))
		}
		if o.OutputFormat != "" {
			opts = append(opts, elevenlabs.WithOutputFormat(o.OutputFormat))
		}
		if o.Voice != "" {
			opts = append(opts, elevenlabs.WithVoice(o.Voice))
		}
		if o.Transport != "" {
			opts = append(opts, elevenlabs.WithTransport(elevenlabs.Transport(o.Transport)))
		}
		return elevenlabs.New(entry.APIKey, opts...)
	})

	reg.RegisterTTS("coqui", func(entry config.ProviderEntry) (tts.Provider, error) {
		var o coquiOptions
		if err := config.DecodeOptions(entry, &o); err != nil {
			return nil, err
		}
		var opts []coqui.Option
		if o.Language != "" {
			opts = append(opts, coqui.WithLanguage(o.Language))
		}
		if o.APIMode != "" {
			opts = append(opts, coqui.WithAPIMode(coqui.APIMode(o.APIMode)))
		}
		if o.Timeout > 0 {
			opts = append(opts, coqui.WithTimeout(o.Timeout))
		}
		if o.SampleRate > 0 {
			opts = append(opts, coqui.WithOutputSampleRate(o.SampleRate))
		}
		if o.Voice != "" {
			opts = append(opts, coqui.WithVoice(o.Voice))
		}
		return coqui.New(entry.BaseURL, opts...)
	})

	// ── Player ────────────────────────────────────────────────────────────────

	reg.RegisterPlayer("command", func(entry config.ProviderEntry) (audio.Player, error) {
		var o commandPlayerOptions
		if err := config.DecodeOptions(entry, &o); err != nil {
			return nil, err
		}
		return audio.NewCommandPlayer(o.Command)
	})
	reg.RegisterPlayer("none", func(config.ProviderEntry) (audio.Player, error) {
		return audio.NopPlayer{}, nil
	})

	for _, kind := range []string{"stt", "llm", "tts", "player"} {
		slog.Debug("registered providers", "kind", kind, "names", reg.Names(kind))
	}
}

// ── Instantiation ─────────────────────────────────────────────────────────────

// providers holds the guarded providers the pipeline runs on.
type providers struct {
	STT     *resilience.STTGuard
	LLM     *resilience.LLMGuard
	BackLLM *resilience.LLMGuard // nil when back-translation reuses LLM
	TTS     *resilience.TTSGuard
	Player  audio.Player

	closers []io.Closer
}

// Close releases providers holding local resources such as a loaded model.
func (ps *providers) Close() error {
	var errs []error
	for _, c := range ps.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

// checkers returns one readiness check per guarded provider.
func (ps *providers) checkers() []health.Checker {
	cs := []health.Checker{
		{Name: "stt", Check: ps.STT.Ready},
		{Name: "llm", Check: ps.LLM.Ready},
		{Name: "tts", Check: ps.TTS.Ready},
	}
	if ps.BackLLM != nil {
		cs = append(cs, health.Checker{Name: "back_translation_llm", Check: ps.BackLLM.Ready})
	}
	return cs
}

// buildProviders instantiates all providers named in cfg using the registry
// and wraps each in a circuit breaker guard.
func buildProviders(cfg *config.Config, reg *config.Registry, m *observe.Metrics) (*providers, error) {
	p := cfg.Providers
	ps := &providers{}
	var errs []error

	if s, err := reg.CreateSTT(p.STT); err != nil {
		errs = append(errs, fmt.Errorf("create stt provider %q: %w", p.STT.Name, err))
	} else {
		if c, ok := s.(io.Closer); ok {
			ps.closers = append(ps.closers, c)
		}
		ps.STT = resilience.NewSTTGuard(s, resilience.GuardConfig{Name: p.STT.Name, Metrics: m})
		slog.Info("provider created", "kind", "stt", "name", p.STT.Name, "model", p.STT.Model)
	}

	if l, err := reg.CreateLLM(p.LLM); err != nil {
		errs = append(errs, fmt.Errorf("create llm provider %q: %w", p.LLM.Name, err))
	} else {
		ps.LLM = resilience.NewLLMGuard(l, resilience.GuardConfig{Name: p.LLM.Name, Metrics: m})
		slog.Info("provider created", "kind", "llm", "name", p.LLM.Name, "model", p.LLM.Model)
	}

	if p.BackTranslationLLM.Name != "" {
		if l, err := reg.CreateLLM(p.BackTranslationLLM); err != nil {
			errs = append(errs, fmt.Errorf("create back-translation llm provider %q: %w", p.BackTranslationLLM.Name, err))
		} else {
			ps.BackLLM = resilience.NewLLMGuard(l, resilience.GuardConfig{
				Name:    p.BackTranslationLLM.Name,
				Metrics: m,
				CircuitBreaker: resilience.CircuitBreakerConfig{
					Name: "llm/back_translation/" + p.BackTranslationLLM.Name,
				},
			})
			slog.Info("provider created", "kind", "back_translation_llm", "name", p.BackTranslationLLM.Name)
		}
	}

	if t, err := reg.CreateTTS(p.TTS); err != nil {
		errs = append(errs, fmt.Errorf("create tts provider %q: %w", p.TTS.Name, err))
	} else {
		ps.TTS = resilience.NewTTSGuard(t, resilience.GuardConfig{Name: p.TTS.Name, Metrics: m})
		slog.Info("provider created", "kind", "tts", "name", p.TTS.Name, "model", p.TTS.Model)
	}

	if pl, err := reg.CreatePlayer(p.Player); err != nil {
		errs = append(errs, fmt.Errorf("create player %q: %w", p.Player.Name, err))
	} else {
		ps.Player = pl
		slog.Info("player created", "name", p.Player.Name)
	}

	if err := errors.Join(errs...); err != nil {
		ps.Close()
		return nil, err
	}
	return ps, nil
}
