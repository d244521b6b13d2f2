// Package pipeline sequences one voice relay run: a spoken recording is
// translated into the working language, answered by an assistant model,
// translated back into the spoken language, synthesized and played.
//
// Stages run strictly in order and each consumes exactly the previous stage's
// output. The first failure aborts the run: it is reported once to the
// [Sink] as a [*StageError] and no later stage is invoked. Nothing is
// retried.
//
// An [Orchestrator] holds only immutable configuration and stateless provider
// clients, so concurrent [Orchestrator.Run] calls do not share any run state.
package pipeline

import (
	"errors"
	"fmt"

	"github.com/MrWong99/vaani/internal/observe"
	"github.com/MrWong99/vaani/internal/prompt"
	"github.com/MrWong99/vaani/pkg/audio"
	"github.com/MrWong99/vaani/pkg/provider/llm"
	"github.com/MrWong99/vaani/pkg/provider/stt"
	"github.com/MrWong99/vaani/pkg/provider/tts"
)

// TranscriptionConfig configures the speech translation request.
type TranscriptionConfig struct {
	// Prompt is a directive template biasing the recogniser towards
	// translating into the working language.
	Prompt string
	// ResponseFormat is the provider response format. Default: "json".
	ResponseFormat string
	// Temperature is sent as-is; 0 means deterministic decoding.
	Temperature float64
}

// CompletionConfig configures one language model stage. Generation and
// back-translation each carry their own.
type CompletionConfig struct {
	// System is the system directive template.
	System string
	// User is the user turn template; {{ text }} is the stage input.
	User string
	// Temperature is sent as-is.
	Temperature float64
	// TopP is the nucleus sampling width. 0 leaves the provider default.
	TopP float64
	// MaxTokens caps the completion length, clamped to the model's limit.
	MaxTokens int
}

// SynthesisConfig configures the speech synthesis request.
type SynthesisConfig struct {
	VoiceID      string
	Model        string
	OutputFormat string
	// LanguageCode is an optional ISO 639-1 hint for the synthesizer.
	LanguageCode string
}

// Config is the immutable run configuration.
type Config struct {
	// Languages are the names rendered into directive templates.
	Languages       prompt.Vars
	Transcription   TranscriptionConfig
	Generation      CompletionConfig
	BackTranslation CompletionConfig
	Synthesis       SynthesisConfig
}

// DefaultConfig returns the Hindi/English relay configuration.
func DefaultConfig() Config {
	return Config{
		Languages: prompt.DefaultVars(),
		Transcription: TranscriptionConfig{
			Prompt:         prompt.DefaultTranscription,
			ResponseFormat: stt.FormatJSON,
			Temperature:    0,
		},
		Generation: CompletionConfig{
			System:      prompt.DefaultAssistant,
			User:        "{{ text }}",
			Temperature: 0.5,
			TopP:        1,
			MaxTokens:   1024,
		},
		BackTranslation: CompletionConfig{
			System:      prompt.DefaultTranslator,
			User:        prompt.DefaultBackTranslation,
			Temperature: 0.5,
			TopP:        1,
			MaxTokens:   1024,
		},
		Synthesis: SynthesisConfig{
			VoiceID:      "JBFqnCBsd6RMkjVDRZzb",
			Model:        "eleven_multilingual_v2",
			OutputFormat: "mp3_44100_128",
		},
	}
}

// completionTemplates are the compiled templates of a CompletionConfig.
type completionTemplates struct {
	system *prompt.Template
	user   *prompt.Template
}

func compileCompletion(name string, c CompletionConfig) (completionTemplates, error) {
	system, err := prompt.Parse(c.System)
	if err != nil {
		return completionTemplates{}, fmt.Errorf("pipeline: %s system directive: %w", name, err)
	}
	user, err := prompt.Parse(c.User)
	if err != nil {
		return completionTemplates{}, fmt.Errorf("pipeline: %s user directive: %w", name, err)
	}
	return completionTemplates{system: system, user: user}, nil
}

// TransitionFunc observes state changes of a run.
type TransitionFunc func(runID string, from, to State)

// Orchestrator runs the relay pipeline. It is safe for concurrent use.
type Orchestrator struct {
	cfg Config

	stt     stt.Provider
	llm     llm.Provider
	backLLM llm.Provider
	tts     tts.Provider

	player       audio.Player
	spool        *audio.Spool
	metrics      *observe.Metrics
	onTransition TransitionFunc

	transcriptionPrompt *prompt.Template
	generation          completionTemplates
	backTranslation     completionTemplates
}

// Option is a functional option for [New].
type Option func(*Orchestrator)

// WithPlayer sets the local playback device. Default: [audio.NopPlayer].
func WithPlayer(p audio.Player) Option {
	return func(o *Orchestrator) { o.player = p }
}

// WithSpool sets where captures are staged for the transcription request.
// Default: a spool in the system temp directory.
func WithSpool(s *audio.Spool) Option {
	return func(o *Orchestrator) { o.spool = s }
}

// WithMetrics enables stage and run metrics.
func WithMetrics(m *observe.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithBackTranslationLLM uses a separate model for back-translation. Default:
// the generation model.
func WithBackTranslationLLM(p llm.Provider) Option {
	return func(o *Orchestrator) { o.backLLM = p }
}

// WithTransitionHook registers fn to observe every state change. fn runs on
// the run's goroutine.
func WithTransitionHook(fn TransitionFunc) Option {
	return func(o *Orchestrator) { o.onTransition = fn }
}

// New validates cfg, compiles its directive templates and returns an
// Orchestrator over the given providers.
func New(cfg Config, sttP stt.Provider, llmP llm.Provider, ttsP tts.Provider, opts ...Option) (*Orchestrator, error) {
	var errs []error
	if sttP == nil {
		errs = append(errs, errors.New("pipeline: stt provider is required"))
	}
	if llmP == nil {
		errs = append(errs, errors.New("pipeline: llm provider is required"))
	}
	if ttsP == nil {
		errs = append(errs, errors.New("pipeline: tts provider is required"))
	}
	if cfg.Synthesis.VoiceID == "" {
		errs = append(errs, errors.New("pipeline: synthesis voice ID is required"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	o := &Orchestrator{
		cfg: cfg,
		stt: sttP,
		llm: llmP,
		tts: ttsP,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.backLLM == nil {
		o.backLLM = o.llm
	}
	if o.player == nil {
		o.player = audio.NopPlayer{}
	}
	if o.spool == nil {
		sp, err := audio.NewSpool("")
		if err != nil {
			return nil, fmt.Errorf("pipeline: %w", err)
		}
		o.spool = sp
	}
	if o.cfg.Transcription.ResponseFormat == "" {
		o.cfg.Transcription.ResponseFormat = stt.FormatJSON
	}

	var err error
	if o.transcriptionPrompt, err = prompt.Parse(cfg.Transcription.Prompt); err != nil {
		return nil, fmt.Errorf("pipeline: transcription prompt: %w", err)
	}
	if o.generation, err = compileCompletion("generation", cfg.Generation); err != nil {
		return nil, err
	}
	if o.backTranslation, err = compileCompletion("back-translation", cfg.BackTranslation); err != nil {
		return nil, err
	}
	return o, nil
}

// Config returns the orchestrator's configuration.
func (o *Orchestrator) Config() Config {
	return o.cfg
}
