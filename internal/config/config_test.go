package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/vaani/internal/config"
	"github.com/MrWong99/vaani/internal/pipeline"
	"github.com/MrWong99/vaani/pkg/audio"
	"github.com/MrWong99/vaani/pkg/provider/llm"
	llmmock "github.com/MrWong99/vaani/pkg/provider/llm/mock"
	"github.com/MrWong99/vaani/pkg/provider/stt"
	sttmock "github.com/MrWong99/vaani/pkg/provider/stt/mock"
	"github.com/MrWong99/vaani/pkg/provider/tts"
	ttsmock "github.com/MrWong99/vaani/pkg/provider/tts/mock"
)

const fullYAML = `
server:
  listen_addr: ":9090"
  log_level: debug
  allowed_origins: ["https://example.com"]
  max_upload_bytes: 1048576
  runs_per_minute: 3
  spool_dir: /var/tmp/vaani
  reload_interval: 10s
providers:
  stt:
    name: groq
    model: whisper-large-v3
  llm:
    name: groq
    model: llama-3.3-70b-versatile
    api_key_env: MY_GROQ_KEY
  back_translation_llm:
    name: anthropic
    model: claude-sonnet
  tts:
    name: elevenlabs
    options:
      transport: websocket
  player:
    name: command
    options:
      command: ffplay -nodisp -autoexit -
pipeline:
  languages:
    source: Tamil
    target: Tamil
  transcription:
    temperature: 0
  generation:
    system: "You are a terse assistant."
    temperature: 0
    max_tokens: 256
  back_translation:
    top_p: 0.9
  synthesis:
    voice_id: voice-123
    language_code: ta
`

func TestLoadFromReader_FullConfig(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(fullYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	s := cfg.Server
	if s.ListenAddr != ":9090" || s.LogLevel != config.LogDebug {
		t.Errorf("server = %+v", s)
	}
	if s.MaxUploadBytes != 1<<20 || s.RunsPerMinute != 3 || s.SpoolDir != "/var/tmp/vaani" {
		t.Errorf("server limits = %+v", s)
	}
	if s.ReloadInterval != 10*time.Second {
		t.Errorf("reload_interval = %v, want 10s", s.ReloadInterval)
	}
	if !reflect.DeepEqual(s.AllowedOrigins, []string{"https://example.com"}) {
		t.Errorf("allowed_origins = %v", s.AllowedOrigins)
	}
	if cfg.Providers.LLM.APIKeyEnv != "MY_GROQ_KEY" {
		t.Errorf("api_key_env = %q", cfg.Providers.LLM.APIKeyEnv)
	}
	if cfg.Providers.TTS.Options["transport"] != "websocket" {
		t.Errorf("tts options = %v", cfg.Providers.TTS.Options)
	}
}

func TestPipelineConfig_Build(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(fullYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := cfg.Pipeline.Build()
	def := pipeline.DefaultConfig()

	if got.Languages.Source != "Tamil" || got.Languages.Target != "Tamil" || got.Languages.Working != "English" {
		t.Errorf("languages = %+v", got.Languages)
	}
	if got.Transcription.Prompt != def.Transcription.Prompt || got.Transcription.Temperature != 0 {
		t.Errorf("transcription = %+v", got.Transcription)
	}

	wantGen := def.Generation
	wantGen.System = "You are a terse assistant."
	wantGen.Temperature = 0
	wantGen.MaxTokens = 256
	if got.Generation != wantGen {
		t.Errorf("generation = %+v, want %+v", got.Generation, wantGen)
	}

	wantBack := def.BackTranslation
	wantBack.TopP = 0.9
	if got.BackTranslation != wantBack {
		t.Errorf("back-translation = %+v, want %+v", got.BackTranslation, wantBack)
	}

	if got.Synthesis.VoiceID != "voice-123" || got.Synthesis.Model != def.Synthesis.Model || got.Synthesis.LanguageCode != "ta" {
		t.Errorf("synthesis = %+v", got.Synthesis)
	}
}

func TestPipelineConfig_BuildEmptyIsDefault(t *testing.T) {
	t.Parallel()
	if got := (config.PipelineConfig{}).Build(); !reflect.DeepEqual(got, pipeline.DefaultConfig()) {
		t.Errorf("Build() = %+v, want defaults", got)
	}
}

func TestLoadFromReader_Defaults(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(`
providers:
  stt: {name: groq}
  llm: {name: groq}
  tts: {name: elevenlabs}
`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.ListenAddr != config.DefaultListenAddr {
		t.Errorf("listen_addr = %q", cfg.Server.ListenAddr)
	}
	if cfg.Server.LogLevel != config.LogInfo {
		t.Errorf("log_level = %q", cfg.Server.LogLevel)
	}
	if cfg.Server.MaxUploadBytes != config.DefaultMaxUploadBytes || cfg.Server.RunsPerMinute != config.DefaultRunsPerMinute {
		t.Errorf("limits = %d/%d", cfg.Server.MaxUploadBytes, cfg.Server.RunsPerMinute)
	}
	if cfg.Providers.Player.Name != "none" {
		t.Errorf("player = %q, want none", cfg.Providers.Player.Name)
	}
}

func TestLoadFromReader_UnknownField(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader(`
server:
  listen_adr: ":8080"
`))
	if err == nil || !strings.Contains(err.Error(), "listen_adr") {
		t.Errorf("err = %v, want unknown field error", err)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		yaml    string
		wantErr []string
	}{
		{
			name:    "missing providers",
			yaml:    `server: {log_level: info}`,
			wantErr: []string{"providers.stt.name", "providers.llm.name", "providers.tts.name"},
		},
		{
			name: "bad log level",
			yaml: `
server: {log_level: bananas}
providers: {stt: {name: groq}, llm: {name: groq}, tts: {name: elevenlabs}}`,
			wantErr: []string{"server.log_level"},
		},
		{
			name: "broken template",
			yaml: `
providers: {stt: {name: groq}, llm: {name: groq}, tts: {name: elevenlabs}}
pipeline:
  back_translation:
    user: "Translate to {{ target"`,
			wantErr: []string{"pipeline.back_translation.user"},
		},
		{
			name: "sampling out of range",
			yaml: `
providers: {stt: {name: groq}, llm: {name: groq}, tts: {name: elevenlabs}}
pipeline:
  transcription: {temperature: 1.5}
  generation: {temperature: 3, top_p: 2}
  back_translation: {max_tokens: -1}`,
			wantErr: []string{
				"pipeline.transcription.temperature",
				"pipeline.generation.temperature",
				"pipeline.generation.top_p",
				"pipeline.back_translation.max_tokens",
			},
		},
		{
			name: "half tls",
			yaml: `
server: {tls: {cert_file: cert.pem}}
providers: {stt: {name: groq}, llm: {name: groq}, tts: {name: elevenlabs}}`,
			wantErr: []string{"server.tls"},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := config.LoadFromReader(strings.NewReader(tc.yaml))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			for _, want := range tc.wantErr {
				if !strings.Contains(err.Error(), want) {
					t.Errorf("error should mention %q, got: %v", want, err)
				}
			}
		})
	}
}

func TestLoad_File(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "vaani.yaml")
	if err := os.WriteFile(path, []byte(fullYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := config.Load(path); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load of a missing file succeeded")
	}
}

func TestLoad_ExampleConfig(t *testing.T) {
	t.Parallel()
	cfg, err := config.Load(filepath.Join("..", "..", "vaani.example.yaml"))
	if err != nil {
		t.Fatalf("Load example: %v", err)
	}
	if !reflect.DeepEqual(cfg.Pipeline.Build(), pipeline.DefaultConfig()) {
		t.Errorf("example pipeline section differs from the defaults:\n got %+v\nwant %+v",
			cfg.Pipeline.Build(), pipeline.DefaultConfig())
	}
	if cfg.Server.ReloadInterval != 5*time.Second {
		t.Errorf("reload_interval = %v, want 5s", cfg.Server.ReloadInterval)
	}
}

// ─── credentials ──────────────────────────────────────────────────────────────

func lookupFrom(env map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}
}

func TestResolveCredentials(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(fullYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cfg.Providers.TTS.APIKey = "inline"

	err = config.ResolveCredentials(cfg, lookupFrom(map[string]string{
		"GROQ_API_KEY":      "groq-default",
		"MY_GROQ_KEY":       "groq-custom",
		"ANTHROPIC_API_KEY": "anthropic",
	}))
	if err != nil {
		t.Fatalf("ResolveCredentials: %v", err)
	}
	p := cfg.Providers
	if p.STT.APIKey != "groq-default" {
		t.Errorf("stt key = %q", p.STT.APIKey)
	}
	if p.LLM.APIKey != "groq-custom" {
		t.Errorf("llm key = %q, want the api_key_env value", p.LLM.APIKey)
	}
	if p.BackTranslationLLM.APIKey != "anthropic" {
		t.Errorf("back-translation key = %q", p.BackTranslationLLM.APIKey)
	}
	if p.TTS.APIKey != "inline" {
		t.Errorf("tts key = %q, want the inline value kept", p.TTS.APIKey)
	}
}

func TestResolveCredentials_Missing(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{Providers: config.ProvidersConfig{
		STT: config.ProviderEntry{Name: "whisper"},
		LLM: config.ProviderEntry{Name: "groq"},
		TTS: config.ProviderEntry{Name: "elevenlabs"},
	}}
	err := config.ResolveCredentials(cfg, lookupFrom(map[string]string{"GROQ_API_KEY": ""}))
	if !errors.Is(err, config.ErrMissingCredential) {
		t.Fatalf("err = %v, want ErrMissingCredential", err)
	}
	for _, want := range []string{"GROQ_API_KEY", "ELEVENLABS_API_KEY"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error should name %s, got: %v", want, err)
		}
	}
	if strings.Contains(err.Error(), "whisper") {
		t.Errorf("keyless provider reported: %v", err)
	}
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("VAANI_TEST_DOTENV=from-file\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("VAANI_TEST_DOTENV", "")
	os.Unsetenv("VAANI_TEST_DOTENV")

	if err := config.LoadDotEnv(path, filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}
	if got := os.Getenv("VAANI_TEST_DOTENV"); got != "from-file" {
		t.Errorf("VAANI_TEST_DOTENV = %q, want from-file", got)
	}
}

// ─── options ──────────────────────────────────────────────────────────────────

func TestDecodeOptions(t *testing.T) {
	t.Parallel()
	var opts struct {
		Transport string        `mapstructure:"transport"`
		Timeout   time.Duration `mapstructure:"timeout"`
		Rate      int           `mapstructure:"sample_rate"`
		Command   []string      `mapstructure:"command"`
	}
	entry := config.ProviderEntry{Name: "x", Options: map[string]any{
		"transport":   "websocket",
		"timeout":     "30s",
		"sample_rate": "16000",
		"command":     "ffplay,-nodisp",
	}}
	if err := config.DecodeOptions(entry, &opts); err != nil {
		t.Fatalf("DecodeOptions: %v", err)
	}
	if opts.Transport != "websocket" || opts.Timeout != 30*time.Second || opts.Rate != 16000 {
		t.Errorf("opts = %+v", opts)
	}
	if !reflect.DeepEqual(opts.Command, []string{"ffplay", "-nodisp"}) {
		t.Errorf("command = %q", opts.Command)
	}

	entry.Options = map[string]any{"transprot": "websocket"}
	if err := config.DecodeOptions(entry, &opts); err == nil {
		t.Error("DecodeOptions accepted an unknown key")
	}
	if err := config.DecodeOptions(config.ProviderEntry{}, &opts); err != nil {
		t.Errorf("DecodeOptions with no options: %v", err)
	}
}

// ─── registry ─────────────────────────────────────────────────────────────────

func TestRegistry(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	sttP := &sttmock.Provider{}
	llmP := &llmmock.Provider{}
	ttsP := &ttsmock.Provider{}

	var gotEntry config.ProviderEntry
	reg.RegisterSTT("groq", func(e config.ProviderEntry) (stt.Provider, error) {
		gotEntry = e
		return sttP, nil
	})
	reg.RegisterLLM("groq", func(config.ProviderEntry) (llm.Provider, error) { return llmP, nil })
	reg.RegisterLLM("openai", func(config.ProviderEntry) (llm.Provider, error) { return llmP, nil })
	reg.RegisterTTS("elevenlabs", func(config.ProviderEntry) (tts.Provider, error) { return ttsP, nil })
	reg.RegisterPlayer("none", func(config.ProviderEntry) (audio.Player, error) { return audio.NopPlayer{}, nil })

	entry := config.ProviderEntry{Name: "groq", Model: "whisper-large-v3"}
	if p, err := reg.CreateSTT(entry); err != nil || p != sttP {
		t.Errorf("CreateSTT = %v, %v", p, err)
	}
	if gotEntry.Model != "whisper-large-v3" {
		t.Errorf("factory received %+v", gotEntry)
	}
	if p, err := reg.CreateLLM(config.ProviderEntry{Name: "openai"}); err != nil || p != llmP {
		t.Errorf("CreateLLM = %v, %v", p, err)
	}
	if p, err := reg.CreateTTS(config.ProviderEntry{Name: "elevenlabs"}); err != nil || p != ttsP {
		t.Errorf("CreateTTS = %v, %v", p, err)
	}
	if _, err := reg.CreatePlayer(config.ProviderEntry{Name: "none"}); err != nil {
		t.Errorf("CreatePlayer: %v", err)
	}

	_, err := reg.CreateTTS(config.ProviderEntry{Name: "coqui"})
	if !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("err = %v, want ErrProviderNotRegistered", err)
	}
	if !strings.Contains(err.Error(), `tts/"coqui"`) {
		t.Errorf("error should name the provider, got: %v", err)
	}

	if got := reg.Names("llm"); !reflect.DeepEqual(got, []string{"groq", "openai"}) {
		t.Errorf("Names(llm) = %v", got)
	}
	if got := reg.Names("unknown"); len(got) != 0 {
		t.Errorf("Names(unknown) = %v", got)
	}
}

// ─── diff ─────────────────────────────────────────────────────────────────────

func TestDiff(t *testing.T) {
	t.Parallel()
	base, err := config.LoadFromReader(strings.NewReader(fullYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	t.Run("identical", func(t *testing.T) {
		d := config.Diff(base, base)
		if d.HotReloadable() || len(d.RestartRequired) != 0 {
			t.Errorf("diff = %+v, want empty", d)
		}
	})

	t.Run("pipeline and log level", func(t *testing.T) {
		next := *base
		next.Server.LogLevel = config.LogWarn
		next.Pipeline.Generation.System = "Be brief."
		d := config.Diff(base, &next)
		if !d.LogLevelChanged || d.NewLogLevel != config.LogWarn {
			t.Errorf("log level diff = %+v", d)
		}
		if !d.PipelineChanged || !d.HotReloadable() {
			t.Errorf("pipeline change not detected: %+v", d)
		}
	})

	t.Run("explicit default is no change", func(t *testing.T) {
		next := *base
		next.Pipeline.Synthesis.Model = pipeline.DefaultConfig().Synthesis.Model
		if d := config.Diff(base, &next); d.PipelineChanged {
			t.Errorf("spelling out a default counted as a change: %+v", d)
		}
	})

	t.Run("restart required", func(t *testing.T) {
		next := *base
		next.Providers.TTS = config.ProviderEntry{Name: "coqui", BaseURL: "http://localhost:5002"}
		next.Server.ListenAddr = ":1"
		d := config.Diff(base, &next)
		want := []string{"providers.tts", "server.listen_addr"}
		if !reflect.DeepEqual(d.RestartRequired, want) {
			t.Errorf("RestartRequired = %v, want %v", d.RestartRequired, want)
		}
		if d.HotReloadable() {
			t.Errorf("provider change reported as hot-reloadable")
		}
	})
}
