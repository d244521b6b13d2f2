package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
)

// DefaultAPIKeyEnv maps provider names to the environment variable consulted
// when an entry sets neither api_key nor api_key_env.
var DefaultAPIKeyEnv = map[string]string{
	"groq":       "GROQ_API_KEY",
	"openai":     "OPENAI_API_KEY",
	"anthropic":  "ANTHROPIC_API_KEY",
	"gemini":     "GEMINI_API_KEY",
	"deepseek":   "DEEPSEEK_API_KEY",
	"mistral":    "MISTRAL_API_KEY",
	"elevenlabs": "ELEVENLABS_API_KEY",
}

// ErrMissingCredential is returned by [ResolveCredentials] when a provider
// that requires an API key has none.
var ErrMissingCredential = errors.New("config: missing credential")

// LoadDotEnv loads environment variables from the given .env files without
// overriding variables that are already set. Missing files are ignored.
// With no arguments it loads ".env" from the working directory.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("config: load %q: %w", p, err)
		}
	}
	return nil
}

// ResolveCredentials fills the APIKey of every provider entry that needs one,
// reading the variable named by api_key_env or the provider default through
// lookup (usually [os.LookupEnv]). Entries whose provider has no default
// variable and no api_key_env are left untouched. A required key that cannot
// be found is reported as [ErrMissingCredential]; all failures are joined.
func ResolveCredentials(cfg *Config, lookup func(string) (string, bool)) error {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	entries := []struct {
		kind  string
		entry *ProviderEntry
	}{
		{"stt", &cfg.Providers.STT},
		{"llm", &cfg.Providers.LLM},
		{"back_translation_llm", &cfg.Providers.BackTranslationLLM},
		{"tts", &cfg.Providers.TTS},
	}

	var errs []error
	for _, e := range entries {
		if e.entry.Name == "" || e.entry.APIKey != "" {
			continue
		}
		env := e.entry.APIKeyEnv
		if env == "" {
			env = DefaultAPIKeyEnv[e.entry.Name]
		}
		if env == "" {
			continue
		}
		if v, ok := lookup(env); ok && v != "" {
			e.entry.APIKey = v
			continue
		}
		errs = append(errs, fmt.Errorf("%w: providers.%s (%s) needs %s", ErrMissingCredential, e.kind, e.entry.Name, env))
	}
	return errors.Join(errs...)
}
