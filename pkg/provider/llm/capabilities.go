package llm

import "strings"

// LookupCapabilities returns ModelCapabilities based on known model names.
// It covers the Llama, OpenAI, Anthropic, Gemini and Mistral families served
// by the supported backends. Unknown models receive sensible defaults.
func LookupCapabilities(model string) ModelCapabilities {
	caps := ModelCapabilities{
		ContextWindow:        128_000,
		MaxOutputTokens:      4_096,
		SupportsSystemPrompt: true,
	}

	lower := strings.ToLower(model)
	// Strip an "org/" prefix as used by Groq and Ollama model ids.
	if i := strings.LastIndex(lower, "/"); i >= 0 {
		lower = lower[i+1:]
	}

	switch {
	// ── Meta Llama (Groq, Ollama) ────────────────────────────────────────────
	case strings.HasPrefix(lower, "llama-3.3-70b"), strings.HasPrefix(lower, "llama3.3"):
		caps.ContextWindow = 131_072
		caps.MaxOutputTokens = 32_768

	case strings.HasPrefix(lower, "llama-3.1-8b"), strings.HasPrefix(lower, "llama3.1"):
		caps.ContextWindow = 131_072
		caps.MaxOutputTokens = 131_072

	case strings.HasPrefix(lower, "llama-4"):
		caps.ContextWindow = 131_072
		caps.MaxOutputTokens = 8_192

	case strings.HasPrefix(lower, "llama"):
		caps.ContextWindow = 8_192
		caps.MaxOutputTokens = 8_192

	// ── OpenAI GPT family ────────────────────────────────────────────────────
	case strings.HasPrefix(lower, "gpt-4o"):
		caps.ContextWindow = 128_000
		caps.MaxOutputTokens = 16_384

	case strings.HasPrefix(lower, "gpt-4-turbo"), strings.HasPrefix(lower, "gpt-4"):
		caps.ContextWindow = 8_192
		if strings.HasPrefix(lower, "gpt-4-turbo") {
			caps.ContextWindow = 128_000
		}
		caps.MaxOutputTokens = 4_096

	case strings.HasPrefix(lower, "gpt-3.5-turbo"):
		caps.ContextWindow = 16_385
		caps.MaxOutputTokens = 4_096

	// ── OpenAI o-series reasoning models ─────────────────────────────────────
	case strings.HasPrefix(lower, "o1-mini"):
		caps.ContextWindow = 128_000
		caps.MaxOutputTokens = 65_536
		caps.SupportsSystemPrompt = false

	case strings.HasPrefix(lower, "o1"), strings.HasPrefix(lower, "o3"):
		caps.ContextWindow = 200_000
		caps.MaxOutputTokens = 100_000

	// ── Anthropic Claude ─────────────────────────────────────────────────────
	case strings.Contains(lower, "claude-3-opus"):
		caps.ContextWindow = 200_000
		caps.MaxOutputTokens = 4_096

	case strings.HasPrefix(lower, "claude"):
		caps.ContextWindow = 200_000
		caps.MaxOutputTokens = 8_192

	// ── Google Gemini ────────────────────────────────────────────────────────
	case strings.Contains(lower, "gemini-1.5-pro"):
		caps.ContextWindow = 2_097_152
		caps.MaxOutputTokens = 8_192

	case strings.HasPrefix(lower, "gemini"):
		caps.ContextWindow = 1_048_576
		caps.MaxOutputTokens = 8_192

	// ── Mistral ──────────────────────────────────────────────────────────────
	case strings.HasPrefix(lower, "mistral"), strings.HasPrefix(lower, "mixtral"):
		caps.ContextWindow = 32_768
		caps.MaxOutputTokens = 8_192
	}

	return caps
}
