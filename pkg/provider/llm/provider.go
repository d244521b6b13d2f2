// Package llm defines the Provider interface for Large Language Model backends.
//
// An LLM provider wraps a remote or local model API (e.g., Groq Llama, OpenAI
// GPT-4o, Anthropic Claude, or a local Ollama instance) and exposes a uniform
// interface for the vaani pipeline to perform single-shot chat completions
// without coupling to any specific SDK. The pipeline uses the same interface
// twice per run: once with an assistant persona to generate a reply, and once
// with a translator persona to localise that reply.
//
// Implementors must be safe for concurrent use.
package llm

import "context"

// Usage holds token accounting information returned by the LLM backend.
// All counts are in the model's native token unit and may differ between providers
// for the same textual content.
type Usage struct {
	// PromptTokens is the number of tokens consumed by the input messages and system
	// prompt.
	PromptTokens int

	// CompletionTokens is the number of tokens generated in the response.
	CompletionTokens int

	// TotalTokens is PromptTokens + CompletionTokens.
	TotalTokens int
}

// CompletionRequest carries everything the LLM needs to produce a response.
// Callers should treat a zero-value request as invalid; at minimum Messages must
// be non-empty.
type CompletionRequest struct {
	// Messages is the ordered conversation. The pipeline always sends exactly
	// one "user" message, whose content may be empty.
	Messages []Message

	// SystemPrompt is an optional high-priority instruction injected before the
	// conversation. Providers without a dedicated system field prepend it as a
	// "system"-role message.
	SystemPrompt string

	// Temperature controls output randomness in the range [0.0, 2.0]. It is
	// always forwarded, including 0.0 for greedy decoding.
	Temperature float64

	// TopP is the nucleus-sampling mass in (0.0, 1.0]. Zero means use the
	// provider default.
	TopP float64

	// MaxTokens caps the number of completion tokens the model may generate.
	// Zero means use the provider default.
	MaxTokens int
}

// CompletionResponse is returned by Complete.
type CompletionResponse struct {
	// Content is the text of the first choice of the assistant's reply. May be
	// empty.
	Content string

	// FinishReason reports why generation stopped ("stop", "length", ...).
	FinishReason string

	// Usage contains token accounting for this request/response pair.
	Usage Usage
}

// Provider is the abstraction over any LLM backend.
//
// Implementations must be safe for concurrent use from multiple goroutines and
// should return promptly when ctx is cancelled.
type Provider interface {
	// Complete sends req to the model and waits for the full response. The
	// first choice is returned. A response without choices is an error.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// Capabilities returns static metadata describing what this provider's underlying
	// model supports. The result is assumed to be constant for the lifetime of the
	// Provider instance.
	Capabilities() ModelCapabilities
}
