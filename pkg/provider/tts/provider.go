// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A TTS provider wraps a speech synthesis service (e.g., ElevenLabs or a local
// Coqui server) and presents a uniform chunked interface. Synthesize accepts
// the complete text of one utterance and returns a single-use sequence of
// encoded audio chunks in playback order. Consumers either stream the chunks
// onwards or drain them into one buffer with audio.Collect.
//
// Implementations must be safe for concurrent use.
package tts

import (
	"context"
	"iter"
)

// Request describes one utterance to synthesise.
type Request struct {
	// Text is the utterance. Must be non-empty.
	Text string

	// VoiceID is the provider-specific voice identifier. Empty selects the
	// provider's configured default.
	VoiceID string

	// Model is the provider-specific synthesis model (e.g.
	// "eleven_multilingual_v2"). Empty selects the provider default.
	Model string

	// OutputFormat selects the audio encoding, in ElevenLabs notation
	// ("mp3_44100_128", "pcm_16000", ...). Providers with a fixed output
	// format ignore it.
	OutputFormat string

	// LanguageCode is an optional ISO 639-1 hint for multilingual models.
	LanguageCode string
}

// Provider is the abstraction over any TTS backend.
//
// Implementations must be safe for concurrent use. Multiple synthesis requests may
// run in parallel.
type Provider interface {
	// Synthesize starts synthesis of req and returns the audio as a sequence of
	// chunks. The returned error is non-nil only when synthesis cannot start
	// (invalid request, rejected credentials, unreachable service).
	//
	// Errors after the first chunk are yielded as the final element of the
	// sequence with a nil chunk. The sequence may be ranged over at most once
	// and must be ranged over to release the underlying connection; breaking
	// out of the loop early releases it as well.
	Synthesize(ctx context.Context, req Request) (iter.Seq2[[]byte, error], error)

	// ListVoices returns all voice profiles available from this provider. The list
	// reflects the provider's current catalogue and may change between calls.
	ListVoices(ctx context.Context) ([]VoiceProfile, error)
}
