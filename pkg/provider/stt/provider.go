// Package stt defines the Provider interface for speech-understanding backends.
//
// An STT provider wraps a batch speech-to-text service (e.g., Groq or OpenAI
// Whisper, a local whisper.cpp server, or the whisper.cpp bindings) that can
// translate recorded speech directly into a working-language text. The
// central operation is Translate: a complete recording goes in, translated
// text comes out.
//
// Implementations must be safe for concurrent use and must not retain the
// request audio after Translate returns.
package stt

import (
	"context"
	"time"
)

// Common response formats understood by Whisper-compatible backends. Only the
// JSON formats carry the text in a parseable envelope.
const (
	FormatJSON        = "json"
	FormatVerboseJSON = "verbose_json"
)

// Request describes one recording to translate.
type Request struct {
	// Audio is the encoded recording (typically RIFF/WAV). Must be non-empty.
	Audio []byte

	// Filename is the name under which Audio is uploaded. Several backends
	// detect the container format from the file extension, so it should end
	// in ".wav", ".mp3", etc.
	Filename string

	// Prompt is an instruction or vocabulary hint that biases decoding, e.g.
	// "Translate Hindi speech to English text.".
	Prompt string

	// ResponseFormat selects the backend response envelope. Empty means
	// [FormatJSON].
	ResponseFormat string

	// Temperature is the sampling temperature. Zero requests deterministic
	// decoding and is sent explicitly.
	Temperature float64
}

// Result is the outcome of a successful Translate call.
type Result struct {
	// Text is the translated text exactly as the service returned it,
	// surrounding whitespace included. May be empty when the recording
	// contained no recognisable speech.
	Text string

	// Language is the detected source language when the backend reports it.
	Language string

	// Duration is the recording length when the backend reports it.
	Duration time.Duration
}

// Provider is the abstraction over any speech translation backend.
type Provider interface {
	// Translate submits req and blocks until the backend returns translated
	// text. Returns an error for transport failures, non-success responses,
	// malformed payloads or a cancelled ctx. An empty Result.Text is not an
	// error.
	Translate(ctx context.Context, req Request) (*Result, error)
}
