// This file contains the NativeProvider implementation backed by the
// whisper.cpp CGO bindings. The whisper.cpp static library (libwhisper.a)
// and headers (whisper.h) must be available at link time via LIBRARY_PATH
// and C_INCLUDE_PATH environment variables.

package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/MrWong99/vaani/pkg/audio"
	"github.com/MrWong99/vaani/pkg/provider/stt"
)

// silenceRMS is the level below which a whole capture is treated as silence
// and not sent to the model. whisper tends to hallucinate text on silence.
const silenceRMS = 0.01

// Compile-time assertion that NativeProvider satisfies stt.Provider.
var _ stt.Provider = (*NativeProvider)(nil)

// NativeProvider implements stt.Provider using whisper.cpp Go bindings
// (CGO), eliminating HTTP overhead entirely. The model is loaded once at
// startup and shared across all runs; each Translate call creates its own
// inference context.
type NativeProvider struct {
	model    whisperlib.Model
	language string
}

// NativeOption is a functional option for configuring a NativeProvider.
type NativeOption func(*NativeProvider)

// WithNativeLanguage sets the spoken-language code (e.g., "hi", "de").
// Defaults to "auto".
func WithNativeLanguage(lang string) NativeOption {
	return func(p *NativeProvider) { p.language = lang }
}

// NewNative creates a NativeProvider that loads the whisper.cpp model from
// the given file path. The caller must call Close when the provider is no
// longer needed.
func NewNative(modelPath string, opts ...NativeOption) (*NativeProvider, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}

	p := &NativeProvider{
		model:    model,
		language: defaultLanguage,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Close releases the whisper model.
func (p *NativeProvider) Close() error {
	if p.model != nil {
		return p.model.Close()
	}
	return nil
}

// Translate implements stt.Provider. The capture must be a 16-bit PCM WAV
// file; it is downmixed and resampled to 16 kHz mono before inference.
func (p *NativeProvider) Translate(ctx context.Context, req stt.Request) (*stt.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("whisper: %w", err)
	}
	start := time.Now()

	pcm, err := audio.DecodeWAV(req.Audio)
	if err != nil {
		return nil, fmt.Errorf("whisper: decode capture: %w", err)
	}
	mono := pcm.Mono(sampleRate)
	if mono.RMS() < silenceRMS {
		slog.Debug("whisper: capture is silent, skipping inference", "seconds", mono.Duration())
		return &stt.Result{Language: "en", Duration: time.Since(start)}, nil
	}

	text, err := p.infer(ctx, mono.Float32(), req)
	if err != nil {
		return nil, err
	}
	return &stt.Result{Text: text, Language: "en", Duration: time.Since(start)}, nil
}

// infer runs whisper.cpp in translate mode on a fresh context and returns the
// concatenated segment text.
func (p *NativeProvider) infer(ctx context.Context, samples []float32, req stt.Request) (string, error) {
	// Each context is NOT thread-safe, but the model can be shared across
	// goroutines.
	wctx, err := p.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("whisper: create context: %w", err)
	}

	if err := wctx.SetLanguage(p.language); err != nil {
		slog.Warn("whisper: failed to set language, using default", "language", p.language, "error", err)
	}
	wctx.SetTranslate(true)
	wctx.SetTemperature(float32(req.Temperature))
	if req.Prompt != "" {
		wctx.SetInitialPrompt(req.Prompt)
	}

	// Abort between encoder passes once the run is cancelled.
	encoderBegin := func() bool { return ctx.Err() == nil }
	if err := wctx.Process(samples, encoderBegin, nil, nil); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", fmt.Errorf("whisper: %w", ctxErr)
		}
		return "", fmt.Errorf("whisper: process audio: %w", err)
	}

	// Segments carry their own leading space; they are joined with exactly one.
	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("whisper: read segment: %w", err)
		}
		if text := strings.TrimSpace(segment.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " "), nil
}
