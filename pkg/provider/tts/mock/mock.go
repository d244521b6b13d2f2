// Package mock provides a test double for the tts.Provider interface.
//
// Use Provider to feed controlled audio chunks to consumers and to verify
// which text and voice were sent to the TTS backend.
//
// Example:
//
//	p := &mock.Provider{
//	    Chunks:           [][]byte{[]byte("audio1"), []byte("audio2")},
//	    ListVoicesResult: []tts.VoiceProfile{{ID: "v1", Name: "Alice"}},
//	}
//	seq, _ := p.Synthesize(ctx, tts.Request{Text: "hello"})
package mock

import (
	"context"
	"iter"
	"sync"

	"github.com/MrWong99/vaani/pkg/provider/tts"
)

// SynthesizeCall records a single invocation of Synthesize.
type SynthesizeCall struct {
	// Ctx is the context passed to Synthesize.
	Ctx context.Context
	// Req is the request passed to Synthesize.
	Req tts.Request
}

// Provider is a mock implementation of tts.Provider.
type Provider struct {
	mu sync.Mutex

	// Chunks are yielded in order by the sequence returned from Synthesize.
	Chunks [][]byte

	// SynthesizeErr, if non-nil, is returned from Synthesize before any
	// sequence is produced.
	SynthesizeErr error

	// StreamErr, if non-nil, is yielded after all Chunks have been delivered.
	StreamErr error

	// SynthesizeFunc, when set, replaces the canned behaviour. It is called
	// after the call has been recorded.
	SynthesizeFunc func(ctx context.Context, req tts.Request) (iter.Seq2[[]byte, error], error)

	// ListVoicesResult is returned by ListVoices.
	ListVoicesResult []tts.VoiceProfile

	// ListVoicesErr, if non-nil, is returned as the error from ListVoices.
	ListVoicesErr error

	// SynthesizeCalls records every call to Synthesize.
	SynthesizeCalls []SynthesizeCall

	// ListVoicesCallCount counts calls to ListVoices.
	ListVoicesCallCount int
}

// Synthesize records the call and returns a sequence over Chunks followed by
// StreamErr, or SynthesizeErr.
func (p *Provider) Synthesize(ctx context.Context, req tts.Request) (iter.Seq2[[]byte, error], error) {
	p.mu.Lock()
	p.SynthesizeCalls = append(p.SynthesizeCalls, SynthesizeCall{Ctx: ctx, Req: req})
	fn, startErr, streamErr := p.SynthesizeFunc, p.SynthesizeErr, p.StreamErr
	chunks := make([][]byte, len(p.Chunks))
	copy(chunks, p.Chunks)
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}
	if startErr != nil {
		return nil, startErr
	}
	return func(yield func([]byte, error) bool) {
		for _, c := range chunks {
			if !yield(c, nil) {
				return
			}
		}
		if streamErr != nil {
			yield(nil, streamErr)
		}
	}, nil
}

// ListVoices records the call and returns ListVoicesResult, ListVoicesErr.
func (p *Provider) ListVoices(_ context.Context) ([]tts.VoiceProfile, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ListVoicesCallCount++
	return p.ListVoicesResult, p.ListVoicesErr
}

// CallCount returns the number of Synthesize calls.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.SynthesizeCalls)
}

// Reset clears all recorded calls.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.SynthesizeCalls = nil
	p.ListVoicesCallCount = 0
}

var _ tts.Provider = (*Provider)(nil)
