// Package mock provides a test double for [stt.Provider].
//
// Set the exported result fields before use and inspect TranslateCalls
// afterwards:
//
//	p := &mock.Provider{Text: "Hello"}
//	res, _ := p.Translate(ctx, stt.Request{Audio: wav})
//	// p.TranslateCalls[0].Req.Audio == wav
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/vaani/pkg/provider/stt"
)

// TranslateCall records a single invocation of Provider.Translate.
type TranslateCall struct {
	// Ctx is the context passed to Translate.
	Ctx context.Context
	// Req is the request passed to Translate. Audio is a private copy.
	Req stt.Request
}

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// Text is returned as the translation when TranslateErr is nil.
	Text string

	// TranslateErr, if non-nil, is returned as the error from Translate.
	TranslateErr error

	// TranslateFunc, when set, replaces the canned Text/TranslateErr
	// behaviour. It is called after the call has been recorded.
	TranslateFunc func(ctx context.Context, req stt.Request) (*stt.Result, error)

	// TranslateCalls records every call to Translate.
	TranslateCalls []TranslateCall
}

// Translate records the call and returns Text or TranslateErr.
func (p *Provider) Translate(ctx context.Context, req stt.Request) (*stt.Result, error) {
	p.mu.Lock()
	audio := make([]byte, len(req.Audio))
	copy(audio, req.Audio)
	recorded := req
	recorded.Audio = audio
	p.TranslateCalls = append(p.TranslateCalls, TranslateCall{Ctx: ctx, Req: recorded})
	fn, text, err := p.TranslateFunc, p.Text, p.TranslateErr
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}
	if err != nil {
		return nil, err
	}
	return &stt.Result{Text: text, Language: "en"}, nil
}

// CallCount returns the number of Translate calls.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.TranslateCalls)
}

// Reset clears all recorded calls.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.TranslateCalls = nil
}

var _ stt.Provider = (*Provider)(nil)
