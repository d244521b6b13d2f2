package resilience

import (
	"context"
	"errors"
	"iter"
	"sync"

	"github.com/MrWong99/vaani/internal/observe"
	"github.com/MrWong99/vaani/pkg/provider/llm"
	"github.com/MrWong99/vaani/pkg/provider/stt"
	"github.com/MrWong99/vaani/pkg/provider/tts"
)

// Provider kinds used as the "kind" metric attribute.
const (
	KindSTT = "stt"
	KindLLM = "llm"
	KindTTS = "tts"
)

// GuardConfig configures a provider guard.
type GuardConfig struct {
	// Name is the provider name reported in metrics and logs (e.g. "groq").
	Name string

	// CircuitBreaker tunes the guard's breaker. Its Name is derived from the
	// guard's kind and Name when empty.
	CircuitBreaker CircuitBreakerConfig

	// Metrics receives request and error counts. May be nil.
	Metrics *observe.Metrics
}

// guard is the breaker and metrics bookkeeping shared by all guards.
type guard struct {
	name    string
	kind    string
	breaker *CircuitBreaker
	metrics *observe.Metrics
}

func newGuard(kind string, cfg GuardConfig) guard {
	cbCfg := cfg.CircuitBreaker
	if cbCfg.Name == "" {
		cbCfg.Name = kind + "/" + cfg.Name
	}
	return guard{
		name:    cfg.Name,
		kind:    kind,
		breaker: NewCircuitBreaker(cbCfg),
		metrics: cfg.Metrics,
	}
}

// record counts one finished request.
func (g *guard) record(ctx context.Context, err error) {
	if g.metrics == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	status := "ok"
	switch {
	case err == nil:
	case errors.Is(err, ErrCircuitOpen):
		status = "rejected"
	default:
		status = "error"
	}
	g.metrics.RecordProviderRequest(ctx, g.name, g.kind, status)
	if err != nil {
		g.metrics.RecordProviderError(ctx, g.name, g.kind)
	}
}

// execute runs fn through the breaker and records the outcome.
func (g *guard) execute(ctx context.Context, fn func() error) error {
	err := g.breaker.Execute(fn)
	g.record(ctx, err)
	return err
}

// Breaker returns the guard's circuit breaker.
func (g *guard) Breaker() *CircuitBreaker {
	return g.breaker
}

// Ready reports an error while the breaker rejects calls. It has the shape of
// a readiness check.
func (g *guard) Ready(context.Context) error {
	if g.breaker.State() == StateOpen {
		return ErrCircuitOpen
	}
	return nil
}

// STTGuard implements [stt.Provider] on top of another provider with a
// circuit breaker and request metrics.
type STTGuard struct {
	guard
	p stt.Provider
}

var _ stt.Provider = (*STTGuard)(nil)

// NewSTTGuard wraps p.
func NewSTTGuard(p stt.Provider, cfg GuardConfig) *STTGuard {
	return &STTGuard{guard: newGuard(KindSTT, cfg), p: p}
}

// Translate forwards to the wrapped provider unless the breaker is open.
func (g *STTGuard) Translate(ctx context.Context, req stt.Request) (*stt.Result, error) {
	var res *stt.Result
	err := g.execute(ctx, func() error {
		var err error
		res, err = g.p.Translate(ctx, req)
		return err
	})
	return res, err
}

// LLMGuard implements [llm.Provider] on top of another provider with a
// circuit breaker and request metrics.
type LLMGuard struct {
	guard
	p llm.Provider
}

var _ llm.Provider = (*LLMGuard)(nil)

// NewLLMGuard wraps p.
func NewLLMGuard(p llm.Provider, cfg GuardConfig) *LLMGuard {
	return &LLMGuard{guard: newGuard(KindLLM, cfg), p: p}
}

// Complete forwards to the wrapped provider unless the breaker is open.
func (g *LLMGuard) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	var resp *llm.CompletionResponse
	err := g.execute(ctx, func() error {
		var err error
		resp, err = g.p.Complete(ctx, req)
		return err
	})
	return resp, err
}

// Capabilities returns the wrapped provider's capabilities. It is not guarded.
func (g *LLMGuard) Capabilities() llm.ModelCapabilities {
	return g.p.Capabilities()
}

// TTSGuard implements [tts.Provider] on top of another provider with a
// circuit breaker and request metrics. A synthesis counts as one request that
// ends when its audio sequence is exhausted, so mid-stream errors count
// against the provider too.
type TTSGuard struct {
	guard
	p tts.Provider
}

var _ tts.Provider = (*TTSGuard)(nil)

// NewTTSGuard wraps p.
func NewTTSGuard(p tts.Provider, cfg GuardConfig) *TTSGuard {
	return &TTSGuard{guard: newGuard(KindTTS, cfg), p: p}
}

// Synthesize starts synthesis on the wrapped provider unless the breaker is
// open. The request ends when the returned sequence is exhausted or, for a
// sequence that is never ranged over, when ctx is done. A sequence abandoned
// under a context that never ends holds its breaker slot.
func (g *TTSGuard) Synthesize(ctx context.Context, req tts.Request) (iter.Seq2[[]byte, error], error) {
	probe, err := g.breaker.allow()
	if err != nil {
		g.record(ctx, err)
		return nil, err
	}
	seq, err := g.p.Synthesize(ctx, req)
	if err != nil {
		g.breaker.done(probe, err)
		g.record(ctx, err)
		return nil, err
	}

	var once sync.Once
	finish := func(err error) {
		once.Do(func() {
			g.breaker.done(probe, err)
			g.record(ctx, err)
		})
	}
	stopAbandon := context.AfterFunc(ctx, func() { finish(ctx.Err()) })

	return func(yield func([]byte, error) bool) {
		stopAbandon()
		var streamErr error
		defer func() { finish(streamErr) }()
		for chunk, err := range seq {
			if err != nil {
				streamErr = err
				yield(nil, err)
				return
			}
			if !yield(chunk, nil) {
				return
			}
		}
	}, nil
}

// ListVoices forwards to the wrapped provider unless the breaker is open.
func (g *TTSGuard) ListVoices(ctx context.Context) ([]tts.VoiceProfile, error) {
	var voices []tts.VoiceProfile
	err := g.execute(ctx, func() error {
		var err error
		voices, err = g.p.ListVoices(ctx)
		return err
	})
	return voices, err
}
