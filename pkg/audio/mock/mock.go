// Package mock provides an in-memory [audio.Player] for use in unit tests.
//
// The mock is safe for concurrent use. It records every call so tests can
// assert on call counts and the exact bytes that reached playback.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/vaani/pkg/audio"
)

// PlayCall records a single invocation of [Player.Play].
type PlayCall struct {
	Data     []byte
	Encoding string
}

// Player is a mock implementation of [audio.Player].
type Player struct {
	mu sync.Mutex

	// PlayErr is returned by every call to Play.
	PlayErr error

	// PlayFunc, when set, is called instead of returning PlayErr.
	PlayFunc func(ctx context.Context, data []byte, encoding string) error

	// PlayCalls records every call to Play, in order.
	PlayCalls []PlayCall
}

// Play implements [audio.Player].
func (p *Player) Play(ctx context.Context, data []byte, encoding string) error {
	p.mu.Lock()
	cp := make([]byte, len(data))
	copy(cp, data)
	p.PlayCalls = append(p.PlayCalls, PlayCall{Data: cp, Encoding: encoding})
	fn, err := p.PlayFunc, p.PlayErr
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, data, encoding)
	}
	return err
}

// CallCount returns how many times Play was called.
func (p *Player) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.PlayCalls)
}

// Reset clears all recorded calls.
func (p *Player) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.PlayCalls = nil
}

var _ audio.Player = (*Player)(nil)
