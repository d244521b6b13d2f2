package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// Player renders synthesised audio on the local output device. Play blocks
// until playback has finished or ctx is cancelled.
type Player interface {
	Play(ctx context.Context, data []byte, encoding string) error
}

// ErrNoPlayer is returned by [NewCommandPlayer] when no supported playback
// binary is available on PATH.
var ErrNoPlayer = errors.New("audio: no playback command found")

// DefaultPlayerCommands lists the binaries probed by [NewCommandPlayer] when
// no explicit command is configured, in order of preference. Each reads the
// audio from stdin.
var DefaultPlayerCommands = [][]string{
	{"ffplay", "-nodisp", "-autoexit", "-loglevel", "error", "-i", "-"},
	{"mpv", "--no-video", "--really-quiet", "-"},
	{"play", "-q", "-t", "{encoding}", "-"},
}

// CommandPlayer plays audio by piping it to an external command such as
// ffplay. The placeholder "{encoding}" in any argument is replaced with the
// encoding passed to Play.
type CommandPlayer struct {
	argv []string
}

// NewCommandPlayer returns a CommandPlayer for command. If command is empty,
// the first binary of [DefaultPlayerCommands] found on PATH is used.
func NewCommandPlayer(command []string) (*CommandPlayer, error) {
	if len(command) > 0 {
		if _, err := exec.LookPath(command[0]); err != nil {
			return nil, fmt.Errorf("audio: player %q: %w", command[0], err)
		}
		return &CommandPlayer{argv: command}, nil
	}
	for _, argv := range DefaultPlayerCommands {
		if _, err := exec.LookPath(argv[0]); err == nil {
			return &CommandPlayer{argv: argv}, nil
		}
	}
	return nil, ErrNoPlayer
}

// Command returns the configured argv.
func (p *CommandPlayer) Command() []string { return p.argv }

// Play implements [Player].
func (p *CommandPlayer) Play(ctx context.Context, data []byte, encoding string) error {
	if len(data) == 0 {
		return errors.New("audio: play: empty audio")
	}
	args := make([]string, len(p.argv)-1)
	for i, a := range p.argv[1:] {
		args[i] = strings.ReplaceAll(a, "{encoding}", encoding)
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, p.argv[0], args...)
	cmd.Stdin = bytes.NewReader(data)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("audio: play: %w", ctx.Err())
		}
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("audio: play: %w: %s", err, msg)
		}
		return fmt.Errorf("audio: play: %w", err)
	}
	return nil
}

// NopPlayer discards audio. It is used when the host has no output device,
// e.g. a headless server whose clients play audio themselves.
type NopPlayer struct{}

// Play implements [Player].
func (NopPlayer) Play(ctx context.Context, _ []byte, _ string) error {
	return ctx.Err()
}

var (
	_ Player = (*CommandPlayer)(nil)
	_ Player = NopPlayer{}
)
