package pipeline

import (
	"errors"
	"fmt"
)

// Stage identifies one step of a run.
type Stage int

const (
	// StageTranscription turns captured speech into working-language text.
	StageTranscription Stage = iota + 1
	// StageGeneration asks the assistant model for a reply.
	StageGeneration
	// StageBackTranslation translates the reply into the spoken language.
	StageBackTranslation
	// StageSynthesis turns the localized reply into audio and plays it.
	StageSynthesis
)

// Stages lists every stage in execution order.
var Stages = []Stage{StageTranscription, StageGeneration, StageBackTranslation, StageSynthesis}

var stageNames = map[Stage]string{
	StageTranscription:   "transcription",
	StageGeneration:      "generation",
	StageBackTranslation: "back_translation",
	StageSynthesis:       "synthesis",
}

var stageLabels = map[Stage]string{
	StageTranscription:   "Transcription",
	StageGeneration:      "Generation",
	StageBackTranslation: "Back-translation",
	StageSynthesis:       "Synthesis",
}

// String returns the snake_case stage name used in logs, metrics and events.
func (s Stage) String() string {
	if n, ok := stageNames[s]; ok {
		return n
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

// Label returns the human-readable stage name.
func (s Stage) Label() string {
	if l, ok := stageLabels[s]; ok {
		return l
	}
	return s.String()
}

// MarshalText implements [encoding.TextMarshaler].
func (s Stage) MarshalText() ([]byte, error) {
	if _, ok := stageNames[s]; !ok {
		return nil, fmt.Errorf("pipeline: unknown stage %d", int(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements [encoding.TextUnmarshaler].
func (s *Stage) UnmarshalText(b []byte) error {
	for st, n := range stageNames {
		if n == string(b) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("pipeline: unknown stage %q", b)
}

// state is the stage's active run state.
func (s Stage) state() State {
	switch s {
	case StageTranscription:
		return StateTranscribing
	case StageGeneration:
		return StateGenerating
	case StageBackTranslation:
		return StateBackTranslating
	case StageSynthesis:
		return StateSynthesizing
	}
	return StateIdle
}

// State is the position of a run in its lifecycle:
//
//	Idle → Transcribing → Generating → BackTranslating → Synthesizing → Done
//
// with a single failure transition from any active state to Aborted.
type State int

const (
	StateIdle State = iota
	StateTranscribing
	StateGenerating
	StateBackTranslating
	StateSynthesizing
	StateDone
	StateAborted
)

var stateNames = [...]string{
	StateIdle:            "idle",
	StateTranscribing:    "transcribing",
	StateGenerating:      "generating",
	StateBackTranslating: "back_translating",
	StateSynthesizing:    "synthesizing",
	StateDone:            "done",
	StateAborted:         "aborted",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// MarshalText implements [encoding.TextMarshaler].
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements [encoding.TextUnmarshaler].
func (s *State) UnmarshalText(b []byte) error {
	for st, n := range stateNames {
		if n == string(b) {
			*s = State(st)
			return nil
		}
	}
	return fmt.Errorf("pipeline: unknown state %q", b)
}

// Terminal reports whether no further transition can follow s.
func (s State) Terminal() bool {
	return s == StateDone || s == StateAborted
}

var (
	// ErrEmptyCapture is returned by [Orchestrator.Run] for a capture with no
	// audio. No run is started.
	ErrEmptyCapture = errors.New("pipeline: empty capture")

	// ErrEmptyAudio is the cause of a synthesis failure when the synthesizer
	// produced no bytes.
	ErrEmptyAudio = errors.New("pipeline: synthesizer returned no audio")
)

// StageError is the single failure of a run. Use [errors.As] to extract it
// from the error returned by [Orchestrator.Run].
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("pipeline: %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Message is the notice shown to the user in place of the stage's output.
func (e *StageError) Message() string {
	return fmt.Sprintf("%s error: %v", e.Stage.Label(), e.Err)
}
