package pipeline

import (
	"context"
	"slices"
	"sync"

	"github.com/MrWong99/vaani/pkg/audio"
)

// Sink receives the progressive output of a run. Every successful stage
// produces exactly one StageText or Audio call; a failing stage produces
// exactly one StageFailed call and nothing follows it.
//
// Sink methods are called from the goroutine executing [Orchestrator.Run]
// and must not block for long. They do not return errors: a sink that cannot
// deliver (e.g. a closed WebSocket) logs and drops.
type Sink interface {
	// Capture echoes the input recording back for playback.
	Capture(ctx context.Context, c audio.Capture)
	// StageStarted announces that stage is about to call its provider.
	StageStarted(ctx context.Context, stage Stage)
	// StageText delivers the text output of a text-producing stage.
	StageText(ctx context.Context, stage Stage, text string)
	// Audio delivers the complete synthesized reply.
	Audio(ctx context.Context, data []byte, encoding string)
	// StageFailed reports the run's failure.
	StageFailed(ctx context.Context, err *StageError)
}

// EventKind discriminates [Event]s.
type EventKind string

const (
	EventCapture      EventKind = "capture"
	EventStageStarted EventKind = "stage_started"
	EventStageText    EventKind = "stage_text"
	EventAudio        EventKind = "audio"
	EventStageFailed  EventKind = "stage_failed"
)

// Event is one sink call. Audio payloads marshal to base64 in JSON.
type Event struct {
	Kind     EventKind `json:"kind"`
	Stage    Stage     `json:"stage,omitempty"`
	Text     string    `json:"text,omitempty"`
	Audio    []byte    `json:"audio,omitempty"`
	Encoding string    `json:"encoding,omitempty"`
	Error    string    `json:"error,omitempty"`

	// Failure is set on EventStageFailed.
	Failure *StageError `json:"-"`
}

// Recorder is an in-memory [Sink] that keeps every event in order. It is safe
// for concurrent use.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

var _ Sink = (*Recorder)(nil)

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) add(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Capture records an EventCapture with a copy of the capture data.
func (r *Recorder) Capture(_ context.Context, c audio.Capture) {
	r.add(Event{Kind: EventCapture, Audio: slices.Clone(c.Data), Encoding: c.Encoding})
}

// StageStarted records an EventStageStarted.
func (r *Recorder) StageStarted(_ context.Context, stage Stage) {
	r.add(Event{Kind: EventStageStarted, Stage: stage})
}

// StageText records an EventStageText.
func (r *Recorder) StageText(_ context.Context, stage Stage, text string) {
	r.add(Event{Kind: EventStageText, Stage: stage, Text: text})
}

// Audio records an EventAudio with a copy of data.
func (r *Recorder) Audio(_ context.Context, data []byte, encoding string) {
	r.add(Event{Kind: EventAudio, Stage: StageSynthesis, Audio: slices.Clone(data), Encoding: encoding})
}

// StageFailed records an EventStageFailed.
func (r *Recorder) StageFailed(_ context.Context, err *StageError) {
	r.add(Event{Kind: EventStageFailed, Stage: err.Stage, Error: err.Message(), Failure: err})
}

// Events returns a copy of all recorded events in call order.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.events)
}

// Texts returns the StageText outputs in order.
func (r *Recorder) Texts() []string {
	var out []string
	for _, e := range r.Events() {
		if e.Kind == EventStageText {
			out = append(out, e.Text)
		}
	}
	return out
}

// Failures returns every reported StageError.
func (r *Recorder) Failures() []*StageError {
	var out []*StageError
	for _, e := range r.Events() {
		if e.Kind == EventStageFailed {
			out = append(out, e.Failure)
		}
	}
	return out
}

// Len returns the number of recorded events.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

// nopSink discards everything.
type nopSink struct{}

func (nopSink) Capture(context.Context, audio.Capture) {}
func (nopSink) StageStarted(context.Context, Stage) {}
func (nopSink) StageText(context.Context, Stage, string) {}
func (nopSink) Audio(context.Context, []byte, string) {}
func (nopSink) StageFailed(context.Context, *StageError) {}
