package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/vaani/internal/observe"
	"github.com/MrWong99/vaani/internal/prompt"
	"github.com/MrWong99/vaani/pkg/audio"
	"github.com/MrWong99/vaani/pkg/provider/llm"
	"github.com/MrWong99/vaani/pkg/provider/stt"
	"github.com/MrWong99/vaani/pkg/provider/tts"
)

// Report summarises a finished run.
type Report struct {
	ID    string
	State State

	// Query is the transcription output.
	Query string
	// Reply is the generation output.
	Reply string
	// Localized is the back-translation output.
	Localized string
	// Audio is the synthesized reply and Encoding its container format.
	Audio    []byte
	Encoding string

	// Durations holds the wall time of every stage that started.
	Durations map[Stage]time.Duration
	Started   time.Time
	Elapsed   time.Duration

	// Err is the failure of an aborted run.
	Err *StageError
}

// run is the per-call state of one pipeline run. It is never shared.
type run struct {
	o      *Orchestrator
	sink   Sink
	log    *slog.Logger
	report *Report
}

// Run executes one pipeline run for capture, reporting progress to sink.
//
// A capture without samples returns [ErrEmptyCapture] without touching sink, the
// providers or the spool. Otherwise Run returns the run's Report and, if the
// run aborted, its [*StageError]. The staged capture is released on every
// path. A nil sink discards all output.
func (o *Orchestrator) Run(ctx context.Context, capture audio.Capture, sink Sink) (*Report, error) {
	if capture.Empty() {
		return nil, ErrEmptyCapture
	}
	if sink == nil {
		sink = nopSink{}
	}

	id := uuid.NewString()
	ctx, span := observe.StartSpan(ctx, "pipeline.run",
		trace.WithAttributes(
			attribute.String("run.id", id),
			attribute.Int("capture.bytes", capture.Len()),
		),
	)

	r := &run{
		o:    o,
		sink: sink,
		log:  observe.Logger(ctx).With("run_id", id),
		report: &Report{
			ID:        id,
			State:     StateIdle,
			Durations: make(map[Stage]time.Duration, len(Stages)),
			Started:   time.Now(),
		},
	}
	if o.metrics != nil {
		o.metrics.ActiveRuns.Add(ctx, 1)
		defer o.metrics.ActiveRuns.Add(context.WithoutCancel(ctx), -1)
	}

	r.log.Debug("run started", "capture_bytes", capture.Len(), "encoding", capture.Encoding)
	sink.Capture(ctx, capture)

	err := r.execute(ctx, capture)
	r.report.Elapsed = time.Since(r.report.Started)
	observe.EndSpan(span, err)

	if o.metrics != nil {
		o.metrics.RecordRun(context.WithoutCancel(ctx), r.outcome(), r.report.Elapsed)
	}
	if err != nil {
		r.log.Warn("run aborted", "stage", r.report.Err.Stage, "err", r.report.Err.Err, "elapsed", r.report.Elapsed)
		return r.report, err
	}
	r.log.Info("run completed", "elapsed", r.report.Elapsed, "audio_bytes", len(r.report.Audio))
	return r.report, nil
}

func (r *run) outcome() string {
	switch {
	case r.report.Err == nil:
		return observe.OutcomeDone
	case errors.Is(r.report.Err, context.Canceled), errors.Is(r.report.Err, context.DeadlineExceeded):
		return observe.OutcomeCancelled
	default:
		return observe.OutcomeAborted
	}
}

// execute runs the stages in order and returns the first failure.
func (r *run) execute(ctx context.Context, capture audio.Capture) error {
	var spooled *audio.SpoolFile
	defer func() {
		if spooled == nil {
			return
		}
		if err := spooled.Release(); err != nil {
			r.log.Warn("failed to release staged capture", "path", spooled.Path(), "err", err)
		}
	}()

	query, err := r.stageText(ctx, StageTranscription, func(ctx context.Context) (string, error) {
		var err error
		if spooled, err = r.o.spool.Write(capture); err != nil {
			return "", fmt.Errorf("stage capture: %w", err)
		}
		return r.transcribe(ctx, spooled)
	})
	if err != nil {
		return err
	}
	r.report.Query = query

	reply, err := r.stageText(ctx, StageGeneration, func(ctx context.Context) (string, error) {
		return r.complete(ctx, r.o.llm, r.o.cfg.Generation, r.o.generation, query)
	})
	if err != nil {
		return err
	}
	r.report.Reply = reply

	localized, err := r.stageText(ctx, StageBackTranslation, func(ctx context.Context) (string, error) {
		return r.complete(ctx, r.o.backLLM, r.o.cfg.BackTranslation, r.o.backTranslation, reply)
	})
	if err != nil {
		return err
	}
	r.report.Localized = localized

	if err := r.synthesize(ctx, localized); err != nil {
		return err
	}
	r.transition(StateDone)
	return nil
}

// stageText runs a text-producing stage and forwards its output to the sink.
func (r *run) stageText(ctx context.Context, stage Stage, fn func(context.Context) (string, error)) (string, error) {
	var text string
	err := r.stage(ctx, stage, func(ctx context.Context) error {
		var err error
		text, err = fn(ctx)
		return err
	})
	if err != nil {
		return "", err
	}
	r.sink.StageText(ctx, stage, text)
	return text, nil
}

// stage wraps fn with the cancellation check, state transition, span,
// timing and failure reporting shared by all stages.
func (r *run) stage(ctx context.Context, stage Stage, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return r.fail(ctx, stage, err)
	}
	r.transition(stage.state())
	r.sink.StageStarted(ctx, stage)

	sctx, span := observe.StartSpan(ctx, "pipeline."+stage.String())
	start := time.Now()
	err := fn(sctx)
	d := time.Since(start)
	r.report.Durations[stage] = d
	observe.EndSpan(span, err)

	if r.o.metrics != nil {
		status := "ok"
		if err != nil {
			status = "error"
		}
		r.o.metrics.RecordStage(context.WithoutCancel(ctx), stage.String(), status, d)
	}
	if err != nil {
		return r.fail(ctx, stage, err)
	}
	r.log.Debug("stage completed", "stage", stage, "duration", d)
	return nil
}

// fail aborts the run at stage and reports the failure exactly once.
func (r *run) fail(ctx context.Context, stage Stage, cause error) error {
	se := &StageError{Stage: stage, Err: cause}
	r.report.Err = se
	r.transition(StateAborted)
	r.sink.StageFailed(ctx, se)
	return se
}

func (r *run) transition(to State) {
	from := r.report.State
	if from == to || from.Terminal() {
		return
	}
	r.report.State = to
	if r.o.onTransition != nil {
		r.o.onTransition(r.report.ID, from, to)
	}
}

func (r *run) vars(text string) prompt.Vars {
	return r.o.cfg.Languages.WithText(text)
}

func (r *run) transcribe(ctx context.Context, spooled *audio.SpoolFile) (string, error) {
	data, err := spooled.ReadAll()
	if err != nil {
		return "", err
	}
	directive, err := r.o.transcriptionPrompt.Render(r.vars(""))
	if err != nil {
		return "", err
	}
	res, err := r.o.stt.Translate(ctx, stt.Request{
		Audio:          data,
		Filename:       spooled.Name(),
		Prompt:         directive,
		ResponseFormat: r.o.cfg.Transcription.ResponseFormat,
		Temperature:    r.o.cfg.Transcription.Temperature,
	})
	if err != nil {
		return "", err
	}
	if res == nil {
		return "", errors.New("transcription returned no result")
	}
	return res.Text, nil
}

func (r *run) complete(ctx context.Context, p llm.Provider, cfg CompletionConfig, tpl completionTemplates, input string) (string, error) {
	vars := r.vars(input)
	system, err := tpl.system.Render(vars)
	if err != nil {
		return "", err
	}
	user, err := tpl.user.Render(vars)
	if err != nil {
		return "", err
	}
	resp, err := p.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: system,
		Messages:     []llm.Message{llm.UserMessage(user)},
		Temperature:  cfg.Temperature,
		TopP:         cfg.TopP,
		MaxTokens:    p.Capabilities().ClampMaxTokens(cfg.MaxTokens),
	})
	if err != nil {
		return "", err
	}
	if resp == nil {
		return "", errors.New("completion returned no response")
	}
	return resp.Content, nil
}

// synthesize drains the synthesizer into one buffer, delivers it to the sink
// and plays it once.
func (r *run) synthesize(ctx context.Context, text string) error {
	return r.stage(ctx, StageSynthesis, func(ctx context.Context) error {
		sc := r.o.cfg.Synthesis
		chunks, err := r.o.tts.Synthesize(ctx, tts.Request{
			Text:         text,
			VoiceID:      sc.VoiceID,
			Model:        sc.Model,
			OutputFormat: sc.OutputFormat,
			LanguageCode: sc.LanguageCode,
		})
		if err != nil {
			return err
		}
		data, err := audio.Collect(chunks)
		if err != nil {
			return err
		}
		if len(data) == 0 {
			return ErrEmptyAudio
		}
		if r.o.metrics != nil {
			r.o.metrics.SynthesizedBytes.Add(ctx, int64(len(data)))
		}

		encoding := audio.SniffEncoding(data, audio.EncodingFromFormat(sc.OutputFormat))
		r.report.Audio = data
		r.report.Encoding = encoding
		r.sink.Audio(ctx, data, encoding)

		if err := r.o.player.Play(ctx, data, encoding); err != nil {
			return fmt.Errorf("playback: %w", err)
		}
		return nil
	})
}
