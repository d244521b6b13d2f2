package pipeline_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"iter"
	"os"
	"reflect"
	"strings"
	"sync"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/MrWong99/vaani/internal/observe"
	"github.com/MrWong99/vaani/internal/pipeline"
	"github.com/MrWong99/vaani/pkg/audio"
	audiomock "github.com/MrWong99/vaani/pkg/audio/mock"
	"github.com/MrWong99/vaani/pkg/provider/llm"
	llmmock "github.com/MrWong99/vaani/pkg/provider/llm/mock"
	"github.com/MrWong99/vaani/pkg/provider/stt"
	sttmock "github.com/MrWong99/vaani/pkg/provider/stt/mock"
	"github.com/MrWong99/vaani/pkg/provider/tts"
	ttsmock "github.com/MrWong99/vaani/pkg/provider/tts/mock"
)

// ─── fixture ──────────────────────────────────────────────────────────────────

type fixture struct {
	stt      *sttmock.Provider
	gen      *llmmock.Provider
	back     *llmmock.Provider
	tts      *ttsmock.Provider
	player   *audiomock.Player
	spoolDir string
	orch     *pipeline.Orchestrator
}

// newFixture wires the happy-path relay: "Hello" → "Hi there" → "नमस्ते" →
// ["ab", "cd"].
func newFixture(t *testing.T, opts ...pipeline.Option) *fixture {
	t.Helper()
	f := &fixture{
		stt:      &sttmock.Provider{Text: "Hello"},
		gen:      &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "Hi there"}},
		back:     &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "नमस्ते"}},
		tts:      &ttsmock.Provider{Chunks: [][]byte{[]byte("ab"), []byte("cd")}},
		player:   &audiomock.Player{},
		spoolDir: t.TempDir(),
	}
	spool, err := audio.NewSpool(f.spoolDir)
	if err != nil {
		t.Fatalf("NewSpool: %v", err)
	}
	base := []pipeline.Option{
		pipeline.WithPlayer(f.player),
		pipeline.WithSpool(spool),
		pipeline.WithBackTranslationLLM(f.back),
	}
	f.orch, err = pipeline.New(pipeline.DefaultConfig(), f.stt, f.gen, f.tts, append(base, opts...)...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return f
}

// assertSpoolEmpty checks that no staged capture outlived the run.
func (f *fixture) assertSpoolEmpty(t *testing.T) {
	t.Helper()
	entries, err := os.ReadDir(f.spoolDir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("spool dir holds %d files after the run, want 0", len(entries))
	}
}

// callCounts returns the provider call counts in stage order.
func (f *fixture) callCounts() [4]int {
	return [4]int{f.stt.CallCount(), f.gen.CallCount(), f.back.CallCount(), f.tts.CallCount()}
}

func testCapture() audio.Capture {
	pcm := make([]byte, 3200)
	for i := range pcm {
		pcm[i] = byte(i * 7)
	}
	return audio.NewPCMCapture(pcm, 16000, 1)
}

func kinds(events []pipeline.Event) []pipeline.EventKind {
	out := make([]pipeline.EventKind, len(events))
	for i, e := range events {
		out[i] = e.Kind
	}
	return out
}

// ─── empty capture ────────────────────────────────────────────────────────────

func TestRun_EmptyCaptureIsNoOp(t *testing.T) {
	f := newFixture(t)
	rec := pipeline.NewRecorder()

	for _, c := range []audio.Capture{
		{},
		audio.NewWAVCapture(nil),
		audio.NewPCMCapture(nil, 16000, 1),
		// Header only: a recorder stopped before the first sample.
		audio.NewWAVCapture(audio.EncodeWAV(nil, 16000, 1)),
	} {
		report, err := f.orch.Run(context.Background(), c, rec)
		if !errors.Is(err, pipeline.ErrEmptyCapture) {
			t.Fatalf("err = %v, want ErrEmptyCapture", err)
		}
		if report != nil {
			t.Errorf("report = %+v, want nil", report)
		}
	}

	if rec.Len() != 0 {
		t.Errorf("sink received %d events, want 0", rec.Len())
	}
	if got := f.callCounts(); got != [4]int{} {
		t.Errorf("provider calls = %v, want none", got)
	}
	if f.player.CallCount() != 0 {
		t.Errorf("player calls = %d, want 0", f.player.CallCount())
	}
	f.assertSpoolEmpty(t)
}

// ─── end to end ───────────────────────────────────────────────────────────────

func TestRun_EndToEnd(t *testing.T) {
	f := newFixture(t)
	rec := pipeline.NewRecorder()
	capture := testCapture()

	report, err := f.orch.Run(context.Background(), capture, rec)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if string(report.Audio) != "abcd" {
		t.Errorf("report.Audio = %q, want %q", report.Audio, "abcd")
	}
	if report.State != pipeline.StateDone {
		t.Errorf("report.State = %v, want done", report.State)
	}
	if report.ID == "" {
		t.Error("report.ID is empty")
	}
	if report.Query != "Hello" || report.Reply != "Hi there" || report.Localized != "नमस्ते" {
		t.Errorf("report artifacts = %q / %q / %q", report.Query, report.Reply, report.Localized)
	}
	if len(report.Durations) != 4 {
		t.Errorf("durations recorded for %d stages, want 4", len(report.Durations))
	}

	if got, want := rec.Texts(), []string{"Hello", "Hi there", "नमस्ते"}; !reflect.DeepEqual(got, want) {
		t.Errorf("displayed texts = %q, want %q", got, want)
	}
	wantKinds := []pipeline.EventKind{
		pipeline.EventCapture,
		pipeline.EventStageStarted, pipeline.EventStageText,
		pipeline.EventStageStarted, pipeline.EventStageText,
		pipeline.EventStageStarted, pipeline.EventStageText,
		pipeline.EventStageStarted, pipeline.EventAudio,
	}
	events := rec.Events()
	if got := kinds(events); !reflect.DeepEqual(got, wantKinds) {
		t.Fatalf("event kinds = %v, want %v", got, wantKinds)
	}
	if !bytes.Equal(events[0].Audio, capture.Data) {
		t.Error("capture echo differs from the input capture")
	}
	if string(events[8].Audio) != "abcd" || events[8].Encoding != audio.EncodingMP3 {
		t.Errorf("audio event = %q (%s), want abcd (mp3)", events[8].Audio, events[8].Encoding)
	}

	if f.player.CallCount() != 1 {
		t.Fatalf("player calls = %d, want 1", f.player.CallCount())
	}
	if string(f.player.PlayCalls[0].Data) != "abcd" {
		t.Errorf("played %q, want %q", f.player.PlayCalls[0].Data, "abcd")
	}
	if len(rec.Failures()) != 0 {
		t.Errorf("failures = %v, want none", rec.Failures())
	}
	f.assertSpoolEmpty(t)
}

// ─── stage hand-off ───────────────────────────────────────────────────────────

func TestRun_StageInputsEqualPreviousOutputs(t *testing.T) {
	f := newFixture(t)
	capture := testCapture()

	if _, err := f.orch.Run(context.Background(), capture, nil); err != nil {
		t.Fatalf("Run: %v", err)
	}

	// Transcription receives the capture bytes and the fixed request settings.
	sttReq := f.stt.TranslateCalls[0].Req
	if !bytes.Equal(sttReq.Audio, capture.Data) {
		t.Error("transcription audio differs from the capture")
	}
	if !strings.HasPrefix(sttReq.Filename, "capture-") || !strings.HasSuffix(sttReq.Filename, ".wav") {
		t.Errorf("filename = %q, want capture-*.wav", sttReq.Filename)
	}
	if sttReq.Prompt != "Translate Hindi speech to English text." {
		t.Errorf("prompt = %q", sttReq.Prompt)
	}
	if sttReq.ResponseFormat != stt.FormatJSON || sttReq.Temperature != 0 {
		t.Errorf("format/temperature = %q/%v, want json/0", sttReq.ResponseFormat, sttReq.Temperature)
	}

	// Generation receives the transcript verbatim as the user turn.
	genReq := f.gen.CompleteCalls[0].Req
	wantGen := llm.CompletionRequest{
		SystemPrompt: "You are a helpful AI.",
		Messages:     []llm.Message{llm.UserMessage("Hello")},
		Temperature:  0.5,
		TopP:         1,
		MaxTokens:    1024,
	}
	if !reflect.DeepEqual(genReq, wantGen) {
		t.Errorf("generation request = %+v, want %+v", genReq, wantGen)
	}

	// Back-translation wraps the reply in the translation directive.
	backReq := f.back.CompleteCalls[0].Req
	if backReq.SystemPrompt != "You are a translator." {
		t.Errorf("back-translation system = %q", backReq.SystemPrompt)
	}
	if len(backReq.Messages) != 1 || backReq.Messages[0].Content != "Translate to Hindi: Hi there" {
		t.Errorf("back-translation messages = %+v", backReq.Messages)
	}

	// Synthesis receives the localized reply and the voice settings.
	wantTTS := tts.Request{
		Text:         "नमस्ते",
		VoiceID:      "JBFqnCBsd6RMkjVDRZzb",
		Model:        "eleven_multilingual_v2",
		OutputFormat: "mp3_44100_128",
	}
	if got := f.tts.SynthesizeCalls[0].Req; got != wantTTS {
		t.Errorf("synthesis request = %+v, want %+v", got, wantTTS)
	}
}

func TestRun_EmptyTranscriptStillGenerates(t *testing.T) {
	f := newFixture(t)
	f.stt.Text = ""

	if _, err := f.orch.Run(context.Background(), testCapture(), nil); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if f.gen.CallCount() != 1 {
		t.Fatalf("generation calls = %d, want 1", f.gen.CallCount())
	}
	msgs := f.gen.CompleteCalls[0].Req.Messages
	if len(msgs) != 1 || msgs[0].Role != llm.RoleUser || msgs[0].Content != "" {
		t.Errorf("user turn = %+v, want empty user message", msgs)
	}
}

func TestRun_MaxTokensClampedToModel(t *testing.T) {
	f := newFixture(t)
	f.gen.ModelCapabilities = llm.ModelCapabilities{MaxOutputTokens: 512}

	if _, err := f.orch.Run(context.Background(), testCapture(), nil); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := f.gen.CompleteCalls[0].Req.MaxTokens; got != 512 {
		t.Errorf("MaxTokens = %d, want 512", got)
	}
	if got := f.back.CompleteCalls[0].Req.MaxTokens; got != 1024 {
		t.Errorf("back-translation MaxTokens = %d, want 1024", got)
	}
}

// ─── synthesis draining ───────────────────────────────────────────────────────

func TestRun_SynthesisDrainsAllChunks(t *testing.T) {
	f := newFixture(t)
	f.tts.Chunks = [][]byte{
		bytes.Repeat([]byte{1}, 10),
		bytes.Repeat([]byte{2}, 20),
		bytes.Repeat([]byte{3}, 5),
	}
	rec := pipeline.NewRecorder()

	report, err := f.orch.Run(context.Background(), testCapture(), rec)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := slicesConcat(f.tts.Chunks)
	if len(report.Audio) != 35 || !bytes.Equal(report.Audio, want) {
		t.Errorf("buffer = %d bytes, want the 35 concatenated bytes", len(report.Audio))
	}
	if f.player.CallCount() != 1 || !bytes.Equal(f.player.PlayCalls[0].Data, want) {
		t.Errorf("player did not receive the single 35-byte buffer")
	}
	var audioEvents int
	for _, e := range rec.Events() {
		if e.Kind == pipeline.EventAudio {
			audioEvents++
			if !bytes.Equal(e.Audio, want) {
				t.Errorf("sink audio = %d bytes, want 35", len(e.Audio))
			}
		}
	}
	if audioEvents != 1 {
		t.Errorf("audio events = %d, want 1", audioEvents)
	}
}

func TestRun_SynthesisEncodingFromContent(t *testing.T) {
	f := newFixture(t)
	wav := audio.EncodeWAV(make([]byte, 64), 22050, 1)
	f.tts.Chunks = [][]byte{wav[:20], wav[20:]}

	report, err := f.orch.Run(context.Background(), testCapture(), nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Encoding != audio.EncodingWAV || f.player.PlayCalls[0].Encoding != audio.EncodingWAV {
		t.Errorf("encoding = %q, want wav", report.Encoding)
	}
}

func slicesConcat(parts [][]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// ─── faults ───────────────────────────────────────────────────────────────────

var errBoom = errors.New("boom")

func TestRun_FaultAtStageStopsDownstream(t *testing.T) {
	tests := []struct {
		name   string
		inject func(f *fixture)
		stage  pipeline.Stage
		cause  error
	}{
		{
			name:   "transcription",
			inject: func(f *fixture) { f.stt.TranslateErr = errBoom },
			stage:  pipeline.StageTranscription,
			cause:  errBoom,
		},
		{
			name:   "generation",
			inject: func(f *fixture) { f.gen.CompleteErr = errBoom },
			stage:  pipeline.StageGeneration,
			cause:  errBoom,
		},
		{
			name:   "back-translation",
			inject: func(f *fixture) { f.back.CompleteErr = errBoom },
			stage:  pipeline.StageBackTranslation,
			cause:  errBoom,
		},
		{
			name:   "synthesis start",
			inject: func(f *fixture) { f.tts.SynthesizeErr = errBoom },
			stage:  pipeline.StageSynthesis,
			cause:  errBoom,
		},
		{
			name:   "synthesis mid-stream",
			inject: func(f *fixture) { f.tts.StreamErr = errBoom },
			stage:  pipeline.StageSynthesis,
			cause:  errBoom,
		},
		{
			name:   "synthesis empty",
			inject: func(f *fixture) { f.tts.Chunks = [][]byte{{}, nil} },
			stage:  pipeline.StageSynthesis,
			cause:  pipeline.ErrEmptyAudio,
		},
		{
			name:   "playback",
			inject: func(f *fixture) { f.player.PlayErr = errBoom },
			stage:  pipeline.StageSynthesis,
			cause:  errBoom,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			tc.inject(f)
			rec := pipeline.NewRecorder()

			report, err := f.orch.Run(context.Background(), testCapture(), rec)

			var se *pipeline.StageError
			if !errors.As(err, &se) {
				t.Fatalf("err = %v, want *StageError", err)
			}
			if se.Stage != tc.stage {
				t.Errorf("failed stage = %v, want %v", se.Stage, tc.stage)
			}
			if !errors.Is(err, tc.cause) {
				t.Errorf("err = %v, want cause %v", err, tc.cause)
			}
			if report == nil || report.State != pipeline.StateAborted || report.Err != se {
				t.Errorf("report = %+v, want aborted with the same error", report)
			}

			failures := rec.Failures()
			if len(failures) != 1 || failures[0].Stage != tc.stage {
				t.Fatalf("failures = %v, want exactly one naming %v", failures, tc.stage)
			}
			if events := rec.Events(); events[len(events)-1].Kind != pipeline.EventStageFailed {
				t.Error("the failure is not the last event")
			}

			// Stages after K are never invoked.
			counts := f.callCounts()
			for i, st := range pipeline.Stages {
				want := 1
				if st > tc.stage {
					want = 0
				}
				if counts[i] != want {
					t.Errorf("%v calls = %d, want %d", st, counts[i], want)
				}
			}
			// Every stage before K displayed its text.
			if got, want := len(rec.Texts()), int(tc.stage)-1; got != want {
				t.Errorf("displayed texts = %d, want %d", got, want)
			}
			f.assertSpoolEmpty(t)
		})
	}
}

func TestRun_GenerationFaultScenario(t *testing.T) {
	f := newFixture(t)
	f.gen.CompleteErr = errors.New("model overloaded")
	rec := pipeline.NewRecorder()

	_, err := f.orch.Run(context.Background(), testCapture(), rec)
	if err == nil {
		t.Fatal("Run succeeded, want generation failure")
	}

	var shown []string
	for _, e := range rec.Events() {
		switch e.Kind {
		case pipeline.EventStageText:
			shown = append(shown, e.Text)
		case pipeline.EventStageFailed:
			shown = append(shown, e.Error)
		}
	}
	want := []string{"Hello", "Generation error: model overloaded"}
	if !reflect.DeepEqual(shown, want) {
		t.Errorf("display = %q, want %q", shown, want)
	}
	if f.back.CallCount() != 0 {
		t.Errorf("back-translation calls = %d, want 0", f.back.CallCount())
	}
	if f.tts.CallCount() != 0 {
		t.Errorf("synthesis calls = %d, want 0", f.tts.CallCount())
	}
	if f.player.CallCount() != 0 {
		t.Errorf("player calls = %d, want 0", f.player.CallCount())
	}
}

func TestRun_NilProviderResults(t *testing.T) {
	f := newFixture(t)
	f.gen.CompleteResponse = nil

	_, err := f.orch.Run(context.Background(), testCapture(), nil)
	var se *pipeline.StageError
	if !errors.As(err, &se) || se.Stage != pipeline.StageGeneration {
		t.Fatalf("err = %v, want generation StageError", err)
	}
}

// ─── cancellation ─────────────────────────────────────────────────────────────

func TestRun_CancelledBeforeStart(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rec := pipeline.NewRecorder()

	_, err := f.orch.Run(ctx, testCapture(), rec)

	var se *pipeline.StageError
	if !errors.As(err, &se) || se.Stage != pipeline.StageTranscription {
		t.Fatalf("err = %v, want transcription StageError", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if got := f.callCounts(); got != [4]int{} {
		t.Errorf("provider calls = %v, want none", got)
	}
	if len(rec.Failures()) != 1 {
		t.Errorf("failures = %d, want 1", len(rec.Failures()))
	}
	f.assertSpoolEmpty(t)
}

func TestRun_CancelledMidRun(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.gen.CompleteFunc = func(context.Context, llm.CompletionRequest) (*llm.CompletionResponse, error) {
		cancel()
		return &llm.CompletionResponse{Content: "Hi there"}, nil
	}

	report, err := f.orch.Run(ctx, testCapture(), nil)

	var se *pipeline.StageError
	if !errors.As(err, &se) || se.Stage != pipeline.StageBackTranslation {
		t.Fatalf("err = %v, want back-translation StageError", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if report.Reply != "Hi there" {
		t.Errorf("report.Reply = %q, want the completed generation output", report.Reply)
	}
	if f.back.CallCount() != 0 || f.tts.CallCount() != 0 {
		t.Errorf("downstream calls = %d/%d, want 0/0", f.back.CallCount(), f.tts.CallCount())
	}
	f.assertSpoolEmpty(t)
}

// ─── state machine ────────────────────────────────────────────────────────────

type transitionLog struct {
	mu    sync.Mutex
	steps []string
}

func (l *transitionLog) hook(_ string, from, to pipeline.State) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.steps = append(l.steps, from.String()+">"+to.String())
}

func TestRun_StateTransitions(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		var log transitionLog
		f := newFixture(t, pipeline.WithTransitionHook(log.hook))
		if _, err := f.orch.Run(context.Background(), testCapture(), nil); err != nil {
			t.Fatalf("Run: %v", err)
		}
		want := []string{
			"idle>transcribing",
			"transcribing>generating",
			"generating>back_translating",
			"back_translating>synthesizing",
			"synthesizing>done",
		}
		if !reflect.DeepEqual(log.steps, want) {
			t.Errorf("transitions = %v, want %v", log.steps, want)
		}
	})

	t.Run("failure", func(t *testing.T) {
		var log transitionLog
		f := newFixture(t, pipeline.WithTransitionHook(log.hook))
		f.back.CompleteErr = errBoom
		_, _ = f.orch.Run(context.Background(), testCapture(), nil)
		want := []string{
			"idle>transcribing",
			"transcribing>generating",
			"generating>back_translating",
			"back_translating>aborted",
		}
		if !reflect.DeepEqual(log.steps, want) {
			t.Errorf("transitions = %v, want %v", log.steps, want)
		}
	})
}

// ─── metrics ──────────────────────────────────────────────────────────────────

func TestRun_RecordsMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	f := newFixture(t, pipeline.WithMetrics(m))
	if _, err := f.orch.Run(context.Background(), testCapture(), nil); err != nil {
		t.Fatalf("Run: %v", err)
	}
	f.gen.CompleteErr = errBoom
	_, _ = f.orch.Run(context.Background(), testCapture(), nil)

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	runs := map[string]int64{}
	var stagePoints, active int
	var activeValue int64
	for _, sm := range rm.ScopeMetrics {
		for _, met := range sm.Metrics {
			switch met.Name {
			case "vaani.runs":
				for _, dp := range met.Data.(metricdata.Sum[int64]).DataPoints {
					v, _ := dp.Attributes.Value("outcome")
					runs[v.AsString()] = dp.Value
				}
			case "vaani.stage.duration":
				stagePoints = len(met.Data.(metricdata.Histogram[float64]).DataPoints)
			case "vaani.active_runs":
				for _, dp := range met.Data.(metricdata.Sum[int64]).DataPoints {
					active++
					activeValue += dp.Value
				}
			}
		}
	}
	if runs[observe.OutcomeDone] != 1 || runs[observe.OutcomeAborted] != 1 {
		t.Errorf("runs = %v, want one done and one aborted", runs)
	}
	// 4 ok stages, then transcription ok again and generation error.
	if stagePoints != 5 {
		t.Errorf("stage duration series = %d, want 5", stagePoints)
	}
	if active == 0 || activeValue != 0 {
		t.Errorf("active runs = %d after completion, want 0", activeValue)
	}
}

// ─── isolation ────────────────────────────────────────────────────────────────

func TestRun_ConcurrentRunsAreIsolated(t *testing.T) {
	f := newFixture(t)
	f.stt.TranslateFunc = func(_ context.Context, req stt.Request) (*stt.Result, error) {
		return &stt.Result{Text: string(req.Audio)}, nil
	}
	echo := func(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
		return &llm.CompletionResponse{Content: req.Messages[0].Content}, nil
	}
	f.gen.CompleteFunc = echo
	f.back.CompleteFunc = echo
	f.tts.SynthesizeFunc = func(_ context.Context, req tts.Request) (iter.Seq2[[]byte, error], error) {
		return func(yield func([]byte, error) bool) { yield([]byte(req.Text), nil) }, nil
	}

	const n = 8
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			input := fmt.Sprintf("capture-%d", i)
			report, err := f.orch.Run(context.Background(), audio.Capture{Data: []byte(input), Encoding: audio.EncodingWAV}, nil)
			if err != nil {
				errs <- err
				return
			}
			if want := "Translate to Hindi: " + input; string(report.Audio) != want {
				errs <- fmt.Errorf("run %d produced %q, want %q", i, report.Audio, want)
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
	if f.player.CallCount() != n {
		t.Errorf("player calls = %d, want %d", f.player.CallCount(), n)
	}
	f.assertSpoolEmpty(t)
}

// ─── construction ─────────────────────────────────────────────────────────────

func TestNew_Validation(t *testing.T) {
	sttP := &sttmock.Provider{}
	llmP := &llmmock.Provider{}
	ttsP := &ttsmock.Provider{}
	spool, err := audio.NewSpool(t.TempDir())
	if err != nil {
		t.Fatalf("NewSpool: %v", err)
	}

	if _, err := pipeline.New(pipeline.DefaultConfig(), nil, nil, nil); err == nil {
		t.Error("New with nil providers succeeded")
	}

	noVoice := pipeline.DefaultConfig()
	noVoice.Synthesis.VoiceID = ""
	if _, err := pipeline.New(noVoice, sttP, llmP, ttsP, pipeline.WithSpool(spool)); err == nil {
		t.Error("New without a voice succeeded")
	}

	badTemplate := pipeline.DefaultConfig()
	badTemplate.BackTranslation.User = "Translate to {{ target"
	if _, err := pipeline.New(badTemplate, sttP, llmP, ttsP, pipeline.WithSpool(spool)); err == nil {
		t.Error("New with a broken template succeeded")
	}

	custom := pipeline.DefaultConfig()
	custom.Transcription.ResponseFormat = ""
	o, err := pipeline.New(custom, sttP, llmP, ttsP, pipeline.WithSpool(spool))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := o.Config().Transcription.ResponseFormat; got != stt.FormatJSON {
		t.Errorf("default response format = %q, want json", got)
	}
}

func TestRun_CustomLanguages(t *testing.T) {
	cfg := pipeline.DefaultConfig()
	cfg.Languages.Source = "Tamil"
	cfg.Languages.Target = "Tamil"
	cfg.Synthesis.LanguageCode = "ta"

	sttP := &sttmock.Provider{Text: "Hello"}
	llmP := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "Hi"}}
	ttsP := &ttsmock.Provider{Chunks: [][]byte{[]byte("x")}}
	spool, _ := audio.NewSpool(t.TempDir())
	o, err := pipeline.New(cfg, sttP, llmP, ttsP, pipeline.WithSpool(spool))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := o.Run(context.Background(), testCapture(), nil); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := sttP.TranslateCalls[0].Req.Prompt; got != "Translate Tamil speech to English text." {
		t.Errorf("prompt = %q", got)
	}
	// Generation and back-translation share the provider when no override is set.
	if llmP.CallCount() != 2 {
		t.Fatalf("llm calls = %d, want 2", llmP.CallCount())
	}
	if got := llmP.CompleteCalls[1].Req.Messages[0].Content; got != "Translate to Tamil: Hi" {
		t.Errorf("back-translation turn = %q", got)
	}
	if got := ttsP.SynthesizeCalls[0].Req.LanguageCode; got != "ta" {
		t.Errorf("language code = %q, want ta", got)
	}
}
