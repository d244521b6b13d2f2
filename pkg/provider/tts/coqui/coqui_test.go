package coqui

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/vaani/pkg/audio"
	"github.com/MrWong99/vaani/pkg/provider/tts"
)

// ---- test helpers ----

func mustNew(t *testing.T, serverURL string, opts ...Option) *Provider {
	t.Helper()
	p, err := New(serverURL, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

// testWAV returns a mono 16-bit WAV with n samples of value v.
func testWAV(rate, n int, v int16) []byte {
	pcm := make([]byte, n*2)
	for i := range n {
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(v))
	}
	return audio.EncodeWAV(pcm, rate, 1)
}

// ---- constructor ----

func TestNew(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Error("expected error for empty serverURL")
	}
	if _, err := New("http://localhost:5002", WithAPIMode("bogus")); err == nil {
		t.Error("expected error for unknown API mode")
	}

	p := mustNew(t, "http://localhost:5002/", WithLanguage("hi"), WithTimeout(5*time.Second))
	if p.serverURL != "http://localhost:5002" {
		t.Errorf("serverURL = %q, trailing slash not trimmed", p.serverURL)
	}
	if p.apiMode != APIModeStandard {
		t.Errorf("default apiMode = %q, want standard", p.apiMode)
	}
	if p.language != "hi" || p.httpClient.Timeout != 5*time.Second {
		t.Errorf("options not applied: language=%q timeout=%v", p.language, p.httpClient.Timeout)
	}
}

// ---- Synthesize ----

func TestSynthesize_XTTS(t *testing.T) {
	wav := testWAV(24000, 3000, 1000)
	var (
		mu  sync.Mutex
		got ttsRequest
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != ttsEndpoint {
			http.NotFound(w, r)
			return
		}
		mu.Lock()
		_ = json.NewDecoder(r.Body).Decode(&got)
		mu.Unlock()
		w.Header().Set("Content-Type", "audio/wav")
		_, _ = w.Write(wav)
	}))
	defer srv.Close()

	p := mustNew(t, srv.URL, WithAPIMode(APIModeXTTS), WithLanguage("hi"))
	seq, err := p.Synthesize(context.Background(), tts.Request{Text: " नमस्ते ", VoiceID: "Ana Florence"})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}

	var chunks int
	var out []byte
	for chunk, err := range seq {
		if err != nil {
			t.Fatalf("chunk error: %v", err)
		}
		chunks++
		out = append(out, chunk...)
	}
	if string(out) != string(wav) {
		t.Errorf("output differs from server WAV (%d vs %d bytes)", len(out), len(wav))
	}
	if want := (len(wav) + chunkSize - 1) / chunkSize; chunks != want {
		t.Errorf("chunks = %d, want %d", chunks, want)
	}

	mu.Lock()
	defer mu.Unlock()
	if got.Text != "नमस्ते" || got.SpeakerWav != "Ana Florence" || got.Language != "hi" {
		t.Errorf("request = %+v", got)
	}
}

func TestSynthesize_XTTS_RequiresVoice(t *testing.T) {
	p := mustNew(t, "http://localhost:1", WithAPIMode(APIModeXTTS))
	if _, err := p.Synthesize(context.Background(), tts.Request{Text: "hi"}); err == nil {
		t.Fatal("expected error for missing voice in XTTS mode")
	}
}

func TestSynthesize_EmptyText(t *testing.T) {
	p := mustNew(t, "http://localhost:1")
	if _, err := p.Synthesize(context.Background(), tts.Request{Text: "   "}); err == nil {
		t.Fatal("expected error for empty text")
	}
}

func TestSynthesize_Standard_RequestLanguageWins(t *testing.T) {
	var (
		mu    sync.Mutex
		query map[string][]string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != apiTTSEndpoint {
			http.NotFound(w, r)
			return
		}
		mu.Lock()
		query = r.URL.Query()
		mu.Unlock()
		_, _ = w.Write(testWAV(16000, 10, 1))
	}))
	defer srv.Close()

	p := mustNew(t, srv.URL, WithVoice("p225"))
	seq, err := p.Synthesize(context.Background(), tts.Request{Text: "hello", LanguageCode: "de"})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if _, err := audio.Collect(seq); err != nil {
		t.Fatalf("Collect: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if query["text"][0] != "hello" || query["speaker_id"][0] != "p225" || query["language_id"][0] != "de" {
		t.Errorf("query = %v", query)
	}
}

func TestSynthesize_Resamples(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(testWAV(24000, 2400, 500))
	}))
	defer srv.Close()

	p := mustNew(t, srv.URL, WithOutputSampleRate(16000))
	seq, err := p.Synthesize(context.Background(), tts.Request{Text: "hello"})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	out, _ := audio.Collect(seq)
	pcm, err := audio.DecodeWAV(out)
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	if pcm.SampleRate != 16000 || len(pcm.Data)/2 != 1600 {
		t.Errorf("got %d Hz with %d samples, want 16000 Hz with 1600", pcm.SampleRate, len(pcm.Data)/2)
	}
}

func TestSynthesize_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := mustNew(t, srv.URL)
	_, err := p.Synthesize(context.Background(), tts.Request{Text: "hello"})
	if err == nil || !strings.Contains(err.Error(), "coqui:") {
		t.Fatalf("err = %v, want coqui error", err)
	}
}

func TestSynthesize_InvalidWAV(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("definitely not a wav"))
	}))
	defer srv.Close()

	p := mustNew(t, srv.URL)
	if _, err := p.Synthesize(context.Background(), tts.Request{Text: "hello"}); err == nil {
		t.Fatal("expected error for invalid WAV")
	}
}

// ---- ListVoices ----

func TestListVoices_XTTS_Sorted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != studioSpeakersEndpoint {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"speaker_bob":{},"speaker_alice":{}}`))
	}))
	defer srv.Close()

	p := mustNew(t, srv.URL, WithAPIMode(APIModeXTTS))
	voices, err := p.ListVoices(context.Background())
	if err != nil {
		t.Fatalf("ListVoices: %v", err)
	}
	if len(voices) != 2 || voices[0].ID != "speaker_alice" || voices[1].ID != "speaker_bob" {
		t.Fatalf("voices = %+v", voices)
	}
	if voices[0].Provider != "coqui" || voices[0].Metadata["type"] != "studio" {
		t.Errorf("voice[0] = %+v", voices[0])
	}
}

func TestListVoices_Standard(t *testing.T) {
	tests := []struct {
		name    string
		details detailsResponse
		wantIDs []string
		wantTyp string
	}{
		{
			name:    "multi-speaker model",
			details: detailsResponse{ModelName: "tts_models/en/vctk/vits", Speakers: []string{"p226", "p225"}},
			wantIDs: []string{"p225", "p226"},
			wantTyp: "speaker",
		},
		{
			name:    "single-speaker model",
			details: detailsResponse{ModelName: "tts_models/hi/fairseq/vits"},
			wantIDs: []string{"tts_models/hi/fairseq/vits"},
			wantTyp: "single-speaker",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			data, _ := json.Marshal(tc.details)
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != detailsEndpoint {
					http.NotFound(w, r)
					return
				}
				_, _ = w.Write(data)
			}))
			defer srv.Close()

			voices, err := mustNew(t, srv.URL).ListVoices(context.Background())
			if err != nil {
				t.Fatalf("ListVoices: %v", err)
			}
			if len(voices) != len(tc.wantIDs) {
				t.Fatalf("got %d voices, want %d", len(voices), len(tc.wantIDs))
			}
			for i, v := range voices {
				if v.ID != tc.wantIDs[i] || v.Metadata["type"] != tc.wantTyp {
					t.Errorf("voices[%d] = %+v", i, v)
				}
			}
		})
	}
}

func TestListVoices_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := mustNew(t, srv.URL).ListVoices(context.Background())
	if err == nil || !strings.Contains(err.Error(), "coqui:") {
		t.Fatalf("err = %v, want coqui error", err)
	}
}
