package web

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"
	"path/filepath"
	"strings"

	"github.com/MrWong99/vaani/internal/observe"
	"github.com/MrWong99/vaani/internal/pipeline"
	"github.com/MrWong99/vaani/pkg/audio"
)

// RunResponse is the body of a POST /api/runs response.
type RunResponse struct {
	ID        string           `json:"id"`
	State     pipeline.State   `json:"state"`
	Query     string           `json:"query,omitempty"`
	Reply     string           `json:"reply,omitempty"`
	Localized string           `json:"localized,omitempty"`
	Encoding  string           `json:"encoding,omitempty"`
	ElapsedMS int64            `json:"elapsed_ms"`
	StageMS   map[string]int64 `json:"stage_ms"`
	Error     string           `json:"error,omitempty"`
	Events    []pipeline.Event `json:"events"`
}

func newRunResponse(rep *pipeline.Report, events []pipeline.Event) RunResponse {
	resp := RunResponse{
		ID:        rep.ID,
		State:     rep.State,
		Query:     rep.Query,
		Reply:     rep.Reply,
		Localized: rep.Localized,
		Encoding:  rep.Encoding,
		ElapsedMS: rep.Elapsed.Milliseconds(),
		StageMS:   make(map[string]int64, len(rep.Durations)),
		Events:    events,
	}
	for st, d := range rep.Durations {
		resp.StageMS[st.String()] = d.Milliseconds()
	}
	if rep.Err != nil {
		resp.Error = rep.Err.Message()
	}
	return resp
}

// handleCreateRun executes one run synchronously. An aborted run is still a
// completed request: it answers 200 with state "aborted" and the failure
// notice, mirroring what the sink saw.
func (s *Server) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	log := observe.Logger(r.Context())

	capture, err := s.readCapture(w, r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("capture exceeds %d bytes", tooLarge.Limit))
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rec := pipeline.NewRecorder()
	rep, err := s.orchestrator().Run(r.Context(), capture, rec)
	if errors.Is(err, pipeline.ErrEmptyCapture) {
		writeError(w, http.StatusBadRequest, "empty capture")
		return
	}
	if rep == nil {
		writeError(w, http.StatusInternalServerError, "run failed")
		return
	}
	if err != nil {
		log.Debug("web: run aborted", "run_id", rep.ID, "err", err)
	}
	writeJSON(w, http.StatusOK, newRunResponse(rep, rec.Events()))
}

// readCapture extracts the capture from a multipart "audio" part or the raw
// body. The encoding comes from the part's filename, the content type or the
// data itself, in that order.
func (s *Server) readCapture(w http.ResponseWriter, r *http.Request) (audio.Capture, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		if err := r.ParseMultipartForm(s.opts.MaxUploadBytes); err != nil {
			return audio.Capture{}, fmt.Errorf("invalid multipart: %w", err)
		}
		file, header, err := r.FormFile("audio")
		if err != nil {
			return audio.Capture{}, fmt.Errorf("missing audio part: %w", err)
		}
		defer file.Close()

		data, err := io.ReadAll(file)
		if err != nil {
			return audio.Capture{}, err
		}
		enc := encodingFromMediaType(header.Header.Get("Content-Type"))
		if filepath.Ext(header.Filename) != "" {
			enc = audio.EncodingFromFilename(header.Filename)
		}
		return audio.Capture{Data: data, Encoding: audio.SniffEncoding(data, orWAV(enc))}, nil
	}

	data, err := io.ReadAll(r.Body)
	if err != nil {
		return audio.Capture{}, err
	}
	enc := encodingFromMediaType(mediaType)
	return audio.Capture{Data: data, Encoding: audio.SniffEncoding(data, orWAV(enc))}, nil
}

// encodingFromMediaType maps audio MIME types to capture encodings.
func encodingFromMediaType(mt string) string {
	mt, _, _ = mime.ParseMediaType(mt)
	switch mt {
	case "audio/wav", "audio/wave", "audio/x-wav", "audio/vnd.wave":
		return audio.EncodingWAV
	case "audio/mpeg", "audio/mp3":
		return audio.EncodingMP3
	case "audio/ogg":
		return audio.EncodingOgg
	case "audio/opus":
		return audio.EncodingOpus
	case "audio/webm", "video/webm":
		return audio.EncodingWebM
	case "audio/mp4", "audio/x-m4a", "audio/m4a", "audio/aac":
		return audio.EncodingM4A
	case "audio/flac", "audio/x-flac":
		return audio.EncodingFLAC
	}
	if sub, ok := strings.CutPrefix(mt, "audio/"); ok {
		return audio.EncodingFromFilename("capture." + path.Base(sub))
	}
	return ""
}

func orWAV(enc string) string {
	if enc == "" {
		return audio.EncodingWAV
	}
	return enc
}
