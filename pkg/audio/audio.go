// Package audio holds the audio artefacts that flow through a vaani pipeline
// run and the collaborators that produce or consume them.
//
// A [Capture] is a complete user recording as delivered by the capture
// surface (browser recorder, CLI file, ...). It is spooled to scoped
// temporary storage for the lifetime of one run via [Spool]. Synthesised
// replies are assembled with [Collect] and handed to a [Player] for local
// playback.
//
// This package lives under pkg/ because external capture surfaces and
// players are expected to build on [Capture] and implement [Player].
package audio

import (
	"path/filepath"
	"strings"
)

// Encodings understood by the pipeline. Each doubles as the filename
// extension handed to speech backends as a format hint.
const (
	EncodingWAV  = "wav"
	EncodingMP3  = "mp3"
	EncodingPCM  = "pcm"
	EncodingOpus = "opus"
	EncodingOgg  = "ogg"
	EncodingWebM = "webm"
	EncodingM4A  = "m4a"
	EncodingMP4  = "mp4"
	EncodingFLAC = "flac"
)

// Capture is one complete recording of source-language speech.
type Capture struct {
	// Data is the encoded recording. For [EncodingWAV] this is a complete
	// RIFF/WAVE file.
	Data []byte

	// Encoding names the container of Data (e.g. "wav", "mp3"). Empty means
	// [EncodingWAV].
	Encoding string
}

// NewWAVCapture wraps an already encoded WAV file.
func NewWAVCapture(data []byte) Capture {
	return Capture{Data: data, Encoding: EncodingWAV}
}

// NewPCMCapture encodes raw 16-bit little-endian PCM as a WAV capture. An
// empty pcm slice yields an empty capture.
func NewPCMCapture(pcm []byte, sampleRate, channels int) Capture {
	if len(pcm) == 0 {
		return Capture{Encoding: EncodingWAV}
	}
	return Capture{Data: EncodeWAV(pcm, sampleRate, channels), Encoding: EncodingWAV}
}

// Len reports the encoded size of the capture in bytes.
func (c Capture) Len() int {
	return len(c.Data)
}

// Empty reports whether the capture holds no audio samples. Besides a
// zero-length capture this covers a WAV file whose data chunk is empty, which
// browser recorders emit when stopped immediately. An empty capture must not
// start a pipeline run.
func (c Capture) Empty() bool {
	if len(c.Data) == 0 {
		return true
	}
	if n, ok := wavPayloadSize(c.Data); ok {
		return n == 0
	}
	return false
}

// Ext returns the filename extension (with leading dot) for the capture's
// encoding.
func (c Capture) Ext() string {
	enc := c.Encoding
	if enc == "" {
		enc = EncodingWAV
	}
	return "." + strings.ToLower(enc)
}

// EncodingFromFilename derives an encoding from a filename extension,
// defaulting to [EncodingWAV] for unknown extensions.
func EncodingFromFilename(name string) string {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
	switch ext {
	case EncodingWAV, EncodingMP3, EncodingPCM, EncodingOpus, EncodingOgg,
		EncodingWebM, EncodingM4A, EncodingMP4, EncodingFLAC:
		return ext
	case "wave":
		return EncodingWAV
	case "oga":
		return EncodingOgg
	case "mpga", "mpeg":
		return EncodingMP3
	default:
		return EncodingWAV
	}
}

// EncodingFromFormat maps a synthesis output format such as "mp3_44100_128"
// or "pcm_16000" to its container encoding.
func EncodingFromFormat(format string) string {
	prefix, _, _ := strings.Cut(strings.ToLower(format), "_")
	switch prefix {
	case EncodingPCM, "ulaw", "alaw":
		return EncodingPCM
	case EncodingOpus:
		return EncodingOpus
	case "":
		return EncodingMP3
	default:
		return prefix
	}
}

// SniffEncoding identifies the container of data from its leading bytes and
// returns fallback when no known signature matches. A fallback naming the
// same container family as the signature (opus for Ogg, mp4 for ISO media)
// is kept.
func SniffEncoding(data []byte, fallback string) string {
	switch {
	case len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WAVE":
		return EncodingWAV
	case len(data) >= 4 && string(data[0:4]) == "OggS":
		if fallback == EncodingOpus {
			return fallback
		}
		return EncodingOgg
	case len(data) >= 4 && string(data[0:4]) == "\x1a\x45\xdf\xa3":
		return EncodingWebM
	case len(data) >= 4 && string(data[0:4]) == "fLaC":
		return EncodingFLAC
	case len(data) >= 8 && string(data[4:8]) == "ftyp":
		if fallback == EncodingMP4 {
			return fallback
		}
		return EncodingM4A
	case len(data) >= 3 && string(data[0:3]) == "ID3":
		return EncodingMP3
	case len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0:
		return EncodingMP3
	}
	return fallback
}
