package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const bitsPerSample = 16

// ErrNotWAV is returned by [DecodeWAV] when the input is not a RIFF/WAVE file.
var ErrNotWAV = errors.New("audio: not a RIFF/WAVE file")

// PCM is decoded 16-bit little-endian PCM audio.
type PCM struct {
	Data       []byte
	SampleRate int
	Channels   int
}

// EncodeWAV wraps raw 16-bit signed little-endian PCM data in a standard
// RIFF/WAV container.
func EncodeWAV(pcm []byte, sampleRate, channels int) []byte {
	bps := bitsPerSample
	byteRate := sampleRate * channels * bps / 8
	blockAlign := channels * bps / 8
	dataSize := len(pcm)

	buf := make([]byte, 44+dataSize)

	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize))
	copy(buf[8:12], "WAVE")

	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(buf[34:36], uint16(bps))

	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))
	copy(buf[44:], pcm)

	return buf
}

// DecodeWAV extracts the PCM payload of a 16-bit PCM RIFF/WAVE file. Chunks
// other than "fmt " and "data" (LIST, fact, ...) are skipped.
func DecodeWAV(data []byte) (PCM, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return PCM{}, ErrNotWAV
	}

	var (
		out    PCM
		hasFmt bool
	)
	pos := 12
	for pos+8 <= len(data) {
		id := string(data[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(data[pos+4 : pos+8]))
		body := pos + 8
		end := body + size
		if end > len(data) {
			// Streaming recorders often leave the data size unset.
			end = len(data)
		}

		switch id {
		case "fmt ":
			if end-body < 16 {
				return PCM{}, fmt.Errorf("audio: fmt chunk too short (%d bytes)", end-body)
			}
			format := binary.LittleEndian.Uint16(data[body : body+2])
			bits := binary.LittleEndian.Uint16(data[body+14 : body+16])
			if format != 1 || bits != bitsPerSample {
				return PCM{}, fmt.Errorf("audio: unsupported wav encoding (format %d, %d bits)", format, bits)
			}
			out.Channels = int(binary.LittleEndian.Uint16(data[body+2 : body+4]))
			out.SampleRate = int(binary.LittleEndian.Uint32(data[body+4 : body+8]))
			hasFmt = true
		case "data":
			if !hasFmt {
				return PCM{}, errors.New("audio: data chunk before fmt chunk")
			}
			out.Data = data[body:end]
			return out, nil
		}

		// Chunks are word aligned.
		pos = end + size%2
	}
	return PCM{}, errors.New("audio: wav file has no data chunk")
}

// wavPayloadSize reports the number of payload bytes in the data chunk of a
// RIFF/WAVE file. ok is false when data is not a WAV file. A data chunk with
// an unset size counts every byte that follows its header.
func wavPayloadSize(data []byte) (n int, ok bool) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return 0, false
	}
	pos := 12
	for pos+8 <= len(data) {
		size := int(binary.LittleEndian.Uint32(data[pos+4 : pos+8]))
		body := pos + 8
		if string(data[pos:pos+4]) == "data" {
			remaining := len(data) - body
			if size == 0 || size > remaining {
				return remaining, true
			}
			return size, true
		}
		pos = body + size + size%2
	}
	return 0, true
}
