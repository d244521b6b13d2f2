package audio

import (
	"log/slog"
	"math"
)

// Mono returns p downmixed to one channel and resampled to rate. Recordings
// with more than two channels keep only the first two. If p already matches,
// it is returned unchanged.
func (p PCM) Mono(rate int) PCM {
	data := p.Data
	if len(data)%2 != 0 {
		slog.Warn("audio: odd byte count in PCM data, truncating", "bytes", len(data))
		data = data[:len(data)-1]
	}

	switch {
	case p.Channels == 2:
		data = StereoToMono(data)
	case p.Channels > 2:
		data = StereoToMono(firstTwoChannels(data, p.Channels))
	}
	data = ResampleMono16(data, p.SampleRate, rate)

	return PCM{Data: data, SampleRate: rate, Channels: 1}
}

// Float32 converts 16-bit little-endian PCM samples to float32 in [-1, 1).
func (p PCM) Float32() []float32 {
	n := len(p.Data) / 2
	out := make([]float32, n)
	for i := range n {
		s := int16(p.Data[i*2]) | int16(p.Data[i*2+1])<<8
		out[i] = float32(s) / 32768.0
	}
	return out
}

// RMS returns the root-mean-square level of the samples in [0, 1].
func (p PCM) RMS() float64 {
	n := len(p.Data) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := range n {
		s := float64(int16(p.Data[i*2])|int16(p.Data[i*2+1])<<8) / 32768.0
		sum += s * s
	}
	return math.Sqrt(sum / float64(n))
}

// Duration returns the playback length of p in seconds.
func (p PCM) Duration() float64 {
	if p.SampleRate <= 0 || p.Channels <= 0 {
		return 0
	}
	return float64(len(p.Data)/2/p.Channels) / float64(p.SampleRate)
}

func firstTwoChannels(pcm []byte, channels int) []byte {
	frameSize := channels * 2
	frames := len(pcm) / frameSize
	out := make([]byte, frames*4)
	for i := range frames {
		copy(out[i*4:i*4+4], pcm[i*frameSize:i*frameSize+4])
	}
	return out
}

// StereoToMono averages L+R per stereo frame (4 bytes) to produce mono output.
// Uses int32 arithmetic to prevent overflow and clamps to int16 range.
func StereoToMono(pcm []byte) []byte {
	frames := len(pcm) / 4
	out := make([]byte, frames*2)
	for i := range frames {
		lSample := int32(int16(pcm[i*4]) | int16(pcm[i*4+1])<<8)
		rSample := int32(int16(pcm[i*4+2]) | int16(pcm[i*4+3])<<8)
		avg := (lSample + rSample) / 2

		if avg > 32767 {
			avg = 32767
		} else if avg < -32768 {
			avg = -32768
		}

		out[i*2] = byte(avg)
		out[i*2+1] = byte(avg >> 8)
	}
	return out
}

// ResampleMono16 resamples 16-bit mono PCM from srcRate to dstRate using linear
// interpolation. If srcRate == dstRate, the input is returned unchanged.
func ResampleMono16(pcm []byte, srcRate, dstRate int) []byte {
	if srcRate <= 0 || dstRate <= 0 {
		return pcm
	}
	if srcRate == dstRate || len(pcm) < 2 {
		return pcm
	}
	srcSamples := len(pcm) / 2
	dstSamples := int(int64(srcSamples) * int64(dstRate) / int64(srcRate))
	if dstSamples == 0 {
		return nil
	}

	out := make([]byte, dstSamples*2)
	ratio := float64(srcRate) / float64(dstRate)

	for i := range dstSamples {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := srcPos - float64(srcIdx)

		s0 := int16(pcm[srcIdx*2]) | int16(pcm[srcIdx*2+1])<<8
		s1 := s0
		if srcIdx+1 < srcSamples {
			s1 = int16(pcm[(srcIdx+1)*2]) | int16(pcm[(srcIdx+1)*2+1])<<8
		}

		interpolated := int16(float64(s0)*(1-frac) + float64(s1)*frac)
		out[i*2] = byte(interpolated)
		out[i*2+1] = byte(interpolated >> 8)
	}
	return out
}
