// Package pcm converts between interleaved 16-bit PCM and the planar
// float32 buffers the DRC decoder processes, and applies downmix matrices.
package pcm

import (
	"encoding/binary"
	"errors"
	"math"
)

// FloatScale maps the 16-bit range onto [-1.0, 1.0).
const FloatScale = float32(1.0 / 32768.0)

// BytesPerSample is the size of one s16le sample.
const BytesPerSample = 2

// ErrShape is returned when buffers do not agree on channels or length.
var ErrShape = errors.New("pcm: buffer shape mismatch")

// clip16 scales, clips and rounds a normalized sample to int16, rounding
// half to even.
func clip16(sample float32) int16 {
	v := sample * 32768
	if v >= 32767 {
		return 32767
	}
	if v <= -32768 {
		return -32768
	}
	return int16(math.RoundToEven(float64(v)))
}

// NewBuffer allocates a planar buffer of channels x frames samples.
func NewBuffer(channels, frames int) [][]float32 {
	buf := make([][]float32, channels)
	for c := range buf {
		buf[c] = make([]float32, frames)
	}
	return buf
}

// Decode deinterleaves s16le samples from src into dst. It returns the
// number of sample frames decoded; missing trailing samples are zeroed.
func Decode(dst [][]float32, src []byte) int {
	channels := len(dst)
	if channels == 0 {
		return 0
	}
	frames := len(dst[0])
	n := len(src) / (BytesPerSample * channels)
	if n > frames {
		n = frames
	}
	for i := 0; i < n; i++ {
		for c := 0; c < channels; c++ {
			off := (i*channels + c) * BytesPerSample
			dst[c][i] = float32(int16(binary.LittleEndian.Uint16(src[off:]))) * FloatScale
		}
	}
	for c := range dst {
		clear(dst[c][n:])
	}
	return n
}

// Encode interleaves the first frames samples of every channel of src as
// s16le and appends them to dst.
func Encode(dst []byte, src [][]float32, frames int) ([]byte, error) {
	for c := range src {
		if len(src[c]) < frames {
			return dst, ErrShape
		}
	}
	for i := 0; i < frames; i++ {
		for c := range src {
			dst = binary.LittleEndian.AppendUint16(dst, uint16(clip16(src[c][i])))
		}
	}
	return dst, nil
}

// PeakDB returns the sample peak of the first frames samples in dBFS, or
// -Inf for silence.
func PeakDB(buf [][]float32, frames int) float64 {
	var peak float32
	for c := range buf {
		for _, v := range buf[c][:min(frames, len(buf[c]))] {
			if v < 0 {
				v = -v
			}
			peak = max(peak, v)
		}
	}
	return 20 * math.Log10(float64(peak))
}
