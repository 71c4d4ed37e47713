package pcm

import "errors"

// ErrNoMatrix is returned when no default downmix exists for a layout pair.
var ErrNoMatrix = errors.New("pcm: no default downmix matrix")

// 5.1 channel order of the default fold-down.
const (
	ChannelCenter = iota
	ChannelFrontLeft
	ChannelFrontRight
	ChannelRearLeft
	ChannelRearRight
	ChannelLFE
)

const (
	// DMMul normalizes the ITU-R BS.775 fold-down: 1/(1+sqrt(2)+1/sqrt(2)).
	DMMul = float32(0.3203772410170407)
	// RSQRT2 is 1/sqrt(2).
	RSQRT2 = float32(0.7071067811865475244)
)

// DefaultMatrix returns a row-major [target][base] downmix matrix for the
// layouts that have one: identity, n to mono, and 5.1 to stereo. The LFE
// channel is dropped.
func DefaultMatrix(base, target int) ([]float32, error) {
	if base <= 0 || target <= 0 {
		return nil, ErrNoMatrix
	}
	m := make([]float32, target*base)
	switch {
	case base == target:
		for i := 0; i < base; i++ {
			m[i*base+i] = 1
		}
	case target == 1:
		for i := range m {
			m[i] = 1 / float32(base)
		}
	case base == 6 && target == 2:
		left, right := m[:base], m[base:]
		left[ChannelFrontLeft] = DMMul
		left[ChannelCenter] = DMMul * RSQRT2
		left[ChannelRearLeft] = DMMul * RSQRT2
		right[ChannelFrontRight] = DMMul
		right[ChannelCenter] = DMMul * RSQRT2
		right[ChannelRearRight] = DMMul * RSQRT2
	default:
		return nil, ErrNoMatrix
	}
	return m, nil
}

// Downmix mixes src into dst with a row-major [len(dst)][len(src)]
// matrix. All channels must hold at least as many samples as dst[0].
func Downmix(dst, src [][]float32, matrix []float32) error {
	base, target := len(src), len(dst)
	if base == 0 || target == 0 || len(matrix) != base*target {
		return ErrShape
	}
	n := len(dst[0])
	for c := range src {
		if len(src[c]) < n {
			return ErrShape
		}
	}
	for o := range dst {
		if len(dst[o]) < n {
			return ErrShape
		}
		row := matrix[o*base : (o+1)*base]
		out := dst[o][:n]
		clear(out)
		for i, w := range row {
			if w == 0 {
				continue
			}
			for k, v := range src[i][:n] {
				out[k] += w * v
			}
		}
	}
	return nil
}
