package huffman

import (
	"errors"

	"github.com/llehouerou/go-unidrc/internal/bits"
)

// ErrInvalidCodeword indicates the reader ran out of bits inside a
// codeword.
var ErrInvalidCodeword = errors.New("huffman: invalid codeword")

// ErrUnknownValue indicates a value that has no codeword.
var ErrUnknownValue = errors.New("huffman: value has no codeword")

// Decode reads one codeword from r and returns its value.
//
// The tree is traversed one bit at a time from the root until a leaf is
// reached, the same walk used for scale factor trees.
func (cb *Codebook) Decode(r *bits.Reader) (int16, error) {
	idx := int8(0)
	for idx >= 0 {
		b := r.Get1Bit()
		if r.Error() {
			return 0, ErrInvalidCodeword
		}
		idx = cb.tree[idx][b]
	}
	return int16(idx) + LeafOffset, nil
}

// Encode writes the codeword for value to w.
func (cb *Codebook) Encode(w *bits.Writer, value int16) error {
	cw, ok := cb.Lookup(value)
	if !ok {
		return ErrUnknownValue
	}
	w.PutBits(cw.Code, uint(cw.Len))
	return nil
}

// DeltaGainCodebook returns the delta-gain codebook for a gain coding
// profile (0 regular, 1 fading, 2 clipping/ducking).
func DeltaGainCodebook(profile uint8) *Codebook {
	if profile == 2 {
		return DeltaGainClipping
	}
	return DeltaGainRegular
}

// DecodeDeltaGain reads a gain difference in dB.
func DecodeDeltaGain(r *bits.Reader, profile uint8) (float32, error) {
	v, err := DeltaGainCodebook(profile).Decode(r)
	if err != nil {
		return 0, err
	}
	return float32(v) * DeltaGainStep, nil
}

// EncodeDeltaGain writes a gain difference given in 1/8 dB steps.
func EncodeDeltaGain(w *bits.Writer, profile uint8, steps int16) error {
	return DeltaGainCodebook(profile).Encode(w, steps)
}

// DecodeSlope reads a spline slope code and returns the steepness.
func DecodeSlope(r *bits.Reader) (float32, error) {
	v, err := Slope.Decode(r)
	if err != nil {
		return 0, err
	}
	return SlopeSteepness[v], nil
}
