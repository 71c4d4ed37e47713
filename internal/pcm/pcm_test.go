package pcm

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClip16(t *testing.T) {
	tests := []struct {
		name  string
		input float32
		want  int16
	}{
		{"zero", 0, 0},
		{"half scale", 0.5, 16384},
		{"negative full scale", -1, -32768},
		{"clip positive", 1, 32767},
		{"clip above", 2, 32767},
		{"clip below", -2, -32768},
		{"round half even", 2.5 * FloatScale, 2},
		{"round half even up", 1.5 * FloatScale, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, clip16(tt.input))
		})
	}
}

func TestDecodeEncode(t *testing.T) {
	// Two channels, three frames: L0 R0 L1 R1 L2 R2.
	src := []byte{
		0x00, 0x40, 0x00, 0xC0,
		0x01, 0x00, 0xFF, 0xFF,
		0xFF, 0x7F, 0x00, 0x80,
	}
	buf := NewBuffer(2, 4)
	n := Decode(buf, src)
	require.Equal(t, 3, n)
	assert.Equal(t, []float32{0.5, FloatScale, 32767 * FloatScale, 0}, buf[0])
	assert.Equal(t, []float32{-0.5, -FloatScale, -1, 0}, buf[1])

	out, err := Encode(nil, buf, n)
	require.NoError(t, err)
	assert.Equal(t, src, out)
}

func TestDecode_ShortInput(t *testing.T) {
	buf := NewBuffer(2, 2)
	buf[0][1], buf[1][1] = 9, 9
	assert.Equal(t, 1, Decode(buf, []byte{0, 0x40, 0, 0x40, 0xAA}))
	assert.Equal(t, []float32{0.5, 0}, buf[0])
	assert.Equal(t, []float32{0.5, 0}, buf[1])
	assert.Zero(t, Decode(nil, []byte{1, 2}))
}

func TestEncode_Shape(t *testing.T) {
	_, err := Encode(nil, NewBuffer(2, 3), 4)
	assert.ErrorIs(t, err, ErrShape)
}

func TestPeakDB(t *testing.T) {
	buf := NewBuffer(2, 4)
	assert.True(t, math.IsInf(PeakDB(buf, 4), -1))
	buf[1][2] = -0.5
	assert.InDelta(t, -6.0206, PeakDB(buf, 4), 1e-3)
	assert.True(t, math.IsInf(PeakDB(buf, 2), -1), "peak beyond frames is ignored")
}
