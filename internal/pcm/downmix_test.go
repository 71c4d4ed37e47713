package pcm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultMatrix(t *testing.T) {
	m, err := DefaultMatrix(2, 2)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0, 0, 1}, m)

	m, err = DefaultMatrix(4, 1)
	require.NoError(t, err)
	assert.Equal(t, []float32{0.25, 0.25, 0.25, 0.25}, m)

	m, err = DefaultMatrix(6, 2)
	require.NoError(t, err)
	c := DMMul * RSQRT2
	assert.Equal(t, []float32{c, DMMul, 0, c, 0, 0}, m[:6])
	assert.Equal(t, []float32{c, 0, DMMul, 0, c, 0}, m[6:])

	for _, tt := range [][2]int{{0, 2}, {2, 0}, {6, 3}, {2, 6}} {
		_, err := DefaultMatrix(tt[0], tt[1])
		assert.ErrorIs(t, err, ErrNoMatrix, "%d to %d", tt[0], tt[1])
	}
}

func TestDownmix(t *testing.T) {
	src := [][]float32{{1, 2}, {3, 4}}
	dst := NewBuffer(1, 2)
	dst[0][0] = 100

	require.NoError(t, Downmix(dst, src, []float32{0.5, 0.5}))
	assert.Equal(t, []float32{2, 3}, dst[0])
}

func TestDownmix_FoldDown51(t *testing.T) {
	src := NewBuffer(6, 1)
	src[ChannelCenter][0] = 1
	src[ChannelFrontLeft][0] = 1
	src[ChannelLFE][0] = 1
	m, err := DefaultMatrix(6, 2)
	require.NoError(t, err)

	dst := NewBuffer(2, 1)
	require.NoError(t, Downmix(dst, src, m))
	assert.InDelta(t, DMMul*(1+RSQRT2), dst[0][0], 1e-6)
	assert.InDelta(t, DMMul*RSQRT2, dst[1][0], 1e-6)
}

func TestDownmix_Shape(t *testing.T) {
	src := NewBuffer(2, 4)
	assert.ErrorIs(t, Downmix(NewBuffer(1, 4), src, []float32{1}), ErrShape)
	assert.ErrorIs(t, Downmix(NewBuffer(1, 5), src, []float32{1, 1}), ErrShape)
	assert.ErrorIs(t, Downmix(nil, src, nil), ErrShape)
}
