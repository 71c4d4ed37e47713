package syntax

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveChannelGroups_FirstOccurrence(t *testing.T) {
	in := Instructions{ChannelCount: 5, GainSetIndex: []int{1, 0, 1, -1, 0}}
	require.NoError(t, DeriveChannelGroups(&in))

	require.Len(t, in.Groups, 2)
	assert.Equal(t, 1, in.Groups[0].GainSetIndex)
	assert.Equal(t, []int{0, 2}, in.Groups[0].Channels)
	assert.Equal(t, 0, in.Groups[1].GainSetIndex)
	assert.Equal(t, []int{1, 4}, in.Groups[1].Channels)
	assert.Equal(t, []int{0, 1, 0, -1, 1}, in.GroupForChannel)
	assert.Equal(t, DefaultGainModification(), in.Groups[0].Modification)
}

func TestDeriveChannelGroups_DuckOther(t *testing.T) {
	in := Instructions{
		Effect:       EffectDuckOther,
		ChannelCount: 4,
		GainSetIndex: []int{-1, 2, -1, -1},
		DuckingScaling: []DuckingModification{
			{Scaling: 1}, {Scaling: 1}, {Scaling: 1}, {Scaling: 1},
		},
	}
	require.NoError(t, DeriveChannelGroups(&in))

	require.Len(t, in.Groups, 1)
	assert.Equal(t, 2, in.Groups[0].GainSetIndex)
	assert.Equal(t, []int{0, 2, 3}, in.Groups[0].Channels, "the trigger channel is not ducked")
	assert.Equal(t, -1, in.GroupForChannel[1])
	assert.Equal(t, DuckingModification{Scaling: 1}, in.Groups[0].Modification)
}

func TestDeriveChannelGroups_DuckOtherAmbiguous(t *testing.T) {
	scaling := []DuckingModification{{Scaling: 1}, {Scaling: 1}, {Scaling: 1}}
	tests := []struct {
		name    string
		gainSet []int
	}{
		{"two sequences", []int{0, 1, -1}},
		{"no sequence", []int{-1, -1, -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := Instructions{
				Effect:         EffectDuckOther,
				ChannelCount:   3,
				GainSetIndex:   tt.gainSet,
				DuckingScaling: scaling,
			}
			assert.ErrorIs(t, DeriveChannelGroups(&in), ErrNotOK)
		})
	}
}

func TestDeriveChannelGroups_DuckingScalingSplitsGroups(t *testing.T) {
	in := Instructions{
		Effect:       EffectDuckSelf,
		ChannelCount: 3,
		GainSetIndex: []int{0, 0, 0},
		DuckingScaling: []DuckingModification{
			{Scaling: 1},
			{ScalingPresent: true, Scaling: 0.5},
			{Scaling: 1},
		},
	}
	require.NoError(t, DeriveChannelGroups(&in))

	require.Len(t, in.Groups, 2)
	assert.Equal(t, []int{0, 2}, in.Groups[0].Channels)
	assert.Equal(t, []int{1}, in.Groups[1].Channels)
	assert.Equal(t, DuckingModification{ScalingPresent: true, Scaling: 0.5}, in.Groups[1].Modification)
}

func TestDeriveChannelGroups_Capacity(t *testing.T) {
	in := Instructions{ChannelCount: MaxChannels + 1, GainSetIndex: make([]int, MaxChannels+1)}
	assert.ErrorIs(t, DeriveChannelGroups(&in), ErrMemory)
}

func TestDuckingScaling_RoundTrip(t *testing.T) {
	cfg := testConfig(t, 3, []GainSet{regularGainSet()})
	duck := testInstructions(t, 3, EffectDuckSelf, 3, 0)
	duck.DuckingScaling[1] = DuckingModification{ScalingPresent: true, Scaling: 0.625}
	duck.DuckingScaling[2] = DuckingModification{ScalingPresent: true, Scaling: 2}
	require.NoError(t, DeriveChannelGroups(&duck))
	cfg.Instructions = []Instructions{duck}

	got, _ := encodeConfig(t, cfg)
	p := got.InstructionsByID(3)
	require.NotNil(t, p)
	assert.Equal(t, duck.DuckingScaling, p.DuckingScaling)
	assert.Len(t, p.Groups, 3)
	assert.False(t, p.LimiterPeakTargetPresent)
}
