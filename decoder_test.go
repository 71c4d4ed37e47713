package unidrc

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llehouerou/go-unidrc/internal/bits"
	"github.com/llehouerou/go-unidrc/internal/syntax"
)

const (
	testFrame    = 256
	testRate     = 48000
	testChannels = 2
)

// configPayload encodes an MPEG-H DRC config with one compression set
// (id 5) over two channels.
func configPayload(t *testing.T) []byte {
	t.Helper()
	gs := syntax.GainSet{
		CodingProfile: syntax.GCPRegular,
		Interpolation: syntax.InterpolationLinear,
		TimeDeltaMin:  16,
		BandCount:     1,
	}
	set := syntax.Instructions{
		ID:                  5,
		Scope:               syntax.PlainScope{},
		Location:            syntax.LocationSelected,
		DownmixIDs:          []uint8{syntax.DownmixIDBase},
		Effect:              syntax.EffectGeneralCompr,
		TargetLoudnessLower: -63,
		ChannelCount:        testChannels,
		GainSetIndex:        []int{0, 0},
	}
	require.NoError(t, syntax.DeriveChannelGroups(&set))
	cfg := syntax.Config{
		Mode:          syntax.ModeMPEGH,
		SampleRate:    testRate,
		ChannelLayout: syntax.ChannelLayout{BaseChannelCount: testChannels},
		Coefficients: []syntax.Coefficients{{
			Location:          syntax.LocationSelected,
			GainSets:          []syntax.GainSet{gs},
			GainSequenceCount: 1,
			SequenceGainSet:   []int{0},
		}},
		Instructions: []syntax.Instructions{set},
	}
	w := bits.NewWriter()
	syntax.WriteConfig(w, &cfg)
	return w.Bytes()
}

func gainPayload(t *testing.T, d *Decoder, db float32) []byte {
	t.Helper()
	w := bits.NewWriter()
	require.NoError(t, syntax.WriteGain(w, d.Config(), 0, testFrame, []syntax.SequencePayload{
		{Simple: true, Nodes: []syntax.Node{{GainDB: db}}},
	}))
	return w.Bytes()
}

// newTestDecoder returns an initialized MPEG-H decoder without gain delay
// that has received the test config.
func newTestDecoder(t *testing.T, rng FunctionalRange) *Decoder {
	t.Helper()
	d, err := NewDecoder(rng)
	require.NoError(t, err)
	require.NoError(t, d.SetCodecMode(CodecModeMPEGH))
	require.NoError(t, d.SetParam(ParamDelayMode, float32(DelayNone)))
	require.NoError(t, d.Init(testFrame, testRate, testChannels))
	require.NoError(t, d.ReadUniDrcConfig(NewBitReader(configPayload(t)), 0))
	return d
}

func ones() [][]float32 {
	buf := make([][]float32, testChannels)
	for c := range buf {
		buf[c] = make([]float32, testFrame)
		for i := range buf[c] {
			buf[c][i] = 1
		}
	}
	return buf
}

// runFrame reads a gain payload (unless db is NaN), preprocesses and
// processes one frame of ones.
func runFrame(t *testing.T, d *Decoder, db float32) [][]float32 {
	t.Helper()
	if !math.IsNaN(float64(db)) {
		require.NoError(t, d.ReadUniDrcGain(NewBitReader(gainPayload(t, d, db)), 0))
	}
	require.NoError(t, d.Preprocess())
	buf := ones()
	require.NoError(t, d.ProcessTime(LocationPreDownmix, buf))
	return buf
}

func linear(db float64) float64 {
	return math.Pow(10, db/20)
}

func TestNewDecoder(t *testing.T) {
	_, err := NewDecoder(0)
	assert.ErrorIs(t, err, ErrInvalidParam)
	_, err = NewDecoder(FunctionalRangeAll + 1)
	assert.ErrorIs(t, err, ErrInvalidParam)

	d, err := NewDecoder(FunctionalRangeAll)
	require.NoError(t, err)
	v, err := d.GetParam(ParamIsStartupPhase)
	require.NoError(t, err)
	assert.Equal(t, float32(1), v)
}

func TestDecoder_CodecModeLock(t *testing.T) {
	d, err := NewDecoder(FunctionalRangeAll)
	require.NoError(t, err)

	assert.ErrorIs(t, d.ReadUniDrcConfig(NewBitReader(nil), 0), ErrNotReady)
	assert.ErrorIs(t, d.SetCodecMode(CodecModeUnset), ErrInvalidParam)

	require.NoError(t, d.SetCodecMode(CodecModeMPEGD))
	assert.NoError(t, d.SetCodecMode(CodecModeMPEGD))
	assert.ErrorIs(t, d.SetCodecMode(CodecModeMPEGH), ErrParamLocked)
	assert.ErrorIs(t, d.SetDownmixInstructions(nil), ErrUnsupportedFunction)
}

func TestDecoder_Init(t *testing.T) {
	d, err := NewDecoder(FunctionalRangeAll)
	require.NoError(t, err)

	assert.ErrorIs(t, d.Preprocess(), ErrNotReady)
	assert.ErrorIs(t, d.Init(0, testRate, 2), ErrInvalidParam)
	assert.ErrorIs(t, d.Init(testFrame, testRate, syntax.MaxChannels+1), ErrInvalidParam)

	require.NoError(t, d.Init(testFrame, testRate, 2))
	assert.ErrorIs(t, d.SetParam(ParamDelayMode, float32(DelayNone)), ErrParamLocked)
	// Without a configuration Preprocess has nothing to do.
	assert.NoError(t, d.Preprocess())
}

func TestDecoder_SelectsAndApplies(t *testing.T) {
	d := newTestDecoder(t, FunctionalRangeAll)
	require.NoError(t, d.SetParam(ParamLoudnessNormalization, 1))

	first := runFrame(t, d, -3)

	sel, ok := d.Selection()
	require.True(t, ok)
	assert.Equal(t, []int{5}, sel.SelectedIDs)
	n, err := d.GetParam(ParamNumSelectedDRCSets)
	require.NoError(t, err)
	assert.Equal(t, float32(1), n)
	active, err := d.GetParam(ParamIsActive)
	require.NoError(t, err)
	assert.Equal(t, float32(1), active)
	startup, err := d.GetParam(ParamIsStartupPhase)
	require.NoError(t, err)
	assert.Zero(t, startup)

	// The first frame ramps from unity to the coded gain.
	want := linear(-3)
	assert.InDelta(t, want, first[0][testFrame-1], 1e-4)
	assert.Greater(t, first[0][0], first[0][testFrame-1])

	second := runFrame(t, d, -3)
	for c := range second {
		for i, v := range second[c] {
			require.InDelta(t, want, v, 1e-4, "channel %d sample %d", c, i)
		}
	}
}

func TestDecoder_UnityIsBitExact(t *testing.T) {
	d := newTestDecoder(t, FunctionalRangeAll)
	for i := 0; i < 3; i++ {
		buf := runFrame(t, d, 0)
		assert.Equal(t, ones(), buf)
	}
}

func TestDecoder_StartupLeavesAudio(t *testing.T) {
	d := newTestDecoder(t, FunctionalRangeAll)
	buf := ones()
	require.NoError(t, d.ProcessTime(LocationPreDownmix, buf))
	assert.Equal(t, ones(), buf)

	_, err := d.GetParam(ParamOutputLoudness)
	assert.ErrorIs(t, err, ErrNotReady)
}

func TestDecoder_ReparseUnchanged(t *testing.T) {
	d := newTestDecoder(t, FunctionalRangeAll)
	runFrame(t, d, -3)
	require.False(t, d.stale())

	require.NoError(t, d.ReadUniDrcConfig(NewBitReader(configPayload(t)), 0))
	assert.False(t, d.stale(), "identical config must not trigger a new selection")

	// Setting a parameter to its current value is not a change either.
	require.NoError(t, d.SetParam(ParamBoost, 1))
	assert.False(t, d.stale())
	require.NoError(t, d.SetParam(ParamBoost, 0.5))
	assert.True(t, d.stale())
}

func TestDecoder_RejectedPayloadKeepsState(t *testing.T) {
	d := newTestDecoder(t, FunctionalRangeAll)
	cfg := d.Config()
	require.NotNil(t, cfg)

	err := d.ReadUniDrcConfig(NewBitReader(nil), 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, syntax.ErrBitstreamRead))
	assert.Equal(t, ErrNotOK, Code(err))
	assert.Same(t, cfg, d.Config())

	assert.ErrorIs(t, d.ReadUniDrcConfig(NewBitReader(nil), MaxSubstreams), ErrInvalidParam)
}

func TestDecoder_ParamOrderIndependent(t *testing.T) {
	type param struct {
		id Param
		v  float32
	}
	params := []param{
		{ParamTargetLoudness, -16},
		{ParamLoudnessNormalization, 1},
		{ParamEffectType, EffectTypeNight},
		{ParamOutputPeakLevelMax, -1},
		{ParamCompress, 0.5},
	}

	run := func(order []int) Selection {
		d := newTestDecoder(t, FunctionalRangeSelection)
		for _, i := range order {
			require.NoError(t, d.SetParam(params[i].id, params[i].v))
		}
		require.NoError(t, d.Preprocess())
		sel, ok := d.Selection()
		require.True(t, ok)
		return sel
	}

	want := run([]int{0, 1, 2, 3, 4})
	assert.Equal(t, want, run([]int{4, 3, 2, 1, 0}))
	assert.Equal(t, want, run([]int{2, 0, 4, 1, 3}))
	assert.Equal(t, float32(0.5), want.Compress)
}

func TestDecoder_SetParam(t *testing.T) {
	d, err := NewDecoder(FunctionalRangeAll)
	require.NoError(t, err)

	tests := []struct {
		name string
		id   Param
		v    float32
		want error
	}{
		{"target loudness", ParamTargetLoudness, -20, nil},
		{"target too loud", ParamTargetLoudness, 3, ErrParamOutOfRange},
		{"fractional effect", ParamEffectType, 1.5, ErrParamOutOfRange},
		{"unknown effect", ParamEffectType, 7, ErrParamOutOfRange},
		{"boost above one", ParamBoost, 1.5, ErrParamOutOfRange},
		{"read-only", ParamIsActive, 1, ErrInvalidParam},
		{"unknown", Param(999), 0, ErrInvalidParam},
		{"delay mode", ParamDelayMode, 2, ErrParamOutOfRange},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := d.SetParam(tt.id, tt.v)
			if tt.want == nil {
				require.NoError(t, err)
				got, err := d.GetParam(tt.id)
				require.NoError(t, err)
				assert.Equal(t, tt.v, got)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestDecoder_GroupIDs(t *testing.T) {
	d, err := NewDecoder(FunctionalRangeSelection)
	require.NoError(t, err)

	require.NoError(t, d.SetParam(ParamGroupID, 3))
	require.NoError(t, d.SetParam(ParamGroupID, 4))
	n, _ := d.GetParam(ParamGroupID)
	assert.Equal(t, float32(2), n)
	assert.Equal(t, []uint8{3, 4}, d.in.GroupIDs)

	require.NoError(t, d.SetParam(ParamGroupID, -1))
	assert.Empty(t, d.in.GroupIDs)
}

func TestDecoder_ConcealsMissingPayload(t *testing.T) {
	d := newTestDecoder(t, FunctionalRangeAll)
	runFrame(t, d, -3)
	runFrame(t, d, -3)

	buf := runFrame(t, d, float32(math.NaN()))
	assert.True(t, d.concealing)
	// An attenuation decays toward unity.
	assert.InDelta(t, linear(-3*0.98), buf[0][testFrame-1], 1e-4)

	runFrame(t, d, -3)
	assert.False(t, d.concealing)
}

func TestDecoder_SelectionOnly(t *testing.T) {
	d := newTestDecoder(t, FunctionalRangeSelection)
	require.NoError(t, d.Preprocess())

	sel, ok := d.Selection()
	require.True(t, ok)
	assert.Equal(t, []int{5}, sel.SelectedIDs)
	assert.ErrorIs(t, d.ProcessTime(LocationPreDownmix, ones()), ErrUnsupportedFunction)
	assert.ErrorIs(t, d.ReadUniDrcGain(NewBitReader(nil), 0), ErrUnsupportedFunction)
}

func TestDecoder_DRCOff(t *testing.T) {
	d := newTestDecoder(t, FunctionalRangeAll)
	require.NoError(t, d.SetParam(ParamEffectType, EffectTypeOff))

	buf := runFrame(t, d, -3)
	assert.Equal(t, ones(), buf)
	active, err := d.GetParam(ParamIsActive)
	require.NoError(t, err)
	assert.Zero(t, active)
}

func TestDecoder_Reset(t *testing.T) {
	d := newTestDecoder(t, FunctionalRangeAll)
	runFrame(t, d, -3)
	runFrame(t, d, -3)

	d.Reset()
	// History restarts from unity, so the next frame ramps again.
	buf := runFrame(t, d, -3)
	assert.InDelta(t, linear(-3), buf[0][testFrame-1], 1e-4)
	assert.Greater(t, buf[0][0], buf[0][testFrame-1])
}

func TestDecoder_Close(t *testing.T) {
	d := newTestDecoder(t, FunctionalRangeAll)
	require.NoError(t, d.Close())

	assert.ErrorIs(t, d.Close(), ErrNotOpened)
	assert.ErrorIs(t, d.Preprocess(), ErrNotOpened)
	assert.ErrorIs(t, d.SetParam(ParamBoost, 1), ErrNotOpened)
	_, err := d.GetParam(ParamBoost)
	assert.ErrorIs(t, err, ErrNotOpened)
	assert.ErrorIs(t, d.ProcessTime(LocationPreDownmix, ones()), ErrNotOpened)
}

func TestDecoder_DownmixInstructions(t *testing.T) {
	d := newTestDecoder(t, FunctionalRangeAll)

	dm := []DownmixInstructions{{ID: 3, TargetChannelCount: 1}}
	require.NoError(t, d.SetDownmixInstructions(dm))
	require.NoError(t, d.SetDownmixInstructions(dm))

	var virtual []*syntax.Instructions
	for i := range d.Config().Instructions {
		if d.Config().Instructions[i].IsVirtual() {
			virtual = append(virtual, &d.Config().Instructions[i])
		}
	}
	require.Len(t, virtual, 2)
	assert.Equal(t, []uint8{3}, virtual[1].DownmixIDs)
	assert.Equal(t, 1, virtual[1].ChannelCount)

	tooMany := make([]DownmixInstructions, syntax.MaxDownmixInstructions+1)
	assert.ErrorIs(t, d.SetDownmixInstructions(tooMany), ErrOutOfMemory)
	require.NoError(t, d.Preprocess())
}

func TestDecoder_ConfigBeforeInit(t *testing.T) {
	d, err := NewDecoder(FunctionalRangeAll)
	require.NoError(t, err)
	require.NoError(t, d.SetCodecMode(CodecModeMPEGH))
	require.NoError(t, d.SetParam(ParamDelayMode, float32(DelayNone)))
	require.NoError(t, d.ReadUniDrcConfig(NewBitReader(configPayload(t)), 0))
	assert.Equal(t, 1, d.Config().Coefficients[0].GainSets[0].TimeDeltaMin, "no sample rate yet")

	require.NoError(t, d.Init(testFrame, testRate, testChannels))
	gs := d.Config().Coefficients[0].GainSets[0]
	assert.False(t, gs.TimeDeltaMinPresent)
	assert.Equal(t, syntax.DefaultTimeDeltaMin(testRate), gs.TimeDeltaMin)

	w := bits.NewWriter()
	require.NoError(t, syntax.WriteGain(w, d.Config(), 0, testFrame, []syntax.SequencePayload{{
		FrameEnd: true,
		Nodes:    []syntax.Node{{Time: 127, GainDB: -2}, {GainDB: -1}},
	}}))
	require.NoError(t, d.ReadUniDrcGain(NewBitReader(w.Bytes()), 0))
	nodes := d.gains.Frame().Sequences[0].Nodes
	require.Len(t, nodes, 2)
	assert.Equal(t, 127, nodes[0].Time)
	assert.Equal(t, testFrame-1, nodes[1].Time)

	require.NoError(t, d.Preprocess())
	buf := ones()
	require.NoError(t, d.ProcessTime(LocationPreDownmix, buf))
	assert.InDelta(t, linear(-2), buf[0][127], 1e-4)
	assert.InDelta(t, (linear(-2)+linear(-1))/2, buf[1][191], 1e-4)
	assert.InDelta(t, linear(-1), buf[0][testFrame-1], 1e-4)
}

func TestDecoder_ChannelGainsReused(t *testing.T) {
	d := newTestDecoder(t, FunctionalRangeAll)
	d.out.LoudnessNormalizationGainDB = -6
	g := d.channelGains(testChannels)
	require.Len(t, g, testChannels)
	assert.InDelta(t, linear(-6), g[1], 1e-6)

	allocs := testing.AllocsPerRun(10, func() { d.channelGains(testChannels) })
	assert.Zero(t, allocs)
}
