package gain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llehouerou/go-unidrc/internal/selection"
	"github.com/llehouerou/go-unidrc/internal/syntax"
)

const testFrame = 64

// drcConfig builds a config with one DRC set (id 1) over two channels
// using gain set 0. Gain set 1 has two bands split at subband 4.
func drcConfig(t *testing.T, effect syntax.Effect, gainSet int) *syntax.Config {
	t.Helper()
	single := syntax.GainSet{CodingProfile: syntax.GCPRegular, Interpolation: syntax.InterpolationLinear, TimeDeltaMin: 4, BandCount: 1}
	multi := single
	multi.BandCount = 2
	multi.Bands[1].StartSubBandIndex = 4
	multi.SequenceIndex = [syntax.MaxBands]int{1, 2}

	set := syntax.Instructions{
		ID:           1,
		Scope:        syntax.PlainScope{},
		Location:     syntax.LocationSelected,
		DownmixIDs:   []uint8{syntax.DownmixIDBase},
		Effect:       effect,
		ChannelCount: 2,
		GainSetIndex: []int{gainSet, gainSet},
	}
	if effect.Has(syntax.EffectDucking) {
		set.DuckingScaling = []syntax.DuckingModification{{Scaling: 1}, {Scaling: 1}}
	}
	require.NoError(t, syntax.DeriveChannelGroups(&set))

	cfg := &syntax.Config{
		Mode:          syntax.ModeMPEGH,
		ChannelLayout: syntax.ChannelLayout{BaseChannelCount: 2},
		Coefficients: []syntax.Coefficients{{
			Location:          syntax.LocationSelected,
			GainSets:          []syntax.GainSet{single, multi},
			GainSequenceCount: 3,
			SequenceGainSet:   []int{0, 1, 1},
		}},
		Instructions: []syntax.Instructions{set},
	}
	require.NoError(t, syntax.AddVirtualSets(cfg))
	return cfg
}

func selected(ids ...int) *selection.Output {
	return &selection.Output{
		SelectedIDs:        ids,
		SelectedDownmixIDs: make([]uint8, len(ids)),
		BaseChannelCount:   2,
		TargetChannelCount: 2,
		Boost:              1,
		Compress:           1,
	}
}

func newDecoder(t *testing.T, cfg Config) *Decoder {
	t.Helper()
	d, err := New(cfg)
	require.NoError(t, err)
	return d
}

func timeConfig() Config {
	return Config{FrameSize: testFrame, SampleRate: 48000, Delay: DelayNone}
}

// frame returns complete frame gains where every sequence has the given
// nodes.
func frame(nodes ...syntax.Node) *syntax.FrameGains {
	fg := &syntax.FrameGains{Count: 3, Status: true}
	for s := 0; s < fg.Count; s++ {
		fg.Sequences[s].Nodes = append([]syntax.Node(nil), nodes...)
	}
	return fg
}

func constant(db float32) *syntax.FrameGains {
	return frame(syntax.Node{Time: testFrame - 1, GainDB: db})
}

func dbToLinear(db float32) float32 {
	return fromDB(db).float()
}

func ones(channels, n int) [][]float32 {
	buf := make([][]float32, channels)
	for c := range buf {
		buf[c] = make([]float32, n)
		for i := range buf[c] {
			buf[c][i] = 1
		}
	}
	return buf
}

func TestNew(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		ok   bool
	}{
		{"time", timeConfig(), true},
		{"subband", Config{FrameSize: 64, SampleRate: 48000, Domain: DomainSubband, Subbands: 8, SubbandStep: 16}, true},
		{"zero frame", Config{SampleRate: 48000}, false},
		{"no sample rate", Config{FrameSize: 64}, false},
		{"subband without bands", Config{FrameSize: 64, SampleRate: 48000, Domain: DomainSubband, SubbandStep: 16}, false},
		{"step not dividing frame", Config{FrameSize: 64, SampleRate: 48000, Domain: DomainSubband, Subbands: 8, SubbandStep: 5}, false},
		{"unknown domain", Config{FrameSize: 64, SampleRate: 48000, Domain: 7}, false},
		{"unknown delay", Config{FrameSize: 64, SampleRate: 48000, Delay: 3}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidParam)
			}
		})
	}
}

func TestConfigure(t *testing.T) {
	d := newDecoder(t, timeConfig())
	cfg := drcConfig(t, syntax.EffectGeneralCompr, 0)

	require.NoError(t, d.Configure(cfg, selected(1)))
	pre := d.Active(LocationPreDownmix)
	require.Len(t, pre, 2)
	assert.True(t, pre[0].Identity(), "identity set first")
	assert.Equal(t, 1, pre[1].ID)
	assert.False(t, pre[1].Multiband)
	require.Len(t, d.Active(LocationPostDownmix), 1)
	assert.True(t, d.Active(LocationPostDownmix)[0].Identity())
	assert.Equal(t, 1, d.Slots())
	assert.False(t, d.Multiband(0))

	require.NoError(t, d.Configure(cfg, selected(-1)))
	assert.Zero(t, d.Slots(), "virtual sets need no curves")

	assert.ErrorIs(t, d.Configure(cfg, selected(7)), ErrUnknownSet)
	assert.ErrorIs(t, d.Configure(nil, selected(1)), ErrInvalidParam)

	multi := drcConfig(t, syntax.EffectGeneralCompr, 1)
	assert.ErrorIs(t, d.Configure(multi, selected(1)), ErrUnsupported)
}

func TestConfigure_PostDownmix(t *testing.T) {
	cfg := drcConfig(t, syntax.EffectGeneralCompr, 0)
	cfg.Instructions[0].DownmixIDs = []uint8{3}
	cfg.Instructions[0].ApplyToDownmix = true
	out := selected(1)
	out.SelectedDownmixIDs = []uint8{3}

	d := newDecoder(t, timeConfig())
	require.NoError(t, d.Configure(cfg, out))
	assert.Len(t, d.Active(LocationPreDownmix), 1)
	post := d.Active(LocationPostDownmix)
	require.Len(t, post, 2)
	assert.Equal(t, uint8(3), post[1].DownmixID)
}

func TestConfigure_MultibandSubband(t *testing.T) {
	d := newDecoder(t, Config{FrameSize: testFrame, SampleRate: 48000, Domain: DomainSubband, Subbands: 8, SubbandStep: 16, Delay: DelayNone})
	require.NoError(t, d.Configure(drcConfig(t, syntax.EffectGeneralCompr, 1), selected(1)))

	pre := d.Active(LocationPreDownmix)
	require.Len(t, pre, 1, "multiband set takes the identity slot")
	assert.True(t, pre[0].Multiband)
	assert.True(t, d.Multiband(0))
	assert.Equal(t, 2, d.Slots())
}

func TestProcessTime_UnityIsBitExact(t *testing.T) {
	d := newDecoder(t, timeConfig())
	require.NoError(t, d.Configure(drcConfig(t, syntax.EffectGeneralCompr, 0), selected(1)))

	buf := [][]float32{make([]float32, testFrame), make([]float32, testFrame)}
	for i := range buf[0] {
		buf[0][i] = float32(i) * 0.0123
		buf[1][i] = -float32(i) * 0.987
	}
	want := [][]float32{append([]float32(nil), buf[0]...), append([]float32(nil), buf[1]...)}

	for k := 0; k < 2; k++ {
		require.NoError(t, d.Preprocess(constant(0)))
		require.NoError(t, d.ProcessTime(LocationPreDownmix, buf, 0))
	}
	assert.Equal(t, want, buf)
}

func TestProcessTime_ConstantGain(t *testing.T) {
	d := newDecoder(t, timeConfig())
	require.NoError(t, d.Configure(drcConfig(t, syntax.EffectGeneralCompr, 0), selected(1)))
	g := dbToLinear(-6)

	// The first frame ramps from the unity history.
	require.NoError(t, d.Preprocess(constant(-6)))
	buf := ones(2, testFrame)
	require.NoError(t, d.ProcessTime(LocationPreDownmix, buf, 0))
	assert.InDelta(t, 1+(g-1)/testFrame, buf[0][0], 1e-6)
	assert.InDelta(t, g, buf[0][testFrame-1], 1e-6)
	assert.Equal(t, buf[0], buf[1])

	require.NoError(t, d.Preprocess(constant(-6)))
	buf = ones(2, testFrame)
	require.NoError(t, d.ProcessTime(LocationPreDownmix, buf, 0))
	for i := range buf[0] {
		assert.Equal(t, g, buf[0][i])
	}
}

func TestProcessTime_Interpolation(t *testing.T) {
	d := newDecoder(t, timeConfig())
	require.NoError(t, d.Configure(drcConfig(t, syntax.EffectGeneralCompr, 0), selected(1)))
	require.NoError(t, d.Preprocess(constant(0)))

	// 0 dB at sample 15, -20 dB at sample 31, held to the end.
	require.NoError(t, d.Preprocess(frame(
		syntax.Node{Time: 15, GainDB: 0},
		syntax.Node{Time: 31, GainDB: -20},
	)))
	buf := ones(1, testFrame)
	require.NoError(t, d.ProcessTime(LocationPreDownmix, buf, 0))

	assert.Equal(t, float32(1), buf[0][0])
	assert.Equal(t, float32(1), buf[0][15])
	assert.InDelta(t, 0.55, buf[0][23], 1e-6)
	assert.InDelta(t, 0.1, buf[0][31], 1e-6)
	assert.InDelta(t, 0.1, buf[0][testFrame-1], 1e-6)
}

func TestProcessTime_FrameDelay(t *testing.T) {
	cfg := timeConfig()
	cfg.Delay = DelayFrame
	d := newDecoder(t, cfg)
	require.NoError(t, d.Configure(drcConfig(t, syntax.EffectGeneralCompr, 0), selected(1)))
	g := dbToLinear(-6)

	require.NoError(t, d.Preprocess(constant(-6)))
	buf := ones(2, testFrame)
	require.NoError(t, d.ProcessTime(LocationPreDownmix, buf, 0))
	assert.Equal(t, ones(2, testFrame), buf, "gain arrives one frame late")

	require.NoError(t, d.Preprocess(constant(-6)))
	buf = ones(2, testFrame)
	require.NoError(t, d.ProcessTime(LocationPreDownmix, buf, 0))
	assert.InDelta(t, g, buf[0][testFrame-1], 1e-6)
	assert.Greater(t, buf[0][0], g)
}

func TestProcessTime_Errors(t *testing.T) {
	d := newDecoder(t, timeConfig())
	assert.ErrorIs(t, d.Preprocess(constant(0)), ErrNotConfigured)
	assert.ErrorIs(t, d.ProcessTime(LocationPreDownmix, ones(2, testFrame), 0), ErrNotConfigured)

	require.NoError(t, d.Configure(drcConfig(t, syntax.EffectGeneralCompr, 0), selected(1)))
	require.NoError(t, d.Preprocess(constant(0)))

	assert.ErrorIs(t, d.ProcessTime(LocationPreDownmix, ones(2, testFrame), 1), ErrChannelOffset)
	assert.ErrorIs(t, d.ProcessTime(LocationPreDownmix, ones(1, testFrame), -1), ErrChannelOffset)
	assert.ErrorIs(t, d.ProcessTime(LocationPreDownmix, ones(2, testFrame-1), 0), ErrInvalidParam)
	assert.ErrorIs(t, d.ProcessTime(Location(5), ones(2, testFrame), 0), ErrInvalidParam)
	assert.ErrorIs(t, d.ProcessSubband(LocationPreDownmix, nil, nil, 0), ErrInvalidParam)
	assert.ErrorIs(t, d.Preprocess(nil), ErrInvalidParam)

	require.NoError(t, d.Preprocess(frame(
		syntax.Node{Time: 20, GainDB: -3},
		syntax.Node{Time: 10, GainDB: -6},
	)))
	assert.ErrorIs(t, d.ProcessTime(LocationPreDownmix, ones(2, testFrame), 0), ErrTimeDelta)

	d.Reset()
	assert.ErrorIs(t, d.ProcessTime(LocationPreDownmix, ones(2, testFrame), 0), ErrNotConfigured)
}

func TestProcessTime_ChannelOffset(t *testing.T) {
	d := newDecoder(t, timeConfig())
	require.NoError(t, d.Configure(drcConfig(t, syntax.EffectGeneralCompr, 0), selected(1)))
	require.NoError(t, d.Preprocess(constant(-6)))
	require.NoError(t, d.Preprocess(constant(-6)))

	buf := ones(1, testFrame)
	require.NoError(t, d.ProcessTime(LocationPreDownmix, buf, 1))
	assert.Equal(t, dbToLinear(-6), buf[0][0], "second channel of the set")
}

func TestConceal(t *testing.T) {
	tests := []struct {
		last float32
		want float32
	}{
		{2.0, 1.8},
		{-2.0, -1.96},
		{0, 0},
	}
	for _, tt := range tests {
		d := newDecoder(t, timeConfig())
		require.NoError(t, d.Configure(drcConfig(t, syntax.EffectGeneralCompr, 0), selected(1)))
		require.NoError(t, d.Preprocess(frame(
			syntax.Node{Time: 7, GainDB: -10},
			syntax.Node{Time: 40, GainDB: tt.last},
		)))

		lost := &syntax.FrameGains{Count: 3}
		require.NoError(t, d.Preprocess(lost))
		for s := 0; s < lost.Count; s++ {
			require.Len(t, lost.Sequences[s].Nodes, 1)
			n := lost.Sequences[s].Nodes[0]
			assert.Equal(t, testFrame-1, n.Time)
			assert.InDelta(t, tt.want, n.GainDB, 1e-6, "last gain %g", tt.last)
		}
	}
}

func TestConceal_DecaysOverLostFrames(t *testing.T) {
	d := newDecoder(t, timeConfig())
	require.NoError(t, d.Configure(drcConfig(t, syntax.EffectGeneralCompr, 0), selected(1)))
	require.NoError(t, d.Preprocess(constant(-10)))

	want := float32(-10)
	for k := 0; k < 3; k++ {
		want *= ConcealDecayAttenuation
		lost := &syntax.FrameGains{Count: 3}
		require.NoError(t, d.Preprocess(lost))
		assert.InDelta(t, want, lost.Sequences[0].Nodes[0].GainDB, 1e-5)
	}
}

func TestLinear(t *testing.T) {
	tests := []struct {
		name   string
		effect syntax.Effect
		db     float32
		want   float32
	}{
		{"boost", syntax.EffectGeneralCompr, 6, 3},
		{"compress", syntax.EffectGeneralCompr, -6, -1.5},
		{"ducking ignores compress", syntax.EffectDuckSelf, -6, -6},
		{"fade ignores compress", syntax.EffectFade, -6, -6},
		{"clipping never amplifies", syntax.EffectClipping, 6, 0},
		{"clipping attenuation", syntax.EffectClipping, -6, -6},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newDecoder(t, timeConfig())
			d.boost, d.compress = 0.5, 0.25
			a := &ActiveDRC{Effect: tt.effect}
			g := &group{bands: 1, ducking: 1}
			g.attenuation[0], g.amplification[0] = 1, 1
			assert.InDelta(t, dbToLinear(tt.want), d.linear(tt.db, a, g, 0).float(), 1e-6)
		})
	}
}

func TestLinear_LimiterHeadroom(t *testing.T) {
	tests := []struct {
		name    string
		limiter float32
		norm    float32
		db      float32
		want    float32
	}{
		{"headroom above the gain", -6, 4, -1, -1},
		{"normalization eats the headroom", -1, 4, -1, -3},
		{"never amplifies", -6, 2, 3, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newDecoder(t, timeConfig())
			a := &ActiveDRC{
				Effect:                   syntax.EffectClipping,
				LimiterPeakTarget:        tt.limiter,
				LimiterPeakTargetPresent: true,
				NormalizationGainDB:      tt.norm,
			}
			g := &group{bands: 1, ducking: 1}
			g.attenuation[0], g.amplification[0] = 1, 1
			assert.InDelta(t, dbToLinear(tt.want), d.linear(tt.db, a, g, 0).float(), 1e-6)
		})
	}

	d := newDecoder(t, timeConfig())
	a := &ActiveDRC{Effect: syntax.EffectGeneralCompr, LimiterPeakTarget: -1, LimiterPeakTargetPresent: true, NormalizationGainDB: 4}
	g := &group{bands: 1, ducking: 1}
	g.attenuation[0], g.amplification[0] = 1, 1
	assert.InDelta(t, dbToLinear(2), d.linear(2, a, g, 0).float(), 1e-6, "only clipping sets are capped")
}

func TestConfigure_LimiterTarget(t *testing.T) {
	cfg := drcConfig(t, syntax.EffectClipping, 0)
	cfg.Instructions[0].LimiterPeakTargetPresent = true
	cfg.Instructions[0].LimiterPeakTarget = -1
	out := selected(1)
	out.LoudnessNormalizationGainDB = 4

	d := newDecoder(t, timeConfig())
	require.NoError(t, d.Configure(cfg, out))
	a := d.Active(LocationPreDownmix)[1]
	assert.True(t, a.LimiterPeakTargetPresent)
	assert.Equal(t, float32(-1), a.LimiterPeakTarget)
	assert.Equal(t, float32(4), a.NormalizationGainDB)

	require.NoError(t, d.Preprocess(constant(-1)))
	require.NoError(t, d.Preprocess(constant(-1)))
	buf := ones(2, testFrame)
	require.NoError(t, d.ProcessTime(LocationPreDownmix, buf, 0))
	assert.Equal(t, dbToLinear(-3), buf[0][10], "a -1 dBFS target after +4 dB normalization leaves -3 dB")
}

func TestPreprocess_HoldsGainWithoutNodes(t *testing.T) {
	d := newDecoder(t, timeConfig())
	require.NoError(t, d.Configure(drcConfig(t, syntax.EffectGeneralCompr, 0), selected(1)))
	require.NoError(t, d.Preprocess(constant(-6)))

	// With time alignment the frame end node belongs to the next frame.
	require.NoError(t, d.Preprocess(frame()))
	buf := ones(2, testFrame)
	require.NoError(t, d.ProcessTime(LocationPreDownmix, buf, 0))
	for i := range buf[0] {
		require.Equal(t, dbToLinear(-6), buf[0][i], "sample %d", i)
	}
}

func TestLinear_Modification(t *testing.T) {
	d := newDecoder(t, timeConfig())
	a := &ActiveDRC{Effect: syntax.EffectGeneralCompr}
	g := &group{bands: 1, ducking: 1}
	g.attenuation[0], g.amplification[0], g.offset[0] = 0.5, 2, -1

	assert.InDelta(t, dbToLinear(-4), d.linear(-6, a, g, 0).float(), 1e-6)
	assert.InDelta(t, dbToLinear(11), d.linear(6, a, g, 0).float(), 1e-6)

	duck := &ActiveDRC{Effect: syntax.EffectDuckOther}
	dg := &group{bands: 1, ducking: 1.5}
	dg.attenuation[0], dg.amplification[0] = 1, 1
	assert.InDelta(t, dbToLinear(-15), d.linear(-10, duck, dg, 0).float(), 1e-6)
}

func TestConfigure_Modification(t *testing.T) {
	cfg := drcConfig(t, syntax.EffectGeneralCompr, 0)
	m := syntax.DefaultGainModification()
	m.Bands[0].ScalingPresent = true
	m.Bands[0].AttenuationScaling = 0.5
	m.Bands[0].OffsetPresent = true
	m.Bands[0].Offset = 2
	cfg.Instructions[0].Groups[0].Modification = m

	d := newDecoder(t, timeConfig())
	require.NoError(t, d.Configure(cfg, selected(1)))
	require.NoError(t, d.Preprocess(constant(-8)))
	require.NoError(t, d.Preprocess(constant(-8)))

	buf := ones(2, testFrame)
	require.NoError(t, d.ProcessTime(LocationPreDownmix, buf, 0))
	assert.InDelta(t, dbToLinear(-2), buf[1][10], 1e-6)
}

func TestApplyChannelGains(t *testing.T) {
	d := newDecoder(t, timeConfig())
	buf := [][]float32{{0.3, -0.7, 0.11, 0.9}, {0.123456, 0.5, -1, 0.25}}
	want := [][]float32{append([]float32(nil), buf[0]...), append([]float32(nil), buf[1]...)}

	require.NoError(t, d.ApplyChannelGains(buf, []float32{1, 1}))
	require.NoError(t, d.ApplyChannelGains(buf, []float32{1, 1}))
	assert.Equal(t, want, buf, "unity is bit-exact")

	require.NoError(t, d.ApplyChannelGains(buf, []float32{0.5, 1}))
	assert.InDelta(t, 0.3*0.875, buf[0][0], 1e-6)
	assert.InDelta(t, 0.9*0.5, buf[0][3], 1e-6)
	assert.Equal(t, want[1], buf[1])

	buf = [][]float32{{1, 1, 1, 1}}
	require.NoError(t, d.ApplyChannelGains(buf, []float32{0.5}))
	assert.Equal(t, []float32{0.5, 0.5, 0.5, 0.5}, buf[0])

	assert.ErrorIs(t, d.ApplyChannelGains(ones(2, 4), []float32{1}), ErrInvalidParam)
}
