package syntax

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/llehouerou/go-unidrc/internal/bits"
)

const testFrameSize = 1024

func regularGainSet() GainSet {
	gs := GainSet{
		CodingProfile: GCPRegular,
		Interpolation: InterpolationLinear,
		TimeDeltaMin:  16,
		BandCount:     1,
	}
	gs.Bands[0].DrcCharacteristic = 1
	return gs
}

// testInstructions returns a DRC set assigning gain set gainSet to every
// channel.
func testInstructions(t *testing.T, id int, effect Effect, channels, gainSet int) Instructions {
	t.Helper()
	in := Instructions{
		ID:                  id,
		Scope:               PlainScope{},
		Location:            LocationSelected,
		DownmixIDs:          []uint8{DownmixIDBase},
		Effect:              effect,
		TargetLoudnessLower: -63,
		ChannelCount:        channels,
		GainSetIndex:        make([]int, channels),
	}
	for c := range in.GainSetIndex {
		in.GainSetIndex[c] = gainSet
	}
	if effect.Has(EffectDucking) {
		in.DuckingScaling = make([]DuckingModification, channels)
		for c := range in.DuckingScaling {
			in.DuckingScaling[c] = DuckingModification{Scaling: 1}
		}
	}
	require.NoError(t, DeriveChannelGroups(&in))
	return in
}

// testConfig builds an MPEG-H config with one gain set per entry of sets
// and one DRC set per id using gain set 0 on all channels.
func testConfig(t *testing.T, channels int, sets []GainSet, ids ...int) Config {
	t.Helper()
	cfg := Config{
		Mode:          ModeMPEGH,
		SampleRate:    48000,
		ChannelLayout: ChannelLayout{BaseChannelCount: channels},
	}
	if len(sets) > 0 {
		c := Coefficients{Location: LocationSelected, GainSets: sets}
		require.NoError(t, c.deriveSequences())
		cfg.Coefficients = []Coefficients{c}
	}
	for _, id := range ids {
		cfg.Instructions = append(cfg.Instructions, testInstructions(t, id, EffectGeneralCompr, channels, 0))
	}
	return cfg
}

// encodeConfig writes cfg and parses it back, like a decoder receiving it.
func encodeConfig(t *testing.T, cfg Config) (Config, []byte) {
	t.Helper()
	w := bits.NewWriter()
	WriteConfig(w, &cfg)
	data := w.Bytes()
	parsed, err := ParseConfig(bits.NewReader(data), ConfigOptions{
		Mode:       cfg.Mode,
		SampleRate: 48000,
		Downmix:    cfg.Downmix,
	})
	require.NoError(t, err)
	return parsed, data
}

// gainPayload writes a uniDrcGain() payload for substream sub.
func gainPayload(t *testing.T, cfg *Config, sub int, payloads ...SequencePayload) *bits.Reader {
	t.Helper()
	w := bits.NewWriter()
	require.NoError(t, WriteGain(w, cfg, sub, testFrameSize, payloads))
	return bits.NewReader(w.Bytes())
}
