package syntax

import (
	"math"

	"github.com/llehouerou/go-unidrc/internal/bits"
)

// MPEG-H drcInstructionsType values.
const (
	instructionsTypePlain       = 0
	instructionsTypeGroup       = 2
	instructionsTypeGroupPreset = 3
)

// parseContext carries what instructions parsing needs from the rest of
// the configuration.
type parseContext struct {
	mode             Mode
	baseChannelCount int
	downmix          []DownmixInstructions
	coefficients     []Coefficients
}

func (ctx *parseContext) downmixByID(id uint8) *DownmixInstructions {
	for i := range ctx.downmix {
		if ctx.downmix[i].ID == id {
			return &ctx.downmix[i]
		}
	}
	return nil
}

// bandCount returns the band count of a gain set at a location, 1 when the
// gain set is unknown. Unknown references are rejected by selection.
func (ctx *parseContext) bandCount(location uint8, gainSet int) int {
	for i := range ctx.coefficients {
		c := &ctx.coefficients[i]
		if c.Location != location {
			continue
		}
		if gainSet >= 0 && gainSet < len(c.GainSets) {
			return c.GainSets[gainSet].BandCount
		}
	}
	return 1
}

// parseInstructions parses drcInstructionsUniDrc() or, in MPEG-H mode,
// mpegh3daDrcInstructionsUniDrc().
func parseInstructions(r *bits.Reader, ctx *parseContext) (Instructions, error) {
	in := Instructions{Scope: PlainScope{}, Location: LocationSelected}

	if ctx.mode == ModeMPEGH {
		switch r.GetBits(2) {
		case instructionsTypeGroup:
			in.Scope = GroupScope{GroupID: uint8(r.GetBits(7))}
		case instructionsTypeGroupPreset:
			in.Scope = GroupPresetScope{GroupPresetID: uint8(r.GetBits(5))}
		case instructionsTypePlain:
		default:
			return Instructions{}, ErrNotOK
		}
	}

	in.ID = int(r.GetBits(6))
	if ctx.mode == ModeMPEGD {
		in.Location = uint8(r.GetBits(4))
	}

	in.DownmixIDs = []uint8{DownmixIDBase}
	if r.Get1Bit() == 1 {
		in.DownmixIDs[0] = uint8(r.GetBits(7))
		in.ApplyToDownmix = r.Get1Bit() == 1
		if r.Get1Bit() == 1 {
			count := int(r.GetBits(3))
			if 1+count > MaxDownmixIDs {
				return Instructions{}, ErrMemory
			}
			for i := 0; i < count; i++ {
				in.DownmixIDs = append(in.DownmixIDs, uint8(r.GetBits(7)))
			}
		}
	}

	in.Effect = Effect(r.GetBits(16))

	if !in.Effect.Has(EffectDucking) {
		in.LimiterPeakTargetPresent = r.Get1Bit() == 1
		if in.LimiterPeakTargetPresent {
			in.LimiterPeakTarget = -float32(r.GetBits(8)) / 8
		}
	}

	in.TargetLoudnessLower = -63
	in.TargetLoudnessPresent = r.Get1Bit() == 1
	if in.TargetLoudnessPresent {
		in.TargetLoudnessUpper = float32(r.GetBits(6)) - 63
		if r.Get1Bit() == 1 {
			in.TargetLoudnessLower = float32(r.GetBits(6)) - 63
		}
	}

	in.DependsOnPresent = r.Get1Bit() == 1
	if in.DependsOnPresent {
		in.DependsOn = int(r.GetBits(6))
	} else {
		in.NoIndependentUse = r.Get1Bit() == 1
	}

	in.ChannelCount = ctx.baseChannelCount
	if in.ApplyToDownmix && len(in.DownmixIDs) == 1 &&
		in.DownmixIDs[0] != DownmixIDBase && in.DownmixIDs[0] != DownmixIDAny {
		d := ctx.downmixByID(in.DownmixIDs[0])
		if d == nil {
			return Instructions{}, ErrNotOK
		}
		in.ChannelCount = d.TargetChannelCount
	}
	if in.ChannelCount > MaxChannels {
		return Instructions{}, ErrMemory
	}

	if err := parseChannelAssignment(r, &in); err != nil {
		return Instructions{}, err
	}
	if r.Error() {
		return Instructions{}, ErrBitstreamRead
	}

	if err := DeriveChannelGroups(&in); err != nil {
		return Instructions{}, err
	}

	if !in.Effect.Has(EffectDucking) {
		for g := range in.Groups {
			bands := ctx.bandCount(in.Location, in.Groups[g].GainSetIndex)
			in.Groups[g].Modification = parseGainModification(r, bands)
		}
	}
	if r.Error() {
		return Instructions{}, ErrBitstreamRead
	}
	return in, nil
}

// parseChannelAssignment reads the per-channel gain set indices with their
// repeat run-lengths and, for ducking sets, the ducking scalings.
func parseChannelAssignment(r *bits.Reader, in *Instructions) error {
	ducking := in.Effect.Has(EffectDucking)
	in.GainSetIndex = make([]int, 0, in.ChannelCount)
	if ducking {
		in.DuckingScaling = make([]DuckingModification, 0, in.ChannelCount)
	}

	for len(in.GainSetIndex) < in.ChannelCount {
		gainSet := int(r.GetBits(6)) - 1
		var duck DuckingModification
		if ducking {
			duck = parseDuckingScaling(r)
		}
		repeat := 1
		if r.Get1Bit() == 1 {
			repeat += int(r.GetBits(5)) + 1
		}
		if len(in.GainSetIndex)+repeat > in.ChannelCount {
			return ErrNotOK
		}
		for i := 0; i < repeat; i++ {
			in.GainSetIndex = append(in.GainSetIndex, gainSet)
			if ducking {
				in.DuckingScaling = append(in.DuckingScaling, duck)
			}
		}
		if r.Error() {
			return ErrBitstreamRead
		}
	}
	return nil
}

func parseDuckingScaling(r *bits.Reader) DuckingModification {
	d := DuckingModification{Scaling: 1}
	d.ScalingPresent = r.Get1Bit() == 1
	if d.ScalingPresent {
		sign := r.Get1Bit()
		mu := float32(r.GetBits(3)+1) * 0.125
		if sign == 1 {
			d.Scaling = 1 - mu
		} else {
			d.Scaling = 1 + mu
		}
	}
	return d
}

func parseGainModification(r *bits.Reader, bands int) GainModification {
	m := DefaultGainModification()
	for b := 0; b < bands && b < MaxBands; b++ {
		bm := &m.Bands[b]
		bm.ScalingPresent = r.Get1Bit() == 1
		if bm.ScalingPresent {
			bm.AttenuationScaling = float32(r.GetBits(4)) * 0.125
			bm.AmplificationScaling = float32(r.GetBits(4)) * 0.125
		}
		bm.OffsetPresent = r.Get1Bit() == 1
		if bm.OffsetPresent {
			sign := r.Get1Bit()
			offset := float32(r.GetBits(5)+1) * 0.25
			if sign == 1 {
				offset = -offset
			}
			bm.Offset = offset
		}
	}
	return m
}

// writeInstructions writes the instructions syntax for ctx.mode. Groups
// must already be derived.
func writeInstructions(w *bits.Writer, in *Instructions, ctx *parseContext) {
	if ctx.mode == ModeMPEGH {
		switch s := in.Scope.(type) {
		case GroupScope:
			w.PutBits(instructionsTypeGroup, 2)
			w.PutBits(uint32(s.GroupID), 7)
		case GroupPresetScope:
			w.PutBits(instructionsTypeGroupPreset, 2)
			w.PutBits(uint32(s.GroupPresetID), 5)
		default:
			w.PutBits(instructionsTypePlain, 2)
		}
	}
	w.PutBits(uint32(in.ID), 6)
	if ctx.mode == ModeMPEGD {
		w.PutBits(uint32(in.Location), 4)
	}

	dmxPresent := len(in.DownmixIDs) > 1 || (len(in.DownmixIDs) == 1 && in.DownmixIDs[0] != DownmixIDBase) || in.ApplyToDownmix
	w.PutBool(dmxPresent)
	if dmxPresent {
		w.PutBits(uint32(in.DownmixIDs[0]), 7)
		w.PutBool(in.ApplyToDownmix)
		w.PutBool(len(in.DownmixIDs) > 1)
		if len(in.DownmixIDs) > 1 {
			w.PutBits(uint32(len(in.DownmixIDs)-1), 3)
			for _, id := range in.DownmixIDs[1:] {
				w.PutBits(uint32(id), 7)
			}
		}
	}

	w.PutBits(uint32(in.Effect), 16)
	if !in.Effect.Has(EffectDucking) {
		w.PutBool(in.LimiterPeakTargetPresent)
		if in.LimiterPeakTargetPresent {
			w.PutBits(uint32(roundNonNeg(-in.LimiterPeakTarget*8)), 8)
		}
	}

	w.PutBool(in.TargetLoudnessPresent)
	if in.TargetLoudnessPresent {
		w.PutBits(uint32(roundNonNeg(in.TargetLoudnessUpper+63)), 6)
		lowerPresent := in.TargetLoudnessLower != -63
		w.PutBool(lowerPresent)
		if lowerPresent {
			w.PutBits(uint32(roundNonNeg(in.TargetLoudnessLower+63)), 6)
		}
	}

	w.PutBool(in.DependsOnPresent)
	if in.DependsOnPresent {
		w.PutBits(uint32(in.DependsOn), 6)
	} else {
		w.PutBool(in.NoIndependentUse)
	}

	ducking := in.Effect.Has(EffectDucking)
	for c := 0; c < len(in.GainSetIndex); {
		run := 1
		for c+run < len(in.GainSetIndex) && run < 33 &&
			in.GainSetIndex[c+run] == in.GainSetIndex[c] &&
			(!ducking || in.DuckingScaling[c+run] == in.DuckingScaling[c]) {
			run++
		}
		w.PutBits(uint32(in.GainSetIndex[c]+1), 6)
		if ducking {
			writeDuckingScaling(w, in.DuckingScaling[c])
		}
		w.PutBool(run > 1)
		if run > 1 {
			w.PutBits(uint32(run-2), 5)
		}
		c += run
	}

	if ducking {
		return
	}
	for g := range in.Groups {
		bands := ctx.bandCount(in.Location, in.Groups[g].GainSetIndex)
		m, ok := in.Groups[g].Modification.(GainModification)
		if !ok {
			m = DefaultGainModification()
		}
		for b := 0; b < bands && b < MaxBands; b++ {
			bm := m.Bands[b]
			w.PutBool(bm.ScalingPresent)
			if bm.ScalingPresent {
				w.PutBits(uint32(roundNonNeg(bm.AttenuationScaling*8)), 4)
				w.PutBits(uint32(roundNonNeg(bm.AmplificationScaling*8)), 4)
			}
			w.PutBool(bm.OffsetPresent)
			if bm.OffsetPresent {
				w.PutBool(bm.Offset < 0)
				w.PutBits(uint32(roundNonNeg(abs32(bm.Offset)*4)-1), 5)
			}
		}
	}
}

func writeDuckingScaling(w *bits.Writer, d DuckingModification) {
	w.PutBool(d.ScalingPresent)
	if !d.ScalingPresent {
		return
	}
	delta := d.Scaling - 1
	w.PutBool(delta < 0)
	w.PutBits(uint32(roundNonNeg(abs32(delta)*8)-1), 3)
}

func roundNonNeg(v float32) int {
	r := int(math.Round(float64(v)))
	if r < 0 {
		return 0
	}
	return r
}

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
