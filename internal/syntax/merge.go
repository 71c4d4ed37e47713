package syntax

import "reflect"

// Merge folds substream configs into one configuration. parts[0] defines
// the structure; a nil entry is a side stream that has not been received
// yet. Side streams must signal the same DRC set ids in the same order and
// the same coefficient locations as substream 0. Their channels, gain sets
// and gain sequences are appended after those of the preceding substreams.
//
// The inputs are not modified.
func Merge(parts []*Config) (Config, error) {
	if len(parts) == 0 || parts[0] == nil {
		return Config{}, ErrInvalidParam
	}
	if len(parts) > MaxSubstreams {
		return Config{}, ErrMemory
	}

	merged := cloneSignalled(parts[0])
	merged.Substreams = []SubstreamInfo{parts[0].substreamInfo()}
	if parts[0].Loudness != nil {
		ls := cloneLoudness(parts[0].Loudness)
		merged.Loudness = &ls
	}

	for _, side := range parts[1:] {
		if side == nil {
			merged.Substreams = append(merged.Substreams, SubstreamInfo{})
			continue
		}
		if err := fold(&merged, side); err != nil {
			return Config{}, err
		}
	}

	if err := AddVirtualSets(&merged); err != nil {
		return Config{}, err
	}
	return merged, nil
}

// Changed reports whether next differs from prev.
func Changed(prev, next *Config) bool {
	return !reflect.DeepEqual(prev, next)
}

// fold appends one side stream to acc.
func fold(acc *Config, side *Config) error {
	if err := matchStructure(acc, side); err != nil {
		return err
	}

	info := SubstreamInfo{
		ChannelOffset: acc.ChannelLayout.BaseChannelCount,
		ChannelCount:  side.ChannelLayout.BaseChannelCount,
	}
	if acc.ChannelLayout.BaseChannelCount+side.ChannelLayout.BaseChannelCount > MaxChannels {
		return ErrMemory
	}

	gainSetOffset := make(map[uint8]int, len(acc.Coefficients))
	for i := range acc.Coefficients {
		c := &acc.Coefficients[i]
		s := side.CoefficientsAt(c.Location)
		gainSetOffset[c.Location] = len(c.GainSets)
		if c.Location == LocationSelected {
			info.GainSetOffset = len(c.GainSets)
			info.SequenceOffset = c.GainSequenceCount
			info.SequenceCount = s.GainSequenceCount
		}
		if len(c.GainSets)+len(s.GainSets) > MaxGainSets {
			return ErrMemory
		}
		c.GainSets = append(c.GainSets, s.GainSets...)
		if err := c.deriveSequences(); err != nil {
			return err
		}
	}

	signalled := 0
	for i := range acc.Instructions {
		in := &acc.Instructions[i]
		if in.IsVirtual() {
			continue
		}
		sideIn := side.InstructionsByID(in.ID)
		if err := appendChannels(in, sideIn, gainSetOffset[in.Location]); err != nil {
			return err
		}
		signalled++
	}

	acc.ChannelLayout.BaseChannelCount += side.ChannelLayout.BaseChannelCount
	if acc.ChannelLayout.LayoutSignalingPresent && len(side.ChannelLayout.SpeakerPosition) > 0 {
		acc.ChannelLayout.SpeakerPosition = append(acc.ChannelLayout.SpeakerPosition, side.ChannelLayout.SpeakerPosition...)
	}

	if side.Loudness != nil {
		if acc.Loudness == nil {
			return ErrNotOK
		}
		ls, err := MergeLoudness(acc.Loudness, side.Loudness)
		if err != nil {
			return err
		}
		acc.Loudness = &ls
	}

	acc.Substreams = append(acc.Substreams, info)
	return nil
}

// matchStructure checks that side has the structure of acc.
func matchStructure(acc, side *Config) error {
	if side.Mode != acc.Mode {
		return ErrNotOK
	}
	if len(side.Coefficients) != len(acc.Coefficients) {
		return ErrNotOK
	}
	for i := range acc.Coefficients {
		if side.CoefficientsAt(acc.Coefficients[i].Location) == nil {
			return ErrNotOK
		}
	}

	var accIDs, sideIDs []int
	for i := range acc.Instructions {
		if !acc.Instructions[i].IsVirtual() {
			accIDs = append(accIDs, acc.Instructions[i].ID)
		}
	}
	for i := range side.Instructions {
		if !side.Instructions[i].IsVirtual() {
			sideIDs = append(sideIDs, side.Instructions[i].ID)
		}
	}
	if !reflect.DeepEqual(accIDs, sideIDs) {
		return ErrNotOK
	}
	return nil
}

// appendChannels extends a DRC set of the merged config with the channels
// of the matching side stream set.
func appendChannels(in, side *Instructions, gainSetOffset int) error {
	if side.Effect != in.Effect || side.Location != in.Location {
		return ErrNotOK
	}
	if in.ChannelCount+side.ChannelCount > MaxChannels {
		return ErrMemory
	}
	if len(in.Groups)+len(side.Groups) > MaxChannels {
		return ErrMemory
	}

	channelOffset := in.ChannelCount
	groupOffset := len(in.Groups)

	for _, g := range side.GainSetIndex {
		if g >= 0 {
			g += gainSetOffset
		}
		in.GainSetIndex = append(in.GainSetIndex, g)
	}
	in.DuckingScaling = append(in.DuckingScaling, side.DuckingScaling...)

	for _, grp := range side.Groups {
		ch := make([]int, len(grp.Channels))
		for k, c := range grp.Channels {
			ch[k] = c + channelOffset
		}
		in.Groups = append(in.Groups, ChannelGroup{
			GainSetIndex: grp.GainSetIndex + gainSetOffset,
			Channels:     ch,
			Modification: grp.Modification,
		})
	}
	for _, g := range side.GroupForChannel {
		if g >= 0 {
			g += groupOffset
		}
		in.GroupForChannel = append(in.GroupForChannel, g)
	}
	in.ChannelCount += side.ChannelCount
	return nil
}

// cloneSignalled deep-copies the signalled (non-virtual) part of cfg.
func cloneSignalled(cfg *Config) Config {
	out := Config{
		Mode:              cfg.Mode,
		SampleRatePresent: cfg.SampleRatePresent,
		SampleRate:        cfg.SampleRate,
		ChannelLayout:     cfg.ChannelLayout,
	}
	out.ChannelLayout.SpeakerPosition = append([]uint8(nil), cfg.ChannelLayout.SpeakerPosition...)

	for _, d := range cfg.Downmix {
		d.Coefficients = append([]float32(nil), d.Coefficients...)
		out.Downmix = append(out.Downmix, d)
	}
	for _, c := range cfg.Coefficients {
		c.GainSets = append([]GainSet(nil), c.GainSets...)
		c.SequenceGainSet = append([]int(nil), c.SequenceGainSet...)
		out.Coefficients = append(out.Coefficients, c)
	}
	for _, in := range cfg.Instructions {
		if in.IsVirtual() {
			continue
		}
		in.DownmixIDs = append([]uint8(nil), in.DownmixIDs...)
		in.GainSetIndex = append([]int(nil), in.GainSetIndex...)
		in.DuckingScaling = append([]DuckingModification(nil), in.DuckingScaling...)
		in.GroupForChannel = append([]int(nil), in.GroupForChannel...)
		groups := make([]ChannelGroup, len(in.Groups))
		for g, grp := range in.Groups {
			grp.Channels = append([]int(nil), grp.Channels...)
			groups[g] = grp
		}
		in.Groups = groups
		out.Instructions = append(out.Instructions, in)
	}
	return out
}

func cloneLoudness(ls *LoudnessInfoSet) LoudnessInfoSet {
	clone := func(list []LoudnessInfo) []LoudnessInfo {
		if list == nil {
			return nil
		}
		out := make([]LoudnessInfo, len(list))
		for i, li := range list {
			li.Measurements = append([]Measurement(nil), li.Measurements...)
			out[i] = li
		}
		return out
	}
	return LoudnessInfoSet{Info: clone(ls.Info), Album: clone(ls.Album)}
}

// loudnessKey identifies a loudnessInfo element across substreams.
type loudnessKey struct {
	drcSetID  int
	downmixID uint8
	scope     Scope
}

func keyOf(li *LoudnessInfo) loudnessKey {
	s := li.Scope
	if s == nil {
		s = PlainScope{}
	}
	return loudnessKey{drcSetID: li.DrcSetID, downmixID: li.DownmixID, scope: s}
}

// MergeLoudness folds a side stream loudness info set into base. Side
// stream entries must refer to an entry of base with the same drcSetId,
// downmixId and scope. Measurements not yet present in base are added and
// the higher peak level is kept.
func MergeLoudness(base, side *LoudnessInfoSet) (LoudnessInfoSet, error) {
	out := cloneLoudness(base)
	var err error
	if out.Info, err = mergeLoudnessList(out.Info, side.Info); err != nil {
		return LoudnessInfoSet{}, err
	}
	if out.Album, err = mergeLoudnessList(out.Album, side.Album); err != nil {
		return LoudnessInfoSet{}, err
	}
	return out, nil
}

func mergeLoudnessList(base, side []LoudnessInfo) ([]LoudnessInfo, error) {
	index := make(map[loudnessKey]int, len(base))
	for i := range base {
		index[keyOf(&base[i])] = i
	}
	for i := range side {
		s := &side[i]
		k, ok := index[keyOf(s)]
		if !ok {
			return nil, ErrNotOK
		}
		b := &base[k]
		if s.SamplePeakLevelPresent && (!b.SamplePeakLevelPresent || s.SamplePeakLevel > b.SamplePeakLevel) {
			b.SamplePeakLevelPresent = true
			b.SamplePeakLevel = s.SamplePeakLevel
		}
		if s.TruePeakLevelPresent && (!b.TruePeakLevelPresent || s.TruePeakLevel > b.TruePeakLevel) {
			b.TruePeakLevelPresent = true
			b.TruePeakLevel = s.TruePeakLevel
			b.TruePeakSystem = s.TruePeakSystem
			b.TruePeakReliability = s.TruePeakReliability
		}
		for _, m := range s.Measurements {
			if hasMeasurement(b.Measurements, m.MethodDefinition, m.System) {
				continue
			}
			if len(b.Measurements) >= MaxMeasurements {
				return nil, ErrMemory
			}
			b.Measurements = append(b.Measurements, m)
		}
	}
	return base, nil
}

func hasMeasurement(list []Measurement, method, system uint8) bool {
	for _, m := range list {
		if m.MethodDefinition == method && m.System == system {
			return true
		}
	}
	return false
}
