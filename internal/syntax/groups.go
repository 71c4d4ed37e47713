package syntax

// groupKey identifies a channel group: channels sharing the same gain set
// and, for ducking sets, the same ducking scaling.
type groupKey struct {
	gainSet int
	ducking DuckingModification
}

// DeriveChannelGroups partitions the channels of a DRC set into the
// minimal groups sharing a gain set (and ducking scaling), in order of
// first occurrence. Channels without a gain set belong to no group.
//
// For "duck other" sets the signalled gain set marks the channels that
// trigger ducking; the gain is applied to all remaining channels instead.
// Exactly one distinct gain set must be signalled in that case.
func DeriveChannelGroups(in *Instructions) error {
	n := in.ChannelCount
	if n > MaxChannels || len(in.GainSetIndex) != n {
		return ErrMemory
	}
	ducking := in.Effect.Has(EffectDucking)
	if ducking && len(in.DuckingScaling) != n {
		return ErrNotOK
	}

	assign := make([]int, n)
	copy(assign, in.GainSetIndex)

	if in.Effect.Has(EffectDuckOther) {
		seq := -1
		for _, g := range in.GainSetIndex {
			if g < 0 {
				continue
			}
			if seq >= 0 && g != seq {
				return ErrNotOK
			}
			seq = g
		}
		if seq < 0 {
			return ErrNotOK
		}
		for c := range assign {
			if in.GainSetIndex[c] == seq {
				assign[c] = -1
			} else {
				assign[c] = seq
			}
		}
	}

	in.Groups = in.Groups[:0]
	in.GroupForChannel = make([]int, n)
	index := make(map[groupKey]int)
	for c := 0; c < n; c++ {
		in.GroupForChannel[c] = -1
		if assign[c] < 0 {
			continue
		}
		key := groupKey{gainSet: assign[c]}
		if ducking {
			key.ducking = in.DuckingScaling[c]
		}
		g, ok := index[key]
		if !ok {
			if len(in.Groups) >= MaxChannels {
				return ErrMemory
			}
			g = len(in.Groups)
			index[key] = g
			grp := ChannelGroup{GainSetIndex: assign[c]}
			if ducking {
				grp.Modification = key.ducking
			} else {
				grp.Modification = DefaultGainModification()
			}
			in.Groups = append(in.Groups, grp)
		}
		in.Groups[g].Channels = append(in.Groups[g].Channels, c)
		in.GroupForChannel[c] = g
	}
	return nil
}
