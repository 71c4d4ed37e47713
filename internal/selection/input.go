package selection

import (
	"github.com/llehouerou/go-unidrc/internal/syntax"
)

// RequestType selects how the requested downmix is identified.
type RequestType uint8

// Downmix request types.
const (
	RequestDownmixID RequestType = iota
	RequestTargetLayout
	RequestTargetChannelCount
)

// EffectType is a requested DRC effect. Values 1-6 map onto single
// drcSetEffect bits.
type EffectType int

// Effect types.
const (
	EffectTypeOff          EffectType = -1 // DRC off
	EffectTypeNone         EffectType = 0  // no explicit request
	EffectTypeNight        EffectType = 1
	EffectTypeNoisy        EffectType = 2
	EffectTypeLimited      EffectType = 3
	EffectTypeLowLevel     EffectType = 4
	EffectTypeDialog       EffectType = 5
	EffectTypeGeneralCompr EffectType = 6
)

// Effect returns the drcSetEffect bit of t, or 0.
func (t EffectType) Effect() syntax.Effect {
	switch t {
	case EffectTypeNight:
		return syntax.EffectNight
	case EffectTypeNoisy:
		return syntax.EffectNoisy
	case EffectTypeLimited:
		return syntax.EffectLimited
	case EffectTypeLowLevel:
		return syntax.EffectLowLevel
	case EffectTypeDialog:
		return syntax.EffectDialog
	case EffectTypeGeneralCompr:
		return syntax.EffectGeneralCompr
	}
	return 0
}

// Loudness measurement methods that can be requested.
const (
	MethodProgram = 0
	MethodAnchor  = 1
)

// Parameter limits.
const (
	TargetLoudnessMin     = -63
	TargetLoudnessMax     = 0
	PeakCeilingMin        = -15
	PeakCeilingMax        = 0
	GainMaxUnlimited      = 1000
	GroupPresetIDNone     = -1
	MaxRequestedDownmixes = syntax.MaxDownmixIDs
	MaxRequestedGroups    = 8
)

// Input is a selection request.
type Input struct {
	Mode syntax.Mode

	BaseChannelCount int
	// TimeDomain excludes multiband DRC sets, which need a subband domain.
	TimeDomain bool

	TargetLoudness        float32 // LKFS
	LoudnessNormalization bool
	// NormalizationGainMax caps the loudness normalization gain in dB.
	NormalizationGainMax float32
	// NormalizationGainModification is added after capping.
	NormalizationGainModification float32
	OutputPeakLevelMax            float32
	AlbumMode                     bool
	MeasurementMethod             int
	MeasurementSystem             uint8

	DRCOn      bool
	EffectType EffectType
	// FallbackCode packs up to six EffectTypes, 4 bits each, first in the
	// least significant nibble. Zero selects the recommended fallback
	// order of EffectType.
	FallbackCode uint32
	Boost        float32 // 0..1
	Compress     float32 // 0..1

	Request            RequestType
	DownmixIDs         []uint8
	TargetLayout       uint8
	TargetChannelCount int

	GroupPresetID int // GroupPresetIDNone for no request
	GroupIDs      []uint8
}

// DefaultInput returns the request used until parameters are set:
// -24 LKFS target without normalization, full compression, base layout.
func DefaultInput() Input {
	return Input{
		TargetLoudness:       -24,
		NormalizationGainMax: GainMaxUnlimited,
		DRCOn:                true,
		Boost:                1,
		Compress:             1,
		Request:              RequestDownmixID,
		DownmixIDs:           []uint8{syntax.DownmixIDBase},
		GroupPresetID:        GroupPresetIDNone,
	}
}

// Validate checks parameter ranges.
func (in *Input) Validate() error {
	switch {
	case in.TargetLoudness < TargetLoudnessMin || in.TargetLoudness > TargetLoudnessMax:
		return ErrParamOutOfRange
	case in.OutputPeakLevelMax < PeakCeilingMin || in.OutputPeakLevelMax > PeakCeilingMax:
		return ErrParamOutOfRange
	case in.Boost < 0 || in.Boost > 1 || in.Compress < 0 || in.Compress > 1:
		return ErrParamOutOfRange
	case in.NormalizationGainMax < 0:
		return ErrParamOutOfRange
	case in.EffectType < EffectTypeOff || in.EffectType > EffectTypeGeneralCompr:
		return ErrParamOutOfRange
	case in.MeasurementMethod != MethodProgram && in.MeasurementMethod != MethodAnchor:
		return ErrParamOutOfRange
	case len(in.DownmixIDs) > MaxRequestedDownmixes || len(in.GroupIDs) > MaxRequestedGroups:
		return ErrParamOutOfRange
	case in.Request > RequestTargetChannelCount:
		return ErrParamOutOfRange
	}
	return nil
}
