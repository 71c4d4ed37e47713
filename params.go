package unidrc

import (
	"math"

	"github.com/llehouerou/go-unidrc/internal/gain"
	"github.com/llehouerou/go-unidrc/internal/selection"
)

// Param identifies a decoder parameter for SetParam and GetParam.
type Param int

// Settable parameters.
const (
	ParamTargetLoudness Param = iota
	ParamLoudnessNormalization
	ParamBoost
	ParamCompress
	ParamEffectType
	ParamEffectTypeFallbackCode
	ParamAlbumMode
	ParamDownmixID
	ParamTargetChannelCount
	ParamTargetLayout
	ParamLoudnessMeasurementMethod
	ParamLoudnessMeasurementSystem
	ParamOutputPeakLevelMax
	ParamGainMaxDB
	ParamGroupPresetID
	ParamGroupID
	ParamDRCOn
	ParamDelayMode
)

// Read-only parameters.
const (
	ParamIsMultibandDRC1 Param = iota + 100
	ParamIsMultibandDRC2
	ParamIsActive
	ParamIsStartupPhase
	ParamOutputLoudness
	ParamTargetLayoutSelected
	ParamTargetChannelCountSelected
	ParamLoudnessNormalizationGainDB
	ParamNumSelectedDRCSets
	ParamActiveDownmixID
)

// Effect types for ParamEffectType.
const (
	EffectTypeOff          = float32(selection.EffectTypeOff)
	EffectTypeNone         = float32(selection.EffectTypeNone)
	EffectTypeNight        = float32(selection.EffectTypeNight)
	EffectTypeNoisy        = float32(selection.EffectTypeNoisy)
	EffectTypeLimited      = float32(selection.EffectTypeLimited)
	EffectTypeLowLevel     = float32(selection.EffectTypeLowLevel)
	EffectTypeDialog       = float32(selection.EffectTypeDialog)
	EffectTypeGeneralCompr = float32(selection.EffectTypeGeneralCompr)
)

// DelayMode is the gain delay for ParamDelayMode and WithDelayMode.
type DelayMode = gain.DelayMode

// Delay modes.
const (
	DelayFrame = gain.DelayFrame
	DelayNone  = gain.DelayNone
)

func flag(v float32) bool { return v != 0 }

func integral(v float32, lo, hi float64) (int, bool) {
	f := float64(v)
	if f != math.Trunc(f) || f < lo || f > hi {
		return 0, false
	}
	return int(f), true
}

// applyParam sets one selection parameter on in. It reports false for
// unknown or out of range values.
func applyParam(in *selection.Input, id Param, v float32) bool {
	switch id {
	case ParamTargetLoudness:
		in.TargetLoudness = v
	case ParamLoudnessNormalization:
		in.LoudnessNormalization = flag(v)
	case ParamBoost:
		in.Boost = v
	case ParamCompress:
		in.Compress = v
	case ParamEffectType:
		n, ok := integral(v, float64(selection.EffectTypeOff), float64(selection.EffectTypeGeneralCompr))
		if !ok {
			return false
		}
		in.EffectType = selection.EffectType(n)
	case ParamEffectTypeFallbackCode:
		n, ok := integral(v, 0, 0xFFFFFF)
		if !ok {
			return false
		}
		in.FallbackCode = uint32(n)
	case ParamAlbumMode:
		in.AlbumMode = flag(v)
	case ParamDownmixID:
		n, ok := integral(v, 0, 0x7F)
		if !ok {
			return false
		}
		in.Request = selection.RequestDownmixID
		in.DownmixIDs = []uint8{uint8(n)}
	case ParamTargetChannelCount:
		n, ok := integral(v, 1, 28)
		if !ok {
			return false
		}
		in.Request = selection.RequestTargetChannelCount
		in.TargetChannelCount = n
	case ParamTargetLayout:
		n, ok := integral(v, 0, 0xFF)
		if !ok {
			return false
		}
		in.Request = selection.RequestTargetLayout
		in.TargetLayout = uint8(n)
	case ParamLoudnessMeasurementMethod:
		n, ok := integral(v, selection.MethodProgram, selection.MethodAnchor)
		if !ok {
			return false
		}
		in.MeasurementMethod = n
	case ParamLoudnessMeasurementSystem:
		n, ok := integral(v, 0, 15)
		if !ok {
			return false
		}
		in.MeasurementSystem = uint8(n)
	case ParamOutputPeakLevelMax:
		in.OutputPeakLevelMax = v
	case ParamGainMaxDB:
		in.NormalizationGainMax = v
	case ParamGroupPresetID:
		n, ok := integral(v, selection.GroupPresetIDNone, 0x1F)
		if !ok {
			return false
		}
		in.GroupPresetID = n
	case ParamGroupID:
		// A negative value clears the group request.
		if v < 0 {
			in.GroupIDs = nil
			return true
		}
		n, ok := integral(v, 0, 0x7F)
		if !ok || len(in.GroupIDs) >= selection.MaxRequestedGroups {
			return false
		}
		in.GroupIDs = append(append([]uint8(nil), in.GroupIDs...), uint8(n))
	case ParamDRCOn:
		in.DRCOn = flag(v)
	default:
		return false
	}
	return true
}

// inputParam reads back a selection parameter.
func inputParam(in *selection.Input, id Param) (float32, bool) {
	b := func(x bool) float32 {
		if x {
			return 1
		}
		return 0
	}
	switch id {
	case ParamTargetLoudness:
		return in.TargetLoudness, true
	case ParamLoudnessNormalization:
		return b(in.LoudnessNormalization), true
	case ParamBoost:
		return in.Boost, true
	case ParamCompress:
		return in.Compress, true
	case ParamEffectType:
		return float32(in.EffectType), true
	case ParamEffectTypeFallbackCode:
		return float32(in.FallbackCode), true
	case ParamAlbumMode:
		return b(in.AlbumMode), true
	case ParamDownmixID:
		if len(in.DownmixIDs) == 0 {
			return 0, true
		}
		return float32(in.DownmixIDs[0]), true
	case ParamTargetChannelCount:
		return float32(in.TargetChannelCount), true
	case ParamTargetLayout:
		return float32(in.TargetLayout), true
	case ParamLoudnessMeasurementMethod:
		return float32(in.MeasurementMethod), true
	case ParamLoudnessMeasurementSystem:
		return float32(in.MeasurementSystem), true
	case ParamOutputPeakLevelMax:
		return in.OutputPeakLevelMax, true
	case ParamGainMaxDB:
		return in.NormalizationGainMax, true
	case ParamGroupPresetID:
		return float32(in.GroupPresetID), true
	case ParamGroupID:
		return float32(len(in.GroupIDs)), true
	case ParamDRCOn:
		return b(in.DRCOn), true
	}
	return 0, false
}
