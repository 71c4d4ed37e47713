package syntax

import (
	"math"

	"github.com/llehouerou/go-unidrc/internal/bits"
)

// MPEG-H loudnessInfoType values.
const (
	loudnessInfoTypePlain       = 0
	loudnessInfoTypeGroup       = 1
	loudnessInfoTypeGroupAlt    = 2
	loudnessInfoTypeGroupPreset = 3
)

// methodValueBits returns the coded width of a loudness measurement value.
func methodValueBits(method uint8) uint {
	switch method {
	case MethodMixingLevel:
		return 5
	case MethodRoomType:
		return 2
	default:
		return 8
	}
}

// decodeMethodValue converts a coded measurement value to its unit
// (LUFS/LKFS, LU, dB SPL or room type).
func decodeMethodValue(method uint8, code uint32) float32 {
	switch method {
	case MethodProgramLoudness, MethodAnchorLoudness:
		return -57.75 + float32(code)*0.25
	case MethodMaxMomentary, MethodMaxShortTerm, MethodShortTermLoudness:
		return -116 + float32(code)*0.5
	case MethodLoudnessRange:
		switch {
		case code <= 128:
			return float32(code) * 0.25
		case code <= 204:
			return 0.5*float32(code) - 32
		default:
			return float32(code) - 134
		}
	case MethodMixingLevel:
		return 80 + float32(code)
	default:
		return float32(code)
	}
}

// encodeMethodValue is the inverse of decodeMethodValue.
func encodeMethodValue(method uint8, v float32) uint32 {
	var code float64
	switch method {
	case MethodProgramLoudness, MethodAnchorLoudness:
		code = float64(v+57.75) / 0.25
	case MethodMaxMomentary, MethodMaxShortTerm, MethodShortTermLoudness:
		code = float64(v+116) / 0.5
	case MethodLoudnessRange:
		switch {
		case v <= 32:
			code = float64(v) / 0.25
		case v <= 70:
			code = float64(v+32) / 0.5
		default:
			code = float64(v + 134)
		}
	case MethodMixingLevel:
		code = float64(v - 80)
	default:
		code = float64(v)
	}
	maxCode := float64(uint32(1)<<methodValueBits(method) - 1)
	return uint32(math.Max(0, math.Min(maxCode, math.Round(code))))
}

// peakLevel decodes a 12-bit sample or true peak code: 20 - code/32 dB.
func peakLevel(code uint32) float32 {
	return 20 - float32(code)/32
}

func parseLoudnessInfo(r *bits.Reader, mode Mode) (LoudnessInfo, error) {
	li := LoudnessInfo{Scope: PlainScope{}}

	if mode == ModeMPEGH {
		switch r.GetBits(2) {
		case loudnessInfoTypeGroup, loudnessInfoTypeGroupAlt:
			li.Scope = GroupScope{GroupID: uint8(r.GetBits(7))}
		case loudnessInfoTypeGroupPreset:
			li.Scope = GroupPresetScope{GroupPresetID: uint8(r.GetBits(5))}
		}
	}

	li.DrcSetID = int(r.GetBits(6))
	li.DownmixID = uint8(r.GetBits(7))

	li.SamplePeakLevelPresent = r.Get1Bit() == 1
	if li.SamplePeakLevelPresent {
		code := r.GetBits(12)
		if code == 0 {
			li.SamplePeakLevelPresent = false
		} else {
			li.SamplePeakLevel = peakLevel(code)
		}
	}

	li.TruePeakLevelPresent = r.Get1Bit() == 1
	if li.TruePeakLevelPresent {
		code := r.GetBits(12)
		li.TruePeakSystem = uint8(r.GetBits(4))
		li.TruePeakReliability = uint8(r.GetBits(2))
		if code == 0 {
			li.TruePeakLevelPresent = false
		} else {
			li.TruePeakLevel = peakLevel(code)
		}
	}

	count := int(r.GetBits(4))
	if count > MaxMeasurements {
		return LoudnessInfo{}, ErrMemory
	}
	for i := 0; i < count; i++ {
		var m Measurement
		m.MethodDefinition = uint8(r.GetBits(4))
		m.Value = decodeMethodValue(m.MethodDefinition, r.GetBits(methodValueBits(m.MethodDefinition)))
		m.System = uint8(r.GetBits(4))
		m.Reliability = uint8(r.GetBits(2))
		li.Measurements = append(li.Measurements, m)
	}
	if r.Error() {
		return LoudnessInfo{}, ErrBitstreamRead
	}
	return li, nil
}

func parseLoudnessInfoList(r *bits.Reader, mode Mode, count int) ([]LoudnessInfo, error) {
	if count > MaxLoudnessInfo {
		return nil, ErrMemory
	}
	list := make([]LoudnessInfo, 0, count)
	for i := 0; i < count; i++ {
		li, err := parseLoudnessInfo(r, mode)
		if err != nil {
			return nil, err
		}
		list = append(list, li)
	}
	return list, nil
}

// ParseLoudnessInfoSet parses loudnessInfoSet() (ModeMPEGD) or
// mpegh3daLoudnessInfoSet() (ModeMPEGH).
func ParseLoudnessInfoSet(r *bits.Reader, mode Mode) (LoudnessInfoSet, error) {
	var ls LoudnessInfoSet
	var err error

	if mode == ModeMPEGD {
		albumCount := int(r.GetBits(6))
		count := int(r.GetBits(6))
		if ls.Album, err = parseLoudnessInfoList(r, mode, albumCount); err != nil {
			return LoudnessInfoSet{}, err
		}
		if ls.Info, err = parseLoudnessInfoList(r, mode, count); err != nil {
			return LoudnessInfoSet{}, err
		}
	} else {
		count := int(r.GetBits(6))
		if ls.Info, err = parseLoudnessInfoList(r, mode, count); err != nil {
			return LoudnessInfoSet{}, err
		}
		if r.Get1Bit() == 1 {
			albumCount := int(r.GetBits(6))
			if ls.Album, err = parseLoudnessInfoList(r, mode, albumCount); err != nil {
				return LoudnessInfoSet{}, err
			}
		}
	}

	if r.Get1Bit() == 1 {
		if err := skipExtensions(r); err != nil {
			return LoudnessInfoSet{}, err
		}
	}
	if r.Error() {
		return LoudnessInfoSet{}, ErrBitstreamRead
	}
	return ls, nil
}

func writeLoudnessInfo(w *bits.Writer, li *LoudnessInfo, mode Mode) {
	if mode == ModeMPEGH {
		switch s := li.Scope.(type) {
		case GroupScope:
			w.PutBits(loudnessInfoTypeGroup, 2)
			w.PutBits(uint32(s.GroupID), 7)
		case GroupPresetScope:
			w.PutBits(loudnessInfoTypeGroupPreset, 2)
			w.PutBits(uint32(s.GroupPresetID), 5)
		default:
			w.PutBits(loudnessInfoTypePlain, 2)
		}
	}
	w.PutBits(uint32(li.DrcSetID), 6)
	w.PutBits(uint32(li.DownmixID), 7)

	w.PutBool(li.SamplePeakLevelPresent)
	if li.SamplePeakLevelPresent {
		w.PutBits(uint32(roundNonNeg((20-li.SamplePeakLevel)*32)), 12)
	}
	w.PutBool(li.TruePeakLevelPresent)
	if li.TruePeakLevelPresent {
		w.PutBits(uint32(roundNonNeg((20-li.TruePeakLevel)*32)), 12)
		w.PutBits(uint32(li.TruePeakSystem), 4)
		w.PutBits(uint32(li.TruePeakReliability), 2)
	}
	w.PutBits(uint32(len(li.Measurements)), 4)
	for _, m := range li.Measurements {
		w.PutBits(uint32(m.MethodDefinition), 4)
		w.PutBits(encodeMethodValue(m.MethodDefinition, m.Value), methodValueBits(m.MethodDefinition))
		w.PutBits(uint32(m.System), 4)
		w.PutBits(uint32(m.Reliability), 2)
	}
}

// WriteLoudnessInfoSet writes the loudness info set syntax for mode.
func WriteLoudnessInfoSet(w *bits.Writer, ls *LoudnessInfoSet, mode Mode) {
	if mode == ModeMPEGD {
		w.PutBits(uint32(len(ls.Album)), 6)
		w.PutBits(uint32(len(ls.Info)), 6)
		for i := range ls.Album {
			writeLoudnessInfo(w, &ls.Album[i], mode)
		}
		for i := range ls.Info {
			writeLoudnessInfo(w, &ls.Info[i], mode)
		}
	} else {
		w.PutBits(uint32(len(ls.Info)), 6)
		for i := range ls.Info {
			writeLoudnessInfo(w, &ls.Info[i], mode)
		}
		w.PutBool(len(ls.Album) > 0)
		if len(ls.Album) > 0 {
			w.PutBits(uint32(len(ls.Album)), 6)
			for i := range ls.Album {
				writeLoudnessInfo(w, &ls.Album[i], mode)
			}
		}
	}
	writeNoExtensionsFlag(w)
}

// writeNoExtensionsFlag writes a cleared "extension present" flag.
func writeNoExtensionsFlag(w *bits.Writer) {
	w.PutBool(false)
}
