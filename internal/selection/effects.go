package selection

import (
	"math/bits"

	"github.com/llehouerou/go-unidrc/internal/syntax"
)

// recommendedFallback lists, per requested effect type, the effect types
// tried when no DRC set has the requested effect.
var recommendedFallback = map[EffectType][]EffectType{
	EffectTypeNone:         {EffectTypeGeneralCompr, EffectTypeNight, EffectTypeNoisy, EffectTypeLimited, EffectTypeLowLevel, EffectTypeDialog},
	EffectTypeNight:        {EffectTypeGeneralCompr, EffectTypeNoisy, EffectTypeLimited, EffectTypeLowLevel, EffectTypeDialog},
	EffectTypeNoisy:        {EffectTypeGeneralCompr, EffectTypeNight, EffectTypeLimited, EffectTypeLowLevel, EffectTypeDialog},
	EffectTypeLimited:      {EffectTypeGeneralCompr, EffectTypeNight, EffectTypeNoisy, EffectTypeLowLevel, EffectTypeDialog},
	EffectTypeLowLevel:     {EffectTypeGeneralCompr, EffectTypeNight, EffectTypeNoisy, EffectTypeLimited, EffectTypeDialog},
	EffectTypeDialog:       {EffectTypeGeneralCompr, EffectTypeNight, EffectTypeNoisy, EffectTypeLimited, EffectTypeLowLevel},
	EffectTypeGeneralCompr: {EffectTypeNight, EffectTypeNoisy, EffectTypeLimited, EffectTypeLowLevel, EffectTypeDialog},
}

// effectChain returns the effects to match, in order: the explicit
// request followed by the fallback code or the recommended order.
func effectChain(in *Input) []syntax.Effect {
	var types []EffectType
	if in.EffectType > EffectTypeNone {
		types = append(types, in.EffectType)
	}
	if in.FallbackCode != 0 {
		for code := in.FallbackCode; code != 0; code >>= 4 {
			t := EffectType(code & 0xF)
			if t > EffectTypeNone && t <= EffectTypeGeneralCompr {
				types = append(types, t)
			}
		}
	} else {
		types = append(types, recommendedFallback[in.EffectType]...)
	}

	chain := make([]syntax.Effect, 0, len(types))
	seen := syntax.Effect(0)
	for _, t := range types {
		e := t.Effect()
		if seen.Has(e) {
			continue
		}
		seen |= e
		chain = append(chain, e)
	}
	return chain
}

// PackFallbackCode packs effect types into a fallback code.
func PackFallbackCode(types ...EffectType) uint32 {
	var code uint32
	for i := len(types) - 1; i >= 0; i-- {
		code = code<<4 | uint32(types[i])&0xF
	}
	return code
}

// effectCount is the number of simultaneous effects of a set, not
// counting general compression.
func effectCount(e syntax.Effect) int {
	return bits.OnesCount16(uint16(e &^ syntax.EffectGeneralCompr))
}
