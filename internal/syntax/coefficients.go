package syntax

import (
	"math/bits"

	bitio "github.com/llehouerou/go-unidrc/internal/bits"
)

// DefaultTimeDeltaMin returns the default minimum node spacing in samples:
// the largest power of two not above 0.5 ms at sampleRate.
func DefaultTimeDeltaMin(sampleRate int) int {
	limit := sampleRate / 2000
	if limit < 1 {
		return 1
	}
	return 1 << (bits.Len(uint(limit)) - 1)
}

// WithSampleRate returns a copy of cfg whose sample rate dependent
// defaults follow sampleRate: the config sample rate, unless signalled, and
// the timeDeltaMin of every gain set that does not code one. cfg is not
// modified. A non-positive sampleRate returns cfg unchanged.
func (cfg *Config) WithSampleRate(sampleRate int) *Config {
	if cfg.SampleRatePresent || sampleRate <= 0 {
		sampleRate = cfg.SampleRate
	}
	if sampleRate <= 0 {
		return cfg
	}
	out := *cfg
	out.SampleRate = sampleRate
	def := DefaultTimeDeltaMin(sampleRate)
	out.Coefficients = make([]Coefficients, len(cfg.Coefficients))
	for i := range cfg.Coefficients {
		c := cfg.Coefficients[i]
		c.GainSets = append([]GainSet(nil), c.GainSets...)
		for k := range c.GainSets {
			if !c.GainSets[k].TimeDeltaMinPresent {
				c.GainSets[k].TimeDeltaMin = def
			}
		}
		out.Coefficients[i] = c
	}
	return &out
}

// parseGainSetParams parses gainSetParams().
func parseGainSetParams(r *bitio.Reader, gs *GainSet, defaultTimeDeltaMin int) error {
	gs.CodingProfile = GainCodingProfile(r.GetBits(2))
	gs.Interpolation = InterpolationType(r.Get1Bit())
	gs.FullFrame = r.Get1Bit() == 1
	gs.TimeAlignment = r.Get1Bit() == 1
	gs.TimeDeltaMinPresent = r.Get1Bit() == 1
	if gs.TimeDeltaMinPresent {
		gs.TimeDeltaMin = int(r.GetBits(11)) + 1
	} else {
		gs.TimeDeltaMin = defaultTimeDeltaMin
	}

	if gs.CodingProfile == GCPConstant {
		gs.BandCount = 1
		return nil
	}

	gs.BandCount = int(r.GetBits(4))
	if gs.BandCount == 0 || gs.BandCount > MaxBands {
		return ErrMemory
	}
	if gs.BandCount > 1 {
		gs.DrcBandType = r.Get1Bit() == 1
	}
	for b := 0; b < gs.BandCount; b++ {
		gs.Bands[b].DrcCharacteristic = uint8(r.GetBits(7))
	}
	for b := 1; b < gs.BandCount; b++ {
		if gs.DrcBandType {
			gs.Bands[b].CrossoverFreqIndex = uint8(r.GetBits(4))
		} else {
			gs.Bands[b].StartSubBandIndex = uint16(r.GetBits(10))
		}
	}
	return nil
}

// ParseCoefficients parses drcCoefficientsUniDrc(). defaultTimeDeltaMin
// is used by gain sets that do not signal their own spacing.
func ParseCoefficients(r *bitio.Reader, defaultTimeDeltaMin int) (Coefficients, error) {
	var c Coefficients

	c.Location = uint8(r.GetBits(4))
	c.FrameSizePresent = r.Get1Bit() == 1
	if c.FrameSizePresent {
		c.FrameSize = int(r.GetBits(15)) + 1
	}

	count := int(r.GetBits(6))
	if count > MaxGainSets {
		return Coefficients{}, ErrMemory
	}
	c.GainSets = make([]GainSet, count)
	for i := range c.GainSets {
		if err := parseGainSetParams(r, &c.GainSets[i], defaultTimeDeltaMin); err != nil {
			return Coefficients{}, err
		}
	}
	if r.Error() {
		return Coefficients{}, ErrBitstreamRead
	}

	if err := c.deriveSequences(); err != nil {
		return Coefficients{}, err
	}
	return c, nil
}

// deriveSequences assigns gain sequence indices to bands in gain set
// order and fills SequenceGainSet.
func (c *Coefficients) deriveSequences() error {
	c.SequenceGainSet = c.SequenceGainSet[:0]
	seq := 0
	for g := range c.GainSets {
		gs := &c.GainSets[g]
		for b := 0; b < gs.BandCount; b++ {
			if seq >= MaxGainSequences {
				return ErrMemory
			}
			gs.SequenceIndex[b] = seq
			c.SequenceGainSet = append(c.SequenceGainSet, g)
			seq++
		}
	}
	c.GainSequenceCount = seq
	return nil
}

// WriteCoefficients writes drcCoefficientsUniDrc().
func WriteCoefficients(w *bitio.Writer, c *Coefficients) {
	w.PutBits(uint32(c.Location), 4)
	w.PutBool(c.FrameSizePresent)
	if c.FrameSizePresent {
		w.PutBits(uint32(c.FrameSize-1), 15)
	}
	w.PutBits(uint32(len(c.GainSets)), 6)
	for i := range c.GainSets {
		gs := &c.GainSets[i]
		w.PutBits(uint32(gs.CodingProfile), 2)
		w.PutBits(uint32(gs.Interpolation), 1)
		w.PutBool(gs.FullFrame)
		w.PutBool(gs.TimeAlignment)
		w.PutBool(gs.TimeDeltaMinPresent)
		if gs.TimeDeltaMinPresent {
			w.PutBits(uint32(gs.TimeDeltaMin-1), 11)
		}
		if gs.CodingProfile == GCPConstant {
			continue
		}
		w.PutBits(uint32(gs.BandCount), 4)
		if gs.BandCount > 1 {
			w.PutBool(gs.DrcBandType)
		}
		for b := 0; b < gs.BandCount; b++ {
			w.PutBits(uint32(gs.Bands[b].DrcCharacteristic), 7)
		}
		for b := 1; b < gs.BandCount; b++ {
			if gs.DrcBandType {
				w.PutBits(uint32(gs.Bands[b].CrossoverFreqIndex), 4)
			} else {
				w.PutBits(uint32(gs.Bands[b].StartSubBandIndex), 10)
			}
		}
	}
}
