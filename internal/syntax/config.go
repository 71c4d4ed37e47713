package syntax

import (
	"github.com/llehouerou/go-unidrc/internal/bits"
)

// ConfigOptions carries decoder context the configuration syntax relies on.
type ConfigOptions struct {
	Mode Mode
	// SampleRate is used for the default timeDeltaMin unless the config
	// signals its own sample rate.
	SampleRate int
	// Downmix supplies downmix instructions in MPEG-H mode, where they are
	// not part of the DRC config.
	Downmix []DownmixInstructions
}

// ParseConfig parses one substream's uniDrcConfig() (ModeMPEGD) or
// mpegh3daUniDrcConfig() (ModeMPEGH) and completes it with virtual DRC
// sets. A failed parse returns the zero Config.
func ParseConfig(r *bits.Reader, opts ConfigOptions) (Config, error) {
	var (
		cfg Config
		err error
	)
	switch opts.Mode {
	case ModeMPEGD:
		cfg, err = parseUniDrcConfig(r, opts)
	case ModeMPEGH:
		cfg, err = parseMPEGHUniDrcConfig(r, opts)
	default:
		return Config{}, ErrInvalidParam
	}
	if err != nil {
		return Config{}, err
	}
	if err := checkUniqueIDs(&cfg); err != nil {
		return Config{}, err
	}
	if err := AddVirtualSets(&cfg); err != nil {
		return Config{}, err
	}
	cfg.Substreams = []SubstreamInfo{cfg.substreamInfo()}
	return cfg, nil
}

func (c *Config) substreamInfo() SubstreamInfo {
	info := SubstreamInfo{ChannelCount: c.ChannelLayout.BaseChannelCount}
	if coef := c.CoefficientsAt(LocationSelected); coef != nil {
		info.SequenceCount = coef.GainSequenceCount
	}
	return info
}

func parseMPEGHUniDrcConfig(r *bits.Reader, opts ConfigOptions) (Config, error) {
	cfg := Config{Mode: ModeMPEGH, SampleRate: opts.SampleRate}

	coefCount := int(r.GetBits(3))
	instCount := int(r.GetBits(6))
	cfg.ChannelLayout.BaseChannelCount = int(r.GetBits(7))
	if coefCount > MaxCoefficients || instCount > MaxInstructions {
		return Config{}, ErrMemory
	}
	if cfg.ChannelLayout.BaseChannelCount > MaxChannels {
		return Config{}, ErrMemory
	}
	cfg.Downmix = append([]DownmixInstructions(nil), opts.Downmix...)

	if err := parseCoefficientsAndInstructions(r, &cfg, coefCount, instCount); err != nil {
		return Config{}, err
	}

	if r.Get1Bit() == 1 {
		if err := skipExtensions(r); err != nil {
			return Config{}, err
		}
	}
	if r.Get1Bit() == 1 {
		ls, err := ParseLoudnessInfoSet(r, ModeMPEGH)
		if err != nil {
			return Config{}, err
		}
		cfg.Loudness = &ls
	}
	if r.Error() {
		return Config{}, ErrBitstreamRead
	}
	return cfg, nil
}

func parseUniDrcConfig(r *bits.Reader, opts ConfigOptions) (Config, error) {
	cfg := Config{Mode: ModeMPEGD, SampleRate: opts.SampleRate}

	cfg.SampleRatePresent = r.Get1Bit() == 1
	if cfg.SampleRatePresent {
		cfg.SampleRate = int(r.GetBits(18)) + 1000
	}
	dmxCount := int(r.GetBits(7))
	if r.Get1Bit() == 1 { // drcDescriptionBasicPresent
		n := int(r.GetBits(3))
		r.SkipBits(uint(n) * 6)
	}
	coefCount := int(r.GetBits(3))
	instCount := int(r.GetBits(6))
	if dmxCount > MaxDownmixInstructions || coefCount > MaxCoefficients || instCount > MaxInstructions {
		return Config{}, ErrMemory
	}

	layout, err := parseChannelLayout(r)
	if err != nil {
		return Config{}, err
	}
	cfg.ChannelLayout = layout

	for i := 0; i < dmxCount; i++ {
		d, err := parseDownmixInstructions(r, layout.BaseChannelCount)
		if err != nil {
			return Config{}, err
		}
		if cfg.DownmixByID(d.ID) != nil {
			return Config{}, ErrNotOK
		}
		cfg.Downmix = append(cfg.Downmix, d)
	}

	if err := parseCoefficientsAndInstructions(r, &cfg, coefCount, instCount); err != nil {
		return Config{}, err
	}

	if r.Get1Bit() == 1 {
		if err := skipExtensions(r); err != nil {
			return Config{}, err
		}
	}
	if r.Error() {
		return Config{}, ErrBitstreamRead
	}
	return cfg, nil
}

func parseChannelLayout(r *bits.Reader) (ChannelLayout, error) {
	var l ChannelLayout
	l.BaseChannelCount = int(r.GetBits(7))
	if l.BaseChannelCount > MaxChannels {
		return ChannelLayout{}, ErrMemory
	}
	l.LayoutSignalingPresent = r.Get1Bit() == 1
	if l.LayoutSignalingPresent {
		l.DefinedLayout = uint8(r.GetBits(8))
		if l.DefinedLayout == 0 {
			l.SpeakerPosition = make([]uint8, l.BaseChannelCount)
			for i := range l.SpeakerPosition {
				l.SpeakerPosition[i] = uint8(r.GetBits(7))
			}
		}
	}
	if r.Error() {
		return ChannelLayout{}, ErrBitstreamRead
	}
	return l, nil
}

func parseCoefficientsAndInstructions(r *bits.Reader, cfg *Config, coefCount, instCount int) error {
	tDeltaMin := DefaultTimeDeltaMin(cfg.SampleRate)
	for i := 0; i < coefCount; i++ {
		c, err := ParseCoefficients(r, tDeltaMin)
		if err != nil {
			return err
		}
		if cfg.CoefficientsAt(c.Location) != nil {
			return ErrNotOK
		}
		cfg.Coefficients = append(cfg.Coefficients, c)
	}

	ctx := &parseContext{
		mode:             cfg.Mode,
		baseChannelCount: cfg.ChannelLayout.BaseChannelCount,
		downmix:          cfg.Downmix,
		coefficients:     cfg.Coefficients,
	}
	for i := 0; i < instCount; i++ {
		in, err := parseInstructions(r, ctx)
		if err != nil {
			return err
		}
		cfg.Instructions = append(cfg.Instructions, in)
	}
	return nil
}

// checkUniqueIDs rejects configs signalling the same drcSetId twice.
func checkUniqueIDs(cfg *Config) error {
	seen := make(map[int]bool, len(cfg.Instructions))
	for i := range cfg.Instructions {
		id := cfg.Instructions[i].ID
		if seen[id] {
			return ErrNotOK
		}
		seen[id] = true
	}
	return nil
}

// AddVirtualSets appends one "no DRC" set per downmix target (the base
// layout first) so that DRC off stays selectable. Virtual ids start at -1
// and decrease. Existing virtual sets are replaced.
func AddVirtualSets(cfg *Config) error {
	signalled := cfg.Instructions[:0:0]
	for _, in := range cfg.Instructions {
		if !in.IsVirtual() {
			signalled = append(signalled, in)
		}
	}

	targets := []uint8{DownmixIDBase}
	channels := []int{cfg.ChannelLayout.BaseChannelCount}
	for i := range cfg.Downmix {
		targets = append(targets, cfg.Downmix[i].ID)
		channels = append(channels, cfg.Downmix[i].TargetChannelCount)
	}
	if len(signalled)+len(targets) > MaxInstructions {
		return ErrMemory
	}

	for i, dmx := range targets {
		v := Instructions{
			ID:                  -1 - i,
			Scope:               PlainScope{},
			Location:            LocationSelected,
			DownmixIDs:          []uint8{dmx},
			ApplyToDownmix:      dmx != DownmixIDBase,
			TargetLoudnessLower: -63,
			ChannelCount:        channels[i],
			GainSetIndex:        make([]int, channels[i]),
		}
		for c := range v.GainSetIndex {
			v.GainSetIndex[c] = -1
		}
		if err := DeriveChannelGroups(&v); err != nil {
			return err
		}
		signalled = append(signalled, v)
	}
	cfg.Instructions = signalled
	return nil
}

// SignalledInstructions returns the number of non-virtual DRC sets.
func (c *Config) SignalledInstructions() int {
	n := 0
	for i := range c.Instructions {
		if !c.Instructions[i].IsVirtual() {
			n++
		}
	}
	return n
}

// WriteConfig writes cfg in the syntax of cfg.Mode. Virtual sets are not
// written. Loudness is embedded only in MPEG-H mode.
func WriteConfig(w *bits.Writer, cfg *Config) {
	var signalled []*Instructions
	for i := range cfg.Instructions {
		if !cfg.Instructions[i].IsVirtual() {
			signalled = append(signalled, &cfg.Instructions[i])
		}
	}
	ctx := &parseContext{
		mode:             cfg.Mode,
		baseChannelCount: cfg.ChannelLayout.BaseChannelCount,
		downmix:          cfg.Downmix,
		coefficients:     cfg.Coefficients,
	}

	if cfg.Mode == ModeMPEGH {
		w.PutBits(uint32(len(cfg.Coefficients)), 3)
		w.PutBits(uint32(len(signalled)), 6)
		w.PutBits(uint32(cfg.ChannelLayout.BaseChannelCount), 7)
	} else {
		w.PutBool(cfg.SampleRatePresent)
		if cfg.SampleRatePresent {
			w.PutBits(uint32(cfg.SampleRate-1000), 18)
		}
		w.PutBits(uint32(len(cfg.Downmix)), 7)
		w.PutBool(false) // drcDescriptionBasicPresent
		w.PutBits(uint32(len(cfg.Coefficients)), 3)
		w.PutBits(uint32(len(signalled)), 6)
		l := &cfg.ChannelLayout
		w.PutBits(uint32(l.BaseChannelCount), 7)
		w.PutBool(l.LayoutSignalingPresent)
		if l.LayoutSignalingPresent {
			w.PutBits(uint32(l.DefinedLayout), 8)
			if l.DefinedLayout == 0 {
				for _, p := range l.SpeakerPosition {
					w.PutBits(uint32(p), 7)
				}
			}
		}
		for i := range cfg.Downmix {
			writeDownmixInstructions(w, &cfg.Downmix[i])
		}
	}

	for i := range cfg.Coefficients {
		WriteCoefficients(w, &cfg.Coefficients[i])
	}
	for _, in := range signalled {
		writeInstructions(w, in, ctx)
	}

	w.PutBool(false) // uniDrcConfigExtPresent
	if cfg.Mode == ModeMPEGH {
		w.PutBool(cfg.Loudness != nil)
		if cfg.Loudness != nil {
			WriteLoudnessInfoSet(w, cfg.Loudness, ModeMPEGH)
		}
	}
}
