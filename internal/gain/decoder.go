// Package gain turns decoded DRC gain sequences into gains applied to
// audio. Configure compiles the selected DRC sets into active DRCs,
// Preprocess converts one frame of dB nodes into linear curves, and
// ProcessTime or ProcessSubband applies them.
//
// Every gain curve owns a slot of a node buffer that keeps the last
// Generations frames, so interpolation runs across frame boundaries and
// with a gain delay of up to one frame.
package gain

import (
	"github.com/llehouerou/go-unidrc/internal/selection"
	"github.com/llehouerou/go-unidrc/internal/syntax"
)

// Capacities.
const (
	MaxActiveDRCs = selection.MaxSelected
	Generations   = 5
	MaxSlots      = syntax.MaxGainSequences
)

// Location is where in the signal chain a DRC set is applied.
type Location int

// Locations.
const (
	LocationPreDownmix Location = iota
	LocationPostDownmix
	numLocations
)

// Domain is the processing domain.
type Domain uint8

// Processing domains.
const (
	DomainTime Domain = iota
	DomainSubband
)

// DelayMode selects the gain delay.
type DelayMode uint8

// Delay modes.
const (
	// DelayFrame applies the curve of the previous frame; nodes may be
	// coded up to the end of the frame.
	DelayFrame DelayMode = iota
	// DelayNone applies the curve of the current frame.
	DelayNone
)

// Config is the static setup of a Decoder.
type Config struct {
	FrameSize  int
	SampleRate int
	Domain     Domain
	// Subbands and SubbandStep describe the subband domain: the number of
	// subbands and the number of samples per timeslot.
	Subbands    int
	SubbandStep int
	Delay       DelayMode
}

func (c *Config) validate() error {
	if c.FrameSize <= 0 || c.SampleRate <= 0 {
		return ErrInvalidParam
	}
	switch c.Domain {
	case DomainTime:
	case DomainSubband:
		if c.Subbands <= 0 || c.SubbandStep <= 0 || c.FrameSize%c.SubbandStep != 0 {
			return ErrInvalidParam
		}
	default:
		return ErrInvalidParam
	}
	if c.Delay > DelayNone {
		return ErrInvalidParam
	}
	return nil
}

// node is a linear gain breakpoint.
type node struct {
	time int
	gain fixed
}

// group is a channel group of an active DRC with one gain curve per band.
type group struct {
	channels []int
	bands    int
	seq      [syntax.MaxBands]int
	slot     [syntax.MaxBands]int

	// Gain modification per band, resolved at Configure time.
	attenuation   [syntax.MaxBands]float32
	amplification [syntax.MaxBands]float32
	offset        [syntax.MaxBands]float32
	ducking       float32

	weights [syntax.MaxBands][]float32 // multiband subband weights
	curve   [syntax.MaxBands][]float32 // gain per position, this frame
}

// ActiveDRC is a DRC set compiled for processing.
type ActiveDRC struct {
	ID           int
	DownmixID    uint8
	Effect       syntax.Effect
	ChannelCount int
	Multiband    bool

	// LimiterPeakTarget is the peak level the set limits to, in dBFS.
	LimiterPeakTarget        float32
	LimiterPeakTargetPresent bool
	// NormalizationGainDB is the loudness normalization gain applied
	// together with the set.
	NormalizationGainDB float32

	groups []group
}

// gainCeilingDB is the largest gain of a clipping prevention set: 0 dB,
// or less when loudness normalization leaves less headroom than the
// limiter peak target.
func (a *ActiveDRC) gainCeilingDB() float32 {
	if !a.LimiterPeakTargetPresent {
		return 0
	}
	return min(-a.LimiterPeakTarget-a.NormalizationGainDB, 0)
}

// Identity reports whether the set leaves the signal untouched.
func (a *ActiveDRC) Identity() bool {
	return len(a.groups) == 0
}

// Decoder applies the gains of the selected DRC sets.
type Decoder struct {
	cfg   Config
	delay int

	active     [numLocations][]ActiveDRC
	configured bool

	nodes [MaxSlots][Generations][]node
	slots int
	gen   int

	lastDB [syntax.MaxGainSequences]float32

	boost, compress float32

	prevChannelGain []float32
	subbandGain     []float32
}

// New creates a Decoder for a frame size and processing domain.
func New(cfg Config) (*Decoder, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	d := &Decoder{cfg: cfg, boost: 1, compress: 1}
	if cfg.Delay == DelayFrame {
		d.delay = cfg.FrameSize
	}
	if cfg.Domain == DomainSubband {
		d.subbandGain = make([]float32, d.positions()*cfg.Subbands)
	}
	return d, nil
}

// FrameSize returns the frame size in samples.
func (d *Decoder) FrameSize() int {
	return d.cfg.FrameSize
}

// positions is the number of gain values per frame: samples in the time
// domain, timeslots in the subband domain.
func (d *Decoder) positions() int {
	if d.cfg.Domain == DomainSubband {
		return d.cfg.FrameSize / d.cfg.SubbandStep
	}
	return d.cfg.FrameSize
}

func (d *Decoder) step() int {
	if d.cfg.Domain == DomainSubband {
		return d.cfg.SubbandStep
	}
	return 1
}

// Configure compiles the DRC sets selected in out. Every location gets a
// virtual identity set first, unless a multiband set takes the
// pre-downmix slot. Node buffers restart from unity gain.
func (d *Decoder) Configure(cfg *syntax.Config, out *selection.Output) error {
	if cfg == nil || out == nil || len(out.SelectedIDs) != len(out.SelectedDownmixIDs) {
		return ErrInvalidParam
	}
	var active [numLocations][]ActiveDRC
	slots := 0
	coef := cfg.CoefficientsAt(syntax.LocationSelected)

	for i, id := range out.SelectedIDs {
		set := cfg.InstructionsByID(id)
		if set == nil {
			return ErrUnknownSet
		}
		if set.IsVirtual() || len(set.Groups) == 0 {
			continue
		}
		dmx := out.SelectedDownmixIDs[i]
		loc := LocationPreDownmix
		if set.ApplyToDownmix && dmx != syntax.DownmixIDBase {
			loc = LocationPostDownmix
		}
		if len(active[loc]) >= MaxActiveDRCs {
			return ErrSlots
		}
		a, err := d.compile(set, dmx, coef, &slots)
		if err != nil {
			return err
		}
		a.NormalizationGainDB = out.LoudnessNormalizationGainDB
		active[loc] = append(active[loc], a)
	}

	for loc := range active {
		if loc == int(LocationPreDownmix) && len(active[loc]) > 0 && active[loc][0].Multiband {
			continue
		}
		identity := ActiveDRC{ID: -1 - loc, ChannelCount: out.TargetChannelCount}
		if loc == int(LocationPreDownmix) {
			identity.ChannelCount = out.BaseChannelCount
		}
		active[loc] = append([]ActiveDRC{identity}, active[loc]...)
	}

	d.active = active
	d.slots = slots
	d.boost, d.compress = out.Boost, out.Compress
	d.gen = 0
	unity := []node{{time: d.cfg.FrameSize - 1, gain: one}}
	for s := 0; s < slots; s++ {
		for g := range d.nodes[s] {
			d.nodes[s][g] = append(d.nodes[s][g][:0], unity...)
		}
	}
	d.configured = true
	return nil
}

func (d *Decoder) compile(set *syntax.Instructions, dmx uint8, coef *syntax.Coefficients, slots *int) (ActiveDRC, error) {
	a := ActiveDRC{
		ID:                       set.ID,
		DownmixID:                dmx,
		Effect:                   set.Effect,
		ChannelCount:             set.ChannelCount,
		LimiterPeakTarget:        set.LimiterPeakTarget,
		LimiterPeakTargetPresent: set.LimiterPeakTargetPresent,
	}
	if coef == nil {
		return a, ErrUnknownSet
	}
	n := d.positions()
	for gi := range set.Groups {
		sg := &set.Groups[gi]
		if sg.GainSetIndex < 0 || sg.GainSetIndex >= len(coef.GainSets) {
			return a, ErrUnknownSet
		}
		gs := &coef.GainSets[sg.GainSetIndex]
		g := group{
			channels: append([]int(nil), sg.Channels...),
			bands:    gs.BandCount,
			ducking:  1,
		}
		if g.bands > 1 {
			if d.cfg.Domain == DomainTime {
				return a, ErrUnsupported
			}
			w, err := overlapWeights(gs, d.cfg.Subbands)
			if err != nil {
				return a, err
			}
			g.weights = w
			a.Multiband = true
		}
		for b := 0; b < g.bands; b++ {
			if *slots >= MaxSlots {
				return a, ErrSlots
			}
			g.seq[b] = gs.SequenceIndex[b]
			g.slot[b] = *slots
			*slots++
			g.curve[b] = make([]float32, n)
			g.attenuation[b], g.amplification[b] = 1, 1
		}
		switch m := sg.Modification.(type) {
		case syntax.GainModification:
			for b := 0; b < g.bands; b++ {
				bm := &m.Bands[b]
				if bm.ScalingPresent {
					g.attenuation[b] = bm.AttenuationScaling
					g.amplification[b] = bm.AmplificationScaling
				}
				if bm.OffsetPresent {
					g.offset[b] = bm.Offset
				}
			}
		case syntax.DuckingModification:
			if m.ScalingPresent {
				g.ducking = m.Scaling
			}
		}
		a.groups = append(a.groups, g)
	}
	return a, nil
}

// Active returns the active DRCs of a location, identity sets included.
func (d *Decoder) Active(loc Location) []ActiveDRC {
	if loc < 0 || loc >= numLocations {
		return nil
	}
	return d.active[loc]
}

// Multiband reports whether the i-th applied DRC set of the pre-downmix
// location is multiband.
func (d *Decoder) Multiband(i int) bool {
	n := 0
	for k := range d.active[LocationPreDownmix] {
		a := &d.active[LocationPreDownmix][k]
		if a.Identity() {
			continue
		}
		if n == i {
			return a.Multiband
		}
		n++
	}
	return false
}

// SetBoostCompress changes the boost and compress factors without
// reconfiguring. They apply from the next Preprocess.
func (d *Decoder) SetBoostCompress(boost, compress float32) {
	d.boost, d.compress = boost, compress
}

// Slots returns the number of node buffer slots in use.
func (d *Decoder) Slots() int {
	return d.slots
}

// Reset drops the configuration and all gain history.
func (d *Decoder) Reset() {
	cfg := d.cfg
	*d = Decoder{cfg: cfg, delay: d.delay, boost: 1, compress: 1, subbandGain: d.subbandGain}
}
