// Package selection implements the DRC set selection process. Candidate
// (DRC set, downmix) pairs run through a fixed sequence of filter steps,
// the survivors are ranked, and dependent, fading and ducking sets are
// appended to the winner.
//
// Process is a pure function: the same request, configuration and
// loudness information always produce the same Output.
package selection

import (
	"github.com/llehouerou/go-unidrc/internal/syntax"
)

// target is a resolved downmix target.
type target struct {
	id       uint8
	channels int
	layout   uint8
	matrix   []float32
}

// candidate is a DRC set applied to one downmix target.
type candidate struct {
	set           *syntax.Instructions
	target        *target
	exact         bool    // the set names the downmix id explicitly
	loudness      float32 // program or anchor loudness, dB
	loudnessKnown bool
	gain          float32 // loudness normalization gain, dB
	peak          float32 // projected output peak, dBFS
	peakKnown     bool
}

// clips reports whether the projected peak is known to exceed ceiling.
func (c *candidate) clips(ceiling float32) bool {
	return c.peakKnown && c.peak > ceiling
}

// filter is one selection step. It returns the candidates that pass; it
// never modifies its input.
type filter func(p *pipeline, c []candidate) []candidate

// steps are the selection filters in normative order.
var steps = []filter{
	matchDownmix,        // 1
	matchTargetLayout,   // 2
	matchChannelCount,   // 3
	excludeFadeAndDuck,  // 4
	validateReferences,  // 5
	independentUse,      // 6
	excludeEQ,           // 7
	matchTargetLoudness, // 8
	minimizeClipping,    // 9
	matchGroupPreset,    // 10
	matchGroup,          // 11
	matchEffect,         // requested effect, then fallback chain
}

type pipeline struct {
	in      *Input
	cfg     *syntax.Config
	table   []syntax.LoudnessInfo
	base    target
	targets []target
	drcOn   bool
	status  Status
}

// Process selects the DRC sets for a request. ls may be nil, in which
// case loudness embedded in cfg is used. On a fatal error the returned
// Output is the zero value and the caller keeps its previous decision.
func Process(in *Input, cfg *syntax.Config, ls *syntax.LoudnessInfoSet) (Output, Status, error) {
	if cfg == nil || in == nil {
		return Output{}, NoError, ErrInvalidHandle
	}
	if err := in.Validate(); err != nil {
		return Output{}, NoError, err
	}
	if len(cfg.Instructions) > syntax.MaxInstructions {
		return Output{}, NoError, ErrOutOfMemory
	}
	if ls == nil {
		ls = cfg.Loudness
	}

	p := &pipeline{
		in:    in,
		cfg:   cfg,
		table: loudnessTable(ls, in.AlbumMode),
		drcOn: in.DRCOn && in.EffectType != EffectTypeOff,
	}
	p.base = target{
		id:       syntax.DownmixIDBase,
		channels: cfg.ChannelLayout.BaseChannelCount,
		layout:   cfg.ChannelLayout.DefinedLayout,
	}
	if p.base.channels == 0 {
		p.base.channels = in.BaseChannelCount
	}
	p.resolveTargets()

	cands := make([]candidate, 0, len(cfg.Instructions)*len(p.targets))
	for t := range p.targets {
		for i := range cfg.Instructions {
			c := candidate{set: &cfg.Instructions[i], target: &p.targets[t]}
			p.evaluate(&c)
			cands = append(cands, c)
		}
	}

	for _, f := range steps {
		cands = f(p, cands)
		if len(cands) == 0 {
			return Output{}, NoError, ErrNotOK
		}
	}

	best := &cands[0]
	for i := 1; i < len(cands); i++ {
		if p.better(&cands[i], best) {
			best = &cands[i]
		}
	}
	return p.output(best), p.status, nil
}

// resolveTargets turns the downmix request into a list of targets. When
// nothing matches the base layout is used and a Warning is reported.
func (p *pipeline) resolveTargets() {
	seen := make(map[uint8]bool)
	add := func(t target) {
		if !seen[t.id] {
			seen[t.id] = true
			p.targets = append(p.targets, t)
		}
	}
	fromDownmix := func(d *syntax.DownmixInstructions) target {
		t := target{id: d.ID, channels: d.TargetChannelCount, layout: d.TargetLayout}
		if d.CoefficientsPresent {
			t.matrix = d.Coefficients
		}
		return t
	}

	switch p.in.Request {
	case RequestDownmixID:
		for _, id := range p.in.DownmixIDs {
			if id == syntax.DownmixIDBase {
				add(p.base)
			} else if d := p.cfg.DownmixByID(id); d != nil {
				add(fromDownmix(d))
			}
		}
	case RequestTargetLayout:
		if p.cfg.ChannelLayout.LayoutSignalingPresent && p.base.layout == p.in.TargetLayout {
			add(p.base)
		}
		for i := range p.cfg.Downmix {
			if p.cfg.Downmix[i].TargetLayout == p.in.TargetLayout {
				add(fromDownmix(&p.cfg.Downmix[i]))
			}
		}
	case RequestTargetChannelCount:
		if p.base.channels == p.in.TargetChannelCount {
			add(p.base)
		}
		for i := range p.cfg.Downmix {
			if p.cfg.Downmix[i].TargetChannelCount == p.in.TargetChannelCount {
				add(fromDownmix(&p.cfg.Downmix[i]))
			}
		}
	}
	if len(p.targets) == 0 {
		p.status = Warning
		add(p.base)
	}
}

// evaluate fills in loudness, normalization gain and projected peak.
func (p *pipeline) evaluate(c *candidate) {
	scope := c.set.Scope
	id, dmx := c.set.ID, c.target.id
	c.loudness, c.loudnessKnown = lookupLoudness(p.table, id, dmx, scope, p.in.MeasurementMethod, p.in.MeasurementSystem)
	if !c.loudnessKnown && !isPlain(scope) {
		c.loudness, c.loudnessKnown = lookupLoudness(p.table, id, dmx, syntax.PlainScope{}, p.in.MeasurementMethod, p.in.MeasurementSystem)
	}

	if p.in.LoudnessNormalization && c.loudnessKnown {
		g := p.in.TargetLoudness - c.loudness
		if g > p.in.NormalizationGainMax {
			g = p.in.NormalizationGainMax
		}
		c.gain = g + p.in.NormalizationGainModification
	}

	// Without a limiter target or a measured peak the output peak is
	// unknown and the candidate never counts as clipping.
	var peak float32
	if c.set.LimiterPeakTargetPresent {
		peak, c.peakKnown = c.set.LimiterPeakTarget, true
	} else {
		peak, c.peakKnown = lookupPeak(p.table, id, dmx, syntax.PlainScope{})
	}
	if c.peakKnown {
		c.peak = peak + c.gain
	}
}

func isPlain(s syntax.Scope) bool {
	_, ok := s.(syntax.PlainScope)
	return s == nil || ok
}

// keep returns the candidates for which pred holds.
func keep(c []candidate, pred func(*candidate) bool) []candidate {
	out := make([]candidate, 0, len(c))
	for i := range c {
		if pred(&c[i]) {
			out = append(out, c[i])
		}
	}
	return out
}

// appliesTo reports whether set can be used with downmix dmx, and whether
// it names dmx explicitly.
func appliesTo(set *syntax.Instructions, dmx uint8) (ok, exact bool) {
	if set.AppliesToDownmix(dmx) {
		return true, true
	}
	if set.AppliesToDownmix(syntax.DownmixIDAny) {
		return true, false
	}
	// A base layout set applied before the downmix.
	if dmx != syntax.DownmixIDBase && set.AppliesToDownmix(syntax.DownmixIDBase) && !set.ApplyToDownmix {
		return true, false
	}
	return false, false
}

func postDownmix(set *syntax.Instructions, dmx uint8) bool {
	return set.ApplyToDownmix && dmx != syntax.DownmixIDBase
}

func uniformGainSet(set *syntax.Instructions) bool {
	for _, g := range set.GainSetIndex {
		if g != set.GainSetIndex[0] {
			return false
		}
	}
	return true
}

func matchDownmix(_ *pipeline, c []candidate) []candidate {
	out := keep(c, func(c *candidate) bool {
		ok, _ := appliesTo(c.set, c.target.id)
		return ok
	})
	for i := range out {
		_, out[i].exact = appliesTo(out[i].set, out[i].target.id)
	}
	return out
}

// matchTargetLayout drops post-downmix sets whose channel assignment does
// not fit the downmix target layout.
func matchTargetLayout(_ *pipeline, c []candidate) []candidate {
	return keep(c, func(c *candidate) bool {
		if !postDownmix(c.set, c.target.id) {
			return true
		}
		return c.set.ChannelCount == c.target.channels || uniformGainSet(c.set)
	})
}

// matchChannelCount drops pre-downmix sets that do not cover the base
// channels.
func matchChannelCount(p *pipeline, c []candidate) []candidate {
	return keep(c, func(c *candidate) bool {
		if postDownmix(c.set, c.target.id) {
			return true
		}
		return c.set.ChannelCount == p.base.channels
	})
}

// excludeFadeAndDuck removes fading and ducking sets, which are only ever
// appended. With DRC off only sets without any effect remain.
func excludeFadeAndDuck(p *pipeline, c []candidate) []candidate {
	if !p.drcOn {
		return keep(c, func(c *candidate) bool { return c.set.Effect == 0 })
	}
	return keep(c, func(c *candidate) bool {
		return !c.set.Effect.Has(syntax.EffectFade | syntax.EffectDucking)
	})
}

// usable reports whether all gain set references of set resolve and the
// set can run in the processing domain.
func (p *pipeline) usable(set *syntax.Instructions) bool {
	if set.Location != syntax.LocationSelected {
		return false
	}
	if len(set.Groups) == 0 {
		return true
	}
	coef := p.cfg.CoefficientsAt(set.Location)
	if coef == nil {
		return false
	}
	for _, g := range set.Groups {
		if g.GainSetIndex < 0 || g.GainSetIndex >= len(coef.GainSets) {
			return false
		}
		bands := coef.GainSets[g.GainSetIndex].BandCount
		if bands < 1 || bands > syntax.MaxBands {
			return false
		}
		if bands > 1 && p.in.TimeDomain {
			return false
		}
	}
	return true
}

func validateReferences(p *pipeline, c []candidate) []candidate {
	return keep(c, func(c *candidate) bool { return p.usable(c.set) })
}

func independentUse(p *pipeline, c []candidate) []candidate {
	return keep(c, func(c *candidate) bool {
		if c.set.NoIndependentUse {
			return false
		}
		if c.set.DependsOnPresent {
			dep := p.cfg.InstructionsByID(c.set.DependsOn)
			return dep != nil && p.usable(dep)
		}
		return true
	})
}

func excludeEQ(_ *pipeline, c []candidate) []candidate {
	return keep(c, func(c *candidate) bool { return !c.set.RequiresEQ })
}

// matchEffect keeps the sets with the first effect of the request chain
// that any set provides. Without a match all candidates stay.
func matchEffect(p *pipeline, c []candidate) []candidate {
	if !p.drcOn {
		return c
	}
	for _, e := range effectChain(p.in) {
		if out := keep(c, func(c *candidate) bool { return c.set.Effect.Has(e) }); len(out) > 0 {
			return out
		}
	}
	return c
}

// matchTargetLoudness prefers sets made for the requested target loudness.
// Sets that do not signal a target are kept only if no set matches.
func matchTargetLoudness(p *pipeline, c []candidate) []candidate {
	target := p.in.TargetLoudness
	selected := keep(c, func(c *candidate) bool {
		s := c.set
		return s.TargetLoudnessPresent && s.TargetLoudnessLower < target && target <= s.TargetLoudnessUpper
	})
	if len(selected) > 0 {
		return selected
	}
	potential := keep(c, func(c *candidate) bool { return !c.set.TargetLoudnessPresent })
	if len(potential) > 0 {
		return potential
	}
	return c
}

// minimizeClipping keeps candidates that do not clip. Otherwise, all of
// them having a known peak, it keeps those within 1 dB of the lowest peak
// and, with loudness normalization on, lowers their normalization gain.
func minimizeClipping(p *pipeline, c []candidate) []candidate {
	ceiling := p.in.OutputPeakLevelMax
	if out := keep(c, func(c *candidate) bool { return !c.clips(ceiling) }); len(out) > 0 {
		return out
	}

	lowest := c[0].peak
	for i := range c {
		if c[i].peak < lowest {
			lowest = c[i].peak
		}
	}
	out := keep(c, func(c *candidate) bool { return c.peak <= lowest+1 })
	if p.in.LoudnessNormalization {
		for i := range out {
			excess := out[i].peak - ceiling
			out[i].gain -= excess
			out[i].peak = ceiling
		}
	}
	p.status = Warning
	return out
}

func matchGroupPreset(p *pipeline, c []candidate) []candidate {
	isPreset := func(c *candidate) bool {
		_, ok := c.set.Scope.(syntax.GroupPresetScope)
		return ok
	}
	if p.in.GroupPresetID != GroupPresetIDNone {
		want := syntax.GroupPresetScope{GroupPresetID: uint8(p.in.GroupPresetID)}
		if out := keep(c, func(c *candidate) bool { return c.set.Scope == want }); len(out) > 0 {
			return out
		}
	}
	if out := keep(c, func(c *candidate) bool { return !isPreset(c) }); len(out) > 0 {
		return out
	}
	return c
}

func (p *pipeline) groupRequested(id uint8) bool {
	for _, g := range p.in.GroupIDs {
		if g == id {
			return true
		}
	}
	return false
}

func matchGroup(p *pipeline, c []candidate) []candidate {
	out := keep(c, func(c *candidate) bool {
		g, ok := c.set.Scope.(syntax.GroupScope)
		return !ok || p.groupRequested(g.GroupID)
	})
	if len(out) > 0 {
		return out
	}
	return c
}

// groupPreferred reports whether the set is scoped to a requested group
// or group preset.
func (p *pipeline) groupPreferred(c *candidate) bool {
	switch s := c.set.Scope.(type) {
	case syntax.GroupPresetScope:
		return p.in.GroupPresetID != GroupPresetIDNone && int(s.GroupPresetID) == p.in.GroupPresetID
	case syntax.GroupScope:
		return p.groupRequested(s.GroupID)
	}
	return false
}

func upperTarget(s *syntax.Instructions) float32 {
	if s.TargetLoudnessPresent {
		return s.TargetLoudnessUpper
	}
	return 0
}

// better reports whether a ranks before b.
func (p *pipeline) better(a, b *candidate) bool {
	ceiling := p.in.OutputPeakLevelMax
	if ac, bc := a.clips(ceiling), b.clips(ceiling); ac != bc {
		return bc
	}
	if ag, bg := p.groupPreferred(a), p.groupPreferred(b); ag != bg {
		return ag
	}
	if a.exact != b.exact {
		return a.exact
	}
	if ae, be := effectCount(a.set.Effect), effectCount(b.set.Effect); ae != be {
		return ae < be
	}
	if au, bu := upperTarget(a.set), upperTarget(b.set); au != bu {
		return au < bu
	}
	if a.peakKnown && b.peakKnown && a.peak != b.peak {
		return a.peak > b.peak
	}
	return a.set.ID > b.set.ID
}

// companion finds the first usable set with one of the effects in mask
// for downmix dmx.
func (p *pipeline) companion(mask syntax.Effect, dmx uint8) *syntax.Instructions {
	for i := range p.cfg.Instructions {
		s := &p.cfg.Instructions[i]
		if !s.Effect.Has(mask) || s.RequiresEQ || !p.usable(s) {
			continue
		}
		if ok, _ := appliesTo(s, dmx); ok {
			return s
		}
	}
	return nil
}

func (p *pipeline) output(best *candidate) Output {
	dmx := best.target.id
	out := Output{
		SelectedIDs:                 []int{best.set.ID},
		SelectedDownmixIDs:          []uint8{dmx},
		ActiveDownmixID:             dmx,
		BaseChannelCount:            p.base.channels,
		TargetChannelCount:          best.target.channels,
		TargetLayout:                best.target.layout,
		DownmixCoefficients:         best.target.matrix,
		LoudnessNormalizationGainDB: best.gain,
		OutputPeakLevel:             best.peak,
		OutputPeakLevelKnown:        best.peakKnown,
		Boost:                       p.in.Boost,
		Compress:                    p.in.Compress,
	}
	if best.loudnessKnown {
		out.OutputLoudness = best.loudness + best.gain
		out.OutputLoudnessKnown = true
	}

	appendSet := func(s *syntax.Instructions) {
		if s == nil || len(out.SelectedIDs) >= MaxSelected {
			return
		}
		for _, id := range out.SelectedIDs {
			if id == s.ID {
				return
			}
		}
		out.SelectedIDs = append(out.SelectedIDs, s.ID)
		out.SelectedDownmixIDs = append(out.SelectedDownmixIDs, dmx)
	}
	if best.set.DependsOnPresent {
		appendSet(p.cfg.InstructionsByID(best.set.DependsOn))
	}
	// Ducking and fading share one slot; ducking wins.
	if duck := p.companion(syntax.EffectDucking, dmx); duck != nil {
		appendSet(duck)
	} else {
		appendSet(p.companion(syntax.EffectFade, dmx))
	}

	for _, g := range p.in.GroupIDs {
		gl := GroupLoudness{GroupID: g}
		gl.Loudness, gl.Known = lookupLoudness(p.table, best.set.ID, dmx, syntax.GroupScope{GroupID: g},
			p.in.MeasurementMethod, p.in.MeasurementSystem)
		if gl.Known {
			gl.Loudness += best.gain
		}
		out.GroupLoudness = append(out.GroupLoudness, gl)
	}
	return out
}
