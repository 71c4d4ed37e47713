package gain

import (
	"github.com/llehouerou/go-unidrc/internal/syntax"
)

// Concealment decay of the last gain per lost frame.
const (
	ConcealDecayBoost       = 0.9  // last gain above 0 dB
	ConcealDecayAttenuation = 0.98 // last gain at or below 0 dB
)

// noModifiers are the effects whose gains ignore boost and compress.
const noModifiers = syntax.EffectDucking | syntax.EffectFade | syntax.EffectClipping

// Conceal replaces the sequences of fg with one node at the end of the
// frame, decaying the last known gain of each sequence towards 0 dB.
func (d *Decoder) Conceal(fg *syntax.FrameGains) {
	end := d.cfg.FrameSize - 1
	for s := 0; s < fg.Count && s < len(fg.Sequences); s++ {
		g := d.lastDB[s]
		if g > 0 {
			g *= ConcealDecayBoost
		} else {
			g *= ConcealDecayAttenuation
		}
		fg.Sequences[s].Nodes = append(fg.Sequences[s].Nodes[:0], syntax.Node{Time: end, GainDB: g})
	}
}

// Preprocess advances the node buffer by one frame and converts the dB
// nodes of fg into linear gains for every active gain curve. An incomplete
// frame is concealed first. It must run once per frame, before processing.
func (d *Decoder) Preprocess(fg *syntax.FrameGains) error {
	if !d.configured {
		return ErrNotConfigured
	}
	if fg == nil {
		return ErrInvalidParam
	}
	if !fg.Status {
		d.Conceal(fg)
	}
	d.gen = (d.gen + 1) % Generations

	for loc := range d.active {
		for ai := range d.active[loc] {
			a := &d.active[loc][ai]
			for gi := range a.groups {
				g := &a.groups[gi]
				for b := 0; b < g.bands; b++ {
					d.convert(a, g, b, fg)
				}
			}
		}
	}

	for s := 0; s < fg.Count && s < len(fg.Sequences); s++ {
		if nodes := fg.Sequences[s].Nodes; len(nodes) > 0 {
			d.lastDB[s] = nodes[len(nodes)-1].GainDB
		}
	}
	return nil
}

// convert fills the current generation of one curve slot. A sequence
// without nodes in this frame holds the last gain of the previous frame.
func (d *Decoder) convert(a *ActiveDRC, g *group, band int, fg *syntax.FrameGains) {
	slot := g.slot[band]
	buf := d.nodes[slot][d.gen][:0]
	seq := g.seq[band]
	if seq < 0 || seq >= fg.Count {
		d.nodes[slot][d.gen] = append(buf, node{time: d.cfg.FrameSize - 1, gain: one})
		return
	}
	for _, n := range fg.Sequences[seq].Nodes {
		buf = append(buf, node{time: n.Time, gain: d.linear(n.GainDB, a, g, band)})
	}
	if len(buf) == 0 {
		buf = append(buf, node{time: d.cfg.FrameSize - 1, gain: d.lastGain(slot)})
	}
	d.nodes[slot][d.gen] = buf
}

// lastGain returns the gain of the last node of the previous generation.
func (d *Decoder) lastGain(slot int) fixed {
	prev := d.nodes[slot][(d.gen+Generations-1)%Generations]
	if len(prev) == 0 {
		return one
	}
	return prev[len(prev)-1].gain
}

// linear applies, in order, boost or compress, the band's gain
// modification and the ducking scaling, then converts to a linear gain.
// Clipping prevention gains never exceed 0 dB, nor the headroom left by
// the limiter peak target after loudness normalization.
func (d *Decoder) linear(db float32, a *ActiveDRC, g *group, band int) fixed {
	if !a.Effect.Has(noModifiers) {
		if db > 0 {
			db *= d.boost
		} else {
			db *= d.compress
		}
	}
	if db > 0 {
		db *= g.amplification[band]
	} else {
		db *= g.attenuation[band]
	}
	db += g.offset[band]
	db *= g.ducking

	if a.Effect.Has(syntax.EffectClipping) {
		db = min(db, a.gainCeilingDB())
	}
	return fromDB(db)
}
