package gain

// curve interpolates the gain of one slot at every position of the frame
// into dst. Position i is output sample i*step; with a gain delay the
// curve is read one frame back. Generations are walked oldest first;
// the gain is held before the first and after the last node. It reports
// whether every value is exactly unity.
func (d *Decoder) curve(dst []float32, slot int) (bool, error) {
	frame, step := d.cfg.FrameSize, d.step()
	n := len(dst)
	i := 0

	var (
		x0    int
		g0    fixed
		first = true
	)
walk:
	for age := Generations - 1; age >= 0; age-- {
		gen := (d.gen - age + Generations) % Generations
		for _, nd := range d.nodes[slot][gen] {
			x1 := nd.time - age*frame + d.delay
			g1 := nd.gain
			switch {
			case first:
				for v := g1.float(); i < n && i*step <= x1; i++ {
					dst[i] = v
				}
				first = false
			case x1 <= x0:
				return false, ErrTimeDelta
			case g0 == g1:
				for v := g1.float(); i < n && i*step <= x1; i++ {
					dst[i] = v
				}
			default:
				for ; i < n && i*step <= x1; i++ {
					dst[i] = lerp(g0, g1, x0, x1, i*step).float()
				}
			}
			x0, g0 = x1, g1
			if i >= n {
				break walk
			}
		}
	}
	for v := g0.float(); i < n; i++ {
		dst[i] = v
	}

	for _, v := range dst {
		if v != 1 {
			return false, nil
		}
	}
	return true, nil
}

// checkChannels rejects buffers that do not fit the DRC sets of loc.
func (d *Decoder) checkChannels(loc Location, channels, offset int) error {
	if loc < 0 || loc >= numLocations {
		return ErrInvalidParam
	}
	for i := range d.active[loc] {
		a := &d.active[loc][i]
		if a.Identity() {
			continue
		}
		if offset < 0 || offset+channels > a.ChannelCount {
			return ErrChannelOffset
		}
	}
	return nil
}

// ProcessTime applies the DRC gains of loc to buf, one slice of
// FrameSize samples per channel. buf[0] is channel offset of the DRC
// sets. Exact unity gain leaves samples untouched.
func (d *Decoder) ProcessTime(loc Location, buf [][]float32, offset int) error {
	if !d.configured {
		return ErrNotConfigured
	}
	if d.cfg.Domain != DomainTime {
		return ErrInvalidParam
	}
	if err := d.checkChannels(loc, len(buf), offset); err != nil {
		return err
	}
	for c := range buf {
		if len(buf[c]) < d.cfg.FrameSize {
			return ErrInvalidParam
		}
	}

	for ai := range d.active[loc] {
		a := &d.active[loc][ai]
		for gi := range a.groups {
			g := &a.groups[gi]
			gains := g.curve[0]
			unity, err := d.curve(gains, g.slot[0])
			if err != nil {
				return err
			}
			if unity {
				continue
			}
			for _, ch := range g.channels {
				c := ch - offset
				if c < 0 || c >= len(buf) {
					continue
				}
				samples := buf[c]
				for n, v := range gains {
					if v != 1 {
						samples[n] *= v
					}
				}
			}
		}
	}
	return nil
}

// ProcessSubband applies the DRC gains of loc to subband buffers indexed
// [channel][timeslot][subband]. im may be nil for real-valued subbands.
// Multiband gains are synthesized once per group and frame.
func (d *Decoder) ProcessSubband(loc Location, re, im [][][]float32, offset int) error {
	if !d.configured {
		return ErrNotConfigured
	}
	if d.cfg.Domain != DomainSubband {
		return ErrInvalidParam
	}
	if im != nil && len(im) != len(re) {
		return ErrInvalidParam
	}
	if err := d.checkChannels(loc, len(re), offset); err != nil {
		return err
	}
	slots, bands := d.positions(), d.cfg.Subbands
	for c := range re {
		if !fits(re[c], slots, bands) || (im != nil && !fits(im[c], slots, bands)) {
			return ErrInvalidParam
		}
	}

	for ai := range d.active[loc] {
		a := &d.active[loc][ai]
		for gi := range a.groups {
			g := &a.groups[gi]
			unity := true
			for b := 0; b < g.bands; b++ {
				u, err := d.curve(g.curve[b], g.slot[b])
				if err != nil {
					return err
				}
				unity = unity && u
			}
			if unity {
				continue
			}
			gains := d.subbandGains(g)
			for _, ch := range g.channels {
				c := ch - offset
				if c < 0 || c >= len(re) {
					continue
				}
				for s := 0; s < slots; s++ {
					row := gains[s*bands : (s+1)*bands]
					applyRow(re[c][s], row)
					if im != nil {
						applyRow(im[c][s], row)
					}
				}
			}
		}
	}
	return nil
}

func fits(x [][]float32, slots, bands int) bool {
	if len(x) < slots {
		return false
	}
	for s := 0; s < slots; s++ {
		if len(x[s]) < bands {
			return false
		}
	}
	return true
}

func applyRow(dst, gains []float32) {
	for k, v := range gains {
		if v != 1 {
			dst[k] *= v
		}
	}
}

// subbandGains returns the gain per timeslot and subband of a group,
// summing band gains weighted by their overlap windows.
func (d *Decoder) subbandGains(g *group) []float32 {
	slots, bands := d.positions(), d.cfg.Subbands
	out := d.subbandGain
	for s := 0; s < slots; s++ {
		row := out[s*bands : (s+1)*bands]
		if g.bands == 1 {
			v := g.curve[0][s]
			for k := range row {
				row[k] = v
			}
			continue
		}
		for k := range row {
			var v float32
			for b := 0; b < g.bands; b++ {
				if w := g.weights[b][k]; w != 0 {
					v += w * g.curve[b][s]
				}
			}
			row[k] = v
		}
	}
	return out
}

// ApplyChannelGains multiplies each channel of buf by its gain, fading
// linearly over the frame from the gain of the previous call. Channels
// whose previous and current gains are both exactly unity are untouched.
func (d *Decoder) ApplyChannelGains(buf [][]float32, gains []float32) error {
	if len(gains) < len(buf) {
		return ErrInvalidParam
	}
	for len(d.prevChannelGain) < len(gains) {
		d.prevChannelGain = append(d.prevChannelGain, 1)
	}
	for c := range buf {
		prev, cur := d.prevChannelGain[c], gains[c]
		d.prevChannelGain[c] = cur
		if prev == 1 && cur == 1 {
			continue
		}
		samples := buf[c]
		n := len(samples)
		if prev == cur {
			for i := range samples {
				samples[i] *= cur
			}
			continue
		}
		k := (cur - prev) / float32(n)
		for i := range samples {
			samples[i] *= prev + k*float32(i+1)
		}
	}
	return nil
}

// ApplySubbandChannelGains is ApplyChannelGains for subband buffers
// indexed [channel][timeslot][subband]; the fade steps once per timeslot.
func (d *Decoder) ApplySubbandChannelGains(re, im [][][]float32, gains []float32) error {
	if len(gains) < len(re) || (im != nil && len(im) != len(re)) {
		return ErrInvalidParam
	}
	for len(d.prevChannelGain) < len(gains) {
		d.prevChannelGain = append(d.prevChannelGain, 1)
	}
	for c := range re {
		prev, cur := d.prevChannelGain[c], gains[c]
		d.prevChannelGain[c] = cur
		if prev == 1 && cur == 1 {
			continue
		}
		slots := len(re[c])
		k := (cur - prev) / float32(slots)
		for s := 0; s < slots; s++ {
			v := prev + k*float32(s+1)
			if prev == cur {
				v = cur
			}
			scale(re[c][s], v)
			if im != nil {
				scale(im[c][s], v)
			}
		}
	}
	return nil
}

func scale(x []float32, v float32) {
	for i := range x {
		x[i] *= v
	}
}
