package syntax

import (
	mbits "math/bits"

	"github.com/llehouerou/go-unidrc/internal/bits"
	"github.com/llehouerou/go-unidrc/internal/huffman"
)

// drcGainCodingMode values.
const (
	gainCodingSimple = 0
	gainCodingFull   = 1
)

// FrameGains holds the decoded gain sequences of one frame, indexed by
// merged gain sequence index.
type FrameGains struct {
	Sequences [MaxGainSequences]GainSequence
	Count     int
	// Status is true once every substream's sequences were decoded for the
	// frame. Otherwise the gain decoder conceals.
	Status   bool
	received [MaxSubstreams]bool
}

// GainReader decodes uniDrcGain() payloads. It keeps the node reservoir:
// nodes whose time falls after the end of the frame they were coded in
// are carried over as the first nodes of the next frame.
type GainReader struct {
	reservoir [MaxGainSequences][]Node
	frame     FrameGains
}

// NewGainReader creates a GainReader with an empty reservoir.
func NewGainReader() *GainReader {
	return &GainReader{}
}

// Reset clears the reservoir and the current frame.
func (gr *GainReader) Reset() {
	*gr = GainReader{}
}

// BeginFrame starts a new frame: nothing is received yet.
func (gr *GainReader) BeginFrame(cfg *Config) {
	gr.frame.received = [MaxSubstreams]bool{}
	gr.frame.Status = false
	gr.frame.Count = 0
	if coef := cfg.CoefficientsAt(LocationSelected); coef != nil {
		gr.frame.Count = coef.GainSequenceCount
	}
	for s := range gr.frame.Sequences {
		gr.frame.Sequences[s].Nodes = gr.frame.Sequences[s].Nodes[:0]
	}
}

// Frame returns the gains of the current frame.
func (gr *GainReader) Frame() *FrameGains {
	return &gr.frame
}

// Read parses the uniDrcGain() payload of substream sub. frameSize is the
// DRC frame size; a frame size signalled in the coefficients overrides it.
// On error nothing of this payload is committed and the frame stays
// incomplete.
func (gr *GainReader) Read(r *bits.Reader, cfg *Config, sub int, frameSize int) error {
	if sub < 0 || sub >= len(cfg.Substreams) {
		return ErrInvalidParam
	}
	info := cfg.Substreams[sub]
	coef := cfg.CoefficientsAt(LocationSelected)
	if coef == nil {
		if info.SequenceCount != 0 {
			return ErrNotOK
		}
	} else if coef.FrameSizePresent {
		frameSize = coef.FrameSize
	}
	if frameSize <= 0 {
		return ErrInvalidParam
	}

	var (
		decoded [MaxGainSequences][]Node
		carry   [MaxGainSequences][]Node
	)
	for s := 0; s < info.SequenceCount; s++ {
		seq := info.SequenceOffset + s
		if seq >= coef.GainSequenceCount {
			return ErrNotOK
		}
		gs := &coef.GainSets[coef.SequenceGainSet[seq]]
		cur, next, err := readSequence(r, gs, frameSize, gr.reservoir[seq])
		if err != nil {
			return err
		}
		decoded[seq], carry[seq] = cur, next
	}

	if r.Get1Bit() == 1 {
		if err := skipExtensions(r); err != nil {
			return err
		}
	}
	if r.Error() {
		return ErrBitstreamRead
	}

	for s := 0; s < info.SequenceCount; s++ {
		seq := info.SequenceOffset + s
		gr.frame.Sequences[seq].Nodes = append(gr.frame.Sequences[seq].Nodes[:0], decoded[seq]...)
		gr.reservoir[seq] = carry[seq]
	}
	gr.frame.received[sub] = true
	gr.frame.Status = true
	for k, info := range cfg.Substreams {
		if info.SequenceCount > 0 && !gr.frame.received[k] {
			gr.frame.Status = false
		}
	}
	return nil
}

// NodeTimeBits returns Z, the width of the longest node-time code suffix:
// ceil(log2(2 * frameSize / timeDeltaMin)).
func NodeTimeBits(frameSize, timeDeltaMin int) uint {
	n := 2 * (frameSize / timeDeltaMin)
	if n <= 1 {
		return 0
	}
	return uint(mbits.Len(uint(n - 1)))
}

// decodeTimeDelta reads a node-time code:
// 00 -> 1, 01xx -> 2..5, 10xxx -> 6..13, 11 + Z bits -> 14..
func decodeTimeDelta(r *bits.Reader, z uint) int {
	switch r.GetBits(2) {
	case 0:
		return 1
	case 1:
		return 2 + int(r.GetBits(2))
	case 2:
		return 6 + int(r.GetBits(3))
	default:
		return 14 + int(r.GetBits(z))
	}
}

// EncodeTimeDelta writes a node-time code for delta (in timeDeltaMin
// units). It returns false if delta cannot be coded with Z bits.
func EncodeTimeDelta(w *bits.Writer, delta int, z uint) bool {
	switch {
	case delta < 1:
		return false
	case delta == 1:
		w.PutBits(0, 2)
	case delta <= 5:
		w.PutBits(1, 2)
		w.PutBits(uint32(delta-2), 2)
	case delta <= 13:
		w.PutBits(2, 2)
		w.PutBits(uint32(delta-6), 3)
	default:
		if delta-14 >= 1<<z {
			return false
		}
		w.PutBits(3, 2)
		w.PutBits(uint32(delta-14), z)
	}
	return true
}

// readInitialGain reads the first gain of a sequence in dB.
func readInitialGain(r *bits.Reader, profile GainCodingProfile) float32 {
	switch profile {
	case GCPRegular:
		sign := r.Get1Bit()
		mag := float32(r.GetBits(8)) * 0.125
		if sign == 1 {
			return -mag
		}
		return mag
	case GCPFading:
		if r.Get1Bit() == 0 {
			return 0
		}
		return -float32(r.GetBits(10)+1) * 0.125
	case GCPClippingDucking:
		if r.Get1Bit() == 0 {
			return 0
		}
		return -float32(r.GetBits(8)+1) * 0.125
	default:
		return 0
	}
}

// writeInitialGain writes the first gain of a sequence. It returns false
// if the gain is not representable in the profile.
func writeInitialGain(w *bits.Writer, profile GainCodingProfile, db float32) bool {
	steps := roundSigned(db * 8)
	switch profile {
	case GCPRegular:
		mag := steps
		if mag < 0 {
			mag = -mag
		}
		if mag > 255 {
			return false
		}
		w.PutBool(steps < 0)
		w.PutBits(uint32(mag), 8)
	case GCPFading:
		if steps == 0 {
			w.PutBits(0, 1)
			return true
		}
		if steps > 0 || -steps > 1024 {
			return false
		}
		w.PutBits(1, 1)
		w.PutBits(uint32(-steps-1), 10)
	case GCPClippingDucking:
		if steps == 0 {
			w.PutBits(0, 1)
			return true
		}
		if steps > 0 || -steps > 256 {
			return false
		}
		w.PutBits(1, 1)
		w.PutBits(uint32(-steps-1), 8)
	}
	return true
}

func roundSigned(v float32) int {
	if v < 0 {
		return -int(-v + 0.5)
	}
	return int(v + 0.5)
}

// timeOffset is the time base of the first coded node.
func timeOffset(gs *GainSet) int {
	if gs.TimeAlignment {
		return -1 + gs.TimeDeltaMin/2
	}
	return -1
}

// readSequence decodes drcGainSequence() for one gain set. reservoir holds
// nodes carried over from the previous frame, already in this frame's
// time base. It returns the nodes of this frame and those carried into the
// next one.
func readSequence(r *bits.Reader, gs *GainSet, frameSize int, reservoir []Node) (cur, next []Node, err error) {
	if gs.CodingProfile == GCPConstant {
		return []Node{{Time: frameSize - 1}}, nil, nil
	}

	if r.Get1Bit() == gainCodingSimple {
		g := readInitialGain(r, gs.CodingProfile)
		if r.Error() {
			return nil, nil, ErrBitstreamRead
		}
		return []Node{{Time: frameSize - 1, GainDB: g}}, nil, nil
	}

	nNodes := 1
	for r.Get1Bit() == 0 {
		nNodes++
		if nNodes > MaxNodes || r.Error() {
			return nil, nil, ErrOutOfRange
		}
	}

	coded := make([]Node, nNodes)
	if gs.Interpolation == InterpolationSpline {
		for k := range coded {
			s, err := huffman.DecodeSlope(r)
			if err != nil {
				return nil, nil, ErrBitstreamRead
			}
			coded[k].Slope = s
		}
	}

	frameEnd := true
	if !gs.FullFrame {
		frameEnd = r.Get1Bit() == 1
	}
	timed := nNodes
	if frameEnd {
		timed--
	}
	if gs.TimeDeltaMin <= 0 {
		return nil, nil, ErrNotOK
	}
	z := NodeTimeBits(frameSize, gs.TimeDeltaMin)
	t := timeOffset(gs)
	if len(reservoir) > 0 {
		t = reservoir[len(reservoir)-1].Time
	}
	for k := 0; k < timed; k++ {
		t += decodeTimeDelta(r, z) * gs.TimeDeltaMin
		coded[k].Time = t
	}
	if frameEnd {
		end := timeOffset(gs) + frameSize
		if end <= t {
			return nil, nil, ErrNotOK
		}
		coded[nNodes-1].Time = end
	}
	if t >= 2*frameSize {
		return nil, nil, ErrOutOfRange
	}

	g := readInitialGain(r, gs.CodingProfile)
	coded[0].GainDB = g
	for k := 1; k < nNodes; k++ {
		d, err := huffman.DecodeDeltaGain(r, uint8(gs.CodingProfile))
		if err != nil {
			return nil, nil, ErrBitstreamRead
		}
		g += d
		coded[k].GainDB = g
	}
	if r.Error() {
		return nil, nil, ErrBitstreamRead
	}

	all := make([]Node, 0, len(reservoir)+nNodes)
	all = append(all, reservoir...)
	all = append(all, coded...)
	for _, n := range all {
		if n.Time < frameSize {
			cur = append(cur, n)
		} else {
			n.Time -= frameSize
			next = append(next, n)
		}
	}
	if len(cur) > MaxNodes {
		return nil, nil, ErrMemory
	}
	return cur, next, nil
}

// SequencePayload is the coded form of one gain sequence for WriteGain.
// Times are in the frame's time base and may reach into the next frame
// (node reservoir). When FrameEnd is set the last node is placed at the
// frame end and its Time is ignored.
type SequencePayload struct {
	Simple   bool
	FrameEnd bool
	Nodes    []Node
	// Base is the time of the last reservoir node, if the previous frame
	// carried nodes into this one.
	Base    int
	HasBase bool
}

// WriteGain writes uniDrcGain() for the sequences of substream sub.
// payloads is indexed by local sequence index; Constant-profile sequences
// are skipped. It returns ErrOutOfRange if a node is not representable.
func WriteGain(w *bits.Writer, cfg *Config, sub int, frameSize int, payloads []SequencePayload) error {
	if sub < 0 || sub >= len(cfg.Substreams) {
		return ErrInvalidParam
	}
	info := cfg.Substreams[sub]
	coef := cfg.CoefficientsAt(LocationSelected)
	if coef == nil && info.SequenceCount > 0 {
		return ErrNotOK
	}
	if coef != nil && coef.FrameSizePresent {
		frameSize = coef.FrameSize
	}
	for s := 0; s < info.SequenceCount; s++ {
		seq := info.SequenceOffset + s
		gs := &coef.GainSets[coef.SequenceGainSet[seq]]
		if gs.CodingProfile == GCPConstant {
			continue
		}
		if s >= len(payloads) {
			return ErrInvalidParam
		}
		if err := writeSequence(w, gs, frameSize, &payloads[s]); err != nil {
			return err
		}
	}
	w.PutBool(false) // uniDrcGainExtPresent
	return nil
}

func writeSequence(w *bits.Writer, gs *GainSet, frameSize int, p *SequencePayload) error {
	if len(p.Nodes) == 0 || len(p.Nodes) > MaxNodes {
		return ErrOutOfRange
	}
	if p.Simple {
		w.PutBits(gainCodingSimple, 1)
		if !writeInitialGain(w, gs.CodingProfile, p.Nodes[0].GainDB) {
			return ErrOutOfRange
		}
		return nil
	}

	w.PutBits(gainCodingFull, 1)
	for k := range p.Nodes {
		w.PutBool(k == len(p.Nodes)-1)
	}
	if gs.Interpolation == InterpolationSpline {
		for _, n := range p.Nodes {
			if err := huffman.Slope.Encode(w, nearestSlope(n.Slope)); err != nil {
				return err
			}
		}
	}

	frameEnd := p.FrameEnd || gs.FullFrame
	if !gs.FullFrame {
		w.PutBool(frameEnd)
	}
	timed := len(p.Nodes)
	if frameEnd {
		timed--
	}
	z := NodeTimeBits(frameSize, gs.TimeDeltaMin)
	t := timeOffset(gs)
	if p.HasBase {
		t = p.Base
	}
	for k := 0; k < timed; k++ {
		d := p.Nodes[k].Time - t
		if d%gs.TimeDeltaMin != 0 || !EncodeTimeDelta(w, d/gs.TimeDeltaMin, z) {
			return ErrOutOfRange
		}
		t = p.Nodes[k].Time
	}

	if !writeInitialGain(w, gs.CodingProfile, p.Nodes[0].GainDB) {
		return ErrOutOfRange
	}
	prev := roundSigned(p.Nodes[0].GainDB * 8)
	for k := 1; k < len(p.Nodes); k++ {
		cur := roundSigned(p.Nodes[k].GainDB * 8)
		if err := huffman.EncodeDeltaGain(w, uint8(gs.CodingProfile), int16(cur-prev)); err != nil {
			return ErrOutOfRange
		}
		prev = cur
	}
	return nil
}

func nearestSlope(s float32) int16 {
	best, bestDist := int16(7), float32(-1)
	for i, v := range huffman.SlopeSteepness {
		d := abs32(v - s)
		if bestDist < 0 || d < bestDist {
			best, bestDist = int16(i), d
		}
	}
	return best
}
