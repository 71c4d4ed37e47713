package unidrc

import (
	"io"
	"math"
	"reflect"

	"github.com/sirupsen/logrus"

	"github.com/llehouerou/go-unidrc/internal/bits"
	"github.com/llehouerou/go-unidrc/internal/gain"
	"github.com/llehouerou/go-unidrc/internal/selection"
	"github.com/llehouerou/go-unidrc/internal/syntax"
)

// FunctionalRange selects the parts of the decoder that are used.
type FunctionalRange uint8

// Functional ranges.
const (
	FunctionalRangeSelection FunctionalRange = 1 << iota
	FunctionalRangeGain

	FunctionalRangeAll = FunctionalRangeSelection | FunctionalRangeGain
)

// CodecMode selects the DRC payload syntax.
type CodecMode uint8

// Codec modes.
const (
	CodecModeUnset CodecMode = iota
	CodecModeMPEGD
	CodecModeMPEGH
)

// Location is where in the signal chain gains are applied.
type Location = gain.Location

// Locations.
const (
	LocationPreDownmix  = gain.LocationPreDownmix
	LocationPostDownmix = gain.LocationPostDownmix
)

// MaxSubstreams is the number of substreams merged into one configuration.
const MaxSubstreams = syntax.MaxSubstreams

// BitReader is the bit cursor the payload readers consume.
type BitReader = bits.Reader

// NewBitReader returns a BitReader over a payload.
func NewBitReader(data []byte) *BitReader {
	return bits.NewReader(data)
}

// DownmixInstructions describes one downmix target. In MPEG-H mode they
// are supplied with SetDownmixInstructions.
type DownmixInstructions = syntax.DownmixInstructions

// Selection is the current DRC set selection.
type Selection = selection.Output

// Decoder is a Unified DRC decoder. It owns the payload state, the
// selection process and the gain decoder of one audio stream.
//
// Selection is deferred: configuration, loudness and parameter changes
// only mark the selection stale, and it is recomputed by the next
// Preprocess. A Decoder is not safe for concurrent use.
type Decoder struct {
	log    *logrus.Logger
	rng    FunctionalRange
	closed bool

	mode       CodecMode
	modeLocked bool

	initialized bool
	frameSize   int
	sampleRate  int
	delay       gain.DelayMode
	subbands    int
	subbandStep int

	in selection.Input

	parts     [MaxSubstreams]*syntax.Config
	loudParts [MaxSubstreams]*syntax.LoudnessInfoSet
	downmix   []syntax.DownmixInstructions
	cfg       *syntax.Config
	loudness  *syntax.LoudnessInfoSet

	out      selection.Output
	selected bool

	// Stale flags, cleared by a successful selection.
	diffConfig   bool
	diffLoudness bool
	diffParams   bool
	diffDownmix  bool

	gains      *syntax.GainReader
	frameOpen  bool
	gd         *gain.Decoder
	gdStale    bool
	concealing bool
	startup    bool

	chGains []float32 // loudness normalization gain per channel
}

// NewDecoder opens a decoder for a functional range.
func NewDecoder(rng FunctionalRange, opts ...Option) (*Decoder, error) {
	if rng == 0 || rng&^FunctionalRangeAll != 0 {
		return nil, ErrInvalidParam
	}
	log := logrus.New()
	log.SetOutput(io.Discard)
	d := &Decoder{
		log:     log,
		rng:     rng,
		in:      selection.DefaultInput(),
		gains:   syntax.NewGainReader(),
		startup: true,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

func (d *Decoder) syntaxMode() syntax.Mode {
	if d.mode == CodecModeMPEGD {
		return syntax.ModeMPEGD
	}
	return syntax.ModeMPEGH
}

// SetCodecMode selects the payload syntax. The mode is locked once set;
// setting the same mode again is accepted.
func (d *Decoder) SetCodecMode(mode CodecMode) error {
	if d.closed {
		return ErrNotOpened
	}
	if mode != CodecModeMPEGD && mode != CodecModeMPEGH {
		return ErrInvalidParam
	}
	if d.modeLocked {
		if mode == d.mode {
			return nil
		}
		return ErrParamLocked
	}
	d.mode = mode
	d.modeLocked = true
	d.in.Mode = d.syntaxMode()
	return nil
}

// Init sets the frame size, sample rate and base channel count of the
// stream and creates the gain decoder.
func (d *Decoder) Init(frameSize, sampleRate, baseChannelCount int) error {
	if d.closed {
		return ErrNotOpened
	}
	if frameSize <= 0 || sampleRate <= 0 || baseChannelCount <= 0 || baseChannelCount > syntax.MaxChannels {
		return ErrInvalidParam
	}
	if d.rng&FunctionalRangeGain != 0 {
		cfg := gain.Config{
			FrameSize:  frameSize,
			SampleRate: sampleRate,
			Delay:      d.delay,
		}
		if d.subbands > 0 {
			cfg.Domain = gain.DomainSubband
			cfg.Subbands = d.subbands
			cfg.SubbandStep = d.subbandStep
		}
		gd, err := gain.New(cfg)
		if err != nil {
			return wrap(err)
		}
		d.gd = gd
		d.gdStale = true
	}
	d.frameSize, d.sampleRate = frameSize, sampleRate
	if d.cfg != nil {
		// A config read before Init used no sample rate for its defaults.
		if cfg := d.cfg.WithSampleRate(sampleRate); syntax.Changed(d.cfg, cfg) {
			d.cfg = cfg
			d.diffConfig = true
			d.gains.Reset()
			d.frameOpen = false
		}
	}
	d.in.BaseChannelCount = baseChannelCount
	d.in.TimeDomain = d.subbands == 0
	d.initialized = true
	d.diffParams = true
	return nil
}

// SetParam sets a parameter. Selection parameters take effect at the
// next Preprocess; the order of SetParam calls does not matter.
func (d *Decoder) SetParam(id Param, value float32) error {
	if d.closed {
		return ErrNotOpened
	}
	if id == ParamDelayMode {
		if d.initialized {
			return ErrParamLocked
		}
		n, ok := integral(value, float64(DelayFrame), float64(DelayNone))
		if !ok {
			return ErrParamOutOfRange
		}
		d.delay = gain.DelayMode(n)
		return nil
	}
	in := d.in
	if !applyParam(&in, id, value) {
		if _, known := inputParam(&in, id); !known {
			return ErrInvalidParam
		}
		return ErrParamOutOfRange
	}
	if err := in.Validate(); err != nil {
		return wrap(err)
	}
	if !reflect.DeepEqual(in, d.in) {
		d.in = in
		d.diffParams = true
	}
	return nil
}

// GetParam reads a parameter or a property of the current selection.
func (d *Decoder) GetParam(id Param) (float32, error) {
	if d.closed {
		return 0, ErrNotOpened
	}
	b := func(x bool) float32 {
		if x {
			return 1
		}
		return 0
	}
	switch id {
	case ParamDelayMode:
		return float32(d.delay), nil
	case ParamIsStartupPhase:
		return b(d.startup), nil
	case ParamIsMultibandDRC1, ParamIsMultibandDRC2:
		if d.gd == nil {
			return 0, nil
		}
		return b(d.gd.Multiband(int(id - ParamIsMultibandDRC1))), nil
	case ParamIsActive:
		return b(d.active()), nil
	case ParamOutputLoudness:
		if !d.selected || !d.out.OutputLoudnessKnown {
			return 0, ErrNotReady
		}
		return d.out.OutputLoudness, nil
	case ParamTargetLayoutSelected:
		return float32(d.out.TargetLayout), nil
	case ParamTargetChannelCountSelected:
		return float32(d.out.TargetChannelCount), nil
	case ParamLoudnessNormalizationGainDB:
		return d.out.LoudnessNormalizationGainDB, nil
	case ParamNumSelectedDRCSets:
		return float32(d.out.NumSelected()), nil
	case ParamActiveDownmixID:
		return float32(d.out.ActiveDownmixID), nil
	}
	if v, ok := inputParam(&d.in, id); ok {
		return v, nil
	}
	return 0, ErrInvalidParam
}

// active reports whether a signalled DRC set is selected.
func (d *Decoder) active() bool {
	if !d.selected {
		return false
	}
	for _, id := range d.out.SelectedIDs {
		if id > 0 {
			return true
		}
	}
	return false
}

// Selection returns the current selection and whether one was made.
func (d *Decoder) Selection() (Selection, bool) {
	return d.out, d.selected
}

// Config returns the merged DRC configuration, or nil before the first
// accepted payload.
func (d *Decoder) Config() *syntax.Config {
	return d.cfg
}

// Loudness returns the loudness information in effect: the merged
// loudnessInfoSet if one was read, else the one embedded in the
// configuration.
func (d *Decoder) Loudness() *syntax.LoudnessInfoSet {
	if d.loudness != nil {
		return d.loudness
	}
	if d.cfg != nil {
		return d.cfg.Loudness
	}
	return nil
}

// SetDownmixInstructions supplies the downmix targets of an MPEG-H
// stream. The change re-runs the selection but does not reconfigure the
// gain decoder.
func (d *Decoder) SetDownmixInstructions(dm []DownmixInstructions) error {
	if d.closed {
		return ErrNotOpened
	}
	if d.mode == CodecModeMPEGD {
		return ErrUnsupportedFunction
	}
	if len(dm) > syntax.MaxDownmixInstructions {
		return ErrOutOfMemory
	}
	list := append([]syntax.DownmixInstructions(nil), dm...)
	if reflect.DeepEqual(list, d.downmix) {
		return nil
	}
	d.downmix = list
	if d.cfg != nil {
		cfg := *d.cfg
		cfg.Downmix = list
		cfg.Instructions = append([]syntax.Instructions(nil), d.cfg.Instructions...)
		if err := syntax.AddVirtualSets(&cfg); err != nil {
			return wrap(err)
		}
		d.cfg = &cfg
	}
	d.diffDownmix = true
	return nil
}

func (d *Decoder) ready(sub int) error {
	switch {
	case d.closed:
		return ErrNotOpened
	case !d.modeLocked:
		return ErrNotReady
	case sub < 0 || sub >= MaxSubstreams:
		return ErrInvalidParam
	}
	return nil
}

// ReadUniDrcConfig parses the DRC configuration of substream sub and
// merges it with the other substreams. A failed parse keeps the previous
// configuration.
func (d *Decoder) ReadUniDrcConfig(r *BitReader, sub int) error {
	if err := d.ready(sub); err != nil {
		return err
	}
	parsed, err := syntax.ParseConfig(r, syntax.ConfigOptions{
		Mode:       d.syntaxMode(),
		SampleRate: d.sampleRate,
		Downmix:    d.downmix,
	})
	if err != nil {
		d.log.WithFields(logrus.Fields{"substream": sub, "element": "uniDrcConfig"}).WithError(err).Warn("payload rejected")
		return wrap(err)
	}

	parts := d.parts
	parts[sub] = &parsed
	if parts[0] == nil {
		d.parts = parts
		return nil
	}
	last := 0
	for i, p := range parts {
		if p != nil {
			last = i
		}
	}
	merged, err := syntax.Merge(parts[:last+1])
	if err != nil {
		d.log.WithFields(logrus.Fields{"substream": sub, "element": "uniDrcConfig"}).WithError(err).Warn("substream merge failed")
		return wrap(err)
	}
	d.parts = parts
	resolved := merged.WithSampleRate(d.sampleRate)
	if d.cfg == nil || syntax.Changed(d.cfg, resolved) {
		d.cfg = resolved
		d.diffConfig = true
		d.gains.Reset()
		d.frameOpen = false
	}
	return nil
}

// ReadLoudnessInfoSet parses the loudness information of substream sub.
// Side stream measurements are merged into those of substream 0.
func (d *Decoder) ReadLoudnessInfoSet(r *BitReader, sub int) error {
	if err := d.ready(sub); err != nil {
		return err
	}
	ls, err := syntax.ParseLoudnessInfoSet(r, d.syntaxMode())
	if err != nil {
		d.log.WithFields(logrus.Fields{"substream": sub, "element": "loudnessInfoSet"}).WithError(err).Warn("payload rejected")
		return wrap(err)
	}
	parts := d.loudParts
	parts[sub] = &ls
	if parts[0] == nil {
		d.loudParts = parts
		return nil
	}
	merged := *parts[0]
	for _, side := range parts[1:] {
		if side == nil {
			continue
		}
		if merged, err = syntax.MergeLoudness(&merged, side); err != nil {
			d.log.WithFields(logrus.Fields{"substream": sub, "element": "loudnessInfoSet"}).WithError(err).Warn("loudness merge failed")
			return wrap(err)
		}
	}
	d.loudParts = parts
	if d.loudness == nil || !reflect.DeepEqual(*d.loudness, merged) {
		d.loudness = &merged
		d.diffLoudness = true
	}
	return nil
}

// ReadUniDrcGain parses the gain payload of substream sub for the current
// frame. A frame missing any substream's payload is concealed.
func (d *Decoder) ReadUniDrcGain(r *BitReader, sub int) error {
	if err := d.ready(sub); err != nil {
		return err
	}
	if d.rng&FunctionalRangeGain == 0 {
		return ErrUnsupportedFunction
	}
	if d.cfg == nil || !d.initialized {
		return ErrNotReady
	}
	if !d.frameOpen {
		d.gains.BeginFrame(d.cfg)
		d.frameOpen = true
	}
	if err := d.gains.Read(r, d.cfg, sub, d.frameSize); err != nil {
		d.log.WithFields(logrus.Fields{"substream": sub, "element": "uniDrcGain"}).WithError(err).Warn("payload rejected")
		return wrap(err)
	}
	return nil
}

// stale reports whether the selection must be recomputed.
func (d *Decoder) stale() bool {
	return d.diffConfig || d.diffLoudness || d.diffParams || d.diffDownmix
}

// runSelection recomputes the selection. On a fatal error the previous
// selection stays in effect and the stale flags stay set.
func (d *Decoder) runSelection() error {
	out, st, err := selection.Process(&d.in, d.cfg, d.loudness)
	if err != nil {
		d.log.WithError(err).Warn("DRC set selection failed")
		return wrap(err)
	}
	if st == selection.Warning {
		d.log.Debug("DRC set selection used a fallback")
	}

	reconfigure := d.gdStale || d.diffConfig ||
		!reflect.DeepEqual(out.SelectedIDs, d.out.SelectedIDs) ||
		!reflect.DeepEqual(out.SelectedDownmixIDs, d.out.SelectedDownmixIDs)
	if !d.selected || !reflect.DeepEqual(out, d.out) {
		d.log.WithFields(logrus.Fields{
			"selected":  out.SelectedIDs,
			"downmix":   out.ActiveDownmixID,
			"norm_gain": out.LoudnessNormalizationGainDB,
			"status":    st.String(),
		}).Debug("DRC selection changed")
	}
	d.out = out
	d.selected = true
	d.startup = false
	d.diffConfig, d.diffLoudness, d.diffParams, d.diffDownmix = false, false, false, false

	if d.gd == nil {
		return nil
	}
	if reconfigure {
		if err := d.gd.Configure(d.cfg, &d.out); err != nil {
			d.log.WithError(err).Warn("gain decoder configuration failed")
			d.gdStale = true
			return wrap(err)
		}
		d.gdStale = false
		d.log.WithField("active", len(d.out.SelectedIDs)).Debug("gain decoder configured")
	} else {
		d.gd.SetBoostCompress(d.out.Boost, d.out.Compress)
	}
	return nil
}

// Preprocess runs a pending selection and prepares the gains of the
// current frame. It must be called once per frame before ProcessTime or
// ProcessFreq. Without a configuration it does nothing.
func (d *Decoder) Preprocess() error {
	if d.closed {
		return ErrNotOpened
	}
	if !d.initialized {
		return ErrNotReady
	}
	if d.cfg == nil {
		return nil
	}
	var selErr error
	if d.stale() || (d.gd != nil && d.gdStale) {
		selErr = d.runSelection()
	}
	if d.gd == nil || d.gdStale {
		d.frameOpen = false
		return selErr
	}

	if !d.frameOpen {
		d.gains.BeginFrame(d.cfg)
	}
	d.frameOpen = false
	fg := d.gains.Frame()
	if !fg.Status {
		if !d.concealing {
			d.log.WithField("sequences", fg.Count).Debug("gain payload missing, concealing")
		}
		d.concealing = true
	} else {
		d.concealing = false
	}
	if err := d.gd.Preprocess(fg); err != nil {
		return wrap(err)
	}
	return selErr
}

// normalizationAt reports whether loudness normalization is applied at
// loc: after the downmix when one is active, otherwise before.
func (d *Decoder) normalizationAt(loc Location) bool {
	if d.out.ActiveDownmixID != syntax.DownmixIDBase {
		return loc == LocationPostDownmix
	}
	return loc == LocationPreDownmix
}

// channelGains returns the normalization gain for n channels. The slice
// is reused across calls.
func (d *Decoder) channelGains(n int) []float32 {
	g := float32(1)
	if d.out.LoudnessNormalizationGainDB != 0 {
		g = float32(math.Pow(10, float64(d.out.LoudnessNormalizationGainDB)/20))
	}
	if cap(d.chGains) < n {
		d.chGains = make([]float32, n)
	}
	gains := d.chGains[:n]
	for i := range gains {
		gains[i] = g
	}
	return gains
}

func (d *Decoder) processReady() error {
	switch {
	case d.closed:
		return ErrNotOpened
	case d.rng&FunctionalRangeGain == 0:
		return ErrUnsupportedFunction
	case !d.initialized || d.gd == nil:
		return ErrNotReady
	}
	return nil
}

// ProcessTime applies the DRC gains of loc, and the loudness
// normalization gain, to time domain audio with one slice of frame size
// samples per channel. Before the first selection the audio is left
// untouched.
func (d *Decoder) ProcessTime(loc Location, buf [][]float32) error {
	if err := d.processReady(); err != nil {
		return err
	}
	if !d.selected || d.gdStale {
		return nil
	}
	if err := d.gd.ProcessTime(loc, buf, 0); err != nil {
		return wrap(err)
	}
	if d.normalizationAt(loc) {
		return wrap(d.gd.ApplyChannelGains(buf, d.channelGains(len(buf))))
	}
	return nil
}

// ProcessFreq is ProcessTime for subband audio indexed
// [channel][timeslot][subband]. im may be nil.
func (d *Decoder) ProcessFreq(loc Location, re, im [][][]float32) error {
	if err := d.processReady(); err != nil {
		return err
	}
	if !d.selected || d.gdStale {
		return nil
	}
	if err := d.gd.ProcessSubband(loc, re, im, 0); err != nil {
		return wrap(err)
	}
	if d.normalizationAt(loc) {
		return wrap(d.gd.ApplySubbandChannelGains(re, im, d.channelGains(len(re))))
	}
	return nil
}

// Reset drops all gain history and pending gain payloads, keeping the
// configuration and parameters. The gain decoder is reconfigured by the
// next Preprocess.
func (d *Decoder) Reset() {
	d.gains.Reset()
	d.frameOpen = false
	d.concealing = false
	if d.gd != nil {
		d.gd.Reset()
		d.gdStale = true
	}
}

// Close releases the decoder. Later calls return ErrNotOpened.
func (d *Decoder) Close() error {
	if d.closed {
		return ErrNotOpened
	}
	d.closed = true
	d.gd = nil
	d.cfg = nil
	d.loudness = nil
	d.parts = [MaxSubstreams]*syntax.Config{}
	d.loudParts = [MaxSubstreams]*syntax.LoudnessInfoSet{}
	return nil
}
