// Package syntax implements the MPEG-D / MPEG-H DRC payload syntax:
// the data model for configuration, loudness and gain payloads, and the
// parsers that fill it from a bit cursor.
//
// Reference: ISO/IEC 23003-4 (Unified DRC), ISO/IEC 23008-3 (MPEG-H) 10.x
package syntax

// Mode selects the configuration syntax.
type Mode uint8

// Configuration syntaxes.
const (
	ModeMPEGD Mode = iota // uniDrcConfig(), loudnessInfoSet()
	ModeMPEGH             // mpegh3daUniDrcConfig(), mpegh3daLoudnessInfoSet()
)

// GainCodingProfile selects how gain sequence nodes are coded.
type GainCodingProfile uint8

// Gain coding profiles.
const (
	GCPRegular         GainCodingProfile = 0
	GCPFading          GainCodingProfile = 1
	GCPClippingDucking GainCodingProfile = 2
	GCPConstant        GainCodingProfile = 3
)

// InterpolationType is the gain interpolation signalled for a gain set.
type InterpolationType uint8

// Interpolation types.
const (
	InterpolationSpline InterpolationType = 0
	InterpolationLinear InterpolationType = 1
)

// Effect is the drcSetEffect bit field.
type Effect uint16

// DRC set effect bits.
const (
	EffectNight        Effect = 0x0001
	EffectNoisy        Effect = 0x0002
	EffectLimited      Effect = 0x0004
	EffectLowLevel     Effect = 0x0008
	EffectDialog       Effect = 0x0010
	EffectGeneralCompr Effect = 0x0020
	EffectExpand       Effect = 0x0040
	EffectArtistic     Effect = 0x0080
	EffectClipping     Effect = 0x0100
	EffectFade         Effect = 0x0200
	EffectDuckOther    Effect = 0x0400
	EffectDuckSelf     Effect = 0x0800

	EffectDucking = EffectDuckOther | EffectDuckSelf
)

// Has reports whether any bit of mask is set.
func (e Effect) Has(mask Effect) bool {
	return e&mask != 0
}

// GainParams holds the per-band parameters of a gain set.
type GainParams struct {
	DrcCharacteristic  uint8  // 7 bits
	CrossoverFreqIndex uint8  // band start when DrcBandType is set
	StartSubBandIndex  uint16 // band start otherwise
}

// GainSet is one gainSetParams() entry.
type GainSet struct {
	CodingProfile       GainCodingProfile
	Interpolation       InterpolationType
	FullFrame           bool
	TimeAlignment       bool
	TimeDeltaMinPresent bool
	TimeDeltaMin        int // samples; resolved to the default when not present
	BandCount           int
	DrcBandType         bool // true: CrossoverFreqIndex; false: StartSubBandIndex
	Bands               [MaxBands]GainParams
	SequenceIndex       [MaxBands]int // derived gain sequence index per band
}

// Coefficients is one drcCoefficientsUniDrc() element.
type Coefficients struct {
	Location          uint8
	FrameSizePresent  bool
	FrameSize         int
	GainSets          []GainSet
	GainSequenceCount int
	// SequenceGainSet maps gain sequence index to gain set index.
	SequenceGainSet []int
}

// ChannelLayout is channelLayout() / mpegh3daUniDrcChannelLayout().
type ChannelLayout struct {
	BaseChannelCount       int
	LayoutSignalingPresent bool
	DefinedLayout          uint8
	SpeakerPosition        []uint8
}

// DownmixInstructions is one downmixInstructions() element. In MPEG-H
// mode they are supplied by the caller instead of the bitstream.
type DownmixInstructions struct {
	ID                  uint8
	TargetChannelCount  int
	TargetLayout        uint8
	CoefficientsPresent bool
	// Coefficients is row-major [target][base], linear gain.
	Coefficients []float32
}

// Scope restricts a DRC set or loudnessInfo to part of an MPEG-H scene.
// It is one of PlainScope, GroupScope or GroupPresetScope.
type Scope interface {
	scope()
}

// PlainScope applies to the whole program.
type PlainScope struct{}

// GroupScope applies to one metadata element group (mae_groupID).
type GroupScope struct{ GroupID uint8 }

// GroupPresetScope applies to one group preset (mae_groupPresetID).
type GroupPresetScope struct{ GroupPresetID uint8 }

func (PlainScope) scope()       {}
func (GroupScope) scope()       {}
func (GroupPresetScope) scope() {}

// Modification is the per-channel-group gain modification. It is a
// GainModification for regular sets and a DuckingModification for sets
// with a ducking effect bit.
type Modification interface {
	modification()
}

// BandModification holds gain scaling and offset for one band.
type BandModification struct {
	ScalingPresent       bool
	AttenuationScaling   float32
	AmplificationScaling float32
	OffsetPresent        bool
	Offset               float32 // dB
}

// GainModification modifies a regular channel group, per band.
type GainModification struct {
	Bands [MaxBands]BandModification
}

// DuckingModification scales the gain of a ducking channel group.
type DuckingModification struct {
	ScalingPresent bool
	Scaling        float32
}

func (GainModification) modification()    {}
func (DuckingModification) modification() {}

// DefaultGainModification has unity scaling and no offset.
func DefaultGainModification() GainModification {
	var m GainModification
	for b := range m.Bands {
		m.Bands[b].AttenuationScaling = 1
		m.Bands[b].AmplificationScaling = 1
	}
	return m
}

// ChannelGroup is a set of channels sharing a gain set and modification.
type ChannelGroup struct {
	GainSetIndex int
	Channels     []int
	Modification Modification
}

// Instructions is one DRC set (drcInstructionsUniDrc()).
// Virtual sets synthesized by the parser have negative IDs.
type Instructions struct {
	ID                       int
	Scope                    Scope
	Location                 uint8
	DownmixIDs               []uint8 // at least one entry; [0] is downmixId
	ApplyToDownmix           bool
	Effect                   Effect
	LimiterPeakTargetPresent bool
	LimiterPeakTarget        float32 // dB
	TargetLoudnessPresent    bool
	TargetLoudnessUpper      float32 // dB
	TargetLoudnessLower      float32 // dB
	DependsOnPresent         bool
	DependsOn                int
	NoIndependentUse         bool
	RequiresEQ               bool

	ChannelCount int
	// GainSetIndex is the signalled per-channel gain set, -1 for none.
	GainSetIndex []int
	// DuckingScaling is the per-channel ducking modification of ducking sets.
	DuckingScaling []DuckingModification

	// Groups and GroupForChannel are derived from the channel assignment.
	Groups          []ChannelGroup
	GroupForChannel []int
}

// IsVirtual reports whether the set was synthesized rather than signalled.
func (in *Instructions) IsVirtual() bool {
	return in.ID < 0
}

// AppliesToDownmix reports whether id is among the set's downmix ids.
func (in *Instructions) AppliesToDownmix(id uint8) bool {
	for _, d := range in.DownmixIDs {
		if d == id {
			return true
		}
	}
	return false
}

// Config is a parsed and, for multiple substreams, merged DRC
// configuration.
type Config struct {
	Mode              Mode
	SampleRatePresent bool
	SampleRate        int
	ChannelLayout     ChannelLayout
	Downmix           []DownmixInstructions
	Coefficients      []Coefficients
	Instructions      []Instructions
	// Loudness is set when the MPEG-H config embeds a loudness info set.
	Loudness *LoudnessInfoSet
	// Substreams describes where each merged substream lives.
	Substreams []SubstreamInfo
}

// SubstreamInfo locates one substream inside a merged config.
type SubstreamInfo struct {
	ChannelOffset  int
	ChannelCount   int
	GainSetOffset  int
	SequenceOffset int
	SequenceCount  int
}

// CoefficientsAt returns the coefficients element for a location, or nil.
func (c *Config) CoefficientsAt(location uint8) *Coefficients {
	for i := range c.Coefficients {
		if c.Coefficients[i].Location == location {
			return &c.Coefficients[i]
		}
	}
	return nil
}

// InstructionsByID returns the DRC set with the given id, or nil.
func (c *Config) InstructionsByID(id int) *Instructions {
	for i := range c.Instructions {
		if c.Instructions[i].ID == id {
			return &c.Instructions[i]
		}
	}
	return nil
}

// DownmixByID returns the downmix instructions with the given id, or nil.
func (c *Config) DownmixByID(id uint8) *DownmixInstructions {
	for i := range c.Downmix {
		if c.Downmix[i].ID == id {
			return &c.Downmix[i]
		}
	}
	return nil
}

// Measurement is one loudnessMeasurement().
type Measurement struct {
	MethodDefinition uint8
	Value            float32
	System           uint8
	Reliability      uint8
}

// Loudness measurement method definitions.
const (
	MethodProgramLoudness   uint8 = 1
	MethodAnchorLoudness    uint8 = 2
	MethodMaxMomentary      uint8 = 3
	MethodMaxShortTerm      uint8 = 4
	MethodLoudnessRange     uint8 = 5
	MethodMixingLevel       uint8 = 6
	MethodRoomType          uint8 = 7
	MethodShortTermLoudness uint8 = 8
)

// LoudnessInfo is one loudnessInfo() element.
type LoudnessInfo struct {
	Scope                  Scope
	DrcSetID               int
	DownmixID              uint8
	SamplePeakLevelPresent bool
	SamplePeakLevel        float32
	TruePeakLevelPresent   bool
	TruePeakLevel          float32
	TruePeakSystem         uint8
	TruePeakReliability    uint8
	Measurements           []Measurement
}

// LoudnessInfoSet is loudnessInfoSet() / mpegh3daLoudnessInfoSet().
type LoudnessInfoSet struct {
	Info  []LoudnessInfo
	Album []LoudnessInfo
}

// Node is one gain curve breakpoint. Time is the sample index inside the
// frame the node belongs to.
type Node struct {
	Time   int
	GainDB float32
	Slope  float32
}

// GainSequence is the decoded curve of one gain sequence for one frame.
type GainSequence struct {
	Nodes []Node
}
