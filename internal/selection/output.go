package selection

// MaxSelected is the number of DRC sets applied at the same time.
const MaxSelected = 3

// GroupLoudness is the loudness of one requested MPEG-H group.
type GroupLoudness struct {
	GroupID  uint8
	Loudness float32
	Known    bool
}

// Output is the selection decision. Index 0 of SelectedIDs is the primary
// DRC set; dependent, fading and ducking sets follow.
type Output struct {
	SelectedIDs        []int
	SelectedDownmixIDs []uint8

	ActiveDownmixID    uint8
	BaseChannelCount   int
	TargetChannelCount int
	TargetLayout       uint8
	// DownmixCoefficients is the matrix of the active downmix, nil for the
	// base layout or when not signalled.
	DownmixCoefficients []float32

	LoudnessNormalizationGainDB float32
	OutputLoudness              float32
	OutputLoudnessKnown         bool
	OutputPeakLevel             float32
	OutputPeakLevelKnown        bool

	Boost    float32
	Compress float32

	GroupLoudness []GroupLoudness
}

// NumSelected returns the number of selected DRC sets.
func (o *Output) NumSelected() int {
	return len(o.SelectedIDs)
}
