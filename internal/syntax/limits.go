package syntax

// Table capacities. Exceeding any of them while parsing is a memory-class
// failure for the element being parsed.
const (
	MaxCoefficients        = 2  // drcCoefficientsUniDrc elements per config
	MaxGainSets            = 48 // gain sets per coefficients element
	MaxGainSequences       = 48 // gain sequences over all gain sets
	MaxBands               = 4  // bands per gain set
	MaxInstructions        = 32 // DRC sets, signalled plus virtual
	MaxDownmixInstructions = 8  // downmix instructions
	MaxDownmixIDs          = 8  // downmix ids per DRC set
	MaxChannels            = 28 // channels per DRC set, also channel groups
	MaxNodes               = 32 // nodes per gain sequence and frame
	MaxSubstreams          = 4  // substreams merged into one config
	MaxLoudnessInfo        = 32 // loudnessInfo elements per list
	MaxMeasurements        = 16 // loudness measurements per loudnessInfo
)

// Reserved id values.
const (
	DownmixIDBase uint8 = 0x00 // base layout, no downmix
	DownmixIDAny  uint8 = 0x7F // applies to any downmix
	DrcSetIDNone        = 0    // "no DRC" in loudnessInfo
	DrcSetIDAny         = 0x3F // loudnessInfo applies to any DRC set
)

// LocationSelected is the only drcLocation carrying uniDrcGain payloads.
const LocationSelected = 1
