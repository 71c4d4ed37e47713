package syntax

import "github.com/llehouerou/go-unidrc/internal/bits"

// Extension type 0 terminates an extension list.
const extTypeTerm = 0

// skipExtensions skips a list of typed, length-prefixed extension
// payloads: {type 4; if type != 0 {bitSizeLen 4; bitSize (bitSizeLen+4) + 1}}.
// Used for uniDrcConfigExtension, loudnessInfoSetExtension and
// uniDrcGainExtension, none of which carry data this decoder uses.
func skipExtensions(r *bits.Reader) error {
	for i := 0; ; i++ {
		if i > 16 {
			return ErrOutOfRange
		}
		extType := r.GetBits(4)
		if extType == extTypeTerm {
			break
		}
		bitSizeLen := uint(r.GetBits(4)) + 4
		bitSize := uint(r.GetBits(bitSizeLen)) + 1
		r.SkipBits(bitSize)
		if r.Error() {
			return ErrBitstreamRead
		}
	}
	if r.Error() {
		return ErrBitstreamRead
	}
	return nil
}
