package gain

import (
	"github.com/llehouerou/go-unidrc/internal/syntax"
)

// crossoverFreq is the normalized crossover frequency (fraction of the
// sample rate) per crossoverFreqIndex.
var crossoverFreq = [16]float32{
	2.0 / 1024, 3.0 / 1024, 3.0 / 512, 1.0 / 128,
	1.0 / 64, 3.0 / 128, 1.0 / 32, 3.0 / 64,
	1.0 / 16, 3.0 / 32, 1.0 / 8, 3.0 / 16,
	1.0 / 4, 5.0 / 16, 3.0 / 8, 7.0 / 16,
}

// bandStarts returns the first subband of every band of gs.
func bandStarts(gs *syntax.GainSet, subbands int) ([]int, error) {
	starts := make([]int, gs.BandCount)
	for b := 1; b < gs.BandCount; b++ {
		var s int
		if gs.DrcBandType {
			s = int(crossoverFreq[gs.Bands[b].CrossoverFreqIndex&0xF]*float32(2*subbands) + 0.5)
		} else {
			s = int(gs.Bands[b].StartSubBandIndex)
		}
		if s <= starts[b-1] || s >= subbands {
			return nil, ErrInvalidParam
		}
		starts[b] = s
	}
	return starts, nil
}

// overlapWeights computes, per band, the weight of the band's gain in
// every subband. Weights of all bands sum to one in each subband. Bands
// split by a crossover frequency share the first subband above the
// crossover half and half; signalled start subbands split hard.
func overlapWeights(gs *syntax.GainSet, subbands int) ([syntax.MaxBands][]float32, error) {
	var w [syntax.MaxBands][]float32
	starts, err := bandStarts(gs, subbands)
	if err != nil {
		return w, err
	}
	for b := 0; b < gs.BandCount; b++ {
		w[b] = make([]float32, subbands)
		end := subbands
		if b+1 < gs.BandCount {
			end = starts[b+1]
		}
		for k := starts[b]; k < end; k++ {
			w[b][k] = 1
		}
	}
	if gs.DrcBandType {
		for b := 1; b < gs.BandCount; b++ {
			k := starts[b]
			w[b][k] = 0.5
			w[b-1][k] = 0.5
		}
	}
	return w, nil
}
