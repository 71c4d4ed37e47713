package syntax

import (
	"math"

	"github.com/llehouerou/go-unidrc/internal/bits"
)

// downmixCoefficientDB maps bsDownmixCoefficient to a gain in dB.
// Index 15 is -inf (channel not mixed).
var downmixCoefficientDB = [16]float32{
	0, -0.5, -1, -1.5, -2, -2.5, -3, -3.5,
	-4, -4.5, -5, -5.5, -6, -9, -12, float32(math.Inf(-1)),
}

// DownmixCoefficient returns the linear gain for a 4-bit coefficient code.
func DownmixCoefficient(code uint8) float32 {
	db := downmixCoefficientDB[code&0x0F]
	if math.IsInf(float64(db), -1) {
		return 0
	}
	return float32(math.Pow(10, float64(db)/20))
}

// parseDownmixInstructions parses downmixInstructions().
func parseDownmixInstructions(r *bits.Reader, baseChannelCount int) (DownmixInstructions, error) {
	var d DownmixInstructions
	d.ID = uint8(r.GetBits(7))
	d.TargetChannelCount = int(r.GetBits(7))
	d.TargetLayout = uint8(r.GetBits(8))
	d.CoefficientsPresent = r.Get1Bit() == 1

	if d.ID == DownmixIDBase || d.ID == DownmixIDAny {
		return DownmixInstructions{}, ErrNotOK
	}
	if d.TargetChannelCount > MaxChannels {
		return DownmixInstructions{}, ErrMemory
	}
	if d.CoefficientsPresent {
		d.Coefficients = make([]float32, d.TargetChannelCount*baseChannelCount)
		for i := range d.Coefficients {
			d.Coefficients[i] = DownmixCoefficient(uint8(r.GetBits(4)))
		}
	}
	if r.Error() {
		return DownmixInstructions{}, ErrBitstreamRead
	}
	return d, nil
}

// writeDownmixInstructions writes downmixInstructions(). Coefficients are
// written as the nearest code of the table.
func writeDownmixInstructions(w *bits.Writer, d *DownmixInstructions) {
	w.PutBits(uint32(d.ID), 7)
	w.PutBits(uint32(d.TargetChannelCount), 7)
	w.PutBits(uint32(d.TargetLayout), 8)
	w.PutBool(d.CoefficientsPresent)
	if !d.CoefficientsPresent {
		return
	}
	for _, c := range d.Coefficients {
		w.PutBits(uint32(nearestDownmixCode(c)), 4)
	}
}

func nearestDownmixCode(lin float32) uint8 {
	best, bestDist := uint8(15), float32(math.MaxFloat32)
	for code := uint8(0); code < 16; code++ {
		d := DownmixCoefficient(code) - lin
		if d < 0 {
			d = -d
		}
		if d < bestDist {
			best, bestDist = code, d
		}
	}
	return best
}
