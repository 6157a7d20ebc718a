package synth

import (
	"math"

	"github.com/saugns/sgscore-go/internal/program"
)

// waveSample evaluates one oscillator shape at phase (a fraction of a
// cycle, wrapped to [0,1)), returning a value in [-1,1].
func waveSample(wave program.Wave, phase float64) float64 {
	phase -= math.Floor(phase)
	switch wave {
	case program.WaveSquare:
		if phase < 0.5 {
			return 1
		}
		return -1
	case program.WaveTriangle:
		return 1 - 4*math.Abs(phase-0.5)
	case program.WaveSawtooth:
		return 2*phase - 1
	default: // program.WaveSine
		return math.Sin(2 * math.Pi * phase)
	}
}
