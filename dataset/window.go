package dataset

import (
	"gonum.org/v1/gonum/mat"
)

// lookBack is the number of past states in a sample.
const lookBack = 1

// Sample is one time delayed sample: the current state X, the following
// states Y zero padded to the horizon of the collection, and the number of
// valid rows of Y.
type Sample struct {
	X      []float64
	Y      *mat.Dense
	Length int
}

// Window slides a window of look back 1 and the given look forward over every
// trajectory. A trajectory of T > lookForward states yields T - lookForward
// samples of length lookForward; a shorter one yields a single sample
// reaching to its last state. All Y are padded to the largest length, which
// is returned as the horizon.
func Window(trajectories []*mat.Dense, lookForward int) ([]Sample, int) {
	type window struct {
		x  []float64
		ys mat.Matrix
		n  int
	}
	var windows []window
	horizon := 0
	dim := 0
	for _, seq := range trajectories {
		T, d := seq.Dims()
		dim = d
		nSubTrajectories := T - lookBack - lookForward + 1
		if nSubTrajectories >= 1 {
			for i := 0; i < nSubTrajectories; i++ {
				windows = append(windows, window{
					x:  mat.Row(nil, i, seq),
					ys: seq.Slice(i+lookBack, i+lookBack+lookForward, 0, d),
					n:  lookForward,
				})
			}
		} else {
			// predict to the end of the trajectory
			w := window{x: mat.Row(nil, 0, seq), n: T - lookBack}
			if w.n > 0 {
				w.ys = seq.Slice(lookBack, T, 0, d)
			}
			windows = append(windows, w)
		}
		if n := windows[len(windows)-1].n; n > horizon {
			horizon = n
		}
	}

	rows := horizon
	if rows == 0 {
		rows = 1
	}
	samples := make([]Sample, len(windows))
	for index, w := range windows {
		y := mat.NewDense(rows, dim, nil)
		if w.n > 0 {
			y.Slice(0, w.n, 0, dim).(*mat.Dense).Copy(w.ys)
		}
		samples[index] = Sample{X: w.x, Y: y, Length: w.n}
	}
	return samples, horizon
}
