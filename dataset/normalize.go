package dataset

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// ErrUnknownNormalizeMode is returned for modes other than "equal" and "max".
var ErrUnknownNormalizeMode = errors.New("dataset: unknown normalize mode")

// NormalizeMode selects how the per dimension scale is computed.
type NormalizeMode string

const (
	// Equal scales every dimension by its own standard deviation.
	Equal NormalizeMode = "equal"
	// Max scales every dimension by the largest standard deviation.
	Max NormalizeMode = "max"
)

// Scales below scaleFloor are increased by scaleBump.
const (
	scaleFloor = 1e-6
	scaleBump  = 1e-3
)

// Stats holds the normalization x -> (x - Mean) / Scale. Mean is always zero
// so that the latent dynamics stay centered at the origin.
type Stats struct {
	Mean  []float64
	Scale []float64
}

// ComputeStats computes the statistics over all states of all trajectories.
func ComputeStats(trajectories []*mat.Dense, mode NormalizeMode, factor float64) (Stats, error) {
	if mode == "" {
		mode = Equal
	}
	if mode != Equal && mode != Max {
		return Stats{}, fmt.Errorf("%w: %q", ErrUnknownNormalizeMode, mode)
	}
	if len(trajectories) == 0 {
		return Stats{}, ErrNoTrainingData
	}
	_, dim := trajectories[0].Dims()
	columns := make([][]float64, dim)
	for _, traj := range trajectories {
		r, _ := traj.Dims()
		for row := 0; row < r; row++ {
			for col := 0; col < dim; col++ {
				columns[col] = append(columns[col], traj.At(row, col))
			}
		}
	}

	s := Stats{Mean: make([]float64, dim), Scale: make([]float64, dim)}
	var largest float64
	for col, data := range columns {
		s.Scale[col] = stat.PopStdDev(data, nil) * factor
		if s.Scale[col] > largest {
			largest = s.Scale[col]
		}
	}
	if mode == Max {
		for col := range s.Scale {
			s.Scale[col] = largest
		}
	}
	for col := range s.Scale {
		if s.Scale[col] < scaleFloor {
			s.Scale[col] += scaleBump
		}
	}
	return s, nil
}

// Transform normalizes every row of x.
func (s Stats) Transform(x mat.Matrix) *mat.Dense {
	var res mat.Dense
	res.Apply(func(i, j int, v float64) float64 {
		return (v - s.Mean[j]) / s.Scale[j]
	}, x)
	return &res
}

// InverseTransform maps normalized rows back to the original coordinates.
func (s Stats) InverseTransform(x mat.Matrix) *mat.Dense {
	var res mat.Dense
	res.Apply(func(i, j int, v float64) float64 {
		return v*s.Scale[j] + s.Mean[j]
	}, x)
	return &res
}
