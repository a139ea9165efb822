// Package dataset turns collections of trajectories into time delayed,
// zero padded training samples and owns the normalization statistics.
package dataset

import (
	"errors"
	"fmt"

	"github.com/hammal/koopman/gonumExtensions"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"
)

var (
	// ErrComplexData is returned for complex valued trajectories.
	ErrComplexData = errors.New("dataset: complex data is not supported")
	// ErrNotFloat is returned for trajectories whose elements are not floating point.
	ErrNotFloat = errors.New("dataset: found data that is not float")
	// ErrEmptyTrajectory is returned for trajectories without states.
	ErrEmptyTrajectory = errors.New("dataset: empty trajectory")
	// ErrDimensionMismatch is returned for ragged trajectories or trajectories
	// of differing state dimension.
	ErrDimensionMismatch = errors.New("dataset: state dimension mismatch")
	// ErrNoTrainingData is returned when no training source is given.
	ErrNoTrainingData = errors.New("dataset: you must feed training data")
)

func isComplex(v any) bool {
	switch v.(type) {
	case [][]complex64, [][]complex128, *mat.CDense, mat.CMatrix:
		return true
	}
	return false
}

// FromArray converts a two dimensional array, rows being time, into a
// trajectory held at single precision. wide reports that the input was double
// precision and has been rounded.
func FromArray(v any) (trajectory *mat.Dense, wide bool, err error) {
	if isComplex(v) {
		return nil, false, ErrComplexData
	}
	var rows [][]float64
	switch a := v.(type) {
	case [][]float32:
		rows = make([][]float64, len(a))
		for i, row := range a {
			rows[i] = make([]float64, len(row))
			for j, x := range row {
				rows[i][j] = float64(x)
			}
		}
	case [][]float64:
		wide = true
		rows = make([][]float64, len(a))
		for i, row := range a {
			rows[i] = make([]float64, len(row))
			for j, x := range row {
				rows[i][j] = float64(float32(x))
			}
		}
	case mat.Matrix:
		wide = true
		if d, ok := a.(*mat.Dense); ok && (d == nil || d.IsEmpty()) {
			return nil, false, ErrEmptyTrajectory
		}
		r, c := a.Dims()
		res := mat.NewDense(r, c, nil)
		res.Apply(func(i, j int, x float64) float64 { return float64(float32(x)) }, a)
		return res, wide, nil
	default:
		return nil, false, fmt.Errorf("%w: %T", ErrNotFloat, v)
	}

	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, false, ErrEmptyTrajectory
	}
	for index, row := range rows {
		if len(row) != len(rows[0]) {
			return nil, false, fmt.Errorf("%w: row %d has %d states, expected %d", ErrDimensionMismatch, index, len(row), len(rows[0]))
		}
	}
	return gonumExtensions.RowsToDense(rows), wide, nil
}

// Check validates and converts a list of arrays into trajectories. Complex
// data is rejected before anything is converted. Double precision input is
// converted to single precision with a warning.
func Check(list []any, log logrus.FieldLogger) ([]*mat.Dense, error) {
	for index, v := range list {
		if isComplex(v) {
			return nil, fmt.Errorf("trajectory %d: %w", index, ErrComplexData)
		}
	}
	res := make([]*mat.Dense, len(list))
	var warned bool
	dim := -1
	for index, v := range list {
		traj, wide, err := FromArray(v)
		if err != nil {
			return nil, fmt.Errorf("trajectory %d: %w", index, err)
		}
		if wide && !warned {
			log.Warn("found float64 data, converting to float32")
			warned = true
		}
		_, c := traj.Dims()
		if dim >= 0 && c != dim {
			return nil, fmt.Errorf("trajectory %d: %w: %d states, expected %d", index, ErrDimensionMismatch, c, dim)
		}
		dim = c
		res[index] = traj
	}
	return res, nil
}
