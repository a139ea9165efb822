package koopman

import (
	"errors"
	"fmt"

	"github.com/hammal/koopman/dataset"
	"gonum.org/v1/gonum/mat"
)

// trajectoryList converts the accepted list forms of trajectories.
func trajectoryList(v any) ([]any, bool) {
	switch l := v.(type) {
	case []any:
		return l, true
	case dataset.InMemory:
		return []any(l), true
	case [][][]float32:
		return listOf(l), true
	case [][][]float64:
		return listOf(l), true
	case [][][]complex64:
		return listOf(l), true
	case [][][]complex128:
		return listOf(l), true
	case []*mat.Dense:
		return listOf(l), true
	case []mat.Matrix:
		return listOf(l), true
	}
	return nil, false
}

func listOf[T any](l []T) []any {
	res := make([]any, len(l))
	for index := range l {
		res[index] = l[index]
	}
	return res
}

// pairs returns the two state trajectories [x_i; y_i] as single precision
// arrays.
func pairs(x, y *mat.Dense) [][][]float32 {
	n, d := x.Dims()
	res := make([][][]float32, n)
	for i := range res {
		res[i] = [][]float32{make([]float32, d), make([]float32, d)}
		for j := 0; j < d; j++ {
			res[i][0][j] = float32(x.At(i, j))
			res[i][1][j] = float32(y.At(i, j))
		}
	}
	return res
}

// rows converts inference input, a single state or states as rows, into a
// matrix of dim columns.
func rows(x any, dim int) (*mat.Dense, error) {
	var res *mat.Dense
	switch v := x.(type) {
	case []float64:
		if len(v) == 0 {
			return nil, fmt.Errorf("%w: empty input", ErrInputShape)
		}
		res = mat.NewDense(1, len(v), append([]float64(nil), v...))
	case []float32:
		if len(v) == 0 {
			return nil, fmt.Errorf("%w: empty input", ErrInputShape)
		}
		res = mat.NewDense(1, len(v), nil)
		for j, s := range v {
			res.Set(0, j, float64(s))
		}
	case []complex64, []complex128:
		return nil, dataset.ErrComplexData
	case mat.Vector:
		if v.Len() == 0 {
			return nil, fmt.Errorf("%w: empty input", ErrInputShape)
		}
		res = mat.NewDense(1, v.Len(), nil)
		for j := 0; j < v.Len(); j++ {
			res.Set(0, j, v.AtVec(j))
		}
	default:
		traj, _, err := dataset.FromArray(x)
		if errors.Is(err, dataset.ErrComplexData) {
			return nil, err
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInputShape, err)
		}
		res = traj
	}
	if _, c := res.Dims(); c != dim {
		return nil, fmt.Errorf("%w: input has %d features, expected %d", ErrInputShape, c, dim)
	}
	return res, nil
}
