package gonumExtensions

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// NANORINF checks if there are any NAN or INF in matrix
func NANORINF(matrix mat.Matrix) bool {
	m, n := matrix.Dims()
	for row := 0; row < m; row++ {
		for col := 0; col < n; col++ {
			if math.IsNaN(matrix.At(row, col)) || math.IsInf(matrix.At(row, col), 0) {
				return true
			}
		}
	}
	return false
}

// Skew returns the skew-symmetric part S - S^T of a square matrix.
func Skew(s mat.Matrix) *mat.Dense {
	var res mat.Dense
	res.Sub(s, s.T())
	return &res
}

// ExpFrechet returns the Fréchet derivative of the matrix exponential at X in
// the direction E, L(X, E), using the identity
//
//	exp([X E; 0 X]) = [exp(X) L(X, E); 0 exp(X)]
//
// The gradient of a scalar function f(exp(X)) with respect to X is then
// L(X^T, G) where G is the gradient with respect to exp(X).
func ExpFrechet(X, E mat.Matrix) *mat.Dense {
	n, m := X.Dims()
	if n != m {
		panic(mat.ErrSquare)
	}
	if r, c := E.Dims(); r != n || c != n {
		panic(mat.ErrShape)
	}
	block := mat.NewDense(2*n, 2*n, nil)
	block.Slice(0, n, 0, n).(*mat.Dense).Copy(X)
	block.Slice(0, n, n, 2*n).(*mat.Dense).Copy(E)
	block.Slice(n, 2*n, n, 2*n).(*mat.Dense).Copy(X)
	block.Exp(block)
	res := mat.NewDense(n, n, nil)
	res.Copy(block.Slice(0, n, n, 2*n))
	return res
}

// RowsToDense stacks equally sized rows into a matrix.
func RowsToDense(rows [][]float64) *mat.Dense {
	if len(rows) == 0 {
		return &mat.Dense{}
	}
	n := len(rows[0])
	res := mat.NewDense(len(rows), n, nil)
	for index, row := range rows {
		if len(row) != n {
			panic(mat.ErrShape)
		}
		res.SetRow(index, row)
	}
	return res
}

// ColumnSums returns the sum over rows for each column of matrix.
func ColumnSums(matrix mat.Matrix) []float64 {
	m, n := matrix.Dims()
	res := make([]float64, n)
	for row := 0; row < m; row++ {
		for col := 0; col < n; col++ {
			res[col] += matrix.At(row, col)
		}
	}
	return res
}
