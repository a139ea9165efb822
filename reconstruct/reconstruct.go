// Package reconstruct computes the spectral quantities of a fitted Koopman
// model: eigenvalues, eigenvectors, the effective linear output map, modes and
// eigenfunction coordinates, and linear forecasts from them.
package reconstruct

import (
	"errors"
	"math/cmplx"

	"gonum.org/v1/gonum/mat"
)

var (
	// ErrNoConvergence is returned when the eigen decomposition fails.
	ErrNoConvergence = errors.New("reconstruct: eigen decomposition did not converge")
	// ErrSingular is returned when the eigenvectors can't be inverted.
	ErrSingular = errors.New("reconstruct: eigenvectors are singular")
)

// Decomposition of a discrete time operator A = V diag(Values) V^-1.
type Decomposition struct {
	// Eigenvalues
	Values []complex128
	// Right eigenvectors as columns, unit norm
	Vectors *mat.CDense
}

// Decompose computes the eigenvalues and right eigenvectors of A.
func Decompose(A mat.Matrix) (*Decomposition, error) {
	var eig mat.Eigen
	if ok := eig.Factorize(A, mat.EigenRight); !ok {
		return nil, ErrNoConvergence
	}
	d := &Decomposition{
		Values:  eig.Values(nil),
		Vectors: &mat.CDense{},
	}
	eig.VectorsTo(d.Vectors)
	return d, nil
}

// Order returns the number of eigenvalues.
func (d *Decomposition) Order() int {
	return len(d.Values)
}

// SpectralRadius returns the largest eigenvalue magnitude.
func (d *Decomposition) SpectralRadius() float64 {
	var res float64
	for _, v := range d.Values {
		if a := cmplx.Abs(v); a > res {
			res = a
		}
	}
	return res
}

// ContinuousValues maps the eigenvalues to continuous time, log(lambda)/dt.
func (d *Decomposition) ContinuousValues(dt float64) []complex128 {
	res := make([]complex128, len(d.Values))
	for index, v := range d.Values {
		res[index] = cmplx.Log(v) / complex(dt, 0)
	}
	return res
}
