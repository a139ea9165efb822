// Package koopman learns a finite dimensional linear approximation of the
// evolution of a nonlinear dynamical system. An encoder lifts states to
// observables, a constrained linear operator advances them in time and a
// decoder maps them back to states.
package koopman

import (
	"errors"

	"gonum.org/v1/gonum/mat"
)

var (
	// ErrNotFitted is returned by accessors and inference before a successful Fit.
	ErrNotFitted = errors.New("koopman: model is not fitted")
	// ErrInputShape is returned for unsupported combinations or shapes of input.
	ErrInputShape = errors.New("koopman: check `x` and `y` for fit")
	// ErrHorizon is returned for prediction horizons below one.
	ErrHorizon = errors.New("koopman: prediction horizon must be at least 1")
)

// Regressor is the overall interface of a Koopman regressor.
type Regressor interface {
	// Fit learns the model. See NNDMD.Fit for the accepted inputs.
	Fit(x, y any) error
	// Predict returns the states n steps ahead of the rows of x.
	Predict(x any, n int) (*mat.Dense, error)

	// StateMatrix returns the discrete time Koopman operator.
	StateMatrix() (*mat.Dense, error)
	// Eigenvalues of the state matrix
	Eigenvalues() ([]complex128, error)
	// Eigenvectors of the state matrix as columns
	Eigenvectors() (*mat.CDense, error)
	// Ur returns the effective linear map from observables to states.
	Ur() (*mat.Dense, error)
	// UnnormalizedModes returns Ur times the eigenvectors.
	UnnormalizedModes() (*mat.CDense, error)
}
