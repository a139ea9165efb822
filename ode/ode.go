// Package ode is a ordinary differential equation library that implements the
// Runge-Kutta methods https://en.wikipedia.org/wiki/Runge–Kutta_methods.
// Systems only need to provide their derivative, see DifferentiableSystem.
package ode

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/mat"
)

// ErrNoConvergence is returned when the adaptive step size control gives up.
var ErrNoConvergence = errors.New("ode: maximum number of iterations reached, adaptive Runge-Kutta doesn't converge")

// DifferentiableSystem is an autonomous or time varying system x'(t) = f(t, x).
type DifferentiableSystem interface {
	Derivative(t float64, state mat.Vector) mat.Vector
}

// RungeKutta holds the butcherTableau which describes the Runge Kutta method.
type RungeKutta struct {
	Description butcherTableau
}

// Adaptive reports whether the tableau carries an embedded error estimate.
func (rk RungeKutta) Adaptive() bool {
	return len(rk.Description.weights) == 2
}

// Step moves value from t = from to t = to in place and returns the
// embedded local error estimate, zero for tableaus without one.
func (rk RungeKutta) Step(from, to float64, value *mat.VecDense, system DifferentiableSystem) *mat.VecDense {
	// State order
	M := value.Len()
	// The precomputed derivative points
	K := make([]mat.Vector, rk.Description.stages)
	// Step length
	h := to - from
	for index := range K {
		// Combine previously computed derivative points according to the
		// Butcher Tableau.
		stage := mat.VecDenseCopyOf(value)
		for index2, a := range rk.Description.rungeKuttaMatrix[index] {
			stage.AddScaledVec(stage, h*a, K[index2])
		}
		K[index] = system.Derivative(from+h*rk.Description.nodes[index], stage)
	}

	// Initialize the error vector
	err := mat.NewVecDense(M, nil)
	// Sum up the different contributions with relevant weights.
	for index, k := range K {
		value.AddScaledVec(value, h*rk.Description.weights[0][index], k)
		if rk.Adaptive() {
			err.AddScaledVec(err, h*(rk.Description.weights[1][index]-rk.Description.weights[0][index]), k)
		}
	}
	return err
}

// AdaptiveCompute implements an adaptive version which for a
// given error tolerance tol. Makes recursive steps such that the local error
// never exceeds the error specification. value is updated in place.
func (rk RungeKutta) AdaptiveCompute(from, to, tol float64, value *mat.VecDense, system DifferentiableSystem) error {
	var (
		currentError float64
		tnow, tnext  float64
		count        int
	)
	// Set max number of iterations
	const maxNumberOfIterations int = 10000

	// Initialize current time
	tnow = from

	state := mat.VecDenseCopyOf(value)
	trial := mat.NewVecDense(value.Len(), nil)

	// Repeat until time to is reached
	for tnow < to {
		// Set target time
		tnext = to
		// Repeat until target error is reached
		for {
			trial.CopyVec(state)
			errorVector := rk.Step(tnow, tnext, trial, system)
			currentError = 0.
			for index := 0; index < errorVector.Len(); index++ {
				currentError += math.Abs(errorVector.AtVec(index))
			}
			if currentError < tol {
				break
			}
			// Half the next integration interval and try again
			tnext = (tnext-tnow)/2. + tnow

			count++
			if count >= maxNumberOfIterations {
				return ErrNoConvergence
			}
		}
		state.CopyVec(trial)
		tnow = tnext
	}
	value.CopyVec(state)
	return nil
}

// NewRK4 function returns a forth order Runge-Kutta object
func NewRK4() *RungeKutta {
	var temp butcherTableau
	temp.stages = 4
	temp.nodes = []float64{0, 1. / 2., 1. / 2., 1}
	temp.weights = [][]float64{{1. / 6., 1. / 3., 1. / 3., 1. / 6.}}
	temp.rungeKuttaMatrix = [][]float64{
		nil,
		{1. / 2.},
		{0, 1. / 2.},
		{0, 0, 1.},
	}
	rk := RungeKutta{temp}
	return &rk
}

// NewEulerMethod returns a pointer to a Runge-Kutta that does the Euler method.
func NewEulerMethod() *RungeKutta {
	var temp butcherTableau
	temp.stages = 1
	temp.nodes = []float64{0}
	temp.weights = [][]float64{{1}}
	temp.rungeKuttaMatrix = [][]float64{nil}
	rk := RungeKutta{temp}
	return &rk
}

// butcherTableau which describes the approximate solution, see https://en.wikipedia.org/wiki/Runge–Kutta_methods.
type butcherTableau struct {
	stages           int
	weights          [][]float64
	nodes            []float64
	rungeKuttaMatrix [][]float64
}

// NewFehlberg45 implements https://en.wikipedia.org/wiki/Runge%E2%80%93Kutta%E2%80%93Fehlberg_method
func NewFehlberg45() *RungeKutta {
	var temp butcherTableau
	temp.stages = 6
	temp.nodes = []float64{0, 1. / 4., 3. / 8., 12. / 13., 1., 1. / 2.}
	temp.weights = [][]float64{
		{16. / 135., 0, 6656. / 12825., 28561. / 56430., -9. / 50., 2. / 55.},
		{25. / 216., 0, 1408. / 2565., 2197. / 4104., -1. / 5., 0},
	}
	temp.rungeKuttaMatrix = [][]float64{
		nil,
		{1. / 4.},
		{3. / 32., 9. / 32.},
		{1932. / 2197., -7200. / 2197., 7296. / 2197.},
		{439. / 216., -8., 3680. / 513., -845. / 4104.},
		{-8. / 27., 2, -3544. / 2565., 1859. / 4104., -11. / 40.},
	}
	rk := RungeKutta{temp}
	return &rk
}
