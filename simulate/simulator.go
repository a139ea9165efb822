// Package simulate generates reference trajectories of well known nonlinear
// and linear systems by integrating them with the ode package.
package simulate

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sync"

	"github.com/hammal/koopman/ode"
	"github.com/hammal/koopman/ssm"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// System is a simulated system of fixed state dimension.
type System interface {
	ssm.StateSpaceModel
}

// SlowManifold is the system
//
// x1' = Mu x1
//
// x2' = Lambda (x2 - x1^2)
//
// whose Koopman operator is finite dimensional in (x1, x2, x1^2).
type SlowManifold struct {
	Mu     float64
	Lambda float64
}

func (s SlowManifold) Derivative(t float64, state mat.Vector) mat.Vector {
	x1, x2 := state.AtVec(0), state.AtVec(1)
	return mat.NewVecDense(2, []float64{s.Mu * x1, s.Lambda * (x2 - x1*x1)})
}

func (s SlowManifold) StateSpaceOrder() int { return 2 }

// Duffing is the unforced Duffing oscillator
//
// x'' = -Delta x' - Alpha x - Beta x^3
type Duffing struct {
	Delta float64
	Alpha float64
	Beta  float64
}

func (d Duffing) Derivative(t float64, state mat.Vector) mat.Vector {
	x, v := state.AtVec(0), state.AtVec(1)
	return mat.NewVecDense(2, []float64{v, -d.Delta*v - d.Alpha*x - d.Beta*x*x*x})
}

func (d Duffing) StateSpaceOrder() int { return 2 }

// Pendulum is the damped pendulum
//
// theta'' = -(G / L) sin(theta) - Damping theta'
type Pendulum struct {
	G       float64
	L       float64
	Damping float64
}

func (p Pendulum) Derivative(t float64, state mat.Vector) mat.Vector {
	theta, omega := state.AtVec(0), state.AtVec(1)
	return mat.NewVecDense(2, []float64{omega, -p.G/p.L*math.Sin(theta) - p.Damping*omega})
}

func (p Pendulum) StateSpaceOrder() int { return 2 }

// Linear wraps a linear state space model.
type Linear struct {
	*ssm.AutonomousLinearStateSpaceModel
}

// NewLinear returns the system x' = A x.
func NewLinear(A *mat.Dense) Linear {
	return Linear{ssm.NewAutonomousLinearStateSpaceModel(A)}
}

// Simulator integrates systems on a fixed sampling grid.
type Simulator struct {
	// Sampling period
	Ts float64
	// Number of samples after the initial state
	Steps int
	// Local error tolerance of adaptive methods
	Tolerance float64
	Method    *ode.RungeKutta
}

// NewSimulator returns a simulator using the adaptive Fehlberg45 method.
func NewSimulator(Ts float64, steps int) Simulator {
	return Simulator{Ts: Ts, Steps: steps, Tolerance: 1e-9, Method: ode.NewFehlberg45()}
}

// Trajectory integrates system from x0.
func (sim Simulator) Trajectory(system System, x0 []float64) (*mat.Dense, error) {
	if len(x0) != system.StateSpaceOrder() {
		return nil, fmt.Errorf("simulate: initial state of length %d for a system of order %d", len(x0), system.StateSpaceOrder())
	}
	method := sim.Method
	if method == nil {
		method = ode.NewRK4()
	}
	return method.Integrate(system, mat.NewVecDense(len(x0), x0), sim.Ts, sim.Steps, sim.Tolerance)
}

// Trajectories integrates system from every initial state concurrently. The
// trajectories are returned in the order of x0s.
func (sim Simulator) Trajectories(system System, x0s [][]float64) ([]*mat.Dense, error) {
	res := make([]*mat.Dense, len(x0s))
	errs := make([]error, len(x0s))

	var wg sync.WaitGroup
	wg.Add(len(x0s))
	for index := range x0s {
		go func(index int) {
			defer wg.Done()
			res[index], errs[index] = sim.Trajectory(system, x0s[index])
		}(index)
	}
	wg.Wait()

	for index, err := range errs {
		if err != nil {
			return nil, fmt.Errorf("trajectory %d: %w", index, err)
		}
	}
	return res, nil
}

// UniformInitialStates draws n initial states with every coordinate uniform
// on [low, high).
func UniformInitialStates(n, dim int, low, high float64, src rand.Source) [][]float64 {
	dist := distuv.Uniform{Min: low, Max: high, Src: src}
	res := make([][]float64, n)
	for index := range res {
		res[index] = make([]float64, dim)
		for j := range res[index] {
			res[index][j] = dist.Rand()
		}
	}
	return res
}
