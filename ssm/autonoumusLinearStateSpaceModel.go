package ssm

import (
	"errors"

	"gonum.org/v1/gonum/mat"
)

// AutonomousLinearStateSpaceModel represent the system
//
// x'(t) = A x(t)
type AutonomousLinearStateSpaceModel struct {
	// State Dynamics
	A *mat.Dense
}

// NewAutonomousLinearStateSpaceModel checks the system parameters and returns
// the model.
func NewAutonomousLinearStateSpaceModel(A *mat.Dense) *AutonomousLinearStateSpaceModel {
	m, n := A.Dims()
	if m != n {
		panic(errors.New("State transition matrix is not square"))
	}
	return &AutonomousLinearStateSpaceModel{A: A}
}

// Derivative returns the state derivative.
// x'(t) = Ax(t)
// where state = x(t) at an arbitrary time t.
func (model AutonomousLinearStateSpaceModel) Derivative(t float64, state mat.Vector) mat.Vector {
	// Check if state and model parameters match.
	m2, _ := model.A.Dims()
	if m1 := state.Len(); m1 != m2 {
		panic(errors.New("State vector doesn't match state transistion matrix"))
	}

	// Compute state transition
	//  A x(t)
	res := mat.NewVecDense(m2, nil)
	res.MulVec(model.A, state)
	return res
}

// DiscreteOperator returns e^(A Ts).
func (model AutonomousLinearStateSpaceModel) DiscreteOperator(Ts float64) *mat.Dense {
	return computeStateTransition(Ts, model.A)
}

func (model AutonomousLinearStateSpaceModel) StateSpaceOrder() int {
	m, _ := model.A.Dims()
	return m
}
