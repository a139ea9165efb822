// Package ssm holds linear state space models. The KoopmanOperator is the
// latent, autonomous model z'(t) = K z(t) learned by the training package; its
// discrete time counterpart z[k+1] = exp(dt K) z[k] propagates encoded states.
package ssm

import (
	"gonum.org/v1/gonum/mat"
)

// StateSpaceModel is an autonomous continuous time system.
type StateSpaceModel interface {
	// Derivative returns the state derivative at time t.
	Derivative(t float64, state mat.Vector) mat.Vector
	// Returns the state space order
	StateSpaceOrder() int
}

// computeStateTransition computes e^(At) where A is a square matrix and
// t is a scalar.
func computeStateTransition(t float64, a mat.Matrix) *mat.Dense {
	var m mat.Dense
	m.Scale(t, a)
	m.Exp(&m)
	return &m
}

var _ StateSpaceModel = AutonomousLinearStateSpaceModel{}
