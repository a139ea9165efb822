package simulate

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/hammal/koopman/ode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestSlowManifold(t *testing.T) {
	sys := SlowManifold{Mu: -0.1, Lambda: -1}
	traj, err := NewSimulator(0.1, 30).Trajectory(sys, []float64{1, 0.5})
	require.NoError(t, err)

	// x1 decays exponentially, x2 follows the closed form solution
	// x2 = c exp(lambda t) + b x1^2 with b = lambda / (lambda - 2 mu).
	b := sys.Lambda / (sys.Lambda - 2*sys.Mu)
	c := 0.5 - b
	for step := 0; step <= 30; step++ {
		tt := 0.1 * float64(step)
		x1 := math.Exp(sys.Mu * tt)
		assert.InDelta(t, x1, traj.At(step, 0), 1e-7)
		assert.InDelta(t, c*math.Exp(sys.Lambda*tt)+b*x1*x1, traj.At(step, 1), 1e-7)
	}
}

func TestLinearMatchesExponential(t *testing.T) {
	A := mat.NewDense(2, 2, []float64{-0.1, -1, 1, -0.1})
	sys := NewLinear(A)
	sim := NewSimulator(0.25, 8)
	traj, err := sim.Trajectory(sys, []float64{1, 0})
	require.NoError(t, err)

	var want mat.VecDense
	want.MulVec(sys.DiscreteOperator(2), mat.NewVecDense(2, []float64{1, 0}))
	assert.InDelta(t, want.AtVec(0), traj.At(8, 0), 1e-7)
	assert.InDelta(t, want.AtVec(1), traj.At(8, 1), 1e-7)
}

func TestEnergy(t *testing.T) {
	sim := Simulator{Ts: 0.01, Steps: 500, Method: ode.NewRK4()}

	duffing := Duffing{Alpha: 1, Beta: 1}
	traj, err := sim.Trajectory(duffing, []float64{1, 0})
	require.NoError(t, err)
	energy := func(x, v float64) float64 { return v*v/2 + x*x/2 + x*x*x*x/4 }
	assert.InDelta(t, energy(1, 0), energy(traj.At(500, 0), traj.At(500, 1)), 1e-6)

	pendulum := Pendulum{G: 9.81, L: 1}
	traj, err = sim.Trajectory(pendulum, []float64{0.5, 0})
	require.NoError(t, err)
	penergy := func(theta, omega float64) float64 { return omega*omega/2 - 9.81*math.Cos(theta) }
	assert.InDelta(t, penergy(0.5, 0), penergy(traj.At(500, 0), traj.At(500, 1)), 1e-5)
}

func TestTrajectories(t *testing.T) {
	x0s := UniformInitialStates(6, 2, -1, 1, rand.NewPCG(1, 2))
	require.Len(t, x0s, 6)
	for _, x0 := range x0s {
		for _, v := range x0 {
			assert.GreaterOrEqual(t, v, -1.0)
			assert.Less(t, v, 1.0)
		}
	}

	sim := NewSimulator(0.1, 10)
	sys := Pendulum{G: 9.81, L: 1, Damping: 0.2}
	trajectories, err := sim.Trajectories(sys, x0s)
	require.NoError(t, err)
	require.Len(t, trajectories, 6)
	for index, traj := range trajectories {
		r, _ := traj.Dims()
		assert.Equal(t, 11, r)
		assert.Equal(t, x0s[index], traj.RawRowView(0))
	}

	_, err = sim.Trajectories(sys, [][]float64{{1, 2}, {1}})
	assert.Error(t, err)
}
