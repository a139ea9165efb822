package ode

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

type decay struct{ rate float64 }

func (d decay) Derivative(t float64, state mat.Vector) mat.Vector {
	res := mat.NewVecDense(state.Len(), nil)
	res.ScaleVec(-d.rate, state)
	return res
}

// forced is x'(t) = cos(t), x(t) = x(0) + sin(t).
type forced struct{}

func (forced) Derivative(t float64, state mat.Vector) mat.Vector {
	return mat.NewVecDense(1, []float64{math.Cos(t)})
}

func TestRk4(t *testing.T) {
	test := NewRK4()
	if test.Description.stages != 4 {
		t.Errorf("Not four stages. Rk4 should have four stages. Instead has %v", test.Description.stages)
	}
	assert.False(t, test.Adaptive())
}

func TestEuler(t *testing.T) {
	test := NewEulerMethod()
	if test.Description.stages != 1 {
		t.Error("Wrong number of stages.")
	}
	traj, err := test.Integrate(decay{1}, mat.NewVecDense(1, []float64{1}), 0.1, 10, 0)
	require.NoError(t, err)
	assert.InDelta(t, math.Pow(0.9, 10), traj.At(10, 0), 1e-14)
}

func TestIntegrate(t *testing.T) {
	x0 := mat.NewVecDense(2, []float64{1, -2})
	for name, tc := range map[string]struct {
		rk    *RungeKutta
		delta float64
	}{
		"rk4":        {NewRK4(), 1e-6},
		"fehlberg45": {NewFehlberg45(), 1e-8},
	} {
		t.Run(name, func(t *testing.T) {
			traj, err := tc.rk.Integrate(decay{0.5}, x0, 0.1, 20, 1e-10)
			require.NoError(t, err)
			r, c := traj.Dims()
			require.Equal(t, 21, r)
			require.Equal(t, 2, c)
			assert.Equal(t, []float64{1, -2}, traj.RawRowView(0))
			for step := 0; step <= 20; step++ {
				want := math.Exp(-0.5 * 0.1 * float64(step))
				assert.InDelta(t, want, traj.At(step, 0), tc.delta)
				assert.InDelta(t, -2*want, traj.At(step, 1), 2*tc.delta)
			}
		})
	}
}

func TestAdaptiveTimeVarying(t *testing.T) {
	value := mat.NewVecDense(1, []float64{0.5})
	require.NoError(t, NewFehlberg45().AdaptiveCompute(0, 3, 1e-10, value, forced{}))
	assert.InDelta(t, 0.5+math.Sin(3), value.AtVec(0), 1e-8)
}

func TestIntegrateArguments(t *testing.T) {
	_, err := NewRK4().Integrate(decay{1}, mat.NewVecDense(1, []float64{1}), 0, 1, 0)
	assert.Error(t, err)
	_, err = NewRK4().Integrate(decay{1}, mat.NewVecDense(1, []float64{1}), 0.1, -1, 0)
	assert.Error(t, err)
}
