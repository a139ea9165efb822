package ode

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Integrate samples the solution of system from x0 every dt for steps steps.
// The returned trajectory has steps+1 rows, the first being x0. Adaptive
// tableaus refine every sampling interval to the tolerance tol, others take
// one step per interval and ignore tol.
func (rk RungeKutta) Integrate(system DifferentiableSystem, x0 mat.Vector, dt float64, steps int, tol float64) (*mat.Dense, error) {
	if steps < 0 {
		return nil, fmt.Errorf("ode: negative number of steps %d", steps)
	}
	if !(dt > 0) {
		return nil, fmt.Errorf("ode: time step must be positive, got %v", dt)
	}
	n := x0.Len()
	res := mat.NewDense(steps+1, n, nil)
	state := mat.VecDenseCopyOf(x0)
	res.SetRow(0, state.RawVector().Data)
	for step := 1; step <= steps; step++ {
		from, to := float64(step-1)*dt, float64(step)*dt
		if rk.Adaptive() {
			if err := rk.AdaptiveCompute(from, to, tol, state, system); err != nil {
				return nil, fmt.Errorf("step %d: %w", step, err)
			}
		} else {
			rk.Step(from, to, state, system)
		}
		res.SetRow(step, state.RawVector().Data)
	}
	return res, nil
}
