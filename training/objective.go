package training

import (
	"github.com/hammal/koopman/dataset"
	"github.com/hammal/koopman/loss"
	"github.com/hammal/koopman/network"
	"github.com/hammal/koopman/ssm"
	"gonum.org/v1/gonum/mat"
)

// Metrics of one objective evaluation. Loss = RNNLoss + RecLoss.
type Metrics struct {
	Loss    float64
	RecLoss float64
	RNNLoss float64
}

// ObjectiveFunc evaluates the objective and its gradient at params.
type ObjectiveFunc func(params []float64) (Metrics, []float64, error)

// Objective evaluates the training objective of batch b and its gradient at
// params. The model is left untouched so the call may be repeated freely.
func (m *Model) Objective(b dataset.Batch, params []float64) (Metrics, []float64, error) {
	c := m.Clone()
	c.SetParams(params)
	return c.evaluate(b, true)
}

// ObjectiveFor binds a batch to Objective.
func (m *Model) ObjectiveFor(b dataset.Batch) ObjectiveFunc {
	return func(params []float64) (Metrics, []float64, error) {
		return m.Objective(b, params)
	}
}

// Evaluate returns the objective of batch b at the current parameters.
func (m *Model) Evaluate(b dataset.Batch) (Metrics, error) {
	metrics, _, err := m.evaluate(b, false)
	return metrics, err
}

// horizon returns the number of propagation steps that can enter the loss.
func (m *Model) horizon(b dataset.Batch) int {
	n := b.MaxLength()
	if n > m.LookForward {
		n = m.LookForward
	}
	if n > m.Loss.MaxLookForward {
		n = m.Loss.MaxLookForward
	}
	if n > len(b.Y) {
		n = len(b.Y)
	}
	return n
}

// zeros returns a sequence of zero matrices shaped like target.
func zeros(target loss.Sequence) loss.Sequence {
	res := make(loss.Sequence, len(target))
	for step, y := range target {
		r, c := y.Dims()
		res[step] = mat.NewDense(r, c, nil)
	}
	return res
}

// evaluate computes
//
//	rnn = masked(dec(A^i enc(x)), y)
//	rec = mse(dec(enc(x)), x) + masked(dec(enc(y_i)), y)
//
// and, if withGrad, the gradient of rnn + rec in the order of Params.
func (m *Model) evaluate(b dataset.Batch, withGrad bool) (Metrics, []float64, error) {
	n := m.horizon(b)
	A := m.Propagator.DiscreteOperator()

	z0, encX := m.Encoder.ForwardCached(b.X)

	phi := make([]*mat.Dense, n+1)
	phi[0] = z0
	rnnOut := zeros(b.Y)
	rnnCache := make([]*network.Cache, n)
	for step := 1; step <= n; step++ {
		phi[step] = ssm.ApplyOperator(A, phi[step-1])
		rnnOut[step-1], rnnCache[step-1] = m.Decoder.ForwardCached(phi[step])
	}

	decX, decXCache := m.Decoder.ForwardCached(z0)
	recXLoss, dDecX := loss.MSE(decX, b.X)

	recOut := zeros(b.Y)
	encYCache := make([]*network.Cache, n)
	decYCache := make([]*network.Cache, n)
	for step := 0; step < n; step++ {
		var ey *mat.Dense
		ey, encYCache[step] = m.Encoder.ForwardCached(b.Y[step])
		recOut[step], decYCache[step] = m.Decoder.ForwardCached(ey)
	}

	var metrics Metrics
	var dRNN, dRec loss.Sequence
	var err error
	if withGrad {
		metrics.RNNLoss, dRNN, err = m.Loss.LossAndGrad(rnnOut, b.Y, b.Lengths)
	} else {
		metrics.RNNLoss, err = m.Loss.Loss(rnnOut, b.Y, b.Lengths)
	}
	if err != nil {
		return Metrics{}, nil, err
	}
	var recYLoss float64
	if withGrad {
		recYLoss, dRec, err = m.Loss.LossAndGrad(recOut, b.Y, b.Lengths)
	} else {
		recYLoss, err = m.Loss.Loss(recOut, b.Y, b.Lengths)
	}
	if err != nil {
		return Metrics{}, nil, err
	}
	metrics.RecLoss = recXLoss + recYLoss
	metrics.Loss = metrics.RNNLoss + metrics.RecLoss
	if !withGrad {
		return metrics, nil, nil
	}

	gEnc := m.Encoder.NewGradients()
	gDec := m.Decoder.NewGradients()
	gProp := m.Propagator.NewGradients()

	// Back through the unrolled propagation, phi_i = phi_{i-1} A^T.
	r, c := z0.Dims()
	carry := mat.NewDense(r, c, nil)
	dA := mat.NewDense(c, c, nil)
	for step := n; step >= 1; step-- {
		dPhi := m.Decoder.Backward(rnnCache[step-1], dRNN[step-1], gDec)
		carry.Add(carry, dPhi)
		var outer mat.Dense
		outer.Mul(carry.T(), phi[step-1])
		dA.Add(dA, &outer)
		var prev mat.Dense
		prev.Mul(carry, A)
		carry = &prev
	}
	m.Propagator.Backward(dA, gProp)

	dz0 := m.Decoder.Backward(decXCache, dDecX, gDec)
	dz0.Add(dz0, carry)
	m.Encoder.Backward(encX, dz0, gEnc)

	for step := 0; step < n; step++ {
		dEy := m.Decoder.Backward(decYCache[step], dRec[step], gDec)
		m.Encoder.Backward(encYCache[step], dEy, gEnc)
	}

	parts := gEnc.Slices()
	parts = append(parts, gDec.Slices()...)
	parts = append(parts, gProp.Slices()...)
	return metrics, flatten(parts, m.NumParams()), nil
}
