// Package loss implements the mean squared error losses used to train the
// encoder, decoder and propagator.
package loss

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// ErrEmptyMask is returned when no horizon step of a batch is valid.
var ErrEmptyMask = errors.New("loss: no valid horizon step in batch")

// Sequence is a horizon major sequence of (batch x features) matrices.
type Sequence []*mat.Dense

// MaskedMSE is the mean squared error over the first min(length, MaxLookForward)
// steps of every sample. The denominator is the number of unmasked elements.
type MaskedMSE struct {
	MaxLookForward int
}

// Loss returns the masked mean squared error.
func (l MaskedMSE) Loss(output, target Sequence, lengths []int) (float64, error) {
	res, _, err := l.evaluate(output, target, lengths, false)
	return res, err
}

// LossAndGrad returns the masked mean squared error and its gradient with
// respect to output. Masked positions have zero gradient.
func (l MaskedMSE) LossAndGrad(output, target Sequence, lengths []int) (float64, Sequence, error) {
	return l.evaluate(output, target, lengths, true)
}

// used returns the number of horizon steps of a sample entering the loss.
func (l MaskedMSE) used(length int) int {
	if length > l.MaxLookForward {
		return l.MaxLookForward
	}
	return length
}

func (l MaskedMSE) evaluate(output, target Sequence, lengths []int, withGrad bool) (float64, Sequence, error) {
	if len(output) != len(target) {
		return 0, nil, fmt.Errorf("loss: output horizon %d doesn't match target horizon %d", len(output), len(target))
	}
	var count int
	var sum float64
	var grad Sequence
	if withGrad {
		grad = make(Sequence, len(output))
	}
	for step := range output {
		batch, features := output[step].Dims()
		if r, c := target[step].Dims(); r != batch || c != features || len(lengths) != batch {
			return 0, nil, fmt.Errorf("loss: shape mismatch at horizon step %d", step)
		}
		if withGrad {
			grad[step] = mat.NewDense(batch, features, nil)
		}
		for i := 0; i < batch; i++ {
			if step >= l.used(lengths[i]) {
				continue
			}
			for f := 0; f < features; f++ {
				diff := output[step].At(i, f) - target[step].At(i, f)
				sum += diff * diff
				if withGrad {
					grad[step].Set(i, f, 2*diff)
				}
			}
			count += features
		}
	}
	if count == 0 {
		return 0, nil, ErrEmptyMask
	}
	if withGrad {
		for _, g := range grad {
			g.Scale(1/float64(count), g)
		}
	}
	return sum / float64(count), grad, nil
}

// MSE returns the mean squared error between output and target and its
// gradient with respect to output.
func MSE(output, target mat.Matrix) (float64, *mat.Dense) {
	var diff mat.Dense
	diff.Sub(output, target)
	r, c := diff.Dims()
	n := float64(r * c)
	var sq mat.Dense
	sq.MulElem(&diff, &diff)
	diff.Scale(2/n, &diff)
	return mat.Sum(&sq) / n, &diff
}
