package training

import (
	"errors"
	"math"

	"github.com/hammal/koopman/gonumExtensions"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
)

// Optimizer updates params in place from one batch objective and returns the
// metrics at the parameters it started from.
type Optimizer interface {
	Step(objective ObjectiveFunc, params []float64) (Metrics, error)
}

// Adam is the first order optimizer of Kingma and Ba.
type Adam struct {
	LearningRate float64
	Beta1        float64
	Beta2        float64
	Epsilon      float64

	t    int
	m, v []float64
}

// NewAdam returns Adam with learning rate 1e-3 and the usual moment decays.
func NewAdam() *Adam {
	return &Adam{LearningRate: 1e-3, Beta1: 0.9, Beta2: 0.999, Epsilon: 1e-8}
}

// Step takes a single Adam step.
func (a *Adam) Step(objective ObjectiveFunc, params []float64) (Metrics, error) {
	metrics, grad, err := objective(params)
	if err != nil {
		return Metrics{}, err
	}
	if a.m == nil {
		a.m = make([]float64, len(params))
		a.v = make([]float64, len(params))
	}
	a.t++
	floats.Scale(a.Beta1, a.m)
	floats.AddScaled(a.m, 1-a.Beta1, grad)
	floats.Scale(a.Beta2, a.v)
	for i, g := range grad {
		a.v[i] += (1 - a.Beta2) * g * g
	}
	c1 := 1 - math.Pow(a.Beta1, float64(a.t))
	c2 := 1 - math.Pow(a.Beta2, float64(a.t))
	for i := range params {
		params[i] -= a.LearningRate * (a.m[i] / c1) / (math.Sqrt(a.v[i]/c2) + a.Epsilon)
	}
	return metrics, nil
}

// LBFGS runs a limited memory BFGS minimization with a strong Wolfe line
// search on every batch.
type LBFGS struct {
	// History size
	Store int
	// Major iterations per batch
	MaxIterations int
	// Objective evaluations per batch
	MaxEvaluations int
	Logger         logrus.FieldLogger
}

// NewLBFGS returns an LBFGS with history 100 and 20 iterations per batch.
func NewLBFGS(log logrus.FieldLogger) *LBFGS {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &LBFGS{Store: 100, MaxIterations: 20, MaxEvaluations: 25, Logger: log}
}

// Step minimizes the batch objective starting from params. A line search that
// gives up keeps the best point found so far.
func (l *LBFGS) Step(objective ObjectiveFunc, params []float64) (Metrics, error) {
	initial, _, err := objective(params)
	if err != nil {
		return Metrics{}, err
	}

	var (
		evalErr  error
		lastX    []float64
		lastGrad []float64
	)
	eval := func(x []float64) float64 {
		metrics, grad, err := objective(x)
		if err != nil {
			evalErr = err
			return math.Inf(1)
		}
		lastX = append(lastX[:0], x...)
		lastGrad = grad
		return metrics.Loss
	}
	problem := optimize.Problem{
		Func: eval,
		Grad: func(grad, x []float64) {
			if lastX == nil || !floats.Equal(x, lastX) {
				eval(x)
			}
			if lastGrad == nil {
				for i := range grad {
					grad[i] = 0
				}
				return
			}
			copy(grad, lastGrad)
		},
	}
	settings := &optimize.Settings{
		MajorIterations: l.MaxIterations,
		FuncEvaluations: l.MaxEvaluations,
	}
	method := &optimize.LBFGS{Store: l.Store, Linesearcher: &optimize.MoreThuente{}}

	result, err := optimize.Minimize(problem, params, settings, method)
	if evalErr != nil {
		return Metrics{}, evalErr
	}
	if result == nil {
		return Metrics{}, err
	}
	switch {
	case err == nil:
	case errors.Is(err, optimize.ErrLinesearcherFailure), errors.Is(err, optimize.ErrNoProgress):
		l.Logger.WithField("iterations", result.MajorIterations).Warn("lbfgs line search gave up")
	default:
		l.Logger.WithError(err).Warn("lbfgs stopped early")
	}
	if result.F <= initial.Loss && !gonumExtensions.NANORINF(mat.NewVecDense(len(result.X), result.X)) {
		copy(params, result.X)
	}
	return initial, nil
}
