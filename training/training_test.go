package training

import (
	"context"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/hammal/koopman/dataset"
	"github.com/hammal/koopman/loss"
	"github.com/hammal/koopman/network"
	"github.com/hammal/koopman/ssm"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func smallConfig(mode string) Config {
	return Config{
		Encoder:         network.Config{InputSize: 2, HiddenSizes: []int{4}, OutputSize: 3, Activations: "tanh"},
		Decoder:         network.Config{InputSize: 3, HiddenSizes: []int{4}, OutputSize: 2, Activations: "swish"},
		Koopman:         ssm.Config{Mode: mode, Dt: 0.5, InitStd: 0.3},
		LookForward:     3,
		LossLookForward: 2,
	}
}

func smallBatch() dataset.Batch {
	return dataset.Batch{
		X: mat.NewDense(3, 2, []float64{0.1, -0.3, 0.5, 0.2, -0.4, 0.7}),
		Y: loss.Sequence{
			mat.NewDense(3, 2, []float64{0.2, -0.1, 0.4, 0.3, -0.2, 0.6}),
			mat.NewDense(3, 2, []float64{0.3, 0.1, 0, 0, -0.1, 0.4}),
			mat.NewDense(3, 2, []float64{0.35, 0.2, 0, 0, 0, 0}),
		},
		Lengths: []int{3, 1, 2},
	}
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.Decoder.InputSize = 5
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.LossLookForward = 0
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Encoder.Activations = "softmax"
	assert.ErrorIs(t, cfg.Validate(), network.ErrUnknownActivation)
}

func TestParamsRoundTrip(t *testing.T) {
	m, err := NewModel(smallConfig("dissipative"), rand.NewPCG(1, 2))
	require.NoError(t, err)
	params := m.Params()
	require.Len(t, params, m.NumParams())

	for i := range params {
		params[i] = float64(i)
	}
	m.SetParams(params)
	assert.Equal(t, params, m.Params())
	assert.Equal(t, 0.0, m.Encoder.Layers[0].Weight.At(0, 0))
	assert.Panics(t, func() { m.SetParams(params[1:]) })
}

func TestPropagate(t *testing.T) {
	m, err := NewModel(smallConfig("hamiltonian"), rand.NewPCG(3, 4))
	require.NoError(t, err)
	z := mat.NewDense(2, 3, []float64{1, 0, 0, 0, 1, 0})
	seq := m.Propagate(z, 3)
	require.Len(t, seq, 3)

	A := m.Propagator.DiscreteOperator()
	var A3 mat.Dense
	A3.Pow(A, 3)
	want := ssm.ApplyOperator(&A3, z)
	assert.True(t, mat.EqualApprox(want, seq[2], 1e-12))

	all := m.ForwardAll(mat.NewDense(1, 2, []float64{0.2, 0.1}), 3)
	last := m.Forward(mat.NewDense(1, 2, []float64{0.2, 0.1}), 3)
	assert.True(t, mat.EqualApprox(all[2], last, 1e-12))
}

func TestHorizonBoundedByLookForward(t *testing.T) {
	cfg := smallConfig("standard")
	cfg.LookForward = 1
	cfg.LossLookForward = 3
	m, err := NewModel(cfg, rand.NewPCG(1, 2))
	require.NoError(t, err)
	assert.Equal(t, 1, m.horizon(smallBatch()))

	m.LookForward = 3
	assert.Equal(t, 3, m.horizon(smallBatch()))
}

func TestObjectiveGradient(t *testing.T) {
	for _, mode := range []string{"standard", "hamiltonian", "dissipative"} {
		t.Run(mode, func(t *testing.T) {
			m, err := NewModel(smallConfig(mode), rand.NewPCG(5, 6))
			require.NoError(t, err)
			b := smallBatch()
			params := m.Params()
			before := append([]float64(nil), params...)

			metrics, grad, err := m.Objective(b, params)
			require.NoError(t, err)
			assert.InDelta(t, metrics.Loss, metrics.RNNLoss+metrics.RecLoss, 1e-15)
			assert.Equal(t, before, m.Params())

			const h = 1e-6
			for i := range params {
				p := append([]float64(nil), params...)
				p[i] += h
				up, _, err := m.Objective(b, p)
				require.NoError(t, err)
				p[i] -= 2 * h
				down, _, err := m.Objective(b, p)
				require.NoError(t, err)
				numeric := (up.Loss - down.Loss) / (2 * h)
				assert.InDelta(t, numeric, grad[i], 1e-6*(1+math.Abs(numeric)), "parameter %d", i)
			}
		})
	}
}

func TestEvaluateMatchesObjective(t *testing.T) {
	m, err := NewModel(smallConfig("standard"), rand.NewPCG(7, 8))
	require.NoError(t, err)
	b := smallBatch()
	want, _, err := m.Objective(b, m.Params())
	require.NoError(t, err)
	got, err := m.Evaluate(b)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestObjectiveEmptyMask(t *testing.T) {
	m, err := NewModel(smallConfig("standard"), rand.NewPCG(7, 8))
	require.NoError(t, err)
	b := smallBatch()
	b.Lengths = []int{0, 0, 0}
	_, _, err = m.Objective(b, m.Params())
	assert.ErrorIs(t, err, loss.ErrEmptyMask)
}

func TestAdamStep(t *testing.T) {
	a := NewAdam()
	params := []float64{1, -1}
	objective := func(p []float64) (Metrics, []float64, error) {
		l := p[0]*p[0] + p[1]*p[1]
		return Metrics{Loss: l}, []float64{2 * p[0], 2 * p[1]}, nil
	}
	metrics, err := a.Step(objective, params)
	require.NoError(t, err)
	assert.Equal(t, 2.0, metrics.Loss)
	// the first Adam step moves every coordinate by the learning rate
	assert.InDelta(t, 1-1e-3, params[0], 1e-9)
	assert.InDelta(t, -1+1e-3, params[1], 1e-9)
}

func TestLBFGSStep(t *testing.T) {
	logger, _ := test.NewNullLogger()
	m, err := NewModel(smallConfig("dissipative"), rand.NewPCG(9, 10))
	require.NoError(t, err)
	b := smallBatch()
	params := m.Params()

	initial, err := NewLBFGS(logger).Step(m.ObjectiveFor(b), params)
	require.NoError(t, err)
	after, _, err := m.Objective(b, params)
	require.NoError(t, err)
	assert.Less(t, after.Loss, initial.Loss)
}

// rotation returns trajectories of a slowly decaying rotation.
func rotation(n, T int) []any {
	rnd := rand.New(rand.NewPCG(11, 12))
	const theta, decay = 0.1, 0.99
	res := make([]any, n)
	for i := range res {
		traj := make([][]float64, T)
		x, y := rnd.Float64()*2-1, rnd.Float64()*2-1
		for t := range traj {
			traj[t] = []float64{x, y}
			x, y = decay*(math.Cos(theta)*x-math.Sin(theta)*y), decay*(math.Sin(theta)*x+math.Cos(theta)*y)
		}
		res[i] = traj
	}
	return res
}

func TestTrainerReducesLoss(t *testing.T) {
	logger, hook := test.NewNullLogger()
	cfg := smallConfig("dissipative")
	cfg.Koopman.Dt = 0.1
	cfg.Decoder.Activations = "linear"

	dcfg := dataset.DefaultConfig()
	dcfg.LookForward = cfg.LookForward
	dcfg.BatchSize = 16
	data, err := dataset.New(dataset.InMemory(rotation(8, 20)), dataset.InMemory(rotation(2, 20)), dcfg, logger)
	require.NoError(t, err)
	require.NoError(t, data.Prepare())

	m, err := NewModel(cfg, rand.NewPCG(13, 14))
	require.NoError(t, err)
	before := m.Params()

	opt := NewAdam()
	opt.LearningRate = 1e-2
	trainer := NewTrainer(30, logger)
	assert.Equal(t, Uninitialized, trainer.State())

	history, err := trainer.Fit(context.Background(), m, data, opt, rand.New(rand.NewPCG(1, 1)))
	require.NoError(t, err)
	require.Len(t, history, 30)
	assert.Equal(t, Fitted, trainer.State())
	assert.Less(t, history[29].Train.Loss, history[0].Train.Loss)
	assert.False(t, math.IsNaN(history[29].Validation))
	assert.NotEqual(t, before, m.Params())

	var runs int
	for _, entry := range hook.AllEntries() {
		if entry.Message == "epoch done" {
			assert.Equal(t, trainer.RunID().String(), entry.Data["run"])
			assert.Contains(t, entry.Data, "val_loss")
			runs++
		}
	}
	assert.Equal(t, 30, runs)
}

func TestTrainerCancel(t *testing.T) {
	logger, _ := test.NewNullLogger()
	logger.SetLevel(logrus.ErrorLevel)
	dcfg := dataset.DefaultConfig()
	dcfg.LookForward = 3
	data, err := dataset.New(dataset.InMemory(rotation(2, 10)), nil, dcfg, logger)
	require.NoError(t, err)
	require.NoError(t, data.Prepare())

	m, err := NewModel(smallConfig("standard"), rand.NewPCG(1, 2))
	require.NoError(t, err)
	before := m.Params()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	trainer := NewTrainer(5, logger)
	_, err = trainer.Fit(ctx, m, data, NewAdam(), nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, Uninitialized, trainer.State())
	assert.Equal(t, before, m.Params())
}

func TestTrainerSkipsBatchesWithoutHorizon(t *testing.T) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	dcfg := dataset.DefaultConfig()
	dcfg.LookForward = 1
	dcfg.BatchSize = 1
	train := append(rotation(1, 10), [][]float64{{0.5, 0.5}}, [][]float64{{-0.2, 0.1}})
	validation := []any{[][]float64{{0.5, 0.5}}}
	data, err := dataset.New(dataset.InMemory(train), dataset.InMemory(validation), dcfg, logger)
	require.NoError(t, err)
	require.NoError(t, data.Prepare())

	cfg := smallConfig("standard")
	cfg.LookForward = 1
	cfg.LossLookForward = 1
	m, err := NewModel(cfg, rand.NewPCG(3, 4))
	require.NoError(t, err)

	trainer := NewTrainer(3, logger)
	history, err := trainer.Fit(context.Background(), m, data, NewAdam(), rand.New(rand.NewPCG(5, 6)))
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, Fitted, trainer.State())
	for _, entry := range history {
		assert.False(t, math.IsNaN(entry.Train.Loss))
		assert.True(t, math.IsNaN(entry.Validation))
	}

	var skipped, warned int
	for _, entry := range hook.AllEntries() {
		switch entry.Message {
		case "skipping batch without future states":
			skipped++
		case "validation data has no future states, skipping validation":
			warned++
		}
	}
	assert.Equal(t, 6, skipped)
	assert.Equal(t, 1, warned)
}

func TestTrainerNoHorizon(t *testing.T) {
	logger, _ := test.NewNullLogger()
	dcfg := dataset.DefaultConfig()
	data, err := dataset.New(dataset.InMemory{[][]float64{{0.5, 0.5}}, [][]float64{{1, 0}}}, nil, dcfg, logger)
	require.NoError(t, err)
	require.NoError(t, data.Prepare())

	m, err := NewModel(smallConfig("standard"), rand.NewPCG(3, 4))
	require.NoError(t, err)
	trainer := NewTrainer(2, logger)
	_, err = trainer.Fit(context.Background(), m, data, NewAdam(), nil)
	assert.ErrorIs(t, err, ErrNoHorizon)
	assert.Equal(t, Uninitialized, trainer.State())
}

// nanOptimizer sets every parameter to NaN.
type nanOptimizer struct{}

func (nanOptimizer) Step(objective ObjectiveFunc, params []float64) (Metrics, error) {
	metrics, _, err := objective(params)
	for i := range params {
		params[i] = math.NaN()
	}
	return metrics, err
}

func TestTrainerDivergence(t *testing.T) {
	logger, _ := test.NewNullLogger()
	dcfg := dataset.DefaultConfig()
	dcfg.LookForward = 3
	data, err := dataset.New(dataset.InMemory(rotation(2, 10)), nil, dcfg, logger)
	require.NoError(t, err)
	require.NoError(t, data.Prepare())

	m, err := NewModel(smallConfig("standard"), rand.NewPCG(1, 2))
	require.NoError(t, err)
	before := m.Params()

	trainer := NewTrainer(2, logger)
	_, err = trainer.Fit(context.Background(), m, data, NewAdam(), nil)
	require.NoError(t, err)
	require.Equal(t, Fitted, trainer.State())
	fitted := m.Params()
	assert.NotEqual(t, before, fitted)

	// a failed refit keeps the earlier result and state
	_, err = trainer.Fit(context.Background(), m, data, nanOptimizer{}, nil)
	assert.ErrorIs(t, err, ErrDiverged)
	assert.Equal(t, Fitted, trainer.State())
	assert.Equal(t, fitted, m.Params())
}
