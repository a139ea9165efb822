package koopman

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"

	"github.com/hammal/koopman/dataset"
	"github.com/hammal/koopman/reconstruct"
	"github.com/hammal/koopman/training"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"
)

// NNDMD is a Koopman regressor whose observables are learned by a neural
// network encoder and decoder.
type NNDMD struct {
	cfg     Config
	log     logrus.FieldLogger
	trainer *training.Trainer

	mu     sync.RWMutex
	fitted *fitted
}

// fitted holds everything a successful Fit produces. It is never modified
// after being installed.
type fitted struct {
	model          *training.Model
	stats          *dataset.Stats
	history        []training.EpochMetrics
	nInputFeatures int
	nSamples       int

	stateMatrix   *mat.Dense
	decomposition *reconstruct.Decomposition
	ur            *mat.Dense
	modes         *mat.CDense
}

var _ Regressor = (*NNDMD)(nil)

// NewNNDMD returns an unfitted regressor.
func NewNNDMD(cfg Config, log logrus.FieldLogger) (*NNDMD, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &NNDMD{
		cfg:     cfg,
		log:     log,
		trainer: training.NewTrainer(cfg.Epochs, log),
	}, nil
}

// Config returns the configuration.
func (m *NNDMD) Config() Config {
	return m.cfg
}

// State returns the training state.
func (m *NNDMD) State() training.State {
	return m.trainer.State()
}

// Fit learns the model from
//
//   - x a single trajectory and y nil: consecutive states are paired,
//   - x and y trajectories of equal length: the rows of x are mapped to the
//     rows of y,
//   - x a list of trajectories and y nil: training data only,
//   - x and y lists of trajectories: training and validation data.
//
// Trajectories have time along the rows. Any other combination returns
// ErrInputShape. A failed Fit leaves the regressor as it was.
func (m *NNDMD) Fit(x, y any) error {
	return m.FitContext(context.Background(), x, y)
}

// FitContext is Fit with a context checked between training steps.
func (m *NNDMD) FitContext(ctx context.Context, x, y any) error {
	train, validation, nSamples, err := m.sources(x, y)
	if err != nil {
		return err
	}

	data, err := dataset.New(train, validation, m.cfg.data(), m.log)
	if err != nil {
		return err
	}
	if err := data.Prepare(); err != nil {
		return err
	}
	if data.Dim() != m.cfg.Encoder.InputSize {
		return fmt.Errorf("%w: data has %d states, encoder expects %d", ErrInputShape, data.Dim(), m.cfg.Encoder.InputSize)
	}

	model, err := training.NewModel(m.cfg.model(), rand.NewPCG(m.cfg.Seed, 1))
	if err != nil {
		return err
	}
	var opt training.Optimizer = training.NewAdam()
	if m.cfg.LBFGS {
		opt = training.NewLBFGS(m.log)
	}
	history, err := m.trainer.Fit(ctx, model, data, opt, rand.New(rand.NewPCG(m.cfg.Seed, 2)))
	if err != nil {
		return err
	}

	var stats *dataset.Stats
	if s, ok := data.Stats(); ok {
		stats = &s
	}
	f, err := newFitted(model, stats)
	if err != nil {
		return err
	}
	f.history = history
	f.nInputFeatures = m.cfg.Encoder.InputSize
	f.nSamples = nSamples

	m.mu.Lock()
	m.fitted = f
	m.mu.Unlock()

	m.log.WithFields(logrus.Fields{
		"samples":         nSamples,
		"spectral_radius": f.decomposition.SpectralRadius(),
	}).Info("fit done")
	return nil
}

// sources dispatches the input of Fit.
func (m *NNDMD) sources(x, y any) (train, validation dataset.Source, nSamples int, err error) {
	if x == nil {
		return nil, nil, 0, ErrInputShape
	}
	xs, xList := trajectoryList(x)
	ys, yList := trajectoryList(y)
	switch {
	case xList && y == nil:
		return dataset.InMemory(xs), nil, len(xs), nil
	case xList && yList:
		return dataset.InMemory(xs), dataset.InMemory(ys), len(xs), nil
	case !xList && y == nil:
		traj, err := m.array(x)
		if err != nil {
			return nil, nil, 0, err
		}
		r, c := traj.Dims()
		if r < 2 {
			return nil, nil, 0, fmt.Errorf("%w: a single trajectory needs at least two states", ErrInputShape)
		}
		p := pairs(traj.Slice(0, r-1, 0, c).(*mat.Dense), traj.Slice(1, r, 0, c).(*mat.Dense))
		return dataset.InMemory(listOf(p)), nil, len(p), nil
	case !xList && !yList:
		from, err := m.array(x)
		if err != nil {
			return nil, nil, 0, err
		}
		to, err := m.array(y)
		if err != nil {
			return nil, nil, 0, err
		}
		if !sameShape(from, to) {
			return nil, nil, 0, fmt.Errorf("%w: x and y must have the same shape", ErrInputShape)
		}
		p := pairs(from, to)
		return dataset.InMemory(listOf(p)), nil, len(p), nil
	}
	return nil, nil, 0, ErrInputShape
}

// array checks a single trajectory.
func (m *NNDMD) array(v any) (*mat.Dense, error) {
	res, err := dataset.Check([]any{v}, m.log)
	if err != nil {
		return nil, err
	}
	return res[0], nil
}

func cloneCDense(a *mat.CDense) *mat.CDense {
	r, c := a.Dims()
	res := mat.NewCDense(r, c, nil)
	res.Copy(a)
	return res
}

func sameShape(a, b mat.Matrix) bool {
	ar, ac := a.Dims()
	br, bc := b.Dims()
	return ar == br && ac == bc
}

// newFitted computes the spectral quantities of a trained model.
func newFitted(model *training.Model, stats *dataset.Stats) (*fitted, error) {
	f := &fitted{
		model:       model,
		stats:       stats,
		stateMatrix: model.Propagator.DiscreteOperator(),
	}
	var err error
	if f.decomposition, err = reconstruct.Decompose(f.stateMatrix); err != nil {
		return nil, err
	}
	var scale []float64
	if stats != nil {
		scale = stats.Scale
	}
	f.ur = reconstruct.OutputMap(model.Decoder.Weights(), scale)
	f.modes = reconstruct.Modes(f.ur, f.decomposition.Vectors)
	return f, nil
}

func (m *NNDMD) get() (*fitted, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.fitted == nil {
		return nil, ErrNotFitted
	}
	return m.fitted, nil
}

func (f *fitted) normalize(x mat.Matrix) mat.Matrix {
	if f.stats == nil {
		return x
	}
	return f.stats.Transform(x)
}

func (f *fitted) denormalize(x *mat.Dense) *mat.Dense {
	if f.stats == nil {
		return x
	}
	return f.stats.InverseTransform(x)
}

// Predict returns the states n steps ahead of x, a single state or states as
// rows.
func (m *NNDMD) Predict(x any, n int) (*mat.Dense, error) {
	if n < 1 {
		return nil, ErrHorizon
	}
	f, err := m.get()
	if err != nil {
		return nil, err
	}
	states, err := rows(x, f.nInputFeatures)
	if err != nil {
		return nil, err
	}
	return f.denormalize(f.model.Forward(f.normalize(states), n)), nil
}

// PredictSequence returns the states 1..n steps ahead of x.
func (m *NNDMD) PredictSequence(x any, n int) ([]*mat.Dense, error) {
	if n < 1 {
		return nil, ErrHorizon
	}
	f, err := m.get()
	if err != nil {
		return nil, err
	}
	states, err := rows(x, f.nInputFeatures)
	if err != nil {
		return nil, err
	}
	seq := f.model.ForwardAll(f.normalize(states), n)
	res := make([]*mat.Dense, n)
	for step, s := range seq {
		res[step] = f.denormalize(s)
	}
	return res, nil
}

// Phi returns the observables of x, one column per state.
func (m *NNDMD) Phi(x any) (*mat.Dense, error) {
	f, err := m.get()
	if err != nil {
		return nil, err
	}
	return f.phi(x)
}

func (f *fitted) phi(x any) (*mat.Dense, error) {
	states, err := rows(x, f.nInputFeatures)
	if err != nil {
		return nil, err
	}
	return mat.DenseCopyOf(f.model.Encode(f.normalize(states)).T()), nil
}

// Psi returns the eigenfunction coordinates V^-1 Phi(x).
func (m *NNDMD) Psi(x any) (*mat.CDense, error) {
	f, err := m.get()
	if err != nil {
		return nil, err
	}
	phi, err := f.phi(x)
	if err != nil {
		return nil, err
	}
	return f.decomposition.Eigenfunctions(phi)
}

// StateMatrix returns a copy of the discrete time Koopman operator A.
func (m *NNDMD) StateMatrix() (*mat.Dense, error) {
	f, err := m.get()
	if err != nil {
		return nil, err
	}
	return mat.DenseCopyOf(f.stateMatrix), nil
}

// Coef is the same as StateMatrix.
func (m *NNDMD) Coef() (*mat.Dense, error) {
	return m.StateMatrix()
}

// Eigenvalues returns a copy of the eigenvalues of A.
func (m *NNDMD) Eigenvalues() ([]complex128, error) {
	f, err := m.get()
	if err != nil {
		return nil, err
	}
	return append([]complex128(nil), f.decomposition.Values...), nil
}

// Eigenvectors returns a copy of the right eigenvectors of A.
func (m *NNDMD) Eigenvectors() (*mat.CDense, error) {
	f, err := m.get()
	if err != nil {
		return nil, err
	}
	return cloneCDense(f.decomposition.Vectors), nil
}

// Decomposition returns the eigen decomposition of A.
func (m *NNDMD) Decomposition() (*reconstruct.Decomposition, error) {
	f, err := m.get()
	if err != nil {
		return nil, err
	}
	return f.decomposition, nil
}

// Ur returns a copy of the effective linear map of the decoder, rescaled
// to the original coordinates when normalizing.
func (m *NNDMD) Ur() (*mat.Dense, error) {
	f, err := m.get()
	if err != nil {
		return nil, err
	}
	return mat.DenseCopyOf(f.ur), nil
}

// UnnormalizedModes returns a copy of Ur V. These only describe the decoder
// when it is linear.
func (m *NNDMD) UnnormalizedModes() (*mat.CDense, error) {
	f, err := m.get()
	if err != nil {
		return nil, err
	}
	return cloneCDense(f.modes), nil
}

// NInputFeatures returns the state dimension.
func (m *NNDMD) NInputFeatures() (int, error) {
	f, err := m.get()
	if err != nil {
		return 0, err
	}
	return f.nInputFeatures, nil
}

// NSamples returns the number of training trajectories, or of pairs for
// pairwise input.
func (m *NNDMD) NSamples() (int, error) {
	f, err := m.get()
	if err != nil {
		return 0, err
	}
	return f.nSamples, nil
}

// History returns the per epoch metrics of the last successful fit.
func (m *NNDMD) History() ([]training.EpochMetrics, error) {
	f, err := m.get()
	if err != nil {
		return nil, err
	}
	return append([]training.EpochMetrics(nil), f.history...), nil
}
