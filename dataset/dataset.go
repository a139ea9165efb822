package dataset

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"
)

// Source provides a collection of raw two dimensional arrays, one per
// trajectory.
type Source interface {
	Load() ([]any, error)
}

// InMemory is a Source over arrays already in memory.
type InMemory []any

// Load returns the arrays.
func (m InMemory) Load() ([]any, error) {
	return []any(m), nil
}

// Config of a TimeDelayDataset.
type Config struct {
	LookForward        int           `json:"look_forward"`
	BatchSize          int           `json:"batch_size"`
	Normalize          bool          `json:"normalize"`
	NormalizeMode      NormalizeMode `json:"normalize_mode"`
	NormalizeStdFactor float64       `json:"normalize_std_factor"`
}

// DefaultConfig returns the defaults of a standalone time delay dataset. The
// estimator overrides look forward and batch size with its own defaults.
func DefaultConfig() Config {
	return Config{
		LookForward:        10,
		BatchSize:          32,
		Normalize:          true,
		NormalizeMode:      Equal,
		NormalizeStdFactor: 2.0,
	}
}

// TimeDelayDataset holds the windowed training and validation samples and
// the normalization computed from the training trajectories.
type TimeDelayDataset struct {
	cfg        Config
	train      Source
	validation Source
	log        logrus.FieldLogger

	prepared   bool
	dim        int
	stats      *Stats
	trainSet   []Sample
	valSet     []Sample
	trainHoriz int
	valHoriz   int
	nTrain     int
}

// New returns an unprepared dataset. validation may be nil.
func New(train, validation Source, cfg Config, log logrus.FieldLogger) (*TimeDelayDataset, error) {
	if train == nil {
		return nil, ErrNoTrainingData
	}
	if cfg.LookForward < 1 {
		return nil, fmt.Errorf("dataset: look_forward must be positive, got %d", cfg.LookForward)
	}
	if cfg.BatchSize < 1 {
		return nil, fmt.Errorf("dataset: batch_size must be positive, got %d", cfg.BatchSize)
	}
	if cfg.Normalize && !(cfg.NormalizeStdFactor > 0) {
		return nil, fmt.Errorf("dataset: normalize_std_factor must be positive, got %v", cfg.NormalizeStdFactor)
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &TimeDelayDataset{cfg: cfg, train: train, validation: validation, log: log}, nil
}

// Prepare loads and checks the trajectories, computes the normalization from
// the training trajectories only and windows both splits.
func (d *TimeDelayDataset) Prepare() error {
	raw, err := d.train.Load()
	if err != nil {
		return fmt.Errorf("dataset: loading training data: %w", err)
	}
	if len(raw) == 0 {
		return ErrNoTrainingData
	}
	trajectories, err := Check(raw, d.log)
	if err != nil {
		return err
	}
	_, d.dim = trajectories[0].Dims()
	d.nTrain = len(trajectories)

	if d.cfg.Normalize {
		stats, err := ComputeStats(trajectories, d.cfg.NormalizeMode, d.cfg.NormalizeStdFactor)
		if err != nil {
			return err
		}
		d.stats = &stats
	}
	d.trainSet, d.trainHoriz = Window(trajectories, d.cfg.LookForward)

	if d.validation != nil {
		raw, err := d.validation.Load()
		if err != nil {
			return fmt.Errorf("dataset: loading validation data: %w", err)
		}
		val, err := Check(raw, d.log)
		if err != nil {
			return fmt.Errorf("validation: %w", err)
		}
		for _, traj := range val {
			if _, c := traj.Dims(); c != d.dim {
				return fmt.Errorf("validation: %w", ErrDimensionMismatch)
			}
		}
		if len(val) > 0 {
			d.valSet, d.valHoriz = Window(val, d.cfg.LookForward)
		}
	}
	if len(d.valSet) == 0 {
		d.log.Warn("no validation data prepared")
	}

	d.log.WithFields(logrus.Fields{
		"trajectories": d.nTrain,
		"samples":      len(d.trainSet),
		"validation":   len(d.valSet),
		"horizon":      d.trainHoriz,
	}).Debug("dataset prepared")
	d.prepared = true
	return nil
}

var errNotPrepared = errors.New("dataset: Prepare has not been called")

// Stats returns the normalization and whether normalization is enabled.
func (d *TimeDelayDataset) Stats() (Stats, bool) {
	if d.stats == nil {
		return Stats{}, false
	}
	return *d.stats, true
}

// Dim returns the state dimension.
func (d *TimeDelayDataset) Dim() int { return d.dim }

// NumTrajectories returns the number of training trajectories.
func (d *TimeDelayDataset) NumTrajectories() int { return d.nTrain }

// Train returns the training samples.
func (d *TimeDelayDataset) Train() []Sample { return d.trainSet }

// Validation returns the validation samples.
func (d *TimeDelayDataset) Validation() []Sample { return d.valSet }

// HasValidation reports whether validation samples exist.
func (d *TimeDelayDataset) HasValidation() bool { return len(d.valSet) > 0 }

// MaxHorizon returns the padded horizon of the training samples.
func (d *TimeDelayDataset) MaxHorizon() int { return d.trainHoriz }

// TrainLoader returns a shuffling loader over the training samples.
func (d *TimeDelayDataset) TrainLoader(rnd *rand.Rand) (*Loader, error) {
	if !d.prepared {
		return nil, errNotPrepared
	}
	return d.loader(d.trainSet, rnd), nil
}

// ValidationLoader returns a loader over the validation samples.
func (d *TimeDelayDataset) ValidationLoader(rnd *rand.Rand) (*Loader, error) {
	if !d.prepared {
		return nil, errNotPrepared
	}
	return d.loader(d.valSet, rnd), nil
}

func (d *TimeDelayDataset) loader(samples []Sample, rnd *rand.Rand) *Loader {
	return &Loader{samples: samples, batchSize: d.cfg.BatchSize, rnd: rnd, stats: d.stats}
}

// Normalize applies the dataset normalization, if enabled, to the rows of x.
func (d *TimeDelayDataset) Normalize(x mat.Matrix) *mat.Dense {
	if d.stats == nil {
		return mat.DenseCopyOf(x)
	}
	return d.stats.Transform(x)
}
