package training

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"

	"github.com/google/uuid"
	"github.com/hammal/koopman/dataset"
	"github.com/hammal/koopman/gonumExtensions"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"
)

var (
	// ErrFitting is returned when a Trainer is asked to fit while already fitting.
	ErrFitting = errors.New("training: fit already in progress")
	// ErrNoHorizon is returned when no training sample has a future state.
	ErrNoHorizon = errors.New("training: no training sample has a future state")
	// ErrDiverged is returned when an optimizer step produces NaN or Inf parameters.
	ErrDiverged = errors.New("training: parameters diverged")
)

// State of a Trainer.
type State int

const (
	Uninitialized State = iota
	Fitting
	Fitted
)

func (s State) String() string {
	switch s {
	case Fitting:
		return "fitting"
	case Fitted:
		return "fitted"
	default:
		return "uninitialized"
	}
}

// EpochMetrics are the batch averaged training metrics of an epoch and the
// validation loss, NaN without validation data.
type EpochMetrics struct {
	Epoch      int
	Train      Metrics
	Validation float64
}

// Trainer runs the optimization loop.
type Trainer struct {
	Epochs int
	Logger logrus.FieldLogger

	mu    sync.Mutex
	state State
	run   uuid.UUID
}

// NewTrainer returns a trainer running the given number of epochs.
func NewTrainer(epochs int, log logrus.FieldLogger) *Trainer {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Trainer{Epochs: epochs, Logger: log}
}

// State returns the current state.
func (t *Trainer) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// RunID identifies the last started fit in the log.
func (t *Trainer) RunID() uuid.UUID {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.run
}

func (t *Trainer) setState(s State) {
	t.mu.Lock()
	t.state = s
	t.mu.Unlock()
}

// Fit trains model on a prepared dataset. The model parameters are only
// updated when every step succeeded. ctx is checked between batches.
func (t *Trainer) Fit(ctx context.Context, model *Model, data *dataset.TimeDelayDataset, opt Optimizer, rnd *rand.Rand) ([]EpochMetrics, error) {
	t.mu.Lock()
	if t.state == Fitting {
		t.mu.Unlock()
		return nil, ErrFitting
	}
	previous := t.state
	t.state = Fitting
	t.run = uuid.New()
	log := t.Logger.WithField("run", t.run.String())
	t.mu.Unlock()

	history, err := t.fit(ctx, log, model, data, opt, rnd)
	if err != nil {
		t.setState(previous)
		log.WithError(err).Error("fit failed")
		return nil, err
	}
	t.setState(Fitted)
	return history, nil
}

func (t *Trainer) fit(ctx context.Context, log logrus.FieldLogger, model *Model, data *dataset.TimeDelayDataset, opt Optimizer, rnd *rand.Rand) ([]EpochMetrics, error) {
	if t.Epochs < 1 {
		return nil, fmt.Errorf("training: epochs must be positive, got %d", t.Epochs)
	}
	train, err := data.TrainLoader(rnd)
	if err != nil {
		return nil, err
	}
	var validation *dataset.Batch
	if data.HasValidation() {
		loader, err := data.ValidationLoader(nil)
		if err != nil {
			return nil, err
		}
		if all := loader.All(); all.MaxLength() > 0 {
			validation = &all
		} else {
			log.Warn("validation data has no future states, skipping validation")
		}
	}

	log.WithFields(logrus.Fields{
		"epochs":     t.Epochs,
		"batches":    train.Len(),
		"parameters": model.NumParams(),
	}).Info("start training")

	params := model.Params()
	history := make([]EpochMetrics, 0, t.Epochs)
	step := 0
	for epoch := 0; epoch < t.Epochs; epoch++ {
		var sum Metrics
		var batches int
		epochCtx, cancel := context.WithCancel(ctx)
		for batch := range train.Batches(epochCtx) {
			if err := ctx.Err(); err != nil {
				cancel()
				return nil, err
			}
			if batch.MaxLength() == 0 {
				log.WithField("size", batch.Size()).Debug("skipping batch without future states")
				continue
			}
			metrics, err := opt.Step(model.ObjectiveFor(batch), params)
			if err != nil {
				cancel()
				return nil, fmt.Errorf("epoch %d step %d: %w", epoch, step, err)
			}
			if gonumExtensions.NANORINF(mat.NewVecDense(len(params), params)) {
				cancel()
				return nil, fmt.Errorf("epoch %d step %d: %w", epoch, step, ErrDiverged)
			}
			log.WithFields(logrus.Fields{
				"step":     step,
				"loss":     metrics.Loss,
				"rec_loss": metrics.RecLoss,
				"rnn_loss": metrics.RNNLoss,
			}).Debug("training step")
			sum.Loss += metrics.Loss
			sum.RecLoss += metrics.RecLoss
			sum.RNNLoss += metrics.RNNLoss
			batches++
			step++
		}
		cancel()
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if batches == 0 {
			return nil, ErrNoHorizon
		}

		entry := EpochMetrics{
			Epoch: epoch,
			Train: Metrics{
				Loss:    sum.Loss / float64(batches),
				RecLoss: sum.RecLoss / float64(batches),
				RNNLoss: sum.RNNLoss / float64(batches),
			},
			Validation: math.NaN(),
		}
		fields := logrus.Fields{"epoch": epoch, "loss": entry.Train.Loss}
		if validation != nil {
			snapshot := model.Clone()
			snapshot.SetParams(params)
			metrics, err := snapshot.Evaluate(*validation)
			if err != nil {
				return nil, fmt.Errorf("epoch %d validation: %w", epoch, err)
			}
			entry.Validation = metrics.Loss
			fields["val_loss"] = metrics.Loss
		}
		log.WithFields(fields).Info("epoch done")
		history = append(history, entry)
	}
	model.SetParams(params)
	return history, nil
}
