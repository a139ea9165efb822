package koopman

import (
	"fmt"

	"github.com/hammal/koopman/dataset"
	"github.com/hammal/koopman/network"
	"github.com/hammal/koopman/ssm"
	"github.com/hammal/koopman/training"
)

// Config struct contains all parameters of an NNDMD.
type Config struct {
	// Propagator family, "" or "standard", "hamiltonian" or "dissipative"
	Mode string `json:"mode"`
	// Time step between consecutive states
	Dt float64 `json:"dt"`
	// Number of future states per training sample
	LookForward int `json:"look_forward"`
	// Number of future states entering the loss
	LossLookForward int `json:"loss_look_forward"`
	// Standard deviation of the propagator initialization
	InitStd float64 `json:"init_std"`

	Encoder network.Config `json:"config_encoder"`
	Decoder network.Config `json:"config_decoder"`

	BatchSize int  `json:"batch_size"`
	LBFGS     bool `json:"lbfgs"`
	Epochs    int  `json:"epochs"`
	// Seed of parameter initialization and shuffling
	Seed uint64 `json:"seed"`

	Normalize          bool                  `json:"normalize"`
	NormalizeMode      dataset.NormalizeMode `json:"normalize_mode"`
	NormalizeStdFactor float64               `json:"normalize_std_factor"`
}

// DefaultConfig lifts a two dimensional state to six observables with a
// tanh encoder and a linear decoder.
func DefaultConfig() Config {
	model := training.DefaultConfig()
	return Config{
		Dt:                 1,
		LookForward:        1,
		LossLookForward:    1,
		InitStd:            ssm.DefaultConfig().InitStd,
		Encoder:            model.Encoder,
		Decoder:            model.Decoder,
		BatchSize:          16,
		Epochs:             10,
		Normalize:          true,
		NormalizeMode:      dataset.Equal,
		NormalizeStdFactor: 2.0,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if err := c.model().Validate(); err != nil {
		return err
	}
	if _, err := ssm.ParseMode(c.Mode); err != nil {
		return err
	}
	if !(c.Dt > 0) {
		return fmt.Errorf("koopman: dt must be positive, got %v", c.Dt)
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("koopman: batch_size must be positive, got %d", c.BatchSize)
	}
	if c.Epochs < 1 {
		return fmt.Errorf("koopman: epochs must be positive, got %d", c.Epochs)
	}
	if c.Normalize && c.NormalizeMode != "" && c.NormalizeMode != dataset.Equal && c.NormalizeMode != dataset.Max {
		return fmt.Errorf("%w: %q", dataset.ErrUnknownNormalizeMode, c.NormalizeMode)
	}
	return nil
}

func (c Config) model() training.Config {
	return training.Config{
		Encoder:         c.Encoder,
		Decoder:         c.Decoder,
		Koopman:         ssm.Config{Mode: c.Mode, Dt: c.Dt, InitStd: c.InitStd},
		LookForward:     c.LookForward,
		LossLookForward: c.LossLookForward,
		LBFGS:           c.LBFGS,
	}
}

func (c Config) data() dataset.Config {
	return dataset.Config{
		LookForward:        c.LookForward,
		BatchSize:          c.BatchSize,
		Normalize:          c.Normalize,
		NormalizeMode:      c.NormalizeMode,
		NormalizeStdFactor: c.NormalizeStdFactor,
	}
}
