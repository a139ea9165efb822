// Package training holds the encoder, propagator and decoder model, its
// multi-horizon objective and the optimization loop fitting it.
package training

import (
	"fmt"
	"math/rand/v2"

	"github.com/hammal/koopman/loss"
	"github.com/hammal/koopman/network"
	"github.com/hammal/koopman/ssm"
	"gonum.org/v1/gonum/mat"
)

// Config of a Model.
type Config struct {
	Encoder network.Config `json:"config_encoder"`
	Decoder network.Config `json:"config_decoder"`
	Koopman ssm.Config     `json:"koopman"`
	// Number of steps the samples look forward
	LookForward int `json:"look_forward"`
	// Number of steps entering the prediction and reconstruction losses
	LossLookForward int  `json:"loss_look_forward"`
	LBFGS           bool `json:"lbfgs"`
}

// DefaultConfig returns a two dimensional state lifted to six observables.
func DefaultConfig() Config {
	return Config{
		Encoder: network.Config{
			InputSize:   2,
			HiddenSizes: []int{32, 32},
			OutputSize:  6,
			Activations: "tanh",
		},
		Decoder: network.Config{
			InputSize:   6,
			HiddenSizes: []int{32, 32},
			OutputSize:  2,
			Activations: "linear",
		},
		Koopman:         ssm.DefaultConfig(),
		LookForward:     1,
		LossLookForward: 1,
	}
}

// Validate checks that encoder and decoder fit together.
func (c Config) Validate() error {
	if err := c.Encoder.Validate(); err != nil {
		return fmt.Errorf("encoder: %w", err)
	}
	if err := c.Decoder.Validate(); err != nil {
		return fmt.Errorf("decoder: %w", err)
	}
	if c.Encoder.OutputSize != c.Decoder.InputSize {
		return fmt.Errorf("training: encoder output size %d doesn't match decoder input size %d", c.Encoder.OutputSize, c.Decoder.InputSize)
	}
	if c.Encoder.InputSize != c.Decoder.OutputSize {
		return fmt.Errorf("training: encoder input size %d doesn't match decoder output size %d", c.Encoder.InputSize, c.Decoder.OutputSize)
	}
	if c.LookForward < 1 {
		return fmt.Errorf("training: look_forward must be positive, got %d", c.LookForward)
	}
	if c.LossLookForward < 1 {
		return fmt.Errorf("training: loss_look_forward must be positive, got %d", c.LossLookForward)
	}
	return nil
}

// Model encodes states into observables, propagates them linearly and
// decodes them back.
type Model struct {
	Encoder     *network.FeedForwardNetwork
	Decoder     *network.FeedForwardNetwork
	Propagator  *ssm.KoopmanOperator
	// Maximum number of propagation steps during training
	LookForward int
	Loss        loss.MaskedMSE
}

// NewModel initializes a model with parameters drawn from src.
func NewModel(cfg Config, src rand.Source) (*Model, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	encoder, err := network.New(cfg.Encoder, src)
	if err != nil {
		return nil, err
	}
	decoder, err := network.New(cfg.Decoder, src)
	if err != nil {
		return nil, err
	}
	propagator, err := ssm.NewKoopmanOperator(cfg.Encoder.OutputSize, cfg.Koopman, src)
	if err != nil {
		return nil, err
	}
	return &Model{
		Encoder:     encoder,
		Decoder:     decoder,
		Propagator:  propagator,
		LookForward: cfg.LookForward,
		Loss:        loss.MaskedMSE{MaxLookForward: cfg.LossLookForward},
	}, nil
}

// Encode maps the rows of x to observables.
func (m *Model) Encode(x mat.Matrix) *mat.Dense {
	return m.Encoder.Forward(x)
}

// Propagate returns the observables after 1..n steps.
func (m *Model) Propagate(z mat.Matrix, n int) loss.Sequence {
	A := m.Propagator.DiscreteOperator()
	res := make(loss.Sequence, n)
	current := z
	for step := range res {
		res[step] = ssm.ApplyOperator(A, current)
		current = res[step]
	}
	return res
}

// Forward returns the decoded state n steps ahead of every row of x.
func (m *Model) Forward(x mat.Matrix, n int) *mat.Dense {
	seq := m.Propagate(m.Encode(x), n)
	return m.Decoder.Forward(seq[n-1])
}

// ForwardAll returns the decoded states 1..n steps ahead of every row of x.
func (m *Model) ForwardAll(x mat.Matrix, n int) loss.Sequence {
	seq := m.Propagate(m.Encode(x), n)
	for step, z := range seq {
		seq[step] = m.Decoder.Forward(z)
	}
	return seq
}

// Clone returns a deep copy.
func (m *Model) Clone() *Model {
	return &Model{
		Encoder:     m.Encoder.Clone(),
		Decoder:     m.Decoder.Clone(),
		Propagator:  m.Propagator.Clone(),
		LookForward: m.LookForward,
		Loss:        m.Loss,
	}
}

func (m *Model) params() [][]float64 {
	res := m.Encoder.Params()
	res = append(res, m.Decoder.Params()...)
	return append(res, m.Propagator.Params()...)
}

// NumParams returns the number of trainable parameters.
func (m *Model) NumParams() int {
	var n int
	for _, p := range m.params() {
		n += len(p)
	}
	return n
}

// Params returns a flat copy of the parameters, encoder first, then decoder
// and propagator.
func (m *Model) Params() []float64 {
	return flatten(m.params(), m.NumParams())
}

// SetParams overwrites the parameters from a flat slice ordered as Params.
func (m *Model) SetParams(flat []float64) {
	if len(flat) != m.NumParams() {
		panic(fmt.Sprintf("training: got %d parameters, model has %d", len(flat), m.NumParams()))
	}
	var offset int
	for _, p := range m.params() {
		offset += copy(p, flat[offset:])
	}
}

func flatten(parts [][]float64, n int) []float64 {
	res := make([]float64, 0, n)
	for _, p := range parts {
		res = append(res, p...)
	}
	return res
}
