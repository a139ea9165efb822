package ssm

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"strings"

	"github.com/hammal/koopman/gonumExtensions"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// ErrUnknownMode is returned for propagator modes other than Standard,
// Hamiltonian and Dissipative.
var ErrUnknownMode = errors.New("ssm: unknown propagator mode")

// Mode selects the parameterization of the generator K.
type Mode int

const (
	// Standard leaves K unconstrained.
	Standard Mode = iota
	// Hamiltonian uses K = S - S^T, so exp(dt K) is orthogonal.
	Hamiltonian
	// Dissipative uses K = diag(-v^2) + S - S^T, so the spectral radius of
	// exp(dt K) is at most one.
	Dissipative
)

func (m Mode) String() string {
	switch m {
	case Standard:
		return "Standard"
	case Hamiltonian:
		return "Hamiltonian"
	case Dissipative:
		return "Dissipative"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// ParseMode maps a configuration name onto a Mode. The empty name selects
// Standard.
func ParseMode(name string) (Mode, error) {
	switch strings.ToLower(name) {
	case "", "standard", "none":
		return Standard, nil
	case "hamiltonian":
		return Hamiltonian, nil
	case "dissipative":
		return Dissipative, nil
	}
	return Standard, fmt.Errorf("%w: %q", ErrUnknownMode, name)
}

// Config of a KoopmanOperator.
type Config struct {
	Mode string `json:"mode"`
	// Discretization time step
	Dt float64 `json:"dt"`
	// Standard deviation of the truncated normal initialization
	InitStd float64 `json:"init_std"`
}

// DefaultConfig returns a Standard operator with unit time step.
func DefaultConfig() Config {
	return Config{Dt: 1, InitStd: 0.1}
}

// KoopmanOperator is the latent linear model z'(t) = K z(t) with the discrete
// operator A = exp(dt K).
type KoopmanOperator struct {
	Mode Mode
	Dt   float64
	// S is K itself for Standard and the matrix in S - S^T otherwise.
	S *mat.Dense
	// Damping is v in diag(-v^2). Only set for Dissipative.
	Damping *mat.VecDense
}

// NewKoopmanOperator returns an operator of order dim with parameters drawn
// from a normal distribution truncated at two standard deviations.
func NewKoopmanOperator(dim int, cfg Config, src rand.Source) (*KoopmanOperator, error) {
	mode, err := ParseMode(cfg.Mode)
	if err != nil {
		return nil, err
	}
	if dim < 1 {
		return nil, fmt.Errorf("ssm: operator order must be positive, got %d", dim)
	}
	if !(cfg.Dt > 0) {
		return nil, fmt.Errorf("ssm: dt must be positive, got %v", cfg.Dt)
	}
	if !(cfg.InitStd > 0) {
		return nil, fmt.Errorf("ssm: init_std must be positive, got %v", cfg.InitStd)
	}
	k := &KoopmanOperator{
		Mode: mode,
		Dt:   cfg.Dt,
		S:    mat.NewDense(dim, dim, truncatedNormal(dim*dim, cfg.InitStd, src)),
	}
	if mode == Dissipative {
		k.Damping = mat.NewVecDense(dim, truncatedNormal(dim, cfg.InitStd, src))
	}
	return k, nil
}

func truncatedNormal(n int, std float64, src rand.Source) []float64 {
	dist := distuv.Normal{Mu: 0, Sigma: std, Src: src}
	res := make([]float64, n)
	for index := range res {
		v := dist.Rand()
		for math.Abs(v) > 2*std {
			v = dist.Rand()
		}
		res[index] = v
	}
	return res
}

// Generator returns the continuous time generator K.
func (k *KoopmanOperator) Generator() *mat.Dense {
	switch k.Mode {
	case Hamiltonian:
		return gonumExtensions.Skew(k.S)
	case Dissipative:
		K := gonumExtensions.Skew(k.S)
		for i := 0; i < k.Damping.Len(); i++ {
			v := k.Damping.AtVec(i)
			K.Set(i, i, K.At(i, i)-v*v)
		}
		return K
	default:
		return mat.DenseCopyOf(k.S)
	}
}

// DiscreteOperator returns A = exp(dt K).
func (k *KoopmanOperator) DiscreteOperator() *mat.Dense {
	return computeStateTransition(k.Dt, k.Generator())
}

// Apply propagates each row of x one step forward, x A^T.
func (k *KoopmanOperator) Apply(x mat.Matrix) *mat.Dense {
	return ApplyOperator(k.DiscreteOperator(), x)
}

// ApplyOperator returns x A^T for an already computed discrete operator.
func ApplyOperator(A, x mat.Matrix) *mat.Dense {
	var res mat.Dense
	res.Mul(x, A.T())
	return &res
}

// StateSpaceOrder returns the latent dimension.
func (k *KoopmanOperator) StateSpaceOrder() int {
	m, _ := k.S.Dims()
	return m
}

// Clone returns a deep copy.
func (k *KoopmanOperator) Clone() *KoopmanOperator {
	c := &KoopmanOperator{Mode: k.Mode, Dt: k.Dt, S: mat.DenseCopyOf(k.S)}
	if k.Damping != nil {
		c.Damping = mat.VecDenseCopyOf(k.Damping)
	}
	return c
}

// Params returns views of the parameter storage in a fixed order.
func (k *KoopmanOperator) Params() [][]float64 {
	res := [][]float64{k.S.RawMatrix().Data}
	if k.Damping != nil {
		res = append(res, k.Damping.RawVector().Data)
	}
	return res
}

// Gradients mirrors the parameters of a KoopmanOperator.
type Gradients struct {
	S       *mat.Dense
	Damping *mat.VecDense
}

// NewGradients returns zeroed gradients shaped like the parameters.
func (k *KoopmanOperator) NewGradients() *Gradients {
	n := k.StateSpaceOrder()
	g := &Gradients{S: mat.NewDense(n, n, nil)}
	if k.Damping != nil {
		g.Damping = mat.NewVecDense(n, nil)
	}
	return g
}

// Slices returns views of the gradient storage in the order of Params.
func (g *Gradients) Slices() [][]float64 {
	res := [][]float64{g.S.RawMatrix().Data}
	if g.Damping != nil {
		res = append(res, g.Damping.RawVector().Data)
	}
	return res
}

// Backward accumulates into g the parameter gradients given dA, the gradient
// of a scalar loss with respect to the discrete operator A = exp(dt K).
func (k *KoopmanOperator) Backward(dA mat.Matrix, g *Gradients) {
	var X mat.Dense
	X.Scale(k.Dt, k.Generator().T())
	dK := gonumExtensions.ExpFrechet(&X, dA)
	dK.Scale(k.Dt, dK)

	switch k.Mode {
	case Standard:
		g.S.Add(g.S, dK)
	case Hamiltonian:
		g.S.Add(g.S, gonumExtensions.Skew(dK))
	case Dissipative:
		g.S.Add(g.S, gonumExtensions.Skew(dK))
		for i := 0; i < k.Damping.Len(); i++ {
			g.Damping.SetVec(i, g.Damping.AtVec(i)-2*k.Damping.AtVec(i)*dK.At(i, i))
		}
	}
}
