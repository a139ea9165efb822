package network

import (
	"errors"
	"fmt"
	"math"
)

// ErrUnknownActivation is returned by ParseActivation for unsupported names.
var ErrUnknownActivation = errors.New("network: unknown activation")

// Activation is applied uniformly to every hidden layer.
type Activation int

const (
	Linear Activation = iota
	ReLU
	Sigmoid
	Tanh
	Swish
	ELU
	Mish
)

var activationNames = map[string]Activation{
	"linear":  Linear,
	"relu":    ReLU,
	"sigmoid": Sigmoid,
	"tanh":    Tanh,
	"swish":   Swish,
	"elu":     ELU,
	"mish":    Mish,
}

// ParseActivation maps a configuration name onto an Activation.
func ParseActivation(name string) (Activation, error) {
	if a, ok := activationNames[name]; ok {
		return a, nil
	}
	return Linear, fmt.Errorf("%w: %q", ErrUnknownActivation, name)
}

func (a Activation) String() string {
	for name, v := range activationNames {
		if v == a {
			return name
		}
	}
	return fmt.Sprintf("Activation(%d)", int(a))
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

func softplus(x float64) float64 {
	if x > 20 {
		return x
	}
	return math.Log1p(math.Exp(x))
}

// Eval returns f(x).
func (a Activation) Eval(x float64) float64 {
	switch a {
	case ReLU:
		return math.Max(x, 0)
	case Sigmoid:
		return sigmoid(x)
	case Tanh:
		return math.Tanh(x)
	case Swish:
		return x * sigmoid(x)
	case ELU:
		if x > 0 {
			return x
		}
		return math.Expm1(x)
	case Mish:
		return x * math.Tanh(softplus(x))
	default:
		return x
	}
}

// Derivative returns f'(x) given the input x and the output y = f(x).
func (a Activation) Derivative(x, y float64) float64 {
	switch a {
	case ReLU:
		if x > 0 {
			return 1
		}
		return 0
	case Sigmoid:
		return y * (1 - y)
	case Tanh:
		return 1 - y*y
	case Swish:
		s := sigmoid(x)
		return s + x*s*(1-s)
	case ELU:
		if x > 0 {
			return 1
		}
		return y + 1
	case Mish:
		t := math.Tanh(softplus(x))
		return t + x*(1-t*t)*sigmoid(x)
	default:
		return 1
	}
}
