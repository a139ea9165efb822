// Package network implements the multilayer perceptron used as encoder and
// decoder, together with the reverse mode gradients needed for training.
package network

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/hammal/koopman/gonumExtensions"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Config describes a network.
type Config struct {
	InputSize   int    `json:"input_size"`
	HiddenSizes []int  `json:"hidden_sizes"`
	OutputSize  int    `json:"output_size"`
	Activations string `json:"activations"`
}

// Validate checks sizes and the activation name.
func (c Config) Validate() error {
	if c.InputSize < 1 || c.OutputSize < 1 {
		return fmt.Errorf("network: input_size and output_size must be positive, got %d and %d", c.InputSize, c.OutputSize)
	}
	for index, size := range c.HiddenSizes {
		if size < 1 {
			return fmt.Errorf("network: hidden_sizes[%d] must be positive, got %d", index, size)
		}
	}
	_, err := ParseActivation(c.Activations)
	return err
}

// Layer is the affine map x W^T + b. Bias is nil for layers without bias.
type Layer struct {
	Weight *mat.Dense
	Bias   *mat.VecDense
}

// FeedForwardNetwork applies affine layers, each but the last followed by the
// activation. With a linear activation no layer carries a bias and the last
// layer never does.
type FeedForwardNetwork struct {
	Layers     []Layer
	Activation Activation
}

// New builds a network with weights and biases drawn from
// U(-1/sqrt(in), 1/sqrt(in)).
func New(cfg Config, src rand.Source) (*FeedForwardNetwork, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	act, _ := ParseActivation(cfg.Activations)
	sizes := append([]int{cfg.InputSize}, cfg.HiddenSizes...)
	sizes = append(sizes, cfg.OutputSize)

	net := &FeedForwardNetwork{Activation: act}
	for l := 0; l < len(sizes)-1; l++ {
		in, out := sizes[l], sizes[l+1]
		bound := 1 / math.Sqrt(float64(in))
		dist := distuv.Uniform{Min: -bound, Max: bound, Src: src}
		weights := make([]float64, out*in)
		for index := range weights {
			weights[index] = dist.Rand()
		}
		layer := Layer{Weight: mat.NewDense(out, in, weights)}
		last := l == len(sizes)-2
		if act != Linear && !last {
			bias := make([]float64, out)
			for index := range bias {
				bias[index] = dist.Rand()
			}
			layer.Bias = mat.NewVecDense(out, bias)
		}
		net.Layers = append(net.Layers, layer)
	}
	return net, nil
}

// InputSize returns the number of input features.
func (n *FeedForwardNetwork) InputSize() int {
	_, c := n.Layers[0].Weight.Dims()
	return c
}

// OutputSize returns the number of output features.
func (n *FeedForwardNetwork) OutputSize() int {
	r, _ := n.Layers[len(n.Layers)-1].Weight.Dims()
	return r
}

// activated reports whether the activation follows layer l.
func (n *FeedForwardNetwork) activated(l int) bool {
	return l < len(n.Layers)-1 && n.Activation != Linear
}

// Cache holds the intermediate values of a forward pass.
type Cache struct {
	inputs []mat.Matrix
	pre    []*mat.Dense
	post   []*mat.Dense
}

// Forward maps every row of x through the network.
func (n *FeedForwardNetwork) Forward(x mat.Matrix) *mat.Dense {
	out, _ := n.forward(x, false)
	return out
}

// ForwardCached is Forward keeping what Backward needs.
func (n *FeedForwardNetwork) ForwardCached(x mat.Matrix) (*mat.Dense, *Cache) {
	return n.forward(x, true)
}

func (n *FeedForwardNetwork) forward(x mat.Matrix, keep bool) (*mat.Dense, *Cache) {
	var cache *Cache
	if keep {
		cache = &Cache{
			inputs: make([]mat.Matrix, len(n.Layers)),
			pre:    make([]*mat.Dense, len(n.Layers)),
			post:   make([]*mat.Dense, len(n.Layers)),
		}
	}
	in := x
	var out *mat.Dense
	for l, layer := range n.Layers {
		pre := new(mat.Dense)
		pre.Mul(in, layer.Weight.T())
		if layer.Bias != nil {
			rows, _ := pre.Dims()
			for row := 0; row < rows; row++ {
				r := pre.RawRowView(row)
				for col := range r {
					r[col] += layer.Bias.AtVec(col)
				}
			}
		}
		out = pre
		if n.activated(l) {
			out = new(mat.Dense)
			out.Apply(func(i, j int, v float64) float64 { return n.Activation.Eval(v) }, pre)
		}
		if keep {
			cache.inputs[l] = in
			cache.pre[l] = pre
			cache.post[l] = out
		}
		in = out
	}
	return out, cache
}

// Backward accumulates into g the parameter gradients for the forward pass
// recorded in c, given dOut, the loss gradient with respect to its output. It
// returns the gradient with respect to the input.
func (n *FeedForwardNetwork) Backward(c *Cache, dOut mat.Matrix, g *Gradients) *mat.Dense {
	delta := mat.DenseCopyOf(dOut)
	for l := len(n.Layers) - 1; l >= 0; l-- {
		if n.activated(l) {
			pre, post := c.pre[l], c.post[l]
			delta.Apply(func(i, j int, v float64) float64 {
				return v * n.Activation.Derivative(pre.At(i, j), post.At(i, j))
			}, delta)
		}
		var dW mat.Dense
		dW.Mul(delta.T(), c.inputs[l])
		g.Weight[l].Add(g.Weight[l], &dW)
		if g.Bias[l] != nil {
			db := mat.NewVecDense(g.Bias[l].Len(), gonumExtensions.ColumnSums(delta))
			g.Bias[l].AddVec(g.Bias[l], db)
		}
		var dIn mat.Dense
		dIn.Mul(delta, n.Layers[l].Weight)
		delta = &dIn
	}
	return delta
}

// Weights returns the layer weight matrices in order of application.
func (n *FeedForwardNetwork) Weights() []*mat.Dense {
	res := make([]*mat.Dense, len(n.Layers))
	for l, layer := range n.Layers {
		res[l] = layer.Weight
	}
	return res
}

// Params returns views of the parameter storage, weight then bias per layer.
func (n *FeedForwardNetwork) Params() [][]float64 {
	var res [][]float64
	for _, layer := range n.Layers {
		res = append(res, layer.Weight.RawMatrix().Data)
		if layer.Bias != nil {
			res = append(res, layer.Bias.RawVector().Data)
		}
	}
	return res
}

// Clone returns a deep copy.
func (n *FeedForwardNetwork) Clone() *FeedForwardNetwork {
	c := &FeedForwardNetwork{Activation: n.Activation, Layers: make([]Layer, len(n.Layers))}
	for l, layer := range n.Layers {
		c.Layers[l].Weight = mat.DenseCopyOf(layer.Weight)
		if layer.Bias != nil {
			c.Layers[l].Bias = mat.VecDenseCopyOf(layer.Bias)
		}
	}
	return c
}

// Gradients mirrors the parameters of a network.
type Gradients struct {
	Weight []*mat.Dense
	Bias   []*mat.VecDense
}

// NewGradients returns zeroed gradients shaped like the parameters.
func (n *FeedForwardNetwork) NewGradients() *Gradients {
	g := &Gradients{
		Weight: make([]*mat.Dense, len(n.Layers)),
		Bias:   make([]*mat.VecDense, len(n.Layers)),
	}
	for l, layer := range n.Layers {
		r, c := layer.Weight.Dims()
		g.Weight[l] = mat.NewDense(r, c, nil)
		if layer.Bias != nil {
			g.Bias[l] = mat.NewVecDense(layer.Bias.Len(), nil)
		}
	}
	return g
}

// Slices returns views of the gradient storage in the order of Params.
func (g *Gradients) Slices() [][]float64 {
	var res [][]float64
	for l := range g.Weight {
		res = append(res, g.Weight[l].RawMatrix().Data)
		if g.Bias[l] != nil {
			res = append(res, g.Bias[l].RawVector().Data)
		}
	}
	return res
}
