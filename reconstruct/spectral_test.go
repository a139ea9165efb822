package reconstruct

import (
	"math"
	"math/cmplx"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func dampedRotation(r, theta float64) *mat.Dense {
	return mat.NewDense(2, 2, []float64{
		r * math.Cos(theta), -r * math.Sin(theta),
		r * math.Sin(theta), r * math.Cos(theta),
	})
}

func TestDecompose(t *testing.T) {
	d, err := Decompose(dampedRotation(0.9, 0.3))
	require.NoError(t, err)
	require.Equal(t, 2, d.Order())
	assert.InDelta(t, 0.9, d.SpectralRadius(), 1e-12)

	angles := []float64{cmplx.Phase(d.Values[0]), cmplx.Phase(d.Values[1])}
	sort.Float64s(angles)
	assert.InDelta(t, -0.3, angles[0], 1e-12)
	assert.InDelta(t, 0.3, angles[1], 1e-12)

	for _, v := range d.ContinuousValues(0.5) {
		assert.InDelta(t, math.Log(0.9)/0.5, real(v), 1e-12)
		assert.InDelta(t, 0.6, math.Abs(imag(v)), 1e-12)
	}
}

func TestOutputMap(t *testing.T) {
	w1 := mat.NewDense(3, 2, []float64{1, 0, 0, 1, 1, 1})
	w2 := mat.NewDense(2, 3, []float64{1, 2, 3, 0, 1, 0})
	got := OutputMap([]*mat.Dense{w1, w2}, nil)
	want := mat.NewDense(2, 2, []float64{4, 5, 0, 1})
	assert.True(t, mat.Equal(want, got))

	got = OutputMap([]*mat.Dense{w1, w2}, []float64{2, 10})
	want = mat.NewDense(2, 2, []float64{8, 10, 0, 10})
	assert.True(t, mat.Equal(want, got))

	single := OutputMap([]*mat.Dense{w2}, nil)
	assert.True(t, mat.Equal(w2, single))
	assert.Panics(t, func() { OutputMap(nil, nil) })
}

func TestEigenfunctionsAndReconstruct(t *testing.T) {
	A := dampedRotation(0.95, 0.2)
	d, err := Decompose(A)
	require.NoError(t, err)

	x := mat.NewDense(2, 3, []float64{1, 0, 0.5, 0, 1, -0.25})
	psi, err := d.Eigenfunctions(x)
	require.NoError(t, err)

	// V psi = x
	back := Modes(mat.NewDiagDense(2, []float64{1, 1}), d.Vectors)
	for i := 0; i < 2; i++ {
		for j := 0; j < 3; j++ {
			var sum complex128
			for k := 0; k < 2; k++ {
				sum += back.At(i, k) * psi.At(k, j)
			}
			assert.InDelta(t, x.At(i, j), real(sum), 1e-12)
			assert.InDelta(t, 0, imag(sum), 1e-12)
		}
	}

	modes := Modes(mat.NewDiagDense(2, []float64{1, 1}), d.Vectors)
	for _, n := range []int{0, 1, 5} {
		var An, want mat.Dense
		An.Pow(A, n)
		want.Mul(&An, x)
		assert.True(t, mat.EqualApprox(&want, d.Reconstruct(modes, psi, n), 1e-12), "n=%d", n)
	}

	_, err = d.Eigenfunctions(mat.NewDense(3, 1, nil))
	assert.Error(t, err)
}

func TestModesShape(t *testing.T) {
	d, err := Decompose(dampedRotation(1, 0.1))
	require.NoError(t, err)
	ur := mat.NewDense(3, 2, []float64{1, 0, 0, 1, 1, 1})
	modes := Modes(ur, d.Vectors)
	r, c := modes.Dims()
	assert.Equal(t, 3, r)
	assert.Equal(t, 2, c)
	for j := 0; j < 2; j++ {
		assert.InDelta(t, 0, cmplx.Abs(modes.At(2, j)-modes.At(0, j)-modes.At(1, j)), 1e-15)
	}
	assert.Panics(t, func() { Modes(mat.NewDense(2, 3, nil), d.Vectors) })
}
