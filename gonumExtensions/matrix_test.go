package gonumExtensions

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestNANORINF(t *testing.T) {
	m := mat.NewDense(2, 2, []float64{1, 1, 1, 1})
	assert.False(t, NANORINF(m))
	m.Set(1, 0, math.Inf(-1))
	assert.True(t, NANORINF(m))
}

func TestSkew(t *testing.T) {
	s := mat.NewDense(2, 2, []float64{1, 2, 3, 4})
	k := Skew(s)
	var sum mat.Dense
	sum.Add(k, k.T())
	assert.True(t, mat.EqualApprox(&sum, mat.NewDense(2, 2, nil), 1e-15))
	assert.Equal(t, -1., k.At(0, 1))
}

func TestExpFrechetFiniteDifference(t *testing.T) {
	rnd := rand.New(rand.NewPCG(1, 2))
	n := 4
	X := mat.NewDense(n, n, nil)
	E := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			X.Set(i, j, 0.3*rnd.NormFloat64())
			E.Set(i, j, rnd.NormFloat64())
		}
	}
	L := ExpFrechet(X, E)

	h := 1e-6
	var plus, minus, fd mat.Dense
	plus.Scale(h, E)
	plus.Add(X, &plus)
	plus.Exp(&plus)
	minus.Scale(-h, E)
	minus.Add(X, &minus)
	minus.Exp(&minus)
	fd.Sub(&plus, &minus)
	fd.Scale(1/(2*h), &fd)

	require.True(t, mat.EqualApprox(L, &fd, 1e-6), "Fréchet derivative\n%v\nfinite difference\n%v", mat.Formatted(L), mat.Formatted(&fd))
}

func TestRowsToDenseAndColumnSums(t *testing.T) {
	m := RowsToDense([][]float64{{1, 2}, {3, 4}, {5, 6}})
	r, c := m.Dims()
	require.Equal(t, 3, r)
	require.Equal(t, 2, c)
	assert.Equal(t, []float64{9, 12}, ColumnSums(m))
}
