package reconstruct

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// OutputMap returns the effective linear map from observables to states,
// W_L ... W_2 W_1 for layer weights in order of application. A non nil scale
// undoes the normalization, diag(scale) W_L ... W_1.
func OutputMap(weights []*mat.Dense, scale []float64) *mat.Dense {
	if len(weights) == 0 {
		panic("reconstruct: no layer weights")
	}
	res := mat.DenseCopyOf(weights[0])
	for _, w := range weights[1:] {
		var tmp mat.Dense
		tmp.Mul(w, res)
		res = &tmp
	}
	if scale != nil {
		r, _ := res.Dims()
		if len(scale) != r {
			panic(mat.ErrShape)
		}
		var tmp mat.Dense
		tmp.Mul(mat.NewDiagDense(r, scale), res)
		res = &tmp
	}
	return res
}

// Modes returns the complex product ur V.
func Modes(ur mat.Matrix, V *mat.CDense) *mat.CDense {
	r, inner := ur.Dims()
	vr, c := V.Dims()
	if inner != vr {
		panic(mat.ErrShape)
	}
	res := mat.NewCDense(r, c, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			var sum complex128
			for k := 0; k < inner; k++ {
				sum += complex(ur.At(i, k), 0) * V.At(k, j)
			}
			res.Set(i, j, sum)
		}
	}
	return res
}

// embed returns the real representation [[Re V, -Im V], [Im V, Re V]] of V.
func embed(V *mat.CDense) *mat.Dense {
	n, _ := V.Dims()
	res := mat.NewDense(2*n, 2*n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			v := V.At(i, j)
			res.Set(i, j, real(v))
			res.Set(i, j+n, -imag(v))
			res.Set(i+n, j, imag(v))
			res.Set(i+n, j+n, real(v))
		}
	}
	return res
}

// Eigenfunctions returns the eigenfunction coordinates V^-1 phi of real
// observables phi, one column per sample.
func (d *Decomposition) Eigenfunctions(phi mat.Matrix) (*mat.CDense, error) {
	n := d.Order()
	r, c := phi.Dims()
	if r != n {
		return nil, fmt.Errorf("reconstruct: %d observables for an operator of order %d", r, n)
	}
	// Solve V x = phi as a real system of twice the size.
	rhs := mat.NewDense(2*n, c, nil)
	rhs.Slice(0, n, 0, c).(*mat.Dense).Copy(phi)
	var x mat.Dense
	if err := x.Solve(embed(d.Vectors), rhs); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) {
			return nil, fmt.Errorf("%w: %v", ErrSingular, err)
		}
	}
	res := mat.NewCDense(n, c, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < c; j++ {
			res.Set(i, j, complex(x.At(i, j), x.At(i+n, j)))
		}
	}
	return res, nil
}

// Reconstruct returns the real part of modes diag(Values)^n psi, the linear
// forecast n steps ahead of the samples whose eigenfunction coordinates are
// the columns of psi.
func (d *Decomposition) Reconstruct(modes, psi *mat.CDense, n int) *mat.Dense {
	r, inner := modes.Dims()
	pr, c := psi.Dims()
	if inner != d.Order() || pr != d.Order() {
		panic(mat.ErrShape)
	}
	powers := make([]complex128, inner)
	for k, v := range d.Values {
		powers[k] = 1
		for step := 0; step < n; step++ {
			powers[k] *= v
		}
	}
	res := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			var sum complex128
			for k := 0; k < inner; k++ {
				sum += modes.At(i, k) * powers[k] * psi.At(k, j)
			}
			res.Set(i, j, real(sum))
		}
	}
	return res
}
