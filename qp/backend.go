package qp

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// The backend is an operator-splitting solver over the stacked constraint
// set [A; I]. Each iteration projects onto the box; changes in the
// projection's clamping pattern are the working-set transitions counted
// against the caller's budget.

var errBudgetExhausted = errors.New("working-set budget exhausted")

const (
	admmSigma   = 1e-6
	admmRho     = 1e-1
	admmTol     = 1e-8
	admmMaxIter = 50000
)

type admm struct {
	x []float64
	z []float64
	y []float64

	warm bool
}

func newADMM() *admm { return &admm{} }

func denseFrom(r, c int, data []float64) *mat.Dense {
	return mat.NewDense(r, c, data)
}

// stacked builds C = [A; I] and its bounds.
func stacked(m *Matrices) (*mat.Dense, []float64, []float64) {
	ra, n := m.A.Dims()
	rows := ra + n
	c := mat.NewDense(rows, n, nil)
	l := make([]float64, rows)
	u := make([]float64, rows)
	for i := 0; i < ra; i++ {
		for j := 0; j < n; j++ {
			c.Set(i, j, m.A.At(i, j))
		}
		l[i] = m.LbA[i]
		u[i] = m.UbA[i]
	}
	for i := 0; i < n; i++ {
		c.Set(ra+i, i, 1)
		l[ra+i] = m.Lb[i]
		u[ra+i] = m.Ub[i]
	}
	return c, l, u
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

// solve runs the splitting iteration to convergence. hot keeps the previous
// x, y, z as the starting iterate. budget bounds the number of clamping
// pattern changes; exceeding it returns errBudgetExhausted, on a cold start
// and on a hot start alike.
func (a *admm) solve(m *Matrices, budget int, hot bool) error {
	c, l, u := stacked(m)
	rows, n := c.Dims()

	if !hot || !a.warm || len(a.x) != n || len(a.z) != rows {
		a.x = make([]float64, n)
		a.z = make([]float64, rows)
		a.y = make([]float64, rows)
		for i := range a.z {
			a.z[i] = clamp(0, l[i], u[i])
		}
	}

	// K = diag(H) + σI + ρ CᵀC, factored once per solve.
	k := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		k.SetSym(i, i, m.H[i]+admmSigma)
	}
	var ctc mat.Dense
	ctc.Mul(c.T(), c)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			k.SetSym(i, j, k.At(i, j)+admmRho*ctc.At(i, j))
		}
	}
	var chol mat.Cholesky
	if !chol.Factorize(k) {
		return errors.New("cost matrix is not positive definite")
	}

	x := mat.NewVecDense(n, a.x)
	z := a.z
	y := a.y
	rhs := mat.NewVecDense(n, nil)
	cx := mat.NewVecDense(rows, nil)
	xSol := mat.NewVecDense(n, nil)

	pattern := make([]int8, rows)
	patternOf := func(v, lo, hi float64) int8 {
		switch {
		case hi-lo < 1e-12:
			// Equality rows are pinned; they never transition.
			return 2
		case v <= lo:
			return -1
		case v >= hi:
			return 1
		default:
			return 0
		}
	}
	for i := range pattern {
		pattern[i] = patternOf(z[i], l[i], u[i])
	}
	changes := 0

	for iter := 0; iter < admmMaxIter; iter++ {
		// x step: K x = σx - g + Cᵀ(ρz - y)
		for i := 0; i < n; i++ {
			rhs.SetVec(i, admmSigma*x.AtVec(i)-m.G[i])
		}
		tmp := mat.NewVecDense(rows, nil)
		for i := 0; i < rows; i++ {
			tmp.SetVec(i, admmRho*z[i]-y[i])
		}
		rhs.AddVec(rhs, vecMulT(c, tmp))
		if err := chol.SolveVecTo(xSol, rhs); err != nil {
			return errors.Wrap(err, "linear solve failed")
		}
		x.CopyVec(xSol)

		cx.MulVec(c, x)

		// z step: project, counting clamping transitions.
		maxZDelta := 0.0
		for i := 0; i < rows; i++ {
			free := cx.AtVec(i) + y[i]/admmRho
			newZ := clamp(free, l[i], u[i])
			if d := math.Abs(newZ - z[i]); d > maxZDelta {
				maxZDelta = d
			}
			if p := patternOf(free, l[i], u[i]); p != pattern[i] {
				pattern[i] = p
				changes++
			}
			z[i] = newZ
		}
		if changes > budget {
			return errBudgetExhausted
		}

		// y step and convergence.
		maxPrimal := 0.0
		for i := 0; i < rows; i++ {
			r := cx.AtVec(i) - z[i]
			y[i] += admmRho * r
			if ar := math.Abs(r); ar > maxPrimal {
				maxPrimal = ar
			}
		}
		if maxPrimal < admmTol && maxZDelta < admmTol {
			a.warm = true
			return nil
		}
	}
	return errors.New("iteration limit reached without convergence")
}

// vecMulT returns Cᵀ v.
func vecMulT(c *mat.Dense, v *mat.VecDense) *mat.VecDense {
	_, n := c.Dims()
	out := mat.NewVecDense(n, nil)
	out.MulVec(c.T(), v)
	return out
}
