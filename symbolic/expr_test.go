package symbolic

import (
	"errors"
	"math"
	"testing"

	"go.viam.com/test"
)

func evalScalar(t *testing.T, e *Expr, syms []Symbol, in []float64) float64 {
	t.Helper()
	p, err := Compile(ColVec(e), syms)
	test.That(t, err, test.ShouldBeNil)
	out := make([]float64, 1)
	test.That(t, p.Eval(in, out), test.ShouldBeNil)
	return out[0]
}

func TestArithmetic(t *testing.T) {
	x := Sym(0)
	y := Sym(1)
	syms := []Symbol{0, 1}

	e := Add(Mul(x, y), Const(3))
	test.That(t, evalScalar(t, e, syms, []float64{2, 5}), test.ShouldEqual, 13)

	e = Div(Sub(x, y), y)
	test.That(t, evalScalar(t, e, syms, []float64{9, 3}), test.ShouldEqual, 2)

	e = Atan2(y, x)
	test.That(t, evalScalar(t, e, syms, []float64{0, 1}), test.ShouldAlmostEqual, math.Pi/2, 1e-12)
}

func TestConstantFolding(t *testing.T) {
	e := Add(Const(2), Const(3))
	v, ok := e.IsConst()
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, v, test.ShouldEqual, 5)

	x := Sym(0)
	test.That(t, Mul(x, Const(1)), test.ShouldEqual, x)
	test.That(t, Add(x, Const(0)), test.ShouldEqual, x)
	v, ok = Mul(x, Const(0)).IsConst()
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, v, test.ShouldEqual, 0)
}

func TestDiff(t *testing.T) {
	x := Sym(0)
	syms := []Symbol{0}

	// d/dx x² = 2x
	d, err := Diff(Square(x), 0)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, evalScalar(t, d, syms, []float64{3}), test.ShouldAlmostEqual, 6, 1e-12)

	// d/dx sin(x) = cos(x)
	d, err = Diff(Sin(x), 0)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, evalScalar(t, d, syms, []float64{1.2}), test.ShouldAlmostEqual, math.Cos(1.2), 1e-12)

	// chain rule through sqrt
	d, err = Diff(Sqrt(Add(Square(x), Const(1))), 0)
	test.That(t, err, test.ShouldBeNil)
	want := 2.0 / math.Sqrt(5)
	test.That(t, evalScalar(t, d, syms, []float64{2}), test.ShouldAlmostEqual, want, 1e-12)

	// independent symbol
	d, err = Diff(Sin(x), 1)
	test.That(t, err, test.ShouldBeNil)
	v, ok := d.IsConst()
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, v, test.ShouldEqual, 0)
}

func TestDiffRejectsNonSmooth(t *testing.T) {
	x := Sym(0)
	for _, e := range []*Expr{
		Abs(x),
		Min(x, Const(1)),
		Max(x, Const(1)),
		Sign(x),
		Floor(x),
		IfLE(x, Const(0), Const(1), Const(2)),
	} {
		_, err := Diff(e, 0)
		test.That(t, err, test.ShouldNotBeNil)
	}
}

func TestSmoothSurrogates(t *testing.T) {
	x := Sym(0)
	y := Sym(1)
	syms := []Symbol{0, 1}

	test.That(t, evalScalar(t, AbsD(x), syms, []float64{-4, 0}), test.ShouldAlmostEqual, 4, 1e-9)
	test.That(t, evalScalar(t, MaxD(x, y), syms, []float64{2, 7}), test.ShouldAlmostEqual, 7, 1e-9)
	test.That(t, evalScalar(t, MinD(x, y), syms, []float64{2, 7}), test.ShouldAlmostEqual, 2, 1e-9)
	test.That(t, evalScalar(t, SignD(x), syms, []float64{0.5, 0}), test.ShouldAlmostEqual, 1, 1e-9)
	test.That(t, evalScalar(t, SignD(x), syms, []float64{-0.5, 0}), test.ShouldAlmostEqual, -1, 1e-9)

	// surrogates stay differentiable
	_, err := Diff(MaxD(x, y), 0)
	test.That(t, err, test.ShouldBeNil)

	// select sides
	sel := IfGreaterZeroD(x, Const(10), Const(20))
	test.That(t, evalScalar(t, sel, syms, []float64{1, 0}), test.ShouldAlmostEqual, 10, 1e-9)
	test.That(t, evalScalar(t, sel, syms, []float64{-1, 0}), test.ShouldAlmostEqual, 20, 1e-9)

	// safe division yields zero instead of blowing up
	test.That(t, evalScalar(t, SafeDiv(x, y), syms, []float64{3, 0}), test.ShouldAlmostEqual, 0, 1e-9)
	test.That(t, evalScalar(t, SafeDiv(x, y), syms, []float64{3, 2}), test.ShouldAlmostEqual, 1.5, 1e-9)
}

func TestCompileUnboundSymbol(t *testing.T) {
	e := Add(Sym(0), Sym(7))
	_, err := Compile(ColVec(e), []Symbol{0})
	test.That(t, err, test.ShouldNotBeNil)
	var ce *CompileError
	test.That(t, errors.As(err, &ce), test.ShouldBeTrue)
}

func TestEvalDeterminism(t *testing.T) {
	x := Sym(0)
	y := Sym(1)
	e := Mul(Add(Sin(x), Sqrt(AbsD(y))), Atan2(x, y))
	p, err := Compile(ColVec(e), []Symbol{0, 1})
	test.That(t, err, test.ShouldBeNil)
	in := []float64{0.7253, -1.31}
	out1 := make([]float64, 1)
	out2 := make([]float64, 1)
	test.That(t, p.Eval(in, out1), test.ShouldBeNil)
	test.That(t, p.Eval(in, out2), test.ShouldBeNil)
	test.That(t, math.Float64bits(out1[0]), test.ShouldEqual, math.Float64bits(out2[0]))
}

func TestCommonSubexpressionSharing(t *testing.T) {
	x := Sym(0)
	// the same subtree appears three times; value numbering must emit it once
	sub := Mul(Sin(x), Cos(x))
	e := Add(Add(sub, Mul(Sin(x), Cos(x))), sub)
	p, err := Compile(ColVec(e), []Symbol{0})
	test.That(t, err, test.ShouldBeNil)
	// sin, cos, mul, two adds, plus nothing duplicated
	test.That(t, len(p.Insts), test.ShouldBeLessThanOrEqualTo, 5)
}
