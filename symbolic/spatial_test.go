package symbolic

import (
	"math"
	"testing"

	"go.viam.com/test"
)

func evalMat(t *testing.T, m Mat, syms []Symbol, in []float64) []float64 {
	t.Helper()
	p, err := Compile(m, syms)
	test.That(t, err, test.ShouldBeNil)
	out := make([]float64, p.OutputLen())
	test.That(t, p.Eval(in, out), test.ShouldBeNil)
	return out
}

func TestRotationAxisAngleNumeric(t *testing.T) {
	angle := Sym(0)
	axis := ColVec(Const(0), Const(0), Const(1))
	frame := RotationAxisAngle(axis, angle)
	out := evalMat(t, frame, []Symbol{0}, []float64{math.Pi / 2})
	// z rotation by 90°: x axis maps to y
	test.That(t, out[0], test.ShouldAlmostEqual, 0, 1e-12)
	test.That(t, out[4], test.ShouldAlmostEqual, 1, 1e-12)
	test.That(t, out[1], test.ShouldAlmostEqual, -1, 1e-12)
	test.That(t, out[15], test.ShouldEqual, 1)
}

func TestInverseFrame(t *testing.T) {
	x, y, z, a := Sym(0), Sym(1), Sym(2), Sym(3)
	syms := []Symbol{0, 1, 2, 3}
	axis := ColVec(Const(0), Const(1), Const(0))
	frame := MatMul(Translation3(x, y, z), RotationAxisAngle(axis, a))
	product := MatMul(frame, InverseFrame(frame))
	out := evalMat(t, product, syms, []float64{0.3, -1.2, 2.5, 0.7})
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			want := 0.0
			if i == j {
				want = 1.0
			}
			test.That(t, out[i*4+j], test.ShouldAlmostEqual, want, 1e-9)
		}
	}
}

func TestAxisAngleQuaternionRoundTrip(t *testing.T) {
	qx, qy, qz, qw := Sym(0), Sym(1), Sym(2), Sym(3)
	syms := []Symbol{0, 1, 2, 3}
	axis, angle := AxisAngleFromQuaternion(qx, qy, qz, qw)
	back := QuaternionFromAxisAngle(axis, angle)

	for _, tc := range [][4]float64{
		{0, 0, 1, 0.0002}, // nearly 180° about z
		{0.5, 0.5, 0.5, 0.5},
		{0.2672612419124244, 0.5345224838248488, 0.8017837257372732, 0},
		{0, 0.7071067811865476, 0, 0.7071067811865476},
	} {
		q := tc
		n := math.Sqrt(q[0]*q[0] + q[1]*q[1] + q[2]*q[2] + q[3]*q[3])
		for i := range q {
			q[i] /= n
		}
		out := evalMat(t, back, syms, q[:])
		for i := 0; i < 4; i++ {
			test.That(t, out[i], test.ShouldAlmostEqual, q[i], 1e-6)
		}
	}
}

func TestSlerpEndpoints(t *testing.T) {
	tSym := Sym(0)
	q1 := ColVec(Const(0), Const(0), Const(0), Const(1))
	halfRoot := math.Sqrt(0.5)
	q2 := ColVec(Const(halfRoot), Const(0), Const(0), Const(halfRoot))
	interp := SlerpD(q1, q2, tSym)

	at0 := evalMat(t, interp, []Symbol{0}, []float64{0})
	test.That(t, at0[0], test.ShouldAlmostEqual, 0, 1e-6)
	test.That(t, at0[3], test.ShouldAlmostEqual, 1, 1e-6)

	at1 := evalMat(t, interp, []Symbol{0}, []float64{1})
	test.That(t, math.Abs(at1[0]), test.ShouldAlmostEqual, halfRoot, 1e-6)
	test.That(t, math.Abs(at1[3]), test.ShouldAlmostEqual, halfRoot, 1e-6)

	atHalf := evalMat(t, interp, []Symbol{0}, []float64{0.5})
	// halfway along the arc: 22.5° about x
	test.That(t, atHalf[0], test.ShouldAlmostEqual, math.Sin(math.Pi/8), 1e-6)
	test.That(t, atHalf[3], test.ShouldAlmostEqual, math.Cos(math.Pi/8), 1e-6)
}

func TestShortestAngularDistance(t *testing.T) {
	from := Sym(0)
	to := Sym(1)
	syms := []Symbol{0, 1}
	dist := ShortestAngularDistance(from, to)

	cases := []struct {
		from, to, want float64
	}{
		{0, 1, 1},
		{0, -1, -1},
		{-math.Pi + 0.1, math.Pi - 0.1, -0.2},
		{math.Pi - 0.1, -math.Pi + 0.1, 0.2},
		{0, 3 * math.Pi, math.Pi},
	}
	for _, tc := range cases {
		got := evalScalar(t, dist, syms, []float64{tc.from, tc.to})
		test.That(t, got, test.ShouldAlmostEqual, tc.want, 1e-9)
		test.That(t, got >= -math.Pi && got <= math.Pi, test.ShouldBeTrue)
	}
}

func TestQuaternionMultiplyConjugate(t *testing.T) {
	syms := []Symbol{0, 1, 2, 3}
	q := ColVec(Sym(0), Sym(1), Sym(2), Sym(3))
	identityish := QuaternionMultiply(q, QuaternionConjugate(q))
	out := evalMat(t, identityish, syms, []float64{0.5, 0.5, 0.5, 0.5})
	test.That(t, out[0], test.ShouldAlmostEqual, 0, 1e-12)
	test.That(t, out[1], test.ShouldAlmostEqual, 0, 1e-12)
	test.That(t, out[2], test.ShouldAlmostEqual, 0, 1e-12)
	test.That(t, out[3], test.ShouldAlmostEqual, 1, 1e-12)
}

func TestRotationDistance(t *testing.T) {
	a := Sym(0)
	axis := ColVec(Const(0), Const(0), Const(1))
	r1 := RotationAxisAngle(axis, Const(0))
	r2 := RotationAxisAngle(axis, a)
	d := RotationDistance(r1, r2)
	test.That(t, evalScalar(t, d, []Symbol{0}, []float64{0.9}), test.ShouldAlmostEqual, 0.9, 1e-9)
}
