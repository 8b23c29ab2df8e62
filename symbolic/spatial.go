package symbolic

import "math"

// Spatial helpers over 4×4 homogeneous transforms and quaternions. All
// functions operate symbolically; quaternions are 4-vectors in xyzw order.

// Vector3 returns the homogeneous direction vector (x, y, z, 0).
func Vector3(x, y, z *Expr) Mat { return ColVec(x, y, z, Const(0)) }

// Point3 returns the homogeneous point (x, y, z, 1).
func Point3(x, y, z *Expr) Mat { return ColVec(x, y, z, Const(1)) }

// Translation3 returns the pure translation frame for (x, y, z).
func Translation3(x, y, z *Expr) Mat {
	f := Identity(4)
	f.Set(0, 3, x)
	f.Set(1, 3, y)
	f.Set(2, 3, z)
	return f
}

// RotationRPY returns the 4×4 rotation frame for roll, pitch, yaw (ZYX order).
func RotationRPY(roll, pitch, yaw *Expr) Mat {
	rx := Identity(4)
	rx.Set(1, 1, Cos(roll))
	rx.Set(1, 2, Neg(Sin(roll)))
	rx.Set(2, 1, Sin(roll))
	rx.Set(2, 2, Cos(roll))
	ry := Identity(4)
	ry.Set(0, 0, Cos(pitch))
	ry.Set(0, 2, Sin(pitch))
	ry.Set(2, 0, Neg(Sin(pitch)))
	ry.Set(2, 2, Cos(pitch))
	rz := Identity(4)
	rz.Set(0, 0, Cos(yaw))
	rz.Set(0, 1, Neg(Sin(yaw)))
	rz.Set(1, 0, Sin(yaw))
	rz.Set(1, 1, Cos(yaw))
	return MatMul(MatMul(rz, ry), rx)
}

// RotationAxisAngle returns the 4×4 rotation frame for a unit axis and angle.
func RotationAxisAngle(axis Mat, angle *Expr) Mat {
	ct := Cos(angle)
	st := Sin(angle)
	vt := Sub(Const(1), ct)
	ax, ay, az := axis.els[0], axis.els[1], axis.els[2]
	mVt0 := Mul(vt, ax)
	mVt1 := Mul(vt, ay)
	mVt2 := Mul(vt, az)
	mSt0 := Mul(ax, st)
	mSt1 := Mul(ay, st)
	mSt2 := Mul(az, st)
	mVt01 := Mul(mVt0, ay)
	mVt02 := Mul(mVt0, az)
	mVt12 := Mul(mVt1, az)
	f := Identity(4)
	f.Set(0, 0, Add(ct, Mul(mVt0, ax)))
	f.Set(0, 1, Add(Neg(mSt2), mVt01))
	f.Set(0, 2, Add(mSt1, mVt02))
	f.Set(1, 0, Add(mSt2, mVt01))
	f.Set(1, 1, Add(ct, Mul(mVt1, ay)))
	f.Set(1, 2, Add(Neg(mSt0), mVt12))
	f.Set(2, 0, Add(Neg(mSt1), mVt02))
	f.Set(2, 1, Add(mSt0, mVt12))
	f.Set(2, 2, Add(ct, Mul(mVt2, az)))
	return f
}

// RotationQuaternion returns the 4×4 rotation frame for a unit quaternion.
func RotationQuaternion(x, y, z, w *Expr) Mat {
	x2 := Square(x)
	y2 := Square(y)
	z2 := Square(z)
	w2 := Square(w)
	two := Const(2)
	f := Identity(4)
	f.Set(0, 0, Sub(Sub(Add(w2, x2), y2), z2))
	f.Set(0, 1, Sub(Mul(two, Mul(x, y)), Mul(two, Mul(w, z))))
	f.Set(0, 2, Add(Mul(two, Mul(x, z)), Mul(two, Mul(w, y))))
	f.Set(1, 0, Add(Mul(two, Mul(x, y)), Mul(two, Mul(w, z))))
	f.Set(1, 1, Sub(Add(Sub(w2, x2), y2), z2))
	f.Set(1, 2, Sub(Mul(two, Mul(y, z)), Mul(two, Mul(w, x))))
	f.Set(2, 0, Sub(Mul(two, Mul(x, z)), Mul(two, Mul(w, y))))
	f.Set(2, 1, Add(Mul(two, Mul(y, z)), Mul(two, Mul(w, x))))
	f.Set(2, 2, Add(Sub(Sub(w2, x2), y2), z2))
	return f
}

// Frame returns translation·rotation for a position and quaternion.
func Frame(x, y, z, qx, qy, qz, qw *Expr) Mat {
	return MatMul(Translation3(x, y, z), RotationQuaternion(qx, qy, qz, qw))
}

// InverseFrame returns the inverse of a rigid transform: [Rᵀ, -Rᵀt].
func InverseFrame(frame Mat) Mat {
	inv := Identity(4)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			inv.Set(i, j, frame.At(j, i))
		}
	}
	for i := 0; i < 3; i++ {
		sum := Const(0)
		for j := 0; j < 3; j++ {
			sum = Add(sum, Mul(inv.At(i, j), frame.At(j, 3)))
		}
		inv.Set(i, 3, Neg(sum))
	}
	return inv
}

// PositionOf returns the homogeneous translation column of a frame.
func PositionOf(frame Mat) Mat { return frame.Col(3) }

// RotationOf returns the frame with its translation zeroed.
func RotationOf(frame Mat) Mat {
	out := Identity(4)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out.Set(i, j, frame.At(i, j))
		}
	}
	return out
}

// Trace returns the sum of the diagonal of the 3×3 rotation block.
func Trace(frame Mat) *Expr {
	return Add(Add(frame.At(0, 0), frame.At(1, 1)), frame.At(2, 2))
}

// RotationDistance returns the angle of the axis-angle form of aRbᵀ·aRc.
func RotationDistance(aRb, aRc Mat) *Expr {
	diff := MatMul(aRb.T(), aRc)
	angle := Div(Sub(Trace(diff), Const(1)), Const(2))
	angle = Min(angle, Const(1))
	angle = Max(angle, Const(-1))
	return Acos(angle)
}

// AxisAngleFromMatrix extracts (axis, angle) from a normalized rotation
// frame using only smooth operations. Undefined at exactly zero rotation;
// callers perturb the input to keep the Jacobian well-defined there.
func AxisAngleFromMatrix(rm Mat) (Mat, *Expr) {
	angle := Acos(Div(Sub(Trace(rm), Const(1)), Const(2)))
	x := Sub(rm.At(2, 1), rm.At(1, 2))
	y := Sub(rm.At(0, 2), rm.At(2, 0))
	z := Sub(rm.At(1, 0), rm.At(0, 1))
	n := Sqrt(Add(Add(Square(x), Square(y)), Square(z)))
	return ColVec(Div(x, n), Div(y, n), Div(z, n)), angle
}

// AxisAngleFromMatrixStable is AxisAngleFromMatrix with smooth guards
// around the zero-rotation singularity.
func AxisAngleFromMatrixStable(rm Mat) (Mat, *Expr) {
	angle := Div(Sub(Trace(rm), Const(1)), Const(2))
	angle = MinD(angle, Const(1))
	angle = MaxD(angle, Const(-1))
	angle = Acos(angle)
	x := Sub(rm.At(2, 1), rm.At(1, 2))
	y := Sub(rm.At(0, 2), rm.At(2, 0))
	z := Sub(rm.At(1, 0), rm.At(0, 1))
	n := Sqrt(Add(Add(Square(x), Square(y)), Square(z)))
	m := IfEqZeroD(n, Const(1), n)
	axis := ColVec(
		IfEqZeroD(n, Const(0), Div(x, m)),
		IfEqZeroD(n, Const(0), Div(y, m)),
		IfEqZeroD(n, Const(1), Div(z, m)),
	)
	return axis, angle
}

// AxisAngleFromQuaternion converts an xyzw quaternion to (axis, angle).
func AxisAngleFromQuaternion(x, y, z, w *Expr) (Mat, *Expr) {
	l := Norm(ColVec(x, y, z, w))
	x, y, z, w = Div(x, l), Div(y, l), Div(z, l), Div(w, l)
	w2 := Sqrt(Sub(Const(1), Square(w)))
	angle := Mul(Const(2), Acos(MinD(MaxD(Const(-1), w), Const(1))))
	m := IfEqZeroD(w2, Const(1), w2)
	ax := IfEqZeroD(w2, Const(0), Div(x, m))
	ay := IfEqZeroD(w2, Const(0), Div(y, m))
	az := IfEqZeroD(w2, Const(1), Div(z, m))
	return ColVec(ax, ay, az), angle
}

// QuaternionFromAxisAngle converts (axis, angle) to an xyzw quaternion.
func QuaternionFromAxisAngle(axis Mat, angle *Expr) Mat {
	half := Div(angle, Const(2))
	return ColVec(
		Mul(axis.els[0], Sin(half)),
		Mul(axis.els[1], Sin(half)),
		Mul(axis.els[2], Sin(half)),
		Cos(half),
	)
}

// QuaternionFromMatrix converts a rotation frame to an xyzw quaternion via
// the stable axis-angle extraction.
func QuaternionFromMatrix(rm Mat) Mat {
	axis, angle := AxisAngleFromMatrixStable(rm)
	return QuaternionFromAxisAngle(axis, angle)
}

// QuaternionMultiply returns q1·q2.
func QuaternionMultiply(q1, q2 Mat) Mat {
	x0, y0, z0, w0 := q2.els[0], q2.els[1], q2.els[2], q2.els[3]
	x1, y1, z1, w1 := q1.els[0], q1.els[1], q1.els[2], q1.els[3]
	return ColVec(
		Add(Add(Sub(Mul(x1, w0), Mul(z1, y0)), Mul(y1, z0)), Mul(w1, x0)),
		Add(Add(Add(Neg(Mul(x1, z0)), Mul(y1, w0)), Mul(z1, x0)), Mul(w1, y0)),
		Add(Add(Sub(Mul(x1, y0), Mul(y1, x0)), Mul(z1, w0)), Mul(w1, z0)),
		Add(Sub(Sub(Neg(Mul(x1, x0)), Mul(y1, y0)), Mul(z1, z0)), Mul(w1, w0)),
	)
}

// QuaternionConjugate returns the conjugate of q.
func QuaternionConjugate(q Mat) Mat {
	return ColVec(Neg(q.els[0]), Neg(q.els[1]), Neg(q.els[2]), q.els[3])
}

// QuaternionDiff returns p such that q0·p = q1.
func QuaternionDiff(q0, q1 Mat) Mat {
	return QuaternionMultiply(QuaternionConjugate(q0), q1)
}

// SlerpD spherically interpolates between two quaternions with smooth
// operations only, so the result may appear inside differentiated
// expressions. t runs from 0 to 1.
func SlerpD(q1, q2 Mat, t *Expr) Mat {
	cosHalfTheta := Dot(q1, q2)

	flip := Neg(cosHalfTheta)
	q2 = selectVec(flip, negVec(q2), q2)
	cosHalfTheta = IfGreaterZeroD(flip, Neg(cosHalfTheta), cosHalfTheta)

	close1 := Sub(AbsD(cosHalfTheta), Const(1))

	cosHalfTheta = MinD(Const(1), cosHalfTheta)
	cosHalfTheta = MaxD(Const(-1), cosHalfTheta)
	halfTheta := Acos(cosHalfTheta)
	sinHalfTheta := Sqrt(Sub(Const(1), Square(cosHalfTheta)))
	tiny := Sub(Const(0.001), AbsD(sinHalfTheta))

	ratioA := SafeDiv(Sin(Mul(Sub(Const(1), t), halfTheta)), sinHalfTheta)
	ratioB := SafeDiv(Sin(Mul(t, halfTheta)), sinHalfTheta)

	blended := MatAdd(q1.MatScale(ratioA), q2.MatScale(ratioB))
	midpoint := MatAdd(q1.MatScale(Const(0.5)), q2.MatScale(Const(0.5)))

	out := NewMat(4, 1)
	for i := 0; i < 4; i++ {
		inner := IfGreaterZeroD(tiny, midpoint.els[i], blended.els[i])
		out.els[i] = IfGreaterEqZeroD(close1, q1.els[i], inner)
	}
	return out
}

func negVec(v Mat) Mat {
	out := NewMat(v.rows, v.cols)
	for i := range v.els {
		out.els[i] = Neg(v.els[i])
	}
	return out
}

func selectVec(condition *Expr, ifVec, elseVec Mat) Mat {
	out := NewMat(ifVec.rows, ifVec.cols)
	for i := range ifVec.els {
		out.els[i] = IfGreaterZeroD(condition, ifVec.els[i], elseVec.els[i])
	}
	return out
}

const smallNumber = 1e-10

// Fmod returns the floating point remainder of a/b with the sign of a.
// Not differentiable; for bound expressions only.
func Fmod(a, b *Expr) *Expr {
	s := Sign(a)
	a = Abs(a)
	b = Abs(b)
	f := Sub(a, Mul(b, Floor(Div(a, b))))
	return Mul(s, IfLE(Abs(Sub(a, b)), Const(smallNumber), Const(0), f))
}

// NormalizeAnglePositive normalizes an angle to [0, 2π).
func NormalizeAnglePositive(angle *Expr) *Expr {
	twoPi := Const(2 * math.Pi)
	return Fmod(Add(Fmod(angle, twoPi), twoPi), twoPi)
}

// NormalizeAngle normalizes an angle to [-π, π].
func NormalizeAngle(angle *Expr) *Expr {
	a := NormalizeAnglePositive(angle)
	return IfGT(a, Const(math.Pi), Sub(a, Const(2*math.Pi)), a)
}

// ShortestAngularDistance returns the signed shortest rotation from one
// angle to another, always in [-π, π].
func ShortestAngularDistance(from, to *Expr) *Expr {
	return NormalizeAngle(Sub(to, from))
}

// CosineDistance returns 1 - v0·v1.
func CosineDistance(v0, v1 Mat) *Expr {
	return Sub(Const(1), Dot(v0, v1))
}
