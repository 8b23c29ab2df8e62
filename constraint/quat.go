package constraint

import "math"

// Numeric quaternion helpers for goal construction. Quaternions are xyzw.

func normalizePose(p Pose) Pose {
	q := p.Orientation
	n := math.Sqrt(q[0]*q[0] + q[1]*q[1] + q[2]*q[2] + q[3]*q[3])
	if n == 0 {
		p.Orientation = [4]float64{0, 0, 0, 1}
		return p
	}
	for i := range q {
		q[i] /= n
	}
	p.Orientation = q
	return p
}

func quatFromAxisAngle(axis [3]float64, angle float64) [4]float64 {
	n := math.Sqrt(axis[0]*axis[0] + axis[1]*axis[1] + axis[2]*axis[2])
	if n == 0 {
		return [4]float64{0, 0, 0, 1}
	}
	s := math.Sin(angle/2) / n
	return [4]float64{axis[0] * s, axis[1] * s, axis[2] * s, math.Cos(angle / 2)}
}

func quatMultiply(q1, q2 [4]float64) [4]float64 {
	x1, y1, z1, w1 := q1[0], q1[1], q1[2], q1[3]
	x2, y2, z2, w2 := q2[0], q2[1], q2[2], q2[3]
	return [4]float64{
		w1*x2 + x1*w2 + y1*z2 - z1*y2,
		w1*y2 - x1*z2 + y1*w2 + z1*x2,
		w1*z2 + x1*y2 - y1*x2 + z1*w2,
		w1*w2 - x1*x2 - y1*y2 - z1*z2,
	}
}

func rotateVec(q [4]float64, v [3]float64) [3]float64 {
	qv := [4]float64{v[0], v[1], v[2], 0}
	conj := [4]float64{-q[0], -q[1], -q[2], q[3]}
	r := quatMultiply(quatMultiply(q, qv), conj)
	return [3]float64{r[0], r[1], r[2]}
}

// rotateAboutPoint rotates pose about a pivot point by (axis, angle).
func rotateAboutPoint(p Pose, pivot [3]float64, axis [3]float64, angle float64) Pose {
	q := quatFromAxisAngle(axis, angle)
	rel := [3]float64{
		p.Position[0] - pivot[0],
		p.Position[1] - pivot[1],
		p.Position[2] - pivot[2],
	}
	rot := rotateVec(q, rel)
	return Pose{
		Position: [3]float64{
			pivot[0] + rot[0],
			pivot[1] + rot[1],
			pivot[2] + rot[2],
		},
		Orientation: quatMultiply(q, p.Orientation),
	}
}

func translatePose(p Pose, axis [3]float64, distance float64) Pose {
	n := math.Sqrt(axis[0]*axis[0] + axis[1]*axis[1] + axis[2]*axis[2])
	if n == 0 {
		return p
	}
	out := p
	for i := 0; i < 3; i++ {
		out.Position[i] += axis[i] / n * distance
	}
	return out
}
