package collision

import (
	"math"

	"github.com/golang/geo/r3"
)

// ClosestPoint is the narrow-phase result for one geometry pair.
type ClosestPoint struct {
	// MinDist is the signed surface distance; negative means penetration.
	MinDist float64
	// ContactNormal points from the other body toward the link, world frame.
	ContactNormal r3.Vector
	// PositionOnA is the closest point on the link surface.
	PositionOnA r3.Vector
	// PositionOnB is the closest point on the other body's surface.
	PositionOnB r3.Vector
}

type simplexVertex struct {
	p r3.Vector // point in the Minkowski difference a-b
	a r3.Vector // support on A
}

const (
	gjkMaxIter = 100
	gjkEps     = 1e-12
)

// ClosestBetween returns closest-point information for a pair of convex
// geometries. Penetration depth for overlapping cores is approximate; the
// direction between centers stands in for the contact normal there.
func ClosestBetween(a, b Geometry) ClosestPoint {
	dir := a.Center().Sub(b.Center())
	if dir.Norm2() < gjkEps {
		dir = r3.Vector{Z: 1}
	}
	sa := a.Support(dir.Mul(-1))
	sb := b.Support(dir)
	simplex := []simplexVertex{{p: sa.Sub(sb), a: sa}}
	v := simplex[0].p
	lambda := []float64{1}

	for iter := 0; iter < gjkMaxIter; iter++ {
		if v.Norm2() < gjkEps {
			return penetrating(a, b)
		}
		d := v.Mul(-1)
		sa = a.Support(d)
		sb = b.Support(d.Mul(-1))
		w := sa.Sub(sb)
		// Termination: no meaningful progress toward the origin.
		if v.Norm2()-v.Dot(w) <= 1e-10*v.Norm2() {
			break
		}
		simplex = append(simplex, simplexVertex{p: w, a: sa})
		var intersecting bool
		simplex, lambda, v, intersecting = closestOnSimplex(simplex)
		if intersecting {
			return penetrating(a, b)
		}
	}

	wa := r3.Vector{}
	for i, vert := range simplex {
		wa = wa.Add(vert.a.Mul(lambda[i]))
	}
	wb := wa.Sub(v)
	coreDist := v.Norm()
	n := v.Mul(1 / coreDist)
	dist := coreDist - a.Margin() - b.Margin()
	return ClosestPoint{
		MinDist:       dist,
		ContactNormal: n,
		PositionOnA:   wa.Sub(n.Mul(a.Margin())),
		PositionOnB:   wb.Add(n.Mul(b.Margin())),
	}
}

func penetrating(a, b Geometry) ClosestPoint {
	n := a.Center().Sub(b.Center())
	if n.Norm2() < gjkEps {
		n = r3.Vector{Z: 1}
	}
	n = n.Normalize()
	depth := a.Margin() + b.Margin()
	mid := a.Center().Add(b.Center()).Mul(0.5)
	return ClosestPoint{
		MinDist:       -depth,
		ContactNormal: n,
		PositionOnA:   mid.Add(n.Mul(depth / 2)),
		PositionOnB:   mid.Sub(n.Mul(depth / 2)),
	}
}

// closestOnSimplex reduces the simplex to the feature supporting the point
// closest to the origin and returns that point with its barycentric
// coordinates. intersecting is set when the origin lies inside a
// tetrahedron.
func closestOnSimplex(s []simplexVertex) ([]simplexVertex, []float64, r3.Vector, bool) {
	switch len(s) {
	case 1:
		return s, []float64{1}, s[0].p, false
	case 2:
		return closestOnSegment(s)
	case 3:
		keep, lambda, v := closestOnTriangle(s)
		return keep, lambda, v, false
	case 4:
		return closestOnTetrahedron(s)
	}
	panic("collision: invalid simplex")
}

func closestOnSegment(s []simplexVertex) ([]simplexVertex, []float64, r3.Vector, bool) {
	ap := s[0].p
	bp := s[1].p
	ab := bp.Sub(ap)
	denom := ab.Norm2()
	if denom < gjkEps {
		return s[:1], []float64{1}, ap, false
	}
	t := -ap.Dot(ab) / denom
	if t <= 0 {
		return s[:1], []float64{1}, ap, false
	}
	if t >= 1 {
		return []simplexVertex{s[1]}, []float64{1}, bp, false
	}
	v := ap.Add(ab.Mul(t))
	return s, []float64{1 - t, t}, v, false
}

func closestOnTriangle(s []simplexVertex) ([]simplexVertex, []float64, r3.Vector) {
	ap, bp, cp := s[0].p, s[1].p, s[2].p
	ab := bp.Sub(ap)
	ac := cp.Sub(ap)
	aq := ap.Mul(-1)

	d1 := ab.Dot(aq)
	d2 := ac.Dot(aq)
	if d1 <= 0 && d2 <= 0 {
		return s[:1], []float64{1}, ap
	}

	bq := bp.Mul(-1)
	d3 := ab.Dot(bq)
	d4 := ac.Dot(bq)
	if d3 >= 0 && d4 <= d3 {
		return []simplexVertex{s[1]}, []float64{1}, bp
	}

	vc := d1*d4 - d3*d2
	if vc <= 0 && d1 >= 0 && d3 <= 0 {
		t := d1 / (d1 - d3)
		return []simplexVertex{s[0], s[1]}, []float64{1 - t, t}, ap.Add(ab.Mul(t))
	}

	cq := cp.Mul(-1)
	d5 := ab.Dot(cq)
	d6 := ac.Dot(cq)
	if d6 >= 0 && d5 <= d6 {
		return []simplexVertex{s[2]}, []float64{1}, cp
	}

	vb := d5*d2 - d1*d6
	if vb <= 0 && d2 >= 0 && d6 <= 0 {
		t := d2 / (d2 - d6)
		return []simplexVertex{s[0], s[2]}, []float64{1 - t, t}, ap.Add(ac.Mul(t))
	}

	va := d3*d6 - d5*d4
	if va <= 0 && (d4-d3) >= 0 && (d5-d6) >= 0 {
		t := (d4 - d3) / ((d4 - d3) + (d5 - d6))
		return []simplexVertex{s[1], s[2]}, []float64{1 - t, t}, bp.Add(cp.Sub(bp).Mul(t))
	}

	denom := 1 / (va + vb + vc)
	lb := vb * denom
	lc := vc * denom
	la := 1 - lb - lc
	v := ap.Mul(la).Add(bp.Mul(lb)).Add(cp.Mul(lc))
	return s, []float64{la, lb, lc}, v
}

func closestOnTetrahedron(s []simplexVertex) ([]simplexVertex, []float64, r3.Vector, bool) {
	faces := [4][3]int{{0, 1, 2}, {0, 1, 3}, {0, 2, 3}, {1, 2, 3}}
	inside := true
	bestDist := math.Inf(1)
	var bestKeep []simplexVertex
	var bestLambda []float64
	var bestV r3.Vector
	for _, f := range faces {
		a, b, c := s[f[0]].p, s[f[1]].p, s[f[2]].p
		opposite := s[6-f[0]-f[1]-f[2]].p
		n := b.Sub(a).Cross(c.Sub(a))
		if n.Norm2() < gjkEps {
			inside = false
			continue
		}
		sideOrigin := n.Dot(a.Mul(-1))
		sideOpposite := n.Dot(opposite.Sub(a))
		// Origin and the opposite vertex on the same side of every face
		// means the origin is enclosed.
		if sideOrigin*sideOpposite < 0 {
			inside = false
		}
		tri := []simplexVertex{s[f[0]], s[f[1]], s[f[2]]}
		keep, lambda, v := closestOnTriangle(tri)
		if d := v.Norm2(); d < bestDist {
			bestDist = d
			bestKeep = keep
			bestLambda = lambda
			bestV = v
		}
	}
	if inside {
		return s, nil, r3.Vector{}, true
	}
	return bestKeep, bestLambda, bestV, false
}
