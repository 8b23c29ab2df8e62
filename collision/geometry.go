// Package collision computes closest-point geometry between robot links and
// world bodies and publishes the per-link results for the constraint
// evaluators to consume.
package collision

import (
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

// Geometry is a posed convex shape. Shapes are described as a convex core
// plus a margin (radius) so a single narrow phase serves all pairs.
type Geometry interface {
	// Support returns the core support point in world frame for direction d.
	Support(d r3.Vector) r3.Vector
	// Margin is the radius inflated around the core.
	Margin() float64
	// Center returns a representative interior point.
	Center() r3.Vector
	// AABB returns the world-frame bounding box including the margin.
	AABB() AABB
}

// AABB is an axis-aligned bounding box.
type AABB struct {
	Min, Max r3.Vector
}

// Overlaps reports whether two boxes intersect.
func (b AABB) Overlaps(o AABB) bool {
	return b.Min.X <= o.Max.X && o.Min.X <= b.Max.X &&
		b.Min.Y <= o.Max.Y && o.Min.Y <= b.Max.Y &&
		b.Min.Z <= o.Max.Z && o.Min.Z <= b.Max.Z
}

func (b AABB) expand(m float64) AABB {
	d := r3.Vector{X: m, Y: m, Z: m}
	return AABB{Min: b.Min.Sub(d), Max: b.Max.Add(d)}
}

// Sphere is a ball: a point core with a margin.
type Sphere struct {
	Pos    r3.Vector
	Radius float64
}

// Support implements Geometry.
func (s *Sphere) Support(r3.Vector) r3.Vector { return s.Pos }

// Margin implements Geometry.
func (s *Sphere) Margin() float64 { return s.Radius }

// Center implements Geometry.
func (s *Sphere) Center() r3.Vector { return s.Pos }

// AABB implements Geometry.
func (s *Sphere) AABB() AABB {
	return AABB{Min: s.Pos, Max: s.Pos}.expand(s.Radius)
}

// Capsule is a segment core with a margin. Cylinders are treated as
// capsules of the same radius for narrow-phase purposes.
type Capsule struct {
	A, B   r3.Vector
	Radius float64
}

// Support implements Geometry.
func (c *Capsule) Support(d r3.Vector) r3.Vector {
	if c.A.Dot(d) >= c.B.Dot(d) {
		return c.A
	}
	return c.B
}

// Margin implements Geometry.
func (c *Capsule) Margin() float64 { return c.Radius }

// Center implements Geometry.
func (c *Capsule) Center() r3.Vector { return c.A.Add(c.B).Mul(0.5) }

// AABB implements Geometry.
func (c *Capsule) AABB() AABB {
	return AABB{
		Min: r3.Vector{X: min(c.A.X, c.B.X), Y: min(c.A.Y, c.B.Y), Z: min(c.A.Z, c.B.Z)},
		Max: r3.Vector{X: max(c.A.X, c.B.X), Y: max(c.A.Y, c.B.Y), Z: max(c.A.Z, c.B.Z)},
	}.expand(c.Radius)
}

// Box is an oriented box. Axes are the unit directions of its local frame.
type Box struct {
	Pos  r3.Vector
	Axes [3]r3.Vector
	Half [3]float64
}

// NewAxisAlignedBox returns a box aligned with the world axes.
func NewAxisAlignedBox(center r3.Vector, dims r3.Vector) *Box {
	return &Box{
		Pos: center,
		Axes: [3]r3.Vector{
			{X: 1}, {Y: 1}, {Z: 1},
		},
		Half: [3]float64{dims.X / 2, dims.Y / 2, dims.Z / 2},
	}
}

// Support implements Geometry.
func (b *Box) Support(d r3.Vector) r3.Vector {
	p := b.Pos
	for i := 0; i < 3; i++ {
		if d.Dot(b.Axes[i]) >= 0 {
			p = p.Add(b.Axes[i].Mul(b.Half[i]))
		} else {
			p = p.Sub(b.Axes[i].Mul(b.Half[i]))
		}
	}
	return p
}

// Margin implements Geometry.
func (b *Box) Margin() float64 { return 0 }

// Center implements Geometry.
func (b *Box) Center() r3.Vector { return b.Pos }

// AABB implements Geometry.
func (b *Box) AABB() AABB {
	e := r3.Vector{}
	for i := 0; i < 3; i++ {
		a := b.Axes[i].Mul(b.Half[i])
		e = e.Add(r3.Vector{X: absf(a.X), Y: absf(a.Y), Z: absf(a.Z)})
	}
	return AABB{Min: b.Pos.Sub(e), Max: b.Pos.Add(e)}
}

func absf(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

func min(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func max(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

// Pose places a geometry described in a link frame into the world frame.
type Pose struct {
	Pos r3.Vector
	Rot [3]r3.Vector // world directions of the local x, y, z axes
}

// IdentityPose returns the neutral placement.
func IdentityPose() Pose {
	return Pose{Rot: [3]r3.Vector{{X: 1}, {Y: 1}, {Z: 1}}}
}

// Apply transforms a local point into the world frame.
func (p Pose) Apply(local r3.Vector) r3.Vector {
	return p.Pos.
		Add(p.Rot[0].Mul(local.X)).
		Add(p.Rot[1].Mul(local.Y)).
		Add(p.Rot[2].Mul(local.Z))
}

// ApplyDir rotates a local direction into the world frame.
func (p Pose) ApplyDir(local r3.Vector) r3.Vector {
	return p.Rot[0].Mul(local.X).
		Add(p.Rot[1].Mul(local.Y)).
		Add(p.Rot[2].Mul(local.Z))
}

// ShapeSpec is a pose-free shape description, placed by PoseGeometry.
type ShapeSpec struct {
	Kind   string // sphere, box, capsule, cylinder
	Radius float64
	Length float64
	Dims   r3.Vector
}

// PoseGeometry instantiates a shape at a world pose.
func PoseGeometry(spec ShapeSpec, pose Pose) (Geometry, error) {
	switch spec.Kind {
	case "sphere":
		return &Sphere{Pos: pose.Pos, Radius: spec.Radius}, nil
	case "capsule", "cylinder":
		half := pose.ApplyDir(r3.Vector{Z: spec.Length / 2})
		return &Capsule{A: pose.Pos.Sub(half), B: pose.Pos.Add(half), Radius: spec.Radius}, nil
	case "box":
		return &Box{
			Pos:  pose.Pos,
			Axes: pose.Rot,
			Half: [3]float64{spec.Dims.X / 2, spec.Dims.Y / 2, spec.Dims.Z / 2},
		}, nil
	}
	return nil, errors.Errorf("unsupported shape kind %q", spec.Kind)
}
