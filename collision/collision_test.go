package collision

import (
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"github.com/Ange-Michel/wholebody/blackboard"
	"github.com/Ange-Michel/wholebody/logging"
)

func TestSphereSphere(t *testing.T) {
	a := &Sphere{Pos: r3.Vector{X: 0}, Radius: 0.5}
	b := &Sphere{Pos: r3.Vector{X: 3}, Radius: 1}
	cp := ClosestBetween(a, b)
	test.That(t, cp.MinDist, test.ShouldAlmostEqual, 1.5, 1e-9)
	test.That(t, cp.ContactNormal.X, test.ShouldAlmostEqual, -1, 1e-9)
	test.That(t, cp.PositionOnA.X, test.ShouldAlmostEqual, 0.5, 1e-9)
	test.That(t, cp.PositionOnB.X, test.ShouldAlmostEqual, 2, 1e-9)
}

func TestSphereBox(t *testing.T) {
	s := &Sphere{Pos: r3.Vector{X: 2, Y: 0, Z: 0}, Radius: 0.25}
	box := NewAxisAlignedBox(r3.Vector{}, r3.Vector{X: 1, Y: 1, Z: 1})
	cp := ClosestBetween(s, box)
	// sphere surface at 1.75, box face at 0.5
	test.That(t, cp.MinDist, test.ShouldAlmostEqual, 1.25, 1e-6)
	test.That(t, cp.PositionOnB.X, test.ShouldAlmostEqual, 0.5, 1e-6)
	test.That(t, cp.ContactNormal.X, test.ShouldAlmostEqual, 1, 1e-6)
}

func TestCapsuleBox(t *testing.T) {
	c := &Capsule{A: r3.Vector{X: 2, Y: -1}, B: r3.Vector{X: 2, Y: 1}, Radius: 0.1}
	box := NewAxisAlignedBox(r3.Vector{}, r3.Vector{X: 1, Y: 4, Z: 1})
	cp := ClosestBetween(c, box)
	test.That(t, cp.MinDist, test.ShouldAlmostEqual, 1.4, 1e-6)
	test.That(t, cp.ContactNormal.X, test.ShouldAlmostEqual, 1, 1e-6)
}

func TestPenetration(t *testing.T) {
	a := &Sphere{Pos: r3.Vector{X: 0.1}, Radius: 1}
	b := &Sphere{Pos: r3.Vector{X: -0.1}, Radius: 1}
	cp := ClosestBetween(a, b)
	test.That(t, cp.MinDist, test.ShouldBeLessThan, 0)
	test.That(t, cp.ContactNormal.X, test.ShouldAlmostEqual, 1, 1e-9)
}

func TestBoxBoxSeparated(t *testing.T) {
	a := NewAxisAlignedBox(r3.Vector{X: 0}, r3.Vector{X: 1, Y: 1, Z: 1})
	b := NewAxisAlignedBox(r3.Vector{X: 4}, r3.Vector{X: 2, Y: 2, Z: 2})
	cp := ClosestBetween(a, b)
	test.That(t, cp.MinDist, test.ShouldAlmostEqual, 2.5, 1e-6)
}

func TestCheckerBroadPhase(t *testing.T) {
	logger := logging.NewTestLogger(t)
	checker := NewChecker(logger)
	link := Object{Name: "hand", Geom: &Sphere{Pos: r3.Vector{}, Radius: 0.05}}
	near := Object{Name: "mug", Geom: &Sphere{Pos: r3.Vector{X: 0.3}, Radius: 0.05}}
	far := Object{Name: "moon", Geom: &Sphere{Pos: r3.Vector{X: 400}, Radius: 1}}

	results := checker.Closest([]Object{link}, []Object{near, far}, nil)
	cp, ok := results["hand"]
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, cp.MinDist, test.ShouldAlmostEqual, 0.2, 1e-6)

	// with only a distant body, the far default is published
	results = checker.Closest([]Object{link}, []Object{far}, nil)
	test.That(t, results["hand"].MinDist, test.ShouldEqual, farDistance)
}

func TestCheckerAllowedFilter(t *testing.T) {
	logger := logging.NewTestLogger(t)
	checker := NewChecker(logger)
	hand := Object{Name: "hand", Geom: &Sphere{Pos: r3.Vector{}, Radius: 0.05}}
	handle := Object{Name: "handle", Geom: &Sphere{Pos: r3.Vector{X: 0.2}, Radius: 0.05}}

	results := checker.Closest([]Object{hand}, []Object{handle}, func(link, body string) bool {
		return !(link == "hand" && body == "handle")
	})
	test.That(t, results["hand"].MinDist, test.ShouldEqual, farDistance)
}

func TestPublish(t *testing.T) {
	store := blackboard.New()
	cp := ClosestPoint{
		MinDist:       0.07,
		ContactNormal: r3.Vector{Z: 1},
		PositionOnA:   r3.Vector{X: 1, Y: 2, Z: 3},
		PositionOnB:   r3.Vector{X: 1, Y: 2, Z: 2.93},
	}
	Publish(store, "hand", cp)

	f, err := store.GetFloat(MinDistPath("hand"))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, f, test.ShouldEqual, 0.07)
	f, err = store.GetFloat(ContactNormalPath("hand", "z"))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, f, test.ShouldEqual, 1.0)
	f, err = store.GetFloat(PositionOnAPath("hand", "y"))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, f, test.ShouldEqual, 2.0)
	f, err = store.GetFloat(PositionOnBPath("hand", "z"))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, f, test.ShouldEqual, 2.93)
}
