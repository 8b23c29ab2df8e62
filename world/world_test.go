package world

import (
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"github.com/Ange-Michel/wholebody/logging"
	"github.com/Ange-Michel/wholebody/robot"
)

const gantryJSON = `{
	"name": "gantry",
	"root": "base",
	"joints": [
		{"name": "x", "kind": "planar-base-x", "parent": "base", "child": "carriage",
		 "limit": {"min": -2, "max": 2, "velocity": 1}, "weight": 0.001, "controlled": true}
	],
	"links": [
		{"name": "carriage", "geometry": {"kind": "sphere", "radius": 0.05}}
	]
}`

func newService(t *testing.T) *Service {
	t.Helper()
	model, err := robot.ParseModelJSON([]byte(gantryJSON), robot.Defaults{VelocityLimit: 1, JointWeight: 0.001})
	test.That(t, err, test.ShouldBeNil)
	return NewService(model, logging.NewTestLogger(t))
}

func tablePose() PoseStamped {
	return PoseStamped{FrameID: "world", Position: r3.Vector{X: 1}, Orientation: [4]float64{0, 0, 0, 1}}
}

func TestAddDuplicateRejected(t *testing.T) {
	s := newService(t)
	table := Body{Name: "table", Kind: MeshBody, MeshPath: "meshes/table.stl", Dims: r3.Vector{X: 1, Y: 2, Z: 0.8}}

	test.That(t, s.Add(table, tablePose(), false), test.ShouldBeNil)
	err := s.Add(table, tablePose(), false)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, CodeOf(err), test.ShouldEqual, DuplicateBody)

	// the first table is untouched
	test.That(t, s.Has("table"), test.ShouldBeTrue)
	test.That(t, len(s.Obstacles()), test.ShouldEqual, 1)
}

func TestCorruptShapeRejected(t *testing.T) {
	s := newService(t)
	cone := Body{Name: "cone", Kind: PrimitiveBody, Primitive: "cone", Radius: 0.05, Length: 0.01}
	err := s.Add(cone, tablePose(), false)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, CodeOf(err), test.ShouldEqual, CorruptShape)
	test.That(t, s.Has("cone"), test.ShouldBeFalse)
	test.That(t, len(s.Obstacles()), test.ShouldEqual, 0)
}

func TestRemove(t *testing.T) {
	s := newService(t)
	ball := Body{Name: "ball", Kind: PrimitiveBody, Primitive: SpherePrimitive, Radius: 0.1}
	test.That(t, s.Add(ball, tablePose(), false), test.ShouldBeNil)
	test.That(t, s.Remove("ball"), test.ShouldBeNil)
	err := s.Remove("ball")
	test.That(t, CodeOf(err), test.ShouldEqual, MissingBody)
}

func TestRemoveAll(t *testing.T) {
	s := newService(t)
	for _, name := range []string{"a", "b", "c"} {
		b := Body{Name: name, Kind: PrimitiveBody, Primitive: BoxPrimitive, Dims: r3.Vector{X: 1, Y: 1, Z: 1}}
		test.That(t, s.Add(b, tablePose(), false), test.ShouldBeNil)
	}
	s.RemoveAll()
	test.That(t, len(s.Obstacles()), test.ShouldEqual, 0)
}

func TestAttachDetach(t *testing.T) {
	s := newService(t)
	wand := Body{Name: "wand", Kind: PrimitiveBody, Primitive: CylinderPrimitive, Radius: 0.005, Length: 0.15}
	pose := PoseStamped{FrameID: "carriage", Orientation: [4]float64{0, 0, 0, 1}}

	test.That(t, s.Add(wand, pose, true), test.ShouldBeNil)
	// attached bodies are not free obstacles
	test.That(t, len(s.Obstacles()), test.ShouldEqual, 0)
	// attach onto an unknown link
	err := s.Add(Body{Name: "w2", Kind: PrimitiveBody, Primitive: SpherePrimitive, Radius: 0.01},
		PoseStamped{FrameID: "no_such_link"}, true)
	test.That(t, CodeOf(err), test.ShouldEqual, MissingBody)

	test.That(t, s.Detach("wand"), test.ShouldBeNil)
	// after detaching it becomes a free body again
	test.That(t, s.Has("wand"), test.ShouldBeTrue)
	test.That(t, len(s.Obstacles()), test.ShouldEqual, 1)
	test.That(t, CodeOf(s.Detach("wand")), test.ShouldEqual, MissingBody)
}

func TestObstaclesGeometry(t *testing.T) {
	s := newService(t)
	box := Body{Name: "crate", Kind: PrimitiveBody, Primitive: BoxPrimitive, Dims: r3.Vector{X: 2, Y: 2, Z: 2}}
	test.That(t, s.Add(box, tablePose(), false), test.ShouldBeNil)
	obstacles := s.Obstacles()
	test.That(t, len(obstacles), test.ShouldEqual, 1)
	aabb := obstacles[0].Geom.AABB()
	test.That(t, aabb.Min.X, test.ShouldAlmostEqual, 0, 1e-9)
	test.That(t, aabb.Max.X, test.ShouldAlmostEqual, 2, 1e-9)
}

func TestCodeOf(t *testing.T) {
	test.That(t, CodeOf(nil), test.ShouldEqual, Success)
	test.That(t, CodeOf(&UnknownBodyError{Name: "x"}), test.ShouldEqual, UnknownBody)
}
