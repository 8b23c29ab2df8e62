package robot

import (
	"math"
	"sort"
	"testing"

	"go.viam.com/test"

	"github.com/Ange-Michel/wholebody/blackboard"
	"github.com/Ange-Michel/wholebody/symbolic"
)

const armJSON = `{
	"name": "two_link_arm",
	"root": "base",
	"joints": [
		{
			"name": "shoulder", "kind": "revolute",
			"parent": "base", "child": "upper_arm",
			"axis": [0, 0, 1],
			"limit": {"min": -3.14159265, "max": 3.14159265, "velocity": 1},
			"weight": 0.001, "controlled": true
		},
		{
			"name": "elbow", "kind": "revolute",
			"parent": "upper_arm", "child": "forearm",
			"axis": [0, 0, 1],
			"origin": {"xyz": [1, 0, 0]},
			"limit": {"min": -2.5, "max": 2.5, "velocity": 1},
			"weight": 0.001, "controlled": true
		}
	],
	"links": [
		{"name": "forearm", "geometry": {"kind": "sphere", "radius": 0.05, "origin": {"xyz": [1, 0, 0]}}}
	]
}`

func parseArm(t *testing.T) *Model {
	t.Helper()
	m, err := ParseModelJSON([]byte(armJSON), Defaults{VelocityLimit: 1, JointWeight: 0.001})
	test.That(t, err, test.ShouldBeNil)
	return m
}

func fkNumeric(t *testing.T, store *blackboard.Store, m *Model, root, tip string, joints map[string]float64) []float64 {
	t.Helper()
	frame, err := m.FK(store, root, tip)
	test.That(t, err, test.ShouldBeNil)
	for name, q := range joints {
		store.Set(PositionPath(name), q)
	}
	symSet := map[symbolic.Symbol]struct{}{}
	for _, e := range frame.Elements() {
		e.FreeSymbols(symSet)
	}
	syms := make([]symbolic.Symbol, 0, len(symSet))
	for s := range symSet {
		syms = append(syms, s)
	}
	sort.Slice(syms, func(i, j int) bool { return syms[i] < syms[j] })
	prog, err := symbolic.Compile(frame, syms)
	test.That(t, err, test.ShouldBeNil)
	in := make([]float64, len(syms))
	test.That(t, store.Resolve(syms, in), test.ShouldBeNil)
	out := make([]float64, 16)
	test.That(t, prog.Eval(in, out), test.ShouldBeNil)
	return out
}

func TestParseModel(t *testing.T) {
	m := parseArm(t)
	test.That(t, m.Name(), test.ShouldEqual, "two_link_arm")
	test.That(t, m.Root(), test.ShouldEqual, "base")
	test.That(t, len(m.ControlledJoints()), test.ShouldEqual, 2)
	test.That(t, m.ControlledJoints()[0].Name, test.ShouldEqual, "shoulder")

	_, err := ParseModelJSON([]byte(`{"name":"x","root":"b","joints":[{"name":"j","kind":"helical","parent":"b","child":"c"}]}`), Defaults{})
	test.That(t, err, test.ShouldNotBeNil)
}

func TestFKZeroPose(t *testing.T) {
	m := parseArm(t)
	store := blackboard.New()
	out := fkNumeric(t, store, m, "base", "forearm", map[string]float64{"shoulder": 0, "elbow": 0})
	// elbow origin puts the forearm frame 1m along x
	test.That(t, out[3], test.ShouldAlmostEqual, 1, 1e-12)
	test.That(t, out[7], test.ShouldAlmostEqual, 0, 1e-12)
	test.That(t, out[0], test.ShouldAlmostEqual, 1, 1e-12)
}

func TestFKBentElbow(t *testing.T) {
	m := parseArm(t)
	store := blackboard.New()
	out := fkNumeric(t, store, m, "base", "forearm", map[string]float64{
		"shoulder": math.Pi / 2,
		"elbow":    -math.Pi / 2,
	})
	// shoulder rotates the 1m upper arm onto +y; forearm frame ends up there
	test.That(t, out[3], test.ShouldAlmostEqual, 0, 1e-9)
	test.That(t, out[7], test.ShouldAlmostEqual, 1, 1e-9)
	// net orientation is identity again
	test.That(t, out[0], test.ShouldAlmostEqual, 1, 1e-9)
	test.That(t, out[5], test.ShouldAlmostEqual, 1, 1e-9)
}

func TestFKLiveRebinding(t *testing.T) {
	m := parseArm(t)
	store := blackboard.New()
	frame, err := m.FK(store, "base", "upper_arm")
	test.That(t, err, test.ShouldBeNil)
	syms := []symbolic.Symbol{m.PositionSymbol(store, "shoulder")}
	prog, err := symbolic.Compile(frame, syms)
	test.That(t, err, test.ShouldBeNil)

	out := make([]float64, 16)
	in := make([]float64, 1)
	store.Set(PositionPath("shoulder"), 0.0)
	test.That(t, store.Resolve(syms, in), test.ShouldBeNil)
	test.That(t, prog.Eval(in, out), test.ShouldBeNil)
	test.That(t, out[0], test.ShouldAlmostEqual, 1, 1e-12)

	// same compiled program, new store contents
	store.Set(PositionPath("shoulder"), math.Pi)
	test.That(t, store.Resolve(syms, in), test.ShouldBeNil)
	test.That(t, prog.Eval(in, out), test.ShouldBeNil)
	test.That(t, out[0], test.ShouldAlmostEqual, -1, 1e-9)
}

func TestChainErrors(t *testing.T) {
	m := parseArm(t)
	store := blackboard.New()
	_, err := m.FK(store, "base", "nonexistent")
	test.That(t, err, test.ShouldNotBeNil)
	_, err = m.FK(store, "forearm", "base")
	test.That(t, err, test.ShouldNotBeNil)
}

func TestAttachDetach(t *testing.T) {
	m := parseArm(t)
	store := blackboard.New()
	geom := &GeometrySpec{Kind: "sphere", Radius: 0.02}
	err := m.Attach("cup", "forearm", PoseSpec{XYZ: [3]float64{0.1, 0, 0}}, geom)
	test.That(t, err, test.ShouldBeNil)

	// FK reaches through the fixed joint
	out := fkNumeric(t, store, m, "base", "cup", map[string]float64{"shoulder": 0, "elbow": 0})
	test.That(t, out[3], test.ShouldAlmostEqual, 1.1, 1e-9)

	// second attach with the same name fails
	test.That(t, m.Attach("cup", "forearm", PoseSpec{}, geom), test.ShouldNotBeNil)

	test.That(t, m.Detach("cup"), test.ShouldBeNil)
	_, err = m.FK(store, "base", "cup")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, m.Detach("cup"), test.ShouldNotBeNil)
}

func TestControlledLinks(t *testing.T) {
	m := parseArm(t)
	links := m.ControlledLinks()
	test.That(t, links, test.ShouldContain, "forearm")
	// upper_arm has no geometry, so it is not queried
	test.That(t, links, test.ShouldNotContain, "upper_arm")
}
