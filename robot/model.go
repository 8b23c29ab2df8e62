// Package robot models the controlled mechanism: its joints, limits, link
// geometry, and symbolic forward kinematics.
package robot

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"

	"github.com/Ange-Michel/wholebody/blackboard"
	"github.com/Ange-Michel/wholebody/symbolic"
)

// JointKind enumerates the supported joint types.
type JointKind string

// Supported joint kinds.
const (
	Revolute      JointKind = "revolute"
	Continuous    JointKind = "continuous"
	Prismatic     JointKind = "prismatic"
	PlanarBaseX   JointKind = "planar-base-x"
	PlanarBaseY   JointKind = "planar-base-y"
	PlanarBaseYaw JointKind = "planar-base-yaw"
	fixed         JointKind = "fixed"
)

// PoseSpec is a static transform in a model description.
type PoseSpec struct {
	XYZ [3]float64 `json:"xyz"`
	RPY [3]float64 `json:"rpy"`
}

func (p PoseSpec) frame() symbolic.Mat {
	t := symbolic.Translation3(symbolic.Const(p.XYZ[0]), symbolic.Const(p.XYZ[1]), symbolic.Const(p.XYZ[2]))
	r := symbolic.RotationRPY(symbolic.Const(p.RPY[0]), symbolic.Const(p.RPY[1]), symbolic.Const(p.RPY[2]))
	return symbolic.MatMul(t, r)
}

// Limit bounds a joint's position and velocity.
type Limit struct {
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
	Velocity float64 `json:"velocity"`
}

// Joint connects a parent link to a child link.
type Joint struct {
	Name       string     `json:"name"`
	Kind       JointKind  `json:"kind"`
	Parent     string     `json:"parent"`
	Child      string     `json:"child"`
	Axis       [3]float64 `json:"axis"`
	Origin     PoseSpec   `json:"origin"`
	Limit      Limit      `json:"limit"`
	Weight     float64    `json:"weight"`
	Controlled bool       `json:"controlled"`
}

// IsContinuous reports whether the joint wraps around.
func (j *Joint) IsContinuous() bool { return j.Kind == Continuous }

// GeometrySpec describes a link's collision shape in the link frame.
type GeometrySpec struct {
	Kind   string     `json:"kind"` // sphere, box, capsule
	Radius float64    `json:"radius,omitempty"`
	Length float64    `json:"length,omitempty"`
	Dims   [3]float64 `json:"dims,omitempty"`
	Origin PoseSpec   `json:"origin"`
}

// Link is a rigid body of the mechanism.
type Link struct {
	Name     string        `json:"name"`
	Geometry *GeometrySpec `json:"geometry,omitempty"`
}

type modelJSON struct {
	Name   string   `json:"name"`
	Root   string   `json:"root"`
	Joints []*Joint `json:"joints"`
	Links  []*Link  `json:"links"`
}

// Model is a parsed mechanism description.
type Model struct {
	name        string
	root        string
	joints      []*Joint
	jointByName map[string]*Joint
	parentJoint map[string]*Joint // child link -> joint above it
	links       map[string]*Link
	controlled  []*Joint
}

// Defaults supply limits and weights for joints that omit them.
type Defaults struct {
	VelocityLimit float64
	JointWeight   float64
}

// ParseModelJSON parses a model description, filling absent velocity limits
// and weights from defaults.
func ParseModelJSON(data []byte, defaults Defaults) (*Model, error) {
	var mj modelJSON
	if err := json.Unmarshal(data, &mj); err != nil {
		return nil, errors.Wrap(err, "cannot parse model")
	}
	if mj.Name == "" {
		return nil, errors.New("model has no name")
	}
	if mj.Root == "" {
		return nil, errors.New("model has no root link")
	}
	m := &Model{
		name:        mj.Name,
		root:        mj.Root,
		jointByName: map[string]*Joint{},
		parentJoint: map[string]*Joint{},
		links:       map[string]*Link{},
	}
	m.links[mj.Root] = &Link{Name: mj.Root}
	for _, l := range mj.Links {
		m.links[l.Name] = l
	}
	for _, j := range mj.Joints {
		switch j.Kind {
		case Revolute, Continuous, Prismatic, PlanarBaseX, PlanarBaseY, PlanarBaseYaw:
		default:
			return nil, errors.Errorf("joint %q has unsupported kind %q", j.Name, j.Kind)
		}
		if _, ok := m.jointByName[j.Name]; ok {
			return nil, errors.Errorf("duplicate joint %q", j.Name)
		}
		if _, ok := m.parentJoint[j.Child]; ok {
			return nil, errors.Errorf("link %q has two parent joints", j.Child)
		}
		if j.Weight == 0 {
			j.Weight = defaults.JointWeight
		}
		if j.Limit.Velocity == 0 {
			j.Limit.Velocity = defaults.VelocityLimit
		}
		if _, ok := m.links[j.Child]; !ok {
			m.links[j.Child] = &Link{Name: j.Child}
		}
		m.jointByName[j.Name] = j
		m.parentJoint[j.Child] = j
		m.joints = append(m.joints, j)
		if j.Controlled {
			m.controlled = append(m.controlled, j)
		}
	}
	return m, nil
}

// ParseModelJSONFile reads and parses a model description file.
func ParseModelJSONFile(path string, defaults Defaults) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseModelJSON(data, defaults)
}

// Name returns the model name.
func (m *Model) Name() string { return m.name }

// Root returns the root link name.
func (m *Model) Root() string { return m.root }

// Joint returns the named joint.
func (m *Model) Joint(name string) (*Joint, bool) {
	j, ok := m.jointByName[name]
	return j, ok
}

// Link returns the named link.
func (m *Model) Link(name string) (*Link, bool) {
	l, ok := m.links[name]
	return l, ok
}

// Links returns every link of the model.
func (m *Model) Links() []*Link {
	out := make([]*Link, 0, len(m.links))
	for _, l := range m.links {
		out = append(out, l)
	}
	return out
}

// ControlledJoints returns the controllable joints in declaration order.
// This ordering is the authoritative layout of the velocity vector.
func (m *Model) ControlledJoints() []*Joint { return m.controlled }

// ControlledLinks returns the links at or below any controlled joint that
// carry collision geometry, the set the collision module queries by default.
func (m *Model) ControlledLinks() []string {
	below := map[string]bool{}
	for _, j := range m.controlled {
		below[j.Child] = true
	}
	changed := true
	for changed {
		changed = false
		for child, pj := range m.parentJoint {
			if below[pj.Parent] && !below[child] {
				below[child] = true
				changed = true
			}
		}
	}
	out := make([]string, 0, len(below))
	for name := range below {
		if l := m.links[name]; l != nil && l.Geometry != nil {
			out = append(out, name)
		}
	}
	return out
}

// PositionPath returns the blackboard path of a joint's position.
func PositionPath(jointName string) blackboard.Path {
	return blackboard.P("joints", jointName, "position")
}

// FKPath returns the blackboard path of a published forward-kinematic pose
// component for the (root, tip) pair, e.g. FKPath(r, t, "position", "x").
func FKPath(root, tip string, keys ...interface{}) blackboard.Path {
	p := blackboard.P("fk", blackboard.FramePair{Root: root, Tip: tip}, "pose")
	return p.Append(keys...)
}

// PositionSymbol returns the symbol bound to a joint's position.
func (m *Model) PositionSymbol(store *blackboard.Store, jointName string) symbolic.Symbol {
	return store.ToSymbol(PositionPath(jointName))
}

func (j *Joint) motion(q *symbolic.Expr) symbolic.Mat {
	axis := symbolic.ColVec(symbolic.Const(j.Axis[0]), symbolic.Const(j.Axis[1]), symbolic.Const(j.Axis[2]))
	switch j.Kind {
	case Revolute, Continuous:
		return symbolic.RotationAxisAngle(axis, q)
	case Prismatic:
		return symbolic.Translation3(
			symbolic.Mul(symbolic.Const(j.Axis[0]), q),
			symbolic.Mul(symbolic.Const(j.Axis[1]), q),
			symbolic.Mul(symbolic.Const(j.Axis[2]), q),
		)
	case PlanarBaseX:
		return symbolic.Translation3(q, symbolic.Const(0), symbolic.Const(0))
	case PlanarBaseY:
		return symbolic.Translation3(symbolic.Const(0), q, symbolic.Const(0))
	case PlanarBaseYaw:
		zAxis := symbolic.ColVec(symbolic.Const(0), symbolic.Const(0), symbolic.Const(1))
		return symbolic.RotationAxisAngle(zAxis, q)
	case fixed:
		return symbolic.Identity(4)
	}
	panic("unknown joint kind")
}

// chainTo returns the joints from root down to tip, in order.
func (m *Model) chainTo(root, tip string) ([]*Joint, error) {
	var reversed []*Joint
	link := tip
	for link != root {
		j, ok := m.parentJoint[link]
		if !ok {
			return nil, errors.Errorf("no path from %q to %q", root, tip)
		}
		reversed = append(reversed, j)
		link = j.Parent
	}
	chain := make([]*Joint, len(reversed))
	for i, j := range reversed {
		chain[len(reversed)-1-i] = j
	}
	return chain, nil
}

// FK returns the symbolic 4×4 transform from root to tip. Joint position
// symbols are bound to the store under joints/<name>/position, so compiled
// programs over the result read live positions at evaluation time.
func (m *Model) FK(store *blackboard.Store, root, tip string) (symbolic.Mat, error) {
	chain, err := m.chainTo(root, tip)
	if err != nil {
		return symbolic.Mat{}, err
	}
	frame := symbolic.Identity(4)
	for _, j := range chain {
		frame = symbolic.MatMul(frame, j.Origin.frame())
		if j.Kind != fixed {
			q := symbolic.Sym(m.PositionSymbol(store, j.Name))
			frame = symbolic.MatMul(frame, j.motion(q))
		}
	}
	return frame, nil
}

// Attach freezes a body onto parentLink at a static offset, adding a link
// with the given geometry under a fixed joint. Used for rigidly attached
// world bodies; Detach removes it.
func (m *Model) Attach(name, parentLink string, offset PoseSpec, geom *GeometrySpec) error {
	if _, ok := m.links[parentLink]; !ok {
		return errors.Errorf("cannot attach %q: link %q is unknown", name, parentLink)
	}
	if _, ok := m.links[name]; ok {
		return errors.Errorf("cannot attach %q: the name is taken", name)
	}
	j := &Joint{
		Name:   "attached/" + name,
		Kind:   fixed,
		Parent: parentLink,
		Child:  name,
		Origin: offset,
	}
	m.links[name] = &Link{Name: name, Geometry: geom}
	m.jointByName[j.Name] = j
	m.parentJoint[name] = j
	m.joints = append(m.joints, j)
	return nil
}

// Detach removes a previously attached body.
func (m *Model) Detach(name string) error {
	j, ok := m.parentJoint[name]
	if !ok || j.Kind != fixed {
		return errors.Errorf("%q is not attached", name)
	}
	delete(m.parentJoint, name)
	delete(m.jointByName, j.Name)
	delete(m.links, name)
	for i, jj := range m.joints {
		if jj == j {
			m.joints = append(m.joints[:i], m.joints[i+1:]...)
			break
		}
	}
	return nil
}
