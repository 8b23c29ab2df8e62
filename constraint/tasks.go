package constraint

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/Ange-Michel/wholebody/blackboard"
	"github.com/Ange-Michel/wholebody/robot"
	"github.com/Ange-Michel/wholebody/symbolic"
)

func init() {
	RegisterFactory("AlignPlanes", func(model *robot.Model, params json.RawMessage) (Goal, error) {
		var p struct {
			TipLink    string     `json:"tip_link"`
			RootLink   string     `json:"root_link"`
			TipNormal  [3]float64 `json:"tip_normal"`
			RootNormal [3]float64 `json:"root_normal"`
		}
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, err
		}
		return NewAlignPlanes(model, p.RootLink, p.TipLink, p.TipNormal, p.RootNormal), nil
	})
	RegisterFactory("Pointing", func(model *robot.Model, params json.RawMessage) (Goal, error) {
		var p struct {
			TipLink      string     `json:"tip_link"`
			RootLink     string     `json:"root_link"`
			GoalPoint    [3]float64 `json:"goal_point"`
			PointingAxis [3]float64 `json:"pointing_axis"`
		}
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, err
		}
		return NewPointing(model, p.RootLink, p.TipLink, p.PointingAxis, p.GoalPoint), nil
	})
	RegisterFactory("GravityJoint", func(model *robot.Model, params json.RawMessage) (Goal, error) {
		var p struct {
			JointName string  `json:"joint_name"`
			Rest      float64 `json:"rest"`
		}
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, err
		}
		return NewGravityJoint(model, p.JointName, p.Rest), nil
	})
	RegisterFactory("MoveToPose", func(model *robot.Model, params json.RawMessage) (Goal, error) {
		p, err := cartesianParams(params)
		if err != nil {
			return nil, err
		}
		return NewMoveToPose(model, p.RootLink, p.TipLink, p.Goal), nil
	})
	RegisterFactory("OpenDrawer", func(model *robot.Model, params json.RawMessage) (Goal, error) {
		var p manipulationBlob
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, err
		}
		return NewOpenDrawer(model, p.RootLink, p.TipLink, p.Handle, p.Axis, p.Amount), nil
	})
	RegisterFactory("OpenDoor", func(model *robot.Model, params json.RawMessage) (Goal, error) {
		var p manipulationBlob
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, err
		}
		return NewOpenDoor(model, p.RootLink, p.TipLink, p.Handle, p.Hinge, p.Axis, p.Amount), nil
	})
	RegisterFactory("TurnRotaryKnob", func(model *robot.Model, params json.RawMessage) (Goal, error) {
		var p manipulationBlob
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, err
		}
		return NewTurnRotaryKnob(model, p.RootLink, p.TipLink, p.Handle, p.Axis, p.Amount), nil
	})
}

type manipulationBlob struct {
	RootLink string     `json:"root_link"`
	TipLink  string     `json:"tip_link"`
	Handle   Pose       `json:"handle"`
	Hinge    [3]float64 `json:"hinge"`
	Axis     [3]float64 `json:"axis"`
	Amount   float64    `json:"amount"`
}

// AlignPlanes rotates the tip link until a tip-frame normal matches a
// root-frame normal.
type AlignPlanes struct {
	model      *robot.Model
	Root       string
	Tip        string
	TipNormal  [3]float64
	RootNormal [3]float64
	Weight     float64
	Gain       float64
	MaxSpeed   float64
}

// NewAlignPlanes returns an AlignPlanes goal with stock gains. Both normals
// are normalized at install.
func NewAlignPlanes(model *robot.Model, root, tip string, tipNormal, rootNormal [3]float64) *AlignPlanes {
	return &AlignPlanes{
		model:      model,
		Root:       root,
		Tip:        tip,
		TipNormal:  tipNormal,
		RootNormal: rootNormal,
		Weight:     HighWeight,
		Gain:       3,
		MaxSpeed:   0.5,
	}
}

// Name implements Goal.
func (g *AlignPlanes) Name() string {
	return fmt.Sprintf("AlignPlanes/%s/%s", g.Root, g.Tip)
}

// Install implements Goal.
func (g *AlignPlanes) Install(store *blackboard.Store) error {
	tn := normalizeVec(g.TipNormal)
	rn := normalizeVec(g.RootNormal)
	for i, axis := range []string{"x", "y", "z"} {
		store.Set(paramPath(g.Name(), "tip_normal").Append(axis), tn[i])
		store.Set(paramPath(g.Name(), "root_normal").Append(axis), rn[i])
	}
	store.Set(paramPath(g.Name(), "weight"), g.Weight)
	store.Set(paramPath(g.Name(), "gain"), g.Gain)
	store.Set(paramPath(g.Name(), "max_speed"), g.MaxSpeed)
	return nil
}

func vecSyms(store *blackboard.Store, goal, field string) symbolic.Mat {
	sym := func(axis string) *symbolic.Expr {
		return symbolic.Sym(store.ToSymbol(paramPath(goal, field).Append(axis)))
	}
	return symbolic.Vector3(sym("x"), sym("y"), sym("z"))
}

// SoftConstraints implements Goal.
func (g *AlignPlanes) SoftConstraints(store *blackboard.Store) (map[string]SoftConstraint, error) {
	fk, err := g.model.FK(store, g.Root, g.Tip)
	if err != nil {
		return nil, err
	}
	tipNormal := vecSyms(store, g.Name(), "tip_normal")
	rootNormal := vecSyms(store, g.Name(), "root_normal")
	weight := paramSym(store, g.Name(), "weight")
	gain := paramSym(store, g.Name(), "gain")
	maxSpeed := paramSym(store, g.Name(), "max_speed")

	current := symbolic.MatMul(symbolic.RotationOf(fk), tipNormal)
	out := map[string]SoftConstraint{}
	for i, axis := range []string{"x", "y", "z"} {
		axisErr := symbolic.Sub(rootNormal.At(i, 0), current.At(i, 0))
		capped := symbolic.MaxD(symbolic.MinD(symbolic.Mul(gain, axisErr), maxSpeed), symbolic.Neg(maxSpeed))
		out[g.Name()+"/"+axis] = SoftConstraint{
			Lower:      capped,
			Upper:      capped,
			Weight:     weight,
			Expression: current.At(i, 0),
		}
	}
	return out, nil
}

// Pointing keeps a tip-frame axis pointed at a root-frame target point.
type Pointing struct {
	model     *robot.Model
	Root      string
	Tip       string
	Axis      [3]float64
	GoalPoint [3]float64
	Weight    float64
	Gain      float64
	MaxSpeed  float64
}

// NewPointing returns a Pointing goal with stock gains.
func NewPointing(model *robot.Model, root, tip string, axis, goalPoint [3]float64) *Pointing {
	return &Pointing{
		model:     model,
		Root:      root,
		Tip:       tip,
		Axis:      axis,
		GoalPoint: goalPoint,
		Weight:    MidWeight,
		Gain:      3,
		MaxSpeed:  0.5,
	}
}

// Name implements Goal.
func (g *Pointing) Name() string {
	return fmt.Sprintf("Pointing/%s/%s", g.Root, g.Tip)
}

// Install implements Goal.
func (g *Pointing) Install(store *blackboard.Store) error {
	axis := normalizeVec(g.Axis)
	for i, comp := range []string{"x", "y", "z"} {
		store.Set(paramPath(g.Name(), "axis").Append(comp), axis[i])
		store.Set(paramPath(g.Name(), "goal_point").Append(comp), g.GoalPoint[i])
	}
	store.Set(paramPath(g.Name(), "weight"), g.Weight)
	store.Set(paramPath(g.Name(), "gain"), g.Gain)
	store.Set(paramPath(g.Name(), "max_speed"), g.MaxSpeed)
	return nil
}

// SoftConstraints implements Goal.
func (g *Pointing) SoftConstraints(store *blackboard.Store) (map[string]SoftConstraint, error) {
	fk, err := g.model.FK(store, g.Root, g.Tip)
	if err != nil {
		return nil, err
	}
	axis := vecSyms(store, g.Name(), "axis")
	weight := paramSym(store, g.Name(), "weight")
	gain := paramSym(store, g.Name(), "gain")
	maxSpeed := paramSym(store, g.Name(), "max_speed")
	goalSym := func(comp string) *symbolic.Expr {
		return symbolic.Sym(store.ToSymbol(paramPath(g.Name(), "goal_point").Append(comp)))
	}
	goalPoint := symbolic.Point3(goalSym("x"), goalSym("y"), goalSym("z"))

	currentAxis := symbolic.MatMul(symbolic.RotationOf(fk), axis)
	toGoal := symbolic.MatSub(goalPoint, symbolic.PositionOf(fk))
	desired := symbolic.Scale(toGoal, symbolic.Const(1))

	out := map[string]SoftConstraint{}
	for i, comp := range []string{"x", "y", "z"} {
		axisErr := symbolic.Sub(desired.At(i, 0), currentAxis.At(i, 0))
		capped := symbolic.MaxD(symbolic.MinD(symbolic.Mul(gain, axisErr), maxSpeed), symbolic.Neg(maxSpeed))
		out[g.Name()+"/"+comp] = SoftConstraint{
			Lower:      capped,
			Upper:      capped,
			Weight:     weight,
			Expression: currentAxis.At(i, 0),
		}
	}
	return out, nil
}

// GravityJoint settles a joint toward its rest position with a weak pull,
// modeling where gravity would take an uncommanded joint.
type GravityJoint struct {
	inner *JointPosition
}

// NewGravityJoint returns a GravityJoint goal.
func NewGravityJoint(model *robot.Model, jointName string, rest float64) *GravityJoint {
	inner := NewJointPosition(model, jointName, rest)
	inner.Weight = LowWeight
	inner.Gain = 1
	inner.MaxSpeed = 0.2
	return &GravityJoint{inner: inner}
}

// Name implements Goal.
func (g *GravityJoint) Name() string { return "GravityJoint/" + g.inner.JointName }

// Install implements Goal.
func (g *GravityJoint) Install(store *blackboard.Store) error { return g.inner.Install(store) }

// SoftConstraints implements Goal.
func (g *GravityJoint) SoftConstraints(store *blackboard.Store) (map[string]SoftConstraint, error) {
	return g.inner.SoftConstraints(store)
}

// NewMoveToPose drives the tip to a full pose: position plus slerp
// orientation.
func NewMoveToPose(model *robot.Model, root, tip string, goal Pose) Goal {
	return &composite{
		name: fmt.Sprintf("MoveToPose/%s/%s", root, tip),
		goals: []Goal{
			NewCartesianPosition(model, root, tip, goal),
			NewCartesianOrientationSlerp(model, root, tip, goal),
		},
	}
}

// NewOpenDrawer pulls a grasped drawer handle along its axis by amount
// meters (negative closes), holding the grasp orientation.
func NewOpenDrawer(model *robot.Model, root, tip string, handle Pose, axis [3]float64, amount float64) Goal {
	target := translatePose(handle, axis, amount)
	return &composite{
		name: fmt.Sprintf("OpenDrawer/%s/%s", root, tip),
		goals: []Goal{
			NewCartesianPosition(model, root, tip, target),
			NewCartesianOrientationSlerp(model, root, tip, handle),
		},
	}
}

// NewOpenDoor swings a grasped door handle about its hinge by amount
// radians (negative closes).
func NewOpenDoor(model *robot.Model, root, tip string, handle Pose, hinge, axis [3]float64, amount float64) Goal {
	target := rotateAboutPoint(handle, hinge, axis, amount)
	return &composite{
		name: fmt.Sprintf("OpenDoor/%s/%s", root, tip),
		goals: []Goal{
			NewCartesianPosition(model, root, tip, target),
			NewCartesianOrientationSlerp(model, root, tip, target),
		},
	}
}

// NewTurnRotaryKnob rotates the grasped knob about its own axis by amount
// radians while holding position on the knob.
func NewTurnRotaryKnob(model *robot.Model, root, tip string, knob Pose, axis [3]float64, amount float64) Goal {
	target := rotateAboutPoint(knob, knob.Position, axis, amount)
	return &composite{
		name: fmt.Sprintf("TurnRotaryKnob/%s/%s", root, tip),
		goals: []Goal{
			NewCartesianPosition(model, root, tip, knob),
			NewCartesianOrientationSlerp(model, root, tip, target),
		},
	}
}

func normalizeVec(v [3]float64) [3]float64 {
	n := math.Sqrt(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])
	if n == 0 {
		return v
	}
	return [3]float64{v[0] / n, v[1] / n, v[2] / n}
}
