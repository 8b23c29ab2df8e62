package constraint

import (
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"

	"github.com/Ange-Michel/wholebody/blackboard"
	"github.com/Ange-Michel/wholebody/robot"
	"github.com/Ange-Michel/wholebody/symbolic"
)

func init() {
	RegisterFactory("JointPosition", func(model *robot.Model, params json.RawMessage) (Goal, error) {
		var p struct {
			JointName string  `json:"joint_name"`
			Goal      float64 `json:"goal"`
			Weight    float64 `json:"weight"`
			Gain      float64 `json:"gain"`
			MaxSpeed  float64 `json:"max_speed"`
		}
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, err
		}
		g := NewJointPosition(model, p.JointName, p.Goal)
		if p.Weight != 0 {
			g.Weight = p.Weight
		}
		if p.Gain != 0 {
			g.Gain = p.Gain
		}
		if p.MaxSpeed != 0 {
			g.MaxSpeed = p.MaxSpeed
		}
		return g, nil
	})
	RegisterFactory("JointPositionList", func(model *robot.Model, params json.RawMessage) (Goal, error) {
		var p struct {
			GoalState map[string]float64 `json:"goal_state"`
		}
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, err
		}
		if len(p.GoalState) == 0 {
			return nil, errors.New("joint position list needs a goal_state")
		}
		return NewJointPositionList(model, p.GoalState), nil
	})
	RegisterFactory("CartesianPosition", func(model *robot.Model, params json.RawMessage) (Goal, error) {
		p, err := cartesianParams(params)
		if err != nil {
			return nil, err
		}
		g := NewCartesianPosition(model, p.RootLink, p.TipLink, p.Goal)
		p.apply(&g.Weight, &g.Gain, &g.MaxSpeed)
		return g, nil
	})
	RegisterFactory("CartesianOrientationSlerp", func(model *robot.Model, params json.RawMessage) (Goal, error) {
		p, err := cartesianParams(params)
		if err != nil {
			return nil, err
		}
		g := NewCartesianOrientationSlerp(model, p.RootLink, p.TipLink, p.Goal)
		p.apply(&g.Weight, &g.Gain, &g.MaxSpeed)
		return g, nil
	})
}

type cartesianBlob struct {
	RootLink string  `json:"root_link"`
	TipLink  string  `json:"tip_link"`
	Goal     Pose    `json:"goal"`
	Weight   float64 `json:"weight"`
	Gain     float64 `json:"gain"`
	MaxSpeed float64 `json:"max_speed"`
}

func cartesianParams(params json.RawMessage) (*cartesianBlob, error) {
	var p cartesianBlob
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, err
	}
	if p.RootLink == "" || p.TipLink == "" {
		return nil, errors.New("cartesian goal needs root_link and tip_link")
	}
	return &p, nil
}

func (p *cartesianBlob) apply(weight, gain, maxSpeed *float64) {
	if p.Weight != 0 {
		*weight = p.Weight
	}
	if p.Gain != 0 {
		*gain = p.Gain
	}
	if p.MaxSpeed != 0 {
		*maxSpeed = p.MaxSpeed
	}
}

// JointPosition drives one joint toward a position at a gain-scaled,
// speed-capped velocity.
type JointPosition struct {
	model     *robot.Model
	JointName string
	Goal      float64
	Weight    float64
	Gain      float64
	MaxSpeed  float64
}

// NewJointPosition returns a JointPosition goal with the stock gains.
func NewJointPosition(model *robot.Model, jointName string, goal float64) *JointPosition {
	return &JointPosition{
		model:     model,
		JointName: jointName,
		Goal:      goal,
		Weight:    MidWeight,
		Gain:      10,
		MaxSpeed:  1,
	}
}

// Name implements Goal.
func (g *JointPosition) Name() string { return "JointPosition/" + g.JointName }

// Install implements Goal.
func (g *JointPosition) Install(store *blackboard.Store) error {
	if _, ok := g.model.Joint(g.JointName); !ok {
		return errors.Errorf("joint %q is not part of the model", g.JointName)
	}
	store.Set(paramPath(g.Name(), "goal"), g.Goal)
	store.Set(paramPath(g.Name(), "weight"), g.Weight)
	store.Set(paramPath(g.Name(), "gain"), g.Gain)
	store.Set(paramPath(g.Name(), "max_speed"), g.MaxSpeed)
	return nil
}

// SoftConstraints implements Goal.
func (g *JointPosition) SoftConstraints(store *blackboard.Store) (map[string]SoftConstraint, error) {
	joint, ok := g.model.Joint(g.JointName)
	if !ok {
		return nil, errors.Errorf("joint %q is not part of the model", g.JointName)
	}
	current := symbolic.Sym(g.model.PositionSymbol(store, g.JointName))
	goal := paramSym(store, g.Name(), "goal")
	weight := paramSym(store, g.Name(), "weight")
	gain := paramSym(store, g.Name(), "gain")
	maxSpeed := paramSym(store, g.Name(), "max_speed")

	var posErr *symbolic.Expr
	if joint.IsContinuous() {
		posErr = symbolic.ShortestAngularDistance(current, goal)
	} else {
		posErr = symbolic.Sub(goal, current)
	}
	capped := symbolic.MaxD(symbolic.MinD(symbolic.Mul(gain, posErr), maxSpeed), symbolic.Neg(maxSpeed))

	return map[string]SoftConstraint{
		g.Name(): {
			Lower:      capped,
			Upper:      capped,
			Weight:     weight,
			Expression: current,
		},
	}, nil
}

// JointPositionList drives several joints at once.
type JointPositionList struct {
	name  string
	goals []Goal
}

// NewJointPositionList returns one goal per entry of state.
func NewJointPositionList(model *robot.Model, state map[string]float64) *JointPositionList {
	l := &JointPositionList{name: "JointPositionList"}
	for joint, position := range state {
		l.goals = append(l.goals, NewJointPosition(model, joint, position))
	}
	return l
}

// Name implements Goal.
func (l *JointPositionList) Name() string { return l.name }

// Install implements Goal.
func (l *JointPositionList) Install(store *blackboard.Store) error {
	for _, g := range l.goals {
		if err := g.Install(store); err != nil {
			return err
		}
	}
	return nil
}

// SoftConstraints implements Goal.
func (l *JointPositionList) SoftConstraints(store *blackboard.Store) (map[string]SoftConstraint, error) {
	out := map[string]SoftConstraint{}
	for _, g := range l.goals {
		scs, err := g.SoftConstraints(store)
		if err != nil {
			return nil, err
		}
		for name, sc := range scs {
			out[name] = sc
		}
	}
	return out, nil
}

// CartesianPosition drives the tip link's position toward a goal point in
// the root frame.
type CartesianPosition struct {
	model    *robot.Model
	Root     string
	Tip      string
	Goal     Pose
	Weight   float64
	Gain     float64
	MaxSpeed float64
}

// NewCartesianPosition returns a CartesianPosition goal with stock gains.
func NewCartesianPosition(model *robot.Model, root, tip string, goal Pose) *CartesianPosition {
	return &CartesianPosition{
		model:    model,
		Root:     root,
		Tip:      tip,
		Goal:     normalizePose(goal),
		Weight:   HighWeight,
		Gain:     3,
		MaxSpeed: 0.1,
	}
}

// Name implements Goal.
func (g *CartesianPosition) Name() string {
	return fmt.Sprintf("CartesianPosition/%s/%s", g.Root, g.Tip)
}

// Install implements Goal.
func (g *CartesianPosition) Install(store *blackboard.Store) error {
	installPose(store, g.Name(), "goal", g.Goal)
	store.Set(paramPath(g.Name(), "weight"), g.Weight)
	store.Set(paramPath(g.Name(), "gain"), g.Gain)
	store.Set(paramPath(g.Name(), "max_speed"), g.MaxSpeed)
	return nil
}

// SoftConstraints implements Goal.
func (g *CartesianPosition) SoftConstraints(store *blackboard.Store) (map[string]SoftConstraint, error) {
	fk, err := g.model.FK(store, g.Root, g.Tip)
	if err != nil {
		return nil, err
	}
	goalPos, _ := poseSyms(store, g.Name(), "goal")
	weight := paramSym(store, g.Name(), "weight")
	gain := paramSym(store, g.Name(), "gain")
	maxSpeed := paramSym(store, g.Name(), "max_speed")

	current := symbolic.PositionOf(fk)
	errVec := symbolic.MatSub(goalPos, current)
	errNorm := symbolic.Norm(errVec)
	scale := symbolic.MinD(symbolic.Mul(errNorm, gain), maxSpeed)

	out := map[string]SoftConstraint{}
	axes := []string{"x", "y", "z"}
	for i, axis := range axes {
		control := symbolic.Mul(symbolic.SafeDiv(errVec.At(i, 0), errNorm), scale)
		out[g.Name()+"/"+axis] = SoftConstraint{
			Lower:      control,
			Upper:      control,
			Weight:     weight,
			Expression: current.At(i, 0),
		}
	}
	return out, nil
}

// CartesianOrientationSlerp drives the tip link's orientation toward a goal
// by interpolating along the great arc, limiting rotational speed.
type CartesianOrientationSlerp struct {
	model    *robot.Model
	Root     string
	Tip      string
	Goal     Pose
	Weight   float64
	Gain     float64
	MaxSpeed float64
}

// NewCartesianOrientationSlerp returns a slerp orientation goal with stock
// gains.
func NewCartesianOrientationSlerp(model *robot.Model, root, tip string, goal Pose) *CartesianOrientationSlerp {
	return &CartesianOrientationSlerp{
		model:    model,
		Root:     root,
		Tip:      tip,
		Goal:     normalizePose(goal),
		Weight:   HighWeight,
		Gain:     3,
		MaxSpeed: 0.5,
	}
}

// Name implements Goal.
func (g *CartesianOrientationSlerp) Name() string {
	return fmt.Sprintf("CartesianOrientationSlerp/%s/%s", g.Root, g.Tip)
}

// FKPairs implements FKAware.
func (g *CartesianOrientationSlerp) FKPairs() [][2]string {
	return [][2]string{{g.Root, g.Tip}}
}

// Install implements Goal.
func (g *CartesianOrientationSlerp) Install(store *blackboard.Store) error {
	installPose(store, g.Name(), "goal", g.Goal)
	store.Set(paramPath(g.Name(), "weight"), g.Weight)
	store.Set(paramPath(g.Name(), "gain"), g.Gain)
	store.Set(paramPath(g.Name(), "max_speed"), g.MaxSpeed)
	return nil
}

// SoftConstraints implements Goal.
func (g *CartesianOrientationSlerp) SoftConstraints(store *blackboard.Store) (map[string]SoftConstraint, error) {
	fk, err := g.model.FK(store, g.Root, g.Tip)
	if err != nil {
		return nil, err
	}
	_, goalQuat := poseSyms(store, g.Name(), "goal")
	weight := paramSym(store, g.Name(), "weight")
	gain := paramSym(store, g.Name(), "gain")
	maxSpeed := paramSym(store, g.Name(), "max_speed")

	currentRot := symbolic.RotationOf(fk)
	goalRot := symbolic.RotationQuaternion(goalQuat[0], goalQuat[1], goalQuat[2], goalQuat[3])
	evaluatedRot := symbolic.RotationOf(evaluatedFK(store, g.Root, g.Tip))

	_, angle := symbolic.AxisAngleFromMatrix(symbolic.MatMul(currentRot.T(), goalRot))
	angle = symbolic.AbsD(angle)
	fraction := symbolic.MinD(symbolic.SafeDiv(maxSpeed, symbolic.Mul(gain, angle)), symbolic.Const(1))

	q1 := symbolic.QuaternionFromMatrix(currentRot)
	q2 := symbolic.QuaternionFromMatrix(goalRot)
	intermediate := symbolic.SlerpD(q1, q2, fraction)
	diff := symbolic.QuaternionDiff(q1, intermediate)
	ctrlAxis, ctrlAngle := symbolic.AxisAngleFromQuaternion(diff.At(0, 0), diff.At(1, 0), diff.At(2, 0), diff.At(3, 0))
	control := ctrlAxis.MatScale(ctrlAngle)

	// The perturbation keeps the axis-angle extraction away from its zero
	// singularity so the Jacobian of the tracked expression stays defined.
	hack := symbolic.RotationAxisAngle(
		symbolic.ColVec(symbolic.Const(0), symbolic.Const(0), symbolic.Const(1)), symbolic.Const(0.0001),
	)
	trackedRot := symbolic.MatMul(currentRot.T(), symbolic.MatMul(evaluatedRot, hack)).T()
	trackedAxis, trackedAngle := symbolic.AxisAngleFromMatrix(trackedRot)
	tracked := trackedAxis.MatScale(trackedAngle)

	out := map[string]SoftConstraint{}
	for i := 0; i < 3; i++ {
		out[fmt.Sprintf("%s/%d", g.Name(), i)] = SoftConstraint{
			Lower:      control.At(i, 0),
			Upper:      control.At(i, 0),
			Weight:     weight,
			Expression: tracked.At(i, 0),
		}
	}
	return out, nil
}
