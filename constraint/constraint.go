// Package constraint turns declarative motion goals into the soft
// constraints the velocity solver tracks each tick.
package constraint

import (
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/Ange-Michel/wholebody/blackboard"
	"github.com/Ange-Michel/wholebody/robot"
	"github.com/Ange-Michel/wholebody/symbolic"
)

// Weight tiers shared by the goal library. The problem builder squares
// weights before they enter the cost matrix; goals always pass raw weights.
const (
	MaxWeight  = 10.0
	HighWeight = 5.0
	MidWeight  = 1.0
	LowWeight  = 0.5
	ZeroWeight = 0.0
)

// SoftConstraint is one scalar velocity-space requirement. The solver
// chooses joint velocities so the derivative of Expression stays within
// [Lower, Upper]; Weight penalizes the slack needed to satisfy it.
// Expression must stay smooth — the aggregator differentiates it — while
// Lower, Upper, and Weight are merely evaluated and may use non-smooth
// operations.
type SoftConstraint struct {
	Lower      *symbolic.Expr
	Upper      *symbolic.Expr
	Weight     *symbolic.Expr
	Expression *symbolic.Expr
}

// Goal converts one declarative objective into soft constraints. Install
// runs once and writes the goal's numeric parameters into the store under
// goals/<name>/…; SoftConstraints returns expressions referencing those
// parameters through symbols, so later parameter updates take effect
// without recompilation.
type Goal interface {
	Name() string
	Install(store *blackboard.Store) error
	SoftConstraints(store *blackboard.Store) (map[string]SoftConstraint, error)
}

// CollisionAware is implemented by goals that need closest-point data for
// specific links published every tick.
type CollisionAware interface {
	CollisionLinks() []string
}

// FKAware is implemented by goals whose expressions reference the numeric
// forward kinematics of specific (root, tip) pairs; the executive publishes
// those poses every tick.
type FKAware interface {
	FKPairs() [][2]string
}

func paramPath(goal, field string) blackboard.Path {
	return blackboard.P("goals", goal, field)
}

func paramSym(store *blackboard.Store, goal, field string) *symbolic.Expr {
	return symbolic.Sym(store.ToSymbol(paramPath(goal, field)))
}

// Pose is a numeric pose; orientation is an xyzw quaternion.
type Pose struct {
	Position    [3]float64 `json:"position"`
	Orientation [4]float64 `json:"orientation"`
}

func installPose(store *blackboard.Store, goal, field string, p Pose) {
	base := paramPath(goal, field)
	store.Set(base.Append("position", "x"), p.Position[0])
	store.Set(base.Append("position", "y"), p.Position[1])
	store.Set(base.Append("position", "z"), p.Position[2])
	store.Set(base.Append("orientation", "x"), p.Orientation[0])
	store.Set(base.Append("orientation", "y"), p.Orientation[1])
	store.Set(base.Append("orientation", "z"), p.Orientation[2])
	store.Set(base.Append("orientation", "w"), p.Orientation[3])
}

func poseSyms(store *blackboard.Store, goal, field string) (pos symbolic.Mat, quat [4]*symbolic.Expr) {
	base := paramPath(goal, field)
	sym := func(keys ...interface{}) *symbolic.Expr {
		return symbolic.Sym(store.ToSymbol(base.Append(keys...)))
	}
	pos = symbolic.Point3(sym("position", "x"), sym("position", "y"), sym("position", "z"))
	quat = [4]*symbolic.Expr{
		sym("orientation", "x"), sym("orientation", "y"), sym("orientation", "z"), sym("orientation", "w"),
	}
	return pos, quat
}

// evaluatedFK is the numeric mirror of a kinematic chain: a frame over the
// per-tick published pose of (root, tip), usable where a constant-per-tick
// copy of the live transform is needed.
func evaluatedFK(store *blackboard.Store, root, tip string) symbolic.Mat {
	sym := func(part, comp string) *symbolic.Expr {
		return symbolic.Sym(store.ToSymbol(robot.FKPath(root, tip, part, comp)))
	}
	return symbolic.Frame(
		sym("position", "x"), sym("position", "y"), sym("position", "z"),
		sym("orientation", "x"), sym("orientation", "y"), sym("orientation", "z"), sym("orientation", "w"),
	)
}

// Debug returns an inert constraint whose evaluated value shows up in the
// problem output without influencing the solution.
func Debug(expr *symbolic.Expr) SoftConstraint {
	return SoftConstraint{
		Lower:      expr,
		Upper:      expr,
		Weight:     symbolic.Const(ZeroWeight),
		Expression: symbolic.Const(1),
	}
}

// composite merges several goals under one name.
type composite struct {
	name  string
	goals []Goal
}

func (c *composite) Name() string { return c.name }

func (c *composite) Install(store *blackboard.Store) error {
	for _, g := range c.goals {
		if err := g.Install(store); err != nil {
			return err
		}
	}
	return nil
}

func (c *composite) SoftConstraints(store *blackboard.Store) (map[string]SoftConstraint, error) {
	out := map[string]SoftConstraint{}
	for _, g := range c.goals {
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

func (c *composite) CollisionLinks() []string {
	var links []string
	for _, g := range c.goals {
		if ca, ok := g.(CollisionAware); ok {
			links = append(links, ca.CollisionLinks()...)
		}
	}
	return links
}

func (c *composite) FKPairs() [][2]string {
	var pairs [][2]string
	for _, g := range c.goals {
		if fa, ok := g.(FKAware); ok {
			pairs = append(pairs, fa.FKPairs()...)
		}
	}
	return pairs
}

// Factory builds a goal from a JSON parameter blob.
type Factory func(model *robot.Model, params json.RawMessage) (Goal, error)

var registry = map[string]Factory{}

// RegisterFactory makes a goal type constructible by name.
func RegisterFactory(name string, f Factory) {
	if _, ok := registry[name]; ok {
		panic("constraint: factory registered twice: " + name)
	}
	registry[name] = f
}

// NewFromJSON builds a registered goal from its type name and parameters.
func NewFromJSON(name string, model *robot.Model, params json.RawMessage) (Goal, error) {
	f, ok := registry[name]
	if !ok {
		return nil, errors.Errorf("unknown goal type %q", name)
	}
	return f(model, params)
}
