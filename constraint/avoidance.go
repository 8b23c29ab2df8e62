package constraint

import (
	"encoding/json"
	"math"

	"github.com/pkg/errors"

	"github.com/Ange-Michel/wholebody/blackboard"
	"github.com/Ange-Michel/wholebody/collision"
	"github.com/Ange-Michel/wholebody/robot"
	"github.com/Ange-Michel/wholebody/symbolic"
)

func init() {
	RegisterFactory("LinkAvoidance", func(model *robot.Model, params json.RawMessage) (Goal, error) {
		var p struct {
			LinkName           string  `json:"link_name"`
			RepelSpeed         float64 `json:"repel_speed"`
			MaxWeightDistance  float64 `json:"max_weight_distance"`
			LowWeightDistance  float64 `json:"low_weight_distance"`
			ZeroWeightDistance float64 `json:"zero_weight_distance"`
		}
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, err
		}
		g := NewLinkAvoidance(model, p.LinkName)
		if p.RepelSpeed != 0 {
			g.RepelSpeed = p.RepelSpeed
		}
		if p.MaxWeightDistance != 0 {
			g.MaxWeightDistance = p.MaxWeightDistance
		}
		if p.LowWeightDistance != 0 {
			g.LowWeightDistance = p.LowWeightDistance
		}
		if p.ZeroWeightDistance != 0 {
			g.ZeroWeightDistance = p.ZeroWeightDistance
		}
		return g, nil
	})
}

// fitWeightCurve solves a/(x+c)+b = y exactly for the three anchor points
// of the avoidance weight ramp.
func fitWeightCurve(x, y [3]float64) (a, b, c float64, err error) {
	d12 := x[1] - x[0]
	d23 := x[2] - x[1]
	dy23 := y[1] - y[2]
	if d12 == 0 || d23 == 0 || dy23 == 0 {
		return 0, 0, 0, errors.New("weight curve anchors are degenerate")
	}
	r := (y[0] - y[1]) / dy23
	denom := r*d23 - d12
	if denom == 0 {
		return 0, 0, 0, errors.New("weight curve anchors are collinear")
	}
	c = (d12*x[2] - r*d23*x[0]) / denom
	u1 := x[0] + c
	u2 := x[1] + c
	if u1 == 0 || u2 == 0 {
		return 0, 0, 0, errors.New("weight curve pole sits on an anchor")
	}
	a = (y[0] - y[1]) * u1 * u2 / d12
	b = y[0] - a/u1
	if math.IsNaN(a) || math.IsInf(a, 0) {
		return 0, 0, 0, errors.New("weight curve fit diverged")
	}
	return a, b, c, nil
}

// LinkAvoidance pushes one link away from whatever the collision module
// reports closest to it. The repulsion weight ramps from MaxWeight at
// MaxWeightDistance down to zero at ZeroWeightDistance along a/(d+c)+b.
type LinkAvoidance struct {
	model              *robot.Model
	LinkName           string
	RepelSpeed         float64
	MaxWeightDistance  float64
	LowWeightDistance  float64
	ZeroWeightDistance float64
}

// NewLinkAvoidance returns a LinkAvoidance goal with the stock thresholds.
func NewLinkAvoidance(model *robot.Model, linkName string) *LinkAvoidance {
	return &LinkAvoidance{
		model:              model,
		LinkName:           linkName,
		RepelSpeed:         0.1,
		MaxWeightDistance:  0.0,
		LowWeightDistance:  0.02,
		ZeroWeightDistance: 0.05,
	}
}

// Name implements Goal.
func (g *LinkAvoidance) Name() string { return "LinkAvoidance/" + g.LinkName }

// CollisionLinks implements CollisionAware.
func (g *LinkAvoidance) CollisionLinks() []string { return []string{g.LinkName} }

// FKPairs implements FKAware.
func (g *LinkAvoidance) FKPairs() [][2]string {
	return [][2]string{{g.model.Root(), g.LinkName}}
}

// Install implements Goal.
func (g *LinkAvoidance) Install(store *blackboard.Store) error {
	if _, ok := g.model.Link(g.LinkName); !ok {
		return errors.Errorf("link %q is not part of the model", g.LinkName)
	}
	a, b, c, err := fitWeightCurve(
		[3]float64{g.MaxWeightDistance, g.LowWeightDistance, g.ZeroWeightDistance},
		[3]float64{MaxWeight, LowWeight, ZeroWeight},
	)
	if err != nil {
		return err
	}
	store.Set(paramPath(g.Name(), "repel_speed"), g.RepelSpeed)
	store.Set(paramPath(g.Name(), "max_weight_distance"), g.MaxWeightDistance)
	store.Set(paramPath(g.Name(), "zero_weight_distance"), g.ZeroWeightDistance)
	store.Set(paramPath(g.Name(), "A"), a)
	store.Set(paramPath(g.Name(), "B"), b)
	store.Set(paramPath(g.Name(), "C"), c)
	return nil
}

func closestPointSyms(store *blackboard.Store, link, field string) symbolic.Mat {
	pathOf := collision.PositionOnAPath
	switch field {
	case "position_on_b":
		pathOf = collision.PositionOnBPath
	case "contact_normal":
		pathOf = collision.ContactNormalPath
	}
	sym := func(axis string) *symbolic.Expr {
		return symbolic.Sym(store.ToSymbol(pathOf(link, axis)))
	}
	if field == "contact_normal" {
		return symbolic.Vector3(sym("x"), sym("y"), sym("z"))
	}
	return symbolic.Point3(sym("x"), sym("y"), sym("z"))
}

// SoftConstraints implements Goal.
func (g *LinkAvoidance) SoftConstraints(store *blackboard.Store) (map[string]SoftConstraint, error) {
	currentPose, err := g.model.FK(store, g.model.Root(), g.LinkName)
	if err != nil {
		return nil, err
	}
	currentPoseEval := evaluatedFK(store, g.model.Root(), g.LinkName)
	pointOnLink := closestPointSyms(store, g.LinkName, "position_on_a")
	otherPoint := closestPointSyms(store, g.LinkName, "position_on_b")
	contactNormal := closestPointSyms(store, g.LinkName, "contact_normal")

	repelSpeed := paramSym(store, g.Name(), "repel_speed")
	maxDist := paramSym(store, g.Name(), "max_weight_distance")
	zeroDist := paramSym(store, g.Name(), "zero_weight_distance")
	a := paramSym(store, g.Name(), "A")
	b := paramSym(store, g.Name(), "B")
	c := paramSym(store, g.Name(), "C")

	// The published closest point is constant within a tick; carrying it
	// through the live FK times the inverse of the published FK makes the
	// distance sensitive to joint motion again.
	controllablePoint := symbolic.MatMul(
		symbolic.MatMul(currentPose, symbolic.InverseFrame(currentPoseEval)),
		pointOnLink,
	)
	dist := symbolic.Dot(contactNormal, symbolic.MatSub(controllablePoint, otherPoint))

	weight := symbolic.IfLE(dist, maxDist, symbolic.Const(MaxWeight),
		symbolic.IfGT(dist, zeroDist, symbolic.Const(ZeroWeight),
			symbolic.Add(symbolic.Div(a, symbolic.Add(dist, c)), b)))

	return map[string]SoftConstraint{
		g.Name(): {
			Lower:      repelSpeed,
			Upper:      repelSpeed,
			Weight:     weight,
			Expression: dist,
		},
	}, nil
}
