// Package motion is the executive: it accepts move goals, runs the tick
// loop over the blackboard, plans in a parallel universe, and dispatches
// the resulting trajectory.
package motion

import (
	"encoding/json"

	"github.com/Ange-Michel/wholebody/constraint"
	"github.com/Ange-Michel/wholebody/trajectory"
)

// CartesianConstraintType selects what a cartesian constraint controls.
type CartesianConstraintType string

// Cartesian constraint types.
const (
	Translation3D CartesianConstraintType = "TRANSLATION_3D"
	Rotation3D    CartesianConstraintType = "ROTATION_3D"
)

// JointConstraint asks one joint to reach a position.
type JointConstraint struct {
	JointName string  `json:"joint_name"`
	Goal      float64 `json:"goal_position"`
	// Weight and MaxVelocity override the stock values when nonzero.
	Weight      float64 `json:"weight,omitempty"`
	MaxVelocity float64 `json:"max_velocity,omitempty"`
}

// CartesianConstraint asks a link to reach a pose component.
type CartesianConstraint struct {
	Type     CartesianConstraintType `json:"type"`
	RootLink string                  `json:"root_link"`
	TipLink  string                  `json:"tip_link"`
	Goal     constraint.Pose         `json:"goal"`
}

// GenericConstraint names a registered goal type with a JSON parameter
// blob, covering goals the fixed fields cannot express.
type GenericConstraint struct {
	Type   string          `json:"type"`
	Params json.RawMessage `json:"parameter_value_pair"`
}

// CollisionAction says whether an entry allows or avoids contact.
type CollisionAction string

// Collision entry actions.
const (
	AllowCollision CollisionAction = "allow"
	AvoidCollision CollisionAction = "avoid"
)

// AllEntries is the wildcard for collision entry link and body sets.
const AllEntries = "*"

// CollisionEntry tunes collision handling for link/body pairs.
type CollisionEntry struct {
	Action CollisionAction `json:"action"`
	Links  []string        `json:"links"`
	Bodies []string        `json:"bodies"`
	// MinDistance, when positive on an avoid entry, moves the full-repulsion
	// threshold out to this distance. The largest such value over all avoid
	// entries applies to every controlled link's avoidance goal; Links and
	// Bodies do not narrow it.
	MinDistance float64 `json:"min_distance,omitempty"`
}

// MoveCmd is one step of a move goal; its constraints hold simultaneously.
type MoveCmd struct {
	JointConstraints     []JointConstraint     `json:"joint_constraints"`
	CartesianConstraints []CartesianConstraint `json:"cartesian_constraints"`
	Constraints          []GenericConstraint   `json:"constraints"`
	Collisions           []CollisionEntry      `json:"collisions"`
}

// MoveGoal is an ordered sequence of commands, executed one after another.
type MoveGoal struct {
	Cmds []MoveCmd `json:"cmds"`
}

// ResultCode classifies how a motion ended.
type ResultCode int

// Result codes.
const (
	Success ResultCode = iota
	Error
	PathMissing
	CompileFailed
	QPInfeasible
	MaxWorkingSetReached
	Timeout
	Cancelled
	ExecutionFailed
)

func (c ResultCode) String() string {
	switch c {
	case Success:
		return "success"
	case PathMissing:
		return "path missing"
	case CompileFailed:
		return "compile failed"
	case QPInfeasible:
		return "qp infeasible"
	case MaxWorkingSetReached:
		return "max working set reached"
	case Timeout:
		return "timeout"
	case Cancelled:
		return "cancelled"
	case ExecutionFailed:
		return "execution failed"
	}
	return "error"
}

// MoveResult reports a finished motion.
type MoveResult struct {
	Code ResultCode
	Err  error
	// Trajectory holds the planned samples of the last command, also on
	// failure, for inspection.
	Trajectory *trajectory.Trajectory
}
