package motion

import (
	"context"
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"github.com/Ange-Michel/wholebody/constraint"
	"github.com/Ange-Michel/wholebody/logging"
	"github.com/Ange-Michel/wholebody/robot"
	"github.com/Ange-Michel/wholebody/trajectory"
	"github.com/Ange-Michel/wholebody/world"
)

const oneJointJSON = `{
	"name": "one",
	"root": "base",
	"joints": [
		{"name": "j1", "kind": "revolute", "parent": "base", "child": "link1",
		 "axis": [0, 0, 1],
		 "limit": {"min": -3.14159265, "max": 3.14159265, "velocity": 1},
		 "weight": 0.001, "controlled": true}
	],
	"links": []
}`

const gantryJSON = `{
	"name": "gantry",
	"root": "base",
	"joints": [
		{"name": "x", "kind": "prismatic", "parent": "base", "child": "xcar",
		 "axis": [1, 0, 0],
		 "limit": {"min": -1, "max": 1, "velocity": 1}, "weight": 0.001, "controlled": true},
		{"name": "y", "kind": "prismatic", "parent": "xcar", "child": "ycar",
		 "axis": [0, 1, 0],
		 "limit": {"min": -1, "max": 1, "velocity": 1}, "weight": 0.001, "controlled": true},
		{"name": "z", "kind": "prismatic", "parent": "ycar", "child": "tool",
		 "axis": [0, 0, 1],
		 "limit": {"min": -1, "max": 1, "velocity": 1}, "weight": 0.001, "controlled": true}
	],
	"links": [
		{"name": "tool", "geometry": {"kind": "sphere", "radius": 0.02}}
	]
}`

type captureController struct {
	trajs   []*trajectory.Trajectory
	stopped int
}

func (c *captureController) FollowTrajectory(_ context.Context, traj *trajectory.Trajectory) error {
	c.trajs = append(c.trajs, traj)
	return nil
}

func (c *captureController) Stop(context.Context) error {
	c.stopped++
	return nil
}

func newTestService(t *testing.T, modelJSON string, cfg Config) (*Service, *captureController) {
	t.Helper()
	logger := logging.NewTestLogger(t)
	model, err := robot.ParseModelJSON([]byte(modelJSON), robot.Defaults{VelocityLimit: 1, JointWeight: 0.001})
	test.That(t, err, test.ShouldBeNil)
	worldSvc := world.NewService(model, logger)
	ctrl := &captureController{}
	svc, err := NewService(model, worldSvc, ctrl, cfg, nil, logger)
	test.That(t, err, test.ShouldBeNil)
	return svc, ctrl
}

func allowAll() []CollisionEntry {
	return []CollisionEntry{{Action: AllowCollision, Links: []string{AllEntries}, Bodies: []string{AllEntries}}}
}

func TestJointPositionReachesGoal(t *testing.T) {
	svc, ctrl := newTestService(t, oneJointJSON, Config{})
	result := svc.Move(context.Background(), MoveGoal{Cmds: []MoveCmd{{
		JointConstraints: []JointConstraint{{JointName: "j1", Goal: 1.0}},
		Collisions:       allowAll(),
	}}})
	test.That(t, result.Err, test.ShouldBeNil)
	test.That(t, result.Code, test.ShouldEqual, Success)
	test.That(t, len(ctrl.trajs), test.ShouldEqual, 1)

	traj := ctrl.trajs[0]
	test.That(t, traj.Len(), test.ShouldBeLessThanOrEqualTo, 100)
	last, ok := traj.Last()
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, math.Abs(last.State["j1"].Position-1.0), test.ShouldBeLessThan, 1e-3)

	// the commanded velocity saturates at the limit while the error is large
	for _, sample := range traj.Samples() {
		if math.Abs(1.0-sample.State["j1"].Position) > 0.1 {
			test.That(t, math.Abs(sample.State["j1"].Velocity), test.ShouldBeGreaterThan, 0.95)
			test.That(t, math.Abs(sample.State["j1"].Velocity), test.ShouldBeLessThanOrEqualTo, 1.0+1e-6)
		}
	}

	// the joint never crosses its limits
	for _, sample := range traj.Samples() {
		test.That(t, sample.State["j1"].Position, test.ShouldBeLessThanOrEqualTo, math.Pi+0.02)
		test.That(t, sample.State["j1"].Position, test.ShouldBeGreaterThanOrEqualTo, -math.Pi-0.02)
	}
}

func TestPlanningUniverseIsolation(t *testing.T) {
	svc, ctrl := newTestService(t, oneJointJSON, Config{})
	svc.PublishJointState(trajectory.JointState{"j1": {Name: "j1", Position: 0.25}})

	result := svc.Move(context.Background(), MoveGoal{Cmds: []MoveCmd{{
		JointConstraints: []JointConstraint{{JointName: "j1", Goal: 1.0}},
		Collisions:       allowAll(),
	}}})
	test.That(t, result.Err, test.ShouldBeNil)

	// planning moved the simulated joint; the restore put the real state back
	q, err := svc.Store().GetFloat(jointStatePath("j1", "position"))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, q, test.ShouldEqual, 0.25)

	// the trajectory survived the restore
	test.That(t, len(ctrl.trajs), test.ShouldEqual, 1)
	test.That(t, ctrl.trajs[0].Len(), test.ShouldBeGreaterThan, 10)
	first := ctrl.trajs[0].Samples()[0]
	test.That(t, first.State["j1"].Position, test.ShouldBeGreaterThan, 0.25)
}

func TestCartesianPositionReachesGoal(t *testing.T) {
	svc, ctrl := newTestService(t, gantryJSON, Config{})
	result := svc.Move(context.Background(), MoveGoal{Cmds: []MoveCmd{{
		CartesianConstraints: []CartesianConstraint{{
			Type:     Translation3D,
			RootLink: "base",
			TipLink:  "tool",
			Goal:     cartesianGoal(0.2, 0, 0),
		}},
		Collisions: allowAll(),
	}}})
	test.That(t, result.Err, test.ShouldBeNil)
	test.That(t, result.Code, test.ShouldEqual, Success)

	traj := ctrl.trajs[0]
	test.That(t, traj.Len(), test.ShouldBeLessThanOrEqualTo, 220)
	last, ok := traj.Last()
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, math.Abs(last.State["x"].Position-0.2), test.ShouldBeLessThan, 1e-3)
	test.That(t, math.Abs(last.State["y"].Position), test.ShouldBeLessThan, 1e-3)
	test.That(t, math.Abs(last.State["z"].Position), test.ShouldBeLessThan, 1e-3)

	// translational speed never exceeds the configured cap
	for _, sample := range traj.Samples() {
		speed := math.Sqrt(
			sample.State["x"].Velocity*sample.State["x"].Velocity +
				sample.State["y"].Velocity*sample.State["y"].Velocity +
				sample.State["z"].Velocity*sample.State["z"].Velocity)
		test.That(t, speed, test.ShouldBeLessThanOrEqualTo, 0.105)
	}
}

func TestCollisionAvoidanceKeepsClearance(t *testing.T) {
	svc, _ := newTestService(t, gantryJSON, Config{})

	boxDims := r3.Vector{X: 0.08, Y: 0.08, Z: 0.08}
	boxCenter := r3.Vector{X: 0.13, Y: 0.06, Z: 0}
	err := svc.worldSvc.Add(
		world.Body{Name: "box", Kind: world.PrimitiveBody, Primitive: world.BoxPrimitive, Dims: boxDims},
		world.PoseStamped{FrameID: "world", Position: boxCenter, Orientation: [4]float64{0, 0, 0, 1}},
		false,
	)
	test.That(t, err, test.ShouldBeNil)

	result := svc.Move(context.Background(), MoveGoal{Cmds: []MoveCmd{{
		CartesianConstraints: []CartesianConstraint{{
			Type:     Translation3D,
			RootLink: "base",
			TipLink:  "tool",
			Goal:     cartesianGoal(0.3, 0, 0),
		}},
	}}})

	// Whatever the outcome, no sample may put the tool inside the box.
	test.That(t, result.Trajectory, test.ShouldNotBeNil)
	test.That(t, result.Trajectory.Len(), test.ShouldBeGreaterThan, 0)
	toolRadius := 0.02
	for _, sample := range result.Trajectory.Samples() {
		tip := r3.Vector{
			X: sample.State["x"].Position,
			Y: sample.State["y"].Position,
			Z: sample.State["z"].Position,
		}
		d := pointBoxDistance(tip, boxCenter, boxDims) - toolRadius
		// one tick of overshoot at the capped speed is the worst case
		test.That(t, d, test.ShouldBeGreaterThan, -5e-3)
	}
}

func pointBoxDistance(p, center, dims r3.Vector) float64 {
	dx := math.Max(math.Abs(p.X-center.X)-dims.X/2, 0)
	dy := math.Max(math.Abs(p.Y-center.Y)-dims.Y/2, 0)
	dz := math.Max(math.Abs(p.Z-center.Z)-dims.Z/2, 0)
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

func cartesianGoal(x, y, z float64) constraint.Pose {
	return constraint.Pose{
		Position:    [3]float64{x, y, z},
		Orientation: [4]float64{0, 0, 0, 1},
	}
}

func TestMoveCancelled(t *testing.T) {
	svc, _ := newTestService(t, oneJointJSON, Config{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	result := svc.Move(ctx, MoveGoal{Cmds: []MoveCmd{{
		JointConstraints: []JointConstraint{{JointName: "j1", Goal: 1.0}},
		Collisions:       allowAll(),
	}}})
	test.That(t, result.Code, test.ShouldEqual, Cancelled)
}

func TestMoveTimeoutOnTickCap(t *testing.T) {
	svc, _ := newTestService(t, oneJointJSON, Config{MaxPlanningTicks: 3})
	result := svc.Move(context.Background(), MoveGoal{Cmds: []MoveCmd{{
		JointConstraints: []JointConstraint{{JointName: "j1", Goal: 1.0}},
		Collisions:       allowAll(),
	}}})
	test.That(t, result.Code, test.ShouldEqual, Timeout)
}

func TestMoveEmptyGoal(t *testing.T) {
	svc, _ := newTestService(t, oneJointJSON, Config{})
	result := svc.Move(context.Background(), MoveGoal{})
	test.That(t, result.Code, test.ShouldEqual, Error)
	result = svc.Move(context.Background(), MoveGoal{Cmds: []MoveCmd{{}}})
	test.That(t, result.Code, test.ShouldEqual, Error)
}

func TestJointStateIngress(t *testing.T) {
	svc, ctrl := newTestService(t, oneJointJSON, Config{})
	svc.PublishJointState(trajectory.JointState{"j1": {Name: "j1", Position: 0.9}})

	result := svc.Move(context.Background(), MoveGoal{Cmds: []MoveCmd{{
		JointConstraints: []JointConstraint{{JointName: "j1", Goal: 1.0}},
		Collisions:       allowAll(),
	}}})
	test.That(t, result.Err, test.ShouldBeNil)

	// starting from 0.9 instead of 0 means a much shorter trajectory
	test.That(t, ctrl.trajs[0].Len(), test.ShouldBeLessThan, 40)
}

func TestSequentialCommands(t *testing.T) {
	svc, ctrl := newTestService(t, oneJointJSON, Config{})
	result := svc.Move(context.Background(), MoveGoal{Cmds: []MoveCmd{
		{
			JointConstraints: []JointConstraint{{JointName: "j1", Goal: 0.5}},
			Collisions:       allowAll(),
		},
		{
			JointConstraints: []JointConstraint{{JointName: "j1", Goal: -0.5}},
			Collisions:       allowAll(),
		},
	}})
	test.That(t, result.Err, test.ShouldBeNil)
	test.That(t, len(ctrl.trajs), test.ShouldEqual, 2)
}
