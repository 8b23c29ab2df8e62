package motion

import (
	"context"
	"math"

	"github.com/golang/geo/r3"

	"github.com/Ange-Michel/wholebody/behaviortree"
	"github.com/Ange-Michel/wholebody/blackboard"
	"github.com/Ange-Michel/wholebody/collision"
	"github.com/Ange-Michel/wholebody/trajectory"
)

type universe int

const (
	realUniverse universe = iota
	planningUniverse
)

func timePath() blackboard.Path { return blackboard.P("time") }

func motorCmdPath(joint string) blackboard.Path {
	return blackboard.P("motor_cmd", joint)
}

func jointStatePath(joint, field string) blackboard.Path {
	return blackboard.P("joints", joint, field)
}

// fail records the first fatal error and fails the leaf.
func (r *run) fail(err error) behaviortree.Status {
	if r.err == nil {
		r.err = err
	}
	r.s.logger.Errorf("tick failed: %v", err)
	return behaviortree.Failure
}

// jointStateIngest drains the joint-state mailbox into the store. An empty
// mailbox keeps the previous perception.
func (r *run) jointStateIngest(context.Context) behaviortree.Status {
	if r.universe != realUniverse {
		return behaviortree.Success
	}
	js, ok := r.s.jsMailbox.Take()
	if !ok {
		return behaviortree.Success
	}
	for name, sjs := range js {
		r.s.store.Set(jointStatePath(name, "position"), sjs.Position)
		r.s.store.Set(jointStatePath(name, "velocity"), sjs.Velocity)
		r.s.store.Set(jointStatePath(name, "effort"), sjs.Effort)
	}
	return behaviortree.Success
}

// worldStateIngest refreshes the obstacle snapshot used by the collision
// query for the rest of the tick.
func (r *run) worldStateIngest(context.Context) behaviortree.Status {
	r.obstacles = r.s.worldSvc.Obstacles()
	return behaviortree.Success
}

// collisionQuery publishes evaluated FK poses and per-link closest-point
// records.
func (r *run) collisionQuery(context.Context) behaviortree.Status {
	links := make([]collision.Object, 0, len(r.queriedLinks))
	for _, linkName := range r.queriedLinks {
		fk := r.fkEvaluators[[2]string{r.s.model.Root(), linkName}]
		pose, _, err := fk.evaluate(r.s.store)
		if err != nil {
			return r.fail(err)
		}
		link, _ := r.s.model.Link(linkName)
		if link == nil || link.Geometry == nil {
			continue
		}
		geomPose := composePose(pose, link.Geometry.Origin)
		geom, err := collision.PoseGeometry(collision.ShapeSpec{
			Kind:   link.Geometry.Kind,
			Radius: link.Geometry.Radius,
			Length: link.Geometry.Length,
			Dims:   dimsVec(link.Geometry.Dims),
		}, geomPose)
		if err != nil {
			return r.fail(err)
		}
		links = append(links, collision.Object{Name: linkName, Geom: geom})
	}
	results := r.s.checker.Closest(links, r.obstacles, r.allowed)
	collision.PublishAll(r.s.store, results)
	r.lastClosest = results

	for _, fk := range r.fkEvaluators {
		if err := fk.publish(r.s.store); err != nil {
			return r.fail(err)
		}
	}
	return behaviortree.Success
}

// evaluateConstraints materializes the tick's QP matrices.
func (r *run) evaluateConstraints(context.Context) behaviortree.Status {
	m, err := r.problem.Evaluate(r.s.store)
	if err != nil {
		return r.fail(err)
	}
	r.matrices = m
	return behaviortree.Success
}

// solveQP computes joint velocities and publishes them as motor commands.
func (r *run) solveQP(context.Context) behaviortree.Status {
	x, err := r.solver.Solve(r.matrices, 0)
	if err != nil {
		return r.fail(err)
	}
	n := len(r.problem.ControlledJoints())
	r.lastCmd = x[:n]
	for i, j := range r.problem.ControlledJoints() {
		r.s.store.Set(motorCmdPath(j.Name), x[i])
	}
	return behaviortree.Success
}

// integrateAndLog advances the kinematic simulation one step and appends
// the resulting joint state to the trajectory. Outside the planning
// universe the real controller owns integration, so this is a no-op.
func (r *run) integrateAndLog(context.Context) behaviortree.Status {
	if r.universe != planningUniverse {
		return behaviortree.Success
	}
	dt := r.s.cfg.Dt()
	now, err := r.s.store.GetFloat(timePath())
	if err != nil {
		now = 0
	}
	now += dt
	r.s.store.Set(timePath(), now)

	state := trajectory.JointState{}
	for _, j := range r.problem.ControlledJoints() {
		q, err := r.s.store.GetFloat(jointStatePath(j.Name, "position"))
		if err != nil {
			return r.fail(err)
		}
		cmd, err := r.s.store.GetFloat(motorCmdPath(j.Name))
		if err != nil {
			cmd = 0
		}
		q += cmd * dt
		r.s.store.Set(jointStatePath(j.Name, "position"), q)
		r.s.store.Set(jointStatePath(j.Name, "velocity"), cmd)
		state[j.Name] = trajectory.SingleJointState{Name: j.Name, Position: q, Velocity: cmd}
	}
	r.traj.Append(now, state)
	return behaviortree.Success
}

// planningGuard runs the plan subtree in a parallel universe: snapshot,
// swap the joint-state source for the kinematic integrator, tick until a
// terminating condition, then restore. The trajectory survives the
// restore; everything else rolls back.
func (r *run) planningGuard(ctx context.Context) behaviortree.Status {
	if r.universe != realUniverse {
		return r.fail(ErrWiggle) // guards never run nested
	}
	if r.depth >= r.s.cfg.MaxUniverseDepth {
		return r.fail(ErrTimeout)
	}
	snap := r.s.store.Snapshot()
	r.depth++
	r.universe = planningUniverse
	r.traj = trajectory.New()
	defer func() {
		r.universe = realUniverse
		r.depth--
		r.s.store.Restore(snap)
	}()

	settled := 0
	window := newWiggleDetector(r.s.cfg.WiggleWindow)
	for i := 0; i < r.s.cfg.MaxPlanningTicks; i++ {
		select {
		case <-ctx.Done():
			return r.fail(ctx.Err())
		default:
		}
		if st := r.planCore.Tick(ctx); st == behaviortree.Failure {
			return behaviortree.Failure
		}
		if i >= r.s.cfg.MinPlanningTicks && r.maxCmd() < r.s.cfg.GoalReachedVelEps {
			settled++
			if settled >= 2 {
				r.planned = true
				return behaviortree.Success
			}
		} else {
			settled = 0
		}
		positions, err := r.positions()
		if err != nil {
			return r.fail(err)
		}
		if window.observe(positions, r.lastCmd, r.s.cfg.Dt()) {
			return r.fail(ErrWiggle)
		}
	}
	return r.fail(ErrTimeout)
}

func (r *run) positions() ([]float64, error) {
	joints := r.problem.ControlledJoints()
	out := make([]float64, len(joints))
	for i, j := range joints {
		q, err := r.s.store.GetFloat(jointStatePath(j.Name, "position"))
		if err != nil {
			return nil, err
		}
		out[i] = q
	}
	return out, nil
}

func (r *run) maxCmd() float64 {
	m := 0.0
	for _, v := range r.lastCmd {
		if a := math.Abs(v); a > m {
			m = a
		}
	}
	return m
}

// dispatchTrajectory streams the planned trajectory to the controller.
func (r *run) dispatchTrajectory(ctx context.Context) behaviortree.Status {
	if !r.planned {
		return r.fail(ErrTimeout)
	}
	if err := r.s.executor.Dispatch(ctx, r.traj); err != nil {
		return r.fail(err)
	}
	return behaviortree.Success
}

func dimsVec(d [3]float64) r3.Vector {
	return r3.Vector{X: d[0], Y: d[1], Z: d[2]}
}

// wiggleDetector flags planning that keeps commanding motion without net
// displacement over a window: lots of commanded path, no progress.
type wiggleDetector struct {
	window int
	start  []float64
	path   float64
	ticks  int
}

func newWiggleDetector(window int) *wiggleDetector {
	return &wiggleDetector{window: window}
}

func (w *wiggleDetector) observe(positions, cmd []float64, dt float64) bool {
	if len(cmd) == 0 || len(positions) == 0 {
		return false
	}
	if w.start == nil {
		w.start = append([]float64(nil), positions...)
	}
	for _, v := range cmd {
		w.path += math.Abs(v) * dt
	}
	w.ticks++
	if w.ticks < w.window {
		return false
	}
	net := 0.0
	for i := range positions {
		if d := math.Abs(positions[i] - w.start[i]); d > net {
			net = d
		}
	}
	wiggling := w.path > 0.05 && net < w.path/20
	w.start = append(w.start[:0], positions...)
	w.path = 0
	w.ticks = 0
	return wiggling
}
