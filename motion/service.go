package motion

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/atomic"
	goutils "go.viam.com/utils"

	"github.com/Ange-Michel/wholebody/behaviortree"
	"github.com/Ange-Michel/wholebody/blackboard"
	"github.com/Ange-Michel/wholebody/collision"
	"github.com/Ange-Michel/wholebody/constraint"
	"github.com/Ange-Michel/wholebody/logging"
	"github.com/Ange-Michel/wholebody/qp"
	"github.com/Ange-Michel/wholebody/robot"
	"github.com/Ange-Michel/wholebody/trajectory"
	"github.com/Ange-Michel/wholebody/world"
)

// Service accepts move goals and runs them to completion, one at a time.
// The blackboard is owned by the tick loop; producer threads only touch
// their mailboxes.
type Service struct {
	logger   logging.Logger
	cfg      Config
	model    *robot.Model
	store    *blackboard.Store
	worldSvc *world.Service
	executor *trajectory.Executor
	checker  *collision.Checker
	clock    clock.Clock

	jsMailbox *Mailbox[trajectory.JointState]

	mu     sync.Mutex
	moving atomic.Bool
}

// NewService wires the executive together. A nil clk uses the wall clock.
func NewService(
	model *robot.Model,
	worldSvc *world.Service,
	controller trajectory.Controller,
	cfg Config,
	clk clock.Clock,
	logger logging.Logger,
) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Service{
		logger:    logger,
		cfg:       cfg,
		model:     model,
		store:     blackboard.New(),
		worldSvc:  worldSvc,
		executor:  trajectory.NewExecutor(controller, logger),
		checker:   collision.NewChecker(logger),
		clock:     clk,
		jsMailbox: NewMailbox[trajectory.JointState](),
	}, nil
}

// Store exposes the blackboard for observation. Mutating it outside the
// tick loop is the caller's own risk.
func (s *Service) Store() *blackboard.Store { return s.store }

// PublishJointState is the joint-state ingress; safe to call from any
// producer thread.
func (s *Service) PublishJointState(js trajectory.JointState) {
	s.jsMailbox.Put(js.Clone())
}

// SubscribeJointStates consumes a joint-state stream on its own producer
// goroutine, feeding the ingress mailbox until the channel closes or the
// context ends.
func (s *Service) SubscribeJointStates(ctx context.Context, ch <-chan trajectory.JointState) {
	goutils.PanicCapturingGo(func() {
		for {
			select {
			case <-ctx.Done():
				return
			case js, ok := <-ch:
				if !ok {
					return
				}
				s.PublishJointState(js)
			}
		}
	})
}

// run is one MoveCmd's live state, threaded through the tree leaves.
type run struct {
	s       *Service
	id      string
	problem *qp.Problem
	solver  *qp.Solver

	queriedLinks []string
	fkEvaluators map[[2]string]*fkEvaluator
	allowed      func(link, body string) bool
	obstacles    []collision.Object
	lastClosest  map[string]collision.ClosestPoint

	matrices *qp.Matrices
	lastCmd  []float64
	traj     *trajectory.Trajectory

	universe universe
	depth    int
	planned  bool
	err      error

	planCore behaviortree.Node
	root     behaviortree.Node
}

// Move plans and executes each command of the goal in order. Cancel via
// ctx; the current tick finishes, then the motion stops cleanly with a
// zero velocity command.
func (s *Service) Move(ctx context.Context, goal MoveGoal) *MoveResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.moving.Store(true)
	defer s.moving.Store(false)

	ctx, cancel := context.WithTimeout(ctx, s.cfg.WallTimeout)
	defer cancel()

	if len(goal.Cmds) == 0 {
		return &MoveResult{Code: Error, Err: errors.New("move goal contains no commands")}
	}

	var lastTraj *trajectory.Trajectory
	for i, cmd := range goal.Cmds {
		r, err := s.newRun(cmd)
		if err != nil {
			return &MoveResult{Code: codeOf(err), Err: err}
		}
		s.logger.Infof("running move command %d/%d (%s)", i+1, len(goal.Cmds), r.id)
		err = behaviortree.NewTicker(s.cfg.TreeTickRate, s.clock, s.logger).Run(ctx, r.root)
		lastTraj = r.traj
		if err != nil {
			if r.err != nil {
				err = r.err
			}
			s.stopRobot(r)
			return &MoveResult{Code: codeOf(err), Err: err, Trajectory: lastTraj}
		}
	}
	return &MoveResult{Code: Success, Trajectory: lastTraj}
}

// stopRobot publishes a zero velocity command after a failed or cancelled
// motion.
func (s *Service) stopRobot(r *run) {
	for _, j := range s.model.ControlledJoints() {
		s.store.Set(motorCmdPath(j.Name), 0.0)
	}
	stopCtx := context.Background()
	if err := s.executor.Dispatch(stopCtx, zeroTrajectory(r)); err != nil {
		s.logger.Errorf("stop dispatch failed: %v", err)
	}
}

func zeroTrajectory(r *run) *trajectory.Trajectory {
	traj := trajectory.New()
	state := trajectory.JointState{}
	for _, j := range r.s.model.ControlledJoints() {
		q, err := r.s.store.GetFloat(jointStatePath(j.Name, "position"))
		if err != nil {
			continue
		}
		state[j.Name] = trajectory.SingleJointState{Name: j.Name, Position: q, Velocity: 0}
	}
	if len(state) > 0 {
		traj.Append(0, state)
	}
	return traj
}

// newRun converts one MoveCmd into goals, installs them, compiles the
// problem, and builds the tick tree.
func (s *Service) newRun(cmd MoveCmd) (*run, error) {
	goals, err := s.buildGoals(cmd)
	if err != nil {
		return nil, err
	}
	if len(goals) == 0 {
		return nil, errors.New("move command contains no constraints")
	}

	s.seedJointState()
	s.store.Set(timePath(), 0.0)

	softConstraints := map[string]constraint.SoftConstraint{}
	for _, g := range goals {
		if err := g.Install(s.store); err != nil {
			return nil, err
		}
		scs, err := g.SoftConstraints(s.store)
		if err != nil {
			return nil, err
		}
		for name, sc := range scs {
			if _, ok := softConstraints[name]; ok {
				return nil, errors.Errorf("soft constraint %q emitted twice", name)
			}
			softConstraints[name] = sc
		}
	}

	problem, err := qp.NewProblem(s.store, s.model, softConstraints, s.cfg.Dt(), s.cfg.EvaluatorCacheDir, s.logger)
	if err != nil {
		return nil, err
	}

	r := &run{
		s:            s,
		id:           uuid.NewString(),
		problem:      problem,
		solver:       qp.NewSolver(s.logger),
		fkEvaluators: map[[2]string]*fkEvaluator{},
		traj:         trajectory.New(),
		allowed:      allowedFn(cmd.Collisions),
	}

	// The links the collision module queries: every controlled link with
	// geometry, plus whatever the goals name.
	linkSet := map[string]struct{}{}
	for _, l := range s.model.ControlledLinks() {
		linkSet[l] = struct{}{}
	}
	for _, g := range goals {
		if ca, ok := g.(constraint.CollisionAware); ok {
			for _, l := range ca.CollisionLinks() {
				linkSet[l] = struct{}{}
			}
		}
	}
	for l := range linkSet {
		r.queriedLinks = append(r.queriedLinks, l)
	}

	// Evaluated FK pairs: everything the goals reference, plus root→link
	// for each queried link (the collision query needs their poses).
	pairSet := map[[2]string]struct{}{}
	for _, g := range goals {
		if fa, ok := g.(constraint.FKAware); ok {
			for _, p := range fa.FKPairs() {
				pairSet[p] = struct{}{}
			}
		}
	}
	for _, l := range r.queriedLinks {
		pairSet[[2]string{s.model.Root(), l}] = struct{}{}
	}
	for pair := range pairSet {
		fk, err := newFKEvaluator(s.store, s.model, pair[0], pair[1], s.cfg.EvaluatorCacheDir, s.logger)
		if err != nil {
			return nil, err
		}
		r.fkEvaluators[pair] = fk
	}

	r.planCore = behaviortree.NewSequence("plan-core",
		behaviortree.NewLeaf("CollisionQuery", r.collisionQuery),
		behaviortree.NewLeaf("EvaluateConstraints", r.evaluateConstraints),
		behaviortree.NewLeaf("SolveQP", r.solveQP),
		behaviortree.NewLeaf("IntegrateAndLog", r.integrateAndLog),
	)
	r.root = behaviortree.NewSequence("root",
		behaviortree.NewParallel("perceive",
			behaviortree.NewLeaf("JointStateIngest", r.jointStateIngest),
			behaviortree.NewLeaf("WorldStateIngest", r.worldStateIngest),
		),
		behaviortree.NewSequence("plan",
			r.planCore,
			behaviortree.NewLeaf("UntilPlanningDoneGuard", r.planningGuard),
		),
		behaviortree.NewLeaf("DispatchTrajectory", r.dispatchTrajectory),
	)
	return r, nil
}

// seedJointState guarantees every controlled joint has a position leaf
// before the first perception arrives.
func (s *Service) seedJointState() {
	if js, ok := s.jsMailbox.Take(); ok {
		for name, sjs := range js {
			s.store.Set(jointStatePath(name, "position"), sjs.Position)
			s.store.Set(jointStatePath(name, "velocity"), sjs.Velocity)
			s.store.Set(jointStatePath(name, "effort"), sjs.Effort)
		}
	}
	for _, j := range s.model.ControlledJoints() {
		if !s.store.Has(jointStatePath(j.Name, "position")) {
			s.store.Set(jointStatePath(j.Name, "position"), 0.0)
			s.store.Set(jointStatePath(j.Name, "velocity"), 0.0)
		}
	}
}

func (s *Service) buildGoals(cmd MoveCmd) ([]constraint.Goal, error) {
	var goals []constraint.Goal
	for _, jc := range cmd.JointConstraints {
		g := constraint.NewJointPosition(s.model, jc.JointName, jc.Goal)
		if jc.Weight != 0 {
			g.Weight = jc.Weight
		}
		if jc.MaxVelocity != 0 {
			g.MaxSpeed = jc.MaxVelocity
		}
		goals = append(goals, g)
	}
	for _, cc := range cmd.CartesianConstraints {
		switch cc.Type {
		case Translation3D:
			goals = append(goals, constraint.NewCartesianPosition(s.model, cc.RootLink, cc.TipLink, cc.Goal))
		case Rotation3D:
			goals = append(goals, constraint.NewCartesianOrientationSlerp(s.model, cc.RootLink, cc.TipLink, cc.Goal))
		default:
			return nil, errors.Errorf("unsupported cartesian constraint type %q", cc.Type)
		}
	}
	for _, gc := range cmd.Constraints {
		params := gc.Params
		if len(params) == 0 {
			params = json.RawMessage("{}")
		}
		g, err := constraint.NewFromJSON(gc.Type, s.model, params)
		if err != nil {
			return nil, err
		}
		goals = append(goals, g)
	}

	// Unless every collision is allowed, each controlled link with geometry
	// gets an avoidance goal.
	if !allowsEverything(cmd.Collisions) {
		minDistance := 0.0
		for _, ce := range cmd.Collisions {
			if ce.Action == AvoidCollision && ce.MinDistance > minDistance {
				minDistance = ce.MinDistance
			}
		}
		for _, link := range s.model.ControlledLinks() {
			g := constraint.NewLinkAvoidance(s.model, link)
			if minDistance > 0 {
				g.MaxWeightDistance = minDistance
				if g.ZeroWeightDistance <= minDistance {
					g.ZeroWeightDistance = minDistance + 0.05
					g.LowWeightDistance = minDistance + 0.02
				}
			}
			goals = append(goals, g)
		}
	}
	return goals, nil
}

func allowsEverything(entries []CollisionEntry) bool {
	for _, e := range entries {
		if e.Action == AllowCollision && matchesAll(e.Links) && matchesAll(e.Bodies) {
			return true
		}
	}
	return false
}

func matchesAll(set []string) bool {
	if len(set) == 0 {
		return true
	}
	for _, s := range set {
		if s == AllEntries {
			return true
		}
	}
	return false
}

func contains(set []string, name string) bool {
	if len(set) == 0 {
		return true
	}
	for _, s := range set {
		if s == AllEntries || s == name {
			return true
		}
	}
	return false
}

// allowedFn folds collision entries into a pair filter. Avoidance is the
// default; allow entries punch holes in it.
func allowedFn(entries []CollisionEntry) func(link, body string) bool {
	return func(link, body string) bool {
		allowed := true
		for _, e := range entries {
			if !contains(e.Links, link) || !contains(e.Bodies, body) {
				continue
			}
			switch e.Action {
			case AllowCollision:
				allowed = false
			case AvoidCollision:
				allowed = true
			}
		}
		return allowed
	}
}
