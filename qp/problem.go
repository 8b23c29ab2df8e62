// Package qp assembles and solves the per-tick quadratic program that turns
// active soft constraints into joint velocity commands.
package qp

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/Ange-Michel/wholebody/blackboard"
	"github.com/Ange-Michel/wholebody/constraint"
	"github.com/Ange-Michel/wholebody/logging"
	"github.com/Ange-Michel/wholebody/robot"
	"github.com/Ange-Michel/wholebody/symbolic"
)

// slackBound boxes the soft-constraint slack variables. Effectively
// unbounded; kept finite for the backend's benefit.
const slackBound = 1e9

// Matrices is one tick's QP data:
//
//	min ½ xᵀHx  s.t.  lb ≤ x ≤ ub,  lbA ≤ Ax ≤ ubA
//
// where x stacks the joint velocities and the soft-constraint slack.
type Matrices struct {
	H   []float64 // diagonal, length n
	G   []float64 // zero, length n
	A   *mat.Dense
	Lb  []float64
	Ub  []float64
	LbA []float64
	UbA []float64
}

// Vars returns the number of decision variables.
func (m *Matrices) Vars() int { return len(m.H) }

// hasBadValues reports NaN or Inf anywhere a finite number is required.
func (m *Matrices) hasBadValues() bool {
	for _, v := range m.H {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return true
		}
	}
	r, c := m.A.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if v := m.A.At(i, j); math.IsNaN(v) || math.IsInf(v, 0) {
				return true
			}
		}
	}
	for _, s := range [][]float64{m.LbA, m.UbA, m.Lb, m.Ub} {
		for _, v := range s {
			if math.IsNaN(v) {
				return true
			}
		}
	}
	return false
}

// Problem is the compiled aggregation of one active goal set: a single
// evaluator producing every per-tick quantity, plus the static layout.
// Compilation happens once per goal-set change; Evaluate runs every tick.
type Problem struct {
	logger logging.Logger

	controlled []*robot.Joint
	jointSyms  []symbolic.Symbol
	names      []string // soft constraint names, sorted

	syms    []symbolic.Symbol
	program *symbolic.Program
	in      []float64
	out     []float64

	dt float64
}

// SoftConstraintNames returns the ordered soft constraint names.
func (p *Problem) SoftConstraintNames() []string { return p.names }

// ControlledJoints returns the joints whose velocities the QP decides, in
// velocity-vector order.
func (p *Problem) ControlledJoints() []*robot.Joint { return p.controlled }

// NewProblem compiles the soft constraint set of the active goals into one
// evaluator. dt is the integration step used to linearize the joint
// position limits; cacheDir, when nonempty, holds compiled artifacts.
func NewProblem(
	store *blackboard.Store,
	model *robot.Model,
	softConstraints map[string]constraint.SoftConstraint,
	dt float64,
	cacheDir string,
	logger logging.Logger,
) (*Problem, error) {
	controlled := model.ControlledJoints()
	n := len(controlled)

	names := make([]string, 0, len(softConstraints))
	for name := range softConstraints {
		names = append(names, name)
	}
	sort.Strings(names)
	m := len(names)

	jointSyms := make([]symbolic.Symbol, n)
	for i, j := range controlled {
		jointSyms[i] = model.PositionSymbol(store, j.Name)
	}

	// One output column: M weights, M lowers, M uppers, then the M×N
	// Jacobian of the tracked expressions, row major.
	outputs := make([]*symbolic.Expr, 0, 3*m+m*n)
	for _, name := range names {
		outputs = append(outputs, softConstraints[name].Weight)
	}
	for _, name := range names {
		outputs = append(outputs, softConstraints[name].Lower)
	}
	for _, name := range names {
		outputs = append(outputs, softConstraints[name].Upper)
	}
	for _, name := range names {
		expr := softConstraints[name].Expression
		for _, js := range jointSyms {
			d, err := symbolic.Diff(expr, js)
			if err != nil {
				return nil, err
			}
			outputs = append(outputs, d)
		}
	}

	symSet := map[symbolic.Symbol]struct{}{}
	for _, e := range outputs {
		e.FreeSymbols(symSet)
	}
	syms := make([]symbolic.Symbol, 0, len(symSet))
	for s := range symSet {
		syms = append(syms, s)
	}
	sort.Slice(syms, func(i, j int) bool { return syms[i] < syms[j] })

	program, err := symbolic.CompileCached(cacheDir, symbolic.ColVec(outputs...), syms, logger)
	if err != nil {
		return nil, err
	}
	logger.Debugf("compiled constraint evaluator: %d soft constraints, %d joints, %d symbols",
		m, n, len(syms))

	return &Problem{
		logger:     logger,
		controlled: controlled,
		jointSyms:  jointSyms,
		names:      names,
		syms:       syms,
		program:    program,
		in:         make([]float64, len(syms)),
		out:        make([]float64, program.OutputLen()),
		dt:         dt,
	}, nil
}

// Evaluate materializes the tick's QP matrices from the store's current
// numeric state.
func (p *Problem) Evaluate(store *blackboard.Store) (*Matrices, error) {
	if err := store.Resolve(p.syms, p.in); err != nil {
		return nil, err
	}
	if err := p.program.Eval(p.in, p.out); err != nil {
		return nil, err
	}

	n := len(p.controlled)
	m := len(p.names)
	weights := p.out[:m]
	lowers := p.out[m : 2*m]
	uppers := p.out[2*m : 3*m]
	jac := p.out[3*m:]

	// Hard rows: one position-limit row per bounded joint.
	var hardJoints []int
	for i, j := range p.controlled {
		if !j.IsContinuous() && j.Limit.Min < j.Limit.Max {
			hardJoints = append(hardJoints, i)
		}
	}
	nHard := len(hardJoints)

	nv := n + m
	qpm := &Matrices{
		H:   make([]float64, nv),
		G:   make([]float64, nv),
		A:   mat.NewDense(nHard+m, nv, nil),
		Lb:  make([]float64, nv),
		Ub:  make([]float64, nv),
		LbA: make([]float64, nHard+m),
		UbA: make([]float64, nHard+m),
	}

	for i, j := range p.controlled {
		qpm.H[i] = j.Weight
		qpm.Lb[i] = -j.Limit.Velocity
		qpm.Ub[i] = j.Limit.Velocity
	}
	for jj := 0; jj < m; jj++ {
		qpm.H[n+jj] = weights[jj] * weights[jj]
		qpm.Lb[n+jj] = -slackBound
		qpm.Ub[n+jj] = slackBound
	}

	for row, ji := range hardJoints {
		joint := p.controlled[ji]
		q, err := store.GetFloat(robot.PositionPath(joint.Name))
		if err != nil {
			return nil, err
		}
		qpm.A.Set(row, ji, 1)
		qpm.LbA[row] = (joint.Limit.Min - q) / p.dt
		qpm.UbA[row] = (joint.Limit.Max - q) / p.dt
	}
	for jj := 0; jj < m; jj++ {
		row := nHard + jj
		for i := 0; i < n; i++ {
			qpm.A.Set(row, i, jac[jj*n+i])
		}
		qpm.A.Set(row, n+jj, 1)
		qpm.LbA[row] = lowers[jj]
		qpm.UbA[row] = uppers[jj]
	}
	return qpm, nil
}
