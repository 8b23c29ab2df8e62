package qp

import (
	"math"

	"github.com/pkg/errors"

	"github.com/Ange-Michel/wholebody/logging"
)

// ErrMaxWorkingSetReached means the backend exhausted its working-set
// budget while initializing; the motion cannot proceed.
var ErrMaxWorkingSetReached = errors.New("exhausted the working-set budget initializing the problem")

// InfeasibleError means no velocity assignment satisfied the hard
// constraints, after the retry pass.
type InfeasibleError struct {
	Detail string
}

func (e *InfeasibleError) Error() string {
	return "infeasible velocity problem: " + e.Detail
}

const solverRetries = 2

// Solver drives the sequential QP backend. The first Solve initializes;
// subsequent calls hotstart from the previous solution. Failed hotstarts
// are retried with the constraint matrix rounded to 5 decimal places, which
// shakes off the tiny Jacobian noise that otherwise flips the backend
// between near-identical working sets.
type Solver struct {
	logger  logging.Logger
	backend *admm
	started bool
}

// NewSolver returns a Solver.
func NewSolver(logger logging.Logger) *Solver {
	return &Solver{logger: logger, backend: newADMM()}
}

// Reset discards hotstart state; call on any goal-set change.
func (s *Solver) Reset() {
	s.backend = newADMM()
	s.started = false
}

func defaultBudget(m *Matrices) int {
	r, c := m.A.Dims()
	return 2 * (r + c)
}

// Solve returns the full variable vector (joint velocities first, slack
// after). nWSR <= 0 selects the default budget of 2·(rows+cols) of the
// constraint matrix.
func (s *Solver) Solve(m *Matrices, nWSR int) ([]float64, error) {
	if m.hasBadValues() {
		// A non-finite evaluation cannot be rounded away, so it is reported
		// as infeasible at once, without the retry pass.
		s.started = false
		return nil, &InfeasibleError{Detail: "constraint evaluation produced NaN or Inf"}
	}
	if nWSR <= 0 {
		nWSR = defaultBudget(m)
	}

	tries := solverRetries + 1
	work := m
	for attempt := 0; attempt < tries; attempt++ {
		var err error
		if !s.started {
			err = s.backend.solve(work, nWSR, false)
			if errors.Is(err, errBudgetExhausted) {
				s.started = false
				return nil, ErrMaxWorkingSetReached
			}
			if err == nil {
				s.started = true
			}
		} else {
			err = s.backend.solve(work, nWSR, true)
		}
		if err == nil {
			out := make([]float64, len(s.backend.x))
			copy(out, s.backend.x)
			return out, nil
		}
		if attempt < tries-1 {
			s.logger.Warnf("%v; retrying with A rounded to 5 decimal places", err)
			work = roundedCopy(work)
			nWSR = defaultBudget(work)
		}
	}
	s.started = false
	return nil, &InfeasibleError{Detail: "backend failed after retries"}
}

func roundedCopy(m *Matrices) *Matrices {
	out := &Matrices{
		H:   append([]float64(nil), m.H...),
		G:   append([]float64(nil), m.G...),
		Lb:  append([]float64(nil), m.Lb...),
		Ub:  append([]float64(nil), m.Ub...),
		LbA: append([]float64(nil), m.LbA...),
		UbA: append([]float64(nil), m.UbA...),
	}
	r, c := m.A.Dims()
	rounded := make([]float64, r*c)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			rounded[i*c+j] = math.Round(m.A.At(i, j)*1e5) / 1e5
		}
	}
	out.A = denseFrom(r, c, rounded)
	return out
}
