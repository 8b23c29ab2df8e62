package motion

import (
	"context"

	"github.com/pkg/errors"

	"github.com/Ange-Michel/wholebody/blackboard"
	"github.com/Ange-Michel/wholebody/qp"
	"github.com/Ange-Michel/wholebody/symbolic"
	"github.com/Ange-Michel/wholebody/trajectory"
)

// ErrTimeout means the wall clock or the planning-tick cap ran out.
var ErrTimeout = errors.New("motion timed out")

// ErrCancelled means an external cancel stopped the motion gracefully.
var ErrCancelled = errors.New("motion cancelled")

// ErrWiggle means planning oscillated without progress.
var ErrWiggle = errors.New("planning oscillated without making progress")

// codeOf translates a motion error into its result code.
func codeOf(err error) ResultCode {
	switch {
	case err == nil:
		return Success
	case errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded):
		return Timeout
	case errors.Is(err, ErrCancelled) || errors.Is(err, context.Canceled):
		return Cancelled
	case errors.Is(err, qp.ErrMaxWorkingSetReached):
		return MaxWorkingSetReached
	}
	var infeasible *qp.InfeasibleError
	if errors.As(err, &infeasible) {
		return QPInfeasible
	}
	var compile *symbolic.CompileError
	if errors.As(err, &compile) {
		return CompileFailed
	}
	var missing *blackboard.PathMissingError
	if errors.As(err, &missing) {
		return PathMissing
	}
	var exec *trajectory.ExecutionError
	if errors.As(err, &exec) {
		return ExecutionFailed
	}
	return Error
}
