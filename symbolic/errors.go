package symbolic

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrNotDifferentiable is returned when a Jacobian is requested over an
// expression containing a non-smooth operation.
var ErrNotDifferentiable = errors.New("expression is not differentiable")

// CompileError reports a structural problem found while compiling an
// expression matrix. It is fatal for the motion that requested it.
type CompileError struct {
	Reason string
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("compile failed: %s", e.Reason)
}

func newCompileErrorf(format string, args ...interface{}) *CompileError {
	return &CompileError{Reason: fmt.Sprintf(format, args...)}
}
