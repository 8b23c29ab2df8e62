// Package trajectory accumulates planned joint states and streams them to
// external joint controllers.
package trajectory

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/multierr"

	"github.com/Ange-Michel/wholebody/logging"
)

// SingleJointState is one joint's sampled state.
type SingleJointState struct {
	Name     string
	Position float64
	Velocity float64
	Effort   float64
}

// JointState maps joint names to their state.
type JointState map[string]SingleJointState

// Clone returns a copy safe to retain.
func (js JointState) Clone() JointState {
	out := make(JointState, len(js))
	for k, v := range js {
		out[k] = v
	}
	return out
}

// Names returns the joint names, sorted.
func (js JointState) Names() []string {
	out := make([]string, 0, len(js))
	for name := range js {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Sample is one trajectory point.
type Sample struct {
	Time  float64
	State JointState
}

// Trajectory is an ordered sequence of samples appended once per planning
// tick.
type Trajectory struct {
	samples []Sample
}

// New returns an empty trajectory.
func New() *Trajectory { return &Trajectory{} }

// Append records a sample. The state is cloned.
func (t *Trajectory) Append(time float64, state JointState) {
	t.samples = append(t.samples, Sample{Time: time, State: state.Clone()})
}

// Len returns the number of samples.
func (t *Trajectory) Len() int { return len(t.samples) }

// Samples returns the recorded samples.
func (t *Trajectory) Samples() []Sample { return t.samples }

// Last returns the final sample.
func (t *Trajectory) Last() (Sample, bool) {
	if len(t.samples) == 0 {
		return Sample{}, false
	}
	return t.samples[len(t.samples)-1], true
}

// Controller receives planned trajectories; implementations talk to the
// actual joint controllers.
type Controller interface {
	FollowTrajectory(ctx context.Context, traj *Trajectory) error
	// Stop commands zero velocity immediately.
	Stop(ctx context.Context) error
}

// ExecutionError reports a dispatch failure. The store is left untouched;
// the robot is stopped.
type ExecutionError struct {
	Underlying error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("trajectory dispatch failed: %v", e.Underlying)
}

func (e *ExecutionError) Unwrap() error { return e.Underlying }

// Executor streams trajectories to a controller.
type Executor struct {
	logger     logging.Logger
	controller Controller
}

// NewExecutor returns an Executor.
func NewExecutor(controller Controller, logger logging.Logger) *Executor {
	return &Executor{logger: logger, controller: controller}
}

// Dispatch streams traj. Failures stop the robot and surface as
// ExecutionErrors aggregating everything that went wrong.
func (e *Executor) Dispatch(ctx context.Context, traj *Trajectory) error {
	if traj.Len() == 0 {
		return nil
	}
	if err := e.controller.FollowTrajectory(ctx, traj); err != nil {
		e.logger.Errorf("trajectory dispatch failed, stopping: %v", err)
		if stopErr := e.controller.Stop(ctx); stopErr != nil {
			err = multierr.Append(err, stopErr)
		}
		return &ExecutionError{Underlying: err}
	}
	return nil
}
