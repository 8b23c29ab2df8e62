package trajectory

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"go.viam.com/test"

	"github.com/Ange-Michel/wholebody/logging"
)

func TestAppendAndClone(t *testing.T) {
	traj := New()
	state := JointState{"j1": {Name: "j1", Position: 1}}
	traj.Append(0.02, state)

	// later mutation of the caller's map must not leak into the sample
	state["j1"] = SingleJointState{Name: "j1", Position: 99}
	traj.Append(0.04, state)

	test.That(t, traj.Len(), test.ShouldEqual, 2)
	test.That(t, traj.Samples()[0].State["j1"].Position, test.ShouldEqual, 1.0)
	test.That(t, traj.Samples()[1].State["j1"].Position, test.ShouldEqual, 99.0)

	last, ok := traj.Last()
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, last.Time, test.ShouldEqual, 0.04)

	_, ok = New().Last()
	test.That(t, ok, test.ShouldBeFalse)
}

func TestJointStateNames(t *testing.T) {
	js := JointState{
		"b": {Name: "b"},
		"a": {Name: "a"},
		"c": {Name: "c"},
	}
	test.That(t, js.Names(), test.ShouldResemble, []string{"a", "b", "c"})
}

type fakeController struct {
	followErr error
	stopErr   error
	followed  int
	stopped   int
}

func (f *fakeController) FollowTrajectory(context.Context, *Trajectory) error {
	f.followed++
	return f.followErr
}

func (f *fakeController) Stop(context.Context) error {
	f.stopped++
	return f.stopErr
}

func TestExecutorDispatch(t *testing.T) {
	logger := logging.NewTestLogger(t)
	ctrl := &fakeController{}
	exec := NewExecutor(ctrl, logger)

	traj := New()
	traj.Append(0.02, JointState{"j1": {Name: "j1", Position: 0.5}})
	test.That(t, exec.Dispatch(context.Background(), traj), test.ShouldBeNil)
	test.That(t, ctrl.followed, test.ShouldEqual, 1)

	// empty trajectories are not dispatched
	test.That(t, exec.Dispatch(context.Background(), New()), test.ShouldBeNil)
	test.That(t, ctrl.followed, test.ShouldEqual, 1)
}

func TestExecutorDispatchFailureStopsRobot(t *testing.T) {
	logger := logging.NewTestLogger(t)
	ctrl := &fakeController{followErr: errors.New("controller offline")}
	exec := NewExecutor(ctrl, logger)

	traj := New()
	traj.Append(0.02, JointState{"j1": {Name: "j1"}})
	err := exec.Dispatch(context.Background(), traj)
	test.That(t, err, test.ShouldNotBeNil)
	var execErr *ExecutionError
	test.That(t, errors.As(err, &execErr), test.ShouldBeTrue)
	test.That(t, ctrl.stopped, test.ShouldEqual, 1)
}
