package motion

import (
	"math"
	"sort"

	"github.com/golang/geo/r3"

	"github.com/Ange-Michel/wholebody/blackboard"
	"github.com/Ange-Michel/wholebody/collision"
	"github.com/Ange-Michel/wholebody/logging"
	"github.com/Ange-Michel/wholebody/robot"
	"github.com/Ange-Michel/wholebody/symbolic"
)

// fkEvaluator is one (root, tip) pair's compiled numeric forward
// kinematics, publishing the evaluated pose under fk/(root,tip)/pose each
// tick.
type fkEvaluator struct {
	root, tip string
	syms      []symbolic.Symbol
	program   *symbolic.Program
	in        []float64
	out       []float64
}

func newFKEvaluator(
	store *blackboard.Store,
	model *robot.Model,
	root, tip, cacheDir string,
	logger logging.Logger,
) (*fkEvaluator, error) {
	frame, err := model.FK(store, root, tip)
	if err != nil {
		return nil, err
	}
	symSet := map[symbolic.Symbol]struct{}{}
	for _, e := range frame.Elements() {
		e.FreeSymbols(symSet)
	}
	syms := make([]symbolic.Symbol, 0, len(symSet))
	for s := range symSet {
		syms = append(syms, s)
	}
	sort.Slice(syms, func(i, j int) bool { return syms[i] < syms[j] })
	program, err := symbolic.CompileCached(cacheDir, frame, syms, logger)
	if err != nil {
		return nil, err
	}
	return &fkEvaluator{
		root:    root,
		tip:     tip,
		syms:    syms,
		program: program,
		in:      make([]float64, len(syms)),
		out:     make([]float64, 16),
	}, nil
}

// evaluate computes the current pose of tip in root.
func (f *fkEvaluator) evaluate(store *blackboard.Store) (collision.Pose, [4]float64, error) {
	if err := store.Resolve(f.syms, f.in); err != nil {
		return collision.Pose{}, [4]float64{}, err
	}
	if err := f.program.Eval(f.in, f.out); err != nil {
		return collision.Pose{}, [4]float64{}, err
	}
	m := f.out
	pose := collision.Pose{
		Pos: r3.Vector{X: m[3], Y: m[7], Z: m[11]},
		Rot: [3]r3.Vector{
			{X: m[0], Y: m[4], Z: m[8]},
			{X: m[1], Y: m[5], Z: m[9]},
			{X: m[2], Y: m[6], Z: m[10]},
		},
	}
	return pose, quatFromMatrix(m), nil
}

// publish writes the evaluated pose into the store.
func (f *fkEvaluator) publish(store *blackboard.Store) error {
	pose, quat, err := f.evaluate(store)
	if err != nil {
		return err
	}
	store.Set(robot.FKPath(f.root, f.tip, "position", "x"), pose.Pos.X)
	store.Set(robot.FKPath(f.root, f.tip, "position", "y"), pose.Pos.Y)
	store.Set(robot.FKPath(f.root, f.tip, "position", "z"), pose.Pos.Z)
	store.Set(robot.FKPath(f.root, f.tip, "orientation", "x"), quat[0])
	store.Set(robot.FKPath(f.root, f.tip, "orientation", "y"), quat[1])
	store.Set(robot.FKPath(f.root, f.tip, "orientation", "z"), quat[2])
	store.Set(robot.FKPath(f.root, f.tip, "orientation", "w"), quat[3])
	return nil
}

// quatFromMatrix extracts an xyzw quaternion from a row-major 4×4
// transform using Shepperd's method.
func quatFromMatrix(m []float64) [4]float64 {
	r00, r01, r02 := m[0], m[1], m[2]
	r10, r11, r12 := m[4], m[5], m[6]
	r20, r21, r22 := m[8], m[9], m[10]
	tr := r00 + r11 + r22
	var q [4]float64
	switch {
	case tr > 0:
		s := math.Sqrt(tr+1) * 2
		q[3] = s / 4
		q[0] = (r21 - r12) / s
		q[1] = (r02 - r20) / s
		q[2] = (r10 - r01) / s
	case r00 > r11 && r00 > r22:
		s := math.Sqrt(1+r00-r11-r22) * 2
		q[3] = (r21 - r12) / s
		q[0] = s / 4
		q[1] = (r01 + r10) / s
		q[2] = (r02 + r20) / s
	case r11 > r22:
		s := math.Sqrt(1+r11-r00-r22) * 2
		q[3] = (r02 - r20) / s
		q[0] = (r01 + r10) / s
		q[1] = s / 4
		q[2] = (r12 + r21) / s
	default:
		s := math.Sqrt(1+r22-r00-r11) * 2
		q[3] = (r10 - r01) / s
		q[0] = (r02 + r20) / s
		q[1] = (r12 + r21) / s
		q[2] = s / 4
	}
	return q
}

// composePose places a local offset within a parent pose.
func composePose(parent collision.Pose, offset robot.PoseSpec) collision.Pose {
	local := r3.Vector{X: offset.XYZ[0], Y: offset.XYZ[1], Z: offset.XYZ[2]}
	rot := rpyToRot(offset.RPY)
	out := collision.Pose{Pos: parent.Apply(local)}
	for i := 0; i < 3; i++ {
		out.Rot[i] = parent.ApplyDir(rot[i])
	}
	return out
}

func rpyToRot(rpy [3]float64) [3]r3.Vector {
	cr, sr := math.Cos(rpy[0]), math.Sin(rpy[0])
	cp, sp := math.Cos(rpy[1]), math.Sin(rpy[1])
	cy, sy := math.Cos(rpy[2]), math.Sin(rpy[2])
	// columns of Rz(yaw)·Ry(pitch)·Rx(roll)
	return [3]r3.Vector{
		{X: cy * cp, Y: sy * cp, Z: -sp},
		{X: cy*sp*sr - sy*cr, Y: sy*sp*sr + cy*cr, Z: cp * sr},
		{X: cy*sp*cr + sy*sr, Y: sy*sp*cr - cy*sr, Z: cp * cr},
	}
}
