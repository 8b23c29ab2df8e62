// Package world tracks the bodies the robot moves among and services the
// synchronous update operations on them.
package world

import (
	"fmt"
	"sync"

	"github.com/golang/geo/r3"

	"github.com/Ange-Michel/wholebody/collision"
	"github.com/Ange-Michel/wholebody/logging"
	"github.com/Ange-Michel/wholebody/robot"
)

// BodyKind discriminates body descriptions.
type BodyKind string

// Supported body kinds.
const (
	PrimitiveBody BodyKind = "primitive"
	MeshBody      BodyKind = "mesh"
	ModelBody     BodyKind = "model"
)

// PrimitiveKind names a primitive shape. Anything outside the supported set
// is rejected as a corrupt shape.
type PrimitiveKind string

// Supported primitives.
const (
	BoxPrimitive      PrimitiveKind = "box"
	SpherePrimitive   PrimitiveKind = "sphere"
	CylinderPrimitive PrimitiveKind = "cylinder"
)

// PoseStamped is a pose in a named frame. Orientation is xyzw.
type PoseStamped struct {
	FrameID     string
	Position    r3.Vector
	Orientation [4]float64
}

func (p PoseStamped) collisionPose() collision.Pose {
	x, y, z, w := p.Orientation[0], p.Orientation[1], p.Orientation[2], p.Orientation[3]
	return collision.Pose{
		Pos: p.Position,
		Rot: [3]r3.Vector{
			{X: w*w + x*x - y*y - z*z, Y: 2*x*y + 2*w*z, Z: 2*x*z - 2*w*y},
			{X: 2*x*y - 2*w*z, Y: w*w - x*x + y*y - z*z, Z: 2*y*z + 2*w*x},
			{X: 2*x*z + 2*w*y, Y: 2*y*z - 2*w*x, Z: w*w - x*x - y*y + z*z},
		},
	}
}

// Body describes one world body.
type Body struct {
	Name      string
	Kind      BodyKind
	Primitive PrimitiveKind
	// Dims is the box size for boxes, and the bounding size for meshes.
	Dims r3.Vector
	// Radius and Length parameterize spheres and cylinders.
	Radius float64
	Length float64
	// MeshPath points at the mesh resource for mesh bodies.
	MeshPath string
}

type placedBody struct {
	body Body
	pose PoseStamped
}

// Service owns the world body set. ADD/REMOVE/REMOVE_ALL/DETACH are
// synchronous and return typed errors; nothing else mutates the set.
type Service struct {
	mu     sync.Mutex
	logger logging.Logger
	bodies map[string]*placedBody
	model  *robot.Model

	attached map[string]*placedBody
}

// NewService returns a Service. model receives rigidly attached bodies.
func NewService(model *robot.Model, logger logging.Logger) *Service {
	return &Service{
		logger:   logger,
		bodies:   map[string]*placedBody{},
		model:    model,
		attached: map[string]*placedBody{},
	}
}

func shapeOf(b Body) (collision.ShapeSpec, error) {
	switch b.Kind {
	case PrimitiveBody:
		switch b.Primitive {
		case BoxPrimitive:
			return collision.ShapeSpec{Kind: "box", Dims: b.Dims}, nil
		case SpherePrimitive:
			return collision.ShapeSpec{Kind: "sphere", Radius: b.Radius}, nil
		case CylinderPrimitive:
			return collision.ShapeSpec{Kind: "cylinder", Radius: b.Radius, Length: b.Length}, nil
		default:
			return collision.ShapeSpec{}, &CorruptShapeError{Name: b.Name, Detail: fmt.Sprintf("unsupported primitive %q", b.Primitive)}
		}
	case MeshBody:
		if b.MeshPath == "" {
			return collision.ShapeSpec{}, &CorruptShapeError{Name: b.Name, Detail: "mesh body without a mesh"}
		}
		if b.Dims == (r3.Vector{}) {
			return collision.ShapeSpec{}, &CorruptShapeError{Name: b.Name, Detail: "mesh body without bounds"}
		}
		return collision.ShapeSpec{Kind: "box", Dims: b.Dims}, nil
	case ModelBody:
		if b.Dims == (r3.Vector{}) {
			return collision.ShapeSpec{}, &CorruptShapeError{Name: b.Name, Detail: "model body without bounds"}
		}
		return collision.ShapeSpec{Kind: "box", Dims: b.Dims}, nil
	}
	return collision.ShapeSpec{}, &UnknownBodyError{Name: b.Name, Detail: fmt.Sprintf("unsupported body kind %q", b.Kind)}
}

func geometrySpecOf(b Body) (*robot.GeometrySpec, error) {
	shape, err := shapeOf(b)
	if err != nil {
		return nil, err
	}
	return &robot.GeometrySpec{
		Kind:   shape.Kind,
		Radius: shape.Radius,
		Length: shape.Length,
		Dims:   [3]float64{shape.Dims.X, shape.Dims.Y, shape.Dims.Z},
	}, nil
}

// Add inserts a body. With rigidlyAttached set, the pose's frame names the
// robot link the body is frozen onto until detached.
func (s *Service) Add(body Body, pose PoseStamped, rigidlyAttached bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.bodies[body.Name]; ok {
		return &DuplicateBodyError{Name: body.Name}
	}
	if _, ok := s.attached[body.Name]; ok {
		return &DuplicateBodyError{Name: body.Name}
	}
	if _, err := shapeOf(body); err != nil {
		return err
	}
	if rigidlyAttached {
		geom, err := geometrySpecOf(body)
		if err != nil {
			return err
		}
		offset := poseSpecFrom(pose)
		if err := s.model.Attach(body.Name, pose.FrameID, offset, geom); err != nil {
			return &MissingBodyError{Name: pose.FrameID}
		}
		s.attached[body.Name] = &placedBody{body: body, pose: pose}
		s.logger.Infof("attached %q to link %q", body.Name, pose.FrameID)
		return nil
	}
	s.bodies[body.Name] = &placedBody{body: body, pose: pose}
	s.logger.Infof("added body %q", body.Name)
	return nil
}

// Remove deletes a body by name.
func (s *Service) Remove(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.bodies[name]; !ok {
		return &MissingBodyError{Name: name}
	}
	delete(s.bodies, name)
	s.logger.Infof("removed body %q", name)
	return nil
}

// RemoveAll empties the free body set. Attached bodies stay attached.
func (s *Service) RemoveAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bodies = map[string]*placedBody{}
	s.logger.Info("cleared all world bodies")
}

// Detach unfreezes an attached body, returning it to the free set at its
// attachment offset.
func (s *Service) Detach(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	pb, ok := s.attached[name]
	if !ok {
		return &MissingBodyError{Name: name}
	}
	if err := s.model.Detach(name); err != nil {
		return &MissingBodyError{Name: name}
	}
	delete(s.attached, name)
	s.bodies[name] = pb
	s.logger.Infof("detached body %q", name)
	return nil
}

// Has reports whether a free body with the name exists.
func (s *Service) Has(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.bodies[name]
	return ok
}

// Obstacles instantiates the free bodies as posed collision geometry.
// Poses are interpreted in the world frame.
func (s *Service) Obstacles() []collision.Object {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]collision.Object, 0, len(s.bodies))
	for name, pb := range s.bodies {
		shape, err := shapeOf(pb.body)
		if err != nil {
			continue
		}
		geom, err := collision.PoseGeometry(shape, pb.pose.collisionPose())
		if err != nil {
			continue
		}
		out = append(out, collision.Object{Name: name, Geom: geom})
	}
	return out
}

func poseSpecFrom(p PoseStamped) robot.PoseSpec {
	x, y, z, w := p.Orientation[0], p.Orientation[1], p.Orientation[2], p.Orientation[3]
	// xyzw quaternion to roll, pitch, yaw
	roll := atan2(2*(w*x+y*z), 1-2*(x*x+y*y))
	pitch := asin(clamp(2*(w*y-z*x), -1, 1))
	yaw := atan2(2*(w*z+x*y), 1-2*(y*y+z*z))
	return robot.PoseSpec{
		XYZ: [3]float64{p.Position.X, p.Position.Y, p.Position.Z},
		RPY: [3]float64{roll, pitch, yaw},
	}
}
