package collision

import (
	"github.com/golang/geo/r3"

	"github.com/Ange-Michel/wholebody/blackboard"
	"github.com/Ange-Michel/wholebody/logging"
)

// farDistance is published for links with nothing inside the query horizon,
// keeping every bound path readable while contributing no repulsion.
const farDistance = 100.0

// queryHorizon bounds the broad phase; pairs whose inflated AABBs are
// farther apart than this are not narrow-phased.
const queryHorizon = 0.5

// Object is a named, posed geometry.
type Object struct {
	Name string
	Geom Geometry
}

// Checker runs broad- plus narrow-phase queries between robot links and
// world bodies.
type Checker struct {
	logger logging.Logger
}

// NewChecker returns a Checker.
func NewChecker(logger logging.Logger) *Checker {
	return &Checker{logger: logger}
}

// Closest returns, per link, the nearest obstacle contact. allowed filters
// pairs; returning false skips the pair entirely (an allowed collision).
func (c *Checker) Closest(links, obstacles []Object, allowed func(link, body string) bool) map[string]ClosestPoint {
	out := make(map[string]ClosestPoint, len(links))
	for _, link := range links {
		best := ClosestPoint{
			MinDist:       farDistance,
			ContactNormal: r3.Vector{Z: 1},
			PositionOnA:   link.Geom.Center(),
			PositionOnB:   link.Geom.Center().Sub(r3.Vector{Z: farDistance}),
		}
		linkBox := link.Geom.AABB().expand(queryHorizon)
		for _, obstacle := range obstacles {
			if allowed != nil && !allowed(link.Name, obstacle.Name) {
				continue
			}
			if !linkBox.Overlaps(obstacle.Geom.AABB()) {
				continue
			}
			cp := ClosestBetween(link.Geom, obstacle.Geom)
			if cp.MinDist < best.MinDist {
				best = cp
			}
		}
		out[link.Name] = best
	}
	return out
}

// Paths for the published per-link results.

// MinDistPath returns the path of a link's closest distance.
func MinDistPath(link string) blackboard.Path {
	return blackboard.P("collision", link, "min_dist")
}

// ContactNormalPath returns the path of a normal component (x, y or z).
func ContactNormalPath(link, axis string) blackboard.Path {
	return blackboard.P("collision", link, "contact_normal", axis)
}

// PositionOnAPath returns the path of a closest-point-on-link component.
func PositionOnAPath(link, axis string) blackboard.Path {
	return blackboard.P("collision", link, "position_on_a", axis)
}

// PositionOnBPath returns the path of a closest-point-on-body component.
func PositionOnBPath(link, axis string) blackboard.Path {
	return blackboard.P("collision", link, "position_on_b", axis)
}

// Publish writes one link's closest-point record into the store.
func Publish(store *blackboard.Store, link string, cp ClosestPoint) {
	store.Set(MinDistPath(link), cp.MinDist)
	setVec(store, link, "contact_normal", cp.ContactNormal)
	setVec(store, link, "position_on_a", cp.PositionOnA)
	setVec(store, link, "position_on_b", cp.PositionOnB)
}

func setVec(store *blackboard.Store, link, field string, v r3.Vector) {
	store.Set(blackboard.P("collision", link, field, "x"), v.X)
	store.Set(blackboard.P("collision", link, field, "y"), v.Y)
	store.Set(blackboard.P("collision", link, field, "z"), v.Z)
}

// PublishAll writes every link's record.
func PublishAll(store *blackboard.Store, results map[string]ClosestPoint) {
	for link, cp := range results {
		Publish(store, link, cp)
	}
}
