package nav

import (
	"math"
	"math/rand/v2"

	"github.com/lucasnoah/variantfactory/internal/gridmap"
	"github.com/lucasnoah/variantfactory/internal/variant"
)

const (
	attemptsPerWaypoint = 50
	maxFootprintCells   = 10
)

// WaypointOptions controls where waypoints are sampled.
type WaypointOptions struct {
	// MinDistance is the minimum distance to the previous waypoint.
	MinDistance float64
	// MaxDistance, when positive, switches to annulus sampling around the
	// previous waypoint (or Reference for the first one).
	MaxDistance float64
	// Reference seeds annulus sampling before any waypoint has been accepted.
	Reference *variant.Pose
}

// WaypointGenerator samples robot poses on free space of a map.
type WaypointGenerator struct {
	m   *gridmap.Map
	rng *rand.Rand
}

// NewWaypointGenerator returns a generator drawing from rng.
func NewWaypointGenerator(m *gridmap.Map, rng *rand.Rand) *WaypointGenerator {
	return &WaypointGenerator{m: m, rng: rng}
}

// Generate draws up to n waypoints where a robot of the given diameter fits.
// It stops after 50*n candidates, so fewer than n poses may be returned.
// Headings are drawn once all positions are accepted.
func (g *WaypointGenerator) Generate(n int, robotDiameter float64, opts WaypointOptions) []variant.Pose {
	minX, minY, maxX, maxY := g.m.Bounds()
	var points []variant.Position

	for attempts := 0; len(points) < n && attempts < attemptsPerWaypoint*n; attempts++ {
		var ref *variant.Position
		if len(points) > 0 {
			ref = &points[len(points)-1]
		} else if opts.Reference != nil {
			ref = &opts.Reference.Position
		}

		var cand variant.Position
		if ref != nil && opts.MaxDistance > 0 {
			angle := g.rng.Float64() * 2 * math.Pi
			lo, hi := opts.MinDistance*opts.MinDistance, opts.MaxDistance*opts.MaxDistance
			r := math.Sqrt(lo + g.rng.Float64()*(hi-lo))
			cand.X = clamp(ref.X+r*math.Cos(angle), minX, maxX)
			cand.Y = clamp(ref.Y+r*math.Sin(angle), minY, maxY)
		} else {
			cand.X = minX + g.rng.Float64()*(maxX-minX)
			cand.Y = minY + g.rng.Float64()*(maxY-minY)
			if len(points) > 0 && opts.MinDistance > 0 && cand.Distance(points[len(points)-1]) < opts.MinDistance {
				continue
			}
		}

		if g.Fits(cand, robotDiameter/2) {
			points = append(points, cand)
		}
	}

	poses := make([]variant.Pose, len(points))
	for i, pt := range points {
		poses[i] = variant.Pose{Position: pt, Orientation: variant.Orientation{Yaw: uniformYaw(g.rng)}}
	}
	return poses
}

// Fits reports whether a disc of the given radius centered at pos covers only
// free in-bounds cells. The footprint is capped at 10 cells.
func (g *WaypointGenerator) Fits(pos variant.Position, radius float64) bool {
	gx, gy := g.m.WorldToGrid(pos.X, pos.Y)
	if !g.m.InBounds(gx, gy) {
		return false
	}
	rc := min(int(math.Ceil(radius/g.m.Resolution)), maxFootprintCells)
	for dy := -rc; dy <= rc; dy++ {
		for dx := -rc; dx <= rc; dx++ {
			if dx*dx+dy*dy > rc*rc {
				continue
			}
			if g.m.Occupied(gx+dx, gy+dy) {
				return false
			}
		}
	}
	return true
}

func uniformYaw(rng *rand.Rand) float64 {
	return -math.Pi + rng.Float64()*2*math.Pi
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
