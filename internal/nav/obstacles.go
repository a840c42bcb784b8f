package nav

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/lucasnoah/variantfactory/internal/gridmap"
	"github.com/lucasnoah/variantfactory/internal/variant"
)

// ObstacleSpec describes one group of identical obstacles.
type ObstacleSpec struct {
	Amount      int     `yaml:"amount"`
	MaxDistance float64 `yaml:"max_distance"`
	Model       string  `yaml:"model"`
	ShapeArgs   string  `yaml:"xacro_arguments"`
}

// ObstaclePlacer samples obstacle positions by rejection.
//
// Candidates closer than 2 robot diameters to a waypoint, or closer than 1.5
// robot diameters to an obstacle already placed, are rejected.
type ObstaclePlacer struct {
	rng           *rand.Rand
	robotDiameter float64
}

// NewObstaclePlacer returns a placer drawing from rng.
func NewObstaclePlacer(rng *rand.Rand, robotDiameter float64) *ObstaclePlacer {
	return &ObstaclePlacer{rng: rng, robotDiameter: robotDiameter}
}

type segment struct {
	a, b   variant.Position
	length float64
}

// AlongPath places up to spec.Amount obstacles near path, giving up after
// 100 candidates per obstacle. existing obstacles are kept clear of and
// count towards naming, so groups can be placed one after another.
func (p *ObstaclePlacer) AlongPath(path Path, spec ObstacleSpec, waypoints []variant.Pose, existing []variant.StaticObject) []variant.StaticObject {
	if len(path) < 2 || spec.Amount <= 0 {
		return nil
	}
	segs := make([]segment, 0, len(path)-1)
	total := 0.0
	for i := 0; i+1 < len(path); i++ {
		l := distance(path[i], path[i+1])
		segs = append(segs, segment{a: path[i], b: path[i+1], length: l})
		total += l
	}

	var placed []variant.StaticObject
	for attempts := 0; len(placed) < spec.Amount && attempts < spec.Amount*100; attempts++ {
		seg := p.pickSegment(segs, total)
		t := p.rng.Float64()
		on := variant.Position{
			X: seg.a.X + t*(seg.b.X-seg.a.X),
			Y: seg.a.Y + t*(seg.b.Y-seg.a.Y),
		}
		cand := p.offset(on, seg, spec.MaxDistance)
		if !p.valid(cand, waypoints, existing, placed) {
			continue
		}
		placed = append(placed, p.object(len(existing)+len(placed), cand, spec))
	}
	return placed
}

// Random places up to spec.Amount obstacles on free cells of m, giving up
// after 1000 candidates per obstacle.
func (p *ObstaclePlacer) Random(m *gridmap.Map, spec ObstacleSpec, waypoints []variant.Pose, existing []variant.StaticObject) []variant.StaticObject {
	if spec.Amount <= 0 {
		return nil
	}
	free := make([]int, 0, m.FreeCells())
	for gy := 0; gy < m.Height; gy++ {
		for gx := 0; gx < m.Width; gx++ {
			if m.Free(gx, gy) {
				free = append(free, gy*m.Width+gx)
			}
		}
	}
	if len(free) == 0 {
		return nil
	}

	var placed []variant.StaticObject
	for attempts := 0; len(placed) < spec.Amount && attempts < spec.Amount*1000; attempts++ {
		c := free[p.rng.IntN(len(free))]
		x, y := m.GridToWorld(c%m.Width, c/m.Width)
		cand := variant.Position{X: x, Y: y}
		if !p.valid(cand, waypoints, existing, placed) {
			continue
		}
		placed = append(placed, p.object(len(existing)+len(placed), cand, spec))
	}
	return placed
}

func (p *ObstaclePlacer) pickSegment(segs []segment, total float64) segment {
	target := p.rng.Float64() * total
	acc := 0.0
	for _, s := range segs {
		acc += s.length
		if target <= acc {
			return s
		}
	}
	return segs[len(segs)-1]
}

func (p *ObstaclePlacer) offset(on variant.Position, seg segment, maxDist float64) variant.Position {
	if seg.length == 0 {
		angle := p.rng.Float64() * 2 * math.Pi
		d := p.rng.Float64() * maxDist
		return variant.Position{X: on.X + d*math.Cos(angle), Y: on.Y + d*math.Sin(angle)}
	}
	ux := (seg.b.X - seg.a.X) / seg.length
	uy := (seg.b.Y - seg.a.Y) / seg.length
	side := 1.0
	if p.rng.IntN(2) == 0 {
		side = -1
	}
	d := p.rng.Float64() * maxDist
	along := (p.rng.Float64() - 0.5) * math.Min(maxDist, 0.3*seg.length)
	return variant.Position{
		X: on.X + side*d*-uy + along*ux,
		Y: on.Y + side*d*ux + along*uy,
	}
}

func (p *ObstaclePlacer) valid(cand variant.Position, waypoints []variant.Pose, groups ...[]variant.StaticObject) bool {
	for _, wp := range waypoints {
		if distance(cand, wp.Position) < 2*p.robotDiameter {
			return false
		}
	}
	for _, group := range groups {
		for _, o := range group {
			if distance(cand, o.SpawnPose.Position) < 1.5*p.robotDiameter {
				return false
			}
		}
	}
	return true
}

func (p *ObstaclePlacer) object(idx int, pos variant.Position, spec ObstacleSpec) variant.StaticObject {
	return variant.StaticObject{
		EntityName: fmt.Sprintf("obstacle_%d", idx),
		Model:      spec.Model,
		SpawnPose:  variant.Pose{Position: pos, Orientation: variant.Orientation{Yaw: uniformYaw(p.rng)}},
		ShapeArgs:  spec.ShapeArgs,
	}
}
