package nav

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/lucasnoah/variantfactory/internal/gridmap"
	"github.com/lucasnoah/variantfactory/internal/variant"
)

// Planner finds collision-free grid paths for a disc-shaped robot.
//
// Static obstacles are inflated by the robot radius once, at construction.
// Dynamic obstacles passed to Plan are rasterized onto a per-call copy, so a
// Planner may be shared between goroutines.
type Planner struct {
	m           *gridmap.Map
	robotRadius float64
	inflated    []bool
}

// NewPlanner inflates the map's obstacles using an exact distance transform.
// A cell is blocked when its distance to an occupied cell is at most
// ceil(radius / resolution) cells.
func NewPlanner(m *gridmap.Map, robotDiameter float64) *Planner {
	p := &Planner{m: m, robotRadius: robotDiameter / 2}
	occ := m.Grid()
	k := int(math.Ceil(p.robotRadius / m.Resolution))
	if k <= 0 {
		p.inflated = occ
		return p
	}
	limit := float64(k * k)
	dist := squaredDistanceField(occ, m.Width, m.Height)
	p.inflated = make([]bool, len(dist))
	for i, d := range dist {
		p.inflated[i] = d <= limit
	}
	return p
}

// Map returns the map the planner was built from.
func (p *Planner) Map() *gridmap.Map { return p.m }

// RobotRadius returns the inflation radius in meters.
func (p *Planner) RobotRadius() float64 { return p.robotRadius }

// Costmap returns the inflated grid with the given obstacles rasterized.
func (p *Planner) Costmap(obstacles []variant.StaticObject) *gridmap.Map {
	grid := p.workingGrid(obstacles)
	out, _ := gridmap.FromGrid(p.m.Width, p.m.Height, p.m.Resolution, p.m.Origin, grid)
	out.ImagePath = p.m.ImagePath
	out.YAMLPath = p.m.YAMLPath
	return out
}

// Plan connects consecutive waypoints with A* and concatenates the segments,
// dropping the duplicated junction point between segments.
func (p *Planner) Plan(waypoints []variant.Position, obstacles []variant.StaticObject) (Path, error) {
	if len(waypoints) < 2 {
		return nil, ErrTooFewWaypoints
	}
	grid := p.workingGrid(obstacles)

	cells := make([]int, len(waypoints))
	for i, wp := range waypoints {
		gx, gy := p.m.WorldToGrid(wp.X, wp.Y)
		if !p.m.InBounds(gx, gy) {
			return nil, fmt.Errorf("waypoint %d (%.2f, %.2f) outside map: %w", i, wp.X, wp.Y, ErrInvalidWaypoint)
		}
		c := gy*p.m.Width + gx
		if grid[c] {
			return nil, fmt.Errorf("waypoint %d (%.2f, %.2f) in collision: %w", i, wp.X, wp.Y, ErrInvalidWaypoint)
		}
		cells[i] = c
	}

	var path Path
	for i := 0; i+1 < len(cells); i++ {
		seg := astar(grid, p.m.Width, p.m.Height, cells[i], cells[i+1])
		if seg == nil {
			return nil, fmt.Errorf("segment %d -> %d: %w", i, i+1, ErrNoPath)
		}
		if i > 0 {
			seg = seg[1:]
		}
		for _, c := range seg {
			x, y := p.m.GridToWorld(c%p.m.Width, c/p.m.Width)
			path = append(path, variant.Position{X: x, Y: y})
		}
	}
	return path, nil
}

func (p *Planner) workingGrid(obstacles []variant.StaticObject) []bool {
	grid := make([]bool, len(p.inflated))
	copy(grid, p.inflated)
	for _, o := range obstacles {
		p.rasterize(grid, o)
	}
	return grid
}

func (p *Planner) rasterize(grid []bool, o variant.StaticObject) {
	shape := ParseShape(o.Model, o.ShapeArgs)
	center := o.SpawnPose.Position
	if shape.Kind == ShapeBox {
		p.fillBox(grid, center, o.SpawnPose.Orientation.Yaw, shape.Width+2*p.robotRadius, shape.Length+2*p.robotRadius)
		return
	}
	p.fillCircle(grid, center, shape.Radius+p.robotRadius)
}

func (p *Planner) fillCircle(grid []bool, c variant.Position, radius float64) {
	center := orb.Point{c.X, c.Y}
	p.forCellsIn(c.X-radius, c.Y-radius, c.X+radius, c.Y+radius, func(idx int, pt orb.Point) {
		if planar.Distance(center, pt) <= radius {
			grid[idx] = true
		}
	})
}

func (p *Planner) fillBox(grid []bool, c variant.Position, yaw, width, length float64) {
	hw, hl := width/2, length/2
	cos, sin := math.Cos(yaw), math.Sin(yaw)
	ring := make(orb.Ring, 0, 5)
	for _, corner := range [][2]float64{{-hw, -hl}, {hw, -hl}, {hw, hl}, {-hw, hl}, {-hw, -hl}} {
		ring = append(ring, orb.Point{
			c.X + corner[0]*cos - corner[1]*sin,
			c.Y + corner[0]*sin + corner[1]*cos,
		})
	}
	b := ring.Bound()
	p.forCellsIn(b.Min.X(), b.Min.Y(), b.Max.X(), b.Max.Y(), func(idx int, pt orb.Point) {
		if planar.RingContains(ring, pt) {
			grid[idx] = true
		}
	})
}

// forCellsIn visits every in-grid cell overlapping a world rectangle, passing
// the cell index and its center.
func (p *Planner) forCellsIn(minX, minY, maxX, maxY float64, fn func(idx int, center orb.Point)) {
	x0, y0 := p.m.WorldToGrid(minX, maxY)
	x1, y1 := p.m.WorldToGrid(maxX, minY)
	x0, y0 = max(x0, 0), max(y0, 0)
	x1, y1 = min(x1, p.m.Width-1), min(y1, p.m.Height-1)
	for gy := y0; gy <= y1; gy++ {
		for gx := x0; gx <= x1; gx++ {
			wx, wy := p.m.GridToWorld(gx, gy)
			fn(gy*p.m.Width+gx, orb.Point{wx, wy})
		}
	}
}
