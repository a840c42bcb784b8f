// Package gridmap loads 2D occupancy maps in the nav2 map-server format and
// converts between world coordinates and grid cells.
package gridmap

import (
	"fmt"
	"math"
)

// FreeThreshold is the lowest grayscale value treated as free space.
// Anything darker (obstacles, unknown) is occupied.
const FreeThreshold = 254

// Map is an occupancy grid. Row 0 is the top of the image; world Y grows upward.
type Map struct {
	Resolution float64    // meters per cell
	Origin     [3]float64 // world pose of the lower-left corner: x, y, theta
	Width      int
	Height     int
	ImagePath  string
	YAMLPath   string

	occupied []bool
}

// New returns an all-free map of the given size.
func New(width, height int, resolution float64, origin [3]float64) *Map {
	return &Map{
		Resolution: resolution,
		Origin:     origin,
		Width:      width,
		Height:     height,
		occupied:   make([]bool, width*height),
	}
}

// FromGrid builds a map from a row-major occupancy slice of width*height cells.
func FromGrid(width, height int, resolution float64, origin [3]float64, occupied []bool) (*Map, error) {
	if len(occupied) != width*height {
		return nil, fmt.Errorf("grid has %d cells, want %dx%d", len(occupied), width, height)
	}
	m := New(width, height, resolution, origin)
	copy(m.occupied, occupied)
	return m, nil
}

// InBounds reports whether (gx, gy) is a cell of the grid.
func (m *Map) InBounds(gx, gy int) bool {
	return gx >= 0 && gx < m.Width && gy >= 0 && gy < m.Height
}

// Occupied reports whether a cell is blocked. Cells outside the grid are blocked.
func (m *Map) Occupied(gx, gy int) bool {
	if !m.InBounds(gx, gy) {
		return true
	}
	return m.occupied[gy*m.Width+gx]
}

// Free reports whether a cell is inside the grid and not blocked.
func (m *Map) Free(gx, gy int) bool {
	return !m.Occupied(gx, gy)
}

// SetOccupied marks a cell. Out-of-range cells are ignored.
func (m *Map) SetOccupied(gx, gy int, occ bool) {
	if m.InBounds(gx, gy) {
		m.occupied[gy*m.Width+gx] = occ
	}
}

// Grid returns a copy of the row-major occupancy grid.
func (m *Map) Grid() []bool {
	out := make([]bool, len(m.occupied))
	copy(out, m.occupied)
	return out
}

// FreeCells counts unblocked cells.
func (m *Map) FreeCells() int {
	n := 0
	for _, occ := range m.occupied {
		if !occ {
			n++
		}
	}
	return n
}

// WorldToGrid maps a world point to the cell containing it. The result may be
// outside the grid.
func (m *Map) WorldToGrid(x, y float64) (gx, gy int) {
	gx = int(math.Floor((x - m.Origin[0]) / m.Resolution))
	gy = int(math.Floor(float64(m.Height) - (y-m.Origin[1])/m.Resolution))
	return gx, gy
}

// GridToWorld returns the world coordinates of the center of a cell, so that
// WorldToGrid(GridToWorld(c)) == c for every cell.
func (m *Map) GridToWorld(gx, gy int) (x, y float64) {
	x = (float64(gx)+0.5)*m.Resolution + m.Origin[0]
	y = (float64(m.Height-gy)-0.5)*m.Resolution + m.Origin[1]
	return x, y
}

// Bounds returns the world-space extent of the grid.
func (m *Map) Bounds() (minX, minY, maxX, maxY float64) {
	minX, minY = m.Origin[0], m.Origin[1]
	maxX = minX + float64(m.Width)*m.Resolution
	maxY = minY + float64(m.Height)*m.Resolution
	return minX, minY, maxX, maxY
}

// Contains reports whether a world point lies within the map extent.
func (m *Map) Contains(x, y float64) bool {
	minX, minY, maxX, maxY := m.Bounds()
	return x >= minX && x <= maxX && y >= minY && y <= maxY
}

// FreeAt reports whether the cell containing a world point is free.
func (m *Map) FreeAt(x, y float64) bool {
	return m.Free(m.WorldToGrid(x, y))
}
