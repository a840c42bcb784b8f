package nav

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/lucasnoah/variantfactory/internal/variant"
)

// Path is a polyline through world coordinates.
type Path []variant.Position

// LineString converts the path for orb geometry functions.
func (p Path) LineString() orb.LineString {
	ls := make(orb.LineString, len(p))
	for i, pt := range p {
		ls[i] = orb.Point{pt.X, pt.Y}
	}
	return ls
}

// Length is the sum of segment lengths. A single point has length zero.
func (p Path) Length() float64 {
	if len(p) < 2 {
		return 0
	}
	return planar.Length(p.LineString())
}

func distance(a, b variant.Position) float64 {
	return planar.Distance(orb.Point{a.X, a.Y}, orb.Point{b.X, b.Y})
}
