package nav

import (
	"math"
	"path"
	"strconv"
	"strings"
)

// ShapeKind is the footprint family of an obstacle model.
type ShapeKind int

const (
	ShapeUnknown ShapeKind = iota
	ShapeBox
	ShapeCylinder
)

func (k ShapeKind) String() string {
	switch k {
	case ShapeBox:
		return "box"
	case ShapeCylinder:
		return "cylinder"
	default:
		return "unknown"
	}
}

// Shape holds footprint dimensions in meters. Box uses Width (local x) and
// Length (local y); cylinder uses Radius.
type Shape struct {
	Kind   ShapeKind
	Width  float64
	Length float64
	Radius float64
}

const defaultShapeSize = 0.5

var modelSuffixes = []string{".sdf.xacro", ".sdf", ".urdf", ".xacro"}

// ModelKind derives the shape family from a model file name such as
// "file:///models/box.sdf.xacro".
func ModelKind(model string) ShapeKind {
	base := strings.ToLower(path.Base(model))
	for _, suffix := range modelSuffixes {
		if strings.HasSuffix(base, suffix) {
			base = strings.TrimSuffix(base, suffix)
			break
		}
	}
	switch {
	case strings.Contains(base, "box"):
		return ShapeBox
	case strings.Contains(base, "cylinder"):
		return ShapeCylinder
	default:
		return ShapeUnknown
	}
}

// ParseShapeArgs parses "key:=value" pairs separated by commas. Entries that
// are malformed or not numeric are skipped.
func ParseShapeArgs(args string) map[string]float64 {
	out := make(map[string]float64)
	for _, part := range strings.Split(args, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), ":=")
		if !ok {
			continue
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			continue
		}
		out[strings.TrimSpace(key)] = f
	}
	return out
}

// ParseShape resolves the footprint of a model with its shape arguments.
// Box width defaults to 0.5 and length to the width. Cylinder radius defaults
// to half the diameter, itself defaulting to 0.5.
func ParseShape(model, args string) Shape {
	dims := ParseShapeArgs(args)
	get := func(key string, def float64) float64 {
		if v, ok := dims[key]; ok {
			return v
		}
		return def
	}
	s := Shape{Kind: ModelKind(model)}
	switch s.Kind {
	case ShapeBox:
		s.Width = get("width", defaultShapeSize)
		s.Length = get("length", s.Width)
	case ShapeCylinder:
		s.Radius = get("radius", get("diameter", defaultShapeSize)/2)
	default:
		s.Width = get("width", defaultShapeSize)
		s.Length = get("length", defaultShapeSize)
		s.Radius = max(get("radius", 0.25), s.Width/2, s.Length/2)
	}
	return s
}

// BoundingRadius is the radius of a circle enclosing the footprint.
func (s Shape) BoundingRadius() float64 {
	if s.Kind == ShapeBox {
		return 0.5 * math.Hypot(s.Width, s.Length)
	}
	return s.Radius
}
