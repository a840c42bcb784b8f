// Package preview draws a generated config (map, route and obstacles) as SVG
// or PNG, for eyeballing variations without a simulator.
package preview

import (
	"fmt"
	"image/color"
	"image/png"
	"io"
	"math"

	"github.com/tdewolff/canvas"
	"github.com/tdewolff/canvas/renderers/rasterizer"
	"github.com/tdewolff/canvas/renderers/svg"

	"github.com/lucasnoah/variantfactory/internal/gridmap"
	"github.com/lucasnoah/variantfactory/internal/nav"
	"github.com/lucasnoah/variantfactory/internal/variant"
)

var (
	occupiedColor  = color.RGBA{40, 40, 40, 255}
	inflationColor = color.RGBA{200, 200, 200, 255}
	pathColor      = color.RGBA{30, 100, 220, 255}
	startColor     = color.RGBA{40, 170, 70, 255}
	goalColor      = color.RGBA{210, 50, 50, 255}
	obstacleColor  = color.RGBA{230, 140, 20, 255}
)

// Options controls rendering.
type Options struct {
	// Scale is canvas millimeters per world meter.
	Scale float64
	// RobotDiameter, when positive, shades the inflated free space the robot
	// center cannot enter.
	RobotDiameter float64
	// Resolution applies to PNG output only.
	Resolution canvas.Resolution
}

// DefaultOptions returns 20 mm per meter at 150 DPI.
func DefaultOptions() Options {
	return Options{Scale: 20, Resolution: canvas.DPI(150)}
}

// Scene is what gets drawn.
type Scene struct {
	Map       *gridmap.Map
	Path      []variant.Position
	Start     *variant.Pose
	Goals     []variant.Pose
	Obstacles []variant.StaticObject
}

// Keys names the config parameters a scene is read from.
type Keys struct {
	Start     string
	Goals     string
	Obstacles string
}

// DefaultKeys matches the default parameter names of the navigation stages.
var DefaultKeys = Keys{Start: "start_pose", Goals: "goal_poses", Obstacles: "static_objects"}

// SceneFor reads route and obstacles from c. Missing parameters are left
// empty; present ones that fail to decode are errors.
func SceneFor(c variant.Config, m *gridmap.Map, keys Keys) (Scene, error) {
	s := Scene{Map: m, Path: c.Path}
	if c.Has(keys.Start) {
		var start variant.Pose
		if err := c.DecodeParam(keys.Start, &start); err != nil {
			return Scene{}, err
		}
		s.Start = &start
	}
	if c.Has(keys.Goals) {
		if err := c.DecodeParam(keys.Goals, &s.Goals); err != nil {
			return Scene{}, err
		}
	}
	if c.Has(keys.Obstacles) {
		if err := c.DecodeParam(keys.Obstacles, &s.Obstacles); err != nil {
			return Scene{}, err
		}
	}
	return s, nil
}

type renderer interface {
	RenderPath(path *canvas.Path, style canvas.Style, m canvas.Matrix)
}

// RenderSVG writes the scene as SVG.
func RenderSVG(w io.Writer, s Scene, opts Options) error {
	if s.Map == nil {
		return fmt.Errorf("preview: scene has no map")
	}
	width, height := size(s.Map, opts)
	r := svg.New(w, width, height, nil)
	draw(r, s, opts)
	return r.Close()
}

// RenderPNG writes the scene as PNG.
func RenderPNG(w io.Writer, s Scene, opts Options) error {
	if s.Map == nil {
		return fmt.Errorf("preview: scene has no map")
	}
	if opts.Resolution == 0 {
		opts.Resolution = DefaultOptions().Resolution
	}
	width, height := size(s.Map, opts)
	r := rasterizer.New(width, height, opts.Resolution, canvas.DefaultColorSpace)
	draw(r, s, opts)
	return png.Encode(w, r)
}

func size(m *gridmap.Map, opts Options) (float64, float64) {
	scale := scaleOf(opts)
	return float64(m.Width) * m.Resolution * scale, float64(m.Height) * m.Resolution * scale
}

func scaleOf(opts Options) float64 {
	if opts.Scale <= 0 {
		return DefaultOptions().Scale
	}
	return opts.Scale
}

func draw(r renderer, s Scene, opts Options) {
	m := s.Map
	scale := scaleOf(opts)
	cell := m.Resolution * scale
	toCanvas := func(p variant.Position) (float64, float64) {
		return (p.X - m.Origin[0]) * scale, (p.Y - m.Origin[1]) * scale
	}

	width, height := size(m, opts)
	bg := canvas.DefaultStyle
	bg.Fill = canvas.Paint{Color: canvas.White}
	r.RenderPath(canvas.Rectangle(width, height), bg, canvas.Identity)

	if opts.RobotDiameter > 0 {
		inflated := nav.NewPlanner(m, opts.RobotDiameter).Costmap(s.Obstacles)
		fillCells(r, m, cell, inflationColor, func(gx, gy int) bool {
			return inflated.Occupied(gx, gy) && !m.Occupied(gx, gy)
		})
	}
	fillCells(r, m, cell, occupiedColor, m.Occupied)

	obstacle := canvas.DefaultStyle
	obstacle.Fill = canvas.Paint{Color: obstacleColor}
	obstacle.Stroke = canvas.Paint{Color: canvas.Black}
	obstacle.StrokeWidth = 0.02 * scale
	for _, o := range s.Obstacles {
		cx, cy := toCanvas(o.SpawnPose.Position)
		r.RenderPath(obstacleOutline(o, scale).Translate(cx, cy), obstacle, canvas.Identity)
	}

	if len(s.Path) > 1 {
		line := canvas.DefaultStyle
		line.Fill = canvas.Paint{Color: canvas.Transparent}
		line.Stroke = canvas.Paint{Color: pathColor}
		line.StrokeWidth = 0.05 * scale
		p := &canvas.Path{}
		for i, pt := range s.Path {
			x, y := toCanvas(pt)
			if i == 0 {
				p.MoveTo(x, y)
			} else {
				p.LineTo(x, y)
			}
		}
		r.RenderPath(p, line, canvas.Identity)
	}

	if s.Start != nil {
		drawPose(r, *s.Start, startColor, scale, toCanvas)
	}
	for _, g := range s.Goals {
		drawPose(r, g, goalColor, scale, toCanvas)
	}
}

// obstacleOutline returns the footprint centered on the origin.
func obstacleOutline(o variant.StaticObject, scale float64) *canvas.Path {
	shape := nav.ParseShape(o.Model, o.ShapeArgs)
	if shape.Kind != nav.ShapeBox {
		return canvas.Circle(shape.Radius * scale)
	}
	w, l := shape.Width*scale, shape.Length*scale
	rot := o.SpawnPose.Orientation.Yaw * 180 / math.Pi
	return canvas.Rectangle(w, l).Translate(-w/2, -l/2).Transform(canvas.Identity.Rotate(rot))
}

func drawPose(r renderer, p variant.Pose, c color.RGBA, scale float64, toCanvas func(variant.Position) (float64, float64)) {
	x, y := toCanvas(p.Position)
	dot := canvas.DefaultStyle
	dot.Fill = canvas.Paint{Color: c}
	dot.Stroke = canvas.Paint{Color: canvas.Black}
	dot.StrokeWidth = 0.02 * scale
	r.RenderPath(canvas.Circle(0.15*scale).Translate(x, y), dot, canvas.Identity)

	heading := canvas.DefaultStyle
	heading.Fill = canvas.Paint{Color: canvas.Transparent}
	heading.Stroke = canvas.Paint{Color: c}
	heading.StrokeWidth = 0.04 * scale
	arrow := &canvas.Path{}
	arrow.MoveTo(x, y)
	arrow.LineTo(x+0.35*scale*math.Cos(p.Orientation.Yaw), y+0.35*scale*math.Sin(p.Orientation.Yaw))
	r.RenderPath(arrow, heading, canvas.Identity)
}

// fillCells draws the cells selected by want, merging horizontal runs into
// single rectangles.
func fillCells(r renderer, m *gridmap.Map, cell float64, c color.RGBA, want func(gx, gy int) bool) {
	style := canvas.DefaultStyle
	style.Fill = canvas.Paint{Color: c}
	style.Stroke = canvas.Paint{Color: canvas.Transparent}
	for _, run := range runs(m.Width, m.Height, want) {
		y := float64(m.Height-run.gy-1) * cell
		rect := canvas.Rectangle(float64(run.length)*cell, cell).Translate(float64(run.gx)*cell, y)
		r.RenderPath(rect, style, canvas.Identity)
	}
}

type run struct {
	gx, gy, length int
}

func runs(width, height int, want func(gx, gy int) bool) []run {
	var out []run
	for gy := 0; gy < height; gy++ {
		for gx := 0; gx < width; {
			if !want(gx, gy) {
				gx++
				continue
			}
			start := gx
			for gx < width && want(gx, gy) {
				gx++
			}
			out = append(out, run{gx: start, gy: gy, length: gx - start})
		}
	}
	return out
}
