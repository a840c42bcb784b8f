package stage

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/lucasnoah/variantfactory/internal/cache"
	"github.com/lucasnoah/variantfactory/internal/config"
	"github.com/lucasnoah/variantfactory/internal/gridmap"
	"github.com/lucasnoah/variantfactory/internal/nav"
	"github.com/lucasnoah/variantfactory/internal/variant"
)

// ErrPathNotFound means no attempt produced a path within tolerance.
var ErrPathNotFound = errors.New("no path of requested length found")

const maxPathAttempts = 1000

// PathParams configures PathVariation.
type PathParams struct {
	Name                []string `yaml:"name"`
	PathLength          float64  `yaml:"path_length"`
	NumPaths            int      `yaml:"num_paths"`
	PathLengthTolerance float64  `yaml:"path_length_tolerance"`
	MinDistance         float64  `yaml:"min_distance"`
	MaxDistance         *float64 `yaml:"max_distance,omitempty"`
	Seed                *int64   `yaml:"seed"`
	RobotDiameter       float64  `yaml:"robot_diameter"`
	MapFile             string   `yaml:"map_file,omitempty"`
}

func (p *PathParams) Validate() []config.ValidationError {
	var errs problems
	errs.require(len(p.Name) == 2, "name", "must contain exactly two elements, 1. for start_pose, 2. for goal_poses")
	errs.require(p.PathLength > 0, "path_length", "must be positive")
	errs.require(p.NumPaths >= 1, "num_paths", "must be at least 1")
	errs.require(p.PathLengthTolerance >= 0, "path_length_tolerance", "must not be negative")
	errs.require(p.MinDistance >= 0, "min_distance", "must not be negative")
	switch {
	case p.MaxDistance == nil:
	case *p.MaxDistance <= 0:
		errs.add("max_distance", "must be positive")
	case *p.MaxDistance < p.MinDistance:
		errs.add("max_distance", "must not be less than min_distance")
	}
	errs.require(p.Seed != nil, "seed", "is required")
	errs.require(p.RobotDiameter > 0, "robot_diameter", "must be positive")
	return errs
}

// hashStrings covers every parameter that changes the outcome of an attempt.
func (p *PathParams) hashStrings(pathIndex int) []string {
	maxDist := "none"
	if p.MaxDistance != nil {
		maxDist = fmtFloat(*p.MaxDistance)
	}
	return []string{
		"path_index=" + strconv.Itoa(pathIndex),
		"seed=" + strconv.FormatInt(*p.Seed, 10),
		"path_length=" + fmtFloat(p.PathLength),
		"path_length_tolerance=" + fmtFloat(p.PathLengthTolerance),
		"min_distance=" + fmtFloat(p.MinDistance),
		"max_distance=" + maxDist,
		"robot_diameter=" + fmtFloat(p.RobotDiameter),
	}
}

func fmtFloat(f float64) string { return strconv.FormatFloat(f, 'g', -1, 64) }

type pathStage struct {
	env      Env
	p        *PathParams
	planners *planners
}

func newPathStage(env Env, node *yaml.Node) (Stage, error) {
	p := &PathParams{PathLengthTolerance: 0.5}
	if err := decodeParams("PathVariation", node, p); err != nil {
		return nil, err
	}
	return &pathStage{env: env, p: p, planners: newPlanners(p.RobotDiameter)}, nil
}

func (s *pathStage) Name() string { return "PathVariation" }
func (s *pathStage) Params() any  { return s.p }

func (s *pathStage) CacheInputs(in []variant.Config) ([]string, error) {
	return mapInputs(s.env, s.p.MapFile, in)
}

type pathTask struct {
	input     variant.Config
	mapFile   string
	pathIndex int
}

type pathResult struct {
	start variant.Pose
	goals []variant.Pose
	path  nav.Path
}

func (s *pathStage) Transform(ctx context.Context, naming *variant.Naming, in []variant.Config) ([]variant.Config, error) {
	if len(in) == 0 {
		in = []variant.Config{variant.New("")}
	}
	var tasks []pathTask
	for _, c := range in {
		mapFile, err := resolveMapFile(s.env, s.p.MapFile, c)
		if err != nil {
			return nil, err
		}
		for i := 0; i < s.p.NumPaths; i++ {
			tasks = append(tasks, pathTask{input: c, mapFile: mapFile, pathIndex: i})
		}
	}

	results := make([]pathResult, len(tasks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.env.workers())
	for i, t := range tasks {
		g.Go(func() error {
			res, err := s.generate(gctx, t)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]variant.Config, len(tasks))
	for i, t := range tasks {
		r := results[i]
		child := naming.Child(t.input, map[string]any{
			s.p.Name[0]: r.start,
			s.p.Name[1]: r.goals,
		})
		child.Path = r.path
		if child.Extra == nil {
			child.Extra = map[string]any{}
		}
		child.Extra["map_file"] = t.mapFile
		out[i] = child
	}
	return out, nil
}

// generate retries seeded attempts until the sampled route has a path within
// tolerance. The successful attempt number is cached, so reruns replay it
// directly; a cached attempt that no longer succeeds restarts the search.
func (s *pathStage) generate(ctx context.Context, t pathTask) (pathResult, error) {
	log := s.env.logger().With("stage", s.Name(), "config", t.input.Name, "path_index", t.pathIndex)
	planner, err := s.planners.get(t.mapFile)
	if err != nil {
		return pathResult{}, fmt.Errorf("config %s: %w", t.input.Name, err)
	}

	cacheName := fmt.Sprintf("path_generation_%s_%d_%d", t.input.Name, t.pathIndex, *s.p.Seed)
	inputs, err := gridmap.ImageFiles(t.mapFile)
	if err != nil {
		inputs = []string{t.mapFile}
	}
	hashStrings := s.p.hashStrings(t.pathIndex)

	if s.env.Cache != nil {
		data, ok, err := s.env.Cache.Get(cacheName, inputs, hashStrings)
		if errors.Is(err, cache.ErrInputMissing) {
			return pathResult{}, fmt.Errorf("config %s path %d: %w", t.input.Name, t.pathIndex, err)
		}
		if err != nil {
			log.Warn("path cache lookup failed", "error", err)
		} else if ok {
			if cached, perr := strconv.Atoi(strings.TrimSpace(string(data))); perr == nil && cached >= 0 && cached < maxPathAttempts {
				if res, ok := s.attempt(planner, t.pathIndex, cached); ok {
					log.Debug("using cached attempt", "attempt", cached)
					return res, nil
				}
				log.Info("cached attempt is stale, searching again", "attempt", cached)
			}
		}
	}

	for attempt := 0; attempt < maxPathAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return pathResult{}, err
		}
		res, ok := s.attempt(planner, t.pathIndex, attempt)
		if !ok {
			continue
		}
		log.Debug("path found", "attempt", attempt, "length", res.path.Length())
		if s.env.Cache != nil {
			if err := s.env.Cache.Put(cacheName, inputs, hashStrings, []byte(strconv.Itoa(attempt))); err != nil {
				log.Warn("caching path attempt failed", "error", err)
			}
		}
		return res, nil
	}
	return pathResult{}, fmt.Errorf("config %s path %d: %w after %d attempts", t.input.Name, t.pathIndex, ErrPathNotFound, maxPathAttempts)
}

func (s *pathStage) attempt(planner *nav.Planner, pathIndex, attempt int) (pathResult, bool) {
	seed := *s.p.Seed + int64(attempt) + int64(maxPathAttempts*pathIndex)
	opts := nav.WaypointOptions{MinDistance: s.p.MinDistance}
	if s.p.MaxDistance != nil {
		opts.MaxDistance = *s.p.MaxDistance
	}
	wps := nav.NewWaypointGenerator(planner.Map(), newRNG(seed)).Generate(2, s.p.RobotDiameter, opts)
	if len(wps) < 2 {
		return pathResult{}, false
	}
	path, err := planner.Plan(positions(wps), nil)
	if err != nil {
		return pathResult{}, false
	}
	if math.Abs(path.Length()-s.p.PathLength) > s.p.PathLengthTolerance {
		return pathResult{}, false
	}
	return pathResult{start: wps[0], goals: wps[1:], path: path}, true
}

func positions(poses []variant.Pose) []variant.Position {
	out := make([]variant.Position, len(poses))
	for i, p := range poses {
		out[i] = p.Position
	}
	return out
}
