package stage

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"

	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/lucasnoah/variantfactory/internal/config"
	"github.com/lucasnoah/variantfactory/internal/nav"
	"github.com/lucasnoah/variantfactory/internal/variant"
)

// ErrNavigabilityLost means every sampled obstacle set blocked the route.
var ErrNavigabilityLost = errors.New("obstacles block navigation")

const maxObstacleAttempts = 10

// ObstacleParams configures ObstacleVariation.
type ObstacleParams struct {
	Name            string             `yaml:"name"`
	ObstacleConfigs []nav.ObstacleSpec `yaml:"obstacle_configs"`
	Seed            *int64             `yaml:"seed"`
	RobotDiameter   float64            `yaml:"robot_diameter"`
	MapFile         string             `yaml:"map_file,omitempty"`
	Count           int                `yaml:"count"`
	StartPoseName   string             `yaml:"start_pose_name"`
	GoalPosesName   string             `yaml:"goal_poses_name"`
}

func (p *ObstacleParams) Validate() []config.ValidationError {
	var errs problems
	errs.require(p.Name != "", "name", "is required")
	errs.require(len(p.ObstacleConfigs) > 0, "obstacle_configs", "must contain at least one entry")
	for i, oc := range p.ObstacleConfigs {
		field := fmt.Sprintf("obstacle_configs[%d]", i)
		errs.require(oc.Amount >= 0, field+".amount", "must not be negative")
		errs.require(oc.MaxDistance >= 0, field+".max_distance", "must not be negative")
		errs.require(oc.Model != "", field+".model", "is required")
	}
	errs.require(p.Seed != nil, "seed", "is required")
	errs.require(p.RobotDiameter > 0, "robot_diameter", "must be positive")
	errs.require(p.Count >= 1, "count", "must be at least 1")
	errs.require(p.StartPoseName != "" && p.GoalPosesName != "", "start_pose_name", "start and goal parameter names must not be empty")
	return errs
}

type obstacleStage struct {
	env      Env
	p        *ObstacleParams
	planners *planners
}

func newObstacleStage(env Env, node *yaml.Node) (Stage, error) {
	p := &ObstacleParams{Count: 1, StartPoseName: "start_pose", GoalPosesName: "goal_poses"}
	if err := decodeParams("ObstacleVariation", node, p); err != nil {
		return nil, err
	}
	return &obstacleStage{env: env, p: p, planners: newPlanners(p.RobotDiameter)}, nil
}

func (s *obstacleStage) Name() string { return "ObstacleVariation" }
func (s *obstacleStage) Params() any  { return s.p }

func (s *obstacleStage) CacheInputs(in []variant.Config) ([]string, error) {
	return mapInputs(s.env, s.p.MapFile, in)
}

// Transform produces Count children per input. Each input gets its own
// generator seeded with the stage seed, so results do not depend on input
// order or worker scheduling.
func (s *obstacleStage) Transform(ctx context.Context, naming *variant.Naming, in []variant.Config) ([]variant.Config, error) {
	if len(in) == 0 {
		in = []variant.Config{variant.New("")}
	}
	results := make([][][]variant.StaticObject, len(in))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.env.workers())
	for i, c := range in {
		g.Go(func() error {
			rng := newRNG(*s.p.Seed)
			sets := make([][]variant.StaticObject, s.p.Count)
			for k := range sets {
				if err := gctx.Err(); err != nil {
					return err
				}
				objs, err := s.place(c, rng)
				if err != nil {
					return err
				}
				sets[k] = objs
			}
			results[i] = sets
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []variant.Config
	for i, c := range in {
		for _, objs := range results[i] {
			out = append(out, naming.Child(c, map[string]any{s.p.Name: objs}))
		}
	}
	return out, nil
}

func (s *obstacleStage) place(c variant.Config, rng *rand.Rand) ([]variant.StaticObject, error) {
	log := s.env.logger().With("stage", s.Name(), "config", c.Name)
	mapFile, err := resolveMapFile(s.env, s.p.MapFile, c)
	if err != nil {
		return nil, err
	}
	planner, err := s.planners.get(mapFile)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", c.Name, err)
	}
	placer := nav.NewObstaclePlacer(rng, s.p.RobotDiameter)

	if !c.Has(s.p.StartPoseName) || !c.Has(s.p.GoalPosesName) {
		log.Debug("no route in config, placing obstacles anywhere on free space")
		objs := []variant.StaticObject{}
		for _, spec := range s.p.ObstacleConfigs {
			objs = append(objs, placer.Random(planner.Map(), spec, nil, objs)...)
		}
		return objs, nil
	}

	var start variant.Pose
	var goals []variant.Pose
	if err := c.DecodeParam(s.p.StartPoseName, &start); err != nil {
		return nil, err
	}
	if err := c.DecodeParam(s.p.GoalPosesName, &goals); err != nil {
		return nil, err
	}
	waypoints := append([]variant.Pose{start}, goals...)
	route := positions(waypoints)

	path := nav.Path(c.Path)
	if len(path) < 2 {
		path, err = planner.Plan(route, nil)
		if err != nil {
			return nil, fmt.Errorf("config %s: route is not navigable without obstacles: %w", c.Name, err)
		}
	}

	for attempt := 1; attempt <= maxObstacleAttempts; attempt++ {
		objs := []variant.StaticObject{}
		for _, spec := range s.p.ObstacleConfigs {
			objs = append(objs, placer.AlongPath(path, spec, waypoints, objs)...)
		}
		if len(objs) == 0 {
			return objs, nil
		}
		if _, err := planner.Plan(route, objs); err == nil {
			log.Debug("obstacles placed", "count", len(objs), "attempt", attempt)
			return objs, nil
		}
		log.Debug("obstacles block navigation, retrying", "attempt", attempt, "max_attempts", maxObstacleAttempts)
	}
	return nil, fmt.Errorf("config %s: %w after %d attempts", c.Name, ErrNavigabilityLost, maxObstacleAttempts)
}
