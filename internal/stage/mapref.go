package stage

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/lucasnoah/variantfactory/internal/fsutil"
	"github.com/lucasnoah/variantfactory/internal/gridmap"
	"github.com/lucasnoah/variantfactory/internal/nav"
	"github.com/lucasnoah/variantfactory/internal/variant"
)

// ErrMapUnresolved means no usable map file could be determined for a config.
var ErrMapUnresolved = errors.New("map file unresolved")

// resolveMapFile finds the map a navigation stage works on. The map_file
// parameter names a file relative to the base directory or, failing that, a
// config parameter holding the path. Alternatively an earlier stage set
// Config.MapFile. Exactly one of the two sources must apply.
func resolveMapFile(env Env, param string, c variant.Config) (string, error) {
	var fromParam string
	if param != "" {
		direct := param
		if !filepath.IsAbs(direct) {
			direct = filepath.Join(env.BaseDir, param)
		}
		if fsutil.Exists(direct) {
			fromParam = direct
		} else {
			ref, ok := c.Params[param].(string)
			if !ok {
				return "", fmt.Errorf("config %s: map_file %q is neither a file nor a config parameter: %w", c.Name, param, ErrMapUnresolved)
			}
			if !filepath.IsAbs(ref) {
				ref = filepath.Join(env.BaseDir, ref)
			}
			if !fsutil.Exists(ref) {
				return "", fmt.Errorf("config %s: map file %s from parameter %q does not exist: %w", c.Name, ref, param, ErrMapUnresolved)
			}
			fromParam = ref
		}
	}

	fromStage := c.MapFile
	if fromStage != "" && !fsutil.Exists(fromStage) {
		return "", fmt.Errorf("config %s: map file %s from an earlier stage does not exist: %w", c.Name, fromStage, ErrMapUnresolved)
	}

	switch {
	case fromParam != "" && fromStage != "":
		return "", fmt.Errorf("config %s: map file given both by parameter (%s) and by an earlier stage (%s): %w", c.Name, fromParam, fromStage, ErrMapUnresolved)
	case fromParam != "":
		return fromParam, nil
	case fromStage != "":
		return fromStage, nil
	default:
		return "", fmt.Errorf("config %s: set map_file or run a floorplan stage first: %w", c.Name, ErrMapUnresolved)
	}
}

// mapInputs lists the map files of every input config, for cache keys.
func mapInputs(env Env, param string, in []variant.Config) ([]string, error) {
	seen := make(map[string]bool)
	var files []string
	for _, c := range in {
		path, err := resolveMapFile(env, param, c)
		if err != nil {
			return nil, err
		}
		deps, err := gridmap.ImageFiles(path)
		if err != nil {
			deps = []string{path}
		}
		for _, d := range deps {
			if !seen[d] {
				seen[d] = true
				files = append(files, d)
			}
		}
	}
	return files, nil
}

// planners loads each map once per stage run and shares its planner, which
// is safe for concurrent use.
type planners struct {
	robotDiameter float64

	mu     sync.Mutex
	loaded map[string]*nav.Planner
}

func newPlanners(robotDiameter float64) *planners {
	return &planners{robotDiameter: robotDiameter, loaded: make(map[string]*nav.Planner)}
}

func (p *planners) get(path string) (*nav.Planner, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if pl, ok := p.loaded[path]; ok {
		return pl, nil
	}
	m, err := gridmap.Load(path)
	if err != nil {
		return nil, err
	}
	pl := nav.NewPlanner(m, p.robotDiameter)
	p.loaded[path] = pl
	return pl, nil
}
