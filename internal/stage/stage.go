// Package stage defines the variation stages that expand abstract scenarios
// into concrete configs, and the registry that resolves them by name.
package stage

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/lucasnoah/variantfactory/internal/cache"
	"github.com/lucasnoah/variantfactory/internal/config"
	"github.com/lucasnoah/variantfactory/internal/variant"
)

// Stage transforms a list of configs into a new list. Implementations must be
// deterministic for fixed parameters and inputs.
type Stage interface {
	Name() string
	// Params returns the validated parameters, used for cache keys.
	Params() any
	Transform(ctx context.Context, naming *variant.Naming, in []variant.Config) ([]variant.Config, error)
}

// Cacheable is implemented by stages whose output may be memoized by the
// pipeline. CacheInputs lists files whose content influences the result.
type Cacheable interface {
	CacheInputs(in []variant.Config) ([]string, error)
}

// FloorplanGenerator is the external tool producing maps and meshes.
type FloorplanGenerator interface {
	// Vary writes num variants of a variation file as .fpm floorplans into dir.
	Vary(ctx context.Context, variationFile string, num int, seed int64, dir string) error
	// Build renders one floorplan into outDir as maps/<name>.yaml plus image
	// and 3d-mesh/<name>.stl.
	Build(ctx context.Context, floorplan, outDir string) error
}

// Env is what a stage may use besides its parameters.
type Env struct {
	BaseDir      string
	OutputDir    string
	ScenarioFile string
	General      map[string]any
	// Cache is the coarse cache for intra-stage memoization. May be nil.
	Cache      *cache.Store
	Logger     *slog.Logger
	Workers    int
	Floorplans FloorplanGenerator
}

func (e Env) logger() *slog.Logger {
	if e.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return e.Logger
}

func (e Env) workers() int {
	if e.Workers > 0 {
		return e.Workers
	}
	return runtime.NumCPU()
}

// GUIHook names the editor classes of a stage. The generator ignores it.
type GUIHook struct {
	Class    string
	Renderer string
}

// Definition describes a registered stage family.
type Definition struct {
	Name    string
	Summary string
	GUI     *GUIHook
	// New decodes and validates params and returns a ready stage. Invalid
	// parameters are reported as *ParamError.
	New func(env Env, params *yaml.Node) (Stage, error)
}

// ParamError lists every problem with a stage's parameters.
type ParamError struct {
	Stage  string
	Errors []config.ValidationError
}

func (e *ParamError) Error() string {
	msgs := make([]string, len(e.Errors))
	for i, ve := range e.Errors {
		msgs[i] = ve.Error()
	}
	return fmt.Sprintf("stage %s: invalid parameters: %s", e.Stage, strings.Join(msgs, "; "))
}

// Registry maps stage names to definitions.
type Registry struct {
	mu   sync.RWMutex
	defs map[string]Definition
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{defs: make(map[string]Definition)}
}

// Register adds a definition. Names must be unique.
func (r *Registry) Register(def Definition) error {
	if def.Name == "" || def.New == nil {
		return fmt.Errorf("stage definition needs a name and a constructor")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.defs[def.Name]; dup {
		return fmt.Errorf("stage %q already registered", def.Name)
	}
	r.defs[def.Name] = def
	return nil
}

// Lookup returns the definition registered under name.
func (r *Registry) Lookup(name string) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.defs[name]
	return def, ok
}

// Names returns the registered names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.defs))
	for n := range r.defs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

var (
	builtinOnce sync.Once
	builtin     *Registry
)

// Builtin returns the registry of every stage family shipped with the tool.
func Builtin() *Registry {
	builtinOnce.Do(func() {
		builtin = NewRegistry()
		for _, def := range builtinDefinitions() {
			if err := builtin.Register(def); err != nil {
				panic(err)
			}
		}
	})
	return builtin
}

func builtinDefinitions() []Definition {
	return []Definition{
		{Name: "ParameterVariationList", Summary: "one config per listed value", New: newListStage},
		{Name: "ParameterVariationDistributionUniform", Summary: "values drawn from a uniform distribution", New: newUniformStage},
		{Name: "ParameterVariationDistributionGaussian", Summary: "values drawn from a clipped normal distribution", New: newGaussianStage},
		{Name: "FloorplanVariation", Summary: "map and mesh variants from floorplan variation files", New: newFloorplanVariationStage},
		{Name: "FloorplanGeneration", Summary: "map and mesh artifacts from floorplan files", New: newFloorplanGenerationStage},
		{
			Name: "PathVariation", Summary: "random start and goal poses with a path of the requested length",
			GUI: &GUIHook{Class: "NavigationGui", Renderer: "PathVariationGuiRenderer"}, New: newPathStage,
		},
		{
			Name: "ObstacleVariation", Summary: "static obstacles that keep the route navigable",
			GUI: &GUIHook{Class: "NavigationGui", Renderer: "ObstacleVariationGuiRenderer"}, New: newObstacleStage,
		},
	}
}
