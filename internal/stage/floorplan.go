package stage

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/lucasnoah/variantfactory/internal/config"
	"github.com/lucasnoah/variantfactory/internal/gridmap"
	"github.com/lucasnoah/variantfactory/internal/variant"
)

// DefaultSceneryScript is the floorplan tool wrapper, relative to the working directory.
const DefaultSceneryScript = "dependencies/scenery_builder.sh"

// floorplanDir is where artifacts are extracted under the output directory.
const floorplanDir = "floorplans"

// ScriptGenerator drives the scenery builder wrapper script.
type ScriptGenerator struct {
	Script string
	Logger *slog.Logger
}

// NewScriptGenerator returns a generator for script, or the default location if empty.
func NewScriptGenerator(script string, logger *slog.Logger) *ScriptGenerator {
	if script == "" {
		script = DefaultSceneryScript
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &ScriptGenerator{Script: script, Logger: logger}
}

// Vary runs "script variation".
func (g *ScriptGenerator) Vary(ctx context.Context, variationFile string, num int, seed int64, dir string) error {
	return g.run(ctx, "variation", "-i", variationFile, "-o", dir, "-n", strconv.Itoa(num), "-s", strconv.FormatInt(seed, 10))
}

// Build runs "script transform" into a scratch directory, then "script generate".
func (g *ScriptGenerator) Build(ctx context.Context, floorplan, outDir string) error {
	scratch, err := os.MkdirTemp("", "floorplan-jsonld-")
	if err != nil {
		return err
	}
	defer os.RemoveAll(scratch)
	if err := g.run(ctx, "transform", "-i", floorplan, "-o", scratch); err != nil {
		return err
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}
	return g.run(ctx, "generate", "-i", scratch, "-o", outDir, "occ-grid", "mesh")
}

func (g *ScriptGenerator) run(ctx context.Context, step string, args ...string) error {
	if _, err := os.Stat(g.Script); err != nil {
		return fmt.Errorf("scenery builder %s: %w", g.Script, err)
	}
	cmd := exec.CommandContext(ctx, g.Script, append([]string{step}, args...)...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	g.Logger.Debug("running scenery builder", "step", step, "args", strings.Join(args, " "))
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s step failed: %w\nstdout: %s\nstderr: %s", step, err, stdout.String(), stderr.String())
	}
	return nil
}

// FloorplanVariationParams configures FloorplanVariation.
type FloorplanVariationParams struct {
	Name           []string `yaml:"name"`
	VariationFiles []string `yaml:"variation_files"`
	NumVariations  int      `yaml:"num_variations"`
	Seed           *int64   `yaml:"seed"`
}

func (p *FloorplanVariationParams) Validate() []config.ValidationError {
	var errs problems
	errs.require(len(p.Name) == 2, "name", "must contain exactly two elements, 1. for map file, 2. for mesh file")
	errs.require(len(p.VariationFiles) > 0, "variation_files", "must contain at least one file")
	errs.require(p.NumVariations >= 1, "num_variations", "must be at least 1")
	errs.require(p.Seed != nil, "seed", "is required")
	return errs
}

// FloorplanGenerationParams configures FloorplanGeneration.
type FloorplanGenerationParams struct {
	Name       []string `yaml:"name"`
	Floorplans []string `yaml:"floorplans"`
}

func (p *FloorplanGenerationParams) Validate() []config.ValidationError {
	var errs problems
	errs.require(len(p.Name) == 2, "name", "must contain exactly two elements, 1. for map file, 2. for mesh file")
	errs.require(len(p.Floorplans) > 0, "floorplans", "must contain at least one file")
	return errs
}

// floorplanStage covers both floorplan families; they differ only in how one
// source file becomes an artifact tree and in the expected artifact count.
type floorplanStage struct {
	name     string
	env      Env
	params   any
	names    []string
	sources  []string
	expected int
	// cacheKey returns the coarse cache entry name and hash strings for a source.
	cacheKey func(src string) (string, []string)
	// produce writes the artifact tree for src into dir, one subdirectory per floorplan.
	produce func(ctx context.Context, src, dir string) error
}

func newFloorplanVariationStage(env Env, node *yaml.Node) (Stage, error) {
	p := &FloorplanVariationParams{}
	if err := decodeParams("FloorplanVariation", node, p); err != nil {
		return nil, err
	}
	gen := floorplanGenerator(env)
	return &floorplanStage{
		name:     "FloorplanVariation",
		env:      env,
		params:   p,
		names:    p.Name,
		sources:  absPaths(env.BaseDir, p.VariationFiles),
		expected: p.NumVariations * len(p.VariationFiles),
		cacheKey: func(src string) (string, []string) {
			n, seed := strconv.Itoa(p.NumVariations), strconv.FormatInt(*p.Seed, 10)
			return fmt.Sprintf("%s_%s_%s", filepath.Base(src), n, seed), []string{n, seed}
		},
		produce: func(ctx context.Context, src, dir string) error {
			variants := filepath.Join(dir, ".variants")
			if err := os.MkdirAll(variants, 0o755); err != nil {
				return err
			}
			defer os.RemoveAll(variants)
			if err := gen.Vary(ctx, src, p.NumVariations, *p.Seed, variants); err != nil {
				return err
			}
			fpms, err := filepath.Glob(filepath.Join(variants, "*.fpm"))
			if err != nil {
				return err
			}
			sort.Strings(fpms)
			for _, fpm := range fpms {
				if err := gen.Build(ctx, fpm, filepath.Join(dir, stem(fpm))); err != nil {
					return err
				}
			}
			return nil
		},
	}, nil
}

func newFloorplanGenerationStage(env Env, node *yaml.Node) (Stage, error) {
	p := &FloorplanGenerationParams{}
	if err := decodeParams("FloorplanGeneration", node, p); err != nil {
		return nil, err
	}
	gen := floorplanGenerator(env)
	return &floorplanStage{
		name:     "FloorplanGeneration",
		env:      env,
		params:   p,
		names:    p.Name,
		sources:  absPaths(env.BaseDir, p.Floorplans),
		expected: len(p.Floorplans),
		cacheKey: func(src string) (string, []string) {
			return "floorplan_" + filepath.Base(src), nil
		},
		produce: func(ctx context.Context, src, dir string) error {
			return gen.Build(ctx, src, filepath.Join(dir, stem(src)))
		},
	}, nil
}

func floorplanGenerator(env Env) FloorplanGenerator {
	if env.Floorplans != nil {
		return env.Floorplans
	}
	script, _ := env.General["scenery_builder"].(string)
	return NewScriptGenerator(script, env.Logger)
}

func (s *floorplanStage) Name() string { return s.name }
func (s *floorplanStage) Params() any  { return s.params }

func (s *floorplanStage) CacheInputs([]variant.Config) ([]string, error) {
	return s.sources, nil
}

func (s *floorplanStage) Transform(ctx context.Context, naming *variant.Naming, in []variant.Config) ([]variant.Config, error) {
	log := s.env.logger().With("stage", s.name)
	dest := filepath.Join(s.env.OutputDir, floorplanDir)

	// Each source extracts into its own directory so sources sharing a file
	// name cannot overwrite each other's artifacts.
	var floorplans []string
	for i, src := range s.sources {
		if _, err := os.Stat(src); err != nil {
			return nil, fmt.Errorf("floorplan source: %w", err)
		}
		archive, err := s.archive(ctx, src, log)
		if err != nil {
			return nil, err
		}
		dir := filepath.Join(dest, fmt.Sprintf("%d_%s", i, stem(src)))
		names, err := untar(archive, dir)
		if err != nil {
			return nil, fmt.Errorf("extracting artifacts of %s: %w", src, err)
		}
		for _, n := range names {
			floorplans = append(floorplans, filepath.Join(dir, n))
		}
	}
	if len(floorplans) != s.expected {
		return nil, fmt.Errorf("floorplan tool produced %d floorplans, expected %d", len(floorplans), s.expected)
	}

	arts := make([]artifact, len(floorplans))
	for i, fp := range floorplans {
		a, err := findArtifact(fp)
		if err != nil {
			return nil, err
		}
		arts[i] = a
	}
	if len(in) == 0 {
		in = []variant.Config{variant.New("")}
	}
	out := make([]variant.Config, 0, len(arts)*len(in))
	for _, a := range arts {
		for _, c := range in {
			child := naming.Child(c, map[string]any{s.names[0]: a.mapRel, s.names[1]: a.meshRel})
			child.MapFile = a.mapFile
			for _, f := range a.files {
				child.AddConfigFile(f.Dest, f.Source)
			}
			out = append(out, child)
		}
	}
	return out, nil
}

// archive returns the artifact tarball for src, from the cache when possible.
func (s *floorplanStage) archive(ctx context.Context, src string, log *slog.Logger) ([]byte, error) {
	name, hashStrings := s.cacheKey(src)
	if s.env.Cache != nil {
		data, ok, err := s.env.Cache.Get(name, []string{src}, hashStrings)
		if err != nil {
			return nil, fmt.Errorf("floorplan cache lookup for %s: %w", src, err)
		}
		if ok {
			log.Info("using cached floorplan artifacts", "source", filepath.Base(src))
			return data, nil
		}
	}

	work, err := os.MkdirTemp("", "floorplan-")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(work)
	log.Info("generating floorplan artifacts", "source", filepath.Base(src))
	if err := s.produce(ctx, src, work); err != nil {
		return nil, fmt.Errorf("generating floorplan %s: %w", src, err)
	}
	data, err := tarDir(work)
	if err != nil {
		return nil, err
	}
	if s.env.Cache != nil {
		if err := s.env.Cache.Put(name, []string{src}, hashStrings, data); err != nil {
			log.Warn("caching floorplan artifacts failed", "error", err)
		}
	}
	return data, nil
}

type artifact struct {
	mapRel  string
	meshRel string
	files   []variant.FileCopy
	mapFile string
}

// findArtifact locates maps/<x>.yaml and 3d-mesh/<x>.stl in a floorplan directory.
func findArtifact(dir string) (artifact, error) {
	maps, _ := filepath.Glob(filepath.Join(dir, "maps", "*.yaml"))
	meshes, _ := filepath.Glob(filepath.Join(dir, "3d-mesh", "*.stl"))
	if len(maps) == 0 || len(meshes) == 0 {
		return artifact{}, fmt.Errorf("floorplan %s: expected maps/*.yaml and 3d-mesh/*.stl", filepath.Base(dir))
	}
	sort.Strings(maps)
	sort.Strings(meshes)
	a := artifact{
		mapRel:  filepath.ToSlash(filepath.Join("maps", filepath.Base(maps[0]))),
		meshRel: filepath.ToSlash(filepath.Join("3d-mesh", filepath.Base(meshes[0]))),
		mapFile: maps[0],
	}
	a.files = append(a.files, variant.FileCopy{Dest: a.mapRel, Source: maps[0]})
	if meta, err := gridmap.ReadMetadata(maps[0]); err == nil {
		a.files = append(a.files, variant.FileCopy{
			Dest:   filepath.ToSlash(filepath.Join("maps", filepath.Base(meta.Image))),
			Source: meta.Image,
		})
	}
	a.files = append(a.files, variant.FileCopy{Dest: a.meshRel, Source: meshes[0]})
	return a, nil
}

func absPaths(base string, paths []string) []string {
	out := make([]string, len(paths))
	for i, p := range paths {
		if filepath.IsAbs(p) {
			out[i] = p
		} else {
			out[i] = filepath.Join(base, p)
		}
	}
	return out
}

func stem(path string) string {
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}
