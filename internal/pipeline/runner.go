// Package pipeline runs the variation stages of abstract scenarios and writes
// the resulting concrete configs.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.uber.org/multierr"

	"github.com/lucasnoah/variantfactory/internal/cache"
	"github.com/lucasnoah/variantfactory/internal/config"
	"github.com/lucasnoah/variantfactory/internal/fsutil"
	"github.com/lucasnoah/variantfactory/internal/stage"
	"github.com/lucasnoah/variantfactory/internal/variant"
)

// StageEvent describes one finished stage invocation.
type StageEvent struct {
	Scenario string
	Stage    string
	Index    int
	Inputs   int
	Outputs  int
	Cached   bool
	Duration time.Duration
	Err      error
}

// Runner executes stage sequences.
type Runner struct {
	Registry *stage.Registry
	// Cache memoizes whole stage outputs. Nil disables it.
	Cache *cache.Store
	// Env is handed to every stage; its Cache is the coarse cache stages use
	// internally.
	Env    stage.Env
	Logger *slog.Logger
	// OnStage, if set, is called after every stage invocation.
	OnStage func(StageEvent)
}

func (r *Runner) logger() *slog.Logger {
	if r.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return r.Logger
}

func (r *Runner) registry() *stage.Registry {
	if r.Registry == nil {
		return stage.Builtin()
	}
	return r.Registry
}

// Run builds every stage of specs, then applies them in order to initial.
// Parameter problems in any stage are reported before the first stage runs.
func (r *Runner) Run(ctx context.Context, scenario string, specs []config.StageSpec, initial []variant.Config) ([]variant.Config, error) {
	out, _, err := r.run(ctx, scenario, specs, initial)
	return out, err
}

func (r *Runner) run(ctx context.Context, scenario string, specs []config.StageSpec, initial []variant.Config) ([]variant.Config, []string, error) {
	log := r.logger().With("scenario", scenario)
	env := r.Env
	env.Logger = log

	stages, err := r.build(env, specs)
	if err != nil {
		return nil, nil, err
	}

	var influences []string
	current := initial
	for i, s := range stages {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		start := time.Now()
		ev := StageEvent{Scenario: scenario, Stage: s.Name(), Index: i, Inputs: len(current)}

		next, files, cached, err := r.apply(ctx, scenario, i, s, current)
		influences = append(influences, files...)
		ev.Duration, ev.Cached, ev.Outputs = time.Since(start), cached, len(next)
		if err == nil && len(next) == 0 {
			err = ErrNoConfigs
		}
		if err != nil {
			if errors.Is(err, stage.ErrMapUnresolved) {
				err = &ResolutionError{Stage: s.Name(), Err: err}
			}
			ev.Err = &StageError{Scenario: scenario, Stage: s.Name(), Err: err}
			r.emit(ev)
			log.Warn("stage failed", "stage", s.Name(), "error", err)
			return nil, influences, ev.Err
		}
		r.emit(ev)
		log.Info("stage finished", "stage", s.Name(), "inputs", ev.Inputs, "configs", ev.Outputs,
			"cached", cached, "duration", ev.Duration.Round(time.Millisecond))
		current = next
	}
	return current, influences, nil
}

// Validate builds the stages of a scenario without running them and reports
// every resolution and parameter problem.
func (r *Runner) Validate(sc config.Scenario) error {
	env := r.Env
	env.Logger = r.logger().With("scenario", sc.Name)
	_, err := r.build(env, sc.Variations)
	return err
}

// build constructs every stage, collecting all resolution and parameter
// problems instead of stopping at the first.
func (r *Runner) build(env stage.Env, specs []config.StageSpec) ([]stage.Stage, error) {
	var errs error
	stages := make([]stage.Stage, 0, len(specs))
	for _, spec := range specs {
		def, ok := r.registry().Lookup(spec.Name)
		if !ok {
			errs = multierr.Append(errs, &ResolutionError{Stage: spec.Name, Err: ErrUnknownStage})
			continue
		}
		params := spec.Params
		s, err := def.New(env, &params)
		if err != nil {
			var perr *stage.ParamError
			if errors.As(err, &perr) {
				errs = multierr.Append(errs, &ValidationError{Stage: spec.Name, Errors: perr.Errors})
			} else {
				errs = multierr.Append(errs, &ResolutionError{Stage: spec.Name, Err: err})
			}
			continue
		}
		stages = append(stages, s)
	}
	if errs != nil {
		return nil, errs
	}
	return stages, nil
}

// apply runs one stage, through the structural cache when possible. It
// returns the influence files the stage declared.
func (r *Runner) apply(ctx context.Context, scenario string, index int, s stage.Stage, in []variant.Config) ([]variant.Config, []string, bool, error) {
	naming := variant.NewNaming()
	cacheable, ok := s.(stage.Cacheable)
	if r.Cache == nil || !ok {
		out, err := s.Transform(ctx, naming, in)
		return out, nil, false, err
	}

	log := r.logger().With("scenario", scenario, "stage", s.Name())
	files, err := cacheable.CacheInputs(in)
	if err != nil {
		return nil, nil, false, err
	}
	name := fmt.Sprintf("stage_%s_%02d_%s", scenario, index, s.Name())
	digest, err := r.stageDigest(s, in, files)
	if err != nil {
		log.Debug("stage output not cacheable", "error", err)
		out, err := s.Transform(ctx, naming, in)
		return out, files, false, err
	}

	if data, hit := r.Cache.GetDigest(name, digest); hit {
		cached, err := variant.UnmarshalCache(data)
		switch {
		case err != nil:
			log.Debug("cached stage output unreadable", "error", err)
		case !artifactsPresent(cached):
			log.Info("cached stage output refers to missing files, regenerating")
		default:
			return cached, files, true, nil
		}
	}

	out, err := s.Transform(ctx, naming, in)
	if err != nil || len(out) == 0 {
		return out, files, false, err
	}
	if data, err := variant.MarshalCache(out); err != nil {
		log.Debug("encoding stage output for cache failed", "error", err)
	} else if err := r.Cache.PutDigest(name, digest, data); err != nil {
		log.Warn("caching stage output failed", "error", err)
	}
	return out, files, false, nil
}

// stageDigest keys a stage invocation on everything that can change its
// output: name, base directory, scenario file, parameters, inputs and the
// content of declared influence files.
func (r *Runner) stageDigest(s stage.Stage, in []variant.Config, files []string) (string, error) {
	h := cache.NewHasher()
	h.AddString("stage", s.Name())
	h.AddString("base_dir", r.Env.BaseDir)
	h.AddString("scenario_file", r.Env.ScenarioFile)
	if r.Env.ScenarioFile != "" {
		if err := h.AddFile("scenario_content", r.Env.ScenarioFile); err != nil {
			return "", err
		}
	}
	if err := h.Add("params", s.Params()); err != nil {
		return "", err
	}
	canon, err := canonicalConfigs(in)
	if err != nil {
		return "", err
	}
	h.AddBytes("inputs", canon)
	for _, f := range files {
		if err := h.AddFile("influence", f); err != nil {
			return "", err
		}
	}
	return h.Sum(), nil
}

// canonicalConfigs encodes configs so that typed values fresh from a stage and
// generic values read back from the cache produce the same bytes.
func canonicalConfigs(in []variant.Config) ([]byte, error) {
	data, err := variant.MarshalCache(in)
	if err != nil {
		return nil, err
	}
	generic, err := variant.UnmarshalCache(data)
	if err != nil {
		return nil, err
	}
	return variant.MarshalCache(generic)
}

func artifactsPresent(configs []variant.Config) bool {
	for _, c := range configs {
		if c.MapFile != "" && !fsutil.Exists(c.MapFile) {
			return false
		}
		for _, f := range c.ConfigFiles {
			if !fsutil.Exists(f.Source) {
				return false
			}
		}
	}
	return true
}

func (r *Runner) emit(ev StageEvent) {
	if r.OnStage != nil {
		r.OnStage(ev)
	}
}
