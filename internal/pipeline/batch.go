package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/lucasnoah/variantfactory/internal/cache"
	"github.com/lucasnoah/variantfactory/internal/config"
	"github.com/lucasnoah/variantfactory/internal/variant"
)

// ScenarioResult is the outcome of one abstract scenario.
type ScenarioResult struct {
	Name       string
	Identifier string
	Configs    []variant.Config
	Err        error
	Duration   time.Duration
}

// OK reports whether the scenario produced configs.
func (r ScenarioResult) OK() bool { return r.Err == nil }

// BatchResult collects the outcome of every scenario of a run.
type BatchResult struct {
	Scenarios []ScenarioResult
}

// Configs returns the configs of every successful scenario, in scenario order.
func (b *BatchResult) Configs() []variant.Config {
	var out []variant.Config
	for _, s := range b.Scenarios {
		if s.OK() {
			out = append(out, s.Configs...)
		}
	}
	return out
}

// Failed returns the failed scenarios.
func (b *BatchResult) Failed() []ScenarioResult {
	var out []ScenarioResult
	for _, s := range b.Scenarios {
		if !s.OK() {
			out = append(out, s)
		}
	}
	return out
}

// InitialConfig is the config a scenario's first stage receives: the scenario
// name and its fixed parameters.
func InitialConfig(s config.Scenario) variant.Config {
	c := variant.New(s.Name)
	for k, v := range s.ParamMap() {
		c.Params[k] = v
	}
	return c
}

// RunBatch runs every scenario independently. A failing scenario is recorded
// and the batch continues. Config names must be unique across the whole run;
// every scenario contributing a duplicate is failed.
func (r *Runner) RunBatch(ctx context.Context, scenarios []config.Scenario) *BatchResult {
	res := &BatchResult{Scenarios: make([]ScenarioResult, 0, len(scenarios))}
	for _, sc := range scenarios {
		start := time.Now()
		configs, files, err := r.run(ctx, sc.Name, sc.Variations, []variant.Config{InitialConfig(sc)})
		sr := ScenarioResult{Name: sc.Name, Configs: configs, Err: err, Duration: time.Since(start)}
		if id, idErr := cache.ConfigIdentifier(sc, r.Env.ScenarioFile, files, sc.StageNames()); idErr == nil {
			sr.Identifier = id
		}
		if err != nil {
			r.logger().Error("scenario failed", "scenario", sc.Name, "error", err)
			sr.Configs = nil
		} else {
			r.logger().Info("scenario finished", "scenario", sc.Name, "configs", len(configs), "identifier", sr.Identifier)
		}
		res.Scenarios = append(res.Scenarios, sr)
	}
	r.rejectDuplicates(res)
	return res
}

func (r *Runner) rejectDuplicates(res *BatchResult) {
	dups := variant.Duplicates(res.Configs())
	if len(dups) == 0 {
		return
	}
	dupSet := make(map[string]bool, len(dups))
	for _, d := range dups {
		dupSet[d] = true
	}
	for i := range res.Scenarios {
		sr := &res.Scenarios[i]
		if !sr.OK() {
			continue
		}
		for _, c := range sr.Configs {
			if dupSet[c.Name] {
				sr.Err = fmt.Errorf("scenario %s: config %q: %w", sr.Name, c.Name, ErrDuplicateName)
				sr.Configs = nil
				r.logger().Error("scenario failed", "scenario", sr.Name, "error", sr.Err)
				break
			}
		}
	}
}
