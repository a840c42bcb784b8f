package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/lucasnoah/variantfactory/internal/cache"
	"github.com/lucasnoah/variantfactory/internal/config"
	"github.com/lucasnoah/variantfactory/internal/stage"
	"github.com/lucasnoah/variantfactory/internal/variant"
)

var errBoom = errors.New("boom")

type fanParams struct {
	Name   string `yaml:"name"`
	Factor int    `yaml:"factor"`
	File   string `yaml:"file,omitempty"`
	Fail   bool   `yaml:"fail,omitempty"`
	Map    string `yaml:"map,omitempty"`
}

// fanStage gives every input Factor children numbered by Params[Name].
type fanStage struct {
	p     *fanParams
	calls *atomic.Int32
}

func (s *fanStage) Name() string { return "Fan" }
func (s *fanStage) Params() any  { return s.p }

func (s *fanStage) CacheInputs([]variant.Config) ([]string, error) {
	if s.p.File == "" {
		return nil, nil
	}
	return []string{s.p.File}, nil
}

func (s *fanStage) Transform(_ context.Context, naming *variant.Naming, in []variant.Config) ([]variant.Config, error) {
	s.calls.Add(1)
	if s.p.Fail {
		return nil, errBoom
	}
	var out []variant.Config
	for _, c := range in {
		for i := 0; i < s.p.Factor; i++ {
			child := naming.Child(c, map[string]any{s.p.Name: i})
			child.MapFile = s.p.Map
			out = append(out, child)
		}
	}
	return out, nil
}

func testRegistry(t *testing.T, calls *atomic.Int32) *stage.Registry {
	t.Helper()
	reg := stage.NewRegistry()
	err := reg.Register(stage.Definition{
		Name: "Fan",
		New: func(_ stage.Env, node *yaml.Node) (stage.Stage, error) {
			p := &fanParams{}
			if err := node.Decode(p); err != nil {
				return nil, err
			}
			if p.Factor < 0 {
				return nil, &stage.ParamError{Stage: "Fan", Errors: []config.ValidationError{{Field: "factor", Message: "must not be negative"}}}
			}
			return &fanStage{p: p, calls: calls}, nil
		},
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	return reg
}

func parseScenario(t *testing.T, src string) config.Scenario {
	t.Helper()
	var sc config.Scenario
	if err := yaml.Unmarshal([]byte(src), &sc); err != nil {
		t.Fatalf("parse scenario: %v", err)
	}
	return sc
}

func TestRunAppliesStagesInOrder(t *testing.T) {
	var calls atomic.Int32
	r := &Runner{Registry: testRegistry(t, &calls)}
	sc := parseScenario(t, `
name: nav
parameters:
  - speed: 0.5
variations:
  - Fan: {name: a, factor: 2}
  - Fan: {name: b, factor: 3}
`)
	out, err := r.Run(context.Background(), sc.Name, sc.Variations, []variant.Config{InitialConfig(sc)})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(out) != 6 {
		t.Fatalf("got %d configs, want 6", len(out))
	}
	want := []string{"nav-1-1", "nav-2-1", "nav-1-2", "nav-2-2", "nav-1-3", "nav-2-3"}
	got := map[string]bool{}
	for _, c := range out {
		got[c.Name] = true
		if c.Params["speed"] != 0.5 {
			t.Errorf("%s lost scenario parameter: %v", c.Name, c.Params)
		}
	}
	for _, w := range want {
		if !got[w] {
			t.Errorf("missing config %s in %v", w, got)
		}
	}
}

func TestRunValidatesBeforeRunning(t *testing.T) {
	var calls atomic.Int32
	r := &Runner{Registry: testRegistry(t, &calls)}
	sc := parseScenario(t, `
name: nav
variations:
  - Fan: {name: a, factor: 2}
  - Nope: {}
  - Fan: {name: b, factor: -1}
`)
	_, err := r.Run(context.Background(), sc.Name, sc.Variations, []variant.Config{InitialConfig(sc)})
	if err == nil {
		t.Fatal("expected error")
	}
	var res *ResolutionError
	if !errors.As(err, &res) || !errors.Is(err, ErrUnknownStage) {
		t.Errorf("expected unknown stage resolution error, got %v", err)
	}
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Stage != "Fan" || verr.Errors[0].Field != "factor" {
		t.Errorf("expected validation error for factor, got %v", err)
	}
	if calls.Load() != 0 {
		t.Errorf("stages ran %d times before validation finished", calls.Load())
	}
}

func TestRunStageFailure(t *testing.T) {
	var calls atomic.Int32
	r := &Runner{Registry: testRegistry(t, &calls)}
	var events []StageEvent
	r.OnStage = func(ev StageEvent) { events = append(events, ev) }

	sc := parseScenario(t, `
name: nav
variations:
  - Fan: {name: a, factor: 1}
  - Fan: {name: b, factor: 1, fail: true}
  - Fan: {name: c, factor: 1}
`)
	_, err := r.Run(context.Background(), sc.Name, sc.Variations, []variant.Config{InitialConfig(sc)})
	var serr *StageError
	if !errors.As(err, &serr) {
		t.Fatalf("expected StageError, got %v", err)
	}
	if serr.Scenario != "nav" || serr.Stage != "Fan" || !errors.Is(err, errBoom) {
		t.Errorf("unexpected stage error %v", serr)
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", calls.Load())
	}
	if len(events) != 2 || events[1].Err == nil || events[0].Outputs != 1 {
		t.Errorf("unexpected events %+v", events)
	}
}

func TestRunEmptyOutput(t *testing.T) {
	var calls atomic.Int32
	r := &Runner{Registry: testRegistry(t, &calls)}
	sc := parseScenario(t, `
name: nav
variations:
  - Fan: {name: a, factor: 0}
  - Fan: {name: b, factor: 2}
`)
	_, err := r.Run(context.Background(), sc.Name, sc.Variations, []variant.Config{InitialConfig(sc)})
	if !errors.Is(err, ErrNoConfigs) {
		t.Fatalf("expected ErrNoConfigs, got %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
}

func TestRunWithoutStagesReturnsInitial(t *testing.T) {
	r := &Runner{Registry: stage.NewRegistry()}
	sc := parseScenario(t, "name: plain\nparameters:\n  - x: 1\n")
	out, err := r.Run(context.Background(), sc.Name, sc.Variations, []variant.Config{InitialConfig(sc)})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(out) != 1 || out[0].Name != "plain" || out[0].Params["x"] != 1 {
		t.Errorf("unexpected output %+v", out)
	}
}

func TestStructuralCache(t *testing.T) {
	dir := t.TempDir()
	influence := filepath.Join(dir, "floor.variation")
	if err := os.WriteFile(influence, []byte("v1"), 0o644); err != nil {
		t.Fatal(err)
	}
	var calls atomic.Int32
	var cached []bool
	r := &Runner{
		Registry: testRegistry(t, &calls),
		Cache:    cache.New(dir, nil),
		Env:      stage.Env{BaseDir: dir},
		OnStage:  func(ev StageEvent) { cached = append(cached, ev.Cached) },
	}
	sc := parseScenario(t, fmt.Sprintf(`
name: nav
variations:
  - Fan: {name: a, factor: 2, file: %q}
  - Fan: {name: b, factor: 2}
`, influence))
	run := func() []variant.Config {
		t.Helper()
		out, err := r.Run(context.Background(), sc.Name, sc.Variations, []variant.Config{InitialConfig(sc)})
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		return out
	}

	first := run()
	if calls.Load() != 2 {
		t.Fatalf("calls = %d, want 2", calls.Load())
	}
	second := run()
	if calls.Load() != 2 {
		t.Errorf("second run executed stages: calls = %d", calls.Load())
	}
	if len(second) != len(first) || second[3].Name != first[3].Name {
		t.Errorf("cached output differs: %v vs %v", second, first)
	}
	if !cached[2] || !cached[3] {
		t.Errorf("cache events = %v, want hits for the second run", cached)
	}

	if err := os.WriteFile(influence, []byte("v2"), 0o644); err != nil {
		t.Fatal(err)
	}
	run()
	// Only the stage declaring the file reruns; its output is unchanged, so
	// the next stage still hits.
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
}

func TestStructuralCacheMissingArtifact(t *testing.T) {
	dir := t.TempDir()
	mapFile := filepath.Join(dir, "map.yaml")
	if err := os.WriteFile(mapFile, []byte("image: m.png"), 0o644); err != nil {
		t.Fatal(err)
	}
	var calls atomic.Int32
	r := &Runner{Registry: testRegistry(t, &calls), Cache: cache.New(dir, nil)}
	sc := parseScenario(t, fmt.Sprintf("name: nav\nvariations:\n  - Fan: {name: a, factor: 1, map: %q}\n", mapFile))

	for i := 0; i < 2; i++ {
		if _, err := r.Run(context.Background(), sc.Name, sc.Variations, []variant.Config{InitialConfig(sc)}); err != nil {
			t.Fatalf("Run: %v", err)
		}
	}
	if calls.Load() != 1 {
		t.Fatalf("calls = %d, want 1", calls.Load())
	}
	if err := os.Remove(mapFile); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Run(context.Background(), sc.Name, sc.Variations, []variant.Config{InitialConfig(sc)}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("hit with vanished map file must regenerate: calls = %d", calls.Load())
	}
}

func TestRunBatch(t *testing.T) {
	var calls atomic.Int32
	r := &Runner{Registry: testRegistry(t, &calls)}
	scenarios := []config.Scenario{
		parseScenario(t, "name: good\nvariations:\n  - Fan: {name: a, factor: 2}\n"),
		parseScenario(t, "name: bad\nvariations:\n  - Fan: {name: a, factor: 1, fail: true}\n"),
		parseScenario(t, "name: plain\n"),
	}
	res := r.RunBatch(context.Background(), scenarios)
	if len(res.Scenarios) != 3 {
		t.Fatalf("got %d results", len(res.Scenarios))
	}
	if !res.Scenarios[0].OK() || len(res.Scenarios[0].Configs) != 2 {
		t.Errorf("good scenario: %+v", res.Scenarios[0])
	}
	if res.Scenarios[1].OK() {
		t.Error("bad scenario should fail")
	}
	if len(res.Scenarios[0].Identifier) != 12 {
		t.Errorf("identifier = %q", res.Scenarios[0].Identifier)
	}
	if res.Scenarios[0].Identifier == res.Scenarios[2].Identifier {
		t.Error("different scenarios share an identifier")
	}
	if len(res.Configs()) != 3 || len(res.Failed()) != 1 {
		t.Errorf("Configs = %d, Failed = %d", len(res.Configs()), len(res.Failed()))
	}
}

func TestRunBatchRejectsDuplicateNames(t *testing.T) {
	var calls atomic.Int32
	r := &Runner{Registry: testRegistry(t, &calls)}
	scenarios := []config.Scenario{
		parseScenario(t, "name: nav\nvariations:\n  - Fan: {name: a, factor: 1}\n"),
		parseScenario(t, "name: nav-1\n"),
		parseScenario(t, "name: other\n"),
	}
	res := r.RunBatch(context.Background(), scenarios)
	for _, i := range []int{0, 1} {
		if !errors.Is(res.Scenarios[i].Err, ErrDuplicateName) {
			t.Errorf("scenario %s: err = %v, want duplicate name", res.Scenarios[i].Name, res.Scenarios[i].Err)
		}
	}
	if !res.Scenarios[2].OK() {
		t.Errorf("unrelated scenario failed: %v", res.Scenarios[2].Err)
	}
}

func TestRunBatchBuiltinStages(t *testing.T) {
	r := &Runner{}
	sc := parseScenario(t, `
name: speeds
parameters:
  - robot: tb4
variations:
  - ParameterVariationList:
      name: speed
      values: [0.2, 0.4]
  - ParameterVariationDistributionUniform:
      name: tries
      num_variations: 2
      min: 1
      max: 3
      type: int
      seed: 9
`)
	res := r.RunBatch(context.Background(), []config.Scenario{sc})
	if err := res.Scenarios[0].Err; err != nil {
		t.Fatalf("RunBatch: %v", err)
	}
	configs := res.Configs()
	if len(configs) != 4 {
		t.Fatalf("got %d configs, want 4", len(configs))
	}
	for _, c := range configs {
		if c.Params["robot"] != "tb4" {
			t.Errorf("%s: missing scenario parameter", c.Name)
		}
		if _, ok := c.Params["tries"].(int); !ok {
			t.Errorf("%s: tries = %#v", c.Name, c.Params["tries"])
		}
	}
}

func TestValidateScenario(t *testing.T) {
	var calls atomic.Int32
	r := &Runner{Registry: testRegistry(t, &calls)}
	if err := r.Validate(parseScenario(t, "name: ok\nvariations:\n  - Fan: {name: a, factor: 1}\n")); err != nil {
		t.Errorf("Validate: %v", err)
	}
	err := r.Validate(parseScenario(t, "name: bad\nvariations:\n  - Missing: {}\n"))
	if !errors.Is(err, ErrUnknownStage) {
		t.Errorf("err = %v, want unknown stage", err)
	}
	if calls.Load() != 0 {
		t.Error("Validate must not run stages")
	}
}
