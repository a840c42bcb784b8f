package stage

import (
	"context"
	"math"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/lucasnoah/variantfactory/internal/config"
	"github.com/lucasnoah/variantfactory/internal/variant"
)

// ListParams configures ParameterVariationList.
type ListParams struct {
	Name   string `yaml:"name"`
	Values []any  `yaml:"values"`
}

func (p *ListParams) Validate() []config.ValidationError {
	var errs problems
	errs.require(p.Name != "", "name", "is required")
	errs.require(len(p.Values) > 0, "values", "must be a non-empty list")
	return errs
}

// UniformParams configures ParameterVariationDistributionUniform.
type UniformParams struct {
	Name          string  `yaml:"name"`
	NumVariations int     `yaml:"num_variations"`
	Min           *Number `yaml:"min"`
	Max           *Number `yaml:"max"`
	Type          string  `yaml:"type"`
	Seed          *int64  `yaml:"seed"`
}

func (p *UniformParams) Validate() []config.ValidationError {
	var errs problems
	errs.require(p.Name != "", "name", "is required")
	errs.require(p.NumVariations >= 1, "num_variations", "must be at least 1")
	errs.require(p.Min != nil, "min", "is required")
	errs.require(p.Max != nil, "max", "is required")
	errs.require(p.Seed != nil, "seed", "is required")
	errs.require(knownValueType(p.Type), "type", "must be one of int, integer, float, double, number, bool, string")
	if p.Min != nil && p.Max != nil && p.Type != "bool" && p.Min.Value > p.Max.Value {
		errs.add("min", "must not exceed max")
	}
	return errs
}

// GaussianParams configures ParameterVariationDistributionGaussian.
type GaussianParams struct {
	Name          string   `yaml:"name"`
	NumVariations int      `yaml:"num_variations"`
	Mean          *float64 `yaml:"mean"`
	Std           *float64 `yaml:"std"`
	Min           *float64 `yaml:"min"`
	Max           *float64 `yaml:"max"`
	Type          string   `yaml:"type"`
	Seed          *int64   `yaml:"seed"`
}

func (p *GaussianParams) Validate() []config.ValidationError {
	var errs problems
	errs.require(p.Name != "", "name", "is required")
	errs.require(p.NumVariations >= 1, "num_variations", "must be at least 1")
	errs.require(p.Mean != nil, "mean", "is required")
	errs.require(p.Std != nil && *p.Std >= 0, "std", "is required and must not be negative")
	errs.require(p.Seed != nil, "seed", "is required")
	errs.require(knownValueType(p.Type), "type", "must be one of int, integer, float, double, number, bool, string")
	if p.Min != nil && p.Max != nil && *p.Min > *p.Max {
		errs.add("min", "must not exceed max")
	}
	return errs
}

func knownValueType(t string) bool {
	switch t {
	case "int", "integer", "float", "double", "number", "bool", "string":
		return true
	}
	return false
}

// valueStage assigns each value to each input config. Values are drawn once
// per stage run, so every input sees the same sequence.
type valueStage struct {
	name   string
	param  string
	params any
	values func() []any
}

func (s *valueStage) Name() string { return s.name }
func (s *valueStage) Params() any  { return s.params }

func (s *valueStage) CacheInputs([]variant.Config) ([]string, error) { return nil, nil }

func (s *valueStage) Transform(ctx context.Context, naming *variant.Naming, in []variant.Config) ([]variant.Config, error) {
	return expand(naming, in, s.values(), func(v any) map[string]any {
		return map[string]any{s.param: v}
	}), nil
}

// expand produces one child per (value, input) pair, values outermost. An
// empty input list stands for a single unnamed root config.
func expand[T any](naming *variant.Naming, in []variant.Config, values []T, updates func(T) map[string]any) []variant.Config {
	if len(in) == 0 {
		in = []variant.Config{variant.New("")}
	}
	out := make([]variant.Config, 0, len(values)*len(in))
	for _, v := range values {
		for _, c := range in {
			out = append(out, naming.Child(c, updates(v)))
		}
	}
	return out
}

func newListStage(env Env, node *yaml.Node) (Stage, error) {
	p := &ListParams{}
	if err := decodeParams("ParameterVariationList", node, p); err != nil {
		return nil, err
	}
	return &valueStage{
		name:   "ParameterVariationList",
		param:  p.Name,
		params: p,
		values: func() []any { return p.Values },
	}, nil
}

func newUniformStage(env Env, node *yaml.Node) (Stage, error) {
	p := &UniformParams{Type: "float"}
	if err := decodeParams("ParameterVariationDistributionUniform", node, p); err != nil {
		return nil, err
	}
	return &valueStage{
		name:   "ParameterVariationDistributionUniform",
		param:  p.Name,
		params: p,
		values: p.draw,
	}, nil
}

func (p *UniformParams) draw() []any {
	rng := newRNG(*p.Seed)
	lo, hi := p.Min.Value, p.Max.Value
	out := make([]any, p.NumVariations)
	for i := range out {
		switch p.Type {
		case "int", "integer":
			out[i] = intBetween(rng, lo, hi)
		case "float", "double", "number":
			out[i] = lo + rng.Float64()*(hi-lo)
		case "bool":
			out[i] = rng.Float64() < hi
		default:
			if p.Min.IsInt && p.Max.IsInt {
				out[i] = strconv.Itoa(intBetween(rng, lo, hi))
			} else {
				out[i] = strconv.FormatFloat(lo+rng.Float64()*(hi-lo), 'g', -1, 64)
			}
		}
	}
	return out
}

func newGaussianStage(env Env, node *yaml.Node) (Stage, error) {
	p := &GaussianParams{Type: "float"}
	if err := decodeParams("ParameterVariationDistributionGaussian", node, p); err != nil {
		return nil, err
	}
	return &valueStage{
		name:   "ParameterVariationDistributionGaussian",
		param:  p.Name,
		params: p,
		values: p.draw,
	}, nil
}

func (p *GaussianParams) draw() []any {
	rng := newRNG(*p.Seed)
	out := make([]any, p.NumVariations)
	for i := range out {
		v := rng.NormFloat64()*(*p.Std) + *p.Mean
		if p.Min != nil {
			v = math.Max(v, *p.Min)
		}
		if p.Max != nil {
			v = math.Min(v, *p.Max)
		}
		switch p.Type {
		case "int", "integer":
			out[i] = int(roundInt(v))
		case "float", "double", "number":
			out[i] = v
		case "bool":
			out[i] = v >= *p.Mean
		default:
			out[i] = strconv.FormatFloat(v, 'g', -1, 64)
		}
	}
	return out
}
