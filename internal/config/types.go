package config

import (
	"fmt"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// CurrentVersion is the only declarative file version understood.
const CurrentVersion = 1

// File is a parsed declarative scenario-variation file.
type File struct {
	Version       int            `yaml:"version"`
	General       map[string]any `yaml:"general,omitempty"`
	Execution     Execution      `yaml:"execution"`
	Configuration []Scenario     `yaml:"configuration"`
	Metadata      map[string]any `yaml:"metadata,omitempty"`

	// Path is the absolute location the file was loaded from.
	Path string `yaml:"-"`
}

// Execution holds the parts of the execution section the generator uses.
// Other keys are preserved in Extra for downstream consumers.
type Execution struct {
	ScenarioFile string         `yaml:"scenario_file,omitempty"`
	Extra        map[string]any `yaml:",inline"`
}

// Scenario is one abstract scenario: fixed parameters plus an ordered list of
// variation stages that expand it.
type Scenario struct {
	Name       string           `yaml:"name"`
	Parameters []map[string]any `yaml:"parameters,omitempty"`
	Variations []StageSpec      `yaml:"variations,omitempty"`
}

// StageSpec is one "StageName: {params}" entry of a variation list. Params is
// kept as a raw node so each stage can decode it strictly into its own type.
type StageSpec struct {
	Name   string
	Params yaml.Node
	Line   int

	// keys records every key of the entry so Validate can flag malformed ones.
	keys []string
}

// UnmarshalYAML accepts a single-key mapping.
func (s *StageSpec) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: variation entry must be a mapping of stage name to parameters", node.Line)
	}
	s.Line = node.Line
	s.keys = nil
	for i := 0; i+1 < len(node.Content); i += 2 {
		s.keys = append(s.keys, node.Content[i].Value)
	}
	if len(node.Content) >= 2 {
		s.Name = node.Content[0].Value
		s.Params = *node.Content[1]
	}
	return nil
}

// MarshalYAML writes the entry back in its single-key form.
func (s StageSpec) MarshalYAML() (any, error) {
	params := s.Params
	if params.Kind == 0 {
		params = yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	}
	return &yaml.Node{
		Kind: yaml.MappingNode,
		Tag:  "!!map",
		Content: []*yaml.Node{
			{Kind: yaml.ScalarNode, Tag: "!!str", Value: s.Name},
			&params,
		},
	}, nil
}

// ParamMap merges the single-key parameter entries; later entries win.
func (s Scenario) ParamMap() map[string]any {
	out := make(map[string]any)
	for _, p := range s.Parameters {
		for k, v := range p {
			out[k] = v
		}
	}
	return out
}

// StageNames lists the variation stage names in order.
func (s Scenario) StageNames() []string {
	names := make([]string, len(s.Variations))
	for i, v := range s.Variations {
		names[i] = v.Name
	}
	return names
}

// BaseDir is the directory relative paths in the file resolve against.
func (f *File) BaseDir() string {
	return filepath.Dir(f.Path)
}

// ScenarioFilePath returns the absolute scenario file path, or "" if none is set.
func (f *File) ScenarioFilePath() string {
	if f.Execution.ScenarioFile == "" {
		return ""
	}
	if filepath.IsAbs(f.Execution.ScenarioFile) {
		return f.Execution.ScenarioFile
	}
	return filepath.Join(f.BaseDir(), f.Execution.ScenarioFile)
}

// Scenario returns the abstract scenario with the given name.
func (f *File) Scenario(name string) (Scenario, bool) {
	for _, s := range f.Configuration {
		if s.Name == name {
			return s, true
		}
	}
	return Scenario{}, false
}
