package variant

import (
	"fmt"
	"maps"
	"math"

	"gopkg.in/yaml.v3"
)

// Position is a 2D point in world coordinates (meters).
type Position struct {
	X float64 `yaml:"x" json:"x"`
	Y float64 `yaml:"y" json:"y"`
}

// Distance returns the Euclidean distance between p and q.
func (p Position) Distance(q Position) float64 {
	return math.Hypot(q.X-p.X, q.Y-p.Y)
}

// Orientation is a planar heading in radians.
type Orientation struct {
	Yaw float64 `yaml:"yaw" json:"yaw"`
}

// Pose is a position plus heading, serialized in the nested form the test runner expects.
type Pose struct {
	Position    Position    `yaml:"position" json:"position"`
	Orientation Orientation `yaml:"orientation" json:"orientation"`
}

// NewPose builds a pose from flat coordinates.
func NewPose(x, y, yaw float64) Pose {
	return Pose{Position: Position{X: x, Y: y}, Orientation: Orientation{Yaw: yaw}}
}

func (p Pose) String() string {
	return fmt.Sprintf("(%.2f, %.2f, %.2f)", p.Position.X, p.Position.Y, p.Orientation.Yaw)
}

// StaticObject is an obstacle spawned into the simulated world.
// The model file name encodes the shape family and ShapeArgs its dimensions
// ("width:=0.5, length:=0.8").
type StaticObject struct {
	EntityName string `yaml:"entity_name" json:"entity_name"`
	Model      string `yaml:"model" json:"model"`
	SpawnPose  Pose   `yaml:"spawn_pose" json:"spawn_pose"`
	ShapeArgs  string `yaml:"xacro_arguments" json:"xacro_arguments"`
}

// FileCopy is an auxiliary file that must be copied into the config's directory.
// Dest is relative to that directory, Source is absolute.
type FileCopy struct {
	Dest   string `yaml:"dest" json:"dest"`
	Source string `yaml:"source" json:"source"`
}

// Config is one concrete parameterization flowing through the pipeline.
//
// Params is the persisted payload. The underscore-tagged fields are working state
// for later stages or renderers: they survive in the cache form and are dropped
// from the output form.
type Config struct {
	Name        string         `yaml:"name"`
	Params      map[string]any `yaml:"config"`
	ConfigFiles []FileCopy     `yaml:"_config_files,omitempty"`
	Path        []Position     `yaml:"_path,omitempty"`
	MapFile     string         `yaml:"_map_file,omitempty"`
	Extra       map[string]any `yaml:"_extra,omitempty"`
}

// New returns an empty config with the given name.
func New(name string) Config {
	return Config{Name: name, Params: map[string]any{}}
}

// Clone copies the config one level deep. Parameter values are replaced by
// stages, never mutated in place, so sharing them is safe.
func (c Config) Clone() Config {
	out := c
	out.Params = maps.Clone(c.Params)
	if out.Params == nil {
		out.Params = map[string]any{}
	}
	out.Extra = maps.Clone(c.Extra)
	if c.ConfigFiles != nil {
		out.ConfigFiles = append([]FileCopy(nil), c.ConfigFiles...)
	}
	if c.Path != nil {
		out.Path = append([]Position(nil), c.Path...)
	}
	return out
}

// Child clones c under a new name and applies updates to its parameters.
func (c Config) Child(name string, updates map[string]any) Config {
	out := c.Clone()
	out.Name = name
	for k, v := range updates {
		out.Params[k] = v
	}
	return out
}

// Has reports whether a parameter is set.
func (c Config) Has(key string) bool {
	_, ok := c.Params[key]
	return ok
}

// DecodeParam decodes parameter key into out. Values may be typed (set by a stage
// in this run) or generic maps (loaded from a cache entry or the scenario file);
// both are normalized through YAML.
func (c Config) DecodeParam(key string, out any) error {
	v, ok := c.Params[key]
	if !ok {
		return fmt.Errorf("config %q: missing parameter %q", c.Name, key)
	}
	data, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("config %q: encode parameter %q: %w", c.Name, key, err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("config %q: decode parameter %q: %w", c.Name, key, err)
	}
	return nil
}

// AddConfigFile records an auxiliary file, replacing an earlier entry with the same Dest.
func (c *Config) AddConfigFile(dest, source string) {
	for i := range c.ConfigFiles {
		if c.ConfigFiles[i].Dest == dest {
			c.ConfigFiles[i].Source = source
			return
		}
	}
	c.ConfigFiles = append(c.ConfigFiles, FileCopy{Dest: dest, Source: source})
}
