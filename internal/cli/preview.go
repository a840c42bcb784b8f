package cli

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/lucasnoah/variantfactory/internal/fsutil"
	"github.com/lucasnoah/variantfactory/internal/gridmap"
	"github.com/lucasnoah/variantfactory/internal/nav"
	"github.com/lucasnoah/variantfactory/internal/pipeline"
	"github.com/lucasnoah/variantfactory/internal/preview"
	"github.com/lucasnoah/variantfactory/internal/variant"
)

var (
	previewMap           string
	previewMapParam      string
	previewConfigs       []string
	previewRobotDiameter float64
	previewPNG           bool
)

var previewCmd = &cobra.Command{
	Use:   "preview <output-dir>",
	Short: "Render generated configs as images",
	Long: `Draws the map, route and obstacles of each config in scenario.configs.
The map is --map if given, otherwise the file named by the --map-param
parameter inside the config's directory. A route is replanned from the start
and goal poses.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store := pipeline.NewStore(args[0])
		configs, err := store.Configs()
		if err != nil {
			return err
		}
		if len(previewConfigs) > 0 {
			configs = filterConfigs(configs, previewConfigs)
		}

		maps := newMapSet()
		opts := preview.DefaultOptions()
		opts.RobotDiameter = previewRobotDiameter
		var errs error
		written := 0
		for _, c := range configs {
			mapFile := previewMap
			if mapFile == "" {
				rel, _ := c.Params[previewMapParam].(string)
				if rel == "" {
					errs = multierr.Append(errs, fmt.Errorf("config %s: no map given and no %q parameter", c.Name, previewMapParam))
					continue
				}
				mapFile = filepath.Join(store.ConfigDir(c.Name), filepath.FromSlash(rel))
			}
			dst, err := renderConfig(store, c, maps, mapFile, opts, previewPNG)
			if err != nil {
				errs = multierr.Append(errs, err)
				continue
			}
			written++
			cmd.Printf("  %s\n", dst)
		}
		cmd.Printf("Wrote %d previews\n", written)
		return errs
	},
}

// writePreviews renders an SVG next to the output of every config that still
// knows its map.
func writePreviews(store *pipeline.Store, configs []variant.Config, robotDiameter float64) error {
	maps := newMapSet()
	opts := preview.DefaultOptions()
	opts.RobotDiameter = robotDiameter
	var errs error
	for _, c := range configs {
		mapFile := c.MapFile
		if mapFile == "" {
			mapFile, _ = c.Extra["map_file"].(string)
		}
		if mapFile == "" {
			continue
		}
		if _, err := renderConfig(store, c, maps, mapFile, opts, false); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

func renderConfig(store *pipeline.Store, c variant.Config, maps *mapSet, mapFile string, opts preview.Options, asPNG bool) (string, error) {
	m, err := maps.load(mapFile)
	if err != nil {
		return "", fmt.Errorf("config %s: %w", c.Name, err)
	}
	scene, err := preview.SceneFor(c, m, preview.DefaultKeys)
	if err != nil {
		return "", err
	}
	if len(scene.Path) == 0 && scene.Start != nil && len(scene.Goals) > 0 {
		waypoints := []variant.Position{scene.Start.Position}
		for _, g := range scene.Goals {
			waypoints = append(waypoints, g.Position)
		}
		if path, err := nav.NewPlanner(m, opts.RobotDiameter).Plan(waypoints, scene.Obstacles); err == nil {
			scene.Path = path
		} else {
			logger.Debug("replanning preview route failed", "config", c.Name, "error", err)
		}
	}

	var buf bytes.Buffer
	ext := ".svg"
	if asPNG {
		ext = ".png"
		err = preview.RenderPNG(&buf, scene, opts)
	} else {
		err = preview.RenderSVG(&buf, scene, opts)
	}
	if err != nil {
		return "", fmt.Errorf("config %s: %w", c.Name, err)
	}
	dst := filepath.Join(store.Dir(), c.Name+ext)
	if err := fsutil.WriteAtomic(dst, buf.Bytes()); err != nil {
		return "", err
	}
	return dst, nil
}

// mapSet loads each map file once.
type mapSet struct {
	maps map[string]*gridmap.Map
}

func newMapSet() *mapSet {
	return &mapSet{maps: make(map[string]*gridmap.Map)}
}

func (s *mapSet) load(path string) (*gridmap.Map, error) {
	if m, ok := s.maps[path]; ok {
		return m, nil
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("map %s: %w", path, err)
	}
	m, err := gridmap.Load(path)
	if err != nil {
		return nil, err
	}
	s.maps[path] = m
	return m, nil
}

func filterConfigs(configs []variant.Config, names []string) []variant.Config {
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}
	var out []variant.Config
	for _, c := range configs {
		if want[c.Name] {
			out = append(out, c)
		}
	}
	return out
}

func init() {
	previewCmd.Flags().StringVar(&previewMap, "map", "", "map yaml to draw every config on")
	previewCmd.Flags().StringVar(&previewMapParam, "map-param", "map_file", "config parameter naming the map inside the config directory")
	previewCmd.Flags().StringSliceVarP(&previewConfigs, "config", "c", nil, "only render the named configs")
	previewCmd.Flags().Float64Var(&previewRobotDiameter, "robot-diameter", 0, "robot diameter for inflation shading and replanning")
	previewCmd.Flags().BoolVar(&previewPNG, "png", false, "write PNG instead of SVG")
}
