package gridmap

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"

	_ "github.com/jbuchbinder/gopnm"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	"gopkg.in/yaml.v3"
)

// DefaultResolution applies when the map YAML omits resolution.
const DefaultResolution = 0.05

// ErrMissingImage is returned when the map YAML names no image.
var ErrMissingImage = errors.New("map yaml missing required 'image' field")

// Metadata mirrors the map-server YAML. The thresholds are accepted for
// compatibility; occupancy always uses FreeThreshold.
type Metadata struct {
	Image          string    `yaml:"image"`
	Resolution     float64   `yaml:"resolution"`
	Origin         []float64 `yaml:"origin"`
	Negate         int       `yaml:"negate"`
	OccupiedThresh float64   `yaml:"occupied_thresh"`
	FreeThresh     float64   `yaml:"free_thresh"`
	Mode           string    `yaml:"mode,omitempty"`
}

// ReadMetadata parses a map YAML file without loading the image.
func ReadMetadata(path string) (*Metadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading map yaml: %w", err)
	}
	var meta Metadata
	if err := yaml.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("parsing map yaml %s: %w", path, err)
	}
	if meta.Image == "" {
		return nil, fmt.Errorf("%s: %w", path, ErrMissingImage)
	}
	if meta.Resolution <= 0 {
		meta.Resolution = DefaultResolution
	}
	for len(meta.Origin) < 3 {
		meta.Origin = append(meta.Origin, 0)
	}
	if !filepath.IsAbs(meta.Image) {
		meta.Image = filepath.Join(filepath.Dir(path), meta.Image)
	}
	return &meta, nil
}

// Load reads a map YAML and its image. PNG, JPEG, PGM/PPM/PBM, BMP and TIFF
// images are supported; color images are converted to gray first.
func Load(path string) (*Map, error) {
	meta, err := ReadMetadata(path)
	if err != nil {
		return nil, err
	}
	img, err := decodeImage(meta.Image)
	if err != nil {
		return nil, err
	}

	b := img.Bounds()
	m := New(b.Dx(), b.Dy(), meta.Resolution, [3]float64{meta.Origin[0], meta.Origin[1], meta.Origin[2]})
	m.ImagePath = meta.Image
	m.YAMLPath = path
	for y := 0; y < m.Height; y++ {
		for x := 0; x < m.Width; x++ {
			v := color.GrayModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.Gray).Y
			if meta.Negate != 0 {
				v = 255 - v
			}
			m.occupied[y*m.Width+x] = v < FreeThreshold
		}
	}
	return m, nil
}

// ImageFiles returns the YAML path and its image path: the files a map depends on.
func ImageFiles(path string) ([]string, error) {
	meta, err := ReadMetadata(path)
	if err != nil {
		return nil, err
	}
	return []string{path, meta.Image}, nil
}

func decodeImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("map image: %w", err)
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decoding map image %s: %w", path, err)
	}
	return img, nil
}
