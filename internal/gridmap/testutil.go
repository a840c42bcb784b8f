package gridmap

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
)

// WriteTestMap writes a map YAML plus PNG image into dir. occupied is called
// for every cell (row 0 at the top) and may be nil for an all-free map. It
// returns the YAML path. Used by tests of packages that load maps.
func WriteTestMap(dir, name string, width, height int, resolution float64, origin [2]float64, occupied func(gx, gy int) bool) (string, error) {
	img := image.NewGray(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			v := uint8(255)
			if occupied != nil && occupied(x, y) {
				v = 0
			}
			img.SetGray(x, y, color.Gray{Y: v})
		}
	}
	imgPath := filepath.Join(dir, name+".png")
	f, err := os.Create(imgPath)
	if err != nil {
		return "", err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	yamlPath := filepath.Join(dir, name+".yaml")
	body := fmt.Sprintf("image: %s.png\nresolution: %g\norigin: [%g, %g, 0.0]\nnegate: 0\noccupied_thresh: 0.65\nfree_thresh: 0.196\n",
		name, resolution, origin[0], origin[1])
	if err := os.WriteFile(yamlPath, []byte(body), 0o644); err != nil {
		return "", err
	}
	return yamlPath, nil
}
