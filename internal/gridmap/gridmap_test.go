package gridmap

import (
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/bmp"
)

func TestTransformsRoundTrip(t *testing.T) {
	m := New(200, 100, 0.05, [3]float64{-3.2, 1.7, 0})
	for _, c := range [][2]int{{0, 0}, {199, 99}, {17, 42}, {150, 3}} {
		x, y := m.GridToWorld(c[0], c[1])
		gx, gy := m.WorldToGrid(x, y)
		assert.Equal(t, c[0], gx)
		assert.Equal(t, c[1], gy)
	}
}

func TestWorldToGridFlipsY(t *testing.T) {
	m := New(10, 10, 1, [3]float64{0, 0, 0})
	gx, gy := m.WorldToGrid(0.5, 9.5)
	assert.Equal(t, 0, gx)
	assert.Equal(t, 0, gy)
	gx, gy = m.WorldToGrid(0.5, 0.5)
	assert.Equal(t, 0, gx)
	assert.Equal(t, 9, gy)
	gx, _ = m.WorldToGrid(-0.5, 0.5)
	assert.Equal(t, -1, gx)
}

func TestBounds(t *testing.T) {
	m := New(200, 100, 0.05, [3]float64{-1, -2, 0})
	minX, minY, maxX, maxY := m.Bounds()
	assert.InDelta(t, -1, minX, 1e-9)
	assert.InDelta(t, -2, minY, 1e-9)
	assert.InDelta(t, 9, maxX, 1e-9)
	assert.InDelta(t, 3, maxY, 1e-9)
	assert.True(t, m.Contains(0, 0))
	assert.False(t, m.Contains(9.5, 0))
}

func TestOccupiedOutOfBounds(t *testing.T) {
	m := New(3, 3, 1, [3]float64{})
	assert.True(t, m.Occupied(-1, 0))
	assert.True(t, m.Occupied(0, 3))
	assert.True(t, m.Free(1, 1))
	m.SetOccupied(1, 1, true)
	assert.False(t, m.Free(1, 1))
	assert.Equal(t, 8, m.FreeCells())
}

func TestLoadPNG(t *testing.T) {
	dir := t.TempDir()
	path, err := WriteTestMap(dir, "room", 40, 20, 0.1, [2]float64{-1, -1}, func(gx, gy int) bool {
		return gx == 0 || gy == 0
	})
	require.NoError(t, err)

	m, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 40, m.Width)
	assert.Equal(t, 20, m.Height)
	assert.InDelta(t, 0.1, m.Resolution, 1e-12)
	assert.Equal(t, [3]float64{-1, -1, 0}, m.Origin)
	assert.True(t, m.Occupied(0, 5))
	assert.True(t, m.Occupied(5, 0))
	assert.True(t, m.Free(5, 5))
	assert.Equal(t, filepath.Join(dir, "room.png"), m.ImagePath)
}

func TestLoadThresholdAndNegate(t *testing.T) {
	dir := t.TempDir()
	img := image.NewGray(image.Rect(0, 0, 3, 1))
	img.SetGray(0, 0, color.Gray{Y: 255})
	img.SetGray(1, 0, color.Gray{Y: 254})
	img.SetGray(2, 0, color.Gray{Y: 253})
	f, err := os.Create(filepath.Join(dir, "strip.bmp"))
	require.NoError(t, err)
	require.NoError(t, bmp.Encode(f, img))
	require.NoError(t, f.Close())

	yamlPath := filepath.Join(dir, "strip.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte("image: strip.bmp\nresolution: 0.5\norigin: [0, 0]\n"), 0o644))
	m, err := Load(yamlPath)
	require.NoError(t, err)
	assert.True(t, m.Free(0, 0))
	assert.True(t, m.Free(1, 0))
	assert.True(t, m.Occupied(2, 0))

	require.NoError(t, os.WriteFile(yamlPath, []byte("image: strip.bmp\nresolution: 0.5\norigin: [0, 0]\nnegate: 1\n"), 0o644))
	m, err = Load(yamlPath)
	require.NoError(t, err)
	assert.True(t, m.Occupied(0, 0))
	assert.True(t, m.Occupied(2, 0))
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()
	_, err := Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	noImage := filepath.Join(dir, "noimage.yaml")
	require.NoError(t, os.WriteFile(noImage, []byte("resolution: 0.1\n"), 0o644))
	_, err = Load(noImage)
	assert.ErrorIs(t, err, ErrMissingImage)

	badImage := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(badImage, []byte("image: nothere.png\n"), 0o644))
	_, err = Load(badImage)
	assert.Error(t, err)
}

func TestReadMetadataDefaults(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "m.yaml")
	require.NoError(t, os.WriteFile(p, []byte("image: m.pgm\n"), 0o644))
	meta, err := ReadMetadata(p)
	require.NoError(t, err)
	assert.Equal(t, DefaultResolution, meta.Resolution)
	assert.Equal(t, []float64{0, 0, 0}, meta.Origin)
	assert.Equal(t, filepath.Join(dir, "m.pgm"), meta.Image)

	files, err := ImageFiles(p)
	require.NoError(t, err)
	assert.Equal(t, []string{p, filepath.Join(dir, "m.pgm")}, files)
}
