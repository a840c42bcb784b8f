package cache

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestCoarseRoundTrip(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "map.yaml")
	writeFile(t, input, "image: map.png\n")

	s := New(dir, nil)
	_, ok, err := s.Get("path_generation_config1_0_42", []string{input}, []string{"0", "42"})
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Put("path_generation_config1_0_42", []string{input}, []string{"0", "42"}, []byte("17")))
	data, ok, err := s.Get("path_generation_config1_0_42", []string{input}, []string{"42", "0"})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "17", string(data))
	assert.FileExists(t, filepath.Join(dir, DirName, "path_generation_config1_0_42_md5"))
}

func TestCoarseInvalidatesOnMetadataChange(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "map.yaml")
	writeFile(t, input, "a")
	s := New(dir, nil)
	require.NoError(t, s.Put("entry", []string{input}, nil, []byte("x")))

	writeFile(t, input, "longer content")
	future := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(input, future, future))

	_, ok, err := s.Get("entry", []string{input}, nil)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoFileExists(t, s.ArtifactPath("entry"))
	assert.NoFileExists(t, s.ArtifactPath("entry")+"_md5")
}

func TestCoarseHashStringsMatter(t *testing.T) {
	s := New(t.TempDir(), nil)
	require.NoError(t, s.Put("entry", nil, []string{"seed=1"}, []byte("x")))
	_, ok, err := s.Get("entry", nil, []string{"seed=2"})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMissingInputModes(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "map.yaml")
	writeFile(t, input, "a")

	s := New(dir, nil)
	require.NoError(t, s.Put("entry", []string{input}, nil, []byte("x")))
	require.NoError(t, os.Remove(input))

	_, ok, err := s.Get("entry", []string{input}, nil)
	require.NoError(t, err)
	assert.False(t, ok)

	s.Mode = ModeHashRequired
	_, _, err = s.Get("entry", []string{input}, nil)
	assert.ErrorIs(t, err, ErrInputMissing)
}

func TestStructuralEntries(t *testing.T) {
	s := New(t.TempDir(), nil)
	require.NoError(t, s.PutDigest("stage_PathVariation", "abc", []byte("configs")))

	data, ok := s.GetDigest("stage_PathVariation", "abc")
	assert.True(t, ok)
	assert.Equal(t, "configs", string(data))

	_, ok = s.GetDigest("stage_PathVariation", "def")
	assert.False(t, ok)
	_, ok = s.GetDigest("stage_PathVariation", "abc")
	assert.False(t, ok, "mismatch must evict the entry")
}

func TestMissingArtifactWithSidecarIsMiss(t *testing.T) {
	s := New(t.TempDir(), nil)
	require.NoError(t, s.PutDigest("e", "d", []byte("x")))
	require.NoError(t, os.Remove(s.ArtifactPath("e")))
	_, ok := s.GetDigest("e", "d")
	assert.False(t, ok)
	assert.NoFileExists(t, s.ArtifactPath("e")+"_sha256")
}

func TestCleanAndEntries(t *testing.T) {
	s := New(t.TempDir(), nil)
	names, err := s.Entries()
	require.NoError(t, err)
	assert.Empty(t, names)

	require.NoError(t, s.Put("b", nil, nil, []byte("1")))
	require.NoError(t, s.PutDigest("a", "x", []byte("2")))
	names, err = s.Entries()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, names)

	require.NoError(t, s.Clean())
	assert.NoDirExists(t, s.Dir)
}

func TestSafeName(t *testing.T) {
	assert.Equal(t, "floorplan_maps_a.yaml", SafeName("floorplan_maps/a.yaml"))
	assert.Equal(t, "a_b", SafeName("a b"))
}

func TestHasherCanonical(t *testing.T) {
	a := NewHasher()
	require.NoError(t, a.Add("params", map[string]any{"x": 1, "y": []int{1, 2}}))
	b := NewHasher()
	require.NoError(t, b.Add("params", map[string]any{"y": []int{1, 2}, "x": 1}))
	assert.Equal(t, a.Sum(), b.Sum())

	c := NewHasher()
	c.AddString("a", "bc")
	d := NewHasher()
	d.AddString("ab", "c")
	assert.NotEqual(t, c.Sum(), d.Sum())
}

func TestHasherFileContent(t *testing.T) {
	dir := t.TempDir()
	f := filepath.Join(dir, "v.yaml")
	writeFile(t, f, "one")
	h1 := NewHasher()
	require.NoError(t, h1.AddFile("f", f))
	writeFile(t, f, "two")
	h2 := NewHasher()
	require.NoError(t, h2.AddFile("f", f))
	assert.NotEqual(t, h1.Sum(), h2.Sum())

	assert.Error(t, NewHasher().AddFile("f", filepath.Join(dir, "missing")))
}

func TestConfigIdentifier(t *testing.T) {
	dir := t.TempDir()
	scenario := filepath.Join(dir, "s.scenario")
	writeFile(t, scenario, "scenario")
	block := map[string]any{"name": "nav"}

	id1, err := ConfigIdentifier(block, scenario, nil, []string{"PathVariation"})
	require.NoError(t, err)
	assert.Len(t, id1, 12)

	id2, err := ConfigIdentifier(block, scenario, nil, []string{"PathVariation"})
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	id3, err := ConfigIdentifier(block, scenario, nil, []string{"ObstacleVariation"})
	require.NoError(t, err)
	assert.NotEqual(t, id1, id3)
}
