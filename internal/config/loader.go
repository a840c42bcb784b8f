package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// FileExt is the conventional extension of declarative variation files.
const FileExt = ".vast"

// Load reads and parses a declarative file. Structural problems are reported
// by Validate, not here.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", path, err)
	}
	f.Path = abs
	return &f, nil
}

// LoadValid loads a file and fails with every validation problem found.
func LoadValid(path string) (*File, error) {
	f, err := Load(path)
	if err != nil {
		return nil, err
	}
	if errs := Validate(f); len(errs) > 0 {
		return nil, &InvalidError{Path: path, Errors: errs}
	}
	return f, nil
}

// Resolve turns a CLI argument into a file path. A directory must contain
// exactly one *.vast file.
func Resolve(arg string) (string, error) {
	info, err := os.Stat(arg)
	if err != nil {
		return "", err
	}
	if !info.IsDir() {
		return arg, nil
	}
	matches, err := filepath.Glob(filepath.Join(arg, "*"+FileExt))
	if err != nil {
		return "", err
	}
	sort.Strings(matches)
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("no %s file found in %s", FileExt, arg)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("multiple %s files in %s: %v", FileExt, arg, matches)
	}
}
