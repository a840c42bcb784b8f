package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Hasher builds a structural digest from labeled parts. Each part is
// length-prefixed so adjacent parts cannot run together.
type Hasher struct {
	h hash.Hash
}

// NewHasher returns an empty SHA-256 hasher.
func NewHasher() *Hasher {
	return &Hasher{h: sha256.New()}
}

// AddBytes mixes raw bytes under label.
func (h *Hasher) AddBytes(label string, b []byte) {
	h.write(label)
	h.write(string(b))
}

// AddString mixes a string under label.
func (h *Hasher) AddString(label, s string) {
	h.AddBytes(label, []byte(s))
}

// Add mixes the canonical YAML form of v. Map keys are emitted sorted, so
// equal values hash equally regardless of construction order.
func (h *Hasher) Add(label string, v any) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("hashing %s: %w", label, err)
	}
	h.AddBytes(label, data)
	return nil
}

// AddFile mixes the content of the file at path together with the path.
func (h *Hasher) AddFile(label, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("hashing %s: %w", label, err)
	}
	h.AddString(label+".path", path)
	h.AddBytes(label, data)
	return nil
}

// Sum returns the hex digest.
func (h *Hasher) Sum() string {
	return hex.EncodeToString(h.h.Sum(nil))
}

func (h *Hasher) write(s string) {
	h.h.Write([]byte(strconv.Itoa(len(s))))
	h.h.Write([]byte{':'})
	h.h.Write([]byte(s))
}

// ConfigIdentifier derives a short stable id for an abstract scenario from its
// declarative block, the scenario file content, the content of referenced
// files and the stage names. Missing files are mixed in by path only.
func ConfigIdentifier(block any, scenarioFile string, files, stages []string) (string, error) {
	h := NewHasher()
	if err := h.Add("block", block); err != nil {
		return "", err
	}
	if scenarioFile != "" {
		if err := h.AddFile("scenario", scenarioFile); err != nil {
			h.AddString("scenario.missing", scenarioFile)
		}
	}
	for _, f := range files {
		if err := h.AddFile("file", f); err != nil {
			h.AddString("file.missing", f)
		}
	}
	for _, s := range stages {
		h.AddString("stage", s)
	}
	return h.Sum()[:12], nil
}
