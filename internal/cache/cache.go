// Package cache memoizes expensive pipeline work on disk.
//
// Every entry is an artifact file plus a sidecar holding the digest it was
// produced under. Coarse entries (sidecar "<name>_md5") are keyed by input
// file metadata and caller strings. Structural entries (sidecar
// "<name>_sha256") are keyed by a content digest built with Hasher. A digest
// mismatch deletes both files. Read and write failures count as misses; the
// cache never fails the work it accelerates.
package cache

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/multierr"

	"github.com/lucasnoah/variantfactory/internal/fsutil"
)

// DirName is the cache directory created under a data directory.
const DirName = ".cache"

// Mode decides what a vanished input file means for a coarse lookup.
type Mode int

const (
	// ModeLenient skips vanished inputs when digesting, so the digest changes
	// and the lookup misses.
	ModeLenient Mode = iota
	// ModeHashRequired fails the lookup with ErrInputMissing.
	ModeHashRequired
)

// ErrInputMissing is returned in ModeHashRequired when an input file is gone.
var ErrInputMissing = errors.New("cache input file missing")

const (
	coarseSuffix     = "_md5"
	structuralSuffix = "_sha256"
)

// Store is a cache directory.
type Store struct {
	Dir    string
	Mode   Mode
	Logger *slog.Logger
}

// New returns a store rooted at <dataDir>/.cache. The directory is created lazily.
func New(dataDir string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Store{Dir: filepath.Join(dataDir, DirName), Logger: logger}
}

// ArtifactPath returns where the artifact for name lives.
func (s *Store) ArtifactPath(name string) string {
	return filepath.Join(s.Dir, SafeName(name))
}

// MetaDigest is the coarse digest: MD5 over the sorted, "|"-joined hash
// strings and "path:mtimeNanos:size" of every input file.
func MetaDigest(inputs, hashStrings []string, mode Mode) (string, error) {
	parts := append([]string(nil), hashStrings...)
	for _, in := range inputs {
		info, err := os.Stat(in)
		if err != nil {
			if mode == ModeHashRequired {
				return "", fmt.Errorf("%s: %w", in, ErrInputMissing)
			}
			continue
		}
		parts = append(parts, fmt.Sprintf("%s:%d:%d", in, info.ModTime().UnixNano(), info.Size()))
	}
	sort.Strings(parts)
	sum := md5.Sum([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:]), nil
}

// Get returns the coarse artifact for name if it was stored under the same
// inputs and hash strings.
func (s *Store) Get(name string, inputs, hashStrings []string) ([]byte, bool, error) {
	digest, err := MetaDigest(inputs, hashStrings, s.Mode)
	if err != nil {
		return nil, false, err
	}
	data, ok := s.lookup(name, coarseSuffix, digest)
	return data, ok, nil
}

// Put stores a coarse artifact.
func (s *Store) Put(name string, inputs, hashStrings []string, data []byte) error {
	digest, err := MetaDigest(inputs, hashStrings, s.Mode)
	if err != nil {
		return err
	}
	return s.store(name, coarseSuffix, digest, data)
}

// GetDigest returns the structural artifact for name if its sidecar holds digest.
func (s *Store) GetDigest(name, digest string) ([]byte, bool) {
	return s.lookup(name, structuralSuffix, digest)
}

// PutDigest stores a structural artifact under digest.
func (s *Store) PutDigest(name, digest string, data []byte) error {
	return s.store(name, structuralSuffix, digest, data)
}

// Clean removes the whole cache directory.
func (s *Store) Clean() error {
	if err := os.RemoveAll(s.Dir); err != nil {
		return fmt.Errorf("removing cache %s: %w", s.Dir, err)
	}
	return nil
}

// Entries lists artifact names currently in the cache.
func (s *Store) Entries() ([]string, error) {
	var names []string
	err := filepath.WalkDir(s.Dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return filepath.SkipAll
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		n := d.Name()
		if strings.HasSuffix(n, coarseSuffix) || strings.HasSuffix(n, structuralSuffix) || strings.HasPrefix(n, ".tmp-") {
			return nil
		}
		names = append(names, n)
		return nil
	})
	sort.Strings(names)
	return names, err
}

func (s *Store) lookup(name, suffix, digest string) ([]byte, bool) {
	artifact := s.ArtifactPath(name)
	sidecar := artifact + suffix
	log := s.Logger.With("entry", SafeName(name))

	stored, err := os.ReadFile(sidecar)
	if err != nil {
		log.Debug("cache miss", "reason", "no digest")
		return nil, false
	}
	if strings.TrimSpace(string(stored)) != digest {
		log.Debug("cache miss", "reason", "digest mismatch")
		s.remove(artifact, sidecar)
		return nil, false
	}
	data, err := os.ReadFile(artifact)
	if err != nil {
		log.Debug("cache miss", "reason", "artifact unreadable", "error", err)
		s.remove(artifact, sidecar)
		return nil, false
	}
	log.Debug("cache hit", "digest", digest)
	return data, true
}

func (s *Store) store(name, suffix, digest string, data []byte) error {
	artifact := s.ArtifactPath(name)
	if err := fsutil.WriteAtomic(artifact, data); err != nil {
		return fmt.Errorf("caching %s: %w", name, err)
	}
	if err := fsutil.WriteAtomic(artifact+suffix, []byte(digest)); err != nil {
		return fmt.Errorf("caching %s digest: %w", name, err)
	}
	return nil
}

func (s *Store) remove(paths ...string) {
	var err error
	for _, p := range paths {
		if rerr := os.Remove(p); rerr != nil && !errors.Is(rerr, fs.ErrNotExist) {
			err = multierr.Append(err, rerr)
		}
	}
	if err != nil {
		s.Logger.Warn("removing stale cache entry", "error", err)
	}
}

// SafeName turns an arbitrary key into a single file name.
func SafeName(name string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', ' ':
			return '_'
		}
		return r
	}, name)
}
