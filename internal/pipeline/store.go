package pipeline

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/multierr"

	"github.com/lucasnoah/variantfactory/internal/fsutil"
	"github.com/lucasnoah/variantfactory/internal/variant"
)

const (
	// ConfigsFile holds every generated config as a multi-document YAML stream.
	ConfigsFile = "scenario.configs"
	// SummaryFile holds the RunSummary.
	SummaryFile = "run.json"
)

// Store manages a run's output directory.
type Store struct {
	dir string
}

// NewStore creates a Store rooted at dir.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the output directory.
func (s *Store) Dir() string {
	return s.dir
}

// ConfigsPath returns the path of the configs stream.
func (s *Store) ConfigsPath() string {
	return filepath.Join(s.dir, ConfigsFile)
}

func (s *Store) summaryPath() string {
	return filepath.Join(s.dir, SummaryFile)
}

// ConfigDir returns the directory receiving a config's files.
func (s *Store) ConfigDir(name string) string {
	return filepath.Join(s.dir, name)
}

// Write persists a batch: the configs stream, each config's files and the run
// summary. Copy failures of individual files are collected and returned
// together after everything else was written.
func (s *Store) Write(res *BatchResult, info RunInfo) (*RunSummary, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir %s: %w", s.dir, err)
	}

	configs := res.Configs()
	var buf bytes.Buffer
	if err := variant.EncodeOutput(&buf, configs); err != nil {
		return nil, err
	}
	if err := fsutil.WriteAtomic(s.ConfigsPath(), buf.Bytes()); err != nil {
		return nil, fmt.Errorf("write %s: %w", ConfigsFile, err)
	}

	var copyErr error
	for _, c := range configs {
		for _, f := range c.ConfigFiles {
			dst := filepath.Join(s.ConfigDir(c.Name), filepath.FromSlash(f.Dest))
			if err := fsutil.CopyFile(dst, f.Source); err != nil {
				copyErr = multierr.Append(copyErr, fmt.Errorf("config %s: %w", c.Name, err))
			}
		}
	}

	summary := s.summarize(res, info)
	if err := fsutil.WriteJSON(s.summaryPath(), summary); err != nil {
		return nil, fmt.Errorf("write %s: %w", SummaryFile, err)
	}
	return summary, copyErr
}

func (s *Store) summarize(res *BatchResult, info RunInfo) *RunSummary {
	sum := &RunSummary{
		SpecFile:     info.SpecFile,
		ScenarioFile: info.ScenarioFile,
		OutputDir:    s.dir,
		Metadata:     info.Metadata,
		Scenarios:    []ScenarioSummary{},
		CreatedAt:    time.Now().UTC().Format(time.RFC3339),
	}
	failed := 0
	for _, sr := range res.Scenarios {
		ss := ScenarioSummary{
			Name:       sr.Name,
			Identifier: sr.Identifier,
			Status:     "completed",
			Duration:   sr.Duration.Round(time.Millisecond).String(),
		}
		if sr.OK() {
			for _, c := range sr.Configs {
				ss.Configs = append(ss.Configs, c.Name)
			}
			sum.Configs += len(sr.Configs)
		} else {
			ss.Status = "failed"
			ss.Reason = sr.Err.Error()
			failed++
		}
		sum.Scenarios = append(sum.Scenarios, ss)
	}
	switch {
	case failed == 0:
		sum.Status = "completed"
	case failed == len(res.Scenarios):
		sum.Status = "failed"
	default:
		sum.Status = "partial"
	}
	return sum
}

// Summary reads the run summary.
func (s *Store) Summary() (*RunSummary, error) {
	var sum RunSummary
	if err := fsutil.ReadJSON(s.summaryPath(), &sum); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("no run found in %s", s.dir)
		}
		return nil, err
	}
	return &sum, nil
}

// Configs reads the generated configs back.
func (s *Store) Configs() (configs []variant.Config, err error) {
	f, err := os.Open(s.ConfigsPath())
	if err != nil {
		return nil, err
	}
	defer multierr.AppendInvoke(&err, multierr.Close(f))
	return variant.DecodeOutput(f)
}
