package config

import (
	"fmt"
	"os"
	"strings"
)

// ValidationError represents a single validation issue with a config.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// InvalidError carries every problem found in a file.
type InvalidError struct {
	Path   string
	Errors []ValidationError
}

func (e *InvalidError) Error() string {
	msgs := make([]string, len(e.Errors))
	for i, ve := range e.Errors {
		msgs[i] = "  - " + ve.Error()
	}
	return fmt.Sprintf("%s: config validation failed:\n%s", e.Path, strings.Join(msgs, "\n"))
}

// Validate checks a File for structural errors. Stage parameters are checked
// later by the stages themselves. It returns every problem found.
func Validate(f *File) []ValidationError {
	var errs []ValidationError
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if f.Version != CurrentVersion {
		add("version", "unsupported version %d, want %d", f.Version, CurrentVersion)
	}
	if len(f.Configuration) == 0 {
		add("configuration", "at least one scenario is required")
	}
	if sf := f.ScenarioFilePath(); sf != "" {
		if _, err := os.Stat(sf); err != nil {
			add("execution.scenario_file", "file %s not found", sf)
		}
	}

	names := make(map[string]bool)
	for i, s := range f.Configuration {
		prefix := fmt.Sprintf("configuration[%d]", i)
		switch {
		case s.Name == "":
			add(prefix+".name", "is required")
		case strings.ContainsAny(s.Name, `/\`):
			add(prefix+".name", "%q must not contain path separators", s.Name)
		case names[s.Name]:
			add(prefix+".name", "duplicate scenario name %q", s.Name)
		}
		names[s.Name] = true

		for j, p := range s.Parameters {
			if len(p) != 1 {
				add(fmt.Sprintf("%s.parameters[%d]", prefix, j), "must have exactly one key, got %d", len(p))
			}
		}
		for j, v := range s.Variations {
			field := fmt.Sprintf("%s.variations[%d]", prefix, j)
			if len(v.keys) != 1 {
				add(field, "must have exactly one stage name, got %d (line %d)", len(v.keys), v.Line)
				continue
			}
			if v.Name == "" {
				add(field, "stage name is empty (line %d)", v.Line)
			}
		}
	}
	return errs
}
