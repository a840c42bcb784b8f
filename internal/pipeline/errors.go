package pipeline

import (
	"errors"
	"fmt"
	"strings"

	"github.com/lucasnoah/variantfactory/internal/config"
)

var (
	// ErrNoConfigs means a stage returned an empty list, which ends the scenario.
	ErrNoConfigs = errors.New("stage produced no configs")
	// ErrUnknownStage means a variation names a stage the registry does not know.
	ErrUnknownStage = errors.New("unknown stage")
	// ErrDuplicateName means two generated configs of one run share a name.
	ErrDuplicateName = errors.New("duplicate config name")
)

// ValidationError reports invalid stage parameters found before any stage ran.
type ValidationError struct {
	Stage  string
	Errors []config.ValidationError
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Errors))
	for i, ve := range e.Errors {
		msgs[i] = ve.Error()
	}
	return fmt.Sprintf("stage %s: invalid parameters: %s", e.Stage, strings.Join(msgs, "; "))
}

// ResolutionError reports a stage that could not be set up: an unknown name
// or a missing file it refers to.
type ResolutionError struct {
	Stage string
	Err   error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// StageError wraps a failure while a stage transformed configs.
type StageError struct {
	Scenario string
	Stage    string
	Err      error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("scenario %s: stage %s: %v", e.Scenario, e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }
