package ktopology

import (
	"errors"
	"fmt"

	"github.com/birdayz/socflow/kstage"
)

// ErrSourceSelection is returned when not exactly one source is enabled.
var ErrSourceSelection = errors.New("exactly one of the generator and kafka sources must be enabled")

// ErrMissingUpstream is returned when a stage has nothing to attach to.
var ErrMissingUpstream = errors.New("missing upstream stage")

// ConfigurationError reports a missing or malformed configuration value. It
// is always fatal and raised before any stage is constructed.
type ConfigurationError struct {
	Key string
	Err error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error at %s: %v", e.Key, e.Err)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// AssemblyError reports a stage that could not be constructed or wired.
// Failures of critical stages abort the assembly; others are isolated and
// listed in Result.Skipped unless the failure policy is abort.
type AssemblyError struct {
	Stage    string
	ID       kstage.ID
	Kind     kstage.Kind
	Critical bool
	Err      error
}

func (e *AssemblyError) Error() string {
	if e.Critical {
		return fmt.Sprintf("critical stage %s (%s) failed: %v", e.Stage, e.ID, e.Err)
	}
	return fmt.Sprintf("stage %s (%s) failed: %v", e.Stage, e.ID, e.Err)
}

func (e *AssemblyError) Unwrap() error {
	return e.Err
}
