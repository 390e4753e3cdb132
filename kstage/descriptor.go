// Package kstage describes the stages a telemetry topology is built from:
// the catalog of stage kinds, and the descriptors the assembler produces for
// every stage it instantiates.
package kstage

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidDescriptor is returned by Validate.
var ErrInvalidDescriptor = errors.New("invalid stage descriptor")

// Descriptor is one instantiated stage. Descriptors are values; a graph owns
// its copy once the stage is added.
type Descriptor struct {
	Name            string   `json:"name"`
	ID              ID       `json:"id"`
	Kind            Kind     `json:"kind"`
	Namespace       string   `json:"namespace"`
	ParallelismHint int      `json:"parallelismHint"`
	TaskCount       int      `json:"taskCount"`
	Settings        Settings `json:"settings"`
}

// Validate checks the structural invariants of a descriptor.
func (d Descriptor) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return fmt.Errorf("%w: %s has no name", ErrInvalidDescriptor, d.ID)
	}
	if d.ParallelismHint <= 0 {
		return fmt.Errorf("%w: %s parallelism hint %d must be positive", ErrInvalidDescriptor, d.Name, d.ParallelismHint)
	}
	if d.TaskCount <= 0 {
		return fmt.Errorf("%w: %s task count %d must be positive", ErrInvalidDescriptor, d.Name, d.TaskCount)
	}
	if d.Settings == nil {
		return fmt.Errorf("%w: %s has no settings", ErrInvalidDescriptor, d.Name)
	}
	return d.Settings.Validate()
}

// WithParallelism returns a copy with hint and task count capped at limit.
func (d Descriptor) WithParallelism(limit int) Descriptor {
	if d.ParallelismHint > limit {
		d.ParallelismHint = limit
	}
	if d.TaskCount > limit {
		d.TaskCount = limit
	}
	return d
}

// Masked returns a copy whose adapter parameters have secrets masked. Use it
// for anything shown to people; submissions carry the real values.
func (d Descriptor) Masked() Descriptor {
	switch s := d.Settings.(type) {
	case EnrichmentSettings:
		s.Adapter = s.Adapter.Masked()
		d.Settings = s
	case AlertSettings:
		s.Adapter = s.Adapter.Masked()
		d.Settings = s
	case IndexSettings:
		s.Adapter = s.Adapter.Masked()
		d.Settings = s
	}
	return d
}

// CacheSpec bounds the result cache of a lookup stage.
type CacheSpec struct {
	MaxEntries          int `json:"maxEntries"`
	MaxRetentionSeconds int `json:"maxRetentionSeconds"`
}

// Validate checks that both bounds are set.
func (c CacheSpec) Validate() error {
	if c.MaxEntries <= 0 {
		return fmt.Errorf("%w: cache max entries %d must be positive", ErrInvalidDescriptor, c.MaxEntries)
	}
	if c.MaxRetentionSeconds <= 0 {
		return fmt.Errorf("%w: cache retention %ds must be positive", ErrInvalidDescriptor, c.MaxRetentionSeconds)
	}
	return nil
}

// AdapterSpec holds the construction parameters of a backend adapter. The
// assembler passes them through to the runtime stage.
type AdapterSpec struct {
	Type   string            `json:"type"`
	Params map[string]string `json:"params,omitempty"`
}

// String renders the spec with secrets masked.
func (a AdapterSpec) String() string {
	var b strings.Builder
	b.WriteString(a.Type)
	b.WriteString("{")
	for i, k := range sortedKeys(a.Params) {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(Mask(k, a.Params[k]))
	}
	b.WriteString("}")
	return b.String()
}

// Masked returns a copy with secrets masked.
func (a AdapterSpec) Masked() AdapterSpec {
	if a.Params == nil {
		return a
	}
	params := make(map[string]string, len(a.Params))
	for k, v := range a.Params {
		params[k] = Mask(k, v)
	}
	a.Params = params
	return a
}

// Mask hides values of keys that look like credentials.
func Mask(key, value string) string {
	k := strings.ToLower(key)
	if strings.Contains(k, "password") || strings.Contains(k, "secret") || strings.Contains(k, "token") {
		return "****"
	}
	return value
}
