// Package kadapter defines the backend capabilities pipeline stages consume
// (enrichment lookups, alert evaluation, bulk indexing) and the registry the
// assembler resolves adapter construction parameters through.
package kadapter

import (
	"context"
	"errors"
	"io"
)

// Sentinel errors.
var (
	// ErrLookup is returned by EnrichmentAdapter.Lookup when the backend is
	// unavailable.
	ErrLookup = errors.New("enrichment lookup failed")
	// ErrAdapter is returned when an adapter cannot be constructed or an
	// alerts backend is unavailable.
	ErrAdapter = errors.New("adapter failure")
	// ErrWrite is returned by IndexAdapter.BulkWrite.
	ErrWrite = errors.New("bulk write failed")
	// ErrUnknownAdapter is returned for adapter types nobody registered.
	ErrUnknownAdapter = errors.New("unknown adapter type")
)

// Role is the capability an adapter provides.
type Role string

const (
	RoleEnrichment Role = "enrichment"
	RoleAlerts     Role = "alerts"
	RoleIndex      Role = "index"
)

// EnrichmentAdapter looks up enrichment fields for an ordered list of key
// values.
type EnrichmentAdapter interface {
	Lookup(ctx context.Context, keys []string) (map[string]string, error)
	io.Closer
}

// Decision is the outcome of evaluating one record.
type Decision struct {
	Alert  bool
	Reason string
	Fields map[string]string
}

// AlertsAdapter decides whether a record raises an alert.
type AlertsAdapter interface {
	Evaluate(ctx context.Context, record map[string]any) (Decision, error)
	io.Closer
}

// Document is one record handed to an index.
type Document struct {
	Index string         `json:"index"`
	Type  string         `json:"type"`
	ID    string         `json:"id,omitempty"`
	Body  map[string]any `json:"body"`
}

// IndexAdapter writes batches of documents.
type IndexAdapter interface {
	BulkWrite(ctx context.Context, docs []Document) error
	io.Closer
}
